package domain

import "time"

// DefaultTokenLifetime is how long a fetched bearer token is served from cache.
// It stays under the 24h lifetime of identity tokens so a cached token is never
// presented after the upstream considers it expired.
const DefaultTokenLifetime = 86000 * time.Second

type BearerToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	SandboxName string    `json:"sandbox_name"`
}

func (t BearerToken) BoundSandbox() string { return t.SandboxName }

func (t BearerToken) Expiry() time.Time { return t.ExpiresAt }
