package domain

import "regexp"

var sandboxPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// TenantSecret holds the client credentials of one sandbox.
type TenantSecret struct {
	ClientID     string
	ClientSecret string
	APIKey       string
	OrgID        string
	SandboxName  string
}

func ValidateSandbox(name string) error {
	if name == "" || !sandboxPattern.MatchString(name) {
		return ErrInvalidSandbox
	}
	return nil
}
