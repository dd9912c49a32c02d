package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/common"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

// tokenExpirySkew is taken off any expiry reported by the identity service so
// a cached token is replaced before upstream starts rejecting it.
const tokenExpirySkew = time.Minute

// TokenProvider exchanges tenant client credentials for bearer tokens.
type TokenProvider struct {
	issuer   ports.TokenIssuer
	lifetime time.Duration
	logger   *common.Logger
	now      func() time.Time
}

// NewTokenProvider returns a provider that stamps tokens with now+lifetime.
// A non-positive lifetime falls back to domain.DefaultTokenLifetime.
func NewTokenProvider(issuer ports.TokenIssuer, lifetime time.Duration, logger *common.Logger) *TokenProvider {
	if lifetime <= 0 {
		lifetime = domain.DefaultTokenLifetime
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &TokenProvider{issuer: issuer, lifetime: lifetime, logger: logger, now: time.Now}
}

// GetToken fetches a new token for secret. The expiry is the configured
// lifetime, shortened to whatever the identity service reports (less
// tokenExpirySkew) if that is sooner. Nothing is cached here.
func (p *TokenProvider) GetToken(ctx context.Context, secret domain.TenantSecret, route domain.NetworkRoute) (domain.BearerToken, error) {
	issuedAt := p.now().UTC()

	resp, err := p.issuer.IssueToken(ctx, secret, route)
	if err != nil {
		return domain.BearerToken{}, err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return domain.BearerToken{}, fmt.Errorf("%w: identity response has no access token", domain.ErrAuthentication)
	}

	expiresAt := issuedAt.Add(p.lifetime)
	if resp.ExpiresIn > 0 {
		upstream := issuedAt.Add(time.Duration(resp.ExpiresIn)*time.Second - tokenExpirySkew)
		if upstream.Before(expiresAt) {
			expiresAt = upstream
		}
	}
	if claimed, ok := jwtExpiry(resp.AccessToken); ok {
		if claimed = claimed.Add(-tokenExpirySkew); claimed.Before(expiresAt) {
			expiresAt = claimed
		}
	}

	p.logger.Debug().
		Str("sandbox", secret.SandboxName).
		Time("expires_at", expiresAt).
		Msg("bearer token issued")

	return domain.BearerToken{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresAt:   expiresAt,
		SandboxName: secret.SandboxName,
	}, nil
}

// jwtExpiry reads the expiry of an access token without verifying it. Identity
// tokens either carry a standard "exp" claim or millisecond "created_at" and
// "expires_in" claims encoded as strings.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		return exp.UTC(), true
	}
	createdAt, ok := millisClaim(claims, "created_at")
	if !ok {
		return time.Time{}, false
	}
	expiresIn, ok := millisClaim(claims, "expires_in")
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(createdAt + expiresIn).UTC(), true
}

func millisClaim(claims jwt.MapClaims, name string) (int64, bool) {
	switch v := claims[name].(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
