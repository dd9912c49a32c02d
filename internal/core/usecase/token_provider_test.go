package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

func TestTokenProviderStampsSandboxAndLifetime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	issuer := &stubTokenIssuer{}
	p := NewTokenProvider(issuer, 0, nil)
	p.now = clock.Now

	secret := newStubSecretStore("qa").secrets["qa"]
	tok, err := p.GetToken(context.Background(), secret, domain.NetworkRoute{})
	require.NoError(t, err)

	assert.Equal(t, "token-qa", tok.AccessToken)
	assert.Equal(t, "qa", tok.SandboxName)
	assert.Equal(t, clock.t.Add(domain.DefaultTokenLifetime), tok.ExpiresAt)
	assert.Equal(t, 1, issuer.calls)
}

func TestTokenProviderClampsToUpstreamExpiresIn(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	issuer := &stubTokenIssuer{issueFn: func(context.Context, domain.TenantSecret, domain.NetworkRoute) (ports.TokenResponse, error) {
		return ports.TokenResponse{AccessToken: "opaque", ExpiresIn: 3600}, nil
	}}
	p := NewTokenProvider(issuer, 24*time.Hour, nil)
	p.now = clock.Now

	tok, err := p.GetToken(context.Background(), domain.TenantSecret{SandboxName: "qa"}, domain.NetworkRoute{})
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(time.Hour-tokenExpirySkew), tok.ExpiresAt)
}

func TestTokenProviderKeepsLifetimeWhenUpstreamOutlivesIt(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	issuer := &stubTokenIssuer{issueFn: func(context.Context, domain.TenantSecret, domain.NetworkRoute) (ports.TokenResponse, error) {
		return ports.TokenResponse{AccessToken: "opaque", ExpiresIn: 86399}, nil
	}}
	p := NewTokenProvider(issuer, 0, nil)
	p.now = clock.Now

	tok, err := p.GetToken(context.Background(), domain.TenantSecret{SandboxName: "qa"}, domain.NetworkRoute{})
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(domain.DefaultTokenLifetime), tok.ExpiresAt)
}

func TestTokenProviderExpiresBeforeUpstreamDeadline(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	issuer := &stubTokenIssuer{issueFn: func(context.Context, domain.TenantSecret, domain.NetworkRoute) (ports.TokenResponse, error) {
		return ports.TokenResponse{AccessToken: "opaque", ExpiresIn: 600}, nil
	}}
	p := NewTokenProvider(issuer, 24*time.Hour, nil)
	p.now = clock.Now

	tok, err := p.GetToken(context.Background(), domain.TenantSecret{SandboxName: "qa"}, domain.NetworkRoute{})
	require.NoError(t, err)

	deadline := clock.t.Add(600 * time.Second)
	assert.True(t, tok.ExpiresAt.Before(deadline))
	assert.True(t, domain.NeedsRefresh(&tok, "qa", deadline.Add(-time.Second)))
}

func TestTokenProviderClampsToJWTExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	exp := clock.t.Add(30 * time.Minute)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	issuer := &stubTokenIssuer{issueFn: func(context.Context, domain.TenantSecret, domain.NetworkRoute) (ports.TokenResponse, error) {
		return ports.TokenResponse{AccessToken: signed, ExpiresIn: 86399}, nil
	}}
	p := NewTokenProvider(issuer, 0, nil)
	p.now = clock.Now

	tok, err := p.GetToken(context.Background(), domain.TenantSecret{SandboxName: "qa"}, domain.NetworkRoute{})
	require.NoError(t, err)
	assert.Equal(t, exp.Add(-tokenExpirySkew), tok.ExpiresAt)
}

func TestJWTExpiryFromMillisecondClaims(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"created_at": "1775034000000",
		"expires_in": "3600000",
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	got, ok := jwtExpiry(signed)
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1775034000000+3600000).UTC(), got)

	_, ok = jwtExpiry("not-a-jwt")
	assert.False(t, ok)
}

func TestTokenProviderRejectsEmptyAccessToken(t *testing.T) {
	issuer := &stubTokenIssuer{issueFn: func(context.Context, domain.TenantSecret, domain.NetworkRoute) (ports.TokenResponse, error) {
		return ports.TokenResponse{TokenType: "bearer"}, nil
	}}
	p := NewTokenProvider(issuer, 0, nil)

	_, err := p.GetToken(context.Background(), domain.TenantSecret{SandboxName: "qa"}, domain.NetworkRoute{})
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
}

func TestTokenProviderPropagatesIssuerError(t *testing.T) {
	issuer := &stubTokenIssuer{issueFn: func(context.Context, domain.TenantSecret, domain.NetworkRoute) (ports.TokenResponse, error) {
		return ports.TokenResponse{}, domain.ErrUpstream
	}}
	p := NewTokenProvider(issuer, 0, nil)

	_, err := p.GetToken(context.Background(), domain.TenantSecret{SandboxName: "qa"}, domain.NetworkRoute{})
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}
