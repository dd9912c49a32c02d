package ports

import (
	"context"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
)

// TokenResponse is the identity endpoint's answer to a client credentials grant.
type TokenResponse struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}

type TokenIssuer interface {
	IssueToken(ctx context.Context, secret domain.TenantSecret, route domain.NetworkRoute) (TokenResponse, error)
}

type CredentialIssuer interface {
	IssueCredential(ctx context.Context, req CredentialRequest) (domain.LandingZoneCredential, error)
}

type CredentialRequest struct {
	Secret      domain.TenantSecret
	AccessToken string
	SandboxName string
	Kind        domain.ZoneKind
	Route       domain.NetworkRoute
}
