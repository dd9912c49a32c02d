package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

// CredentialResolver exchanges a bearer token for a landing zone credential.
type CredentialResolver struct {
	issuer ports.CredentialIssuer
	now    func() time.Time
}

func NewCredentialResolver(issuer ports.CredentialIssuer) *CredentialResolver {
	return &CredentialResolver{issuer: issuer, now: time.Now}
}

// GetCredential requires token to be valid for sandbox; callers refresh it
// through TokenProvider first. The returned credential is stamped with
// sandbox and kind.
func (r *CredentialResolver) GetCredential(ctx context.Context, secret domain.TenantSecret, token domain.BearerToken, sandbox string, kind domain.ZoneKind, route domain.NetworkRoute) (domain.LandingZoneCredential, error) {
	if kind.QueryType() == "" {
		return domain.LandingZoneCredential{}, fmt.Errorf("%w: %q", domain.ErrInvalidZoneKind, kind)
	}
	if domain.NeedsRefresh(&token, sandbox, r.now()) {
		return domain.LandingZoneCredential{}, fmt.Errorf("%w: bearer token is not valid for sandbox %q", domain.ErrAuthorization, sandbox)
	}

	cred, err := r.issuer.IssueCredential(ctx, ports.CredentialRequest{
		Secret:      secret,
		AccessToken: token.AccessToken,
		SandboxName: sandbox,
		Kind:        kind,
		Route:       route,
	})
	if err != nil {
		return domain.LandingZoneCredential{}, err
	}

	cred.SandboxName = sandbox
	cred.Kind = kind
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = domain.SASExpiry(cred.SASToken)
	}
	return cred, nil
}
