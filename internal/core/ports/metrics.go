package ports

import "github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"

type FetchRecorder interface {
	TokenFetched(sandbox string, err error)
	CredentialFetched(sandbox string, kind domain.ZoneKind, err error)
	ZoneListed(sandbox string, kind domain.ZoneKind, blobs int, err error)
}

type NopRecorder struct{}

func (NopRecorder) TokenFetched(string, error)                       {}
func (NopRecorder) CredentialFetched(string, domain.ZoneKind, error) {}
func (NopRecorder) ZoneListed(string, domain.ZoneKind, int, error)   {}
