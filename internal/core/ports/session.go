package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
)

// SessionRepository stores sessions. Credential caches stay in process
// memory: Create seeds one, Save ignores it and UpdateCache is the only way
// to change it afterwards.
type SessionRepository interface {
	Create(ctx context.Context, sess domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	Save(ctx context.Context, sess domain.Session) error
	UpdateCache(ctx context.Context, id string, update func(*domain.CredentialCache)) (domain.CredentialCache, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SecretStore interface {
	Lookup(sandbox string) (domain.TenantSecret, error)
	Sandboxes() []string
}
