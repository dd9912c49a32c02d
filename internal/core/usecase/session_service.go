package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

const DefaultSessionTTL = 8 * time.Hour

// SessionService owns the lifecycle of user sessions and their credential
// caches. A session's cache is never visible to another session.
type SessionService struct {
	repo           ports.SessionRepository
	secrets        ports.SecretStore
	ttl            time.Duration
	proxyAvailable bool
	now            func() time.Time
	newID          func() string
}

func NewSessionService(repo ports.SessionRepository, secrets ports.SecretStore, ttl time.Duration, proxyAvailable bool) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{
		repo:           repo,
		secrets:        secrets,
		ttl:            ttl,
		proxyAvailable: proxyAvailable,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Start records the sandbox and routing mode for a user. When currentID names
// a live session it is updated in place and keeps its cache; cached
// credentials for another sandbox are refreshed on next use.
func (s *SessionService) Start(ctx context.Context, currentID, sandbox string, useProxy bool) (domain.Session, error) {
	sandbox = strings.TrimSpace(sandbox)
	if err := domain.ValidateSandbox(sandbox); err != nil {
		return domain.Session{}, err
	}
	if _, err := s.secrets.Lookup(sandbox); err != nil {
		return domain.Session{}, err
	}
	if useProxy && !s.proxyAvailable {
		return domain.Session{}, domain.ErrProxyUnavailable
	}

	now := s.now().UTC()
	route := domain.NetworkRoute{UseProxy: useProxy}

	if currentID = strings.TrimSpace(currentID); currentID != "" {
		sess, err := s.Get(ctx, currentID)
		switch {
		case err == nil:
			sess.SandboxName = sandbox
			sess.Route = route
			sess.LastSeenAt = now
			if err := s.repo.Save(ctx, sess); err != nil {
				return domain.Session{}, err
			}
			return sess, nil
		case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSessionExpired):
		default:
			return domain.Session{}, err
		}
	}

	sess := domain.Session{
		ID:          s.newID(),
		SandboxName: sandbox,
		Route:       route,
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// Get loads a live session and marks it as seen. Idle sessions past the TTL
// are deleted and reported as expired.
func (s *SessionService) Get(ctx context.Context, id string) (domain.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}

	now := s.now().UTC()
	if sess.Expired(now, s.ttl) {
		if _, err := s.repo.Delete(ctx, id); err != nil {
			return domain.Session{}, fmt.Errorf("delete expired session: %w", err)
		}
		return domain.Session{}, domain.ErrSessionExpired
	}
	sess.LastSeenAt = now
	if err := s.repo.Save(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("touch session: %w", err)
	}
	return sess, nil
}

// SaveCache marks the session as seen and stores the cache slots that changed
// since before. sess.Cache is replaced with the merged cache, which also holds
// whatever other requests on the same session stored in the meantime.
func (s *SessionService) SaveCache(ctx context.Context, sess *domain.Session, before domain.CredentialCache) error {
	sess.LastSeenAt = s.now().UTC()
	if err := s.repo.Save(ctx, *sess); err != nil {
		return err
	}
	after := sess.Cache
	merged, err := s.repo.UpdateCache(ctx, sess.ID, func(c *domain.CredentialCache) {
		c.Apply(before, after)
	})
	if err != nil {
		return err
	}
	sess.Cache = merged
	return nil
}

// End destroys the session and every credential cached in it.
func (s *SessionService) End(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	return s.repo.Delete(ctx, id)
}

// Purge removes sessions idle for longer than the TTL.
func (s *SessionService) Purge(ctx context.Context) (int64, error) {
	return s.repo.DeleteIdleBefore(ctx, s.now().UTC().Add(-s.ttl))
}
