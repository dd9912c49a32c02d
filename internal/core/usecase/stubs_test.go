package usecase

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

type stubTokenIssuer struct {
	calls   int
	issueFn func(ctx context.Context, secret domain.TenantSecret, route domain.NetworkRoute) (ports.TokenResponse, error)
}

func (s *stubTokenIssuer) IssueToken(ctx context.Context, secret domain.TenantSecret, route domain.NetworkRoute) (ports.TokenResponse, error) {
	s.calls++
	if s.issueFn != nil {
		return s.issueFn(ctx, secret, route)
	}
	return ports.TokenResponse{AccessToken: "token-" + secret.SandboxName, TokenType: "bearer", ExpiresIn: 86399}, nil
}

type stubCredentialIssuer struct {
	calls    int
	requests []ports.CredentialRequest
	issueFn  func(ctx context.Context, req ports.CredentialRequest) (domain.LandingZoneCredential, error)
}

func (s *stubCredentialIssuer) IssueCredential(ctx context.Context, req ports.CredentialRequest) (domain.LandingZoneCredential, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.issueFn != nil {
		return s.issueFn(ctx, req)
	}
	return domain.LandingZoneCredential{
		StorageAccountName: "acct" + req.SandboxName,
		ContainerName:      "dlz-" + string(req.Kind),
		SASToken:           "sv=2020-04-08&sr=c&sig=x",
	}, nil
}

type stubBlobLister struct {
	calls  int
	items  []domain.BlobItem
	listFn func(ctx context.Context, cred domain.LandingZoneCredential) iter.Seq2[domain.BlobItem, error]
}

func (s *stubBlobLister) ListBlobs(ctx context.Context, cred domain.LandingZoneCredential, _ domain.NetworkRoute) iter.Seq2[domain.BlobItem, error] {
	s.calls++
	if s.listFn != nil {
		return s.listFn(ctx, cred)
	}
	return func(yield func(domain.BlobItem, error) bool) {
		for _, item := range s.items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

type stubSecretStore struct {
	secrets map[string]domain.TenantSecret
}

func newStubSecretStore(sandboxes ...string) *stubSecretStore {
	s := &stubSecretStore{secrets: map[string]domain.TenantSecret{}}
	for _, name := range sandboxes {
		s.secrets[name] = domain.TenantSecret{
			ClientID:     "client-" + name,
			ClientSecret: "secret-" + name,
			APIKey:       "key-" + name,
			OrgID:        "org@AdobeOrg",
			SandboxName:  name,
		}
	}
	return s
}

func (s *stubSecretStore) Lookup(sandbox string) (domain.TenantSecret, error) {
	secret, ok := s.secrets[sandbox]
	if !ok {
		return domain.TenantSecret{}, domain.ErrUnknownSandbox
	}
	return secret, nil
}

func (s *stubSecretStore) Sandboxes() []string {
	out := make([]string, 0, len(s.secrets))
	for name := range s.secrets {
		out = append(out, name)
	}
	return out
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	saves    int
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]domain.Session{}}
}

func (r *memSessionRepo) Create(_ context.Context, sess domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
	return nil
}

func (r *memSessionRepo) Get(_ context.Context, id string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (r *memSessionRepo) Save(_ context.Context, sess domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sess.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.saves++
	sess.Cache = stored.Cache
	r.sessions[sess.ID] = sess
	return nil
}

func (r *memSessionRepo) UpdateCache(_ context.Context, id string, update func(*domain.CredentialCache)) (domain.CredentialCache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return domain.CredentialCache{}, domain.ErrSessionNotFound
	}
	update(&sess.Cache)
	r.sessions[id] = sess
	return sess.Cache, nil
}

func (r *memSessionRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok, nil
}

func (r *memSessionRepo) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, sess := range r.sessions {
		if sess.LastSeenAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
