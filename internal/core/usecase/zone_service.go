package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/common"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

type sessionSaver interface {
	SaveCache(ctx context.Context, sess *domain.Session, before domain.CredentialCache) error
}

// ZoneService answers listing requests for a session: it makes sure the
// session holds a valid token and zone credential, then lists the zone.
type ZoneService struct {
	secrets   ports.SecretStore
	sessions  sessionSaver
	tokens    *TokenProvider
	resolver  *CredentialResolver
	formatter *ListingFormatter
	recorder  ports.FetchRecorder
	logger    *common.Logger
	now       func() time.Time

	refreshOnUnauthorized bool
}

type ZoneServiceOption func(*ZoneService)

func WithFetchRecorder(recorder ports.FetchRecorder) ZoneServiceOption {
	return func(s *ZoneService) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

func WithZoneLogger(logger *common.Logger) ZoneServiceOption {
	return func(s *ZoneService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRefreshOnUnauthorized makes List drop the session cache and run the
// whole chain once more when upstream rejects a cached credential.
func WithRefreshOnUnauthorized(enabled bool) ZoneServiceOption {
	return func(s *ZoneService) {
		s.refreshOnUnauthorized = enabled
	}
}

func NewZoneService(secrets ports.SecretStore, sessions sessionSaver, tokens *TokenProvider, resolver *CredentialResolver, formatter *ListingFormatter, opts ...ZoneServiceOption) *ZoneService {
	s := &ZoneService{
		secrets:   secrets,
		sessions:  sessions,
		tokens:    tokens,
		resolver:  resolver,
		formatter: formatter,
		recorder:  ports.NopRecorder{},
		logger:    common.NewSilentLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every record in the session's zone of the given kind. The
// session cache is updated in place and the changed slots are saved whenever
// a credential was fetched, even if the listing itself fails.
func (s *ZoneService) List(ctx context.Context, sess *domain.Session, kind domain.ZoneKind) ([]domain.BlobRecord, error) {
	if kind.QueryType() == "" {
		return nil, domain.ErrInvalidZoneKind
	}
	secret, err := s.secrets.Lookup(sess.SandboxName)
	if err != nil {
		return nil, err
	}

	records, err := s.list(ctx, sess, secret, kind)
	if err != nil && s.refreshOnUnauthorized && errors.Is(err, domain.ErrAuthorization) {
		s.logger.Warn().
			Str("session", sess.ID).
			Str("sandbox", sess.SandboxName).
			Str("zone", string(kind)).
			Msg("credential rejected upstream, refreshing once")
		before := sess.Cache
		sess.Cache.Reset()
		if err = s.sessions.SaveCache(ctx, sess, before); err == nil {
			records, err = s.list(ctx, sess, secret, kind)
		}
	}
	s.recorder.ZoneListed(sess.SandboxName, kind, len(records), err)
	return records, err
}

func (s *ZoneService) list(ctx context.Context, sess *domain.Session, secret domain.TenantSecret, kind domain.ZoneKind) ([]domain.BlobRecord, error) {
	before := sess.Cache
	cred, err := s.EnsureCredential(ctx, sess, secret, kind)
	if sess.Cache != before {
		if saveErr := s.sessions.SaveCache(ctx, sess, before); saveErr != nil {
			return nil, saveErr
		}
	}
	if err != nil {
		return nil, err
	}
	return Collect(s.formatter.ListZone(ctx, cred, sess.Route))
}

// EnsureToken returns the session's cached token, fetching a new one first if
// it is missing, bound to another sandbox, or expired.
func (s *ZoneService) EnsureToken(ctx context.Context, sess *domain.Session, secret domain.TenantSecret) (domain.BearerToken, error) {
	if !domain.NeedsRefresh(sess.Cache.Token, sess.SandboxName, s.now()) {
		return *sess.Cache.Token, nil
	}

	token, err := s.tokens.GetToken(ctx, secret, sess.Route)
	s.recorder.TokenFetched(sess.SandboxName, err)
	if err != nil {
		return domain.BearerToken{}, err
	}
	sess.Cache.Token = &token
	return token, nil
}

// EnsureCredential is EnsureToken followed by the same check for the zone
// credential of kind.
func (s *ZoneService) EnsureCredential(ctx context.Context, sess *domain.Session, secret domain.TenantSecret, kind domain.ZoneKind) (domain.LandingZoneCredential, error) {
	token, err := s.EnsureToken(ctx, sess, secret)
	if err != nil {
		return domain.LandingZoneCredential{}, err
	}

	if cached := sess.Cache.For(kind); !domain.NeedsRefresh(cached, sess.SandboxName, s.now()) {
		return *cached, nil
	}

	cred, err := s.resolver.GetCredential(ctx, secret, token, sess.SandboxName, kind, sess.Route)
	s.recorder.CredentialFetched(sess.SandboxName, kind, err)
	if err != nil {
		return domain.LandingZoneCredential{}, err
	}
	sess.Cache.Set(kind, &cred)

	s.logger.Info().
		Str("session", sess.ID).
		Str("sandbox", sess.SandboxName).
		Str("zone", string(kind)).
		Str("account", cred.StorageAccountName).
		Str("container", cred.ContainerName).
		Msg("landing zone credential refreshed")
	return cred, nil
}
