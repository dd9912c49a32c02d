package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/azureblob"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/metrics"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/nettransport"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/platform"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/secrets"
	sqliteadapter "github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/common"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/usecase"
	"github.com/atvirokodosprendimai/dlzbrowser/migrations"
)

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServer wires the service. A missing or invalid secrets file is fatal.
func NewServer(ctx context.Context, cfg Config, logger *common.Logger) (*http.Server, io.Closer, error) {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	store, err := secrets.LoadFile(cfg.SecretsFile)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Strs("sandboxes", store.Sandboxes()).Msg("secrets loaded")

	clients, err := nettransport.New(nettransport.Config{
		ProxyURL: cfg.ProxyURL,
		Timeout:  time.Duration(cfg.HTTPTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	db, err := gormsqlite.Open(cfg.SessionDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open session sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	recorder := metrics.NewRecorder()
	platformClient := platform.NewClient(clients,
		platform.WithIdentityURL(cfg.IdentityURL),
		platform.WithPlatformURL(cfg.PlatformURL),
		platform.WithScope(cfg.IMSScope),
		platform.WithRateLimit(cfg.RateLimit),
		platform.WithLogger(logger),
	)
	lister := azureblob.NewLister(clients, cfg.StorageEndpoint, logger)

	sessionRepo := sqliteadapter.NewSessionRepository(db)
	sessionService := usecase.NewSessionService(sessionRepo, store, time.Duration(cfg.SessionTTL), clients.ProxyAvailable())
	zoneService := usecase.NewZoneService(
		store,
		sessionService,
		usecase.NewTokenProvider(platformClient, time.Duration(cfg.TokenLifetime), logger),
		usecase.NewCredentialResolver(platformClient),
		usecase.NewListingFormatter(lister),
		usecase.WithFetchRecorder(recorder),
		usecase.WithZoneLogger(logger),
		usecase.WithRefreshOnUnauthorized(cfg.RefreshOnUnauthorized),
	)

	janitor := usecase.NewSessionJanitor(sessionService, time.Duration(cfg.JanitorInterval), logger)
	recorder.ObservePurges(func() int64 { return janitor.Metrics().PurgedTotal })
	janitor.Start(context.Background())

	handler := httpapi.NewHandler(sessionService, zoneService, store,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(recorder.Handler()),
		httpapi.WithCORSOrigins(cfg.CORSOrigins),
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{janitor, db}}, nil
}
