package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/common"
)

type sessionPurger interface {
	Purge(ctx context.Context) (int64, error)
}

// SessionJanitor periodically drops idle sessions so their cached
// credentials do not outlive the session.
type SessionJanitor struct {
	sessions sessionPurger
	interval time.Duration
	logger   *common.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	purgedTotal atomic.Int64
	runsTotal   atomic.Int64
}

func NewSessionJanitor(sessions sessionPurger, interval time.Duration, logger *common.Logger) *SessionJanitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &SessionJanitor{sessions: sessions, interval: interval, logger: logger}
}

func (j *SessionJanitor) Start(parent context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	j.cancel = cancel
	j.wg.Add(1)
	go j.loop(ctx)
}

func (j *SessionJanitor) Close() error {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
	return nil
}

func (j *SessionJanitor) loop(ctx context.Context) {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		j.runOnce(ctx)
	}
}

func (j *SessionJanitor) runOnce(ctx context.Context) {
	j.runsTotal.Add(1)
	n, err := j.sessions.Purge(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error().Err(err).Msg("purge idle sessions")
		}
		return
	}
	if n > 0 {
		j.purgedTotal.Add(n)
		j.logger.Info().Int64("purged", n).Msg("idle sessions purged")
	}
}

type SessionJanitorMetrics struct {
	RunsTotal   int64
	PurgedTotal int64
}

func (j *SessionJanitor) Metrics() SessionJanitorMetrics {
	return SessionJanitorMetrics{
		RunsTotal:   j.runsTotal.Load(),
		PurgedTotal: j.purgedTotal.Load(),
	}
}
