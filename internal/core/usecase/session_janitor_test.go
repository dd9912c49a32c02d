package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type purgerStub struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (p *purgerStub) Purge(context.Context) (int64, error) {
	p.calls.Add(1)
	return p.n, p.err
}

func TestSessionJanitorRunOnceCountsPurged(t *testing.T) {
	p := &purgerStub{n: 3}
	j := NewSessionJanitor(p, time.Minute, nil)

	j.runOnce(context.Background())
	j.runOnce(context.Background())

	m := j.Metrics()
	assert.Equal(t, int64(2), m.RunsTotal)
	assert.Equal(t, int64(6), m.PurgedTotal)
}

func TestSessionJanitorRunOnceToleratesErrors(t *testing.T) {
	p := &purgerStub{err: errors.New("db locked")}
	j := NewSessionJanitor(p, time.Minute, nil)

	j.runOnce(context.Background())
	assert.Equal(t, int64(0), j.Metrics().PurgedTotal)
	assert.Equal(t, int64(1), j.Metrics().RunsTotal)
}

func TestSessionJanitorStartAndClose(t *testing.T) {
	p := &purgerStub{n: 1}
	j := NewSessionJanitor(p, 5*time.Millisecond, nil)

	j.Start(context.Background())
	j.Start(context.Background())
	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, j.Close())

	after := p.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, p.calls.Load())
	require.NoError(t, j.Close())
}
