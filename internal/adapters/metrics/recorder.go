package metrics

import (
	"errors"
	"net/http"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dlzbrowser"

// Recorder exports upstream fetch and listing counters on a private registry.
type Recorder struct {
	registry     *prometheus.Registry
	tokenFetches *prometheus.CounterVec
	credFetches  *prometheus.CounterVec
	listings     *prometheus.CounterVec
	listedBlobs  *prometheus.CounterVec
}

var _ ports.FetchRecorder = (*Recorder)(nil)

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tokenFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_fetches_total",
				Help:      "Bearer token fetches from the identity service",
			},
			[]string{"sandbox", "outcome"},
		),
		credFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_fetches_total",
				Help:      "Landing zone credential fetches",
			},
			[]string{"sandbox", "zone", "outcome"},
		),
		listings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "zone_listings_total",
				Help:      "Landing zone listings served",
			},
			[]string{"sandbox", "zone", "outcome"},
		),
		listedBlobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listed_blobs_total",
				Help:      "Blobs returned by successful listings",
			},
			[]string{"sandbox", "zone"},
		),
	}

	r.registry.MustRegister(
		r.tokenFetches,
		r.credFetches,
		r.listings,
		r.listedBlobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) TokenFetched(sandbox string, err error) {
	r.tokenFetches.WithLabelValues(sandbox, outcome(err)).Inc()
}

func (r *Recorder) CredentialFetched(sandbox string, kind domain.ZoneKind, err error) {
	r.credFetches.WithLabelValues(sandbox, string(kind), outcome(err)).Inc()
}

func (r *Recorder) ZoneListed(sandbox string, kind domain.ZoneKind, blobs int, err error) {
	r.listings.WithLabelValues(sandbox, string(kind), outcome(err)).Inc()
	if err == nil {
		r.listedBlobs.WithLabelValues(sandbox, string(kind)).Add(float64(blobs))
	}
}

// ObservePurges exports the janitor's running purge total.
func (r *Recorder) ObservePurges(total func() int64) {
	r.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_purged_total",
			Help:      "Idle sessions removed by the janitor",
		},
		func() float64 { return float64(total()) },
	))
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrAuthentication):
		return "authentication_failed"
	case errors.Is(err, domain.ErrAuthorization):
		return "authorization_failed"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream_failed"
	default:
		return "error"
	}
}
