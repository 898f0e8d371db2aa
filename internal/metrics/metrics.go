package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records auth outcomes, browser sessions and repository calls.
// It implements session.Recorder.
type Collector struct {
	authTotal     *prometheus.CounterVec
	authenticated prometheus.Gauge
	sessions      prometheus.Gauge
	repoOps       *prometheus.CounterVec
	repoLatency   *prometheus.HistogramVec
	wsClients     prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hiremaybe_auth_operations_total",
			Help: "Auth operations by operation and outcome",
		}, []string{"op", "outcome"}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hiremaybe_sessions_authenticated",
			Help: "Browser sessions with a signed in user",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hiremaybe_sessions_open",
			Help: "Browser sessions held in memory",
		}),
		repoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hiremaybe_repository_operations_total",
			Help: "Application repository calls by operation and result",
		}, []string{"op", "result"}),
		repoLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hiremaybe_repository_latency_seconds",
			Help:    "Application repository call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hiremaybe_ws_clients",
			Help: "Connected session websocket clients",
		}),
	}

	reg.MustRegister(
		c.authTotal,
		c.authenticated,
		c.sessions,
		c.repoOps,
		c.repoLatency,
		c.wsClients,
	)
	return c
}

// RecordAuth implements session.Recorder.
func (c *Collector) RecordAuth(op string, outcome string) {
	c.authTotal.WithLabelValues(op, outcome).Inc()
}

// AuthenticatedChanged implements session.Recorder.
func (c *Collector) AuthenticatedChanged(authenticated bool) {
	if authenticated {
		c.authenticated.Inc()
	} else {
		c.authenticated.Dec()
	}
}

func (c *Collector) SessionOpened() {
	c.sessions.Inc()
}

func (c *Collector) SessionClosed() {
	c.sessions.Dec()
}

func (c *Collector) WsClientConnected() {
	c.wsClients.Inc()
}

func (c *Collector) WsClientDisconnected() {
	c.wsClients.Dec()
}

func (c *Collector) observe(op string, start time.Time, err error) {
	c.repoLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.repoOps.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "error"
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute returns a mux serving /metrics.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

type instrumentedRepository struct {
	next domain.ApplicationRepository
	c    *Collector
}

// InstrumentRepository wraps repo so every call is counted and timed.
func InstrumentRepository(repo domain.ApplicationRepository, c *Collector) domain.ApplicationRepository {
	return &instrumentedRepository{next: repo, c: c}
}

func (r *instrumentedRepository) List(ctx context.Context, ownerID string) (records []domain.ApplicationRecord, err error) {
	defer func(start time.Time) { r.c.observe("list", start, err) }(time.Now())
	return r.next.List(ctx, ownerID)
}

func (r *instrumentedRepository) Create(ctx context.Context, ownerID string, fields domain.ApplicationFields) (id string, err error) {
	defer func(start time.Time) { r.c.observe("create", start, err) }(time.Now())
	return r.next.Create(ctx, ownerID, fields)
}

func (r *instrumentedRepository) Update(ctx context.Context, ownerID string, recordID string, fields domain.ApplicationFields) (err error) {
	defer func(start time.Time) { r.c.observe("update", start, err) }(time.Now())
	return r.next.Update(ctx, ownerID, recordID, fields)
}

func (r *instrumentedRepository) Delete(ctx context.Context, ownerID string, recordID string) (err error) {
	defer func(start time.Time) { r.c.observe("delete", start, err) }(time.Now())
	return r.next.Delete(ctx, ownerID, recordID)
}
