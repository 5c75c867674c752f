// Package metrics exposes Prometheus collectors for the racecard crawler.
// The crawler is a batch job, so collectors live on a private registry that
// is pushed to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Document kinds used as the "kind" label.
const (
	KindRacecards = "racecards"
	KindRace      = "race"
	KindProfile   = "profile"
	KindGoing     = "going"
)

var (
	registry *prometheus.Registry

	documentsTotal          *prometheus.CounterVec
	documentBytesTotal      *prometheus.CounterVec
	fetchDurationSeconds    *prometheus.HistogramVec
	fetchRetriesTotal       *prometheus.CounterVec
	racesTotal              *prometheus.CounterVec
	runnersTotal            *prometheus.CounterVec
	snapshotCollisionsTotal prometheus.Counter
	rateLimitDelaysSeconds  *prometheus.HistogramVec
	lastSuccessTimestamp    prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		factory := func(c prometheus.Collector) { registry.MustRegister(c) }

		documentsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecards_documents_total",
				Help: "Total number of documents fetched, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)
		factory(documentsTotal)

		documentBytesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecards_document_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)
		factory(documentBytesTotal)

		fetchDurationSeconds = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "racecards_fetch_batch_duration_seconds",
				Help:    "Histogram of batch fetch latencies, labeled by kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)
		factory(fetchDurationSeconds)

		fetchRetriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecards_fetch_retries_total",
				Help: "Total number of HTTP retries, labeled by site.",
			},
			[]string{"site"},
		)
		factory(fetchRetriesTotal)

		racesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecards_races_total",
				Help: "Total number of races processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		factory(racesTotal)

		runnersTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecards_runners_total",
				Help: "Total number of runner records, labeled by source.",
			},
			[]string{"source"},
		)
		factory(runnersTotal)

		snapshotCollisionsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "racecards_snapshot_collisions_total",
				Help: "Races overwritten because region, course and off time collided.",
			},
		)
		factory(snapshotCollisionsTotal)

		rateLimitDelaysSeconds = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "racecards_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
		factory(rateLimitDelaysSeconds)

		lastSuccessTimestamp = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "racecards_last_success_timestamp_seconds",
				Help: "Unix time of the last snapshot written successfully.",
			},
		)
		factory(lastSuccessTimestamp)
	})
}

// Registry returns the registry holding every collector.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveDocument counts one fetched document.
func ObserveDocument(kind, rawURL string, err error, bytesFetched int) {
	Init()
	status := "ok"
	if err != nil {
		status = "error"
	}
	documentsTotal.WithLabelValues(kind, status).Inc()
	if bytesFetched > 0 {
		documentBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(bytesFetched))
	}
}

// ObserveFetchBatch records the wall time of one FetchAll call.
func ObserveFetchBatch(kind string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRetry counts one HTTP retry.
func ObserveRetry(rawURL string) {
	Init()
	fetchRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRace counts one race outcome ("assembled" or "failed").
func ObserveRace(outcome string) {
	Init()
	racesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRunners counts runner records by source ("profile" or "stub").
func ObserveRunners(source string, n int) {
	Init()
	if n > 0 {
		runnersTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveCollision counts one overwritten snapshot slot.
func ObserveCollision() {
	Init()
	snapshotCollisionsTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// MarkSuccess stamps the last-success gauge.
func MarkSuccess(now time.Time) {
	Init()
	lastSuccessTimestamp.Set(float64(now.Unix()))
}

// Push sends every collector to the Pushgateway at gatewayURL under job.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(Registry()).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
