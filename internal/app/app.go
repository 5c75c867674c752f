// Package app builds the crawler's long-lived services from configuration
// and owns their shutdown.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/racecards-crawler/internal/clock/system"
	"github.com/JakeFAU/racecards-crawler/internal/config"
	"github.com/JakeFAU/racecards-crawler/internal/courses"
	"github.com/JakeFAU/racecards-crawler/internal/discovery"
	collyfetcher "github.com/JakeFAU/racecards-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/racecards-crawler/internal/going"
	"github.com/JakeFAU/racecards-crawler/internal/hash/sha256"
	"github.com/JakeFAU/racecards-crawler/internal/id/uuid"
	"github.com/JakeFAU/racecards-crawler/internal/metrics"
	"github.com/JakeFAU/racecards-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/racecards-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/racecards-crawler/internal/race"
	"github.com/JakeFAU/racecards-crawler/internal/racecard"
	"github.com/JakeFAU/racecards-crawler/internal/snapshot"
	"github.com/JakeFAU/racecards-crawler/internal/storage/gcs"
	"github.com/JakeFAU/racecards-crawler/internal/storage/local"
	"github.com/JakeFAU/racecards-crawler/internal/storage/postgres"
	"github.com/JakeFAU/racecards-crawler/internal/telemetry"
	"github.com/JakeFAU/racecards-crawler/internal/worker"
)

// Runner executes one crawl.
type Runner interface {
	Run(ctx context.Context, day discovery.Day) (worker.Completion, error)
}

// App holds the services shared by one process.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	runner  Runner
	closers []io.Closer
}

// New wires every service described by cfg. Optional sinks (Postgres,
// Pub/Sub, GCS) are only dialed when configured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName:  serviceName(cfg),
		HTTPEndpoint: cfg.Tracing.OTLPHTTPEndpoint,
		GRPCEndpoint: cfg.Tracing.OTLPGRPCEndpoint,
		Headers:      cfg.Tracing.Headers,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closerFunc(func() { _ = tp.Shutdown(context.Background()) }))

	clock, err := system.InZone(cfg.Source.Timezone)
	if err != nil {
		a.Close()
		return nil, err
	}
	table, err := courses.Load(cfg.Courses.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("course table loaded", zap.Int("courses", table.Len()))

	fetcher := collyfetcher.New(fetcherConfig(cfg), logger.Named("fetcher"))
	base := cfg.Source.BaseURL

	discoverer := discovery.New(fetcher.ForKind(metrics.KindRacecards), base, cfg.Source.ExcludedCourses, logger)
	goingClient := going.NewClient(fetcher.ForKind(metrics.KindGoing), base, logger)
	assembler := race.NewAssembler(fetcher.ForKind(metrics.KindProfile), table, base, logger)
	builder := snapshot.NewBuilder(goingClient, fetcher.ForKind(metrics.KindRace), assembler, cfg.Source.RaceWorkers, logger)

	blobs, err := a.blobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	index, err := a.raceIndex(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	publisher, err := a.publisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.runner = worker.New(
		discoverer,
		builder,
		blobs,
		index,
		publisher,
		sha256.New(),
		clock,
		uuid.New(),
		worker.Config{ContentType: "application/json", Topic: cfg.PubSub.TopicName},
		logger.Named("worker"),
	)
	return a, nil
}

func serviceName(cfg config.Config) string {
	if cfg.Metrics.Job != "" {
		return cfg.Metrics.Job
	}
	return "racecards"
}

func fetcherConfig(cfg config.Config) collyfetcher.Config {
	retries := cfg.HTTP.MaxRetries
	if retries == 0 {
		retries = -1
	}
	initial, maxDelay := cfg.Backoff()
	return collyfetcher.Config{
		UserAgent:      cfg.Source.UserAgent,
		MaxConnections: cfg.Source.MaxConnections,
		Timeout:        cfg.FetchTimeout(),
		Retry: collyfetcher.RetryConfig{
			MaxAttempts: retries,
			BaseDelay:   initial,
			MaxDelay:    maxDelay,
		},
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
			Burst:             cfg.HTTP.Burst,
		},
	}
}

func (a *App) blobStore(ctx context.Context) (racecard.BlobStore, error) {
	out := a.cfg.Output
	if out.GCSBucket != "" {
		store, err := gcs.Open(ctx, gcs.Config{Bucket: out.GCSBucket, Prefix: out.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		a.closers = append(a.closers, store)
		a.logger.Info("writing snapshots to gcs", zap.String("bucket", out.GCSBucket))
		return store, nil
	}
	store, err := local.New(local.Config{BaseDir: out.Dir, Prefix: out.Prefix})
	if err != nil {
		return nil, fmt.Errorf("init local store: %w", err)
	}
	a.logger.Info("writing snapshots locally", zap.String("dir", out.Dir))
	return store, nil
}

func (a *App) raceIndex(ctx context.Context) (racecard.RaceIndex, error) {
	db := a.cfg.DB
	if db.DSN == "" {
		return nil, nil
	}
	index, err := postgres.NewRaceIndex(ctx, postgres.RaceIndexConfig{
		DSN:      db.DSN,
		Table:    db.Table,
		MaxConns: db.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init race index: %w", err)
	}
	a.closers = append(a.closers, closerFunc(index.Close))
	if err := index.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("init race index: %w", err)
	}
	return index, nil
}

func (a *App) publisher(ctx context.Context) (racecard.Publisher, error) {
	ps := a.cfg.PubSub
	if ps.TopicName == "" {
		return nil, nil
	}
	pub, err := pubsubpublisher.Open(ctx, ps.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub: %w", err)
	}
	a.closers = append(a.closers, pub)
	a.logger.Info("publishing completions", zap.String("topic", ps.TopicName))
	return pub, nil
}

// Run crawls day, then pushes metrics whatever the outcome.
func (a *App) Run(ctx context.Context, day discovery.Day) (worker.Completion, error) {
	done, runErr := a.runner.Run(ctx, day)
	if err := metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
		a.logger.Warn("metrics push failed", zap.Error(err))
	}
	return done, runErr
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close releases every dialed service in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
