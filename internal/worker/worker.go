// Package worker executes one crawl run: discover races, build the snapshot,
// persist it and announce it.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/racecards-crawler/internal/discovery"
	"github.com/JakeFAU/racecards-crawler/internal/logging"
	"github.com/JakeFAU/racecards-crawler/internal/metrics"
	"github.com/JakeFAU/racecards-crawler/internal/racecard"
	"github.com/JakeFAU/racecards-crawler/internal/snapshot"
)

// RaceSource lists the race pages of a day.
type RaceSource interface {
	RaceURLs(ctx context.Context, day discovery.Day) ([]string, error)
}

// SnapshotBuilder assembles a snapshot from race pages.
type SnapshotBuilder interface {
	Build(ctx context.Context, date string, raceURLs []string) (snapshot.Result, error)
}

// Config controls Worker behavior.
type Config struct {
	ContentType string
	Topic       string
}

// Completion is the payload announced once a snapshot is stored.
type Completion struct {
	RunID      string    `json:"run_id"`
	Date       string    `json:"date"`
	BlobURI    string    `json:"blob_uri"`
	Hash       string    `json:"hash"`
	Races      int       `json:"races"`
	Failed     []string  `json:"failed"`
	Collisions int       `json:"collisions"`
	FinishedAt time.Time `json:"finished_at"`
}

// Worker runs the crawl pipeline. index and publisher are optional.
type Worker struct {
	races     RaceSource
	builder   SnapshotBuilder
	blobStore racecard.BlobStore
	index     racecard.RaceIndex
	publisher racecard.Publisher
	hasher    racecard.Hasher
	clock     racecard.Clock
	ids       racecard.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	races RaceSource,
	builder SnapshotBuilder,
	blobStore racecard.BlobStore,
	index racecard.RaceIndex,
	publisher racecard.Publisher,
	hasher racecard.Hasher,
	clock racecard.Clock,
	ids racecard.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		races:     races,
		builder:   builder,
		blobStore: blobStore,
		index:     index,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run crawls day and returns what was stored.
func (w *Worker) Run(ctx context.Context, day discovery.Day) (done Completion, err error) {
	runID, err := w.ids.NewID()
	if err != nil {
		return Completion{}, fmt.Errorf("run id: %w", err)
	}
	date := day.Date(w.clock.Now())

	ctx, span := otel.Tracer("racecards/worker").Start(ctx, "racecards.run")
	span.SetAttributes(attribute.String("run_id", runID), attribute.String("date", date))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := logging.ForRun(w.logger, runID, date)
	logger.Info("run started", zap.String("day", day.String()))

	urls, err := w.races.RaceURLs(ctx, day)
	if err != nil {
		return Completion{}, fmt.Errorf("discover races: %w", err)
	}

	result, err := w.builder.Build(ctx, date, urls)
	if err != nil {
		return Completion{}, err
	}

	done, err = w.persist(ctx, runID, date, result)
	if err != nil {
		return Completion{}, err
	}
	if err := w.publish(ctx, logger, done); err != nil {
		return Completion{}, err
	}

	metrics.MarkSuccess(done.FinishedAt)
	logger.Info("run finished",
		zap.String("blob_uri", done.BlobURI),
		zap.String("hash", done.Hash),
		zap.Int("races", done.Races),
		zap.Int("failed", len(done.Failed)),
	)
	return done, nil
}

func (w *Worker) persist(ctx context.Context, runID, date string, result snapshot.Result) (Completion, error) {
	data, err := json.Marshal(result.Snapshot)
	if err != nil {
		return Completion{}, fmt.Errorf("encode snapshot: %w", err)
	}
	hash, err := w.hasher.Hash(data)
	if err != nil {
		return Completion{}, fmt.Errorf("hash snapshot: %w", err)
	}
	uri, err := w.blobStore.PutObject(ctx, date+".json", w.cfg.ContentType, bytes.NewReader(data))
	if err != nil {
		return Completion{}, fmt.Errorf("put snapshot: %w", err)
	}
	if w.index != nil {
		if err := w.index.StoreRaces(ctx, runID, result.Races); err != nil {
			return Completion{}, fmt.Errorf("index races: %w", err)
		}
	}

	failed := result.Failed
	if failed == nil {
		failed = []string{}
	}
	return Completion{
		RunID:      runID,
		Date:       date,
		BlobURI:    uri,
		Hash:       hash,
		Races:      result.Snapshot.Races(),
		Failed:     failed,
		Collisions: result.Collisions,
		FinishedAt: w.clock.Now(),
	}, nil
}

func (w *Worker) publish(ctx context.Context, logger *zap.Logger, done Completion) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, done)
	if err != nil {
		return fmt.Errorf("publish completion: %w", err)
	}
	logger.Info("completion published", zap.String("topic", w.cfg.Topic), zap.String("message_id", id))
	return nil
}
