// Package snapshot builds the nested region/course/off-time view of a
// racing day from its race pages.
package snapshot

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/racecards-crawler/internal/dispatcher"
	"github.com/JakeFAU/racecards-crawler/internal/extract"
	"github.com/JakeFAU/racecards-crawler/internal/metrics"
	"github.com/JakeFAU/racecards-crawler/internal/racecard"
)

// DefaultRaceWorkers bounds how many races are assembled at once.
const DefaultRaceWorkers = 4

// GoingSource supplies the going index for a date.
type GoingSource interface {
	GoingInfo(ctx context.Context, date string) (racecard.GoingIndex, error)
}

// Assembler turns one race document into a RaceRecord.
type Assembler interface {
	Assemble(ctx context.Context, doc racecard.Document, going racecard.GoingIndex) (racecard.RaceRecord, error)
}

// Result is the outcome of one Build.
type Result struct {
	Snapshot   racecard.Snapshot
	Races      []racecard.RaceRecord // every assembled race, ordered by race_id
	Failed     []string              // race URLs skipped, sorted
	Collisions int
}

// Builder orchestrates one snapshot.
type Builder struct {
	going     GoingSource
	races     racecard.Fetcher
	assembler Assembler
	workers   int
	logger    *zap.Logger
}

// NewBuilder wires a Builder. races fetches race pages; workers bounds the
// number of races assembled concurrently.
func NewBuilder(going GoingSource, races racecard.Fetcher, assembler Assembler, workers int, logger *zap.Logger) *Builder {
	if workers <= 0 {
		workers = DefaultRaceWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		going:     going,
		races:     races,
		assembler: assembler,
		workers:   workers,
		logger:    logger.Named("snapshot"),
	}
}

type outcome struct {
	url    string
	record racecard.RaceRecord
	err    error
}

// Build assembles every race in raceURLs for date. A race that cannot be
// fetched or assembled is logged, listed in Result.Failed and left out.
// Only a going feed failure or cancellation aborts the build.
func (b *Builder) Build(ctx context.Context, date string, raceURLs []string) (Result, error) {
	going, err := b.going.GoingInfo(ctx, date)
	if err != nil {
		return Result{}, fmt.Errorf("build snapshot %s: %w", date, err)
	}

	docs := b.races.FetchAll(ctx, raceURLs)

	pool := dispatcher.New(b.workers, func(ctx context.Context, doc racecard.Document) outcome {
		rec, err := b.assembler.Assemble(ctx, doc, going)
		return outcome{url: doc.URL, record: rec, err: err}
	})

	res := Result{Snapshot: make(racecard.Snapshot)}
	pool.Run(ctx, docs, func(o outcome) {
		if o.err != nil {
			metrics.ObserveRace("failed")
			b.logger.Warn("race skipped", zap.String("url", o.url), zap.Error(o.err))
			res.Failed = append(res.Failed, o.url)
			return
		}
		metrics.ObserveRace("assembled")
		res.Races = append(res.Races, o.record)
		if b.fold(res.Snapshot, o.record) {
			res.Collisions++
		}
	})
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("build snapshot %s: %w", date, err)
	}

	sort.Strings(res.Failed)
	sort.Slice(res.Races, func(i, j int) bool { return res.Races[i].RaceID < res.Races[j].RaceID })
	b.logger.Info("snapshot built",
		zap.String("date", date),
		zap.Int("races", len(res.Races)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("collisions", res.Collisions),
	)
	return res, nil
}

// fold stores rec in snap and reports whether it replaced another race.
func (b *Builder) fold(snap racecard.Snapshot, rec racecard.RaceRecord) bool {
	region := racecard.UnknownRegion
	if rec.Region != nil {
		region = *rec.Region
	}
	course := extract.Value(rec.Course)
	offTime := extract.Value(rec.OffTime)

	courses, ok := snap[region]
	if !ok {
		courses = make(map[string]map[string]racecard.RaceRecord)
		snap[region] = courses
	}
	offTimes, ok := courses[course]
	if !ok {
		offTimes = make(map[string]racecard.RaceRecord)
		courses[course] = offTimes
	}
	prev, collided := offTimes[offTime]
	if collided {
		metrics.ObserveCollision()
		b.logger.Warn("race replaced at same slot",
			zap.String("region", region),
			zap.String("course", course),
			zap.String("off_time", offTime),
			zap.Int("replaced_race_id", prev.RaceID),
			zap.Int("race_id", rec.RaceID),
		)
	}
	offTimes[offTime] = rec
	return collided
}
