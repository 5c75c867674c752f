// Package postgres provides the Postgres-backed race index.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/racecards-crawler/internal/racecard"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "racecard_races"

// RaceIndexConfig controls the Postgres connection pool used for race rows.
type RaceIndexConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RaceIndex upserts one row per race, keyed by race_id.
type RaceIndex struct {
	pool  pool
	table string
}

// NewRaceIndex connects to Postgres using the provided config.
func NewRaceIndex(ctx context.Context, cfg RaceIndexConfig) (*RaceIndex, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RaceIndex{pool: p, table: table}, nil
}

// NewRaceIndexWithPool constructs an index from an existing pool (primarily for testing).
func NewRaceIndexWithPool(p pool, table string) (*RaceIndex, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RaceIndex{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RaceIndex) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the race table when it does not exist.
func (s *RaceIndex) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	race_id    BIGINT PRIMARY KEY,
	race_date  DATE NOT NULL,
	region     TEXT,
	course     TEXT,
	off_time   TEXT,
	run_id     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create race table: %w", err)
	}
	return nil
}

// StoreRaces upserts every race in one transaction.
func (s *RaceIndex) StoreRaces(ctx context.Context, runID string, races []racecard.RaceRecord) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("race index is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(races) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (race_id, race_date, region, course, off_time, run_id, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (race_id) DO UPDATE SET
	race_date = EXCLUDED.race_date,
	region = EXCLUDED.region,
	course = EXCLUDED.course,
	off_time = EXCLUDED.off_time,
	run_id = EXCLUDED.run_id,
	payload = EXCLUDED.payload,
	updated_at = now()`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin race upsert: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	for _, race := range races {
		payload, mErr := json.Marshal(race)
		if mErr != nil {
			return fmt.Errorf("marshal race %d: %w", race.RaceID, mErr)
		}
		if _, execErr := tx.Exec(ctx, query,
			race.RaceID,
			race.Date,
			nullable(race.Region),
			nullable(race.Course),
			nullable(race.OffTime),
			runID,
			payload,
		); execErr != nil {
			return fmt.Errorf("upsert race %d: %w", race.RaceID, execErr)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit race upsert: %w", err)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
