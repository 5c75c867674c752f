package racecard

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves documents concurrently. One Document is returned per
// input URL in completion order; a per-URL failure is reported on that
// Document only.
type Fetcher interface {
	FetchAll(ctx context.Context, urls []string) []Document
}

// RegionLookup resolves a course id to its upper-cased region code.
type RegionLookup interface {
	Region(courseID string) *string
}

// BlobStore writes the serialized snapshot and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RaceIndex persists one row per race for downstream querying.
type RaceIndex interface {
	StoreRaces(ctx context.Context, runID string, races []RaceRecord) error
	Close()
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
