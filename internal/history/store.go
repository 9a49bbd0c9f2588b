// Package history persists pipeline run records for status queries.
package history

import (
	"context"
	"time"
)

// Run is one recorded pipeline run.
type Run struct {
	ID             string // uuid
	StartedAt      time.Time
	FinishedAt     time.Time
	Outcome        string // success|warning|failed|canceled
	SourceHead     string
	SiteHead       string
	ArtifactDigest string
	ArtifactSize   int64
	DeploymentID   string
	DeploymentURL  string
	Error          string
}

// Store defines the interface for persisting and retrieving run records.
type Store interface {
	// Record inserts a completed run.
	Record(ctx context.Context, run Run) error

	// Get retrieves a run by id.
	Get(ctx context.Context, id string) (*Run, error)

	// Latest retrieves the most recent runs, newest first.
	Latest(ctx context.Context, limit int) ([]Run, error)

	// Range retrieves runs started within a time range, oldest first.
	Range(ctx context.Context, start, end time.Time) ([]Run, error)

	// Close closes the store and releases resources.
	Close() error
}
