// Package store persists job snapshots for durability across restarts. The
// job store is the only caller; the orchestrator never touches snapshots
// directly.
package store

import (
	"context"

	"github.com/google/uuid"

	"cardflow/internal/job"
)

// SnapshotStore is the durability boundary of the job store. Implementations
// must make Save atomic per job (last write wins, no partial rows).
type SnapshotStore interface {
	Save(ctx context.Context, j job.Job) error
	Load(ctx context.Context, id uuid.UUID) (job.Job, error)
	LoadAll(ctx context.Context) ([]job.Job, error)
	Close() error
}
