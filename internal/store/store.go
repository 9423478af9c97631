package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Projects
	SaveProject(ctx context.Context, rec *ProjectRecord) error
	GetProject(ctx context.Context, id string) (*ProjectRecord, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]*ProjectRecord, error)
	DeleteProject(ctx context.Context, id string) error

	// Generated source history
	RecordGeneration(ctx context.Context, gen *Generation) error
	ListGenerations(ctx context.Context, projectID string, limit int) ([]*Generation, error)
	PruneGenerations(ctx context.Context, before time.Time) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
