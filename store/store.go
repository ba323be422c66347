package store

import (
	"context"
	"time"

	"github.com/vulquery/vulquery/dependency"
)

// TimestampFormat is the layout the last sync timestamp is stored with.
const TimestampFormat = "01/02/2006 15:04:05"

// Store persists dependencies and the last sync timestamp.
type Store interface {
	// AddOrUpdate inserts the dependency or replaces the one with the same full name.
	AddOrUpdate(ctx context.Context, dep dependency.Dependency) error
	RemoveAll(ctx context.Context) error
	GetByGroupAndArtifact(ctx context.Context, group, artifact string) ([]dependency.Dependency, error)
	UpdateSyncTimestamp(ctx context.Context, t time.Time) error
	// GetSyncTimestamp returns an empty string until the first successful sync.
	GetSyncTimestamp(ctx context.Context) (string, error)
}
