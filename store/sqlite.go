package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/xerrors"

	"github.com/vulquery/vulquery/dependency"
)

const schema = `
	CREATE TABLE IF NOT EXISTS dependency (
		full_name TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		artifact_id TEXT NOT NULL,
		version TEXT NOT NULL,
		average_score REAL NOT NULL,
		occurrence_count INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_group_artifact ON dependency (group_id, artifact_id);
	CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_sync TEXT NOT NULL
	);
	`

type row struct {
	FullName string `db:"full_name"`
	dependency.Dependency
}

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db *sqlx.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, xerrors.Errorf("unable to create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s: %w", path, err)
	}
	// one writer at a time, concurrent sync workers queue on the pool
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// NewSQLiteWithDB wraps an already opened database whose schema is in place.
func NewSQLiteWithDB(db *sqlx.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) AddOrUpdate(ctx context.Context, dep dependency.Dependency) error {
	if err := dep.Validate(); err != nil {
		return err
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO dependency (full_name, group_id, artifact_id, version, average_score, occurrence_count)
		VALUES (:full_name, :group_id, :artifact_id, :version, :average_score, :occurrence_count)
		ON CONFLICT (full_name) DO UPDATE SET
			average_score = excluded.average_score,
			occurrence_count = excluded.occurrence_count`,
		row{FullName: dep.FullName(), Dependency: dep})
	if err != nil {
		return xerrors.Errorf("failed to save %s: %w", dep.FullName(), err)
	}
	return nil
}

func (s *SQLite) RemoveAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dependency`); err != nil {
		return xerrors.Errorf("failed to remove dependencies: %w", err)
	}
	return nil
}

func (s *SQLite) GetByGroupAndArtifact(ctx context.Context, group, artifact string) ([]dependency.Dependency, error) {
	var deps []dependency.Dependency
	err := s.db.SelectContext(ctx, &deps, `
		SELECT group_id, artifact_id, version, average_score, occurrence_count
		FROM dependency
		WHERE group_id = ? AND artifact_id = ?
		ORDER BY version`, group, artifact)
	if err != nil {
		return nil, xerrors.Errorf("failed to get %s:%s: %w", group, artifact, err)
	}
	return deps, nil
}

func (s *SQLite) UpdateSyncTimestamp(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_sync) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET last_sync = excluded.last_sync`,
		t.UTC().Format(TimestampFormat))
	if err != nil {
		return xerrors.Errorf("failed to update sync timestamp: %w", err)
	}
	return nil
}

func (s *SQLite) GetSyncTimestamp(ctx context.Context) (string, error) {
	var ts string
	err := s.db.GetContext(ctx, &ts, `SELECT last_sync FROM sync_state WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	} else if err != nil {
		return "", xerrors.Errorf("failed to get sync timestamp: %w", err)
	}
	return ts, nil
}
