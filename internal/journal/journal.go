// Package journal keeps a local SQLite record of every switch run: which
// artifacts were created from which, and which references stayed unmapped.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tordrt/sourceswitch/internal/rewrite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	artifact_id INTEGER NOT NULL,
	source_database_id INTEGER NOT NULL,
	target_database_id INTEGER NOT NULL,
	dry_run BOOLEAN NOT NULL,
	started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS artifacts (
	run_id TEXT NOT NULL REFERENCES runs(id),
	kind TEXT NOT NULL,
	source_id INTEGER NOT NULL,
	new_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS warnings (
	run_id TEXT NOT NULL REFERENCES runs(id),
	artifact TEXT NOT NULL,
	kind TEXT NOT NULL,
	source_id INTEGER NOT NULL,
	path TEXT NOT NULL,
	reason TEXT NOT NULL,
	location TEXT NOT NULL
);
`

// Artifact kinds
const (
	KindQuestion  = "question"
	KindDashboard = "dashboard"
	KindCard      = "card"
)

// Run is one invocation of a switch.
type Run struct {
	ID               string    `db:"id"`
	Kind             string    `db:"kind"`
	ArtifactID       int64     `db:"artifact_id"`
	SourceDatabaseID int64     `db:"source_database_id"`
	TargetDatabaseID int64     `db:"target_database_id"`
	DryRun           bool      `db:"dry_run"`
	StartedAt        time.Time `db:"started_at"`
}

// Artifact links an original artifact to the one created from it.
type Artifact struct {
	RunID    string `db:"run_id"`
	Kind     string `db:"kind"`
	SourceID int64  `db:"source_id"`
	NewID    int64  `db:"new_id"`
}

// Warning is a stored rewrite.Warning.
type Warning struct {
	RunID    string `db:"run_id"`
	Artifact string `db:"artifact"`
	Kind     string `db:"kind"`
	SourceID int64  `db:"source_id"`
	Path     string `db:"path"`
	Reason   string `db:"reason"`
	Location string `db:"location"`
}

// Journal is an open journal database.
type Journal struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open opens or creates the journal at path.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal tables: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// StartRun records the start of a run and returns it with a fresh id.
func (j *Journal) StartRun(ctx context.Context, kind string, artifactID, sourceDB, targetDB int64, dryRun bool) (*Run, error) {
	run := &Run{
		ID:               uuid.NewString(),
		Kind:             kind,
		ArtifactID:       artifactID,
		SourceDatabaseID: sourceDB,
		TargetDatabaseID: targetDB,
		DryRun:           dryRun,
		StartedAt:        time.Now().UTC(),
	}

	query := `
		INSERT INTO runs (id, kind, artifact_id, source_database_id, target_database_id, dry_run, started_at)
		VALUES (:id, :kind, :artifact_id, :source_database_id, :target_database_id, :dry_run, :started_at)
	`
	if _, err := j.db.NamedExecContext(ctx, query, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	j.logger.Debug("Journal run started", zap.String("run_id", run.ID), zap.String("kind", kind))
	return run, nil
}

// RecordArtifact stores that newID was created from sourceID.
func (j *Journal) RecordArtifact(ctx context.Context, runID, kind string, sourceID, newID int64) error {
	query := `INSERT INTO artifacts (run_id, kind, source_id, new_id) VALUES (?, ?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, query, runID, kind, sourceID, newID); err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}
	return nil
}

// RecordWarnings stores the unmapped references of one artifact.
func (j *Journal) RecordWarnings(ctx context.Context, runID, artifact string, warnings []rewrite.Warning) error {
	if len(warnings) == 0 {
		return nil
	}

	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO warnings (run_id, artifact, kind, source_id, path, reason, location)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, w := range warnings {
		if _, err := tx.ExecContext(ctx, query, runID, artifact, string(w.Kind), w.SourceID, w.Path.String(), string(w.Reason), w.Location); err != nil {
			return fmt.Errorf("failed to record warning: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit warnings: %w", err)
	}
	return nil
}

// Runs lists recorded runs, newest first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	query := `
		SELECT id, kind, artifact_id, source_database_id, target_database_id, dry_run, started_at
		FROM runs
		ORDER BY started_at DESC
	`
	if err := j.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Artifacts lists the artifacts created by a run.
func (j *Journal) Artifacts(ctx context.Context, runID string) ([]Artifact, error) {
	var artifacts []Artifact
	query := `SELECT run_id, kind, source_id, new_id FROM artifacts WHERE run_id = ? ORDER BY rowid`
	if err := j.db.SelectContext(ctx, &artifacts, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return artifacts, nil
}

// Warnings lists the unmapped references recorded by a run.
func (j *Journal) Warnings(ctx context.Context, runID string) ([]Warning, error) {
	var warnings []Warning
	query := `
		SELECT run_id, artifact, kind, source_id, path, reason, location
		FROM warnings
		WHERE run_id = ?
		ORDER BY rowid
	`
	if err := j.db.SelectContext(ctx, &warnings, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list warnings: %w", err)
	}
	return warnings, nil
}
