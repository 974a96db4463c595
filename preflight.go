package sourceswitch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tordrt/sourceswitch/internal/db"
	"github.com/tordrt/sourceswitch/internal/journal"
	"github.com/tordrt/sourceswitch/internal/metadata"
	"github.com/tordrt/sourceswitch/internal/rewrite"
	"github.com/tordrt/sourceswitch/internal/schema"
)

func extractCatalog(ctx context.Context, opts *Options, logger *zap.Logger) (*schema.Schema, error) {
	catalog, err := db.ExtractCatalog(ctx, opts.VerifyDatabaseURL, opts.VerifySchemas)
	if err != nil {
		return nil, fmt.Errorf("failed to read target database catalog: %w", err)
	}
	logger.Debug("Read target database catalog", zap.Int("tables", len(catalog.Tables)))
	return catalog, nil
}

// physicalWarnings reports each mapping whose target path is missing from
// the live catalog, once per location.
func physicalWarnings(catalog *schema.Schema, mappings []rewrite.Mapping) []rewrite.Warning {
	if len(mappings) == 0 {
		return nil
	}

	paths := make([]metadata.LogicalPath, 0, len(mappings))
	for _, m := range mappings {
		paths = append(paths, m.Path)
	}
	missing := make(map[metadata.LogicalPath]bool)
	for _, p := range catalog.Missing(paths) {
		missing[p] = true
	}

	var warnings []rewrite.Warning
	for _, m := range mappings {
		if !missing[m.Path] {
			continue
		}
		warnings = append(warnings, rewrite.Warning{
			Kind:     m.Kind,
			SourceID: m.SourceID,
			Path:     m.Path,
			Reason:   rewrite.ReasonNotInDatabase,
			Location: m.Location,
		})
	}
	return warnings
}

func logWarnings(logger *zap.Logger, warnings []rewrite.Warning) {
	for _, w := range warnings {
		logger.Warn("Unmapped reference",
			zap.String("kind", string(w.Kind)),
			zap.Int64("source_id", w.SourceID),
			zap.String("path", w.Path.String()),
			zap.String("location", w.Location),
			zap.String("reason", string(w.Reason)))
	}
}

// recorder writes to the journal when one is configured. Recording failures
// are logged and do not fail the switch, since the artifacts already exist.
type recorder struct {
	j      *journal.Journal
	runID  string
	logger *zap.Logger
}

func openRecorder(ctx context.Context, opts *Options, kind string, artifactID int64) (*recorder, error) {
	rec := &recorder{logger: opts.logger()}
	if opts.JournalPath == "" {
		return rec, nil
	}

	j, err := journal.Open(ctx, opts.JournalPath, rec.logger)
	if err != nil {
		return nil, err
	}
	run, err := j.StartRun(ctx, kind, artifactID, opts.SourceDatabaseID, opts.TargetDatabaseID, opts.DryRun)
	if err != nil {
		_ = j.Close()
		return nil, err
	}

	rec.j = j
	rec.runID = run.ID
	rec.logger = rec.logger.With(zap.String("run_id", run.ID))
	return rec, nil
}

func (r *recorder) artifact(ctx context.Context, kind string, sourceID, newID int64) {
	if r.j == nil {
		return
	}
	if err := r.j.RecordArtifact(ctx, r.runID, kind, sourceID, newID); err != nil {
		r.logger.Error("Failed to journal artifact", zap.Int64("source_id", sourceID), zap.Int64("new_id", newID), zap.Error(err))
	}
}

func (r *recorder) warnings(ctx context.Context, artifact string, warnings []rewrite.Warning) {
	if r.j == nil {
		return
	}
	if err := r.j.RecordWarnings(ctx, r.runID, artifact, warnings); err != nil {
		r.logger.Error("Failed to journal warnings", zap.String("artifact", artifact), zap.Error(err))
	}
}

func (r *recorder) close() {
	if r.j == nil {
		return
	}
	_ = r.j.Close()
}
