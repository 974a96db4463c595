// Package formatter renders switch reports and metadata indexes as compact
// text or markdown, to one writer or to a directory of files.
package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/sourceswitch/internal/metadata"
	"github.com/tordrt/sourceswitch/internal/rewrite"
)

const (
	formatMarkdown = "markdown"
	formatText     = "text"
)

// Report kinds
const (
	KindQuestion  = "question"
	KindDashboard = "dashboard"
)

// Report describes one switched question or dashboard
type Report struct {
	Kind             string
	SourceID         int64
	Name             string
	NewName          string
	NewID            int64 // zero on dry run
	BackupID         int64 // zero when no backup was made
	SourceDatabaseID int64
	TargetDatabaseID int64
	DryRun           bool

	// For a question, the references of the card itself. For a dashboard,
	// the references of its parameters; card references are on Cards.
	Mappings []rewrite.Mapping
	Warnings []rewrite.Warning

	Cards []CardReport
}

// CardReport describes one card switched as part of a dashboard
type CardReport struct {
	SourceID int64
	Name     string
	NewID    int64
	Mappings []rewrite.Mapping
	Warnings []rewrite.Warning
}

// WarningCount returns the number of warnings across the report and its cards
func (r *Report) WarningCount() int {
	n := len(r.Warnings)
	for _, c := range r.Cards {
		n += len(c.Warnings)
	}
	return n
}

// MappingCount returns the number of mappings across the report and its cards
func (r *Report) MappingCount() int {
	n := len(r.Mappings)
	for _, c := range r.Cards {
		n += len(c.Mappings)
	}
	return n
}

// Formatter renders reports and indexes
type Formatter interface {
	FormatReport(r *Report) error
	FormatIndex(idx *metadata.Index) error
}

// New returns the single-writer formatter for format ("text" or "markdown")
func New(w io.Writer, format string) (Formatter, error) {
	switch format {
	case formatText, "":
		return NewTextFormatter(w), nil
	case formatMarkdown:
		return NewMarkdownFormatter(w), nil
	default:
		return nil, fmt.Errorf("invalid format: %s (must be 'text' or 'markdown')", format)
	}
}

func newIDString(id int64) string {
	if id == 0 {
		return "(not created)"
	}
	return formatInt(id)
}
