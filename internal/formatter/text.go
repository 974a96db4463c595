package formatter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tordrt/sourceswitch/internal/metadata"
	"github.com/tordrt/sourceswitch/internal/rewrite"
)

// TextFormatter formats reports as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// FormatReport writes the report in compact text format
func (f *TextFormatter) FormatReport(r *Report) error {
	_, _ = fmt.Fprintf(f.writer, "%s %d %q -> %s %q\n",
		strings.ToUpper(r.Kind), r.SourceID, r.Name, newIDString(r.NewID), r.NewName)
	_, _ = fmt.Fprintf(f.writer, "  DATABASE %d -> %d\n", r.SourceDatabaseID, r.TargetDatabaseID)
	if r.BackupID != 0 {
		_, _ = fmt.Fprintf(f.writer, "  BACKUP %d\n", r.BackupID)
	}
	if r.DryRun {
		_, _ = fmt.Fprintln(f.writer, "  DRY RUN")
	}

	f.formatReferences("  ", r.Mappings, r.Warnings)

	for _, c := range r.Cards {
		_, _ = fmt.Fprintln(f.writer)
		f.FormatCard(c)
	}

	_, _ = fmt.Fprintln(f.writer)
	_, _ = fmt.Fprintf(f.writer, "%d mapped, %d unmapped\n", r.MappingCount(), r.WarningCount())
	return nil
}

// FormatCard writes a single card section (exported for use by multifile formatter)
func (f *TextFormatter) FormatCard(c CardReport) {
	_, _ = fmt.Fprintf(f.writer, "CARD %d %q -> %s\n", c.SourceID, c.Name, newIDString(c.NewID))
	f.formatReferences("  ", c.Mappings, c.Warnings)
}

func (f *TextFormatter) formatReferences(indent string, mappings []rewrite.Mapping, warnings []rewrite.Warning) {
	if len(mappings) > 0 {
		_, _ = fmt.Fprintf(f.writer, "%sMAPPINGS:\n", indent)
		for _, m := range mappings {
			_, _ = fmt.Fprintf(f.writer, "%s  %s %d -> %d %s (%s)\n", indent, m.Kind, m.SourceID, m.TargetID, m.Path, m.Location)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintf(f.writer, "%sWARNINGS:\n", indent)
		for _, w := range warnings {
			_, _ = fmt.Fprintf(f.writer, "%s  %s\n", indent, w)
		}
	}
}

// FormatIndex writes the table and field paths of a metadata index
func (f *TextFormatter) FormatIndex(idx *metadata.Index) error {
	id, _ := idx.DatabaseID()
	_, _ = fmt.Fprintf(f.writer, "DATABASE %d %s\n", id, idx.Name())

	for _, table := range idx.TablePaths() {
		tableID, _ := idx.TableID(table)
		_, _ = fmt.Fprintf(f.writer, "  TABLE %s (%d)\n", table, tableID)
	}
	for _, field := range idx.FieldPaths() {
		fieldID, _ := idx.FieldID(field)
		_, _ = fmt.Fprintf(f.writer, "  FIELD %s (%d)\n", field, fieldID)
	}

	if ambiguous := idx.Ambiguous(); len(ambiguous) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "  AMBIGUOUS:")
		for _, p := range ambiguous {
			_, _ = fmt.Fprintf(f.writer, "    %s\n", p)
		}
	}
	return nil
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
