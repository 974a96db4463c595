package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/sourceswitch/internal/metadata"
	"github.com/tordrt/sourceswitch/internal/rewrite"
)

// MarkdownFormatter formats reports as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// FormatReport writes the report in markdown format
func (f *MarkdownFormatter) FormatReport(r *Report) error {
	f.formatHeader(r)

	f.formatReferences("##", r.Mappings, r.Warnings)

	for _, c := range r.Cards {
		f.FormatCard(c)
	}
	return nil
}

func (f *MarkdownFormatter) formatHeader(r *Report) {
	title := "Report"
	if r.Kind != "" {
		title = strings.ToUpper(r.Kind[:1]) + r.Kind[1:]
	}
	_, _ = fmt.Fprintf(f.writer, "# %s %d: %s\n\n", title, r.SourceID, r.Name)

	_, _ = fmt.Fprintf(f.writer, "- **Database:** %d → %d\n", r.SourceDatabaseID, r.TargetDatabaseID)
	_, _ = fmt.Fprintf(f.writer, "- **New %s:** %s (%s)\n", r.Kind, newIDString(r.NewID), r.NewName)
	if r.BackupID != 0 {
		_, _ = fmt.Fprintf(f.writer, "- **Backup:** %d\n", r.BackupID)
	}
	if r.DryRun {
		_, _ = fmt.Fprintln(f.writer, "- **Dry run:** no changes made")
	}
	_, _ = fmt.Fprintf(f.writer, "- **References:** %d mapped, %d unmapped\n", r.MappingCount(), r.WarningCount())
	_, _ = fmt.Fprintln(f.writer)
}

// FormatCard formats a single card (exported for use by multifile formatter)
func (f *MarkdownFormatter) FormatCard(c CardReport) {
	_, _ = fmt.Fprintf(f.writer, "## Card %d: %s\n\n", c.SourceID, c.Name)
	_, _ = fmt.Fprintf(f.writer, "New card: %s\n\n", newIDString(c.NewID))
	f.formatReferences("###", c.Mappings, c.Warnings)
}

func (f *MarkdownFormatter) formatReferences(heading string, mappings []rewrite.Mapping, warnings []rewrite.Warning) {
	if len(mappings) > 0 {
		_, _ = fmt.Fprintf(f.writer, "%s Mappings\n\n", heading)
		_, _ = fmt.Fprintln(f.writer, "| Kind | Source | Target | Path | Location |")
		_, _ = fmt.Fprintln(f.writer, "|------|--------|--------|------|----------|")
		for _, m := range mappings {
			_, _ = fmt.Fprintf(f.writer, "| %s | %d | %d | `%s` | `%s` |\n", m.Kind, m.SourceID, m.TargetID, m.Path, m.Location)
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintf(f.writer, "%s Warnings\n\n", heading)
		for _, w := range warnings {
			path := "unknown"
			if w.Path != (metadata.LogicalPath{}) {
				path = "`" + w.Path.String() + "`"
			}
			_, _ = fmt.Fprintf(f.writer, "- %s %d (%s) at `%s`: %s\n", w.Kind, w.SourceID, path, w.Location, w.Reason)
		}
		_, _ = fmt.Fprintln(f.writer)
	}
}

// FormatIndex writes the table and field paths of a metadata index
func (f *MarkdownFormatter) FormatIndex(idx *metadata.Index) error {
	id, _ := idx.DatabaseID()
	_, _ = fmt.Fprintf(f.writer, "# Database %d: %s\n\n", id, idx.Name())

	_, _ = fmt.Fprintln(f.writer, "## Tables")
	_, _ = fmt.Fprintln(f.writer)
	for _, table := range idx.TablePaths() {
		tableID, _ := idx.TableID(table)
		_, _ = fmt.Fprintf(f.writer, "- **%s:** %d\n", table, tableID)
	}
	_, _ = fmt.Fprintln(f.writer)

	_, _ = fmt.Fprintln(f.writer, "## Fields")
	_, _ = fmt.Fprintln(f.writer)
	for _, field := range idx.FieldPaths() {
		fieldID, _ := idx.FieldID(field)
		_, _ = fmt.Fprintf(f.writer, "- **%s:** %d\n", field, fieldID)
	}
	_, _ = fmt.Fprintln(f.writer)

	if ambiguous := idx.Ambiguous(); len(ambiguous) > 0 {
		_, _ = fmt.Fprintln(f.writer, "## Ambiguous")
		_, _ = fmt.Fprintln(f.writer)
		for _, p := range ambiguous {
			_, _ = fmt.Fprintf(f.writer, "- %s\n", p)
		}
		_, _ = fmt.Fprintln(f.writer)
	}
	return nil
}
