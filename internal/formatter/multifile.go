package formatter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// MultiFileFormatter writes a report to multiple files in a directory:
// an overview plus one file per dashboard card
type MultiFileFormatter struct {
	OutputDir    string
	OutputFormat string // "text" or "markdown"
}

// NewMultiFileFormatter creates a new multi-file formatter
func NewMultiFileFormatter(outputDir, format string) *MultiFileFormatter {
	return &MultiFileFormatter{
		OutputDir:    outputDir,
		OutputFormat: format,
	}
}

// FormatReport writes the report to multiple files
func (f *MultiFileFormatter) FormatReport(r *Report) error {
	if err := os.MkdirAll(f.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := f.writeOverview(r); err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}

	for _, c := range r.Cards {
		if err := f.writeCardFile(c); err != nil {
			return fmt.Errorf("failed to write card file for %d: %w", c.SourceID, err)
		}
	}

	return nil
}

// writeOverview writes the report without its cards, followed by an index
// of the card files
func (f *MultiFileFormatter) writeOverview(r *Report) error {
	ext := f.getFileExtension()
	filename := filepath.Join(f.OutputDir, "_overview"+ext)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	overview := *r
	overview.Cards = nil

	sortedCards := make([]CardReport, len(r.Cards))
	copy(sortedCards, r.Cards)
	sort.Slice(sortedCards, func(i, j int) bool {
		return sortedCards[i].SourceID < sortedCards[j].SourceID
	})

	if f.OutputFormat == formatMarkdown {
		md := NewMarkdownFormatter(file)
		md.formatHeader(r)
		md.formatReferences("##", overview.Mappings, overview.Warnings)
		if len(sortedCards) > 0 {
			_, _ = fmt.Fprintf(file, "## Cards\n\n")
			_, _ = fmt.Fprintf(file, "Each card has a corresponding file: `card_<id>%s`\n\n", ext)
			for _, c := range sortedCards {
				_, _ = fmt.Fprintf(file, "- **%d** %s → %s (%d unmapped)\n", c.SourceID, c.Name, newIDString(c.NewID), len(c.Warnings))
			}
		}
		return nil
	}

	if err := NewTextFormatter(file).FormatReport(&overview); err != nil {
		return err
	}
	if len(sortedCards) > 0 {
		_, _ = fmt.Fprintf(file, "\nCARDS (one file each: card_<id>%s)\n", ext)
		for _, c := range sortedCards {
			_, _ = fmt.Fprintf(file, "%d -> %s (%d unmapped)\n", c.SourceID, newIDString(c.NewID), len(c.Warnings))
		}
	}
	return nil
}

// writeCardFile writes a single card to its own file
func (f *MultiFileFormatter) writeCardFile(c CardReport) error {
	filename := filepath.Join(f.OutputDir, fmt.Sprintf("card_%d%s", c.SourceID, f.getFileExtension()))

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if f.OutputFormat == formatMarkdown {
		NewMarkdownFormatter(file).FormatCard(c)
		return nil
	}
	NewTextFormatter(file).FormatCard(c)
	return nil
}

func (f *MultiFileFormatter) getFileExtension() string {
	if f.OutputFormat == formatMarkdown {
		return ".md"
	}
	return ".txt"
}
