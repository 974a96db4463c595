package rewrite

import (
	"fmt"

	"github.com/tordrt/sourceswitch/internal/document"
	"github.com/tordrt/sourceswitch/internal/metadata"
)

// Kind names what sort of database object a reference points at.
type Kind string

const (
	KindTable Kind = "table"
	KindField Kind = "field"
)

// Reason explains why a reference could not be remapped.
type Reason string

const (
	ReasonNotInSource   Reason = "id not found in source metadata"
	ReasonNotInTarget   Reason = "path not found in target metadata"
	ReasonNotInDatabase Reason = "path not found in target database"
)

// Warning records a reference that kept its original id.
type Warning struct {
	Kind     Kind
	SourceID int64
	// Path is the zero value when the source metadata does not know SourceID.
	Path     metadata.LogicalPath
	Reason   Reason
	Location string
}

func (w Warning) String() string {
	if w.Path == (metadata.LogicalPath{}) {
		return fmt.Sprintf("%s %d at %s: %s", w.Kind, w.SourceID, w.Location, w.Reason)
	}
	return fmt.Sprintf("%s %d (%s) at %s: %s", w.Kind, w.SourceID, w.Path, w.Location, w.Reason)
}

// Mapping records a reference that was resolved in the target metadata.
type Mapping struct {
	Kind     Kind
	SourceID int64
	TargetID int64
	Path     metadata.LogicalPath
	Location string
}

// Result is a rewritten document with everything learned while rewriting it.
type Result struct {
	Value    document.Value
	Warnings []Warning
	Mappings []Mapping
}

// Merge appends the warnings and mappings of other to r.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Mappings = append(r.Mappings, other.Mappings...)
}

// TargetPaths returns the distinct target paths of all mappings, in the order
// they were first resolved.
func (r *Result) TargetPaths() []metadata.LogicalPath {
	seen := make(map[metadata.LogicalPath]bool, len(r.Mappings))
	var paths []metadata.LogicalPath
	for _, m := range r.Mappings {
		if seen[m.Path] {
			continue
		}
		seen[m.Path] = true
		paths = append(paths, m.Path)
	}
	return paths
}
