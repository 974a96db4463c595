// Package rewrite remaps the table and field ids embedded in a query
// document from one database's metadata to another's.
//
// Recognized references, checked at every node before generic traversal:
//
//   - "source-table": <int>                 table id of a query clause or join
//   - ["field", <int>, opts] / ["field-id", <int>]   field reference tuple
//   - "source-field": <int>                 implicit-join field inside options
//   - "[\"ref\",[\"field\",<int>,null]]"    field reference encoded as an object key
//     or string value (column_settings keys, click_behavior target ids)
//
// Each id is resolved to its LogicalPath in the source index and the path is
// looked up in the target index. A reference that fails either hop keeps its
// original id and produces a Warning. Everything else is copied unchanged.
package rewrite

import (
	"strconv"
	"strings"

	"github.com/tordrt/sourceswitch/internal/document"
	"github.com/tordrt/sourceswitch/internal/metadata"
)

const (
	keySourceTable = "source-table"
	keySourceField = "source-field"
)

// Rewrite rewrites v with locations reported relative to the document root.
func Rewrite(v document.Value, source, target *metadata.Index) *Result {
	return RewriteAt(v, source, target, "")
}

// RewriteAt rewrites v, a sub-document found at the JSON pointer base.
// v is never modified; the result shares only scalar values with it.
func RewriteAt(v document.Value, source, target *metadata.Index, base string) *Result {
	w := &walker{source: source, target: target}
	out := w.walk(v, base)
	return &Result{Value: out, Warnings: w.warnings, Mappings: w.mappings}
}

// RewriteTableID remaps a single table id value found at loc, such as the
// table_id of a card. Values that are not integers are returned unchanged.
func RewriteTableID(v document.Value, source, target *metadata.Index, loc string) *Result {
	w := &walker{source: source, target: target}
	out := v
	if id, ok := document.AsInt64(v); ok {
		out = w.table(v, id, loc)
	}
	return &Result{Value: out, Warnings: w.warnings, Mappings: w.mappings}
}

type walker struct {
	source   *metadata.Index
	target   *metadata.Index
	warnings []Warning
	mappings []Mapping
}

func (w *walker) walk(v document.Value, loc string) document.Value {
	switch t := v.(type) {
	case document.Object:
		return w.object(t, loc)
	case document.Array:
		return w.array(t, loc)
	case document.String:
		if ref := w.encodedRef(string(t), loc); ref != string(t) {
			return document.String(ref)
		}
		return v
	default:
		return v
	}
}

func (w *walker) object(o document.Object, loc string) document.Value {
	out := make(document.Object, len(o))
	for i, m := range o {
		childLoc := loc + "/" + escapePointer(m.Key)

		if id, ok := document.AsInt64(m.Value); ok {
			switch m.Key {
			case keySourceTable:
				out[i] = document.Member{Key: m.Key, Value: w.table(m.Value, id, childLoc)}
				continue
			case keySourceField:
				out[i] = document.Member{Key: m.Key, Value: w.field(m.Value, id, childLoc)}
				continue
			}
		}

		out[i] = document.Member{
			Key:   w.encodedRef(m.Key, childLoc),
			Value: w.walk(m.Value, childLoc),
		}
	}
	return out
}

func (w *walker) array(a document.Array, loc string) document.Value {
	out := make(document.Array, len(a))
	if id, ok := fieldRefID(a); ok {
		out[0] = a[0]
		out[1] = w.field(a[1], id, loc+"/1")
		for i := 2; i < len(a); i++ {
			out[i] = w.walk(a[i], loc+"/"+strconv.Itoa(i))
		}
		return out
	}

	for i, elem := range a {
		out[i] = w.walk(elem, loc+"/"+strconv.Itoa(i))
	}
	return out
}

// fieldRefID matches ["field", <int>, ...] and the legacy ["field-id", <int>].
func fieldRefID(a document.Array) (int64, bool) {
	if len(a) < 2 {
		return 0, false
	}
	tag, ok := a[0].(document.String)
	if !ok || (tag != "field" && tag != "field-id") {
		return 0, false
	}
	return document.AsInt64(a[1])
}

// encodedRef rewrites a key or string that is itself a JSON-encoded
// reference, as used by visualization_settings.column_settings and
// click_behavior targets. Other strings are returned as is.
func (w *walker) encodedRef(s, loc string) string {
	if !strings.HasPrefix(s, `["`) {
		return s
	}
	parsed, err := document.Parse([]byte(s))
	if err != nil {
		return s
	}
	ref, ok := parsed.(document.Array)
	if !ok || len(ref) == 0 {
		return s
	}
	if tag, ok := ref[0].(document.String); !ok || (tag != "ref" && tag != "field" && tag != "dimension") {
		return s
	}

	rewritten := w.walk(ref, loc)
	if document.Equal(rewritten, ref) {
		return s
	}
	encoded, err := document.Marshal(rewritten)
	if err != nil {
		return s
	}
	return string(encoded)
}

func (w *walker) table(orig document.Value, id int64, loc string) document.Value {
	path, ok := w.source.TablePath(id)
	if !ok {
		w.warn(KindTable, id, metadata.LogicalPath{}, ReasonNotInSource, loc)
		return orig
	}
	targetID, ok := w.target.TableID(path)
	if !ok {
		w.warn(KindTable, id, path, ReasonNotInTarget, loc)
		return orig
	}
	return w.mapped(KindTable, orig, id, targetID, path, loc)
}

func (w *walker) field(orig document.Value, id int64, loc string) document.Value {
	path, ok := w.source.FieldPath(id)
	if !ok {
		w.warn(KindField, id, metadata.LogicalPath{}, ReasonNotInSource, loc)
		return orig
	}
	targetID, ok := w.target.FieldID(path)
	if !ok {
		w.warn(KindField, id, path, ReasonNotInTarget, loc)
		return orig
	}
	return w.mapped(KindField, orig, id, targetID, path, loc)
}

func (w *walker) mapped(kind Kind, orig document.Value, id, targetID int64, path metadata.LogicalPath, loc string) document.Value {
	w.mappings = append(w.mappings, Mapping{
		Kind:     kind,
		SourceID: id,
		TargetID: targetID,
		Path:     path,
		Location: loc,
	})
	if targetID == id {
		return orig
	}
	return document.Int(targetID)
}

func (w *walker) warn(kind Kind, id int64, path metadata.LogicalPath, reason Reason, loc string) {
	w.warnings = append(w.warnings, Warning{
		Kind:     kind,
		SourceID: id,
		Path:     path,
		Reason:   reason,
		Location: loc,
	})
}

// escapePointer escapes a key for use as a JSON pointer reference token.
func escapePointer(key string) string {
	if !strings.ContainsAny(key, "~/") {
		return key
	}
	key = strings.ReplaceAll(key, "~", "~0")
	return strings.ReplaceAll(key, "/", "~1")
}
