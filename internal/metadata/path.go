package metadata

import "strings"

// LogicalPath identifies a table (Field empty) or a field by name rather
// than by numeric id. Names compare exactly; a table without a schema has
// Schema "".
type LogicalPath struct {
	Schema string
	Table  string
	Field  string
}

// TablePath returns the table-level path of p.
func (p LogicalPath) TablePath() LogicalPath {
	return LogicalPath{Schema: p.Schema, Table: p.Table}
}

// IsField reports whether p names a field.
func (p LogicalPath) IsField() bool {
	return p.Field != ""
}

// String renders the path as dotted names, e.g. public.orders.total
func (p LogicalPath) String() string {
	parts := make([]string, 0, 3)
	if p.Schema != "" {
		parts = append(parts, p.Schema)
	}
	parts = append(parts, p.Table)
	if p.Field != "" {
		parts = append(parts, p.Field)
	}
	return strings.Join(parts, ".")
}

func comparePaths(a, b LogicalPath) int {
	if c := strings.Compare(a.Schema, b.Schema); c != 0 {
		return c
	}
	if c := strings.Compare(a.Table, b.Table); c != 0 {
		return c
	}
	return strings.Compare(a.Field, b.Field)
}
