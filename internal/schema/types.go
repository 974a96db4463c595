package schema

import "github.com/tordrt/sourceswitch/internal/metadata"

// Schema is the physical catalog of a database: the tables and columns the
// database itself reports, independent of any Metabase sync
type Schema struct {
	Tables []Table
}

// Table represents a database table or view
type Table struct {
	Schema  string // empty for engines without schemas (SQLite, MySQL)
	Name    string
	Columns []Column
}

// Column represents a table column
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Missing returns the paths that have no matching table or column in s,
// in the order given
func (s *Schema) Missing(paths []metadata.LogicalPath) []metadata.LogicalPath {
	present := make(map[metadata.LogicalPath]bool)
	for _, table := range s.Tables {
		tablePath := metadata.LogicalPath{Schema: table.Schema, Table: table.Name}
		present[tablePath] = true
		for _, col := range table.Columns {
			present[metadata.LogicalPath{Schema: table.Schema, Table: table.Name, Field: col.Name}] = true
		}
	}

	var missing []metadata.LogicalPath
	for _, p := range paths {
		if !present[p] {
			missing = append(missing, p)
		}
	}
	return missing
}
