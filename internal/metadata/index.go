// Package metadata builds name-based lookups over the table and field ids of
// one database connection.
package metadata

import (
	"slices"
)

// Index maps logical paths to numeric ids and back for a single database.
// It is immutable once built and safe for concurrent readers.
type Index struct {
	databaseID    int64
	hasDatabaseID bool
	name          string

	tableIDByPath map[LogicalPath]int64
	fieldIDByPath map[LogicalPath]int64
	tablePathByID map[int64]LogicalPath
	fieldPathByID map[int64]LogicalPath

	ambiguous []LogicalPath
}

// Build indexes every table and field of db.
//
// A table or field without a name or id fails the whole build with a
// *MalformedMetadataError. Duplicate paths do not fail: the entry seen last
// wins and the path is reported by Ambiguous.
func Build(db *Database) (*Index, error) {
	if db == nil {
		return nil, &MalformedMetadataError{Table: -1, Field: -1, Reason: "no database metadata"}
	}

	idx := &Index{
		name:          db.Name,
		tableIDByPath: make(map[LogicalPath]int64, len(db.Tables)),
		fieldIDByPath: make(map[LogicalPath]int64),
		tablePathByID: make(map[int64]LogicalPath, len(db.Tables)),
		fieldPathByID: make(map[int64]LogicalPath),
	}
	if db.ID != nil {
		idx.databaseID = *db.ID
		idx.hasDatabaseID = true
	}

	seen := make(map[LogicalPath]bool)
	for ti, table := range db.Tables {
		if table.Name == "" {
			return nil, &MalformedMetadataError{Table: ti, Field: -1, Reason: "missing table name"}
		}
		if table.ID == nil {
			return nil, &MalformedMetadataError{Table: ti, Field: -1, Reason: "missing id for table " + table.Name}
		}

		tablePath := LogicalPath{Schema: table.SchemaName(), Table: table.Name}
		if _, dup := idx.tableIDByPath[tablePath]; dup {
			idx.markAmbiguous(seen, tablePath)
		}
		idx.tableIDByPath[tablePath] = *table.ID
		idx.tablePathByID[*table.ID] = tablePath

		for fi, field := range table.Fields {
			if field.Name == "" {
				return nil, &MalformedMetadataError{Table: ti, Field: fi, Reason: "missing field name"}
			}
			if field.ID == nil {
				return nil, &MalformedMetadataError{Table: ti, Field: fi, Reason: "missing id for field " + field.Name}
			}

			fieldPath := LogicalPath{Schema: tablePath.Schema, Table: tablePath.Table, Field: field.Name}
			if _, dup := idx.fieldIDByPath[fieldPath]; dup {
				idx.markAmbiguous(seen, fieldPath)
			}
			idx.fieldIDByPath[fieldPath] = *field.ID
			idx.fieldPathByID[*field.ID] = fieldPath
		}
	}

	return idx, nil
}

func (idx *Index) markAmbiguous(seen map[LogicalPath]bool, p LogicalPath) {
	if seen[p] {
		return
	}
	seen[p] = true
	idx.ambiguous = append(idx.ambiguous, p)
}

// DatabaseID returns the id of the indexed database, if the metadata had one.
func (idx *Index) DatabaseID() (int64, bool) {
	return idx.databaseID, idx.hasDatabaseID
}

// Name returns the database name.
func (idx *Index) Name() string {
	return idx.name
}

// TableID looks up a table by its schema and table name. Field is ignored.
func (idx *Index) TableID(p LogicalPath) (int64, bool) {
	id, ok := idx.tableIDByPath[p.TablePath()]
	return id, ok
}

// FieldID looks up a field by schema, table and field name.
func (idx *Index) FieldID(p LogicalPath) (int64, bool) {
	id, ok := idx.fieldIDByPath[p]
	return id, ok
}

// TablePath resolves a table id to its path.
func (idx *Index) TablePath(id int64) (LogicalPath, bool) {
	p, ok := idx.tablePathByID[id]
	return p, ok
}

// FieldPath resolves a field id to its path.
func (idx *Index) FieldPath(id int64) (LogicalPath, bool) {
	p, ok := idx.fieldPathByID[id]
	return p, ok
}

// Ambiguous returns the paths that occurred more than once, in the order
// their first duplicate was found.
func (idx *Index) Ambiguous() []LogicalPath {
	return slices.Clone(idx.ambiguous)
}

// TablePaths returns every indexed table path, sorted.
func (idx *Index) TablePaths() []LogicalPath {
	return sortedKeys(idx.tableIDByPath)
}

// FieldPaths returns every indexed field path, sorted.
func (idx *Index) FieldPaths() []LogicalPath {
	return sortedKeys(idx.fieldIDByPath)
}

func sortedKeys(m map[LogicalPath]int64) []LogicalPath {
	paths := make([]LogicalPath, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	slices.SortFunc(paths, comparePaths)
	return paths
}
