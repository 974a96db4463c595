package metadata

import (
	"encoding/json"
	"fmt"
	"io"
)

// Database is the metadata graph of one database connection, in the shape
// returned by GET /api/database/:id/metadata
type Database struct {
	ID     *int64  `json:"id"`
	Name   string  `json:"name"`
	Engine string  `json:"engine"`
	Tables []Table `json:"tables"`
}

// Table represents a synced table
type Table struct {
	ID          *int64  `json:"id"`
	Name        string  `json:"name"`
	Schema      *string `json:"schema"`
	DisplayName string  `json:"display_name,omitempty"`
	Fields      []Field `json:"fields"`
}

// Field represents a synced column
type Field struct {
	ID          *int64 `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	BaseType    string `json:"base_type,omitempty"`
	ParentID    *int64 `json:"parent_id,omitempty"`
}

// SchemaName returns the table schema, or "" when the engine has none
func (t Table) SchemaName() string {
	if t.Schema == nil {
		return ""
	}
	return *t.Schema
}

// Decode reads a metadata graph encoded as JSON
func Decode(r io.Reader) (*Database, error) {
	var db Database
	if err := json.NewDecoder(r).Decode(&db); err != nil {
		return nil, fmt.Errorf("failed to decode database metadata: %w", err)
	}
	return &db, nil
}
