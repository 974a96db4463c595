package db

import (
	"testing"

	"github.com/tordrt/sourceswitch/internal/schema"
)

func findTable(s *schema.Schema, schemaName, tableName string) *schema.Table {
	for i := range s.Tables {
		if s.Tables[i].Schema == schemaName && s.Tables[i].Name == tableName {
			return &s.Tables[i]
		}
	}
	return nil
}

func verifyColumns(t *testing.T, table *schema.Table, expectedColumns []string) {
	t.Helper()

	columnMap := make(map[string]bool)
	for _, col := range table.Columns {
		columnMap[col.Name] = true
	}

	for _, expected := range expectedColumns {
		if !columnMap[expected] {
			t.Errorf("Expected column %s not found in table %s", expected, table.Name)
		}
	}
}
