package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tordrt/sourceswitch/internal/document"
	"github.com/tordrt/sourceswitch/internal/metadata"
)

const sourceMetadata = `{"id": 1, "name": "staging", "tables": [
	{"id": 3, "name": "orders", "schema": "public", "fields": [
		{"id": 10, "name": "total"},
		{"id": 11, "name": "user_id"},
		{"id": 12, "name": "legacy_flag"}
	]},
	{"id": 4, "name": "users", "schema": "public", "fields": [
		{"id": 20, "name": "id"},
		{"id": 21, "name": "email"}
	]}
]}`

const targetMetadata = `{"id": 2, "name": "production", "tables": [
	{"id": 53, "name": "orders", "schema": "public", "fields": [
		{"id": 77, "name": "total"},
		{"id": 78, "name": "user_id"}
	]},
	{"id": 54, "name": "users", "schema": "public", "fields": [
		{"id": 90, "name": "id"},
		{"id": 91, "name": "email"}
	]}
]}`

func buildIndex(t *testing.T, s string) *metadata.Index {
	t.Helper()
	db, err := metadata.Decode(strings.NewReader(s))
	require.NoError(t, err)
	idx, err := metadata.Build(db)
	require.NoError(t, err)
	return idx
}

func indexes(t *testing.T) (*metadata.Index, *metadata.Index) {
	return buildIndex(t, sourceMetadata), buildIndex(t, targetMetadata)
}

func marshal(t *testing.T, v document.Value) string {
	t.Helper()
	out, err := document.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func mustGet(t *testing.T, v document.Value, keys ...string) document.Value {
	t.Helper()
	for _, k := range keys {
		obj, ok := v.(document.Object)
		require.True(t, ok, "expected object before %q", k)
		v, ok = obj.Get(k)
		require.True(t, ok, "missing %q", k)
	}
	return v
}
