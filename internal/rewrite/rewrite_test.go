package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
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
	]},
	{"id": 6, "name": "audit", "schema": "public", "fields": [
		{"id": 40, "name": "at"}
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

func assertJSON(t *testing.T, want string, got document.Value) {
	t.Helper()
	out, err := document.Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, want, string(out))
}

func TestRewriteFieldReference(t *testing.T) {
	source, target := indexes(t)

	res := Rewrite(document.MustParse(`["field",10,null]`), source, target)

	assertJSON(t, `["field",77,null]`, res.Value)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Mappings, 1)
	assert.Equal(t, Mapping{
		Kind:     KindField,
		SourceID: 10,
		TargetID: 77,
		Path:     metadata.LogicalPath{Schema: "public", Table: "orders", Field: "total"},
		Location: "/1",
	}, res.Mappings[0])
}

func TestRewriteUnmappedTableIsPreserved(t *testing.T) {
	source, target := indexes(t)

	res := Rewrite(document.MustParse(`{"source-table":6}`), source, target)

	assertJSON(t, `{"source-table":6}`, res.Value)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, Warning{
		Kind:     KindTable,
		SourceID: 6,
		Path:     metadata.LogicalPath{Schema: "public", Table: "audit"},
		Reason:   ReasonNotInTarget,
		Location: "/source-table",
	}, res.Warnings[0])
}

func TestRewriteSourceFieldLeavesSiblingsAlone(t *testing.T) {
	source, target := indexes(t)

	res := Rewrite(document.MustParse(`{"source-field":10,"other-key":[1,2,3]}`), source, target)

	assertJSON(t, `{"source-field":77,"other-key":[1,2,3]}`, res.Value)
	assert.Empty(t, res.Warnings)
}

func TestRewriteRules(t *testing.T) {
	source, target := indexes(t)

	tests := []struct {
		name         string
		input        string
		want         string
		wantWarnings int
	}{
		{
			name:  "source table",
			input: `{"source-table":3}`,
			want:  `{"source-table":53}`,
		},
		{
			name:  "nested question reference passes through",
			input: `{"source-table":"card__12"}`,
			want:  `{"source-table":"card__12"}`,
		},
		{
			name:  "field tuple options are recursed",
			input: `["field",11,{"source-field":10,"temporal-unit":"month"}]`,
			want:  `["field",78,{"source-field":77,"temporal-unit":"month"}]`,
		},
		{
			name:  "legacy field-id",
			input: `["field-id",20]`,
			want:  `["field-id",90]`,
		},
		{
			name:  "field tuple by name passes through",
			input: `["field","total",{"base-type":"type/Float"}]`,
			want:  `["field","total",{"base-type":"type/Float"}]`,
		},
		{
			name:  "single element field tag is not a reference",
			input: `["field"]`,
			want:  `["field"]`,
		},
		{
			name:  "numbers outside reference positions are untouched",
			input: `{"limit":10,"filter":["=",["field",10,null],10]}`,
			want:  `{"limit":10,"filter":["=",["field",77,null],10]}`,
		},
		{
			name:  "join clause",
			input: `{"joins":[{"source-table":4,"condition":["=",["field",11,null],["field",20,{"join-alias":"Users"}]],"alias":"Users"}]}`,
			want:  `{"joins":[{"source-table":54,"condition":["=",["field",78,null],["field",90,{"join-alias":"Users"}]],"alias":"Users"}]}`,
		},
		{
			name:  "encoded reference key",
			input: `{"column_settings":{"[\"ref\",[\"field\",10,null]]":{"number_style":"currency"},"[\"name\",\"count\"]":{}}}`,
			want:  `{"column_settings":{"[\"ref\",[\"field\",77,null]]":{"number_style":"currency"},"[\"name\",\"count\"]":{}}}`,
		},
		{
			name:  "encoded reference value",
			input: `{"click_behavior":{"type":"link","linkType":"question","parameterMapping":{"p1":{"target":{"type":"dimension","id":"[\"dimension\",[\"field\",21,null]]","dimension":["dimension",["field",21,null]]}}}}}`,
			want:  `{"click_behavior":{"type":"link","linkType":"question","parameterMapping":{"p1":{"target":{"type":"dimension","id":"[\"dimension\",[\"field\",91,null]]","dimension":["dimension",["field",91,null]]}}}}}`,
		},
		{
			name:  "plain strings starting with a bracket",
			input: `{"text":"[\"draft\"] totals","query":"[not json"}`,
			want:  `{"text":"[\"draft\"] totals","query":"[not json"}`,
		},
		{
			name:         "unknown source id",
			input:        `["field",999,null]`,
			want:         `["field",999,null]`,
			wantWarnings: 1,
		},
		{
			name:         "field missing in target",
			input:        `{"breakout":[["field",12,null]],"source-table":3}`,
			want:         `{"breakout":[["field",12,null]],"source-table":53}`,
			wantWarnings: 1,
		},
		{
			name:  "scalars",
			input: `"orders"`,
			want:  `"orders"`,
		},
		{
			name:  "null",
			input: `null`,
			want:  `null`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Rewrite(document.MustParse(tt.input), source, target)
			assertJSON(t, tt.want, res.Value)
			assert.Len(t, res.Warnings, tt.wantWarnings)
		})
	}
}

func TestRewriteWarningLocationsAndReasons(t *testing.T) {
	source, target := indexes(t)

	doc := document.MustParse(`{"query":{"source-table":6,"fields":[["field",999,null],["field",12,{"source-field":40}]]}}`)
	res := RewriteAt(doc, source, target, "/dataset_query")

	require.Len(t, res.Warnings, 4)
	assert.Equal(t, "/dataset_query/query/source-table", res.Warnings[0].Location)
	assert.Equal(t, ReasonNotInSource, res.Warnings[1].Reason)
	assert.Equal(t, "/dataset_query/query/fields/0/1", res.Warnings[1].Location)
	assert.Equal(t, metadata.LogicalPath{Schema: "public", Table: "orders", Field: "legacy_flag"}, res.Warnings[2].Path)
	assert.Equal(t, "/dataset_query/query/fields/1/2/source-field", res.Warnings[3].Location)
}

func TestRewriteDoesNotMutateInput(t *testing.T) {
	source, target := indexes(t)

	input := `{"source-table":3,"filter":["and",["=",["field",10,null],5],[">",["field",11,{"source-field":10}],1]]}`
	doc := document.MustParse(input)

	_ = Rewrite(doc, source, target)

	assertJSON(t, input, doc)
}

const richQuery = `{
	"database": 1,
	"type": "query",
	"query": {
		"source-table": 3,
		"joins": [{"source-table": 4, "alias": "Users", "fields": "all",
			"condition": ["=", ["field", 11, null], ["field", 20, {"join-alias": "Users"}]]}],
		"aggregation": [["sum", ["field", 10, null]], ["count"]],
		"breakout": [["field", 21, {"source-field": 11}], ["field", "CREATED_AT", {"base-type": "type/DateTime", "temporal-unit": "month"}]],
		"filter": ["and", ["=", ["field", 12, null], true], ["not-null", ["field", 40, null]]],
		"order-by": [["desc", ["aggregation", 0]]],
		"limit": 100,
		"expressions": {"double total": ["*", ["field", 10, null], 2]}
	},
	"parameters": []
}`

func TestRewriteIdentityIndexIsNoOp(t *testing.T) {
	source, _ := indexes(t)

	doc := document.MustParse(richQuery)
	res := Rewrite(doc, source, source)

	assert.True(t, document.Equal(doc, res.Value))
	assert.Empty(t, res.Warnings)
}

func TestRewriteIsStructurallyIsomorphic(t *testing.T) {
	source, target := indexes(t)

	doc := document.MustParse(richQuery)
	res := Rewrite(doc, source, target)

	assertSameShape(t, doc, res.Value, "")

	// only id leaves changed, each change is accounted for by a mapping
	changed := 0
	for _, m := range res.Mappings {
		if m.SourceID != m.TargetID {
			changed++
		}
	}
	assert.Equal(t, changed, countDifferentLeaves(doc, res.Value))
	assert.Len(t, res.Warnings, 2)
}

func TestRewritePathFidelity(t *testing.T) {
	source, target := indexes(t)

	res := Rewrite(document.MustParse(richQuery), source, target)
	for _, m := range res.Mappings {
		var want int64
		var ok bool
		if m.Kind == KindTable {
			want, ok = target.TableID(m.Path)
		} else {
			want, ok = target.FieldID(m.Path)
		}
		require.True(t, ok)
		assert.Equal(t, want, m.TargetID, "mapping at %s", m.Location)
	}
}

func TestResultTargetPaths(t *testing.T) {
	source, target := indexes(t)

	res := Rewrite(document.MustParse(`[["field",10,null],["field",10,null],{"source-table":3}]`), source, target)
	assert.Equal(t, []metadata.LogicalPath{
		{Schema: "public", Table: "orders", Field: "total"},
		{Schema: "public", Table: "orders"},
	}, res.TargetPaths())
}

func TestEscapePointer(t *testing.T) {
	assert.Equal(t, "plain", escapePointer("plain"))
	assert.Equal(t, "a~1b~0c", escapePointer("a/b~c"))
}

func assertSameShape(t *testing.T, a, b document.Value, loc string) {
	t.Helper()
	switch av := a.(type) {
	case document.Object:
		bv, ok := b.(document.Object)
		require.True(t, ok, "object expected at %s", loc)
		require.Equal(t, av.Keys(), bv.Keys(), "keys at %s", loc)
		for i := range av {
			assertSameShape(t, av[i].Value, bv[i].Value, loc+"/"+av[i].Key)
		}
	case document.Array:
		bv, ok := b.(document.Array)
		require.True(t, ok, "array expected at %s", loc)
		require.Len(t, bv, len(av), "length at %s", loc)
		for i := range av {
			assertSameShape(t, av[i], bv[i], loc)
		}
	default:
		assert.IsType(t, a, b, "scalar type at %s", loc)
	}
}

func countDifferentLeaves(a, b document.Value) int {
	switch av := a.(type) {
	case document.Object:
		bv := b.(document.Object)
		n := 0
		for i := range av {
			n += countDifferentLeaves(av[i].Value, bv[i].Value)
		}
		return n
	case document.Array:
		bv := b.(document.Array)
		n := 0
		for i := range av {
			n += countDifferentLeaves(av[i], bv[i])
		}
		return n
	default:
		if document.Equal(a, b) {
			return 0
		}
		return 1
	}
}
