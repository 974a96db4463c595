package transform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/sourceswitch/internal/document"
)

const salesDashboard = `{
	"id": 7,
	"name": "Sales",
	"parameters": [
		{"id": "p1", "slug": "email", "type": "string/=", "values_source_type": "card",
		 "values_source_config": {"card_id": 101, "value_field": ["field", 21, null]}}
	],
	"dashcards": [
		{"id": 1, "card_id": 100, "dashboard_tab_id": null, "row": 0, "col": 0, "size_x": 12, "size_y": 6,
		 "card": {"id": 100, "name": "Revenue", "database_id": 1, "table_id": 3,
			"dataset_query": {"database": 1, "type": "query", "query": {"source-table": 3, "aggregation": [["sum", ["field", 10, null]]]}}},
		 "parameter_mappings": [{"parameter_id": "p1", "card_id": 100, "target": ["dimension", ["field", 21, {"source-field": 11}]]}],
		 "series": [],
		 "visualization_settings": {}},
		{"id": 2, "card_id": 101, "row": 0, "col": 12, "size_x": 12, "size_y": 6,
		 "card": {"id": 101, "name": "Users", "database_id": 1,
			"dataset_query": {"database": 1, "type": "query", "query": {"source-table": 4}}},
		 "parameter_mappings": [{"parameter_id": "p1", "card_id": 101, "target": ["dimension", ["field", 21, null]]}],
		 "series": [{"id": 102, "name": "Legacy", "dataset_query": {"database": 1, "type": "query", "query": {"source-table": 3, "filter": ["=", ["field", 12, null], true]}}}],
		 "visualization_settings": {}},
		{"id": 3, "card_id": null, "row": 6, "col": 0, "size_x": 24, "size_y": 2,
		 "card": {"query_average_duration": null},
		 "parameter_mappings": [], "series": [],
		 "visualization_settings": {"virtual_card": {"display": "text"}, "text": "Totals in USD"}},
		{"id": 4, "card_id": 100, "row": 8, "col": 0, "size_x": 6, "size_y": 4,
		 "card": {"id": 100, "name": "Revenue", "database_id": 1, "table_id": 3,
			"dataset_query": {"database": 1, "type": "query", "query": {"source-table": 3, "aggregation": [["sum", ["field", 10, null]]]}}},
		 "parameter_mappings": [], "series": [],
		 "visualization_settings": {"card.title": "Revenue (small)", "column_settings": {"[\"ref\",[\"field\",10,null]]": {"prefix": "$"}}}}
	]
}`

func newIDs(plan *DashboardPlan) IDMap {
	ids := make(IDMap)
	for _, c := range plan.Cards {
		ids[c.SourceID] = c.SourceID + 1000
	}
	return ids
}

func TestPlanDashboard(t *testing.T) {
	source, target := indexes(t)

	plan, err := PlanDashboard(document.MustParse(salesDashboard), source, target)
	require.NoError(t, err)

	var planned []int64
	for _, c := range plan.Cards {
		planned = append(planned, c.SourceID)
	}
	assert.Equal(t, []int64{100, 101, 102}, planned)

	revenue, ok := plan.Card(100)
	require.True(t, ok)
	assert.Equal(t, `{"database":2,"type":"query","query":{"source-table":53,"aggregation":[["sum",["field",77,null]]]}}`,
		marshal(t, mustGet(t, revenue.Card, "dataset_query")))
	// card ids are untouched until Apply
	assert.Equal(t, `100`, marshal(t, mustGet(t, revenue.Card, "id")))

	legacy, ok := plan.Card(102)
	require.True(t, ok)
	assert.Len(t, legacy.Result.Warnings, 1)

	// parameters, three parameter mapping field refs and one column setting
	assert.Empty(t, plan.Warnings)
	assert.Len(t, plan.Mappings, 5)
}

func TestPlanDashboardDashcardSettings(t *testing.T) {
	source, target := indexes(t)

	input := document.MustParse(`{"name":"Clicks","dashcards":[
		{"id":1,"card_id":100,
		 "card":{"id":100,"dataset_query":{"database":1,"query":{"source-table":3}},
			"visualization_settings":{"column_settings":{"[\"ref\",[\"field\",10,null]]":{"prefix":"$"}}}},
		 "visualization_settings":{
			"column_settings":{"[\"ref\",[\"field\",10,null]]":{"suffix":" USD"}},
			"click_behavior":{"type":"link","linkType":"question","targetId":101,"parameterMapping":{
				"email":{"source":{"type":"column","id":"email"},"target":{"type":"dimension","id":"[\"dimension\",[\"field\",21,null]]","dimension":["dimension",["field",21,null]]}},
				"flag":{"source":{"type":"column","id":"flag"},"target":{"type":"dimension","dimension":["dimension",["field",12,null]]}}}}}}
	]}`)

	plan, err := PlanDashboard(input, source, target)
	require.NoError(t, err)

	res, err := plan.Apply(IDMap{100: 1100})
	require.NoError(t, err)

	dashcard := mustGet(t, res.Dashboard, "dashcards").(document.Array)[0]
	assert.Equal(t, `{"[\"ref\",[\"field\",77,null]]":{"prefix":"$"}}`,
		marshal(t, mustGet(t, dashcard, "card", "visualization_settings", "column_settings")))
	assert.Equal(t, `{"[\"ref\",[\"field\",77,null]]":{"suffix":" USD"}}`,
		marshal(t, mustGet(t, dashcard, "visualization_settings", "column_settings")))
	assert.Equal(t, `{"type":"dimension","id":"[\"dimension\",[\"field\",91,null]]","dimension":["dimension",["field",91,null]]}`,
		marshal(t, mustGet(t, dashcard, "visualization_settings", "click_behavior", "parameterMapping", "email", "target")))

	// column setting key, encoded target id and target dimension
	assert.Len(t, plan.Mappings, 3)
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, int64(12), plan.Warnings[0].SourceID)
	assert.Equal(t, "/dashcards/0/visualization_settings/click_behavior/parameterMapping/flag/target/dimension/1/1",
		plan.Warnings[0].Location)
}

func TestApplyRequiresEveryCard(t *testing.T) {
	source, target := indexes(t)

	plan, err := PlanDashboard(document.MustParse(salesDashboard), source, target)
	require.NoError(t, err)

	_, err = plan.Apply(IDMap{100: 1100})
	require.Error(t, err)

	var incomplete *IncompleteIDMapError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []int64{101, 102}, incomplete.Missing)
}

func TestApplyDashboard(t *testing.T) {
	source, target := indexes(t)

	input := document.MustParse(salesDashboard)
	plan, err := PlanDashboard(input, source, target)
	require.NoError(t, err)

	res, err := plan.Apply(newIDs(plan))
	require.NoError(t, err)

	// input untouched
	assert.Equal(t, `100`, marshal(t, mustGet(t, input, "dashcards").(document.Array)[0].(document.Object)[1].Value))

	inCards := mustGet(t, input, "dashcards").(document.Array)
	outCards := mustGet(t, res.Dashboard, "dashcards").(document.Array)
	require.Len(t, outCards, len(inCards))

	for i := range inCards {
		in := inCards[i].(document.Object)
		out := outCards[i].(document.Object)
		assert.Equal(t, in.Keys(), out.Keys())
		for _, key := range []string{"id", "row", "col", "size_x", "size_y"} {
			assert.Equal(t, marshal(t, mustGet(t, in, key)), marshal(t, mustGet(t, out, key)), "dashcard %d %s", i, key)
		}
	}

	first := outCards[0].(document.Object)
	assert.Equal(t, `1100`, marshal(t, mustGet(t, first, "card_id")))
	assert.Equal(t, `1100`, marshal(t, mustGet(t, first, "card", "id")))
	assert.Equal(t, `53`, marshal(t, mustGet(t, first, "card", "table_id")))
	assert.Equal(t, `[{"parameter_id":"p1","card_id":1100,"target":["dimension",["field",91,{"source-field":78}]]}]`,
		marshal(t, mustGet(t, first, "parameter_mappings")))

	second := outCards[1].(document.Object)
	assert.Equal(t, `1101`, marshal(t, mustGet(t, second, "card_id")))
	series := mustGet(t, second, "series").(document.Array)
	require.Len(t, series, 1)
	assert.Equal(t, `1102`, marshal(t, mustGet(t, series[0], "id")))
	assert.Equal(t, `{"database":2,"type":"query","query":{"source-table":53,"filter":["=",["field",12,null],true]}}`,
		marshal(t, mustGet(t, series[0], "dataset_query")))

	text := outCards[2].(document.Object)
	assert.Equal(t, marshal(t, inCards[2]), marshal(t, text))

	assert.Equal(t, `1100`, marshal(t, mustGet(t, outCards[3], "card_id")))
	assert.Equal(t, `{"card.title":"Revenue (small)","column_settings":{"[\"ref\",[\"field\",77,null]]":{"prefix":"$"}}}`,
		marshal(t, mustGet(t, outCards[3], "visualization_settings")))

	params := mustGet(t, res.Dashboard, "parameters").(document.Array)
	assert.Equal(t, `{"card_id":1101,"value_field":["field",91,null]}`,
		marshal(t, mustGet(t, params[0], "values_source_config")))

	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, IDMap{100: 1100, 101: 1101, 102: 1102}, res.IDMap)
}

func TestTransformDashboard(t *testing.T) {
	source, target := indexes(t)

	var created []string
	create := func(_ context.Context, plan CardPlan) (int64, error) {
		name, _ := plan.Card.Get("name")
		created = append(created, string(name.(document.String)))
		return plan.SourceID + 500, nil
	}

	res, err := TransformDashboard(context.Background(), document.MustParse(salesDashboard), source, target, create)
	require.NoError(t, err)

	assert.Equal(t, []string{"Revenue", "Users", "Legacy"}, created)
	assert.Equal(t, IDMap{100: 600, 101: 601, 102: 602}, res.IDMap)
}

func TestTransformDashboardCreateFailure(t *testing.T) {
	source, target := indexes(t)

	boom := errors.New("boom")
	_, err := TransformDashboard(context.Background(), document.MustParse(salesDashboard), source, target,
		func(context.Context, CardPlan) (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestPlanDashboardLegacyOrderedCards(t *testing.T) {
	source, target := indexes(t)

	input := document.MustParse(`{"name":"Old","ordered_cards":[
		{"id":1,"card_id":100,"row":0,"col":0,"sizeX":4,"sizeY":4,
		 "card":{"id":100,"dataset_query":{"database":1,"query":{"source-table":4}}},
		 "parameter_mappings":[]}
	]}`)

	plan, err := PlanDashboard(input, source, target)
	require.NoError(t, err)
	require.Len(t, plan.Cards, 1)

	res, err := plan.Apply(IDMap{100: 200})
	require.NoError(t, err)

	cards := mustGet(t, res.Dashboard, "ordered_cards").(document.Array)
	assert.Equal(t, `{"id":1,"card_id":200,"row":0,"col":0,"sizeX":4,"sizeY":4,"card":{"id":200,"dataset_query":{"database":2,"query":{"source-table":54}}},"parameter_mappings":[]}`,
		marshal(t, cards[0]))
}

func TestPlanDashboardErrors(t *testing.T) {
	source, target := indexes(t)

	tests := []struct {
		name  string
		input string
	}{
		{name: "not an object", input: `[1,2]`},
		{name: "dashcards not an array", input: `{"dashcards":{}}`},
		{name: "dashcard not an object", input: `{"dashcards":[1]}`},
		{name: "card not embedded", input: `{"dashcards":[{"id":1,"card_id":100}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanDashboard(document.MustParse(tt.input), source, target)
			assert.Error(t, err)
		})
	}
}

func TestPlanDashboardWithoutCards(t *testing.T) {
	source, target := indexes(t)

	plan, err := PlanDashboard(document.MustParse(`{"name":"Empty","dashcards":[]}`), source, target)
	require.NoError(t, err)
	assert.Empty(t, plan.Cards)

	res, err := plan.Apply(IDMap{})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Empty","dashcards":[]}`, marshal(t, res.Dashboard))
}
