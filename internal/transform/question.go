// Package transform applies the reference rewriter to whole Metabase
// artifacts: questions (cards) and dashboards.
package transform

import (
	"github.com/tordrt/sourceswitch/internal/document"
	"github.com/tordrt/sourceswitch/internal/metadata"
	"github.com/tordrt/sourceswitch/internal/rewrite"
)

const (
	keyDatabase              = "database"
	keyDatabaseID            = "database_id"
	keyTableID               = "table_id"
	keyDatasetQuery          = "dataset_query"
	keyVisualizationSettings = "visualization_settings"
)

// TransformQuestion rewrites a dataset query so it runs against target.
// A root-level "database" equal to the source database id is re-pointed at
// the target database, provided both indexes know their database id.
func TransformQuestion(query document.Value, source, target *metadata.Index) *rewrite.Result {
	return transformQuestionAt(query, source, target, "")
}

func transformQuestionAt(query document.Value, source, target *metadata.Index, base string) *rewrite.Result {
	res := rewrite.RewriteAt(query, source, target, base)
	if obj, ok := res.Value.(document.Object); ok {
		res.Value = retargetDatabase(obj, keyDatabase, source, target)
	}
	return res
}

// TransformCard rewrites the dataset query and visualization settings of a
// card object, plus its table_id and database_id. All other members are
// copied. Warning locations are relative to the card.
func TransformCard(card document.Object, source, target *metadata.Index) *rewrite.Result {
	res := &rewrite.Result{}
	out := make(document.Object, len(card))

	for i, m := range card {
		out[i] = m
		switch m.Key {
		case keyDatasetQuery:
			r := transformQuestionAt(m.Value, source, target, "/"+keyDatasetQuery)
			out[i].Value = r.Value
			res.Merge(r)
		case keyVisualizationSettings:
			r := rewrite.RewriteAt(m.Value, source, target, "/"+keyVisualizationSettings)
			out[i].Value = r.Value
			res.Merge(r)
		case keyTableID:
			r := rewrite.RewriteTableID(m.Value, source, target, "/"+keyTableID)
			out[i].Value = r.Value
			res.Merge(r)
		}
	}

	res.Value = retargetDatabase(out, keyDatabaseID, source, target)
	return res
}

// retargetDatabase sets obj[key] to the target database id when it holds the
// source database id. It is left unchanged when either index was built from
// metadata without a database id; callers building indexes should report
// that case.
func retargetDatabase(obj document.Object, key string, source, target *metadata.Index) document.Object {
	current, ok := obj.Get(key)
	if !ok {
		return obj
	}
	id, ok := document.AsInt64(current)
	if !ok {
		return obj
	}
	sourceID, ok := source.DatabaseID()
	if !ok || sourceID != id {
		return obj
	}
	targetID, ok := target.DatabaseID()
	if !ok {
		return obj
	}
	return obj.Set(key, document.Int(targetID))
}
