package agg

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
)

// runFacet implements $facet: each named sub-pipeline runs independently
// over the same input sequence; the stage collapses to a single output
// document with one array-valued field per facet.
func runFacet(docs []*bson.Document, spec *bson.Document, resolver CollectionResolver, collation *bson.Collation) ([]*bson.Document, error) {
	result := bson.NewDocument()
	for _, pair := range spec.Pairs() {
		if pair.Value.Kind() != bson.KindArray {
			return nil, mongoerr.BadValue("$facet field %q must be an array of pipeline stages", pair.Key)
		}
		stages, err := toStageDocuments(pair.Value.Array())
		if err != nil {
			return nil, err
		}
		facetOut, err := Run(docs, stages, resolver, collation)
		if err != nil {
			return nil, err
		}
		result.Set(pair.Key, bson.Array(toDocValues(facetOut)))
	}
	return []*bson.Document{result}, nil
}

func toStageDocuments(vals []bson.Value) ([]*bson.Document, error) {
	stages := make([]*bson.Document, 0, len(vals))
	for _, v := range vals {
		if v.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("pipeline stage must be a document")
		}
		stages = append(stages, v.Document())
	}
	return stages, nil
}

func toDocValues(docs []*bson.Document) []bson.Value {
	out := make([]bson.Value, len(docs))
	for i, d := range docs {
		out[i] = bson.Doc(d)
	}
	return out
}
