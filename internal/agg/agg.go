// Package agg implements the aggregation pipeline described in spec.md
// §4.6: a strictly sequential execution over an immutable input sequence,
// each stage reading the previous stage's output. Grounded on the stage
// vocabulary and Iter/All plumbing in modern_aggregation.go, generalized
// from "delegate to the official driver" to an actual in-memory
// implementation, since this core has no live server to delegate to.
package agg

import (
	"sort"
	"strings"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/match"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/pathutil"
	"github.com/kinfkong/modern-mgo/internal/project"
)

// Run executes pipeline over input and returns the resulting document
// sequence. input is never mutated; every stage produces a fresh slice.
func Run(input []*bson.Document, pipeline []*bson.Document, resolver CollectionResolver, collation *bson.Collation) ([]*bson.Document, error) {
	docs := input
	for _, stage := range pipeline {
		if stage.Len() != 1 {
			return nil, mongoerr.BadValue("each aggregation pipeline stage must have exactly one operator")
		}
		pair := stage.Pairs()[0]
		next, err := runStage(docs, pair.Key, pair.Value, resolver, collation)
		if err != nil {
			return nil, err
		}
		docs = next
	}
	return docs, nil
}

func runStage(docs []*bson.Document, name string, value bson.Value, resolver CollectionResolver, collation *bson.Collation) ([]*bson.Document, error) {
	switch name {
	case "$match":
		if value.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("$match requires a document")
		}
		return runMatch(docs, value.Document(), collation)
	case "$project":
		if value.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("$project requires a document")
		}
		return runProject(docs, value.Document())
	case "$group":
		if value.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("$group requires a document")
		}
		return runGroup(docs, value.Document())
	case "$sort":
		if value.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("$sort requires a document")
		}
		return runSort(docs, value.Document(), collation), nil
	case "$limit":
		return runLimit(docs, value)
	case "$skip":
		return runSkip(docs, value)
	case "$unwind":
		return runUnwind(docs, value)
	case "$count":
		return runCount(docs, value)
	case "$addFields", "$set":
		if value.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("%s requires a document", name)
		}
		return runAddFields(docs, value.Document())
	case "$unset":
		return runUnset(docs, value)
	case "$sortByCount":
		return runSortByCount(docs, value)
	case "$replaceRoot", "$replaceWith":
		return runReplaceRoot(docs, name, value)
	case "$facet":
		if value.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("$facet requires a document")
		}
		return runFacet(docs, value.Document(), resolver, collation)
	case "$lookup":
		if resolver == nil {
			return nil, mongoerr.Unsupported("$lookup requires a collection resolver")
		}
		if value.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("$lookup requires a document")
		}
		return runLookup(docs, value.Document(), resolver, collation)
	case "$unionWith":
		if resolver == nil {
			return nil, mongoerr.Unsupported("$unionWith requires a collection resolver")
		}
		return runUnionWith(docs, value, resolver, collation)
	case "$graphLookup":
		if resolver == nil {
			return nil, mongoerr.Unsupported("$graphLookup requires a collection resolver")
		}
		if value.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("$graphLookup requires a document")
		}
		return runGraphLookup(docs, value.Document(), resolver)
	default:
		return nil, mongoerr.Unsupported("unsupported aggregation stage %q", name)
	}
}

func runMatch(docs []*bson.Document, spec *bson.Document, collation *bson.Collation) ([]*bson.Document, error) {
	out := make([]*bson.Document, 0, len(docs))
	for _, d := range docs {
		ok, err := match.Matches(d, spec, collation)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func runProject(docs []*bson.Document, spec *bson.Document) ([]*bson.Document, error) {
	out := make([]*bson.Document, 0, len(docs))
	for _, d := range docs {
		p, err := project.Apply(d, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func intArg(v bson.Value, stage string) (int, error) {
	switch v.Kind() {
	case bson.KindInt32:
		return int(v.Int32()), nil
	case bson.KindInt64:
		return int(v.Int64()), nil
	case bson.KindDouble:
		return int(v.Double()), nil
	default:
		return 0, mongoerr.BadValue("%s requires a numeric argument", stage)
	}
}

func runLimit(docs []*bson.Document, v bson.Value) ([]*bson.Document, error) {
	n, err := intArg(v, "$limit")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, mongoerr.BadValue("$limit requires a non-negative integer")
	}
	if n >= len(docs) {
		return append([]*bson.Document{}, docs...), nil
	}
	return append([]*bson.Document{}, docs[:n]...), nil
}

func runSkip(docs []*bson.Document, v bson.Value) ([]*bson.Document, error) {
	n, err := intArg(v, "$skip")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, mongoerr.BadValue("$skip requires a non-negative integer")
	}
	if n >= len(docs) {
		return []*bson.Document{}, nil
	}
	return append([]*bson.Document{}, docs[n:]...), nil
}

func runCount(docs []*bson.Document, v bson.Value) ([]*bson.Document, error) {
	if v.Kind() != bson.KindString || v.Str() == "" || strings.HasPrefix(v.Str(), "$") {
		return nil, mongoerr.BadValue("$count requires a non-empty field name that does not start with '$'")
	}
	if len(docs) == 0 {
		return []*bson.Document{}, nil
	}
	return []*bson.Document{bson.DocFromPairs(bson.P(v.Str(), bson.Int64(int64(len(docs)))))}, nil
}

func runAddFields(docs []*bson.Document, spec *bson.Document) ([]*bson.Document, error) {
	out := make([]*bson.Document, 0, len(docs))
	for _, d := range docs {
		cp := d.Clone()
		for _, pair := range spec.Pairs() {
			v, err := match.EvalExpr(cp, pair.Value)
			if err != nil {
				return nil, err
			}
			if err := pathutil.SetPath(cp, pair.Key, v); err != nil {
				return nil, mongoerr.BadValue("%s: %v", pair.Key, err)
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func runUnset(docs []*bson.Document, v bson.Value) ([]*bson.Document, error) {
	var fields []string
	switch v.Kind() {
	case bson.KindString:
		fields = []string{v.Str()}
	case bson.KindArray:
		for _, item := range v.Array() {
			if item.Kind() != bson.KindString {
				return nil, mongoerr.BadValue("$unset array form requires field name strings")
			}
			fields = append(fields, item.Str())
		}
	case bson.KindDocument:
		fields = append(fields, v.Document().Keys()...)
	default:
		return nil, mongoerr.BadValue("$unset requires a string, array of strings, or document")
	}
	out := make([]*bson.Document, 0, len(docs))
	for _, d := range docs {
		cp := d.Clone()
		for _, f := range fields {
			pathutil.RemovePath(cp, f)
		}
		out = append(out, cp)
	}
	return out, nil
}

func runReplaceRoot(docs []*bson.Document, stage string, v bson.Value) ([]*bson.Document, error) {
	var expr bson.Value
	if stage == "$replaceRoot" {
		if v.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("$replaceRoot requires a document")
		}
		newRoot, ok := v.Document().Get("newRoot")
		if !ok {
			return nil, mongoerr.BadValue("$replaceRoot requires a newRoot field")
		}
		expr = newRoot
	} else {
		expr = v
	}
	out := make([]*bson.Document, 0, len(docs))
	for _, d := range docs {
		root, err := match.EvalExpr(d, expr)
		if err != nil {
			return nil, err
		}
		if root.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("%s must evaluate to a document", stage)
		}
		out = append(out, root.Document())
	}
	return out, nil
}

func runSort(docs []*bson.Document, spec *bson.Document, collation *bson.Collation) []*bson.Document {
	out := append([]*bson.Document{}, docs...)
	keys := spec.Pairs()
	sort.SliceStable(out, func(i, j int) bool {
		return sortLess(out[i], out[j], keys, collation)
	})
	return out
}

func sortLess(a, b *bson.Document, keys []bson.Pair, collation *bson.Collation) bool {
	for _, k := range keys {
		dir := 1
		if k.Value.IsNumeric() {
			if numericSign(k.Value) < 0 {
				dir = -1
			}
		}
		av := fieldOrNull(a, k.Key)
		bv := fieldOrNull(b, k.Key)
		cmp := bson.CompareWithCollation(av, bv, collation)
		if cmp == 0 {
			continue
		}
		if dir > 0 {
			return cmp < 0
		}
		return cmp > 0
	}
	return false
}

func numericSign(v bson.Value) int {
	switch v.Kind() {
	case bson.KindInt32:
		if v.Int32() < 0 {
			return -1
		}
	case bson.KindInt64:
		if v.Int64() < 0 {
			return -1
		}
	case bson.KindDouble:
		if v.Double() < 0 {
			return -1
		}
	}
	return 1
}

func fieldOrNull(d *bson.Document, path string) bson.Value {
	r := pathutil.Resolve(d, path)
	if v, ok := r.First(); ok {
		return v
	}
	return bson.Null()
}
