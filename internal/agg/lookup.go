package agg

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/match"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/pathutil"
)

// expand widens a resolved value to include its array elements, so that
// local/foreign field matching considers each element as a candidate the
// same way query matching does.
func expand(v bson.Value, ok bool) []bson.Value {
	if !ok {
		return nil
	}
	if v.Kind() == bson.KindArray {
		return v.Array()
	}
	return []bson.Value{v}
}

func anyEqual(a, b []bson.Value) bool {
	for _, x := range a {
		for _, y := range b {
			if bson.Equal(x, y) {
				return true
			}
		}
	}
	return false
}

// runLookup implements $lookup in both its localField/foreignField form
// and its pipeline+let form.
func runLookup(docs []*bson.Document, spec *bson.Document, resolver CollectionResolver, collation *bson.Collation) ([]*bson.Document, error) {
	fromVal, ok := spec.Get("from")
	if !ok || fromVal.Kind() != bson.KindString {
		return nil, mongoerr.BadValue("$lookup requires a string 'from' field")
	}
	asVal, ok := spec.Get("as")
	if !ok || asVal.Kind() != bson.KindString {
		return nil, mongoerr.BadValue("$lookup requires a string 'as' field")
	}
	foreignDocs, _ := resolver.Resolve(fromVal.Str())

	localField, hasLocal := spec.Get("localField")
	foreignField, hasForeign := spec.Get("foreignField")
	pipelineVal, hasPipeline := spec.Get("pipeline")

	out := make([]*bson.Document, 0, len(docs))

	switch {
	case hasLocal && hasForeign:
		if localField.Kind() != bson.KindString || foreignField.Kind() != bson.KindString {
			return nil, mongoerr.BadValue("$lookup localField/foreignField must be strings")
		}
		for _, d := range docs {
			localVals := expand(pathutil.Resolve(d, localField.Str()).First())
			var matches []bson.Value
			for _, fd := range foreignDocs {
				foreignVals := expand(pathutil.Resolve(fd, foreignField.Str()).First())
				if anyEqual(localVals, foreignVals) {
					matches = append(matches, bson.Doc(fd.Clone()))
				}
			}
			cp := d.Clone()
			cp.Set(asVal.Str(), bson.Array(matches))
			out = append(out, cp)
		}
		return out, nil
	case hasPipeline:
		if pipelineVal.Kind() != bson.KindArray {
			return nil, mongoerr.BadValue("$lookup pipeline must be an array")
		}
		stages, err := toStageDocuments(pipelineVal.Array())
		if err != nil {
			return nil, err
		}
		letVal, hasLet := spec.Get("let")
		for _, d := range docs {
			vars := map[string]bson.Value{}
			if hasLet {
				if letVal.Kind() != bson.KindDocument {
					return nil, mongoerr.BadValue("$lookup let must be a document")
				}
				for _, p := range letVal.Document().Pairs() {
					v, err := match.EvalExpr(d, p.Value)
					if err != nil {
						return nil, err
					}
					vars[p.Key] = v
				}
			}
			boundStages := make([]*bson.Document, len(stages))
			for i, s := range stages {
				boundStages[i] = substituteVars(bson.Doc(s), vars).Document()
			}
			facetOut, err := Run(foreignDocs, boundStages, resolver, collation)
			if err != nil {
				return nil, err
			}
			cp := d.Clone()
			cp.Set(asVal.Str(), bson.Array(toDocValues(facetOut)))
			out = append(out, cp)
		}
		return out, nil
	default:
		return nil, mongoerr.BadValue("$lookup requires either localField/foreignField or pipeline")
	}
}

// substituteVars recursively replaces "$$name" string leaves with the
// bound variable's value, leaving everything else untouched.
func substituteVars(v bson.Value, vars map[string]bson.Value) bson.Value {
	switch v.Kind() {
	case bson.KindString:
		s := v.Str()
		if len(s) > 2 && s[0] == '$' && s[1] == '$' {
			if bound, ok := vars[s[2:]]; ok {
				return bound
			}
		}
		return v
	case bson.KindArray:
		elems := v.Array()
		out := make([]bson.Value, len(elems))
		for i, e := range elems {
			out[i] = substituteVars(e, vars)
		}
		return bson.Array(out)
	case bson.KindDocument:
		src := v.Document()
		out := bson.NewDocument()
		for _, p := range src.Pairs() {
			out.Set(p.Key, substituteVars(p.Value, vars))
		}
		return bson.Doc(out)
	default:
		return v
	}
}

// runUnionWith implements $unionWith: append the (optionally
// sub-pipelined) contents of another collection to the accumulated
// sequence.
func runUnionWith(docs []*bson.Document, spec bson.Value, resolver CollectionResolver, collation *bson.Collation) ([]*bson.Document, error) {
	var collName string
	var pipelineVal bson.Value
	hasPipeline := false

	switch spec.Kind() {
	case bson.KindString:
		collName = spec.Str()
	case bson.KindDocument:
		collVal, ok := spec.Document().Get("coll")
		if !ok || collVal.Kind() != bson.KindString {
			return nil, mongoerr.BadValue("$unionWith requires a string 'coll' field")
		}
		collName = collVal.Str()
		if pv, ok := spec.Document().Get("pipeline"); ok {
			pipelineVal = pv
			hasPipeline = true
		}
	default:
		return nil, mongoerr.BadValue("$unionWith requires a string or document")
	}

	foreignDocs, _ := resolver.Resolve(collName)
	if hasPipeline {
		if pipelineVal.Kind() != bson.KindArray {
			return nil, mongoerr.BadValue("$unionWith pipeline must be an array")
		}
		stages, err := toStageDocuments(pipelineVal.Array())
		if err != nil {
			return nil, err
		}
		transformed, err := Run(foreignDocs, stages, resolver, collation)
		if err != nil {
			return nil, err
		}
		foreignDocs = transformed
	}

	out := make([]*bson.Document, 0, len(docs)+len(foreignDocs))
	out = append(out, docs...)
	out = append(out, foreignDocs...)
	return out, nil
}

var graphLookupOptions = map[string]bool{
	"from": true, "startWith": true, "connectFromField": true,
	"connectToField": true, "as": true, "maxDepth": true,
}

// runGraphLookup implements $graphLookup: breadth-first traversal of a
// foreign collection following connectFromField -> connectToField edges,
// starting from startWith, deduplicated by deep document equality.
func runGraphLookup(docs []*bson.Document, spec *bson.Document, resolver CollectionResolver) ([]*bson.Document, error) {
	for _, key := range spec.Keys() {
		if !graphLookupOptions[key] {
			return nil, mongoerr.Unsupported("$graphLookup option %q is not supported", key)
		}
	}
	fromVal, ok := spec.Get("from")
	if !ok || fromVal.Kind() != bson.KindString {
		return nil, mongoerr.BadValue("$graphLookup requires a string 'from' field")
	}
	startWith, ok := spec.Get("startWith")
	if !ok {
		return nil, mongoerr.BadValue("$graphLookup requires a 'startWith' expression")
	}
	connectFrom, ok := spec.Get("connectFromField")
	if !ok || connectFrom.Kind() != bson.KindString {
		return nil, mongoerr.BadValue("$graphLookup requires a string 'connectFromField'")
	}
	connectTo, ok := spec.Get("connectToField")
	if !ok || connectTo.Kind() != bson.KindString {
		return nil, mongoerr.BadValue("$graphLookup requires a string 'connectToField'")
	}
	asVal, ok := spec.Get("as")
	if !ok || asVal.Kind() != bson.KindString {
		return nil, mongoerr.BadValue("$graphLookup requires a string 'as' field")
	}
	maxDepth := -1
	if mv, ok := spec.Get("maxDepth"); ok {
		n, err := intArg(mv, "$graphLookup.maxDepth")
		if err != nil || n < 0 {
			return nil, mongoerr.BadValue("$graphLookup maxDepth requires a non-negative integer")
		}
		maxDepth = n
	}

	foreignDocs, _ := resolver.Resolve(fromVal.Str())

	out := make([]*bson.Document, 0, len(docs))
	for _, d := range docs {
		startVal, err := match.EvalExpr(d, startWith)
		if err != nil {
			return nil, err
		}
		frontier := expand(startVal, true)

		var visited []*bson.Document
		var matched []bson.Value
		depth := 0
		for len(frontier) > 0 && (maxDepth < 0 || depth <= maxDepth) {
			var nextFrontier []bson.Value
			for _, fd := range foreignDocs {
				if containsDoc(visited, fd) {
					continue
				}
				toVals := expand(pathutil.Resolve(fd, connectTo.Str()).First())
				if !anyEqual(frontier, toVals) {
					continue
				}
				visited = append(visited, fd)
				matched = append(matched, bson.Doc(fd.Clone()))
				nextFrontier = append(nextFrontier, expand(pathutil.Resolve(fd, connectFrom.Str()).First())...)
			}
			frontier = nextFrontier
			depth++
		}

		cp := d.Clone()
		cp.Set(asVal.Str(), bson.Array(matched))
		out = append(out, cp)
	}
	return out, nil
}

func containsDoc(visited []*bson.Document, d *bson.Document) bool {
	dv := bson.Doc(d)
	for _, v := range visited {
		if bson.Equal(bson.Doc(v), dv) {
			return true
		}
	}
	return false
}
