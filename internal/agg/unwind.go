package agg

import (
	"strings"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/pathutil"
)

// runUnwind implements $unwind: emit one output document per element of
// the array addressed by path, with includeArrayIndex rejected as
// unsupported.
func runUnwind(docs []*bson.Document, spec bson.Value) ([]*bson.Document, error) {
	var path string
	preserveNullAndEmpty := false

	switch spec.Kind() {
	case bson.KindString:
		path = strings.TrimPrefix(spec.Str(), "$")
	case bson.KindDocument:
		pathField, ok := spec.Document().Get("path")
		if !ok || pathField.Kind() != bson.KindString {
			return nil, mongoerr.BadValue("$unwind requires a path field")
		}
		path = strings.TrimPrefix(pathField.Str(), "$")
		if v, ok := spec.Document().Get("preserveNullAndEmptyArrays"); ok {
			preserveNullAndEmpty = v.Truthy()
		}
		if spec.Document().Has("includeArrayIndex") {
			return nil, mongoerr.Unsupported("$unwind includeArrayIndex is not supported")
		}
	default:
		return nil, mongoerr.BadValue("$unwind requires a string or document")
	}

	out := make([]*bson.Document, 0, len(docs))
	for _, d := range docs {
		resolution := pathutil.Resolve(d, path)
		v, ok := resolution.First()
		if !ok || len(resolution.Values) != 1 || v.Kind() != bson.KindArray || len(v.Array()) == 0 {
			if preserveNullAndEmpty {
				out = append(out, d.Clone())
			}
			continue
		}
		for _, elem := range v.Array() {
			cp := d.Clone()
			if err := pathutil.SetPath(cp, path, bson.DeepCopy(elem)); err != nil {
				return nil, mongoerr.BadValue("$unwind: %v", err)
			}
			out = append(out, cp)
		}
	}
	return out, nil
}
