// Package project implements the projection engine described in
// spec.md §4.5: mutually exclusive INCLUDE/EXCLUDE modes detected by
// scanning non-_id fields, the _id default-inclusion policy, and
// expression-valued projection fields.
package project

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/match"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/pathutil"
)

// style is what a single projection field value means once classified.
type style int

const (
	styleExclude style = iota
	styleInclude
	styleExpression
)

func classify(v bson.Value) (style, error) {
	switch v.Kind() {
	case bson.KindBool:
		if v.Bool() {
			return styleInclude, nil
		}
		return styleExclude, nil
	case bson.KindInt32, bson.KindInt64, bson.KindDouble:
		f := numericAsFloat(v)
		switch f {
		case 0:
			return styleExclude, nil
		case 1:
			return styleInclude, nil
		default:
			return 0, mongoerr.BadValue("projection flag must be exactly 0 or 1, got %v", f)
		}
	default:
		return styleExpression, nil
	}
}

func numericAsFloat(v bson.Value) float64 {
	switch v.Kind() {
	case bson.KindInt32:
		return float64(v.Int32())
	case bson.KindInt64:
		return float64(v.Int64())
	case bson.KindDouble:
		return v.Double()
	default:
		return -1
	}
}

// Apply projects doc through spec, returning a fresh document. spec must
// not be empty.
func Apply(doc *bson.Document, spec *bson.Document) (*bson.Document, error) {
	if spec == nil || spec.Len() == 0 {
		return nil, mongoerr.BadValue("projection document must not be empty")
	}

	hasID := spec.Has("_id")
	var idStyle style
	if hasID {
		s, err := classify(spec.MustGet("_id"))
		if err != nil {
			return nil, err
		}
		idStyle = s
	}

	includeMode := true
	seenAny := false
	for _, pair := range spec.Pairs() {
		if pair.Key == "_id" {
			continue
		}
		s, err := classify(pair.Value)
		if err != nil {
			return nil, err
		}
		wantsInclude := s != styleExclude
		if !seenAny {
			includeMode = wantsInclude
			seenAny = true
			continue
		}
		if wantsInclude != includeMode {
			return nil, mongoerr.BadValue("projection cannot mix inclusion and exclusion")
		}
	}

	if includeMode {
		return applyInclude(doc, spec, hasID, idStyle)
	}
	return applyExclude(doc, spec, hasID, idStyle)
}

func applyInclude(doc *bson.Document, spec *bson.Document, hasID bool, idStyle style) (*bson.Document, error) {
	result := bson.NewDocument()

	idExcluded := hasID && idStyle == styleExclude
	if !idExcluded {
		if hasID && idStyle == styleExpression {
			v, err := match.EvalExpr(doc, spec.MustGet("_id"))
			if err != nil {
				return nil, err
			}
			result.Set("_id", v)
		} else if v, ok := doc.Get("_id"); ok {
			result.Set("_id", bson.DeepCopy(v))
		}
	}

	for _, pair := range spec.Pairs() {
		if pair.Key == "_id" {
			continue
		}
		s, _ := classify(pair.Value)
		switch s {
		case styleInclude:
			r := pathutil.Resolve(doc, pair.Key)
			if v, ok := r.First(); ok {
				if err := pathutil.SetPath(result, pair.Key, bson.DeepCopy(v)); err != nil {
					return nil, mongoerr.BadValue("projection field %q: %v", pair.Key, err)
				}
			}
		case styleExpression:
			v, err := match.EvalExpr(doc, pair.Value)
			if err != nil {
				return nil, err
			}
			if err := pathutil.SetPath(result, pair.Key, v); err != nil {
				return nil, mongoerr.BadValue("projection field %q: %v", pair.Key, err)
			}
		}
	}
	return result, nil
}

func applyExclude(doc *bson.Document, spec *bson.Document, hasID bool, idStyle style) (*bson.Document, error) {
	result := doc.Clone()
	for _, pair := range spec.Pairs() {
		if pair.Key == "_id" {
			continue
		}
		pathutil.RemovePath(result, pair.Key)
	}
	if hasID && idStyle == styleExclude {
		pathutil.RemovePath(result, "_id")
	}
	return result, nil
}
