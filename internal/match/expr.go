package match

import (
	"strings"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/pathutil"
)

// EvalExpr evaluates the $expr expression subset spec.md §4.3 names:
// $literal, comparison operators, $and/$or/$not, and $add, against doc's
// root. Field paths are "$field.path" strings; "$$ROOT" and "$$CURRENT"
// both resolve to the whole document, since this subset has no notion of
// a nested aggregation variable scope.
func EvalExpr(doc *bson.Document, expr bson.Value) (bson.Value, error) {
	switch expr.Kind() {
	case bson.KindString:
		return evalPathExpr(doc, expr.Str())
	case bson.KindDocument:
		return evalDocExpr(doc, expr.Document())
	default:
		return expr, nil
	}
}

func evalPathExpr(doc *bson.Document, s string) (bson.Value, error) {
	if len(s) == 0 || s[0] != '$' {
		return bson.String(s), nil
	}
	if s == "$$ROOT" || s == "$$CURRENT" {
		return bson.Doc(doc), nil
	}
	if strings.HasPrefix(s, "$$ROOT.") {
		path := strings.TrimPrefix(s, "$$ROOT.")
		r := pathutil.Resolve(doc, path)
		if v, ok := r.First(); ok {
			return v, nil
		}
		return bson.Null(), nil
	}
	path := strings.TrimPrefix(s, "$")
	r := pathutil.Resolve(doc, path)
	if v, ok := r.First(); ok {
		return v, nil
	}
	return bson.Null(), nil
}

func evalDocExpr(doc *bson.Document, d *bson.Document) (bson.Value, error) {
	if d.Len() != 1 {
		// not a single-operator expression: treat the whole thing as a
		// literal document, same as $literal would for arbitrary data.
		return bson.Doc(d), nil
	}
	pair := d.Pairs()[0]
	switch pair.Key {
	case "$literal":
		return pair.Value, nil
	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		a, b, err := evalPair(doc, pair.Value)
		if err != nil {
			return bson.Value{}, err
		}
		cmp := bson.Compare(a, b)
		return bson.Bool(compareSatisfies(pair.Key, cmp)), nil
	case "$and":
		items, err := evalArray(doc, pair.Value)
		if err != nil {
			return bson.Value{}, err
		}
		for _, v := range items {
			if !v.Truthy() {
				return bson.Bool(false), nil
			}
		}
		return bson.Bool(true), nil
	case "$or":
		items, err := evalArray(doc, pair.Value)
		if err != nil {
			return bson.Value{}, err
		}
		for _, v := range items {
			if v.Truthy() {
				return bson.Bool(true), nil
			}
		}
		return bson.Bool(false), nil
	case "$not":
		var operand bson.Value
		if pair.Value.Kind() == bson.KindArray {
			items := pair.Value.Array()
			if len(items) != 1 {
				return bson.Value{}, mongoerr.BadValue("$not expects a single operand")
			}
			v, err := EvalExpr(doc, items[0])
			if err != nil {
				return bson.Value{}, err
			}
			operand = v
		} else {
			v, err := EvalExpr(doc, pair.Value)
			if err != nil {
				return bson.Value{}, err
			}
			operand = v
		}
		return bson.Bool(!operand.Truthy()), nil
	case "$add":
		items, err := evalArray(doc, pair.Value)
		if err != nil {
			return bson.Value{}, err
		}
		sum := 0.0
		for _, v := range items {
			f, ok := numericFloat(v)
			if !ok {
				return bson.Value{}, mongoerr.BadValue("$add requires numeric operands")
			}
			sum += f
		}
		return bson.Double(sum), nil
	default:
		return bson.Value{}, mongoerr.Unsupported("unsupported $expr operator %q", pair.Key)
	}
}

func compareSatisfies(op string, cmp int) bool {
	switch op {
	case "$eq":
		return cmp == 0
	case "$ne":
		return cmp != 0
	case "$gt":
		return cmp > 0
	case "$gte":
		return cmp >= 0
	case "$lt":
		return cmp < 0
	case "$lte":
		return cmp <= 0
	}
	return false
}

func evalPair(doc *bson.Document, operands bson.Value) (bson.Value, bson.Value, error) {
	if operands.Kind() != bson.KindArray || len(operands.Array()) != 2 {
		return bson.Value{}, bson.Value{}, mongoerr.BadValue("expected a two-element array of operands")
	}
	arr := operands.Array()
	a, err := EvalExpr(doc, arr[0])
	if err != nil {
		return bson.Value{}, bson.Value{}, err
	}
	b, err := EvalExpr(doc, arr[1])
	if err != nil {
		return bson.Value{}, bson.Value{}, err
	}
	return a, b, nil
}

func evalArray(doc *bson.Document, v bson.Value) ([]bson.Value, error) {
	if v.Kind() != bson.KindArray {
		return nil, mongoerr.BadValue("expected an array of sub-expressions")
	}
	out := make([]bson.Value, 0, len(v.Array()))
	for _, item := range v.Array() {
		ev, err := EvalExpr(doc, item)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func numericFloat(v bson.Value) (float64, bool) {
	switch v.Kind() {
	case bson.KindInt32:
		return float64(v.Int32()), true
	case bson.KindInt64:
		return float64(v.Int64()), true
	case bson.KindDouble:
		return v.Double(), true
	default:
		return 0, false
	}
}
