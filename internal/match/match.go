// Package match implements the query matcher described in spec.md §4.3:
// matches(document, filter) -> bool, with the standard top-level logical
// operators and the per-field operator family MongoDB-compatible queries
// rely on. Grounded on the filter plumbing in modern_query.go and the
// FerretDB integration tests' operator coverage for edge cases ($in with
// a missing path, cross-type comparisons, $elemMatch's two forms).
package match

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/pathutil"
)

// Matches reports whether doc satisfies filter, with collation (nil means
// simple byte-wise string comparison) governing string comparisons.
func Matches(doc *bson.Document, filter *bson.Document, collation *bson.Collation) (bool, error) {
	if filter == nil || filter.Len() == 0 {
		return true, nil
	}
	for _, pair := range filter.Pairs() {
		ok, err := matchTopLevel(doc, pair.Key, pair.Value, collation)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchTopLevel(doc *bson.Document, key string, value bson.Value, collation *bson.Collation) (bool, error) {
	switch key {
	case "$and":
		subs, err := filterArray(value)
		if err != nil {
			return false, err
		}
		for _, sub := range subs {
			ok, err := Matches(doc, sub, collation)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "$or":
		subs, err := filterArray(value)
		if err != nil {
			return false, err
		}
		if len(subs) == 0 {
			return false, nil
		}
		for _, sub := range subs {
			ok, err := Matches(doc, sub, collation)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "$nor":
		subs, err := filterArray(value)
		if err != nil {
			return false, err
		}
		for _, sub := range subs {
			ok, err := Matches(doc, sub, collation)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	case "$not":
		if value.Kind() != bson.KindDocument {
			return false, mongoerr.BadValue("$not requires a filter document")
		}
		ok, err := Matches(doc, value.Document(), collation)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case "$expr":
		result, err := EvalExpr(doc, value)
		if err != nil {
			return false, err
		}
		return result.Truthy(), nil
	default:
		resolution := pathutil.Resolve(doc, key)
		return matchFieldSpec(resolution, value, collation)
	}
}

func filterArray(value bson.Value) ([]*bson.Document, error) {
	if value.Kind() != bson.KindArray {
		return nil, mongoerr.BadValue("expected an array of sub-filters")
	}
	docs := make([]*bson.Document, 0, len(value.Array()))
	for _, v := range value.Array() {
		if v.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("expected a filter document in sub-filter array")
		}
		docs = append(docs, v.Document())
	}
	return docs, nil
}

// matchFieldSpec evaluates a single `field: spec` clause against a path
// resolution already computed for field.
func matchFieldSpec(resolution pathutil.Resolution, spec bson.Value, collation *bson.Collation) (bool, error) {
	if spec.Kind() == bson.KindRegex {
		return regexMatchesResolution(resolution, spec.Regex()), nil
	}
	if spec.Kind() == bson.KindDocument && isOperatorDocument(spec.Document()) {
		return evalOperatorDocument(resolution, spec.Document(), collation)
	}
	return equalityMatches(resolution, spec), nil
}

func isOperatorDocument(d *bson.Document) bool {
	if d.Len() == 0 {
		return false
	}
	for _, k := range d.Keys() {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}

// expand widens a set of resolved values to also include each element of
// any array among them, matching MongoDB's "a query on a field matches
// either the field itself or one of its array elements" behavior used by
// $eq/$in/$all/range operators.
func expand(values []bson.Value) []bson.Value {
	out := make([]bson.Value, 0, len(values))
	for _, v := range values {
		out = append(out, v)
		if v.Kind() == bson.KindArray {
			out = append(out, v.Array()...)
		}
	}
	return out
}

func equalityMatches(resolution pathutil.Resolution, target bson.Value) bool {
	if !resolution.Found {
		return target.Kind() == bson.KindNull
	}
	for _, v := range expand(resolution.Values) {
		if bson.Equal(v, target) {
			return true
		}
	}
	return false
}

func regexMatchesResolution(resolution pathutil.Resolution, rx bson.Regex) bool {
	if !resolution.Found {
		return false
	}
	re, err := Compile(rx)
	if err != nil {
		return false
	}
	for _, v := range expand(resolution.Values) {
		if v.Kind() == bson.KindString && re.MatchString(v.Str()) {
			return true
		}
	}
	return false
}

func compareOp(resolution pathutil.Resolution, target bson.Value, op string, collation *bson.Collation) bool {
	if !resolution.Found {
		return false
	}
	for _, v := range expand(resolution.Values) {
		if !comparableFamily(v, target) {
			continue
		}
		cmp := bson.CompareWithCollation(v, target, collation)
		switch op {
		case "$gt":
			if cmp > 0 {
				return true
			}
		case "$gte":
			if cmp >= 0 {
				return true
			}
		case "$lt":
			if cmp < 0 {
				return true
			}
		case "$lte":
			if cmp <= 0 {
				return true
			}
		}
	}
	return false
}

func comparableFamily(a, b bson.Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	return a.Kind() == b.Kind()
}

func inMatches(resolution pathutil.Resolution, operands []bson.Value) bool {
	if !resolution.Found {
		for _, op := range operands {
			if op.Kind() == bson.KindNull {
				return true
			}
		}
		return false
	}
	for _, c := range expand(resolution.Values) {
		for _, op := range operands {
			if op.Kind() == bson.KindRegex {
				if c.Kind() == bson.KindString {
					if re, err := Compile(op.Regex()); err == nil && re.MatchString(c.Str()) {
						return true
					}
				}
				continue
			}
			if bson.Equal(c, op) {
				return true
			}
		}
	}
	return false
}

func sizeMatches(resolution pathutil.Resolution, size int) bool {
	for _, v := range resolution.Values {
		if v.Kind() == bson.KindArray && len(v.Array()) == size {
			return true
		}
	}
	return false
}

func typeMatches(resolution pathutil.Resolution, spec bson.Value) bool {
	kinds, ok := kindsForTypeSpec(spec)
	if !ok {
		return false
	}
	for _, v := range resolution.Values {
		if kindIn(v.Kind(), kinds) {
			return true
		}
	}
	return false
}

func elemMatchMatches(resolution pathutil.Resolution, criteria *bson.Document, collation *bson.Collation) (bool, error) {
	operatorForm := isOperatorDocument(criteria)
	for _, v := range resolution.Values {
		if v.Kind() != bson.KindArray {
			continue
		}
		for _, elem := range v.Array() {
			if operatorForm {
				ok, err := evalOperatorDocument(pathutil.Resolution{Found: true, Values: []bson.Value{elem}}, criteria, collation)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
				continue
			}
			if elem.Kind() != bson.KindDocument {
				continue
			}
			ok, err := Matches(elem.Document(), criteria, collation)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func allMatches(resolution pathutil.Resolution, operands []bson.Value, collation *bson.Collation) (bool, error) {
	candidates := expand(resolution.Values)
	for _, operand := range operands {
		switch {
		case operand.Kind() == bson.KindRegex:
			found := false
			for _, c := range candidates {
				if c.Kind() != bson.KindString {
					continue
				}
				if re, err := Compile(operand.Regex()); err == nil && re.MatchString(c.Str()) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		case operand.Kind() == bson.KindDocument && operand.Document().Has("$elemMatch"):
			nested := operand.Document().MustGet("$elemMatch")
			if nested.Kind() != bson.KindDocument {
				return false, mongoerr.BadValue("$all $elemMatch entry must be a document")
			}
			ok, err := elemMatchMatches(resolution, nested.Document(), collation)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		default:
			found := false
			for _, c := range candidates {
				if bson.Equal(c, operand) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
	}
	return true, nil
}

func sizeFromValue(v bson.Value) (int, bool) {
	switch v.Kind() {
	case bson.KindInt32:
		return int(v.Int32()), true
	case bson.KindInt64:
		return int(v.Int64()), true
	case bson.KindDouble:
		return int(v.Double()), true
	default:
		return 0, false
	}
}

func evalOperatorDocument(resolution pathutil.Resolution, opDoc *bson.Document, collation *bson.Collation) (bool, error) {
	var regexPattern *string
	options := ""

	for _, pair := range opDoc.Pairs() {
		key, val := pair.Key, pair.Value
		switch key {
		case "$eq":
			if !equalityMatches(resolution, val) {
				return false, nil
			}
		case "$ne":
			if equalityMatches(resolution, val) {
				return false, nil
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !compareOp(resolution, val, key, collation) {
				return false, nil
			}
		case "$in":
			if val.Kind() != bson.KindArray {
				return false, mongoerr.BadValue("$in requires an array")
			}
			if !inMatches(resolution, val.Array()) {
				return false, nil
			}
		case "$nin":
			if val.Kind() != bson.KindArray {
				return false, mongoerr.BadValue("$nin requires an array")
			}
			if inMatches(resolution, val.Array()) {
				return false, nil
			}
		case "$exists":
			if resolution.Found != val.Truthy() {
				return false, nil
			}
		case "$type":
			if !typeMatches(resolution, val) {
				return false, nil
			}
		case "$size":
			size, ok := sizeFromValue(val)
			if !ok {
				return false, mongoerr.BadValue("$size requires a numeric argument")
			}
			if !sizeMatches(resolution, size) {
				return false, nil
			}
		case "$elemMatch":
			if val.Kind() != bson.KindDocument {
				return false, mongoerr.BadValue("$elemMatch requires a document")
			}
			ok, err := elemMatchMatches(resolution, val.Document(), collation)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		case "$all":
			if val.Kind() != bson.KindArray {
				return false, mongoerr.BadValue("$all requires an array")
			}
			ok, err := allMatches(resolution, val.Array(), collation)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		case "$not":
			ok, err := matchFieldSpec(resolution, val, collation)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		case "$regex":
			p := regexLiteral(val)
			regexPattern = &p
		case "$options":
			options = val.Str()
		default:
			return false, mongoerr.Unsupported("unsupported query operator %q", key)
		}
	}

	if regexPattern != nil {
		if !regexMatchesResolution(resolution, bson.Regex{Pattern: *regexPattern, Options: options}) {
			return false, nil
		}
	}
	return true, nil
}

func regexLiteral(v bson.Value) string {
	if v.Kind() == bson.KindRegex {
		return v.Regex().Pattern
	}
	return v.Str()
}
