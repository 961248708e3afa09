package update

import (
	"strconv"
	"strings"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/match"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/pathutil"
)

// isArrayFilterSegment reports whether seg is a "$[identifier]" binding
// segment (as opposed to the unsupported positional "$" / "$[]" forms).
func isArrayFilterSegment(seg string) bool {
	return len(seg) > 3 && strings.HasPrefix(seg, "$[") && strings.HasSuffix(seg, "]") && seg != "$[]"
}

func arrayFilterIdentifier(seg string) string {
	return seg[2 : len(seg)-1]
}

func containsArrayFilterSegment(path string) bool {
	for _, seg := range pathutil.Split(path) {
		if isArrayFilterSegment(seg) {
			return true
		}
	}
	return false
}

// parseArrayFilters validates the arrayFilters list per spec.md §4.4: each
// entry must address exactly one identifier and carry a non-empty
// predicate. Returns the identifier -> predicate binding table.
func parseArrayFilters(filters []*bson.Document) (map[string]*bson.Document, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	out := make(map[string]*bson.Document, len(filters))
	for _, f := range filters {
		if f == nil || f.Len() == 0 {
			return nil, mongoerr.BadValue("each arrayFilters entry must contain a non-empty predicate")
		}
		identifiers := map[string]bool{}
		for _, k := range f.Keys() {
			id := k
			if i := strings.IndexByte(k, '.'); i >= 0 {
				id = k[:i]
			}
			identifiers[id] = true
		}
		if len(identifiers) != 1 {
			return nil, mongoerr.BadValue("each arrayFilters entry must address exactly one identifier")
		}
		var identifier string
		for id := range identifiers {
			identifier = id
		}
		if _, exists := out[identifier]; exists {
			return nil, mongoerr.BadValue("duplicate arrayFilters identifier %q", identifier)
		}
		out[identifier] = f
	}
	return out, nil
}

// resolveConcretePaths expands every "$[identifier]" segment in segments
// into the concrete numeric indices of elements that satisfy the bound
// predicate, recursing to support more than one bound segment along the
// same path. With no bound segments it returns the single literal path.
func resolveConcretePaths(root *bson.Document, segments []string, bindings map[string]*bson.Document) ([]string, error) {
	idx := -1
	identifier := ""
	for i, seg := range segments {
		if seg == "$" || seg == "$[]" {
			return nil, mongoerr.BadValue("positional operator %q is not supported in this core", seg)
		}
		if isArrayFilterSegment(seg) {
			idx = i
			identifier = arrayFilterIdentifier(seg)
			break
		}
	}
	if idx == -1 {
		return []string{strings.Join(segments, ".")}, nil
	}

	predicate, ok := bindings[identifier]
	if !ok {
		return nil, mongoerr.BadValue("no array filter bound for identifier %q", identifier)
	}
	prefix := segments[:idx]
	resolution := pathutil.Resolve(root, strings.Join(prefix, "."))
	if !resolution.Found || len(resolution.Values) != 1 || resolution.Values[0].Kind() != bson.KindArray {
		return nil, mongoerr.BadValue("path %q must resolve to an array to bind arrayFilters identifier %q", strings.Join(prefix, "."), identifier)
	}

	var concrete []string
	for i, elem := range resolution.Values[0].Array() {
		ok, err := evaluateArrayFilterPredicate(elem, identifier, predicate)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rest := append(append([]string{}, prefix...), strconv.Itoa(i))
		rest = append(rest, segments[idx+1:]...)
		sub, err := resolveConcretePaths(root, rest, bindings)
		if err != nil {
			return nil, err
		}
		concrete = append(concrete, sub...)
	}
	return concrete, nil
}

// evaluateArrayFilterPredicate matches predicate against a single array
// element by rewriting the identifier-qualified keys onto a synthetic
// single-field document, then delegating to the query matcher.
func evaluateArrayFilterPredicate(elem bson.Value, identifier string, predicate *bson.Document) (bool, error) {
	const synthetic = "__elem__"
	wrapper := bson.DocFromPairs(bson.P(synthetic, elem))
	rewritten := bson.NewDocument()
	for _, pair := range predicate.Pairs() {
		key := pair.Key
		switch {
		case key == identifier:
			rewritten.Set(synthetic, pair.Value)
		case strings.HasPrefix(key, identifier+"."):
			rewritten.Set(synthetic+key[len(identifier):], pair.Value)
		default:
			return false, mongoerr.BadValue("arrayFilters predicate key %q does not address identifier %q", key, identifier)
		}
	}
	return match.Matches(wrapper, rewritten, nil)
}
