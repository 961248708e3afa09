// Package update implements the update applier described in spec.md §4.4:
// parsing operator vs. replacement updates, the arrayFilters "$[id]"
// subset, and producing a validated preview document per candidate.
// Grounded on legacy_types.go's hasUpdateOperators/wrapInSetOperator style
// (restated here as an explicit parse step rather than an implicit wrap,
// since this core rejects mixed updates instead of silently coercing
// them) and FerretDB's integration update tests for modified-count edge
// cases.
package update

import (
	"strings"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/pathutil"
)

// supportedOperators is the operator family this core implements.
var supportedOperators = map[string]bool{
	"$set":         true,
	"$unset":       true,
	"$inc":         true,
	"$addToSet":    true,
	"$setOnInsert": true,
}

// Clause is one top-level operator and the field document it carries.
type Clause struct {
	Op     string
	Fields *bson.Document
}

// Parsed is the result of parsing an update document: either a replacement
// document, or an ordered list of operator clauses, plus any arrayFilters
// bindings referenced by $set/$unset clauses.
type Parsed struct {
	IsReplacement bool
	Replacement   *bson.Document
	Clauses       []Clause
	ArrayFilters  map[string]*bson.Document
}

// Parse validates update against spec.md §4.4's rules and builds a Parsed
// update ready for Apply. arrayFilterDocs is the raw arrayFilters list from
// the update command, validated via parseArrayFilters.
func Parse(updateDoc *bson.Document, arrayFilterDocs []*bson.Document) (*Parsed, error) {
	bindings, err := parseArrayFilters(arrayFilterDocs)
	if err != nil {
		return nil, err
	}

	if updateDoc == nil || updateDoc.Len() == 0 {
		return &Parsed{IsReplacement: true, Replacement: bson.NewDocument(), ArrayFilters: bindings}, nil
	}

	hasOperator, hasPlain := false, false
	for _, k := range updateDoc.Keys() {
		if strings.HasPrefix(k, "$") {
			hasOperator = true
		} else {
			hasPlain = true
		}
	}
	if hasOperator && hasPlain {
		return nil, mongoerr.BadValue("update document cannot mix update operators and replacement fields")
	}
	if !hasOperator {
		return &Parsed{IsReplacement: true, Replacement: updateDoc, ArrayFilters: bindings}, nil
	}

	clauses := make([]Clause, 0, updateDoc.Len())
	for _, pair := range updateDoc.Pairs() {
		op := pair.Key
		if !supportedOperators[op] {
			return nil, mongoerr.Unsupported("unsupported update operator %q", op)
		}
		if pair.Value.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("%s requires a document of field: value pairs", op)
		}
		fields := pair.Value.Document()
		for _, fieldPath := range fields.Keys() {
			for _, seg := range pathutil.Split(fieldPath) {
				if seg == "$" || seg == "$[]" {
					return nil, mongoerr.BadValue("positional operator %q is not supported in this core", seg)
				}
			}
			if op != "$set" && op != "$unset" && containsArrayFilterSegment(fieldPath) {
				return nil, mongoerr.BadValue("only $set and $unset may address arrayFilters identifiers, got %s on %q", op, fieldPath)
			}
		}
		clauses = append(clauses, Clause{Op: op, Fields: fields})
	}
	return &Parsed{Clauses: clauses, ArrayFilters: bindings}, nil
}

// Apply runs parsed against doc, returning an independent preview document.
// doc is never mutated. This single pass also serves as validate_applicable
// per spec.md §4.4 step 2: since Apply always operates on a clone, checking
// "would this error" and "produce the preview" are the same operation here.
func Apply(doc *bson.Document, parsed *Parsed) (*bson.Document, error) {
	preview := doc.Clone()

	if parsed.IsReplacement {
		return applyReplacement(preview, parsed.Replacement)
	}

	for _, clause := range parsed.Clauses {
		var err error
		switch clause.Op {
		case "$set":
			err = applySet(preview, clause.Fields, parsed.ArrayFilters)
		case "$unset":
			err = applyUnset(preview, clause.Fields, parsed.ArrayFilters)
		case "$inc":
			err = applyInc(preview, clause.Fields)
		case "$addToSet":
			err = applyAddToSet(preview, clause.Fields)
		case "$setOnInsert":
			// only takes effect during upsert synthesis, a no-op here
		}
		if err != nil {
			return nil, err
		}
	}
	return preview, nil
}

// ValidateApplicable runs parsed against a throwaway copy of doc and
// reports only whether it would succeed, per spec.md §4.4 step 2.
func ValidateApplicable(doc *bson.Document, parsed *Parsed) error {
	_, err := Apply(doc, parsed)
	return err
}

// Modified reports whether applying parsed to doc produced a structurally
// different document, per spec.md §4.4's modified-count rule.
func Modified(original, preview *bson.Document) bool {
	return !bson.Equal(bson.Doc(original), bson.Doc(preview))
}

func applyReplacement(preview *bson.Document, replacement *bson.Document) (*bson.Document, error) {
	id, hadID := preview.Get("_id")
	result := replacement.Clone()
	if hadID {
		if newID, has := result.Get("_id"); has {
			if !bson.Equal(newID, id) {
				return nil, mongoerr.BadValue("_id cannot be changed by a replacement update")
			}
		} else {
			result.Set("_id", id)
		}
	}
	return result, nil
}

func applySet(doc *bson.Document, fields *bson.Document, bindings map[string]*bson.Document) error {
	for _, pair := range fields.Pairs() {
		paths, err := resolveConcretePaths(doc, pathutil.Split(pair.Key), bindings)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := pathutil.SetPath(doc, p, bson.DeepCopy(pair.Value)); err != nil {
				return mongoerr.BadValue("$set %q: %v", p, err)
			}
		}
	}
	return nil
}

func applyUnset(doc *bson.Document, fields *bson.Document, bindings map[string]*bson.Document) error {
	for _, pair := range fields.Pairs() {
		paths, err := resolveConcretePaths(doc, pathutil.Split(pair.Key), bindings)
		if err != nil {
			return err
		}
		for _, p := range paths {
			pathutil.RemovePath(doc, p)
		}
	}
	return nil
}

func applyInc(doc *bson.Document, fields *bson.Document) error {
	for _, pair := range fields.Pairs() {
		if !pair.Value.IsNumeric() {
			return mongoerr.BadValue("$inc requires a numeric operand for %q", pair.Key)
		}
		resolution := pathutil.Resolve(doc, pair.Key)
		var current bson.Value
		switch {
		case !resolution.Found:
			current = bson.Int32(0)
		case len(resolution.Values) == 1 && resolution.Values[0].IsNumeric():
			current = resolution.Values[0]
		case len(resolution.Values) == 1:
			return mongoerr.BadValue("$inc target %q is not numeric", pair.Key)
		default:
			return mongoerr.BadValue("$inc target %q is ambiguous across an array fan-out", pair.Key)
		}
		summed, err := addNumeric(current, pair.Value)
		if err != nil {
			return err
		}
		if err := pathutil.SetPath(doc, pair.Key, summed); err != nil {
			return mongoerr.BadValue("$inc %q: %v", pair.Key, err)
		}
	}
	return nil
}

func applyAddToSet(doc *bson.Document, fields *bson.Document) error {
	for _, pair := range fields.Pairs() {
		resolution := pathutil.Resolve(doc, pair.Key)
		var arr []bson.Value
		switch {
		case !resolution.Found:
			arr = nil
		case len(resolution.Values) == 1 && resolution.Values[0].Kind() == bson.KindArray:
			arr = append([]bson.Value{}, resolution.Values[0].Array()...)
		default:
			return mongoerr.BadValue("$addToSet target %q is not an array", pair.Key)
		}

		toAdd := []bson.Value{pair.Value}
		if pair.Value.Kind() == bson.KindDocument {
			if eachVal, ok := pair.Value.Document().Get("$each"); ok && pair.Value.Document().Len() == 1 {
				if eachVal.Kind() != bson.KindArray {
					return mongoerr.BadValue("$addToSet $each requires an array")
				}
				toAdd = eachVal.Array()
			}
		}
		for _, v := range toAdd {
			found := false
			for _, existing := range arr {
				if bson.Equal(existing, v) {
					found = true
					break
				}
			}
			if !found {
				arr = append(arr, bson.DeepCopy(v))
			}
		}
		if err := pathutil.SetPath(doc, pair.Key, bson.Array(arr)); err != nil {
			return mongoerr.BadValue("$addToSet %q: %v", pair.Key, err)
		}
	}
	return nil
}

// SynthesizeUpsert builds the document a no-match upsert should insert, per
// spec.md §4.4: the query filter's equality clauses, then $setOnInsert,
// then the rest of the update's operator effects applied to that base (or,
// for a replacement update, the replacement document itself).
func SynthesizeUpsert(filter *bson.Document, parsed *Parsed) (*bson.Document, error) {
	base := bson.NewDocument()
	if filter != nil {
		extractEqualityClauses(filter, base)
	}

	if parsed.IsReplacement {
		result := parsed.Replacement.Clone()
		if !result.Has("_id") {
			if idv, ok := base.Get("_id"); ok {
				result.Set("_id", idv)
			}
		}
		return result, nil
	}

	for _, clause := range parsed.Clauses {
		if clause.Op != "$setOnInsert" {
			continue
		}
		for _, pair := range clause.Fields.Pairs() {
			if err := pathutil.SetPath(base, pair.Key, bson.DeepCopy(pair.Value)); err != nil {
				return nil, mongoerr.BadValue("$setOnInsert %q: %v", pair.Key, err)
			}
		}
	}

	rest := make([]Clause, 0, len(parsed.Clauses))
	for _, clause := range parsed.Clauses {
		if clause.Op != "$setOnInsert" {
			rest = append(rest, clause)
		}
	}
	return Apply(base, &Parsed{Clauses: rest, ArrayFilters: parsed.ArrayFilters})
}

func extractEqualityClauses(filter *bson.Document, target *bson.Document) {
	for _, pair := range filter.Pairs() {
		key, value := pair.Key, pair.Value
		if strings.HasPrefix(key, "$") {
			continue
		}
		switch {
		case value.Kind() == bson.KindRegex:
			continue
		case value.Kind() == bson.KindDocument && isPlainOperatorDoc(value.Document()):
			if eq, ok := value.Document().Get("$eq"); ok {
				_ = pathutil.SetPath(target, key, bson.DeepCopy(eq))
			}
		default:
			_ = pathutil.SetPath(target, key, bson.DeepCopy(value))
		}
	}
}

func isPlainOperatorDoc(d *bson.Document) bool {
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
