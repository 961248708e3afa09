// Package pathutil resolves dotted/array-indexed paths against bson
// documents, the way spec.md §4.2 describes: fanning out across array
// elements when a path segment lands on an array of subdocuments, and
// indexing directly when the segment is a numeric string.
package pathutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kinfkong/modern-mgo/bson"
)

// Resolution is the result of resolving a path against a document: either
// missing, or existing with one or more candidate leaf values (more than
// one only when the path fanned out across an array).
type Resolution struct {
	Found  bool
	Values []bson.Value
}

// Split breaks a dotted path into its segments.
func Split(path string) []string {
	return strings.Split(path, ".")
}

// ParseIndex reports whether s is a valid non-negative array index
// (digits only, as MongoDB requires for numeric path segments).
func ParseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Resolve resolves path against doc, fanning out across arrays of
// subdocuments and indexing numerically into arrays where the segment is
// a digit string.
func Resolve(doc *bson.Document, path string) Resolution {
	return resolveValue(bson.Doc(doc), Split(path))
}

// ResolveValue resolves path starting from an arbitrary root value (used
// by $expr and other expression evaluators whose root isn't necessarily a
// stored document, e.g. the result of a previous pipeline stage).
func ResolveValue(root bson.Value, path string) Resolution {
	return resolveValue(root, Split(path))
}

func resolveValue(root bson.Value, segments []string) Resolution {
	current := []bson.Value{root}
	for _, seg := range segments {
		var next []bson.Value
		for _, node := range current {
			switch node.Kind() {
			case bson.KindDocument:
				if v, ok := node.Document().Get(seg); ok {
					next = append(next, v)
				}
			case bson.KindArray:
				arr := node.Array()
				if idx, ok := ParseIndex(seg); ok {
					if idx >= 0 && idx < len(arr) {
						next = append(next, arr[idx])
					}
					continue
				}
				for _, elem := range arr {
					if elem.Kind() == bson.KindDocument {
						if v, ok := elem.Document().Get(seg); ok {
							next = append(next, v)
						}
					}
				}
			default:
				// scalar: cannot traverse further, contributes nothing
			}
		}
		if len(next) == 0 {
			return Resolution{Found: false}
		}
		current = next
	}
	return Resolution{Found: true, Values: current}
}

// First returns the first candidate value, used by code that only cares
// about a single leaf (e.g. $expr field paths and unique-index key
// extraction).
func (r Resolution) First() (bson.Value, bool) {
	if !r.Found || len(r.Values) == 0 {
		return bson.Value{}, false
	}
	return r.Values[0], true
}

// SetPath assigns value at path inside doc, creating intermediate
// documents for missing segments. It raises an error rather than
// replacing a non-document, non-array intermediate, and rather than
// traversing a non-numeric segment into an array.
func SetPath(doc *bson.Document, path string, value bson.Value) error {
	return setSegments(bson.Doc(doc), Split(path), value)
}

func setSegments(container bson.Value, segments []string, value bson.Value) error {
	seg := segments[0]
	rest := segments[1:]

	switch container.Kind() {
	case bson.KindDocument:
		d := container.Document()
		if len(rest) == 0 {
			d.Set(seg, value)
			return nil
		}
		existing, ok := d.Get(seg)
		if !ok {
			nested := bson.NewDocument()
			d.Set(seg, bson.Doc(nested))
			return setSegments(bson.Doc(nested), rest, value)
		}
		if existing.Kind() != bson.KindDocument && existing.Kind() != bson.KindArray {
			return fmt.Errorf("pathutil: cannot set path through non-document field %q (kind %s)", seg, existing.Kind())
		}
		return setSegments(existing, rest, value)
	case bson.KindArray:
		idx, ok := ParseIndex(seg)
		if !ok {
			return fmt.Errorf("pathutil: cannot traverse array with non-numeric segment %q", seg)
		}
		arr := container.Array()
		if idx < 0 || idx >= len(arr) {
			return fmt.Errorf("pathutil: array index %d out of range (len %d)", idx, len(arr))
		}
		if len(rest) == 0 {
			arr[idx] = value
			return nil
		}
		elem := arr[idx]
		if elem.Kind() != bson.KindDocument && elem.Kind() != bson.KindArray {
			return fmt.Errorf("pathutil: cannot set path through non-document array element at index %d (kind %s)", idx, elem.Kind())
		}
		return setSegments(elem, rest, value)
	default:
		return fmt.Errorf("pathutil: cannot set path segment %q on a %s value", seg, container.Kind())
	}
}

// RemovePath deletes the field at path inside doc. It is a no-op if any
// segment along the path is missing.
func RemovePath(doc *bson.Document, path string) {
	removeSegments(bson.Doc(doc), Split(path))
}

func removeSegments(container bson.Value, segments []string) {
	seg := segments[0]
	rest := segments[1:]

	switch container.Kind() {
	case bson.KindDocument:
		d := container.Document()
		if len(rest) == 0 {
			d.Delete(seg)
			return
		}
		existing, ok := d.Get(seg)
		if !ok {
			return
		}
		removeSegments(existing, rest)
	case bson.KindArray:
		idx, ok := ParseIndex(seg)
		if !ok {
			return
		}
		arr := container.Array()
		if idx < 0 || idx >= len(arr) {
			return
		}
		if len(rest) == 0 {
			arr[idx] = bson.Null()
			return
		}
		removeSegments(arr[idx], rest)
	default:
		return
	}
}
