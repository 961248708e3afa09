package bson

import (
	"bytes"
	"math"
	"math/big"
	"strings"
)

// Collation carries the subset of MongoDB's collation document this engine
// honors: a locale (empty or "simple" means binary comparison) and a
// strength that, at level 1 or 2 without case level, makes string
// comparisons case-insensitive. It deliberately does not implement full
// ICU collation — see spec open questions.
type Collation struct {
	Locale    string
	Strength  int
	CaseLevel bool
}

// usesCaseInsensitive reports whether c configures a case-insensitive
// binary fold, the only non-default behavior this engine implements.
func (c *Collation) usesCaseInsensitive() bool {
	return c != nil && c.Locale != "" && c.Locale != "simple" &&
		c.Strength > 0 && c.Strength <= 2 && !c.CaseLevel
}

// CompareStrings compares two strings under the given collation (nil or
// "simple" means plain binary comparison).
func CompareStrings(a, b string, collation *Collation) int {
	if collation.usesCaseInsensitive() {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	}
	return strings.Compare(a, b)
}

// typeRank assigns each Kind its position in MongoDB's canonical BSON type
// ordering: Null < Number < String < Document < Array < Binary < ObjectId <
// Bool < Date < Regex.
func typeRank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindInt32, KindInt64, KindDouble, KindDecimal128:
		return 1
	case KindString:
		return 2
	case KindDocument:
		return 3
	case KindArray:
		return 4
	case KindBinary:
		return 5
	case KindObjectID:
		return 6
	case KindBool:
		return 7
	case KindDateTime:
		return 8
	case KindRegex:
		return 9
	default:
		return 10
	}
}

// decimalToBigFloat converts a Decimal128 to an arbitrary-precision float
// via its canonical string form; malformed values (which the driver should
// never produce) fall back to zero.
func decimalToBigFloat(d Value) *big.Float {
	s := d.dec.String()
	f, _, err := big.ParseFloat(s, 10, 200, big.ToNearestEven)
	if err != nil {
		return big.NewFloat(0)
	}
	return f
}

// toBigFloat converts a numeric Value to an arbitrary-precision float. The
// second return value is true when the value is a Double NaN, which
// big.Float cannot represent.
func toBigFloat(v Value) (*big.Float, bool) {
	switch v.kind {
	case KindInt32:
		return new(big.Float).SetPrec(200).SetInt64(int64(v.i32)), false
	case KindInt64:
		return new(big.Float).SetPrec(200).SetInt64(v.i64), false
	case KindDouble:
		if math.IsNaN(v.f64) {
			return nil, true
		}
		return new(big.Float).SetPrec(200).SetFloat64(v.f64), false
	case KindDecimal128:
		return decimalToBigFloat(v), false
	default:
		return big.NewFloat(0), false
	}
}

// compareNumeric compares two numeric values by magnitude across their
// (possibly different) numeric sub-kinds. The second return is always
// true; when either operand is NaN the result follows MongoDB's convention
// that NaN sorts below every other number and equal to another NaN.
func compareNumeric(a, b Value) (int, bool) {
	af, aNaN := toBigFloat(a)
	bf, bNaN := toBigFloat(b)
	if aNaN || bNaN {
		switch {
		case aNaN && bNaN:
			return 0, true
		case aNaN:
			return -1, true
		default:
			return 1, true
		}
	}
	return af.Cmp(bf), true
}

func compareBinary(a, b Binary) int {
	if len(a.Data) != len(b.Data) {
		if len(a.Data) < len(b.Data) {
			return -1
		}
		return 1
	}
	if c := bytes.Compare(a.Data, b.Data); c != 0 {
		return c
	}
	switch {
	case a.Subtype < b.Subtype:
		return -1
	case a.Subtype > b.Subtype:
		return 1
	default:
		return 0
	}
}

func compareArrays(a, b []Value, collation *Collation) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := CompareWithCollation(a[i], b[i], collation); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func compareDocuments(a, b *Document, collation *Collation) int {
	ap, bp := a.Pairs(), b.Pairs()
	n := len(ap)
	if len(bp) < n {
		n = len(bp)
	}
	for i := 0; i < n; i++ {
		if c := strings.Compare(ap[i].Key, bp[i].Key); c != 0 {
			return c
		}
		if c := CompareWithCollation(ap[i].Value, bp[i].Value, collation); c != 0 {
			return c
		}
	}
	switch {
	case len(ap) < len(bp):
		return -1
	case len(ap) > len(bp):
		return 1
	default:
		return 0
	}
}

// Compare orders a and b under MongoDB's canonical type ordering and
// binary string comparison.
func Compare(a, b Value) int { return CompareWithCollation(a, b, nil) }

// CompareWithCollation orders a and b, applying collation to any string
// comparisons (including string keys/leaves nested in documents/arrays).
func CompareWithCollation(a, b Value, collation *Collation) int {
	ra, rb := typeRank(a.kind), typeRank(b.kind)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch a.kind {
	case KindNull:
		return 0
	case KindInt32, KindInt64, KindDouble, KindDecimal128:
		cmp, _ := compareNumeric(a, b)
		return cmp
	case KindString:
		return CompareStrings(a.str, b.str, collation)
	case KindDocument:
		return compareDocuments(a.doc, b.doc, collation)
	case KindArray:
		return compareArrays(a.arr, b.arr, collation)
	case KindBinary:
		return compareBinary(a.bin, b.bin)
	case KindObjectID:
		return bytes.Compare(a.oid[:], b.oid[:])
	case KindBool:
		switch {
		case a.boolean == b.boolean:
			return 0
		case !a.boolean:
			return -1
		default:
			return 1
		}
	case KindDateTime:
		switch {
		case a.dt < b.dt:
			return -1
		case a.dt > b.dt:
			return 1
		default:
			return 0
		}
	case KindRegex:
		if c := strings.Compare(a.rx.Pattern, b.rx.Pattern); c != 0 {
			return c
		}
		return strings.Compare(a.rx.Options, b.rx.Options)
	default:
		return 0
	}
}

// Equal reports whether a and b are structurally equal. Numeric values
// compare by magnitude across sub-kinds (Int32 1 == Int64 1 == Double 1.0);
// every other kind requires an exact Kind match.
func Equal(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		cmp, ok := compareNumeric(a, b)
		return ok && cmp == 0
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolean == b.boolean
	case KindString:
		return a.str == b.str
	case KindBinary:
		return a.bin.Subtype == b.bin.Subtype && bytes.Equal(a.bin.Data, b.bin.Data)
	case KindObjectID:
		return a.oid == b.oid
	case KindDateTime:
		return a.dt == b.dt
	case KindRegex:
		return a.rx == b.rx
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindDocument:
		return documentsEqual(a.doc, b.doc)
	default:
		return false
	}
}

func documentsEqual(a, b *Document) bool {
	ap, bp := a.Pairs(), b.Pairs()
	if len(ap) != len(bp) {
		return false
	}
	for i := range ap {
		if ap[i].Key != bp[i].Key {
			return false
		}
		if !Equal(ap[i].Value, bp[i].Value) {
			return false
		}
	}
	return true
}
