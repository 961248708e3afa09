// Package bson implements the document/value model shared by every part of
// the in-memory engine: a tagged variant Value type with MongoDB-compatible
// equality and ordering, an order-preserving Document, and ObjectId helpers
// compatible with the classic mgo API.
package bson

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind identifies which variant a Value currently holds. Kept as an
// explicit enum (rather than discovered via reflection) so that matching,
// comparison and update code can switch on it directly.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindDouble
	KindDecimal128
	KindString
	KindBinary
	KindObjectID
	KindDateTime
	KindRegex
	KindArray
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindDecimal128:
		return "decimal128"
	case KindString:
		return "string"
	case KindBinary:
		return "binData"
	case KindObjectID:
		return "objectId"
	case KindDateTime:
		return "date"
	case KindRegex:
		return "regex"
	case KindArray:
		return "array"
	case KindDocument:
		return "object"
	default:
		return "unknown"
	}
}

// Binary is the payload of a KindBinary Value.
type Binary struct {
	Subtype byte
	Data    []byte
}

// Regex is the payload of a KindRegex Value. Options is the raw flag
// string as given by the caller (e.g. "imsxu"); it is validated and
// compiled lazily by internal/match.
type Regex struct {
	Pattern string
	Options string
}

// Value is a sum type over every BSON-like value this engine understands.
// Zero value is Null.
type Value struct {
	kind Kind

	boolean bool
	i32     int32
	i64     int64
	f64     float64
	dec     primitive.Decimal128
	str     string
	bin     Binary
	oid     primitive.ObjectID
	dt      primitive.DateTime
	rx      Regex
	arr     []Value
	doc     *Document
}

// Null returns the Null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Int32 wraps a 32-bit integer.
func Int32(n int32) Value { return Value{kind: KindInt32, i32: n} }

// Int64 wraps a 64-bit integer.
func Int64(n int64) Value { return Value{kind: KindInt64, i64: n} }

// Double wraps a 64-bit float, including NaN and +/-Inf.
func Double(f float64) Value { return Value{kind: KindDouble, f64: f} }

// Decimal128 wraps a high-precision decimal value.
func Decimal128(d primitive.Decimal128) Value { return Value{kind: KindDecimal128, dec: d} }

// DecimalFromString parses a decimal literal into a Decimal128 Value.
func DecimalFromString(s string) (Value, error) {
	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		return Value{}, fmt.Errorf("bson: invalid decimal128 literal %q: %w", s, err)
	}
	return Decimal128(d), nil
}

// String wraps a UTF-8 string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// NewBinary wraps a binary payload with its BSON subtype.
func NewBinary(subtype byte, data []byte) Value {
	return Value{kind: KindBinary, bin: Binary{Subtype: subtype, Data: data}}
}

// ObjectID wraps an existing driver ObjectID.
func ObjectID(oid primitive.ObjectID) Value { return Value{kind: KindObjectID, oid: oid} }

// NewObjectId generates a fresh ObjectId value (mgo-compatible name).
func NewObjectId() Value { return ObjectID(primitive.NewObjectID()) }

// ObjectIdHex parses a 24-character hex string into an ObjectId value. It
// panics on malformed input, matching the classic mgo driver's behavior.
func ObjectIdHex(s string) Value {
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		panic(fmt.Sprintf("bson: invalid input to ObjectIdHex: %q", s))
	}
	return ObjectID(oid)
}

// IsObjectIdHex reports whether s is a valid 24-character ObjectId hex
// string.
func IsObjectIdHex(s string) bool {
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}

// DateTime wraps a time.Time, truncating to millisecond precision the way
// BSON dates do.
func DateTime(t time.Time) Value {
	return Value{kind: KindDateTime, dt: primitive.NewDateTimeFromTime(t)}
}

// DateTimeRaw wraps an already-converted driver DateTime.
func DateTimeRaw(dt primitive.DateTime) Value { return Value{kind: KindDateTime, dt: dt} }

// NewRegex wraps a pattern/options pair.
func NewRegex(pattern, options string) Value {
	return Value{kind: KindRegex, rx: Regex{Pattern: pattern, Options: options}}
}

// Array wraps a slice of values taken by reference; callers that need
// isolation should DeepCopy the result.
func Array(vals []Value) Value { return Value{kind: KindArray, arr: vals} }

// Doc wraps an existing Document.
func Doc(d *Document) Value { return Value{kind: KindDocument, doc: d} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the Null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether v holds one of the numeric variants.
func (v Value) IsNumeric() bool {
	switch v.kind {
	case KindInt32, KindInt64, KindDouble, KindDecimal128:
		return true
	default:
		return false
	}
}

// Bool returns the boolean payload; callers must check Kind first.
func (v Value) Bool() bool { return v.boolean }

// Int32 returns the int32 payload.
func (v Value) Int32() int32 { return v.i32 }

// Int64 returns the int64 payload.
func (v Value) Int64() int64 { return v.i64 }

// Double returns the float64 payload.
func (v Value) Double() float64 { return v.f64 }

// Decimal128 returns the Decimal128 payload.
func (v Value) Decimal128() primitive.Decimal128 { return v.dec }

// Str returns the string payload.
func (v Value) Str() string { return v.str }

// Binary returns the binary payload.
func (v Value) Binary() Binary { return v.bin }

// ObjectID returns the ObjectID payload.
func (v Value) ObjectID() primitive.ObjectID { return v.oid }

// Hex returns the hex representation of an ObjectId-kind value.
func (v Value) Hex() string { return v.oid.Hex() }

// DateTime returns the raw driver DateTime payload.
func (v Value) DateTime() primitive.DateTime { return v.dt }

// Time converts the DateTime payload to a time.Time.
func (v Value) Time() time.Time { return v.dt.Time() }

// Regex returns the regex payload.
func (v Value) Regex() Regex { return v.rx }

// Array returns the array payload; the returned slice aliases the
// underlying storage and must not be mutated by callers that don't own it.
func (v Value) Array() []Value { return v.arr }

// Document returns the document payload.
func (v Value) Document() *Document { return v.doc }

// Truthy implements MongoDB's notion of a "truthy" value used by $expr's
// boolean operators: everything except false, null/missing and the
// numeric value 0 is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.boolean
	case KindInt32:
		return v.i32 != 0
	case KindInt64:
		return v.i64 != 0
	case KindDouble:
		return v.f64 != 0
	case KindDecimal128:
		return v.dec.String() != "0" && v.dec.String() != "-0"
	default:
		return true
	}
}
