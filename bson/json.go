package bson

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// This file bridges Value/Document to JSON using a MongoDB Extended-JSON
// style encoding for the variants plain JSON can't represent natively
// (ObjectId, Decimal128, BinData, Date, Regex, and Double's NaN/+-Inf).
// It exists so collaborators can hand the dispatcher parsed command
// documents without a binary wire codec (cmd/mongomem's REPL is the only
// thing in this repo that uses it) — it is not itself the wire protocol
// spec.md excludes.

// ParseDocument decodes a single JSON object into an order-preserving
// Document.
func ParseDocument(data []byte) (*Document, error) {
	d := NewDocument()
	if err := d.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseValue decodes an arbitrary JSON value into a Value.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.boolean {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindInt32:
		return []byte(strconv.FormatInt(int64(v.i32), 10)), nil
	case KindInt64:
		return []byte(strconv.FormatInt(v.i64, 10)), nil
	case KindDouble:
		switch {
		case math.IsNaN(v.f64):
			return wrap1("$numberDouble", String("NaN")).MarshalJSON()
		case math.IsInf(v.f64, 1):
			return wrap1("$numberDouble", String("Infinity")).MarshalJSON()
		case math.IsInf(v.f64, -1):
			return wrap1("$numberDouble", String("-Infinity")).MarshalJSON()
		default:
			return []byte(strconv.FormatFloat(v.f64, 'g', -1, 64)), nil
		}
	case KindDecimal128:
		return wrap1("$numberDecimal", String(v.dec.String())).MarshalJSON()
	case KindString:
		return json.Marshal(v.str)
	case KindBinary:
		inner := DocFromPairs(
			Pair{Key: "base64", Value: String(base64.StdEncoding.EncodeToString(v.bin.Data))},
			Pair{Key: "subType", Value: String(fmt.Sprintf("%02x", v.bin.Subtype))},
		)
		return wrap1("$binary", Doc(inner)).MarshalJSON()
	case KindObjectID:
		return wrap1("$oid", String(v.oid.Hex())).MarshalJSON()
	case KindDateTime:
		return wrap1("$date", Int64(int64(v.dt))).MarshalJSON()
	case KindRegex:
		return DocFromPairs(
			Pair{Key: "$regex", Value: String(v.rx.Pattern)},
			Pair{Key: "$options", Value: String(v.rx.Options)},
		).MarshalJSON()
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindDocument:
		return v.doc.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

func wrap1(key string, value Value) *Document {
	return DocFromPairs(Pair{Key: key, Value: value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// MarshalJSON implements json.Marshaler, preserving field order.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range d.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := p.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving field order via a
// token-based decode instead of going through map[string]interface{}.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if v.Kind() != KindDocument {
		return fmt.Errorf("bson: expected a JSON object, got %s", v.Kind())
	}
	*d = *v.Document()
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int64(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("bson: invalid JSON number %q: %w", t, err)
		}
		return Double(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			var arr []Value
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return Array(arr), nil
		case '{':
			doc := NewDocument()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("bson: expected object key, got %v", keyTok)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				doc.Set(key, v)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return resolveExtendedJSON(doc), nil
		default:
			return Value{}, fmt.Errorf("bson: unexpected JSON delimiter %q", t)
		}
	default:
		return Value{}, fmt.Errorf("bson: unexpected JSON token %v (%T)", tok, tok)
	}
}

// resolveExtendedJSON recognizes the small set of Extended-JSON wrapper
// objects this package emits and turns them back into the Value they
// represent; anything else is left as a plain document.
func resolveExtendedJSON(doc *Document) Value {
	if doc.Len() == 1 {
		if v, ok := doc.Get("$oid"); ok && v.Kind() == KindString {
			if oid, err := primitive.ObjectIDFromHex(v.Str()); err == nil {
				return ObjectID(oid)
			}
		}
		if v, ok := doc.Get("$numberDecimal"); ok && v.Kind() == KindString {
			if dv, err := DecimalFromString(v.Str()); err == nil {
				return dv
			}
		}
		if v, ok := doc.Get("$numberLong"); ok && v.Kind() == KindString {
			if i, err := strconv.ParseInt(v.Str(), 10, 64); err == nil {
				return Int64(i)
			}
		}
		if v, ok := doc.Get("$numberDouble"); ok && v.Kind() == KindString {
			switch v.Str() {
			case "NaN":
				return Double(math.NaN())
			case "Infinity":
				return Double(math.Inf(1))
			case "-Infinity":
				return Double(math.Inf(-1))
			}
		}
		if v, ok := doc.Get("$date"); ok {
			switch v.Kind() {
			case KindInt64:
				return DateTimeRaw(primitive.DateTime(v.Int64()))
			case KindString:
				if t, err := time.Parse(time.RFC3339, v.Str()); err == nil {
					return DateTime(t)
				}
			}
		}
		if v, ok := doc.Get("$binary"); ok && v.Kind() == KindDocument {
			b64, ok1 := v.Document().Get("base64")
			st, ok2 := v.Document().Get("subType")
			if ok1 && ok2 && b64.Kind() == KindString && st.Kind() == KindString {
				data, err := base64.StdEncoding.DecodeString(b64.Str())
				subtype, errSub := strconv.ParseUint(st.Str(), 16, 8)
				if err == nil && errSub == nil {
					return NewBinary(byte(subtype), data)
				}
			}
		}
	}
	if doc.Len() == 2 {
		p, ok1 := doc.Get("$regex")
		o, ok2 := doc.Get("$options")
		if ok1 && ok2 && p.Kind() == KindString && o.Kind() == KindString {
			return NewRegex(p.Str(), o.Str())
		}
	}
	return Doc(doc)
}
