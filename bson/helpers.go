package bson

// P is shorthand for constructing a Pair, used heavily when building
// Documents inline (bson.DocFromPairs(bson.P("_id", bson.Int64(1)), ...)).
func P(key string, v Value) Pair { return Pair{Key: key, Value: v} }

// FromInt wraps a native int as an Int64 value, the common case when
// translating Go literals in tests and command construction.
func FromInt(n int) Value { return Int64(int64(n)) }

// ValuesEqual reports whether two slices of values are equal element-wise
// and in the same order.
func ValuesEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// CloneValues returns an independent deep copy of a value slice.
func CloneValues(vs []Value) []Value {
	cp := make([]Value, len(vs))
	for i, v := range vs {
		cp[i] = DeepCopy(v)
	}
	return cp
}
