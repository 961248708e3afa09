package bson

// DeepCopy returns a value with identical structure to v, sharing no
// mutable storage with it. Immutable leaves (numbers, strings, ObjectIds,
// dates, regexes) are returned as-is since Value is passed by value for
// those kinds; arrays and documents are copied element-by-element /
// key-by-key, and binary payloads are copied byte-for-byte.
func DeepCopy(v Value) Value {
	switch v.kind {
	case KindArray:
		cp := make([]Value, len(v.arr))
		for i, e := range v.arr {
			cp[i] = DeepCopy(e)
		}
		return Value{kind: KindArray, arr: cp}
	case KindDocument:
		return Doc(v.doc.Clone())
	case KindBinary:
		data := make([]byte, len(v.bin.Data))
		copy(data, v.bin.Data)
		return Value{kind: KindBinary, bin: Binary{Subtype: v.bin.Subtype, Data: data}}
	default:
		return v
	}
}

// DeepCopyDocument is a convenience wrapper for the common case of copying
// a whole stored document.
func DeepCopyDocument(d *Document) *Document {
	return d.Clone()
}
