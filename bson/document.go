package bson

// Pair is a single key/value entry of a Document, preserving the order in
// which it was first set.
type Pair struct {
	Key   string
	Value Value
}

// Document is an order-preserving string-keyed map, mirroring a BSON
// document. The zero value is not usable; construct with NewDocument or
// DocFromPairs.
type Document struct {
	pairs []Pair
	index map[string]int
}

// NewDocument returns an empty Document.
func NewDocument() *Document {
	return &Document{index: make(map[string]int)}
}

// DocFromPairs builds a Document from an ordered list of pairs, preserving
// first-seen order the same way repeated Set calls would.
func DocFromPairs(pairs ...Pair) *Document {
	d := NewDocument()
	for _, p := range pairs {
		d.Set(p.Key, p.Value)
	}
	return d
}

// Get returns the value stored under key, if any. A nil receiver behaves
// as an empty document.
func (d *Document) Get(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	i, ok := d.index[key]
	if !ok {
		return Value{}, false
	}
	return d.pairs[i].Value, true
}

// MustGet returns the value stored under key, panicking if it is absent.
// Intended for call sites (tests, internal invariant checks) that have
// already established the key must be there.
func (d *Document) MustGet(key string) Value {
	v, ok := d.Get(key)
	if !ok {
		panic("bson: missing key " + key)
	}
	return v
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.index[key]
	return ok
}

// Set assigns value to key, preserving the position of an existing key or
// appending a new one at the end.
func (d *Document) Set(key string, value Value) {
	if i, ok := d.index[key]; ok {
		d.pairs[i].Value = value
		return
	}
	d.index[key] = len(d.pairs)
	d.pairs = append(d.pairs, Pair{Key: key, Value: value})
}

// Delete removes key if present; it is a no-op otherwise.
func (d *Document) Delete(key string) {
	i, ok := d.index[key]
	if !ok {
		return
	}
	d.pairs = append(d.pairs[:i], d.pairs[i+1:]...)
	delete(d.index, key)
	for k := i; k < len(d.pairs); k++ {
		d.index[d.pairs[k].Key] = k
	}
}

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.pairs))
	for i, p := range d.pairs {
		keys[i] = p.Key
	}
	return keys
}

// Len returns the number of entries.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.pairs)
}

// Pairs returns the entries in order. The returned slice aliases internal
// storage and must be treated as read-only.
func (d *Document) Pairs() []Pair {
	if d == nil {
		return nil
	}
	return d.pairs
}

// Range calls fn for each entry in order, stopping early if fn returns
// false.
func (d *Document) Range(fn func(key string, value Value) bool) {
	if d == nil {
		return
	}
	for _, p := range d.pairs {
		if !fn(p.Key, p.Value) {
			return
		}
	}
}

// Clone returns a deep, independent copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := &Document{
		pairs: make([]Pair, len(d.pairs)),
		index: make(map[string]int, len(d.index)),
	}
	for i, p := range d.pairs {
		cp.pairs[i] = Pair{Key: p.Key, Value: DeepCopy(p.Value)}
		cp.index[p.Key] = i
	}
	return cp
}

// Merge overlays other's fields onto d in place, following other's key
// order for any newly introduced keys.
func (d *Document) Merge(other *Document) {
	other.Range(func(key string, value Value) bool {
		d.Set(key, DeepCopy(value))
		return true
	})
}
