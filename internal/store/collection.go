package store

import (
	"strconv"
	"sync"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/agg"
	"github.com/kinfkong/modern-mgo/internal/match"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/pathutil"
	"github.com/kinfkong/modern-mgo/internal/update"
)

// CollectionStore owns one namespace's document sequence and index
// metadata. Every exported operation holds coll for its duration, per
// spec.md §5's per-collection coarse locking rule.
type CollectionStore struct {
	mu      sync.Mutex
	docs    []*bson.Document
	indexes []IndexDefinition
}

// NewCollectionStore returns an empty collection store.
func NewCollectionStore() *CollectionStore {
	return &CollectionStore{}
}

// InsertMany validates docs against every unique index over the candidate
// post-state (existing documents plus the new batch) and, if that holds,
// appends deep copies of docs. The batch is all-or-nothing.
func (c *CollectionStore) InsertMany(docs []*bson.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prepared := make([]*bson.Document, len(docs))
	for i, d := range docs {
		cp := d.Clone()
		if !cp.Has("_id") {
			cp.Set("_id", bson.NewObjectId())
		}
		prepared[i] = cp
	}

	candidate := make([]*bson.Document, 0, len(c.docs)+len(prepared))
	candidate = append(candidate, c.docs...)
	candidate = append(candidate, prepared...)
	if err := c.validateUnique(candidate); err != nil {
		return err
	}

	c.docs = candidate
	return nil
}

// CreateIndexes rejects blank keys. A blank name is not rejected: it is
// replaced by one derived from the key (e.g. email_1, a_1_b_-1). Creation
// is idempotent for an existing name, and any new unique index is
// validated against the current documents before it is admitted.
func (c *CollectionStore) CreateIndexes(defs []IndexDefinition) (*IndexesResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.indexes)
	for _, def := range defs {
		if def.Key == nil || def.Key.Len() == 0 {
			return nil, mongoerr.BadValue("createIndexes: index key must not be blank")
		}
		name := def.Name
		if name == "" {
			name = defaultIndexName(def.Key)
			def.Name = name
		}
		if c.hasIndexNamed(name) {
			continue
		}
		if def.Unique {
			if err := validateUniqueAgainstIndex(c.docs, def); err != nil {
				return nil, err
			}
		}
		c.indexes = append(c.indexes, def)
	}
	return &IndexesResult{NumIndexesBefore: before, NumIndexesAfter: len(c.indexes)}, nil
}

func (c *CollectionStore) hasIndexNamed(name string) bool {
	for _, idx := range c.indexes {
		if idx.Name == name {
			return true
		}
	}
	return false
}

func defaultIndexName(key *bson.Document) string {
	name := ""
	for _, p := range key.Pairs() {
		if name != "" {
			name += "_"
		}
		dir := "1"
		if p.Value.IsNumeric() && numericIsNegative(p.Value) {
			dir = "-1"
		}
		name += p.Key + "_" + dir
	}
	return name
}

func numericIsNegative(v bson.Value) bool {
	switch v.Kind() {
	case bson.KindInt32:
		return v.Int32() < 0
	case bson.KindInt64:
		return v.Int64() < 0
	case bson.KindDouble:
		return v.Double() < 0
	default:
		return false
	}
}

// ListIndexes returns metadata copies of every registered index.
func (c *CollectionStore) ListIndexes() []IndexDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]IndexDefinition, len(c.indexes))
	copy(out, c.indexes)
	return out
}

// Find returns copies of every document matching filter, in insertion
// order.
func (c *CollectionStore) Find(filter *bson.Document, collation *bson.Collation) ([]*bson.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*bson.Document
	for _, d := range c.docs {
		ok, err := match.Matches(d, filter, collation)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

// Update applies updateDoc to every document matching filter (or only the
// first, in insertion order, when multi is false). If no document matches
// and upsert is set, an insert is synthesized from filter's equality
// clauses, $setOnInsert and operator effects. The whole candidate
// post-state is re-validated against unique indexes before anything
// mutates.
func (c *CollectionStore) Update(filter, updateDoc *bson.Document, multi, upsert bool, arrayFilters []*bson.Document, collation *bson.Collation) (*UpdateResult, error) {
	parsed, err := update.Parse(updateDoc, arrayFilters)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var matchedIdx []int
	for i, d := range c.docs {
		ok, err := match.Matches(d, filter, collation)
		if err != nil {
			return nil, err
		}
		if ok {
			matchedIdx = append(matchedIdx, i)
			if !multi {
				break
			}
		}
	}

	if len(matchedIdx) == 0 {
		if !upsert {
			return &UpdateResult{}, nil
		}
		newDoc, err := update.SynthesizeUpsert(filter, parsed)
		if err != nil {
			return nil, err
		}
		if !newDoc.Has("_id") {
			newDoc.Set("_id", bson.NewObjectId())
		}
		candidate := append(append([]*bson.Document{}, c.docs...), newDoc)
		if err := c.validateUnique(candidate); err != nil {
			return nil, err
		}
		c.docs = candidate
		return &UpdateResult{UpsertedID: newDoc.MustGet("_id"), Upserted: true}, nil
	}

	previews := make([]*bson.Document, len(c.docs))
	copy(previews, c.docs)
	modified := 0
	for _, i := range matchedIdx {
		preview, err := update.Apply(c.docs[i], parsed)
		if err != nil {
			return nil, err
		}
		if update.Modified(c.docs[i], preview) {
			modified++
		}
		previews[i] = preview
	}

	if err := c.validateUnique(previews); err != nil {
		return nil, err
	}

	c.docs = previews
	return &UpdateResult{MatchedCount: len(matchedIdx), ModifiedCount: modified}, nil
}

// DeleteMany removes every document matching filter.
func (c *CollectionStore) DeleteMany(filter *bson.Document, collation *bson.Collation) (*DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]*bson.Document, 0, len(c.docs))
	removed := 0
	for _, d := range c.docs {
		ok, err := match.Matches(d, filter, collation)
		if err != nil {
			return nil, err
		}
		if ok {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	c.docs = kept
	return &DeleteResult{MatchedCount: removed, DeletedCount: removed}, nil
}

// Aggregate runs pipeline over a deep copy of the collection's current
// documents.
func (c *CollectionStore) Aggregate(pipeline []*bson.Document, resolver agg.CollectionResolver, collation *bson.Collation) ([]*bson.Document, error) {
	c.mu.Lock()
	snapshot := make([]*bson.Document, len(c.docs))
	for i, d := range c.docs {
		snapshot[i] = d.Clone()
	}
	c.mu.Unlock()

	return agg.Run(snapshot, pipeline, resolver, collation)
}

// snapshot returns deep copies of every stored document, for engine-level
// snapshotting; callers must not hold c.mu.
func (c *CollectionStore) snapshot() []*bson.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*bson.Document, len(c.docs))
	for i, d := range c.docs {
		out[i] = d.Clone()
	}
	return out
}

func (c *CollectionStore) indexSnapshot() []IndexDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]IndexDefinition, len(c.indexes))
	copy(out, c.indexes)
	return out
}

// replaceWith atomically swaps this store's contents for docs/indexes,
// used when merging a transaction snapshot back into the engine store.
func (c *CollectionStore) replaceWith(docs []*bson.Document, indexes []IndexDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = docs
	c.indexes = indexes
}

// ReplaceDocs atomically replaces this store's document sequence with docs,
// leaving indexes untouched. Used by the transaction manager to merge a
// committed transaction's writes back into the live store; the merge trusts
// the transaction's own snapshot-isolated validation rather than
// revalidating unique indexes a second time (spec.md §4.9).
func (c *CollectionStore) ReplaceDocs(docs []*bson.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = docs
}

func keyValue(d *bson.Document, field string) bson.Value {
	r := pathutil.Resolve(d, field)
	if v, ok := r.First(); ok {
		return v
	}
	return bson.Null()
}

// validateUnique checks docs (a full candidate post-state) against every
// unique index registered on this store; a missing key path is treated as
// Null, and Null collides with Null (spec.md §4.7: sparse unsupported).
func (c *CollectionStore) validateUnique(docs []*bson.Document) error {
	for _, idx := range c.indexes {
		if err := validateUniqueAgainstIndex(docs, idx); err != nil {
			return err
		}
	}
	return nil
}

func validateUniqueAgainstIndex(docs []*bson.Document, idx IndexDefinition) error {
	if !idx.Unique || idx.Key == nil || idx.Key.Len() == 0 {
		return nil
	}
	field := idx.Key.Pairs()[0].Key
	seen := make([]bson.Value, 0, len(docs))
	for _, d := range docs {
		key := keyValue(d, field)
		for _, s := range seen {
			if bson.Equal(s, key) {
				return mongoerr.DuplicateKey("E11000 duplicate key error collection index: %s dup key: { %s: %s }", idx.Name, field, describeKey(key))
			}
		}
		seen = append(seen, key)
	}
	return nil
}

func describeKey(v bson.Value) string {
	switch v.Kind() {
	case bson.KindString:
		return strconv.Quote(v.Str())
	case bson.KindNull:
		return "null"
	default:
		return v.Kind().String()
	}
}
