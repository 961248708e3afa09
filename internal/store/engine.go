package store

import (
	"sort"
	"sync"

	"github.com/kinfkong/modern-mgo/bson"
)

// EngineStore is a thread-safe map of namespace ("database.collection") to
// collection store, per spec.md §4.8. Namespaces are created lazily on
// first access.
type EngineStore struct {
	mu          sync.RWMutex
	collections map[string]*CollectionStore
}

// NewEngineStore returns an empty engine store.
func NewEngineStore() *EngineStore {
	return &EngineStore{collections: make(map[string]*CollectionStore)}
}

// Collection returns the store for ns, creating it if this is the first
// access.
func (e *EngineStore) Collection(ns string) *CollectionStore {
	e.mu.RLock()
	c, ok := e.collections[ns]
	e.mu.RUnlock()
	if ok {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok = e.collections[ns]; ok {
		return c
	}
	c = NewCollectionStore()
	e.collections[ns] = c
	return c
}

// CollectionExists reports whether ns has been accessed before, without
// creating it.
func (e *EngineStore) CollectionExists(ns string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.collections[ns]
	return ok
}

// Namespaces lists every namespace created so far.
func (e *EngineStore) Namespaces() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.collections))
	for ns := range e.collections {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// snapshotEntry is one namespace's deep-copied contents, used both for
// EngineStore.Snapshot and for transaction snapshots.
type snapshotEntry struct {
	docs    []*bson.Document
	indexes []IndexDefinition
}

// Snapshot is a deep value-copy of every collection's contents: mutating
// it never touches the source engine store and vice versa.
type Snapshot struct {
	entries map[string]snapshotEntry
}

// Snapshot captures the current state of every namespace.
func (e *EngineStore) Snapshot() *Snapshot {
	e.mu.RLock()
	namespaces := make(map[string]*CollectionStore, len(e.collections))
	for ns, c := range e.collections {
		namespaces[ns] = c
	}
	e.mu.RUnlock()

	entries := make(map[string]snapshotEntry, len(namespaces))
	for ns, c := range namespaces {
		entries[ns] = snapshotEntry{docs: c.snapshot(), indexes: c.indexSnapshot()}
	}
	return &Snapshot{entries: entries}
}

// Collection returns copies of every document in ns within the snapshot,
// or nil if the namespace wasn't present when the snapshot was taken.
func (s *Snapshot) Collection(ns string) []*bson.Document {
	entry, ok := s.entries[ns]
	if !ok {
		return nil
	}
	out := make([]*bson.Document, len(entry.docs))
	for i, d := range entry.docs {
		out[i] = d.Clone()
	}
	return out
}

// Namespaces lists every namespace captured in the snapshot.
func (s *Snapshot) Namespaces() []string {
	out := make([]string, 0, len(s.entries))
	for ns := range s.entries {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// ReplaceWith atomically swaps the contents of every namespace present in
// other onto e, used when a transaction commits.
func (e *EngineStore) ReplaceWith(other *Snapshot) {
	namespaces := other.Namespaces()
	for _, ns := range namespaces {
		entry := other.entries[ns]
		e.Collection(ns).replaceWith(entry.docs, entry.indexes)
	}
}

// collectionResolver adapts an EngineStore to
// agg.CollectionResolver for a given database, so that $lookup etc. can
// resolve bare collection names within that database.
type collectionResolver struct {
	engine *EngineStore
	db     string
}

// CollectionResolver returns a resolver scoped to db, for aggregation
// stages that need cross-namespace access.
func (e *EngineStore) CollectionResolver(db string) *collectionResolver {
	return &collectionResolver{engine: e, db: db}
}

func (r *collectionResolver) Resolve(name string) ([]*bson.Document, bool) {
	ns := r.db + "." + name
	if !r.engine.CollectionExists(ns) {
		return nil, false
	}
	docs, err := r.engine.Collection(ns).Find(bson.NewDocument(), nil)
	if err != nil {
		return nil, false
	}
	return docs, true
}

// snapshotResolver adapts a Snapshot to agg.CollectionResolver.
type snapshotResolver struct {
	snapshot *Snapshot
	db       string
}

// SnapshotResolver returns a resolver scoped to db backed by snap. The
// dispatcher does not call it: aggregation inside a transaction resolves
// through the transaction working store's CollectionResolver.
func SnapshotResolver(snap *Snapshot, db string) *snapshotResolver {
	return &snapshotResolver{snapshot: snap, db: db}
}

func (r *snapshotResolver) Resolve(name string) ([]*bson.Document, bool) {
	ns := r.db + "." + name
	docs := r.snapshot.Collection(ns)
	if docs == nil {
		return nil, false
	}
	return docs, true
}
