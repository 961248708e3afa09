package dispatch

import (
	"sync"

	"github.com/kinfkong/modern-mgo/bson"
)

// defaultBatchSize mirrors the real server's default initial batch size
// for find/aggregate when the command doesn't set one.
const defaultBatchSize = 101

// cursor holds whatever a find/aggregate/getMore result sequence hasn't
// been returned to the caller yet.
type cursor struct {
	id        int64
	ns        string
	remaining []*bson.Document
}

// cursorRegistry tracks open cursors for getMore/killCursors, per spec.md
// §6's external interface list.
type cursorRegistry struct {
	mu      sync.Mutex
	next    int64
	cursors map[int64]*cursor
}

func newCursorRegistry() *cursorRegistry {
	return &cursorRegistry{cursors: make(map[int64]*cursor)}
}

// open splits docs into a first batch of at most batchSize and, if
// anything remains, registers a cursor for the rest; cursor id 0 means the
// whole result fit in one batch and there is nothing left to fetch.
func (r *cursorRegistry) open(ns string, docs []*bson.Document, batchSize int) (id int64, firstBatch []*bson.Document) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchSize >= len(docs) {
		return 0, docs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id = r.next
	r.cursors[id] = &cursor{id: id, ns: ns, remaining: docs[batchSize:]}
	return id, docs[:batchSize]
}

// advance returns the next batch for an open cursor, closing it once
// exhausted. ok is false if id is not a currently open cursor.
func (r *cursorRegistry) advance(id int64, batchSize int) (batch []*bson.Document, nextID int64, ns string, ok bool) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, found := r.cursors[id]
	if !found {
		return nil, 0, "", false
	}
	if batchSize >= len(c.remaining) {
		delete(r.cursors, id)
		return c.remaining, 0, c.ns, true
	}
	batch = c.remaining[:batchSize]
	c.remaining = c.remaining[batchSize:]
	return batch, id, c.ns, true
}

// kill closes every cursor id present in ids, returning those that were
// actually open.
func (r *cursorRegistry) kill(ids []int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var killed []int64
	for _, id := range ids {
		if _, ok := r.cursors[id]; ok {
			delete(r.cursors, id)
			killed = append(killed, id)
		}
	}
	return killed
}
