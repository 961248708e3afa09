package txn

import "github.com/kinfkong/modern-mgo/bson"

// dirtyIDs returns the canonical keys of every _id that differs between
// initial and final (added, removed, or structurally changed).
func dirtyIDs(initial, final []*bson.Document) map[string]bool {
	initialByID := indexByID(initial)
	finalByID := indexByID(final)

	dirty := make(map[string]bool)
	for id, doc := range initialByID {
		fd, ok := finalByID[id]
		if !ok || !bson.Equal(bson.Doc(fd), bson.Doc(doc)) {
			dirty[id] = true
		}
	}
	for id := range finalByID {
		if _, ok := initialByID[id]; !ok {
			dirty[id] = true
		}
	}
	return dirty
}

func indexByID(docs []*bson.Document) map[string]*bson.Document {
	out := make(map[string]*bson.Document, len(docs))
	for _, d := range docs {
		if id, ok := d.Get("_id"); ok {
			out[CanonicalKey(id)] = d
		}
	}
	return out
}

// mergeTransactionalWrites merges a transaction's final namespace state
// into the namespace's live (possibly concurrently mutated) document
// list: per spec.md §4.9, for every _id the transaction touched, the
// transactional write wins; _ids the transaction never touched keep
// whatever the live store currently holds.
func mergeTransactionalWrites(live, final []*bson.Document, dirty map[string]bool) []*bson.Document {
	finalByID := indexByID(final)

	out := make([]*bson.Document, 0, len(live)+len(final))
	seen := make(map[string]bool, len(live))
	for _, d := range live {
		id, ok := d.Get("_id")
		if !ok {
			out = append(out, d)
			continue
		}
		key := CanonicalKey(id)
		seen[key] = true
		if !dirty[key] {
			out = append(out, d)
			continue
		}
		if fd, ok := finalByID[key]; ok {
			out = append(out, fd)
		}
		// else: deleted inside the transaction, drop it.
	}

	for key, fd := range finalByID {
		if dirty[key] && !seen[key] {
			out = append(out, fd)
		}
	}
	return out
}
