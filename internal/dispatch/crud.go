package dispatch

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/store"
)

// writeErrorValue builds one ordered-batch failure, shaped like MongoDB's
// writeErrors entries.
func writeErrorValue(index int, err error) bson.Value {
	me, ok := mongoerr.As(err)
	if !ok {
		me = mongoerr.New(mongoerr.CodeBadValue, "%s", err.Error())
	}
	return bson.Doc(bson.DocFromPairs(
		bson.P("index", bson.Int32(int32(index))),
		bson.P("code", bson.Int32(int32(me.Code))),
		bson.P("errmsg", bson.String(me.Message)),
	))
}

// insert applies spec.md §7's ordered-batch rule: documents are inserted
// one at a time so a unique-index violation stops the batch at that point,
// leaving the already-applied prefix (testable property #2).
func (d *Dispatcher) insert(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	docs, err := documentsField(cmd, "documents")
	if err != nil {
		return nil, err
	}
	ordered := boolField(cmd, "ordered", true)
	coll := engine.Collection(namespace(cmd, db))

	n := 0
	var writeErrors []bson.Value
	for i, doc := range docs {
		if err := coll.InsertMany([]*bson.Document{doc}); err != nil {
			writeErrors = append(writeErrors, writeErrorValue(i, err))
			if ordered {
				break
			}
			continue
		}
		n++
	}

	fields := []bson.Pair{bson.P("n", bson.Int32(int32(n)))}
	if len(writeErrors) > 0 {
		fields = append(fields, bson.P("writeErrors", bson.Array(writeErrors)))
	}
	return okResponse(fields...), nil
}

// find executes a query and opens a cursor over the results, per spec.md
// §6's `{cursor: {id, ns, firstBatch}, ok: 1}` shape.
func (d *Dispatcher) find(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	ns := namespace(cmd, db)
	filter, _ := docField(cmd, "filter")
	if filter == nil {
		filter = bson.NewDocument()
	}

	docs, err := engine.Collection(ns).Find(filter, nil)
	if err != nil {
		return nil, err
	}

	if proj, ok := docField(cmd, "projection"); ok {
		docs, err = projectAll(docs, proj)
		if err != nil {
			return nil, err
		}
	}
	if skip, ok := intField(cmd, "skip"); ok {
		docs = applySkip(docs, skip)
	}
	if limit, ok := intField(cmd, "limit"); ok {
		docs = applyLimit(docs, limit)
	}

	batchSize, _ := intField(cmd, "batchSize")
	id, firstBatch := d.cursors.open(ns, docs, batchSize)
	return okResponse(bson.P("cursor", bson.Doc(bson.DocFromPairs(
		bson.P("id", bson.Int64(id)),
		bson.P("ns", bson.String(ns)),
		bson.P("firstBatch", bson.Array(docsToValues(firstBatch))),
	)))), nil
}

func (d *Dispatcher) getMore(cmd *bson.Document) (*bson.Document, error) {
	id, ok := intField(cmd, "getMore")
	if !ok {
		if v, okv := cmd.Get("getMore"); okv && v.Kind() == bson.KindInt64 {
			id, ok = int(v.Int64()), true
		}
	}
	if !ok {
		return nil, mongoerr.BadValue("getMore requires a cursor id")
	}
	batchSize, _ := intField(cmd, "batchSize")

	batch, nextID, ns, found := d.cursors.advance(int64(id), batchSize)
	if !found {
		return nil, mongoerr.New(mongoerr.CodeCursorNotFound, "cursor id %d not found", id)
	}
	return okResponse(bson.P("cursor", bson.Doc(bson.DocFromPairs(
		bson.P("id", bson.Int64(nextID)),
		bson.P("ns", bson.String(ns)),
		bson.P("nextBatch", bson.Array(docsToValues(batch))),
	)))), nil
}

func (d *Dispatcher) killCursors(cmd *bson.Document) (*bson.Document, error) {
	vals, ok := arrayField(cmd, "cursors")
	if !ok {
		return nil, mongoerr.BadValue("killCursors requires a cursors array")
	}
	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		switch v.Kind() {
		case bson.KindInt64:
			ids = append(ids, v.Int64())
		case bson.KindInt32:
			ids = append(ids, int64(v.Int32()))
		}
	}
	killed := d.cursors.kill(ids)
	killedVals := make([]bson.Value, len(killed))
	for i, id := range killed {
		killedVals[i] = bson.Int64(id)
	}
	return okResponse(bson.P("cursorsKilled", bson.Array(killedVals))), nil
}

func (d *Dispatcher) aggregate(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	ns := namespace(cmd, db)
	pipeline, err := documentsField(cmd, "pipeline")
	if err != nil {
		return nil, err
	}

	if boolField(cmd, "explain", false) {
		stages := make([]bson.Value, len(pipeline))
		for i, s := range pipeline {
			stages[i] = bson.Doc(s)
		}
		return okResponse(bson.P("stages", bson.Array(stages))), nil
	}

	resolver := engine.CollectionResolver(db)
	out, err := engine.Collection(ns).Aggregate(pipeline, resolver, nil)
	if err != nil {
		return nil, err
	}

	batchSize, _ := intField(cmd, "batchSize")
	id, firstBatch := d.cursors.open(ns, out, batchSize)
	return okResponse(bson.P("cursor", bson.Doc(bson.DocFromPairs(
		bson.P("id", bson.Int64(id)),
		bson.P("ns", bson.String(ns)),
		bson.P("firstBatch", bson.Array(docsToValues(firstBatch))),
	)))), nil
}

func (d *Dispatcher) update(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	ns := namespace(cmd, db)
	updates, err := documentsField(cmd, "updates")
	if err != nil {
		return nil, err
	}
	ordered := boolField(cmd, "ordered", true)
	coll := engine.Collection(ns)

	matched, modified, upserted := 0, 0, 0
	var writeErrors []bson.Value
	var upsertedValues []bson.Value
	for i, u := range updates {
		filter, _ := docField(u, "q")
		if filter == nil {
			filter = bson.NewDocument()
		}
		updateDoc, _ := docField(u, "u")
		if updateDoc == nil {
			updateDoc = bson.NewDocument()
		}
		multi := boolField(u, "multi", false)
		upsert := boolField(u, "upsert", false)
		arrayFilters, _ := documentsField(u, "arrayFilters")

		result, err := coll.Update(filter, updateDoc, multi, upsert, arrayFilters, nil)
		if err != nil {
			writeErrors = append(writeErrors, writeErrorValue(i, err))
			if ordered {
				break
			}
			continue
		}
		matched += result.MatchedCount
		modified += result.ModifiedCount
		if result.Upserted {
			upserted++
			upsertedValues = append(upsertedValues, bson.Doc(bson.DocFromPairs(
				bson.P("index", bson.Int32(int32(i))),
				bson.P("_id", result.UpsertedID),
			)))
		}
	}

	fields := []bson.Pair{
		bson.P("n", bson.Int32(int32(matched+upserted))),
		bson.P("nModified", bson.Int32(int32(modified))),
	}
	if len(upsertedValues) > 0 {
		fields = append(fields, bson.P("upserted", bson.Array(upsertedValues)))
	}
	if len(writeErrors) > 0 {
		fields = append(fields, bson.P("writeErrors", bson.Array(writeErrors)))
	}
	return okResponse(fields...), nil
}

func (d *Dispatcher) delete(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	ns := namespace(cmd, db)
	deletes, err := documentsField(cmd, "deletes")
	if err != nil {
		return nil, err
	}
	ordered := boolField(cmd, "ordered", true)
	coll := engine.Collection(ns)

	n := 0
	var writeErrors []bson.Value
	for i, del := range deletes {
		filter, _ := docField(del, "q")
		if filter == nil {
			filter = bson.NewDocument()
		}
		limit, _ := intField(del, "limit")
		if limit == 1 {
			matches, err := coll.Find(filter, nil)
			if err == nil && len(matches) == 0 {
				continue
			}
			if err == nil {
				filter = bson.DocFromPairs(bson.P("_id", matches[0].MustGet("_id")))
			}
		}

		result, err := coll.DeleteMany(filter, nil)
		if err != nil {
			writeErrors = append(writeErrors, writeErrorValue(i, err))
			if ordered {
				break
			}
			continue
		}
		n += result.DeletedCount
	}

	fields := []bson.Pair{bson.P("n", bson.Int32(int32(n)))}
	if len(writeErrors) > 0 {
		fields = append(fields, bson.P("writeErrors", bson.Array(writeErrors)))
	}
	return okResponse(fields...), nil
}

func (d *Dispatcher) count(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	ns := namespace(cmd, db)
	filter, _ := docField(cmd, "query")
	if filter == nil {
		filter, _ = docField(cmd, "filter")
	}
	if filter == nil {
		filter = bson.NewDocument()
	}
	docs, err := engine.Collection(ns).Find(filter, nil)
	if err != nil {
		return nil, err
	}
	return okResponse(bson.P("n", bson.Int32(int32(len(docs))))), nil
}

func (d *Dispatcher) createIndexes(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	ns := namespace(cmd, db)
	specs, err := documentsField(cmd, "indexes")
	if err != nil {
		return nil, err
	}

	defs := make([]store.IndexDefinition, len(specs))
	for i, s := range specs {
		key, ok := docField(s, "key")
		if !ok {
			return nil, mongoerr.BadValue("indexes[%d].key is required", i)
		}
		name, _ := stringField(s, "name")
		defs[i] = store.IndexDefinition{
			Name:   name,
			Key:    key,
			Unique: boolField(s, "unique", false),
			Sparse: boolField(s, "sparse", false),
		}
	}

	result, err := engine.Collection(ns).CreateIndexes(defs)
	if err != nil {
		return nil, err
	}
	return okResponse(
		bson.P("numIndexesBefore", bson.Int32(int32(result.NumIndexesBefore))),
		bson.P("numIndexesAfter", bson.Int32(int32(result.NumIndexesAfter))),
	), nil
}

func (d *Dispatcher) listIndexes(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	ns := namespace(cmd, db)
	indexes := engine.Collection(ns).ListIndexes()

	// the implicit _id_ index is always listed first.
	vals := make([]bson.Value, 0, len(indexes)+1)
	vals = append(vals, bson.Doc(bson.DocFromPairs(
		bson.P("v", bson.Int32(2)),
		bson.P("key", bson.Doc(bson.DocFromPairs(bson.P("_id", bson.Int32(1))))),
		bson.P("name", bson.String("_id_")),
	)))
	for _, idx := range indexes {
		vals = append(vals, bson.Doc(bson.DocFromPairs(
			bson.P("v", bson.Int32(2)),
			bson.P("key", bson.Doc(idx.Key)),
			bson.P("name", bson.String(idx.Name)),
			bson.P("unique", bson.Bool(idx.Unique)),
		)))
	}

	return okResponse(bson.P("cursor", bson.Doc(bson.DocFromPairs(
		bson.P("id", bson.Int64(0)),
		bson.P("ns", bson.String(ns)),
		bson.P("firstBatch", bson.Array(vals)),
	)))), nil
}

func (d *Dispatcher) listCollections(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	prefix := db + "."
	var vals []bson.Value
	for _, ns := range engine.Namespaces() {
		if len(ns) > len(prefix) && ns[:len(prefix)] == prefix {
			name := ns[len(prefix):]
			vals = append(vals, bson.Doc(bson.DocFromPairs(
				bson.P("name", bson.String(name)),
				bson.P("type", bson.String("collection")),
			)))
		}
	}
	return okResponse(bson.P("cursor", bson.Doc(bson.DocFromPairs(
		bson.P("id", bson.Int64(0)),
		bson.P("ns", bson.String(db+".$cmd.listCollections")),
		bson.P("firstBatch", bson.Array(vals)),
	)))), nil
}
