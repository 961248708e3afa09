package dispatch

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/store"
)

// findAndModify implements findAndModify/findOneAndUpdate/findOneAndReplace
// (the latter two rewritten to this shape by rewriteToFindAndModify), per
// legacy_types.go's ChangeInfo/Change naming: a single matched document is
// either removed or updated, with the caller choosing the pre- or
// post-update image via "new".
func (d *Dispatcher) findAndModify(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	ns := namespace(cmd, db)
	coll := engine.Collection(ns)

	filter := queryOrFilter(cmd)

	if boolField(cmd, "remove", false) {
		return d.findAndRemove(coll, filter)
	}

	updateDoc, ok := docField(cmd, "update")
	if !ok {
		return nil, mongoerr.BadValue("findAndModify requires update or remove")
	}

	before, err := coll.Find(filter, nil)
	if err != nil {
		return nil, err
	}
	var beforeDoc *bson.Document
	if len(before) > 0 {
		beforeDoc = before[0]
	}

	upsert := boolField(cmd, "upsert", false)
	returnNew := boolField(cmd, "new", false)

	result, err := coll.Update(filter, updateDoc, false, upsert, nil, nil)
	if err != nil {
		return nil, err
	}

	var idValue bson.Value
	hasID := false
	if result.Upserted {
		idValue, hasID = result.UpsertedID, true
	} else if beforeDoc != nil {
		idValue, hasID = beforeDoc.MustGet("_id"), true
	}

	value := bson.Null()
	switch {
	case !hasID:
		// no match and no upsert: value stays null.
	case returnNew:
		after, err := coll.Find(bson.DocFromPairs(bson.P("_id", idValue)), nil)
		if err != nil {
			return nil, err
		}
		if len(after) > 0 {
			value = bson.Doc(after[0])
		}
	case beforeDoc != nil:
		value = bson.Doc(beforeDoc)
	}

	lastErrorFields := []bson.Pair{
		bson.P("n", bson.Int32(int32(result.MatchedCount))),
		bson.P("updatedExisting", bson.Bool(result.MatchedCount > 0)),
	}
	if result.Upserted {
		lastErrorFields = append(lastErrorFields, bson.P("upserted", result.UpsertedID))
	}

	return okResponse(
		bson.P("value", value),
		bson.P("lastErrorObject", bson.Doc(bson.DocFromPairs(lastErrorFields...))),
	), nil
}

func (d *Dispatcher) findAndRemove(coll *store.CollectionStore, filter *bson.Document) (*bson.Document, error) {
	matches, err := coll.Find(filter, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return okResponse(
			bson.P("value", bson.Null()),
			bson.P("lastErrorObject", bson.Doc(bson.DocFromPairs(bson.P("n", bson.Int32(0))))),
		), nil
	}

	target := matches[0]
	if _, err := coll.DeleteMany(bson.DocFromPairs(bson.P("_id", target.MustGet("_id"))), nil); err != nil {
		return nil, err
	}
	return okResponse(
		bson.P("value", bson.Doc(target)),
		bson.P("lastErrorObject", bson.Doc(bson.DocFromPairs(bson.P("n", bson.Int32(1))))),
	), nil
}

func queryOrFilter(cmd *bson.Document) *bson.Document {
	if f, ok := docField(cmd, "query"); ok {
		return f
	}
	if f, ok := docField(cmd, "filter"); ok {
		return f
	}
	return bson.NewDocument()
}

// rewriteToFindAndModify rewrites replaceOne/findOneAndUpdate/
// findOneAndReplace command documents into the findAndModify shape, per
// spec.md §6.
func rewriteToFindAndModify(name string, cmd *bson.Document) *bson.Document {
	out := bson.NewDocument()
	out.Set("findAndModify", bson.String(collectionOf(cmd)))
	if filter, ok := docField(cmd, "filter"); ok {
		out.Set("query", bson.Doc(filter))
	}
	if v, ok := cmd.Get("update"); ok {
		out.Set("update", v)
	}
	if v, ok := cmd.Get("replacement"); ok {
		out.Set("update", v)
	}
	if v, ok := cmd.Get("upsert"); ok {
		out.Set("upsert", v)
	}
	if v, ok := cmd.Get("returnDocument"); ok && v.Kind() == bson.KindString && v.Str() == "after" {
		out.Set("new", bson.Bool(true))
	}
	if v, ok := cmd.Get("$db"); ok {
		out.Set("$db", v)
	}
	return out
}
