package dispatch

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/store"
)

// bulkWrite applies a collection-scoped batch of insertOne/updateOne/
// updateMany/replaceOne/deleteOne/deleteMany operations, one-key documents
// named the way modern_bulk.go's ModernBulk models them
// (InsertOneModel/UpdateOneModel/UpdateManyModel/DeleteOneModel/
// DeleteManyModel), applied in order and stopping at the first failure
// when ordered (the default), per spec.md §7.
func (d *Dispatcher) bulkWrite(engine *store.EngineStore, db string, cmd *bson.Document) (*bson.Document, error) {
	ns := namespace(cmd, db)
	ops, err := documentsField(cmd, "ops")
	if err != nil {
		return nil, err
	}
	ordered := boolField(cmd, "ordered", true)
	coll := engine.Collection(ns)

	inserted, matched, modified, deleted, upserted := 0, 0, 0, 0, 0
	var writeErrors []bson.Value

	for i, op := range ops {
		if err := d.applyBulkOp(coll, op, &inserted, &matched, &modified, &deleted, &upserted); err != nil {
			writeErrors = append(writeErrors, writeErrorValue(i, err))
			if ordered {
				break
			}
		}
	}

	fields := []bson.Pair{
		bson.P("insertedCount", bson.Int32(int32(inserted))),
		bson.P("matchedCount", bson.Int32(int32(matched))),
		bson.P("modifiedCount", bson.Int32(int32(modified))),
		bson.P("deletedCount", bson.Int32(int32(deleted))),
		bson.P("upsertedCount", bson.Int32(int32(upserted))),
	}
	if len(writeErrors) > 0 {
		fields = append(fields, bson.P("writeErrors", bson.Array(writeErrors)))
	}
	return okResponse(fields...), nil
}

func (d *Dispatcher) applyBulkOp(coll *store.CollectionStore, op *bson.Document, inserted, matched, modified, deleted, upserted *int) error {
	name, ok := commandName(op)
	if !ok {
		return mongoerr.BadValue("bulk operation must name exactly one op type")
	}
	body, ok := docField(op, name)
	if !ok {
		return mongoerr.BadValue("bulk operation %q must carry a document body", name)
	}

	switch name {
	case "insertOne":
		doc, ok := docField(body, "document")
		if !ok {
			return mongoerr.BadValue("insertOne requires document")
		}
		if err := coll.InsertMany([]*bson.Document{doc}); err != nil {
			return err
		}
		*inserted++
		return nil

	case "updateOne", "updateMany":
		filter, _ := docField(body, "filter")
		if filter == nil {
			filter = bson.NewDocument()
		}
		updateDoc, ok := docField(body, "update")
		if !ok {
			return mongoerr.BadValue("%s requires update", name)
		}
		arrayFilters, _ := documentsField(body, "arrayFilters")
		result, err := coll.Update(filter, updateDoc, name == "updateMany", boolField(body, "upsert", false), arrayFilters, nil)
		if err != nil {
			return err
		}
		*matched += result.MatchedCount
		*modified += result.ModifiedCount
		if result.Upserted {
			*upserted++
		}
		return nil

	case "replaceOne":
		filter, _ := docField(body, "filter")
		if filter == nil {
			filter = bson.NewDocument()
		}
		replacement, ok := docField(body, "replacement")
		if !ok {
			return mongoerr.BadValue("replaceOne requires replacement")
		}
		result, err := coll.Update(filter, replacement, false, boolField(body, "upsert", false), nil, nil)
		if err != nil {
			return err
		}
		*matched += result.MatchedCount
		*modified += result.ModifiedCount
		if result.Upserted {
			*upserted++
		}
		return nil

	case "deleteOne", "deleteMany":
		filter, _ := docField(body, "filter")
		if filter == nil {
			filter = bson.NewDocument()
		}
		if name == "deleteOne" {
			matches, err := coll.Find(filter, nil)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				return nil
			}
			if _, err := coll.DeleteMany(bson.DocFromPairs(bson.P("_id", matches[0].MustGet("_id"))), nil); err != nil {
				return err
			}
			*deleted++
			return nil
		}
		result, err := coll.DeleteMany(filter, nil)
		if err != nil {
			return err
		}
		*deleted += result.DeletedCount
		return nil

	default:
		return mongoerr.Unsupported("bulkWrite op %q is not supported", name)
	}
}
