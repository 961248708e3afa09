package agg

import "github.com/kinfkong/modern-mgo/bson"

// CollectionResolver maps a collection name to its current documents, as
// spec.md §4.6 requires for $lookup/$unionWith/$graphLookup. Supplied by
// the engine store; stages that need one fail with UnsupportedFeature when
// it is nil.
type CollectionResolver interface {
	Resolve(name string) ([]*bson.Document, bool)
}
