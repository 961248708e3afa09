// Package store implements the collection store and engine store described
// by spec.md §4.7/§4.8: an in-memory, namespaced document store with
// single-field unique-index enforcement, grounded on modern_collection.go's
// Insert/Find/Update/EnsureIndex shapes (restated against the typed bson
// value model instead of the official driver).
package store

import "github.com/kinfkong/modern-mgo/bson"

// IndexDefinition mirrors legacy_types.go's Index, trimmed to the fields
// spec.md §3 names: only Unique is enforced at write time; Sparse,
// PartialFilterExpression, Collation and ExpireAfterSeconds are
// metadata-only in this core.
type IndexDefinition struct {
	Name                    string
	Key                     *bson.Document
	Unique                  bool
	Sparse                  bool
	PartialFilterExpression *bson.Document
	Collation               *bson.Collation
	ExpireAfterSeconds      *int32
}

// IndexesResult reports the before/after index count for create_indexes.
type IndexesResult struct {
	NumIndexesBefore int
	NumIndexesAfter  int
}

// UpdateResult mirrors legacy_types.go's ChangeInfo, restated with the
// exact field names spec.md §4.4/§4.7 use.
type UpdateResult struct {
	MatchedCount  int
	ModifiedCount int
	UpsertedID    bson.Value
	Upserted      bool
}

// DeleteResult reports delete_many's counts; spec.md §4.7 notes they are
// always equal in this core (no orphaned matches survive a delete).
type DeleteResult struct {
	MatchedCount int
	DeletedCount int
}
