package agg

import (
	"testing"

	"github.com/kinfkong/modern-mgo/bson"
)

type mapResolver map[string][]*bson.Document

func (m mapResolver) Resolve(name string) ([]*bson.Document, bool) {
	docs, ok := m[name]
	return docs, ok
}

func doc(pairs ...bson.Pair) *bson.Document { return bson.DocFromPairs(pairs...) }

func TestMatchAndProjectStages(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("_id", bson.Int32(1)), bson.P("name", bson.String("a")), bson.P("age", bson.Int32(10))),
		doc(bson.P("_id", bson.Int32(2)), bson.P("name", bson.String("b")), bson.P("age", bson.Int32(20))),
	}
	pipeline := []*bson.Document{
		doc(bson.P("$match", bson.Doc(doc(bson.P("age", bson.Doc(doc(bson.P("$gte", bson.Int32(15))))))))),
		doc(bson.P("$project", bson.Doc(doc(bson.P("name", bson.Int32(1)))))),
	}
	out, err := Run(docs, pipeline, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 1 || out[0].MustGet("name").Str() != "b" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestGroupWithAccumulators(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("cat", bson.String("x")), bson.P("v", bson.Int32(1))),
		doc(bson.P("cat", bson.String("x")), bson.P("v", bson.Int32(2))),
		doc(bson.P("cat", bson.String("y")), bson.P("v", bson.Int32(5))),
	}
	spec := doc(
		bson.P("_id", bson.String("$cat")),
		bson.P("total", bson.Doc(doc(bson.P("$sum", bson.String("$v"))))),
		bson.P("firstV", bson.Doc(doc(bson.P("$first", bson.String("$v"))))),
		bson.P("set", bson.Doc(doc(bson.P("$addToSet", bson.String("$v"))))),
	)
	out, err := runGroup(docs, spec)
	if err != nil {
		t.Fatalf("runGroup: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets in first-seen order, got %d", len(out))
	}
	if out[0].MustGet("_id").Str() != "x" || out[0].MustGet("total").Double() != 3 {
		t.Fatalf("unexpected bucket x: %+v", out[0])
	}
	if out[0].MustGet("firstV").Int32() != 1 {
		t.Fatalf("expected $first to capture 1, got %v", out[0].MustGet("firstV"))
	}
	if out[1].MustGet("_id").Str() != "y" || out[1].MustGet("total").Double() != 5 {
		t.Fatalf("unexpected bucket y: %+v", out[1])
	}
}

func TestSortByCountOrdering(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("cat", bson.String("b"))),
		doc(bson.P("cat", bson.String("a"))),
		doc(bson.P("cat", bson.String("a"))),
		doc(bson.P("cat", bson.String("b"))),
		doc(bson.P("cat", bson.String("c"))),
	}
	out, err := runSortByCount(docs, bson.String("$cat"))
	if err != nil {
		t.Fatalf("runSortByCount: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(out))
	}
	if out[0].MustGet("_id").Str() != "a" || out[0].MustGet("count").Int64() != 2 {
		t.Fatalf("expected a with count 2 first, got %+v", out[0])
	}
	if out[1].MustGet("_id").Str() != "b" || out[1].MustGet("count").Int64() != 2 {
		t.Fatalf("expected tie-break ascending by _id, got %+v", out[1])
	}
}

func TestUnwindBasic(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("_id", bson.Int32(1)), bson.P("tags", bson.Array([]bson.Value{bson.String("a"), bson.String("b")}))),
	}
	out, err := runUnwind(docs, bson.String("$tags"))
	if err != nil {
		t.Fatalf("runUnwind: %v", err)
	}
	if len(out) != 2 || out[0].MustGet("tags").Str() != "a" || out[1].MustGet("tags").Str() != "b" {
		t.Fatalf("unexpected unwind result: %+v", out)
	}
}

func TestUnwindPreserveNullAndEmptyArrays(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("_id", bson.Int32(1)), bson.P("tags", bson.Array(nil))),
		doc(bson.P("_id", bson.Int32(2))),
	}
	spec := bson.Doc(doc(bson.P("path", bson.String("$tags")), bson.P("preserveNullAndEmptyArrays", bson.Bool(true))))
	out, err := runUnwind(docs, spec)
	if err != nil {
		t.Fatalf("runUnwind: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected both docs preserved, got %d", len(out))
	}

	dropSpec := bson.Doc(doc(bson.P("path", bson.String("$tags"))))
	out2, err := runUnwind(docs, dropSpec)
	if err != nil {
		t.Fatalf("runUnwind: %v", err)
	}
	if len(out2) != 0 {
		t.Fatalf("expected empty/missing arrays dropped without preserve, got %d", len(out2))
	}
}

func TestUnwindRejectsIncludeArrayIndex(t *testing.T) {
	spec := bson.Doc(doc(bson.P("path", bson.String("$tags")), bson.P("includeArrayIndex", bson.String("idx"))))
	_, err := runUnwind(nil, spec)
	if err == nil {
		t.Fatalf("expected includeArrayIndex to be rejected")
	}
}

func TestFacetRunsIndependentPipelines(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("v", bson.Int32(1))),
		doc(bson.P("v", bson.Int32(2))),
		doc(bson.P("v", bson.Int32(3))),
	}
	spec := doc(
		bson.P("all", bson.Array([]bson.Value{})),
		bson.P("big", bson.Array([]bson.Value{bson.Doc(doc(bson.P("$match", bson.Doc(doc(bson.P("v", bson.Doc(doc(bson.P("$gt", bson.Int32(1))))))))))})),
	)
	out, err := runFacet(docs, spec, nil, nil)
	if err != nil {
		t.Fatalf("runFacet: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected facet to collapse to one document")
	}
	result := out[0]
	if result.MustGet("all").Kind() != bson.KindArray || len(result.MustGet("all").Array()) != 3 {
		t.Fatalf("expected all facet untouched input, got %+v", result.MustGet("all"))
	}
	if len(result.MustGet("big").Array()) != 2 {
		t.Fatalf("expected big facet filtered to 2, got %+v", result.MustGet("big"))
	}
}

func TestLookupLocalForeignForm(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("_id", bson.Int32(1)), bson.P("ownerId", bson.Int32(10))),
	}
	resolver := mapResolver{
		"owners": {
			doc(bson.P("_id", bson.Int32(10)), bson.P("name", bson.String("alice"))),
			doc(bson.P("_id", bson.Int32(11)), bson.P("name", bson.String("bob"))),
		},
	}
	spec := doc(
		bson.P("from", bson.String("owners")),
		bson.P("localField", bson.String("ownerId")),
		bson.P("foreignField", bson.String("_id")),
		bson.P("as", bson.String("owner")),
	)
	out, err := runLookup(docs, spec, resolver, nil)
	if err != nil {
		t.Fatalf("runLookup: %v", err)
	}
	owners := out[0].MustGet("owner").Array()
	if len(owners) != 1 || owners[0].Document().MustGet("name").Str() != "alice" {
		t.Fatalf("unexpected lookup result: %+v", owners)
	}
}

func TestLookupPipelineWithLet(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("_id", bson.Int32(1)), bson.P("threshold", bson.Int32(5))),
	}
	resolver := mapResolver{
		"items": {
			doc(bson.P("v", bson.Int32(3))),
			doc(bson.P("v", bson.Int32(7))),
		},
	}
	spec := doc(
		bson.P("from", bson.String("items")),
		bson.P("let", bson.Doc(doc(bson.P("th", bson.String("$threshold"))))),
		bson.P("pipeline", bson.Array([]bson.Value{
			bson.Doc(doc(bson.P("$match", bson.Doc(doc(bson.P("$expr", bson.Doc(doc(bson.P("$gt", bson.Array([]bson.Value{bson.String("$v"), bson.String("$$th")}))))))))))})),
		bson.P("as", bson.String("matched")),
	)
	out, err := runLookup(docs, spec, resolver, nil)
	if err != nil {
		t.Fatalf("runLookup: %v", err)
	}
	matched := out[0].MustGet("matched").Array()
	if len(matched) != 1 || matched[0].Document().MustGet("v").Int32() != 7 {
		t.Fatalf("unexpected pipeline lookup result: %+v", matched)
	}
}

func TestUnionWithStringForm(t *testing.T) {
	docs := []*bson.Document{doc(bson.P("v", bson.Int32(1)))}
	resolver := mapResolver{"other": {doc(bson.P("v", bson.Int32(2)))}}
	out, err := runUnionWith(docs, bson.String("other"), resolver, nil)
	if err != nil {
		t.Fatalf("runUnionWith: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected union of both sequences, got %d", len(out))
	}
}

func TestGraphLookupBreadthFirst(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("_id", bson.Int32(1))),
	}
	resolver := mapResolver{
		"tree": {
			doc(bson.P("_id", bson.Int32(1)), bson.P("parent", bson.Null())),
			doc(bson.P("_id", bson.Int32(2)), bson.P("parent", bson.Int32(1))),
			doc(bson.P("_id", bson.Int32(3)), bson.P("parent", bson.Int32(2))),
		},
	}
	spec := doc(
		bson.P("from", bson.String("tree")),
		bson.P("startWith", bson.String("$_id")),
		bson.P("connectFromField", bson.String("_id")),
		bson.P("connectToField", bson.String("parent")),
		bson.P("as", bson.String("descendants")),
	)
	out, err := runGraphLookup(docs, spec, resolver)
	if err != nil {
		t.Fatalf("runGraphLookup: %v", err)
	}
	descendants := out[0].MustGet("descendants").Array()
	if len(descendants) != 2 {
		t.Fatalf("expected both descendants found, got %d: %+v", len(descendants), descendants)
	}
}

func TestGraphLookupRejectsUnknownOption(t *testing.T) {
	spec := doc(
		bson.P("from", bson.String("tree")),
		bson.P("startWith", bson.String("$_id")),
		bson.P("connectFromField", bson.String("_id")),
		bson.P("connectToField", bson.String("parent")),
		bson.P("as", bson.String("descendants")),
		bson.P("depthField", bson.String("depth")),
	)
	_, err := runGraphLookup(nil, spec, mapResolver{})
	if err == nil {
		t.Fatalf("expected unsupported option to be rejected")
	}
}

func TestCountStage(t *testing.T) {
	docs := []*bson.Document{doc(), doc(), doc()}
	out, err := runCount(docs, bson.String("total"))
	if err != nil {
		t.Fatalf("runCount: %v", err)
	}
	if out[0].MustGet("total").Int64() != 3 {
		t.Fatalf("unexpected count: %+v", out[0])
	}
}

func TestSortStageAscendingDescending(t *testing.T) {
	docs := []*bson.Document{
		doc(bson.P("v", bson.Int32(3))),
		doc(bson.P("v", bson.Int32(1))),
		doc(bson.P("v", bson.Int32(2))),
	}
	out := runSort(docs, doc(bson.P("v", bson.Int32(1))), nil)
	if out[0].MustGet("v").Int32() != 1 || out[2].MustGet("v").Int32() != 3 {
		t.Fatalf("unexpected ascending sort: %+v", out)
	}
	out = runSort(docs, doc(bson.P("v", bson.Int32(-1))), nil)
	if out[0].MustGet("v").Int32() != 3 || out[2].MustGet("v").Int32() != 1 {
		t.Fatalf("unexpected descending sort: %+v", out)
	}
}
