package dispatch

import (
	"testing"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/config"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
)

func doc(pairs ...bson.Pair) *bson.Document { return bson.DocFromPairs(pairs...) }

func withDB(d *bson.Document, db string) *bson.Document {
	d.Set("$db", bson.String(db))
	return d
}

func codeOf(resp *bson.Document) int32 {
	v, ok := resp.Get("code")
	if !ok {
		return 0
	}
	return v.Int32()
}

func TestPingAndHello(t *testing.T) {
	d := New(nil, nil, nil)

	ping := d.Dispatch(withDB(doc(bson.P("ping", bson.Int32(1))), "test"))
	if v, _ := ping.Get("ok"); v.Double() != 1 {
		t.Fatalf("ping: expected ok:1, got %+v", ping)
	}

	hello := d.Dispatch(withDB(doc(bson.P("hello", bson.Int32(1))), "test"))
	if _, ok := hello.Get("setName"); ok {
		t.Fatalf("standalone hello must not carry setName: %+v", hello)
	}

	rsCfg := &config.Engine{Profile: string(config.SingleNodeReplicaSet), ReplicaSetName: "rs0"}
	rsDispatcher := New(nil, rsCfg, nil)
	rsHello := rsDispatcher.Dispatch(withDB(doc(bson.P("hello", bson.Int32(1))), "test"))
	if v, ok := rsHello.Get("setName"); !ok || v.Str() != "rs0" {
		t.Fatalf("replica set hello must report setName rs0, got %+v", rsHello)
	}
}

func TestReadPreferenceRejectedUnderSingleNodeReplicaSet(t *testing.T) {
	rsCfg := &config.Engine{Profile: string(config.SingleNodeReplicaSet)}
	d := New(nil, rsCfg, nil)

	cmd := withDB(doc(
		bson.P("hello", bson.Int32(1)),
		bson.P("$readPreference", bson.Doc(doc(bson.P("mode", bson.String("secondary"))))),
	), "test")
	resp := d.Dispatch(cmd)
	if v, _ := resp.Get("ok"); v.Double() != 0 {
		t.Fatalf("expected rejection of non-primary read preference, got %+v", resp)
	}
	if codeOf(resp) != int32(mongoerr.CodeBadValue) {
		t.Fatalf("expected BadValue, got code %d", codeOf(resp))
	}
}

func TestUnknownCommandMapsToCommandNotFound(t *testing.T) {
	d := New(nil, nil, nil)
	resp := d.Dispatch(withDB(doc(bson.P("frobnicate", bson.Int32(1))), "test"))
	if codeOf(resp) != int32(mongoerr.CodeCommandNotFound) {
		t.Fatalf("expected CommandNotFound, got %+v", resp)
	}
}

func TestInsertThenFindRoundTrips(t *testing.T) {
	d := New(nil, nil, nil)

	insertResp := d.Dispatch(withDB(doc(
		bson.P("insert", bson.String("items")),
		bson.P("documents", bson.Array([]bson.Value{
			bson.Doc(doc(bson.P("name", bson.String("a")))),
			bson.Doc(doc(bson.P("name", bson.String("b")))),
		})),
	), "db"))
	if v, _ := insertResp.Get("n"); v.Int32() != 2 {
		t.Fatalf("expected n:2, got %+v", insertResp)
	}

	findResp := d.Dispatch(withDB(doc(
		bson.P("find", bson.String("items")),
		bson.P("filter", bson.Doc(bson.NewDocument())),
	), "db"))
	cursor, ok := findResp.Get("cursor")
	if !ok {
		t.Fatalf("expected cursor field, got %+v", findResp)
	}
	firstBatch, _ := cursor.Document().Get("firstBatch")
	if len(firstBatch.Array()) != 2 {
		t.Fatalf("expected 2 documents in firstBatch, got %+v", firstBatch)
	}
}

func TestOrderedInsertStopsAtFirstFailureLeavingPrefix(t *testing.T) {
	d := New(nil, nil, nil)

	d.Dispatch(withDB(doc(
		bson.P("createIndexes", bson.String("items")),
		bson.P("indexes", bson.Array([]bson.Value{
			bson.Doc(doc(
				bson.P("key", bson.Doc(doc(bson.P("email", bson.Int32(1))))),
				bson.P("unique", bson.Bool(true)),
			)),
		})),
	), "db"))

	insertResp := d.Dispatch(withDB(doc(
		bson.P("insert", bson.String("items")),
		bson.P("documents", bson.Array([]bson.Value{
			bson.Doc(doc(bson.P("email", bson.String("a@x.com")))),
			bson.Doc(doc(bson.P("email", bson.String("a@x.com")))),
			bson.Doc(doc(bson.P("email", bson.String("c@x.com")))),
		})),
	), "db"))

	if v, _ := insertResp.Get("n"); v.Int32() != 1 {
		t.Fatalf("expected only the first document to be inserted, got n=%+v", insertResp)
	}
	if _, ok := insertResp.Get("writeErrors"); !ok {
		t.Fatalf("expected writeErrors on the batch, got %+v", insertResp)
	}

	countResp := d.Dispatch(withDB(doc(bson.P("count", bson.String("items"))), "db"))
	if v, _ := countResp.Get("n"); v.Int32() != 1 {
		t.Fatalf("expected the ordered batch to leave only its applied prefix, got n=%+v", countResp)
	}
}

func TestFindAndModifyReturnsPreImageByDefault(t *testing.T) {
	d := New(nil, nil, nil)
	d.Dispatch(withDB(doc(
		bson.P("insert", bson.String("items")),
		bson.P("documents", bson.Array([]bson.Value{bson.Doc(doc(bson.P("name", bson.String("a")), bson.P("n", bson.Int32(1))))})),
	), "db"))

	resp := d.Dispatch(withDB(doc(
		bson.P("findAndModify", bson.String("items")),
		bson.P("query", bson.Doc(doc(bson.P("name", bson.String("a"))))),
		bson.P("update", bson.Doc(doc(bson.P("$set", bson.Doc(doc(bson.P("n", bson.Int32(2)))))))),
	), "db"))

	value, ok := resp.Get("value")
	if !ok || value.Kind() != bson.KindDocument {
		t.Fatalf("expected a pre-image value document, got %+v", resp)
	}
	n, _ := value.Document().Get("n")
	if n.Int32() != 1 {
		t.Fatalf("expected pre-image n:1, got %+v", value)
	}
}

func TestFindAndModifyNewReturnsPostImage(t *testing.T) {
	d := New(nil, nil, nil)
	d.Dispatch(withDB(doc(
		bson.P("insert", bson.String("items")),
		bson.P("documents", bson.Array([]bson.Value{bson.Doc(doc(bson.P("name", bson.String("a")), bson.P("n", bson.Int32(1))))})),
	), "db"))

	resp := d.Dispatch(withDB(doc(
		bson.P("findAndModify", bson.String("items")),
		bson.P("query", bson.Doc(doc(bson.P("name", bson.String("a"))))),
		bson.P("update", bson.Doc(doc(bson.P("$set", bson.Doc(doc(bson.P("n", bson.Int32(2)))))))),
		bson.P("new", bson.Bool(true)),
	), "db"))

	value, ok := resp.Get("value")
	if !ok || value.Kind() != bson.KindDocument {
		t.Fatalf("expected a post-image value document, got %+v", resp)
	}
	n, _ := value.Document().Get("n")
	if n.Int32() != 2 {
		t.Fatalf("expected post-image n:2, got %+v", value)
	}
}

func TestReplaceOneRewritesToFindAndModify(t *testing.T) {
	d := New(nil, nil, nil)
	d.Dispatch(withDB(doc(
		bson.P("insert", bson.String("items")),
		bson.P("documents", bson.Array([]bson.Value{bson.Doc(doc(bson.P("name", bson.String("a"))))})),
	), "db"))

	resp := d.Dispatch(withDB(doc(
		bson.P("replaceOne", bson.String("items")),
		bson.P("filter", bson.Doc(doc(bson.P("name", bson.String("a"))))),
		bson.P("replacement", bson.Doc(doc(bson.P("name", bson.String("z"))))),
		bson.P("returnDocument", bson.String("after")),
	), "db"))

	value, ok := resp.Get("value")
	if !ok || value.Kind() != bson.KindDocument {
		t.Fatalf("expected a post-image value document, got %+v", resp)
	}
	name, _ := value.Document().Get("name")
	if name.Str() != "z" {
		t.Fatalf("expected replaced name z, got %+v", value)
	}
}

func TestBulkWriteAppliesOrderedOpsAndStopsOnFailure(t *testing.T) {
	d := New(nil, nil, nil)
	d.Dispatch(withDB(doc(
		bson.P("createIndexes", bson.String("items")),
		bson.P("indexes", bson.Array([]bson.Value{
			bson.Doc(doc(
				bson.P("key", bson.Doc(doc(bson.P("email", bson.Int32(1))))),
				bson.P("unique", bson.Bool(true)),
			)),
		})),
	), "db"))

	resp := d.Dispatch(withDB(doc(
		bson.P("bulkWrite", bson.String("items")),
		bson.P("ops", bson.Array([]bson.Value{
			bson.Doc(doc(bson.P("insertOne", bson.Doc(doc(bson.P("document", bson.Doc(doc(bson.P("email", bson.String("a@x.com")))))))))),
			bson.Doc(doc(bson.P("insertOne", bson.Doc(doc(bson.P("document", bson.Doc(doc(bson.P("email", bson.String("a@x.com")))))))))),
			bson.Doc(doc(bson.P("insertOne", bson.Doc(doc(bson.P("document", bson.Doc(doc(bson.P("email", bson.String("c@x.com")))))))))),
		})),
	), "db"))

	if v, _ := resp.Get("insertedCount"); v.Int32() != 1 {
		t.Fatalf("expected only the first insertOne to apply, got %+v", resp)
	}
	if _, ok := resp.Get("writeErrors"); !ok {
		t.Fatalf("expected writeErrors on the ordered batch, got %+v", resp)
	}
}

func TestCreateIndexesThenListIndexes(t *testing.T) {
	d := New(nil, nil, nil)
	d.Dispatch(withDB(doc(
		bson.P("createIndexes", bson.String("items")),
		bson.P("indexes", bson.Array([]bson.Value{
			bson.Doc(doc(
				bson.P("key", bson.Doc(doc(bson.P("email", bson.Int32(1))))),
				bson.P("name", bson.String("email_1")),
				bson.P("unique", bson.Bool(true)),
			)),
		})),
	), "db"))

	resp := d.Dispatch(withDB(doc(bson.P("listIndexes", bson.String("items"))), "db"))
	cursor, ok := resp.Get("cursor")
	if !ok {
		t.Fatalf("expected a cursor field, got %+v", resp)
	}
	firstBatch, _ := cursor.Document().Get("firstBatch")
	// _id_ plus the unique index on email.
	if len(firstBatch.Array()) != 2 {
		t.Fatalf("expected 2 indexes, got %+v", firstBatch)
	}
}

func TestGetMoreAndKillCursors(t *testing.T) {
	d := New(nil, nil, nil)
	var docs []bson.Value
	for i := 0; i < 5; i++ {
		docs = append(docs, bson.Doc(doc(bson.P("n", bson.Int32(int32(i))))))
	}
	d.Dispatch(withDB(doc(
		bson.P("insert", bson.String("items")),
		bson.P("documents", bson.Array(docs)),
	), "db"))

	findResp := d.Dispatch(withDB(doc(
		bson.P("find", bson.String("items")),
		bson.P("filter", bson.Doc(bson.NewDocument())),
		bson.P("batchSize", bson.Int32(2)),
	), "db"))
	cursor, _ := findResp.Get("cursor")
	cursorID, _ := cursor.Document().Get("id")
	if cursorID.Int64() == 0 {
		t.Fatalf("expected an open cursor for a partial batch, got %+v", findResp)
	}
	firstBatch, _ := cursor.Document().Get("firstBatch")
	if len(firstBatch.Array()) != 2 {
		t.Fatalf("expected a first batch of 2, got %+v", firstBatch)
	}

	moreResp := d.Dispatch(withDB(doc(
		bson.P("getMore", bson.Int64(cursorID.Int64())),
		bson.P("collection", bson.String("items")),
		bson.P("batchSize", bson.Int32(2)),
	), "db"))
	moreCursor, ok := moreResp.Get("cursor")
	if !ok {
		t.Fatalf("expected a cursor in getMore response, got %+v", moreResp)
	}
	nextBatch, _ := moreCursor.Document().Get("nextBatch")
	if len(nextBatch.Array()) != 2 {
		t.Fatalf("expected a next batch of 2, got %+v", nextBatch)
	}

	nextID, _ := moreCursor.Document().Get("id")
	if nextID.Int64() == 0 {
		t.Fatalf("expected one document still pending after the second batch, got %+v", moreResp)
	}

	killResp := d.Dispatch(withDB(doc(
		bson.P("killCursors", bson.String("items")),
		bson.P("cursors", bson.Array([]bson.Value{bson.Int64(nextID.Int64())})),
	), "db"))
	killed, _ := killResp.Get("cursorsKilled")
	if len(killed.Array()) != 1 {
		t.Fatalf("expected the still-open cursor to be killed, got %+v", killResp)
	}
}

func TestAggregatePipeline(t *testing.T) {
	d := New(nil, nil, nil)
	d.Dispatch(withDB(doc(
		bson.P("insert", bson.String("items")),
		bson.P("documents", bson.Array([]bson.Value{
			bson.Doc(doc(bson.P("cat", bson.String("x")), bson.P("n", bson.Int32(1)))),
			bson.Doc(doc(bson.P("cat", bson.String("x")), bson.P("n", bson.Int32(2)))),
			bson.Doc(doc(bson.P("cat", bson.String("y")), bson.P("n", bson.Int32(5)))),
		})),
	), "db"))

	resp := d.Dispatch(withDB(doc(
		bson.P("aggregate", bson.String("items")),
		bson.P("pipeline", bson.Array([]bson.Value{
			bson.Doc(doc(bson.P("$group", bson.Doc(doc(
				bson.P("_id", bson.String("$cat")),
				bson.P("total", bson.Doc(doc(bson.P("$sum", bson.String("$n"))))),
			))))),
		})),
	), "db"))

	cursor, ok := resp.Get("cursor")
	if !ok {
		t.Fatalf("expected a cursor field, got %+v", resp)
	}
	firstBatch, _ := cursor.Document().Get("firstBatch")
	if len(firstBatch.Array()) != 2 {
		t.Fatalf("expected 2 groups, got %+v", firstBatch)
	}
}

func TestTransactionLifecycleThroughDispatch(t *testing.T) {
	d := New(nil, nil, nil)
	lsid := bson.Doc(doc(bson.P("id", bson.String("session-1"))))

	start := d.Dispatch(withDB(doc(
		bson.P("startTransaction", bson.Int32(1)),
		bson.P("lsid", lsid),
		bson.P("txnNumber", bson.Int64(1)),
	), "db"))
	if v, _ := start.Get("ok"); v.Double() != 1 {
		t.Fatalf("startTransaction failed: %+v", start)
	}

	insertInTxn := d.Dispatch(withDB(doc(
		bson.P("insert", bson.String("items")),
		bson.P("documents", bson.Array([]bson.Value{bson.Doc(doc(bson.P("name", bson.String("a"))))})),
		bson.P("lsid", lsid),
		bson.P("txnNumber", bson.Int64(1)),
	), "db"))
	if v, _ := insertInTxn.Get("n"); v.Int32() != 1 {
		t.Fatalf("expected insert inside transaction to succeed, got %+v", insertInTxn)
	}

	visibleOutside := d.Dispatch(withDB(doc(bson.P("count", bson.String("items"))), "db"))
	if v, _ := visibleOutside.Get("n"); v.Int32() != 0 {
		t.Fatalf("uncommitted transactional write must not be visible outside the transaction, got %+v", visibleOutside)
	}

	commit := d.Dispatch(withDB(doc(
		bson.P("commitTransaction", bson.Int32(1)),
		bson.P("lsid", lsid),
		bson.P("txnNumber", bson.Int64(1)),
	), "db"))
	if v, _ := commit.Get("ok"); v.Double() != 1 {
		t.Fatalf("commitTransaction failed: %+v", commit)
	}

	visibleAfterCommit := d.Dispatch(withDB(doc(bson.P("count", bson.String("items"))), "db"))
	if v, _ := visibleAfterCommit.Get("n"); v.Int32() != 1 {
		t.Fatalf("expected committed write to be visible, got %+v", visibleAfterCommit)
	}
}

func TestMismatchedTxnNumberMapsToNoSuchTransactionWithTransientLabel(t *testing.T) {
	d := New(nil, nil, nil)
	lsid := bson.Doc(doc(bson.P("id", bson.String("session-2"))))

	d.Dispatch(withDB(doc(
		bson.P("startTransaction", bson.Int32(1)),
		bson.P("lsid", lsid),
		bson.P("txnNumber", bson.Int64(1)),
	), "db"))

	resp := d.Dispatch(withDB(doc(
		bson.P("insert", bson.String("items")),
		bson.P("documents", bson.Array([]bson.Value{bson.Doc(doc(bson.P("name", bson.String("a"))))})),
		bson.P("lsid", lsid),
		bson.P("txnNumber", bson.Int64(99)),
	), "db"))

	if codeOf(resp) != int32(mongoerr.CodeNoSuchTransaction) {
		t.Fatalf("expected NoSuchTransaction, got %+v", resp)
	}
	labels, ok := resp.Get("errorLabels")
	if !ok {
		t.Fatalf("expected errorLabels on the response, got %+v", resp)
	}
	found := false
	for _, l := range labels.Array() {
		if l.Str() == string(mongoerr.LabelTransientTransactionError) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected TransientTransactionError label, got %+v", labels)
	}
}
