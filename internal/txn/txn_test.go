package txn

import (
	"testing"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/store"
)

func doc(pairs ...bson.Pair) *bson.Document { return bson.DocFromPairs(pairs...) }

func startEnvelope(lsid bson.Value, txnNumber int64) *Envelope {
	return &Envelope{HasLSID: true, LSID: lsid, HasTxnNumber: true, TxnNumber: txnNumber, HasStartTxn: true}
}

func ongoingEnvelope(lsid bson.Value, txnNumber int64) *Envelope {
	return &Envelope{HasLSID: true, LSID: lsid, HasTxnNumber: true, TxnNumber: txnNumber}
}

func TestParseEnvelopeRejectsAutocommitTrue(t *testing.T) {
	cmd := doc(bson.P("autocommit", bson.Bool(true)))
	if _, err := ParseEnvelope("insert", cmd); err == nil {
		t.Fatalf("expected autocommit=true to be rejected")
	}
}

func TestParseEnvelopeDetectsTerminalCommands(t *testing.T) {
	env, err := ParseEnvelope("commitTransaction", doc())
	if err != nil || !env.IsCommitCommand {
		t.Fatalf("expected commitTransaction to be recognized, got %+v err=%v", env, err)
	}
	env, err = ParseEnvelope("abortTransaction", doc())
	if err != nil || !env.IsAbortCommand {
		t.Fatalf("expected abortTransaction to be recognized, got %+v err=%v", env, err)
	}
}

func TestResolveWithoutEnvelopeReturnsLiveEngine(t *testing.T) {
	engine := store.NewEngineStore()
	m := NewManager(engine)
	got, err := m.Resolve(&Envelope{})
	if err != nil || got != engine {
		t.Fatalf("expected live engine for a command with no envelope, got %v err=%v", got, err)
	}
}

func TestStartTransactionGivesIsolatedWorkingStore(t *testing.T) {
	engine := store.NewEngineStore()
	_ = engine.Collection("db.items").InsertMany([]*bson.Document{doc(bson.P("v", bson.Int32(1)))})

	m := NewManager(engine)
	lsid := bson.String("session-1")

	working, err := m.Resolve(startEnvelope(lsid, 1))
	if err != nil {
		t.Fatalf("Resolve startTransaction: %v", err)
	}
	if working == engine {
		t.Fatalf("expected a working store distinct from the live engine")
	}

	_ = working.Collection("db.items").InsertMany([]*bson.Document{doc(bson.P("v", bson.Int32(2)))})

	liveDocs, _ := engine.Collection("db.items").Find(bson.NewDocument(), nil)
	if len(liveDocs) != 1 {
		t.Fatalf("expected the live engine to be unaffected by uncommitted transactional writes, got %d docs", len(liveDocs))
	}
}

func TestMonotonicTxnNumberRejectsReplayOfClosedNumber(t *testing.T) {
	engine := store.NewEngineStore()
	m := NewManager(engine)
	lsid := bson.String("session-2")

	if _, err := m.Resolve(startEnvelope(lsid, 5)); err != nil {
		t.Fatalf("Resolve startTransaction: %v", err)
	}
	commitEnv := &Envelope{HasLSID: true, LSID: lsid, HasTxnNumber: true, TxnNumber: 5, IsCommitCommand: true}
	if err := m.CommitTransaction(commitEnv); err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}

	_, err := m.Resolve(startEnvelope(lsid, 5))
	if err == nil {
		t.Fatalf("expected re-using a closed txnNumber to be rejected")
	}
	if e, ok := mongoerr.As(err); !ok || e.Code != mongoerr.CodeNoSuchTransaction {
		t.Fatalf("expected NoSuchTransaction, got %v", err)
	}
}

func TestOngoingCommandRejectsMismatchedTxnNumber(t *testing.T) {
	engine := store.NewEngineStore()
	m := NewManager(engine)
	lsid := bson.String("session-3")

	if _, err := m.Resolve(startEnvelope(lsid, 1)); err != nil {
		t.Fatalf("Resolve startTransaction: %v", err)
	}

	_, err := m.Resolve(ongoingEnvelope(lsid, 2))
	if err == nil {
		t.Fatalf("expected mismatched txnNumber to be rejected")
	}
	e, ok := mongoerr.As(err)
	if !ok || e.Code != mongoerr.CodeNoSuchTransaction {
		t.Fatalf("expected NoSuchTransaction, got %v", err)
	}
	found := false
	for _, l := range e.Labels {
		if l == mongoerr.LabelTransientTransactionError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected TransientTransactionError label, got %+v", e.Labels)
	}
}

func TestCommitMergesWritesAndLeavesUntouchedDocsAlone(t *testing.T) {
	engine := store.NewEngineStore()
	_ = engine.Collection("db.items").InsertMany([]*bson.Document{
		doc(bson.P("_id", bson.Int32(1)), bson.P("v", bson.Int32(1))),
		doc(bson.P("_id", bson.Int32(2)), bson.P("v", bson.Int32(2))),
	})

	m := NewManager(engine)
	lsid := bson.String("session-4")

	working, err := m.Resolve(startEnvelope(lsid, 1))
	if err != nil {
		t.Fatalf("Resolve startTransaction: %v", err)
	}

	// A concurrent non-transactional write to a different _id, made after
	// the snapshot was taken.
	_, concurrentErr := engine.Collection("db.items").Update(
		doc(bson.P("_id", bson.Int32(2))),
		doc(bson.P("$set", bson.Doc(doc(bson.P("v", bson.Int32(20)))))),
		false, false, nil, nil,
	)
	if concurrentErr != nil {
		t.Fatalf("concurrent update: %v", concurrentErr)
	}

	_, updErr := working.Collection("db.items").Update(
		doc(bson.P("_id", bson.Int32(1))),
		doc(bson.P("$set", bson.Doc(doc(bson.P("v", bson.Int32(100)))))),
		false, false, nil, nil,
	)
	if updErr != nil {
		t.Fatalf("transactional update: %v", updErr)
	}

	commitEnv := &Envelope{HasLSID: true, LSID: lsid, HasTxnNumber: true, TxnNumber: 1, IsCommitCommand: true}
	if err := m.CommitTransaction(commitEnv); err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}

	result, _ := engine.Collection("db.items").Find(doc(bson.P("_id", bson.Int32(1))), nil)
	if len(result) != 1 || result[0].MustGet("v").Int32() != 100 {
		t.Fatalf("expected the transactional write to win for _id 1, got %+v", result)
	}
	result2, _ := engine.Collection("db.items").Find(doc(bson.P("_id", bson.Int32(2))), nil)
	if len(result2) != 1 || result2[0].MustGet("v").Int32() != 20 {
		t.Fatalf("expected the untouched _id 2 to keep the concurrent non-transactional write, got %+v", result2)
	}
}

func TestCommitReplayReturnsUnknownTransactionCommitResultOnFailure(t *testing.T) {
	engine := store.NewEngineStore()
	m := NewManager(engine)
	lsid := bson.String("session-5")

	if _, err := m.Resolve(startEnvelope(lsid, 1)); err != nil {
		t.Fatalf("Resolve startTransaction: %v", err)
	}

	session := m.session(lsid)
	session.mu.Lock()
	session.lastResponses[1] = &TerminalResult{Committed: false, Err: mongoerr.BadValue("merge failed")}
	session.lastClosedTxnNumber = 1
	session.hasLastClosedTxnNumber = true
	session.mu.Unlock()

	commitEnv := &Envelope{HasLSID: true, LSID: lsid, HasTxnNumber: true, TxnNumber: 1, IsCommitCommand: true}
	err := m.CommitTransaction(commitEnv)
	if err == nil {
		t.Fatalf("expected the cached failure to be replayed")
	}
	e, ok := mongoerr.As(err)
	if !ok {
		t.Fatalf("expected a mongoerr.Error, got %v", err)
	}
	found := false
	for _, l := range e.Labels {
		if l == mongoerr.LabelUnknownTransactionCommitResult {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected UnknownTransactionCommitResult label on replay, got %+v", e.Labels)
	}
}

func TestAbortDiscardsWorkingStoreAndIsIdempotent(t *testing.T) {
	engine := store.NewEngineStore()
	m := NewManager(engine)
	lsid := bson.String("session-6")

	working, err := m.Resolve(startEnvelope(lsid, 1))
	if err != nil {
		t.Fatalf("Resolve startTransaction: %v", err)
	}
	_ = working.Collection("db.items").InsertMany([]*bson.Document{doc(bson.P("v", bson.Int32(1)))})

	abortEnv := &Envelope{HasLSID: true, LSID: lsid, HasTxnNumber: true, TxnNumber: 1, IsAbortCommand: true}
	if err := m.AbortTransaction(abortEnv); err != nil {
		t.Fatalf("AbortTransaction: %v", err)
	}
	if err := m.AbortTransaction(abortEnv); err != nil {
		t.Fatalf("expected repeated abortTransaction to be a no-op, got %v", err)
	}

	liveDocs, _ := engine.Collection("db.items").Find(bson.NewDocument(), nil)
	if len(liveDocs) != 0 {
		t.Fatalf("expected aborted transactional writes to never reach the live engine, got %d docs", len(liveDocs))
	}
}
