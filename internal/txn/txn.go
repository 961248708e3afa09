// Package txn implements the transaction manager described in spec.md
// §4.9: per-session transaction state, an eager whole-engine snapshot
// taken at startTransaction, and a diff-based merge of the transaction's
// writes back into the live engine store at commit. Grounded on
// modern_session.go's session/copy lifecycle for the shape of per-session
// state, and on the mongo-tools retry-label vocabulary for the
// TransientTransactionError/UnknownTransactionCommitResult labels.
package txn

import (
	"sort"
	"sync"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/store"
)

// State is a transaction session's position in the Idle -> InTransaction ->
// (Committed | Aborted) state machine.
type State int

const (
	Idle State = iota
	InTransaction
	Committed
	Aborted
)

// TerminalResult is the cached outcome of a commitTransaction or
// abortTransaction call for a given txnNumber, kept so a retried terminal
// command can be answered without re-running the merge.
type TerminalResult struct {
	Committed bool
	Err       *mongoerr.Error
}

// Session holds one logical session's (lsid's) transaction state. A Manager
// owns one Session per distinct lsid it has seen.
type Session struct {
	mu sync.Mutex

	state State

	hasActiveTxnNumber     bool
	activeTxnNumber        int64
	hasLastClosedTxnNumber bool
	lastClosedTxnNumber    int64

	working     *store.EngineStore
	initialDocs map[string][]*bson.Document

	lastResponses map[int64]*TerminalResult
}

func newSession() *Session {
	return &Session{lastResponses: make(map[int64]*TerminalResult)}
}

// Manager dispatches commands that carry a transaction envelope to either
// the live engine store or a session's transaction-scoped working store,
// and owns the commit/abort lifecycle.
type Manager struct {
	mu       sync.Mutex
	engine   *store.EngineStore
	sessions map[string]*Session
}

// NewManager returns a transaction manager backed by engine.
func NewManager(engine *store.EngineStore) *Manager {
	return &Manager{engine: engine, sessions: make(map[string]*Session)}
}

func (m *Manager) session(lsid bson.Value) *Session {
	key := CanonicalKey(lsid)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = newSession()
		m.sessions[key] = s
	}
	return s
}

// Resolve returns the EngineStore an ordinary (non-terminal) command should
// execute against, given its parsed envelope: the live engine when the
// command carries no session/transaction, or a session's isolated working
// store while a transaction is open. It also performs every envelope-level
// transition: starting a transaction, replaying a retried first statement,
// and rejecting stale or mismatched txnNumbers.
func (m *Manager) Resolve(env *Envelope) (*store.EngineStore, error) {
	if !env.HasLSID || !env.HasTxnNumber {
		return m.engine, nil
	}

	session := m.session(env.LSID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if env.HasStartTxn {
		return m.startTransaction(session, env.TxnNumber)
	}

	if session.state != InTransaction || !session.hasActiveTxnNumber || session.activeTxnNumber != env.TxnNumber {
		return nil, mongoerr.NoSuchTransaction(true, "given transaction number %d does not match any in-progress transaction", env.TxnNumber)
	}
	return session.working, nil
}

func (m *Manager) startTransaction(session *Session, txnNumber int64) (*store.EngineStore, error) {
	if session.state == InTransaction {
		if session.hasActiveTxnNumber && session.activeTxnNumber == txnNumber {
			return session.working, nil
		}
		return nil, mongoerr.BadValue("transaction %d is already in progress", session.activeTxnNumber)
	}

	if session.hasLastClosedTxnNumber && txnNumber <= session.lastClosedTxnNumber {
		return nil, mongoerr.NoSuchTransaction(false, "transaction number %d has already been completed", txnNumber)
	}

	snapshot := m.engine.Snapshot()
	working := store.NewEngineStore()
	working.ReplaceWith(snapshot)

	initial := make(map[string][]*bson.Document, len(snapshot.Namespaces()))
	for _, ns := range snapshot.Namespaces() {
		initial[ns] = snapshot.Collection(ns)
	}

	session.working = working
	session.initialDocs = initial
	session.activeTxnNumber = txnNumber
	session.hasActiveTxnNumber = true
	session.state = InTransaction
	return session.working, nil
}

// CommitTransaction merges a session's working store back into the live
// engine and closes the transaction. A repeated call for the same
// txnNumber replays the cached outcome, labeled
// UnknownTransactionCommitResult per spec.md §4.9.
func (m *Manager) CommitTransaction(env *Envelope) error {
	if !env.HasLSID || !env.HasTxnNumber {
		return mongoerr.BadValue("commitTransaction requires lsid and txnNumber")
	}

	session := m.session(env.LSID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if cached, ok := session.lastResponses[env.TxnNumber]; ok {
		if cached.Err != nil {
			return cached.Err.WithLabel(mongoerr.LabelUnknownTransactionCommitResult)
		}
		return nil
	}

	if session.state != InTransaction || !session.hasActiveTxnNumber || session.activeTxnNumber != env.TxnNumber {
		return mongoerr.NoSuchTransaction(true, "given transaction number %d does not match any in-progress transaction", env.TxnNumber)
	}

	mergeErr := m.mergeInto(session)
	m.closeSession(session, env.TxnNumber, mergeErr == nil, asMongoErr(mergeErr))
	return mergeErr
}

// AbortTransaction discards a session's working store without merging it.
// A repeated call for the same txnNumber replays the cached outcome.
func (m *Manager) AbortTransaction(env *Envelope) error {
	if !env.HasLSID || !env.HasTxnNumber {
		return mongoerr.BadValue("abortTransaction requires lsid and txnNumber")
	}

	session := m.session(env.LSID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if cached, ok := session.lastResponses[env.TxnNumber]; ok {
		if cached.Err != nil {
			return cached.Err
		}
		return nil
	}

	if session.state != InTransaction || !session.hasActiveTxnNumber || session.activeTxnNumber != env.TxnNumber {
		return mongoerr.NoSuchTransaction(true, "given transaction number %d does not match any in-progress transaction", env.TxnNumber)
	}

	m.closeSession(session, env.TxnNumber, false, nil)
	return nil
}

func (m *Manager) closeSession(session *Session, txnNumber int64, committed bool, err *mongoerr.Error) {
	session.lastResponses[txnNumber] = &TerminalResult{Committed: committed, Err: err}
	session.lastClosedTxnNumber = txnNumber
	session.hasLastClosedTxnNumber = true
	session.hasActiveTxnNumber = false
	session.working = nil
	session.initialDocs = nil
	if committed {
		session.state = Committed
	} else {
		session.state = Aborted
	}
}

// mergeInto folds session's working store back into the live engine: for
// every namespace touched, only the _ids the transaction actually added,
// changed, or removed are overlaid onto whatever the live store currently
// holds for every other _id (spec.md §4.9's "transactional write wins at
// the same _id" rule).
func (m *Manager) mergeInto(session *Session) error {
	final := session.working.Snapshot()

	for _, ns := range unionNamespaces(session.initialDocs, final) {
		initial := session.initialDocs[ns]
		finalDocs := final.Collection(ns)
		dirty := dirtyIDs(initial, finalDocs)
		if len(dirty) == 0 {
			continue
		}

		live, err := m.engine.Collection(ns).Find(bson.NewDocument(), nil)
		if err != nil {
			return err
		}
		merged := mergeTransactionalWrites(live, finalDocs, dirty)
		m.engine.Collection(ns).ReplaceDocs(merged)
	}
	return nil
}

func unionNamespaces(initial map[string][]*bson.Document, final *store.Snapshot) []string {
	set := make(map[string]bool, len(initial))
	for ns := range initial {
		set[ns] = true
	}
	for _, ns := range final.Namespaces() {
		set[ns] = true
	}
	out := make([]string, 0, len(set))
	for ns := range set {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func asMongoErr(err error) *mongoerr.Error {
	if err == nil {
		return nil
	}
	if e, ok := mongoerr.As(err); ok {
		return e
	}
	return mongoerr.New(mongoerr.CodeBadValue, "%s", err.Error())
}
