// Package dispatch implements the single programmatic entry point spec.md
// §4.10/§6 describes: dispatch(command_document) -> response_document.
// Grounded on modern_session.go's Run command shape (a command document
// carries its own name as the first key) and on FerretDB's error code
// table for the error-mapping rules.
package dispatch

import (
	"time"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/config"
	"github.com/kinfkong/modern-mgo/internal/logging"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
	"github.com/kinfkong/modern-mgo/internal/store"
	"github.com/kinfkong/modern-mgo/internal/txn"
)

// Dispatcher owns the engine-wide state (collection store, transaction
// manager, open cursors) behind the dispatch entry point.
type Dispatcher struct {
	engine         *store.EngineStore
	txns           *txn.Manager
	logger         logging.Logger
	profile        config.Profile
	replicaSetName string
	cursors        *cursorRegistry
}

// New builds a Dispatcher. engine may be nil, in which case an empty one
// is created; cfg may be nil, in which case the engine defaults to a
// standalone deployment profile; logger may be nil, in which case nothing
// is logged.
func New(engine *store.EngineStore, cfg *config.Engine, logger logging.Logger) *Dispatcher {
	if engine == nil {
		engine = store.NewEngineStore()
	}
	profile := config.Standalone
	replicaSetName := ""
	if cfg != nil {
		profile = cfg.ResolvedProfile()
		replicaSetName = cfg.ReplicaSetName
	}
	return &Dispatcher{
		engine:         engine,
		txns:           txn.NewManager(engine),
		logger:         logging.OrNop(logger),
		profile:        profile,
		replicaSetName: replicaSetName,
		cursors:        newCursorRegistry(),
	}
}

// Dispatch routes one command document to its handler and always returns a
// response document: ok:1 plus result fields on success, or ok:0 plus
// code/codeName/errmsg/errorLabels on failure. It never panics or returns
// a Go error — every internal failure is folded into the response.
func (d *Dispatcher) Dispatch(cmd *bson.Document) *bson.Document {
	start := time.Now()
	name, ok := commandName(cmd)
	if !ok {
		return errResponse(mongoerr.BadValue("command document must not be empty"))
	}
	db := dbName(cmd)

	resp, err := d.route(name, db, cmd)
	if err != nil {
		d.logger.Error("command %s on %s failed after %s: %v", name, db, time.Since(start), err)
		return errResponse(err)
	}
	d.logger.Debug("command %s on %s completed in %s", name, db, time.Since(start))
	return resp
}

func (d *Dispatcher) route(name, db string, cmd *bson.Document) (*bson.Document, error) {
	switch name {
	case "hello", "isMaster", "ismaster":
		if err := d.validateReadPreference(cmd); err != nil {
			return nil, err
		}
		return d.hello(), nil
	case "ping":
		return okResponse(), nil
	case "buildInfo", "buildinfo":
		return d.buildInfo(), nil
	case "getParameter":
		return d.getParameter(cmd)
	case "startTransaction":
		return d.startTransaction(cmd)
	case "commitTransaction":
		return d.commitTransaction(cmd)
	case "abortTransaction":
		return d.abortTransaction(cmd)
	}

	env, err := txn.ParseEnvelope(name, cmd)
	if err != nil {
		return nil, err
	}
	engine, err := d.txns.Resolve(env)
	if err != nil {
		return nil, err
	}

	switch name {
	case "insert":
		return d.insert(engine, db, cmd)
	case "find":
		return d.find(engine, db, cmd)
	case "getMore":
		return d.getMore(cmd)
	case "killCursors":
		return d.killCursors(cmd)
	case "aggregate":
		return d.aggregate(engine, db, cmd)
	case "update":
		return d.update(engine, db, cmd)
	case "delete":
		return d.delete(engine, db, cmd)
	case "bulkWrite":
		return d.bulkWrite(engine, db, cmd)
	case "count", "countDocuments":
		return d.count(engine, db, cmd)
	case "createIndexes":
		return d.createIndexes(engine, db, cmd)
	case "listIndexes":
		return d.listIndexes(engine, db, cmd)
	case "listCollections":
		return d.listCollections(engine, db, cmd)
	case "findAndModify", "findandmodify":
		return d.findAndModify(engine, db, cmd)
	case "replaceOne", "findOneAndUpdate", "findOneAndReplace":
		return d.findAndModify(engine, db, rewriteToFindAndModify(name, cmd))
	default:
		return nil, mongoerr.CommandNotFound(name)
	}
}
