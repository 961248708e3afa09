package dispatch

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/txn"
)

// startTransaction is the standalone form of starting a transaction
// (spec.md §6 lists it as its own supported command, alongside the more
// common driver style of setting startTransaction: true on a command's
// own envelope, which txn.Manager.Resolve also handles).
func (d *Dispatcher) startTransaction(cmd *bson.Document) (*bson.Document, error) {
	env, err := txn.ParseEnvelope("startTransaction", cmd)
	if err != nil {
		return nil, err
	}
	env.HasStartTxn = true
	if _, err := d.txns.Resolve(env); err != nil {
		return nil, err
	}
	return okResponse(), nil
}

func (d *Dispatcher) commitTransaction(cmd *bson.Document) (*bson.Document, error) {
	env, err := txn.ParseEnvelope("commitTransaction", cmd)
	if err != nil {
		return nil, err
	}
	if err := d.txns.CommitTransaction(env); err != nil {
		return nil, err
	}
	return okResponse(), nil
}

func (d *Dispatcher) abortTransaction(cmd *bson.Document) (*bson.Document, error) {
	env, err := txn.ParseEnvelope("abortTransaction", cmd)
	if err != nil {
		return nil, err
	}
	if err := d.txns.AbortTransaction(env); err != nil {
		return nil, err
	}
	return okResponse(), nil
}
