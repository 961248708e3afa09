package txn

import (
	"strconv"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
)

// Envelope is the parsed transaction metadata carried by a command
// document, per spec.md §4.9: a command carries one iff it sets lsid,
// optionally txnNumber/autocommit/startTransaction, or names one of the
// terminal commands directly.
type Envelope struct {
	HasLSID         bool
	LSID            bson.Value
	HasTxnNumber    bool
	TxnNumber       int64
	HasStartTxn     bool
	IsCommitCommand bool
	IsAbortCommand  bool
}

// ParseEnvelope extracts and validates the transaction envelope fields
// from cmd. cmdName is the command's own name (the first key), used to
// detect the two terminal commands.
func ParseEnvelope(cmdName string, cmd *bson.Document) (*Envelope, error) {
	env := &Envelope{
		IsCommitCommand: cmdName == "commitTransaction",
		IsAbortCommand:  cmdName == "abortTransaction",
	}

	if v, ok := cmd.Get("lsid"); ok {
		env.HasLSID = true
		env.LSID = v
	}

	if v, ok := cmd.Get("txnNumber"); ok {
		n, ok := asInt64(v)
		if !ok {
			return nil, mongoerr.BadValue("txnNumber must be an integer")
		}
		env.HasTxnNumber = true
		env.TxnNumber = n
	}

	if v, ok := cmd.Get("autocommit"); ok {
		if v.Kind() != bson.KindBool || v.Bool() {
			return nil, mongoerr.BadValue("autocommit must be false when present")
		}
	}

	if v, ok := cmd.Get("startTransaction"); ok {
		if v.Kind() != bson.KindBool || !v.Bool() {
			return nil, mongoerr.BadValue("startTransaction must be true when present")
		}
		env.HasStartTxn = true
	}

	return env, nil
}

func asInt64(v bson.Value) (int64, bool) {
	switch v.Kind() {
	case bson.KindInt32:
		return int64(v.Int32()), true
	case bson.KindInt64:
		return v.Int64(), true
	case bson.KindDouble:
		f := v.Double()
		if f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

// CanonicalKey renders v into a deterministic string, used both to key
// sessions by lsid and to key documents by _id during commit merge. Not
// grounded on a teacher file — BSON values have no natural Go map key, so
// this is a from-scratch encoding local to this package.
func CanonicalKey(v bson.Value) string {
	switch v.Kind() {
	case bson.KindNull:
		return "n:"
	case bson.KindBool:
		if v.Bool() {
			return "b:1"
		}
		return "b:0"
	case bson.KindInt32:
		return "i:" + strconv.FormatInt(int64(v.Int32()), 10)
	case bson.KindInt64:
		return "i:" + strconv.FormatInt(v.Int64(), 10)
	case bson.KindDouble:
		return "d:" + strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case bson.KindString:
		return "s:" + v.Str()
	case bson.KindObjectID:
		return "o:" + v.Hex()
	case bson.KindDateTime:
		return "t:" + strconv.FormatInt(int64(v.DateTime()), 10)
	case bson.KindBinary:
		return "x:" + strconv.Itoa(int(v.Binary().Subtype)) + ":" + string(v.Binary().Data)
	case bson.KindArray:
		s := "a:["
		for _, elem := range v.Array() {
			s += CanonicalKey(elem) + ","
		}
		return s + "]"
	case bson.KindDocument:
		s := "m:{"
		for _, p := range v.Document().Pairs() {
			s += p.Key + "=" + CanonicalKey(p.Value) + ","
		}
		return s + "}"
	default:
		return "?:"
	}
}
