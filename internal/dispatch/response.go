package dispatch

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
)

// okResponse builds a successful command response: ok: 1 plus whatever
// result fields the caller supplies.
func okResponse(fields ...bson.Pair) *bson.Document {
	d := bson.NewDocument()
	for _, p := range fields {
		d.Set(p.Key, p.Value)
	}
	d.Set("ok", bson.Double(1))
	return d
}

// errResponse builds a failed command response, per spec.md §4.10/§6:
// ok: 0 plus code, codeName, errmsg, and errorLabels when the error carries
// any.
func errResponse(err error) *bson.Document {
	me, ok := mongoerr.As(err)
	if !ok {
		me = mongoerr.New(mongoerr.CodeBadValue, "%s", err.Error())
	}

	d := bson.NewDocument()
	d.Set("ok", bson.Double(0))
	d.Set("code", bson.Int32(int32(me.Code)))
	d.Set("codeName", bson.String(me.Code.Name()))
	d.Set("errmsg", bson.String(me.Message))
	if len(me.Labels) > 0 {
		labels := make([]bson.Value, len(me.Labels))
		for i, l := range me.Labels {
			labels[i] = bson.String(string(l))
		}
		d.Set("errorLabels", bson.Array(labels))
	}
	return d
}

func docsToValues(docs []*bson.Document) []bson.Value {
	out := make([]bson.Value, len(docs))
	for i, d := range docs {
		out[i] = bson.Doc(d)
	}
	return out
}

func commandName(cmd *bson.Document) (string, bool) {
	pairs := cmd.Pairs()
	if len(pairs) == 0 {
		return "", false
	}
	return pairs[0].Key, true
}

func dbName(cmd *bson.Document) string {
	if v, ok := cmd.Get("$db"); ok && v.Kind() == bson.KindString {
		return v.Str()
	}
	return ""
}

// namespace returns "<db>.<collection>", reading the collection name from
// the command's own first field (e.g. {insert: "orders", ...}), the
// convention every CRUD-shaped command follows.
func namespace(cmd *bson.Document, db string) string {
	pairs := cmd.Pairs()
	if len(pairs) > 0 && pairs[0].Value.Kind() == bson.KindString {
		return db + "." + pairs[0].Value.Str()
	}
	return db + "."
}

func collectionOf(cmd *bson.Document) string {
	pairs := cmd.Pairs()
	if len(pairs) > 0 && pairs[0].Value.Kind() == bson.KindString {
		return pairs[0].Value.Str()
	}
	return ""
}

func docField(cmd *bson.Document, key string) (*bson.Document, bool) {
	v, ok := cmd.Get(key)
	if !ok || v.Kind() != bson.KindDocument {
		return nil, false
	}
	return v.Document(), true
}

func arrayField(cmd *bson.Document, key string) ([]bson.Value, bool) {
	v, ok := cmd.Get(key)
	if !ok || v.Kind() != bson.KindArray {
		return nil, false
	}
	return v.Array(), true
}

func boolField(cmd *bson.Document, key string, def bool) bool {
	v, ok := cmd.Get(key)
	if !ok {
		return def
	}
	return v.Truthy()
}

func intField(cmd *bson.Document, key string) (int, bool) {
	v, ok := cmd.Get(key)
	if !ok {
		return 0, false
	}
	switch v.Kind() {
	case bson.KindInt32:
		return int(v.Int32()), true
	case bson.KindInt64:
		return int(v.Int64()), true
	case bson.KindDouble:
		return int(v.Double()), true
	default:
		return 0, false
	}
}

func stringField(cmd *bson.Document, key string) (string, bool) {
	v, ok := cmd.Get(key)
	if !ok || v.Kind() != bson.KindString {
		return "", false
	}
	return v.Str(), true
}

func documentsField(cmd *bson.Document, key string) ([]*bson.Document, error) {
	vals, ok := arrayField(cmd, key)
	if !ok {
		return nil, mongoerr.BadValue("%s must be an array", key)
	}
	out := make([]*bson.Document, len(vals))
	for i, v := range vals {
		if v.Kind() != bson.KindDocument {
			return nil, mongoerr.BadValue("%s[%d] must be a document", key, i)
		}
		out[i] = v.Document()
	}
	return out, nil
}
