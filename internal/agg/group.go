package agg

import (
	"sort"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/match"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
)

// accumulator tracks the running state of one $group output field across
// the documents sharing a group key, per spec.md §4.6's accumulator
// subset: $sum, $first, $addToSet.
type accumulator struct {
	op       string
	sum      float64
	first    bson.Value
	firstSet bool
	set      []bson.Value
}

func (a *accumulator) update(v bson.Value) error {
	switch a.op {
	case "$sum":
		f, ok := numericAsFloat(v)
		if !ok {
			f = 0
		}
		a.sum += f
	case "$first":
		if !a.firstSet {
			a.first = v
			a.firstSet = true
		}
	case "$addToSet":
		for _, existing := range a.set {
			if bson.Equal(existing, v) {
				return nil
			}
		}
		a.set = append(a.set, bson.DeepCopy(v))
	default:
		return mongoerr.Unsupported("unsupported $group accumulator %q", a.op)
	}
	return nil
}

func (a *accumulator) finalize() bson.Value {
	switch a.op {
	case "$sum":
		return bson.Double(a.sum)
	case "$first":
		if a.firstSet {
			return a.first
		}
		return bson.Null()
	case "$addToSet":
		return bson.Array(a.set)
	default:
		return bson.Null()
	}
}

func numericAsFloat(v bson.Value) (float64, bool) {
	switch v.Kind() {
	case bson.KindInt32:
		return float64(v.Int32()), true
	case bson.KindInt64:
		return float64(v.Int64()), true
	case bson.KindDouble:
		return v.Double(), true
	default:
		return 0, false
	}
}

type fieldAccumulatorSpec struct {
	name string
	op   string
	expr bson.Value
}

func parseAccumulatorSpecs(spec *bson.Document) ([]fieldAccumulatorSpec, error) {
	var specs []fieldAccumulatorSpec
	for _, pair := range spec.Pairs() {
		if pair.Key == "_id" {
			continue
		}
		if pair.Value.Kind() != bson.KindDocument || pair.Value.Document().Len() != 1 {
			return nil, mongoerr.BadValue("$group field %q must name exactly one accumulator", pair.Key)
		}
		accPair := pair.Value.Document().Pairs()[0]
		specs = append(specs, fieldAccumulatorSpec{name: pair.Key, op: accPair.Key, expr: accPair.Value})
	}
	return specs, nil
}

type groupBucket struct {
	key  bson.Value
	accs []*accumulator
}

// runGroup implements $group: group by the "_id" expression (compared by
// deep structural equality), output in first-seen-key order.
func runGroup(docs []*bson.Document, spec *bson.Document) ([]*bson.Document, error) {
	idExpr, ok := spec.Get("_id")
	if !ok {
		return nil, mongoerr.BadValue("$group requires an _id expression")
	}
	specs, err := parseAccumulatorSpecs(spec)
	if err != nil {
		return nil, err
	}

	var buckets []*groupBucket
	for _, d := range docs {
		keyVal, err := match.EvalExpr(d, idExpr)
		if err != nil {
			return nil, err
		}
		bucket := findBucket(buckets, keyVal)
		if bucket == nil {
			bucket = &groupBucket{key: keyVal}
			for _, s := range specs {
				bucket.accs = append(bucket.accs, &accumulator{op: s.op})
			}
			buckets = append(buckets, bucket)
		}
		for i, s := range specs {
			v, err := match.EvalExpr(d, s.expr)
			if err != nil {
				return nil, err
			}
			if err := bucket.accs[i].update(v); err != nil {
				return nil, err
			}
		}
	}

	out := make([]*bson.Document, 0, len(buckets))
	for _, b := range buckets {
		result := bson.DocFromPairs(bson.P("_id", b.key))
		for i, s := range specs {
			result.Set(s.name, b.accs[i].finalize())
		}
		out = append(out, result)
	}
	return out, nil
}

func findBucket(buckets []*groupBucket, key bson.Value) *groupBucket {
	for _, b := range buckets {
		if bson.Equal(b.key, key) {
			return b
		}
	}
	return nil
}

// runSortByCount implements $sortByCount: group by expr -> {_id, count},
// then sort by count descending, tie-broken by _id ascending.
func runSortByCount(docs []*bson.Document, expr bson.Value) ([]*bson.Document, error) {
	var buckets []*groupBucket
	for _, d := range docs {
		keyVal, err := match.EvalExpr(d, expr)
		if err != nil {
			return nil, err
		}
		bucket := findBucket(buckets, keyVal)
		if bucket == nil {
			bucket = &groupBucket{key: keyVal, accs: []*accumulator{{op: "$sum"}}}
			buckets = append(buckets, bucket)
		}
		if err := bucket.accs[0].update(bson.Int32(1)); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		ci := buckets[i].accs[0].sum
		cj := buckets[j].accs[0].sum
		if ci != cj {
			return ci > cj
		}
		return bson.Compare(buckets[i].key, buckets[j].key) < 0
	})

	out := make([]*bson.Document, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bson.DocFromPairs(bson.P("_id", b.key), bson.P("count", bson.Int64(int64(b.accs[0].sum)))))
	}
	return out, nil
}
