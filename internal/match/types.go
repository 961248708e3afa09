package match

import "github.com/kinfkong/modern-mgo/bson"

// typeAliases is the documented table $type accepts string aliases from,
// mirroring MongoDB's BSON type alias table restricted to the kinds this
// engine's value model actually represents.
var typeAliases = map[string][]bson.Kind{
	"double":   {bson.KindDouble},
	"string":   {bson.KindString},
	"object":   {bson.KindDocument},
	"array":    {bson.KindArray},
	"binData":  {bson.KindBinary},
	"objectId": {bson.KindObjectID},
	"bool":     {bson.KindBool},
	"date":     {bson.KindDateTime},
	"null":     {bson.KindNull},
	"regex":    {bson.KindRegex},
	"int":      {bson.KindInt32},
	"long":     {bson.KindInt64},
	"decimal":  {bson.KindDecimal128},
	"number":   {bson.KindDouble, bson.KindInt32, bson.KindInt64, bson.KindDecimal128},
}

// typeCodes is the numeric-code half of the same table.
var typeCodes = map[int32][]bson.Kind{
	1:  {bson.KindDouble},
	2:  {bson.KindString},
	3:  {bson.KindDocument},
	4:  {bson.KindArray},
	5:  {bson.KindBinary},
	7:  {bson.KindObjectID},
	8:  {bson.KindBool},
	9:  {bson.KindDateTime},
	10: {bson.KindNull},
	11: {bson.KindRegex},
	16: {bson.KindInt32},
	18: {bson.KindInt64},
	19: {bson.KindDecimal128},
}

// kindsForTypeSpec resolves a $type operand (numeric code or string alias)
// to the set of Kinds it should match against.
func kindsForTypeSpec(spec bson.Value) ([]bson.Kind, bool) {
	switch spec.Kind() {
	case bson.KindString:
		kinds, ok := typeAliases[spec.Str()]
		return kinds, ok
	default:
		if spec.IsNumeric() {
			code, ok := asInt32(spec)
			if !ok {
				return nil, false
			}
			kinds, ok := typeCodes[code]
			return kinds, ok
		}
		return nil, false
	}
}

func asInt32(v bson.Value) (int32, bool) {
	switch v.Kind() {
	case bson.KindInt32:
		return v.Int32(), true
	case bson.KindInt64:
		return int32(v.Int64()), true
	case bson.KindDouble:
		return int32(v.Double()), true
	default:
		return 0, false
	}
}

func kindIn(k bson.Kind, kinds []bson.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
