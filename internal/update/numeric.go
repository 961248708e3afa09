package update

import (
	"math"
	"math/big"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
)

// addNumeric implements $inc's type-widening addition: int32+int32 stays
// int32 unless it overflows, any int64 operand widens the result to int64,
// any double or decimal128 operand widens to that family.
func addNumeric(current, delta bson.Value) (bson.Value, error) {
	if !current.IsNumeric() || !delta.IsNumeric() {
		return bson.Value{}, mongoerr.BadValue("$inc requires numeric operands")
	}
	if current.Kind() == bson.KindDecimal128 || delta.Kind() == bson.KindDecimal128 {
		return addDecimal(current, delta)
	}
	if current.Kind() == bson.KindDouble || delta.Kind() == bson.KindDouble {
		return bson.Double(numericFloat(current) + numericFloat(delta)), nil
	}
	sum := numericInt64(current) + numericInt64(delta)
	if current.Kind() == bson.KindInt32 && delta.Kind() == bson.KindInt32 &&
		sum >= math.MinInt32 && sum <= math.MaxInt32 {
		return bson.Int32(int32(sum)), nil
	}
	return bson.Int64(sum), nil
}

func addDecimal(a, b bson.Value) (bson.Value, error) {
	af := decimalOperandToBigFloat(a)
	bf := decimalOperandToBigFloat(b)
	sum := new(big.Float).SetPrec(200).Add(af, bf)
	v, err := bson.DecimalFromString(sum.Text('g', 34))
	if err != nil {
		return bson.Value{}, mongoerr.BadValue("$inc decimal128 overflow: %v", err)
	}
	return v, nil
}

func decimalOperandToBigFloat(v bson.Value) *big.Float {
	switch v.Kind() {
	case bson.KindInt32:
		return new(big.Float).SetPrec(200).SetInt64(int64(v.Int32()))
	case bson.KindInt64:
		return new(big.Float).SetPrec(200).SetInt64(v.Int64())
	case bson.KindDouble:
		return new(big.Float).SetPrec(200).SetFloat64(v.Double())
	case bson.KindDecimal128:
		f, _, _ := big.ParseFloat(v.Decimal128().String(), 10, 200, big.ToNearestEven)
		if f == nil {
			return big.NewFloat(0)
		}
		return f
	default:
		return big.NewFloat(0)
	}
}

func numericFloat(v bson.Value) float64 {
	switch v.Kind() {
	case bson.KindInt32:
		return float64(v.Int32())
	case bson.KindInt64:
		return float64(v.Int64())
	case bson.KindDouble:
		return v.Double()
	default:
		return 0
	}
}

func numericInt64(v bson.Value) int64 {
	switch v.Kind() {
	case bson.KindInt32:
		return int64(v.Int32())
	case bson.KindInt64:
		return v.Int64()
	default:
		return 0
	}
}
