package bson

import (
	"math"
	"testing"
	"time"
)

func TestEqualCrossNumericKinds(t *testing.T) {
	cases := []struct{ a, b Value }{
		{Int32(1), Int64(1)},
		{Int32(1), Double(1.0)},
		{Int64(10), Double(10.0)},
	}
	for _, c := range cases {
		if !Equal(c.a, c.b) {
			t.Errorf("expected %v (%s) to equal %v (%s)", c.a, c.a.Kind(), c.b, c.b.Kind())
		}
	}
}

func TestEqualStrictAcrossOtherKinds(t *testing.T) {
	if Equal(String("1"), Int32(1)) {
		t.Fatalf("string and number must never compare equal")
	}
	if Equal(Null(), Bool(false)) {
		t.Fatalf("null and false must never compare equal")
	}
}

func TestCompareTypeOrder(t *testing.T) {
	ordered := []Value{
		Null(),
		Int32(5),
		String("a"),
		Doc(NewDocument()),
		Array(nil),
		NewBinary(0, nil),
		NewObjectId(),
		Bool(true),
		DateTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		NewRegex("a", ""),
	}
	for i := 0; i < len(ordered)-1; i++ {
		if Compare(ordered[i], ordered[i+1]) >= 0 {
			t.Fatalf("expected kind %s to sort before %s", ordered[i].Kind(), ordered[i+1].Kind())
		}
	}
}

func TestCompareNaNSortsBelowNumbers(t *testing.T) {
	nan := Double(math.NaN())
	if Compare(nan, Int32(0)) >= 0 {
		t.Fatalf("NaN should sort below any ordinary number")
	}
	if Compare(nan, nan) != 0 {
		t.Fatalf("NaN should compare equal to itself for ordering purposes")
	}
}

func TestCompareArraysLexicographic(t *testing.T) {
	a := Array([]Value{Int32(1), Int32(2)})
	b := Array([]Value{Int32(1), Int32(3)})
	if Compare(a, b) >= 0 {
		t.Fatalf("expected [1,2] < [1,3]")
	}
	prefix := Array([]Value{Int32(1)})
	if Compare(prefix, a) >= 0 {
		t.Fatalf("expected [1] < [1,2]")
	}
}

func TestCompareStringsCaseInsensitiveCollation(t *testing.T) {
	col := &Collation{Locale: "en", Strength: 2}
	if CompareStrings("ABC", "abc", col) != 0 {
		t.Fatalf("expected case-insensitive collation to treat ABC == abc")
	}
	if CompareStrings("ABC", "abc", nil) == 0 {
		t.Fatalf("expected binary comparison to treat ABC != abc")
	}
}
