package bson

import "testing"

func TestDeepCopyRoundTrip(t *testing.T) {
	inner := DocFromPairs(
		P("a", Int64(1)),
		P("b", Array([]Value{String("x"), String("y")})),
	)
	original := Doc(DocFromPairs(
		P("_id", NewObjectId()),
		P("nested", Doc(inner)),
	))

	copied := DeepCopy(original)
	if !Equal(original, copied) {
		t.Fatalf("deep copy should be structurally equal to original")
	}

	// Mutating the copy must not affect the original.
	copied.Document().Set("nested", String("mutated"))
	if Equal(original, copied) {
		t.Fatalf("mutating the copy leaked into the original")
	}
	nestedStill, ok := original.Document().Get("nested")
	if !ok || nestedStill.Kind() != KindDocument {
		t.Fatalf("original document was mutated by copy")
	}
}

func TestDeepCopyBinaryIsIndependent(t *testing.T) {
	data := []byte{1, 2, 3}
	v := NewBinary(0x00, data)
	cp := DeepCopy(v)
	cp.Binary().Data[0] = 0xFF
	if v.Binary().Data[0] != 1 {
		t.Fatalf("deep copy of binary shared underlying storage")
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Null(), false},
		{Bool(false), false},
		{Bool(true), true},
		{Int32(0), false},
		{Int32(1), true},
		{Int64(0), false},
		{Double(0), false},
		{String(""), true},
		{Array(nil), true},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%v) = %v, want %v", c.v.Kind(), got, c.want)
		}
	}
}

func TestObjectIdHexRoundTrip(t *testing.T) {
	hex := "507f1f77bcf86cd799439011"
	oid := ObjectIdHex(hex)
	if oid.Hex() != hex {
		t.Fatalf("Hex() round trip mismatch: got %s want %s", oid.Hex(), hex)
	}
	if !IsObjectIdHex(hex) {
		t.Fatalf("expected %s to be valid hex", hex)
	}
	if IsObjectIdHex("not-hex") {
		t.Fatalf("expected invalid hex to be rejected")
	}
}

func TestObjectIdHexPanicsOnInvalid(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for invalid hex string")
		}
	}()
	_ = ObjectIdHex("invalid-hex")
}
