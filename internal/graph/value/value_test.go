package value

import (
	"math"
	"testing"
)

func TestAccessorsRoundTrip(t *testing.T) {
	if i, ok := Int(7).AsInt(); !ok || i != 7 {
		t.Fatalf("AsInt() = %d, %v", i, ok)
	}
	if f, ok := Float(1.5).AsFloat(); !ok || f != 1.5 {
		t.Fatalf("AsFloat() = %v, %v", f, ok)
	}
	if b, ok := Bool(true).AsBool(); !ok || !b {
		t.Fatalf("AsBool() = %v, %v", b, ok)
	}
	if s, ok := Text("hi").AsText(); !ok || s != "hi" {
		t.Fatalf("AsText() = %q, %v", s, ok)
	}
	if _, ok := Int(1).AsText(); ok {
		t.Fatalf("AsText() on an Int should fail")
	}
}

func TestEqualIsBitIdenticalForFloats(t *testing.T) {
	nan1 := Float(math.NaN())
	nan2 := Float(math.NaN())
	if !nan1.Equal(nan2) {
		t.Fatalf("expected NaN to equal NaN under bit-identical comparison")
	}

	posZero := Float(0.0)
	negZero := Float(math.Copysign(0, -1))
	if posZero.Equal(negZero) {
		t.Fatalf("expected +0.0 and -0.0 to differ under bit-identical comparison")
	}
}

func TestCompareOrdersNaNGreatest(t *testing.T) {
	nan := Float(math.NaN())
	one := Float(1.0)
	big := Float(1e300)

	if !one.Less(nan) {
		t.Fatalf("expected 1.0 < NaN")
	}
	if !big.Less(nan) {
		t.Fatalf("expected 1e300 < NaN")
	}
	if nan.Less(one) {
		t.Fatalf("NaN should never be less than a non-NaN float")
	}
}

func TestCompareOrdersByKindWhenMixed(t *testing.T) {
	if !Int(100).Less(Float(-100)) {
		t.Fatalf("expected Int to sort before Float regardless of magnitude")
	}
	if !Float(0).Less(Bool(false)) {
		t.Fatalf("expected Float to sort before Bool")
	}
	if !Bool(true).Less(Text("")) {
		t.Fatalf("expected Bool to sort before Text")
	}
}

func TestHashKeyDistinguishesFloatBits(t *testing.T) {
	keys := map[any]bool{}
	keys[Float(0.0).HashKey()] = true
	keys[Float(math.Copysign(0, -1)).HashKey()] = true
	keys[Float(math.NaN()).HashKey()] = true
	if len(keys) != 3 {
		t.Fatalf("expected 3 distinct hash keys, got %d", len(keys))
	}
}

func TestMapCloneIsIndependent(t *testing.T) {
	m := Map{"a": Int(1)}
	clone := m.Clone()
	clone["a"] = Int(2)
	if m["a"] != Int(1) {
		t.Fatalf("mutating clone should not affect original")
	}
}

func TestMapMergeOverlaysOther(t *testing.T) {
	base := Map{"a": Int(1), "b": Int(2)}
	merged := base.Merge(Map{"b": Int(3), "c": Int(4)})
	if merged["a"] != Int(1) || merged["b"] != Int(3) || merged["c"] != Int(4) {
		t.Fatalf("unexpected merge result: %#v", merged)
	}
	if base["b"] != Int(2) {
		t.Fatalf("merge should not mutate base")
	}
}

func TestStringRendering(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Int(42), "42"},
		{Float(3.5), "3.5"},
		{Bool(true), "true"},
		{Text("hi"), "hi"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
