package vm

import (
	"bytes"
	"testing"
)

// ---------------------------------------------------------------------------
// Immediate round trips
// ---------------------------------------------------------------------------

func TestSmallIntRoundTrip(t *testing.T) {
	tests := []int64{
		0, 1, -1, 42, -42,
		MaxSmallInt, MinSmallInt,
		MaxSmallInt - 1, MinSmallInt + 1,
	}

	for _, n := range tests {
		v := FromInt(n)
		if !v.IsInteger() {
			t.Errorf("FromInt(%d).IsInteger() = false, want true", n)
			continue
		}
		if got := v.Int(); got != n {
			t.Errorf("FromInt(%d).Int() = %d, want %d", n, got, n)
		}
	}
}

func TestSmallIntOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("FromInt(MaxSmallInt+1) did not panic")
		}
	}()
	FromInt(MaxSmallInt + 1)
}

func TestAtomRoundTrip(t *testing.T) {
	for _, idx := range []uint32{0, 1, 7, 1000, 1 << 20} {
		v := FromAtomIndex(idx)
		if !v.IsAtom() {
			t.Errorf("FromAtomIndex(%d).IsAtom() = false, want true", idx)
		}
		if got := v.AtomIndex(); got != idx {
			t.Errorf("FromAtomIndex(%d).AtomIndex() = %d, want %d", idx, got, idx)
		}
	}
}

func TestPidPortRoundTrip(t *testing.T) {
	pid := FromLocalProcessID(42)
	if !pid.IsPid() || pid.LocalProcessID() != 42 {
		t.Errorf("pid round trip failed: %v", pid)
	}
	port := FromLocalPortID(17)
	if !port.IsPort() || port.LocalPortID() != 17 {
		t.Errorf("port round trip failed: %v", port)
	}
	if pid.IsPort() || port.IsPid() {
		t.Error("pid/port tags overlap")
	}
}

func TestDistinguishedImmediates(t *testing.T) {
	if !NilTerm.IsNil() || !NilTerm.IsList() {
		t.Error("NilTerm should be nil and a list")
	}
	if NilTerm.IsNonEmptyList() {
		t.Error("NilTerm should not be a cons cell")
	}
	if !InvalidTerm.IsInvalid() {
		t.Error("InvalidTerm should be invalid")
	}
	if InvalidTerm.IsAtom() || NilTerm.IsAtom() {
		t.Error("nil/invalid must not read as atoms")
	}
	if !NormalAtom.IsAtom() {
		t.Error("NormalAtom should be an atom")
	}
}

func TestImmediateTypeChecks(t *testing.T) {
	v := FromInt(7)
	if v.IsAtom() || v.IsPid() || v.IsPort() || v.IsList() || v.IsBoxed() {
		t.Error("small int misread as another type")
	}
	a := FromAtomIndex(3)
	if a.IsInteger() || a.IsPid() || a.IsBoxed() {
		t.Error("atom misread as another type")
	}
}

// ---------------------------------------------------------------------------
// Boxed round trips
// ---------------------------------------------------------------------------

func newTestHeap(t *testing.T, words int) *Heap {
	t.Helper()
	return NewHeap(words)
}

func TestTupleRoundTrip(t *testing.T) {
	h := newTestHeap(t, 64)
	tup := h.AllocTuple(3)
	if !h.IsTuple(tup) {
		t.Fatal("AllocTuple did not produce a tuple")
	}
	if got := h.TupleArity(tup); got != 3 {
		t.Fatalf("TupleArity = %d, want 3", got)
	}
	h.PutTupleElement(tup, 0, FromInt(1))
	h.PutTupleElement(tup, 1, NormalAtom)
	h.PutTupleElement(tup, 2, NilTerm)
	if got := h.TupleElement(tup, 0); got.Int() != 1 {
		t.Errorf("element 0 = %v, want 1", got)
	}
	if got := h.TupleElement(tup, 1); got != NormalAtom {
		t.Errorf("element 1 = %v, want normal", got)
	}
	if got := h.TupleElement(tup, 2); !got.IsNil() {
		t.Errorf("element 2 = %v, want []", got)
	}
}

func TestListRoundTrip(t *testing.T) {
	h := newTestHeap(t, 64)
	// [1, 2, 3]
	l := NilTerm
	for i := int64(3); i >= 1; i-- {
		l = h.MakeList(FromInt(i), l)
	}
	if !l.IsNonEmptyList() {
		t.Fatal("MakeList did not produce a cons cell")
	}
	var got []int64
	for it := l; it.IsNonEmptyList(); it = h.ListTail(it) {
		got = append(got, h.ListHead(it).Int())
	}
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("list length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("list[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRefRoundTrip(t *testing.T) {
	h := newTestHeap(t, 16)
	ref := h.FromRefTicks(0xDEADBEEFCAFE)
	if !h.IsReference(ref) {
		t.Fatal("FromRefTicks did not produce a reference")
	}
	if got := h.RefTicks(ref); got != 0xDEADBEEFCAFE {
		t.Errorf("RefTicks = %#x, want 0xDEADBEEFCAFE", got)
	}
}

func TestBoxedIntPromotion(t *testing.T) {
	h := newTestHeap(t, 16)
	small := h.FromInt64(12345)
	if !small.IsInteger() {
		t.Error("in-range FromInt64 should stay immediate")
	}
	big := h.FromInt64(MaxSmallInt + 1)
	if big.IsInteger() {
		t.Error("out-of-range FromInt64 should box")
	}
	if !h.IsInteger(big) {
		t.Error("boxed integer should satisfy Heap.IsInteger")
	}
	if got := h.Int(big); got != MaxSmallInt+1 {
		t.Errorf("Heap.Int = %d, want %d", got, MaxSmallInt+1)
	}
	neg := h.FromInt64(MinSmallInt - 1)
	if got := h.Int(neg); got != MinSmallInt-1 {
		t.Errorf("Heap.Int = %d, want %d", got, MinSmallInt-1)
	}
}

func TestFloatRoundTrip(t *testing.T) {
	h := newTestHeap(t, 16)
	for _, f := range []float64{0.0, 1.5, -3.25, 1e100, -1e-100} {
		v := h.FromFloat(f)
		if !h.IsFloat(v) {
			t.Errorf("FromFloat(%v) not a float", f)
			continue
		}
		if got := h.Float(v); got != f {
			t.Errorf("Float = %v, want %v", got, f)
		}
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	h := newTestHeap(t, 64)
	for _, data := range [][]byte{
		nil,
		{1},
		{1, 2, 3, 4, 5, 6, 7, 8},
		[]byte("hello, mailbox"),
	} {
		b := h.BinaryFromBytes(data)
		if !h.IsBinary(b) {
			t.Fatalf("BinaryFromBytes(%v) not a binary", data)
		}
		if got := h.BinaryLen(b); got != len(data) {
			t.Errorf("BinaryLen = %d, want %d", got, len(data))
		}
		if got := h.BinaryBytes(b); !bytes.Equal(got, data) {
			t.Errorf("BinaryBytes = %v, want %v", got, data)
		}
	}
}

func TestMapRoundTrip(t *testing.T) {
	h := newTestHeap(t, 64)
	m := h.AllocMap(2)
	if !h.IsMap(m) {
		t.Fatal("AllocMap did not produce a map")
	}
	h.PutMapEntry(m, 0, NormalAtom, FromInt(1))
	h.PutMapEntry(m, 1, TrueAtom, FromInt(2))
	if got := h.MapLen(m); got != 2 {
		t.Fatalf("MapLen = %d, want 2", got)
	}
	if h.MapKey(m, 1) != TrueAtom || h.MapValue(m, 1).Int() != 2 {
		t.Error("map entry 1 round trip failed")
	}
}

func TestFunctionRoundTrip(t *testing.T) {
	h := newTestHeap(t, 64)
	f := h.MakeFunction(NormalAtom, 7, []Term{FromInt(9)})
	if !h.IsFunction(f) {
		t.Fatal("MakeFunction did not produce a function")
	}
	if h.FunctionModule(f) != NormalAtom {
		t.Error("FunctionModule mismatch")
	}
	if got := h.FunctionIndex(f); got != 7 {
		t.Errorf("FunctionIndex = %d, want 7", got)
	}
}

// ---------------------------------------------------------------------------
// Equality and ordering
// ---------------------------------------------------------------------------

func TestTermOrderAcrossClasses(t *testing.T) {
	h := newTestHeap(t, 128)
	ref := h.FromRefTicks(1)
	fun := h.MakeFunction(NormalAtom, 0, nil)
	tup := h.AllocTuple(1)
	h.PutTupleElement(tup, 0, FromInt(1))
	m := h.AllocMap(0)
	lst := h.MakeList(FromInt(1), NilTerm)
	bin := h.BinaryFromBytes([]byte{1})

	// number < atom < reference < function < port < pid < tuple < map
	// < list < binary
	ordered := []Term{
		FromInt(99), NormalAtom, ref, fun,
		FromLocalPortID(1), FromLocalProcessID(1),
		tup, m, lst, bin,
	}
	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			got := h.CompareTerms(ordered[i], ordered[j])
			want := compareInt64(int64(i), int64(j))
			if got != want {
				t.Errorf("CompareTerms(%d, %d) = %d, want %d", i, j, got, want)
			}
		}
	}
}

func TestStructuralEquality(t *testing.T) {
	h := newTestHeap(t, 128)
	a := h.AllocTuple(2)
	h.PutTupleElement(a, 0, NormalAtom)
	h.PutTupleElement(a, 1, FromInt(3))
	b := h.AllocTuple(2)
	h.PutTupleElement(b, 0, NormalAtom)
	h.PutTupleElement(b, 1, FromInt(3))

	if !h.TermsEqual(a, b) {
		t.Error("structurally equal tuples compare unequal")
	}
	h.PutTupleElement(b, 1, FromInt(4))
	if h.TermsEqual(a, b) {
		t.Error("different tuples compare equal")
	}
	if !h.TermsEqual(NormalAtom, NormalAtom) {
		t.Error("atom equality failed")
	}
	if h.TermsEqual(NormalAtom, KillAtom) {
		t.Error("distinct atoms compare equal")
	}
}

func TestNumericOrdering(t *testing.T) {
	h := newTestHeap(t, 32)
	f := h.FromFloat(2.5)
	if h.CompareTerms(FromInt(2), f) != -1 {
		t.Error("2 should order before 2.5")
	}
	if h.CompareTerms(FromInt(3), f) != 1 {
		t.Error("3 should order after 2.5")
	}
	big := h.FromInt64(MaxSmallInt + 1)
	if h.CompareTerms(FromInt(0), big) != -1 {
		t.Error("0 should order before a boxed integer")
	}
}

func TestListOrdering(t *testing.T) {
	h := newTestHeap(t, 64)
	l1 := h.MakeList(FromInt(1), NilTerm)
	l12 := h.MakeList(FromInt(2), NilTerm)
	l12 = h.MakeList(FromInt(1), l12)
	if h.CompareTerms(l1, l12) != -1 {
		t.Error("[1] should order before [1,2]")
	}
	if h.CompareTerms(l12, l12) != 0 {
		t.Error("list should compare equal to itself")
	}
}
