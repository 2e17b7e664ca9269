package vm

// Term order classes. The established ordering is
// number < atom < reference < function < port < pid < tuple < map < list
// < binary.
const (
	orderNumber = iota
	orderAtom
	orderReference
	orderFunction
	orderPort
	orderPid
	orderTuple
	orderMap
	orderList
	orderBinary
)

func (h *Heap) orderClass(t Term) int {
	switch {
	case t.IsInteger():
		return orderNumber
	case t.IsAtom():
		return orderAtom
	case t.IsPid():
		return orderPid
	case t.IsPort():
		return orderPort
	case t.IsList():
		return orderList
	case t.IsBoxed():
		switch h.boxedTag(t) {
		case boxedInt64, boxedFloat:
			return orderNumber
		case boxedRef:
			return orderReference
		case boxedFunction:
			return orderFunction
		case boxedTuple:
			return orderTuple
		case boxedMap:
			return orderMap
		case boxedBinary:
			return orderBinary
		}
	}
	panic("vm: orderClass: invalid term")
}

func (h *Heap) numberValue(t Term) float64 {
	if h.IsFloat(t) {
		return h.Float(t)
	}
	return float64(h.Int(t))
}

// CompareTerms returns -1, 0, or 1 according to the total term order.
// Both terms must live on h.
func (h *Heap) CompareTerms(a, b Term) int {
	ca, cb := h.orderClass(a), h.orderClass(b)
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}

	switch ca {
	case orderNumber:
		// Integer comparison stays exact when both sides are integers.
		if h.IsInteger(a) && h.IsInteger(b) {
			return compareInt64(h.Int(a), h.Int(b))
		}
		va, vb := h.numberValue(a), h.numberValue(b)
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0

	case orderAtom:
		return compareInt64(int64(a.AtomIndex()), int64(b.AtomIndex()))

	case orderPid:
		return compareInt64(int64(a.LocalProcessID()), int64(b.LocalProcessID()))

	case orderPort:
		return compareInt64(int64(a.LocalPortID()), int64(b.LocalPortID()))

	case orderReference:
		ra, rb := h.RefTicks(a), h.RefTicks(b)
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		}
		return 0

	case orderFunction:
		if c := h.CompareTerms(h.FunctionModule(a), h.FunctionModule(b)); c != 0 {
			return c
		}
		return compareInt64(int64(h.FunctionIndex(a)), int64(h.FunctionIndex(b)))

	case orderTuple:
		na, nb := h.TupleArity(a), h.TupleArity(b)
		if na != nb {
			return compareInt64(int64(na), int64(nb))
		}
		for i := 0; i < na; i++ {
			if c := h.CompareTerms(h.TupleElement(a, i), h.TupleElement(b, i)); c != 0 {
				return c
			}
		}
		return 0

	case orderMap:
		na, nb := h.MapLen(a), h.MapLen(b)
		if na != nb {
			return compareInt64(int64(na), int64(nb))
		}
		for i := 0; i < na; i++ {
			if c := h.CompareTerms(h.MapKey(a, i), h.MapKey(b, i)); c != 0 {
				return c
			}
		}
		for i := 0; i < na; i++ {
			if c := h.CompareTerms(h.MapValue(a, i), h.MapValue(b, i)); c != 0 {
				return c
			}
		}
		return 0

	case orderList:
		for a.IsNonEmptyList() && b.IsNonEmptyList() {
			if c := h.CompareTerms(h.ListHead(a), h.ListHead(b)); c != 0 {
				return c
			}
			a, b = h.ListTail(a), h.ListTail(b)
		}
		switch {
		case a.IsNil() && b.IsNil():
			return 0
		case a.IsNil():
			return -1
		case b.IsNil():
			return 1
		}
		// Improper tails compare as terms.
		return h.CompareTerms(a, b)

	case orderBinary:
		ba, bb := h.BinaryBytes(a), h.BinaryBytes(b)
		n := len(ba)
		if len(bb) < n {
			n = len(bb)
		}
		for i := 0; i < n; i++ {
			if ba[i] != bb[i] {
				if ba[i] < bb[i] {
					return -1
				}
				return 1
			}
		}
		return compareInt64(int64(len(ba)), int64(len(bb)))
	}
	return 0
}

// TermsEqual reports structural equality: bit-equal for immediates,
// deep comparison for boxed terms and lists.
func (h *Heap) TermsEqual(a, b Term) bool {
	if a == b {
		return true
	}
	if a.IsImmediate() && b.IsImmediate() {
		return false
	}
	return h.CompareTerms(a, b) == 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
