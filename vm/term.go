package vm

import (
	"math"
)

// Term represents an Erlang term as a single tagged machine word.
//
// The low bits of the word select the representation:
//   - Boxed: primary tag 0b00, payload is a word offset into the owning
//     heap arena; the slot at that offset holds a header word.
//   - List: primary tag 0b01, payload is the word offset of a 2-word cons
//     cell (head, tail).
//   - Immediate: primary tag 0b11, further discriminated by the low 4 or
//     6 bits (small integers, atoms, pids, ports, nil, invalid).
//
// Primary tag 0b10 never appears in a live term: boxed header words carry
// it so the collector can walk to-space object by object, and the cons-cell
// forwarding marker reuses it in from-space.
type Term uint64

// Primary tags (low 2 bits).
const (
	termPrimaryMask  Term = 0x3
	termPrimaryBoxed Term = 0x0
	termPrimaryList  Term = 0x1
	termPrimaryHdr   Term = 0x2
	termPrimaryImmed Term = 0x3
)

// Immediate tags.
const (
	termIntegerTag Term = 0xF // low 4 bits; value << 4
	termImmedMask4 Term = 0xF

	termAtomTag Term = 0x0B // low 6 bits; atom index << 6
	termPidTag  Term = 0x03 // low 6 bits; local process id << 6
	termPortTag Term = 0x23 // low 6 bits; local port id << 6
	termImmed6  Term = 0x3F
)

// Distinguished immediates.
const (
	// InvalidTerm is the "no term" sentinel. It lives in the atom immediate
	// space but is not a valid atom.
	InvalidTerm Term = 0x2B

	// NilTerm is the empty list.
	NilTerm Term = 0x3B
)

// Small integer range: signed machine word shifted right by the tag width.
const (
	MaxSmallInt int64 = (1 << 59) - 1
	MinSmallInt int64 = -(1 << 59)

	intTagShift = 4
)

// Boxed header tags (low 6 bits of the header word, primary bits 0b10).
// The upper bits carry the payload size in words, excluding the header.
const (
	boxedTuple    Term = 0x02
	boxedInt64    Term = 0x0A
	boxedRef      Term = 0x12
	boxedFunction Term = 0x16
	boxedFloat    Term = 0x1A
	boxedBinary   Term = 0x22
	boxedMap      Term = 0x2E

	boxedTagMask    Term = 0x3F
	boxedSizeShift       = 6
)

func makeHeader(size int, tag Term) Term {
	return Term(size)<<boxedSizeShift | tag
}

// ---------------------------------------------------------------------------
// Immediate constructors
// ---------------------------------------------------------------------------

// FromInt creates a term from an int64. Values outside the small-integer
// range must be boxed with Heap.FromInt64 instead; FromInt panics on them.
func FromInt(n int64) Term {
	if n > MaxSmallInt || n < MinSmallInt {
		panic("vm: FromInt: value out of small integer range")
	}
	return Term(uint64(n)<<intTagShift) | termIntegerTag
}

// FromInt32 creates a small-integer term from an int32.
func FromInt32(n int32) Term {
	return FromInt(int64(n))
}

// FromAtomIndex creates an atom term from a global atom table index.
func FromAtomIndex(index uint32) Term {
	return Term(index)<<6 | termAtomTag
}

// FromLocalProcessID creates a local pid term.
func FromLocalProcessID(id int32) Term {
	return Term(uint32(id))<<6 | termPidTag
}

// FromLocalPortID creates a local port term.
func FromLocalPortID(id int32) Term {
	return Term(uint32(id))<<6 | termPortTag
}

// ---------------------------------------------------------------------------
// Immediate predicates and accessors
// ---------------------------------------------------------------------------

// IsImmediate returns true if t does not point into any heap.
func (t Term) IsImmediate() bool {
	return t&termPrimaryMask == termPrimaryImmed
}

// IsInteger returns true for small integers only. Boxed 64-bit integers
// are covered by Heap.IsInteger.
func (t Term) IsInteger() bool {
	return t&termImmedMask4 == termIntegerTag
}

// IsAtom returns true if t is an atom.
func (t Term) IsAtom() bool {
	return t&termImmed6 == termAtomTag
}

// IsNil returns true if t is the empty list.
func (t Term) IsNil() bool {
	return t == NilTerm
}

// IsInvalid returns true if t is the invalid sentinel.
func (t Term) IsInvalid() bool {
	return t == InvalidTerm
}

// IsPid returns true if t is a local process id.
func (t Term) IsPid() bool {
	return t&termImmed6 == termPidTag
}

// IsPort returns true if t is a local port id.
func (t Term) IsPort() bool {
	return t&termImmed6 == termPortTag
}

// IsList returns true for both cons cells and the empty list.
func (t Term) IsList() bool {
	return t&termPrimaryMask == termPrimaryList || t == NilTerm
}

// IsNonEmptyList returns true for cons cells only.
func (t Term) IsNonEmptyList() bool {
	return t&termPrimaryMask == termPrimaryList
}

// IsBoxed returns true if t references a boxed heap object.
func (t Term) IsBoxed() bool {
	return t&termPrimaryMask == termPrimaryBoxed
}

// Int returns the value of a small-integer term.
// Panics if t is not a small integer.
func (t Term) Int() int64 {
	if !t.IsInteger() {
		panic("vm: Term.Int: not a small integer")
	}
	return int64(t) >> intTagShift
}

// AtomIndex returns the atom table index of an atom term.
// Panics if t is not an atom.
func (t Term) AtomIndex() uint32 {
	if !t.IsAtom() {
		panic("vm: Term.AtomIndex: not an atom")
	}
	return uint32(t >> 6)
}

// LocalProcessID returns the pid payload of a pid term.
// Panics if t is not a pid.
func (t Term) LocalProcessID() int32 {
	if !t.IsPid() {
		panic("vm: Term.LocalProcessID: not a pid")
	}
	return int32(t >> 6)
}

// LocalPortID returns the port payload of a port term.
// Panics if t is not a port.
func (t Term) LocalPortID() int32 {
	if !t.IsPort() {
		panic("vm: Term.LocalPortID: not a port")
	}
	return int32(t >> 6)
}

func (t Term) boxedOffset() int {
	return int(t >> 2)
}

func boxedTerm(offset int) Term {
	return Term(offset) << 2
}

func listTerm(offset int) Term {
	return Term(offset)<<2 | termPrimaryList
}

func (t Term) listOffset() int {
	return int(t >> 2)
}

// ---------------------------------------------------------------------------
// Boxed predicates (need the owning heap to read the header)
// ---------------------------------------------------------------------------

func (h *Heap) boxedHeader(t Term) Term {
	return h.arena[t.boxedOffset()]
}

func (h *Heap) boxedTag(t Term) Term {
	return h.boxedHeader(t) & boxedTagMask
}

func boxedSize(header Term) int {
	return int(header >> boxedSizeShift)
}

// IsTuple returns true if t is a tuple on h.
func (h *Heap) IsTuple(t Term) bool {
	return t.IsBoxed() && h.boxedTag(t) == boxedTuple
}

// IsBinary returns true if t is a binary on h.
func (h *Heap) IsBinary(t Term) bool {
	return t.IsBoxed() && h.boxedTag(t) == boxedBinary
}

// IsReference returns true if t is a reference on h.
func (h *Heap) IsReference(t Term) bool {
	return t.IsBoxed() && h.boxedTag(t) == boxedRef
}

// IsFloat returns true if t is a boxed float on h.
func (h *Heap) IsFloat(t Term) bool {
	return t.IsBoxed() && h.boxedTag(t) == boxedFloat
}

// IsFunction returns true if t is a function closure on h.
func (h *Heap) IsFunction(t Term) bool {
	return t.IsBoxed() && h.boxedTag(t) == boxedFunction
}

// IsMap returns true if t is a map on h.
func (h *Heap) IsMap(t Term) bool {
	return t.IsBoxed() && h.boxedTag(t) == boxedMap
}

// IsInteger returns true for small integers and boxed 64-bit integers.
func (h *Heap) IsInteger(t Term) bool {
	return t.IsInteger() || (t.IsBoxed() && h.boxedTag(t) == boxedInt64)
}

// ---------------------------------------------------------------------------
// Boxed constructors
// ---------------------------------------------------------------------------

// AllocTuple allocates a tuple of the given arity with all elements set to
// the invalid sentinel. The caller must have reserved TupleSize(arity)
// words with EnsureFree.
func (h *Heap) AllocTuple(arity int) Term {
	off := h.alloc(arity + 1)
	h.arena[off] = makeHeader(arity, boxedTuple)
	for i := 1; i <= arity; i++ {
		h.arena[off+i] = InvalidTerm
	}
	return boxedTerm(off)
}

// MakeList allocates a cons cell. Requires ConsSize reserved words.
func (h *Heap) MakeList(head, tail Term) Term {
	off := h.alloc(2)
	h.arena[off] = head
	h.arena[off+1] = tail
	return listTerm(off)
}

// FromRefTicks boxes a 64-bit reference. Requires RefSize reserved words.
func (h *Heap) FromRefTicks(ticks uint64) Term {
	off := h.alloc(RefSize)
	h.arena[off] = makeHeader(1, boxedRef)
	h.arena[off+1] = Term(ticks)
	return boxedTerm(off)
}

// FromInt64 creates an integer term, boxing it when it does not fit the
// small-integer range. Requires BoxedIntSize reserved words in the boxed
// case.
func (h *Heap) FromInt64(n int64) Term {
	if n <= MaxSmallInt && n >= MinSmallInt {
		return FromInt(n)
	}
	off := h.alloc(BoxedIntSize)
	h.arena[off] = makeHeader(1, boxedInt64)
	h.arena[off+1] = Term(uint64(n))
	return boxedTerm(off)
}

// FromFloat boxes a float64. Requires FloatSize reserved words.
func (h *Heap) FromFloat(f float64) Term {
	off := h.alloc(FloatSize)
	h.arena[off] = makeHeader(1, boxedFloat)
	h.arena[off+1] = Term(math.Float64bits(f))
	return boxedTerm(off)
}

// BinaryFromBytes allocates a binary holding a copy of data. Requires
// BinarySize(len(data)) reserved words.
func (h *Heap) BinaryFromBytes(data []byte) Term {
	words := binaryDataWords(len(data))
	off := h.alloc(words + 2)
	h.arena[off] = makeHeader(words+1, boxedBinary)
	h.arena[off+1] = FromInt(int64(len(data)))
	for i := 0; i < words; i++ {
		var w uint64
		for j := 0; j < 8; j++ {
			k := i*8 + j
			if k < len(data) {
				w |= uint64(data[k]) << (8 * j)
			}
		}
		h.arena[off+2+i] = Term(w)
	}
	return boxedTerm(off)
}

// MakeFunction allocates a minimal closure: a module atom, a function
// index, and a captured environment. Requires FunctionSize(len(env))
// reserved words.
func (h *Heap) MakeFunction(module Term, index int, env []Term) Term {
	off := h.alloc(len(env) + 3)
	h.arena[off] = makeHeader(len(env)+2, boxedFunction)
	h.arena[off+1] = module
	h.arena[off+2] = FromInt(int64(index))
	copy(h.arena[off+3:off+3+len(env)], env)
	return boxedTerm(off)
}

// AllocMap allocates a map with n key/value slots, all invalid. Requires
// MapSize(n) reserved words.
func (h *Heap) AllocMap(n int) Term {
	off := h.alloc(2*n + 2)
	h.arena[off] = makeHeader(2*n+1, boxedMap)
	h.arena[off+1] = FromInt(int64(n))
	for i := 0; i < 2*n; i++ {
		h.arena[off+2+i] = InvalidTerm
	}
	return boxedTerm(off)
}

// Allocation size helpers, in words.
const (
	RefSize      = 2
	BoxedIntSize = 2
	FloatSize    = 2
)

// TupleSize returns the words needed for a tuple of the given arity.
func TupleSize(arity int) int { return arity + 1 }

// ConsSize is the words needed for one list cell.
const ConsSize = 2

// BinarySize returns the words needed for a binary of n bytes.
func BinarySize(n int) int { return binaryDataWords(n) + 2 }

// FunctionSize returns the words needed for a closure with n captures.
func FunctionSize(n int) int { return n + 3 }

// MapSize returns the words needed for a map with n entries.
func MapSize(n int) int { return 2*n + 2 }

func binaryDataWords(n int) int {
	return (n + 7) / 8
}

// ---------------------------------------------------------------------------
// Boxed accessors
// ---------------------------------------------------------------------------

// TupleArity returns the arity of a tuple term.
func (h *Heap) TupleArity(t Term) int {
	if !h.IsTuple(t) {
		panic("vm: TupleArity: not a tuple")
	}
	return boxedSize(h.boxedHeader(t))
}

// TupleElement returns element i (0-based) of a tuple term.
func (h *Heap) TupleElement(t Term, i int) Term {
	if !h.IsTuple(t) {
		panic("vm: TupleElement: not a tuple")
	}
	if i < 0 || i >= boxedSize(h.boxedHeader(t)) {
		panic("vm: TupleElement: index out of range")
	}
	return h.arena[t.boxedOffset()+1+i]
}

// PutTupleElement sets element i (0-based) of a tuple term.
func (h *Heap) PutTupleElement(t Term, i int, v Term) {
	if !h.IsTuple(t) {
		panic("vm: PutTupleElement: not a tuple")
	}
	if i < 0 || i >= boxedSize(h.boxedHeader(t)) {
		panic("vm: PutTupleElement: index out of range")
	}
	h.arena[t.boxedOffset()+1+i] = v
}

// ListHead returns the head of a cons cell.
func (h *Heap) ListHead(t Term) Term {
	if !t.IsNonEmptyList() {
		panic("vm: ListHead: not a cons cell")
	}
	return h.arena[t.listOffset()]
}

// ListTail returns the tail of a cons cell.
func (h *Heap) ListTail(t Term) Term {
	if !t.IsNonEmptyList() {
		panic("vm: ListTail: not a cons cell")
	}
	return h.arena[t.listOffset()+1]
}

// RefTicks returns the 64-bit counter value of a reference term.
func (h *Heap) RefTicks(t Term) uint64 {
	if !h.IsReference(t) {
		panic("vm: RefTicks: not a reference")
	}
	return uint64(h.arena[t.boxedOffset()+1])
}

// Int returns the integer value of a small or boxed integer term.
func (h *Heap) Int(t Term) int64 {
	if t.IsInteger() {
		return t.Int()
	}
	if t.IsBoxed() && h.boxedTag(t) == boxedInt64 {
		return int64(uint64(h.arena[t.boxedOffset()+1]))
	}
	panic("vm: Heap.Int: not an integer")
}

// Float returns the value of a boxed float term.
func (h *Heap) Float(t Term) float64 {
	if !h.IsFloat(t) {
		panic("vm: Heap.Float: not a float")
	}
	return math.Float64frombits(uint64(h.arena[t.boxedOffset()+1]))
}

// BinaryLen returns the byte length of a binary term.
func (h *Heap) BinaryLen(t Term) int {
	if !h.IsBinary(t) {
		panic("vm: BinaryLen: not a binary")
	}
	return int(h.arena[t.boxedOffset()+1].Int())
}

// BinaryBytes returns a copy of the binary's data.
func (h *Heap) BinaryBytes(t Term) []byte {
	n := h.BinaryLen(t)
	off := t.boxedOffset()
	data := make([]byte, n)
	for k := 0; k < n; k++ {
		w := uint64(h.arena[off+2+k/8])
		data[k] = byte(w >> (8 * (k % 8)))
	}
	return data
}

// MapLen returns the number of entries in a map term.
func (h *Heap) MapLen(t Term) int {
	if !h.IsMap(t) {
		panic("vm: MapLen: not a map")
	}
	return int(h.arena[t.boxedOffset()+1].Int())
}

// MapKey returns key i of a map term.
func (h *Heap) MapKey(t Term, i int) Term {
	n := h.MapLen(t)
	if i < 0 || i >= n {
		panic("vm: MapKey: index out of range")
	}
	return h.arena[t.boxedOffset()+2+i]
}

// MapValue returns value i of a map term.
func (h *Heap) MapValue(t Term, i int) Term {
	n := h.MapLen(t)
	if i < 0 || i >= n {
		panic("vm: MapValue: index out of range")
	}
	return h.arena[t.boxedOffset()+2+n+i]
}

// PutMapEntry sets key/value slot i of a map term.
func (h *Heap) PutMapEntry(t Term, i int, key, value Term) {
	n := h.MapLen(t)
	if i < 0 || i >= n {
		panic("vm: PutMapEntry: index out of range")
	}
	h.arena[t.boxedOffset()+2+i] = key
	h.arena[t.boxedOffset()+2+n+i] = value
}

// FunctionModule returns the module atom of a closure.
func (h *Heap) FunctionModule(t Term) Term {
	if !h.IsFunction(t) {
		panic("vm: FunctionModule: not a function")
	}
	return h.arena[t.boxedOffset()+1]
}

// FunctionIndex returns the function index of a closure.
func (h *Heap) FunctionIndex(t Term) int {
	if !h.IsFunction(t) {
		panic("vm: FunctionIndex: not a function")
	}
	return int(h.arena[t.boxedOffset()+2].Int())
}
