package vm

// ---------------------------------------------------------------------------
// Heap: per-process arena with downward-growing stack
// ---------------------------------------------------------------------------

// DefaultHeapSize is the initial heap size of a new process, in words.
const DefaultHeapSize = 128

// Heap is a contiguous arena of term words. The allocation pointer grows
// up from slot 0; the stack pointer e grows down from the arena end; the
// gap between them is free space.
//
// Boxed terms carry word offsets relative to their owning arena, so a term
// is only meaningful together with its heap. Message fragments are plain
// Heaps with no stack in use.
type Heap struct {
	arena   []Term
	heapTop int
	e       int
}

// NewHeap allocates an empty heap of the given capacity in words.
func NewHeap(size int) *Heap {
	return &Heap{
		arena: make([]Term, size),
		e:     size,
	}
}

// NewFragment allocates a detached heap fragment sized to hold exactly
// size words of term data.
func NewFragment(size int) *Heap {
	return NewHeap(size)
}

// Free returns the number of free words between the allocation pointer and
// the stack pointer.
func (h *Heap) Free() int {
	return h.e - h.heapTop
}

// HeapSize returns the arena capacity in words.
func (h *Heap) HeapSize() int {
	return len(h.arena)
}

// StackSize returns the number of words currently on the stack.
func (h *Heap) StackSize() int {
	return len(h.arena) - h.e
}

// HeapTop returns the current allocation offset.
func (h *Heap) HeapTop() int {
	return h.heapTop
}

// alloc moves the allocation pointer up by words and returns the previous
// offset. Undefined unless a preceding EnsureFree call succeeded.
func (h *Heap) alloc(words int) int {
	if h.heapTop+words > h.e {
		panic("vm: heap alloc without EnsureFree")
	}
	off := h.heapTop
	h.heapTop += words
	return off
}

// StackPush pushes a root term onto the stack. Returns false when no free
// space remains; callers must EnsureFree first.
func (h *Heap) StackPush(t Term) bool {
	if h.e-1 < h.heapTop {
		return false
	}
	h.e--
	h.arena[h.e] = t
	return true
}

// StackPop pops the top stack slot.
func (h *Heap) StackPop() Term {
	if h.e >= len(h.arena) {
		panic("vm: StackPop on empty stack")
	}
	t := h.arena[h.e]
	h.e++
	return t
}

// StackAt returns stack slot i, counted from the top.
func (h *Heap) StackAt(i int) Term {
	return h.arena[h.e+i]
}

// ---------------------------------------------------------------------------
// Term sizing and deep copy
// ---------------------------------------------------------------------------

// TermWords returns the number of heap words a deep copy of t occupies.
// Shared substructure is counted once per occurrence: the copier
// duplicates sharing, so sizing matches what CopyTerm will allocate.
func (h *Heap) TermWords(t Term) int {
	switch {
	case t.IsImmediate():
		return 0
	case t.IsNonEmptyList():
		return ConsSize + h.TermWords(h.ListHead(t)) + h.TermWords(h.ListTail(t))
	case t.IsBoxed():
		header := h.boxedHeader(t)
		size := boxedSize(header) + 1
		switch header & boxedTagMask {
		case boxedTuple:
			for i := 0; i < boxedSize(header); i++ {
				size += h.TermWords(h.TupleElement(t, i))
			}
		case boxedMap:
			n := h.MapLen(t)
			for i := 0; i < n; i++ {
				size += h.TermWords(h.MapKey(t, i))
				size += h.TermWords(h.MapValue(t, i))
			}
		case boxedFunction:
			env := boxedSize(header) - 2
			off := t.boxedOffset()
			for i := 0; i < env; i++ {
				size += h.TermWords(h.arena[off+3+i])
			}
		}
		return size
	}
	panic("vm: TermWords: invalid term")
}

// CopyTerm deep-copies t from h into dst, returning the copied term.
// dst must have at least h.TermWords(t) free words.
func (h *Heap) CopyTerm(t Term, dst *Heap) Term {
	switch {
	case t.IsImmediate():
		return t

	case t.IsNonEmptyList():
		head := h.CopyTerm(h.ListHead(t), dst)
		tail := h.CopyTerm(h.ListTail(t), dst)
		return dst.MakeList(head, tail)

	case t.IsBoxed():
		header := h.boxedHeader(t)
		size := boxedSize(header)
		off := t.boxedOffset()
		switch header & boxedTagMask {
		case boxedTuple:
			nt := dst.AllocTuple(size)
			for i := 0; i < size; i++ {
				dst.PutTupleElement(nt, i, h.CopyTerm(h.TupleElement(t, i), dst))
			}
			return nt
		case boxedMap:
			n := h.MapLen(t)
			nt := dst.AllocMap(n)
			for i := 0; i < n; i++ {
				k := h.CopyTerm(h.MapKey(t, i), dst)
				v := h.CopyTerm(h.MapValue(t, i), dst)
				dst.PutMapEntry(nt, i, k, v)
			}
			return nt
		case boxedFunction:
			envLen := size - 2
			env := make([]Term, envLen)
			for i := 0; i < envLen; i++ {
				env[i] = h.CopyTerm(h.arena[off+3+i], dst)
			}
			return dst.MakeFunction(h.FunctionModule(t), h.FunctionIndex(t), env)
		default:
			// Refs, floats, boxed integers, binaries: raw payload words.
			noff := dst.alloc(size + 1)
			copy(dst.arena[noff:noff+size+1], h.arena[off:off+size+1])
			return boxedTerm(noff)
		}
	}
	panic("vm: CopyTerm: invalid term")
}
