package vm

// ---------------------------------------------------------------------------
// Copying garbage collector
// ---------------------------------------------------------------------------
//
// Cheney-style semi-space copy. Roots are the register file, the live
// stack slice, the process dictionary, the binary match state, and the
// exit reason. Mailbox envelopes keep their own detached fragments and are
// self-contained, so they survive collections untouched; their contents
// enter the heap when RemoveMessage copies them in.
//
// Forwarding protocol: a copied boxed object has its header slot
// overwritten with the new boxed term (primary tag 0b00, never a header);
// a copied cons cell has its head slot overwritten with a marker carrying
// primary tag 0b10 and the new cell offset. Both are unambiguous because
// live terms never carry primary tag 0b10 and header slots always do.

// gcLowWaterDiv triggers heap shrinking when live data falls below
// capacity divided by this factor.
const gcLowWaterDiv = 4

// EnsureFree guarantees at least words contiguous free cells, collecting
// and growing the heap as needed. All registers are treated as live.
func (ctx *Context) EnsureFree(words int) error {
	return ctx.EnsureFreeWithLive(words, MaxReg)
}

// EnsureFreeWithLive is EnsureFree with an interpreter-supplied live
// register count; registers at and above live are cleared before the
// collection so stale terms do not keep garbage alive.
func (ctx *Context) EnsureFreeWithLive(words, live int) error {
	if ctx.heap.Free() >= words {
		return nil
	}
	return ctx.GarbageCollect(words, live)
}

// GarbageCollect runs a full collection, then resizes so that at least
// needFree words are available. Only the owning scheduler thread may call
// this, and only at safe points.
func (ctx *Context) GarbageCollect(needFree, live int) error {
	ctx.cleanRegisters(live)

	// First pass always fits: old live + stack cannot exceed the old
	// capacity, and we add the requested headroom on top.
	firstSize := ctx.heap.HeapSize() + needFree
	ctx.gcCopyInto(firstSize)

	liveWords := ctx.heap.HeapTop()
	stackWords := ctx.heap.StackSize()
	needed := liveWords + stackWords + needFree

	if ctx.maxHeapSize > 0 && needed > ctx.maxHeapSize {
		// Fold the heap back down to its live data so the transient
		// first-pass arena does not linger past the configured cap.
		ctx.gcCopyInto(liveWords + stackWords)
		return ErrOutOfMemory
	}

	// Shrink when live data is far below capacity; clamp to the configured
	// bounds either way.
	target := firstSize
	if liveWords*gcLowWaterDiv < firstSize {
		target = needed + liveWords/2
	}
	floor := ctx.minHeapSize
	if floor <= 0 {
		floor = ctx.global.defaultHeapSize
	}
	if target < floor {
		target = floor
	}
	if target < needed {
		target = needed
	}
	if ctx.maxHeapSize > 0 && target > ctx.maxHeapSize {
		target = ctx.maxHeapSize
	}
	if target != ctx.heap.HeapSize() {
		ctx.gcCopyInto(target)
	}

	if ctx.heap.Free() < needFree {
		return ErrOutOfMemory
	}
	return nil
}

// cleanRegisters invalidates registers at and above live.
func (ctx *Context) cleanRegisters(live int) {
	for i := live; i < MaxReg; i++ {
		ctx.x[i] = InvalidTerm
	}
}

// gcCopyInto copies all live data into a fresh arena of the given size and
// installs it as the context heap.
func (ctx *Context) gcCopyInto(newSize int) {
	from := ctx.heap
	to := NewHeap(newSize)

	// The stack slice moves verbatim to the top of the new arena; its
	// cells are then treated as roots in place.
	stackLen := from.StackSize()
	to.e = newSize - stackLen
	copy(to.arena[to.e:], from.arena[from.e:])

	for i := 0; i < MaxReg; i++ {
		ctx.x[i] = gcShallowCopy(from, to, ctx.x[i])
	}
	for i := to.e; i < newSize; i++ {
		to.arena[i] = gcShallowCopy(from, to, to.arena[i])
	}
	for i := range ctx.dictionary {
		ctx.dictionary[i].Key = gcShallowCopy(from, to, ctx.dictionary[i].Key)
		ctx.dictionary[i].Value = gcShallowCopy(from, to, ctx.dictionary[i].Value)
	}
	ctx.bs = gcShallowCopy(from, to, ctx.bs)
	ctx.exitReason = gcShallowCopy(from, to, ctx.exitReason)
	ctx.groupLeader = gcShallowCopy(from, to, ctx.groupLeader)

	// Cheney scan: walk to-space object by object. A slot with primary
	// tag 0b10 is a boxed header; anything else starts a cons cell.
	scan := 0
	for scan < to.heapTop {
		w := to.arena[scan]
		if w&termPrimaryMask == termPrimaryHdr {
			size := boxedSize(w)
			switch w & boxedTagMask {
			case boxedTuple, boxedMap, boxedFunction:
				for i := 1; i <= size; i++ {
					to.arena[scan+i] = gcShallowCopy(from, to, to.arena[scan+i])
				}
			}
			scan += size + 1
		} else {
			to.arena[scan] = gcShallowCopy(from, to, to.arena[scan])
			to.arena[scan+1] = gcShallowCopy(from, to, to.arena[scan+1])
			scan += 2
		}
	}

	ctx.heap = to
}

// gcShallowCopy copies a single object into to-space, or follows the
// forwarding left by an earlier copy.
func gcShallowCopy(from, to *Heap, t Term) Term {
	switch t & termPrimaryMask {
	case termPrimaryImmed:
		return t

	case termPrimaryBoxed:
		off := t.boxedOffset()
		first := from.arena[off]
		if first&termPrimaryMask != termPrimaryHdr {
			// Header already replaced by the relocated term.
			return first
		}
		size := boxedSize(first) + 1
		noff := to.heapTop
		if noff+size > to.e {
			panic("vm: gc to-space overflow")
		}
		to.heapTop += size
		copy(to.arena[noff:noff+size], from.arena[off:off+size])
		nt := boxedTerm(noff)
		from.arena[off] = nt
		return nt

	case termPrimaryList:
		off := t.listOffset()
		head := from.arena[off]
		if head&termPrimaryMask == termPrimaryHdr {
			return listTerm(int(head >> 2))
		}
		noff := to.heapTop
		if noff+2 > to.e {
			panic("vm: gc to-space overflow")
		}
		to.heapTop += 2
		to.arena[noff] = from.arena[off]
		to.arena[noff+1] = from.arena[off+1]
		from.arena[off] = Term(noff)<<2 | termPrimaryHdr
		return listTerm(noff)
	}
	panic("vm: gcShallowCopy: invalid term")
}
