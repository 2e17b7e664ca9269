package vm

// GetProcessInfo builds a {Key, Value} tuple on the process heap for the
// given info key. Supported keys: heap_size and stack_size (words),
// message_queue_len (count), memory (bytes). On success *out is the tuple
// and the result is true. For an unknown key *out is the badarg atom; on
// allocation failure *out is the out_of_memory atom; both return false.
func (ctx *Context) GetProcessInfo(out *Term, key Term) bool {
	if err := ctx.EnsureFree(TupleSize(2)); err != nil {
		*out = OutOfMemoryAtom
		return false
	}

	var value Term
	switch key {
	case HeapSizeAtom:
		// Heap size excludes the stack slice at the arena top.
		value = FromInt(int64(ctx.heap.HeapSize() - ctx.heap.StackSize()))

	case StackSizeAtom:
		value = FromInt(int64(ctx.heap.StackSize()))

	case MessageQueueLenAtom:
		value = FromInt(int64(ctx.MessageQueueLen()))

	case MemoryAtom:
		value = FromInt(int64(ctx.Size()))

	default:
		*out = BadargAtom
		return false
	}

	ret := ctx.heap.AllocTuple(2)
	ctx.heap.PutTupleElement(ret, 0, key)
	ctx.heap.PutTupleElement(ret, 1, value)
	*out = ret
	return true
}
