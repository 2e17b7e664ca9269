package vm

// ---------------------------------------------------------------------------
// Signal processing
// ---------------------------------------------------------------------------

// ProcessSignals drains the signal queue in order. The interpreter calls
// this at every reduction boundary where the Trap or Killed flag is
// observed, before running user code. Returns true when the process must
// terminate: a kill signal was consumed, or a GC signal failed for lack of
// memory.
func (ctx *Context) ProcessSignals() bool {
	killed := false
	for _, sig := range ctx.mailbox.takeSignals() {
		switch sig.Kind {
		case KillSignal:
			ctx.processKillSignal(sig)
			killed = true
		case ProcessInfoRequestSignal:
			ctx.processInfoRequestSignal(sig)
		case TrapAnswerSignal:
			ctx.processTrapAnswerSignal(sig)
		case TrapExceptionSignal:
			ctx.UpdateFlags(^Trap, NoFlags)
			ctx.x[0] = sig.term
		case FlushMonitorSignal:
			ctx.ProcessFlushMonitorSignal(sig.refTicks, false)
		case FlushInfoMonitorSignal:
			ctx.ProcessFlushMonitorSignal(sig.refTicks, true)
		case GCSignal:
			if err := ctx.GarbageCollect(0, MaxReg); err != nil {
				ctx.exitReason = OutOfMemoryAtom
				ctx.UpdateFlags(^NoFlags, Killed)
				killed = true
			}
		}
	}
	return killed
}

// processKillSignal installs the kill reason as the exit reason. The
// reason is copied onto the process heap because the exit reason is a GC
// root that must outlive the signal fragment.
func (ctx *Context) processKillSignal(sig *Signal) {
	reason := sig.term
	if sig.fragment != nil && !reason.IsImmediate() {
		if err := ctx.EnsureFree(sig.fragment.TermWords(reason)); err != nil {
			reason = OutOfMemoryAtom
		} else {
			reason = sig.fragment.CopyTerm(reason, ctx.heap)
		}
	}
	ctx.exitReason = reason
	ctx.UpdateFlags(^NoFlags, Killed)
}

// processInfoRequestSignal builds the requested info tuple on the local
// heap and answers the requester, which is looked up under its process
// lock; a dead requester is silently dropped.
func (ctx *Context) processInfoRequestSignal(sig *Signal) {
	target := ctx.global.GetProcessLock(sig.sender)
	if target == nil {
		// Sender died.
		return
	}
	defer ctx.global.GetProcessUnlock(target)

	var ret Term
	if ctx.GetProcessInfo(&ret, sig.term) {
		target.SendTermSignal(TrapAnswerSignal, ctx.heap, ret)
	} else {
		target.SendBuiltInAtomSignal(TrapExceptionSignal, ret)
	}
}

// processTrapAnswerSignal clears the Trap flag and delivers the answer
// into x[0], then resumes from the saved trap site when a restore hook is
// installed.
func (ctx *Context) processTrapAnswerSignal(sig *Signal) {
	ctx.UpdateFlags(^Trap, NoFlags)
	answer := sig.term
	if sig.fragment != nil && !answer.IsImmediate() {
		if err := ctx.EnsureFree(sig.fragment.TermWords(answer)); err != nil {
			answer = OutOfMemoryAtom
		} else {
			answer = sig.fragment.CopyTerm(answer, ctx.heap)
		}
	}
	ctx.x[0] = answer
	if ctx.restoreTrapHandler != nil {
		ctx.restoreTrapHandler(ctx)
	}
}

// ProcessFlushMonitorSignal walks the mailbox and removes every pending
// {'DOWN', Ref, _, _, _} whose reference matches refTicks. x[0] becomes
// true, unless info was requested and at least one message was flushed, in
// which case false.
func (ctx *Context) ProcessFlushMonitorSignal(refTicks uint64, info bool) {
	ctx.UpdateFlags(^Trap, NoFlags)
	result := true
	mb := &ctx.mailbox
	mb.Reset()
	for {
		frag, msg, ok := mb.Peek()
		if !ok {
			break
		}
		if frag.IsTuple(msg) &&
			frag.TupleArity(msg) == 5 &&
			frag.TupleElement(msg, 0) == DownAtom &&
			frag.IsReference(frag.TupleElement(msg, 1)) &&
			frag.RefTicks(frag.TupleElement(msg, 1)) == refTicks {
			mb.removeCurrent()
			result = !info
		} else {
			mb.Next()
		}
	}
	mb.Reset()
	if result {
		ctx.x[0] = TrueAtom
	} else {
		ctx.x[0] = FalseAtom
	}
}
