package vm

// ---------------------------------------------------------------------------
// Monitors and links
// ---------------------------------------------------------------------------

// Monitor is one death-watch record, stored on the process whose
// termination it reports; MonitorPid names the peer to notify. A link is a
// pair of records with Linked set, one on each endpoint; links do not use the reference, so RefTicks may be zero for
// them.
type Monitor struct {
	MonitorPid Term
	RefTicks   uint64
	Linked     bool
}

// Monitor appends a monitor (or link half) for peerPid and returns the
// freshly minted reference. For links the reference is returned but
// semantically unused.
func (ctx *Context) Monitor(peerPid Term, linked bool) uint64 {
	refTicks := ctx.global.RefTicks()
	ctx.monitors = append(ctx.monitors, Monitor{
		MonitorPid: peerPid,
		RefTicks:   refTicks,
		Linked:     linked,
	})
	return refTicks
}

// Demonitor removes the first record matching peerPid and linked. Silent
// when none matches, so repeated demonitors are idempotent.
func (ctx *Context) Demonitor(peerPid Term, linked bool) {
	for i := range ctx.monitors {
		if ctx.monitors[i].MonitorPid == peerPid && ctx.monitors[i].Linked == linked {
			ctx.monitors = append(ctx.monitors[:i], ctx.monitors[i+1:]...)
			return
		}
	}
}

// MonitorCount returns the number of outstanding monitor records.
func (ctx *Context) MonitorCount() int {
	return len(ctx.monitors)
}

// monitorsHandleTerminate delivers termination notifications for every
// monitor record. It runs during Destroy, after the context has left the
// process table, so peers can no longer send to the dying process.
// Notifications are enqueued in monitor-list order; nothing is guaranteed
// across distinct peers.
func (ctx *Context) monitorsHandleTerminate() {
	glb := ctx.global
	for i := range ctx.monitors {
		monitor := &ctx.monitors[i]
		target := glb.GetProcessLock(monitor.MonitorPid.LocalProcessID())
		if target == nil {
			// Peer already gone; nothing to notify.
			continue
		}

		if monitor.Linked && (ctx.exitReason != NormalAtom || target.trapExit) {
			if target.trapExit {
				if err := ctx.EnsureFree(TupleSize(3)); err != nil {
					// A half-delivered exit notification would break the
					// supervision invariants; the process is already dying.
					glb.GetProcessUnlock(target)
					log.Criticalf("cannot allocate exit notification for %d", ctx.processID)
					panic(ErrOutOfMemory)
				}
				// The tuple lives on the dying heap; SendMessage copies it
				// into the peer's envelope before this heap goes away.
				info := ctx.heap.AllocTuple(3)
				ctx.heap.PutTupleElement(info, 0, ExitSignalAtom)
				ctx.heap.PutTupleElement(info, 1, ctx.PidTerm())
				ctx.heap.PutTupleElement(info, 2, ctx.exitReason)
				target.SendMessage(ctx.heap, info)
			} else {
				target.SendTermSignal(KillSignal, ctx.heap, ctx.exitReason)
			}
		} else if !monitor.Linked {
			if err := ctx.EnsureFree(RefSize + TupleSize(5)); err != nil {
				glb.GetProcessUnlock(target)
				log.Criticalf("cannot allocate DOWN notification for %d", ctx.processID)
				panic(ErrOutOfMemory)
			}
			ref := ctx.heap.FromRefTicks(monitor.RefTicks)

			info := ctx.heap.AllocTuple(5)
			ctx.heap.PutTupleElement(info, 0, DownAtom)
			ctx.heap.PutTupleElement(info, 1, ref)
			if ctx.nativeHandler != nil {
				ctx.heap.PutTupleElement(info, 2, PortAtom)
			} else {
				ctx.heap.PutTupleElement(info, 2, ProcessAtom)
			}
			ctx.heap.PutTupleElement(info, 3, ctx.PidTerm())
			ctx.heap.PutTupleElement(info, 4, ctx.exitReason)

			target.SendMessage(ctx.heap, info)
		}
		glb.GetProcessUnlock(target)
	}
	ctx.monitors = nil
}
