package vm

import (
	"testing"
)

// expectDown asserts that ctx's next message is {'DOWN', Ref, Kind, Pid,
// Reason} and returns nothing more.
func expectDown(t *testing.T, ctx *Context, refTicks uint64, kind Term, pid int32, reason Term) {
	t.Helper()
	msg, err := ctx.RemoveMessage()
	if err != nil {
		t.Fatalf("RemoveMessage failed: %v", err)
	}
	h := ctx.Heap()
	if !h.IsTuple(msg) || h.TupleArity(msg) != 5 {
		t.Fatalf("message is not a 5-tuple: %v", msg)
	}
	if h.TupleElement(msg, 0) != DownAtom {
		t.Error("element 0 is not 'DOWN'")
	}
	if got := h.RefTicks(h.TupleElement(msg, 1)); got != refTicks {
		t.Errorf("ref = %d, want %d", got, refTicks)
	}
	if got := h.TupleElement(msg, 2); got != kind {
		t.Errorf("kind = %v, want %v", got, kind)
	}
	if got := h.TupleElement(msg, 3); got.LocalProcessID() != pid {
		t.Errorf("pid = %v, want %d", got, pid)
	}
	if got := h.TupleElement(msg, 4); got != reason {
		t.Errorf("reason = %v, want %v", got, reason)
	}
}

func TestMonitorDownDelivery(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)
	bPid := b.ProcessID()

	// A monitors B: the record lives on B, naming A as the peer to
	// notify, and the minted ref is what A's monitor call returned.
	ref := b.Monitor(a.PidTerm(), false)
	if ref == 0 {
		t.Fatal("Monitor returned zero ref")
	}

	b.SetExitReason(glb.AtomTerm("boom"))
	b.Destroy()

	if got := a.MessageQueueLen(); got != 1 {
		t.Fatalf("MessageQueueLen = %d, want exactly one DOWN", got)
	}
	expectDown(t, a, ref, ProcessAtom, bPid, glb.AtomTerm("boom"))
}

func TestMonitorDownPortKind(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)
	b.SetNativeHandler(func(ctx *Context) {})
	bPid := b.ProcessID()

	ref := b.Monitor(a.PidTerm(), false)
	b.SetExitReason(glb.AtomTerm("closed"))
	b.Destroy()

	expectDown(t, a, ref, PortAtom, bPid, glb.AtomTerm("closed"))
}

func TestMonitorNormalExitStillDelivers(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)
	bPid := b.ProcessID()

	ref := b.Monitor(a.PidTerm(), false)
	b.Destroy() // exit reason stays normal

	expectDown(t, a, ref, ProcessAtom, bPid, NormalAtom)
}

func TestMonitorDeadPeerDropped(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)

	b.Monitor(a.PidTerm(), false)
	a.Destroy()
	// B's teardown finds the peer gone and drops the record silently.
	b.SetExitReason(glb.AtomTerm("boom"))
	b.Destroy()

	if got := glb.ProcessCount(); got != 0 {
		t.Errorf("ProcessCount = %d, want 0", got)
	}
}

func TestLinkKillPropagation(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)

	// Bidirectional link: both endpoints hold a linked record.
	a.Monitor(b.PidTerm(), true)
	b.Monitor(a.PidTerm(), true)

	crash := glb.AtomTerm("crash")
	b.SetExitReason(crash)
	b.Destroy()

	// A is not trapping: it gets a kill signal carrying the reason.
	if a.Flags()&Killed == 0 {
		t.Fatal("Killed flag not set on linked peer")
	}
	if !a.ProcessSignals() {
		t.Fatal("linked peer did not observe the kill")
	}
	if got := a.ExitReason(); got != crash {
		t.Errorf("exit reason = %v, want crash", got)
	}

	// A's own teardown fires its remaining monitors in turn; the record
	// pointing back at the dead B is dropped silently.
	a.Destroy()
	if got := glb.ProcessCount(); got != 0 {
		t.Errorf("ProcessCount = %d, want 0", got)
	}
}

func TestLinkNormalExitNoDelivery(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)

	a.Monitor(b.PidTerm(), true)
	b.Monitor(a.PidTerm(), true)

	b.Destroy() // normal exit, A does not trap

	if a.Flags()&Killed != 0 {
		t.Error("normal linked exit killed the peer")
	}
	if got := a.MessageQueueLen(); got != 0 {
		t.Errorf("MessageQueueLen = %d, want 0", got)
	}
}

func TestTrapExitConvertsKillToMessage(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)
	bPid := b.ProcessID()

	a.SetTrapExit(true)
	a.Monitor(b.PidTerm(), true)
	b.Monitor(a.PidTerm(), true)

	crash := glb.AtomTerm("crash")
	b.SetExitReason(crash)
	b.Destroy()

	if a.Flags()&Killed != 0 {
		t.Fatal("trapping peer was killed")
	}
	msg, err := a.RemoveMessage()
	if err != nil {
		t.Fatalf("RemoveMessage failed: %v", err)
	}
	h := a.Heap()
	if !h.IsTuple(msg) || h.TupleArity(msg) != 3 {
		t.Fatalf("message is not a 3-tuple: %v", msg)
	}
	if h.TupleElement(msg, 0) != ExitSignalAtom {
		t.Error("element 0 is not 'EXIT'")
	}
	if h.TupleElement(msg, 1).LocalProcessID() != bPid {
		t.Error("element 1 is not B's pid")
	}
	if h.TupleElement(msg, 2) != crash {
		t.Error("element 2 is not the crash reason")
	}
}

func TestTrapExitNormalExitDelivers(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)

	a.SetTrapExit(true)
	b.Monitor(a.PidTerm(), true)
	b.Destroy() // normal, but A traps: {'EXIT', B, normal} is delivered

	msg, err := a.RemoveMessage()
	if err != nil {
		t.Fatalf("RemoveMessage failed: %v", err)
	}
	h := a.Heap()
	if h.TupleElement(msg, 2) != NormalAtom {
		t.Error("trapped normal exit should carry reason normal")
	}
}

func TestDemonitorIdempotence(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)

	b.Monitor(a.PidTerm(), false)
	if got := b.MonitorCount(); got != 1 {
		t.Fatalf("MonitorCount = %d, want 1", got)
	}
	b.Demonitor(a.PidTerm(), false)
	if got := b.MonitorCount(); got != 0 {
		t.Fatalf("MonitorCount = %d after demonitor, want 0", got)
	}
	// A second demonitor with the same arguments is a no-op.
	b.Demonitor(a.PidTerm(), false)
	if got := b.MonitorCount(); got != 0 {
		t.Errorf("MonitorCount = %d after double demonitor, want 0", got)
	}

	b.SetExitReason(glb.AtomTerm("boom"))
	b.Destroy()
	if got := a.MessageQueueLen(); got != 0 {
		t.Errorf("demonitored peer still received %d messages", got)
	}
}

func TestDemonitorMatchesLinkedFlag(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)

	b.Monitor(a.PidTerm(), false)
	b.Monitor(a.PidTerm(), true)

	// Removing the link leaves the monitor in place.
	b.Demonitor(a.PidTerm(), true)
	if got := b.MonitorCount(); got != 1 {
		t.Fatalf("MonitorCount = %d, want 1", got)
	}
	b.Destroy()
	if got := a.MessageQueueLen(); got != 1 {
		t.Errorf("MessageQueueLen = %d, want one DOWN from the monitor", got)
	}
}

func TestDemonitorFlushScenario(t *testing.T) {
	glb := NewGlobalContext()
	a := NewContext(glb)
	b := NewContext(glb)

	ref := b.Monitor(a.PidTerm(), false)
	b.SetExitReason(glb.AtomTerm("boom"))
	b.Destroy()

	// A DOWN is pending; demonitor(Ref, [flush, info]) flushes it and
	// reports false in x[0].
	locked := glb.GetProcessLock(a.ProcessID())
	locked.SendFlushMonitorSignal(ref, true)
	glb.GetProcessUnlock(locked)
	a.ProcessSignals()

	if got := a.X(0); got != FalseAtom {
		t.Errorf("x[0] = %v, want false", got)
	}
	if got := a.MessageQueueLen(); got != 0 {
		t.Errorf("DOWN still queued after flush: len = %d", got)
	}
}
