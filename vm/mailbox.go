package vm

import (
	"sync"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Mailbox: per-process message queue with signal side-channel
// ---------------------------------------------------------------------------

// Message is one mailbox envelope. The payload term lives in the
// envelope's own detached heap fragment, deep-copied at send time, so a
// queued message never references the sender's heap and survives the
// receiver's collections untouched.
type Message struct {
	fragment *Heap
	term     Term
}

// Fragment returns the envelope's heap fragment.
func (m *Message) Fragment() *Heap {
	return m.fragment
}

// Term returns the payload term, valid on the envelope's fragment.
func (m *Message) Term() Term {
	return m.term
}

// SignalKind discriminates out-of-band mailbox entries.
type SignalKind int

const (
	KillSignal SignalKind = iota
	ProcessInfoRequestSignal
	TrapAnswerSignal
	TrapExceptionSignal
	FlushMonitorSignal
	FlushInfoMonitorSignal
	GCSignal
)

// Signal is an out-of-band mailbox entry. Term-carrying signals own a
// fragment like ordinary messages; built-in-atom signals carry the
// immediate atom directly.
type Signal struct {
	Kind     SignalKind
	fragment *Heap
	term     Term
	sender   int32  // requester pid for ProcessInfoRequestSignal
	refTicks uint64 // monitor reference for flush signals
}

// Term returns the signal payload, valid on the signal's fragment when
// one is present.
func (s *Signal) Term() Term {
	return s.term
}

// Sender returns the requesting pid of a process-info signal.
func (s *Signal) Sender() int32 {
	return s.sender
}

// Mailbox is an ordered queue of messages plus a signal queue and the
// selective-receive cursor. Multiple producers append under the mailbox
// lock; the single consumer (the owning scheduler thread) walks the queue
// with Peek/Next/RemoveMessage.
type Mailbox struct {
	mu       sync.Mutex
	messages []*Message
	cursor   int
	signals  []*Signal
}

func (mb *Mailbox) init() {
	mb.messages = nil
	mb.cursor = 0
	mb.signals = nil
}

// Len returns the number of ordinary messages queued.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.messages)
}

// Size returns the memory held by queued envelopes, in bytes.
func (mb *Mailbox) Size() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	size := 0
	for _, m := range mb.messages {
		size += int(unsafe.Sizeof(Message{})) +
			m.fragment.HeapSize()*int(unsafe.Sizeof(Term(0)))
	}
	return size
}

// post appends a ready envelope.
func (mb *Mailbox) post(m *Message) {
	mb.mu.Lock()
	mb.messages = append(mb.messages, m)
	mb.mu.Unlock()
}

// postSignal appends a signal.
func (mb *Mailbox) postSignal(s *Signal) {
	mb.mu.Lock()
	mb.signals = append(mb.signals, s)
	mb.mu.Unlock()
}

// Peek returns the message at the cursor without removing it. The term is
// valid on the returned fragment.
func (mb *Mailbox) Peek() (*Heap, Term, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.cursor >= len(mb.messages) {
		return nil, InvalidTerm, false
	}
	m := mb.messages[mb.cursor]
	return m.fragment, m.term, true
}

// Next advances the cursor past the current message, retaining it
// (selective-receive skip).
func (mb *Mailbox) Next() {
	mb.mu.Lock()
	if mb.cursor < len(mb.messages) {
		mb.cursor++
	}
	mb.mu.Unlock()
}

// Reset moves the cursor back to the queue head.
func (mb *Mailbox) Reset() {
	mb.mu.Lock()
	mb.cursor = 0
	mb.mu.Unlock()
}

// removeCurrent detaches and returns the envelope at the cursor, resetting
// the cursor for the next receive.
func (mb *Mailbox) removeCurrent() *Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.cursor >= len(mb.messages) {
		return nil
	}
	m := mb.messages[mb.cursor]
	mb.messages = append(mb.messages[:mb.cursor], mb.messages[mb.cursor+1:]...)
	mb.cursor = 0
	return m
}

// takeSignals drains the signal queue.
func (mb *Mailbox) takeSignals() []*Signal {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	s := mb.signals
	mb.signals = nil
	return s
}

// Destroy drops every queued envelope and signal.
func (mb *Mailbox) Destroy() {
	mb.mu.Lock()
	mb.messages = nil
	mb.signals = nil
	mb.cursor = 0
	mb.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------------

// SendMessage deep-copies t (valid on src) into a fresh fragment, appends
// it to the target's mailbox, and flags the target as having mail. Safe to
// call from any thread holding the target's process lock.
func (ctx *Context) SendMessage(src *Heap, t Term) {
	frag := NewFragment(src.TermWords(t))
	copied := src.CopyTerm(t, frag)
	ctx.mailbox.post(&Message{fragment: frag, term: copied})
	ctx.UpdateFlags(^NoFlags, MessageReady)
	ctx.global.scheduler.signalMessage(ctx)
}

// SendTermSignal appends a term-carrying signal to the target. Kill
// signals raise the Killed flag; everything else raises Trap.
func (ctx *Context) SendTermSignal(kind SignalKind, src *Heap, t Term) {
	frag := NewFragment(src.TermWords(t))
	copied := src.CopyTerm(t, frag)
	ctx.mailbox.postSignal(&Signal{Kind: kind, fragment: frag, term: copied})
	ctx.flagSignal(kind)
}

// SendBuiltInAtomSignal appends a signal carrying a bare atom.
func (ctx *Context) SendBuiltInAtomSignal(kind SignalKind, atom Term) {
	ctx.mailbox.postSignal(&Signal{Kind: kind, term: atom})
	ctx.flagSignal(kind)
}

// SendInfoRequestSignal asks the target to report the process-info entry
// for key back to sender as a trap answer.
func (ctx *Context) SendInfoRequestSignal(sender int32, key Term) {
	ctx.mailbox.postSignal(&Signal{Kind: ProcessInfoRequestSignal, term: key, sender: sender})
	ctx.flagSignal(ProcessInfoRequestSignal)
}

// SendFlushMonitorSignal asks the target (normally self) to flush pending
// DOWN messages for the given monitor reference.
func (ctx *Context) SendFlushMonitorSignal(refTicks uint64, info bool) {
	kind := FlushMonitorSignal
	if info {
		kind = FlushInfoMonitorSignal
	}
	ctx.mailbox.postSignal(&Signal{Kind: kind, term: InvalidTerm, refTicks: refTicks})
	ctx.flagSignal(kind)
}

func (ctx *Context) flagSignal(kind SignalKind) {
	if kind == KillSignal {
		ctx.UpdateFlags(^NoFlags, Killed)
	} else {
		ctx.UpdateFlags(^NoFlags, Trap)
	}
	ctx.global.scheduler.signalMessage(ctx)
}

// ---------------------------------------------------------------------------
// Receiving
// ---------------------------------------------------------------------------

// RemoveMessage consumes the message at the cursor: the envelope's
// fragment is copied onto the process heap, the envelope is dropped, and
// the cursor resets for the next receive. Returns the on-heap term.
func (ctx *Context) RemoveMessage() (Term, error) {
	frag, t, ok := ctx.mailbox.Peek()
	if !ok {
		return InvalidTerm, ErrMailboxEmpty
	}
	if err := ctx.EnsureFree(frag.TermWords(t)); err != nil {
		return OutOfMemoryAtom, err
	}
	onHeap := frag.CopyTerm(t, ctx.heap)
	ctx.mailbox.removeCurrent()
	if ctx.mailbox.Len() == 0 {
		ctx.UpdateFlags(^MessageReady, NoFlags)
	}
	return onHeap, nil
}

// Mailbox returns the process mailbox.
func (ctx *Context) Mailbox() *Mailbox {
	return &ctx.mailbox
}
