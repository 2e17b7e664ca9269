package vm

import (
	"sync/atomic"
	"unsafe"
)

// MaxReg is the size of the x register file.
const MaxReg = 16

// InvalidProcessID is the pid payload of an unset pid term; real process
// ids start at 1.
const InvalidProcessID int32 = 0

// ContextFlags is the per-process atomic flag word shared with schedulers.
type ContextFlags uint32

const (
	NoFlags        ContextFlags = 0
	Ready          ContextFlags = 1 << 0
	Running        ContextFlags = 1 << 1
	MessageReady   ContextFlags = 1 << 2
	WaitingTimeout ContextFlags = 1 << 3
	TimedOut       ContextFlags = 1 << 4
	Killed         ContextFlags = 1 << 5
	Trap           ContextFlags = 1 << 6
)

// DictEntry is one {Key, Value} pair of the process dictionary.
type DictEntry struct {
	Key   Term
	Value Term
}

// NativeHandler runs instead of bytecode for port-like processes. It is
// invoked by the scheduler whenever the process is selected.
type NativeHandler func(ctx *Context)

// PlatformData is implemented by driver-owned state that needs teardown
// when its process dies.
type PlatformData interface {
	Destroy()
}

// Context is a single lightweight process: isolated heap and stack,
// register file, mailbox, and monitor bookkeeping.
//
// A Context is mutated only by its owning scheduler thread. Other threads
// interact exclusively through the mailbox (which locks internally) and
// the atomic flag word.
type Context struct {
	global *GlobalContext

	processID  int32
	tableEntry *processEntry

	heap *Heap
	x    [MaxReg]Term

	// cp holds the saved continuation, encoded as a small integer so the
	// collector can treat every register and stack slot as a term.
	cp Term

	// fr is the floating-point register bank, allocated on first use.
	fr []float64

	// Trap resumption state: where to continue after a trap answer.
	savedIP            int
	savedModule        interface{}
	restoreTrapHandler func(*Context)

	dictionary []DictEntry

	mailbox  Mailbox
	monitors []Monitor

	groupLeader Term
	exitReason  Term

	flags atomic.Uint32

	platformData  interface{}
	nativeHandler NativeHandler

	trapExit bool

	minHeapSize int
	maxHeapSize int

	// Binary match state; a GC root like the registers.
	bs       Term
	bsOffset int

	// Timer bookkeeping owned by the scheduler.
	timerArmed bool
}

// NewContext creates a process with an empty default-sized heap, registers
// it in the global process table, and returns it ready to run.
func NewContext(glb *GlobalContext) *Context {
	ctx := &Context{
		global:      glb,
		heap:        NewHeap(glb.defaultHeapSize),
		cp:          FromInt(0),
		groupLeader: FromLocalProcessID(InvalidProcessID),
		exitReason:  NormalAtom,
		bs:          InvalidTerm,
		minHeapSize: glb.minHeapSize,
		maxHeapSize: glb.maxHeapSize,
	}
	ctx.cleanRegisters(0)
	ctx.mailbox.init()
	glb.initProcess(ctx)
	return ctx
}

// Global returns the owning GlobalContext.
func (ctx *Context) Global() *GlobalContext {
	return ctx.global
}

// ProcessID returns the local process id.
func (ctx *Context) ProcessID() int32 {
	return ctx.processID
}

// PidTerm returns the process id as a pid term.
func (ctx *Context) PidTerm() Term {
	return FromLocalProcessID(ctx.processID)
}

// Heap returns the process heap.
func (ctx *Context) Heap() *Heap {
	return ctx.heap
}

// X returns register i.
func (ctx *Context) X(i int) Term {
	return ctx.x[i]
}

// SetX sets register i.
func (ctx *Context) SetX(i int, t Term) {
	ctx.x[i] = t
}

// SetCP saves the continuation pointer.
func (ctx *Context) SetCP(cp int64) {
	ctx.cp = FromInt(cp)
}

// CP returns the saved continuation pointer.
func (ctx *Context) CP() int64 {
	return ctx.cp.Int()
}

// SetNativeHandler marks the process as port-like; the scheduler invokes
// handler instead of the interpreter.
func (ctx *Context) SetNativeHandler(handler NativeHandler) {
	ctx.nativeHandler = handler
}

// NativeHandlerFn returns the installed native handler, or nil.
func (ctx *Context) NativeHandlerFn() NativeHandler {
	return ctx.nativeHandler
}

// SetTrapExit toggles delivery of link exits as messages.
func (ctx *Context) SetTrapExit(trap bool) {
	ctx.trapExit = trap
}

// TrapExit reports whether link exits are trapped.
func (ctx *Context) TrapExit() bool {
	return ctx.trapExit
}

// SetHeapBounds configures the minimum and maximum heap size in words.
// Zero means unbounded (max) or, for min, the node's default heap size.
func (ctx *Context) SetHeapBounds(min, max int) {
	ctx.minHeapSize = min
	ctx.maxHeapSize = max
}

// SetGroupLeader sets the group leader pid.
func (ctx *Context) SetGroupLeader(pid Term) {
	ctx.groupLeader = pid
}

// GroupLeader returns the group leader pid.
func (ctx *Context) GroupLeader() Term {
	return ctx.groupLeader
}

// ExitReason returns the current exit reason term.
func (ctx *Context) ExitReason() Term {
	return ctx.exitReason
}

// SetExitReason sets the exit reason. The term must live on the process
// heap (or be immediate): it is a GC root.
func (ctx *Context) SetExitReason(reason Term) {
	ctx.exitReason = reason
}

// SetPlatformData attaches driver-owned opaque state.
func (ctx *Context) SetPlatformData(data interface{}) {
	ctx.platformData = data
}

// GetPlatformData returns the driver-owned opaque state.
func (ctx *Context) GetPlatformData() interface{} {
	return ctx.platformData
}

// SetTrapResume records the trap resumption site.
func (ctx *Context) SetTrapResume(module interface{}, ip int, restore func(*Context)) {
	ctx.savedModule = module
	ctx.savedIP = ip
	ctx.restoreTrapHandler = restore
}

// TrapResume returns the saved trap resumption site.
func (ctx *Context) TrapResume() (module interface{}, ip int) {
	return ctx.savedModule, ctx.savedIP
}

// BinaryMatchState returns the current binary match context and offset.
func (ctx *Context) BinaryMatchState() (Term, int) {
	return ctx.bs, ctx.bsOffset
}

// SetBinaryMatchState installs a binary match context. The term must live
// on the process heap: it is a GC root.
func (ctx *Context) SetBinaryMatchState(bs Term, offset int) {
	ctx.bs = bs
	ctx.bsOffset = offset
}

// FR returns the floating-point register bank, allocating it on first use.
func (ctx *Context) FR() []float64 {
	if ctx.fr == nil {
		ctx.fr = make([]float64, MaxReg)
	}
	return ctx.fr
}

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

// UpdateFlags atomically applies flags = (flags & mask) | value. Both the
// owning scheduler and remote senders race on this word, so it is a CAS
// loop rather than partitioned bit lanes.
func (ctx *Context) UpdateFlags(mask, value ContextFlags) {
	for {
		expected := ctx.flags.Load()
		desired := (expected & uint32(mask)) | uint32(value)
		if ctx.flags.CompareAndSwap(expected, desired) {
			return
		}
	}
}

// Flags returns the current flag word.
func (ctx *Context) Flags() ContextFlags {
	return ContextFlags(ctx.flags.Load())
}

// ---------------------------------------------------------------------------
// Process dictionary
// ---------------------------------------------------------------------------

// DictPut stores value under key, returning the previous value or
// undefined. Both terms must live on the process heap.
func (ctx *Context) DictPut(key, value Term) Term {
	for i := range ctx.dictionary {
		if ctx.heap.TermsEqual(ctx.dictionary[i].Key, key) {
			old := ctx.dictionary[i].Value
			ctx.dictionary[i].Value = value
			return old
		}
	}
	ctx.dictionary = append(ctx.dictionary, DictEntry{Key: key, Value: value})
	return UndefinedAtom
}

// DictGet returns the value stored under key, or undefined.
func (ctx *Context) DictGet(key Term) Term {
	for i := range ctx.dictionary {
		if ctx.heap.TermsEqual(ctx.dictionary[i].Key, key) {
			return ctx.dictionary[i].Value
		}
	}
	return UndefinedAtom
}

// DictErase removes key, returning the removed value or undefined.
func (ctx *Context) DictErase(key Term) Term {
	for i := range ctx.dictionary {
		if ctx.heap.TermsEqual(ctx.dictionary[i].Key, key) {
			old := ctx.dictionary[i].Value
			ctx.dictionary = append(ctx.dictionary[:i], ctx.dictionary[i+1:]...)
			return old
		}
	}
	return UndefinedAtom
}

// ---------------------------------------------------------------------------
// Observability
// ---------------------------------------------------------------------------

// MessageQueueLen returns the number of ordinary messages queued.
func (ctx *Context) MessageQueueLen() int {
	return ctx.mailbox.Len()
}

// Size returns the process memory footprint in bytes: the context record,
// queued message fragments, and the heap arena.
func (ctx *Context) Size() int {
	return int(unsafe.Sizeof(Context{})) +
		ctx.mailbox.Size() +
		ctx.heap.HeapSize()*int(unsafe.Sizeof(Term(0)))
}

// ---------------------------------------------------------------------------
// Destruction
// ---------------------------------------------------------------------------

// Destroy tears the process down. Ordering matters: the context leaves the
// process table first (no new lookups can succeed), the registered name is
// dropped, monitors fire while peers can still be locked, the mailbox is
// drained, and platform data is released last, once the context can no
// longer be acquired through GetProcessLock.
func (ctx *Context) Destroy() {
	glb := ctx.global

	glb.removeProcess(ctx)
	glb.maybeUnregisterProcessID(ctx.processID)

	ctx.monitorsHandleTerminate()

	if ctx.exitReason != NormalAtom {
		glb.recordCrash(ctx)
	}

	ctx.mailbox.Destroy()

	ctx.fr = nil
	ctx.dictionary = nil
	ctx.heap = nil

	if ctx.timerArmed {
		glb.scheduler.CancelTimeout(ctx)
	}

	if pd, ok := ctx.platformData.(PlatformData); ok {
		pd.Destroy()
	}
	ctx.platformData = nil
}
