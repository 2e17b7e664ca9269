package vm

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// GlobalContext: node-wide shared state
// ---------------------------------------------------------------------------

// Options configures a GlobalContext.
type Options struct {
	// DefaultHeapSize is the initial heap of new processes, in words.
	// Zero selects DefaultHeapSize.
	DefaultHeapSize int

	// MinHeapSize and MaxHeapSize are the default per-process heap bounds,
	// in words; new contexts start with them and may override per process.
	// Zero means the node's default heap size (min) or unbounded (max).
	MinHeapSize int
	MaxHeapSize int

	// Schedulers is the number of scheduler threads the embedder runs.
	// Zero selects one.
	Schedulers int

	// CrashDumpPath, when set, enables the SQLite crash-dump store.
	CrashDumpPath string
}

// processEntry owns the per-process lock. Entries outlive their Context:
// the lock stays acquirable from a bare pid even while the process is
// being destroyed, and a lookup after destruction observes a nil context.
type processEntry struct {
	mu  sync.Mutex
	ctx *Context
}

// GlobalContext holds the process table, the atom table, the reference
// counter, the name registry, and the scheduler shared by every process
// of the node.
type GlobalContext struct {
	processesMu sync.RWMutex
	processes   map[int32]*processEntry
	lastPid     atomic.Int32

	atoms    *AtomTable
	refTicks atomic.Uint64

	registeredMu sync.RWMutex
	registered   map[uint32]int32 // atom index -> pid
	namesByPid   map[int32]uint32

	nodeID uuid.UUID

	scheduler *Scheduler

	crashStore *CrashDumpStore

	defaultHeapSize int
	minHeapSize     int
	maxHeapSize     int
	schedulerCount  int
}

// NewGlobalContext creates a node with default options.
func NewGlobalContext() *GlobalContext {
	return NewGlobalContextWithOptions(Options{})
}

// NewGlobalContextWithOptions creates a node, opening the crash-dump store
// when a path is configured. A store that fails to open is logged and
// disabled rather than failing node startup.
func NewGlobalContextWithOptions(opts Options) *GlobalContext {
	heapSize := opts.DefaultHeapSize
	if heapSize <= 0 {
		heapSize = DefaultHeapSize
	}
	schedulers := opts.Schedulers
	if schedulers <= 0 {
		schedulers = 1
	}
	glb := &GlobalContext{
		processes:       make(map[int32]*processEntry),
		atoms:           NewAtomTable(),
		registered:      make(map[uint32]int32),
		namesByPid:      make(map[int32]uint32),
		nodeID:          uuid.New(),
		defaultHeapSize: heapSize,
		minHeapSize:     opts.MinHeapSize,
		maxHeapSize:     opts.MaxHeapSize,
		schedulerCount:  schedulers,
	}
	glb.scheduler = NewScheduler()
	if opts.CrashDumpPath != "" {
		store, err := NewCrashDumpStore(opts.CrashDumpPath)
		if err != nil {
			log.Errorf("cannot open crash dump store: %s", err.Error())
		} else {
			glb.crashStore = store
		}
	}
	return glb
}

// Close releases node-wide resources.
func (glb *GlobalContext) Close() error {
	if glb.crashStore != nil {
		return glb.crashStore.Close()
	}
	return nil
}

// Atoms returns the global atom table.
func (glb *GlobalContext) Atoms() *AtomTable {
	return glb.atoms
}

// AtomTerm interns name in the global table and returns the atom term.
func (glb *GlobalContext) AtomTerm(name string) Term {
	return glb.atoms.AtomTerm(name)
}

// NodeID returns the node identity minted at startup.
func (glb *GlobalContext) NodeID() uuid.UUID {
	return glb.nodeID
}

// Scheduler returns the node scheduler.
func (glb *GlobalContext) Scheduler() *Scheduler {
	return glb.scheduler
}

// SchedulerCount returns the configured number of scheduler threads.
func (glb *GlobalContext) SchedulerCount() int {
	return glb.schedulerCount
}

// RefTicks mints a fresh 64-bit reference value.
func (glb *GlobalContext) RefTicks() uint64 {
	return glb.refTicks.Add(1)
}

// ---------------------------------------------------------------------------
// Process table
// ---------------------------------------------------------------------------

// initProcess assigns a pid and publishes the context in the table.
func (glb *GlobalContext) initProcess(ctx *Context) {
	pid := glb.lastPid.Add(1)
	ctx.processID = pid
	entry := &processEntry{ctx: ctx}
	ctx.tableEntry = entry

	glb.processesMu.Lock()
	glb.processes[pid] = entry
	glb.processesMu.Unlock()
}

// removeProcess unpublishes the context. Concurrent lock holders finish
// first; lookups racing with destruction observe a nil context and report
// the process as gone.
func (glb *GlobalContext) removeProcess(ctx *Context) {
	glb.processesMu.Lock()
	delete(glb.processes, ctx.processID)
	glb.processesMu.Unlock()

	entry := ctx.tableEntry
	entry.mu.Lock()
	entry.ctx = nil
	entry.mu.Unlock()
}

// GetProcessLock acquires the per-process lock for pid and returns its
// Context, or nil when the process is gone. Callers must release with
// GetProcessUnlock and must not hold two process locks at once.
func (glb *GlobalContext) GetProcessLock(pid int32) *Context {
	glb.processesMu.RLock()
	entry, ok := glb.processes[pid]
	glb.processesMu.RUnlock()
	if !ok {
		return nil
	}
	entry.mu.Lock()
	if entry.ctx == nil {
		entry.mu.Unlock()
		return nil
	}
	return entry.ctx
}

// GetProcessUnlock releases a lock acquired with GetProcessLock.
func (glb *GlobalContext) GetProcessUnlock(ctx *Context) {
	ctx.tableEntry.mu.Unlock()
}

// Send deep-copies t (valid on src) into pid's mailbox under the target's
// process lock. Returns ErrProcessNotFound when the pid does not resolve
// to a live process; callers deliver to dead peers by dropping silently.
func (glb *GlobalContext) Send(pid int32, src *Heap, t Term) error {
	target := glb.GetProcessLock(pid)
	if target == nil {
		return ErrProcessNotFound
	}
	target.SendMessage(src, t)
	glb.GetProcessUnlock(target)
	return nil
}

// ProcessCount returns the number of live processes.
func (glb *GlobalContext) ProcessCount() int {
	glb.processesMu.RLock()
	defer glb.processesMu.RUnlock()
	return len(glb.processes)
}

// ---------------------------------------------------------------------------
// Name registry
// ---------------------------------------------------------------------------

// RegisterProcessName binds an atom name to a pid. A name can be bound
// once, and a process can carry at most one name.
func (glb *GlobalContext) RegisterProcessName(name Term, pid int32) error {
	if !name.IsAtom() {
		return ErrNameAlreadyRegistered
	}
	index := name.AtomIndex()

	glb.registeredMu.Lock()
	defer glb.registeredMu.Unlock()
	if _, taken := glb.registered[index]; taken {
		return ErrNameAlreadyRegistered
	}
	if _, named := glb.namesByPid[pid]; named {
		return ErrNameAlreadyRegistered
	}
	glb.registered[index] = pid
	glb.namesByPid[pid] = index
	return nil
}

// UnregisterProcessName drops a name binding. Returns false when the name
// was not bound.
func (glb *GlobalContext) UnregisterProcessName(name Term) bool {
	if !name.IsAtom() {
		return false
	}
	glb.registeredMu.Lock()
	defer glb.registeredMu.Unlock()
	pid, ok := glb.registered[name.AtomIndex()]
	if !ok {
		return false
	}
	delete(glb.registered, name.AtomIndex())
	delete(glb.namesByPid, pid)
	return true
}

// WhereIs resolves a registered name to a pid.
func (glb *GlobalContext) WhereIs(name Term) (int32, bool) {
	if !name.IsAtom() {
		return 0, false
	}
	glb.registeredMu.RLock()
	defer glb.registeredMu.RUnlock()
	pid, ok := glb.registered[name.AtomIndex()]
	return pid, ok
}

// maybeUnregisterProcessID drops the name owned by pid, if any.
func (glb *GlobalContext) maybeUnregisterProcessID(pid int32) {
	glb.registeredMu.Lock()
	defer glb.registeredMu.Unlock()
	index, ok := glb.namesByPid[pid]
	if !ok {
		return
	}
	delete(glb.namesByPid, pid)
	delete(glb.registered, index)
}

// ---------------------------------------------------------------------------
// Crash recording
// ---------------------------------------------------------------------------

// recordCrash logs an abnormal exit and, when the store is enabled,
// persists a snapshot of the dying process.
func (glb *GlobalContext) recordCrash(ctx *Context) {
	log.Warningf("process %d terminated abnormally", ctx.processID)
	if glb.crashStore == nil {
		return
	}
	snap := SnapshotProcess(ctx)
	if err := glb.crashStore.Record(snap); err != nil {
		log.Errorf("cannot record crash for %d: %s", ctx.processID, err.Error())
	}
}
