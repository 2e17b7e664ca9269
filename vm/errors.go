package vm

import "errors"

// Sentinel errors surfaced by the runtime core. User-visible failures are
// additionally reported as atom terms (badarg, out_of_memory, ...) per the
// Erlang error model.
var (
	// ErrOutOfMemory indicates an allocation could not be satisfied even
	// after collection and heap growth.
	ErrOutOfMemory = errors.New("vm: out of memory")

	// ErrProcessNotFound indicates a pid that is not (or no longer) in the
	// process table.
	ErrProcessNotFound = errors.New("vm: process not found")

	// ErrNameAlreadyRegistered indicates a register-by-name conflict.
	ErrNameAlreadyRegistered = errors.New("vm: name already registered")

	// ErrMailboxEmpty indicates a peek past the end of the message queue.
	ErrMailboxEmpty = errors.New("vm: mailbox empty")
)
