// Package vm implements the AtomVM process runtime core.
//
// This package contains:
//   - Tagged machine-word term representation
//   - Per-process heap with semi-space copying GC
//   - Mailbox with signal side-channel and selective receive
//   - Monitor/link bookkeeping and termination broadcast
//   - Process contexts, the global process table, and scheduler support
package vm
