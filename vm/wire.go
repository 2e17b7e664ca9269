package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// External term encoding (CBOR)
// ---------------------------------------------------------------------------
//
// Terms leave the VM only for observability: crash dumps and process
// snapshots. The encoding is canonical CBOR over a small self-describing
// tree, so dumps stay byte-stable for identical terms.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// WireTerm is the external form of a term. Kind selects the payload
// fields in use: one for most kinds; a function carries its module in Atom
// and its index in Int, and an improper list carries its tail in Pairs.
type WireTerm struct {
	Kind     string     `cbor:"k"`
	Int      int64      `cbor:"i,omitempty"`
	Float    float64    `cbor:"f,omitempty"`
	Atom     string     `cbor:"a,omitempty"`
	Pid      int32      `cbor:"p,omitempty"`
	Ref      uint64     `cbor:"r,omitempty"`
	Binary   []byte     `cbor:"b,omitempty"`
	Elements []WireTerm `cbor:"e,omitempty"`
	Pairs    []WireTerm `cbor:"m,omitempty"`
}

// Wire term kinds.
const (
	WireInt       = "int"
	WireFloat     = "float"
	WireAtom      = "atom"
	WirePid       = "pid"
	WirePort      = "port"
	WireRef       = "ref"
	WireBinary    = "binary"
	WireTuple     = "tuple"
	WireList      = "list"
	WireNil       = "nil"
	WireMap       = "map"
	WireFunction  = "function"
	WireInvalid   = "invalid"
)

// TermToWire converts a term (valid on h) to its external form. Atom
// names are resolved through the node's atom table.
func TermToWire(glb *GlobalContext, h *Heap, t Term) WireTerm {
	switch {
	case t.IsNil():
		return WireTerm{Kind: WireNil}
	case t.IsInvalid():
		return WireTerm{Kind: WireInvalid}
	case t.IsInteger():
		return WireTerm{Kind: WireInt, Int: t.Int()}
	case t.IsAtom():
		name, _ := glb.atoms.AtomName(t.AtomIndex())
		return WireTerm{Kind: WireAtom, Atom: name}
	case t.IsPid():
		return WireTerm{Kind: WirePid, Pid: t.LocalProcessID()}
	case t.IsPort():
		return WireTerm{Kind: WirePort, Pid: t.LocalPortID()}
	case t.IsNonEmptyList():
		var elems []WireTerm
		for t.IsNonEmptyList() {
			elems = append(elems, TermToWire(glb, h, h.ListHead(t)))
			t = h.ListTail(t)
		}
		wt := WireTerm{Kind: WireList, Elements: elems}
		if !t.IsNil() {
			// Improper tail rides along as a final pair entry.
			wt.Pairs = []WireTerm{TermToWire(glb, h, t)}
		}
		return wt
	case t.IsBoxed():
		switch h.boxedTag(t) {
		case boxedInt64:
			return WireTerm{Kind: WireInt, Int: h.Int(t)}
		case boxedFloat:
			return WireTerm{Kind: WireFloat, Float: h.Float(t)}
		case boxedRef:
			return WireTerm{Kind: WireRef, Ref: h.RefTicks(t)}
		case boxedBinary:
			return WireTerm{Kind: WireBinary, Binary: h.BinaryBytes(t)}
		case boxedTuple:
			n := h.TupleArity(t)
			elems := make([]WireTerm, n)
			for i := 0; i < n; i++ {
				elems[i] = TermToWire(glb, h, h.TupleElement(t, i))
			}
			return WireTerm{Kind: WireTuple, Elements: elems}
		case boxedMap:
			n := h.MapLen(t)
			pairs := make([]WireTerm, 0, 2*n)
			for i := 0; i < n; i++ {
				pairs = append(pairs, TermToWire(glb, h, h.MapKey(t, i)))
				pairs = append(pairs, TermToWire(glb, h, h.MapValue(t, i)))
			}
			return WireTerm{Kind: WireMap, Pairs: pairs}
		case boxedFunction:
			return WireTerm{
				Kind: WireFunction,
				Atom: wireAtomName(glb, h.FunctionModule(t)),
				Int:  int64(h.FunctionIndex(t)),
			}
		}
	}
	return WireTerm{Kind: WireInvalid}
}

func wireAtomName(glb *GlobalContext, t Term) string {
	if !t.IsAtom() {
		return ""
	}
	name, _ := glb.atoms.AtomName(t.AtomIndex())
	return name
}

// MarshalTerm serializes a term to canonical CBOR bytes.
func MarshalTerm(glb *GlobalContext, h *Heap, t Term) ([]byte, error) {
	return cborEncMode.Marshal(TermToWire(glb, h, t))
}

// UnmarshalWireTerm deserializes external-form bytes.
func UnmarshalWireTerm(data []byte) (*WireTerm, error) {
	var wt WireTerm
	if err := cbor.Unmarshal(data, &wt); err != nil {
		return nil, fmt.Errorf("vm: unmarshal wire term: %w", err)
	}
	return &wt, nil
}

// ---------------------------------------------------------------------------
// Process snapshots
// ---------------------------------------------------------------------------

// ProcessSnapshot captures the externally observable state of a process
// at one point in time.
type ProcessSnapshot struct {
	Pid             int32    `cbor:"pid"`
	Node            string   `cbor:"node"`
	ExitReason      WireTerm `cbor:"exit_reason"`
	HeapSize        int      `cbor:"heap_size"`
	StackSize       int      `cbor:"stack_size"`
	MessageQueueLen int      `cbor:"message_queue_len"`
	Memory          int      `cbor:"memory"`
}

// SnapshotProcess captures ctx. Only the owning scheduler thread may call
// this while the process can still run.
func SnapshotProcess(ctx *Context) *ProcessSnapshot {
	glb := ctx.global
	return &ProcessSnapshot{
		Pid:             ctx.processID,
		Node:            glb.nodeID.String(),
		ExitReason:      TermToWire(glb, ctx.heap, ctx.exitReason),
		HeapSize:        ctx.heap.HeapSize() - ctx.heap.StackSize(),
		StackSize:       ctx.heap.StackSize(),
		MessageQueueLen: ctx.MessageQueueLen(),
		Memory:          ctx.Size(),
	}
}

// MarshalSnapshot serializes a snapshot to canonical CBOR bytes.
func MarshalSnapshot(s *ProcessSnapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes snapshot bytes.
func UnmarshalSnapshot(data []byte) (*ProcessSnapshot, error) {
	var s ProcessSnapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
