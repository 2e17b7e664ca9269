package vm

import "fmt"

// ---------------------------------------------------------------------------
// NIF registry
// ---------------------------------------------------------------------------

// Nif is a builtin function invoked during bytecode resolution. Arguments
// arrive on the caller's heap; the result must be allocated there too.
type Nif func(ctx *Context, args []Term) Term

// NifTable maps fully-qualified names (module:fun/arity) to builtin
// implementations. The table is frozen at build time and read-only at
// runtime, so lookups need no synchronization.
type NifTable struct {
	nifs map[string]Nif
}

// NifTableBuilder accumulates registrations before the table is frozen.
type NifTableBuilder struct {
	nifs map[string]Nif
}

// NewNifTableBuilder creates an empty builder.
func NewNifTableBuilder() *NifTableBuilder {
	return &NifTableBuilder{nifs: make(map[string]Nif)}
}

// Register binds module:fun/arity to fn. Duplicate registrations are an
// error: the table models a perfect-hash dispatch surface.
func (b *NifTableBuilder) Register(module, fun string, arity int, fn Nif) error {
	key := nifKey(module, fun, arity)
	if _, exists := b.nifs[key]; exists {
		return fmt.Errorf("vm: nif %s already registered", key)
	}
	b.nifs[key] = fn
	return nil
}

// Build freezes the builder into an immutable table.
func (b *NifTableBuilder) Build() *NifTable {
	nifs := make(map[string]Nif, len(b.nifs))
	for k, v := range b.nifs {
		nifs[k] = v
	}
	return &NifTable{nifs: nifs}
}

// Resolve returns the builtin for module:fun/arity, or nil.
func (t *NifTable) Resolve(module, fun string, arity int) Nif {
	return t.nifs[nifKey(module, fun, arity)]
}

// Len returns the number of registered builtins.
func (t *NifTable) Len() int {
	return len(t.nifs)
}

func nifKey(module, fun string, arity int) string {
	return fmt.Sprintf("%s:%s/%d", module, fun, arity)
}
