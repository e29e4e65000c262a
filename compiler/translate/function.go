package translate

import (
	"strings"

	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/wasm"
)

// FunctionID identifies a monomorphic function: the declaring module, the
// function name and the concrete type arguments
type FunctionID struct {
	Module   move.ModuleID
	Name     string
	TypeArgs []ir.Type
}

// Key is the stable identity of id
func (id FunctionID) Key() string {
	var b strings.Builder
	b.WriteString(id.Module.String())
	b.WriteString("::")
	b.WriteString(id.Name)
	if len(id.TypeArgs) > 0 {
		b.WriteByte('<')
		for i, a := range id.TypeArgs {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(a.Key())
		}
		b.WriteByte('>')
	}
	return b.String()
}

func (id FunctionID) String() string { return id.Key() }

// Entry is a function registered in the table. Func is its WASM function
// index and Slot its position in the indirect call table.
type Entry struct {
	ID      FunctionID
	Params  []ir.Type
	Returns []ir.Type
	Func    uint32
	Slot    uint32
	TypeIdx uint32
	defined bool
}

// Table maps function identities to reserved WASM functions. It is the
// symbol table between translation and linking: callees are registered
// when first referenced and defined when the driver gets to them.
type Table struct {
	b       *wasm.ModuleBuilder
	entries map[string]*Entry
	order   []*Entry
}

// NewTable returns an empty table reserving functions on b
func NewTable(b *wasm.ModuleBuilder) *Table {
	return &Table{b: b, entries: make(map[string]*Entry)}
}

// Lookup finds a registered function
func (t *Table) Lookup(id FunctionID) (*Entry, bool) {
	e, ok := t.entries[id.Key()]
	return e, ok
}

// Register returns the entry of id, reserving a function index and a table
// slot when id is new. added reports whether it was.
func (t *Table) Register(id FunctionID, params, returns []ir.Type) (e *Entry, added bool) {
	if e, ok := t.entries[id.Key()]; ok {
		return e, false
	}
	wp, wr := wasmTypes(params), wasmTypes(returns)
	idx := t.b.Reserve(id.Key(), wp, wr)
	e = &Entry{
		ID:      id,
		Params:  params,
		Returns: returns,
		Func:    idx,
		Slot:    t.b.TableSlot(idx),
		TypeIdx: t.b.TypeIndex(wp, wr),
	}
	t.entries[id.Key()] = e
	t.order = append(t.order, e)
	return e, true
}

// Entries returns the registered functions in registration order
func (t *Table) Entries() []*Entry {
	return t.order
}

// Undefined returns the registered functions without a body yet
func (t *Table) Undefined() []*Entry {
	var out []*Entry
	for _, e := range t.order {
		if !e.defined {
			out = append(out, e)
		}
	}
	return out
}

func (t *Table) define(e *Entry, f *wasm.Func) {
	t.b.Define(e.Func, f)
	e.defined = true
}

func wasmTypes(types []ir.Type) []wasm.ValType {
	out := make([]wasm.ValType, len(types))
	for i, t := range types {
		out[i] = t.WasmType()
	}
	return out
}
