package rtlib

import (
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/wasm"
)

// Box returns box32(v) -> cell or box64(v i64) -> cell, a fresh cell
// holding a value of type t
func (l *Lib) Box(t ir.Type) uint32 {
	if t.WasmType() == i64 {
		return l.Get("rt.box64", []wasm.ValType{i64}, []wasm.ValType{i32}, func(f *wasm.Func) {
			p := f.NewLocal(i32)
			f.Body.I32Const(8).Call(l.Alloc()).LocalTee(p).LocalGet(0).I64Store(0)
			f.Body.LocalGet(p)
		})
	}
	return l.Get("rt.box32", []wasm.ValType{i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		p := f.NewLocal(i32)
		f.Body.I32Const(4).Call(l.Alloc()).LocalTee(p).LocalGet(0).I32Store(0)
		f.Body.LocalGet(p)
	})
}

// Load emits a load of a t-typed value from the cell on the stack.
// Stack: [cell] -> [v].
func Load(s *wasm.Seq, t ir.Type, offset uint32) {
	if t.WasmType() == i64 {
		s.I64Load(offset)
		return
	}
	s.I32Load(offset)
}

// Store emits a store of a t-typed value into a cell.
// Stack: [cell, v] -> [].
func Store(s *wasm.Seq, t ir.Type, offset uint32) {
	if t.WasmType() == i64 {
		s.I64Store(offset)
		return
	}
	s.I32Store(offset)
}

// Field emits a load of field i of the struct block on the stack,
// leaving the field value. Stack: [block] -> [v].
func Field(s *wasm.Seq, t ir.Type, i int) {
	s.I32Load(uint32(4 * i))
	Load(s, t, 0)
}

// Element emits the address of element i (an i32 local) of the vector
// block held in local block. Stack: [] -> [addr].
func Element(s *wasm.Seq, block, i uint32, stride int) {
	s.LocalGet(block).I32Const(VectorHeader).Op(wasm.OpI32Add)
	s.LocalGet(i).I32Const(int32(stride)).Op(wasm.OpI32Mul).Op(wasm.OpI32Add)
}

// IDDepth is the number of single-field structs wrapping the address of
// an object identifier type: ID holds the address, UID holds an ID
func IDDepth(t ir.Type) int {
	switch t.Tag {
	case ir.VMID:
		return 1
	case ir.VMUID:
		return 2
	case ir.VMNamedID:
		return 3
	}
	panic("rtlib: " + t.String() + " is not an object identifier")
}

// WrapID emits into b the identifier struct t built around the address
// in local addr of f. Stack: [] -> [block].
func (l *Lib) WrapID(f *wasm.Func, b *wasm.Seq, t ir.Type, addr uint32) {
	blk := f.NewLocal(i32)
	box := f.NewLocal(i32)
	b.LocalGet(addr)
	for range IDDepth(t) {
		b.Call(l.Box(ir.Address)).LocalSet(box)
		l.AllocConst(b, 4)
		b.LocalTee(blk).LocalGet(box).I32Store(0)
		b.LocalGet(blk)
	}
}

// UnwrapID emits the address pointer inside the identifier struct t.
// Stack: [block] -> [address].
func UnwrapID(b *wasm.Seq, t ir.Type) {
	for range IDDepth(t) {
		b.I32Load(0).I32Load(0)
	}
}
