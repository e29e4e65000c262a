package rtlib

import (
	"fmt"

	"github.com/wippyai/move2wasm/wasm"
)

// Vector blocks are [len u32][capacity u32][elements]. Element slots hold
// the element's value representation: 8 bytes for u64, 4 otherwise.
const VectorHeader = 8

func stride(s int) (wasm.ValType, string) {
	switch s {
	case 4:
		return i32, "32"
	case 8:
		return i64, "64"
	}
	panic(fmt.Sprintf("rtlib: vector stride %d", s))
}

func (l *Lib) loadElem(b *wasm.Seq, s int) {
	if s == 8 {
		b.I64Load(VectorHeader)
	} else {
		b.I32Load(VectorHeader)
	}
}

func (l *Lib) storeElem(b *wasm.Seq, s int) {
	if s == 8 {
		b.I64Store(VectorHeader)
	} else {
		b.I32Store(VectorHeader)
	}
}

// elemAddr pushes block + i*stride for the i32 index in local i
func elemAddr(b *wasm.Seq, block, i uint32, s int) {
	b.LocalGet(block).LocalGet(i).I32Const(int32(s)).Op(wasm.OpI32Mul).Op(wasm.OpI32Add)
}

// VecNew returns vec_new(len, cap, stride) -> block with len set
func (l *Lib) VecNew() uint32 {
	return l.Get("rt.vec_new", []wasm.ValType{i32, i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		v := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(1).LocalGet(2).Op(wasm.OpI32Mul).I32Const(VectorHeader).Op(wasm.OpI32Add).Call(l.Alloc()).LocalTee(v)
		b.LocalGet(0).I32Store(0)
		b.LocalGet(v).LocalGet(1).I32Store(4)
		b.LocalGet(v)
	})
}

// VecIndex returns vec_index(ref, idx i64, stride) -> element address.
// ref points to the cell holding the block. Out of range indices trap.
func (l *Lib) VecIndex() uint32 {
	return l.Get("rt.vec_index", []wasm.ValType{i32, i64, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		v := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(0).I32Load(0).LocalTee(v)
		b.I32Load(0).Op(wasm.OpI64ExtendI32U).LocalGet(1).Op(wasm.OpI64LeU).TrapIf()
		b.LocalGet(v).I32Const(VectorHeader).Op(wasm.OpI32Add)
		b.LocalGet(1).Op(wasm.OpI32WrapI64).LocalGet(2).Op(wasm.OpI32Mul).Op(wasm.OpI32Add)
	})
}

// VecPushBack returns push_back_<bits>(ref, value). Capacity doubles,
// starting at 4, when the block is full.
func (l *Lib) VecPushBack(s int) uint32 {
	vt, bits := stride(s)
	return l.Get("rt.vec_push_back_"+bits, []wasm.ValType{i32, vt}, nil, func(f *wasm.Func) {
		v := f.NewLocal(i32)
		n := f.NewLocal(i32)
		capacity := f.NewLocal(i32)
		grown := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(0).I32Load(0).LocalTee(v).I32Load(0).LocalSet(n)
		b.LocalGet(v).I32Load(4).LocalSet(capacity)
		b.LocalGet(n).LocalGet(capacity).Op(wasm.OpI32GeU).If(void, func(t *wasm.Seq) {
			t.LocalGet(capacity).I32Const(1).Op(wasm.OpI32Shl).LocalTee(capacity)
			t.I32Const(4).Op(wasm.OpI32LtU).If(void, func(t *wasm.Seq) {
				t.I32Const(4).LocalSet(capacity)
			}, nil)
			t.LocalGet(capacity).I32Const(int32(s)).Op(wasm.OpI32Mul).I32Const(VectorHeader).Op(wasm.OpI32Add).
				Call(l.Alloc()).LocalTee(grown)
			t.LocalGet(v).LocalGet(n).I32Const(int32(s)).Op(wasm.OpI32Mul).I32Const(VectorHeader).Op(wasm.OpI32Add).
				MemoryCopy()
			t.LocalGet(grown).LocalGet(capacity).I32Store(4)
			t.LocalGet(0).LocalGet(grown).I32Store(0)
			t.LocalGet(grown).LocalSet(v)
		}, nil)
		elemAddr(b, v, n, s)
		b.LocalGet(1)
		l.storeElem(b, s)
		b.LocalGet(v).LocalGet(n).I32Const(1).Op(wasm.OpI32Add).I32Store(0)
	})
}

// VecPopBack returns pop_back_<bits>(ref) -> value, trapping when empty
func (l *Lib) VecPopBack(s int) uint32 {
	vt, bits := stride(s)
	return l.Get("rt.vec_pop_back_"+bits, []wasm.ValType{i32}, []wasm.ValType{vt}, func(f *wasm.Func) {
		v := f.NewLocal(i32)
		n := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(0).I32Load(0).LocalTee(v).I32Load(0).LocalTee(n).Op(wasm.OpI32Eqz).TrapIf()
		b.LocalGet(n).I32Const(1).Op(wasm.OpI32Sub).LocalSet(n)
		b.LocalGet(v).LocalGet(n).I32Store(0)
		elemAddr(b, v, n, s)
		l.loadElem(b, s)
	})
}

// VecSwap returns swap_<bits>(ref, i i64, j i64), trapping on out of
// range indices
func (l *Lib) VecSwap(s int) uint32 {
	vt, bits := stride(s)
	return l.Get("rt.vec_swap_"+bits, []wasm.ValType{i32, i64, i64}, nil, func(f *wasm.Func) {
		pi := f.NewLocal(i32)
		pj := f.NewLocal(i32)
		tmp := f.NewLocal(vt)
		b := f.Body
		b.LocalGet(0).LocalGet(1).I32Const(int32(s)).Call(l.VecIndex()).LocalSet(pi)
		b.LocalGet(0).LocalGet(2).I32Const(int32(s)).Call(l.VecIndex()).LocalSet(pj)
		b.LocalGet(pi)
		l.rawLoad(b, s)
		b.LocalSet(tmp)
		b.LocalGet(pi).LocalGet(pj)
		l.rawLoad(b, s)
		l.rawStore(b, s)
		b.LocalGet(pj).LocalGet(tmp)
		l.rawStore(b, s)
	})
}

func (l *Lib) rawLoad(b *wasm.Seq, s int) {
	if s == 8 {
		b.I64Load(0)
	} else {
		b.I32Load(0)
	}
}

func (l *Lib) rawStore(b *wasm.Seq, s int) {
	if s == 8 {
		b.I64Store(0)
	} else {
		b.I32Store(0)
	}
}

// VecLen emits the length of the vector whose reference is on the stack
// as an i64. Stack: [ref] -> [i64].
func VecLen(b *wasm.Seq) {
	b.I32Load(0).I32Load(0).Op(wasm.OpI64ExtendI32U)
}
