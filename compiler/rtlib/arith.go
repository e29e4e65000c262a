package rtlib

import (
	"fmt"

	"github.com/wippyai/move2wasm/wasm"
)

// Narrow integers travel as i32 (u8, u16, u32) or i64 (u64). The checked
// routines trap on overflow; division and remainder use the native
// instructions, which already trap on a zero divisor.

func narrowName(op string, bits int) string {
	switch bits {
	case 8, 16, 32, 64:
		return fmt.Sprintf("rt.%s_u%d", op, bits)
	}
	panic(fmt.Sprintf("rtlib: narrow integer of %d bits", bits))
}

func narrowType(bits int) wasm.ValType {
	if bits == 64 {
		return i64
	}
	return i32
}

// MaxNarrow is the largest value of a u8, u16 or u32 as an i32 immediate
func MaxNarrow(bits int) int32 {
	switch bits {
	case 8:
		return 0xff
	case 16:
		return 0xffff
	}
	return -1
}

type narrowOps struct {
	add, sub, mul, ltU, gtU, ne, eqz, shl, shrU, divU, and byte
}

var ops32 = narrowOps{
	add: wasm.OpI32Add, sub: wasm.OpI32Sub, mul: wasm.OpI32Mul, ltU: wasm.OpI32LtU,
	gtU: wasm.OpI32GtU, ne: wasm.OpI32Ne, eqz: wasm.OpI32Eqz, shl: wasm.OpI32Shl,
	shrU: wasm.OpI32ShrU, divU: wasm.OpI32DivU, and: wasm.OpI32And,
}

var ops64 = narrowOps{
	add: wasm.OpI64Add, sub: wasm.OpI64Sub, mul: wasm.OpI64Mul, ltU: wasm.OpI64LtU,
	gtU: wasm.OpI64GtU, ne: wasm.OpI64Ne, eqz: wasm.OpI64Eqz, shl: wasm.OpI64Shl,
	shrU: wasm.OpI64ShrU, divU: wasm.OpI64DivU, and: wasm.OpI64And,
}

func opsFor(bits int) narrowOps {
	if bits == 64 {
		return ops64
	}
	return ops32
}

func (l *Lib) narrow(op string, bits int, gen func(f *wasm.Func, o narrowOps)) uint32 {
	vt := narrowType(bits)
	return l.Get(narrowName(op, bits), []wasm.ValType{vt, vt}, []wasm.ValType{vt}, func(f *wasm.Func) {
		gen(f, opsFor(bits))
	})
}

// Add returns add_u<bits>(a, b) -> a+b, trapping on overflow
func (l *Lib) Add(bits int) uint32 {
	return l.narrow("add", bits, func(f *wasm.Func, o narrowOps) {
		b := f.Body
		if bits < 32 {
			r := f.NewLocal(i32)
			b.LocalGet(0).LocalGet(1).Op(o.add).LocalSet(r)
			b.LocalGet(r).I32Const(MaxNarrow(bits)).Op(wasm.OpI32GtU).TrapIf()
			b.LocalGet(r)
			return
		}
		r := f.NewLocal(narrowType(bits))
		// a carry out of the top bit leaves the sum below either operand
		b.LocalGet(0).LocalGet(1).Op(o.add).LocalTee(r)
		b.LocalGet(0).Op(o.ltU).TrapIf()
		b.LocalGet(r)
	})
}

// Sub returns sub_u<bits>(a, b) -> a-b, trapping when b > a
func (l *Lib) Sub(bits int) uint32 {
	return l.narrow("sub", bits, func(f *wasm.Func, o narrowOps) {
		b := f.Body
		b.LocalGet(0).LocalGet(1).Op(o.ltU).TrapIf()
		b.LocalGet(0).LocalGet(1).Op(o.sub)
	})
}

// Mul returns mul_u<bits>(a, b) -> a*b, trapping on overflow
func (l *Lib) Mul(bits int) uint32 {
	return l.narrow("mul", bits, func(f *wasm.Func, o narrowOps) {
		b := f.Body
		switch bits {
		case 8, 16:
			r := f.NewLocal(i32)
			b.LocalGet(0).LocalGet(1).Op(wasm.OpI32Mul).LocalSet(r)
			b.LocalGet(r).I32Const(MaxNarrow(bits)).Op(wasm.OpI32GtU).TrapIf()
			b.LocalGet(r)
		case 32:
			w := f.NewLocal(i64)
			b.LocalGet(0).Op(wasm.OpI64ExtendI32U).LocalGet(1).Op(wasm.OpI64ExtendI32U).Op(wasm.OpI64Mul).LocalSet(w)
			b.LocalGet(w).I64Const(0xffffffff).Op(wasm.OpI64GtU).TrapIf()
			b.LocalGet(w).Op(wasm.OpI32WrapI64)
		default:
			r := f.NewLocal(i64)
			b.LocalGet(0).LocalGet(1).Op(wasm.OpI64Mul).LocalSet(r)
			b.LocalGet(0).Op(wasm.OpI64Eqz).If(void, func(t *wasm.Seq) {
				t.LocalGet(r).Return()
			}, nil)
			b.LocalGet(r).LocalGet(0).Op(wasm.OpI64DivU).LocalGet(1).Op(wasm.OpI64Ne).TrapIf()
			b.LocalGet(r)
		}
	})
}

// Shl returns shl_u<bits>(v, s i32) -> v << s. Bits shifted out are
// discarded; s >= bits traps.
func (l *Lib) Shl(bits int) uint32 {
	return l.shift("shl", bits, true)
}

// Shr returns shr_u<bits>(v, s i32) -> v >> s with the trapping rule of Shl
func (l *Lib) Shr(bits int) uint32 {
	return l.shift("shr", bits, false)
}

func (l *Lib) shift(op string, bits int, left bool) uint32 {
	vt := narrowType(bits)
	return l.Get(narrowName(op, bits), []wasm.ValType{vt, i32}, []wasm.ValType{vt}, func(f *wasm.Func) {
		o := opsFor(bits)
		b := f.Body
		b.LocalGet(1).I32Const(int32(bits)).Op(wasm.OpI32GeU).TrapIf()
		b.LocalGet(0).LocalGet(1)
		if bits == 64 {
			b.Op(wasm.OpI64ExtendI32U)
		}
		if !left {
			b.Op(o.shrU)
			return
		}
		b.Op(o.shl)
		if bits < 32 {
			b.I32Const(MaxNarrow(bits)).Op(wasm.OpI32And)
		}
	})
}
