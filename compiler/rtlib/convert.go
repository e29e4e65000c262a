package rtlib

import "github.com/wippyai/move2wasm/wasm"

// Bswap32 returns bswap32(v i32) -> i32
func (l *Lib) Bswap32() uint32 {
	return l.Get("rt.bswap32", []wasm.ValType{i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		b := f.Body
		b.LocalGet(0).I32Const(-16711936).Op(wasm.OpI32And).I32Const(8).Op(wasm.OpI32Rotl) // 0xff00ff00
		b.LocalGet(0).I32Const(0x00ff00ff).Op(wasm.OpI32And).I32Const(8).Op(wasm.OpI32Rotr)
		b.Op(wasm.OpI32Or)
	})
}

// Bswap64 returns bswap64(v i64) -> i64
func (l *Lib) Bswap64() uint32 {
	return l.Get("rt.bswap64", []wasm.ValType{i64}, []wasm.ValType{i64}, func(f *wasm.Func) {
		b := f.Body
		b.LocalGet(0).Op(wasm.OpI32WrapI64).Call(l.Bswap32()).Op(wasm.OpI64ExtendI32U).I64Const(32).Op(wasm.OpI64Shl)
		b.LocalGet(0).I64Const(32).Op(wasm.OpI64ShrU).Op(wasm.OpI32WrapI64).Call(l.Bswap32()).Op(wasm.OpI64ExtendI32U)
		b.Op(wasm.OpI64Or)
	})
}

// WriteBE returns write_be(dst, src, n): the n little-endian bytes at src
// are written big-endian and right-aligned into the 32-byte word at dst.
func (l *Lib) WriteBE() uint32 {
	return l.Get("rt.write_be", []wasm.ValType{i32, i32, i32}, nil, func(f *wasm.Func) {
		i := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(0).I32Const(0).I32Const(32).LocalGet(2).Op(wasm.OpI32Sub).MemoryFill()
		b.ForRange(i, 2, func(body *wasm.Seq) {
			body.LocalGet(0).I32Const(31).Op(wasm.OpI32Add).LocalGet(i).Op(wasm.OpI32Sub)
			body.LocalGet(1).LocalGet(i).Op(wasm.OpI32Add).I32Load8U(0)
			body.I32Store8(0)
		})
	})
}

// ReadBE returns read_be(word, n) -> ptr, a fresh n-byte little-endian
// value read from the right-aligned big-endian word. Non-zero padding
// traps.
func (l *Lib) ReadBE() uint32 {
	return l.Get("rt.read_be", []wasm.ValType{i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		i := f.NewLocal(i32)
		r := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(0).I32Const(32).LocalGet(1).Op(wasm.OpI32Sub).Call(l.IsZero()).Op(wasm.OpI32Eqz).TrapIf()
		b.LocalGet(1).Call(l.Alloc()).LocalSet(r)
		b.ForRange(i, 1, func(body *wasm.Seq) {
			body.LocalGet(r).LocalGet(i).Op(wasm.OpI32Add)
			body.LocalGet(0).I32Const(31).Op(wasm.OpI32Add).LocalGet(i).Op(wasm.OpI32Sub).I32Load8U(0)
			body.I32Store8(0)
		})
		b.LocalGet(r)
	})
}

// U64ToDecimal returns u64_to_dec(v i64, dst) -> len, writing the decimal
// digits of v at dst
func (l *Lib) U64ToDecimal() uint32 {
	return l.Get("rt.u64_to_dec", []wasm.ValType{i64, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		t := f.NewLocal(i64)
		n := f.NewLocal(i32)
		i := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(0).LocalSet(t)
		b.Loop(void, func(lp *wasm.Seq, top wasm.Label) {
			lp.LocalGet(n).I32Const(1).Op(wasm.OpI32Add).LocalSet(n)
			lp.LocalGet(t).I64Const(10).Op(wasm.OpI64DivU).LocalTee(t)
			lp.Op(wasm.OpI64Eqz).Op(wasm.OpI32Eqz).BrIf(top)
		})
		b.LocalGet(0).LocalSet(t)
		b.LocalGet(n).LocalSet(i)
		b.Loop(void, func(lp *wasm.Seq, top wasm.Label) {
			lp.LocalGet(i).I32Const(1).Op(wasm.OpI32Sub).LocalSet(i)
			lp.LocalGet(1).LocalGet(i).Op(wasm.OpI32Add)
			lp.LocalGet(t).I64Const(10).Op(wasm.OpI64RemU).Op(wasm.OpI32WrapI64).I32Const('0').Op(wasm.OpI32Add)
			lp.I32Store8(0)
			lp.LocalGet(t).I64Const(10).Op(wasm.OpI64DivU).LocalTee(t)
			lp.Op(wasm.OpI64Eqz).Op(wasm.OpI32Eqz).BrIf(top)
		})
		b.LocalGet(n)
	})
}
