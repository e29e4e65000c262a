package rtlib

import "github.com/wippyai/move2wasm/wasm"

// Storage slots are 32-byte big-endian integers.

// SlotAdd returns slot_add(slot, n i32), slot += n in place modulo 2^256
func (l *Lib) SlotAdd() uint32 {
	return l.Get("rt.slot_add", []wasm.ValType{i32, i32}, nil, func(f *wasm.Func) {
		v := f.NewLocal(i64)
		carry := f.NewLocal(i64)
		b := f.Body
		b.LocalGet(1).Op(wasm.OpI64ExtendI32U).LocalSet(carry)
		for off := 24; off >= 0; off -= 8 {
			b.LocalGet(0).I64Load(uint32(off)).Call(l.Bswap64()).LocalGet(carry).Op(wasm.OpI64Add).LocalSet(v)
			b.LocalGet(0).LocalGet(v).Call(l.Bswap64()).I64Store(uint32(off))
			b.LocalGet(v).LocalGet(carry).Op(wasm.OpI64LtU).Op(wasm.OpI64ExtendI32U).LocalSet(carry)
		}
	})
}

// SlotCopy emits a copy of the 32-byte slot at src into dst.
// Stack: [dst, src] -> [].
func SlotCopy(b *wasm.Seq) {
	b.I32Const(32).MemoryCopy()
}
