package rtlib

import (
	"fmt"

	"github.com/wippyai/move2wasm/wasm"
)

// Wide integers are little-endian blocks of n bytes, n being 16 or 32.
// Limb loops are unrolled over 64-bit limbs except multiplication, which
// works on 32-bit limbs so partial products fit an i64.

func wideName(op string, n int) string {
	switch n {
	case 16:
		return "rt.u128_" + op
	case 32:
		return "rt.u256_" + op
	}
	panic(fmt.Sprintf("rtlib: wide integer of %d bytes", n))
}

func wideBinary(l *Lib, op string, n int, gen func(f *wasm.Func)) uint32 {
	return l.Get(wideName(op, n), []wasm.ValType{i32, i32}, []wasm.ValType{i32}, gen)
}

// WideAdd returns add(a, b) -> r, trapping on overflow
func (l *Lib) WideAdd(n int) uint32 {
	return wideBinary(l, "add", n, func(f *wasm.Func) {
		r := f.NewLocal(i32)
		x := f.NewLocal(i64)
		s := f.NewLocal(i64)
		carry := f.NewLocal(i64)
		b := f.Body
		l.AllocConst(b, n)
		b.LocalSet(r)
		for off := uint32(0); off < uint32(n); off += 8 {
			b.LocalGet(0).I64Load(off).LocalTee(x)
			b.LocalGet(1).I64Load(off).Op(wasm.OpI64Add).LocalTee(s)
			b.LocalGet(x).Op(wasm.OpI64LtU) // carry out of x+y
			b.LocalGet(s).LocalGet(carry).Op(wasm.OpI64Add).LocalTee(x)
			b.LocalGet(s).Op(wasm.OpI64LtU) // carry out of +carry
			b.Op(wasm.OpI32Or).Op(wasm.OpI64ExtendI32U).LocalSet(carry)
			b.LocalGet(r).LocalGet(x).I64Store(off)
		}
		b.LocalGet(carry).Op(wasm.OpI64Eqz).Op(wasm.OpI32Eqz).TrapIf()
		b.LocalGet(r)
	})
}

// WideSub returns sub(a, b) -> r, trapping on underflow
func (l *Lib) WideSub(n int) uint32 {
	return wideBinary(l, "sub", n, func(f *wasm.Func) {
		r := f.NewLocal(i32)
		l.subBody(f, n, r, true)
		f.Body.LocalGet(r)
	})
}

// WideSubInPlace returns sub_in_place(a, b), a -= b modulo 2^(8n)
func (l *Lib) WideSubInPlace(n int) uint32 {
	return l.Get(wideName("sub_in_place", n), []wasm.ValType{i32, i32}, nil, func(f *wasm.Func) {
		l.subBody(f, n, 0, false)
	})
}

func (l *Lib) subBody(f *wasm.Func, n int, r uint32, trap bool) {
	x := f.NewLocal(i64)
	y := f.NewLocal(i64)
	d := f.NewLocal(i64)
	borrow := f.NewLocal(i64)
	b := f.Body
	if trap {
		l.AllocConst(b, n)
		b.LocalSet(r)
	}
	for off := uint32(0); off < uint32(n); off += 8 {
		b.LocalGet(0).I64Load(off).LocalSet(x)
		b.LocalGet(1).I64Load(off).LocalSet(y)
		b.LocalGet(x).LocalGet(y).Op(wasm.OpI64Sub).LocalSet(d)
		b.LocalGet(x).LocalGet(y).Op(wasm.OpI64LtU)
		b.LocalGet(d).LocalGet(borrow).Op(wasm.OpI64LtU)
		b.Op(wasm.OpI32Or)
		b.LocalGet(r).LocalGet(d).LocalGet(borrow).Op(wasm.OpI64Sub).I64Store(off)
		b.Op(wasm.OpI64ExtendI32U).LocalSet(borrow)
	}
	if trap {
		b.LocalGet(borrow).Op(wasm.OpI64Eqz).Op(wasm.OpI32Eqz).TrapIf()
	}
}

// WideMul returns mul(a, b) -> r, trapping on overflow
func (l *Lib) WideMul(n int) uint32 {
	return wideBinary(l, "mul", n, func(f *wasm.Func) {
		r := f.NewLocal(i32)
		ai := f.NewLocal(i64)
		t := f.NewLocal(i64)
		carry := f.NewLocal(i64)
		b := f.Body
		l.AllocConst(b, n)
		b.LocalSet(r)
		k := n / 4
		for i := 0; i < k; i++ {
			b.LocalGet(0).Mem(wasm.OpI64Load32U, uint32(4*i)).LocalSet(ai)
			b.I64Const(0).LocalSet(carry)
			for j := 0; j < k-i; j++ {
				off := uint32(4 * (i + j))
				b.LocalGet(ai).LocalGet(1).Mem(wasm.OpI64Load32U, uint32(4*j)).Op(wasm.OpI64Mul)
				b.LocalGet(r).Mem(wasm.OpI64Load32U, off).Op(wasm.OpI64Add)
				b.LocalGet(carry).Op(wasm.OpI64Add).LocalSet(t)
				b.LocalGet(r).LocalGet(t).Mem(wasm.OpI64Store32, off)
				b.LocalGet(t).I64Const(32).Op(wasm.OpI64ShrU).LocalSet(carry)
			}
			b.LocalGet(carry).Op(wasm.OpI64Eqz).Op(wasm.OpI32Eqz).TrapIf()
			// a[i]*b[j] with i+j >= k lands above the result width
			for j := k - i; j < k; j++ {
				b.LocalGet(ai).Op(wasm.OpI64Eqz).Op(wasm.OpI32Eqz)
				b.LocalGet(1).I32Load(uint32(4 * j)).Op(wasm.OpI32Eqz).Op(wasm.OpI32Eqz)
				b.Op(wasm.OpI32And).TrapIf()
			}
		}
		b.LocalGet(r)
	})
}

// WideLt returns lt(a, b) -> i32
func (l *Lib) WideLt(n int) uint32 {
	return wideBinary(l, "lt", n, func(f *wasm.Func) {
		x := f.NewLocal(i64)
		y := f.NewLocal(i64)
		b := f.Body
		for off := n - 8; off >= 0; off -= 8 {
			b.LocalGet(0).I64Load(uint32(off)).LocalTee(x)
			b.LocalGet(1).I64Load(uint32(off)).LocalTee(y)
			b.Op(wasm.OpI64Ne).If(void, func(t *wasm.Seq) {
				t.LocalGet(x).LocalGet(y).Op(wasm.OpI64LtU).Return()
			}, nil)
		}
		b.I32Const(0)
	})
}

// WideEq returns eq(a, b) -> i32
func (l *Lib) WideEq(n int) uint32 {
	return wideBinary(l, "eq", n, func(f *wasm.Func) {
		b := f.Body
		b.I32Const(1)
		for off := uint32(0); off < uint32(n); off += 8 {
			b.LocalGet(0).I64Load(off).LocalGet(1).I64Load(off).Op(wasm.OpI64Eq).Op(wasm.OpI32And)
		}
	})
}

// WideBitwise returns and/or/xor(a, b) -> r for op one of OpI64And,
// OpI64Or, OpI64Xor
func (l *Lib) WideBitwise(n int, op byte) uint32 {
	name := map[byte]string{wasm.OpI64And: "and", wasm.OpI64Or: "or", wasm.OpI64Xor: "xor"}[op]
	if name == "" {
		panic(fmt.Sprintf("rtlib: 0x%02x is not a bitwise operation", op))
	}
	return wideBinary(l, name, n, func(f *wasm.Func) {
		r := f.NewLocal(i32)
		b := f.Body
		l.AllocConst(b, n)
		b.LocalSet(r)
		for off := uint32(0); off < uint32(n); off += 8 {
			b.LocalGet(r)
			b.LocalGet(0).I64Load(off).LocalGet(1).I64Load(off).Op(op)
			b.I64Store(off)
		}
		b.LocalGet(r)
	})
}

// WideShl returns shl(a, s i32) -> r. Bits shifted out are discarded; an
// amount of at least the width traps.
func (l *Lib) WideShl(n int) uint32 {
	return l.Get(wideName("shl", n), []wasm.ValType{i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		l.shiftBody(f, n, true)
	})
}

// WideShr returns shr(a, s i32) -> r with the same trapping rule as WideShl
func (l *Lib) WideShr(n int) uint32 {
	return l.Get(wideName("shr", n), []wasm.ValType{i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		l.shiftBody(f, n, false)
	})
}

// shiftBody moves whole limbs by s/64 and carries the residual s%64 bits
// across neighbouring limbs.
func (l *Lib) shiftBody(f *wasm.Func, n int, left bool) {
	r := f.NewLocal(i32)
	words := f.NewLocal(i32)
	bits := f.NewLocal(i64)
	i := f.NewLocal(i32)
	limit := f.NewLocal(i32)
	src := f.NewLocal(i32)
	v := f.NewLocal(i64)
	k := int32(n / 8)
	b := f.Body

	b.LocalGet(1).I32Const(int32(n * 8)).Op(wasm.OpI32GeU).TrapIf()
	l.AllocConst(b, n)
	b.LocalSet(r)
	b.LocalGet(1).I32Const(6).Op(wasm.OpI32ShrU).LocalSet(words)
	b.LocalGet(1).I32Const(63).Op(wasm.OpI32And).Op(wasm.OpI64ExtendI32U).LocalSet(bits)
	b.I32Const(k).LocalGet(words).Op(wasm.OpI32Sub).LocalSet(limit)

	b.ForRange(i, limit, func(body *wasm.Seq) {
		if left {
			// r[i+words] = a[i] << bits | a[i-1] >> (64-bits)
			body.LocalGet(0).LocalGet(i).I32Const(3).Op(wasm.OpI32Shl).Op(wasm.OpI32Add).LocalTee(src)
			body.I64Load(0).LocalGet(bits).Op(wasm.OpI64Shl).LocalSet(v)
			body.LocalGet(bits).Op(wasm.OpI64Eqz).Op(wasm.OpI32Eqz)
			body.LocalGet(i).Op(wasm.OpI32Eqz).Op(wasm.OpI32Eqz).Op(wasm.OpI32And)
			body.If(void, func(t *wasm.Seq) {
				t.LocalGet(v).LocalGet(src).I32Const(8).Op(wasm.OpI32Sub).I64Load(0)
				t.I64Const(64).LocalGet(bits).Op(wasm.OpI64Sub).Op(wasm.OpI64ShrU)
				t.Op(wasm.OpI64Or).LocalSet(v)
			}, nil)
			body.LocalGet(r).LocalGet(i).LocalGet(words).Op(wasm.OpI32Add).I32Const(3).Op(wasm.OpI32Shl).Op(wasm.OpI32Add)
			body.LocalGet(v).I64Store(0)
			return
		}
		// r[i] = a[i+words] >> bits | a[i+words+1] << (64-bits)
		body.LocalGet(0).LocalGet(i).LocalGet(words).Op(wasm.OpI32Add).I32Const(3).Op(wasm.OpI32Shl).Op(wasm.OpI32Add).LocalTee(src)
		body.I64Load(0).LocalGet(bits).Op(wasm.OpI64ShrU).LocalSet(v)
		body.LocalGet(bits).Op(wasm.OpI64Eqz).Op(wasm.OpI32Eqz)
		body.LocalGet(i).I32Const(1).Op(wasm.OpI32Add).LocalGet(limit).Op(wasm.OpI32LtU)
		body.Op(wasm.OpI32And)
		body.If(void, func(t *wasm.Seq) {
			t.LocalGet(v).LocalGet(src).I64Load(8)
			t.I64Const(64).LocalGet(bits).Op(wasm.OpI64Sub).Op(wasm.OpI64Shl)
			t.Op(wasm.OpI64Or).LocalSet(v)
		}, nil)
		body.LocalGet(r).LocalGet(i).I32Const(3).Op(wasm.OpI32Shl).Op(wasm.OpI32Add)
		body.LocalGet(v).I64Store(0)
	})
	b.LocalGet(r)
}

// WideDivMod returns divmod(a, b, q, r), writing the quotient and the
// remainder into the zeroed blocks q and r. Division by zero traps.
func (l *Lib) WideDivMod(n int) uint32 {
	return l.Get(wideName("divmod", n), []wasm.ValType{i32, i32, i32, i32}, nil, func(f *wasm.Func) {
		const a, d, q, r = 0, 1, 2, 3
		bit := f.NewLocal(i32)
		limb := f.NewLocal(i32)
		mask := f.NewLocal(i64)
		top := f.NewLocal(i32)
		b := f.Body

		b.LocalGet(d).I32Const(int32(n)).Call(l.IsZero()).TrapIf()
		b.I32Const(int32(n*8 - 1)).LocalSet(bit)
		b.Block(void, func(blk *wasm.Seq, done wasm.Label) {
			blk.Loop(void, func(lp *wasm.Seq, next wasm.Label) {
				// r <<= 1, keeping the bit shifted out
				lp.LocalGet(r).I64Load(uint32(n - 8)).I64Const(63).Op(wasm.OpI64ShrU).Op(wasm.OpI32WrapI64).LocalSet(top)
				for off := n - 8; off >= 0; off -= 8 {
					lp.LocalGet(r)
					lp.LocalGet(r).I64Load(uint32(off)).I64Const(1).Op(wasm.OpI64Shl)
					if off > 0 {
						lp.LocalGet(r).I64Load(uint32(off - 8)).I64Const(63).Op(wasm.OpI64ShrU).Op(wasm.OpI64Or)
					}
					lp.I64Store(uint32(off))
				}
				// r |= bit of a
				lp.LocalGet(bit).I32Const(6).Op(wasm.OpI32ShrU).I32Const(3).Op(wasm.OpI32Shl).LocalSet(limb)
				lp.I64Const(1).LocalGet(bit).I32Const(63).Op(wasm.OpI32And).Op(wasm.OpI64ExtendI32U).Op(wasm.OpI64Shl).LocalSet(mask)
				lp.LocalGet(r).LocalGet(r).I64Load(0)
				lp.LocalGet(a).LocalGet(limb).Op(wasm.OpI32Add).I64Load(0).LocalGet(mask).Op(wasm.OpI64And).Op(wasm.OpI64Eqz).Op(wasm.OpI32Eqz).Op(wasm.OpI64ExtendI32U)
				lp.Op(wasm.OpI64Or).I64Store(0)
				// r >= d, or r overflowed the width
				lp.LocalGet(top)
				lp.LocalGet(r).LocalGet(d).Call(l.WideLt(n)).Op(wasm.OpI32Eqz)
				lp.Op(wasm.OpI32Or).If(void, func(t *wasm.Seq) {
					t.LocalGet(r).LocalGet(d).Call(l.WideSubInPlace(n))
					t.LocalGet(q).LocalGet(limb).Op(wasm.OpI32Add)
					t.LocalGet(q).LocalGet(limb).Op(wasm.OpI32Add).I64Load(0).LocalGet(mask).Op(wasm.OpI64Or)
					t.I64Store(0)
				}, nil)
				lp.LocalGet(bit).Op(wasm.OpI32Eqz).BrIf(done)
				lp.LocalGet(bit).I32Const(1).Op(wasm.OpI32Sub).LocalSet(bit)
				lp.Br(next)
			})
		})
	})
}

// WideDiv returns div(a, b) -> q
func (l *Lib) WideDiv(n int) uint32 {
	return wideBinary(l, "div", n, func(f *wasm.Func) {
		q := f.NewLocal(i32)
		l.divCall(f, n, q, false)
		f.Body.LocalGet(q)
	})
}

// WideMod returns mod(a, b) -> r
func (l *Lib) WideMod(n int) uint32 {
	return wideBinary(l, "mod", n, func(f *wasm.Func) {
		r := f.NewLocal(i32)
		l.divCall(f, n, r, true)
		f.Body.LocalGet(r)
	})
}

func (l *Lib) divCall(f *wasm.Func, n int, out uint32, remainder bool) {
	other := f.NewLocal(i32)
	b := f.Body
	l.AllocConst(b, n)
	b.LocalSet(out)
	l.AllocConst(b, n)
	b.LocalSet(other)
	b.LocalGet(0).LocalGet(1)
	if remainder {
		b.LocalGet(other).LocalGet(out)
	} else {
		b.LocalGet(out).LocalGet(other)
	}
	b.Call(l.WideDivMod(n))
}

// WideFromU64 returns from_u64(v i64) -> r
func (l *Lib) WideFromU64(n int) uint32 {
	return l.Get(wideName("from_u64", n), []wasm.ValType{i64}, []wasm.ValType{i32}, func(f *wasm.Func) {
		r := f.NewLocal(i32)
		b := f.Body
		l.AllocConst(b, n)
		b.LocalTee(r).LocalGet(0).I64Store(0)
		b.LocalGet(r)
	})
}

// WideToU64 returns to_u64(a) -> i64, trapping when a does not fit
func (l *Lib) WideToU64(n int) uint32 {
	return l.Get(wideName("to_u64", n), []wasm.ValType{i32}, []wasm.ValType{i64}, func(f *wasm.Func) {
		b := f.Body
		b.LocalGet(0).I32Const(8).Op(wasm.OpI32Add).I32Const(int32(n - 8)).Call(l.IsZero()).Op(wasm.OpI32Eqz).TrapIf()
		b.LocalGet(0).I64Load(0)
	})
}

// WideResize returns resize(a) -> r converting between widths from and
// to, trapping when narrowing loses bits
func (l *Lib) WideResize(from, to int) uint32 {
	name := fmt.Sprintf("rt.resize_%d_%d", from*8, to*8)
	return l.Get(name, []wasm.ValType{i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		r := f.NewLocal(i32)
		b := f.Body
		if to < from {
			b.LocalGet(0).I32Const(int32(to)).Op(wasm.OpI32Add).I32Const(int32(from - to)).Call(l.IsZero()).Op(wasm.OpI32Eqz).TrapIf()
		}
		l.AllocConst(b, to)
		b.LocalTee(r).LocalGet(0).I32Const(int32(min(from, to))).MemoryCopy()
		b.LocalGet(r)
	})
}
