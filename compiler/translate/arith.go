package translate

import (
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/wasm"
)

// operands pops the two operands of a binary integer instruction. Both
// must have the same integer type.
func (c *funcCtx) operands(op move.Opcode) (ir.Type, error) {
	b := c.stack.Pop()
	a := c.stack.Pop()
	if !a.Equal(b) {
		return a, errors.OperationTypeMismatch(op.String(), a, b)
	}
	if !a.IsInteger() {
		return a, errors.InvalidBinaryOperation(op.String(), a)
	}
	return a, nil
}

func wideSize(t ir.Type) int {
	return t.Bits() / 8
}

func isWide(t ir.Type) bool {
	return t.Kind == ir.KindU128 || t.Kind == ir.KindU256
}

func (c *funcCtx) arith(s *wasm.Seq, op move.Opcode) error {
	t, err := c.operands(op)
	if err != nil {
		return err
	}
	l := c.Lib
	if isWide(t) {
		n := wideSize(t)
		switch op {
		case move.OpAdd:
			s.Call(l.WideAdd(n))
		case move.OpSub:
			s.Call(l.WideSub(n))
		case move.OpMul:
			s.Call(l.WideMul(n))
		case move.OpDiv:
			s.Call(l.WideDiv(n))
		case move.OpMod:
			s.Call(l.WideMod(n))
		case move.OpBitOr:
			s.Call(l.WideBitwise(n, wasm.OpI64Or))
		case move.OpBitAnd:
			s.Call(l.WideBitwise(n, wasm.OpI64And))
		case move.OpXor:
			s.Call(l.WideBitwise(n, wasm.OpI64Xor))
		}
		c.stack.Push(t)
		return nil
	}

	bits := t.Bits()
	w64 := bits == 64
	pick := func(op32, op64 byte) byte {
		if w64 {
			return op64
		}
		return op32
	}
	switch op {
	case move.OpAdd:
		s.Call(l.Add(bits))
	case move.OpSub:
		s.Call(l.Sub(bits))
	case move.OpMul:
		s.Call(l.Mul(bits))
	case move.OpDiv:
		s.Op(pick(wasm.OpI32DivU, wasm.OpI64DivU))
	case move.OpMod:
		s.Op(pick(wasm.OpI32RemU, wasm.OpI64RemU))
	case move.OpBitOr:
		s.Op(pick(wasm.OpI32Or, wasm.OpI64Or))
	case move.OpBitAnd:
		s.Op(pick(wasm.OpI32And, wasm.OpI64And))
	case move.OpXor:
		s.Op(pick(wasm.OpI32Xor, wasm.OpI64Xor))
	}
	c.stack.Push(t)
	return nil
}

// shift lowers Shl and Shr. The amount is a u8; amounts of at least the
// operand width trap.
func (c *funcCtx) shift(s *wasm.Seq, op move.Opcode) error {
	if _, err := c.stack.PopExpecting(ir.U8); err != nil {
		return err
	}
	t := c.stack.Pop()
	if !t.IsInteger() {
		return errors.InvalidBinaryOperation(op.String(), t)
	}
	l := c.Lib
	left := op == move.OpShl
	switch {
	case isWide(t) && left:
		s.Call(l.WideShl(wideSize(t)))
	case isWide(t):
		s.Call(l.WideShr(wideSize(t)))
	case left:
		s.Call(l.Shl(t.Bits()))
	default:
		s.Call(l.Shr(t.Bits()))
	}
	c.stack.Push(t)
	return nil
}

func (c *funcCtx) compare(s *wasm.Seq, op move.Opcode) error {
	t, err := c.operands(op)
	if err != nil {
		return err
	}
	defer c.stack.Push(ir.Bool)

	if isWide(t) {
		lt := c.Lib.WideLt(wideSize(t))
		// only lt exists: a > b is b < a, a <= b is !(b < a)
		if op == move.OpGt || op == move.OpLe {
			b := c.temp(s, i32)
			a := c.temp(s, i32)
			s.LocalGet(b).LocalGet(a)
		}
		s.Call(lt)
		if op == move.OpLe || op == move.OpGe {
			s.Op(wasm.OpI32Eqz)
		}
		return nil
	}

	var code byte
	if t.Bits() == 64 {
		code = map[move.Opcode]byte{
			move.OpLt: wasm.OpI64LtU, move.OpGt: wasm.OpI64GtU,
			move.OpLe: wasm.OpI64LeU, move.OpGe: wasm.OpI64GeU,
		}[op]
	} else {
		code = map[move.Opcode]byte{
			move.OpLt: wasm.OpI32LtU, move.OpGt: wasm.OpI32GtU,
			move.OpLe: wasm.OpI32LeU, move.OpGe: wasm.OpI32GeU,
		}[op]
	}
	s.Op(code)
	return nil
}

// equality lowers Eq and Neq. References compare the values they point
// to; everything else compares structurally.
func (c *funcCtx) equality(s *wasm.Seq, negate bool) error {
	b := c.stack.Pop()
	a := c.stack.Pop()
	op := "Eq"
	if negate {
		op = "Neq"
	}
	if a.IsReference() != b.IsReference() {
		return errors.OperationTypeMismatch(op, a, b)
	}
	t := a
	if a.IsReference() {
		t = a.Deref()
		if !t.Equal(b.Deref()) {
			return errors.OperationTypeMismatch(op, a, b)
		}
		rb := c.temp(s, i32)
		rtlib.Load(s, t, 0)
		s.LocalGet(rb)
		rtlib.Load(s, t, 0)
	} else if !a.Equal(b) {
		return errors.OperationTypeMismatch(op, a, b)
	}
	c.eqValue(s, t)
	if negate {
		s.Op(wasm.OpI32Eqz)
	}
	c.stack.Push(ir.Bool)
	return nil
}

// cast lowers CastU8..CastU256. Narrowing casts trap when the value does
// not fit the target type.
func (c *funcCtx) cast(s *wasm.Seq, to ir.Type) error {
	from := c.stack.Pop()
	if !from.IsInteger() {
		return errors.InvalidOperation("cast to "+to.String(), from)
	}
	defer c.stack.Push(to)
	l := c.Lib
	fb, tb := from.Bits(), to.Bits()

	switch {
	case isWide(to):
		switch {
		case isWide(from) && fb != tb:
			s.Call(l.WideResize(wideSize(from), wideSize(to)))
		case isWide(from):
		case fb == 64:
			s.Call(l.WideFromU64(wideSize(to)))
		default:
			s.Op(wasm.OpI64ExtendI32U).Call(l.WideFromU64(wideSize(to)))
		}
		return nil

	case tb == 64:
		switch {
		case isWide(from):
			s.Call(l.WideToU64(wideSize(from)))
		case fb < 64:
			s.Op(wasm.OpI64ExtendI32U)
		}
		return nil
	}

	// u8, u16, u32 targets
	if isWide(from) {
		s.Call(l.WideToU64(wideSize(from)))
		fb = 64
	}
	if fb == 64 {
		v := c.f.NewLocal(i64)
		s.LocalTee(v).I64Const(int64(uint32(rtlib.MaxNarrow(tb)))).Op(wasm.OpI64GtU).TrapIf()
		s.LocalGet(v).Op(wasm.OpI32WrapI64)
		return nil
	}
	if fb > tb {
		v := c.f.NewLocal(i32)
		s.LocalTee(v).I32Const(rtlib.MaxNarrow(tb)).Op(wasm.OpI32GtU).TrapIf()
		s.LocalGet(v)
	}
	return nil
}
