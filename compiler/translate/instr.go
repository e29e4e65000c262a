package translate

import (
	"github.com/wippyai/move2wasm/compiler/compilation"
	"github.com/wippyai/move2wasm/compiler/hostio"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/wasm"
)

// instr lowers one instruction into s, keeping the type stack in step
// with the WASM operand stack
func (c *funcCtx) instr(s *wasm.Seq, ins move.Bytecode) error {
	switch ins.Op {
	case move.OpNop:
		return nil

	case move.OpPop:
		c.stack.Pop()
		s.Drop()

	case move.OpRet:
		for i := len(c.returns) - 1; i >= 0; i-- {
			if _, err := c.stack.PopExpecting(c.returns[i]); err != nil {
				return err
			}
		}
		c.stack.AssertEmpty("return")
		s.Return()

	case move.OpAbort:
		if _, err := c.stack.PopExpecting(ir.U64); err != nil {
			return err
		}
		code := c.temp(s, i64)
		s.I32Const(0).LocalGet(code).I64Store(hostio.AbortCode)
		s.I32Const(0).I32Const(1).I32Store(hostio.AbortFlag)
		c.returnZeros(s)

	case move.OpBranch:
		c.jump(s, ins.Index)

	case move.OpBrTrue, move.OpBrFalse:
		if _, err := c.stack.PopExpecting(ir.Bool); err != nil {
			return err
		}
		if ins.Op == move.OpBrFalse {
			s.Op(wasm.OpI32Eqz)
		}
		s.If(void, func(then *wasm.Seq) {
			c.jump(then, ins.Index)
		}, nil)

	case move.OpLdTrue:
		s.I32Const(1)
		c.stack.Push(ir.Bool)
	case move.OpLdFalse:
		s.I32Const(0)
		c.stack.Push(ir.Bool)
	case move.OpLdU8:
		s.I32Const(int32(uint8(ins.Value)))
		c.stack.Push(ir.U8)
	case move.OpLdU16:
		s.I32Const(int32(uint16(ins.Value)))
		c.stack.Push(ir.U16)
	case move.OpLdU32:
		s.I32Const(int32(uint32(ins.Value)))
		c.stack.Push(ir.U32)
	case move.OpLdU64:
		s.I64Const(int64(ins.Value))
		c.stack.Push(ir.U64)
	case move.OpLdU128, move.OpLdU256:
		t := ir.U128
		if ins.Op == move.OpLdU256 {
			t = ir.U256
		}
		if len(ins.Wide) != t.HeapSize() {
			return errors.InvalidData(errors.PhaseTranslate, nil, "wide literal of the wrong size")
		}
		c.heapConst(s, ins.Wide)
		c.stack.Push(t)
	case move.OpLdConst:
		return c.constant(s, ins.Index)

	case move.OpCastU8:
		return c.cast(s, ir.U8)
	case move.OpCastU16:
		return c.cast(s, ir.U16)
	case move.OpCastU32:
		return c.cast(s, ir.U32)
	case move.OpCastU64:
		return c.cast(s, ir.U64)
	case move.OpCastU128:
		return c.cast(s, ir.U128)
	case move.OpCastU256:
		return c.cast(s, ir.U256)

	case move.OpCopyLoc, move.OpMoveLoc:
		t := c.local(ins.Index)
		s.LocalGet(c.slots[ins.Index])
		if !t.IsReference() {
			rtlib.Load(s, t, 0)
			if ins.Op == move.OpCopyLoc {
				c.copy(s, t)
			}
		}
		c.stack.Push(t)

	case move.OpStLoc:
		t := c.local(ins.Index)
		if _, err := c.stack.PopExpecting(t); err != nil {
			return err
		}
		if !t.IsReference() {
			s.Call(c.Lib.Box(t))
		}
		s.LocalSet(c.slots[ins.Index])

	case move.OpImmBorrowLoc, move.OpMutBorrowLoc:
		t := c.local(ins.Index)
		if t.IsReference() {
			return errors.InvalidOperation("borrow of a reference local", t)
		}
		s.LocalGet(c.slots[ins.Index])
		if ins.Op == move.OpMutBorrowLoc {
			c.stack.Push(ir.MutRef(t))
		} else {
			c.stack.Push(ir.Ref(t))
		}

	case move.OpReadRef:
		r := c.stack.Pop()
		if !r.IsReference() {
			return errors.InvalidOperation("ReadRef", r)
		}
		t := r.Deref()
		rtlib.Load(s, t, 0)
		c.copy(s, t)
		c.stack.Push(t)

	case move.OpWriteRef:
		r := c.stack.Pop()
		if r.Kind != ir.KindMutRef {
			return errors.InvalidOperation("WriteRef", r)
		}
		t := r.Deref()
		if _, err := c.stack.PopExpecting(t); err != nil {
			return err
		}
		ref := c.temp(s, i32)
		v := c.temp(s, t.WasmType())
		s.LocalGet(ref).LocalGet(v)
		rtlib.Store(s, t, 0)

	case move.OpFreezeRef:
		r := c.stack.Pop()
		if r.Kind != ir.KindMutRef {
			return errors.InvalidOperation("FreezeRef", r)
		}
		c.stack.Push(ir.Ref(r.Deref()))

	case move.OpImmBorrowField, move.OpMutBorrowField:
		st, pos, err := c.ctx.GetStructByFieldHandle(ins.Index)
		if err != nil {
			return err
		}
		return c.borrowField(s, st, pos, ins.Op == move.OpMutBorrowField)
	case move.OpImmBorrowFieldGeneric, move.OpMutBorrowFieldGeneric:
		st, pos, err := c.ctx.GetGenericStructByFieldInstantiation(ins.Index)
		if err != nil {
			return err
		}
		return c.borrowField(s, st.Instantiate(c.args), pos, ins.Op == move.OpMutBorrowFieldGeneric)

	case move.OpPack:
		st, err := c.ctx.GetStructByDefinitionIdx(ins.Index)
		if err != nil {
			return err
		}
		return c.pack(s, st)
	case move.OpPackGeneric:
		st, err := c.ctx.GetGenericStructByInstantiation(ins.Index)
		if err != nil {
			return err
		}
		return c.pack(s, st.Instantiate(c.args))
	case move.OpUnpack:
		st, err := c.ctx.GetStructByDefinitionIdx(ins.Index)
		if err != nil {
			return err
		}
		return c.unpack(s, st)
	case move.OpUnpackGeneric:
		st, err := c.ctx.GetGenericStructByInstantiation(ins.Index)
		if err != nil {
			return err
		}
		return c.unpack(s, st.Instantiate(c.args))

	case move.OpPackVariant, move.OpUnpackVariant, move.OpUnpackVariantImmRef, move.OpUnpackVariantMutRef:
		e, err := c.ctx.GetEnumByVariantHandle(ins.Index)
		if err != nil {
			return err
		}
		pos, err := c.ctx.GetVariantPosition(ins.Index)
		if err != nil {
			return err
		}
		return c.variant(s, ins.Op, e, pos)
	case move.OpPackVariantGeneric, move.OpUnpackVariantGeneric,
		move.OpUnpackVariantGenericImmRef, move.OpUnpackVariantGenericMutRef:
		e, pos, err := c.ctx.GetEnumByVariantInstantiation(ins.Index)
		if err != nil {
			return err
		}
		return c.variant(s, ins.Op, e.Instantiate(c.args), pos)
	case move.OpVariantSwitch:
		return errors.New(errors.PhaseTranslate, errors.KindJumpTable).
			Detail("variant switch over jump table %d", ins.Index).Build()

	case move.OpVecPack:
		return c.vecPack(s, c.vecElem(ins.Index), int(ins.Value))
	case move.OpVecUnpack:
		return c.vecUnpack(s, c.vecElem(ins.Index), int(ins.Value))
	case move.OpVecLen:
		return c.vecLen(s, c.vecElem(ins.Index))
	case move.OpVecImmBorrow, move.OpVecMutBorrow:
		return c.vecBorrow(s, c.vecElem(ins.Index), ins.Op == move.OpVecMutBorrow)
	case move.OpVecPushBack:
		return c.vecPushBack(s, c.vecElem(ins.Index))
	case move.OpVecPopBack:
		return c.vecPopBack(s, c.vecElem(ins.Index))
	case move.OpVecSwap:
		return c.vecSwap(s, c.vecElem(ins.Index))

	case move.OpCall:
		fn, err := c.ctx.GetFunction(ins.Index)
		if err != nil {
			return err
		}
		return c.call(s, fn, nil)
	case move.OpCallGeneric:
		fn, args, err := c.ctx.GetFunctionInstantiation(ins.Index)
		if err != nil {
			return err
		}
		return c.call(s, fn, args)

	case move.OpAdd, move.OpSub, move.OpMul, move.OpDiv, move.OpMod,
		move.OpBitOr, move.OpBitAnd, move.OpXor:
		return c.arith(s, ins.Op)
	case move.OpShl, move.OpShr:
		return c.shift(s, ins.Op)
	case move.OpLt, move.OpGt, move.OpLe, move.OpGe:
		return c.compare(s, ins.Op)
	case move.OpEq, move.OpNeq:
		return c.equality(s, ins.Op == move.OpNeq)
	case move.OpOr, move.OpAnd:
		if _, err := c.stack.PopExpecting(ir.Bool); err != nil {
			return err
		}
		if _, err := c.stack.PopExpecting(ir.Bool); err != nil {
			return err
		}
		if ins.Op == move.OpOr {
			s.Op(wasm.OpI32Or)
		} else {
			s.Op(wasm.OpI32And)
		}
		c.stack.Push(ir.Bool)
	case move.OpNot:
		if _, err := c.stack.PopExpecting(ir.Bool); err != nil {
			return err
		}
		s.Op(wasm.OpI32Eqz)
		c.stack.Push(ir.Bool)

	case move.OpExists, move.OpMoveFrom, move.OpMoveTo, move.OpMutBorrowGlobal, move.OpImmBorrowGlobal:
		return errors.Unsupported(errors.PhaseTranslate, "global storage instruction "+ins.Op.String())

	default:
		return errors.Unsupported(errors.PhaseTranslate, "instruction "+ins.Op.String())
	}
	return nil
}

func (c *funcCtx) local(idx uint16) ir.Type {
	if int(idx) >= len(c.locals) {
		panic("translate: local index out of range")
	}
	return c.locals[idx]
}

// heapConst pushes a fresh copy of constant bytes
func (c *funcCtx) heapConst(s *wasm.Seq, data []byte) {
	s.I32Const(int32(c.Lib.Data(data))).I32Const(int32(len(data))).Call(c.Lib.Clone())
}

// call emits a call through the function table. Callees seen for the
// first time become dependencies of the current function.
func (c *funcCtx) call(s *wasm.Seq, fn *compilation.Function, typeArgs []ir.Type) error {
	id := FunctionID{Module: fn.Module, Name: fn.Name, TypeArgs: ir.InstantiateAll(typeArgs, c.args)}
	e, added, err := c.Register(id)
	if err != nil {
		return err
	}
	if added {
		c.deps = append(c.deps, e)
	}
	for i := len(e.Params) - 1; i >= 0; i-- {
		if _, err := c.stack.PopExpecting(e.Params[i]); err != nil {
			return errors.WithPath(err, id.Key())
		}
	}
	s.I32Const(int32(e.Slot)).CallIndirect(e.TypeIdx)
	c.checkAbort(s)
	c.stack.Push(e.Returns...)
	return nil
}
