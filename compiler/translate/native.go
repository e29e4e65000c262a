package translate

import (
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move/framework"
	"github.com/wippyai/move2wasm/wasm"
)

// native generates the body of a framework function declared without
// bytecode
func (c *funcCtx) native() error {
	b := c.f.Body
	e, ok := c.Table.Lookup(c.id)
	if !ok {
		panic("translate: native " + c.id.Key() + " is not registered")
	}
	params, returns := e.Params, e.Returns
	targ := func() ir.Type {
		if len(c.args) != 1 {
			panic("translate: " + c.id.Key() + " takes one type argument")
		}
		return c.args[0]
	}

	switch c.id.Module {
	case framework.VectorModule:
		stride := int32(targ().VectorStride())
		switch c.id.Name {
		case "empty":
			b.I32Const(0).I32Const(0).I32Const(stride).Call(c.Lib.VecNew())
		case "length":
			b.LocalGet(0)
			rtlib.VecLen(b)
		case "borrow", "borrow_mut":
			b.LocalGet(0).LocalGet(1).I32Const(stride).Call(c.Lib.VecIndex())
		case "push_back":
			b.LocalGet(0).LocalGet(1).Call(c.Lib.VecPushBack(int(stride)))
		case "pop_back":
			b.LocalGet(0).Call(c.Lib.VecPopBack(int(stride)))
		case "destroy_empty":
			b.LocalGet(0).I32Load(0).TrapIf()
		case "swap":
			b.LocalGet(0).LocalGet(1).LocalGet(2).Call(c.Lib.VecSwap(int(stride)))
		default:
			return c.unknownNative()
		}

	case framework.SignerModule:
		if c.id.Name != "borrow_address" {
			return c.unknownNative()
		}
		// a signer and its address share one representation
		b.LocalGet(0)

	case framework.TxContextModule:
		switch c.id.Name {
		case "sender":
			b.LocalGet(0).I32Load(0)
			rtlib.Field(b, ir.Address, 0)
			b.I32Const(32).Call(c.Lib.Clone())
		case "fresh_id":
			c.freshID(b)
		default:
			return c.unknownNative()
		}

	case framework.ObjectModule:
		switch c.id.Name {
		case "new":
			addr := c.f.NewLocal(i32)
			c.freshID(b)
			b.LocalSet(addr)
			c.Lib.WrapID(c.f, b, returns[0], addr)
		case "delete":
		case "uid_to_address", "id_to_address":
			b.LocalGet(0).I32Load(0)
			rtlib.UnwrapID(b, params[0].Deref())
			b.I32Const(32).Call(c.Lib.Clone())
		case "uid_to_inner":
			c.rewrapID(b, params[0].Deref(), returns[0])
		case "id":
			st, err := c.Ctx.Struct(targ())
			if err != nil {
				return err
			}
			if len(st.Fields) == 0 {
				return errors.InvalidOperation("object::id", targ())
			}
			uid := st.Fields[0].Type
			addr := c.f.NewLocal(i32)
			b.LocalGet(0).I32Load(0)
			rtlib.Field(b, uid, 0)
			rtlib.UnwrapID(b, uid)
			b.I32Const(32).Call(c.Lib.Clone()).LocalSet(addr)
			c.Lib.WrapID(c.f, b, returns[0], addr)
		default:
			return c.unknownNative()
		}

	case framework.TransferModule:
		store, err := c.Storage.Store(targ())
		if err != nil {
			return err
		}
		b.LocalGet(0)
		switch c.id.Name {
		case "transfer":
			b.LocalGet(1)
		case "share_object":
			b.I32Const(int32(c.Storage.SharedOwner()))
		case "freeze_object":
			b.I32Const(int32(c.Storage.FrozenOwner()))
		default:
			return c.unknownNative()
		}
		b.Call(store)

	case framework.EventModule:
		if c.id.Name != "emit" {
			return c.unknownNative()
		}
		emit, err := c.ABI.Emit(targ())
		if err != nil {
			return err
		}
		b.LocalGet(0).Call(emit)

	default:
		return c.unknownNative()
	}
	return nil
}

func (c *funcCtx) unknownNative() error {
	return errors.Unsupported(errors.PhaseTranslate, "native function "+c.id.Key())
}

// freshID bumps ids_created of the TxContext referenced by param 0 and
// pushes a new object address derived from its sender
func (c *funcCtx) freshID(b *wasm.Seq) {
	blk := c.f.NewLocal(i32)
	cell := c.f.NewLocal(i32)
	b.LocalGet(0).I32Load(0).LocalTee(blk).I32Load(4).LocalTee(cell)
	b.LocalGet(cell).I64Load(0).I64Const(1).Op(wasm.OpI64Add).I64Store(0)
	b.LocalGet(blk)
	rtlib.Field(b, ir.Address, 0)
	b.Call(c.Storage.FreshID())
}

// rewrapID builds a fresh to-typed identifier around a copy of the
// address inside the from-typed identifier referenced by param 0
func (c *funcCtx) rewrapID(b *wasm.Seq, from, to ir.Type) {
	addr := c.f.NewLocal(i32)
	b.LocalGet(0).I32Load(0)
	rtlib.UnwrapID(b, from)
	b.I32Const(32).Call(c.Lib.Clone()).LocalSet(addr)
	c.Lib.WrapID(c.f, b, to, addr)
}
