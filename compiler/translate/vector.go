package translate

import (
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/wasm"
)

func (c *funcCtx) vecPack(s *wasm.Seq, elem ir.Type, n int) error {
	types := make([]ir.Type, n)
	for i := range types {
		types[i] = elem
	}
	locals, err := c.popInto(s, types)
	if err != nil {
		return err
	}
	stride := elem.VectorStride()
	blk := c.f.NewLocal(i32)
	s.I32Const(int32(n)).I32Const(int32(n)).I32Const(int32(stride)).Call(c.Lib.VecNew()).LocalSet(blk)
	for i, l := range locals {
		s.LocalGet(blk).LocalGet(l)
		rtlib.Store(s, elem, uint32(rtlib.VectorHeader+i*stride))
	}
	s.LocalGet(blk)
	c.stack.Push(ir.Vector(elem))
	return nil
}

func (c *funcCtx) vecUnpack(s *wasm.Seq, elem ir.Type, n int) error {
	if _, err := c.stack.PopExpecting(ir.Vector(elem)); err != nil {
		return err
	}
	stride := elem.VectorStride()
	blk := c.temp(s, i32)
	s.LocalGet(blk).I32Load(0).I32Const(int32(n)).Op(wasm.OpI32Ne).TrapIf()
	for i := 0; i < n; i++ {
		s.LocalGet(blk)
		rtlib.Load(s, elem, uint32(rtlib.VectorHeader+i*stride))
		c.stack.Push(elem)
	}
	return nil
}

func (c *funcCtx) vecLen(s *wasm.Seq, elem ir.Type) error {
	if err := c.popRef(ir.Vector(elem), false); err != nil {
		return err
	}
	rtlib.VecLen(s)
	c.stack.Push(ir.U64)
	return nil
}

func (c *funcCtx) vecBorrow(s *wasm.Seq, elem ir.Type, mut bool) error {
	if _, err := c.stack.PopExpecting(ir.U64); err != nil {
		return err
	}
	if err := c.popRef(ir.Vector(elem), mut); err != nil {
		return err
	}
	s.I32Const(int32(elem.VectorStride())).Call(c.Lib.VecIndex())
	c.stack.Push(refOf(elem, mut))
	return nil
}

func (c *funcCtx) vecPushBack(s *wasm.Seq, elem ir.Type) error {
	if _, err := c.stack.PopExpecting(elem); err != nil {
		return err
	}
	if err := c.popRef(ir.Vector(elem), true); err != nil {
		return err
	}
	s.Call(c.Lib.VecPushBack(elem.VectorStride()))
	return nil
}

func (c *funcCtx) vecPopBack(s *wasm.Seq, elem ir.Type) error {
	if err := c.popRef(ir.Vector(elem), true); err != nil {
		return err
	}
	s.Call(c.Lib.VecPopBack(elem.VectorStride()))
	c.stack.Push(elem)
	return nil
}

func (c *funcCtx) vecSwap(s *wasm.Seq, elem ir.Type) error {
	for range 2 {
		if _, err := c.stack.PopExpecting(ir.U64); err != nil {
			return err
		}
	}
	if err := c.popRef(ir.Vector(elem), true); err != nil {
		return err
	}
	s.Call(c.Lib.VecSwap(elem.VectorStride()))
	return nil
}
