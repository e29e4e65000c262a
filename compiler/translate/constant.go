package translate

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/wasm"
)

// constant pushes constant idx of the current module
func (c *funcCtx) constant(s *wasm.Seq, idx uint16) error {
	pool := c.ctx.Root.Constants
	if int(idx) >= len(pool) {
		return errors.NotFound(errors.PhaseTranslate, errors.KindNotFound, "constant %d", idx)
	}
	k := pool[idx]
	t, err := c.ctx.TypeFromToken(k.Type)
	if err != nil {
		return err
	}
	v, err := move.DecodeConstant(k)
	if err != nil {
		return errors.Wrap(errors.PhaseTranslate, errors.KindInvalidData, err, fmt.Sprintf("constant %d", idx))
	}
	c.value(s, t, v)
	c.stack.Push(t)
	return nil
}

// value emits a decoded constant of type t
func (c *funcCtx) value(s *wasm.Seq, t ir.Type, v move.Value) {
	switch t.Kind {
	case ir.KindBool, ir.KindU8, ir.KindU16, ir.KindU32:
		s.I32Const(int32(uint32(v.Uint)))
	case ir.KindU64:
		s.I64Const(int64(v.Uint))
	case ir.KindU128, ir.KindU256, ir.KindAddress:
		c.heapConst(s, v.Bytes)
	case ir.KindVector:
		c.vectorConst(s, t.Elem(), v.Elems)
	default:
		panic("translate: constant of type " + t.String())
	}
}

// vectorConst builds a vector constant. Vectors of stack values are
// copied from a data segment holding their element slots.
func (c *funcCtx) vectorConst(s *wasm.Seq, elem ir.Type, elems []move.Value) {
	n := int32(len(elems))
	stride := elem.VectorStride()
	blk := c.f.NewLocal(i32)
	s.I32Const(n).I32Const(n).I32Const(int32(stride)).Call(c.Lib.VecNew()).LocalSet(blk)

	if elem.IsStackValue() {
		if n > 0 {
			data := make([]byte, len(elems)*stride)
			for i, e := range elems {
				if stride == 8 {
					binary.LittleEndian.PutUint64(data[i*8:], e.Uint)
				} else {
					binary.LittleEndian.PutUint32(data[i*4:], uint32(e.Uint))
				}
			}
			s.LocalGet(blk).I32Const(rtlib.VectorHeader).Op(wasm.OpI32Add)
			s.I32Const(int32(c.Lib.Data(data))).I32Const(int32(len(data))).MemoryCopy()
		}
		s.LocalGet(blk)
		return
	}
	for i, e := range elems {
		s.LocalGet(blk)
		c.value(s, elem, e)
		s.I32Store(uint32(rtlib.VectorHeader + i*stride))
	}
	s.LocalGet(blk)
}
