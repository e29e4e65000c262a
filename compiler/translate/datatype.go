package translate

import (
	"github.com/wippyai/move2wasm/compiler/compilation"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/wasm"
)

// Struct blocks hold one pointer per field, each to a cell with the
// field's value. Enum blocks start with the variant tag followed by the
// field pointers of the active variant.
const enumFields = 4

// popRef pops a reference to t. Mutable borrows require a mutable
// reference; immutable ones accept either.
func (c *funcCtx) popRef(t ir.Type, mut bool) error {
	want := ir.Ref(t)
	if mut {
		want = ir.MutRef(t)
	}
	_, err := c.stack.PopExpecting(want)
	return err
}

func refOf(t ir.Type, mut bool) ir.Type {
	if mut {
		return ir.MutRef(t)
	}
	return ir.Ref(t)
}

func (c *funcCtx) borrowField(s *wasm.Seq, st *ir.IStruct, pos int, mut bool) error {
	if err := c.popRef(compilation.StructType(st), mut); err != nil {
		return err
	}
	s.I32Load(0).I32Load(uint32(4 * pos))
	c.stack.Push(refOf(st.Fields[pos].Type, mut))
	return nil
}

// popInto pops values of types into fresh locals, returning them in
// declaration order
func (c *funcCtx) popInto(s *wasm.Seq, types []ir.Type) ([]uint32, error) {
	locals := make([]uint32, len(types))
	for i := len(types) - 1; i >= 0; i-- {
		if _, err := c.stack.PopExpecting(types[i]); err != nil {
			return nil, err
		}
		locals[i] = c.temp(s, types[i].WasmType())
	}
	return locals, nil
}

// fill boxes the values in locals into the pointer slots of the block
// in blk starting at offset
func (c *funcCtx) fill(s *wasm.Seq, blk uint32, types []ir.Type, locals []uint32, offset int) {
	for i, t := range types {
		s.LocalGet(blk).LocalGet(locals[i]).Call(c.Lib.Box(t)).I32Store(uint32(offset + 4*i))
	}
}

func (c *funcCtx) pack(s *wasm.Seq, st *ir.IStruct) error {
	types := st.FieldTypes()
	locals, err := c.popInto(s, types)
	if err != nil {
		return err
	}
	blk := c.f.NewLocal(i32)
	c.Lib.AllocConst(s, st.HeapSize())
	s.LocalSet(blk)
	c.fill(s, blk, types, locals, 0)
	s.LocalGet(blk)
	c.stack.Push(compilation.StructType(st))
	return nil
}

func (c *funcCtx) unpack(s *wasm.Seq, st *ir.IStruct) error {
	if _, err := c.stack.PopExpecting(compilation.StructType(st)); err != nil {
		return err
	}
	blk := c.temp(s, i32)
	for i, f := range st.Fields {
		s.LocalGet(blk)
		rtlib.Field(s, f.Type, i)
		c.stack.Push(f.Type)
	}
	return nil
}

func (c *funcCtx) variant(s *wasm.Seq, op move.Opcode, e *ir.IEnum, pos uint16) error {
	if int(pos) >= len(e.Variants) {
		return errors.NotFound(errors.PhaseTranslate, errors.KindEnumNotFound,
			"variant %d of %s", pos, e.Identifier)
	}
	v := &e.Variants[pos]
	types := v.FieldTypes()
	et := e.Type()

	switch op {
	case move.OpPackVariant, move.OpPackVariantGeneric:
		locals, err := c.popInto(s, types)
		if err != nil {
			return err
		}
		blk := c.f.NewLocal(i32)
		c.Lib.AllocConst(s, e.HeapSize())
		s.LocalTee(blk).I32Const(int32(pos)).I32Store(0)
		c.fill(s, blk, types, locals, enumFields)
		s.LocalGet(blk)
		c.stack.Push(et)
		return nil

	case move.OpUnpackVariant, move.OpUnpackVariantGeneric:
		if _, err := c.stack.PopExpecting(et); err != nil {
			return err
		}
		blk := c.temp(s, i32)
		c.checkTag(s, blk, pos)
		for i, t := range types {
			s.LocalGet(blk).I32Load(uint32(enumFields + 4*i))
			rtlib.Load(s, t, 0)
			c.stack.Push(t)
		}
		return nil
	}

	mut := op == move.OpUnpackVariantMutRef || op == move.OpUnpackVariantGenericMutRef
	if err := c.popRef(et, mut); err != nil {
		return err
	}
	blk := c.f.NewLocal(i32)
	s.I32Load(0).LocalSet(blk)
	c.checkTag(s, blk, pos)
	for i, t := range types {
		s.LocalGet(blk).I32Load(uint32(enumFields + 4*i))
		c.stack.Push(refOf(t, mut))
	}
	return nil
}

// checkTag traps unless the enum block in blk holds variant pos
func (c *funcCtx) checkTag(s *wasm.Seq, blk uint32, pos uint16) {
	s.LocalGet(blk).I32Load(0).I32Const(int32(pos)).Op(wasm.OpI32Ne).TrapIf()
}
