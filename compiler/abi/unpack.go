package abi

import (
	"github.com/wippyai/move2wasm/compiler/hostio"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/wasm"
)

// Unpack emits a decode of a t-typed value whose head slot address and
// enclosing tuple start are on the stack. Stack: [head, base] -> [v].
func (e *Engine) Unpack(s *wasm.Seq, t ir.Type) error {
	if err := e.Check(t); err != nil {
		return err
	}
	s.Call(e.unpackFunc(t))
	return nil
}

// UnpackTuple decodes the tuple starting at the address in local base into
// fresh locals of f, one per type. The whole head region must lie inside
// the calldata.
func (e *Engine) UnpackTuple(f *wasm.Func, types []ir.Type, base uint32) ([]uint32, error) {
	for _, t := range types {
		if err := e.Check(t); err != nil {
			return nil, err
		}
	}
	b := f.Body
	b.LocalGet(base).Op(wasm.OpI64ExtendI32U).I64Const(int64(e.TupleHeadSize(types))).Op(wasm.OpI64Add)
	trapPastCalldata(b)
	out := make([]uint32, len(types))
	off := 0
	for i, t := range types {
		out[i] = f.NewLocal(t.WasmType())
		b.LocalGet(base).I32Const(int32(off)).Op(wasm.OpI32Add).LocalGet(base)
		b.Call(e.unpackFunc(t)).LocalSet(out[i])
		off += e.HeadSize(t)
	}
	return out, nil
}

// trapPastCalldata pops an i64 end address and traps when it lies beyond
// the calldata
func trapPastCalldata(b *wasm.Seq) {
	b.I32Const(0).I32Load(hostio.ArgsEnd).Op(wasm.OpI64ExtendI32U).Op(wasm.OpI64GtU).TrapIf()
}

// wordU32 returns abi.word_u32(p) -> i32, the value of the word at p.
// Values wider than 32 bits trap.
func (e *Engine) wordU32() uint32 {
	l := e.Lib
	return l.Get("abi.word_u32", []wasm.ValType{i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		b := f.Body
		b.LocalGet(0).I32Const(28).Call(l.IsZero()).Op(wasm.OpI32Eqz).TrapIf()
		b.LocalGet(0).I32Load(28).Call(l.Bswap32())
	})
}

// offset returns abi.offset(head, base, need) -> q, following the offset
// word at head. need bytes from q on must lie inside the calldata.
func (e *Engine) offset() uint32 {
	return e.Lib.Get("abi.offset", []wasm.ValType{i32, i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		const head, base, need = 0, 1, 2
		off := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(head).Call(e.wordU32()).LocalSet(off)
		b.LocalGet(base).Op(wasm.OpI64ExtendI32U)
		b.LocalGet(off).Op(wasm.OpI64ExtendI32U).Op(wasm.OpI64Add)
		b.LocalGet(need).Op(wasm.OpI64ExtendI32U).Op(wasm.OpI64Add)
		trapPastCalldata(b)
		b.LocalGet(base).LocalGet(off).Op(wasm.OpI32Add)
	})
}

func (e *Engine) unpackFunc(t ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{i32, i32}
	return l.Get("abi.unpack."+t.Key(), params, []wasm.ValType{t.WasmType()}, func(f *wasm.Func) {
		const head, base = 0, 1
		b := f.Body
		switch t.Kind {
		case ir.KindBool, ir.KindU8, ir.KindU16, ir.KindU32:
			v := f.NewLocal(i32)
			b.LocalGet(head).Call(e.wordU32()).LocalSet(v)
			if limit, ok := smallLimit(t); ok {
				b.LocalGet(v).I32Const(limit).Op(wasm.OpI32GtU).TrapIf()
			}
			b.LocalGet(v)
		case ir.KindU64:
			b.LocalGet(head).I32Const(24).Call(l.IsZero()).Op(wasm.OpI32Eqz).TrapIf()
			b.LocalGet(head).I64Load(24).Call(l.Bswap64())
		case ir.KindU128, ir.KindU256:
			b.LocalGet(head).I32Const(int32(t.HeapSize())).Call(l.ReadBE())
		case ir.KindAddress:
			b.LocalGet(head).I32Const(12).Call(l.IsZero()).Op(wasm.OpI32Eqz).TrapIf()
			b.LocalGet(head).I32Const(32).Call(l.Clone())
		case ir.KindEnum, ir.KindGenericEnum:
			tag := f.NewLocal(i32)
			blk := f.NewLocal(i32)
			b.LocalGet(head).Call(e.wordU32()).LocalTee(tag)
			b.I32Const(int32(len(e.Ctx.MustEnum(t).Variants))).Op(wasm.OpI32GeU).TrapIf()
			l.AllocConst(b, 4)
			b.LocalTee(blk).LocalGet(tag).I32Store(0)
			b.LocalGet(blk)
		case ir.KindVector:
			e.unpackVector(f, t.Elem())
		case ir.KindStruct, ir.KindGenericStruct:
			if IsBytes32(t) {
				addr := f.NewLocal(i32)
				b.LocalGet(head).I32Const(32).Call(l.Clone()).LocalSet(addr)
				l.WrapID(f, b, t, addr)
				return
			}
			s := e.Ctx.MustStruct(t)
			if !e.IsDynamic(t) {
				e.unpackFields(f, s, head, base)
				return
			}
			q := f.NewLocal(i32)
			b.LocalGet(head).LocalGet(base).I32Const(int32(e.TupleHeadSize(s.FieldTypes()))).
				Call(e.offset()).LocalSet(q)
			e.unpackFields(f, s, q, q)
		default:
			panic("abi: unpack of unchecked type " + t.String())
		}
	})
}

func smallLimit(t ir.Type) (int32, bool) {
	switch t.Kind {
	case ir.KindBool:
		return 1, true
	case ir.KindU8:
		return 0xff, true
	case ir.KindU16:
		return 0xffff, true
	}
	return 0, false
}

// unpackFields builds a struct block from fields laid out from the
// address in local at, with offsets relative to local base
func (e *Engine) unpackFields(f *wasm.Func, s *ir.IStruct, at, base uint32) {
	l := e.Lib
	b := f.Body
	blk := f.NewLocal(i32)
	l.AllocConst(b, s.HeapSize())
	b.LocalSet(blk)
	off := 0
	for i, fld := range s.Fields {
		b.LocalGet(blk)
		b.LocalGet(at).I32Const(int32(off)).Op(wasm.OpI32Add).LocalGet(base)
		b.Call(e.unpackFunc(fld.Type))
		b.Call(l.Box(fld.Type))
		b.I32Store(uint32(4 * i))
		off += e.HeadSize(fld.Type)
	}
	b.LocalGet(blk)
}

func (e *Engine) unpackVector(f *wasm.Func, elem ir.Type) {
	const head, base = 0, 1
	l := e.Lib
	b := f.Body
	q := f.NewLocal(i32)
	n := f.NewLocal(i32)
	elems := f.NewLocal(i32)
	blk := f.NewLocal(i32)
	i := f.NewLocal(i32)
	hs := e.HeadSize(elem)
	stride := elem.VectorStride()

	b.LocalGet(head).LocalGet(base).I32Const(WordSize).Call(e.offset()).LocalTee(q)
	b.Call(e.wordU32()).LocalSet(n)
	b.LocalGet(q).I32Const(WordSize).Op(wasm.OpI32Add).LocalSet(elems)
	b.LocalGet(elems).Op(wasm.OpI64ExtendI32U)
	b.LocalGet(n).Op(wasm.OpI64ExtendI32U).I64Const(int64(hs)).Op(wasm.OpI64Mul).Op(wasm.OpI64Add)
	trapPastCalldata(b)

	b.LocalGet(n).LocalGet(n).I32Const(int32(stride)).Call(l.VecNew()).LocalSet(blk)
	b.ForRange(i, n, func(body *wasm.Seq) {
		rtlib.Element(body, blk, i, stride)
		body.LocalGet(elems).LocalGet(i).I32Const(int32(hs)).Op(wasm.OpI32Mul).Op(wasm.OpI32Add)
		body.LocalGet(elems)
		body.Call(e.unpackFunc(elem))
		rtlib.Store(body, elem, 0)
	})
	b.LocalGet(blk)
}
