package abi

import (
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/wasm"
)

// PackInto emits an encode of a t-typed value into a zeroed buffer.
// Stack: [v, head, data, ref] -> [data'].
func (e *Engine) PackInto(s *wasm.Seq, t ir.Type) error {
	if err := e.Check(t); err != nil {
		return err
	}
	s.Call(e.packFunc(t))
	return nil
}

// EncodedSize emits the number of bytes v occupies as a tuple element,
// head and tail. Stack: [v] -> [size].
func (e *Engine) EncodedSize(s *wasm.Seq, t ir.Type) error {
	if err := e.Check(t); err != nil {
		return err
	}
	if !e.IsDynamic(t) {
		s.Drop().I32Const(int32(e.HeadSize(t)))
		return nil
	}
	s.Call(e.tailFunc(t)).I32Const(WordSize).Op(wasm.OpI32Add)
	return nil
}

// PackTuple encodes the values held in locals of f into a fresh buffer
// and returns the locals holding its address and length
func (e *Engine) PackTuple(f *wasm.Func, types []ir.Type, values []uint32) (ptr, size uint32, err error) {
	for _, t := range types {
		if err := e.Check(t); err != nil {
			return 0, 0, err
		}
	}
	get := func(s *wasm.Seq, i int) { s.LocalGet(values[i]) }
	b := f.Body
	ptr = f.NewLocal(i32)
	size = f.NewLocal(i32)
	e.tupleSize(b, types, get)
	b.LocalTee(size).Call(e.Lib.Alloc()).LocalSet(ptr)
	e.tuple(f, types, get, ptr)
	b.Drop()
	return ptr, size, nil
}

// tupleSize emits the encoded size of a tuple whose i-th element is
// pushed by get. Stack: [] -> [size].
func (e *Engine) tupleSize(b *wasm.Seq, types []ir.Type, get func(s *wasm.Seq, i int)) {
	b.I32Const(int32(e.TupleHeadSize(types)))
	for i, t := range types {
		if e.IsDynamic(t) {
			get(b, i)
			b.Call(e.tailFunc(t)).Op(wasm.OpI32Add)
		}
	}
}

// tuple emits the encoding of a tuple starting at the address in local
// start, leaving the end of its tail on the stack
func (e *Engine) tuple(f *wasm.Func, types []ir.Type, get func(s *wasm.Seq, i int), start uint32) {
	b := f.Body
	out := f.NewLocal(i32)
	b.LocalGet(start).I32Const(int32(e.TupleHeadSize(types))).Op(wasm.OpI32Add).LocalSet(out)
	off := 0
	for i, t := range types {
		get(b, i)
		b.LocalGet(start).I32Const(int32(off)).Op(wasm.OpI32Add)
		b.LocalGet(out).LocalGet(start)
		b.Call(e.packFunc(t)).LocalSet(out)
		off += e.HeadSize(t)
	}
	b.LocalGet(out)
}

// storeWordU32 emits a store of the i32 on top of the stack as the word
// at the address below it. Stack: [word, v] -> [].
func (e *Engine) storeWordU32(b *wasm.Seq) {
	b.Call(e.Lib.Bswap32()).I32Store(28)
}

func (e *Engine) packFunc(t ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{t.WasmType(), i32, i32, i32}
	return l.Get("abi.pack."+t.Key(), params, []wasm.ValType{i32}, func(f *wasm.Func) {
		const v, head, data, ref = 0, 1, 2, 3
		b := f.Body
		if e.IsDynamic(t) {
			b.LocalGet(head).LocalGet(data).LocalGet(ref).Op(wasm.OpI32Sub)
			e.storeWordU32(b)
		}
		switch t.Kind {
		case ir.KindBool, ir.KindU8, ir.KindU16, ir.KindU32:
			b.LocalGet(head).LocalGet(v)
			e.storeWordU32(b)
		case ir.KindU64:
			b.LocalGet(head).LocalGet(v).Call(l.Bswap64()).I64Store(24)
		case ir.KindU128, ir.KindU256:
			b.LocalGet(head).LocalGet(v).I32Const(int32(t.HeapSize())).Call(l.WriteBE())
		case ir.KindAddress:
			b.LocalGet(head).LocalGet(v).I32Const(32).MemoryCopy()
		case ir.KindEnum, ir.KindGenericEnum:
			b.LocalGet(head).LocalGet(v).I32Load(0)
			e.storeWordU32(b)
		case ir.KindVector:
			e.packVector(f, t.Elem())
			return
		case ir.KindStruct, ir.KindGenericStruct:
			if IsBytes32(t) {
				b.LocalGet(head).LocalGet(v)
				rtlib.UnwrapID(b, t)
				b.I32Const(32).MemoryCopy()
				break
			}
			s := e.Ctx.MustStruct(t)
			get := func(sq *wasm.Seq, i int) {
				sq.LocalGet(v)
				rtlib.Field(sq, s.Fields[i].Type, i)
			}
			if e.IsDynamic(t) {
				e.tuple(f, s.FieldTypes(), get, data)
				return
			}
			off := 0
			for i, fld := range s.Fields {
				get(b, i)
				b.LocalGet(head).I32Const(int32(off)).Op(wasm.OpI32Add)
				b.LocalGet(data).LocalGet(ref)
				b.Call(e.packFunc(fld.Type)).Drop()
				off += e.HeadSize(fld.Type)
			}
		default:
			panic("abi: pack of unchecked type " + t.String())
		}
		b.LocalGet(data)
	})
}

func (e *Engine) packVector(f *wasm.Func, elem ir.Type) {
	const v, data = 0, 2
	b := f.Body
	n := f.NewLocal(i32)
	elems := f.NewLocal(i32)
	out := f.NewLocal(i32)
	i := f.NewLocal(i32)
	hs := e.HeadSize(elem)
	stride := elem.VectorStride()

	b.LocalGet(v).I32Load(0).LocalSet(n)
	b.LocalGet(data).LocalGet(n)
	e.storeWordU32(b)
	b.LocalGet(data).I32Const(WordSize).Op(wasm.OpI32Add).LocalSet(elems)
	b.LocalGet(elems).LocalGet(n).I32Const(int32(hs)).Op(wasm.OpI32Mul).Op(wasm.OpI32Add).LocalSet(out)
	b.ForRange(i, n, func(body *wasm.Seq) {
		rtlib.Element(body, v, i, stride)
		rtlib.Load(body, elem, 0)
		body.LocalGet(elems).LocalGet(i).I32Const(int32(hs)).Op(wasm.OpI32Mul).Op(wasm.OpI32Add)
		body.LocalGet(out).LocalGet(elems)
		body.Call(e.packFunc(elem)).LocalSet(out)
	})
	b.LocalGet(out)
}

// tailFunc returns abi.tail.<key>(v) -> i32, the size of the tail region
// a dynamic value occupies
func (e *Engine) tailFunc(t ir.Type) uint32 {
	return e.Lib.Get("abi.tail."+t.Key(), []wasm.ValType{t.WasmType()}, []wasm.ValType{i32}, func(f *wasm.Func) {
		const v = 0
		b := f.Body
		if t.Kind == ir.KindVector {
			elem := t.Elem()
			n := f.NewLocal(i32)
			size := f.NewLocal(i32)
			b.LocalGet(v).I32Load(0).LocalTee(n)
			b.I32Const(int32(e.HeadSize(elem))).Op(wasm.OpI32Mul).I32Const(WordSize).Op(wasm.OpI32Add).LocalSet(size)
			if e.IsDynamic(elem) {
				i := f.NewLocal(i32)
				stride := elem.VectorStride()
				b.ForRange(i, n, func(body *wasm.Seq) {
					body.LocalGet(size)
					rtlib.Element(body, v, i, stride)
					rtlib.Load(body, elem, 0)
					body.Call(e.tailFunc(elem)).Op(wasm.OpI32Add).LocalSet(size)
				})
			}
			b.LocalGet(size)
			return
		}
		s := e.Ctx.MustStruct(t)
		e.tupleSize(b, s.FieldTypes(), func(b *wasm.Seq, i int) {
			b.LocalGet(v)
			rtlib.Field(b, s.Fields[i].Type, i)
		})
	})
}
