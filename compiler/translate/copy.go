package translate

import (
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/wasm"
)

// copy replaces the value of type t on the stack with a deep copy. Stack
// values are copied by WASM itself.
func (t *Translator) copy(s *wasm.Seq, typ ir.Type) {
	if typ.IsReference() || typ.IsStackValue() {
		return
	}
	s.Call(t.copyFunc(typ))
}

// copyFunc returns rt.copy.<key>(v) -> v'
func (t *Translator) copyFunc(typ ir.Type) uint32 {
	l := t.Lib
	sig := []wasm.ValType{i32}
	return l.Get("rt.copy."+typ.Key(), sig, sig, func(f *wasm.Func) {
		const src = 0
		b := f.Body
		switch {
		case typ.Kind == ir.KindVector:
			t.copyVector(f, typ.Elem())
			return
		case typ.IsStruct():
			st := t.Ctx.MustStruct(typ)
			dst := f.NewLocal(i32)
			l.AllocConst(b, st.HeapSize())
			b.LocalSet(dst)
			t.copyFields(b, dst, st.FieldTypes(), 0)
			b.LocalGet(dst)
			return
		case typ.IsEnum():
			e := t.Ctx.MustEnum(typ)
			dst := f.NewLocal(i32)
			l.AllocConst(b, e.HeapSize())
			b.LocalTee(dst).LocalGet(src).I32Load(0).I32Store(0)
			for pos, v := range e.Variants {
				if len(v.Fields) == 0 {
					continue
				}
				b.LocalGet(src).I32Load(0).I32Const(int32(pos)).Op(wasm.OpI32Eq)
				b.If(void, func(then *wasm.Seq) {
					t.copyFields(then, dst, v.FieldTypes(), enumFields)
				}, nil)
			}
			b.LocalGet(dst)
			return
		}
		b.LocalGet(src).I32Const(int32(typ.HeapSize())).Call(l.Clone())
	})
}

// copyFields copies the field cells of the block in local 0 into fresh
// cells referenced by the block in dst
func (t *Translator) copyFields(b *wasm.Seq, dst uint32, types []ir.Type, offset int) {
	for i, ft := range types {
		b.LocalGet(dst)
		b.LocalGet(0).I32Load(uint32(offset + 4*i))
		rtlib.Load(b, ft, 0)
		t.copy(b, ft)
		b.Call(t.Lib.Box(ft)).I32Store(uint32(offset + 4*i))
	}
}

func (t *Translator) copyVector(f *wasm.Func, elem ir.Type) {
	l := t.Lib
	stride := elem.VectorStride()
	n := f.NewLocal(i32)
	dst := f.NewLocal(i32)
	b := f.Body
	b.LocalGet(0).I32Load(0).LocalTee(n).LocalGet(n).I32Const(int32(stride)).Call(l.VecNew()).LocalSet(dst)
	if elem.IsStackValue() {
		b.LocalGet(dst).I32Const(rtlib.VectorHeader).Op(wasm.OpI32Add)
		b.LocalGet(0).I32Const(rtlib.VectorHeader).Op(wasm.OpI32Add)
		b.LocalGet(n).I32Const(int32(stride)).Op(wasm.OpI32Mul).MemoryCopy()
		b.LocalGet(dst)
		return
	}
	i := f.NewLocal(i32)
	b.ForRange(i, n, func(body *wasm.Seq) {
		rtlib.Element(body, dst, i, stride)
		rtlib.Element(body, 0, i, stride)
		body.I32Load(0)
		t.copy(body, elem)
		body.I32Store(0)
	})
	b.LocalGet(dst)
}

// eqValue compares the two t-typed values on the stack, leaving an i32
func (t *Translator) eqValue(s *wasm.Seq, typ ir.Type) {
	switch {
	case typ.Kind == ir.KindSigner:
		// a transaction has one signer
		s.Drop().Drop().I32Const(1)
	case typ.Kind == ir.KindU64:
		s.Op(wasm.OpI64Eq)
	case typ.IsStackValue():
		s.Op(wasm.OpI32Eq)
	default:
		s.Call(t.eqFunc(typ))
	}
}

// eqFunc returns rt.eq.<key>(a, b) -> i32, structural equality
func (t *Translator) eqFunc(typ ir.Type) uint32 {
	l := t.Lib
	return l.Get("rt.eq."+typ.Key(), []wasm.ValType{i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		const a, b = 0, 1
		s := f.Body
		switch {
		case typ.Kind == ir.KindVector:
			t.eqVector(f, typ.Elem())
			return
		case typ.IsStruct():
			t.eqFields(s, t.Ctx.MustStruct(typ).FieldTypes(), 0)
			s.I32Const(1)
			return
		case typ.IsEnum():
			e := t.Ctx.MustEnum(typ)
			s.LocalGet(a).I32Load(0).LocalGet(b).I32Load(0).Op(wasm.OpI32Ne).If(void, func(then *wasm.Seq) {
				then.I32Const(0).Return()
			}, nil)
			for pos, v := range e.Variants {
				if len(v.Fields) == 0 {
					continue
				}
				s.LocalGet(a).I32Load(0).I32Const(int32(pos)).Op(wasm.OpI32Eq)
				s.If(void, func(then *wasm.Seq) {
					t.eqFields(then, v.FieldTypes(), enumFields)
				}, nil)
			}
			s.I32Const(1)
			return
		}
		s.LocalGet(a).LocalGet(b).I32Const(int32(typ.HeapSize())).Call(l.MemEq())
	})
}

// eqFields returns 0 from the enclosing function at the first field of
// the blocks in locals 0 and 1 that differs
func (t *Translator) eqFields(s *wasm.Seq, types []ir.Type, offset int) {
	for i, ft := range types {
		off := uint32(offset + 4*i)
		s.LocalGet(0).I32Load(off)
		rtlib.Load(s, ft, 0)
		s.LocalGet(1).I32Load(off)
		rtlib.Load(s, ft, 0)
		t.eqValue(s, ft)
		s.Op(wasm.OpI32Eqz).If(void, func(then *wasm.Seq) {
			then.I32Const(0).Return()
		}, nil)
	}
}

func (t *Translator) eqVector(f *wasm.Func, elem ir.Type) {
	l := t.Lib
	stride := elem.VectorStride()
	n := f.NewLocal(i32)
	b := f.Body
	b.LocalGet(0).I32Load(0).LocalTee(n).LocalGet(1).I32Load(0).Op(wasm.OpI32Ne).If(void, func(then *wasm.Seq) {
		then.I32Const(0).Return()
	}, nil)
	if elem.IsStackValue() {
		b.LocalGet(0).I32Const(rtlib.VectorHeader).Op(wasm.OpI32Add)
		b.LocalGet(1).I32Const(rtlib.VectorHeader).Op(wasm.OpI32Add)
		b.LocalGet(n).I32Const(int32(stride)).Op(wasm.OpI32Mul).Call(l.MemEq())
		return
	}
	i := f.NewLocal(i32)
	b.ForRange(i, n, func(body *wasm.Seq) {
		rtlib.Element(body, 0, i, stride)
		body.I32Load(0)
		rtlib.Element(body, 1, i, stride)
		body.I32Load(0)
		t.eqValue(body, elem)
		body.Op(wasm.OpI32Eqz).If(void, func(then *wasm.Seq) {
			then.I32Const(0).Return()
		}, nil)
	})
	b.I32Const(1)
}
