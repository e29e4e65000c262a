package storage

import (
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/wasm"
)

// slots emits the inline encoding of values laid out from a base slot.
// Slot addresses are produced by advancing a private copy of the base,
// so positions handed to it must never move backwards.
type slots struct {
	e     *Engine
	f     *wasm.Func
	base  uint32
	owner uint32
	cur   uint32
	at    int
}

func (e *Engine) slots(f *wasm.Func, base, owner uint32) *slots {
	return &slots{e: e, f: f, base: base, owner: owner, at: -1}
}

// branch returns a walker for code that runs conditionally, positioned
// back at the base
func (m *slots) branch() *slots {
	return m.e.slots(m.f, m.base, m.owner)
}

// slot pushes the address of slot k relative to the base
func (m *slots) slot(b *wasm.Seq, k int) {
	l := m.e.Lib
	if m.at < 0 {
		m.cur = m.f.NewLocal(i32)
		b.LocalGet(m.base).I32Const(SlotSize).Call(l.Clone()).LocalSet(m.cur)
		m.at = 0
	}
	if k < m.at {
		panic("storage: slot walk moved backwards")
	}
	if k > m.at {
		b.LocalGet(m.cur).I32Const(int32(k - m.at)).Call(l.SlotAdd())
		m.at = k
	}
	b.LocalGet(m.cur)
}

func (m *slots) slotAt(k int) func(*wasm.Seq) {
	return func(s *wasm.Seq) { m.slot(s, k) }
}

// objectID emits the id address of the object block on the stack.
// Stack: [v] -> [address].
func (e *Engine) objectID(b *wasm.Seq, t ir.Type) {
	uid := e.Ctx.MustStruct(t).Fields[0].Type
	rtlib.Field(b, uid, 0)
	rtlib.UnwrapID(b, uid)
}

func variantField(b *wasm.Seq, t ir.Type, i int) {
	b.I32Load(uint32(4 + 4*i))
	rtlib.Load(b, t, 0)
}

// encode writes the t-typed value pushed by val at c
func (m *slots) encode(b *wasm.Seq, t ir.Type, val func(*wasm.Seq), c *cursor) {
	e := m.e
	switch cl, n := e.classify(t); cl {
	case packed:
		k, pos := c.place(n)
		e.putPacked(b, t, val, m.slotAt(k), constant(pos))
	case whole:
		k := c.whole()
		switch {
		case t.Kind == ir.KindVector:
			val(b)
			m.slot(b, k)
			b.LocalGet(m.owner).Call(e.vecStore(t.Elem()))
		case IsID(t):
			m.slot(b, k)
			b.I32Const(0)
			val(b)
			rtlib.UnwrapID(b, t)
			b.I32Const(SlotSize).Call(e.put())
		default:
			m.slot(b, k)
			b.I32Const(0)
			val(b)
			e.objectID(b, t)
			b.I32Const(SlotSize).Call(e.put())
			val(b)
			b.LocalGet(m.owner).Call(e.storeFunc(t))
		}
	case inline:
		for i, fl := range e.Ctx.MustStruct(t).Fields {
			m.encode(b, fl.Type, func(s *wasm.Seq) {
				val(s)
				rtlib.Field(s, fl.Type, i)
			}, c)
		}
	case tagged:
		k, pos := c.place(1)
		tag := func(s *wasm.Seq) {
			val(s)
			s.I32Load(0)
		}
		e.putPacked(b, ir.U8, tag, m.slotAt(k), constant(pos))
		j := 0
		*c = e.variants(t, *c, func(v ir.Variant, vc *cursor) {
			idx := j
			j++
			if len(v.Fields) == 0 {
				return
			}
			tag(b)
			b.I32Const(int32(idx)).Op(wasm.OpI32Eq)
			b.If(void, func(then *wasm.Seq) {
				vm := m.branch()
				for i, fl := range v.Fields {
					vm.encode(then, fl.Type, func(s *wasm.Seq) {
						val(s)
						variantField(s, fl.Type, i)
					}, vc)
				}
			}, nil)
		})
	}
}

// decode reads a t-typed value at c. Stack: [] -> [v].
func (m *slots) decode(b *wasm.Seq, t ir.Type, c *cursor) {
	e := m.e
	l := e.Lib
	switch cl, n := e.classify(t); cl {
	case packed:
		k, pos := c.place(n)
		e.getPacked(b, t, m.slotAt(k), constant(pos))
	case whole:
		k := c.whole()
		switch {
		case t.Kind == ir.KindVector:
			m.slot(b, k)
			b.LocalGet(m.owner).Call(e.vecLoad(t.Elem()))
		case IsID(t):
			addr := m.f.NewLocal(i32)
			e.getWord(b, m.slotAt(k))
			b.LocalSet(addr)
			l.WrapID(m.f, b, t, addr)
		default:
			e.getWord(b, m.slotAt(k))
			b.LocalGet(m.owner).Call(e.loadFunc(t))
		}
	case inline:
		m.decodeFields(b, e.Ctx.MustStruct(t), c)
	case tagged:
		en := e.Ctx.MustEnum(t)
		tag := m.f.NewLocal(i32)
		blk := m.f.NewLocal(i32)
		k, pos := c.place(1)
		e.getPacked(b, ir.U8, m.slotAt(k), constant(pos))
		b.LocalTee(tag).I32Const(int32(len(en.Variants))).Op(wasm.OpI32GeU).TrapIf()
		l.AllocConst(b, en.HeapSize())
		b.LocalTee(blk).LocalGet(tag).I32Store(0)
		j := 0
		*c = e.variants(t, *c, func(v ir.Variant, vc *cursor) {
			idx := j
			j++
			if len(v.Fields) == 0 {
				return
			}
			b.LocalGet(tag).I32Const(int32(idx)).Op(wasm.OpI32Eq)
			b.If(void, func(then *wasm.Seq) {
				vm := m.branch()
				for i, fl := range v.Fields {
					then.LocalGet(blk)
					vm.decode(then, fl.Type, vc)
					then.Call(l.Box(fl.Type)).I32Store(uint32(4 + 4*i))
				}
			}, nil)
		})
		b.LocalGet(blk)
	}
}

// decodeFields builds a block of struct s from fields laid out at c.
// Stack: [] -> [block].
func (m *slots) decodeFields(b *wasm.Seq, s *ir.IStruct, c *cursor) {
	l := m.e.Lib
	blk := m.f.NewLocal(i32)
	l.AllocConst(b, s.HeapSize())
	b.LocalSet(blk)
	for i, fl := range s.Fields {
		b.LocalGet(blk)
		m.decode(b, fl.Type, c)
		b.Call(l.Box(fl.Type)).I32Store(uint32(4 * i))
	}
	b.LocalGet(blk)
}

// release frees what a t-typed value at c keeps outside its own slots:
// vector data and nested objects. The slots themselves are left to the
// caller.
func (m *slots) release(b *wasm.Seq, t ir.Type, c *cursor) {
	e := m.e
	if !e.dynamic(t) {
		e.advance(t, c)
		return
	}
	switch cl, _ := e.classify(t); cl {
	case whole:
		k := c.whole()
		if t.Kind == ir.KindVector {
			m.slot(b, k)
			b.LocalGet(m.owner).Call(e.vecDelete(t.Elem()))
			return
		}
		e.getWord(b, m.slotAt(k))
		b.LocalGet(m.owner).Call(e.deleteFunc(t))
	case inline:
		for _, fl := range e.Ctx.MustStruct(t).Fields {
			m.release(b, fl.Type, c)
		}
	case tagged:
		tag := m.f.NewLocal(i32)
		k, pos := c.place(1)
		e.getPacked(b, ir.U8, m.slotAt(k), constant(pos))
		b.LocalSet(tag)
		j := 0
		*c = e.variants(t, *c, func(v ir.Variant, vc *cursor) {
			idx := j
			j++
			if !e.variantDynamic(v) {
				for _, fl := range v.Fields {
					e.advance(fl.Type, vc)
				}
				return
			}
			b.LocalGet(tag).I32Const(int32(idx)).Op(wasm.OpI32Eq)
			b.If(void, func(then *wasm.Seq) {
				vm := m.branch()
				for _, fl := range v.Fields {
					vm.release(then, fl.Type, vc)
				}
			}, nil)
		})
	}
}
