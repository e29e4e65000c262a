package storage

import (
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/wasm"
)

// Vectors keep their length in the low 4 bytes of the header slot and
// their elements from keccak256(header) on. Packed elements share slots,
// 32/size of them per slot filled from the right; any other element takes
// Slots(elem) slots of its own.

// lengthPos is the byte position of the length inside a header slot
const lengthPos = SlotSize - 4

func (e *Engine) perSlot(elem ir.Type) (int, bool) {
	cl, n := e.classify(elem)
	if cl != packed {
		return 0, false
	}
	return SlotSize / n, true
}

// packedPos emits the byte position of element j inside its slot.
// Stack: [] -> [pos].
func packedPos(b *wasm.Seq, j uint32, size int) {
	b.I32Const(int32(SlotSize - size)).LocalGet(j).I32Const(int32(size)).Op(wasm.OpI32Mul).Op(wasm.OpI32Sub)
}

// nextPacked emits the step to the next packed element: j += 1, moving
// cur to the next slot once per elements have been visited
func (e *Engine) nextPacked(b *wasm.Seq, cur, j uint32, per int) {
	b.LocalGet(j).I32Const(1).Op(wasm.OpI32Add).LocalTee(j)
	b.I32Const(int32(per)).Op(wasm.OpI32Eq).If(void, func(t *wasm.Seq) {
		t.LocalGet(cur).I32Const(1).Call(e.Lib.SlotAdd())
		t.I32Const(0).LocalSet(j)
	}, nil)
}

// vecStore returns st.vec_store.<elem>(v, header, owner). Whatever the
// header held before is released first.
func (e *Engine) vecStore(elem ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{i32, i32, i32}
	return l.Get("st.vec_store."+elem.Key(), params, nil, func(f *wasm.Func) {
		const v, header, owner = 0, 1, 2
		n := f.NewLocal(i32)
		cur := f.NewLocal(i32)
		i := f.NewLocal(i32)
		b := f.Body
		stride := elem.VectorStride()

		b.LocalGet(header).LocalGet(owner).Call(e.vecDelete(elem))
		b.LocalGet(v).I32Load(0).LocalSet(n)
		e.putPacked(b, ir.U32, local(n), local(header), constant(lengthPos))
		e.dataSlot(b, local(header))
		b.LocalSet(cur)
		item := func(s *wasm.Seq) {
			rtlib.Element(s, v, i, stride)
			rtlib.Load(s, elem, 0)
		}

		if per, ok := e.perSlot(elem); ok {
			_, size := e.classify(elem)
			j := f.NewLocal(i32)
			b.ForRange(i, n, func(body *wasm.Seq) {
				e.putPacked(body, elem, item, local(cur), func(s *wasm.Seq) { packedPos(s, j, size) })
				e.nextPacked(body, cur, j, per)
			})
			return
		}
		k := e.Slots(elem)
		b.ForRange(i, n, func(body *wasm.Seq) {
			var c cursor
			e.slots(f, cur, owner).encode(body, elem, item, &c)
			body.LocalGet(cur).I32Const(int32(k)).Call(l.SlotAdd())
		})
	})
}

// vecLoad returns st.vec_load.<elem>(header, owner) -> v
func (e *Engine) vecLoad(elem ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{i32, i32}
	return l.Get("st.vec_load."+elem.Key(), params, []wasm.ValType{i32}, func(f *wasm.Func) {
		const header, owner = 0, 1
		n := f.NewLocal(i32)
		blk := f.NewLocal(i32)
		cur := f.NewLocal(i32)
		i := f.NewLocal(i32)
		b := f.Body
		stride := elem.VectorStride()

		e.getPacked(b, ir.U32, local(header), constant(lengthPos))
		b.LocalSet(n)
		b.LocalGet(n).LocalGet(n).I32Const(int32(stride)).Call(l.VecNew()).LocalSet(blk)
		e.dataSlot(b, local(header))
		b.LocalSet(cur)

		if per, ok := e.perSlot(elem); ok {
			_, size := e.classify(elem)
			j := f.NewLocal(i32)
			b.ForRange(i, n, func(body *wasm.Seq) {
				rtlib.Element(body, blk, i, stride)
				e.getPacked(body, elem, local(cur), func(s *wasm.Seq) { packedPos(s, j, size) })
				rtlib.Store(body, elem, 0)
				e.nextPacked(body, cur, j, per)
			})
		} else {
			k := e.Slots(elem)
			b.ForRange(i, n, func(body *wasm.Seq) {
				var c cursor
				rtlib.Element(body, blk, i, stride)
				e.slots(f, cur, owner).decode(body, elem, &c)
				rtlib.Store(body, elem, 0)
				body.LocalGet(cur).I32Const(int32(k)).Call(l.SlotAdd())
			})
		}
		b.LocalGet(blk)
	})
}

// vecDelete returns st.vec_delete.<elem>(header, owner), which clears the
// header and every data slot of the vector
func (e *Engine) vecDelete(elem ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{i32, i32}
	return l.Get("st.vec_delete."+elem.Key(), params, nil, func(f *wasm.Func) {
		const header, owner = 0, 1
		n := f.NewLocal(i32)
		data := f.NewLocal(i32)
		b := f.Body

		e.getPacked(b, ir.U32, local(header), constant(lengthPos))
		b.LocalTee(n).Op(wasm.OpI32Eqz).If(void, func(t *wasm.Seq) { t.Return() }, nil)
		e.dataSlot(b, local(header))
		b.LocalSet(data)

		if per, ok := e.perSlot(elem); ok {
			b.LocalGet(data)
			b.LocalGet(n).I32Const(int32(per - 1)).Op(wasm.OpI32Add).I32Const(int32(per)).Op(wasm.OpI32DivU)
			b.Call(e.zeroRange())
		} else {
			k := e.Slots(elem)
			if e.dynamic(elem) {
				cur := f.NewLocal(i32)
				i := f.NewLocal(i32)
				b.LocalGet(data).I32Const(SlotSize).Call(l.Clone()).LocalSet(cur)
				b.ForRange(i, n, func(body *wasm.Seq) {
					var c cursor
					e.slots(f, cur, owner).release(body, elem, &c)
					body.LocalGet(cur).I32Const(int32(k)).Call(l.SlotAdd())
				})
			}
			b.LocalGet(data).LocalGet(n).I32Const(int32(k)).Op(wasm.OpI32Mul).Call(e.zeroRange())
		}
		b.LocalGet(header).I32Const(1).Call(e.zeroRange())
	})
}
