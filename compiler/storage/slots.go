package storage

import (
	"github.com/wippyai/move2wasm/compiler/hostio"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/wasm"
)

// put returns st.put(slot, pos, src, n): copies n bytes from src into the
// slot at byte pos, keeping the rest of the slot
func (e *Engine) put() uint32 {
	l := e.Lib
	return l.Get("st.put", []wasm.ValType{i32, i32, i32, i32}, nil, func(f *wasm.Func) {
		const slot, pos, src, n = 0, 1, 2, 3
		b := f.Body
		b.LocalGet(slot).I32Const(int32(hostio.SlotScratch)).Call(l.Host.StorageLoadBytes32)
		b.I32Const(int32(hostio.SlotScratch)).LocalGet(pos).Op(wasm.OpI32Add)
		b.LocalGet(src).LocalGet(n).MemoryCopy()
		b.LocalGet(slot).I32Const(int32(hostio.SlotScratch)).Call(l.Host.StorageCache)
	})
}

// get returns st.get(slot, pos, n): the n bytes at pos of the slot,
// right-aligned into a zeroed ValueScratch
func (e *Engine) get() uint32 {
	l := e.Lib
	return l.Get("st.get", []wasm.ValType{i32, i32, i32}, nil, func(f *wasm.Func) {
		const slot, pos, n = 0, 1, 2
		b := f.Body
		b.I32Const(int32(hostio.ValueScratch)).I32Const(0).I32Const(SlotSize).MemoryFill()
		b.LocalGet(slot).I32Const(int32(hostio.SlotScratch)).Call(l.Host.StorageLoadBytes32)
		b.I32Const(int32(hostio.ValueScratch + SlotSize)).LocalGet(n).Op(wasm.OpI32Sub)
		b.I32Const(int32(hostio.SlotScratch)).LocalGet(pos).Op(wasm.OpI32Add)
		b.LocalGet(n).MemoryCopy()
	})
}

// zeroRange returns st.zero_range(slot, n): clears n consecutive slots
func (e *Engine) zeroRange() uint32 {
	l := e.Lib
	return l.Get("st.zero_range", []wasm.ValType{i32, i32}, nil, func(f *wasm.Func) {
		const slot, n = 0, 1
		zero := l.Data(make([]byte, SlotSize))
		cur := f.NewLocal(i32)
		i := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(slot).I32Const(SlotSize).Call(l.Clone()).LocalSet(cur)
		b.ForRange(i, n, func(body *wasm.Seq) {
			body.LocalGet(cur).I32Const(int32(zero)).Call(l.Host.StorageCache)
			body.LocalGet(cur).I32Const(1).Call(l.SlotAdd())
		})
	})
}

// root returns st.root(id, owner) -> slot, a fresh copy of the root slot
// of the object id held by owner
func (e *Engine) root() uint32 {
	l := e.Lib
	return l.Get("st.root", []wasm.ValType{i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		const id, owner = 0, 1
		b := f.Body
		b.I32Const(int32(hostio.KeyScratch)).LocalGet(owner).I32Const(SlotSize).MemoryCopy()
		b.I32Const(int32(hostio.KeyScratch + SlotSize)).I32Const(0).I32Const(SlotSize).MemoryFill()
		b.I32Const(int32(hostio.KeyScratch))
		l.Keccak(b, 2*SlotSize, hostio.HashScratch)
		b.I32Const(int32(hostio.KeyScratch)).LocalGet(id).I32Const(SlotSize).MemoryCopy()
		b.I32Const(int32(hostio.KeyScratch + SlotSize)).I32Const(int32(hostio.HashScratch)).I32Const(SlotSize).MemoryCopy()
		b.I32Const(int32(hostio.KeyScratch))
		l.Keccak(b, 2*SlotSize, hostio.HashScratch)
		b.I32Const(int32(hostio.HashScratch)).I32Const(SlotSize).Call(l.Clone())
	})
}

// dataSlot emits the first data slot of the vector whose header slot
// address is pushed by header. Stack: [] -> [slot].
func (e *Engine) dataSlot(b *wasm.Seq, header func(*wasm.Seq)) {
	l := e.Lib
	header(b)
	l.Keccak(b, SlotSize, hostio.HashScratch)
	b.I32Const(int32(hostio.HashScratch)).I32Const(SlotSize).Call(l.Clone())
}

// putPacked emits the write of a packed t-typed value, pushed by val,
// into the slot pushed by slot at the byte position pushed by pos
func (e *Engine) putPacked(b *wasm.Seq, t ir.Type, val, slot, pos func(*wasm.Seq)) {
	l := e.Lib
	_, n := e.classify(t)
	vs := int32(hostio.ValueScratch)
	src := vs + SlotSize - int32(n)
	switch t.Kind {
	case ir.KindAddress:
		slot(b)
		pos(b)
		val(b)
		b.I32Const(SlotSize - 20).Op(wasm.OpI32Add).I32Const(20).Call(e.put())
		return
	case ir.KindU128, ir.KindU256:
		b.I32Const(vs)
		val(b)
		b.I32Const(int32(n)).Call(l.WriteBE())
	case ir.KindU64:
		b.I32Const(vs)
		val(b)
		b.Call(l.Bswap64()).I64Store(24)
	default:
		b.I32Const(vs)
		val(b)
		b.Call(l.Bswap32()).I32Store(28)
	}
	slot(b)
	pos(b)
	b.I32Const(src).I32Const(int32(n)).Call(e.put())
}

// getPacked emits the read of a packed t-typed value from the slot pushed
// by slot at the byte position pushed by pos. Stack: [] -> [v].
func (e *Engine) getPacked(b *wasm.Seq, t ir.Type, slot, pos func(*wasm.Seq)) {
	l := e.Lib
	_, n := e.classify(t)
	vs := int32(hostio.ValueScratch)
	slot(b)
	pos(b)
	b.I32Const(int32(n)).Call(e.get())
	switch t.Kind {
	case ir.KindAddress:
		b.I32Const(vs).I32Const(SlotSize).Call(l.Clone())
	case ir.KindU128, ir.KindU256:
		b.I32Const(vs).I32Const(int32(n)).Call(l.ReadBE())
	case ir.KindU64:
		b.I32Const(vs).I64Load(24).Call(l.Bswap64())
	default:
		b.I32Const(vs).I32Load(28).Call(l.Bswap32())
	}
}

// getWord emits a fresh copy of the whole slot pushed by slot.
// Stack: [] -> [ptr].
func (e *Engine) getWord(b *wasm.Seq, slot func(*wasm.Seq)) {
	slot(b)
	b.I32Const(0).I32Const(SlotSize).Call(e.get())
	b.I32Const(int32(hostio.ValueScratch)).I32Const(SlotSize).Call(e.Lib.Clone())
}

func constant(v int) func(*wasm.Seq) {
	return func(s *wasm.Seq) { s.I32Const(int32(v)) }
}

func local(idx uint32) func(*wasm.Seq) {
	return func(s *wasm.Seq) { s.LocalGet(idx) }
}
