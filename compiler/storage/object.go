package storage

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/move2wasm/compiler/hostio"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/wasm"
)

const hashPos = SlotSize - HashSize

// Store returns st.store.<key>(v, owner), which persists object v under
// owner, replacing any previous version
func (e *Engine) Store(t ir.Type) (uint32, error) {
	if err := e.checkObject(t); err != nil {
		return 0, err
	}
	return e.storeFunc(t), nil
}

// Load returns st.load.<key>(id, owner) -> v. It traps unless owner holds
// a t-typed object with that id.
func (e *Engine) Load(t ir.Type) (uint32, error) {
	if err := e.checkObject(t); err != nil {
		return 0, err
	}
	return e.loadFunc(t), nil
}

// Delete returns st.delete.<key>(id, owner), clearing every slot the
// object and its nested values occupy. It traps when there is nothing to
// delete.
func (e *Engine) Delete(t ir.Type) (uint32, error) {
	if err := e.checkObject(t); err != nil {
		return 0, err
	}
	return e.deleteFunc(t), nil
}

// Exists returns st.exists.<key>(id, owner) -> i32
func (e *Engine) Exists(t ir.Type) (uint32, error) {
	if err := e.checkObject(t); err != nil {
		return 0, err
	}
	return e.existsFunc(t), nil
}

// Locate returns st.locate.<key>(id, sender, frozen_ok) -> owner, the
// first of the sender, the shared owner and, when frozen_ok is set, the
// frozen owner that holds the object. It traps when none does.
func (e *Engine) Locate(t ir.Type) (uint32, error) {
	if err := e.checkObject(t); err != nil {
		return 0, err
	}
	return e.locateFunc(t), nil
}

// Move returns st.move.<key>(id, from, to), which hands the object to a
// new owner
func (e *Engine) Move(t ir.Type) (uint32, error) {
	if err := e.checkObject(t); err != nil {
		return 0, err
	}
	return e.moveFunc(t), nil
}

// hasType returns st.has_type(root, hash) -> i32, 1 when the root slot
// carries the 8-byte type hash at hash
func (e *Engine) hasType() uint32 {
	l := e.Lib
	return l.Get("st.has_type", []wasm.ValType{i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		const root, hash = 0, 1
		b := f.Body
		b.LocalGet(root).I32Const(hashPos).I32Const(HashSize).Call(e.get())
		b.I32Const(int32(hostio.ValueScratch + hashPos)).LocalGet(hash).I32Const(HashSize).Call(l.MemEq())
	})
}

// rootOf emits the root slot of the object into a new local
func (e *Engine) rootOf(f *wasm.Func, id, owner uint32) uint32 {
	root := f.NewLocal(i32)
	f.Body.LocalGet(id).LocalGet(owner).Call(e.root()).LocalSet(root)
	return root
}

// fields returns a walker over the field slots following root
func (e *Engine) fields(f *wasm.Func, root, id uint32) *slots {
	base := f.NewLocal(i32)
	b := f.Body
	b.LocalGet(root).I32Const(SlotSize).Call(e.Lib.Clone()).LocalTee(base)
	b.I32Const(1).Call(e.Lib.SlotAdd())
	return e.slots(f, base, id)
}

// clear emits the release and zeroing of the t-typed object at root
func (e *Engine) clear(f *wasm.Func, b *wasm.Seq, t ir.Type, root, id uint32) {
	base := f.NewLocal(i32)
	b.LocalGet(root).I32Const(SlotSize).Call(e.Lib.Clone()).LocalTee(base)
	b.I32Const(1).Call(e.Lib.SlotAdd())
	m := e.slots(f, base, id)
	var c cursor
	for _, fl := range e.Ctx.MustStruct(t).Fields {
		m.release(b, fl.Type, &c)
	}
	b.LocalGet(root).I32Const(int32(e.ObjectSlots(t))).Call(e.zeroRange())
}

func (e *Engine) storeFunc(t ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{i32, i32}
	return l.Get("st.store."+t.Key(), params, nil, func(f *wasm.Func) {
		const v, owner = 0, 1
		s := e.Ctx.MustStruct(t)
		hash := e.TypeHash(t)
		tag := int32(l.Data(hash[:]))
		id := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(v)
		e.objectID(b, t)
		b.LocalSet(id)
		root := e.rootOf(f, id, owner)

		b.LocalGet(root).I32Const(tag).Call(e.hasType())
		b.If(void, func(then *wasm.Seq) {
			e.clear(f, then, t, root, id)
		}, nil)
		b.LocalGet(root).I32Const(hashPos).I32Const(tag).I32Const(HashSize).Call(e.put())

		m := e.fields(f, root, id)
		var c cursor
		for i, fl := range s.Fields {
			m.encode(b, fl.Type, func(sq *wasm.Seq) {
				sq.LocalGet(v)
				rtlib.Field(sq, fl.Type, i)
			}, &c)
		}
	})
}

func (e *Engine) loadFunc(t ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{i32, i32}
	return l.Get("st.load."+t.Key(), params, []wasm.ValType{i32}, func(f *wasm.Func) {
		const id, owner = 0, 1
		hash := e.TypeHash(t)
		b := f.Body
		root := e.rootOf(f, id, owner)
		b.LocalGet(root).I32Const(int32(l.Data(hash[:]))).Call(e.hasType()).Op(wasm.OpI32Eqz).TrapIf()
		var c cursor
		e.fields(f, root, id).decodeFields(b, e.Ctx.MustStruct(t), &c)
	})
}

func (e *Engine) deleteFunc(t ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{i32, i32}
	return l.Get("st.delete."+t.Key(), params, nil, func(f *wasm.Func) {
		const id, owner = 0, 1
		hash := e.TypeHash(t)
		b := f.Body
		root := e.rootOf(f, id, owner)
		b.LocalGet(root).I32Const(int32(l.Data(hash[:]))).Call(e.hasType()).Op(wasm.OpI32Eqz).TrapIf()
		e.clear(f, b, t, root, id)
	})
}

func (e *Engine) existsFunc(t ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{i32, i32}
	return l.Get("st.exists."+t.Key(), params, []wasm.ValType{i32}, func(f *wasm.Func) {
		const id, owner = 0, 1
		hash := e.TypeHash(t)
		root := e.rootOf(f, id, owner)
		f.Body.LocalGet(root).I32Const(int32(l.Data(hash[:]))).Call(e.hasType())
	})
}

func (e *Engine) locateFunc(t ir.Type) uint32 {
	l := e.Lib
	params := []wasm.ValType{i32, i32, i32}
	return l.Get("st.locate."+t.Key(), params, []wasm.ValType{i32}, func(f *wasm.Func) {
		const id, sender, frozenOK = 0, 1, 2
		exists := e.existsFunc(t)
		b := f.Body
		try := func(s *wasm.Seq, owner func(*wasm.Seq)) {
			s.LocalGet(id)
			owner(s)
			s.Call(exists).If(void, func(then *wasm.Seq) {
				owner(then)
				then.Return()
			}, nil)
		}
		try(b, local(sender))
		try(b, constant(int(e.SharedOwner())))
		b.LocalGet(frozenOK).If(void, func(then *wasm.Seq) {
			try(then, constant(int(e.FrozenOwner())))
		}, nil)
		b.Unreachable()
	})
}

func (e *Engine) moveFunc(t ir.Type) uint32 {
	params := []wasm.ValType{i32, i32, i32}
	return e.Lib.Get("st.move."+t.Key(), params, nil, func(f *wasm.Func) {
		const id, from, to = 0, 1, 2
		v := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(id).LocalGet(from).Call(e.loadFunc(t)).LocalSet(v)
		b.LocalGet(id).LocalGet(from).Call(e.deleteFunc(t))
		b.LocalGet(v).LocalGet(to).Call(e.storeFunc(t))
	})
}

// FreshID returns st.fresh_id(sender) -> address, a new object id:
// keccak256(sender ++ counter) with the top 12 bytes cleared, where the
// counter is a persistent u64 bumped on every call
func (e *Engine) FreshID() uint32 {
	l := e.Lib
	return l.Get("st.fresh_id", []wasm.ValType{i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		const sender = 0
		counter := constant(int(l.Data(crypto.Keccak256([]byte(CounterKey)))))
		n := f.NewLocal(i64)
		b := f.Body
		e.getPacked(b, ir.U64, counter, constant(24))
		b.I64Const(1).Op(wasm.OpI64Add).LocalSet(n)
		e.putPacked(b, ir.U64, local(n), counter, constant(24))

		ks := int32(hostio.KeyScratch)
		b.I32Const(ks).LocalGet(sender).I32Const(SlotSize).MemoryCopy()
		b.I32Const(ks+SlotSize).I32Const(0).I32Const(SlotSize - 8).MemoryFill()
		b.I32Const(ks + 2*SlotSize - 8).LocalGet(n).Call(l.Bswap64()).I64Store(0)
		b.I32Const(ks)
		l.Keccak(b, 2*SlotSize, hostio.HashScratch)
		b.I32Const(int32(hostio.HashScratch)).I32Const(0).I32Const(12).MemoryFill()
		b.I32Const(int32(hostio.HashScratch)).I32Const(SlotSize).Call(l.Clone())
	})
}
