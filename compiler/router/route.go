package router

import (
	"github.com/wippyai/move2wasm/compiler/compilation"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/compiler/storage"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/wasm"
)

type paramKind int

const (
	plain paramKind = iota
	byRef
	signer
	signerRef
	txContext
	txContextRef
	object
	objectRef
	objectMut
)

// param describes how a route produces one argument. decode is the type
// read from calldata, nil for injected arguments.
type param struct {
	kind   paramKind
	typ    ir.Type
	decode *ir.Type
}

// classify decides how each parameter of fn is supplied. A signer may
// only be the first parameter.
func (r *Router) classify(fn *compilation.Function) ([]param, error) {
	out := make([]param, len(fn.Params))
	for i, t := range fn.Params {
		inner := t.Base()
		p := param{typ: t}
		switch {
		case inner.Kind == ir.KindSigner:
			if i != 0 {
				return nil, errors.New(errors.PhaseRouter, errors.KindSignerPosition).
					Found(t.String()).Detail("signer is parameter %d, only the first may be a signer", i).Build()
			}
			p.kind = signer
			if t.IsReference() {
				p.kind = signerRef
			}
		case inner.Tag == ir.VMTxContext:
			p.kind = txContext
			if t.IsReference() {
				p.kind = txContextRef
			}
		case r.tr.Storage.IsObject(inner):
			st, err := r.tr.Ctx.Struct(inner)
			if err != nil {
				return nil, err
			}
			uid := st.Fields[0].Type
			p.decode = &uid
			switch t.Kind {
			case ir.KindRef:
				p.kind = objectRef
			case ir.KindMutRef:
				p.kind = objectMut
			default:
				p.kind = object
			}
		default:
			p.decode = &inner
			if t.IsReference() {
				p.kind = byRef
			}
		}
		if p.decode != nil {
			if err := r.tr.ABI.Check(*p.decode); err != nil {
				return nil, err
			}
		}
		out[i] = p
	}
	return out, nil
}

func (p param) needsSender() bool {
	switch p.kind {
	case plain, byRef:
		return false
	}
	return true
}

// route generates route(args) -> status for rt
func (r *Router) route(rt *Route, params []param, returns []ir.Type) (*wasm.Func, error) {
	l := r.tr.Lib
	st := r.tr.Storage
	f := wasm.NewFunc("route."+rt.Entry.ID.Key(), []wasm.ValType{i32}, []wasm.ValType{i32})
	const base = 0
	b := f.Body

	sender := f.NewLocal(i32)
	for _, p := range params {
		if p.needsSender() {
			l.AllocConst(b, storage.SlotSize)
			b.LocalTee(sender).I32Const(12).Op(wasm.OpI32Add).Call(l.Host.TxOrigin)
			break
		}
	}

	var decodeTypes []ir.Type
	for _, p := range params {
		if p.decode != nil {
			decodeTypes = append(decodeTypes, *p.decode)
		}
	}
	decoded, err := r.tr.ABI.UnpackTuple(f, decodeTypes, base)
	if err != nil {
		return nil, err
	}

	// objects borrowed mutably are written back after a successful call
	type writeBack struct {
		typ         ir.Type
		cell, owner uint32
	}
	var back []writeBack

	args := make([]uint32, len(params))
	next := 0
	for i, p := range params {
		arg := f.NewLocal(p.typ.WasmType())
		args[i] = arg
		var v uint32
		if p.decode != nil {
			v = decoded[next]
			next++
		}
		switch p.kind {
		case plain:
			b.LocalGet(v).LocalSet(arg)
		case byRef:
			b.LocalGet(v).Call(l.Box(p.typ.Deref())).LocalSet(arg)
		case signer:
			b.LocalGet(sender).LocalSet(arg)
		case signerRef:
			b.LocalGet(sender).Call(l.Box(ir.Signer)).LocalSet(arg)
		case txContext, txContextRef:
			r.txContext(f, sender)
			if p.kind == txContextRef {
				b.Call(l.Box(p.typ.Deref()))
			}
			b.LocalSet(arg)
		case object, objectRef, objectMut:
			t := p.typ.Base()
			locate, err := st.Locate(t)
			if err != nil {
				return nil, err
			}
			load, err := st.Load(t)
			if err != nil {
				return nil, err
			}
			id := f.NewLocal(i32)
			owner := f.NewLocal(i32)
			b.LocalGet(v)
			rtlib.UnwrapID(b, *p.decode)
			b.LocalSet(id)
			frozenOK := int32(0)
			if p.kind == objectRef {
				frozenOK = 1
			}
			b.LocalGet(id).LocalGet(sender).I32Const(frozenOK).Call(locate).LocalSet(owner)
			b.LocalGet(id).LocalGet(owner).Call(load)
			switch p.kind {
			case object:
				del, err := st.Delete(t)
				if err != nil {
					return nil, err
				}
				b.LocalSet(arg)
				b.LocalGet(id).LocalGet(owner).Call(del)
			case objectRef:
				b.Call(l.Box(t)).LocalSet(arg)
			case objectMut:
				b.Call(l.Box(t)).LocalSet(arg)
				back = append(back, writeBack{typ: t, cell: arg, owner: owner})
			}
		}
	}

	for _, a := range args {
		b.LocalGet(a)
	}
	b.Call(rt.Entry.Func)
	results := make([]uint32, len(rt.Entry.Returns))
	for i := range results {
		results[i] = f.NewLocal(rt.Entry.Returns[i].WasmType())
	}
	for i := len(results) - 1; i >= 0; i-- {
		b.LocalSet(results[i])
	}

	abortPending(b)
	b.If(void, func(then *wasm.Seq) {
		then.Call(r.revert())
		r.flush(then)
		then.I32Const(StatusAbort).Return()
	}, nil)

	for _, w := range back {
		store, err := st.Store(w.typ)
		if err != nil {
			return nil, err
		}
		b.LocalGet(w.cell).I32Load(0).LocalGet(w.owner).Call(store)
	}

	values := make([]uint32, len(results))
	for i, t := range rt.Entry.Returns {
		values[i] = results[i]
		if t.IsReference() {
			values[i] = f.NewLocal(t.Deref().WasmType())
			b.LocalGet(results[i])
			rtlib.Load(b, t.Deref(), 0)
			b.LocalSet(values[i])
		}
	}
	ptr, size, err := r.tr.ABI.PackTuple(f, returns, values)
	if err != nil {
		return nil, err
	}
	b.LocalGet(ptr).LocalGet(size).Call(l.Host.WriteResult)
	r.flush(b)
	b.I32Const(StatusOK)
	return f, nil
}

// txContext pushes a fresh TxContext block for the sender in local
// sender with no ids created yet
func (r *Router) txContext(f *wasm.Func, sender uint32) {
	l := r.tr.Lib
	blk := f.NewLocal(i32)
	b := f.Body
	l.AllocConst(b, 8)
	b.LocalTee(blk)
	b.LocalGet(sender).I32Const(storage.SlotSize).Call(l.Clone()).Call(l.Box(ir.Address)).I32Store(0)
	b.LocalGet(blk).I64Const(0).Call(l.Box(ir.U64)).I32Store(4)
	b.LocalGet(blk)
}
