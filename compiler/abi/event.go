package abi

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/wasm"
)

// EventSignature renders the log signature of struct t:
// Identifier(field types...)
func (e *Engine) EventSignature(t ir.Type) (string, error) {
	s, err := e.Ctx.Struct(t)
	if err != nil {
		return "", err
	}
	types := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		types[i] = e.SolidityName(f.Type)
	}
	return Signature(s.Identifier, types), nil
}

// Emit returns abi.emit.<key>(v), which logs the struct value v. Topic 0
// is the keccak256 of the event signature, the fields before
// FirstNonIndexed are further topics and the rest are ABI-encoded as the
// log data.
func (e *Engine) Emit(t ir.Type) (uint32, error) {
	if err := e.Check(t); err != nil {
		return 0, err
	}
	s := e.Ctx.MustStruct(t)
	indexed := 0
	if s.Kind == ir.StructEvent {
		indexed = s.FirstNonIndexed
	}
	for _, f := range s.Fields[:indexed] {
		if e.IsDynamic(f.Type) || e.HeadSize(f.Type) != WordSize {
			return 0, errors.New(errors.PhaseABI, errors.KindUnsupported).
				Path(s.Identifier, f.Name).Found(e.SolidityName(f.Type)).
				Detail("indexed event fields must be single-word values").Build()
		}
	}
	sig, err := e.EventSignature(t)
	if err != nil {
		return 0, err
	}
	l := e.Lib
	topic0 := l.Data(crypto.Keccak256([]byte(sig)))
	topics := 1 + indexed
	data := s.FieldTypes()[indexed:]

	return l.Get("abi.emit."+t.Key(), []wasm.ValType{i32}, nil, func(f *wasm.Func) {
		const v = 0
		buf := f.NewLocal(i32)
		size := f.NewLocal(i32)
		start := f.NewLocal(i32)
		b := f.Body
		get := func(sq *wasm.Seq, i int) {
			sq.LocalGet(v)
			rtlib.Field(sq, s.Fields[indexed+i].Type, indexed+i)
		}

		e.tupleSize(b, data, get)
		b.I32Const(int32(topics * WordSize)).Op(wasm.OpI32Add).LocalTee(size)
		b.Call(l.Alloc()).LocalTee(buf)
		b.I32Const(int32(topic0)).I32Const(WordSize).MemoryCopy()
		for i := 0; i < indexed; i++ {
			b.LocalGet(v)
			rtlib.Field(b, s.Fields[i].Type, i)
			b.LocalGet(buf).I32Const(int32((1 + i) * WordSize)).Op(wasm.OpI32Add)
			b.LocalGet(buf).LocalGet(buf)
			b.Call(e.packFunc(s.Fields[i].Type)).Drop()
		}
		b.LocalGet(buf).I32Const(int32(topics * WordSize)).Op(wasm.OpI32Add).LocalSet(start)
		e.tuple(f, data, get, start)
		b.Drop()
		b.LocalGet(buf).LocalGet(size).I32Const(int32(topics)).Call(l.Host.EmitLog)
	}), nil
}
