package translate

import (
	"reflect"
	"testing"

	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/wasm"
)

func TestEqValue(t *testing.T) {
	tests := []struct {
		typ  ir.Type
		want []wasm.Instruction
	}{
		{ir.U64, []wasm.Instruction{{Opcode: wasm.OpI64Eq}}},
		{ir.U8, []wasm.Instruction{{Opcode: wasm.OpI32Eq}}},
		{ir.Bool, []wasm.Instruction{{Opcode: wasm.OpI32Eq}}},
		{ir.Signer, []wasm.Instruction{{Opcode: wasm.OpDrop}, {Opcode: wasm.OpDrop}, wasm.I32Const(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			b := wasm.NewModuleBuilder()
			tr := New(rtlib.New(b), nil, NewTable(b))
			s := wasm.NewSeq()
			tr.eqValue(s, tt.typ)
			if got := s.Instructions(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("eqValue(%s) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}

	// addresses are compared by content
	b := wasm.NewModuleBuilder()
	tr := New(rtlib.New(b), nil, NewTable(b))
	s := wasm.NewSeq()
	tr.eqValue(s, ir.Address)
	ins := s.Instructions()
	if len(ins) != 1 || ins[0].Opcode != wasm.OpCall {
		t.Errorf("eqValue(address) = %v, want one call", ins)
	}
}
