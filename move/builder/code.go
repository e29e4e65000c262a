package builder

import (
	"math/big"

	"github.com/wippyai/move2wasm/move"
)

// Op returns an instruction without operands
func Op(op move.Opcode) move.Bytecode {
	return move.Bytecode{Op: op}
}

// Idx returns an instruction whose operand is a local, branch target,
// handle or pool index
func Idx(op move.Opcode, idx uint16) move.Bytecode {
	return move.Bytecode{Op: op, Index: idx}
}

func LdU8(v uint8) move.Bytecode   { return move.Bytecode{Op: move.OpLdU8, Value: uint64(v)} }
func LdU16(v uint16) move.Bytecode { return move.Bytecode{Op: move.OpLdU16, Value: uint64(v)} }
func LdU32(v uint32) move.Bytecode { return move.Bytecode{Op: move.OpLdU32, Value: uint64(v)} }
func LdU64(v uint64) move.Bytecode { return move.Bytecode{Op: move.OpLdU64, Value: v} }

// LdU128 loads v, which must fit in 128 bits
func LdU128(v *big.Int) move.Bytecode {
	return move.Bytecode{Op: move.OpLdU128, Wide: LittleEndian(v, 16)}
}

// LdU256 loads v, which must fit in 256 bits
func LdU256(v *big.Int) move.Bytecode {
	return move.Bytecode{Op: move.OpLdU256, Wide: LittleEndian(v, 32)}
}

// LittleEndian renders the low size bytes of v in little-endian order
func LittleEndian(v *big.Int, size int) []byte {
	be := v.FillBytes(make([]byte, size))
	out := make([]byte, size)
	for i := range be {
		out[size-1-i] = be[i]
	}
	return out
}

// VecPack packs n elements of the type in signature sig
func VecPack(sig uint16, n uint64) move.Bytecode {
	return move.Bytecode{Op: move.OpVecPack, Index: sig, Value: n}
}

// VecUnpack unpacks exactly n elements
func VecUnpack(sig uint16, n uint64) move.Bytecode {
	return move.Bytecode{Op: move.OpVecUnpack, Index: sig, Value: n}
}
