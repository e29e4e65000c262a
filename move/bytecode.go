package move

import "fmt"

// Opcode identifies a Move bytecode instruction
type Opcode uint8

const (
	OpPop Opcode = iota + 1
	OpRet
	OpBrTrue
	OpBrFalse
	OpBranch
	OpLdU8
	OpLdU16
	OpLdU32
	OpLdU64
	OpLdU128
	OpLdU256
	OpCastU8
	OpCastU16
	OpCastU32
	OpCastU64
	OpCastU128
	OpCastU256
	OpLdConst
	OpLdTrue
	OpLdFalse
	OpCopyLoc
	OpMoveLoc
	OpStLoc
	OpCall
	OpCallGeneric
	OpPack
	OpPackGeneric
	OpUnpack
	OpUnpackGeneric
	OpReadRef
	OpWriteRef
	OpFreezeRef
	OpMutBorrowLoc
	OpImmBorrowLoc
	OpMutBorrowField
	OpMutBorrowFieldGeneric
	OpImmBorrowField
	OpImmBorrowFieldGeneric
	OpAdd
	OpSub
	OpMul
	OpMod
	OpDiv
	OpBitOr
	OpBitAnd
	OpXor
	OpOr
	OpAnd
	OpNot
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLe
	OpGe
	OpShl
	OpShr
	OpAbort
	OpNop
	OpVecPack
	OpVecLen
	OpVecImmBorrow
	OpVecMutBorrow
	OpVecPushBack
	OpVecPopBack
	OpVecUnpack
	OpVecSwap
	OpPackVariant
	OpPackVariantGeneric
	OpUnpackVariant
	OpUnpackVariantImmRef
	OpUnpackVariantMutRef
	OpUnpackVariantGeneric
	OpUnpackVariantGenericImmRef
	OpUnpackVariantGenericMutRef
	OpVariantSwitch
	OpExists
	OpMoveFrom
	OpMoveTo
	OpMutBorrowGlobal
	OpImmBorrowGlobal
	opMax
)

var opcodeNames = [...]string{
	OpPop: "Pop", OpRet: "Ret", OpBrTrue: "BrTrue", OpBrFalse: "BrFalse",
	OpBranch: "Branch", OpLdU8: "LdU8", OpLdU16: "LdU16", OpLdU32: "LdU32",
	OpLdU64: "LdU64", OpLdU128: "LdU128", OpLdU256: "LdU256",
	OpCastU8: "CastU8", OpCastU16: "CastU16", OpCastU32: "CastU32",
	OpCastU64: "CastU64", OpCastU128: "CastU128", OpCastU256: "CastU256",
	OpLdConst: "LdConst", OpLdTrue: "LdTrue", OpLdFalse: "LdFalse",
	OpCopyLoc: "CopyLoc", OpMoveLoc: "MoveLoc", OpStLoc: "StLoc",
	OpCall: "Call", OpCallGeneric: "CallGeneric", OpPack: "Pack",
	OpPackGeneric: "PackGeneric", OpUnpack: "Unpack", OpUnpackGeneric: "UnpackGeneric",
	OpReadRef: "ReadRef", OpWriteRef: "WriteRef", OpFreezeRef: "FreezeRef",
	OpMutBorrowLoc: "MutBorrowLoc", OpImmBorrowLoc: "ImmBorrowLoc",
	OpMutBorrowField: "MutBorrowField", OpMutBorrowFieldGeneric: "MutBorrowFieldGeneric",
	OpImmBorrowField: "ImmBorrowField", OpImmBorrowFieldGeneric: "ImmBorrowFieldGeneric",
	OpAdd: "Add", OpSub: "Sub", OpMul: "Mul", OpMod: "Mod", OpDiv: "Div",
	OpBitOr: "BitOr", OpBitAnd: "BitAnd", OpXor: "Xor", OpOr: "Or", OpAnd: "And",
	OpNot: "Not", OpEq: "Eq", OpNeq: "Neq", OpLt: "Lt", OpGt: "Gt", OpLe: "Le",
	OpGe: "Ge", OpShl: "Shl", OpShr: "Shr", OpAbort: "Abort", OpNop: "Nop",
	OpVecPack: "VecPack", OpVecLen: "VecLen", OpVecImmBorrow: "VecImmBorrow",
	OpVecMutBorrow: "VecMutBorrow", OpVecPushBack: "VecPushBack",
	OpVecPopBack: "VecPopBack", OpVecUnpack: "VecUnpack", OpVecSwap: "VecSwap",
	OpPackVariant: "PackVariant", OpPackVariantGeneric: "PackVariantGeneric",
	OpUnpackVariant: "UnpackVariant", OpUnpackVariantImmRef: "UnpackVariantImmRef",
	OpUnpackVariantMutRef: "UnpackVariantMutRef", OpUnpackVariantGeneric: "UnpackVariantGeneric",
	OpUnpackVariantGenericImmRef: "UnpackVariantGenericImmRef",
	OpUnpackVariantGenericMutRef: "UnpackVariantGenericMutRef",
	OpVariantSwitch: "VariantSwitch", OpExists: "Exists", OpMoveFrom: "MoveFrom",
	OpMoveTo: "MoveTo", OpMutBorrowGlobal: "MutBorrowGlobal", OpImmBorrowGlobal: "ImmBorrowGlobal",
}

func (o Opcode) String() string {
	if o > 0 && o < opMax {
		return opcodeNames[o]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}

// IsBranch reports whether the instruction transfers control to Index
func (o Opcode) IsBranch() bool {
	return o == OpBrTrue || o == OpBrFalse || o == OpBranch
}

// IsTerminator reports whether control never falls through to the next
// instruction
func (o Opcode) IsTerminator() bool {
	return o == OpRet || o == OpAbort || o == OpBranch
}

// Bytecode is one instruction of a code unit.
//
// Index holds the local index, branch target, constant index, handle index
// or signature index depending on Op. Value holds LdU8..LdU64 literals and
// the element count of VecPack/VecUnpack. Wide holds the little-endian
// bytes of LdU128/LdU256.
type Bytecode struct {
	Wide  []byte `msgpack:"w,omitempty"`
	Value uint64 `msgpack:"v,omitempty"`
	Op    Opcode `msgpack:"op"`
	Index uint16 `msgpack:"i,omitempty"`
}

func (b Bytecode) String() string {
	switch b.Op {
	case OpLdU8, OpLdU16, OpLdU32, OpLdU64:
		return fmt.Sprintf("%s(%d)", b.Op, b.Value)
	case OpLdU128, OpLdU256:
		return fmt.Sprintf("%s(%x)", b.Op, b.Wide)
	case OpVecPack, OpVecUnpack:
		return fmt.Sprintf("%s(%d, %d)", b.Op, b.Index, b.Value)
	case OpPop, OpRet, OpReadRef, OpWriteRef, OpFreezeRef, OpAdd, OpSub, OpMul,
		OpMod, OpDiv, OpBitOr, OpBitAnd, OpXor, OpOr, OpAnd, OpNot, OpEq, OpNeq,
		OpLt, OpGt, OpLe, OpGe, OpShl, OpShr, OpAbort, OpNop, OpLdTrue, OpLdFalse,
		OpCastU8, OpCastU16, OpCastU32, OpCastU64, OpCastU128, OpCastU256:
		return b.Op.String()
	}
	return fmt.Sprintf("%s(%d)", b.Op, b.Index)
}
