// Package abi generates the Solidity ABI codec of a compiled module.
//
// Values cross the boundary in their in-memory representation: raw i32/i64
// for bool..u64, pointers for wide integers, addresses, vectors, structs
// and enums. Each type gets three generated routines, emitted on first use:
//
//	abi.unpack.<key>(head, base) -> v
//	abi.pack.<key>(v, head, data, ref) -> data'
//	abi.tail.<key>(v) -> bytes   (dynamic types only)
//
// head is the 32-byte head slot of the value, base and ref the start of
// the enclosing tuple that offsets are relative to, data the next free
// byte of the tail region.
//
// Mapping: vector<T> is T[], structs are tuples, UID and ID are bytes32,
// enums without fields are uint8. Decoding is strict: non-canonical
// padding, out of range enum tags and offsets past the calldata trap.
package abi

import (
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/move2wasm/compiler/compilation"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/wasm"
)

const (
	i32  = wasm.ValI32
	void = wasm.BlockTypeVoid
)

// WordSize is the size of an ABI head slot
const WordSize = 32

// Engine generates codec routines into the module owned by Lib
type Engine struct {
	Lib *rtlib.Lib
	Ctx *compilation.Context
}

// New returns an engine resolving datatypes through ctx
func New(lib *rtlib.Lib, ctx *compilation.Context) *Engine {
	return &Engine{Lib: lib, Ctx: ctx}
}

// IsBytes32 reports whether t is one of the object identifier structs
// encoded as bytes32
func IsBytes32(t ir.Type) bool {
	if !t.IsStruct() {
		return false
	}
	switch t.Tag {
	case ir.VMUID, ir.VMID, ir.VMNamedID:
		return true
	}
	return false
}

// Check reports whether values of type t can be encoded
func (e *Engine) Check(t ir.Type) error {
	switch t.Kind {
	case ir.KindBool, ir.KindU8, ir.KindU16, ir.KindU32, ir.KindU64,
		ir.KindU128, ir.KindU256, ir.KindAddress:
		return nil
	case ir.KindSigner:
		return errors.New(errors.PhaseABI, errors.KindSignerInComplexType).
			Found(t.String()).Detail("signer values are injected, never encoded").Build()
	case ir.KindVector:
		return e.Check(t.Elem())
	case ir.KindStruct, ir.KindGenericStruct:
		if IsBytes32(t) {
			return nil
		}
		if t.Tag == ir.VMTxContext {
			return errors.Unsupported(errors.PhaseABI, "TxContext in calldata")
		}
		s, err := e.Ctx.Struct(t)
		if err != nil {
			return err
		}
		for _, f := range s.Fields {
			if err := e.Check(f.Type); err != nil {
				return errors.WithPath(err, s.Identifier, f.Name)
			}
		}
		return nil
	case ir.KindEnum, ir.KindGenericEnum:
		en, err := e.Ctx.Enum(t)
		if err != nil {
			return err
		}
		if !en.IsSimple() {
			return errors.Unsupported(errors.PhaseABI, "enum "+en.Identifier+" with fields")
		}
		return nil
	}
	return errors.Unsupported(errors.PhaseABI, t.String()+" in calldata")
}

// IsDynamic reports whether t is encoded out of line: vectors and structs
// containing a dynamic field
func (e *Engine) IsDynamic(t ir.Type) bool {
	switch {
	case t.Kind == ir.KindVector:
		return true
	case t.IsStruct() && !IsBytes32(t):
		for _, f := range e.Ctx.MustStruct(t).Fields {
			if e.IsDynamic(f.Type) {
				return true
			}
		}
	}
	return false
}

// HeadSize is the number of head bytes t occupies inside a tuple: the
// flattened size of a static struct, one word otherwise
func (e *Engine) HeadSize(t ir.Type) int {
	if t.IsStruct() && !IsBytes32(t) && !e.IsDynamic(t) {
		n := 0
		for _, f := range e.Ctx.MustStruct(t).Fields {
			n += e.HeadSize(f.Type)
		}
		return n
	}
	return WordSize
}

// TupleHeadSize is the summed head size of types
func (e *Engine) TupleHeadSize(types []ir.Type) int {
	n := 0
	for _, t := range types {
		n += e.HeadSize(t)
	}
	return n
}

// SolidityName renders the canonical Solidity type of t
func (e *Engine) SolidityName(t ir.Type) string {
	switch t.Kind {
	case ir.KindBool:
		return "bool"
	case ir.KindU8, ir.KindU16, ir.KindU32, ir.KindU64, ir.KindU128, ir.KindU256:
		return "uint" + itoa(t.Bits())
	case ir.KindAddress, ir.KindSigner:
		return "address"
	case ir.KindVector:
		return e.SolidityName(t.Elem()) + "[]"
	case ir.KindStruct, ir.KindGenericStruct:
		if IsBytes32(t) {
			return "bytes32"
		}
		s := e.Ctx.MustStruct(t)
		parts := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			parts[i] = e.SolidityName(f.Type)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case ir.KindEnum, ir.KindGenericEnum:
		return "uint8"
	case ir.KindRef, ir.KindMutRef:
		return e.SolidityName(t.Deref())
	}
	return t.String()
}

func itoa(n int) string {
	switch n {
	case 8:
		return "8"
	case 16:
		return "16"
	case 32:
		return "32"
	case 64:
		return "64"
	case 128:
		return "128"
	}
	return "256"
}

// Signature renders name(type,...)
func Signature(name string, types []string) string {
	return name + "(" + strings.Join(types, ",") + ")"
}

// Selector is the first four bytes of keccak256 of signature
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature)))
	return sel
}

// FunctionName converts a Move function name to its selector name. With
// camel set, snake_case becomes lowerCamelCase.
func FunctionName(name string, camel bool) string {
	if !camel || !strings.Contains(name, "_") {
		return name
	}
	parts := strings.Split(name, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	if b.Len() == 0 {
		return name
	}
	return b.String()
}

// RevertSelector is the selector of Error(string)
var RevertSelector = Selector("Error(string)")
