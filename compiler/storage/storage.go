// Package storage generates the persistent object store of a compiled
// module.
//
// Every object (a struct with the key ability) lives under a root slot
// derived from its id and its owner:
//
//	root = keccak256(id ++ keccak256(owner ++ 0^32))
//
// The low 8 bytes of the root slot hold the type hash of the object, the
// first 8 bytes of keccak256 of its canonical type name. Fields follow
// from root+1, packed right-aligned into 32-byte slots in declaration
// order: a value that does not fit in what is left of a slot starts the
// next one. Vectors, identifiers and nested objects take whole slots.
// Vector data lives at keccak256(header slot); nested objects are stored
// as their own objects owned by the parent id.
//
// Shared and frozen objects are owned by two reserved sentinel owners.
package storage

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
	i64  = wasm.ValI64
	void = wasm.BlockTypeVoid
)

// SlotSize is the width of a storage slot
const SlotSize = 32

// HashSize is the number of type hash bytes kept in the root slot
const HashSize = 8

// CounterKey is hashed to the slot holding the fresh id counter
const CounterKey = "move2wasm::object_counter"

// Shared and Frozen are the owners of shared and frozen objects. Real
// owners are addresses, whose top 12 bytes are zero.
var (
	Shared = sentinel(0x01)
	Frozen = sentinel(0x02)
)

func sentinel(b byte) [32]byte {
	var s [32]byte
	s[0] = 0xff
	s[31] = b
	return s
}

// Engine generates storage routines into the module owned by Lib
type Engine struct {
	Lib *rtlib.Lib
	Ctx *compilation.Context
}

// New returns an engine resolving datatypes through ctx
func New(lib *rtlib.Lib, ctx *compilation.Context) *Engine {
	return &Engine{Lib: lib, Ctx: ctx}
}

// IsID reports whether t is UID, ID or a NamedId
func IsID(t ir.Type) bool {
	if !t.IsStruct() {
		return false
	}
	return t.Tag == ir.VMUID || t.Tag == ir.VMID || t.Tag == ir.VMNamedID
}

// IsObject reports whether t is a struct with the key ability
func (e *Engine) IsObject(t ir.Type) bool {
	if !t.IsStruct() || IsID(t) || t.Tag == ir.VMTxContext {
		return false
	}
	s, err := e.Ctx.Struct(t)
	return err == nil && s.HasKey
}

// Check reports whether values of type t can be persisted
func (e *Engine) Check(t ir.Type) error {
	switch t.Kind {
	case ir.KindBool, ir.KindU8, ir.KindU16, ir.KindU32, ir.KindU64,
		ir.KindU128, ir.KindU256, ir.KindAddress:
		return nil
	case ir.KindVector:
		return e.Check(t.Elem())
	case ir.KindStruct, ir.KindGenericStruct:
		if IsID(t) {
			return nil
		}
		if t.Tag == ir.VMTxContext {
			return errors.Unsupported(errors.PhaseStorage, "TxContext in storage")
		}
		s, err := e.Ctx.Struct(t)
		if err != nil {
			return err
		}
		if s.HasKey && (len(s.Fields) == 0 || s.Fields[0].Type.Tag != ir.VMUID) {
			return errors.New(errors.PhaseStorage, errors.KindUnsupported).
				Path(s.Identifier).Detail("object structs must start with an id: UID field").Build()
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
		for _, v := range en.Variants {
			for _, f := range v.Fields {
				if err := e.Check(f.Type); err != nil {
					return errors.WithPath(err, en.Identifier, v.Name, f.Name)
				}
			}
		}
		return nil
	}
	return errors.Unsupported(errors.PhaseStorage, t.String()+" in storage")
}

// checkObject is Check for the root of an object routine
func (e *Engine) checkObject(t ir.Type) error {
	if !e.IsObject(t) {
		return errors.New(errors.PhaseStorage, errors.KindInvalidOperation).
			Found(t.String()).Detail("not an object type").Build()
	}
	return e.Check(t)
}

// TypeName renders the canonical name of t that type hashes are taken of:
// module::Name<args> for datatypes
func (e *Engine) TypeName(t ir.Type) string {
	switch t.Kind {
	case ir.KindVector:
		return "vector<" + e.TypeName(t.Elem()) + ">"
	case ir.KindStruct, ir.KindGenericStruct, ir.KindEnum, ir.KindGenericEnum:
		name := e.Ctx.DatatypeName(t)
		if len(t.TypeArgs) == 0 {
			return name
		}
		args := make([]string, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			args[i] = e.TypeName(a)
		}
		return name + "<" + strings.Join(args, ",") + ">"
	}
	return t.String()
}

// TypeHash is the tag stored in the root slot of a t-typed object
func (e *Engine) TypeHash(t ir.Type) [HashSize]byte {
	var h [HashSize]byte
	copy(h[:], crypto.Keccak256([]byte(e.TypeName(t))))
	return h
}

// SharedOwner and FrozenOwner return the addresses of the sentinel
// owners in the data segment
func (e *Engine) SharedOwner() uint32 { return e.Lib.Data(Shared[:]) }

func (e *Engine) FrozenOwner() uint32 { return e.Lib.Data(Frozen[:]) }
