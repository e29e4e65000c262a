// Package ir defines the intermediate type model shared by the translator,
// the ABI engine and the storage engine.
package ir

import (
	"fmt"
	"strings"

	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/wasm"
)

// Kind discriminates Type
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindU256
	KindAddress
	KindSigner
	KindVector
	KindRef
	KindMutRef
	KindTypeParameter
	KindStruct
	KindGenericStruct
	KindEnum
	KindGenericEnum
)

// VMHandled tags framework datatypes the compiler implements natively
type VMHandled uint8

const (
	VMNone VMHandled = iota
	VMUID
	VMID
	VMTxContext
	VMNamedID
)

// Type is an intermediate type. Inner is set for vectors and references,
// Param for type parameters, Module, Index and TypeArgs for datatypes.
// Index is the struct or enum definition index inside Module.
type Type struct {
	Inner    *Type
	TypeArgs []Type
	Module   move.ModuleID
	Index    uint16
	Param    uint16
	Kind     Kind
	Tag      VMHandled
}

var (
	Bool    = Type{Kind: KindBool}
	U8      = Type{Kind: KindU8}
	U16     = Type{Kind: KindU16}
	U32     = Type{Kind: KindU32}
	U64     = Type{Kind: KindU64}
	U128    = Type{Kind: KindU128}
	U256    = Type{Kind: KindU256}
	Address = Type{Kind: KindAddress}
	Signer  = Type{Kind: KindSigner}
)

// Vector returns vector<inner>
func Vector(inner Type) Type {
	return Type{Kind: KindVector, Inner: &inner}
}

// Ref returns &inner
func Ref(inner Type) Type {
	return Type{Kind: KindRef, Inner: &inner}
}

// MutRef returns &mut inner
func MutRef(inner Type) Type {
	return Type{Kind: KindMutRef, Inner: &inner}
}

// TypeParameter returns the type parameter i
func TypeParameter(i uint16) Type {
	return Type{Kind: KindTypeParameter, Param: i}
}

// Struct returns a concrete struct type
func Struct(module move.ModuleID, index uint16, tag VMHandled) Type {
	return Type{Kind: KindStruct, Module: module, Index: index, Tag: tag}
}

// GenericStruct returns a struct instantiated with args
func GenericStruct(module move.ModuleID, index uint16, args []Type, tag VMHandled) Type {
	return Type{Kind: KindGenericStruct, Module: module, Index: index, TypeArgs: args, Tag: tag}
}

// Enum returns a concrete enum type
func Enum(module move.ModuleID, index uint16) Type {
	return Type{Kind: KindEnum, Module: module, Index: index}
}

// GenericEnum returns an enum instantiated with args
func GenericEnum(module move.ModuleID, index uint16, args []Type) Type {
	return Type{Kind: KindGenericEnum, Module: module, Index: index, TypeArgs: args}
}

// IsReference reports whether t is & or &mut
func (t Type) IsReference() bool {
	return t.Kind == KindRef || t.Kind == KindMutRef
}

// IsStruct reports whether t is a concrete or instantiated struct
func (t Type) IsStruct() bool {
	return t.Kind == KindStruct || t.Kind == KindGenericStruct
}

// IsEnum reports whether t is a concrete or instantiated enum
func (t Type) IsEnum() bool {
	return t.Kind == KindEnum || t.Kind == KindGenericEnum
}

// IsInteger reports whether t is one of the unsigned integer types
func (t Type) IsInteger() bool {
	return t.Kind >= KindU8 && t.Kind <= KindU256
}

// Deref strips one reference
func (t Type) Deref() Type {
	if !t.IsReference() {
		panic(fmt.Sprintf("ir: deref of non-reference %s", t))
	}
	return *t.Inner
}

// Base strips a reference if t is one
func (t Type) Base() Type {
	if t.IsReference() {
		return *t.Inner
	}
	return t
}

// Elem returns the element type of a vector
func (t Type) Elem() Type {
	if t.Kind != KindVector {
		panic(fmt.Sprintf("ir: element of non-vector %s", t))
	}
	return *t.Inner
}

// Bits returns the width of an integer type
func (t Type) Bits() int {
	switch t.Kind {
	case KindU8:
		return 8
	case KindU16:
		return 16
	case KindU32:
		return 32
	case KindU64:
		return 64
	case KindU128:
		return 128
	case KindU256:
		return 256
	}
	panic(fmt.Sprintf("ir: %s is not an integer", t))
}

func (t Type) mustBeConcrete() {
	if t.Kind == KindTypeParameter {
		panic(fmt.Sprintf("ir: type parameter T%d reached a layout query", t.Param))
	}
}

// WasmType returns the WASM value type of t's representation
func (t Type) WasmType() wasm.ValType {
	t.mustBeConcrete()
	if t.Kind == KindU64 {
		return wasm.ValI64
	}
	return wasm.ValI32
}

// IsStackValue reports whether t is carried as a raw WASM value rather
// than a pointer into linear memory
func (t Type) IsStackValue() bool {
	t.mustBeConcrete()
	switch t.Kind {
	case KindBool, KindU8, KindU16, KindU32, KindU64:
		return true
	}
	return false
}

// HeapSize returns the byte size of the memory a heap value points to.
// Datatype sizes come from IStruct and IEnum.
func (t Type) HeapSize() int {
	t.mustBeConcrete()
	switch t.Kind {
	case KindU128:
		return 16
	case KindU256, KindAddress, KindSigner:
		return 32
	}
	panic(fmt.Sprintf("ir: HeapSize of %s", t))
}

// BoxSize is the size of a cell holding t's representation
func (t Type) BoxSize() int {
	if t.WasmType() == wasm.ValI64 {
		return 8
	}
	return 4
}

// VectorStride is the size of one element slot in a vector of t
func (t Type) VectorStride() int {
	return t.BoxSize()
}

// Equal compares types by identity, including instantiation arguments.
// VMHandled tags are derived from identity and are not compared.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindVector, KindRef, KindMutRef:
		return t.Inner.Equal(*o.Inner)
	case KindTypeParameter:
		return t.Param == o.Param
	case KindStruct, KindEnum:
		return t.Module == o.Module && t.Index == o.Index
	case KindGenericStruct, KindGenericEnum:
		if t.Module != o.Module || t.Index != o.Index || len(t.TypeArgs) != len(o.TypeArgs) {
			return false
		}
		for i := range t.TypeArgs {
			if !t.TypeArgs[i].Equal(o.TypeArgs[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// Key is a stable identity string used to name generated helpers and to
// memoize per-type code
func (t Type) Key() string {
	var b strings.Builder
	t.writeKey(&b)
	return b.String()
}

func (t Type) writeKey(b *strings.Builder) {
	switch t.Kind {
	case KindVector:
		b.WriteString("vec<")
		t.Inner.writeKey(b)
		b.WriteByte('>')
	case KindRef:
		b.WriteString("ref<")
		t.Inner.writeKey(b)
		b.WriteByte('>')
	case KindMutRef:
		b.WriteString("mut<")
		t.Inner.writeKey(b)
		b.WriteByte('>')
	case KindTypeParameter:
		fmt.Fprintf(b, "T%d", t.Param)
	case KindStruct, KindGenericStruct, KindEnum, KindGenericEnum:
		kind := byte('S')
		if t.IsEnum() {
			kind = 'E'
		}
		fmt.Fprintf(b, "%c:%s::%d", kind, t.Module, t.Index)
		if len(t.TypeArgs) > 0 {
			b.WriteByte('<')
			for i, a := range t.TypeArgs {
				if i > 0 {
					b.WriteByte(',')
				}
				a.writeKey(b)
			}
			b.WriteByte('>')
		}
	default:
		b.WriteString(t.String())
	}
}

// Instantiate substitutes type parameters with args
func (t Type) Instantiate(args []Type) Type {
	switch t.Kind {
	case KindTypeParameter:
		if int(t.Param) >= len(args) {
			panic(fmt.Sprintf("ir: type parameter T%d out of range (%d arguments)", t.Param, len(args)))
		}
		return args[t.Param]
	case KindVector, KindRef, KindMutRef:
		inner := t.Inner.Instantiate(args)
		return Type{Kind: t.Kind, Inner: &inner}
	case KindGenericStruct, KindGenericEnum:
		out := t
		out.TypeArgs = InstantiateAll(t.TypeArgs, args)
		return out
	}
	return t
}

// InstantiateAll instantiates every type in ts
func InstantiateAll(ts []Type, args []Type) []Type {
	if ts == nil {
		return nil
	}
	out := make([]Type, len(ts))
	for i, x := range ts {
		out[i] = x.Instantiate(args)
	}
	return out
}

// HasTypeParameter reports whether t mentions a type parameter
func (t Type) HasTypeParameter() bool {
	switch t.Kind {
	case KindTypeParameter:
		return true
	case KindVector, KindRef, KindMutRef:
		return t.Inner.HasTypeParameter()
	case KindGenericStruct, KindGenericEnum:
		for _, a := range t.TypeArgs {
			if a.HasTypeParameter() {
				return true
			}
		}
	}
	return false
}

// Validate checks the reference invariants: references never nest and
// never wrap signer mutably
func (t Type) Validate() error {
	switch t.Kind {
	case KindRef, KindMutRef:
		if t.Inner.IsReference() {
			return fmt.Errorf("nested reference %s", t)
		}
		if t.Kind == KindMutRef && t.Inner.Kind == KindSigner {
			return fmt.Errorf("mutable reference to signer")
		}
		return t.Inner.Validate()
	case KindVector:
		if t.Inner.IsReference() {
			return fmt.Errorf("vector of references %s", t)
		}
		return t.Inner.Validate()
	case KindGenericStruct, KindGenericEnum:
		for _, a := range t.TypeArgs {
			if err := a.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t Type) String() string {
	switch t.Kind {
	case KindBool:
		return "bool"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindU128:
		return "u128"
	case KindU256:
		return "u256"
	case KindAddress:
		return "address"
	case KindSigner:
		return "signer"
	case KindVector:
		return "vector<" + t.Inner.String() + ">"
	case KindRef:
		return "&" + t.Inner.String()
	case KindMutRef:
		return "&mut " + t.Inner.String()
	case KindTypeParameter:
		return fmt.Sprintf("T%d", t.Param)
	case KindStruct, KindEnum:
		return fmt.Sprintf("%s#%d", t.Module, t.Index)
	case KindGenericStruct, KindGenericEnum:
		args := make([]string, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			args[i] = a.String()
		}
		return fmt.Sprintf("%s#%d<%s>", t.Module, t.Index, strings.Join(args, ", "))
	}
	return fmt.Sprintf("type(%d)", t.Kind)
}
