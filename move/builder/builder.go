// Package builder constructs CompiledModule values programmatically.
//
// It is used for framework modules and for test fixtures; it performs the
// pool bookkeeping (identifiers, handles, signatures) a Move compiler would.
package builder

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"github.com/wippyai/move2wasm/move"
)

// Field is a named field type
type Field struct {
	Name string
	Type move.SignatureToken
}

// F is shorthand for Field{name, t}
func F(name string, t move.SignatureToken) Field {
	return Field{Name: name, Type: t}
}

// Variant is a named enum variant
type Variant struct {
	Name   string
	Fields []Field
}

// Function describes a function definition
type Function struct {
	Name       string
	TypeParams []move.AbilitySet
	Params     []move.SignatureToken
	Returns    []move.SignatureToken
	Locals     []move.SignatureToken
	Code       []move.Bytecode
	Acquires   []uint16
	Visibility move.Visibility
	Entry      bool
	Native     bool
}

type datatypeKey struct {
	module move.ModuleID
	name   string
}

type functionKey struct {
	module move.ModuleID
	name   string
}

// ModuleBuilder accumulates the pools of one module
type ModuleBuilder struct {
	m         move.CompiledModule
	idents    map[string]uint16
	addrs     map[move.Address]uint16
	modules   map[move.ModuleID]uint16
	datatypes map[datatypeKey]uint16
	functions map[functionKey]uint16
	sigs      map[string]uint16
	structs   map[string]*Struct
	enums     map[string]*Enum
}

// New starts a module named name at addr
func New(addr move.Address, name string) *ModuleBuilder {
	b := &ModuleBuilder{
		idents:    make(map[string]uint16),
		addrs:     make(map[move.Address]uint16),
		modules:   make(map[move.ModuleID]uint16),
		datatypes: make(map[datatypeKey]uint16),
		functions: make(map[functionKey]uint16),
		sigs:      make(map[string]uint16),
		structs:   make(map[string]*Struct),
		enums:     make(map[string]*Enum),
	}
	b.m.SelfHandle = b.ModuleHandle(move.ModuleID{Address: addr, Name: name})
	return b
}

// ID returns the identity of the module being built
func (b *ModuleBuilder) ID() move.ModuleID {
	return b.m.ModuleID(b.m.SelfHandle)
}

func index(n int) uint16 {
	v, err := safecast.Conv[uint16](n)
	if err != nil {
		panic(fmt.Sprintf("builder: pool overflow: %v", err))
	}
	return v
}

// Identifier interns s
func (b *ModuleBuilder) Identifier(s string) uint16 {
	if idx, ok := b.idents[s]; ok {
		return idx
	}
	idx := index(len(b.m.Identifiers))
	b.m.Identifiers = append(b.m.Identifiers, s)
	b.idents[s] = idx
	return idx
}

func (b *ModuleBuilder) address(a move.Address) uint16 {
	if idx, ok := b.addrs[a]; ok {
		return idx
	}
	idx := index(len(b.m.AddressIdentifiers))
	b.m.AddressIdentifiers = append(b.m.AddressIdentifiers, a)
	b.addrs[a] = idx
	return idx
}

// ModuleHandle interns a module handle
func (b *ModuleBuilder) ModuleHandle(id move.ModuleID) uint16 {
	if idx, ok := b.modules[id]; ok {
		return idx
	}
	idx := index(len(b.m.ModuleHandles))
	b.m.ModuleHandles = append(b.m.ModuleHandles, move.ModuleHandle{
		Address: b.address(id.Address),
		Name:    b.Identifier(id.Name),
	})
	b.modules[id] = idx
	return idx
}

// Signature interns a signature
func (b *ModuleBuilder) Signature(toks ...move.SignatureToken) uint16 {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.String()
	}
	key := strings.Join(parts, ",")
	if idx, ok := b.sigs[key]; ok {
		return idx
	}
	idx := index(len(b.m.Signatures))
	b.m.Signatures = append(b.m.Signatures, append(move.Signature{}, toks...))
	b.sigs[key] = idx
	return idx
}

// DatatypeHandle interns a handle for a datatype declared in module id
func (b *ModuleBuilder) DatatypeHandle(id move.ModuleID, name string, abilities move.AbilitySet, typeParams int) uint16 {
	key := datatypeKey{id, name}
	if idx, ok := b.datatypes[key]; ok {
		return idx
	}
	idx := index(len(b.m.DatatypeHandles))
	b.m.DatatypeHandles = append(b.m.DatatypeHandles, move.DatatypeHandle{
		Module:         b.ModuleHandle(id),
		Name:           b.Identifier(name),
		Abilities:      abilities,
		TypeParameters: make([]move.AbilitySet, typeParams),
	})
	b.datatypes[key] = idx
	return idx
}

// ImportType returns a token for a datatype declared in another module
func (b *ModuleBuilder) ImportType(id move.ModuleID, name string, abilities move.AbilitySet, args ...move.SignatureToken) move.SignatureToken {
	return move.Datatype(b.DatatypeHandle(id, name, abilities, len(args)), args...)
}

func (b *ModuleBuilder) fieldDefs(fields []Field) []move.FieldDef {
	defs := make([]move.FieldDef, len(fields))
	for i, f := range fields {
		defs[i] = move.FieldDef{Name: b.Identifier(f.Name), Type: f.Type}
	}
	return defs
}

// Struct is a struct declared in the module being built
type Struct struct {
	b      *ModuleBuilder
	fields []Field
	Def    uint16
	Handle uint16
}

// Struct declares a struct
func (b *ModuleBuilder) Struct(name string, abilities move.AbilitySet, fields ...Field) *Struct {
	return b.GenericStruct(name, abilities, 0, fields...)
}

// GenericStruct declares a struct with typeParams type parameters
func (b *ModuleBuilder) GenericStruct(name string, abilities move.AbilitySet, typeParams int, fields ...Field) *Struct {
	h := b.DatatypeHandle(b.ID(), name, abilities, typeParams)
	def := index(len(b.m.StructDefs))
	b.m.StructDefs = append(b.m.StructDefs, move.StructDef{Handle: h, Fields: b.fieldDefs(fields), Native: len(fields) == 0})
	s := &Struct{b: b, Def: def, Handle: h, fields: fields}
	b.structs[name] = s
	return s
}

// LookupStruct returns a previously declared struct
func (b *ModuleBuilder) LookupStruct(name string) *Struct {
	return b.structs[name]
}

// Token returns the struct's type, instantiated with args
func (s *Struct) Token(args ...move.SignatureToken) move.SignatureToken {
	return move.Datatype(s.Handle, args...)
}

func (s *Struct) fieldIndex(name string) uint16 {
	for i, f := range s.fields {
		if f.Name == name {
			return index(i)
		}
	}
	panic(fmt.Sprintf("builder: struct has no field %q", name))
}

// Field returns the field handle for the named field
func (s *Struct) Field(name string) uint16 {
	fi := s.fieldIndex(name)
	for i, h := range s.b.m.FieldHandles {
		if h.Owner == s.Def && h.Field == fi {
			return index(i)
		}
	}
	idx := index(len(s.b.m.FieldHandles))
	s.b.m.FieldHandles = append(s.b.m.FieldHandles, move.FieldHandle{Owner: s.Def, Field: fi})
	return idx
}

// Instantiation returns a struct instantiation index for args
func (s *Struct) Instantiation(args ...move.SignatureToken) uint16 {
	sig := s.b.Signature(args...)
	for i, inst := range s.b.m.StructDefInstantiations {
		if inst.Def == s.Def && inst.TypeParameters == sig {
			return index(i)
		}
	}
	idx := index(len(s.b.m.StructDefInstantiations))
	s.b.m.StructDefInstantiations = append(s.b.m.StructDefInstantiations, move.StructDefInstantiation{Def: s.Def, TypeParameters: sig})
	return idx
}

// FieldInstantiation returns a field instantiation index for the named
// field of the struct instantiated with args
func (s *Struct) FieldInstantiation(name string, args ...move.SignatureToken) uint16 {
	h := s.Field(name)
	sig := s.b.Signature(args...)
	for i, inst := range s.b.m.FieldInstantiations {
		if inst.Handle == h && inst.TypeParameters == sig {
			return index(i)
		}
	}
	idx := index(len(s.b.m.FieldInstantiations))
	s.b.m.FieldInstantiations = append(s.b.m.FieldInstantiations, move.FieldInstantiation{Handle: h, TypeParameters: sig})
	return idx
}

// Enum is an enum declared in the module being built
type Enum struct {
	b        *ModuleBuilder
	variants []Variant
	Def      uint16
	Handle   uint16
}

// Enum declares an enum
func (b *ModuleBuilder) Enum(name string, abilities move.AbilitySet, variants ...Variant) *Enum {
	return b.GenericEnum(name, abilities, 0, variants...)
}

// GenericEnum declares an enum with typeParams type parameters
func (b *ModuleBuilder) GenericEnum(name string, abilities move.AbilitySet, typeParams int, variants ...Variant) *Enum {
	h := b.DatatypeHandle(b.ID(), name, abilities, typeParams)
	def := index(len(b.m.EnumDefs))
	vdefs := make([]move.VariantDef, len(variants))
	for i, v := range variants {
		vdefs[i] = move.VariantDef{Name: b.Identifier(v.Name), Fields: b.fieldDefs(v.Fields)}
	}
	b.m.EnumDefs = append(b.m.EnumDefs, move.EnumDef{Handle: h, Variants: vdefs})
	e := &Enum{b: b, Def: def, Handle: h, variants: variants}
	b.enums[name] = e
	return e
}

// Token returns the enum's type, instantiated with args
func (e *Enum) Token(args ...move.SignatureToken) move.SignatureToken {
	return move.Datatype(e.Handle, args...)
}

func (e *Enum) variantIndex(name string) uint16 {
	for i, v := range e.variants {
		if v.Name == name {
			return index(i)
		}
	}
	panic(fmt.Sprintf("builder: enum has no variant %q", name))
}

// Variant returns the variant handle for the named variant
func (e *Enum) Variant(name string) uint16 {
	vi := e.variantIndex(name)
	for i, h := range e.b.m.VariantHandles {
		if h.Enum == e.Def && h.Variant == vi {
			return index(i)
		}
	}
	idx := index(len(e.b.m.VariantHandles))
	e.b.m.VariantHandles = append(e.b.m.VariantHandles, move.VariantHandle{Enum: e.Def, Variant: vi})
	return idx
}

// VariantInstantiation returns a variant instantiation handle for the
// named variant of the enum instantiated with args
func (e *Enum) VariantInstantiation(name string, args ...move.SignatureToken) uint16 {
	vi := e.variantIndex(name)
	sig := e.b.Signature(args...)
	inst := -1
	for i, in := range e.b.m.EnumDefInstantiations {
		if in.Def == e.Def && in.TypeParameters == sig {
			inst = i
		}
	}
	if inst < 0 {
		inst = len(e.b.m.EnumDefInstantiations)
		e.b.m.EnumDefInstantiations = append(e.b.m.EnumDefInstantiations, move.EnumDefInstantiation{Def: e.Def, TypeParameters: sig})
	}
	for i, h := range e.b.m.VariantInstantiationHandles {
		if h.Enum == index(inst) && h.Variant == vi {
			return index(i)
		}
	}
	idx := index(len(e.b.m.VariantInstantiationHandles))
	e.b.m.VariantInstantiationHandles = append(e.b.m.VariantInstantiationHandles,
		move.VariantInstantiationHandle{Enum: index(inst), Variant: vi})
	return idx
}

// FunctionHandle interns a handle for a function in module id
func (b *ModuleBuilder) FunctionHandle(id move.ModuleID, name string, params, returns []move.SignatureToken, typeParams ...move.AbilitySet) uint16 {
	key := functionKey{id, name}
	if idx, ok := b.functions[key]; ok {
		return idx
	}
	idx := index(len(b.m.FunctionHandles))
	b.m.FunctionHandles = append(b.m.FunctionHandles, move.FunctionHandle{
		Module:         b.ModuleHandle(id),
		Name:           b.Identifier(name),
		Parameters:     b.Signature(params...),
		Return:         b.Signature(returns...),
		TypeParameters: typeParams,
	})
	b.functions[key] = idx
	return idx
}

// AddFunction defines a function and returns its handle
func (b *ModuleBuilder) AddFunction(f Function) uint16 {
	h := b.FunctionHandle(b.ID(), f.Name, f.Params, f.Returns, f.TypeParams...)
	def := move.FunctionDef{
		Function:   h,
		Visibility: f.Visibility,
		IsEntry:    f.Entry,
		Acquires:   f.Acquires,
	}
	if !f.Native {
		def.Code = &move.CodeUnit{Locals: b.Signature(f.Locals...), Code: f.Code}
	}
	b.m.FunctionDefs = append(b.m.FunctionDefs, def)
	return h
}

// FunctionInstantiation returns an instantiation index for handle h
func (b *ModuleBuilder) FunctionInstantiation(h uint16, args ...move.SignatureToken) uint16 {
	sig := b.Signature(args...)
	for i, inst := range b.m.FunctionInstantiations {
		if inst.Handle == h && inst.TypeParameters == sig {
			return index(i)
		}
	}
	idx := index(len(b.m.FunctionInstantiations))
	b.m.FunctionInstantiations = append(b.m.FunctionInstantiations, move.FunctionInstantiation{Handle: h, TypeParameters: sig})
	return idx
}

// Constant adds a constant to the pool
func (b *ModuleBuilder) Constant(v move.Value, t move.SignatureToken) uint16 {
	idx := index(len(b.m.ConstantPool))
	b.m.ConstantPool = append(b.m.ConstantPool, move.Constant{Type: t, Data: move.EncodeConstant(v)})
	return idx
}

// Build returns the module
func (b *ModuleBuilder) Build() *move.CompiledModule {
	m := b.m
	return &m
}
