// Package compilation builds the read-only registry the code generators
// consult: per-module datatype, field, variant and function tables resolved
// into intermediate types, plus the cross-module lookup context.
package compilation

import (
	"fmt"

	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/move/framework"
)

// DatatypeKind says whether a datatype handle names a struct or an enum
type DatatypeKind uint8

const (
	DatatypeStruct DatatypeKind = iota + 1
	DatatypeEnum
)

// DatatypeRef is the resolution of a datatype handle. Index is the
// definition index inside Module.
type DatatypeRef struct {
	Module   move.ModuleID
	Name     string
	Index    uint16
	Kind     DatatypeKind
	External bool
	Tag      ir.VMHandled
}

// Instantiation pairs a definition or handle index with type arguments,
// which may mention parameters of the function using them
type Instantiation struct {
	TypeArgs []ir.Type
	Index    uint16
}

// VariantRef locates a variant: Enum is an enum definition index for
// variant handles and an enum instantiation index for variant
// instantiation handles
type VariantRef struct {
	Enum     uint16
	Position uint16
}

// Function is the signature and, for definitions in the module, the body
// of a function referenced by a function handle
type Function struct {
	Code       *move.CodeUnit
	Module     move.ModuleID
	Name       string
	Params     []ir.Type
	Returns    []ir.Type
	Locals     []ir.Type
	TypeParams []move.AbilitySet
	Handle     uint16
	Visibility move.Visibility
	IsEntry    bool
	Defined    bool
	Native     bool
}

// IsGeneric reports whether the function has type parameters
func (f *Function) IsGeneric() bool {
	return len(f.TypeParams) > 0
}

// QualifiedName renders module::name
func (f *Function) QualifiedName() string {
	return f.Module.String() + "::" + f.Name
}

// ModuleData holds everything resolved from one compiled module. It is
// immutable after NewModuleData returns.
type ModuleData struct {
	Module                *move.CompiledModule
	ID                    move.ModuleID
	Constants             []move.Constant
	Signatures            [][]ir.Type
	Datatypes             []DatatypeRef
	Structs               []*ir.IStruct
	StructInstantiations  []Instantiation
	FieldInstantiations   []Instantiation
	Enums                 []*ir.IEnum
	EnumInstantiations    []Instantiation
	VariantHandles        []VariantRef
	VariantInstantiations []VariantRef
	Functions             []*Function
	FunctionInsts         []Instantiation
	// fieldOwner maps a field handle to (struct definition, field position)
	fieldOwner map[uint16][2]uint16
	defs       map[string]*Function
}

// Options tune context construction
type Options struct {
	// Events maps "address::module::Struct" to the number of leading fields
	// emitted as log topics
	Events map[string]int
}

// NewModuleData resolves m against the already-built dependency data in
// deps. Construction is ordered: datatype handles, structs, struct
// instantiations, field instantiations, enums, functions.
func NewModuleData(m *move.CompiledModule, deps map[move.ModuleID]*ModuleData, opts Options) (*ModuleData, error) {
	md := &ModuleData{
		Module:     m,
		ID:         m.Self(),
		Constants:  m.ConstantPool,
		fieldOwner: make(map[uint16][2]uint16),
		defs:       make(map[string]*Function),
	}
	wrap := func(err error) error {
		return errors.WithPath(err, md.ID.String())
	}
	if err := md.processDatatypes(deps); err != nil {
		return nil, wrap(err)
	}
	md.Signatures = make([][]ir.Type, len(m.Signatures))
	for i, sig := range m.Signatures {
		types, err := md.tokens(sig)
		if err != nil {
			return nil, wrap(err)
		}
		md.Signatures[i] = types
	}
	if err := md.processStructs(opts); err != nil {
		return nil, wrap(err)
	}
	if err := md.processStructInstantiations(); err != nil {
		return nil, wrap(err)
	}
	if err := md.processFieldInstantiations(); err != nil {
		return nil, wrap(err)
	}
	if err := md.processEnums(); err != nil {
		return nil, wrap(err)
	}
	if err := md.processFunctions(); err != nil {
		return nil, wrap(err)
	}
	return md, nil
}

func vmTag(module move.ModuleID, name string) ir.VMHandled {
	switch {
	case module == framework.ObjectModule && name == framework.UIDName:
		return ir.VMUID
	case module == framework.ObjectModule && name == framework.IDName:
		return ir.VMID
	case module == framework.ObjectModule && name == framework.NamedIDName:
		return ir.VMNamedID
	case module == framework.TxContextModule && name == framework.TxContextName:
		return ir.VMTxContext
	}
	return ir.VMNone
}

func (md *ModuleData) processDatatypes(deps map[move.ModuleID]*ModuleData) error {
	m := md.Module
	md.Datatypes = make([]DatatypeRef, len(m.DatatypeHandles))
	local := make(map[uint16]DatatypeRef)
	for i, s := range m.StructDefs {
		local[s.Handle] = DatatypeRef{Kind: DatatypeStruct, Index: uint16(i)}
	}
	for i, e := range m.EnumDefs {
		local[e.Handle] = DatatypeRef{Kind: DatatypeEnum, Index: uint16(i)}
	}
	for i := range m.DatatypeHandles {
		owner, name := m.DatatypeName(uint16(i))
		ref := DatatypeRef{Module: owner, Name: name, Tag: vmTag(owner, name)}
		if owner == md.ID {
			l, ok := local[uint16(i)]
			if !ok {
				return errors.NotFound(errors.PhaseContext, errors.KindStructNotFound,
					"datatype handle %d (%s) has no definition", i, name)
			}
			ref.Kind, ref.Index = l.Kind, l.Index
			md.Datatypes[i] = ref
			continue
		}
		dep, ok := deps[owner]
		if !ok {
			return errors.NotFound(errors.PhaseContext, errors.KindModuleNotFound,
				"module %s referenced by datatype %s", owner, name)
		}
		ref.External = true
		if idx, ok := dep.Module.FindStruct(name); ok {
			ref.Kind, ref.Index = DatatypeStruct, idx
		} else if idx, ok := dep.Module.FindEnum(name); ok {
			ref.Kind, ref.Index = DatatypeEnum, idx
		} else {
			return errors.NotFound(errors.PhaseContext, errors.KindStructNotFound,
				"%s::%s", owner, name)
		}
		md.Datatypes[i] = ref
	}
	return nil
}

// TypeFromToken converts a signature token using this module's handles.
// Type parameters are kept.
func (md *ModuleData) TypeFromToken(t move.SignatureToken) (ir.Type, error) {
	switch t.Kind {
	case move.TokenBool:
		return ir.Bool, nil
	case move.TokenU8:
		return ir.U8, nil
	case move.TokenU16:
		return ir.U16, nil
	case move.TokenU32:
		return ir.U32, nil
	case move.TokenU64:
		return ir.U64, nil
	case move.TokenU128:
		return ir.U128, nil
	case move.TokenU256:
		return ir.U256, nil
	case move.TokenAddress:
		return ir.Address, nil
	case move.TokenSigner:
		return ir.Signer, nil
	case move.TokenTypeParameter:
		return ir.TypeParameter(t.Param), nil
	case move.TokenVector, move.TokenReference, move.TokenMutableReference:
		inner, err := md.TypeFromToken(*t.Inner)
		if err != nil {
			return ir.Type{}, err
		}
		switch t.Kind {
		case move.TokenVector:
			return ir.Vector(inner), nil
		case move.TokenReference:
			return ir.Ref(inner), nil
		}
		return ir.MutRef(inner), nil
	case move.TokenDatatype, move.TokenDatatypeInstantiation:
		if int(t.Handle) >= len(md.Datatypes) {
			return ir.Type{}, errors.NotFound(errors.PhaseContext, errors.KindStructNotFound,
				"datatype handle %d", t.Handle)
		}
		ref := md.Datatypes[t.Handle]
		args, err := md.tokens(t.TypeArgs)
		if err != nil {
			return ir.Type{}, err
		}
		if ref.Kind == DatatypeEnum {
			if t.Kind == move.TokenDatatypeInstantiation {
				return ir.GenericEnum(ref.Module, ref.Index, args), nil
			}
			return ir.Enum(ref.Module, ref.Index), nil
		}
		if t.Kind == move.TokenDatatypeInstantiation {
			return ir.GenericStruct(ref.Module, ref.Index, args, ref.Tag), nil
		}
		return ir.Struct(ref.Module, ref.Index, ref.Tag), nil
	}
	return ir.Type{}, errors.Unsupported(errors.PhaseContext, fmt.Sprintf("signature token %s", t))
}

func (md *ModuleData) tokens(ts []move.SignatureToken) ([]ir.Type, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	out := make([]ir.Type, len(ts))
	for i, t := range ts {
		v, err := md.TypeFromToken(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (md *ModuleData) fields(defs []move.FieldDef) ([]ir.Field, error) {
	out := make([]ir.Field, len(defs))
	for i, f := range defs {
		t, err := md.TypeFromToken(f.Type)
		if err != nil {
			return nil, err
		}
		out[i] = ir.Field{Name: md.Module.Identifier(f.Name), Type: t}
	}
	return out, nil
}

func (md *ModuleData) processStructs(opts Options) error {
	m := md.Module
	md.Structs = make([]*ir.IStruct, len(m.StructDefs))
	for i, def := range m.StructDefs {
		h := m.DatatypeHandles[def.Handle]
		name := m.Identifier(h.Name)
		fields, err := md.fields(def.Fields)
		if err != nil {
			return errors.WithPath(err, name)
		}
		s := &ir.IStruct{
			Identifier: name,
			Module:     md.ID,
			Index:      uint16(i),
			Fields:     fields,
			HasKey:     h.Abilities.Has(move.AbilityKey),
			TypeParams: len(h.TypeParameters),
		}
		if n, ok := opts.Events[md.ID.String()+"::"+name]; ok {
			if n > len(fields) {
				return errors.New(errors.PhaseContext, errors.KindInvalidInput).
					Path(name).Detail("%d indexed fields configured, struct has %d", n, len(fields)).Build()
			}
			s.Kind = ir.StructEvent
			s.FirstNonIndexed = n
		}
		for _, f := range fields {
			if f.Type.IsReference() {
				return errors.New(errors.PhaseContext, errors.KindReferenceInsideStruct).
					Path(name, f.Name).Found(f.Type.String()).Build()
			}
			if s.TypeParams == 0 && f.Type.HasTypeParameter() {
				return errors.New(errors.PhaseContext, errors.KindTypeParameterInsideStruct).
					Path(name, f.Name).Found(f.Type.String()).Build()
			}
		}
		if err := s.Validate(); err != nil {
			return errors.New(errors.PhaseContext, errors.KindInvalidData).Path(name).Cause(err).Build()
		}
		md.Structs[i] = s
	}

	// Only fields that bytecode borrows get a handle.
	for i, fh := range m.FieldHandles {
		if int(fh.Owner) >= len(md.Structs) || int(fh.Field) >= len(md.Structs[fh.Owner].Fields) {
			return errors.NotFound(errors.PhaseContext, errors.KindStructWithFieldIdxNotFound,
				"field handle %d", i)
		}
		h := uint16(i)
		md.Structs[fh.Owner].Fields[fh.Field].Handle = &h
		md.fieldOwner[h] = [2]uint16{fh.Owner, fh.Field}
	}
	return nil
}

func (md *ModuleData) processStructInstantiations() error {
	m := md.Module
	md.StructInstantiations = make([]Instantiation, len(m.StructDefInstantiations))
	for i, inst := range m.StructDefInstantiations {
		if int(inst.Def) >= len(md.Structs) {
			return errors.NotFound(errors.PhaseContext, errors.KindStructWithDefinitionIdxNotFound,
				"struct instantiation %d refers to definition %d", i, inst.Def)
		}
		md.StructInstantiations[i] = Instantiation{Index: inst.Def, TypeArgs: md.Signatures[inst.TypeParameters]}
	}
	return nil
}

func (md *ModuleData) processFieldInstantiations() error {
	m := md.Module
	md.FieldInstantiations = make([]Instantiation, len(m.FieldInstantiations))
	for i, inst := range m.FieldInstantiations {
		if _, ok := md.fieldOwner[inst.Handle]; !ok {
			return errors.NotFound(errors.PhaseContext, errors.KindStructWithFieldIdxNotFound,
				"field instantiation %d refers to field handle %d", i, inst.Handle)
		}
		md.FieldInstantiations[i] = Instantiation{Index: inst.Handle, TypeArgs: md.Signatures[inst.TypeParameters]}
	}
	return nil
}

func (md *ModuleData) processEnums() error {
	m := md.Module
	md.Enums = make([]*ir.IEnum, len(m.EnumDefs))
	for i, def := range m.EnumDefs {
		h := m.DatatypeHandles[def.Handle]
		e := &ir.IEnum{
			Identifier: m.Identifier(h.Name),
			Module:     md.ID,
			Index:      uint16(i),
			TypeParams: len(h.TypeParameters),
			Variants:   make([]ir.Variant, len(def.Variants)),
		}
		for j, v := range def.Variants {
			fields, err := md.fields(v.Fields)
			if err != nil {
				return errors.WithPath(err, e.Identifier)
			}
			vname := m.Identifier(v.Name)
			for _, f := range fields {
				if f.Type.IsReference() {
					return errors.New(errors.PhaseContext, errors.KindReferenceInsideEnum).
						Path(e.Identifier, vname, f.Name).Found(f.Type.String()).Build()
				}
				if e.TypeParams == 0 && f.Type.HasTypeParameter() {
					return errors.New(errors.PhaseContext, errors.KindTypeParameterInsideEnumVariant).
						Path(e.Identifier, vname, f.Name).Found(f.Type.String()).Build()
				}
			}
			e.Variants[j] = ir.Variant{Name: vname, Index: uint16(j), Belongs: uint16(i), Fields: fields}
		}
		md.Enums[i] = e
	}

	md.VariantHandles = make([]VariantRef, len(m.VariantHandles))
	for i, vh := range m.VariantHandles {
		if int(vh.Enum) >= len(md.Enums) || int(vh.Variant) >= len(md.Enums[vh.Enum].Variants) {
			return errors.NotFound(errors.PhaseContext, errors.KindEnumNotFound, "variant handle %d", i)
		}
		md.VariantHandles[i] = VariantRef{Enum: vh.Enum, Position: vh.Variant}
	}
	md.EnumInstantiations = make([]Instantiation, len(m.EnumDefInstantiations))
	for i, inst := range m.EnumDefInstantiations {
		if int(inst.Def) >= len(md.Enums) {
			return errors.NotFound(errors.PhaseContext, errors.KindEnumNotFound, "enum instantiation %d", i)
		}
		md.EnumInstantiations[i] = Instantiation{Index: inst.Def, TypeArgs: md.Signatures[inst.TypeParameters]}
	}
	md.VariantInstantiations = make([]VariantRef, len(m.VariantInstantiationHandles))
	for i, vh := range m.VariantInstantiationHandles {
		if int(vh.Enum) >= len(md.EnumInstantiations) {
			return errors.NotFound(errors.PhaseContext, errors.KindEnumNotFound, "variant instantiation handle %d", i)
		}
		md.VariantInstantiations[i] = VariantRef{Enum: vh.Enum, Position: vh.Variant}
	}
	return nil
}

func (md *ModuleData) processFunctions() error {
	m := md.Module
	md.Functions = make([]*Function, len(m.FunctionHandles))
	for i, fh := range m.FunctionHandles {
		owner, name := m.FunctionName(uint16(i))
		md.Functions[i] = &Function{
			Module:     owner,
			Name:       name,
			Handle:     uint16(i),
			Params:     md.Signatures[fh.Parameters],
			Returns:    md.Signatures[fh.Return],
			TypeParams: fh.TypeParameters,
		}
	}
	for _, def := range m.FunctionDefs {
		f := md.Functions[def.Function]
		if len(def.Acquires) > 0 {
			return errors.New(errors.PhaseContext, errors.KindAcquires).
				Path(f.Name).Detail("functions acquiring global resources are not supported").Build()
		}
		f.Defined = true
		f.Visibility = def.Visibility
		f.IsEntry = def.IsEntry
		if def.Code == nil {
			f.Native = true
		} else {
			f.Code = def.Code
			f.Locals = append(append([]ir.Type{}, f.Params...), md.Signatures[def.Code.Locals]...)
		}
		md.defs[f.Name] = f
	}
	md.FunctionInsts = make([]Instantiation, len(m.FunctionInstantiations))
	for i, inst := range m.FunctionInstantiations {
		md.FunctionInsts[i] = Instantiation{Index: inst.Handle, TypeArgs: md.Signatures[inst.TypeParameters]}
	}
	return nil
}

// Definition returns the function defined in this module under name
func (md *ModuleData) Definition(name string) (*Function, bool) {
	f, ok := md.defs[name]
	return f, ok
}

// Definitions returns the functions defined in this module in definition
// order
func (md *ModuleData) Definitions() []*Function {
	out := make([]*Function, 0, len(md.Module.FunctionDefs))
	for _, def := range md.Module.FunctionDefs {
		out = append(out, md.Functions[def.Function])
	}
	return out
}
