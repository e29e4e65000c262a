package move

import "fmt"

// Ability is a bit in an AbilitySet
type Ability uint8

const (
	AbilityCopy  Ability = 0x1
	AbilityDrop  Ability = 0x2
	AbilityStore Ability = 0x4
	AbilityKey   Ability = 0x8
)

// AbilitySet is a set of abilities
type AbilitySet uint8

// Has reports whether a is in the set
func (s AbilitySet) Has(a Ability) bool {
	return uint8(s)&uint8(a) != 0
}

// Visibility of a function definition
type Visibility uint8

const (
	VisibilityPrivate Visibility = iota
	VisibilityPublic
	VisibilityFriend
)

// ModuleHandle names a module by address and identifier pool indices
type ModuleHandle struct {
	Address uint16 `msgpack:"a"`
	Name    uint16 `msgpack:"n"`
}

// DatatypeHandle names a struct or enum declared in some module
type DatatypeHandle struct {
	TypeParameters []AbilitySet `msgpack:"tp,omitempty"`
	Module         uint16       `msgpack:"m"`
	Name           uint16       `msgpack:"n"`
	Abilities      AbilitySet   `msgpack:"ab"`
}

// FunctionHandle names a function and its signature
type FunctionHandle struct {
	TypeParameters []AbilitySet `msgpack:"tp,omitempty"`
	Module         uint16       `msgpack:"m"`
	Name           uint16       `msgpack:"n"`
	Parameters     uint16       `msgpack:"p"`
	Return         uint16       `msgpack:"r"`
}

// FieldHandle refers to field Field of struct definition Owner
type FieldHandle struct {
	Owner uint16 `msgpack:"o"`
	Field uint16 `msgpack:"f"`
}

// StructDefInstantiation instantiates struct definition Def with the
// signature TypeParameters
type StructDefInstantiation struct {
	Def            uint16 `msgpack:"d"`
	TypeParameters uint16 `msgpack:"tp"`
}

// FunctionInstantiation instantiates function handle Handle
type FunctionInstantiation struct {
	Handle         uint16 `msgpack:"h"`
	TypeParameters uint16 `msgpack:"tp"`
}

// FieldInstantiation instantiates the owner of field handle Handle
type FieldInstantiation struct {
	Handle         uint16 `msgpack:"h"`
	TypeParameters uint16 `msgpack:"tp"`
}

// EnumDefInstantiation instantiates enum definition Def
type EnumDefInstantiation struct {
	Def            uint16 `msgpack:"d"`
	TypeParameters uint16 `msgpack:"tp"`
}

// VariantHandle refers to variant Variant of enum definition Enum
type VariantHandle struct {
	Enum    uint16 `msgpack:"e"`
	Variant uint16 `msgpack:"v"`
}

// VariantInstantiationHandle refers to a variant of an enum instantiation
type VariantInstantiationHandle struct {
	Enum    uint16 `msgpack:"e"`
	Variant uint16 `msgpack:"v"`
}

// FieldDef is a named field
type FieldDef struct {
	Type SignatureToken `msgpack:"t"`
	Name uint16         `msgpack:"n"`
}

// StructDef defines a struct. Native structs have no fields.
type StructDef struct {
	Fields []FieldDef `msgpack:"f,omitempty"`
	Handle uint16     `msgpack:"h"`
	Native bool       `msgpack:"native,omitempty"`
}

// VariantDef is one variant of an enum
type VariantDef struct {
	Fields []FieldDef `msgpack:"f,omitempty"`
	Name   uint16     `msgpack:"n"`
}

// EnumDef defines an enum
type EnumDef struct {
	Variants []VariantDef `msgpack:"v"`
	Handle   uint16       `msgpack:"h"`
}

// JumpTable is a variant switch table
type JumpTable struct {
	Offsets []uint16 `msgpack:"o"`
	Enum    uint16   `msgpack:"e"`
}

// CodeUnit is the body of a function
type CodeUnit struct {
	Code       []Bytecode  `msgpack:"c"`
	JumpTables []JumpTable `msgpack:"jt,omitempty"`
	Locals     uint16      `msgpack:"l"`
}

// FunctionDef defines a function. Native functions have no code.
type FunctionDef struct {
	Code       *CodeUnit  `msgpack:"code,omitempty"`
	Acquires   []uint16   `msgpack:"acq,omitempty"`
	Function   uint16     `msgpack:"fn"`
	Visibility Visibility `msgpack:"vis"`
	IsEntry    bool       `msgpack:"entry,omitempty"`
}

// Constant is a BCS-serialized value of type Type
type Constant struct {
	Type SignatureToken `msgpack:"t"`
	Data []byte         `msgpack:"d"`
}

// CompiledModule is a verified Move module in binary-format shape.
type CompiledModule struct {
	ModuleHandles               []ModuleHandle               `msgpack:"module_handles"`
	DatatypeHandles             []DatatypeHandle             `msgpack:"datatype_handles,omitempty"`
	FunctionHandles             []FunctionHandle             `msgpack:"function_handles,omitempty"`
	FieldHandles                []FieldHandle                `msgpack:"field_handles,omitempty"`
	StructDefInstantiations     []StructDefInstantiation     `msgpack:"struct_def_instantiations,omitempty"`
	FunctionInstantiations      []FunctionInstantiation      `msgpack:"function_instantiations,omitempty"`
	FieldInstantiations         []FieldInstantiation         `msgpack:"field_instantiations,omitempty"`
	Signatures                  []Signature                  `msgpack:"signatures,omitempty"`
	Identifiers                 []string                     `msgpack:"identifiers"`
	AddressIdentifiers          []Address                    `msgpack:"address_identifiers"`
	ConstantPool                []Constant                   `msgpack:"constant_pool,omitempty"`
	StructDefs                  []StructDef                  `msgpack:"struct_defs,omitempty"`
	FunctionDefs                []FunctionDef                `msgpack:"function_defs,omitempty"`
	EnumDefs                    []EnumDef                    `msgpack:"enum_defs,omitempty"`
	EnumDefInstantiations       []EnumDefInstantiation       `msgpack:"enum_def_instantiations,omitempty"`
	VariantHandles              []VariantHandle              `msgpack:"variant_handles,omitempty"`
	VariantInstantiationHandles []VariantInstantiationHandle `msgpack:"variant_instantiation_handles,omitempty"`
	SelfHandle                  uint16                       `msgpack:"self"`
}

// ModuleID identifies a module by address and name
type ModuleID struct {
	Name    string
	Address Address
}

func (id ModuleID) String() string {
	return id.Address.String() + "::" + id.Name
}

// Self returns the identity of this module
func (m *CompiledModule) Self() ModuleID {
	return m.ModuleID(m.SelfHandle)
}

// ModuleID resolves a module handle
func (m *CompiledModule) ModuleID(handle uint16) ModuleID {
	h := m.ModuleHandles[handle]
	return ModuleID{Address: m.AddressIdentifiers[h.Address], Name: m.Identifiers[h.Name]}
}

// Identifier returns the identifier at idx
func (m *CompiledModule) Identifier(idx uint16) string {
	return m.Identifiers[idx]
}

// Signature returns the signature at idx
func (m *CompiledModule) Signature(idx uint16) Signature {
	return m.Signatures[idx]
}

// DatatypeName returns the declaring module and name of a datatype handle
func (m *CompiledModule) DatatypeName(handle uint16) (ModuleID, string) {
	h := m.DatatypeHandles[handle]
	return m.ModuleID(h.Module), m.Identifiers[h.Name]
}

// FunctionName returns the declaring module and name of a function handle
func (m *CompiledModule) FunctionName(handle uint16) (ModuleID, string) {
	h := m.FunctionHandles[handle]
	return m.ModuleID(h.Module), m.Identifiers[h.Name]
}

// Dependencies returns the modules referenced by this module, excluding itself
func (m *CompiledModule) Dependencies() []ModuleID {
	var deps []ModuleID
	for i := range m.ModuleHandles {
		if uint16(i) == m.SelfHandle {
			continue
		}
		deps = append(deps, m.ModuleID(uint16(i)))
	}
	return deps
}

// FindStruct returns the definition index of the struct named name
func (m *CompiledModule) FindStruct(name string) (uint16, bool) {
	for i, s := range m.StructDefs {
		if m.Identifiers[m.DatatypeHandles[s.Handle].Name] == name {
			return uint16(i), true
		}
	}
	return 0, false
}

// FindEnum returns the definition index of the enum named name
func (m *CompiledModule) FindEnum(name string) (uint16, bool) {
	for i, e := range m.EnumDefs {
		if m.Identifiers[m.DatatypeHandles[e.Handle].Name] == name {
			return uint16(i), true
		}
	}
	return 0, false
}

// FindFunction returns the definition index of the function named name
func (m *CompiledModule) FindFunction(name string) (uint16, bool) {
	for i, f := range m.FunctionDefs {
		if m.Identifiers[m.FunctionHandles[f.Function].Name] == name {
			return uint16(i), true
		}
	}
	return 0, false
}

// Validate checks pool indices the compiler relies on without re-verifying
// the bytecode itself
func (m *CompiledModule) Validate() error {
	if int(m.SelfHandle) >= len(m.ModuleHandles) {
		return fmt.Errorf("self handle %d out of range", m.SelfHandle)
	}
	for i, h := range m.ModuleHandles {
		if int(h.Address) >= len(m.AddressIdentifiers) || int(h.Name) >= len(m.Identifiers) {
			return fmt.Errorf("module handle %d out of range", i)
		}
	}
	for i, h := range m.DatatypeHandles {
		if int(h.Module) >= len(m.ModuleHandles) || int(h.Name) >= len(m.Identifiers) {
			return fmt.Errorf("datatype handle %d out of range", i)
		}
	}
	for i, h := range m.FunctionHandles {
		if int(h.Module) >= len(m.ModuleHandles) || int(h.Name) >= len(m.Identifiers) ||
			int(h.Parameters) >= len(m.Signatures) || int(h.Return) >= len(m.Signatures) {
			return fmt.Errorf("function handle %d out of range", i)
		}
	}
	for i, d := range m.FunctionDefs {
		if int(d.Function) >= len(m.FunctionHandles) {
			return fmt.Errorf("function definition %d out of range", i)
		}
		if d.Code != nil && int(d.Code.Locals) >= len(m.Signatures) {
			return fmt.Errorf("function definition %d locals signature out of range", i)
		}
	}
	for i, s := range m.StructDefs {
		if int(s.Handle) >= len(m.DatatypeHandles) {
			return fmt.Errorf("struct definition %d out of range", i)
		}
	}
	for i, e := range m.EnumDefs {
		if int(e.Handle) >= len(m.DatatypeHandles) {
			return fmt.Errorf("enum definition %d out of range", i)
		}
	}
	return nil
}
