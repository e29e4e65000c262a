package compilation

import (
	"slices"

	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
)

// Registry holds the data of every module of a package and its
// dependencies, keyed by module identity
type Registry map[move.ModuleID]*ModuleData

// BuildRegistry creates ModuleData for every module, dependencies before
// dependents
func BuildRegistry(modules []*move.CompiledModule, opts Options) (Registry, error) {
	order, err := TopoSort(modules)
	if err != nil {
		return nil, err
	}
	reg := make(Registry, len(order))
	for _, m := range order {
		md, err := NewModuleData(m, reg, opts)
		if err != nil {
			return nil, err
		}
		reg[md.ID] = md
	}
	return reg, nil
}

// TopoSort orders modules so every module follows its dependencies.
// Duplicate identities keep the first occurrence.
func TopoSort(modules []*move.CompiledModule) ([]*move.CompiledModule, error) {
	byID := make(map[move.ModuleID]*move.CompiledModule, len(modules))
	var ids []move.ModuleID
	for _, m := range modules {
		id := m.Self()
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = m
		ids = append(ids, id)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[move.ModuleID]int, len(ids))
	out := make([]*move.CompiledModule, 0, len(ids))
	var visit func(id move.ModuleID, from move.ModuleID) error
	visit = func(id move.ModuleID, from move.ModuleID) error {
		m, ok := byID[id]
		if !ok {
			return errors.NotFound(errors.PhaseContext, errors.KindModuleNotFound,
				"module %s required by %s", id, from)
		}
		switch state[id] {
		case done:
			return nil
		case visiting:
			return errors.New(errors.PhaseContext, errors.KindInvalidData).
				Detail("cyclic module dependency through %s", id).Build()
		}
		state[id] = visiting
		for _, dep := range m.Dependencies() {
			if err := visit(dep, id); err != nil {
				return err
			}
		}
		state[id] = done
		out = append(out, m)
		return nil
	}
	for _, id := range ids {
		if err := visit(id, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Context resolves definitions for the compilation of one root module
type Context struct {
	Root    *ModuleData
	modules Registry
	structs map[string]*ir.IStruct
	enums   map[string]*ir.IEnum
}

// NewContext roots a context at module root of reg
func NewContext(root move.ModuleID, reg Registry) (*Context, error) {
	md, ok := reg[root]
	if !ok {
		return nil, errors.NotFound(errors.PhaseContext, errors.KindModuleNotFound, "%s", root)
	}
	return &Context{
		Root:    md,
		modules: reg,
		structs: make(map[string]*ir.IStruct),
		enums:   make(map[string]*ir.IEnum),
	}, nil
}

// ForModule returns a context rooted at another module of the registry.
// Instantiation caches are shared.
func (c *Context) ForModule(id move.ModuleID) (*Context, error) {
	if id == c.Root.ID {
		return c, nil
	}
	md, err := c.GetModuleDataByID(id)
	if err != nil {
		return nil, err
	}
	return &Context{Root: md, modules: c.modules, structs: c.structs, enums: c.enums}, nil
}

// Modules returns the identities of all modules in the registry, sorted
func (c *Context) Modules() []move.ModuleID {
	ids := make([]move.ModuleID, 0, len(c.modules))
	for id := range c.modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b move.ModuleID) int {
		if r := slices.Compare(a.Address[:], b.Address[:]); r != 0 {
			return r
		}
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return ids
}

// GetModuleDataByID looks up a module of the registry
func (c *Context) GetModuleDataByID(id move.ModuleID) (*ModuleData, error) {
	md, ok := c.modules[id]
	if !ok {
		return nil, errors.NotFound(errors.PhaseContext, errors.KindModuleNotFound, "%s", id)
	}
	return md, nil
}

// GetStructByIndex returns struct definition idx of module
func (c *Context) GetStructByIndex(module move.ModuleID, idx uint16) (*ir.IStruct, error) {
	md, err := c.GetModuleDataByID(module)
	if err != nil {
		return nil, err
	}
	if int(idx) >= len(md.Structs) {
		return nil, errors.NotFound(errors.PhaseContext, errors.KindStructNotFound, "%s struct %d", module, idx)
	}
	return md.Structs[idx], nil
}

// GetStructByDefinitionIdx returns struct definition idx of the root module
func (c *Context) GetStructByDefinitionIdx(idx uint16) (*ir.IStruct, error) {
	if int(idx) >= len(c.Root.Structs) {
		return nil, errors.NotFound(errors.PhaseContext, errors.KindStructWithDefinitionIdxNotFound,
			"struct definition %d", idx)
	}
	return c.Root.Structs[idx], nil
}

// GetStructByFieldHandle returns the struct owning field handle idx and
// the field's position
func (c *Context) GetStructByFieldHandle(idx uint16) (*ir.IStruct, int, error) {
	owner, ok := c.Root.fieldOwner[idx]
	if !ok {
		return nil, 0, errors.NotFound(errors.PhaseContext, errors.KindStructWithFieldIdxNotFound,
			"field handle %d", idx)
	}
	return c.Root.Structs[owner[0]], int(owner[1]), nil
}

// GetGenericStructByInstantiation returns struct instantiation idx,
// instantiated with its recorded arguments
func (c *Context) GetGenericStructByInstantiation(idx uint16) (*ir.IStruct, error) {
	if int(idx) >= len(c.Root.StructInstantiations) {
		return nil, errors.NotFound(errors.PhaseContext, errors.KindStructNotFound,
			"struct instantiation %d", idx)
	}
	inst := c.Root.StructInstantiations[idx]
	return c.Root.Structs[inst.Index].Instantiate(inst.TypeArgs), nil
}

// GetGenericStructByFieldInstantiation returns the instantiated struct
// owning field instantiation idx and the field's position
func (c *Context) GetGenericStructByFieldInstantiation(idx uint16) (*ir.IStruct, int, error) {
	if int(idx) >= len(c.Root.FieldInstantiations) {
		return nil, 0, errors.NotFound(errors.PhaseContext, errors.KindStructWithFieldIdxNotFound,
			"field instantiation %d", idx)
	}
	inst := c.Root.FieldInstantiations[idx]
	s, pos, err := c.GetStructByFieldHandle(inst.Index)
	if err != nil {
		return nil, 0, err
	}
	return s.Instantiate(inst.TypeArgs), pos, nil
}

// GetEnumByVariantHandle returns the enum a variant handle refers to
func (c *Context) GetEnumByVariantHandle(idx uint16) (*ir.IEnum, error) {
	if int(idx) >= len(c.Root.VariantHandles) {
		return nil, errors.NotFound(errors.PhaseContext, errors.KindEnumNotFound, "variant handle %d", idx)
	}
	return c.Root.Enums[c.Root.VariantHandles[idx].Enum], nil
}

// GetVariantPosition returns the 0-based variant position of a variant
// handle
func (c *Context) GetVariantPosition(idx uint16) (uint16, error) {
	if int(idx) >= len(c.Root.VariantHandles) {
		return 0, errors.NotFound(errors.PhaseContext, errors.KindEnumNotFound, "variant handle %d", idx)
	}
	return c.Root.VariantHandles[idx].Position, nil
}

// GetEnumByVariantInstantiation returns the instantiated enum and variant
// position of a variant instantiation handle
func (c *Context) GetEnumByVariantInstantiation(idx uint16) (*ir.IEnum, uint16, error) {
	if int(idx) >= len(c.Root.VariantInstantiations) {
		return nil, 0, errors.NotFound(errors.PhaseContext, errors.KindEnumNotFound,
			"variant instantiation handle %d", idx)
	}
	ref := c.Root.VariantInstantiations[idx]
	inst := c.Root.EnumInstantiations[ref.Enum]
	return c.Root.Enums[inst.Index].Instantiate(inst.TypeArgs), ref.Position, nil
}

// GetFunction returns the function behind a function handle of the root
// module
func (c *Context) GetFunction(handle uint16) (*Function, error) {
	if int(handle) >= len(c.Root.Functions) {
		return nil, errors.NotFound(errors.PhaseContext, errors.KindFunctionNotFound, "function handle %d", handle)
	}
	return c.Root.Functions[handle], nil
}

// GetFunctionInstantiation returns the function and type arguments of a
// function instantiation of the root module
func (c *Context) GetFunctionInstantiation(idx uint16) (*Function, []ir.Type, error) {
	if int(idx) >= len(c.Root.FunctionInsts) {
		return nil, nil, errors.NotFound(errors.PhaseContext, errors.KindFunctionNotFound,
			"function instantiation %d", idx)
	}
	inst := c.Root.FunctionInsts[idx]
	f, err := c.GetFunction(inst.Index)
	if err != nil {
		return nil, nil, err
	}
	return f, inst.TypeArgs, nil
}

// ResolveDefinition finds the definition of f in its declaring module
func (c *Context) ResolveDefinition(f *Function) (*Function, error) {
	if f.Defined {
		return f, nil
	}
	md, err := c.GetModuleDataByID(f.Module)
	if err != nil {
		return nil, err
	}
	def, ok := md.Definition(f.Name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLink, errors.KindFunctionNotFound, "%s", f.QualifiedName())
	}
	return def, nil
}

// TypeFromToken converts a token of the root module
func (c *Context) TypeFromToken(t move.SignatureToken) (ir.Type, error) {
	return c.Root.TypeFromToken(t)
}

// Struct returns the struct definition of t, instantiated with t's type
// arguments
func (c *Context) Struct(t ir.Type) (*ir.IStruct, error) {
	if !t.IsStruct() {
		return nil, errors.TypeMismatch(errors.PhaseContext, typeName("struct"), t)
	}
	key := t.Key()
	if s, ok := c.structs[key]; ok {
		return s, nil
	}
	s, err := c.GetStructByIndex(t.Module, t.Index)
	if err != nil {
		return nil, err
	}
	if t.Kind == ir.KindGenericStruct {
		s = s.Instantiate(t.TypeArgs)
	}
	c.structs[key] = s
	return s, nil
}

// MustStruct is Struct for types the verifier guarantees to exist
func (c *Context) MustStruct(t ir.Type) *ir.IStruct {
	s, err := c.Struct(t)
	if err != nil {
		panic(err)
	}
	return s
}

// Enum returns the enum definition of t, instantiated with t's type
// arguments
func (c *Context) Enum(t ir.Type) (*ir.IEnum, error) {
	if !t.IsEnum() {
		return nil, errors.TypeMismatch(errors.PhaseContext, typeName("enum"), t)
	}
	key := t.Key()
	if e, ok := c.enums[key]; ok {
		return e, nil
	}
	md, err := c.GetModuleDataByID(t.Module)
	if err != nil {
		return nil, err
	}
	if int(t.Index) >= len(md.Enums) {
		return nil, errors.NotFound(errors.PhaseContext, errors.KindEnumNotFound, "%s enum %d", t.Module, t.Index)
	}
	e := md.Enums[t.Index]
	if t.Kind == ir.KindGenericEnum {
		e = e.Instantiate(t.TypeArgs)
	}
	c.enums[key] = e
	return e, nil
}

// MustEnum is Enum for types the verifier guarantees to exist
func (c *Context) MustEnum(t ir.Type) *ir.IEnum {
	e, err := c.Enum(t)
	if err != nil {
		panic(err)
	}
	return e
}

// DatatypeName renders the qualified name of a struct or enum type
// without type arguments
func (c *Context) DatatypeName(t ir.Type) string {
	switch {
	case t.IsStruct():
		return t.Module.String() + "::" + c.MustStruct(t).Identifier
	case t.IsEnum():
		return t.Module.String() + "::" + c.MustEnum(t).Identifier
	}
	return t.String()
}

type typeName string

func (n typeName) String() string { return string(n) }

// StructType returns the intermediate type of s, tagged when s is one of
// the framework structs the compiler handles natively
func StructType(s *ir.IStruct) ir.Type {
	return s.Type(vmTag(s.Module, s.Identifier))
}

// NamedStruct returns the type of the non-generic struct name declared in
// module
func (c *Context) NamedStruct(module move.ModuleID, name string) (ir.Type, error) {
	md, err := c.GetModuleDataByID(module)
	if err != nil {
		return ir.Type{}, err
	}
	idx, ok := md.Module.FindStruct(name)
	if !ok {
		return ir.Type{}, errors.NotFound(errors.PhaseContext, errors.KindStructNotFound, "%s::%s", module, name)
	}
	return StructType(md.Structs[idx]), nil
}
