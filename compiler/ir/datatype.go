package ir

import (
	"fmt"

	"github.com/wippyai/move2wasm/move"
)

// StructKind distinguishes plain structs from event structs
type StructKind uint8

const (
	StructCommon StructKind = iota
	StructEvent
)

// Field is one struct or variant field. Handle is the field handle index
// when bytecode borrows the field.
type Field struct {
	Handle *uint16
	Name   string
	Type   Type
}

// IStruct is a struct definition with concrete or parameterized field types
type IStruct struct {
	Fields     []Field
	TypeArgs   []Type
	Identifier string
	Module     move.ModuleID
	Index      uint16
	// FirstNonIndexed is the index of the first event field that is not
	// a log topic. Set for StructEvent only.
	FirstNonIndexed int
	Kind            StructKind
	HasKey          bool
	TypeParams      int
}

// Type returns the struct's intermediate type
func (s *IStruct) Type(tag VMHandled) Type {
	if len(s.TypeArgs) > 0 {
		return GenericStruct(s.Module, s.Index, s.TypeArgs, tag)
	}
	return Struct(s.Module, s.Index, tag)
}

// FieldTypes returns the field types in declaration order
func (s *IStruct) FieldTypes() []Type {
	out := make([]Type, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Type
	}
	return out
}

// FieldIndex returns the position of the named field
func (s *IStruct) FieldIndex(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// HeapSize is the size of the struct block: one pointer slot per field
func (s *IStruct) HeapSize() int {
	return 4 * len(s.Fields)
}

// Instantiate returns a copy with type parameters replaced by args. The
// receiver is not modified. Applied to a template it binds the struct's
// own parameters; applied to an instance it substitutes parameters of an
// enclosing generic function.
func (s *IStruct) Instantiate(args []Type) *IStruct {
	if s.TypeParams == 0 {
		return s
	}
	out := *s
	out.Fields = make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		out.Fields[i] = Field{Name: f.Name, Handle: f.Handle, Type: f.Type.Instantiate(args)}
	}
	out.TypeArgs = bindArgs(s.TypeArgs, args)
	return &out
}

func bindArgs(current, args []Type) []Type {
	if len(current) > 0 {
		return InstantiateAll(current, args)
	}
	return append([]Type{}, args...)
}

// Validate rejects reference fields and malformed field types
func (s *IStruct) Validate() error {
	for _, f := range s.Fields {
		if f.Type.IsReference() {
			return fmt.Errorf("field %s.%s is a reference", s.Identifier, f.Name)
		}
		if err := f.Type.Validate(); err != nil {
			return fmt.Errorf("field %s.%s: %w", s.Identifier, f.Name, err)
		}
	}
	return nil
}

// Variant is one enum variant
type Variant struct {
	Name   string
	Fields []Field
	Index  uint16
	// Belongs is the definition index of the owning enum
	Belongs uint16
}

// FieldTypes returns the variant's field types
func (v *Variant) FieldTypes() []Type {
	out := make([]Type, len(v.Fields))
	for i, f := range v.Fields {
		out[i] = f.Type
	}
	return out
}

// IEnum is an enum definition
type IEnum struct {
	Variants   []Variant
	TypeArgs   []Type
	Identifier string
	Module     move.ModuleID
	Index      uint16
	TypeParams int
}

// Type returns the enum's intermediate type
func (e *IEnum) Type() Type {
	if len(e.TypeArgs) > 0 {
		return GenericEnum(e.Module, e.Index, e.TypeArgs)
	}
	return Enum(e.Module, e.Index)
}

// MaxFields returns the field count of the widest variant
func (e *IEnum) MaxFields() int {
	n := 0
	for _, v := range e.Variants {
		n = max(n, len(v.Fields))
	}
	return n
}

// HeapSize is the size of the enum block: a 4-byte tag and one pointer
// slot per field of the widest variant
func (e *IEnum) HeapSize() int {
	return 4 + 4*e.MaxFields()
}

// IsSimple reports whether no variant carries fields
func (e *IEnum) IsSimple() bool {
	return e.MaxFields() == 0
}

// Instantiate returns a copy with type parameters replaced by args
func (e *IEnum) Instantiate(args []Type) *IEnum {
	if e.TypeParams == 0 {
		return e
	}
	out := *e
	out.Variants = make([]Variant, len(e.Variants))
	for i, v := range e.Variants {
		nv := v
		nv.Fields = make([]Field, len(v.Fields))
		for j, f := range v.Fields {
			nv.Fields[j] = Field{Name: f.Name, Handle: f.Handle, Type: f.Type.Instantiate(args)}
		}
		out.Variants[i] = nv
	}
	out.TypeArgs = bindArgs(e.TypeArgs, args)
	return &out
}

// Validate rejects references inside variant fields
func (e *IEnum) Validate() error {
	for _, v := range e.Variants {
		for _, f := range v.Fields {
			if f.Type.IsReference() {
				return fmt.Errorf("variant %s::%s field %s is a reference", e.Identifier, v.Name, f.Name)
			}
		}
	}
	return nil
}
