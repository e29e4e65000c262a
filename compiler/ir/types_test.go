package ir

import (
	"testing"

	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/wasm"
)

var cafe = move.ModuleID{Address: move.MustParseAddress("0xcafe"), Name: "m"}

func TestType_Layout(t *testing.T) {
	point := Struct(cafe, 0, VMNone)
	tests := []struct {
		typ    Type
		wasm   wasm.ValType
		box    int
		stack  bool
		heap   int
		string string
	}{
		{Bool, wasm.ValI32, 4, true, 0, "bool"},
		{U8, wasm.ValI32, 4, true, 0, "u8"},
		{U32, wasm.ValI32, 4, true, 0, "u32"},
		{U64, wasm.ValI64, 8, true, 0, "u64"},
		{U128, wasm.ValI32, 4, false, 16, "u128"},
		{U256, wasm.ValI32, 4, false, 32, "u256"},
		{Address, wasm.ValI32, 4, false, 32, "address"},
		{Signer, wasm.ValI32, 4, false, 32, "signer"},
		{Vector(U64), wasm.ValI32, 4, false, -1, "vector<u64>"},
		{Ref(U64), wasm.ValI32, 4, false, -1, "&u64"},
		{MutRef(point), wasm.ValI32, 4, false, -1, "&mut 0xcafe::m#0"},
	}
	for _, tt := range tests {
		t.Run(tt.string, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.string {
				t.Errorf("String() = %q", got)
			}
			if tt.typ.WasmType() != tt.wasm {
				t.Errorf("WasmType() = %v", tt.typ.WasmType())
			}
			if tt.typ.BoxSize() != tt.box || tt.typ.VectorStride() != tt.box {
				t.Errorf("BoxSize() = %d, VectorStride() = %d", tt.typ.BoxSize(), tt.typ.VectorStride())
			}
			if tt.typ.IsStackValue() != tt.stack {
				t.Errorf("IsStackValue() = %v", tt.typ.IsStackValue())
			}
			if tt.heap > 0 && tt.typ.HeapSize() != tt.heap {
				t.Errorf("HeapSize() = %d", tt.typ.HeapSize())
			}
		})
	}
}

func TestType_TypeParameterPanics(t *testing.T) {
	queries := map[string]func(Type){
		"WasmType":     func(t Type) { t.WasmType() },
		"BoxSize":      func(t Type) { t.BoxSize() },
		"IsStackValue": func(t Type) { t.IsStackValue() },
		"HeapSize":     func(t Type) { t.HeapSize() },
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected a panic")
				}
			}()
			q(TypeParameter(0))
		})
	}
}

func TestType_Identity(t *testing.T) {
	boxU64 := GenericStruct(cafe, 1, []Type{U64}, VMNone)
	boxU8 := GenericStruct(cafe, 1, []Type{U8}, VMNone)

	if !Struct(cafe, 0, VMUID).Equal(Struct(cafe, 0, VMNone)) {
		t.Error("tags took part in equality")
	}
	if boxU64.Equal(boxU8) || boxU64.Key() == boxU8.Key() {
		t.Error("instantiations with different arguments are equal")
	}
	if Struct(cafe, 0, VMNone).Equal(Enum(cafe, 0)) {
		t.Error("struct equals enum with the same index")
	}
	if got := Vector(boxU64).Key(); got != "vec<S:0xcafe::m::1<u64>>" {
		t.Errorf("Key() = %q", got)
	}
	for _, typ := range []Type{U64, Ref(U64), MutRef(U64)} {
		if !typ.Base().Equal(U64) {
			t.Errorf("%s.Base() = %s", typ, typ.Base())
		}
	}
}

func TestType_KeyDistinct(t *testing.T) {
	other := move.ModuleID{Address: cafe.Address, Name: "n"}
	types := []Type{
		Struct(cafe, 0, VMNone),
		Enum(cafe, 0),
		Struct(cafe, 1, VMNone),
		Struct(other, 0, VMNone),
		GenericStruct(cafe, 0, []Type{U8}, VMNone),
		GenericEnum(cafe, 0, []Type{U8}),
		GenericEnum(cafe, 0, []Type{Enum(cafe, 0)}),
		GenericEnum(cafe, 0, []Type{Struct(cafe, 0, VMNone)}),
		Vector(Enum(cafe, 0)),
		Vector(Struct(cafe, 0, VMNone)),
		Ref(Enum(cafe, 0)),
	}
	seen := make(map[string]Type)
	for _, typ := range types {
		k := typ.Key()
		if prev, dup := seen[k]; dup {
			t.Errorf("%s and %s share key %q", prev, typ, k)
		}
		seen[k] = typ
	}
}

func TestType_Instantiate(t *testing.T) {
	generic := Vector(GenericStruct(cafe, 1, []Type{TypeParameter(1)}, VMNone))
	if !generic.HasTypeParameter() {
		t.Fatal("HasTypeParameter() = false")
	}
	got := generic.Instantiate([]Type{U8, Address})
	want := Vector(GenericStruct(cafe, 1, []Type{Address}, VMNone))
	if !got.Equal(want) || got.HasTypeParameter() {
		t.Errorf("Instantiate = %s, want %s", got, want)
	}
	if generic.Elem().TypeArgs[0].Kind != KindTypeParameter {
		t.Error("Instantiate modified its receiver")
	}

	defer func() {
		if recover() == nil {
			t.Error("out of range parameter did not panic")
		}
	}()
	TypeParameter(2).Instantiate([]Type{U8})
}

func TestType_Validate(t *testing.T) {
	tests := []struct {
		typ Type
		ok  bool
	}{
		{Ref(Signer), true},
		{MutRef(Vector(U8)), true},
		{MutRef(Signer), false},
		{Ref(Ref(U8)), false},
		{Vector(Ref(U8)), false},
		{GenericStruct(cafe, 0, []Type{Vector(MutRef(U8))}, VMNone), false},
	}
	for _, tt := range tests {
		if err := tt.typ.Validate(); (err == nil) != tt.ok {
			t.Errorf("Validate(%s) = %v", tt.typ, err)
		}
	}
}

func TestIStruct_Instantiate(t *testing.T) {
	h := uint16(3)
	tmpl := &IStruct{
		Identifier: "Pair",
		Module:     cafe,
		Index:      2,
		TypeParams: 2,
		Fields: []Field{
			{Name: "a", Type: TypeParameter(0), Handle: &h},
			{Name: "b", Type: Vector(TypeParameter(1))},
		},
	}
	inst := tmpl.Instantiate([]Type{U64, Bool})
	if tmpl.Fields[0].Type.Kind != KindTypeParameter {
		t.Error("template was modified")
	}
	if !inst.Fields[1].Type.Equal(Vector(Bool)) || inst.Fields[0].Handle != &h {
		t.Errorf("fields = %+v", inst.Fields)
	}
	if got := inst.Type(VMNone); !got.Equal(GenericStruct(cafe, 2, []Type{U64, Bool}, VMNone)) {
		t.Errorf("Type() = %s", got)
	}
	if inst.HeapSize() != 8 {
		t.Errorf("HeapSize() = %d", inst.HeapSize())
	}
	if i, ok := inst.FieldIndex("b"); !ok || i != 1 {
		t.Errorf("FieldIndex(b) = %d, %v", i, ok)
	}

	bad := &IStruct{Identifier: "R", Fields: []Field{{Name: "r", Type: Ref(U8)}}}
	if bad.Validate() == nil {
		t.Error("reference field accepted")
	}
}

func TestIEnum_Layout(t *testing.T) {
	shape := &IEnum{
		Identifier: "Shape",
		Module:     cafe,
		Variants: []Variant{
			{Name: "Dot"},
			{Name: "Rect", Index: 1, Fields: []Field{{Name: "w", Type: U64}, {Name: "h", Type: U64}}},
		},
	}
	if shape.MaxFields() != 2 || shape.HeapSize() != 12 || shape.IsSimple() {
		t.Errorf("MaxFields %d HeapSize %d", shape.MaxFields(), shape.HeapSize())
	}
	color := &IEnum{Variants: []Variant{{Name: "Red"}, {Name: "Blue", Index: 1}}}
	if !color.IsSimple() || color.HeapSize() != 4 {
		t.Errorf("simple enum HeapSize %d", color.HeapSize())
	}

	opt := &IEnum{
		Identifier: "Opt",
		TypeParams: 1,
		Variants:   []Variant{{Name: "None"}, {Name: "Some", Index: 1, Fields: []Field{{Name: "v", Type: TypeParameter(0)}}}},
	}
	if got := opt.Instantiate([]Type{U128}).Variants[1].Fields[0].Type; !got.Equal(U128) {
		t.Errorf("instantiated field = %s", got)
	}
	if opt.Variants[1].Fields[0].Type.Kind != KindTypeParameter {
		t.Error("template was modified")
	}
}
