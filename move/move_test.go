package move

import (
	"bytes"
	"testing"
)

func TestAddress_String(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0x1", "0x1"},
		{"0x2", "0x2"},
		{"0x0", "0x0"},
		{"0xcafe", "0xcafe"},
		{"0x00000000000000000000000000000000000000000000000000000000000000ab", "0xab"},
		{"0x7e5f4552091a69125d5dfcb7b8c2659029395bdf", "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := ParseAddress(tt.in)
			if err != nil {
				t.Fatalf("ParseAddress: %v", err)
			}
			if got := a.String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAddress_ParseErrors(t *testing.T) {
	for _, in := range []string{"", "0x", "0xzz", "0x" + string(bytes.Repeat([]byte("1"), 65))} {
		if _, err := ParseAddress(in); err == nil {
			t.Errorf("ParseAddress(%q) succeeded, want error", in)
		}
	}
}

func TestAddress_EVM(t *testing.T) {
	a := MustParseAddress("0x7e5f4552091a69125d5dfcb7b8c2659029395bdf")
	evm := a.EVM()
	if evm[0] != 0x7e || evm[19] != 0xdf {
		t.Errorf("EVM() = %x", evm)
	}
}

func TestDecodeConstant(t *testing.T) {
	u128 := make([]byte, 16)
	u128[0] = 0x01
	u128[15] = 0x80

	tests := []struct {
		name string
		c    Constant
		want Value
	}{
		{"bool", Constant{Type: Bool, Data: []byte{1}}, Value{Kind: TokenBool, Uint: 1}},
		{"u16", Constant{Type: U16, Data: []byte{0x34, 0x12}}, Value{Kind: TokenU16, Uint: 0x1234}},
		{"u64", Constant{Type: U64, Data: []byte{1, 0, 0, 0, 0, 0, 0, 0x80}}, Value{Kind: TokenU64, Uint: 0x8000000000000001}},
		{"u128", Constant{Type: U128, Data: u128}, Value{Kind: TokenU128, Bytes: u128}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeConstant(tt.c)
			if err != nil {
				t.Fatalf("DecodeConstant: %v", err)
			}
			if got.Kind != tt.want.Kind || got.Uint != tt.want.Uint || !bytes.Equal(got.Bytes, tt.want.Bytes) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if enc := EncodeConstant(got); !bytes.Equal(enc, tt.c.Data) {
				t.Errorf("EncodeConstant = %x, want %x", enc, tt.c.Data)
			}
		})
	}
}

func TestDecodeConstant_NestedVector(t *testing.T) {
	data := []byte{2, 3, 'a', 'b', 'c', 0}
	v, err := DecodeConstant(Constant{Type: VectorOf(VectorOf(U8)), Data: data})
	if err != nil {
		t.Fatalf("DecodeConstant: %v", err)
	}
	if len(v.Elems) != 2 || len(v.Elems[0].Elems) != 3 || len(v.Elems[1].Elems) != 0 {
		t.Fatalf("unexpected shape: %+v", v)
	}
	if v.Elems[0].Elems[2].Uint != 'c' {
		t.Errorf("element = %d, want %d", v.Elems[0].Elems[2].Uint, 'c')
	}
}

func TestDecodeConstant_Malformed(t *testing.T) {
	tests := []struct {
		name string
		c    Constant
	}{
		{"trailing bytes", Constant{Type: U8, Data: []byte{1, 2}}},
		{"truncated", Constant{Type: U32, Data: []byte{1, 2}}},
		{"bad bool", Constant{Type: Bool, Data: []byte{2}}},
		{"vector too long", Constant{Type: VectorOf(U8), Data: []byte{5, 1}}},
		{"signer", Constant{Type: Signer, Data: []byte{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeConstant(tt.c); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPackage_RoundTrip(t *testing.T) {
	addr := MustParseAddress("0xcafe")
	mod := CompiledModule{
		ModuleHandles:      []ModuleHandle{{Address: 0, Name: 0}},
		AddressIdentifiers: []Address{addr},
		Identifiers:        []string{"counter", "get"},
		Signatures:         []Signature{{}, {U64}},
		FunctionHandles:    []FunctionHandle{{Module: 0, Name: 1, Parameters: 0, Return: 1}},
		FunctionDefs: []FunctionDef{{
			Function:   0,
			Visibility: VisibilityPublic,
			Code: &CodeUnit{Locals: 0, Code: []Bytecode{
				{Op: OpLdU64, Value: 42},
				{Op: OpRet},
			}},
		}},
	}
	pkg := &Package{Name: "counter", Modules: []CompiledModule{mod}}
	data, err := pkg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	back, err := DecodePackage(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodePackage: %v", err)
	}
	if back.Name != "counter" || len(back.Modules) != 1 {
		t.Fatalf("unexpected package %+v", back)
	}
	m := back.Modules[0]
	if m.Self().String() != "0xcafe::counter" {
		t.Errorf("Self() = %s", m.Self())
	}
	code := m.FunctionDefs[0].Code.Code
	if len(code) != 2 || code[0].Op != OpLdU64 || code[0].Value != 42 {
		t.Errorf("code = %v", code)
	}
	if idx, ok := m.FindFunction("get"); !ok || idx != 0 {
		t.Errorf("FindFunction(get) = %d, %v", idx, ok)
	}
}

func TestPackage_RejectsInvalidModule(t *testing.T) {
	pkg := &Package{Modules: []CompiledModule{{SelfHandle: 3}}}
	data, err := pkg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if _, err := DecodePackage(bytes.NewReader(data)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestOpcode_Classification(t *testing.T) {
	if !OpBranch.IsTerminator() || !OpBranch.IsBranch() {
		t.Error("Branch must be a terminating branch")
	}
	if OpBrTrue.IsTerminator() {
		t.Error("BrTrue falls through")
	}
	if OpAdd.String() != "Add" || OpVariantSwitch.String() != "VariantSwitch" {
		t.Errorf("names: %s %s", OpAdd, OpVariantSwitch)
	}
}
