package compilation

import (
	"errors"
	"testing"

	"github.com/wippyai/move2wasm/compiler/ir"
	cerrors "github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/move/builder"
	"github.com/wippyai/move2wasm/move/framework"
)

var testAddr = move.MustParseAddress("0xcafe")

const (
	abKey      = move.AbilitySet(move.AbilityKey)
	abCopyDrop = move.AbilitySet(move.AbilityCopy | move.AbilityDrop)
)

func fixture(t *testing.T) (*builder.ModuleBuilder, *move.CompiledModule) {
	t.Helper()
	b := builder.New(testAddr, "shapes")
	uid := b.ImportType(framework.ObjectModule, framework.UIDName, move.AbilitySet(move.AbilityStore))
	point := b.Struct("Point", abCopyDrop, builder.F("x", move.U64), builder.F("y", move.U64))
	b.Struct("Board", abKey, builder.F("id", uid), builder.F("origin", point.Token()))
	boxed := b.GenericStruct("Box", abCopyDrop, 1, builder.F("value", move.TypeParam(0)), builder.F("tag", move.U8))
	shape := b.Enum("Shape", abCopyDrop,
		builder.Variant{Name: "Empty"},
		builder.Variant{Name: "Circle", Fields: []builder.Field{builder.F("r", move.U32)}},
		builder.Variant{Name: "Rect", Fields: []builder.Field{builder.F("w", move.U16), builder.F("h", move.U16)}},
	)
	opt := b.GenericEnum("Maybe", abCopyDrop, 1,
		builder.Variant{Name: "None"},
		builder.Variant{Name: "Some", Fields: []builder.Field{builder.F("v", move.TypeParam(0))}},
	)

	point.Field("y")
	boxed.FieldInstantiation("value", move.U128)
	boxed.Instantiation(move.VectorOf(move.U8))
	shape.Variant("Rect")
	opt.VariantInstantiation("Some", move.AddressToken)

	b.AddFunction(builder.Function{
		Name:       "norm",
		Params:     []move.SignatureToken{move.RefOf(point.Token())},
		Returns:    []move.SignatureToken{move.U64},
		Locals:     []move.SignatureToken{move.U64},
		Visibility: move.VisibilityPublic,
		Code:       []move.Bytecode{builder.LdU64(0), builder.Op(move.OpRet)},
	})
	return b, b.Build()
}

func registry(t *testing.T, m *move.CompiledModule, opts Options) Registry {
	t.Helper()
	mods := append([]*move.CompiledModule{m}, framework.Modules()...)
	reg, err := BuildRegistry(mods, opts)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	return reg
}

func TestContext_Lookups(t *testing.T) {
	_, m := fixture(t)
	reg := registry(t, m, Options{})
	ctx, err := NewContext(m.Self(), reg)
	if err != nil {
		t.Fatal(err)
	}

	board, err := ctx.GetStructByDefinitionIdx(1)
	if err != nil {
		t.Fatal(err)
	}
	if board.Identifier != "Board" || !board.HasKey {
		t.Errorf("Board = %+v", board)
	}
	if tag := board.Fields[0].Type.Tag; tag != ir.VMUID {
		t.Errorf("Board.id tag = %d, want UID", tag)
	}
	if board.Fields[0].Type.Module != framework.ObjectModule {
		t.Errorf("UID resolved to %s", board.Fields[0].Type.Module)
	}

	point, pos, err := ctx.GetStructByFieldHandle(0)
	if err != nil {
		t.Fatal(err)
	}
	if point.Identifier != "Point" || pos != 1 {
		t.Errorf("field handle 0 -> %s.%d", point.Identifier, pos)
	}
	if point.Fields[1].Handle == nil || point.Fields[0].Handle != nil {
		t.Error("only borrowed fields carry a handle")
	}

	box, pos, err := ctx.GetGenericStructByFieldInstantiation(0)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 0 || !box.Fields[0].Type.Equal(ir.U128) || len(box.TypeArgs) != 1 {
		t.Errorf("Box<u128> = %+v", box)
	}
	tmpl, _ := ctx.GetStructByIndex(m.Self(), 2)
	if tmpl.Fields[0].Type.Kind != ir.KindTypeParameter {
		t.Error("instantiation mutated the template")
	}

	vec, err := ctx.GetGenericStructByInstantiation(0)
	if err != nil {
		t.Fatal(err)
	}
	if !vec.Fields[0].Type.Equal(ir.Vector(ir.U8)) {
		t.Errorf("Box<vector<u8>>.value = %s", vec.Fields[0].Type)
	}

	shape, err := ctx.GetEnumByVariantHandle(0)
	if err != nil {
		t.Fatal(err)
	}
	if p, _ := ctx.GetVariantPosition(0); shape.Identifier != "Shape" || p != 2 {
		t.Errorf("variant handle 0 -> %s #%d", shape.Identifier, p)
	}
	if shape.HeapSize() != 12 || shape.IsSimple() {
		t.Errorf("Shape heap size = %d", shape.HeapSize())
	}

	maybe, p, err := ctx.GetEnumByVariantInstantiation(0)
	if err != nil {
		t.Fatal(err)
	}
	if p != 1 || !maybe.Variants[1].Fields[0].Type.Equal(ir.Address) {
		t.Errorf("Maybe<address> = %+v", maybe)
	}

	fn, err := ctx.GetFunction(0)
	if err != nil {
		t.Fatal(err)
	}
	if fn.Name != "norm" || !fn.Defined || len(fn.Locals) != 2 {
		t.Errorf("norm = %+v", fn)
	}
	if !fn.Params[0].Equal(ir.Ref(point.Type(ir.VMNone))) {
		t.Errorf("norm param = %s", fn.Params[0])
	}
}

func TestContext_Errors(t *testing.T) {
	_, m := fixture(t)
	ctx, err := NewContext(m.Self(), registry(t, m, Options{}))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		err  error
		kind cerrors.Kind
	}{
		{"definition", second(ctx.GetStructByDefinitionIdx(40)), cerrors.KindStructWithDefinitionIdxNotFound},
		{"field handle", third(ctx.GetStructByFieldHandle(9)), cerrors.KindStructWithFieldIdxNotFound},
		{"variant", second(ctx.GetEnumByVariantHandle(5)), cerrors.KindEnumNotFound},
		{"module", second(ctx.GetModuleDataByID(move.ModuleID{Address: testAddr, Name: "missing"})), cerrors.KindModuleNotFound},
		{"index", second(ctx.GetStructByIndex(m.Self(), 99)), cerrors.KindStructNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e *cerrors.Error
			if !errors.As(tt.err, &e) || e.Kind != tt.kind {
				t.Errorf("err = %v, want kind %s", tt.err, tt.kind)
			}
		})
	}
}

func second[T any](_ T, err error) error { return err }

func third[T any, U any](_ T, _ U, err error) error { return err }

func TestNewModuleData_RejectsAcquires(t *testing.T) {
	b := builder.New(testAddr, "globals")
	r := b.Struct("R", abKey, builder.F("v", move.U8))
	b.AddFunction(builder.Function{
		Name:     "take",
		Acquires: []uint16{r.Def},
		Code:     []move.Bytecode{builder.Op(move.OpRet)},
	})
	_, err := BuildRegistry(append([]*move.CompiledModule{b.Build()}, framework.Modules()...), Options{})
	if !errors.Is(err, &cerrors.Error{Phase: cerrors.PhaseContext, Kind: cerrors.KindAcquires}) {
		t.Fatalf("err = %v, want acquires rejection", err)
	}
}

func TestNewModuleData_MissingDependency(t *testing.T) {
	_, m := fixture(t)
	_, err := BuildRegistry([]*move.CompiledModule{m}, Options{})
	if !errors.Is(err, &cerrors.Error{Phase: cerrors.PhaseContext, Kind: cerrors.KindModuleNotFound}) {
		t.Fatalf("err = %v, want module not found", err)
	}
}

func TestNewModuleData_Events(t *testing.T) {
	b := builder.New(testAddr, "token")
	b.Struct("Transfer", abCopyDrop,
		builder.F("from", move.AddressToken), builder.F("to", move.AddressToken), builder.F("amount", move.U64))
	m := b.Build()

	opts := Options{Events: map[string]int{"0xcafe::token::Transfer": 2}}
	ctx, err := NewContext(m.Self(), registry(t, m, opts))
	if err != nil {
		t.Fatal(err)
	}
	s, _ := ctx.GetStructByDefinitionIdx(0)
	if s.Kind != ir.StructEvent || s.FirstNonIndexed != 2 {
		t.Errorf("Transfer kind = %d first non-indexed = %d", s.Kind, s.FirstNonIndexed)
	}

	opts.Events["0xcafe::token::Transfer"] = 4
	if _, err := BuildRegistry(append([]*move.CompiledModule{m}, framework.Modules()...), opts); err == nil {
		t.Error("expected error for more indexed fields than fields")
	}
}

func TestTopoSort(t *testing.T) {
	mods := append([]*move.CompiledModule{}, framework.Modules()...)
	// reverse so that dependents come first
	for i, j := 0, len(mods)-1; i < j; i, j = i+1, j-1 {
		mods[i], mods[j] = mods[j], mods[i]
	}
	order, err := TopoSort(mods)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[move.ModuleID]bool{}
	for _, m := range order {
		for _, dep := range m.Dependencies() {
			if !seen[dep] {
				t.Errorf("%s ordered before its dependency %s", m.Self(), dep)
			}
		}
		seen[m.Self()] = true
	}
}
