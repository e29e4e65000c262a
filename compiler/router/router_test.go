package router

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/move2wasm/compiler/compilation"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/compiler/translate"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/move/builder"
	"github.com/wippyai/move2wasm/move/framework"
	"github.com/wippyai/move2wasm/wasm"
)

var testAddr = move.MustParseAddress("0xcafe")

func toks(ts ...move.SignatureToken) []move.SignatureToken { return ts }

func ret() []move.Bytecode { return []move.Bytecode{builder.Op(move.OpRet)} }

func newRouter(t *testing.T, m *move.CompiledModule, opts Options) *Router {
	t.Helper()
	mods := append([]*move.CompiledModule{m}, framework.Modules()...)
	reg, err := compilation.BuildRegistry(mods, compilation.Options{})
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	ctx, err := compilation.NewContext(m.Self(), reg)
	if err != nil {
		t.Fatal(err)
	}
	b := wasm.NewModuleBuilder()
	tr := translate.New(rtlib.New(b), ctx, translate.NewTable(b))
	return New(tr, opts)
}

// shapes builds a module whose functions exercise every parameter kind
func shapes() *move.CompiledModule {
	b := builder.New(testAddr, "shapes")
	uid := b.ImportType(framework.ObjectModule, framework.UIDName, move.AbilitySet(move.AbilityStore))
	txc := b.ImportType(framework.TxContextModule, framework.TxContextName, move.AbilitySet(move.AbilityDrop))
	item := b.Struct("Item", move.AbilitySet(move.AbilityKey), builder.F("id", uid), builder.F("n", move.U8)).Token()
	pair := b.Struct("Pair", move.AbilitySet(move.AbilityCopy|move.AbilityDrop),
		builder.F("a", move.U64), builder.F("b", move.VectorOf(move.U8))).Token()

	pub := func(name string, params, returns []move.SignatureToken) {
		b.AddFunction(builder.Function{Name: name, Params: params, Returns: returns, Visibility: move.VisibilityPublic, Code: ret()})
	}
	pub("plain_args", toks(move.Bool, move.U128, move.AddressToken, move.VectorOf(move.U16)), toks(move.U256))
	pub("with_signer", toks(move.RefOf(move.Signer), move.U64, move.MutRefOf(txc)), nil)
	pub("by_value_signer", toks(move.Signer), nil)
	pub("objects", toks(item, move.RefOf(item), move.MutRefOf(item)), nil)
	pub("structs", toks(pair, move.RefOf(pair)), toks(pair))
	pub("reads", toks(move.RefOf(move.U64)), toks(move.RefOf(move.U64)))
	b.AddFunction(builder.Function{Name: "entry_only", Entry: true, Code: ret()})
	b.AddFunction(builder.Function{Name: "hidden", Code: ret()})
	b.AddFunction(builder.Function{Name: "friendly", Visibility: move.VisibilityFriend, Code: ret()})
	b.AddFunction(builder.Function{
		Name:       "generic",
		TypeParams: []move.AbilitySet{0},
		Params:     toks(move.TypeParam(0)),
		Visibility: move.VisibilityPublic,
		Code:       ret(),
	})
	return b.Build()
}

func TestAddModule_Signatures(t *testing.T) {
	r := newRouter(t, shapes(), Options{CamelCase: true})
	pending, err := r.AddModule()
	if err != nil {
		t.Fatalf("AddModule: %v", err)
	}
	want := []string{
		"plainArgs(bool,uint128,address,uint16[])",
		"withSigner(uint64)",
		"byValueSigner()",
		"objects(bytes32,bytes32,bytes32)",
		"structs((uint64,uint8[]),(uint64,uint8[]))",
		"reads(uint64)",
		"entry_only()",
	}
	routes := r.Routes()
	if len(routes) != len(want) {
		t.Fatalf("%d routes, want %d", len(routes), len(want))
	}
	for i, rt := range routes {
		if rt.Signature != want[i] {
			t.Errorf("route %d: %q, want %q", i, rt.Signature, want[i])
		}
		if sel := crypto.Keccak256([]byte(rt.Signature))[:4]; string(sel) != string(rt.Selector[:]) {
			t.Errorf("%s: selector %x, want %x", rt.Signature, rt.Selector, sel)
		}
	}
	returns := map[string]string{"plainArgs": "uint256", "structs": "(uint64,uint8[])", "reads": "uint64"}
	for _, rt := range routes {
		name := rt.Signature[:strings.Index(rt.Signature, "(")]
		got := strings.Join(rt.Returns, ",")
		if got != returns[name] {
			t.Errorf("%s returns %q, want %q", name, got, returns[name])
		}
	}
	if len(pending) != len(want) {
		t.Errorf("%d pending entries, want %d", len(pending), len(want))
	}
}

func TestAddModule_SnakeCase(t *testing.T) {
	r := newRouter(t, shapes(), Options{})
	if _, err := r.AddModule(); err != nil {
		t.Fatalf("AddModule: %v", err)
	}
	if got := r.Routes()[0].Signature; got != "plain_args(bool,uint128,address,uint16[])" {
		t.Errorf("signature %q", got)
	}
}

func TestRoutable(t *testing.T) {
	m := shapes()
	r := newRouter(t, m, Options{})
	tests := map[string]bool{
		"plain_args": true,
		"entry_only": true,
		"hidden":     false,
		"friendly":   false,
		"generic":    false,
	}
	for name, want := range tests {
		fn, ok := r.tr.Ctx.Root.Definition(name)
		if !ok {
			t.Fatalf("no definition %s", name)
		}
		if got := Routable(fn); got != want {
			t.Errorf("Routable(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	r := newRouter(t, shapes(), Options{})
	tests := []struct {
		name  string
		kinds []paramKind
	}{
		{"plain_args", []paramKind{plain, plain, plain, plain}},
		{"with_signer", []paramKind{signerRef, plain, txContextRef}},
		{"by_value_signer", []paramKind{signer}},
		{"objects", []paramKind{object, objectRef, objectMut}},
		{"structs", []paramKind{plain, byRef}},
		{"reads", []paramKind{byRef}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, ok := r.tr.Ctx.Root.Definition(tt.name)
			if !ok {
				t.Fatalf("no definition %s", tt.name)
			}
			params, err := r.classify(fn)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if len(params) != len(tt.kinds) {
				t.Fatalf("%d params, want %d", len(params), len(tt.kinds))
			}
			for i, p := range params {
				if p.kind != tt.kinds[i] {
					t.Errorf("param %d: kind %d, want %d", i, p.kind, tt.kinds[i])
				}
			}
		})
	}
}

func TestAdd_ByValueParams(t *testing.T) {
	b := builder.New(testAddr, "counter")
	b.AddFunction(builder.Function{
		Name:       "increment",
		Params:     toks(move.Bool, move.U16, move.U64),
		Returns:    toks(move.U32, move.U16, move.U64),
		Visibility: move.VisibilityPublic,
		Code: []move.Bytecode{
			builder.LdU32(2), builder.Idx(move.OpMoveLoc, 1), builder.Idx(move.OpMoveLoc, 2), builder.Op(move.OpRet),
		},
	})
	r := newRouter(t, b.Build(), Options{CamelCase: true})
	if _, err := r.AddModule(); err != nil {
		t.Fatalf("AddModule: %v", err)
	}
	if got := r.Routes()[0].Signature; got != "increment(bool,uint16,uint64)" {
		t.Errorf("signature %q", got)
	}
}

func TestAdd_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params []move.SignatureToken
		kind   string
	}{
		{"signer_second", toks(move.U8, move.Signer), "signer_position"},
		{"signer_ref_second", toks(move.U8, move.RefOf(move.Signer)), "signer_position"},
		{"signer_vector", toks(move.VectorOf(move.Signer)), "signer_in_complex_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := builder.New(testAddr, "bad")
			b.AddFunction(builder.Function{Name: tt.name, Params: tt.params, Visibility: move.VisibilityPublic, Code: ret()})
			r := newRouter(t, b.Build(), Options{})
			_, err := r.AddModule()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.kind) || !strings.Contains(err.Error(), tt.name) {
				t.Errorf("error %q, want kind %s at %s", err, tt.kind, tt.name)
			}
		})
	}
}

func TestAdd_SelectorCollision(t *testing.T) {
	b := builder.New(testAddr, "clash")
	b.AddFunction(builder.Function{Name: "do_it", Visibility: move.VisibilityPublic, Code: ret()})
	b.AddFunction(builder.Function{Name: "doIt", Visibility: move.VisibilityPublic, Code: ret()})
	r := newRouter(t, b.Build(), Options{CamelCase: true})
	_, err := r.AddModule()
	if err == nil || !strings.Contains(err.Error(), "collides") {
		t.Fatalf("expected a selector collision, got %v", err)
	}

	r = newRouter(t, b.Build(), Options{})
	if _, err := r.AddModule(); err != nil {
		t.Errorf("without renaming: %v", err)
	}
}

func TestIsAbortPayload(t *testing.T) {
	sel := crypto.Keccak256([]byte("Error(string)"))[:4]
	if !IsAbortPayload(append(sel, make([]byte, 64)...)) {
		t.Error("Error(string) payload not recognised")
	}
	if IsAbortPayload(sel[:3]) || IsAbortPayload([]byte{1, 2, 3, 4}) {
		t.Error("false positive")
	}
}
