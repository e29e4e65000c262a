package main

import (
	"bytes"
	"context"
	"math/big"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/move2wasm/compiler"
	"github.com/wippyai/move2wasm/host"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/move/builder"
)

func route(sig string, returns ...string) compiler.Route {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
	name, _, _ := strings.Cut(sig, "(")
	return compiler.Route{Function: "0xcafe::m::" + name, Signature: sig, Selector: sel, Returns: returns}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"uint8", []string{"uint8"}},
		{"bool, uint64", []string{"bool", "uint64"}},
		{"(uint64,uint8[]),address", []string{"(uint64,uint8[])", "address"}},
		{"[1,2],[3]", []string{"[1,2]", "[3]"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMethod_Encode(t *testing.T) {
	m, err := newMethod(route("mix(bool,uint16,uint128,address,bytes32,uint32[],(uint64,uint8[]))", "uint64"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := m.encode([]string{
		"true", "0x10", "340282366920938463463374607431768211455", "0x00000000000000000000000000000000000a11ce",
		"0xbeef", "[1, 2, 3]", "(7, [8,9])",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var id [32]byte
	id[30], id[31] = 0xbe, 0xef
	tuple := struct {
		F0 uint64
		F1 []uint8
	}{7, []uint8{8, 9}}
	want, err := m.inputs.Pack(true, uint16(16), new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)),
		common.HexToAddress("0xa11ce"), id, []uint32{1, 2, 3}, tuple)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if !bytes.Equal(data[:4], m.route.Selector[:]) || !bytes.Equal(data[4:], want) {
		t.Errorf("calldata mismatch\n got %x\nwant %x", data[4:], want)
	}
}

func TestMethod_EncodeErrors(t *testing.T) {
	m, err := newMethod(route("f(uint8,address,uint16[])"))
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string][]string{
		"arity":        {"1"},
		"overflow":     {"256", "0x1", "[]"},
		"negative":     {"-1", "0x1", "[]"},
		"address":      {"1", "alice", "[]"},
		"list bracket": {"1", "0x1", "1,2"},
		"element":      {"1", "0x1", "[1,x]"},
	}
	for name, args := range tests {
		if _, err := m.encode(args); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestFormatValue(t *testing.T) {
	var id [32]byte
	id[31] = 1
	tests := []struct {
		in   any
		want string
	}{
		{uint64(5), "5"},
		{true, "true"},
		{big.NewInt(1 << 40), "1099511627776"},
		{id, "0x0000000000000000000000000000000000000000000000000000000000000001"},
		{[]uint16{1, 2}, "[1, 2]"},
		{struct {
			A uint8
			B []bool
		}{3, []bool{false}}, "(3, [false])"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMethod_Outcome(t *testing.T) {
	m, err := newMethod(route("get()", "uint64", "bool"))
	if err != nil {
		t.Fatal(err)
	}
	ok, err := m.outputs.Pack(uint64(9), true)
	if err != nil {
		t.Fatal(err)
	}
	str, _ := gethabi.NewType("string", "", nil)
	msg, err := gethabi.Arguments{{Type: str}}.Pack("Move abort code: 3")
	if err != nil {
		t.Fatal(err)
	}
	revert := append(crypto.Keccak256([]byte("Error(string)"))[:4], msg...)

	tests := []struct {
		name   string
		res    *host.Result
		want   string
		failed bool
	}{
		{"ok", &host.Result{Output: ok}, "9, true", false},
		{"abort", &host.Result{Status: 1, Output: revert}, "reverted: Move abort code: 3", true},
		{"no match", &host.Result{Status: -1}, "no route", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, failed, err := m.outcome(tt.res)
			if err != nil {
				t.Fatal(err)
			}
			if failed != tt.failed || !strings.HasPrefix(text, tt.want) {
				t.Errorf("outcome = %q, %v", text, failed)
			}
		})
	}
}

func TestSession(t *testing.T) {
	b := builder.New(move.MustParseAddress("0xcafe"), "calc")
	b.AddFunction(builder.Function{
		Name:       "add_one",
		Params:     []move.SignatureToken{move.U64},
		Returns:    []move.SignatureToken{move.U64},
		Visibility: move.VisibilityPublic,
		Code: []move.Bytecode{
			builder.Idx(move.OpMoveLoc, 0), builder.LdU64(1), builder.Op(move.OpAdd), builder.Op(move.OpRet),
		},
	})
	path := filepath.Join(t.TempDir(), "calc.mpk")
	pkg := &move.Package{Name: "calc", Modules: []move.CompiledModule{*b.Build()}}
	if err := pkg.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s, err := openSession(ctx, path, "", common.HexToAddress(defaultSender))
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.host.Close(ctx)

	for _, name := range []string{"addOne", "add_one"} {
		m, err := findMethod(s.methods, name)
		if err != nil {
			t.Fatalf("findMethod(%s): %v", name, err)
		}
		text, failed, err := s.call(ctx, m, []string{"41"})
		if err != nil || failed || text != "42" {
			t.Errorf("%s(41) = %q, %v, %v", name, text, failed, err)
		}
	}
	m, _ := findMethod(s.methods, "addOne")
	text, failed, err := s.call(ctx, m, []string{"0xffffffffffffffff"})
	if err != nil || !failed || !strings.HasPrefix(text, "trapped") {
		t.Errorf("overflow = %q, %v, %v", text, failed, err)
	}
	if _, err := findMethod(s.methods, "missing"); err == nil {
		t.Error("findMethod found a missing function")
	}
	if _, err := pickOutput(nil, "calc"); err == nil {
		t.Error("pickOutput found a module in an empty list")
	}
}
