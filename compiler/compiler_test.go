package compiler

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/big"
	"strings"
	"testing"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/move2wasm/host"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/move/builder"
	"github.com/wippyai/move2wasm/move/framework"
)

var testAddr = move.MustParseAddress("0xcafe")

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

const abObject = move.AbilitySet(move.AbilityKey | move.AbilityStore)

func toks(ts ...move.SignatureToken) []move.SignatureToken { return ts }

func op(o move.Opcode) move.Bytecode             { return builder.Op(o) }
func idx(o move.Opcode, i uint16) move.Bytecode { return builder.Idx(o, i) }

// counterModule builds 0xcafe::counter, covering plain arithmetic, calls,
// loops, aborts, signer injection and object ownership
func counterModule() *move.CompiledModule {
	b := builder.New(testAddr, "counter")
	uid := b.ImportType(framework.ObjectModule, framework.UIDName, move.AbilitySet(move.AbilityStore))
	txc := b.ImportType(framework.TxContextModule, framework.TxContextName, move.AbilitySet(move.AbilityDrop))
	counter := b.Struct("Counter", abObject, builder.F("id", uid), builder.F("value", move.U64))
	ct := counter.Token()
	valueField := counter.Field("value")
	keyOnly := move.AbilitySet(move.AbilityKey)

	newUID := b.FunctionHandle(framework.ObjectModule, "new", toks(move.MutRefOf(txc)), toks(uid))
	deleteUID := b.FunctionHandle(framework.ObjectModule, "delete", toks(uid), nil)
	sender := b.FunctionHandle(framework.TxContextModule, "sender", toks(move.RefOf(txc)), toks(move.AddressToken))
	borrowAddr := b.FunctionHandle(framework.SignerModule, "borrow_address",
		toks(move.RefOf(move.Signer)), toks(move.RefOf(move.AddressToken)))
	generic := func(name string, params ...move.SignatureToken) uint16 {
		h := b.FunctionHandle(framework.TransferModule, name, params, nil, keyOnly)
		return b.FunctionInstantiation(h, ct)
	}
	transfer := generic("transfer", move.TypeParam(0), move.AddressToken)
	share := generic("share_object", move.TypeParam(0))
	freeze := generic("freeze_object", move.TypeParam(0))

	double := b.AddFunction(builder.Function{
		Name:    "double",
		Params:  toks(move.U64),
		Returns: toks(move.U64),
		Code: []move.Bytecode{
			idx(move.OpCopyLoc, 0), idx(move.OpCopyLoc, 0), op(move.OpAdd), op(move.OpRet),
		},
	})
	b.AddFunction(builder.Function{
		Name:       "increment",
		Params:     toks(move.U32, move.U16, move.U64),
		Returns:    toks(move.U32, move.U16, move.U64),
		Visibility: move.VisibilityPublic,
		Code: []move.Bytecode{
			idx(move.OpCopyLoc, 0), builder.LdU32(1), op(move.OpAdd),
			idx(move.OpCopyLoc, 1), builder.LdU16(1), op(move.OpAdd),
			idx(move.OpCopyLoc, 2), builder.LdU64(1), op(move.OpAdd),
			op(move.OpRet),
		},
	})
	b.AddFunction(builder.Function{
		Name:       "quadruple",
		Params:     toks(move.U64),
		Returns:    toks(move.U64),
		Visibility: move.VisibilityPublic,
		Code: []move.Bytecode{
			idx(move.OpMoveLoc, 0), idx(move.OpCall, double), idx(move.OpCall, double), op(move.OpRet),
		},
	})
	b.AddFunction(builder.Function{
		Name:       "add_u8",
		Params:     toks(move.U8, move.U8),
		Returns:    toks(move.U8),
		Visibility: move.VisibilityPublic,
		Code: []move.Bytecode{
			idx(move.OpMoveLoc, 0), idx(move.OpMoveLoc, 1), op(move.OpAdd), op(move.OpRet),
		},
	})
	b.AddFunction(builder.Function{
		Name:       "sum_to",
		Params:     toks(move.U64),
		Returns:    toks(move.U64),
		Locals:     toks(move.U64, move.U64),
		Visibility: move.VisibilityPublic,
		Code: []move.Bytecode{
			builder.LdU64(0), idx(move.OpStLoc, 1),
			builder.LdU64(0), idx(move.OpStLoc, 2),
			idx(move.OpCopyLoc, 1), idx(move.OpCopyLoc, 0), op(move.OpLt), idx(move.OpBrFalse, 17),
			idx(move.OpCopyLoc, 1), builder.LdU64(1), op(move.OpAdd), idx(move.OpStLoc, 1),
			idx(move.OpMoveLoc, 2), idx(move.OpCopyLoc, 1), op(move.OpAdd), idx(move.OpStLoc, 2),
			idx(move.OpBranch, 4),
			idx(move.OpMoveLoc, 2), op(move.OpRet),
		},
	})
	b.AddFunction(builder.Function{
		Name:       "fail",
		Params:     toks(move.U64),
		Visibility: move.VisibilityPublic,
		Entry:      true,
		Code:       []move.Bytecode{idx(move.OpMoveLoc, 0), op(move.OpAbort)},
	})
	b.AddFunction(builder.Function{
		Name:       "whoami",
		Params:     toks(move.RefOf(move.Signer)),
		Returns:    toks(move.AddressToken),
		Visibility: move.VisibilityPublic,
		Code: []move.Bytecode{
			idx(move.OpMoveLoc, 0), idx(move.OpCall, borrowAddr), op(move.OpReadRef), op(move.OpRet),
		},
	})
	b.AddFunction(builder.Function{
		Name:   "create",
		Params: toks(move.MutRefOf(txc)),
		Entry:  true,
		Code: []move.Bytecode{
			idx(move.OpCopyLoc, 0), idx(move.OpCall, newUID),
			builder.LdU64(0), idx(move.OpPack, 0),
			idx(move.OpMoveLoc, 0), op(move.OpFreezeRef), idx(move.OpCall, sender),
			idx(move.OpCallGeneric, transfer), op(move.OpRet),
		},
	})
	b.AddFunction(builder.Function{
		Name:       "value",
		Params:     toks(move.RefOf(ct)),
		Returns:    toks(move.U64),
		Visibility: move.VisibilityPublic,
		Code: []move.Bytecode{
			idx(move.OpMoveLoc, 0), idx(move.OpImmBorrowField, valueField), op(move.OpReadRef), op(move.OpRet),
		},
	})
	b.AddFunction(builder.Function{
		Name:       "bump",
		Params:     toks(move.MutRefOf(ct)),
		Visibility: move.VisibilityPublic,
		Entry:      true,
		Code: []move.Bytecode{
			idx(move.OpCopyLoc, 0), idx(move.OpImmBorrowField, valueField), op(move.OpReadRef),
			builder.LdU64(1), op(move.OpAdd),
			idx(move.OpMoveLoc, 0), idx(move.OpMutBorrowField, valueField), op(move.OpWriteRef),
			op(move.OpRet),
		},
	})
	for _, f := range []struct {
		name string
		inst uint16
	}{{"share", share}, {"freeze", freeze}} {
		b.AddFunction(builder.Function{
			Name:   f.name,
			Params: toks(ct),
			Entry:  true,
			Code:   []move.Bytecode{idx(move.OpMoveLoc, 0), idx(move.OpCallGeneric, f.inst), op(move.OpRet)},
		})
	}
	b.AddFunction(builder.Function{
		Name:   "destroy",
		Params: toks(ct),
		Entry:  true,
		Code: []move.Bytecode{
			idx(move.OpMoveLoc, 0), idx(move.OpUnpack, 0), op(move.OpPop),
			idx(move.OpCall, deleteUID), op(move.OpRet),
		},
	})
	return b.Build()
}

type contract struct {
	t   *testing.T
	out *Output
	h   *host.Host
}

func deploy(t *testing.T, m *move.CompiledModule) *contract {
	t.Helper()
	out, err := Compile([]*move.CompiledModule{m}, m.Self(), DefaultOptions())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	h, err := host.New(context.Background(), out.Wasm, nil)
	if err != nil {
		t.Fatalf("host.New: %v", err)
	}
	t.Cleanup(func() { h.Close(context.Background()) })
	return &contract{t: t, out: out, h: h}
}

func args(t *testing.T, types ...string) gethabi.Arguments {
	t.Helper()
	var out gethabi.Arguments
	for _, ty := range types {
		typ, err := gethabi.NewType(ty, "", nil)
		if err != nil {
			t.Fatalf("NewType(%s): %v", ty, err)
		}
		out = append(out, gethabi.Argument{Type: typ})
	}
	return out
}

// calldata encodes a call of signature with values of the given types
func calldata(t *testing.T, signature string, types []string, values ...any) []byte {
	t.Helper()
	packed, err := args(t, types...).Pack(values...)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return append(crypto.Keccak256([]byte(signature))[:4], packed...)
}

func (c *contract) call(from common.Address, data []byte) (*host.Result, error) {
	return c.h.Call(context.Background(), from, data)
}

func (c *contract) mustCall(from common.Address, data []byte) *host.Result {
	c.t.Helper()
	res, err := c.call(from, data)
	if err != nil {
		c.t.Fatalf("call %x: %v", data[:4], err)
	}
	if res.Status != 0 {
		c.t.Fatalf("call %x: status %d", data[:4], res.Status)
	}
	return res
}

// objectID is the id of the n-th object created for sender
func objectID(sender common.Address, n uint64) [32]byte {
	var pre [64]byte
	copy(pre[12:32], sender[:])
	binary.BigEndian.PutUint64(pre[56:], n)
	var id [32]byte
	copy(id[:], crypto.Keccak256(pre[:]))
	clear(id[:12])
	return id
}

func TestCompile_Routes(t *testing.T) {
	c := deploy(t, counterModule())
	want := map[string]string{
		"0xcafe::counter::increment": "increment(uint32,uint16,uint64)",
		"0xcafe::counter::quadruple": "quadruple(uint64)",
		"0xcafe::counter::add_u8":    "addU8(uint8,uint8)",
		"0xcafe::counter::sum_to":    "sumTo(uint64)",
		"0xcafe::counter::fail":      "fail(uint64)",
		"0xcafe::counter::whoami":    "whoami()",
		"0xcafe::counter::create":    "create()",
		"0xcafe::counter::value":     "value(bytes32)",
		"0xcafe::counter::bump":      "bump(bytes32)",
		"0xcafe::counter::share":     "share(bytes32)",
		"0xcafe::counter::freeze":    "freeze(bytes32)",
		"0xcafe::counter::destroy":   "destroy(bytes32)",
	}
	got := make(map[string]string)
	for _, r := range c.out.Routes {
		got[r.Function] = r.Signature
		if sel := crypto.Keccak256([]byte(r.Signature))[:4]; !bytes.Equal(sel, r.Selector[:]) {
			t.Errorf("%s: selector %x, want %x", r.Signature, r.Selector, sel)
		}
	}
	for fn, sig := range want {
		if got[fn] != sig {
			t.Errorf("route of %s = %q, want %q", fn, got[fn], sig)
		}
	}
	if _, ok := got["0xcafe::counter::double"]; ok {
		t.Error("private function double is routed")
	}
}

func TestCompile_Increment(t *testing.T) {
	c := deploy(t, counterModule())
	data := calldata(t, "increment(uint32,uint16,uint64)",
		[]string{"bool", "uint16", "uint64"}, true, uint16(1234), uint64(123456789012345))
	res := c.mustCall(alice, data)
	vals, err := args(t, "uint32", "uint16", "uint64").Unpack(res.Output)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if vals[0].(uint32) != 2 || vals[1].(uint16) != 1235 || vals[2].(uint64) != 123456789012346 {
		t.Errorf("increment = %v, want [2 1235 123456789012346]", vals)
	}
}

func TestCompile_Arithmetic(t *testing.T) {
	c := deploy(t, counterModule())
	tests := []struct {
		name string
		sig  string
		in   []string
		vals []any
		want uint64
		trap bool
	}{
		{"calls", "quadruple(uint64)", []string{"uint64"}, []any{uint64(21)}, 84, false},
		{"call overflow", "quadruple(uint64)", []string{"uint64"}, []any{uint64(1) << 62}, 0, true},
		{"u8 add", "addU8(uint8,uint8)", []string{"uint8", "uint8"}, []any{uint8(100), uint8(155)}, 255, false},
		{"u8 overflow", "addU8(uint8,uint8)", []string{"uint8", "uint8"}, []any{uint8(200), uint8(100)}, 0, true},
		{"loop", "sumTo(uint64)", []string{"uint64"}, []any{uint64(10)}, 55, false},
		{"empty loop", "sumTo(uint64)", []string{"uint64"}, []any{uint64(0)}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.call(alice, calldata(t, tt.sig, tt.in, tt.vals...))
			if tt.trap {
				if err == nil {
					t.Fatalf("expected a trap, got status %d", res.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			word := new(big.Int).SetBytes(res.Output)
			if !word.IsUint64() || word.Uint64() != tt.want {
				t.Errorf("result %x, want %d", res.Output, tt.want)
			}
		})
	}
}

func TestCompile_Abort(t *testing.T) {
	c := deploy(t, counterModule())
	res, err := c.call(alice, calldata(t, "fail(uint64)", []string{"uint64"}, uint64(1337)))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Status != 1 {
		t.Fatalf("status %d, want 1", res.Status)
	}
	msg, err := res.Revert()
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if msg != "Move abort code: 1337" {
		t.Errorf("revert message %q", msg)
	}

	res, err = c.call(alice, calldata(t, "fail(uint64)", []string{"uint64"}, uint64(0)))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if msg, _ := res.Revert(); msg != "Move abort code: 0" {
		t.Errorf("revert message %q", msg)
	}
}

func TestCompile_NoMatch(t *testing.T) {
	c := deploy(t, counterModule())
	for _, data := range [][]byte{nil, {1, 2}, {0xde, 0xad, 0xbe, 0xef}} {
		res, err := c.call(alice, data)
		if err != nil {
			t.Fatalf("call %x: %v", data, err)
		}
		if res.Status != -1 || len(res.Output) != 0 {
			t.Errorf("call %x: status %d output %x, want -1 and nothing", data, res.Status, res.Output)
		}
	}
	if len(c.h.Slots()) != 0 {
		t.Error("unmatched calls wrote storage")
	}
}

func TestCompile_Signer(t *testing.T) {
	c := deploy(t, counterModule())
	for _, from := range []common.Address{alice, bob} {
		res := c.mustCall(from, calldata(t, "whoami()", nil))
		vals, err := args(t, "address").Unpack(res.Output)
		if err != nil {
			t.Fatalf("Unpack: %v", err)
		}
		if vals[0].(common.Address) != from {
			t.Errorf("whoami from %s = %s", from, vals[0])
		}
	}
}

func TestCompile_Objects(t *testing.T) {
	c := deploy(t, counterModule())
	value := func(from common.Address, id [32]byte) (uint64, error) {
		res, err := c.call(from, calldata(t, "value(bytes32)", []string{"bytes32"}, id))
		if err != nil {
			return 0, err
		}
		return new(big.Int).SetBytes(res.Output).Uint64(), nil
	}
	do := func(name string, from common.Address, id [32]byte) error {
		_, err := c.call(from, calldata(t, name+"(bytes32)", []string{"bytes32"}, id))
		return err
	}

	c.mustCall(alice, calldata(t, "create()", nil))
	first := objectID(alice, 1)
	if v, err := value(alice, first); err != nil || v != 0 {
		t.Fatalf("value after create = %d, %v", v, err)
	}
	if err := do("bump", alice, first); err != nil {
		t.Fatalf("bump by owner: %v", err)
	}
	if v, _ := value(alice, first); v != 1 {
		t.Errorf("value after bump = %d, want 1", v)
	}
	if err := do("bump", bob, first); err == nil {
		t.Error("bump by another sender did not trap")
	}
	if _, err := value(bob, first); err == nil {
		t.Error("reading an object owned by someone else did not trap")
	}

	if err := do("share", alice, first); err != nil {
		t.Fatalf("share: %v", err)
	}
	if err := do("bump", bob, first); err != nil {
		t.Fatalf("bump of a shared object: %v", err)
	}
	if v, _ := value(alice, first); v != 2 {
		t.Errorf("shared value = %d, want 2", v)
	}

	c.mustCall(alice, calldata(t, "create()", nil))
	second := objectID(alice, 2)
	if second == first {
		t.Fatal("object ids repeat")
	}
	if err := do("freeze", alice, second); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if v, err := value(bob, second); err != nil || v != 0 {
		t.Errorf("frozen value = %d, %v", v, err)
	}
	if err := do("bump", alice, second); err == nil {
		t.Error("mutating a frozen object did not trap")
	}

	if err := do("destroy", bob, first); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := value(alice, first); err == nil {
		t.Error("reading a destroyed object did not trap")
	}
	if err := do("destroy", bob, first); err == nil {
		t.Error("double delete did not trap")
	}
}

func TestCompile_SignerPosition(t *testing.T) {
	b := builder.New(testAddr, "bad")
	b.AddFunction(builder.Function{
		Name:       "late_signer",
		Params:     toks(move.U64, move.Signer),
		Visibility: move.VisibilityPublic,
		Code:       []move.Bytecode{op(move.OpRet)},
	})
	m := b.Build()
	_, err := Compile([]*move.CompiledModule{m}, m.Self(), DefaultOptions())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "signer_position") || !strings.Contains(err.Error(), "late_signer") {
		t.Errorf("error %q does not name the kind and the function", err)
	}
}

func TestCompilePackage(t *testing.T) {
	pkg := &move.Package{Name: "demo", Modules: []move.CompiledModule{*counterModule()}}
	outs, err := CompileAll(context.Background(), []*move.Package{pkg, pkg}, DefaultOptions())
	if err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	if len(outs) != 2 || len(outs[0]) != 1 || len(outs[1]) != 1 {
		t.Fatalf("unexpected output shape %d", len(outs))
	}
	if !bytes.Equal(outs[0][0].Wasm, outs[1][0].Wasm) {
		t.Error("compilation is not deterministic")
	}
	if outs[0][0].Module != counterModule().Self() {
		t.Errorf("module %s", outs[0][0].Module)
	}
}
