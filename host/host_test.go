package host

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/move2wasm/compiler/hostio"
	cerrors "github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/wasm"
)

// memory layout of the test contracts
const (
	hash    = 128
	args    = 256
	scratch = 512
)

var alice = common.HexToAddress("0xa11ce")

// contract builds a module whose entrypoint is body. Local 0 is the
// calldata length.
func contract(t *testing.T, body func(s *wasm.Seq, h hostio.Funcs)) []byte {
	t.Helper()
	b := wasm.NewModuleBuilder()
	h := hostio.Declare(b)
	f := wasm.NewFunc(DefaultEntrypoint, []wasm.ValType{wasm.ValI32}, []wasm.ValType{wasm.ValI32})
	body(f.Body, h)
	idx := b.AddFunc(f)
	b.SetMemory(1, nil)
	b.Export(DefaultEntrypoint, wasm.KindFunc, idx)
	b.Export("memory", wasm.KindMemory, 0)
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return m.Encode()
}

func newHost(t *testing.T, code []byte, cfg *Config) *Host {
	t.Helper()
	ctx := context.Background()
	h, err := New(ctx, code, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close(ctx) })
	return h
}

func word(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

func TestCall_KeccakOfArgs(t *testing.T) {
	code := contract(t, func(s *wasm.Seq, h hostio.Funcs) {
		s.I32Const(args).Call(h.ReadArgs)
		s.I32Const(args).LocalGet(0).I32Const(hash).Call(h.NativeKeccak256)
		s.I32Const(hash).I32Const(32).Call(h.WriteResult)
		s.I32Const(0)
	})
	h := newHost(t, code, nil)

	for _, data := range [][]byte{{}, []byte("move"), bytes.Repeat([]byte{7}, 100)} {
		res, err := h.Call(context.Background(), alice, data)
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if res.Status != 0 || !bytes.Equal(res.Output, crypto.Keccak256(data)) {
			t.Errorf("keccak(%x): status %d output %x", data, res.Status, res.Output)
		}
	}
}

// storageContract loads the slot at calldata[0:32] when called with one
// word. With two words it caches calldata[32:64] under the key, flushes
// and returns the length check as status, so a 65 byte call reverts.
func storageContract(t *testing.T) []byte {
	return contract(t, func(s *wasm.Seq, h hostio.Funcs) {
		s.I32Const(args).Call(h.ReadArgs)
		s.LocalGet(0).I32Const(32).Op(wasm.OpI32Eq).If(wasm.BlockTypeVoid, func(s *wasm.Seq) {
			s.I32Const(args).I32Const(scratch).Call(h.StorageLoadBytes32)
			s.I32Const(scratch).I32Const(32).Call(h.WriteResult)
			s.I32Const(0).Return()
		}, nil)
		s.I32Const(args).I32Const(args + 32).Call(h.StorageCache)
		s.I32Const(1).Call(h.StorageFlushCache)
		s.LocalGet(0).I32Const(64).Op(wasm.OpI32Ne)
	})
}

func TestCall_Storage(t *testing.T) {
	ctx := context.Background()
	h := newHost(t, storageContract(t), nil)
	key := word(1)

	store := func(value common.Hash, extra ...byte) *Result {
		t.Helper()
		data := append(append(key.Bytes(), value.Bytes()...), extra...)
		res, err := h.Call(ctx, alice, data)
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		return res
	}

	if res := store(word(9)); res.Status != 0 {
		t.Fatalf("status = %d", res.Status)
	}
	if got := h.Slot(key); got != word(9) {
		t.Errorf("slot = %x, want 9", got)
	}

	if res := store(word(5), 0); res.Status != 1 {
		t.Fatalf("reverting store status = %d", res.Status)
	}
	if got := h.Slot(key); got != word(9) {
		t.Errorf("revert committed storage: %x", got)
	}

	res, err := h.Call(ctx, alice, key.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Output, word(9).Bytes()) {
		t.Errorf("load = %x", res.Output)
	}

	h.SetSlot(word(2), word(3))
	if n := len(h.Slots()); n != 2 {
		t.Errorf("Slots() has %d entries, want 2", n)
	}
	store(common.Hash{})
	if _, ok := h.Slots()[key]; ok {
		t.Error("zero value left a slot behind")
	}
}

func TestInstance_Flushed(t *testing.T) {
	ctx := context.Background()
	h := newHost(t, storageContract(t), nil)
	data := append(word(4).Bytes(), word(8).Bytes()...)

	inst, err := h.Instantiate(ctx, alice, data)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)
	if _, err := inst.Invoke(ctx, DefaultEntrypoint, uint64(len(data))); err != nil {
		t.Fatal(err)
	}
	if got := inst.Flushed()[word(4)]; got != word(8) {
		t.Errorf("flushed = %x", got)
	}
	if len(h.Slots()) != 0 {
		t.Error("Invoke committed storage")
	}
	got, ok := inst.Read(args+32, 32)
	if !ok || !bytes.Equal(got, word(8).Bytes()) {
		t.Errorf("Read = %x, %v", got, ok)
	}
	if !inst.Write(scratch, []byte{1}) {
		t.Error("Write in range failed")
	}
	if _, ok := inst.Read(1<<16-1, 2); ok {
		t.Error("Read past memory succeeded")
	}
}

func TestCall_OriginAndLogs(t *testing.T) {
	// topic 0 is the origin, data is the calldata; status is 1 when the
	// calldata starts with 0xff
	code := contract(t, func(s *wasm.Seq, h hostio.Funcs) {
		s.I32Const(scratch + 12).Call(h.TxOrigin)
		s.I32Const(scratch + 32).Call(h.ReadArgs)
		s.I32Const(scratch).LocalGet(0).I32Const(32).Op(wasm.OpI32Add).I32Const(1).Call(h.EmitLog)
		s.I32Const(scratch).I32Const(32).Call(h.WriteResult)
		s.I32Const(scratch + 32).I32Load8U(0).I32Const(0xff).Op(wasm.OpI32Eq)
	})
	h := newHost(t, code, nil)
	ctx := context.Background()

	res, err := h.Call(ctx, alice, []byte{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	origin := common.BytesToHash(alice.Bytes())
	if !bytes.Equal(res.Output, origin.Bytes()) {
		t.Errorf("origin = %x", res.Output)
	}
	if len(res.Logs) != 1 || res.Logs[0].Topics[0] != origin || !bytes.Equal(res.Logs[0].Data, []byte{1, 2}) {
		t.Errorf("logs = %+v", res.Logs)
	}

	res, err = h.Call(ctx, alice, []byte{0xff})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != 1 || res.Logs != nil {
		t.Errorf("reverted call: status %d, logs %+v", res.Status, res.Logs)
	}
}

func TestCall_Trap(t *testing.T) {
	code := contract(t, func(s *wasm.Seq, h hostio.Funcs) {
		s.I32Const(args).I32Const(args).Call(h.StorageCache)
		s.I32Const(1).Call(h.StorageFlushCache)
		s.Unreachable()
	})
	h := newHost(t, code, nil)
	_, err := h.Call(context.Background(), alice, word(1).Bytes())
	var e *cerrors.Error
	if !errors.As(err, &e) || e.Kind != cerrors.KindInvalidOperation {
		t.Fatalf("trap error = %v", err)
	}
	if len(h.Slots()) != 0 {
		t.Error("trap committed storage")
	}
}

func TestCall_HookOutOfRange(t *testing.T) {
	code := contract(t, func(s *wasm.Seq, h hostio.Funcs) {
		s.I32Const(1<<16 - 4).I32Const(32).Call(h.WriteResult)
		s.I32Const(0)
	})
	h := newHost(t, code, nil)
	if _, err := h.Call(context.Background(), alice, nil); err == nil {
		t.Fatal("out of range write_result did not trap")
	}
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()
	code := contract(t, func(s *wasm.Seq, _ hostio.Funcs) { s.I32Const(0) })

	h := newHost(t, code, &Config{Entrypoint: "main"})
	_, err := h.Call(ctx, alice, nil)
	var e *cerrors.Error
	if !errors.As(err, &e) || e.Kind != cerrors.KindFunctionNotFound {
		t.Errorf("missing entrypoint error = %v", err)
	}

	if _, err := New(ctx, []byte("not wasm"), nil); !errors.As(err, &e) || e.Kind != cerrors.KindInvalidData {
		t.Errorf("invalid module error = %v", err)
	}
}

func TestResult_Revert(t *testing.T) {
	str, _ := abi.NewType("string", "", nil)
	msg, err := abi.Arguments{{Type: str}}.Pack("Move abort code: 7")
	if err != nil {
		t.Fatal(err)
	}
	r := &Result{Status: 1, Output: append(crypto.Keccak256([]byte("Error(string)"))[:4], msg...)}
	got, err := r.Revert()
	if err != nil || got != "Move abort code: 7" {
		t.Errorf("Revert() = %q, %v", got, err)
	}
	if _, err := (&Result{Status: 1}).Revert(); err == nil {
		t.Error("empty output decoded as a revert")
	}
}
