package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/big"
	"testing"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/move2wasm/compiler/abi"
	"github.com/wippyai/move2wasm/compiler/compilation"
	"github.com/wippyai/move2wasm/compiler/hostio"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/host"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/move/builder"
	"github.com/wippyai/move2wasm/move/framework"
	"github.com/wippyai/move2wasm/wasm"
)

var testAddr = move.MustParseAddress("0xcafe")

const (
	abCopyDrop  = move.AbilitySet(move.AbilityCopy | move.AbilityDrop)
	abStoreable = move.AbilitySet(move.AbilityCopy | move.AbilityDrop | move.AbilityStore)
	abObject    = move.AbilitySet(move.AbilityKey | move.AbilityStore)
)

type fixture struct {
	ctx     *compilation.Context
	uid     ir.Type
	vault   ir.Type
	wrapper ir.Type
	drawing ir.Type
	point   ir.Type
	color   ir.Type
	shape   ir.Type
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := builder.New(testAddr, "vault")
	uid := b.ImportType(framework.ObjectModule, framework.UIDName, move.AbilitySet(move.AbilityStore))
	color := b.Enum("Color", abStoreable, builder.Variant{Name: "Red"}, builder.Variant{Name: "Green"}, builder.Variant{Name: "Blue"})
	shape := b.Enum("Shape", abStoreable,
		builder.Variant{Name: "A", Fields: []builder.Field{builder.F("a", move.U8), builder.F("b", move.U16)}},
		builder.Variant{Name: "B", Fields: []builder.Field{builder.F("c", move.U32), builder.F("d", move.U64)}},
	)
	vault := b.Struct("Vault", abObject,
		builder.F("id", uid),
		builder.F("owner", move.AddressToken),
		builder.F("balance", move.U64),
		builder.F("flag", move.Bool),
		builder.F("amounts", move.VectorOf(move.U64)),
		builder.F("tag", color.Token()),
	)
	b.Struct("Wrapper", move.AbilitySet(move.AbilityKey), builder.F("id", uid), builder.F("vault", vault.Token()), builder.F("n", move.U16))
	b.Struct("Drawing", move.AbilitySet(move.AbilityKey), builder.F("id", uid), builder.F("shape", shape.Token()), builder.F("after", move.U8))
	b.Struct("Point", abCopyDrop, builder.F("x", move.U64), builder.F("y", move.U64))
	m := b.Build()

	mods := append([]*move.CompiledModule{m}, framework.Modules()...)
	reg, err := compilation.BuildRegistry(mods, compilation.Options{})
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	ctx, err := compilation.NewContext(m.Self(), reg)
	if err != nil {
		t.Fatal(err)
	}
	st := func(i uint16) ir.Type {
		s, err := ctx.GetStructByDefinitionIdx(i)
		if err != nil {
			t.Fatal(err)
		}
		return s.Type(ir.VMNone)
	}
	fx := &fixture{
		ctx:     ctx,
		vault:   st(0),
		wrapper: st(1),
		drawing: st(2),
		point:   st(3),
		color:   ir.Enum(m.Self(), 0),
		shape:   ir.Enum(m.Self(), 1),
	}
	fx.uid = ctx.MustStruct(fx.vault).Fields[0].Type
	return fx
}

func TestFieldSize(t *testing.T) {
	fx := newFixture(t)
	e := New(nil, fx.ctx)
	tests := []struct {
		name string
		typ  ir.Type
		used int
		want int
	}{
		{"u8 fresh", ir.U8, 0, 1},
		{"bool last byte", ir.Bool, 31, 1},
		{"u64 spills", ir.U64, 30, 10},
		{"u64 fits", ir.U64, 24, 8},
		{"address", ir.Address, 0, 20},
		{"address spills", ir.Address, 13, 39},
		{"u256 spills", ir.U256, 1, 63},
		{"vector fresh", ir.Vector(ir.U8), 0, 32},
		{"vector after byte", ir.Vector(ir.U8), 1, 63},
		{"identifier", fx.uid, 4, 60},
		{"inline struct", fx.point, 20, 20},
		{"simple enum", fx.color, 5, 1},
		{"enum with fields", fx.shape, 25, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.FieldSize(tt.typ, tt.used); got != tt.want {
				t.Errorf("FieldSize(%s, %d) = %d, want %d", tt.typ, tt.used, got, tt.want)
			}
		})
	}

	if got := e.ObjectSlots(fx.vault); got != 5 {
		t.Errorf("ObjectSlots(Vault) = %d, want 5", got)
	}
	if got := e.Slots(fx.shape); got != 1 {
		t.Errorf("Slots(Shape) = %d, want 1", got)
	}
}

func TestCheck(t *testing.T) {
	fx := newFixture(t)
	e := New(nil, fx.ctx)
	for _, typ := range []ir.Type{ir.U128, ir.Vector(ir.Address), fx.vault, fx.wrapper, fx.drawing, fx.shape} {
		if err := e.Check(typ); err != nil {
			t.Errorf("Check(%s): %v", typ, err)
		}
	}
	for _, typ := range []ir.Type{ir.Signer, ir.Vector(ir.Signer), ir.Ref(ir.U8), ir.TypeParameter(0)} {
		if err := e.Check(typ); err == nil {
			t.Errorf("Check(%s) accepted", typ)
		}
	}
	if _, err := e.Store(fx.point); err == nil {
		t.Error("Store of a struct without key accepted")
	}
}

func TestTypeHash(t *testing.T) {
	fx := newFixture(t)
	e := New(nil, fx.ctx)
	if got := e.TypeName(fx.vault); got != "0xcafe::vault::Vault" {
		t.Fatalf("TypeName = %s", got)
	}
	h := e.TypeHash(fx.vault)
	if !bytes.Equal(h[:], crypto.Keccak256([]byte("0xcafe::vault::Vault"))[:HashSize]) {
		t.Errorf("TypeHash = %x", h)
	}
	if e.TypeHash(fx.vault) == e.TypeHash(fx.wrapper) {
		t.Error("distinct types share a hash")
	}
}

type harness struct {
	t *testing.T
	h *host.Host
}

type routine func(f *wasm.Func, vals []uint32)

// build generates a module exporting alloc, flush and one function per
// entry of fns. Each function decodes its tuple from calldata first.
func build(t *testing.T, fx *fixture, fns map[string][]ir.Type, body func(e *Engine, name string) routine) *harness {
	t.Helper()
	b := wasm.NewModuleBuilder()
	l := rtlib.New(b)
	b.Export("alloc", wasm.KindFunc, l.Alloc())
	flush := wasm.NewFunc("flush", nil, nil)
	flush.Body.I32Const(1).Call(l.Host.StorageFlushCache)
	b.Export("flush", wasm.KindFunc, b.AddFunc(flush))

	e := New(l, fx.ctx)
	codec := abi.New(l, fx.ctx)
	for name, types := range fns {
		f := wasm.NewFunc(name, []wasm.ValType{i32}, nil)
		vals, err := codec.UnpackTuple(f, types, 0)
		if err != nil {
			t.Fatal(err)
		}
		body(e, name)(f, vals)
		b.Export(name, wasm.KindFunc, b.AddFunc(f))
	}
	if _, err := l.Finalize(1, 0); err != nil {
		t.Fatal(err)
	}
	b.Export("memory", wasm.KindMemory, 0)
	mod, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx := context.Background()
	h, err := host.New(ctx, mod.Encode(), nil)
	if err != nil {
		t.Fatalf("host.New: %v", err)
	}
	t.Cleanup(func() { h.Close(ctx) })
	return &harness{t: t, h: h}
}

func (h *harness) instance() *host.Instance {
	h.t.Helper()
	ctx := context.Background()
	inst, err := h.h.Instantiate(ctx, common.HexToAddress("0xbeef"), nil)
	if err != nil {
		h.t.Fatal(err)
	}
	h.t.Cleanup(func() { inst.Close(ctx) })
	return inst
}

// call places data in memory, marks the end of calldata and invokes
// fn(ptr)
func (h *harness) call(inst *host.Instance, fn string, data []byte) error {
	h.t.Helper()
	ctx := context.Background()
	out, err := inst.Invoke(ctx, "alloc", uint64(len(data)))
	if err != nil {
		h.t.Fatal(err)
	}
	p := uint32(out[0])
	inst.Write(p, data)
	inst.Write(hostio.ArgsEnd, binary.LittleEndian.AppendUint32(nil, p+uint32(len(data))))
	_, err = inst.Invoke(ctx, fn, uint64(p))
	return err
}

func (h *harness) mustCall(inst *host.Instance, fn string, data []byte) {
	h.t.Helper()
	if err := h.call(inst, fn, data); err != nil {
		h.t.Fatalf("%s: %v", fn, err)
	}
}

// slot flushes the instance cache and returns the staged value of key
func (h *harness) slot(inst *host.Instance, key common.Hash) common.Hash {
	h.t.Helper()
	if _, err := inst.Invoke(context.Background(), "flush"); err != nil {
		h.t.Fatal(err)
	}
	return inst.Flushed()[key]
}

func arg(t *testing.T, typ string, components ...gethabi.ArgumentMarshaling) gethabi.Argument {
	t.Helper()
	ty, err := gethabi.NewType(typ, "", components)
	if err != nil {
		t.Fatalf("NewType(%s): %v", typ, err)
	}
	return gethabi.Argument{Type: ty}
}

func pack(t *testing.T, args gethabi.Arguments, values ...any) []byte {
	t.Helper()
	data, err := args.Pack(values...)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return data
}

var vaultComponents = []gethabi.ArgumentMarshaling{
	{Name: "id", Type: "bytes32"},
	{Name: "owner", Type: "address"},
	{Name: "balance", Type: "uint64"},
	{Name: "flag", Type: "bool"},
	{Name: "amounts", Type: "uint64[]"},
	{Name: "tag", Type: "uint8"},
}

type vault struct {
	Id      [32]byte
	Owner   common.Address
	Balance uint64
	Flag    bool
	Amounts []uint64
	Tag     uint8
}

type wrapper struct {
	Id    [32]byte
	Vault vault
	N     uint16
}

func rootSlot(id common.Hash, owner []byte) common.Hash {
	inner := crypto.Keccak256(common.LeftPadBytes(owner, 32), make([]byte, 32))
	return crypto.Keccak256Hash(id[:], inner)
}

func addSlot(s common.Hash, n int64) common.Hash {
	v := new(big.Int).SetBytes(s[:])
	return common.BigToHash(v.Add(v, big.NewInt(n)))
}

// objects exports the vault routines: put(v, owner), get(id, owner),
// del(id, owner), move(id, from, to) and wput(w, owner)
func objects(t *testing.T, fx *fixture) *harness {
	fns := map[string][]ir.Type{
		"put":  {fx.vault, ir.Address},
		"get":  {fx.uid, ir.Address},
		"del":  {fx.uid, ir.Address},
		"move": {fx.uid, ir.Address, ir.Address},
		"wput": {fx.wrapper, ir.Address},
		"wdel": {fx.uid, ir.Address},
		"draw": {fx.uid, ir.Address},
	}
	return build(t, fx, fns, func(e *Engine, name string) routine {
		return func(f *wasm.Func, vals []uint32) {
			b := f.Body
			id := func() {
				b.LocalGet(vals[0])
				rtlib.UnwrapID(b, fx.uid)
			}
			must := func(idx uint32, err error) uint32 {
				if err != nil {
					t.Fatal(err)
				}
				return idx
			}
			switch name {
			case "put":
				b.LocalGet(vals[0]).LocalGet(vals[1]).Call(must(e.Store(fx.vault)))
			case "wput":
				b.LocalGet(vals[0]).LocalGet(vals[1]).Call(must(e.Store(fx.wrapper)))
			case "get":
				v := f.NewLocal(i32)
				id()
				b.LocalGet(vals[1]).Call(must(e.Load(fx.vault))).LocalSet(v)
				ptr, size, err := abi.New(e.Lib, e.Ctx).PackTuple(f, []ir.Type{fx.vault}, []uint32{v})
				if err != nil {
					t.Fatal(err)
				}
				b.LocalGet(ptr).LocalGet(size).Call(e.Lib.Host.WriteResult)
			case "del":
				id()
				b.LocalGet(vals[1]).Call(must(e.Delete(fx.vault)))
			case "wdel":
				id()
				b.LocalGet(vals[1]).Call(must(e.Delete(fx.wrapper)))
			case "move":
				id()
				b.LocalGet(vals[1]).LocalGet(vals[2]).Call(must(e.Move(fx.vault)))
			case "draw":
				id()
				b.LocalGet(vals[1]).Call(must(e.Load(fx.drawing))).Drop()
			}
		}
	})
}

func TestObjectRoundTrip(t *testing.T) {
	fx := newFixture(t)
	h := objects(t, fx)
	e := New(nil, fx.ctx)
	inst := h.instance()

	owner := common.HexToAddress("0x1234")
	v := vault{
		Id:      common.HexToHash("0x0a11"),
		Owner:   common.HexToAddress("0x5678"),
		Balance: 0x0102030405060708,
		Flag:    true,
		Amounts: []uint64{1, 2, 3, 4, 5, 6},
		Tag:     2,
	}
	vaultArg := arg(t, "tuple", vaultComponents...)
	h.mustCall(inst, "put", pack(t, gethabi.Arguments{vaultArg, arg(t, "address")}, v, owner))

	key := pack(t, gethabi.Arguments{arg(t, "bytes32"), arg(t, "address")}, v.Id, owner)
	h.mustCall(inst, "get", key)
	if want := pack(t, gethabi.Arguments{vaultArg}, v); !bytes.Equal(inst.Output(), want) {
		t.Errorf("load mismatch\n got %x\nwant %x", inst.Output(), want)
	}

	root := rootSlot(v.Id, owner.Bytes())
	hash := e.TypeHash(fx.vault)
	if got := h.slot(inst, root); !bytes.Equal(got[hashPos:], hash[:]) {
		t.Errorf("root slot = %x", got)
	}
	if got := h.slot(inst, addSlot(root, 1)); got != common.Hash(v.Id) {
		t.Errorf("id slot = %x", got)
	}
	packed := h.slot(inst, addSlot(root, 2))
	if !bytes.Equal(packed[12:], v.Owner.Bytes()) {
		t.Errorf("owner bytes = %x", packed[12:])
	}
	if binary.BigEndian.Uint64(packed[4:12]) != v.Balance || packed[3] != 1 {
		t.Errorf("packed slot = %x", packed)
	}
	header := addSlot(root, 3)
	if got := h.slot(inst, header); binary.BigEndian.Uint32(got[28:]) != 6 {
		t.Errorf("vector header = %x", got)
	}
	data := crypto.Keccak256Hash(header[:])
	first := h.slot(inst, data)
	for j, want := range []uint64{1, 2, 3, 4} {
		pos := 24 - 8*j
		if got := binary.BigEndian.Uint64(first[pos : pos+8]); got != want {
			t.Errorf("element %d = %d", j, got)
		}
	}
	if got := h.slot(inst, addSlot(root, 4)); got[31] != 2 {
		t.Errorf("enum slot = %x", got)
	}
}

func TestVectorShrink(t *testing.T) {
	fx := newFixture(t)
	h := objects(t, fx)
	inst := h.instance()
	owner := common.HexToAddress("0x1234")
	v := vault{Id: common.HexToHash("0x0b0b"), Amounts: []uint64{1, 2, 3, 4, 5, 6}}
	args := gethabi.Arguments{arg(t, "tuple", vaultComponents...), arg(t, "address")}
	h.mustCall(inst, "put", pack(t, args, v, owner))
	v.Amounts = []uint64{7}
	h.mustCall(inst, "put", pack(t, args, v, owner))

	header := addSlot(rootSlot(v.Id, owner.Bytes()), 3)
	data := crypto.Keccak256Hash(header[:])
	if got := h.slot(inst, data); got != common.BigToHash(big.NewInt(7)) {
		t.Errorf("first data slot = %x", got)
	}
	if got := h.slot(inst, addSlot(data, 1)); got != (common.Hash{}) {
		t.Errorf("stale data slot = %x", got)
	}
}

func TestDelete(t *testing.T) {
	fx := newFixture(t)
	h := objects(t, fx)
	inst := h.instance()
	owner := common.HexToAddress("0x1234")
	v := vault{Id: common.HexToHash("0x0c0c"), Balance: 9, Amounts: []uint64{1, 2}}
	h.mustCall(inst, "put", pack(t, gethabi.Arguments{arg(t, "tuple", vaultComponents...), arg(t, "address")}, v, owner))
	key := pack(t, gethabi.Arguments{arg(t, "bytes32"), arg(t, "address")}, v.Id, owner)

	if err := h.call(inst, "draw", key); err == nil {
		t.Error("load with the wrong type did not trap")
	}
	h.mustCall(inst, "del", key)
	root := rootSlot(v.Id, owner.Bytes())
	for i := int64(0); i < 5; i++ {
		if got := h.slot(inst, addSlot(root, i)); got != (common.Hash{}) {
			t.Errorf("slot root+%d = %x after delete", i, got)
		}
	}
	header := addSlot(root, 3)
	if got := h.slot(inst, crypto.Keccak256Hash(header[:])); got != (common.Hash{}) {
		t.Errorf("vector data = %x after delete", got)
	}
	if err := h.call(inst, "del", key); err == nil {
		t.Error("double delete did not trap")
	}
	if err := h.call(inst, "get", key); err == nil {
		t.Error("load after delete did not trap")
	}
}

func TestMove(t *testing.T) {
	fx := newFixture(t)
	h := objects(t, fx)
	e := New(nil, fx.ctx)
	inst := h.instance()
	from := common.HexToAddress("0x1234")
	to := common.HexToAddress("0x9999")
	v := vault{Id: common.HexToHash("0x0d0d"), Balance: 3, Amounts: []uint64{8}, Tag: 1}
	vaultArg := arg(t, "tuple", vaultComponents...)
	h.mustCall(inst, "put", pack(t, gethabi.Arguments{vaultArg, arg(t, "address")}, v, from))
	h.mustCall(inst, "move", pack(t, gethabi.Arguments{arg(t, "bytes32"), arg(t, "address"), arg(t, "address")}, v.Id, from, to))

	if got := h.slot(inst, rootSlot(v.Id, from.Bytes())); got != (common.Hash{}) {
		t.Errorf("old root = %x", got)
	}
	hash := e.TypeHash(fx.vault)
	if got := h.slot(inst, rootSlot(v.Id, to.Bytes())); !bytes.Equal(got[hashPos:], hash[:]) {
		t.Errorf("new root = %x", got)
	}
	h.mustCall(inst, "get", pack(t, gethabi.Arguments{arg(t, "bytes32"), arg(t, "address")}, v.Id, to))
	if want := pack(t, gethabi.Arguments{vaultArg}, v); !bytes.Equal(inst.Output(), want) {
		t.Errorf("moved object mismatch\n got %x\nwant %x", inst.Output(), want)
	}
}

func TestNestedObject(t *testing.T) {
	fx := newFixture(t)
	h := objects(t, fx)
	e := New(nil, fx.ctx)
	inst := h.instance()
	owner := common.HexToAddress("0x1234")
	w := wrapper{
		Id:    common.HexToHash("0x0e0e"),
		Vault: vault{Id: common.HexToHash("0x0f0f"), Balance: 11, Amounts: []uint64{4}},
		N:     513,
	}
	wrapperArg := arg(t, "tuple",
		gethabi.ArgumentMarshaling{Name: "id", Type: "bytes32"},
		gethabi.ArgumentMarshaling{Name: "vault", Type: "tuple", Components: vaultComponents},
		gethabi.ArgumentMarshaling{Name: "n", Type: "uint16"},
	)
	h.mustCall(inst, "wput", pack(t, gethabi.Arguments{wrapperArg, arg(t, "address")}, w, owner))

	root := rootSlot(w.Id, owner.Bytes())
	if got := h.slot(inst, addSlot(root, 2)); got != common.Hash(w.Vault.Id) {
		t.Errorf("nested id slot = %x", got)
	}
	child := rootSlot(w.Vault.Id, w.Id[:])
	hash := e.TypeHash(fx.vault)
	if got := h.slot(inst, child); !bytes.Equal(got[hashPos:], hash[:]) {
		t.Errorf("nested root = %x", got)
	}
	if got := h.slot(inst, addSlot(root, 3)); binary.BigEndian.Uint16(got[30:]) != w.N {
		t.Errorf("n slot = %x", got)
	}

	h.mustCall(inst, "wdel", pack(t, gethabi.Arguments{arg(t, "bytes32"), arg(t, "address")}, w.Id, owner))
	if got := h.slot(inst, child); got != (common.Hash{}) {
		t.Errorf("nested root = %x after delete", got)
	}
}

func TestEnumFields(t *testing.T) {
	fx := newFixture(t)
	fns := map[string][]ir.Type{
		"store": {fx.uid, ir.Address},
		"check": {fx.uid, ir.Address},
	}
	h := build(t, fx, fns, func(e *Engine, name string) routine {
		return func(f *wasm.Func, vals []uint32) {
			l := e.Lib
			b := f.Body
			shape := f.NewLocal(i32)
			v := f.NewLocal(i32)
			if name == "store" {
				store, err := e.Store(fx.drawing)
				if err != nil {
					t.Fatal(err)
				}
				l.AllocConst(b, 12)
				b.LocalSet(shape)
				b.LocalGet(shape).I32Const(1).I32Store(0)
				b.LocalGet(shape).I32Const(7).Call(l.Box(ir.U32)).I32Store(4)
				b.LocalGet(shape).I64Const(9).Call(l.Box(ir.U64)).I32Store(8)
				l.AllocConst(b, 12)
				b.LocalSet(v)
				b.LocalGet(v).LocalGet(vals[0]).Call(l.Box(fx.uid)).I32Store(0)
				b.LocalGet(v).LocalGet(shape).Call(l.Box(fx.shape)).I32Store(4)
				b.LocalGet(v).I32Const(5).Call(l.Box(ir.U8)).I32Store(8)
				b.LocalGet(v).LocalGet(vals[1]).Call(store)
				return
			}
			load, err := e.Load(fx.drawing)
			if err != nil {
				t.Fatal(err)
			}
			b.LocalGet(vals[0])
			rtlib.UnwrapID(b, fx.uid)
			b.LocalGet(vals[1]).Call(load).LocalSet(v)
			b.LocalGet(v)
			rtlib.Field(b, fx.shape, 1)
			b.LocalTee(shape).I32Load(0).I32Const(1).Op(wasm.OpI32Ne).TrapIf()
			b.LocalGet(shape)
			variantField(b, ir.U32, 0)
			b.I32Const(7).Op(wasm.OpI32Ne).TrapIf()
			b.LocalGet(shape)
			variantField(b, ir.U64, 1)
			b.I64Const(9).Op(wasm.OpI64Ne).TrapIf()
			b.LocalGet(v)
			rtlib.Field(b, ir.U8, 2)
			b.I32Const(5).Op(wasm.OpI32Ne).TrapIf()
		}
	})

	inst := h.instance()
	owner := common.HexToAddress("0x1234")
	id := common.HexToHash("0x0d1a")
	key := pack(t, gethabi.Arguments{arg(t, "bytes32"), arg(t, "address")}, id, owner)
	h.mustCall(inst, "store", key)
	h.mustCall(inst, "check", key)

	got := h.slot(inst, addSlot(rootSlot(id, owner.Bytes()), 2))
	if got[31] != 1 || binary.BigEndian.Uint32(got[27:31]) != 7 ||
		binary.BigEndian.Uint64(got[19:27]) != 9 || got[18] != 5 {
		t.Errorf("enum slot = %x", got)
	}
}

func TestFreshID(t *testing.T) {
	fx := newFixture(t)
	fns := map[string][]ir.Type{"fresh": {ir.Address}}
	h := build(t, fx, fns, func(e *Engine, _ string) routine {
		return func(f *wasm.Func, vals []uint32) {
			f.Body.LocalGet(vals[0]).Call(e.FreshID()).I32Const(SlotSize).Call(e.Lib.Host.WriteResult)
		}
	})
	inst := h.instance()
	sender := common.HexToAddress("0xabcd")
	data := pack(t, gethabi.Arguments{arg(t, "address")}, sender)

	var ids []common.Hash
	for n := uint64(1); n <= 2; n++ {
		h.mustCall(inst, "fresh", data)
		got := common.BytesToHash(inst.Output())
		var counter [32]byte
		binary.BigEndian.PutUint64(counter[24:], n)
		want := crypto.Keccak256(common.LeftPadBytes(sender.Bytes(), 32), counter[:])
		clear(want[:12])
		if got != common.BytesToHash(want) {
			t.Errorf("id %d = %x, want %x", n, got, want)
		}
		ids = append(ids, got)
	}
	if ids[0] == ids[1] {
		t.Error("fresh ids repeat")
	}
	counter := crypto.Keccak256Hash([]byte(CounterKey))
	if got := h.slot(inst, counter); got != common.BigToHash(big.NewInt(2)) {
		t.Errorf("counter slot = %x", got)
	}
}
