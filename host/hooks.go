package host

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/move2wasm/compiler/hostio"
)

type txKey struct{}

// tx is the state of one call
type tx struct {
	host     *Host
	cache    map[common.Hash]common.Hash
	flushed  map[common.Hash]common.Hash
	calldata []byte
	output   []byte
	logs     []Log
	sender   common.Address
}

func (t *tx) load(key common.Hash) common.Hash {
	if v, ok := t.cache[key]; ok {
		return v
	}
	if v, ok := t.flushed[key]; ok {
		return v
	}
	return t.host.Slot(key)
}

func current(ctx context.Context) *tx {
	t, ok := ctx.Value(txKey{}).(*tx)
	if !ok {
		panic("vm_hooks called outside a transaction")
	}
	return t
}

func read(mod api.Module, ptr, n uint32) []byte {
	b, ok := mod.Memory().Read(ptr, n)
	if !ok {
		panic(fmt.Sprintf("vm_hooks: read of %d bytes at %d out of range", n, ptr))
	}
	return append([]byte{}, b...)
}

func write(mod api.Module, ptr uint32, data []byte) {
	if !mod.Memory().Write(ptr, data) {
		panic(fmt.Sprintf("vm_hooks: write of %d bytes at %d out of range", len(data), ptr))
	}
}

func arg(stack []uint64, i int) uint32 {
	return api.DecodeU32(stack[i])
}

var hooks = map[string]api.GoModuleFunc{
	hostio.ReadArgs: func(ctx context.Context, mod api.Module, stack []uint64) {
		write(mod, arg(stack, 0), current(ctx).calldata)
	},
	hostio.WriteResult: func(ctx context.Context, mod api.Module, stack []uint64) {
		current(ctx).output = read(mod, arg(stack, 0), arg(stack, 1))
	},
	hostio.StorageLoadBytes32: func(ctx context.Context, mod api.Module, stack []uint64) {
		key := common.BytesToHash(read(mod, arg(stack, 0), 32))
		v := current(ctx).load(key)
		write(mod, arg(stack, 1), v[:])
	},
	hostio.StorageCache: func(ctx context.Context, mod api.Module, stack []uint64) {
		key := common.BytesToHash(read(mod, arg(stack, 0), 32))
		current(ctx).cache[key] = common.BytesToHash(read(mod, arg(stack, 1), 32))
	},
	hostio.StorageFlushCache: func(ctx context.Context, mod api.Module, stack []uint64) {
		t := current(ctx)
		for k, v := range t.cache {
			t.flushed[k] = v
		}
		if arg(stack, 0) != 0 {
			clear(t.cache)
		}
	},
	hostio.NativeKeccak256: func(ctx context.Context, mod api.Module, stack []uint64) {
		write(mod, arg(stack, 2), crypto.Keccak256(read(mod, arg(stack, 0), arg(stack, 1))))
	},
	hostio.TxOrigin: func(ctx context.Context, mod api.Module, stack []uint64) {
		write(mod, arg(stack, 0), current(ctx).sender.Bytes())
	},
	hostio.EmitLog: func(ctx context.Context, mod api.Module, stack []uint64) {
		data := read(mod, arg(stack, 0), arg(stack, 1))
		topics := int(arg(stack, 2))
		if topics*32 > len(data) {
			panic(fmt.Sprintf("vm_hooks: %d topics in %d bytes", topics, len(data)))
		}
		l := Log{Data: data[topics*32:]}
		for i := 0; i < topics; i++ {
			l.Topics = append(l.Topics, common.BytesToHash(data[i*32:(i+1)*32]))
		}
		t := current(ctx)
		t.logs = append(t.logs, l)
		Logger().Debug("emit_log", zap.Int("topics", topics), zap.Int("data", len(l.Data)))
	},
}

func instantiateHooks(ctx context.Context, rt wazero.Runtime) error {
	b := rt.NewHostModuleBuilder(hostio.ImportModule)
	for _, im := range hostio.Imports {
		fn, ok := hooks[im.Name]
		if !ok {
			return fmt.Errorf("no implementation for %s.%s", hostio.ImportModule, im.Name)
		}
		b.NewFunctionBuilder().
			WithGoModuleFunction(fn, valueTypes(len(im.Params)), valueTypes(len(im.Results))).
			Export(im.Name)
	}
	_, err := b.Instantiate(ctx)
	return err
}

func valueTypes(n int) []api.ValueType {
	out := make([]api.ValueType, n)
	for i := range out {
		out[i] = api.ValueTypeI32
	}
	return out
}
