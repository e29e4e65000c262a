// Package host runs compiled contracts on wazero and implements the
// vm_hooks imports over an in-memory slot store.
//
// Every call gets a fresh instance. Storage writes are staged in a cache,
// moved aside by storage_flush_cache and committed only when the entrypoint
// returns status 0; a trap or a revert leaves storage untouched.
package host

import (
	"context"
	"maps"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/move2wasm/errors"
)

// DefaultEntrypoint is the router export called by Call
const DefaultEntrypoint = "user_entrypoint"

// Config holds host options
type Config struct {
	// Entrypoint overrides DefaultEntrypoint
	Entrypoint string
	// MemoryLimitPages caps instance memory. 0 keeps the wazero default.
	MemoryLimitPages uint32
}

// Log is an emitted event
type Log struct {
	Topics []common.Hash
	Data   []byte
}

// Result is the outcome of a call that did not trap. Status is 0 on
// success, 1 on an explicit abort and -1 when no selector matched.
type Result struct {
	Output []byte
	Logs   []Log
	Status int32
}

// Revert decodes an Error(string) payload returned with status 1
func (r *Result) Revert() (string, error) {
	return abi.UnpackRevert(r.Output)
}

// Host executes one compiled module against its own storage
type Host struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	storage  map[common.Hash]common.Hash
	entry    string
	mu       sync.RWMutex
}

// New compiles code and prepares the vm_hooks module. cfg may be nil.
func New(ctx context.Context, code []byte, cfg *Config) (*Host, error) {
	rc := wazero.NewRuntimeConfig()
	entry := DefaultEntrypoint
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Entrypoint != "" {
			entry = cfg.Entrypoint
		}
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rc)
	if err := instantiateHooks(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "vm_hooks")
	}
	compiled, err := rt.CompileModule(ctx, code)
	if err != nil {
		rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, "compile module")
	}
	return &Host{
		runtime:  rt,
		compiled: compiled,
		storage:  make(map[common.Hash]common.Hash),
		entry:    entry,
	}, nil
}

// Close releases the runtime
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// Slot returns the committed value of key
func (h *Host) Slot(key common.Hash) common.Hash {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.storage[key]
}

// SetSlot commits value under key
func (h *Host) SetSlot(key, value common.Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.set(key, value)
}

func (h *Host) set(key, value common.Hash) {
	if value == (common.Hash{}) {
		delete(h.storage, key)
		return
	}
	h.storage[key] = value
}

// Slots returns a copy of every non-zero committed slot
func (h *Host) Slots() map[common.Hash]common.Hash {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.storage)
}

// Call runs the entrypoint with calldata on behalf of sender
func (h *Host) Call(ctx context.Context, sender common.Address, calldata []byte) (*Result, error) {
	inst, err := h.Instantiate(ctx, sender, calldata)
	if err != nil {
		return nil, err
	}
	defer inst.Close(ctx)

	out, err := inst.Invoke(ctx, h.entry, uint64(len(calldata)))
	if err != nil {
		Logger().Debug("call trapped", zap.Int("calldata", len(calldata)), zap.Error(err))
		return nil, err
	}
	res := &Result{Status: int32(api.DecodeU32(out[0])), Output: inst.tx.output}
	if res.Status == 0 {
		h.mu.Lock()
		for k, v := range inst.tx.flushed {
			h.set(k, v)
		}
		h.mu.Unlock()
		res.Logs = inst.tx.logs
	}
	Logger().Debug("call finished",
		zap.Int32("status", res.Status),
		zap.Int("output", len(res.Output)),
		zap.Int("slots", len(inst.tx.flushed)))
	return res, nil
}

// Instantiate creates a fresh instance bound to a transaction of sender
// with calldata. The caller closes it.
func (h *Host) Instantiate(ctx context.Context, sender common.Address, calldata []byte) (*Instance, error) {
	mod, err := h.runtime.InstantiateModule(ctx, h.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate")
	}
	return &Instance{
		mod: mod,
		tx: &tx{
			host:     h,
			sender:   sender,
			calldata: calldata,
			cache:    make(map[common.Hash]common.Hash),
			flushed:  make(map[common.Hash]common.Hash),
		},
	}, nil
}

// Instance is one instantiated module and its transaction state
type Instance struct {
	mod api.Module
	tx  *tx
}

// Invoke calls an exported function
func (i *Instance) Invoke(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, errors.KindFunctionNotFound, "export %s", name)
	}
	out, err := fn.Call(context.WithValue(ctx, txKey{}, i.tx), args...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidOperation, err, name+" trapped")
	}
	return out, nil
}

// Read copies n bytes of memory at off
func (i *Instance) Read(off, n uint32) ([]byte, bool) {
	b, ok := i.mod.Memory().Read(off, n)
	if !ok {
		return nil, false
	}
	return append([]byte{}, b...), true
}

// Write copies data into memory at off
func (i *Instance) Write(off uint32, data []byte) bool {
	return i.mod.Memory().Write(off, data)
}

// Output returns the bytes passed to write_result so far
func (i *Instance) Output() []byte {
	return i.tx.output
}

// Flushed returns the slots staged by storage_flush_cache
func (i *Instance) Flushed() map[common.Hash]common.Hash {
	return i.tx.flushed
}

// Logs returns the events emitted so far
func (i *Instance) Logs() []Log {
	return i.tx.logs
}

// Close releases the instance
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}
