// Package hostio declares the host functions generated modules import and
// the fixed, call-scoped region at the bottom of linear memory.
package hostio

import "github.com/wippyai/move2wasm/wasm"

// ImportModule is the module name of every host import
const ImportModule = "vm_hooks"

// Host function names
const (
	ReadArgs           = "read_args"
	WriteResult        = "write_result"
	StorageLoadBytes32 = "storage_load_bytes32"
	StorageCache       = "storage_cache_bytes32"
	StorageFlushCache  = "storage_flush_cache"
	NativeKeccak256    = "native_keccak256"
	TxOrigin           = "tx_origin"
	EmitLog            = "emit_log"
)

// Call-scoped memory region. The router resets it at the start of every
// call.
const (
	// AbortFlag is an i32 set to 1 by an explicit abort
	AbortFlag uint32 = 0
	// AbortCode is the u64 abort code
	AbortCode uint32 = 8
	// ArgsEnd is the i32 address one past the last calldata byte; ABI
	// decoding never reads beyond it
	ArgsEnd uint32 = 16
	// SlotScratch receives storage_load_bytes32 results
	SlotScratch uint32 = 32
	// KeyScratch is a 64-byte buffer for slot derivation preimages
	KeyScratch uint32 = 64
	// HashScratch receives keccak outputs
	HashScratch uint32 = 128
	// ValueScratch is a 32-byte word for converting values to and from
	// their big-endian storage form
	ValueScratch uint32 = 160
	// DataStart is the first byte of constant data segments
	DataStart uint32 = 256
)

var i32 = wasm.ValI32

// Import is one host function signature
type Import struct {
	Name    string
	Params  []wasm.ValType
	Results []wasm.ValType
}

// Imports lists the host functions in import order
var Imports = []Import{
	{Name: ReadArgs, Params: []wasm.ValType{i32}},
	{Name: WriteResult, Params: []wasm.ValType{i32, i32}},
	{Name: StorageLoadBytes32, Params: []wasm.ValType{i32, i32}},
	{Name: StorageCache, Params: []wasm.ValType{i32, i32}},
	{Name: StorageFlushCache, Params: []wasm.ValType{i32}},
	{Name: NativeKeccak256, Params: []wasm.ValType{i32, i32, i32}},
	{Name: TxOrigin, Params: []wasm.ValType{i32}},
	{Name: EmitLog, Params: []wasm.ValType{i32, i32, i32}},
}

// Funcs holds the function indices of the declared imports
type Funcs struct {
	ReadArgs           uint32
	WriteResult        uint32
	StorageLoadBytes32 uint32
	StorageCache       uint32
	StorageFlushCache  uint32
	NativeKeccak256    uint32
	TxOrigin           uint32
	EmitLog            uint32
}

// Declare adds every import to b. It must run before any function is
// reserved.
func Declare(b *wasm.ModuleBuilder) Funcs {
	idx := make(map[string]uint32, len(Imports))
	for _, im := range Imports {
		idx[im.Name] = b.ImportFunc(ImportModule, im.Name, im.Params, im.Results)
	}
	return Funcs{
		ReadArgs:           idx[ReadArgs],
		WriteResult:        idx[WriteResult],
		StorageLoadBytes32: idx[StorageLoadBytes32],
		StorageCache:       idx[StorageCache],
		StorageFlushCache:  idx[StorageFlushCache],
		NativeKeccak256:    idx[NativeKeccak256],
		TxOrigin:           idx[TxOrigin],
		EmitLog:            idx[EmitLog],
	}
}
