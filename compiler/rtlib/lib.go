// Package rtlib emits the runtime routines shared by generated code: the
// bump allocator, wide integer arithmetic, vector helpers, byte order
// conversion and storage slot arithmetic.
//
// Routines are generated on first use and cached by name, so a module
// only carries what its code needs.
package rtlib

import (
	"fmt"

	"github.com/wippyai/move2wasm/compiler/hostio"
	"github.com/wippyai/move2wasm/wasm"
)

const (
	i32  = wasm.ValI32
	i64  = wasm.ValI64
	void = wasm.BlockTypeVoid
)

// PageSize is the WASM page size
const PageSize = 65536

// Lib owns the runtime state of one generated module
type Lib struct {
	B    *wasm.ModuleBuilder
	Host hostio.Funcs
	// Heap is the global holding the next free heap address
	Heap    uint32
	dataEnd uint32
	data    map[string]uint32
}

// New declares the host imports and the heap pointer on b
func New(b *wasm.ModuleBuilder) *Lib {
	l := &Lib{
		B:       b,
		Host:    hostio.Declare(b),
		dataEnd: hostio.DataStart,
		data:    make(map[string]uint32),
	}
	l.Heap = b.AddGlobal(i32, true, wasm.I32Const(0))
	return l
}

// Get returns the function named name, generating it with gen on first
// use. The index is reserved before gen runs so routines may recurse.
func (l *Lib) Get(name string, params, results []wasm.ValType, gen func(f *wasm.Func)) uint32 {
	if idx, ok := l.B.FuncByName(name); ok {
		return idx
	}
	idx := l.B.Reserve(name, params, results)
	f := wasm.NewFunc(name, params, results)
	gen(f)
	l.B.Define(idx, f)
	return idx
}

// Data places bytes in a data segment and returns their address.
// Identical contents share one segment.
func (l *Lib) Data(bytes []byte) uint32 {
	key := string(bytes)
	if addr, ok := l.data[key]; ok {
		return addr
	}
	addr := l.dataEnd
	if len(bytes) > 0 {
		l.B.AddData(addr, bytes)
	}
	l.dataEnd = align8(addr + uint32(len(bytes)))
	l.data[key] = addr
	return addr
}

func align8(v uint32) uint32 {
	return (v + 7) &^ 7
}

// Finalize sets the heap start after the data segments and declares the
// memory. It returns the heap start.
func (l *Lib) Finalize(minPages, maxPages uint64) (uint32, error) {
	heap := align8(l.dataEnd)
	need := (uint64(heap) + PageSize - 1) / PageSize
	if need > minPages {
		minPages = need
	}
	if maxPages != 0 && minPages > maxPages {
		return 0, fmt.Errorf("constant data needs %d pages, limit is %d", minPages, maxPages)
	}
	l.B.SetGlobalInit(l.Heap, wasm.I32Const(int32(heap)))
	var max *uint64
	if maxPages != 0 {
		max = &maxPages
	}
	l.B.SetMemory(minPages, max)
	return heap, nil
}

// Alloc returns rt.alloc(size i32) -> i32. Blocks are 8-byte aligned and
// zeroed; memory grows on demand and a failed grow traps.
func (l *Lib) Alloc() uint32 {
	return l.Get("rt.alloc", []wasm.ValType{i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		p := f.NewLocal(i32)
		end := f.NewLocal(i32)
		b := f.Body
		b.GlobalGet(l.Heap).LocalTee(p).LocalGet(0).Op(wasm.OpI32Add).
			I32Const(7).Op(wasm.OpI32Add).I32Const(-8).Op(wasm.OpI32And).LocalSet(end)
		b.LocalGet(end).MemorySize().I32Const(16).Op(wasm.OpI32Shl).Op(wasm.OpI32GtU)
		b.If(void, func(t *wasm.Seq) {
			t.LocalGet(end).MemorySize().I32Const(16).Op(wasm.OpI32Shl).Op(wasm.OpI32Sub).
				I32Const(PageSize - 1).Op(wasm.OpI32Add).I32Const(16).Op(wasm.OpI32ShrU).
				MemoryGrow().I32Const(-1).Op(wasm.OpI32Eq).TrapIf()
		}, nil)
		b.LocalGet(end).GlobalSet(l.Heap)
		b.LocalGet(p)
	})
}

// AllocConst emits a call allocating size bytes, leaving the pointer on
// the stack
func (l *Lib) AllocConst(s *wasm.Seq, size int) {
	s.I32Const(int32(size)).Call(l.Alloc())
}

// Clone returns rt.clone(src, n) -> i32, a fresh copy of n bytes
func (l *Lib) Clone() uint32 {
	return l.Get("rt.clone", []wasm.ValType{i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		dst := f.NewLocal(i32)
		b := f.Body
		b.LocalGet(1).Call(l.Alloc()).LocalTee(dst)
		b.LocalGet(0).LocalGet(1).MemoryCopy()
		b.LocalGet(dst)
	})
}

// MemEq returns rt.mem_eq(a, b, n) -> i32
func (l *Lib) MemEq() uint32 {
	return l.Get("rt.mem_eq", []wasm.ValType{i32, i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		i := f.NewLocal(i32)
		b := f.Body
		b.ForRange(i, 2, func(body *wasm.Seq) {
			body.LocalGet(0).LocalGet(i).Op(wasm.OpI32Add).I32Load8U(0)
			body.LocalGet(1).LocalGet(i).Op(wasm.OpI32Add).I32Load8U(0)
			body.Op(wasm.OpI32Ne).If(void, func(t *wasm.Seq) {
				t.I32Const(0).Return()
			}, nil)
		})
		b.I32Const(1)
	})
}

// IsZero returns rt.is_zero(p, n) -> i32, 1 when n bytes at p are zero
func (l *Lib) IsZero() uint32 {
	return l.Get("rt.is_zero", []wasm.ValType{i32, i32}, []wasm.ValType{i32}, func(f *wasm.Func) {
		i := f.NewLocal(i32)
		b := f.Body
		b.ForRange(i, 1, func(body *wasm.Seq) {
			body.LocalGet(0).LocalGet(i).Op(wasm.OpI32Add).I32Load8U(0)
			body.If(void, func(t *wasm.Seq) {
				t.I32Const(0).Return()
			}, nil)
		})
		b.I32Const(1)
	})
}

// Keccak emits a keccak256 of n bytes at the address on the stack into
// out. Stack: [ptr] -> [].
func (l *Lib) Keccak(s *wasm.Seq, n int32, out uint32) {
	s.I32Const(n).I32Const(int32(out)).Call(l.Host.NativeKeccak256)
}
