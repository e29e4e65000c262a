// Package router builds the contract entrypoint: a selector dispatch over
// the public and entry functions of the root module.
//
// Each routed function gets a route taking the address of its ABI encoded
// arguments and returning the call status. A route decodes the arguments,
// injects the signer and the transaction context, loads object arguments
// from storage, calls the function, writes the encoded results or the
// revert payload and flushes the storage cache.
package router

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/move2wasm/compiler/abi"
	"github.com/wippyai/move2wasm/compiler/compilation"
	"github.com/wippyai/move2wasm/compiler/hostio"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/translate"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/wasm"
)

const (
	i32  = wasm.ValI32
	void = wasm.BlockTypeVoid
)

// Call status returned by the entrypoint
const (
	StatusOK       = 0
	StatusAbort    = 1
	StatusNoMatch  = -1
	abortPrefix    = "Move abort code: "
	revertDataHead = 4 + 32 + 32
)

// Options tune selector naming
type Options struct {
	// CamelCase renames snake_case functions to lowerCamelCase before
	// computing selectors
	CamelCase bool
}

// Route is one routed function
type Route struct {
	Function  *compilation.Function
	Entry     *translate.Entry
	Signature string
	Selector  [4]byte
	// Returns holds the Solidity names of the encoded results
	Returns []string
	// Func is the index of the generated route function
	Func uint32
}

// Router collects routes into one module
type Router struct {
	tr     *translate.Translator
	opts   Options
	routes []*Route
	bySel  map[[4]byte]*Route
}

// New returns a router generating routes through tr
func New(tr *translate.Translator, opts Options) *Router {
	return &Router{tr: tr, opts: opts, bySel: make(map[[4]byte]*Route)}
}

// Routable reports whether fn is exposed through the entrypoint
func Routable(fn *compilation.Function) bool {
	return !fn.IsGeneric() && (fn.Visibility == move.VisibilityPublic || fn.IsEntry)
}

// Routes returns the routes added so far in order
func (r *Router) Routes() []*Route {
	return r.routes
}

// AddModule routes every routable function of the root module. It
// returns the table entries the routes registered, which still have to
// be translated.
func (r *Router) AddModule() ([]*translate.Entry, error) {
	var pending []*translate.Entry
	for _, fn := range r.tr.Ctx.Root.Definitions() {
		if !Routable(fn) {
			continue
		}
		e, added, err := r.Add(fn)
		if err != nil {
			return nil, err
		}
		if added {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// Add registers fn and generates its route. added reports whether the
// entry is new to the table.
func (r *Router) Add(fn *compilation.Function) (e *translate.Entry, added bool, err error) {
	if fn.IsGeneric() {
		return nil, false, errors.Unsupported(errors.PhaseRouter, "generic function "+fn.QualifiedName())
	}
	params, err := r.classify(fn)
	if err != nil {
		return nil, false, errors.WithPath(err, fn.QualifiedName())
	}
	returns := make([]ir.Type, len(fn.Returns))
	retNames := make([]string, len(fn.Returns))
	for i, t := range fn.Returns {
		returns[i] = t
		if t.IsReference() {
			returns[i] = t.Deref()
		}
		if err := r.tr.ABI.Check(returns[i]); err != nil {
			return nil, false, errors.WithPath(err, fn.QualifiedName(), fmt.Sprintf("return %d", i))
		}
		retNames[i] = r.tr.ABI.SolidityName(returns[i])
	}

	var names []string
	for _, p := range params {
		if p.decode != nil {
			names = append(names, r.tr.ABI.SolidityName(*p.decode))
		}
	}
	sig := abi.Signature(abi.FunctionName(fn.Name, r.opts.CamelCase), names)
	sel := abi.Selector(sig)
	if prev, dup := r.bySel[sel]; dup {
		return nil, false, errors.New(errors.PhaseRouter, errors.KindInvalidData).
			Path(fn.QualifiedName()).
			Detail("selector of %s collides with %s", sig, prev.Signature).Build()
	}

	e, added, err = r.tr.Register(translate.FunctionID{Module: fn.Module, Name: fn.Name})
	if err != nil {
		return nil, false, err
	}
	rt := &Route{Function: fn, Entry: e, Signature: sig, Selector: sel, Returns: retNames}
	f, err := r.route(rt, params, returns)
	if err != nil {
		return nil, false, errors.WithPath(err, fn.QualifiedName())
	}
	rt.Func = r.tr.Lib.B.AddFunc(f)
	r.routes = append(r.routes, rt)
	r.bySel[sel] = rt
	Logger().Debug("routed function",
		zap.String("function", fn.QualifiedName()),
		zap.String("signature", sig),
		zap.String("selector", fmt.Sprintf("%x", sel)))
	return e, added, nil
}

// Entrypoint generates the exported entrypoint(len) -> status. It zeroes
// the call-scoped region, copies the calldata to the heap and dispatches
// on the selector. Unknown selectors and calldata shorter than a
// selector return StatusNoMatch.
func (r *Router) Entrypoint(name string) uint32 {
	l := r.tr.Lib
	f := wasm.NewFunc(name, []wasm.ValType{i32}, []wasm.ValType{i32})
	const size = 0
	ptr := f.NewLocal(i32)
	sel := f.NewLocal(i32)
	b := f.Body
	b.I32Const(0).I32Const(0).I32Const(int32(hostio.SlotScratch)).MemoryFill()
	b.LocalGet(size).Call(l.Alloc()).LocalTee(ptr).Call(l.Host.ReadArgs)
	b.I32Const(0).LocalGet(ptr).LocalGet(size).Op(wasm.OpI32Add).I32Store(hostio.ArgsEnd)
	b.LocalGet(size).I32Const(4).Op(wasm.OpI32LtU).If(void, func(then *wasm.Seq) {
		then.I32Const(StatusNoMatch).Return()
	}, nil)
	b.LocalGet(ptr).I32Load(0).LocalSet(sel)
	for _, rt := range r.routes {
		b.LocalGet(sel).I32Const(int32(binary.LittleEndian.Uint32(rt.Selector[:]))).Op(wasm.OpI32Eq)
		b.If(void, func(then *wasm.Seq) {
			then.LocalGet(ptr).I32Const(4).Op(wasm.OpI32Add).Call(rt.Func).Return()
		}, nil)
	}
	b.I32Const(StatusNoMatch)
	return l.B.AddFunc(f)
}

// revert returns router.revert(), which writes the Error(string) payload
// "Move abort code: <code>" for the pending abort as the call result
func (r *Router) revert() uint32 {
	l := r.tr.Lib
	return l.Get("router.revert", nil, nil, func(f *wasm.Func) {
		buf := f.NewLocal(i32)
		n := f.NewLocal(i32)
		prefix := []byte(abortPrefix)
		b := f.Body
		// prefix plus at most 20 digits fits two words
		l.AllocConst(b, revertDataHead+64)
		b.LocalTee(buf).I32Const(int32(binary.LittleEndian.Uint32(abi.RevertSelector[:]))).I32Store(0)
		b.LocalGet(buf).I32Const(32).I32Store8(4 + 31)
		b.LocalGet(buf).I32Const(revertDataHead).Op(wasm.OpI32Add)
		b.I32Const(int32(l.Data(prefix))).I32Const(int32(len(prefix))).MemoryCopy()
		b.I32Const(0).I64Load(hostio.AbortCode)
		b.LocalGet(buf).I32Const(int32(revertDataHead + len(prefix))).Op(wasm.OpI32Add)
		b.Call(l.U64ToDecimal()).I32Const(int32(len(prefix))).Op(wasm.OpI32Add).LocalSet(n)
		b.LocalGet(buf).LocalGet(n).I32Store8(4 + 32 + 31)
		b.LocalGet(buf)
		b.LocalGet(n).I32Const(31).Op(wasm.OpI32Add).I32Const(-32).Op(wasm.OpI32And)
		b.I32Const(revertDataHead).Op(wasm.OpI32Add)
		b.Call(l.Host.WriteResult)
	})
}

// abortPending pushes the abort flag
func abortPending(s *wasm.Seq) {
	s.I32Const(0).I32Load(hostio.AbortFlag)
}

func (r *Router) flush(s *wasm.Seq) {
	s.I32Const(1).Call(r.tr.Lib.Host.StorageFlushCache)
}

// IsAbortPayload reports whether output starts with the Error(string)
// selector
func IsAbortPayload(output []byte) bool {
	return len(output) >= 4 && [4]byte(output[:4]) == abi.RevertSelector
}
