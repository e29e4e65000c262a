// Package compiler drives the translation of Move modules into Stylus
// style WASM modules.
//
// A compilation starts from the routable functions of one root module.
// The router registers them in the function table, and the driver keeps
// translating registered functions until no callee is left undefined.
// Runtime routines and host imports are pulled in on first use, so the
// output only carries what the root module reaches.
package compiler

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/move2wasm/compiler/compilation"
	"github.com/wippyai/move2wasm/compiler/router"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/compiler/translate"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/move/framework"
	"github.com/wippyai/move2wasm/wasm"
)

// TableExport is the export name of the indirect call table
const TableExport = "__indirect_function_table"

// Options control module generation
type Options struct {
	// Entrypoint is the export name of the selector dispatch
	Entrypoint string
	// MemoryPages is the initial memory size in 64KiB pages
	MemoryPages uint64
	// MaxMemoryPages caps memory growth, 0 for no cap
	MaxMemoryPages uint64
	// CamelCase renames snake_case functions before computing selectors
	CamelCase bool
	// Events maps "address::module::Struct" to its indexed field count
	Events map[string]int
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Entrypoint:     "user_entrypoint",
		MemoryPages:    2,
		MaxMemoryPages: 256,
		CamelCase:      true,
	}
}

// Route describes one entrypoint route of a compiled module
type Route struct {
	Function  string
	Signature string
	Selector  [4]byte
	// Returns holds the Solidity result types
	Returns []string
}

// Output is one compiled module
type Output struct {
	Module    move.ModuleID
	Wasm      []byte
	Routes    []Route
	Functions int
	HeapStart uint32
}

// Compile compiles root. modules must hold root and every module it
// depends on; missing framework modules are supplied.
func Compile(modules []*move.CompiledModule, root move.ModuleID, opts Options) (*Output, error) {
	reg, err := compilation.BuildRegistry(withFramework(modules), compilation.Options{Events: opts.Events})
	if err != nil {
		return nil, err
	}
	return compileRoot(reg, root, opts)
}

// CompilePackage compiles every module of pkg. Modules are compiled
// concurrently against one shared registry.
func CompilePackage(ctx context.Context, pkg *move.Package, opts Options) ([]*Output, error) {
	var all, roots []*move.CompiledModule
	for i := range pkg.Modules {
		roots = append(roots, &pkg.Modules[i])
	}
	all = append(all, roots...)
	for i := range pkg.Deps {
		all = append(all, &pkg.Deps[i])
	}
	reg, err := compilation.BuildRegistry(withFramework(all), compilation.Options{Events: opts.Events})
	if err != nil {
		return nil, errors.WithPath(err, pkg.Name)
	}

	out := make([]*Output, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range roots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o, err := compileRoot(reg, m.Self(), opts)
			if err != nil {
				return errors.WithPath(err, pkg.Name)
			}
			out[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CompileAll compiles several packages concurrently. The result holds
// the outputs of each package in input order.
func CompileAll(ctx context.Context, pkgs []*move.Package, opts Options) ([][]*Output, error) {
	out := make([][]*Output, len(pkgs))
	g, ctx := errgroup.WithContext(ctx)
	for i, pkg := range pkgs {
		g.Go(func() error {
			o, err := CompilePackage(ctx, pkg, opts)
			if err != nil {
				return err
			}
			out[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// withFramework appends the framework modules modules does not define
func withFramework(modules []*move.CompiledModule) []*move.CompiledModule {
	have := make(map[move.ModuleID]bool, len(modules))
	for _, m := range modules {
		have[m.Self()] = true
	}
	out := append([]*move.CompiledModule{}, modules...)
	for _, m := range framework.Modules() {
		if !have[m.Self()] {
			out = append(out, m)
		}
	}
	return out
}

func compileRoot(reg compilation.Registry, root move.ModuleID, opts Options) (*Output, error) {
	start := time.Now()
	if opts.Entrypoint == "" {
		opts.Entrypoint = DefaultOptions().Entrypoint
	}
	ctx, err := compilation.NewContext(root, reg)
	if err != nil {
		return nil, err
	}

	b := wasm.NewModuleBuilder()
	lib := rtlib.New(b)
	table := translate.NewTable(b)
	tr := translate.New(lib, ctx, table)
	rt := router.New(tr, router.Options{CamelCase: opts.CamelCase})

	pending, err := rt.AddModule()
	if err != nil {
		return nil, err
	}
	for len(pending) > 0 {
		e := pending[0]
		pending = pending[1:]
		deps, err := tr.Translate(e)
		if err != nil {
			return nil, err
		}
		pending = append(pending, deps...)
	}
	if left := table.Undefined(); len(left) > 0 {
		panic("compiler: " + left[0].ID.Key() + " registered but never translated")
	}

	entry := rt.Entrypoint(opts.Entrypoint)
	heap, err := lib.Finalize(opts.MemoryPages, opts.MaxMemoryPages)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, root.String())
	}
	b.Export(opts.Entrypoint, wasm.KindFunc, entry)
	b.Export("memory", wasm.KindMemory, 0)
	if b.TableLen() > 0 {
		b.Export(TableExport, wasm.KindTable, 0)
	}
	mod, err := b.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, root.String())
	}

	out := &Output{
		Module:    root,
		Wasm:      mod.Encode(),
		Functions: b.NumFuncs(),
		HeapStart: heap,
	}
	for _, r := range rt.Routes() {
		out.Routes = append(out.Routes, Route{
			Function:  r.Function.QualifiedName(),
			Signature: r.Signature,
			Selector:  r.Selector,
			Returns:   r.Returns,
		})
	}
	Logger().Info("compiled module",
		zap.Stringer("module", root),
		zap.Int("routes", len(out.Routes)),
		zap.Int("functions", out.Functions),
		zap.Int("bytes", len(out.Wasm)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// String renders the route as "selector signature returns (types)"
func (r Route) String() string {
	if len(r.Returns) == 0 {
		return fmt.Sprintf("0x%x %s", r.Selector, r.Signature)
	}
	return fmt.Sprintf("0x%x %s returns (%s)", r.Selector, r.Signature, strings.Join(r.Returns, ","))
}

// Name returns the function name part of the signature
func (r Route) Name() string {
	name, _, _ := strings.Cut(r.Signature, "(")
	return name
}
