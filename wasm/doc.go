// Package wasm provides the WebAssembly module model and binary encoder used
// by the code generator.
//
// Only the subset of WebAssembly the compiler emits is modelled: integer
// value types, functions, a single funcref table, one linear memory,
// globals, active element and data segments, bulk memory copy/fill and a
// function-name section.
//
// # Building
//
// ModuleBuilder reserves function indices before bodies exist so that
// recursive and mutually recursive functions can reference each other:
//
//	b := wasm.NewModuleBuilder()
//	log := b.ImportFunc("env", "log", []wasm.ValType{wasm.ValI32}, nil)
//	f := wasm.NewFunc("main", nil, []wasm.ValType{wasm.ValI32})
//	f.Body.I32Const(7).Call(log).I32Const(0)
//	idx := b.AddFunc(f)
//	b.Export("main", wasm.KindFunc, idx)
//	mod, err := b.Build()
//	binary := mod.Encode()
//
// # Structured control flow
//
// Seq tracks nesting depth so branches name their target Label instead of
// a relative index:
//
//	f.Body.Block(wasm.BlockTypeVoid, func(b *wasm.Seq, done wasm.Label) {
//		b.Loop(wasm.BlockTypeVoid, func(l *wasm.Seq, top wasm.Label) {
//			l.LocalGet(i).Op(wasm.OpI32Eqz).BrIf(done)
//			l.Br(top)
//		})
//	})
//
// # LEB128 Encoding
//
// The package provides the LEB128 writers used by the encoder and readers
// used when inspecting encoded immediates.
package wasm
