// Package move2wasm compiles Move bytecode into WebAssembly modules for a
// Stylus style EVM host.
//
// Each public or entry function of a root module becomes an entry in a
// Solidity ABI selector dispatch. Arguments are decoded from calldata,
// results are encoded back, and structs with the key ability live in
// Solidity style storage slots owned by an address, shared or frozen.
//
// # Architecture Overview
//
//	move2wasm/              Root package with CompileFile
//	├── move/               Move binary model, package files, BCS constants
//	│   ├── builder/        Programmatic CompiledModule construction
//	│   └── framework/      signer, object, tx_context, transfer, event
//	├── compiler/           Driver: worklist, module assembly, packages
//	│   ├── compilation/    Module data and the compilation context
//	│   ├── ir/             Intermediate types, structs and enums
//	│   ├── translate/      Per instruction translation and natives
//	│   ├── abi/            Solidity ABI packing, unpacking, selectors
//	│   ├── storage/        Storage slot encoding and object ownership
//	│   ├── router/         Selector dispatch and argument injection
//	│   ├── rtlib/          Runtime routines emitted on first use
//	│   └── hostio/         Host imports and the fixed memory layout
//	├── wasm/               WASM module model, emitter and encoder
//	├── host/               wazero backed host for tests and the CLI
//	├── config/             move2wasm.toml loading
//	├── errors/             Structured error types
//	└── cmd/move2wasm/      build, inspect and run commands
//
// # Quick Start
//
//	outs, err := move2wasm.CompileFile(ctx, "counter.mpk", compiler.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h, err := host.New(ctx, outs[0].Wasm, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close(ctx)
//
//	res, err := h.Call(ctx, sender, calldata)
//
// # Value Model
//
// bool, u8, u16 and u32 are i32 values and u64 is an i64. u128, u256,
// address, signer, vectors, structs and enums are i32 pointers into linear
// memory. Memory is handed out by a bump allocator and never freed; every
// call runs in a fresh instance.
//
// # Thread Safety
//
// Compilation of one module is sequential. CompilePackage and CompileAll
// compile independent modules concurrently against a shared, read-only
// registry. A host.Host runs each call in its own instance and commits
// storage under a lock.
package move2wasm
