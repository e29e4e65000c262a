// Package errors provides structured error types for the move2wasm compiler.
//
// Errors are categorized by Phase (which compiler stage failed) and Kind
// (error category). The Error type carries the location path, the expected
// and found types, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRouter, errors.KindSignerPosition).
//		Path("counter", "increment", "arg1").
//		Detail("signer must be the first parameter").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseTranslate, expected, found)
//	err := errors.Unsupported(errors.PhaseTranslate, "jump tables")
//
// Only conditions caused by the input program are reported as errors.
// Internal inconsistencies (typed stack underflow, indices that earlier
// stages already validated) panic.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
