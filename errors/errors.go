package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which compiler stage produced the error
type Phase string

const (
	PhaseLoad      Phase = "load"      // package/module loading
	PhaseContext   Phase = "context"   // compilation context construction
	PhaseTranslate Phase = "translate" // bytecode to WASM
	PhaseABI       Phase = "abi"       // Solidity ABI packing/unpacking
	PhaseStorage   Phase = "storage"   // storage slot layout
	PhaseRouter    Phase = "router"    // entrypoint construction
	PhaseLink      Phase = "link"      // cross-module function resolution
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseHost      Phase = "host"      // host execution
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch                    Kind = "type_mismatch"
	KindOperationTypeMismatch           Kind = "operation_type_mismatch"
	KindInvalidBinaryOperation          Kind = "invalid_binary_operation"
	KindInvalidOperation                Kind = "invalid_operation"
	KindUnsupported                     Kind = "unsupported"
	KindReferenceInsideStruct           Kind = "found_reference_inside_struct"
	KindReferenceInsideEnum             Kind = "found_reference_inside_enum"
	KindTypeParameterInsideStruct       Kind = "found_type_parameter_inside_struct"
	KindTypeParameterInsideEnumVariant  Kind = "found_type_parameter_inside_enum_variant"
	KindStructNotFound                  Kind = "struct_not_found"
	KindStructWithFieldIdxNotFound      Kind = "struct_with_field_idx_not_found"
	KindStructWithDefinitionIdxNotFound Kind = "struct_with_definition_idx_not_found"
	KindEnumNotFound                    Kind = "enum_not_found"
	KindModuleNotFound                  Kind = "module_not_found"
	KindFunctionNotFound                Kind = "function_not_found"
	KindSignerPosition                  Kind = "signer_position"
	KindSignerInComplexType             Kind = "signer_in_complex_type"
	KindJumpTable                       Kind = "unsupported_jump_table"
	KindAcquires                        Kind = "acquires"
	KindInvalidData                     Kind = "invalid_data"
	KindInvalidInput                    Kind = "invalid_input"
	KindNotFound                        Kind = "not_found"
	KindInstantiation                   Kind = "instantiation"
)

// Error is the structured error type used throughout the compiler
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Expected string
	Found    string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "::"))
	}

	if e.Expected != "" || e.Found != "" {
		b.WriteString(": ")
		if e.Expected != "" && e.Found != "" {
			b.WriteString("expected ")
			b.WriteString(e.Expected)
			b.WriteString(", found ")
			b.WriteString(e.Found)
		} else if e.Expected != "" {
			b.WriteString("expected ")
			b.WriteString(e.Expected)
		} else {
			b.WriteString("found ")
			b.WriteString(e.Found)
		}
	}

	if e.Detail != "" {
		if e.Expected != "" || e.Found != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path (module, function, argument)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Expected sets the expected type or value
func (b *Builder) Expected(s string) *Builder {
	b.err.Expected = s
	return b
}

// Found sets the type or value that was found instead
func (b *Builder) Found(s string) *Builder {
	b.err.Found = s
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, expected, found fmt.Stringer) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Expected: expected.String(),
		Found:    found.String(),
	}
}

// OperationTypeMismatch reports operands of an operation with different types
func OperationTypeMismatch(op string, a, b fmt.Stringer) *Error {
	return &Error{
		Phase:    PhaseTranslate,
		Kind:     KindOperationTypeMismatch,
		Expected: a.String(),
		Found:    b.String(),
		Detail:   fmt.Sprintf("operands of %s", op),
	}
}

// InvalidBinaryOperation reports an operation applied to a type that does not support it
func InvalidBinaryOperation(op string, t fmt.Stringer) *Error {
	return &Error{
		Phase:  PhaseTranslate,
		Kind:   KindInvalidBinaryOperation,
		Found:  t.String(),
		Detail: fmt.Sprintf("%s is not defined for this type", op),
	}
}

// InvalidOperation reports an instruction applied to an unexpected operand
func InvalidOperation(op string, t fmt.Stringer) *Error {
	return &Error{
		Phase:  PhaseTranslate,
		Kind:   KindInvalidOperation,
		Found:  t.String(),
		Detail: op,
	}
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a lookup failure error of the given kind
func NotFound(phase Phase, kind Kind, what string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: fmt.Sprintf(what, args...),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a package loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates a host instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// WithPath returns a copy of err with path prepended when err is an *Error.
// Other errors are returned unchanged.
func WithPath(err error, path ...string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	cp := *e
	cp.Path = append(append([]string{}, path...), e.Path...)
	return &cp
}
