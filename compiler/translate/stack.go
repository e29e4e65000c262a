package translate

import (
	"fmt"

	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/errors"
)

// Stack mirrors the Move operand stack at compile time. Verified bytecode
// never underflows it, so underflow is an internal error and panics.
type Stack struct {
	types []ir.Type
}

// Push pushes types in order
func (s *Stack) Push(types ...ir.Type) {
	s.types = append(s.types, types...)
}

// Pop removes the top type
func (s *Stack) Pop() ir.Type {
	n := len(s.types)
	if n == 0 {
		panic("translate: type stack underflow")
	}
	t := s.types[n-1]
	s.types = s.types[:n-1]
	return t
}

// PopExpecting pops the top type and checks it against want. A mutable
// reference satisfies an immutable one.
func (s *Stack) PopExpecting(want ir.Type) (ir.Type, error) {
	got := s.Pop()
	if !assignable(want, got) {
		return got, errors.TypeMismatch(errors.PhaseTranslate, want, got)
	}
	return got, nil
}

// PopN pops n types and returns them bottom first
func (s *Stack) PopN(n int) []ir.Type {
	if n > len(s.types) {
		panic(fmt.Sprintf("translate: type stack underflow popping %d of %d", n, len(s.types)))
	}
	out := append([]ir.Type{}, s.types[len(s.types)-n:]...)
	s.types = s.types[:len(s.types)-n]
	return out
}

// Peek returns the top type without popping it
func (s *Stack) Peek() ir.Type {
	if len(s.types) == 0 {
		panic("translate: peek on empty type stack")
	}
	return s.types[len(s.types)-1]
}

// Len returns the stack depth
func (s *Stack) Len() int { return len(s.types) }

// AssertEmpty panics unless the stack is empty
func (s *Stack) AssertEmpty(where string) {
	if len(s.types) != 0 {
		panic(fmt.Sprintf("translate: %d values left on the type stack at %s: %v", len(s.types), where, s.types))
	}
}

func assignable(want, got ir.Type) bool {
	if want.Kind == ir.KindRef && got.Kind == ir.KindMutRef {
		return want.Deref().Equal(got.Deref())
	}
	return want.Equal(got)
}
