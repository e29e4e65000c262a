// Package translate lowers Move bytecode functions to WASM.
//
// Values travel on the WASM stack as raw i32/i64 for bool..u64 and as
// pointers for everything else. Every non-reference Move local is an i32
// local pointing at a cell holding the value, so borrowing a local is
// taking that pointer. References point at such cells: a local's cell, a
// struct field's cell or a vector element slot.
//
// Control flow is a loop around a br_table over basic blocks, indexed by
// a pc local. Calls go through the indirect call table; callees that are
// not in the table yet are registered and returned as dependencies. An
// explicit abort sets the abort flag and unwinds through every caller.
package translate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/move2wasm/compiler/abi"
	"github.com/wippyai/move2wasm/compiler/compilation"
	"github.com/wippyai/move2wasm/compiler/hostio"
	"github.com/wippyai/move2wasm/compiler/ir"
	"github.com/wippyai/move2wasm/compiler/rtlib"
	"github.com/wippyai/move2wasm/compiler/storage"
	"github.com/wippyai/move2wasm/errors"
	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/wasm"
)

const (
	i32  = wasm.ValI32
	i64  = wasm.ValI64
	void = wasm.BlockTypeVoid
)

// Translator lowers functions into the module owned by Lib
type Translator struct {
	Lib     *rtlib.Lib
	ABI     *abi.Engine
	Storage *storage.Engine
	Ctx     *compilation.Context
	Table   *Table
}

// New returns a translator resolving definitions through ctx
func New(lib *rtlib.Lib, ctx *compilation.Context, table *Table) *Translator {
	return &Translator{
		Lib:     lib,
		ABI:     abi.New(lib, ctx),
		Storage: storage.New(lib, ctx),
		Ctx:     ctx,
		Table:   table,
	}
}

// Definition returns the definition of the function id names
func (t *Translator) Definition(id FunctionID) (*compilation.Function, error) {
	md, err := t.Ctx.GetModuleDataByID(id.Module)
	if err != nil {
		return nil, err
	}
	fn, ok := md.Definition(id.Name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLink, errors.KindFunctionNotFound, "%s", id.Key())
	}
	if len(fn.TypeParams) != len(id.TypeArgs) {
		return nil, errors.New(errors.PhaseLink, errors.KindInstantiation).Path(id.Key()).
			Detail("%d type arguments for %d type parameters", len(id.TypeArgs), len(fn.TypeParams)).Build()
	}
	for _, a := range id.TypeArgs {
		if a.HasTypeParameter() {
			panic("translate: non-concrete type argument in " + id.Key())
		}
	}
	return fn, nil
}

// Register returns the table entry of id, registering it when missing.
// added reports whether the entry is new and still has to be translated.
func (t *Translator) Register(id FunctionID) (e *Entry, added bool, err error) {
	if e, ok := t.Table.Lookup(id); ok {
		return e, false, nil
	}
	fn, err := t.Definition(id)
	if err != nil {
		return nil, false, err
	}
	e, added = t.Table.Register(id,
		ir.InstantiateAll(fn.Params, id.TypeArgs),
		ir.InstantiateAll(fn.Returns, id.TypeArgs))
	return e, added, nil
}

// Translate generates the body of a registered function and returns the
// callees it registered on the way
func (t *Translator) Translate(e *Entry) ([]*Entry, error) {
	fn, err := t.Definition(e.ID)
	if err != nil {
		return nil, err
	}
	ctx, err := t.Ctx.ForModule(e.ID.Module)
	if err != nil {
		return nil, err
	}
	c := &funcCtx{
		Translator: t,
		ctx:        ctx,
		fn:         fn,
		id:         e.ID,
		args:       e.ID.TypeArgs,
		returns:    e.Returns,
		f:          wasm.NewFunc(e.ID.Key(), wasmTypes(e.Params), wasmTypes(e.Returns)),
	}
	if fn.Native {
		err = c.native()
	} else {
		err = c.body()
	}
	if err != nil {
		return nil, errors.WithPath(err, e.ID.Key())
	}
	t.Table.define(e, c.f)
	Logger().Debug("translated function",
		zap.String("function", e.ID.Key()),
		zap.Bool("native", fn.Native),
		zap.Int("dependencies", len(c.deps)))
	return c.deps, nil
}

// funcCtx is the state of one function translation
type funcCtx struct {
	*Translator
	ctx     *compilation.Context
	fn      *compilation.Function
	id      FunctionID
	args    []ir.Type
	returns []ir.Type
	f       *wasm.Func
	stack   Stack
	locals  []ir.Type
	slots   []uint32
	blockOf map[int]int
	pc      uint32
	top     wasm.Label
	deps    []*Entry
}

type block struct {
	start, end int
}

// splitBlocks returns the basic blocks of code in order
func splitBlocks(code []move.Bytecode) []block {
	leader := make([]bool, len(code)+1)
	leader[0] = true
	for i, ins := range code {
		if ins.Op.IsBranch() {
			leader[ins.Index] = true
		}
		if ins.Op.IsBranch() || ins.Op.IsTerminator() {
			leader[i+1] = true
		}
	}
	var out []block
	start := 0
	for i := 1; i <= len(code); i++ {
		if leader[i] || i == len(code) {
			out = append(out, block{start: start, end: i})
			start = i
		}
	}
	return out
}

func (c *funcCtx) body() error {
	code := c.fn.Code
	if len(code.JumpTables) > 0 {
		return errors.New(errors.PhaseTranslate, errors.KindJumpTable).
			Detail("%d jump tables", len(code.JumpTables)).Build()
	}
	if len(code.Code) == 0 {
		return errors.InvalidData(errors.PhaseTranslate, nil, "empty code unit")
	}
	for i, ins := range code.Code {
		if ins.Op.IsBranch() && int(ins.Index) >= len(code.Code) {
			return errors.InvalidData(errors.PhaseTranslate, []string{codePos(i, ins)},
				"branch past the end of the code")
		}
	}
	c.prologue()

	blocks := splitBlocks(code.Code)
	c.blockOf = make(map[int]int, len(blocks))
	for i, bl := range blocks {
		c.blockOf[bl.start] = i
	}
	c.pc = c.f.NewLocal(i32)

	var err error
	b := c.f.Body
	b.Loop(void, func(lp *wasm.Seq, top wasm.Label) {
		c.top = top
		labels := make([]wasm.Label, len(blocks))
		var nest func(s *wasm.Seq, k int)
		nest = func(s *wasm.Seq, k int) {
			s.Block(void, func(inner *wasm.Seq, end wasm.Label) {
				labels[k] = end
				if k == 0 {
					inner.LocalGet(c.pc).BrTable(labels, labels[0])
					return
				}
				nest(inner, k-1)
			})
			if err == nil {
				err = c.block(s, code.Code, blocks[k])
			}
		}
		nest(lp, len(blocks)-1)
	})
	b.Unreachable()
	return err
}

func (c *funcCtx) block(s *wasm.Seq, code []move.Bytecode, bl block) error {
	for i := bl.start; i < bl.end; i++ {
		if err := c.instr(s, code[i]); err != nil {
			return errors.WithPath(err, codePos(i, code[i]))
		}
	}
	c.stack.AssertEmpty("end of basic block")
	return nil
}

func codePos(i int, ins move.Bytecode) string {
	return fmt.Sprintf("%d:%s", i, ins)
}

// prologue maps Move locals to WASM locals and boxes the arguments
func (c *funcCtx) prologue() {
	c.locals = ir.InstantiateAll(c.fn.Locals, c.args)
	params := len(c.fn.Params)
	c.slots = make([]uint32, len(c.locals))
	b := c.f.Body
	for i, t := range c.locals {
		switch {
		case i < params && t.IsReference():
			c.slots[i] = uint32(i)
		case i < params:
			c.slots[i] = c.f.NewLocal(i32)
			b.LocalGet(uint32(i)).Call(c.Lib.Box(t)).LocalSet(c.slots[i])
		default:
			c.slots[i] = c.f.NewLocal(i32)
		}
	}
}

// jump emits a transfer of control to the block starting at target
func (c *funcCtx) jump(s *wasm.Seq, target uint16) {
	s.I32Const(int32(c.blockOf[int(target)])).LocalSet(c.pc).Br(c.top)
}

// returnZeros returns from the function with zero results, used when
// unwinding an abort
func (c *funcCtx) returnZeros(s *wasm.Seq) {
	for _, t := range c.returns {
		if t.WasmType() == i64 {
			s.I64Const(0)
		} else {
			s.I32Const(0)
		}
	}
	s.Return()
}

// checkAbort unwinds when the abort flag is set
func (c *funcCtx) checkAbort(s *wasm.Seq) {
	s.I32Const(0).I32Load(hostio.AbortFlag).If(void, func(then *wasm.Seq) {
		c.returnZeros(then)
	}, nil)
}

// temp stores the top of the WASM stack in a fresh local
func (c *funcCtx) temp(s *wasm.Seq, t wasm.ValType) uint32 {
	l := c.f.NewLocal(t)
	s.LocalSet(l)
	return l
}

// sig returns signature idx of the current module, instantiated
func (c *funcCtx) sig(idx uint16) []ir.Type {
	if int(idx) >= len(c.ctx.Root.Signatures) {
		panic("translate: signature index out of range")
	}
	return ir.InstantiateAll(c.ctx.Root.Signatures[idx], c.args)
}

// vecElem returns the element type named by a vector instruction
func (c *funcCtx) vecElem(idx uint16) ir.Type {
	sig := c.sig(idx)
	if len(sig) != 1 {
		panic("translate: vector instruction signature must hold one type")
	}
	return sig[0]
}
