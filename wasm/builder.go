package wasm

import (
	"bytes"
	"fmt"
)

// Label identifies an enclosing block, loop or if by nesting depth.
// Branches compute their relative label index from the depth of the
// sequence they are emitted into.
type Label struct {
	depth int
}

// Seq is an instruction sequence that tracks its structured nesting depth.
// Nested sequences are created by Block, Loop and If.
type Seq struct {
	instrs []Instruction
	depth  int
}

// NewSeq returns an empty sequence at function-body depth
func NewSeq() *Seq {
	return &Seq{}
}

// Instructions returns the emitted instructions
func (s *Seq) Instructions() []Instruction {
	return s.instrs
}

// Len returns the number of emitted instructions
func (s *Seq) Len() int {
	return len(s.instrs)
}

// Emit appends raw instructions
func (s *Seq) Emit(ins ...Instruction) *Seq {
	s.instrs = append(s.instrs, ins...)
	return s
}

// Append appends the instructions of other. Labels inside other must be
// local to other.
func (s *Seq) Append(other *Seq) *Seq {
	s.instrs = append(s.instrs, other.instrs...)
	return s
}

// Op appends an instruction without immediates
func (s *Seq) Op(op byte) *Seq {
	return s.Emit(Instruction{Opcode: op})
}

func (s *Seq) I32Const(v int32) *Seq { return s.Emit(I32Const(v)) }
func (s *Seq) I64Const(v int64) *Seq { return s.Emit(I64Const(v)) }

func (s *Seq) LocalGet(idx uint32) *Seq {
	return s.Emit(Instruction{Opcode: OpLocalGet, Imm: LocalImm{LocalIdx: idx}})
}

func (s *Seq) LocalSet(idx uint32) *Seq {
	return s.Emit(Instruction{Opcode: OpLocalSet, Imm: LocalImm{LocalIdx: idx}})
}

func (s *Seq) LocalTee(idx uint32) *Seq {
	return s.Emit(Instruction{Opcode: OpLocalTee, Imm: LocalImm{LocalIdx: idx}})
}

func (s *Seq) GlobalGet(idx uint32) *Seq {
	return s.Emit(Instruction{Opcode: OpGlobalGet, Imm: GlobalImm{GlobalIdx: idx}})
}

func (s *Seq) GlobalSet(idx uint32) *Seq {
	return s.Emit(Instruction{Opcode: OpGlobalSet, Imm: GlobalImm{GlobalIdx: idx}})
}

// Mem appends a load or store with the natural alignment of op
func (s *Seq) Mem(op byte, offset uint32) *Seq {
	return s.Emit(Instruction{Opcode: op, Imm: MemoryImm{Offset: uint64(offset), Align: naturalAlign(op)}})
}

func naturalAlign(op byte) uint32 {
	switch op {
	case OpI32Load8U, OpI64Load8U, OpI32Store8, OpI64Store8:
		return 0
	case OpI32Load16U, OpI64Load16U, OpI32Store16, OpI64Store16:
		return 1
	case OpI32Load, OpI64Load32U, OpI32Store, OpI64Store32:
		return 2
	case OpI64Load, OpI64Store:
		return 3
	}
	panic(fmt.Sprintf("wasm: 0x%02x is not a memory access", op))
}

func (s *Seq) I32Load(offset uint32) *Seq    { return s.Mem(OpI32Load, offset) }
func (s *Seq) I64Load(offset uint32) *Seq    { return s.Mem(OpI64Load, offset) }
func (s *Seq) I32Load8U(offset uint32) *Seq  { return s.Mem(OpI32Load8U, offset) }
func (s *Seq) I32Load16U(offset uint32) *Seq { return s.Mem(OpI32Load16U, offset) }
func (s *Seq) I32Store(offset uint32) *Seq   { return s.Mem(OpI32Store, offset) }
func (s *Seq) I64Store(offset uint32) *Seq   { return s.Mem(OpI64Store, offset) }
func (s *Seq) I32Store8(offset uint32) *Seq  { return s.Mem(OpI32Store8, offset) }
func (s *Seq) I32Store16(offset uint32) *Seq { return s.Mem(OpI32Store16, offset) }

func (s *Seq) nested() *Seq {
	return &Seq{depth: s.depth + 1}
}

func (s *Seq) structured(op byte, bt int32, body func(*Seq, Label)) *Seq {
	inner := s.nested()
	body(inner, Label{depth: inner.depth})
	s.Emit(Instruction{Opcode: op, Imm: BlockImm{Type: bt}})
	s.instrs = append(s.instrs, inner.instrs...)
	return s.Op(OpEnd)
}

// Block appends a block whose label targets its end
func (s *Seq) Block(bt int32, body func(b *Seq, end Label)) *Seq {
	return s.structured(OpBlock, bt, body)
}

// Loop appends a loop whose label targets its start
func (s *Seq) Loop(bt int32, body func(b *Seq, start Label)) *Seq {
	return s.structured(OpLoop, bt, body)
}

// If pops an i32 condition and runs then or els. els may be nil.
func (s *Seq) If(bt int32, then func(*Seq), els func(*Seq)) *Seq {
	s.Emit(Instruction{Opcode: OpIf, Imm: BlockImm{Type: bt}})
	inner := s.nested()
	then(inner)
	s.instrs = append(s.instrs, inner.instrs...)
	if els != nil {
		s.Op(OpElse)
		inner = s.nested()
		els(inner)
		s.instrs = append(s.instrs, inner.instrs...)
	}
	return s.Op(OpEnd)
}

func (s *Seq) relative(l Label) uint32 {
	d := s.depth - l.depth
	if d < 0 {
		panic("wasm: branch to a label that does not enclose the sequence")
	}
	return uint32(d)
}

func (s *Seq) Br(l Label) *Seq {
	return s.Emit(Instruction{Opcode: OpBr, Imm: BranchImm{LabelIdx: s.relative(l)}})
}

func (s *Seq) BrIf(l Label) *Seq {
	return s.Emit(Instruction{Opcode: OpBrIf, Imm: BranchImm{LabelIdx: s.relative(l)}})
}

// BrTable pops an i32 index and branches to labels[index] or def
func (s *Seq) BrTable(labels []Label, def Label) *Seq {
	rel := make([]uint32, len(labels))
	for i, l := range labels {
		rel[i] = s.relative(l)
	}
	return s.Emit(Instruction{Opcode: OpBrTable, Imm: BrTableImm{Labels: rel, Default: s.relative(def)}})
}

func (s *Seq) Call(funcIdx uint32) *Seq {
	return s.Emit(Instruction{Opcode: OpCall, Imm: CallImm{FuncIdx: funcIdx}})
}

// CallIndirect calls through table 0
func (s *Seq) CallIndirect(typeIdx uint32) *Seq {
	return s.Emit(Instruction{Opcode: OpCallIndirect, Imm: CallIndirectImm{TypeIdx: typeIdx}})
}

func (s *Seq) Return() *Seq      { return s.Op(OpReturn) }
func (s *Seq) Unreachable() *Seq { return s.Op(OpUnreachable) }
func (s *Seq) Drop() *Seq        { return s.Op(OpDrop) }

func (s *Seq) MemorySize() *Seq {
	return s.Emit(Instruction{Opcode: OpMemorySize, Imm: MemoryIdxImm{}})
}

func (s *Seq) MemoryGrow() *Seq {
	return s.Emit(Instruction{Opcode: OpMemoryGrow, Imm: MemoryIdxImm{}})
}

// MemoryCopy pops (dst, src, len)
func (s *Seq) MemoryCopy() *Seq {
	return s.Emit(Instruction{Opcode: OpPrefixMisc, Imm: MiscImm{SubOpcode: MiscMemoryCopy, Operands: []uint32{0, 0}}})
}

// MemoryFill pops (dst, value, len)
func (s *Seq) MemoryFill() *Seq {
	return s.Emit(Instruction{Opcode: OpPrefixMisc, Imm: MiscImm{SubOpcode: MiscMemoryFill, Operands: []uint32{0}}})
}

// TrapIf pops an i32 and traps when it is non-zero
func (s *Seq) TrapIf() *Seq {
	return s.If(BlockTypeVoid, func(t *Seq) { t.Unreachable() }, nil)
}

// ForRange emits `for counter = 0; counter < limit; counter++ { body }` over
// i32 locals. limit is read once per iteration.
func (s *Seq) ForRange(counter, limit uint32, body func(b *Seq)) *Seq {
	s.I32Const(0).LocalSet(counter)
	return s.Block(BlockTypeVoid, func(b *Seq, done Label) {
		b.Loop(BlockTypeVoid, func(l *Seq, top Label) {
			l.LocalGet(counter).LocalGet(limit).Op(OpI32GeU).BrIf(done)
			body(l)
			l.LocalGet(counter).I32Const(1).Op(OpI32Add).LocalSet(counter)
			l.Br(top)
		})
	})
}

// Func is a function under construction
type Func struct {
	Name    string
	Params  []ValType
	Results []ValType
	Body    *Seq
	locals  []ValType
}

// NewFunc creates an empty function
func NewFunc(name string, params, results []ValType) *Func {
	return &Func{Name: name, Params: params, Results: results, Body: NewSeq()}
}

// NewLocal declares a local and returns its index
func (f *Func) NewLocal(t ValType) uint32 {
	f.locals = append(f.locals, t)
	return uint32(len(f.Params) + len(f.locals) - 1)
}

// LocalType returns the type of the parameter or local at idx
func (f *Func) LocalType(idx uint32) ValType {
	if int(idx) < len(f.Params) {
		return f.Params[idx]
	}
	return f.locals[int(idx)-len(f.Params)]
}

// Type returns the function signature
func (f *Func) Type() FuncType {
	return FuncType{Params: f.Params, Results: f.Results}
}

func (f *Func) body() FuncBody {
	var entries []LocalEntry
	for _, t := range f.locals {
		if n := len(entries); n > 0 && entries[n-1].ValType == t {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, LocalEntry{Count: 1, ValType: t})
	}
	var buf bytes.Buffer
	EncodeInstructionsTo(&buf, f.Body.instrs)
	buf.WriteByte(OpEnd)
	return FuncBody{Locals: entries, Code: buf.Bytes()}
}

type funcSlot struct {
	fn      *Func
	typeIdx uint32
	name    string
}

// ModuleBuilder assembles a module from imports, functions, a single
// funcref table, one memory, globals and data segments.
type ModuleBuilder struct {
	mod         Module
	funcs       []funcSlot
	importNames []string
	byName      map[string]uint32
	table       []uint32
	memory      *MemoryType
}

// NewModuleBuilder creates an empty builder
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{byName: make(map[string]uint32)}
}

// TypeIndex returns the type index for a signature, adding it if needed
func (b *ModuleBuilder) TypeIndex(params, results []ValType) uint32 {
	return b.mod.AddType(FuncType{Params: params, Results: results})
}

// ImportFunc declares an imported function. Imports must precede all
// defined functions.
func (b *ModuleBuilder) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasm: function import after function definitions")
	}
	idx := uint32(len(b.mod.Imports))
	b.mod.Imports = append(b.mod.Imports, Import{
		Module: module,
		Name:   name,
		Desc:   ImportDesc{Kind: KindFunc, TypeIdx: b.TypeIndex(params, results)},
	})
	b.importNames = append(b.importNames, module+"."+name)
	return idx
}

// Reserve allocates a function index to be defined later
func (b *ModuleBuilder) Reserve(name string, params, results []ValType) uint32 {
	idx := uint32(len(b.mod.Imports) + len(b.funcs))
	b.funcs = append(b.funcs, funcSlot{name: name, typeIdx: b.TypeIndex(params, results)})
	if name != "" {
		b.byName[name] = idx
	}
	return idx
}

// Define supplies the body of a reserved function
func (b *ModuleBuilder) Define(idx uint32, f *Func) {
	slot := &b.funcs[int(idx)-len(b.mod.Imports)]
	if slot.fn != nil {
		panic(fmt.Sprintf("wasm: function %d (%s) defined twice", idx, slot.name))
	}
	if want := b.TypeIndex(f.Params, f.Results); want != slot.typeIdx {
		panic(fmt.Sprintf("wasm: function %s defined with a signature different from its reservation", f.Name))
	}
	slot.fn = f
}

// AddFunc reserves and defines f in one step
func (b *ModuleBuilder) AddFunc(f *Func) uint32 {
	idx := b.Reserve(f.Name, f.Params, f.Results)
	b.Define(idx, f)
	return idx
}

// FuncByName finds a reserved or defined function
func (b *ModuleBuilder) FuncByName(name string) (uint32, bool) {
	idx, ok := b.byName[name]
	return idx, ok
}

// NumFuncs returns the number of functions including imports
func (b *ModuleBuilder) NumFuncs() int {
	return len(b.mod.Imports) + len(b.funcs)
}

// AddGlobal declares a global initialized by init
func (b *ModuleBuilder) AddGlobal(t ValType, mutable bool, init Instruction) uint32 {
	idx := uint32(len(b.mod.Globals))
	b.mod.Globals = append(b.mod.Globals, Global{
		Type: GlobalType{ValType: t, Mutable: mutable},
		Init: EncodeInstructions([]Instruction{init, {Opcode: OpEnd}}),
	})
	return idx
}

// SetGlobalInit replaces the initializer of a global
func (b *ModuleBuilder) SetGlobalInit(idx uint32, init Instruction) {
	b.mod.Globals[idx].Init = EncodeInstructions([]Instruction{init, {Opcode: OpEnd}})
}

// SetMemory declares the module memory in 64KiB pages
func (b *ModuleBuilder) SetMemory(min uint64, max *uint64) {
	b.memory = &MemoryType{Limits: Limits{Min: min, Max: max}}
}

// TableSlot appends funcIdx to the function table and returns its slot
func (b *ModuleBuilder) TableSlot(funcIdx uint32) uint32 {
	b.table = append(b.table, funcIdx)
	return uint32(len(b.table) - 1)
}

// TableLen returns the number of table slots handed out
func (b *ModuleBuilder) TableLen() int {
	return len(b.table)
}

// AddData places an active data segment at offset
func (b *ModuleBuilder) AddData(offset uint32, data []byte) {
	b.mod.Data = append(b.mod.Data, DataSegment{Offset: ConstExpr(int32(offset)), Init: data})
}

// Export exports a function, memory, table or global
func (b *ModuleBuilder) Export(name string, kind byte, idx uint32) {
	b.mod.Exports = append(b.mod.Exports, Export{Name: name, Kind: kind, Idx: idx})
}

// Build validates that every reserved function is defined and returns the module
func (b *ModuleBuilder) Build() (*Module, error) {
	mod := b.mod
	mod.Funcs = make([]uint32, 0, len(b.funcs))
	mod.Code = make([]FuncBody, 0, len(b.funcs))
	names := append([]string{}, b.importNames...)
	for i, slot := range b.funcs {
		if slot.fn == nil {
			return nil, fmt.Errorf("function %d (%s) reserved but never defined", len(b.mod.Imports)+i, slot.name)
		}
		mod.Funcs = append(mod.Funcs, slot.typeIdx)
		mod.Code = append(mod.Code, slot.fn.body())
		names = append(names, slot.name)
	}
	if b.memory != nil {
		mod.Memories = []MemoryType{*b.memory}
	}
	if len(b.table) > 0 {
		n := uint64(len(b.table))
		mod.Tables = []TableType{{ElemType: byte(ValFuncRef), Limits: Limits{Min: n, Max: &n}}}
		mod.Elements = []Element{{Offset: ConstExpr(0), FuncIdxs: append([]uint32{}, b.table...)}}
	}
	mod.CustomSections = append(mod.CustomSections, CustomSection{Name: "name", Data: nameSection(names)})
	return &mod, nil
}

// nameSection encodes the function-names subsection of the name section
func nameSection(names []string) []byte {
	var sub bytes.Buffer
	WriteLEB128u(&sub, uint32(len(names)))
	for i, n := range names {
		WriteLEB128u(&sub, uint32(i))
		WriteLEB128u(&sub, uint32(len(n)))
		sub.WriteString(n)
	}
	var out bytes.Buffer
	out.WriteByte(1)
	WriteLEB128u(&out, uint32(sub.Len()))
	out.Write(sub.Bytes())
	return out.Bytes()
}
