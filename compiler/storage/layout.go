package storage

import "github.com/wippyai/move2wasm/compiler/ir"

// cursor is the next free position of a layout: a slot index relative to
// the layout's base and the number of bytes used in it, counted from the
// right
type cursor struct {
	slot, used int
}

func (c cursor) offset() int { return c.slot*SlotSize + c.used }

// place reserves size bytes and returns the slot and the byte position
// of the value inside it
func (c *cursor) place(size int) (slot, pos int) {
	if c.used+size > SlotSize {
		c.slot++
		c.used = 0
	}
	slot, pos = c.slot, SlotSize-c.used-size
	c.used += size
	return slot, pos
}

// whole reserves a slot of its own
func (c *cursor) whole() int {
	if c.used > 0 {
		c.slot++
	}
	c.used = SlotSize
	return c.slot
}

// slots is the number of slots touched so far
func (c cursor) slots() int {
	if c.used == 0 {
		return c.slot
	}
	return c.slot + 1
}

type class uint8

const (
	packed class = iota // n bytes inside a slot
	whole               // vector header, identifier or nested object id
	inline              // struct fields laid out in place
	tagged              // enum tag followed by the widest variant
)

func (e *Engine) classify(t ir.Type) (class, int) {
	switch t.Kind {
	case ir.KindBool, ir.KindU8:
		return packed, 1
	case ir.KindU16:
		return packed, 2
	case ir.KindU32:
		return packed, 4
	case ir.KindU64:
		return packed, 8
	case ir.KindU128:
		return packed, 16
	case ir.KindU256:
		return packed, 32
	case ir.KindAddress:
		return packed, 20
	case ir.KindVector:
		return whole, SlotSize
	case ir.KindEnum, ir.KindGenericEnum:
		return tagged, 0
	}
	if IsID(t) || e.IsObject(t) {
		return whole, SlotSize
	}
	return inline, 0
}

// advance moves c past a t-typed value
func (e *Engine) advance(t ir.Type, c *cursor) {
	switch cl, n := e.classify(t); cl {
	case packed:
		c.place(n)
	case whole:
		c.whole()
	case inline:
		for _, f := range e.Ctx.MustStruct(t).Fields {
			e.advance(f.Type, c)
		}
	case tagged:
		c.place(1)
		*c = e.variants(t, *c, func(v ir.Variant, vc *cursor) {
			for _, f := range v.Fields {
				e.advance(f.Type, vc)
			}
		})
	}
}

// variants runs walk for every variant of enum t from the position after
// its tag and returns the furthest position any of them reached
func (e *Engine) variants(t ir.Type, start cursor, walk func(v ir.Variant, vc *cursor)) cursor {
	end := start
	for _, v := range e.Ctx.MustEnum(t).Variants {
		vc := start
		walk(v, &vc)
		if vc.offset() > end.offset() {
			end = vc
		}
	}
	return end
}

// FieldSize is the number of bytes a t-typed field occupies when placed
// after used bytes of a slot, including any padding skipped to start a
// new slot
func (e *Engine) FieldSize(t ir.Type, used int) int {
	c := cursor{used: used}
	e.advance(t, &c)
	return c.offset() - used
}

// Slots is the number of slots a t-typed value occupies from a fresh slot
func (e *Engine) Slots(t ir.Type) int {
	var c cursor
	e.advance(t, &c)
	return max(c.slots(), 1)
}

// ObjectSlots is the number of slots object t occupies: the root slot
// and its fields
func (e *Engine) ObjectSlots(t ir.Type) int {
	var c cursor
	for _, f := range e.Ctx.MustStruct(t).Fields {
		e.advance(f.Type, &c)
	}
	return 1 + c.slots()
}

// dynamic reports whether deleting a t-typed value has to release storage
// outside its own slots
func (e *Engine) dynamic(t ir.Type) bool {
	switch cl, _ := e.classify(t); cl {
	case whole:
		return t.Kind == ir.KindVector || e.IsObject(t)
	case inline:
		for _, f := range e.Ctx.MustStruct(t).Fields {
			if e.dynamic(f.Type) {
				return true
			}
		}
	case tagged:
		for _, v := range e.Ctx.MustEnum(t).Variants {
			if e.variantDynamic(v) {
				return true
			}
		}
	}
	return false
}

func (e *Engine) variantDynamic(v ir.Variant) bool {
	for _, f := range v.Fields {
		if e.dynamic(f.Type) {
			return true
		}
	}
	return false
}
