package main

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/wippyai/move2wasm/compiler"
	"github.com/wippyai/move2wasm/compiler/router"
	"github.com/wippyai/move2wasm/host"
)

// method is a route with its argument and result encodings
type method struct {
	route   compiler.Route
	inputs  gethabi.Arguments
	outputs gethabi.Arguments
	types   []string
}

func newMethod(r compiler.Route) (*method, error) {
	_, list, _ := strings.Cut(r.Signature, "(")
	types := splitList(strings.TrimSuffix(list, ")"))
	inputs, err := arguments(types)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Signature, err)
	}
	outputs, err := arguments(r.Returns)
	if err != nil {
		return nil, fmt.Errorf("%s returns: %w", r.Signature, err)
	}
	return &method{route: r, inputs: inputs, outputs: outputs, types: types}, nil
}

func methods(out *compiler.Output) ([]*method, error) {
	ms := make([]*method, 0, len(out.Routes))
	for _, r := range out.Routes {
		m, err := newMethod(r)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// findMethod matches name against the selector name or the Move name
func findMethod(ms []*method, name string) (*method, error) {
	for _, m := range ms {
		fn := m.route.Function
		if m.route.Name() == name || fn[strings.LastIndex(fn, "::")+2:] == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no routed function %q", name)
}

// splitList splits a comma separated list at nesting depth zero
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func arguments(types []string) (gethabi.Arguments, error) {
	args := make(gethabi.Arguments, 0, len(types))
	for i, t := range types {
		m := marshaling(fmt.Sprintf("arg%d", i), t)
		typ, err := gethabi.NewType(m.Type, "", m.Components)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", t, err)
		}
		args = append(args, gethabi.Argument{Name: m.Name, Type: typ})
	}
	return args, nil
}

// marshaling turns a canonical type such as (uint64,uint8[])[] into the
// tuple form go-ethereum builds types from
func marshaling(name, t string) gethabi.ArgumentMarshaling {
	if !strings.HasPrefix(t, "(") {
		return gethabi.ArgumentMarshaling{Name: name, Type: t}
	}
	end := strings.LastIndex(t, ")")
	var comps []gethabi.ArgumentMarshaling
	for i, c := range splitList(t[1:end]) {
		comps = append(comps, marshaling(fmt.Sprintf("f%d", i), c))
	}
	return gethabi.ArgumentMarshaling{Name: name, Type: "tuple" + t[end+1:], Components: comps}
}

// encode builds calldata from one text argument per parameter
func (m *method) encode(args []string) ([]byte, error) {
	if len(args) != len(m.inputs) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", m.route.Signature, len(m.inputs), len(args))
	}
	vals := make([]any, len(args))
	for i, a := range args {
		v, err := parseValue(m.inputs[i].Type, a)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, m.types[i], err)
		}
		vals[i] = v.Interface()
	}
	packed, err := m.inputs.Pack(vals...)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, m.route.Selector[:]...), packed...), nil
}

// parseValue converts text into the Go value go-ethereum packs for t.
// Integers accept decimal and 0x hex, lists use [a,b] and tuples (a,b).
func parseValue(t gethabi.Type, s string) (reflect.Value, error) {
	s = strings.TrimSpace(s)
	switch t.T {
	case gethabi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil

	case gethabi.UintTy:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok || n.Sign() < 0 {
			return reflect.Value{}, fmt.Errorf("%q is not an unsigned integer", s)
		}
		if n.BitLen() > t.Size {
			return reflect.Value{}, fmt.Errorf("%s does not fit uint%d", s, t.Size)
		}
		if t.Size > 64 {
			return reflect.ValueOf(n), nil
		}
		return reflect.ValueOf(n.Uint64()).Convert(t.GetType()), nil

	case gethabi.AddressTy:
		if !common.IsHexAddress(s) {
			return reflect.Value{}, fmt.Errorf("%q is not an address", s)
		}
		return reflect.ValueOf(common.HexToAddress(s)), nil

	case gethabi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return reflect.Value{}, err
		}
		if len(b) > t.Size {
			return reflect.Value{}, fmt.Errorf("%d bytes do not fit bytes%d", len(b), t.Size)
		}
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v.Slice(t.Size-len(b), t.Size), reflect.ValueOf(b))
		return v, nil

	case gethabi.SliceTy:
		items, err := inner(s, '[', ']')
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.MakeSlice(t.GetType(), 0, len(items))
		for i, item := range items {
			ev, err := parseValue(*t.Elem, item)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			v = reflect.Append(v, ev)
		}
		return v, nil

	case gethabi.TupleTy:
		items, err := inner(s, '(', ')')
		if err != nil {
			return reflect.Value{}, err
		}
		if len(items) != len(t.TupleElems) {
			return reflect.Value{}, fmt.Errorf("tuple has %d fields, got %d", len(t.TupleElems), len(items))
		}
		v := reflect.New(t.GetType()).Elem()
		for i, et := range t.TupleElems {
			fv, err := parseValue(*et, items[i])
			if err != nil {
				return reflect.Value{}, fmt.Errorf("field %d: %w", i, err)
			}
			v.Field(i).Set(fv)
		}
		return v, nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported type %s", t)
}

func inner(s string, lo, hi byte) ([]string, error) {
	if len(s) < 2 || s[0] != lo || s[len(s)-1] != hi {
		return nil, fmt.Errorf("%q is not enclosed in %c%c", s, lo, hi)
	}
	return splitList(s[1 : len(s)-1]), nil
}

// formatValue renders a value decoded by go-ethereum
func formatValue(v any) string {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case [32]byte:
		return hexutil.Encode(x[:])
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = formatValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Struct:
		parts := make([]string, rv.NumField())
		for i := range parts {
			parts[i] = formatValue(rv.Field(i).Interface())
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return fmt.Sprint(v)
}

// outcome describes a finished call. failed reports an abort or a
// missing route.
func (m *method) outcome(res *host.Result) (text string, failed bool, err error) {
	switch res.Status {
	case router.StatusOK:
		vals, err := m.outputs.Unpack(res.Output)
		if err != nil {
			return "", false, fmt.Errorf("decode results: %w", err)
		}
		if len(vals) == 0 {
			return "ok", false, nil
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = formatValue(v)
		}
		return strings.Join(parts, ", "), false, nil
	case router.StatusAbort:
		msg, err := res.Revert()
		if err != nil {
			return "", true, fmt.Errorf("decode revert: %w", err)
		}
		return "reverted: " + msg, true, nil
	}
	return fmt.Sprintf("no route for selector 0x%x", m.route.Selector), true, nil
}
