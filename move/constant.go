package move

import (
	"encoding/binary"
	"fmt"
)

// Value is a decoded constant. Uint holds bool..u64, Bytes holds u128 and
// u256 in little-endian order and addresses in big-endian order, Elems
// holds vector elements.
type Value struct {
	Bytes []byte
	Elems []Value
	Uint  uint64
	Kind  TokenKind
	Inner *SignatureToken
}

// DecodeConstant decodes the BCS bytes of c. Every byte must be consumed.
func DecodeConstant(c Constant) (Value, error) {
	d := bcsDecoder{data: c.Data}
	v, err := d.value(c.Type)
	if err != nil {
		return Value{}, err
	}
	if d.pos != len(d.data) {
		return Value{}, fmt.Errorf("constant of type %s: %d trailing bytes", c.Type, len(d.data)-d.pos)
	}
	return v, nil
}

type bcsDecoder struct {
	data []byte
	pos  int
}

func (d *bcsDecoder) take(n int) ([]byte, error) {
	if d.pos+n > len(d.data) {
		return nil, fmt.Errorf("constant truncated at byte %d, need %d more", d.pos, n)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *bcsDecoder) uleb() (uint64, error) {
	var v uint64
	for shift := uint(0); shift < 64; shift += 7 {
		b, err := d.take(1)
		if err != nil {
			return 0, err
		}
		v |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("uleb128 overflow")
}

func (d *bcsDecoder) value(t SignatureToken) (Value, error) {
	v := Value{Kind: t.Kind}
	switch t.Kind {
	case TokenBool:
		b, err := d.take(1)
		if err != nil {
			return v, err
		}
		if b[0] > 1 {
			return v, fmt.Errorf("invalid bool byte %d", b[0])
		}
		v.Uint = uint64(b[0])
	case TokenU8:
		b, err := d.take(1)
		if err != nil {
			return v, err
		}
		v.Uint = uint64(b[0])
	case TokenU16:
		b, err := d.take(2)
		if err != nil {
			return v, err
		}
		v.Uint = uint64(binary.LittleEndian.Uint16(b))
	case TokenU32:
		b, err := d.take(4)
		if err != nil {
			return v, err
		}
		v.Uint = uint64(binary.LittleEndian.Uint32(b))
	case TokenU64:
		b, err := d.take(8)
		if err != nil {
			return v, err
		}
		v.Uint = binary.LittleEndian.Uint64(b)
	case TokenU128, TokenU256, TokenAddress:
		n := 16
		if t.Kind != TokenU128 {
			n = 32
		}
		b, err := d.take(n)
		if err != nil {
			return v, err
		}
		v.Bytes = append([]byte{}, b...)
	case TokenVector:
		n, err := d.uleb()
		if err != nil {
			return v, err
		}
		if n > uint64(len(d.data)-d.pos) {
			return v, fmt.Errorf("vector length %d exceeds remaining bytes", n)
		}
		v.Inner = t.Inner
		v.Elems = make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			e, err := d.value(*t.Inner)
			if err != nil {
				return v, err
			}
			v.Elems = append(v.Elems, e)
		}
	default:
		return v, fmt.Errorf("type %s cannot be a constant", t)
	}
	return v, nil
}

// EncodeConstant produces the BCS bytes of a constant value
func EncodeConstant(v Value) []byte {
	var out []byte
	var put func(v Value)
	put = func(v Value) {
		switch v.Kind {
		case TokenBool, TokenU8:
			out = append(out, byte(v.Uint))
		case TokenU16:
			out = binary.LittleEndian.AppendUint16(out, uint16(v.Uint))
		case TokenU32:
			out = binary.LittleEndian.AppendUint32(out, uint32(v.Uint))
		case TokenU64:
			out = binary.LittleEndian.AppendUint64(out, v.Uint)
		case TokenU128, TokenU256, TokenAddress:
			out = append(out, v.Bytes...)
		case TokenVector:
			n := uint64(len(v.Elems))
			for {
				b := byte(n & 0x7f)
				n >>= 7
				if n != 0 {
					b |= 0x80
				}
				out = append(out, b)
				if n == 0 {
					break
				}
			}
			for _, e := range v.Elems {
				put(e)
			}
		}
	}
	put(v)
	return out
}
