package wasm

import (
	"bytes"
	"math"
	"testing"
)

func TestLEB128_Unsigned(t *testing.T) {
	tests := []struct {
		want []byte
		v    uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, math.MaxUint32},
	}
	for _, tt := range tests {
		got := EncodeLEB128u(tt.v)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeLEB128u(%d) = %x, want %x", tt.v, got, tt.want)
		}
		back, err := ReadLEB128u(bytes.NewReader(got))
		if err != nil || back != tt.v {
			t.Errorf("ReadLEB128u(%x) = %d, %v", got, back, err)
		}
	}
}

func TestLEB128_Signed64(t *testing.T) {
	tests := []int64{0, 1, -1, 63, 64, -64, -65, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64}
	for _, v := range tests {
		enc := EncodeLEB128s64(v)
		back, err := ReadLEB128s64(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("ReadLEB128s64(%x): %v", enc, err)
		}
		if back != v {
			t.Errorf("round trip %d: got %d", v, back)
		}
	}
	if got := EncodeLEB128s64(-64); !bytes.Equal(got, []byte{0x40}) {
		t.Errorf("EncodeLEB128s64(-64) = %x, want 40", got)
	}
}

func TestLEB128_Overflow(t *testing.T) {
	_, err := ReadLEB128u(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}))
	if err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}
