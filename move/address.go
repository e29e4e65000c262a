package move

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the width of a Move address in bytes
const AddressLength = 32

// Address is a 32-byte big-endian account address. Only the low 20 bytes
// carry an EVM address.
type Address [AddressLength]byte

// Well-known framework addresses
var (
	StdAddress       = AddressFromUint(1)
	FrameworkAddress = AddressFromUint(2)
)

// AddressFromUint returns the address whose big-endian value is v
func AddressFromUint(v uint64) Address {
	var a Address
	for i := 0; i < 8; i++ {
		a[AddressLength-1-i] = byte(v >> (8 * i))
	}
	return a
}

// ParseAddress parses a 0x-prefixed hex address of up to 64 digits
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" || len(s) > 2*AddressLength {
		return a, fmt.Errorf("invalid address %q", s)
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(a[AddressLength-len(b):], b)
	return a, nil
}

// MustParseAddress is ParseAddress that panics on error
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the address from its first non-zero nibble, "0x0" for zero
func (a Address) String() string {
	h := strings.TrimLeft(hex.EncodeToString(a[:]), "0")
	if h == "" {
		h = "0"
	}
	return "0x" + h
}

// Hex renders all 64 hex digits
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// EVM returns the low 20 bytes
func (a Address) EVM() [20]byte {
	var out [20]byte
	copy(out[:], a[12:])
	return out
}
