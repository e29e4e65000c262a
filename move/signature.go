package move

import (
	"fmt"
	"strings"
)

// TokenKind discriminates SignatureToken
type TokenKind uint8

const (
	TokenBool TokenKind = iota + 1
	TokenU8
	TokenU16
	TokenU32
	TokenU64
	TokenU128
	TokenU256
	TokenAddress
	TokenSigner
	TokenVector
	TokenDatatype
	TokenDatatypeInstantiation
	TokenReference
	TokenMutableReference
	TokenTypeParameter
)

// SignatureToken is a type as it appears in a module's signature pool.
// Inner is set for vectors and references; Handle (a datatype handle
// index) and TypeArgs for datatypes; Param for type parameters.
type SignatureToken struct {
	Inner    *SignatureToken  `msgpack:"inner,omitempty"`
	TypeArgs []SignatureToken `msgpack:"args,omitempty"`
	Kind     TokenKind        `msgpack:"k"`
	Handle   uint16           `msgpack:"h,omitempty"`
	Param    uint16           `msgpack:"p,omitempty"`
}

// Signature is an ordered list of tokens
type Signature []SignatureToken

// Primitive token constructors
var (
	Bool         = SignatureToken{Kind: TokenBool}
	U8           = SignatureToken{Kind: TokenU8}
	U16          = SignatureToken{Kind: TokenU16}
	U32          = SignatureToken{Kind: TokenU32}
	U64          = SignatureToken{Kind: TokenU64}
	U128         = SignatureToken{Kind: TokenU128}
	U256         = SignatureToken{Kind: TokenU256}
	AddressToken = SignatureToken{Kind: TokenAddress}
	Signer       = SignatureToken{Kind: TokenSigner}
)

// VectorOf returns vector<inner>
func VectorOf(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenVector, Inner: &inner}
}

// RefOf returns &inner
func RefOf(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenReference, Inner: &inner}
}

// MutRefOf returns &mut inner
func MutRefOf(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenMutableReference, Inner: &inner}
}

// Datatype returns a reference to the datatype handle h, instantiated when
// args is non-empty
func Datatype(h uint16, args ...SignatureToken) SignatureToken {
	if len(args) == 0 {
		return SignatureToken{Kind: TokenDatatype, Handle: h}
	}
	return SignatureToken{Kind: TokenDatatypeInstantiation, Handle: h, TypeArgs: args}
}

// TypeParam returns the type parameter at index i
func TypeParam(i uint16) SignatureToken {
	return SignatureToken{Kind: TokenTypeParameter, Param: i}
}

// IsReference reports whether t is & or &mut
func (t SignatureToken) IsReference() bool {
	return t.Kind == TokenReference || t.Kind == TokenMutableReference
}

func (t SignatureToken) String() string {
	switch t.Kind {
	case TokenBool:
		return "bool"
	case TokenU8:
		return "u8"
	case TokenU16:
		return "u16"
	case TokenU32:
		return "u32"
	case TokenU64:
		return "u64"
	case TokenU128:
		return "u128"
	case TokenU256:
		return "u256"
	case TokenAddress:
		return "address"
	case TokenSigner:
		return "signer"
	case TokenVector:
		return "vector<" + t.Inner.String() + ">"
	case TokenReference:
		return "&" + t.Inner.String()
	case TokenMutableReference:
		return "&mut " + t.Inner.String()
	case TokenTypeParameter:
		return fmt.Sprintf("T%d", t.Param)
	case TokenDatatype:
		return fmt.Sprintf("datatype#%d", t.Handle)
	case TokenDatatypeInstantiation:
		args := make([]string, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			args[i] = a.String()
		}
		return fmt.Sprintf("datatype#%d<%s>", t.Handle, strings.Join(args, ", "))
	}
	return fmt.Sprintf("token(%d)", t.Kind)
}
