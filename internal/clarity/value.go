// Package clarity implements Clarity values as used by the Stacks
// contract-call protocol: the tagged value tree, its consensus binary
// serialization, the textual repr, and c32check principal addresses.
package clarity

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/holiman/uint256"
)

// Type is the one-byte type prefix of a serialized Clarity value.
type Type byte

const (
	TypeInt               Type = 0x00
	TypeUint              Type = 0x01
	TypeBuffer            Type = 0x02
	TypeBoolTrue          Type = 0x03
	TypeBoolFalse         Type = 0x04
	TypePrincipalStandard Type = 0x05
	TypePrincipalContract Type = 0x06
	TypeResponseOk        Type = 0x07
	TypeResponseErr       Type = 0x08
	TypeOptionalNone      Type = 0x09
	TypeOptionalSome      Type = 0x0a
	TypeList              Type = 0x0b
	TypeTuple             Type = 0x0c
	TypeStringASCII       Type = 0x0d
	TypeStringUTF8        Type = 0x0e
)

// String returns the Clarity type name.
func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeBuffer:
		return "buffer"
	case TypeBoolTrue, TypeBoolFalse:
		return "bool"
	case TypePrincipalStandard, TypePrincipalContract:
		return "principal"
	case TypeResponseOk:
		return "ok"
	case TypeResponseErr:
		return "err"
	case TypeOptionalNone:
		return "none"
	case TypeOptionalSome:
		return "some"
	case TypeList:
		return "list"
	case TypeTuple:
		return "tuple"
	case TypeStringASCII:
		return "string-ascii"
	case TypeStringUTF8:
		return "string-utf8"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Value is a node of a Clarity value tree. String renders the Clarity repr.
type Value interface {
	Type() Type
	String() string
}

// maxU128 is 2^128 - 1.
var maxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

var (
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
)

// Int is a signed 128-bit integer.
type Int struct{ V *big.Int }

func (Int) Type() Type { return TypeInt }
func (v Int) String() string { return v.V.String() }

// Uint is an unsigned 128-bit integer.
type Uint struct{ V *uint256.Int }

func (Uint) Type() Type { return TypeUint }
func (v Uint) String() string { return "u" + v.V.Dec() }

// Bool is a Clarity boolean.
type Bool bool

func (b Bool) Type() Type {
	if b {
		return TypeBoolTrue
	}
	return TypeBoolFalse
}

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Buffer is a byte buffer.
type Buffer []byte

func (Buffer) Type() Type { return TypeBuffer }
func (b Buffer) String() string {
	return "0x" + fmt.Sprintf("%x", []byte(b))
}

// StandardPrincipal is an account principal: an address version and the
// hash160 of the account's public key (or multisig script).
type StandardPrincipal struct {
	Version byte
	Hash160 [20]byte
}

func (StandardPrincipal) Type() Type { return TypePrincipalStandard }

// Address returns the c32check address, e.g. "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7".
func (p StandardPrincipal) Address() string {
	return AddressFromHash160(p.Version, p.Hash160)
}

func (p StandardPrincipal) String() string { return "'" + p.Address() }

// ContractPrincipal identifies a deployed contract.
type ContractPrincipal struct {
	Issuer StandardPrincipal
	Name   string
}

func (ContractPrincipal) Type() Type { return TypePrincipalContract }

// ID returns "address.contract-name".
func (p ContractPrincipal) ID() string { return p.Issuer.Address() + "." + p.Name }

func (p ContractPrincipal) String() string { return "'" + p.ID() }

// Ok is a successful response.
type Ok struct{ V Value }

func (Ok) Type() Type { return TypeResponseOk }
func (r Ok) String() string { return "(ok " + r.V.String() + ")" }

// Err is an error response.
type Err struct{ V Value }

func (Err) Type() Type { return TypeResponseErr }
func (r Err) String() string { return "(err " + r.V.String() + ")" }

// None is the empty optional.
type None struct{}

func (None) Type() Type { return TypeOptionalNone }
func (None) String() string { return "none" }

// Some is a present optional.
type Some struct{ V Value }

func (Some) Type() Type { return TypeOptionalSome }
func (o Some) String() string { return "(some " + o.V.String() + ")" }

// List is a homogeneous Clarity list.
type List []Value

func (List) Type() Type { return TypeList }
func (l List) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.String()
	}
	return "(list " + strings.Join(parts, " ") + ")"
}

// Tuple is a record of named fields.
type Tuple map[string]Value

func (Tuple) Type() Type { return TypeTuple }
func (t Tuple) String() string {
	keys := t.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = "(" + k + " " + t[k].String() + ")"
	}
	return "(tuple " + strings.Join(parts, " ") + ")"
}

// Keys returns the field names in serialization order.
func (t Tuple) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StringASCII is an ASCII string.
type StringASCII string

func (StringASCII) Type() Type { return TypeStringASCII }
func (s StringASCII) String() string { return quote(string(s)) }

// StringUTF8 is a UTF-8 string.
type StringUTF8 string

func (StringUTF8) Type() Type { return TypeStringUTF8 }
func (s StringUTF8) String() string { return "u" + quote(string(s)) }

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

// NewUint returns a uint value.
func NewUint(n uint64) Uint { return Uint{V: uint256.NewInt(n)} }

// ParseUint parses a base-10 unsigned integer that fits in 128 bits.
func ParseUint(s string) (Uint, error) {
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return Uint{}, fmt.Errorf("clarity: parse uint %q: %w", s, err)
	}
	if n.Gt(maxU128) {
		return Uint{}, fmt.Errorf("clarity: uint %q overflows 128 bits", s)
	}
	return Uint{V: n}, nil
}

// NewInt returns an int value.
func NewInt(n int64) Int { return Int{V: big.NewInt(n)} }

// ParseInt parses a base-10 signed integer that fits in 128 bits.
func ParseInt(s string) (Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Int{}, fmt.Errorf("clarity: parse int %q", s)
	}
	if n.Cmp(minI128) < 0 || n.Cmp(maxI128) > 0 {
		return Int{}, fmt.Errorf("clarity: int %q overflows 128 bits", s)
	}
	return Int{V: n}, nil
}

// NewSome wraps v in an optional.
func NewSome(v Value) Some { return Some{V: v} }

// NewOptional returns (some v) or none when v is nil.
func NewOptional(v Value) Value {
	if v == nil {
		return None{}
	}
	return Some{V: v}
}

// ParsePrincipal parses "ADDRESS" or "ADDRESS.contract-name".
func ParsePrincipal(s string) (Value, error) {
	s = strings.TrimPrefix(s, "'")
	addr, name, isContract := strings.Cut(s, ".")
	version, hash, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	issuer := StandardPrincipal{Version: version, Hash160: hash}
	if !isContract {
		return issuer, nil
	}
	if err := validateContractName(name); err != nil {
		return nil, err
	}
	return ContractPrincipal{Issuer: issuer, Name: name}, nil
}

// NewContractPrincipal builds a contract principal from its address and name.
func NewContractPrincipal(address, name string) (ContractPrincipal, error) {
	version, hash, err := ParseAddress(address)
	if err != nil {
		return ContractPrincipal{}, err
	}
	if err := validateContractName(name); err != nil {
		return ContractPrincipal{}, err
	}
	return ContractPrincipal{Issuer: StandardPrincipal{Version: version, Hash160: hash}, Name: name}, nil
}

func validateContractName(name string) error {
	if name == "" || len(name) > 128 {
		return fmt.Errorf("clarity: invalid contract name length %d", len(name))
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		alpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if i == 0 && !alpha {
			return fmt.Errorf("clarity: contract name %q must start with a letter", name)
		}
		if !alpha && !(c >= '0' && c <= '9') && c != '-' && c != '_' {
			return fmt.Errorf("clarity: contract name %q has invalid character %q", name, c)
		}
	}
	return nil
}
