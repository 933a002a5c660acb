package clarity

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

// maxDepth bounds nesting while decoding untrusted input.
const maxDepth = 64

var ErrMalformed = errors.New("clarity: malformed serialized value")

var twoTo128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Serialize encodes v in the Clarity consensus binary format.
func Serialize(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeHex encodes v and returns it as a 0x-prefixed hex string, the
// form accepted by the node's read-only and map-entry endpoints.
func SerializeHex(v Value) (string, error) {
	b, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

// Deserialize decodes a single value. Trailing bytes are an error.
func Deserialize(b []byte) (Value, error) {
	r := bytes.NewReader(b)
	v, err := readValue(r, 0)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}
	return v, nil
}

// DeserializeHex decodes a hex string, with or without 0x prefix.
func DeserializeHex(s string) (Value, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("clarity: decode hex: %w", err)
	}
	return Deserialize(b)
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func writeValue(buf *bytes.Buffer, v Value) error {
	if v == nil {
		return errors.New("clarity: cannot serialize nil value")
	}
	buf.WriteByte(byte(v.Type()))

	switch t := v.(type) {
	case Int:
		n := new(big.Int).Set(t.V)
		if n.Sign() < 0 {
			n.Add(n, twoTo128)
		}
		var out [16]byte
		n.FillBytes(out[:])
		buf.Write(out[:])
	case Uint:
		if t.V.Gt(maxU128) {
			return fmt.Errorf("clarity: uint %s overflows 128 bits", t.V.Dec())
		}
		b32 := t.V.Bytes32()
		buf.Write(b32[16:])
	case Bool:
	case Buffer:
		writeLen32(buf, len(t))
		buf.Write(t)
	case StandardPrincipal:
		writeStandard(buf, t)
	case ContractPrincipal:
		writeStandard(buf, t.Issuer)
		if err := writeName(buf, t.Name); err != nil {
			return err
		}
	case Ok:
		return writeValue(buf, t.V)
	case Err:
		return writeValue(buf, t.V)
	case None:
	case Some:
		return writeValue(buf, t.V)
	case List:
		writeLen32(buf, len(t))
		for _, item := range t {
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
	case Tuple:
		keys := t.Keys()
		writeLen32(buf, len(keys))
		for _, k := range keys {
			if err := writeName(buf, k); err != nil {
				return err
			}
			if err := writeValue(buf, t[k]); err != nil {
				return err
			}
		}
	case StringASCII:
		for i := 0; i < len(t); i++ {
			if t[i] > 0x7f {
				return fmt.Errorf("clarity: string-ascii contains non-ascii byte 0x%02x", t[i])
			}
		}
		writeLen32(buf, len(t))
		buf.WriteString(string(t))
	case StringUTF8:
		if !utf8.ValidString(string(t)) {
			return errors.New("clarity: string-utf8 is not valid utf-8")
		}
		writeLen32(buf, len(t))
		buf.WriteString(string(t))
	default:
		return fmt.Errorf("clarity: cannot serialize %T", v)
	}
	return nil
}

func writeLen32(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}

func writeStandard(buf *bytes.Buffer, p StandardPrincipal) {
	buf.WriteByte(p.Version)
	buf.Write(p.Hash160[:])
}

func writeName(buf *bytes.Buffer, name string) error {
	if name == "" || len(name) > 128 {
		return fmt.Errorf("clarity: invalid name length %d", len(name))
	}
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)
	return nil
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

func readValue(r *bytes.Reader, depth int) (Value, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting exceeds %d", ErrMalformed, maxDepth)
	}
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: missing type prefix", ErrMalformed)
	}

	switch Type(prefix) {
	case TypeInt:
		b, err := readN(r, 16)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(b)
		if b[0]&0x80 != 0 {
			n.Sub(n, twoTo128)
		}
		return Int{V: n}, nil
	case TypeUint:
		b, err := readN(r, 16)
		if err != nil {
			return nil, err
		}
		return Uint{V: new(uint256.Int).SetBytes(b)}, nil
	case TypeBuffer:
		b, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		return Buffer(b), nil
	case TypeBoolTrue:
		return Bool(true), nil
	case TypeBoolFalse:
		return Bool(false), nil
	case TypePrincipalStandard:
		return readStandard(r)
	case TypePrincipalContract:
		issuer, err := readStandard(r)
		if err != nil {
			return nil, err
		}
		name, err := readName(r)
		if err != nil {
			return nil, err
		}
		return ContractPrincipal{Issuer: issuer, Name: name}, nil
	case TypeResponseOk:
		inner, err := readValue(r, depth+1)
		if err != nil {
			return nil, err
		}
		return Ok{V: inner}, nil
	case TypeResponseErr:
		inner, err := readValue(r, depth+1)
		if err != nil {
			return nil, err
		}
		return Err{V: inner}, nil
	case TypeOptionalNone:
		return None{}, nil
	case TypeOptionalSome:
		inner, err := readValue(r, depth+1)
		if err != nil {
			return nil, err
		}
		return Some{V: inner}, nil
	case TypeList:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		// Every element needs at least one byte.
		if int64(n) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: list length %d exceeds input", ErrMalformed, n)
		}
		list := make(List, 0, n)
		for i := uint32(0); i < n; i++ {
			item, err := readValue(r, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case TypeTuple:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		if int64(n) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: tuple length %d exceeds input", ErrMalformed, n)
		}
		tuple := make(Tuple, n)
		for i := uint32(0); i < n; i++ {
			name, err := readName(r)
			if err != nil {
				return nil, err
			}
			field, err := readValue(r, depth+1)
			if err != nil {
				return nil, err
			}
			tuple[name] = field
		}
		return tuple, nil
	case TypeStringASCII:
		b, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		return StringASCII(b), nil
	case TypeStringUTF8:
		b, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, fmt.Errorf("%w: invalid utf-8", ErrMalformed)
		}
		return StringUTF8(b), nil
	default:
		return nil, fmt.Errorf("%w: unknown type prefix 0x%02x", ErrMalformed, prefix)
	}
}

func readN(r *bytes.Reader, n int) ([]byte, error) {
	if r.Len() < n {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrMalformed, n, r.Len())
	}
	b := make([]byte, n)
	_, _ = r.Read(b)
	return b, nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	b, err := readN(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(r.Len()) {
		return nil, fmt.Errorf("%w: length %d exceeds input", ErrMalformed, n)
	}
	return readN(r, int(n))
}

func readStandard(r *bytes.Reader) (StandardPrincipal, error) {
	b, err := readN(r, 21)
	if err != nil {
		return StandardPrincipal{}, err
	}
	p := StandardPrincipal{Version: b[0]}
	copy(p.Hash160[:], b[1:])
	return p, nil
}

func readName(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("%w: missing name length", ErrMalformed)
	}
	b, err := readN(r, int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
