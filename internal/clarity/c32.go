package clarity

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

// Address versions.
const (
	AddressVersionMainnetSingleSig byte = 22 // 'P'
	AddressVersionMainnetMultiSig  byte = 20 // 'M'
	AddressVersionTestnetSingleSig byte = 26 // 'T'
	AddressVersionTestnetMultiSig  byte = 21 // 'N'
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	ErrInvalidAddress  = errors.New("clarity: invalid address")
	ErrInvalidChecksum = errors.New("clarity: invalid address checksum")
)

// c32Encode encodes b in Crockford base32, preserving leading zero bytes
// as leading '0' characters.
func c32Encode(b []byte) string {
	var out []byte
	carry := 0
	carryBits := 0
	for i := len(b) - 1; i >= 0; i-- {
		cur := int(b[i])
		lowBitsToTake := 5 - carryBits
		lowBits := cur & ((1 << lowBitsToTake) - 1)
		out = append(out, c32Alphabet[(lowBits<<carryBits)+carry])
		carryBits = 8 + carryBits - 5
		carry = cur >> (8 - carryBits)
		if carryBits >= 5 {
			out = append(out, c32Alphabet[carry&31])
			carryBits -= 5
			carry >>= 5
		}
	}
	if carryBits > 0 {
		out = append(out, c32Alphabet[carry])
	}

	// out is little-endian; drop high-order zeros, then restore one '0' per
	// leading zero byte of the input.
	for len(out) > 0 && out[len(out)-1] == c32Alphabet[0] {
		out = out[:len(out)-1]
	}
	for _, v := range b {
		if v != 0 {
			break
		}
		out = append(out, c32Alphabet[0])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func c32Digit(c byte) (int, bool) {
	switch c {
	case 'O', 'o':
		c = '0'
	case 'L', 'l', 'I', 'i':
		c = '1'
	}
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	idx := strings.IndexByte(c32Alphabet, c)
	return idx, idx >= 0
}

// c32Decode is the inverse of c32Encode.
func c32Decode(s string) ([]byte, error) {
	digits := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		d, ok := c32Digit(s[i])
		if !ok {
			return nil, fmt.Errorf("%w: character %q", ErrInvalidAddress, s[i])
		}
		digits[i] = d
	}

	var out []byte
	carry := 0
	carryBits := 0
	for i := len(digits) - 1; i >= 0; i-- {
		carry += digits[i] << carryBits
		carryBits += 5
		if carryBits >= 8 {
			out = append(out, byte(carry&0xff))
			carryBits -= 8
			carry >>= 8
		}
	}
	if carryBits > 0 {
		out = append(out, byte(carry))
	}

	for len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	for _, d := range digits {
		if d != 0 {
			break
		}
		out = append(out, 0)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func c32Checksum(version byte, data []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, data...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

// C32CheckEncode encodes data under version with a 4-byte double-SHA256
// checksum, e.g. "P2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7".
func C32CheckEncode(version byte, data []byte) string {
	payload := make([]byte, 0, len(data)+4)
	payload = append(payload, data...)
	payload = append(payload, c32Checksum(version, data)...)
	return string(c32Alphabet[version&31]) + c32Encode(payload)
}

// C32CheckDecode reverses C32CheckEncode and verifies the checksum.
func C32CheckDecode(s string) (byte, []byte, error) {
	if len(s) < 2 {
		return 0, nil, fmt.Errorf("%w: %q too short", ErrInvalidAddress, s)
	}
	version, ok := c32Digit(s[0])
	if !ok {
		return 0, nil, fmt.Errorf("%w: version character %q", ErrInvalidAddress, s[0])
	}
	payload, err := c32Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("%w: %q too short", ErrInvalidAddress, s)
	}
	data, sum := payload[:len(payload)-4], payload[len(payload)-4:]
	if !bytes.Equal(sum, c32Checksum(byte(version), data)) {
		return 0, nil, ErrInvalidChecksum
	}
	return byte(version), data, nil
}

// AddressFromHash160 returns the "S"-prefixed c32check address.
func AddressFromHash160(version byte, hash [20]byte) string {
	return "S" + C32CheckEncode(version, hash[:])
}

// ParseAddress decodes an "S"-prefixed c32check address into its version
// and hash160.
func ParseAddress(addr string) (byte, [20]byte, error) {
	var hash [20]byte
	if len(addr) < 2 || (addr[0] != 'S' && addr[0] != 's') {
		return 0, hash, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	version, data, err := C32CheckDecode(addr[1:])
	if err != nil {
		return 0, hash, fmt.Errorf("parse address %q: %w", addr, err)
	}
	if len(data) != 20 {
		return 0, hash, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, addr, len(data))
	}
	copy(hash[:], data)
	return version, hash, nil
}

// IsTestnetVersion reports whether version belongs to the testnet.
func IsTestnetVersion(version byte) bool {
	return version == AddressVersionTestnetSingleSig || version == AddressVersionTestnetMultiSig
}
