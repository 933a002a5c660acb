package clarity

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	vectorHash    = "a46ff88886c2ef9762d970b4d2c63678835bd39d"
	vectorAddress = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
)

func vectorPrincipal(t *testing.T) StandardPrincipal {
	t.Helper()
	raw, err := hex.DecodeString(vectorHash)
	require.NoError(t, err)
	var h [20]byte
	copy(h[:], raw)
	return StandardPrincipal{Version: AddressVersionMainnetSingleSig, Hash160: h}
}

func TestAddressFromHash160KnownVector(t *testing.T) {
	p := vectorPrincipal(t)
	assert.Equal(t, vectorAddress, p.Address())
	assert.Equal(t, "P2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7", C32CheckEncode(22, p.Hash160[:]))
}

func TestParseAddress(t *testing.T) {
	version, hash, err := ParseAddress(vectorAddress)
	require.NoError(t, err)
	assert.Equal(t, AddressVersionMainnetSingleSig, version)
	assert.Equal(t, vectorHash, hex.EncodeToString(hash[:]))

	// Flip the last character: checksum must fail.
	bad := vectorAddress[:len(vectorAddress)-1] + "8"
	_, _, err = ParseAddress(bad)
	assert.ErrorIs(t, err, ErrInvalidChecksum)

	_, _, err = ParseAddress("XP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestC32LeadingZeros(t *testing.T) {
	in := []byte{0, 0, 1, 2, 3}
	enc := c32Encode(in)
	assert.True(t, strings.HasPrefix(enc, "00"))
	dec, err := c32Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in, dec)
}

func TestSerializeKnownEncodings(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		hex  string
	}{
		{"uint", NewUint(1), "0x0100000000000000000000000000000001"},
		{"int negative", NewInt(-1), "0x00ffffffffffffffffffffffffffffffff"},
		{"true", Bool(true), "0x03"},
		{"false", Bool(false), "0x04"},
		{"none", None{}, "0x09"},
		{"some", NewSome(NewUint(1)), "0x0a0100000000000000000000000000000001"},
		{"utf8", StringUTF8("hi"), "0x0e000000026869"},
		{"ascii", StringASCII("hi"), "0x0d000000026869"},
		{"buffer", Buffer{0xbe, 0xef}, "0x0200000002beef"},
		{"ok", Ok{V: Bool(true)}, "0x0703"},
		{"err", Err{V: NewUint(0)}, "0x0801" + strings.Repeat("00", 16)},
		{"tuple sorted", Tuple{"b": Bool(true), "a": Bool(false)}, "0x0c00000002016104016203"},
		{"list", List{Bool(true), Bool(false)}, "0x0b000000020304"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SerializeHex(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.hex, got)

			back, err := DeserializeHex(tt.hex)
			require.NoError(t, err)
			assert.Equal(t, tt.v.String(), back.String())
		})
	}
}

func TestSerializePrincipals(t *testing.T) {
	p := vectorPrincipal(t)
	got, err := SerializeHex(p)
	require.NoError(t, err)
	assert.Equal(t, "0x0516"+vectorHash, got)

	cp := ContractPrincipal{Issuer: p, Name: "marketplace"}
	got, err = SerializeHex(cp)
	require.NoError(t, err)
	assert.Equal(t, "0x0616"+vectorHash+"0b"+hex.EncodeToString([]byte("marketplace")), got)

	back, err := DeserializeHex(got)
	require.NoError(t, err)
	assert.Equal(t, cp, back)
}

func TestDeserializeRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"0x01ff",             // short uint
		"0x0e00000010aa",     // length beyond input
		"0x0b7fffffff",       // absurd list length
		"0x0f",               // unknown prefix
		"0x0303",             // trailing bytes
		"0x0e00000002c328",   // invalid utf-8
	} {
		_, err := DeserializeHex(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestUintOverflow(t *testing.T) {
	_, err := ParseUint("340282366920938463463374607431768211455") // 2^128-1
	require.NoError(t, err)
	_, err = ParseUint("340282366920938463463374607431768211456")
	assert.Error(t, err)
}

func TestReprRoundTrip(t *testing.T) {
	p := vectorPrincipal(t)
	values := []Value{
		NewUint(42),
		NewInt(-7),
		Bool(true),
		Bool(false),
		None{},
		NewSome(NewUint(3)),
		p,
		ContractPrincipal{Issuer: p, Name: "test5-rws"},
		StringUTF8(`say "hi"`),
		StringASCII("plain"),
		Buffer{0x00, 0x01},
		Ok{V: NewSome(StringUTF8("x"))},
		Err{V: NewUint(100)},
		List{NewUint(1), NewUint(2)},
		Tuple{"amt": NewUint(5), "taker": None{}, "maker": p},
	}
	for _, v := range values {
		t.Run(v.String(), func(t *testing.T) {
			parsed, err := ParseRepr(v.String())
			require.NoError(t, err)
			assert.Equal(t, v.String(), parsed.String())

			a, err := Serialize(v)
			require.NoError(t, err)
			b, err := Serialize(parsed)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		})
	}
}

func TestReprFormats(t *testing.T) {
	assert.Equal(t, "u42", NewUint(42).String())
	assert.Equal(t, "(some u1)", NewSome(NewUint(1)).String())
	assert.Equal(t, "'"+vectorAddress, vectorPrincipal(t).String())
	assert.Equal(t, `u"text"`, StringUTF8("text").String())
	assert.Equal(t, "(tuple (a u1))", Tuple{"a": NewUint(1)}.String())
	assert.Equal(t, "(ok u1)", Ok{V: NewUint(1)}.String())
	assert.Equal(t, "0xbeef", Buffer{0xbe, 0xef}.String())
}

func TestParsePrincipal(t *testing.T) {
	v, err := ParsePrincipal(vectorAddress + ".marketplace-fulfill")
	require.NoError(t, err)
	cp, ok := v.(ContractPrincipal)
	require.True(t, ok)
	assert.Equal(t, "marketplace-fulfill", cp.Name)
	assert.Equal(t, vectorAddress, cp.Issuer.Address())

	_, err = ParsePrincipal(vectorAddress + ".9bad")
	assert.Error(t, err)
}

func TestExtractors(t *testing.T) {
	p := vectorPrincipal(t)
	listing := NewSome(Tuple{
		"amt":                    NewUint(1_000_000),
		"maker":                  p,
		"taker":                  None{},
		"payment-asset-contract": NewSome(ContractPrincipal{Issuer: p, Name: "usda"}),
	})

	tuple, err := AsTuple(listing)
	require.NoError(t, err)

	amt, err := tuple.UintField("amt")
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000, amt)

	maker, err := tuple.PrincipalField("maker")
	require.NoError(t, err)
	assert.Equal(t, vectorAddress, maker)

	taker, err := tuple.OptionalPrincipalField("taker")
	require.NoError(t, err)
	assert.Empty(t, taker)

	pay, err := tuple.OptionalPrincipalField("payment-asset-contract")
	require.NoError(t, err)
	assert.Equal(t, vectorAddress+".usda", pay)

	_, err = AsTuple(None{})
	assert.ErrorIs(t, err, ErrWrongType)

	s, err := AsString(Ok{V: NewSome(StringUTF8("https://example.com/meta.json"))})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/meta.json", s)

	n, err := AsUint64(Ok{V: NewUint(9)})
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)
}

func TestToNative(t *testing.T) {
	p := vectorPrincipal(t)
	v := Ok{V: Tuple{
		"owner":  p,
		"value":  NewUint(5_000_000),
		"name":   StringUTF8("Villa"),
		"doc":    NewSome(StringASCII("ipfs://x")),
		"parent": None{},
		"hash":   Buffer{0xbe, 0xef},
		"tags":   List{Bool(true), NewInt(-3)},
	}}

	assert.Equal(t, map[string]any{
		"ok": true,
		"value": map[string]any{
			"owner":  vectorAddress,
			"value":  "5000000",
			"name":   "Villa",
			"doc":    "ipfs://x",
			"parent": nil,
			"hash":   "0xbeef",
			"tags":   []any{true, "-3"},
		},
	}, ToNative(v))
	assert.Equal(t, map[string]any{"ok": false, "value": "1"}, ToNative(Err{V: NewUint(1)}))
}
