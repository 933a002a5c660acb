package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Devnet deployer account shipped with Clarinet.
const (
	deployerKey     = "753b7cc01a1a2e86221266a154af739463fce51219d97e4f856cd7200c3bd2a601"
	deployerAddress = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
)

func TestSignerDerivesStacksAddress(t *testing.T) {
	s, err := NewSigner(deployerKey)
	require.NoError(t, err)
	assert.Equal(t, deployerAddress, s.Address(true))
	assert.Len(t, s.PublicKey(), 33)

	// The 32-byte form of the same key yields the same account.
	s32, err := NewSigner("0x" + deployerKey[:64])
	require.NoError(t, err)
	assert.Equal(t, s.PublicKeyHex(), s32.PublicKeyHex())
	assert.Equal(t, 'S', rune(s.Address(false)[0]))
	assert.Equal(t, byte('P'), s.Address(false)[1])
}

func TestNewSignerRejectsBadKeys(t *testing.T) {
	for _, k := range []string{"", "zz", deployerKey[:64] + "02", deployerKey[:60]} {
		_, err := NewSigner(k)
		assert.Error(t, err, k)
	}
}

func TestSignDigestRecovers(t *testing.T) {
	s, err := NewSigner(deployerKey)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("propertyx"))
	sig, err := s.SignDigest(digest[:])
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.LessOrEqual(t, sig[0], byte(3), "first byte is the recovery id")

	pub, err := RecoverPublicKey(digest[:], sig)
	require.NoError(t, err)
	assert.Equal(t, s.PublicKey(), pub)

	_, err = s.SignDigest([]byte("short"))
	assert.Error(t, err)
}

func TestHash160(t *testing.T) {
	// hash160 of the empty string.
	h := Hash160(nil)
	assert.Equal(t, "b472a266d0bd89c13706a4132ccfb16f7c3b9fcb", hex.EncodeToString(h[:]))
}

func TestEncryptDecryptKey(t *testing.T) {
	ks, err := EncryptKey(deployerKey, "hunter2", deployerAddress)
	require.NoError(t, err)
	assert.Contains(t, string(ks), deployerAddress)
	assert.NotContains(t, string(ks), deployerKey[:64])

	got, err := DecryptKey(ks, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, deployerKey, got)

	_, err = DecryptKey(ks, "wrong")
	assert.Error(t, err)

	_, err = EncryptKey(deployerKey, "", "")
	assert.Error(t, err)
}

func TestLoadSigner(t *testing.T) {
	ks, err := EncryptKey(deployerKey, "pw", "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, ks, 0o600))

	s, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, deployerAddress, s.Address(true))

	s, err = LoadSigner(KeyConfig{RawPrivateKey: deployerKey, EncryptedKeyPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, deployerAddress, s.Address(true))

	_, err = LoadSigner(KeyConfig{})
	assert.Error(t, err)
}

func TestWebhookSigner(t *testing.T) {
	w := &WebhookSigner{Secret: "s3cret"}
	body := []byte(`{"kind":"tx_submitted"}`)

	h := w.HeadersAt(body, 1700000000)
	assert.Equal(t, "1700000000", h[HeaderTimestamp])
	assert.Len(t, h[HeaderSignature], 64)

	assert.True(t, w.Verify("1700000000", body, h[HeaderSignature]))
	assert.False(t, w.Verify("1700000001", body, h[HeaderSignature]))
	assert.False(t, w.Verify("1700000000", []byte("{}"), h[HeaderSignature]))
	assert.False(t, (&WebhookSigner{Secret: "other"}).Verify("1700000000", body, h[HeaderSignature]))
}
