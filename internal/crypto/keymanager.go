// Package crypto provides account key storage, Stacks transaction signing,
// and HMAC signing for outbound webhooks.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keystoreVersion  = 1
)

// keystoreFile is the on-disk format of an encrypted account key. All
// binary fields are base64 (standard encoding).
type keystoreFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig carries the information LoadKey needs to resolve the wallet's
// account key. A raw key wins over an encrypted file.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// normalizeKey strips 0x and validates a 32-byte key, or a 33-byte key
// carrying the trailing 0x01 compression flag.
func normalizeKey(privateKeyHex string) ([]byte, error) {
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	switch {
	case len(keyBytes) == 32:
	case len(keyBytes) == 33 && keyBytes[32] == 0x01:
	default:
		return nil, fmt.Errorf("crypto: expected 32-byte key (or 33 with compression flag), got %d bytes", len(keyBytes))
	}
	return keyBytes, nil
}

// newAEAD derives an AES-256-GCM cipher from password and salt.
func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// EncryptKey seals a hex-encoded private key under password and returns the
// keystore JSON. address is stored in clear for identification only.
func EncryptKey(privateKeyHex, password, address string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	keyBytes, err := normalizeKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	return json.MarshalIndent(keystoreFile{
		Version:    keystoreVersion,
		Address:    address,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// DecryptKey opens keystore JSON produced by EncryptKey and returns the
// hex-encoded private key without 0x.
func DecryptKey(keystoreJSON []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var ks keystoreFile
	if err := json.Unmarshal(keystoreJSON, &ks); err != nil {
		return "", fmt.Errorf("crypto: parsing keystore: %w", err)
	}
	if ks.Version != keystoreVersion {
		return "", fmt.Errorf("crypto: unsupported keystore version %d", ks.Version)
	}

	fields := make([][]byte, 3)
	for i, enc := range []string{ks.Salt, ks.Nonce, ks.Ciphertext} {
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return "", fmt.Errorf("crypto: decoding keystore field %d: %w", i, err)
		}
		fields[i] = b
	}
	salt, nonce, ciphertext := fields[0], fields[1], fields[2]

	gcm, err := newAEAD(password, salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: keystore nonce is %d bytes", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// LoadKey resolves the account private key: RawPrivateKey if set, else the
// keystore at EncryptedKeyPath opened with KeyPassword.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		keyBytes, err := normalizeKey(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(keyBytes), nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading keystore: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}

	return "", errors.New("crypto: no private key source configured (set wallet.private_key or wallet.encrypted_key_path)")
}

// LoadSigner resolves the key and builds a Signer from it.
func LoadSigner(cfg KeyConfig) (*Signer, error) {
	keyHex, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewSigner(keyHex)
}
