package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"

	"github.com/alanyoungcy/propertyx/internal/clarity"
)

// Signer holds a secp256k1 account key and produces the recoverable
// signatures Stacks transactions carry.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  []byte // 33-byte compressed
	hash160    [20]byte
}

// NewSigner creates a Signer from a hex-encoded private key. Stacks wallets
// export 33-byte keys with a trailing 0x01 compression flag; both forms are
// accepted and the public key is always compressed.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if len(keyHex) == 66 {
		if !strings.HasSuffix(keyHex, "01") {
			return nil, fmt.Errorf("crypto/signer: 33-byte key must end in 01")
		}
		keyHex = keyHex[:64]
	}

	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	pub := ethcrypto.CompressPubkey(&pk.PublicKey)
	return &Signer{
		privateKey: pk,
		publicKey:  pub,
		hash160:    Hash160(pub),
	}, nil
}

// PublicKey returns the compressed public key.
func (s *Signer) PublicKey() []byte {
	out := make([]byte, len(s.publicKey))
	copy(out, s.publicKey)
	return out
}

// PublicKeyHex returns the compressed public key as hex.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.publicKey)
}

// Hash160 returns RIPEMD160(SHA256(pubkey)).
func (s *Signer) Hash160() [20]byte {
	return s.hash160
}

// Address returns the single-sig account address on the given network.
func (s *Signer) Address(testnet bool) string {
	version := clarity.AddressVersionMainnetSingleSig
	if testnet {
		version = clarity.AddressVersionTestnetSingleSig
	}
	return clarity.AddressFromHash160(version, s.hash160)
}

// SignDigest signs a 32-byte digest and returns the 65-byte signature as
// recovery id || r || s.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("crypto/signer: digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns r || s || v.
	out := make([]byte, 65)
	out[0] = sig[64]
	copy(out[1:], sig[:64])
	return out, nil
}

// RecoverPublicKey returns the compressed public key that produced a VRS
// signature over digest.
func RecoverPublicKey(digest, vrs []byte) ([]byte, error) {
	if len(vrs) != 65 {
		return nil, fmt.Errorf("crypto/signer: signature must be 65 bytes, got %d", len(vrs))
	}
	rsv := make([]byte, 65)
	copy(rsv, vrs[1:])
	rsv[64] = vrs[0]

	pub, err := ethcrypto.SigToPub(digest, rsv)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.CompressPubkey(pub), nil
}

// Hash160 computes RIPEMD160(SHA256(b)).
func Hash160(b []byte) [20]byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sha[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}
