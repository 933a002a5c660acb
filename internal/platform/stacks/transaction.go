package stacks

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/alanyoungcy/propertyx/internal/clarity"
)

// Network selects transaction version and chain id.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

const (
	txVersionMainnet byte = 0x00
	txVersionTestnet byte = 0x80

	chainIDMainnet uint32 = 0x00000001
	chainIDTestnet uint32 = 0x80000000

	authTypeStandard      byte = 0x04
	hashModeP2PKH         byte = 0x00
	keyEncodingCompressed byte = 0x00

	anchorModeAny       byte = 0x03
	postConditionAllow  byte = 0x01
	payloadContractCall byte = 0x02

	recoverableSigLength = 65
)

// TxSigner produces recoverable secp256k1 signatures in VRS order
// (recovery id, r, s) over 32-byte digests.
type TxSigner interface {
	PublicKey() []byte
	Hash160() [20]byte
	SignDigest(digest []byte) ([]byte, error)
}

// ContractCallTx is an unsigned single-sig contract-call transaction.
type ContractCallTx struct {
	Network         Network
	ContractAddress string
	ContractName    string
	FunctionName    string
	Args            []clarity.Value
	Nonce           uint64
	Fee             uint64

	signer    [20]byte
	signature [recoverableSigLength]byte
}

// Sign fills the spending condition with the signer's hash and a signature
// over the presign sighash, and returns the serialized transaction and its id.
func (tx *ContractCallTx) Sign(s TxSigner) ([]byte, string, error) {
	tx.signer = s.Hash160()
	tx.signature = [recoverableSigLength]byte{}

	// Initial sighash: the tx with nonce, fee, and signature cleared.
	cleared, err := tx.serialize(0, 0)
	if err != nil {
		return nil, "", err
	}
	initial := sha512.Sum512_256(cleared)

	presign := make([]byte, 0, 32+1+8+8)
	presign = append(presign, initial[:]...)
	presign = append(presign, authTypeStandard)
	presign = binary.BigEndian.AppendUint64(presign, tx.Fee)
	presign = binary.BigEndian.AppendUint64(presign, tx.Nonce)
	digest := sha512.Sum512_256(presign)

	sig, err := s.SignDigest(digest[:])
	if err != nil {
		return nil, "", fmt.Errorf("stacks: sign tx: %w", err)
	}
	if len(sig) != recoverableSigLength {
		return nil, "", fmt.Errorf("stacks: sign tx: signature is %d bytes", len(sig))
	}
	copy(tx.signature[:], sig)

	raw, err := tx.serialize(tx.Nonce, tx.Fee)
	if err != nil {
		return nil, "", err
	}
	return raw, TxID(raw), nil
}

// TxID returns the 0x-prefixed SHA-512/256 id of a serialized transaction.
func TxID(raw []byte) string {
	sum := sha512.Sum512_256(raw)
	return "0x" + hex.EncodeToString(sum[:])
}

func (tx *ContractCallTx) serialize(nonce, fee uint64) ([]byte, error) {
	var buf bytes.Buffer

	switch tx.Network {
	case Mainnet:
		buf.WriteByte(txVersionMainnet)
		_ = binary.Write(&buf, binary.BigEndian, chainIDMainnet)
	case Testnet, "":
		buf.WriteByte(txVersionTestnet)
		_ = binary.Write(&buf, binary.BigEndian, chainIDTestnet)
	default:
		return nil, fmt.Errorf("stacks: unknown network %q", tx.Network)
	}

	// Standard authorization, single-sig P2PKH spending condition.
	buf.WriteByte(authTypeStandard)
	buf.WriteByte(hashModeP2PKH)
	buf.Write(tx.signer[:])
	_ = binary.Write(&buf, binary.BigEndian, nonce)
	_ = binary.Write(&buf, binary.BigEndian, fee)
	buf.WriteByte(keyEncodingCompressed)
	buf.Write(tx.signature[:])

	buf.WriteByte(anchorModeAny)
	buf.WriteByte(postConditionAllow)
	_ = binary.Write(&buf, binary.BigEndian, uint32(0))

	buf.WriteByte(payloadContractCall)
	version, hash, err := clarity.ParseAddress(tx.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("stacks: contract address: %w", err)
	}
	buf.WriteByte(version)
	buf.Write(hash[:])
	if err := writeShortName(&buf, tx.ContractName); err != nil {
		return nil, err
	}
	if err := writeShortName(&buf, tx.FunctionName); err != nil {
		return nil, err
	}
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(tx.Args)))
	for i, a := range tx.Args {
		b, err := clarity.Serialize(a)
		if err != nil {
			return nil, fmt.Errorf("stacks: argument %d: %w", i, err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func writeShortName(buf *bytes.Buffer, name string) error {
	if name == "" || len(name) > 128 {
		return errors.New("stacks: name must be 1-128 bytes")
	}
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)
	return nil
}
