package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/platform/stacks"
)

// DefaultFee is the flat fee, in micro-STX, used when none is configured.
const DefaultFee = 2000

// TxChain is the part of the Stacks client a KeyProvider submits through.
type TxChain interface {
	AccountNonce(ctx context.Context, address string) (uint64, error)
	Broadcast(ctx context.Context, raw []byte) (string, error)
}

// Signer is a local secp256k1 key.
type Signer interface {
	stacks.TxSigner
	PublicKeyHex() string
	Address(testnet bool) string
}

// KeyProvider signs with a locally loaded key and broadcasts through the
// Stacks API.
type KeyProvider struct {
	signer  Signer
	chain   TxChain
	network stacks.Network
	fee     uint64

	mu        sync.RWMutex
	connected bool
}

// NewKeyProvider creates a KeyProvider. A zero fee means DefaultFee.
func NewKeyProvider(signer Signer, chain TxChain, network stacks.Network, fee uint64) *KeyProvider {
	if fee == 0 {
		fee = DefaultFee
	}
	return &KeyProvider{signer: signer, chain: chain, network: network, fee: fee}
}

func (p *KeyProvider) Name() string { return "local-key" }

func (p *KeyProvider) Account() string {
	return p.signer.Address(p.network != stacks.Mainnet)
}

// Connect authorizes immediately; holding the key is the authorization.
func (p *KeyProvider) Connect(_ context.Context) (domain.UserData, error) {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	ud, _ := p.UserData()
	return ud, nil
}

func (p *KeyProvider) Disconnect(_ context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *KeyProvider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// UserData returns the account description and whether it is connected.
func (p *KeyProvider) UserData() (domain.UserData, bool) {
	return domain.UserData{
		Address:   p.Account(),
		PublicKey: p.signer.PublicKeyHex(),
		Network:   string(p.network),
		Provider:  p.Name(),
	}, p.IsConnected()
}

// CallContract builds a contract-call transaction at the account's next
// nonce, signs it, and broadcasts it. Callers serialize submissions per
// account so two calls never read the same nonce.
func (p *KeyProvider) CallContract(ctx context.Context, req CallRequest) (Submitted, error) {
	if !p.IsConnected() {
		return Submitted{}, domain.ErrNotConnected
	}
	addr := p.Account()

	nonce, err := p.chain.AccountNonce(ctx, addr)
	if err != nil {
		return Submitted{}, fmt.Errorf("wallet: nonce for %s: %w", addr, err)
	}

	tx := &stacks.ContractCallTx{
		Network:         p.network,
		ContractAddress: req.Contract.Address,
		ContractName:    req.Contract.Name,
		FunctionName:    req.FunctionName,
		Args:            req.Args,
		Nonce:           nonce,
		Fee:             p.fee,
	}
	raw, _, err := tx.Sign(p.signer)
	if err != nil {
		return Submitted{}, fmt.Errorf("wallet: sign %s::%s: %w", req.Contract, req.FunctionName, err)
	}

	txID, err := p.chain.Broadcast(ctx, raw)
	if err != nil {
		return Submitted{}, fmt.Errorf("wallet: broadcast %s::%s: %w", req.Contract, req.FunctionName, err)
	}
	return Submitted{TxID: txID, Nonce: nonce, Fee: p.fee}, nil
}

var _ Provider = (*KeyProvider)(nil)
