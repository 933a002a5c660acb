// Package wallet owns the connected-account session: which address is
// connected, its user data and balances, and the provider that signs and
// submits transactions on its behalf.
package wallet

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// CallRequest is a state-changing contract call with encoded arguments.
type CallRequest struct {
	Contract     domain.ContractRef
	FunctionName string
	Args         []clarity.Value
}

// Submitted describes a transaction the provider has broadcast.
type Submitted struct {
	TxID  string
	Nonce uint64
	Fee   uint64
}

// Provider is a wallet able to authorize a session and sign contract calls.
type Provider interface {
	Name() string
	// Account is the address the provider would connect, known before
	// Connect for key-backed providers.
	Account() string
	Connect(ctx context.Context) (domain.UserData, error)
	Disconnect(ctx context.Context) error
	IsConnected() bool
	UserData() (domain.UserData, bool)
	CallContract(ctx context.Context, req CallRequest) (Submitted, error)
}

// NoKey returns the provider used when no signing key is configured. It
// never connects, so every state-changing call fails with
// domain.ErrNotConnected before reaching it.
func NoKey() Provider { return noKey{} }

type noKey struct{}

func (noKey) Name() string    { return "none" }
func (noKey) Account() string { return "" }

func (noKey) Connect(context.Context) (domain.UserData, error) {
	return domain.UserData{}, fmt.Errorf("%w: no signing key configured", domain.ErrUnauthorized)
}

func (noKey) Disconnect(context.Context) error { return nil }
func (noKey) IsConnected() bool                { return false }

func (noKey) UserData() (domain.UserData, bool) { return domain.UserData{}, false }

func (noKey) CallContract(context.Context, CallRequest) (Submitted, error) {
	return Submitted{}, domain.ErrNotConnected
}
