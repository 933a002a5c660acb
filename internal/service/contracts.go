package service

import (
	"context"
	"fmt"
	"math"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/contract"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// Contracts names the deployed contracts the services call.
type Contracts struct {
	Marketplace        domain.ContractRef
	MarketplaceFulfill domain.ContractRef
	RWS                domain.ContractRef
	NFT                domain.ContractRef
	Asset              domain.ContractRef
}

// ContractCaller is the contract adapter as seen by the services.
type ContractCaller interface {
	Call(ctx context.Context, call contract.ContractCall) (domain.TxResult, error)
	ReadOnly(ctx context.Context, ref domain.ContractRef, function string, args []contract.Arg) (clarity.Value, error)
	Sender() string
}

// SessionSource exposes the current wallet session.
type SessionSource interface {
	Session() domain.Session
}

// newCall builds a ContractCall against ref.
func newCall(ref domain.ContractRef, function string, args ...contract.Arg) contract.ContractCall {
	return contract.ContractCall{
		ContractAddress: ref.Address,
		ContractName:    ref.Name,
		FunctionName:    function,
		Args:            args,
	}
}

// connectedAddress returns the session address or domain.ErrNotConnected.
func connectedAddress(s SessionSource) (string, error) {
	sess := s.Session()
	if !sess.Connected || sess.Address == "" {
		return "", domain.ErrNotConnected
	}
	return sess.Address, nil
}

// toMicro scales a positive display amount to micro-units.
func toMicro(amount float64, what string) (uint64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("%w: %s must be greater than zero", domain.ErrInvalidInput, what)
	}
	micro := math.Round(amount * domain.MicroUnits)
	if micro < 1 || micro > math.MaxUint64/2 {
		return 0, fmt.Errorf("%w: %s %v out of range", domain.ErrInvalidInput, what, amount)
	}
	return uint64(micro), nil
}
