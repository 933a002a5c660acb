package domain

import (
	"fmt"
	"strings"
)

// ContractRef identifies a deployed contract.
type ContractRef struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ParseContractRef splits "ADDRESS.contract-name".
func ParseContractRef(id string) (ContractRef, error) {
	addr, name, ok := strings.Cut(strings.TrimSpace(id), ".")
	if !ok || addr == "" || name == "" || strings.Contains(name, ".") {
		return ContractRef{}, fmt.Errorf("%w: contract id %q", ErrInvalidInput, id)
	}
	return ContractRef{Address: addr, Name: name}, nil
}

// ID returns "address.name".
func (c ContractRef) ID() string {
	return c.Address + "." + c.Name
}

func (c ContractRef) String() string { return c.ID() }

// IsZero reports whether the reference is unset.
func (c ContractRef) IsZero() bool { return c.Address == "" && c.Name == "" }
