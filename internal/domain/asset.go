package domain

import "github.com/holiman/uint256"

// TokenMetadata is the per-contract metadata read from a SIP-010 token.
type TokenMetadata struct {
	Contract      string         `json:"contract"`
	Name          string         `json:"name,omitempty"`
	Symbol        string         `json:"symbol,omitempty"`
	TokenURI      string         `json:"tokenUri,omitempty"`
	ImageMetadata map[string]any `json:"imageMetadata,omitempty"`
}

// AssetToken (APT) is an owned, marketplace-whitelisted token balance.
type AssetToken struct {
	ContractAddress string         `json:"contractAddress"`
	ContractName    string         `json:"contractName"`
	AssetName       string         `json:"assetName"`
	Name            string         `json:"name"`
	Symbol          string         `json:"symbol,omitempty"`
	ImageMetadata   map[string]any `json:"imageMetadata,omitempty"`
	Balance         *uint256.Int   `json:"balance"`
	StakedAmount    uint64         `json:"stakedAmount"`
	UnlockBlock     uint64         `json:"unlockBlock"`
}

// ContractID returns "address.name".
func (a AssetToken) ContractID() string {
	return a.ContractAddress + "." + a.ContractName
}

// TokenBalance is one row of an address's fungible-token balance list.
// Balance is the raw SIP-010 u128 amount.
type TokenBalance struct {
	ContractID string       `json:"contractId"`
	AssetName  string       `json:"assetName"`
	Balance    *uint256.Int `json:"balance"`
}

// AssetRecord is a registered real-world asset as returned by get-asset.
type AssetRecord struct {
	Owner   string         `json:"owner"`
	AssetID uint64         `json:"assetId"`
	Found   bool           `json:"found"`
	Fields  map[string]any `json:"fields,omitempty"`
}
