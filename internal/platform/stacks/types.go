package stacks

import (
	"strings"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// ---- Request/response bodies of the node RPC and the extended API ----

type readOnlyRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

type readOnlyResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause"`
}

type mapEntryResponse struct {
	Data  string `json:"data"`
	Proof string `json:"proof"`
}

type extendedStatus struct {
	Status   string `json:"status"`
	ChainTip struct {
		BlockHeight     uint64 `json:"block_height"`
		BlockHash       string `json:"block_hash"`
		BurnBlockHeight uint64 `json:"burn_block_height"`
	} `json:"chain_tip"`
}

type ftBalancesPage struct {
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	Total   int            `json:"total"`
	Results []APIFTBalance `json:"results"`
}

// APIFTBalance is one fungible-token balance row. Token is
// "ADDRESS.contract::asset".
type APIFTBalance struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

// ToDomain splits the token identifier and parses the balance.
func (b APIFTBalance) ToDomain() (domain.TokenBalance, bool) {
	contract, asset, _ := strings.Cut(b.Token, "::")
	if !strings.Contains(contract, ".") {
		return domain.TokenBalance{}, false
	}
	bal, err := uint256.FromDecimal(b.Balance)
	if err != nil {
		return domain.TokenBalance{}, false
	}
	return domain.TokenBalance{ContractID: contract, AssetName: asset, Balance: bal}, true
}

type stxBalanceResponse struct {
	Balance string `json:"balance"`
}

type noncesResponse struct {
	PossibleNextNonce uint64 `json:"possible_next_nonce"`
}

type broadcastError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	TxID   string `json:"txid"`
}

type txResponse struct {
	TxID     string `json:"tx_id"`
	TxStatus string `json:"tx_status"`
}

// toDomainStatus maps the API's tx_status values.
func toDomainStatus(s string) domain.TxStatus {
	switch {
	case s == "success":
		return domain.TxStatusSuccess
	case s == "pending":
		return domain.TxStatusPending
	case strings.HasPrefix(s, "abort"):
		return domain.TxStatusAborted
	case strings.HasPrefix(s, "dropped"):
		return domain.TxStatusDropped
	default:
		return domain.TxStatusSubmitted
	}
}
