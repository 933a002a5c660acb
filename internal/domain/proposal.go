package domain

import "time"

// Votes is the running tally of a tokenization proposal.
type Votes struct {
	Yes uint64 `json:"yes"`
	No  uint64 `json:"no"`
}

// TokenizationProposal is an asset submitted for community approval.
type TokenizationProposal struct {
	ID             string    `json:"id"`
	AssetOwner     string    `json:"assetOwner"`
	AssetID        uint64    `json:"assetId"`
	AssetName      string    `json:"assetName"`
	Description    string    `json:"description"`
	RequestedValue uint64    `json:"requestedValue"`
	IPFSData       string    `json:"ipfsData"`
	Votes          Votes     `json:"votes"`
	VoteEnds       time.Time `json:"voteEnds"`
	TxID           string    `json:"txId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Open reports whether voting is still open at t.
func (p TokenizationProposal) Open(t time.Time) bool {
	return t.Before(p.VoteEnds)
}
