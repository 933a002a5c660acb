package domain

import "time"

// TxStatus is the chain status of a submitted transaction.
type TxStatus string

const (
	TxStatusSubmitted TxStatus = "submitted"
	TxStatusPending   TxStatus = "pending"
	TxStatusSuccess   TxStatus = "success"
	TxStatusAborted   TxStatus = "aborted"
	TxStatusDropped   TxStatus = "dropped"
)

// Failed reports whether the transaction will never confirm.
func (s TxStatus) Failed() bool {
	return s == TxStatusAborted || s == TxStatusDropped
}

// TxResult is returned to callers once a contract call is submitted.
type TxResult struct {
	TxID    string `json:"txId"`
	Success bool   `json:"success"`
}

// Transaction is the persisted record of a submitted contract call.
type Transaction struct {
	TxID        string    `json:"txId"`
	Sender      string    `json:"sender"`
	Contract    string    `json:"contract"`
	Function    string    `json:"function"`
	Args        []string  `json:"args"`
	Nonce       uint64    `json:"nonce"`
	Fee         uint64    `json:"fee"`
	Status      TxStatus  `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
}
