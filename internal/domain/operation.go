package domain

import (
	"time"
)

// OperationStatus is the lifecycle state of a user operation.
type OperationStatus string

const (
	OperationConstructed OperationStatus = "constructed"
	OperationSubmitted   OperationStatus = "submitted"
	OperationConfirmed   OperationStatus = "confirmed"
	OperationFailed      OperationStatus = "failed"
)

// CanTransition reports whether the lifecycle may move from s to next.
// Transitions only go forward: constructed -> submitted -> confirmed | failed.
func (s OperationStatus) CanTransition(next OperationStatus) bool {
	switch s {
	case OperationConstructed:
		return next == OperationSubmitted || next == OperationFailed
	case OperationSubmitted:
		return next == OperationConfirmed || next == OperationFailed
	default:
		return false
	}
}

func (s OperationStatus) IsTerminal() bool {
	return s == OperationConfirmed || s == OperationFailed
}

// OperationRecord is the journal entry for one submitted user operation.
type OperationRecord struct {
	UserOpHash      string          `json:"userOpHash"`
	ChainID         string          `json:"chainId"`
	Sender          string          `json:"sender"`
	Recipient       string          `json:"recipient"`
	Currency        string          `json:"currency"`
	Amount          string          `json:"amount"`
	MinorUnits      string          `json:"minorUnits"`
	Sponsored       bool            `json:"sponsored"`
	Status          OperationStatus `json:"status"`
	TransactionHash string          `json:"transactionHash,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	SubmittedAt     time.Time       `json:"submittedAt"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
}

// TransferRequest is the per-call description of a token transfer.
type TransferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// Wallet is the caller-side directory entry linking an identity to its account.
type Wallet struct {
	IdentityKey  IdentityKey       `json:"identityKey"`
	Credential   PasskeyCredential `json:"credential"`
	Address      string            `json:"address"`
	ChainID      string            `json:"chainId"`
	RegisteredAt time.Time         `json:"registeredAt"`
}
