package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents an incoming transaction to be scored.
type Transaction struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Account whose history provides the behavioral baseline
	AccountID string `json:"accountId"`

	// Financial details
	Amount decimal.Decimal `json:"amount"`

	// Free-text memo, fed to the semantic classifier when present
	Description string `json:"description,omitempty"`

	// Recipient account number, empty for cash-out style transactions
	ToAccountNumber string `json:"toAccountNumber,omitempty"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryEntry is one prior transaction of the same account, ordered
// oldest first wherever a slice of them appears.
type HistoryEntry struct {
	Amount          decimal.Decimal `json:"amount"`
	ToAccountNumber string          `json:"toAccountNumber,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ToHistoryEntry projects a stored transaction into the scoring window shape.
func (t *Transaction) ToHistoryEntry() HistoryEntry {
	return HistoryEntry{
		Amount:          t.Amount,
		ToAccountNumber: t.ToAccountNumber,
		Timestamp:       t.Timestamp,
	}
}

// ScoreRequest is the API request payload for transaction scoring.
// Amount is a pointer so a missing field is distinguishable from zero.
type ScoreRequest struct {
	AccountID   string           `json:"accountId"`
	Transaction ScoreTransaction `json:"transaction"`

	// Optional caller-supplied history. When nil, the trailing window is
	// loaded from the repository for AccountID.
	History []HistoryEntry `json:"history,omitempty"`
}

// ScoreTransaction is the candidate transaction inside a ScoreRequest.
type ScoreTransaction struct {
	Amount          *decimal.Decimal `json:"amount"`
	Description     string           `json:"description,omitempty"`
	ToAccountNumber string           `json:"toAccountNumber,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
// Callers must have validated that Amount is present.
func (r *ScoreRequest) ToTransaction(tenantID string) *Transaction {
	now := time.Now().UTC()
	amount := decimal.Zero
	if r.Transaction.Amount != nil {
		amount = *r.Transaction.Amount
	}
	return &Transaction{
		TenantID:        tenantID,
		AccountID:       r.AccountID,
		Amount:          amount,
		Description:     r.Transaction.Description,
		ToAccountNumber: r.Transaction.ToAccountNumber,
		Timestamp:       now,
		CreatedAt:       now,
	}
}
