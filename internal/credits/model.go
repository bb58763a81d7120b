// Package credits holds each clinic's prepaid telemedicine credit balance and
// the ledger of debits and grants against it.
package credits

import (
	"errors"
	"time"
)

var (
	ErrInsufficientCredits = errors.New("credits: insufficient credits")
	ErrInvalidAmount       = errors.New("credits: amount must be positive")
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindDebit Kind = "debit"
	KindGrant Kind = "grant"
)

// Reference points a ledger entry at the record that caused it.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Balance is a clinic's spendable credits.
type Balance struct {
	OrgID     string    `json:"org_id"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry describes a change to apply. Amount is always positive.
type Entry struct {
	ID        string
	OrgID     string
	Amount    int
	Reference Reference
	CreatedAt time.Time
	CreatedBy string
}

// Transaction is a recorded ledger row. Amount is negative for debits.
type Transaction struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	Amount        int       `json:"amount"`
	BalanceAfter  int       `json:"balance_after"`
	Kind          Kind      `json:"kind"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by"`
}
