package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RequestKind distinguishes the two request variants that share one shape.
type RequestKind string

const (
	KindDeposit    RequestKind = "deposit"
	KindWithdrawal RequestKind = "withdrawal"
)

func (k RequestKind) Valid() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// TransactionKind is the ledger kind an approved request of this kind produces.
func (k RequestKind) TransactionKind() TransactionKind {
	if k == KindWithdrawal {
		return TxWithdraw
	}
	return TxDeposit
}

// TransactionKind labels ledger records. The values match what clients render.
type TransactionKind string

const (
	TxDeposit  TransactionKind = "deposit"
	TxWithdraw TransactionKind = "withdraw"
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Action is an admin disposition applied to a pending request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionApprove, ActionReject:
		return a, nil
	default:
		return "", fmt.Errorf("%w: invalid action %q", ErrValidation, s)
	}
}

// Status is the terminal status the action moves a request into.
func (a Action) Status() RequestStatus {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// User is a credential store row. Balance is only written by the approval engine.
type User struct {
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TransactionRecord is an immutable ledger entry produced by an approval.
type TransactionRecord struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Kind      TransactionKind `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Request is a deposit or withdrawal awaiting (or past) admin disposition.
type Request struct {
	ID          int64           `json:"id"`
	Kind        RequestKind     `json:"kind"`
	Username    string          `json:"username"`
	Amount      decimal.Decimal `json:"amount"`
	RequestDate time.Time       `json:"request_date"`
	Status      RequestStatus   `json:"status"`
	AdminNotes  string          `json:"admin_notes"`
	ReferenceID string          `json:"reference_id,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// RequestFilter selects requests for listing. Empty fields match everything.
type RequestFilter struct {
	Username string
	Kind     RequestKind
	Status   RequestStatus
	// OldestFirst orders by request date ascending; the default is newest first.
	OldestFirst bool
}

// MaxAmountScale is the number of fractional digits an amount may carry.
const MaxAmountScale = 2

// Exponent bounds accepted before any arithmetic on an amount. Rescaling a
// decimal costs time proportional to its exponent.
const (
	minAmountExponent = -MaxAmountScale - 16
	maxAmountExponent = 18
)

// MaxAmount is the largest value a NUMERIC(20,2) column holds. It bounds
// amounts and balances alike.
var MaxAmount = decimal.RequireFromString("999999999999999999.99")

// ValidateAmount rejects zero, negative, over-precise and out-of-range amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if exp := amount.Exponent(); exp < minAmountExponent || exp > maxAmountExponent {
		return fmt.Errorf("%w: amount is out of range", ErrValidation)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: valid amount is required", ErrValidation)
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: amount exceeds %s", ErrValidation, MaxAmount)
	}
	if !amount.Equal(amount.Truncate(MaxAmountScale)) {
		return fmt.Errorf("%w: amount supports at most %d decimal places", ErrValidation, MaxAmountScale)
	}
	return nil
}
