package store

import (
	"context"

	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/shopspring/decimal"
)

// Store is the persistence contract shared by the Postgres and in-memory backends.
//
// Single-row writes (users, new requests) and every read run outside a
// transaction. Anything that touches balances or the ledger goes through InTx.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) error
	GetUser(ctx context.Context, username string) (*domain.User, error)

	CreateRequest(ctx context.Context, req domain.Request) (*domain.Request, error)
	GetRequest(ctx context.Context, id int64) (*domain.Request, error)
	ListRequests(ctx context.Context, f domain.RequestFilter) ([]domain.Request, error)

	ListTransactions(ctx context.Context, username string, limit int) ([]domain.TransactionRecord, error)

	// InTx runs fn inside one all-or-nothing unit. If fn returns an error
	// every write made through tx is discarded.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close()
}

// Tx is the write surface available inside InTx.
type Tx interface {
	// LockRequest loads a request and holds it until the unit ends.
	LockRequest(ctx context.Context, id int64) (*domain.Request, error)
	// LockUser loads a user and holds the row until the unit ends.
	LockUser(ctx context.Context, username string) (*domain.User, error)
	// FinalizeRequest moves a pending request to status. It fails with
	// domain.ErrAlreadyProcessed when the request is no longer pending.
	FinalizeRequest(ctx context.Context, id int64, status domain.RequestStatus, adminNotes string) (*domain.Request, error)
	// AdjustBalance adds delta to the user's balance and returns the new balance.
	AdjustBalance(ctx context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error)
	AppendTransaction(ctx context.Context, rec domain.TransactionRecord) (*domain.TransactionRecord, error)
}
