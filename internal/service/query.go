package service

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/punchamoorthee/custodia/internal/store"
	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// QueryService serves read-only projections straight from the store.
type QueryService struct {
	store        store.Store
	defaultLimit int
}

func NewQueryService(s store.Store, defaultLimit int) *QueryService {
	if defaultLimit <= 0 || defaultLimit > MaxHistoryLimit {
		defaultLimit = DefaultHistoryLimit
	}
	return &QueryService{store: s, defaultLimit: defaultLimit}
}

func (s *QueryService) GetBalance(ctx context.Context, username string) (decimal.Decimal, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// GetHistory returns up to limit ledger records, newest first. A limit of
// zero or less selects the default; larger values are capped.
func (s *QueryService) GetHistory(ctx context.Context, username string, limit int) ([]domain.TransactionRecord, error) {
	switch {
	case limit <= 0:
		limit = s.defaultLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return s.store.ListTransactions(ctx, username, limit)
}

// GetPendingRequests lists the user's pending requests of kind, newest first.
func (s *QueryService) GetPendingRequests(ctx context.Context, username string, kind domain.RequestKind) ([]domain.Request, error) {
	return s.GetUserRequests(ctx, username, kind, domain.StatusPending)
}

// GetUserRequests lists the user's requests of kind with the given status,
// newest first. An empty status lists every request.
func (s *QueryService) GetUserRequests(ctx context.Context, username string, kind domain.RequestKind, status domain.RequestStatus) ([]domain.Request, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown request kind %q", domain.ErrValidation, kind)
	}
	return s.store.ListRequests(ctx, domain.RequestFilter{
		Username: username,
		Kind:     kind,
		Status:   status,
	})
}

// GetAllPending lists every pending request of kind, oldest first.
func (s *QueryService) GetAllPending(ctx context.Context, kind domain.RequestKind) ([]domain.Request, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown request kind %q", domain.ErrValidation, kind)
	}
	return s.store.ListRequests(ctx, domain.RequestFilter{
		Kind:        kind,
		Status:      domain.StatusPending,
		OldestFirst: true,
	})
}
