package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/shopspring/decimal"
)

// Memory is an in-process Store. Transactions are serialized behind one
// lock and applied to a copy of the state that is swapped in on success.
type Memory struct {
	mu    sync.RWMutex
	state memState
	now   func() time.Time
	last  time.Time
}

type memState struct {
	users        map[string]domain.User
	requests     map[int64]domain.Request
	transactions []domain.TransactionRecord
	nextRequest  int64
	nextTx       int64
}

func NewMemory() *Memory {
	return &Memory{
		state: memState{
			users:    map[string]domain.User{},
			requests: map[int64]domain.Request{},
		},
		now: time.Now,
	}
}

func (s memState) clone() memState {
	c := s
	c.users = maps.Clone(s.users)
	c.requests = maps.Clone(s.requests)
	c.transactions = append([]domain.TransactionRecord(nil), s.transactions...)
	return c
}

// tick returns a timestamp that never goes backwards. Callers hold mu.
func (s *Memory) tick() time.Time {
	t := s.now().UTC()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) Close() {}

func (s *Memory) CreateUser(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.users[username]; ok {
		return fmt.Errorf("%w: user %q already exists", domain.ErrConflict, username)
	}
	s.state.users[username] = domain.User{
		Username:     username,
		PasswordHash: passwordHash,
		Balance:      decimal.Zero,
		CreatedAt:    s.tick(),
	}
	return nil
}

func (s *Memory) GetUser(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.state.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %q", domain.ErrNotFound, username)
	}
	return &u, nil
}

func (s *Memory) CreateRequest(_ context.Context, req domain.Request) (*domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.users[req.Username]; !ok {
		return nil, fmt.Errorf("%w: user %q", domain.ErrNotFound, req.Username)
	}
	s.state.nextRequest++
	req.ID = s.state.nextRequest
	req.Status = domain.StatusPending
	req.RequestDate = s.tick()
	req.AdminNotes = ""
	req.ProcessedAt = nil
	s.state.requests[req.ID] = req
	return &req, nil
}

func (s *Memory) GetRequest(_ context.Context, id int64) (*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.state.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %d", domain.ErrNotFound, id)
	}
	return &req, nil
}

func (s *Memory) ListRequests(_ context.Context, f domain.RequestFilter) ([]domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Request{}
	for _, r := range s.state.requests {
		if f.Username != "" && r.Username != f.Username {
			continue
		}
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	// IDs are assigned in creation order, so they break timestamp ties.
	sort.Slice(out, func(i, j int) bool {
		if f.OldestFirst {
			return out[i].ID < out[j].ID
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Memory) ListTransactions(_ context.Context, username string, limit int) ([]domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.TransactionRecord{}
	for i := len(s.state.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if rec := s.state.transactions[i]; rec.Username == username {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Memory) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

type memTx struct {
	store *Memory
	state memState
}

func (t *memTx) LockRequest(_ context.Context, id int64) (*domain.Request, error) {
	req, ok := t.state.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %d", domain.ErrNotFound, id)
	}
	return &req, nil
}

func (t *memTx) LockUser(_ context.Context, username string) (*domain.User, error) {
	u, ok := t.state.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %q", domain.ErrNotFound, username)
	}
	return &u, nil
}

func (t *memTx) FinalizeRequest(_ context.Context, id int64, status domain.RequestStatus, adminNotes string) (*domain.Request, error) {
	req, ok := t.state.requests[id]
	if !ok || req.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: request %d", domain.ErrAlreadyProcessed, id)
	}
	processed := t.store.tick()
	req.Status = status
	req.AdminNotes = adminNotes
	req.ProcessedAt = &processed
	t.state.requests[id] = req
	return &req, nil
}

func (t *memTx) AdjustBalance(_ context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error) {
	u, ok := t.state.users[username]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: user %q", domain.ErrNotFound, username)
	}
	balance := u.Balance.Add(delta)
	if balance.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: balance would go negative", domain.ErrInsufficientFunds)
	}
	if balance.GreaterThan(domain.MaxAmount) {
		return decimal.Zero, fmt.Errorf("%w: balance would exceed %s", domain.ErrValidation, domain.MaxAmount)
	}
	u.Balance = balance
	t.state.users[username] = u
	return balance, nil
}

func (t *memTx) AppendTransaction(_ context.Context, rec domain.TransactionRecord) (*domain.TransactionRecord, error) {
	t.state.nextTx++
	rec.ID = t.state.nextTx
	rec.Timestamp = t.store.tick()
	t.state.transactions = append(t.state.transactions, rec)
	return &rec, nil
}
