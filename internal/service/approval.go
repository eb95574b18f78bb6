package service

import (
	"context"
	"fmt"
	"time"

	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/punchamoorthee/custodia/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApprovalService finalizes pending requests. It is the only writer of
// balances and the ledger.
type ApprovalService struct {
	store  store.Store
	logger *zap.Logger
}

func NewApprovalService(s store.Store, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{store: s, logger: logger}
}

// Outcome describes a finalized request and its ledger effect, if any.
type Outcome struct {
	Request     domain.Request
	Transaction *domain.TransactionRecord
	Balance     decimal.Decimal
}

// ApplyAction approves or rejects the pending request id of the given kind on
// behalf of actor.
//
// The status change, the balance adjustment and the ledger append commit
// together or not at all. Withdrawals are re-checked against the balance at
// approval time; a shortfall fails with domain.ErrInsufficientFunds and leaves
// the request pending.
func (s *ApprovalService) ApplyAction(ctx context.Context, kind domain.RequestKind, id int64, action domain.Action, adminNotes, actor string) (*Outcome, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown request kind %q", domain.ErrValidation, kind)
	}
	if _, err := domain.ParseAction(string(action)); err != nil {
		return nil, err
	}

	timer := time.Now()
	var out *Outcome
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		// Deposit and withdrawal ids are looked up through their own routes.
		if req.Kind != kind {
			return fmt.Errorf("%w: %s request %d", domain.ErrNotFound, kind, id)
		}
		if req.Status.Terminal() {
			return fmt.Errorf("%w: request %d is %s", domain.ErrAlreadyProcessed, id, req.Status)
		}

		if action == domain.ActionReject {
			finalized, err := tx.FinalizeRequest(ctx, id, domain.StatusRejected, adminNotes)
			if err != nil {
				return err
			}
			out = &Outcome{Request: *finalized}
			return nil
		}

		user, err := tx.LockUser(ctx, req.Username)
		if err != nil {
			return err
		}

		delta := req.Amount
		if kind == domain.KindWithdrawal {
			if user.Balance.LessThan(req.Amount) {
				return fmt.Errorf("%w: balance %s is below %s", domain.ErrInsufficientFunds, user.Balance, req.Amount)
			}
			delta = delta.Neg()
		}

		finalized, err := tx.FinalizeRequest(ctx, id, domain.StatusApproved, adminNotes)
		if err != nil {
			return err
		}

		balance, err := tx.AdjustBalance(ctx, req.Username, delta)
		if err != nil {
			return err
		}

		rec, err := tx.AppendTransaction(ctx, domain.TransactionRecord{
			Username: req.Username,
			Kind:     kind.TransactionKind(),
			Amount:   req.Amount,
		})
		if err != nil {
			return err
		}

		out = &Outcome{Request: *finalized, Transaction: rec, Balance: balance}
		return nil
	})
	approvalDuration.WithLabelValues(string(kind)).Observe(time.Since(timer).Seconds())
	requestActionsTotal.WithLabelValues(string(kind), string(action), resultLabel(err)).Inc()

	if err != nil {
		fields := []zap.Field{
			zap.String("kind", string(kind)),
			zap.Int64("request_id", id),
			zap.String("action", string(action)),
			zap.String("actor", actor),
			zap.Error(err),
		}
		if domain.Expected(err) {
			s.logger.Info("request action refused", fields...)
		} else {
			s.logger.Error("request action failed", fields...)
		}
		return nil, err
	}

	s.logger.Info("request finalized",
		zap.String("kind", string(kind)),
		zap.Int64("request_id", id),
		zap.String("status", string(out.Request.Status)),
		zap.String("username", out.Request.Username),
		zap.Stringer("amount", out.Request.Amount),
		zap.String("actor", actor))
	return out, nil
}
