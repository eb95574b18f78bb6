package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/punchamoorthee/custodia/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxReferenceIDLen = 128

// IntakeService records deposit and withdrawal intents as pending requests.
// It never changes a balance.
type IntakeService struct {
	store  store.Store
	logger *zap.Logger
}

func NewIntakeService(s store.Store, logger *zap.Logger) *IntakeService {
	return &IntakeService{store: s, logger: logger}
}

// SubmitDeposit creates a pending deposit and returns it with the user's
// balance at submission time.
func (s *IntakeService) SubmitDeposit(ctx context.Context, username string, amount decimal.Decimal, referenceID string) (*domain.Request, decimal.Decimal, error) {
	user, err := s.validate(ctx, username, amount)
	if err != nil {
		intakeTotal.WithLabelValues(string(domain.KindDeposit), resultLabel(err)).Inc()
		return nil, decimal.Zero, err
	}
	referenceID = strings.TrimSpace(referenceID)
	if len(referenceID) > maxReferenceIDLen {
		intakeTotal.WithLabelValues(string(domain.KindDeposit), "validation_error").Inc()
		return nil, decimal.Zero, fmt.Errorf("%w: reference id exceeds %d characters", domain.ErrValidation, maxReferenceIDLen)
	}

	req, err := s.store.CreateRequest(ctx, domain.Request{
		Kind:        domain.KindDeposit,
		Username:    username,
		Amount:      amount,
		ReferenceID: referenceID,
	})
	intakeTotal.WithLabelValues(string(domain.KindDeposit), resultLabel(err)).Inc()
	if err != nil {
		return nil, decimal.Zero, err
	}

	s.logger.Info("deposit request submitted",
		zap.Int64("request_id", req.ID),
		zap.String("username", username),
		zap.Stringer("amount", amount))
	return req, user.Balance, nil
}

// SubmitWithdrawal creates a pending withdrawal. The balance check here is
// advisory; the approval engine checks again when the request is approved.
func (s *IntakeService) SubmitWithdrawal(ctx context.Context, username string, amount decimal.Decimal) (*domain.Request, error) {
	user, err := s.validate(ctx, username, amount)
	if err == nil && user.Balance.LessThan(amount) {
		err = fmt.Errorf("%w: balance %s is below %s", domain.ErrInsufficientFunds, user.Balance, amount)
	}
	if err != nil {
		intakeTotal.WithLabelValues(string(domain.KindWithdrawal), resultLabel(err)).Inc()
		return nil, err
	}

	req, err := s.store.CreateRequest(ctx, domain.Request{
		Kind:     domain.KindWithdrawal,
		Username: username,
		Amount:   amount,
	})
	intakeTotal.WithLabelValues(string(domain.KindWithdrawal), resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal request submitted",
		zap.Int64("request_id", req.ID),
		zap.String("username", username),
		zap.Stringer("amount", amount))
	return req, nil
}

func (s *IntakeService) validate(ctx context.Context, username string, amount decimal.Decimal) (*domain.User, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	return s.store.GetUser(ctx, username)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.Kind(err)
}
