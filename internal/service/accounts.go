package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/punchamoorthee/custodia/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxUsernameLen = 64
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

// PasswordHasher is the credential verifier used for signup and login.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type AccountService struct {
	store  store.Store
	hasher PasswordHasher
	logger *zap.Logger
}

func NewAccountService(s store.Store, hasher PasswordHasher, logger *zap.Logger) *AccountService {
	return &AccountService{store: s, hasher: hasher, logger: logger}
}

// Signup creates a user with a zero balance.
func (s *AccountService) Signup(ctx context.Context, username, password string) error {
	if err := validateCredentials(username, password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	if err := s.store.CreateUser(ctx, username, hash); err != nil {
		return err
	}
	s.logger.Info("user signed up", zap.String("username", username))
	return nil
}

// Login verifies the password and returns the user's current balance.
func (s *AccountService) Login(ctx context.Context, username, password string) (decimal.Decimal, error) {
	if err := validateCredentials(username, password); err != nil {
		return decimal.Zero, err
	}

	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, domain.ErrAuth) {
			s.logger.Info("login rejected", zap.String("username", username))
		}
		return decimal.Zero, err
	}
	return user.Balance, nil
}

func validateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	if len(username) > maxUsernameLen {
		return fmt.Errorf("%w: username exceeds %d characters", domain.ErrValidation, maxUsernameLen)
	}
	if len(password) > maxPasswordLen {
		return fmt.Errorf("%w: password exceeds %d bytes", domain.ErrValidation, maxPasswordLen)
	}
	return nil
}
