package auth

import (
	"errors"
	"fmt"

	"github.com/punchamoorthee/custodia/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes and verifies passwords. Hashes are the only form persisted.
type Bcrypt struct {
	Cost int
}

func NewBcrypt(cost int) Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Bcrypt{Cost: cost}
}

func (b Bcrypt) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Compare returns domain.ErrAuth when password does not match hash.
func (b Bcrypt) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("%w: incorrect password", domain.ErrAuth)
	}
	if err != nil {
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}
