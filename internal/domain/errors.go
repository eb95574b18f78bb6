package domain

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrAuth              = errors.New("invalid credentials")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyProcessed  = errors.New("request already processed")
	ErrConflict          = errors.New("conflict")
	ErrStorage           = errors.New("storage failure")
)

// Kind returns a stable short name for the error class of err, or "internal".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuth):
		return "auth_error"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "internal"
	}
}

// Expected reports whether err is an input or business-rule failure rather
// than a storage or programming fault.
func Expected(err error) bool {
	switch Kind(err) {
	case "storage_error", "internal":
		return false
	default:
		return true
	}
}
