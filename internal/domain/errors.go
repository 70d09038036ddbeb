package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrProductNotFound     = fmt.Errorf("product %w", ErrNotFound)
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidDenomination = errors.New("invalid denomination")
	ErrTooManySessions     = errors.New("too many active sessions")
	ErrSessionNotActive    = errors.New("session not active")

	// ErrUnavailable marks infrastructure failures: store unreachable, lock
	// wait aborted, commit failed. The transaction is always rolled back.
	ErrUnavailable = errors.New("unavailable")
)

type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: only %d available", e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type InsufficientFundsError struct {
	Required  int
	Available int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
