// Package ledger owns a buyer's deposit. Every mutation happens with the
// account row held exclusively.
package ledger

import (
	"context"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/repo"
)

type Ledger struct {
	Store repo.Transactor
}

// Deposit adds one coin to the account and returns the new balance.
func (l *Ledger) Deposit(ctx context.Context, accountID uint, amount int) (int, error) {
	if !domain.IsCoin(amount) {
		return 0, domain.ErrInvalidDenomination
	}

	var balance int
	err := l.Store.WithTx(ctx, func(tx repo.Tx) error {
		account, err := tx.LockUser(ctx, accountID)
		if err != nil {
			return err
		}
		balance = account.Deposit + amount
		return tx.UpdateDeposit(ctx, account.ID, balance)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Reset zeroes the deposit and returns what it held before.
func (l *Ledger) Reset(ctx context.Context, accountID uint) (int, error) {
	var previous int
	err := l.Store.WithTx(ctx, func(tx repo.Tx) error {
		account, err := tx.LockUser(ctx, accountID)
		if err != nil {
			return err
		}
		previous = account.Deposit
		if previous == 0 {
			return nil
		}
		return tx.UpdateDeposit(ctx, account.ID, 0)
	})
	if err != nil {
		return 0, err
	}
	return previous, nil
}

// CheckFunds reports InsufficientFunds when account cannot cover required.
func CheckFunds(account *models.User, required int) error {
	if account.Deposit < required {
		return &domain.InsufficientFundsError{Required: required, Available: account.Deposit}
	}
	return nil
}

// Charge consumes the whole deposit of a locked account to pay total and
// returns the change owed. The change is handed out, not kept on the
// balance, so the stored deposit always ends at zero.
func Charge(ctx context.Context, tx repo.Tx, account *models.User, total int) (int, error) {
	if err := CheckFunds(account, total); err != nil {
		return 0, err
	}
	change := account.Deposit - total
	if err := tx.UpdateDeposit(ctx, account.ID, 0); err != nil {
		return 0, err
	}
	account.Deposit = 0
	return change, nil
}
