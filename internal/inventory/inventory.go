// Package inventory owns product stock counts.
package inventory

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/repo"
)

type Inventory struct {
	Store repo.Transactor
}

// Reserve takes quantity units of a product in its own transaction and
// returns the stock left.
func (i *Inventory) Reserve(ctx context.Context, productID uint, quantity int) (int, error) {
	var remaining int
	err := i.Store.WithTx(ctx, func(tx repo.Tx) error {
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		if err := Reserve(ctx, tx, product, quantity); err != nil {
			return err
		}
		remaining = product.AmountAvailable
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func Check(product *models.Product, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	if product.AmountAvailable < quantity {
		return &domain.InsufficientStockError{Available: product.AmountAvailable}
	}
	return nil
}

// Reserve checks and decrements stock of a product locked by tx. The check
// and the write share the row lock, so no concurrent reservation can
// oversell.
func Reserve(ctx context.Context, tx repo.Tx, product *models.Product, quantity int) error {
	if err := Check(product, quantity); err != nil {
		return err
	}
	left := product.AmountAvailable - quantity
	if err := tx.UpdateStock(ctx, product.ID, left); err != nil {
		return err
	}
	product.AmountAvailable = left
	return nil
}
