// Package purchase runs a buy as one all-or-nothing transaction over the
// product row and the buyer's account row.
package purchase

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/inventory"
	"github.com/Skotchmaster/vending_machine/internal/ledger"
	"github.com/Skotchmaster/vending_machine/internal/repo"
)

var tracer = otel.Tracer("github.com/Skotchmaster/vending_machine/internal/purchase")

type Coordinator struct {
	Store repo.Transactor
}

// Purchase locks the product and then the buyer (always in that order),
// validates stock and funds, decrements stock, zeroes the deposit and
// returns the receipt. Any failure leaves both rows as they were.
func (c *Coordinator) Purchase(ctx context.Context, buyerID, productID uint, quantity int) (*domain.Receipt, error) {
	ctx, span := tracer.Start(ctx, "purchase")
	defer span.End()
	span.SetAttributes(
		attribute.Int("buyer.id", int(buyerID)),
		attribute.Int("product.id", int(productID)),
		attribute.Int("quantity", quantity),
	)

	if quantity <= 0 {
		err := fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var receipt *domain.Receipt
	err := c.Store.WithTx(ctx, func(tx repo.Tx) error {
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		buyer, err := tx.LockUser(ctx, buyerID)
		if err != nil {
			return err
		}

		if err := inventory.Check(product, quantity); err != nil {
			return err
		}
		if product.Cost <= 0 || quantity > math.MaxInt/product.Cost {
			return fmt.Errorf("%w: order total out of range", domain.ErrValidation)
		}
		total := product.Cost * quantity
		if err := ledger.CheckFunds(buyer, total); err != nil {
			return err
		}

		if err := inventory.Reserve(ctx, tx, product, quantity); err != nil {
			return err
		}
		changeAmount, err := ledger.Charge(ctx, tx, buyer, total)
		if err != nil {
			return err
		}

		receipt = &domain.Receipt{
			TotalSpent:  total,
			ProductName: product.Name,
			Quantity:    quantity,
			Change:      domain.Denominate(changeAmount),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("total_spent", receipt.TotalSpent))
	return receipt, nil
}
