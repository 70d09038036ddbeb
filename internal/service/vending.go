package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/ledger"
	"github.com/Skotchmaster/vending_machine/internal/metrics"
	"github.com/Skotchmaster/vending_machine/internal/mykafka"
	"github.com/Skotchmaster/vending_machine/internal/purchase"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
)

// VendingService is the buyer side: coins in, products out.
type VendingService struct {
	Ledger      *ledger.Ledger
	Coordinator *purchase.Coordinator
	Events      mykafka.Publisher
	Metrics     *metrics.Metrics
}

func (s *VendingService) Deposit(ctx context.Context, buyerID uint, amount int) (int, error) {
	balance, err := s.Ledger.Deposit(ctx, buyerID, amount)
	if err != nil {
		return 0, err
	}
	s.Metrics.DepositAccepted()

	publish(ctx, s.Events, mykafka.TopicAccounts, strconv.FormatUint(uint64(buyerID), 10), mykafka.DepositEvent{
		Type:    "deposit_made",
		UserID:  buyerID,
		Amount:  amount,
		Deposit: balance,
		At:      time.Now().UTC(),
	})
	return balance, nil
}

func (s *VendingService) ResetDeposit(ctx context.Context, buyerID uint) (int, error) {
	previous, err := s.Ledger.Reset(ctx, buyerID)
	if err != nil {
		return 0, err
	}

	publish(ctx, s.Events, mykafka.TopicAccounts, strconv.FormatUint(uint64(buyerID), 10), mykafka.DepositEvent{
		Type:   "deposit_reset",
		UserID: buyerID,
		Amount: previous,
		At:     time.Now().UTC(),
	})
	return previous, nil
}

func (s *VendingService) Buy(ctx context.Context, buyerID, productID uint, quantity int) (*domain.Receipt, error) {
	l := logging.FromContext(ctx).With("svc", "vending.buy", "buyer_id", buyerID, "product_id", productID)

	receipt, err := s.Coordinator.Purchase(ctx, buyerID, productID, quantity)
	s.Metrics.PurchaseResult(purchaseResult(err))
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			l.Error("purchase_failed", "reason", "store unavailable", "error", err)
		} else {
			l.Info("purchase_rejected", "reason", err.Error())
		}
		return nil, err
	}

	publish(ctx, s.Events, mykafka.TopicPurchases, strconv.FormatUint(uint64(productID), 10), mykafka.PurchaseEvent{
		Type:       "purchase_completed",
		BuyerID:    buyerID,
		ProductID:  productID,
		Quantity:   receipt.Quantity,
		TotalSpent: receipt.TotalSpent,
		Change:     receipt.Change,
		At:         time.Now().UTC(),
	})
	return receipt, nil
}

func purchaseResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
