package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/mykafka"
	"github.com/Skotchmaster/vending_machine/internal/repo"
)

type CatalogStore interface {
	repo.Transactor
	repo.Products
}

type CatalogService struct {
	Store  CatalogStore
	Events mykafka.Publisher
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	ID   uint
	Role domain.Role
}

type ProductInput struct {
	Name            string
	Cost            int
	AmountAvailable int
}

// ProductPatch carries only the fields being changed.
type ProductPatch struct {
	Name            *string
	Cost            *int
	AmountAvailable *int
}

func validateProduct(name string, cost, amount int) error {
	if name == "" || utf8.RuneCountInString(name) > 255 {
		return fmt.Errorf("%w: name must be 1-255 characters", domain.ErrValidation)
	}
	if !domain.ValidCost(cost) {
		return fmt.Errorf("%w: cost must be a positive multiple of %d up to %d", domain.ErrValidation, domain.SmallestCoin, domain.MaxAmount)
	}
	if amount < 1 || amount > domain.MaxAmount {
		return fmt.Errorf("%w: amount_available must be between 1 and %d", domain.ErrValidation, domain.MaxAmount)
	}
	return nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	return s.Store.GetProduct(ctx, id)
}

func (s *CatalogService) GetProducts(ctx context.Context, offset, limit int) (int64, []models.Product, error) {
	return s.Store.ListProducts(ctx, offset, limit)
}

func (s *CatalogService) CreateProduct(ctx context.Context, actor Actor, in ProductInput) (*models.Product, error) {
	if !actor.Role.IsSeller() {
		return nil, fmt.Errorf("%w: only sellers can create products", domain.ErrForbidden)
	}
	name := strings.TrimSpace(in.Name)
	if err := validateProduct(name, in.Cost, in.AmountAvailable); err != nil {
		return nil, err
	}

	p := &models.Product{
		SellerID:        actor.ID,
		Name:            name,
		Cost:            in.Cost,
		AmountAvailable: in.AmountAvailable,
	}
	if err := s.Store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.productEvent(ctx, "product_created", p)
	return p, nil
}

// UpdateProduct applies patch under the product row lock, so it cannot
// interleave with a purchase of the same product.
func (s *CatalogService) UpdateProduct(ctx context.Context, actor Actor, id uint, patch ProductPatch) (*models.Product, error) {
	var updated models.Product
	err := s.Store.WithTx(ctx, func(tx repo.Tx) error {
		p, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Role.OwnsProduct(actor.ID, p.SellerID) {
			return fmt.Errorf("%w: product belongs to another seller", domain.ErrForbidden)
		}

		if patch.Name != nil {
			p.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Cost != nil {
			p.Cost = *patch.Cost
		}
		if patch.AmountAvailable != nil {
			p.AmountAvailable = *patch.AmountAvailable
		}
		if err := validateProduct(p.Name, p.Cost, p.AmountAvailable); err != nil {
			return err
		}

		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		updated = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.productEvent(ctx, "product_updated", &updated)
	return &updated, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, actor Actor, id uint) error {
	var deleted models.Product
	err := s.Store.WithTx(ctx, func(tx repo.Tx) error {
		p, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Role.OwnsProduct(actor.ID, p.SellerID) {
			return fmt.Errorf("%w: product belongs to another seller", domain.ErrForbidden)
		}
		deleted = *p
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}

	deleted.AmountAvailable = 0
	s.productEvent(ctx, "product_deleted", &deleted)
	return nil
}

func (s *CatalogService) productEvent(ctx context.Context, typ string, p *models.Product) {
	publish(ctx, s.Events, mykafka.TopicProducts, strconv.FormatUint(uint64(p.ID), 10), mykafka.ProductEvent{
		Type:            typ,
		ProductID:       p.ID,
		SellerID:        p.SellerID,
		Name:            p.Name,
		Cost:            p.Cost,
		AmountAvailable: p.AmountAvailable,
		At:              time.Now().UTC(),
	})
}
