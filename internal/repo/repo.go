package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/pkg/db"
)

type GormRepo struct {
	DB *gorm.DB
}

var _ Store = (*GormRepo)(nil)

func Migrate(ctx context.Context, gdb *gorm.DB) error {
	return gdb.WithContext(ctx).AutoMigrate(models.All()...)
}

func (r *GormRepo) Ping(ctx context.Context) error {
	return db.Ping(ctx, r.DB)
}

// WithTx runs fn inside one database transaction. Errors returned by fn come
// back unchanged after rollback; failures of the transaction itself are
// reported as domain.ErrUnavailable.
func (r *GormRepo) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	var fnErr error
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&gormTx{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return domain.Unavailable(err)
}

func mapErr(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrConflict
	default:
		return domain.Unavailable(err)
	}
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) forUpdate(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LockProduct(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := t.forUpdate(ctx).First(&p, id).Error; err != nil {
		return nil, mapErr(err, domain.ErrProductNotFound)
	}
	return &p, nil
}

func (t *gormTx) LockUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := t.forUpdate(ctx).First(&u, id).Error; err != nil {
		return nil, mapErr(err, domain.ErrAccountNotFound)
	}
	return &u, nil
}

func (t *gormTx) UpdateStock(ctx context.Context, productID uint, amountAvailable int) error {
	err := t.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Update("amount_available", amountAvailable).Error
	return mapErr(err, domain.ErrProductNotFound)
}

func (t *gormTx) UpdateDeposit(ctx context.Context, userID uint, deposit int) error {
	err := t.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("deposit", deposit).Error
	return mapErr(err, domain.ErrAccountNotFound)
}

func (t *gormTx) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.UpdatedAt = time.Now().UTC()
	err := t.db.WithContext(ctx).Model(p).
		Select("name", "cost", "amount_available", "updated_at").
		Updates(p).Error
	return mapErr(err, domain.ErrProductNotFound)
}

func (t *gormTx) DeleteProduct(ctx context.Context, productID uint) error {
	err := t.db.WithContext(ctx).Delete(&models.Product{}, productID).Error
	return mapErr(err, domain.ErrProductNotFound)
}

func (t *gormTx) CountActiveSessions(ctx context.Context, userID uint, now time.Time) (int64, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Count(&n).Error
	return n, mapErr(err, domain.ErrNotFound)
}

func (t *gormTx) CreateSession(ctx context.Context, s *models.ActiveSession) error {
	return mapErr(t.db.WithContext(ctx).Create(s).Error, domain.ErrNotFound)
}
