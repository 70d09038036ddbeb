package repo

import (
	"context"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
)

// CreateUser inserts u unless the username is taken, in which case it
// returns domain.ErrConflict.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	tx := r.DB.WithContext(ctx).
		Where("username = ?", u.Username).
		FirstOrCreate(u)
	if tx.Error != nil {
		return mapErr(tx.Error, domain.ErrNotFound)
	}
	if tx.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormRepo) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, mapErr(err, domain.ErrAccountNotFound)
	}
	return &u, nil
}

func (r *GormRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, mapErr(err, domain.ErrAccountNotFound)
	}
	return &u, nil
}
