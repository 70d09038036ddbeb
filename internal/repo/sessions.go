package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
)

func (r *GormRepo) FindActiveSession(ctx context.Context, userID uint, sessionID string, now time.Time) (*models.ActiveSession, error) {
	var s models.ActiveSession
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND session_id = ? AND expires_at > ?", userID, sessionID, now).
		First(&s).Error
	if err != nil {
		return nil, mapErr(err, domain.ErrSessionNotActive)
	}
	return &s, nil
}

func (r *GormRepo) ListActiveSessions(ctx context.Context, userID uint, now time.Time) ([]models.ActiveSession, error) {
	out := []models.ActiveSession{}
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("created_at ASC").
		Find(&out).Error
	return out, mapErr(err, domain.ErrNotFound)
}

func (r *GormRepo) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	err := r.DB.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("session_id = ?", sessionID).
		Update("last_activity", at).Error
	return mapErr(err, domain.ErrNotFound)
}

func (r *GormRepo) DeleteSession(ctx context.Context, userID uint, sessionID string) (*models.ActiveSession, error) {
	var deleted *models.ActiveSession
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.ActiveSession
		if err := tx.Where("user_id = ? AND session_id = ?", userID, sessionID).First(&s).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Delete(&s).Error; err != nil {
			return err
		}
		deleted = &s
		return nil
	})
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return deleted, nil
}

func (r *GormRepo) DeleteSessions(ctx context.Context, userID uint) ([]models.ActiveSession, error) {
	deleted := []models.ActiveSession{}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Find(&deleted).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&models.ActiveSession{}).Error
	})
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return deleted, nil
}

func (r *GormRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.ActiveSession{})
	if res.Error != nil {
		return 0, domain.Unavailable(res.Error)
	}
	return res.RowsAffected, nil
}
