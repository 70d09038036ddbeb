package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/vending_machine/internal/models"
)

// Tx is one atomic unit. Rows acquired with LockProduct/LockUser stay
// exclusively held until the unit ends, on every exit path. Nothing written
// through Tx is visible to others before commit, and nothing survives a
// callback that returns an error.
type Tx interface {
	LockProduct(ctx context.Context, id uint) (*models.Product, error)
	LockUser(ctx context.Context, id uint) (*models.User, error)

	UpdateStock(ctx context.Context, productID uint, amountAvailable int) error
	UpdateDeposit(ctx context.Context, userID uint, deposit int) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, productID uint) error

	CountActiveSessions(ctx context.Context, userID uint, now time.Time) (int64, error)
	CreateSession(ctx context.Context, s *models.ActiveSession) error
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type Products interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id uint) (*models.Product, error)
	ListProducts(ctx context.Context, offset, limit int) (int64, []models.Product, error)
}

type Sessions interface {
	FindActiveSession(ctx context.Context, userID uint, sessionID string, now time.Time) (*models.ActiveSession, error)
	ListActiveSessions(ctx context.Context, userID uint, now time.Time) ([]models.ActiveSession, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	// DeleteSession returns the removed row, or nil when nothing matched.
	DeleteSession(ctx context.Context, userID uint, sessionID string) (*models.ActiveSession, error)
	DeleteSessions(ctx context.Context, userID uint) ([]models.ActiveSession, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type Store interface {
	Transactor
	Users
	Products
	Sessions
	Ping(ctx context.Context) error
}
