package models

import (
	"time"

	"github.com/Skotchmaster/vending_machine/internal/domain"
)

type User struct {
	ID           uint        `gorm:"primaryKey;autoIncrement"            json:"id"`
	Username     string      `gorm:"size:150;uniqueIndex;not null"       json:"username"`
	PasswordHash string      `gorm:"not null"                            json:"-"`
	Role         domain.Role `gorm:"size:10;not null"                    json:"role"`
	Deposit      int         `gorm:"not null;default:0;check:deposit >= 0" json:"deposit"`
	CreatedAt    time.Time   `                                           json:"created_at"`
}

type Product struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"                      json:"id"`
	SellerID        uint      `gorm:"index;not null"                                json:"seller"`
	Name            string    `gorm:"size:255;not null"                             json:"name"`
	Cost            int       `gorm:"not null;check:cost > 0"                       json:"cost"`
	AmountAvailable int       `gorm:"not null;default:0;check:amount_available >= 0" json:"amount_available"`
	CreatedAt       time.Time `                                                     json:"created_at"`
	UpdatedAt       time.Time `                                                     json:"updated_at"`
}

// ActiveSession is the server-side record behind a refresh credential.
// SessionID equals the credential's jti.
type ActiveSession struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"          json:"-"`
	UserID       uint      `gorm:"index:idx_session_user_expiry;not null" json:"-"`
	SessionID    string    `gorm:"size:64;uniqueIndex;not null"      json:"session_id"`
	IPAddress    string    `gorm:"size:45"                           json:"ip_address"`
	UserAgent    string    `gorm:"size:255"                          json:"user_agent"`
	CreatedAt    time.Time `                                         json:"created_at"`
	LastActivity time.Time `                                         json:"last_activity"`
	ExpiresAt    time.Time `gorm:"index:idx_session_user_expiry;not null" json:"expires_at"`
}

// Active reports whether the session is still usable at now.
func (s *ActiveSession) Active(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

func All() []any {
	return []any{&User{}, &Product{}, &ActiveSession{}}
}
