// Package session keeps the server-side record behind every login. A
// credential is honoured only while its session is active: present and not
// past its expiry. Expiry is checked lazily on read.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/repo"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
)

// touchEvery bounds how often a validated session's last_activity is written.
const touchEvery = time.Minute

type Store interface {
	repo.Transactor
	repo.Sessions
}

// RevocationCache remembers revoked session ids so validation can reject
// them without a store lookup.
type RevocationCache interface {
	MarkRevoked(ctx context.Context, sessionID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type Registry struct {
	Store       Store
	MaxSessions int
	Revoked     RevocationCache
	Now         func() time.Time
}

type NewSession struct {
	AccountID uint
	SessionID string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Registry) maxSessions() int64 {
	if r.MaxSessions <= 0 {
		return 1
	}
	return int64(r.MaxSessions)
}

// Create opens a session unless the account already has MaxSessions active
// ones. The account row is locked while counting and inserting, so
// concurrent logins of one account cannot both slip under the ceiling.
func (r *Registry) Create(ctx context.Context, in NewSession) (*models.ActiveSession, error) {
	now := r.now()
	if in.SessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", domain.ErrValidation)
	}
	if !in.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: session already expired", domain.ErrValidation)
	}

	sess := &models.ActiveSession{
		UserID:       in.AccountID,
		SessionID:    in.SessionID,
		IPAddress:    truncate(in.IPAddress, 45),
		UserAgent:    truncate(in.UserAgent, 255),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    in.ExpiresAt.UTC(),
	}

	err := r.Store.WithTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.LockUser(ctx, in.AccountID); err != nil {
			return err
		}
		n, err := tx.CountActiveSessions(ctx, in.AccountID, now)
		if err != nil {
			return err
		}
		if n >= r.maxSessions() {
			return domain.ErrTooManySessions
		}
		return tx.CreateSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate reports whether sessionID is an active session of accountID.
func (r *Registry) Validate(ctx context.Context, accountID uint, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	l := logging.FromContext(ctx).With("svc", "session.validate")

	if r.Revoked != nil {
		revoked, err := r.Revoked.IsRevoked(ctx, sessionID)
		if err != nil {
			l.Warn("revocation_cache_error", "error", err)
		} else if revoked {
			return false, nil
		}
	}

	now := r.now()
	sess, err := r.Store.FindActiveSession(ctx, accountID, sessionID, now)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotActive) {
			return false, nil
		}
		return false, err
	}

	if now.Sub(sess.LastActivity) >= touchEvery {
		if err := r.Store.TouchSession(ctx, sessionID, now); err != nil {
			l.Warn("session_touch_error", "error", err)
		}
	}
	return true, nil
}

// Require is Validate returning domain.ErrSessionNotActive for inactive sessions.
func (r *Registry) Require(ctx context.Context, accountID uint, sessionID string) error {
	ok, err := r.Validate(ctx, accountID, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSessionNotActive
	}
	return nil
}

// RevokeOne deletes one session. Unknown ids are a no-op.
func (r *Registry) RevokeOne(ctx context.Context, accountID uint, sessionID string) error {
	deleted, err := r.Store.DeleteSession(ctx, accountID, sessionID)
	if err != nil {
		return err
	}
	if deleted != nil {
		r.markRevoked(ctx, *deleted)
	}
	return nil
}

// RevokeAll deletes every session of the account and returns how many there were.
func (r *Registry) RevokeAll(ctx context.Context, accountID uint) (int, error) {
	deleted, err := r.Store.DeleteSessions(ctx, accountID)
	if err != nil {
		return 0, err
	}
	for _, s := range deleted {
		r.markRevoked(ctx, s)
	}
	return len(deleted), nil
}

func (r *Registry) List(ctx context.Context, accountID uint) ([]models.ActiveSession, error) {
	return r.Store.ListActiveSessions(ctx, accountID, r.now())
}

// PurgeExpired removes rows that validation already treats as inactive.
func (r *Registry) PurgeExpired(ctx context.Context) (int64, error) {
	return r.Store.DeleteExpiredSessions(ctx, r.now())
}

func (r *Registry) markRevoked(ctx context.Context, s models.ActiveSession) {
	if r.Revoked == nil || !s.Active(r.now()) {
		return
	}
	if err := r.Revoked.MarkRevoked(ctx, s.SessionID, s.ExpiresAt); err != nil {
		logging.FromContext(ctx).Warn("revocation_cache_error", "session_id", s.SessionID, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
