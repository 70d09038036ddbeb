package memory

import (
	"context"
	"time"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/repo"
)

type memTx struct {
	s *Store

	products map[uint]*models.Product
	users    map[uint]*models.User
	deleted  map[uint]bool
	sessions []models.ActiveSession

	releases []func()
}

// WithTx runs fn against a private view of the rows it locks. Writes reach
// the shared maps only when fn returns nil; locks are released either way.
func (s *Store) WithTx(ctx context.Context, fn func(tx repo.Tx) error) error {
	tx := &memTx{
		s:        s,
		products: map[uint]*models.Product{},
		users:    map[uint]*models.User{},
		deleted:  map[uint]bool{},
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}
	tx.commit()
	return nil
}

func (t *memTx) release() {
	for i := len(t.releases) - 1; i >= 0; i-- {
		t.releases[i]()
	}
	t.releases = nil
}

func (t *memTx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range t.products {
		if t.deleted[id] {
			delete(s.products, id)
			continue
		}
		s.products[id] = *p
	}
	for id, u := range t.users {
		s.users[id] = *u
	}
	for _, sess := range t.sessions {
		s.nextSession++
		sess.ID = s.nextSession
		s.sessions[sess.SessionID] = sess
	}
}

func (t *memTx) LockProduct(ctx context.Context, id uint) (*models.Product, error) {
	if p, ok := t.products[id]; ok {
		if t.deleted[id] {
			return nil, domain.ErrProductNotFound
		}
		return p, nil
	}
	release, err := t.s.productLocks.acquire(ctx, id)
	if err != nil {
		return nil, err
	}

	t.s.mu.RLock()
	p, ok := t.s.products[id]
	t.s.mu.RUnlock()
	if !ok {
		release()
		return nil, domain.ErrProductNotFound
	}
	t.releases = append(t.releases, release)
	t.products[id] = &p
	return &p, nil
}

func (t *memTx) LockUser(ctx context.Context, id uint) (*models.User, error) {
	if u, ok := t.users[id]; ok {
		return u, nil
	}
	release, err := t.s.userLocks.acquire(ctx, id)
	if err != nil {
		return nil, err
	}

	t.s.mu.RLock()
	u, ok := t.s.users[id]
	t.s.mu.RUnlock()
	if !ok {
		release()
		return nil, domain.ErrAccountNotFound
	}
	t.releases = append(t.releases, release)
	t.users[id] = &u
	return &u, nil
}

// Writes require the row to have been locked in this transaction first.

func (t *memTx) UpdateStock(_ context.Context, productID uint, amountAvailable int) error {
	p, ok := t.products[productID]
	if !ok || t.deleted[productID] {
		return domain.ErrProductNotFound
	}
	p.AmountAvailable = amountAvailable
	p.UpdatedAt = t.s.Now()
	return nil
}

func (t *memTx) UpdateDeposit(_ context.Context, userID uint, deposit int) error {
	u, ok := t.users[userID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	u.Deposit = deposit
	return nil
}

func (t *memTx) UpdateProduct(_ context.Context, p *models.Product) error {
	held, ok := t.products[p.ID]
	if !ok || t.deleted[p.ID] {
		return domain.ErrProductNotFound
	}
	held.Name = p.Name
	held.Cost = p.Cost
	held.AmountAvailable = p.AmountAvailable
	held.UpdatedAt = t.s.Now()
	p.UpdatedAt = held.UpdatedAt
	return nil
}

func (t *memTx) DeleteProduct(_ context.Context, productID uint) error {
	if _, ok := t.products[productID]; !ok {
		return domain.ErrProductNotFound
	}
	t.deleted[productID] = true
	return nil
}

func (t *memTx) CountActiveSessions(_ context.Context, userID uint, now time.Time) (int64, error) {
	var n int64
	t.s.mu.RLock()
	for _, sess := range t.s.sessions {
		if sess.UserID == userID && sess.Active(now) {
			n++
		}
	}
	t.s.mu.RUnlock()
	for _, sess := range t.sessions {
		if sess.UserID == userID && sess.Active(now) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateSession(_ context.Context, sess *models.ActiveSession) error {
	t.s.mu.RLock()
	_, exists := t.s.sessions[sess.SessionID]
	t.s.mu.RUnlock()
	if exists {
		return domain.ErrConflict
	}
	for _, pending := range t.sessions {
		if pending.SessionID == sess.SessionID {
			return domain.ErrConflict
		}
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = t.s.Now()
	}
	t.sessions = append(t.sessions, *sess)
	return nil
}
