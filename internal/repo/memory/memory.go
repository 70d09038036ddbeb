// Package memory is a Store kept in process memory. Rows are guarded by
// per-key locks that honour context cancellation, and transactional writes
// are buffered until commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/repo"
)

type Store struct {
	mu       sync.RWMutex
	users    map[uint]models.User
	products map[uint]models.Product
	sessions map[string]models.ActiveSession

	nextUser, nextProduct, nextSession uint

	userLocks    rowLocks
	productLocks rowLocks

	// Now stamps created_at/updated_at. Defaults to time.Now.
	Now func() time.Time
}

var _ repo.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    map[uint]models.User{},
		products: map[uint]models.Product{},
		sessions: map[string]models.ActiveSession{},
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// rowLocks hands out one single-slot channel per key. A channel rather than
// a sync.Mutex so that waiting can be abandoned when ctx ends.
type rowLocks struct {
	mu    sync.Mutex
	slots map[uint]chan struct{}
}

func (l *rowLocks) acquire(ctx context.Context, id uint) (func(), error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = map[uint]chan struct{}{}
	}
	slot, ok := l.slots[id]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[id] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, domain.Unavailable(ctx.Err())
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return domain.ErrConflict
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	u.CreatedAt = s.Now()
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *Store) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProduct++
	p.ID = s.nextProduct
	p.CreatedAt = s.Now()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = *p
	return nil
}

func (s *Store) GetProduct(_ context.Context, id uint) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *Store) ListProducts(_ context.Context, offset, limit int) (int64, []models.Product, error) {
	s.mu.RLock()
	all := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, p)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset >= len(all) {
		return total, []models.Product{}, nil
	}
	end := len(all)
	if limit < end-offset {
		end = offset + limit
	}
	return total, all[offset:end], nil
}

func (s *Store) FindActiveSession(_ context.Context, userID uint, sessionID string, now time.Time) (*models.ActiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID || !sess.Active(now) {
		return nil, domain.ErrSessionNotActive
	}
	return &sess, nil
}

func (s *Store) ListActiveSessions(_ context.Context, userID uint, now time.Time) ([]models.ActiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.ActiveSession{}
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active(now) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) TouchSession(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		sess.LastActivity = at
		s.sessions[sessionID] = sess
	}
	return nil
}

func (s *Store) DeleteSession(_ context.Context, userID uint, sessionID string) (*models.ActiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, nil
	}
	delete(s.sessions, sessionID)
	return &sess, nil
}

func (s *Store) DeleteSessions(_ context.Context, userID uint) ([]models.ActiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.ActiveSession{}
	for sid, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
			delete(s.sessions, sid)
		}
	}
	return out, nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for sid, sess := range s.sessions {
		if !sess.Active(now) {
			delete(s.sessions, sid)
			n++
		}
	}
	return n, nil
}
