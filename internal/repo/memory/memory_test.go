package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/repo"
)

func seed(t *testing.T, s *Store) (*models.User, *models.Product) {
	t.Helper()

	ctx := context.Background()
	buyer := &models.User{Username: "buyer", Role: domain.RoleBuyer, Deposit: 100}
	require.NoError(t, s.CreateUser(ctx, buyer))
	p := &models.Product{SellerID: 99, Name: "cola", Cost: 50, AmountAvailable: 2}
	require.NoError(t, s.CreateProduct(ctx, p))
	return buyer, p
}

func TestStore_RollbackLeavesRowsUntouched(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	buyer, p := seed(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.LockProduct(ctx, p.ID); err != nil {
			return err
		}
		if _, err := tx.LockUser(ctx, buyer.ID); err != nil {
			return err
		}
		require.NoError(t, tx.UpdateStock(ctx, p.ID, 0))
		require.NoError(t, tx.UpdateDeposit(ctx, buyer.ID, 0))
		require.NoError(t, tx.CreateSession(ctx, &models.ActiveSession{UserID: buyer.ID, SessionID: "s", ExpiresAt: time.Now().Add(time.Hour)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	gotP, _ := s.GetProduct(ctx, p.ID)
	gotU, _ := s.GetUser(ctx, buyer.ID)
	assert.Equal(t, 2, gotP.AmountAvailable)
	assert.Equal(t, 100, gotU.Deposit)
	_, err = s.FindActiveSession(ctx, buyer.ID, "s", time.Now())
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
}

func TestStore_CommitAppliesWrites(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	buyer, p := seed(t, s)

	require.NoError(t, s.WithTx(ctx, func(tx repo.Tx) error {
		pp, err := tx.LockProduct(ctx, p.ID)
		require.NoError(t, err)
		again, err := tx.LockProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Same(t, pp, again)

		if _, err := tx.LockUser(ctx, buyer.ID); err != nil {
			return err
		}
		if err := tx.UpdateStock(ctx, p.ID, 1); err != nil {
			return err
		}
		return tx.UpdateDeposit(ctx, buyer.ID, 0)
	}))

	gotP, _ := s.GetProduct(ctx, p.ID)
	gotU, _ := s.GetUser(ctx, buyer.ID)
	assert.Equal(t, 1, gotP.AmountAvailable)
	assert.Equal(t, 0, gotU.Deposit)
}

func TestStore_WritesNeedLock(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	buyer, p := seed(t, s)

	_ = s.WithTx(ctx, func(tx repo.Tx) error {
		assert.ErrorIs(t, tx.UpdateStock(ctx, p.ID, 0), domain.ErrProductNotFound)
		assert.ErrorIs(t, tx.UpdateDeposit(ctx, buyer.ID, 0), domain.ErrAccountNotFound)
		return nil
	})
}

func TestStore_MissingRowReleasesLock(t *testing.T) {
	t.Parallel()

	s := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = s.WithTx(ctx, func(tx repo.Tx) error {
		_, err := tx.LockProduct(ctx, 7)
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		_, err = tx.LockProduct(ctx, 7)
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		return nil
	})
}

func TestStore_LockWaitHonoursContext(t *testing.T) {
	t.Parallel()

	s := New()
	_, p := seed(t, s)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithTx(context.Background(), func(tx repo.Tx) error {
			_, err := tx.LockProduct(context.Background(), p.ID)
			close(held)
			<-done
			return err
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithTx(ctx, func(tx repo.Tx) error {
		_, err := tx.LockProduct(ctx, p.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestStore_LocksSerializeWriters(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	buyer, _ := seed(t, s)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.WithTx(ctx, func(tx repo.Tx) error {
				u, err := tx.LockUser(ctx, buyer.ID)
				if err != nil {
					return err
				}
				return tx.UpdateDeposit(ctx, u.ID, u.Deposit+5)
			}))
		}()
	}
	wg.Wait()

	got, _ := s.GetUser(ctx, buyer.ID)
	assert.Equal(t, 100+5*workers, got.Deposit)
}

func TestStore_DeleteProduct(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_, p := seed(t, s)

	require.NoError(t, s.WithTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.LockProduct(ctx, p.ID); err != nil {
			return err
		}
		if err := tx.DeleteProduct(ctx, p.ID); err != nil {
			return err
		}
		_, err := tx.LockProduct(ctx, p.ID)
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		return nil
	}))
	_, err := s.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestStore_Sessions(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	buyer, _ := seed(t, s)
	now := time.Now().UTC()

	require.NoError(t, s.WithTx(ctx, func(tx repo.Tx) error {
		require.NoError(t, tx.CreateSession(ctx, &models.ActiveSession{UserID: buyer.ID, SessionID: "a", ExpiresAt: now.Add(time.Hour)}))
		assert.ErrorIs(t, tx.CreateSession(ctx, &models.ActiveSession{UserID: buyer.ID, SessionID: "a", ExpiresAt: now.Add(time.Hour)}), domain.ErrConflict)
		require.NoError(t, tx.CreateSession(ctx, &models.ActiveSession{UserID: buyer.ID, SessionID: "old", ExpiresAt: now.Add(-time.Hour)}))
		n, err := tx.CountActiveSessions(ctx, buyer.ID, now)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		return nil
	}))

	list, err := s.ListActiveSessions(ctx, buyer.ID, now)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	gone, err := s.DeleteSession(ctx, buyer.ID+1, "a")
	require.NoError(t, err)
	assert.Nil(t, gone)

	all, err := s.DeleteSessions(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_ListProductsPaging(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateProduct(ctx, &models.Product{Name: "p", Cost: 5, AmountAvailable: 1}))
	}

	total, items, err := s.ListProducts(ctx, 4, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, items, 1)
	assert.EqualValues(t, 5, items[0].ID)

	_, items, err = s.ListProducts(ctx, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, items, err = s.ListProducts(ctx, -10, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.EqualValues(t, 1, items[0].ID)

	_, items, err = s.ListProducts(ctx, 3, math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
