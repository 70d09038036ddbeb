package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/repo"
	"github.com/Skotchmaster/vending_machine/internal/repo/memory"
)

func newLedger(t *testing.T, deposit int) (*Ledger, *memory.Store, uint) {
	t.Helper()

	s := memory.New()
	u := &models.User{Username: "buyer", Role: domain.RoleBuyer, Deposit: deposit}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return &Ledger{Store: s}, s, u.ID
}

func TestLedger_Deposit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		amount  int
		want    int
		wantErr error
	}{
		{name: "five", amount: 5, want: 15},
		{name: "hundred", amount: 100, want: 110},
		{name: "not a coin", amount: 15, wantErr: domain.ErrInvalidDenomination},
		{name: "zero", amount: 0, wantErr: domain.ErrInvalidDenomination},
		{name: "negative", amount: -5, wantErr: domain.ErrInvalidDenomination},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, s, id := newLedger(t, 10)
			got, err := l.Deposit(context.Background(), id, tt.amount)
			u, _ := s.GetUser(context.Background(), id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 10, u.Deposit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, u.Deposit)
		})
	}
}

func TestLedger_DepositUnknownAccount(t *testing.T) {
	t.Parallel()

	l, _, _ := newLedger(t, 0)
	_, err := l.Deposit(context.Background(), 404, 5)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLedger_ConcurrentDepositsNoLostUpdate(t *testing.T) {
	t.Parallel()

	l, s, id := newLedger(t, 0)
	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Deposit(context.Background(), id, 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, _ := s.GetUser(context.Background(), id)
	assert.Equal(t, 10*n, u.Deposit)
}

func TestLedger_ResetIsIdempotent(t *testing.T) {
	t.Parallel()

	l, s, id := newLedger(t, 165)
	ctx := context.Background()

	prev, err := l.Reset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 165, prev)

	prev, err = l.Reset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, prev)

	u, _ := s.GetUser(ctx, id)
	assert.Equal(t, 0, u.Deposit)
}

func TestCharge(t *testing.T) {
	t.Parallel()

	l, s, id := newLedger(t, 165)
	ctx := context.Background()

	err := l.Store.WithTx(ctx, func(tx repo.Tx) error {
		u, err := tx.LockUser(ctx, id)
		if err != nil {
			return err
		}
		_, err = Charge(ctx, tx, u, 200)
		return err
	})
	var funds *domain.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.Equal(t, 200, funds.Required)
	assert.Equal(t, 165, funds.Available)

	var change int
	require.NoError(t, l.Store.WithTx(ctx, func(tx repo.Tx) error {
		u, err := tx.LockUser(ctx, id)
		if err != nil {
			return err
		}
		change, err = Charge(ctx, tx, u, 100)
		return err
	}))
	assert.Equal(t, 65, change)
	u, _ := s.GetUser(ctx, id)
	assert.Equal(t, 0, u.Deposit)
}
