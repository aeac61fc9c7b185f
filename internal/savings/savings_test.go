package savings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/settlement"
)

type fakeEngine struct {
	got     settlement.SettleParams
	receipt *settlement.Receipt
	called  bool
}

func (f *fakeEngine) SettleInternal(ctx context.Context, p settlement.SettleParams) (*settlement.Receipt, error) {
	f.called = true
	f.got = p
	return f.receipt, nil
}

func TestDeposit(t *testing.T) {
	eng := &fakeEngine{receipt: &settlement.Receipt{Status: settlement.StatusCompleted}}
	svc := NewService(eng)

	_, err := svc.Deposit(context.Background(), DepositRequest{
		Principal:      "u1",
		UserID:         "u1",
		PlanID:         "plan-1",
		Amount:         20000,
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, settlement.KindSavings, eng.got.Kind)
	require.Len(t, eng.got.Movements, 1)
	m := eng.got.Movements[0]
	assert.Equal(t, "user_wallet:u1", m.FromAccount)
	assert.Equal(t, ledger.AccountSavingsPool, m.ToAccount)
	assert.Equal(t, "deposit", m.Subtype)
	assert.Equal(t, "plan-1", eng.got.Meta["plan_id"])
}

func TestWithdrawWithInterest(t *testing.T) {
	eng := &fakeEngine{receipt: &settlement.Receipt{}}
	svc := NewService(eng)

	_, err := svc.Withdraw(context.Background(), WithdrawRequest{
		Principal: "u1",
		UserID:    "u1",
		Amount:    20000,
		Interest:  350,
	})
	require.NoError(t, err)

	require.Len(t, eng.got.Movements, 2)
	assert.Equal(t, ledger.AccountSavingsPool, eng.got.Movements[0].FromAccount)
	assert.Equal(t, "withdrawal", eng.got.Movements[0].Subtype)
	assert.Equal(t, ledger.AccountInterestPool, eng.got.Movements[1].FromAccount)
	assert.Equal(t, int64(350), eng.got.Movements[1].Amount)
	assert.Equal(t, "interest", eng.got.Movements[1].Subtype)
}

func TestWithdrawWithoutInterest(t *testing.T) {
	eng := &fakeEngine{receipt: &settlement.Receipt{}}
	svc := NewService(eng)

	_, err := svc.Withdraw(context.Background(), WithdrawRequest{
		Principal: "u1", UserID: "u1", Amount: 20000,
	})
	require.NoError(t, err)
	assert.Len(t, eng.got.Movements, 1)
}

func TestDepositRejectsForeignWallet(t *testing.T) {
	eng := &fakeEngine{}
	svc := NewService(eng)

	_, err := svc.Deposit(context.Background(), DepositRequest{
		Principal: "u1", UserID: "u2", Amount: 20000,
	})
	require.ErrorIs(t, err, settlement.ErrUnauthorized)
	assert.False(t, eng.called)
}

func TestWithdrawRejectsForeignWallet(t *testing.T) {
	eng := &fakeEngine{}
	svc := NewService(eng)

	_, err := svc.Withdraw(context.Background(), WithdrawRequest{
		Principal: "u1", UserID: "u2", Amount: 20000,
	})
	require.ErrorIs(t, err, settlement.ErrUnauthorized)
	assert.False(t, eng.called)
}
