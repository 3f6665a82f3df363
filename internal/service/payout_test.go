package service

import (
	"testing"
	"time"

	"github.com/linkbio/commerce-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestPayout_RequestDropsAvailableBalance(t *testing.T) {
	env := newTestEnv(t)
	env.seedCreator(t, 1, 10, nil)
	env.seedCredit(t, 1, 10000, time.Now().Add(-time.Hour)) // $100.00 available

	payout, err := env.payout.Request(env.ctx, 1, 10000)
	assert.NoError(t, err)
	assert.Equal(t, model.PayoutStatusPending, payout.Status)
	assert.Equal(t, int64(10000), payout.Amount)

	sum, err := env.balance.Summary(env.ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), sum.AvailableBalance)

	// second request while one is pending
	_, err = env.payout.Request(env.ctx, 1, 1)
	assert.ErrorIs(t, err, ErrPendingPayoutExists)
}

func TestPayout_BalanceBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.seedCreator(t, 1, 10, nil)
	env.seedCredit(t, 1, 5000, time.Now().Add(-time.Hour))

	_, err := env.payout.Request(env.ctx, 1, 5001)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// precondition failure wrote nothing
	var payoutCount int64
	assert.NoError(t, env.repo.DB(env.ctx).Model(&model.Payout{}).Count(&payoutCount).Error)
	assert.Equal(t, int64(0), payoutCount)

	_, err = env.payout.Request(env.ctx, 1, 5000)
	assert.NoError(t, err)
}

func TestPayout_PendingCreditsNotWithdrawable(t *testing.T) {
	env := newTestEnv(t)
	env.seedCreator(t, 1, 10, nil)
	env.seedCredit(t, 1, 4000, time.Now().Add(-time.Hour))
	env.seedCredit(t, 1, 6000, time.Now().Add(72*time.Hour)) // still on hold

	_, err := env.payout.Request(env.ctx, 1, 5000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = env.payout.Request(env.ctx, 1, 4000)
	assert.NoError(t, err)
}

func TestPayout_CancelRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	env.seedCreator(t, 1, 10, nil)
	env.seedCredit(t, 1, 8000, time.Now().Add(-time.Hour))

	before, err := env.balance.Summary(env.ctx, 1)
	assert.NoError(t, err)

	payout, err := env.payout.Request(env.ctx, 1, 8000)
	assert.NoError(t, err)

	cancelled, err := env.payout.Cancel(env.ctx, 1, payout.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.PayoutStatusCancelled, cancelled.Status)

	after, err := env.balance.Summary(env.ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, before.AvailableBalance, after.AvailableBalance)
	assert.Equal(t, before.TotalEarnings, after.TotalEarnings)

	// compensation is a new adjustment row; the debit stays in history
	txs := env.ledger(t, 1)
	assert.Len(t, txs, 3)
	var sawDebit, sawAdjustment bool
	for _, tx := range txs {
		switch tx.Type {
		case model.TxTypePayout:
			sawDebit = true
			assert.Equal(t, int64(-8000), tx.Amount)
		case model.TxTypeAdjustment:
			sawAdjustment = true
			assert.Equal(t, int64(8000), tx.Amount)
		}
	}
	assert.True(t, sawDebit)
	assert.True(t, sawAdjustment)
}

func TestPayout_ProcessCompleteFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedCreator(t, 1, 10, nil)
	env.seedCredit(t, 1, 3000, time.Now().Add(-time.Hour))

	payout, err := env.payout.Request(env.ctx, 1, 3000)
	assert.NoError(t, err)

	processing, err := env.payout.Process(env.ctx, 1, payout.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.PayoutStatusProcessing, processing.Status)

	completed, err := env.payout.Complete(env.ctx, 1, payout.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.PayoutStatusCompleted, completed.Status)

	var final model.Payout
	assert.NoError(t, env.repo.DB(env.ctx).First(&final, payout.ID).Error)
	assert.NotNil(t, final.ProcessedAt)

	// the request debit already reflects the withdrawal; completion
	// posts nothing
	assert.Len(t, env.ledger(t, 1), 2)
}

func TestPayout_FailCompensatesWithReason(t *testing.T) {
	env := newTestEnv(t)
	env.seedCreator(t, 1, 10, nil)
	env.seedCredit(t, 1, 3000, time.Now().Add(-time.Hour))

	payout, err := env.payout.Request(env.ctx, 1, 3000)
	assert.NoError(t, err)
	_, err = env.payout.Process(env.ctx, 1, payout.ID)
	assert.NoError(t, err)

	failed, err := env.payout.Fail(env.ctx, 1, payout.ID, "bank account rejected")
	assert.NoError(t, err)
	assert.Equal(t, model.PayoutStatusFailed, failed.Status)

	var final model.Payout
	assert.NoError(t, env.repo.DB(env.ctx).First(&final, payout.ID).Error)
	assert.Equal(t, "bank account rejected", final.FailureReason)

	sum, err := env.balance.Summary(env.ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(3000), sum.AvailableBalance)

	// a new pending request is possible once the previous one failed
	_, err = env.payout.Request(env.ctx, 1, 1000)
	assert.NoError(t, err)
}

func TestPayout_CancelNonPendingRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedCreator(t, 1, 10, nil)
	env.seedCredit(t, 1, 2000, time.Now().Add(-time.Hour))

	payout, err := env.payout.Request(env.ctx, 1, 2000)
	assert.NoError(t, err)
	_, err = env.payout.Process(env.ctx, 1, payout.ID)
	assert.NoError(t, err)
	_, err = env.payout.Complete(env.ctx, 1, payout.ID)
	assert.NoError(t, err)

	ledgerBefore := len(env.ledger(t, 1))
	_, err = env.payout.Cancel(env.ctx, 1, payout.ID)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, env.ledger(t, 1), ledgerBefore)
}

func TestPayout_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	env.seedCreator(t, 1, 10, nil)

	_, err := env.payout.Request(env.ctx, 1, 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.payout.Request(env.ctx, 1, -100)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.payout.Request(env.ctx, 99, 100)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.payout.Cancel(env.ctx, 1, 12345)
	assert.ErrorIs(t, err, ErrNotFound)

	// a payout is only visible to its creator
	env.seedCreator(t, 2, 10, nil)
	env.seedCredit(t, 1, 1000, time.Now().Add(-time.Hour))
	payout, err := env.payout.Request(env.ctx, 1, 1000)
	assert.NoError(t, err)
	_, err = env.payout.Cancel(env.ctx, 2, payout.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPayout_ListNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	env.seedCreator(t, 1, 10, nil)
	env.seedCredit(t, 1, 9000, time.Now().Add(-time.Hour))

	first, err := env.payout.Request(env.ctx, 1, 4000)
	assert.NoError(t, err)
	_, err = env.payout.Cancel(env.ctx, 1, first.ID)
	assert.NoError(t, err)
	second, err := env.payout.Request(env.ctx, 1, 5000)
	assert.NoError(t, err)

	payouts, err := env.payout.List(env.ctx, 1)
	assert.NoError(t, err)
	assert.Len(t, payouts, 2)
	assert.Equal(t, second.ID, payouts[0].ID)
	assert.Equal(t, first.ID, payouts[1].ID)
}
