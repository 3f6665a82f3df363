package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/linkbio/commerce-service/internal/logger"
	"github.com/linkbio/commerce-service/internal/model"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (*Repository, context.Context) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Creator{}, &model.Product{},
		&model.Order{}, &model.OrderItem{},
		&model.Transaction{}, &model.Payout{},
		&model.OutboxEvent{},
	))
	log, _ := logger.NewLogger()
	return NewRepository(db, nil, nil, log), context.Background()
}

// The single-pending-payout invariant lives in the storage layer, not
// in application logic: a second pending insert must lose with a
// duplicate-key error no matter what the caller checked beforehand.
func TestPendingPayoutPartialUniqueIndex(t *testing.T) {
	r, ctx := newTestRepo(t)

	first := &model.Payout{CreatorID: 1, Amount: 100, Status: model.PayoutStatusPending}
	assert.NoError(t, r.CreatePayout(ctx, r.DB(ctx), first))

	dup := &model.Payout{CreatorID: 1, Amount: 200, Status: model.PayoutStatusPending}
	err := r.CreatePayout(ctx, r.DB(ctx), dup)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// another creator is unaffected
	other := &model.Payout{CreatorID: 2, Amount: 300, Status: model.PayoutStatusPending}
	assert.NoError(t, r.CreatePayout(ctx, r.DB(ctx), other))

	// the index only covers pending rows, so a cancelled payout does not
	// block a new request
	assert.NoError(t, r.TransitionPayout(ctx, r.DB(ctx), first.ID,
		model.PayoutStatusPending, model.PayoutStatusCancelled, nil))
	again := &model.Payout{CreatorID: 1, Amount: 400, Status: model.PayoutStatusPending}
	assert.NoError(t, r.CreatePayout(ctx, r.DB(ctx), again))
}

func TestOrderIdempotencyKeyUnique(t *testing.T) {
	r, ctx := newTestRepo(t)

	first := &model.Order{CheckoutGroupID: "g1", IdempotencyKey: "k1", BuyerEmail: "a@example.com", AmountPaid: 100}
	assert.NoError(t, r.CreateOrder(ctx, r.DB(ctx), first))

	dup := &model.Order{CheckoutGroupID: "g2", IdempotencyKey: "k1", BuyerEmail: "b@example.com", AmountPaid: 200}
	err := r.CreateOrder(ctx, r.DB(ctx), dup)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	got, err := r.GetOrderByKey(ctx, r.DB(ctx), "k1")
	assert.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "a@example.com", got.BuyerEmail)
}

func TestTransitionPayoutGuarded(t *testing.T) {
	r, ctx := newTestRepo(t)

	p := &model.Payout{CreatorID: 1, Amount: 100, Status: model.PayoutStatusPending}
	assert.NoError(t, r.CreatePayout(ctx, r.DB(ctx), p))

	assert.NoError(t, r.TransitionPayout(ctx, r.DB(ctx), p.ID,
		model.PayoutStatusPending, model.PayoutStatusProcessing, nil))

	// replaying the same transition finds the guard already moved
	err := r.TransitionPayout(ctx, r.DB(ctx), p.ID,
		model.PayoutStatusPending, model.PayoutStatusProcessing, nil)
	assert.ErrorIs(t, err, ErrStaleTransition)
}

func TestReserveStockGuarded(t *testing.T) {
	r, ctx := newTestRepo(t)

	limited := &model.Product{ID: 1, CreatorID: 1, Title: "print", PriceCents: 1000, Active: true, TotalQuantity: intPtr(3)}
	assert.NoError(t, r.DB(ctx).Create(limited).Error)

	assert.NoError(t, r.ReserveStock(ctx, r.DB(ctx), 1, 2))
	assert.NoError(t, r.ReserveStock(ctx, r.DB(ctx), 1, 1))
	assert.ErrorIs(t, r.ReserveStock(ctx, r.DB(ctx), 1, 1), ErrSoldOut)

	unlimited := &model.Product{ID: 2, CreatorID: 1, Title: "pdf", PriceCents: 500, Active: true}
	assert.NoError(t, r.DB(ctx).Create(unlimited).Error)
	assert.NoError(t, r.ReserveStock(ctx, r.DB(ctx), 2, 1000))
}

func intPtr(v int) *int { return &v }
