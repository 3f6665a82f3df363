package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/linkbio/commerce-service/internal/logger"
	"github.com/linkbio/commerce-service/internal/model"
	"github.com/linkbio/commerce-service/internal/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	repo     *repo.Repository
	balance  *BalanceService
	checkout *CheckoutService
	payout   *PayoutService
	ctx      context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	// named shared-cache DB so the connection pool sees one database
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
	r := repo.NewRepository(db, nil, nil, log)
	hold := HoldPolicy{DefaultDays: 7}
	return &testEnv{
		repo:     r,
		balance:  NewBalanceService(r, hold, log),
		checkout: NewCheckoutService(r, hold, 20, log),
		payout:   NewPayoutService(r, log),
		ctx:      context.Background(),
	}
}

func (e *testEnv) seedCreator(t *testing.T, id uint64, feePct int64, holdDays *int) {
	c := &model.Creator{
		ID:             id,
		Email:          fmt.Sprintf("creator%d@example.com", id),
		FeePercent:     decimal.NewFromInt(feePct),
		HoldPeriodDays: holdDays,
	}
	assert.NoError(t, e.repo.DB(e.ctx).Create(c).Error)
}

func (e *testEnv) seedProduct(t *testing.T, p *model.Product) {
	if p.Title == "" {
		p.Title = fmt.Sprintf("product %d", p.ID)
	}
	p.Active = true
	assert.NoError(t, e.repo.DB(e.ctx).Create(p).Error)
}

// seedCredit appends a sale credit directly so tests can control
// availableAt without going through checkout.
func (e *testEnv) seedCredit(t *testing.T, creatorID uint64, net int64, availableAt time.Time) {
	tx := &model.Transaction{
		CreatorID:          creatorID,
		Type:               model.TxTypeSale,
		Amount:             net,
		NetAmount:          net,
		PlatformFeePercent: decimal.Zero,
		Description:        "seed credit",
		AvailableAt:        availableAt,
	}
	assert.NoError(t, e.repo.AppendTransaction(e.ctx, e.repo.DB(e.ctx), tx))
}

func (e *testEnv) ledger(t *testing.T, creatorID uint64) []model.Transaction {
	txs, err := e.repo.ListTransactions(e.ctx, creatorID, 100)
	assert.NoError(t, err)
	return txs
}

func intPtr(v int) *int { return &v }
