package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/linkbio/commerce-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrSoldOut is returned when a stock reservation cannot be satisfied.
var ErrSoldOut = errors.New("product sold out")

// ErrStaleTransition means the payout left the expected status between
// read and write; the caller lost the race.
var ErrStaleTransition = errors.New("payout status changed concurrently")

// RepositoryInterface restricts Repo methods (unit-test mocking).
// The ledger surface is append and read only: immutability of
// transaction rows is enforced by the absence of update/delete methods.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	// ledger
	AppendTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	ListTransactions(ctx context.Context, creatorID uint64, limit int) ([]model.Transaction, error)
	BalanceTotals(ctx context.Context, tx *gorm.DB, creatorID uint64, now time.Time) (total, available int64, err error)
	PeriodStart(ctx context.Context, tx *gorm.DB, creatorID uint64) (*time.Time, error)

	// orders
	CreateOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error
	GetOrderByKey(ctx context.Context, tx *gorm.DB, idemKey string) (*model.Order, error)

	// payouts
	HasPendingPayout(ctx context.Context, tx *gorm.DB, creatorID uint64) (bool, error)
	CreatePayout(ctx context.Context, tx *gorm.DB, p *model.Payout) error
	GetPayout(ctx context.Context, tx *gorm.DB, creatorID, payoutID uint64) (*model.Payout, error)
	TransitionPayout(ctx context.Context, tx *gorm.DB, payoutID uint64, from, to string, updates map[string]interface{}) error
	ListPayouts(ctx context.Context, creatorID uint64) ([]model.Payout, error)

	// catalog / creator collaborators
	GetProduct(ctx context.Context, tx *gorm.DB, productID uint64) (*model.Product, error)
	ReserveStock(ctx context.Context, tx *gorm.DB, productID uint64, qty int) error
	GetCreator(ctx context.Context, tx *gorm.DB, creatorID uint64) (*model.Creator, error)

	// outbox + kafka
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	// advisory redis caches (never authoritative; ledger wins)
	CacheBalanceSummary(ctx context.Context, creatorID uint64, payload []byte) error
	GetCachedBalanceSummary(ctx context.Context, creatorID uint64) ([]byte, error)
	CacheProductSold(ctx context.Context, productID uint64, sold int) error
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo. rdb and writer may be nil in tests;
// cache and publish calls then become no-ops.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// AppendTransaction inserts a ledger row.
func (r *Repository) AppendTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// ListTransactions returns the creator's ledger, newest first.
func (r *Repository) ListTransactions(ctx context.Context, creatorID uint64, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// BalanceTotals aggregates net_amount over the creator's ledger in one
// pass: total earnings, and the portion whose hold period has elapsed.
func (r *Repository) BalanceTotals(ctx context.Context, tx *gorm.DB, creatorID uint64, now time.Time) (int64, int64, error) {
	var row struct {
		Total     int64
		Available int64
	}
	err := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(net_amount),0) AS total, COALESCE(SUM(CASE WHEN available_at <= ? THEN net_amount ELSE 0 END),0) AS available", now).
		Where("creator_id = ?", creatorID).
		Scan(&row).Error
	return row.Total, row.Available, err
}

// PeriodStart returns the created_at of the oldest sale credit not
// covered by an earlier completed payout, or nil when there is none.
func (r *Repository) PeriodStart(ctx context.Context, tx *gorm.DB, creatorID uint64) (*time.Time, error) {
	cutoff := time.Time{}
	var last model.Payout
	err := tx.WithContext(ctx).
		Where("creator_id = ? AND status = ?", creatorID, model.PayoutStatusCompleted).
		Order("created_at desc").
		First(&last).Error
	if err == nil {
		cutoff = last.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	var first model.Transaction
	err = tx.WithContext(ctx).
		Where("creator_id = ? AND type = ? AND created_at > ?", creatorID, model.TxTypeSale, cutoff).
		Order("created_at asc").
		First(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := first.CreatedAt
	return &t, nil
}

// CreateOrder inserts order and line items. A duplicate idempotency key
// surfaces as gorm.ErrDuplicatedKey for the caller to translate.
func (r *Repository) CreateOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	return tx.WithContext(ctx).Create(o).Error
}

// GetOrderByKey fetches an order, with items, by idempotency key.
func (r *Repository) GetOrderByKey(ctx context.Context, tx *gorm.DB, idemKey string) (*model.Order, error) {
	var o model.Order
	if err := tx.WithContext(ctx).Preload("Items").
		Where("idempotency_key = ?", idemKey).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// HasPendingPayout reports whether the creator already has a payout in
// status pending. This is the fast-fail read; the partial unique index
// is what actually guarantees the invariant under concurrency.
func (r *Repository) HasPendingPayout(ctx context.Context, tx *gorm.DB, creatorID uint64) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).
		Model(&model.Payout{}).
		Where("creator_id = ? AND status = ?", creatorID, model.PayoutStatusPending).
		Count(&n).Error
	return n > 0, err
}

// CreatePayout inserts a payout request. The partial unique pending
// index makes a concurrent duplicate surface as gorm.ErrDuplicatedKey.
func (r *Repository) CreatePayout(ctx context.Context, tx *gorm.DB, p *model.Payout) error {
	return tx.WithContext(ctx).Create(p).Error
}

// GetPayout fetches a payout scoped to its creator.
func (r *Repository) GetPayout(ctx context.Context, tx *gorm.DB, creatorID, payoutID uint64) (*model.Payout, error) {
	var p model.Payout
	if err := tx.WithContext(ctx).
		Where("id = ? AND creator_id = ?", payoutID, creatorID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// TransitionPayout moves status from->to, guarded by the current status
// so concurrent transitions cannot both win.
func (r *Repository) TransitionPayout(ctx context.Context, tx *gorm.DB, payoutID uint64, from, to string, updates map[string]interface{}) error {
	values := map[string]interface{}{"status": to, "updated_at": time.Now()}
	for k, v := range updates {
		values[k] = v
	}
	res := tx.WithContext(ctx).
		Model(&model.Payout{}).
		Where("id = ? AND status = ?", payoutID, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ListPayouts returns the creator's payouts, newest first.
func (r *Repository) ListPayouts(ctx context.Context, creatorID uint64) ([]model.Payout, error) {
	var ps []model.Payout
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at desc, id desc").
		Find(&ps).Error
	return ps, err
}

// GetProduct fetches a catalog row.
func (r *Repository) GetProduct(ctx context.Context, tx *gorm.DB, productID uint64) (*model.Product, error) {
	var p model.Product
	if err := tx.WithContext(ctx).Where("id = ?", productID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ReserveStock increments sold_count, guarded against total_quantity so
// two concurrent checkouts cannot oversell. Zero rows affected means
// the stock ran out between validation and write.
func (r *Repository) ReserveStock(ctx context.Context, tx *gorm.DB, productID uint64, qty int) error {
	res := tx.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND (total_quantity IS NULL OR sold_count + ? <= total_quantity)", productID, qty).
		Updates(map[string]interface{}{
			"sold_count": gorm.Expr("sold_count + ?", qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSoldOut
	}
	return nil
}

// GetCreator fetches the creator commerce configuration.
func (r *Repository) GetCreator(ctx context.Context, tx *gorm.DB, creatorID uint64) (*model.Creator, error) {
	var c model.Creator
	if err := tx.WithContext(ctx).Where("id = ?", creatorID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	if r.writer == nil {
		return nil
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s:%d", evt.Aggregate, evt.AggregateID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalanceSummary writes the serialized summary to Redis.
func (r *Repository) CacheBalanceSummary(ctx context.Context, creatorID uint64, payload []byte) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, fmt.Sprintf("balance:%d", creatorID), payload, 5*time.Minute).Err()
}

// GetCachedBalanceSummary reads the serialized summary from Redis.
func (r *Repository) GetCachedBalanceSummary(ctx context.Context, creatorID uint64) ([]byte, error) {
	if r.rdb == nil {
		return nil, redis.Nil
	}
	str, err := r.rdb.Get(ctx, fmt.Sprintf("balance:%d", creatorID)).Result()
	if err != nil {
		return nil, err
	}
	return []byte(str), nil
}

// CacheProductSold refreshes the display-only sold counter.
func (r *Repository) CacheProductSold(ctx context.Context, productID uint64, sold int) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, fmt.Sprintf("product:sold:%d", productID), sold, 5*time.Minute).Err()
}
