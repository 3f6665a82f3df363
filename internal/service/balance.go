package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/linkbio/commerce-service/internal/model"
	"github.com/linkbio/commerce-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BalanceSummary is the partition of a creator's ledger at one instant:
// AvailableBalance + PendingBalance == TotalEarnings always holds.
type BalanceSummary struct {
	AvailableBalance int64 `json:"available_balance"`
	PendingBalance   int64 `json:"pending_balance"`
	TotalEarnings    int64 `json:"total_earnings"`
	HoldPeriodDays   int   `json:"hold_period_days"`
}

// BalanceService is a read-only aggregation over the ledger. It never
// reads a mutable counter; the redis copy it refreshes is display-only.
type BalanceService struct {
	repo repo.RepositoryInterface
	hold HoldPolicy
	log  *zap.SugaredLogger
}

func NewBalanceService(r repo.RepositoryInterface, hold HoldPolicy, logger *zap.SugaredLogger) *BalanceService {
	return &BalanceService{repo: r, hold: hold, log: logger}
}

// Summary computes the creator's balances as of now.
func (s *BalanceService) Summary(ctx context.Context, creatorID uint64) (BalanceSummary, error) {
	return s.SummaryAt(ctx, creatorID, time.Now())
}

// SummaryAt computes the creator's balances as of an explicit instant.
func (s *BalanceService) SummaryAt(ctx context.Context, creatorID uint64, now time.Time) (BalanceSummary, error) {
	creator, err := s.repo.GetCreator(ctx, s.repo.DB(ctx), creatorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return BalanceSummary{}, ErrNotFound
		}
		return BalanceSummary{}, wrapInternal(err)
	}
	total, available, err := s.repo.BalanceTotals(ctx, s.repo.DB(ctx), creatorID, now)
	if err != nil {
		return BalanceSummary{}, wrapInternal(err)
	}
	sum := BalanceSummary{
		AvailableBalance: available,
		PendingBalance:   total - available,
		TotalEarnings:    total,
		HoldPeriodDays:   s.hold.Days(creator),
	}
	if payload, err := json.Marshal(sum); err == nil {
		if err := s.repo.CacheBalanceSummary(ctx, creatorID, payload); err != nil {
			s.log.Warn(err)
		}
	}
	return sum, nil
}

// CachedSummary serves the display-only fast path: redis copy first,
// ledger on miss. Anything needing a guaranteed-correct number must use
// Summary instead.
func (s *BalanceService) CachedSummary(ctx context.Context, creatorID uint64) (BalanceSummary, error) {
	if payload, err := s.repo.GetCachedBalanceSummary(ctx, creatorID); err == nil {
		var sum BalanceSummary
		if err := json.Unmarshal(payload, &sum); err == nil {
			return sum, nil
		}
	}
	return s.Summary(ctx, creatorID)
}

// ListTransactions returns the creator's ledger, newest first.
func (s *BalanceService) ListTransactions(ctx context.Context, creatorID uint64, limit int) ([]model.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	txs, err := s.repo.ListTransactions(ctx, creatorID, limit)
	if err != nil {
		return nil, wrapInternal(err)
	}
	return txs, nil
}
