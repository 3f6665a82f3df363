package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/linkbio/commerce-service/internal/model"
	"github.com/linkbio/commerce-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PayoutService runs the withdrawal state machine:
// pending -> processing -> {completed, failed}, pending -> cancelled.
// Every transition that moves money appends a ledger row; the original
// debit is never altered, so the audit trail reads request-then-reversal.
type PayoutService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewPayoutService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *PayoutService {
	return &PayoutService{repo: r, log: logger}
}

// Request creates a pending payout and its debit transaction in one
// atomic unit, so the available balance drops immediately. The balance
// precondition is re-read inside the transaction. The pending-payout
// read is only a fast fail; what holds the single-pending invariant
// under concurrency is the payout table's partial unique index.
func (s *PayoutService) Request(ctx context.Context, creatorID uint64, amount int64) (*model.Payout, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: payout amount must be positive", ErrValidation)
	}
	var payout *model.Payout
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetCreator(ctx, tx, creatorID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: creator %d", ErrNotFound, creatorID)
			}
			return err
		}
		pending, err := s.repo.HasPendingPayout(ctx, tx, creatorID)
		if err != nil {
			return err
		}
		if pending {
			return ErrPendingPayoutExists
		}
		now := time.Now()
		_, available, err := s.repo.BalanceTotals(ctx, tx, creatorID, now)
		if err != nil {
			return err
		}
		if amount > available {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientBalance, amount, available)
		}
		periodStart, err := s.repo.PeriodStart(ctx, tx, creatorID)
		if err != nil {
			return err
		}
		p := &model.Payout{
			CreatorID:   creatorID,
			Amount:      amount,
			Status:      model.PayoutStatusPending,
			PeriodStart: periodStart,
			PeriodEnd:   &now,
		}
		if err := s.repo.CreatePayout(ctx, tx, p); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPendingPayoutExists
			}
			return err
		}
		debit := &model.Transaction{
			CreatorID:          creatorID,
			PayoutID:           &p.ID,
			Type:               model.TxTypePayout,
			Amount:             -amount,
			NetAmount:          -amount,
			PlatformFeePercent: decimal.Zero,
			Description:        fmt.Sprintf("payout request #%d", p.ID),
			AvailableAt:        now,
		}
		if err := s.repo.AppendTransaction(ctx, tx, debit); err != nil {
			return err
		}
		if err := s.outboxEvent(ctx, tx, p, model.EventPayoutRequested, ""); err != nil {
			return err
		}
		payout = p
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err)
	}
	return payout, nil
}

// Cancel moves a pending payout to cancelled and appends a compensating
// adjustment credit restoring the available balance.
func (s *PayoutService) Cancel(ctx context.Context, creatorID, payoutID uint64) (*model.Payout, error) {
	return s.compensate(ctx, creatorID, payoutID,
		model.PayoutStatusPending, model.PayoutStatusCancelled,
		model.EventPayoutCancelled, "", "payout cancelled")
}

// Process is the administrative pending -> processing transition.
func (s *PayoutService) Process(ctx context.Context, creatorID, payoutID uint64) (*model.Payout, error) {
	return s.transition(ctx, creatorID, payoutID,
		model.PayoutStatusPending, model.PayoutStatusProcessing, nil, "")
}

// Complete marks a processing payout paid out. No ledger entry is
// posted: the debit from Request already reflects the withdrawal.
func (s *PayoutService) Complete(ctx context.Context, creatorID, payoutID uint64) (*model.Payout, error) {
	now := time.Now()
	return s.transition(ctx, creatorID, payoutID,
		model.PayoutStatusProcessing, model.PayoutStatusCompleted,
		map[string]interface{}{"processed_at": &now}, model.EventPayoutCompleted)
}

// Fail marks a processing payout failed, records the reason and
// appends the same compensating credit a cancellation would.
func (s *PayoutService) Fail(ctx context.Context, creatorID, payoutID uint64, reason string) (*model.Payout, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: failure reason is required", ErrValidation)
	}
	return s.compensate(ctx, creatorID, payoutID,
		model.PayoutStatusProcessing, model.PayoutStatusFailed,
		model.EventPayoutFailed, reason, "payout failed")
}

// List returns the creator's payouts, newest first.
func (s *PayoutService) List(ctx context.Context, creatorID uint64) ([]model.Payout, error) {
	payouts, err := s.repo.ListPayouts(ctx, creatorID)
	if err != nil {
		return nil, wrapInternal(err)
	}
	return payouts, nil
}

// transition applies a guarded status change with no ledger effect.
func (s *PayoutService) transition(ctx context.Context, creatorID, payoutID uint64, from, to string, updates map[string]interface{}, event string) (*model.Payout, error) {
	var payout *model.Payout
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.GetPayout(ctx, tx, creatorID, payoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: payout %d", ErrNotFound, payoutID)
			}
			return err
		}
		if p.Status != from {
			return fmt.Errorf("%w: payout is %s, expected %s", ErrValidation, p.Status, from)
		}
		if err := s.repo.TransitionPayout(ctx, tx, payoutID, from, to, updates); err != nil {
			if errors.Is(err, repo.ErrStaleTransition) {
				return fmt.Errorf("%w: payout %d", ErrConflict, payoutID)
			}
			return err
		}
		p.Status = to
		if event != "" {
			if err := s.outboxEvent(ctx, tx, p, event, p.FailureReason); err != nil {
				return err
			}
		}
		payout = p
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err)
	}
	return payout, nil
}

// compensate applies a guarded status change plus the adjustment credit
// that reverses the original debit.
func (s *PayoutService) compensate(ctx context.Context, creatorID, payoutID uint64, from, to, event, reason, description string) (*model.Payout, error) {
	var payout *model.Payout
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.GetPayout(ctx, tx, creatorID, payoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: payout %d", ErrNotFound, payoutID)
			}
			return err
		}
		if p.Status != from {
			return fmt.Errorf("%w: payout is %s, expected %s", ErrValidation, p.Status, from)
		}
		updates := map[string]interface{}{}
		if reason != "" {
			updates["failure_reason"] = reason
		}
		if err := s.repo.TransitionPayout(ctx, tx, payoutID, from, to, updates); err != nil {
			if errors.Is(err, repo.ErrStaleTransition) {
				return fmt.Errorf("%w: payout %d", ErrConflict, payoutID)
			}
			return err
		}
		p.Status = to
		p.FailureReason = reason
		adjustment := &model.Transaction{
			CreatorID:          creatorID,
			PayoutID:           &p.ID,
			Type:               model.TxTypeAdjustment,
			Amount:             p.Amount,
			NetAmount:          p.Amount,
			PlatformFeePercent: decimal.Zero,
			Description:        fmt.Sprintf("%s #%d", description, p.ID),
			AvailableAt:        time.Now(),
		}
		if err := s.repo.AppendTransaction(ctx, tx, adjustment); err != nil {
			return err
		}
		if err := s.outboxEvent(ctx, tx, p, event, reason); err != nil {
			return err
		}
		payout = p
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err)
	}
	return payout, nil
}

func (s *PayoutService) outboxEvent(ctx context.Context, tx *gorm.DB, p *model.Payout, event, reason string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"payout_id":  p.ID,
		"creator_id": p.CreatorID,
		"amount":     p.Amount,
		"status":     p.Status,
		"reason":     reason,
	})
	evt := &model.OutboxEvent{
		Aggregate: "Payout", AggregateID: p.ID,
		EventType: event, Payload: string(payload),
	}
	return s.repo.CreateOutboxEvent(ctx, tx, evt)
}
