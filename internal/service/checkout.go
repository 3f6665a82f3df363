package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/linkbio/commerce-service/internal/model"
	"github.com/linkbio/commerce-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CartItem is one product/quantity pair from the client. UnitPrice is
// what the client believes the price is; the charge is always computed
// from the catalog row, never from this field.
type CartItem struct {
	ProductID uint64
	Quantity  int
	UnitPrice int64
}

// Buyer is the contact info captured on the order.
type Buyer struct {
	Email   string
	Name    string
	Answers map[string]string
}

// CheckoutService is the order-intake path: it is one of the two
// writers to the ledger (the other is PayoutService).
type CheckoutService struct {
	repo     repo.RepositoryInterface
	hold     HoldPolicy
	maxItems int
	log      *zap.SugaredLogger
}

func NewCheckoutService(r repo.RepositoryInterface, hold HoldPolicy, maxItems int, logger *zap.SugaredLogger) *CheckoutService {
	if maxItems <= 0 {
		maxItems = 20
	}
	return &CheckoutService{repo: r, hold: hold, maxItems: maxItems, log: logger}
}

type creatorShare struct {
	creator *model.Creator
	amount  int64
	items   []uint64
}

// CreateOrder validates the cart and, in one atomic unit, persists the
// order with its line items and posts exactly one sale transaction per
// creator involved. A repeated idempotency key returns the original
// order with no new writes, including when two calls race on the
// unique index.
func (s *CheckoutService) CreateOrder(ctx context.Context, items []CartItem, buyer Buyer, idemKey string) (*model.Order, error) {
	if idemKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	if buyer.Email == "" {
		return nil, fmt.Errorf("%w: buyer email is required", ErrValidation)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	if len(items) > s.maxItems {
		return nil, fmt.Errorf("%w: cart exceeds %d items", ErrValidation, s.maxItems)
	}
	// limits and stock apply to the checkout as a whole, so the same
	// product split across cart lines counts once
	qtyTotals := make(map[uint64]int)
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %d", ErrValidation, it.ProductID)
		}
		qtyTotals[it.ProductID] += it.Quantity
	}

	var order *model.Order
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.GetOrderByKey(ctx, tx, idemKey)
		if err == nil {
			order = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		lineItems := make([]model.OrderItem, 0, len(items))
		shares := make(map[uint64]*creatorShare)
		creatorOrder := make([]uint64, 0, len(items))
		var amountPaid int64

		for _, it := range items {
			product, err := s.repo.GetProduct(ctx, tx, it.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product %d", ErrNotFound, it.ProductID)
				}
				return err
			}
			if !product.Active {
				return fmt.Errorf("%w: product %q is no longer available", ErrValidation, product.Title)
			}
			if product.LimitPerCheckout > 0 && qtyTotals[product.ID] > product.LimitPerCheckout {
				return fmt.Errorf("%w: product %q is limited to %d per checkout", ErrValidation, product.Title, product.LimitPerCheckout)
			}
			if product.TotalQuantity != nil && product.SoldCount+qtyTotals[product.ID] > *product.TotalQuantity {
				return fmt.Errorf("%w: product %q is sold out", ErrValidation, product.Title)
			}
			if it.UnitPrice != 0 && it.UnitPrice != product.PriceCents {
				s.log.Warnf("client price %d differs from catalog price %d for product %d",
					it.UnitPrice, product.PriceCents, product.ID)
			}

			subtotal := product.PriceCents * int64(it.Quantity)
			amountPaid += subtotal
			lineItems = append(lineItems, model.OrderItem{
				CreatorID:    product.CreatorID,
				ProductID:    product.ID,
				ProductTitle: product.Title,
				UnitPrice:    product.PriceCents,
				ImageURL:     product.ImageURL,
				Quantity:     it.Quantity,
				Subtotal:     subtotal,
			})

			share, ok := shares[product.CreatorID]
			if !ok {
				creator, err := s.repo.GetCreator(ctx, tx, product.CreatorID)
				if err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("%w: creator for product %q is unavailable", ErrValidation, product.Title)
					}
					return err
				}
				share = &creatorShare{creator: creator}
				shares[product.CreatorID] = share
				creatorOrder = append(creatorOrder, product.CreatorID)
			}
			share.amount += subtotal
			share.items = append(share.items, product.ID)

			if err := s.repo.ReserveStock(ctx, tx, product.ID, it.Quantity); err != nil {
				if errors.Is(err, repo.ErrSoldOut) {
					return fmt.Errorf("%w: product %q is sold out", ErrValidation, product.Title)
				}
				return err
			}
		}

		answers, _ := json.Marshal(buyer.Answers)
		o := &model.Order{
			CheckoutGroupID: uuid.NewString(),
			IdempotencyKey:  idemKey,
			BuyerEmail:      buyer.Email,
			BuyerName:       buyer.Name,
			AmountPaid:      amountPaid,
			CheckoutAnswers: string(answers),
			Status:          model.OrderStatusPaid,
			Items:           lineItems,
		}
		if err := s.repo.CreateOrder(ctx, tx, o); err != nil {
			return err
		}

		for _, creatorID := range creatorOrder {
			share := shares[creatorID]
			fee := platformFee(share.amount, share.creator.FeePercent)
			meta, _ := json.Marshal(map[string]interface{}{
				"checkout_group_id": o.CheckoutGroupID,
				"product_ids":       share.items,
			})
			t := &model.Transaction{
				CreatorID:          creatorID,
				OrderID:            &o.ID,
				Type:               model.TxTypeSale,
				Amount:             share.amount,
				NetAmount:          share.amount - fee,
				PlatformFeePercent: share.creator.FeePercent,
				PlatformFeeAmount:  fee,
				Description:        fmt.Sprintf("sale, order #%d", o.ID),
				Metadata:           string(meta),
				AvailableAt:        s.hold.AvailableAt(now, share.creator),
			}
			if err := s.repo.AppendTransaction(ctx, tx, t); err != nil {
				return err
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_id":    o.ID,
			"buyer_email": o.BuyerEmail,
			"amount_paid": o.AmountPaid,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Order", AggregateID: o.ID,
			EventType: model.EventOrderCreated, Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		// A true race on the unique key: re-fetch the winner's order
		// instead of failing.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, ferr := s.repo.GetOrderByKey(ctx, s.repo.DB(ctx), idemKey); ferr == nil {
				return existing, nil
			}
			return nil, fmt.Errorf("%w: idempotency key %q", ErrConflict, idemKey)
		}
		return nil, wrapInternal(err)
	}

	for _, it := range order.Items {
		if p, err := s.repo.GetProduct(ctx, s.repo.DB(ctx), it.ProductID); err == nil {
			if err := s.repo.CacheProductSold(ctx, p.ID, p.SoldCount); err != nil {
				s.log.Warn(err)
			}
		}
	}
	return order, nil
}

// GetOrder fetches an order by its idempotency key.
func (s *CheckoutService) GetOrder(ctx context.Context, idemKey string) (*model.Order, error) {
	o, err := s.repo.GetOrderByKey(ctx, s.repo.DB(ctx), idemKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %q", ErrNotFound, idemKey)
		}
		return nil, wrapInternal(err)
	}
	return o, nil
}

// platformFee computes the platform's cut of amount in minor units.
func platformFee(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).
		Mul(pct).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
