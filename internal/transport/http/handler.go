package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/linkbio/commerce-service/internal/service"
)

// Services groups what the handlers need.
type Services struct {
	Balance  *service.BalanceService
	Checkout *service.CheckoutService
	Payout   *service.PayoutService
}

func RegisterHandlers(r *gin.Engine, svc Services) {
	v1 := r.Group("/v1")
	{
		v1.POST("/orders", createOrderHandler(svc.Checkout))
		v1.GET("/orders/:key", getOrderHandler(svc.Checkout))
		v1.GET("/creators/:id/balance", balanceHandler(svc.Balance))
		v1.GET("/creators/:id/transactions", transactionsHandler(svc.Balance))
		v1.GET("/creators/:id/payouts", listPayoutsHandler(svc.Payout))
		v1.POST("/creators/:id/payouts", requestPayoutHandler(svc.Payout))
		v1.POST("/creators/:id/payouts/:payoutID/cancel", cancelPayoutHandler(svc.Payout))
		v1.POST("/creators/:id/payouts/:payoutID/process", processPayoutHandler(svc.Payout))
		v1.POST("/creators/:id/payouts/:payoutID/complete", completePayoutHandler(svc.Payout))
		v1.POST("/creators/:id/payouts/:payoutID/fail", failPayoutHandler(svc.Payout))
	}
}

// statusFor maps the service error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPendingPayoutExists), errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInternal):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

type cartItemReq struct {
	ProductID uint64 `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	UnitPrice int64  `json:"unit_price"`
}

type createOrderReq struct {
	Items           []cartItemReq     `json:"items" binding:"required"`
	BuyerEmail      string            `json:"buyer_email" binding:"required"`
	BuyerName       string            `json:"buyer_name"`
	CheckoutAnswers map[string]string `json:"checkout_answers"`
	IdempotencyKey  string            `json:"idempotency_key" binding:"required"`
}

func createOrderHandler(svc *service.CheckoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		items := make([]service.CartItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, service.CartItem{
				ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice,
			})
		}
		buyer := service.Buyer{Email: req.BuyerEmail, Name: req.BuyerName, Answers: req.CheckoutAnswers}
		order, err := svc.CreateOrder(c, items, buyer, req.IdempotencyKey)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func getOrderHandler(svc *service.CheckoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := svc.GetOrder(c, c.Param("key"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func balanceHandler(svc *service.BalanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		// cached=true serves the display-only redis copy; the default
		// always aggregates the ledger
		var sum service.BalanceSummary
		var err error
		if c.Query("cached") == "true" {
			sum, err = svc.CachedSummary(c, id)
		} else {
			sum, err = svc.Summary(c, id)
		}
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

func transactionsHandler(svc *service.BalanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		txs, err := svc.ListTransactions(c, id, limit)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

func listPayoutsHandler(svc *service.PayoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		payouts, err := svc.List(c, id)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, payouts)
	}
}

type requestPayoutReq struct {
	Amount int64 `json:"amount" binding:"required"`
}

func requestPayoutHandler(svc *service.PayoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requestPayoutReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		payout, err := svc.Request(c, id, req.Amount)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}

func cancelPayoutHandler(svc *service.PayoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		payoutID, _ := strconv.ParseUint(c.Param("payoutID"), 10, 64)
		payout, err := svc.Cancel(c, id, payoutID)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}

func processPayoutHandler(svc *service.PayoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		payoutID, _ := strconv.ParseUint(c.Param("payoutID"), 10, 64)
		payout, err := svc.Process(c, id, payoutID)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}

func completePayoutHandler(svc *service.PayoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		payoutID, _ := strconv.ParseUint(c.Param("payoutID"), 10, 64)
		payout, err := svc.Complete(c, id, payoutID)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}

type failPayoutReq struct {
	Reason string `json:"reason" binding:"required"`
}

func failPayoutHandler(svc *service.PayoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req failPayoutReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		payoutID, _ := strconv.ParseUint(c.Param("payoutID"), 10, 64)
		payout, err := svc.Fail(c, id, payoutID, req.Reason)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}
