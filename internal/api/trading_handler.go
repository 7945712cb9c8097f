package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"papertrade/internal/paper"
)

// TradingHandler serves order, position and trade endpoints
type TradingHandler struct {
	processor *paper.Processor
	accounts  *AccountHandler
	log       *logrus.Entry
}

// NewTradingHandler creates a new trading handler
func NewTradingHandler(processor *paper.Processor, accounts *AccountHandler, logger *logrus.Logger) *TradingHandler {
	return &TradingHandler{
		processor: processor,
		accounts:  accounts,
		log:       logger.WithField("component", "api"),
	}
}

// SubmitOrder handles POST /api/v1/orders. The order is accepted pending and
// fills asynchronously; clients observe the outcome via polling or the
// WebSocket stream.
func (h *TradingHandler) SubmitOrder(c *gin.Context) {
	var req SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid account ID")
		return
	}
	if !h.authorizeAccount(c, accountID) {
		return
	}

	order, err := h.processor.Submit(c.Request.Context(), paper.SubmitRequest{
		AccountID:  accountID,
		Symbol:     req.Symbol,
		Type:       paper.OrderType(req.Type),
		Side:       paper.OrderSide(req.Side),
		Size:       req.Size,
		Price:      req.Price,
		StopPrice:  req.StopPrice,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		respondPaperError(c, err)
		return
	}

	respondOK(c, http.StatusAccepted, order)
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
func (h *TradingHandler) CancelOrder(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}

	cancelled, err := h.processor.Cancel(c.Request.Context(), order.ID)
	if err != nil {
		respondPaperError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"cancelled": cancelled})
}

// GetOrder handles GET /api/v1/orders/:id
func (h *TradingHandler) GetOrder(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, order)
}

// ListOrders handles GET /api/v1/accounts/:id/orders
func (h *TradingHandler) ListOrders(c *gin.Context) {
	account, ok := h.accounts.ownedAccount(c)
	if !ok {
		return
	}

	filter := paper.OrderFilter{
		AccountID: account.ID,
		Symbol:    c.Query("symbol"),
		Status:    paper.OrderStatus(c.Query("status")),
		Limit:     queryInt(c, "limit"),
	}

	orders, err := h.processor.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondPaperError(c, err)
		return
	}
	respondOK(c, http.StatusOK, orders)
}

// ListPositions handles GET /api/v1/accounts/:id/positions
func (h *TradingHandler) ListPositions(c *gin.Context) {
	account, ok := h.accounts.ownedAccount(c)
	if !ok {
		return
	}

	positions, err := h.processor.ListPositions(c.Request.Context(), paper.PositionFilter{
		AccountID: account.ID,
		Symbol:    c.Query("symbol"),
	})
	if err != nil {
		respondPaperError(c, err)
		return
	}
	respondOK(c, http.StatusOK, positions)
}

// ListTrades handles GET /api/v1/accounts/:id/trades
func (h *TradingHandler) ListTrades(c *gin.Context) {
	account, ok := h.accounts.ownedAccount(c)
	if !ok {
		return
	}

	trades, err := h.processor.ListTrades(c.Request.Context(), paper.TradeFilter{
		AccountID: account.ID,
		Symbol:    c.Query("symbol"),
		Limit:     queryInt(c, "limit"),
	})
	if err != nil {
		respondPaperError(c, err)
		return
	}
	respondOK(c, http.StatusOK, trades)
}

// ownedOrder loads the order from the :id param and enforces account ownership
func (h *TradingHandler) ownedOrder(c *gin.Context) (*paper.Order, bool) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid order ID")
		return nil, false
	}

	order, err := h.processor.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondPaperError(c, err)
		return nil, false
	}
	if !h.authorizeAccount(c, order.AccountID) {
		return nil, false
	}

	return order, true
}

// authorizeAccount checks that the authenticated user owns the account
func (h *TradingHandler) authorizeAccount(c *gin.Context, accountID uuid.UUID) bool {
	account, err := h.processor.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		respondPaperError(c, err)
		return false
	}

	ownerID, ok := requestUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Invalid user identity")
		return false
	}
	if account.OwnerID != ownerID && !isAdmin(c) {
		respondError(c, http.StatusForbidden, "Account belongs to another user")
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
