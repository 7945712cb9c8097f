package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"papertrade/internal/config"
	"papertrade/internal/paper"
)

// AccountHandler serves simulation account endpoints
type AccountHandler struct {
	processor *paper.Processor
	defaults  config.PaperConfig
	log       *logrus.Entry
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(processor *paper.Processor, defaults config.PaperConfig, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{
		processor: processor,
		defaults:  defaults,
		log:       logger.WithField("component", "api"),
	}
}

// Create handles POST /api/v1/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ownerID, ok := requestUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Invalid user identity")
		return
	}

	createReq := paper.CreateAccountRequest{
		OwnerID:        ownerID,
		Name:           req.Name,
		InitialCash:    req.InitialCash,
		CommissionRate: h.defaults.DefaultCommissionRate,
		SlippageRate:   h.defaults.DefaultSlippageRate,
	}
	if createReq.InitialCash == 0 {
		createReq.InitialCash = h.defaults.DefaultInitialCash
	}
	if req.CommissionRate != nil {
		createReq.CommissionRate = *req.CommissionRate
	}
	if req.SlippageRate != nil {
		createReq.SlippageRate = *req.SlippageRate
	}

	account, err := h.processor.CreateAccount(c.Request.Context(), createReq)
	if err != nil {
		respondPaperError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, account)
}

// List handles GET /api/v1/accounts
func (h *AccountHandler) List(c *gin.Context) {
	ownerID, ok := requestUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Invalid user identity")
		return
	}

	filter := paper.AccountFilter{ActiveOnly: c.Query("active") == "true"}
	if !isAdmin(c) {
		filter.OwnerID = ownerID
	}

	accounts, err := h.processor.ListAccounts(c.Request.Context(), filter)
	if err != nil {
		respondPaperError(c, err)
		return
	}

	respondOK(c, http.StatusOK, accounts)
}

// Get handles GET /api/v1/accounts/:id
func (h *AccountHandler) Get(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, account)
}

// Delete handles DELETE /api/v1/accounts/:id
func (h *AccountHandler) Delete(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	if err := h.processor.DeleteAccount(c.Request.Context(), account.ID); err != nil {
		respondPaperError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}

// ownedAccount loads the account from the :id param and enforces ownership
func (h *AccountHandler) ownedAccount(c *gin.Context) (*paper.Account, bool) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid account ID")
		return nil, false
	}

	account, err := h.processor.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		respondPaperError(c, err)
		return nil, false
	}

	ownerID, ok := requestUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Invalid user identity")
		return nil, false
	}
	if account.OwnerID != ownerID && !isAdmin(c) {
		respondError(c, http.StatusForbidden, "Account belongs to another user")
		return nil, false
	}

	return account, true
}

// requestUserID returns the authenticated user's id from the gin context
func requestUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := c.Get("user_id")
	if !ok {
		return uuid.Nil, false
	}
	str, ok := raw.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func isAdmin(c *gin.Context) bool {
	return c.GetString("role") == "admin"
}

// respondPaperError maps engine errors onto HTTP statuses
func respondPaperError(c *gin.Context, err error) {
	switch {
	case paper.IsValidation(err):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, paper.ErrAccountNotFound),
		errors.Is(err, paper.ErrOrderNotFound),
		errors.Is(err, paper.ErrPositionNotFound),
		errors.Is(err, paper.ErrTradeNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, paper.ErrAccountInactive):
		respondError(c, http.StatusConflict, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
