package api

import "github.com/gin-gonic/gin"

// Response is the standard API response envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Success: false, Error: message})
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse carries issued tokens
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// CreateAccountRequest represents a simulation account creation request
type CreateAccountRequest struct {
	Name           string   `json:"name" binding:"required,max=100"`
	InitialCash    float64  `json:"initial_cash"`
	CommissionRate *float64 `json:"commission_rate"`
	SlippageRate   *float64 `json:"slippage_rate"`
}

// SubmitOrderRequest represents an order submission request
type SubmitOrderRequest struct {
	AccountID  string  `json:"account_id" binding:"required,uuid"`
	Symbol     string  `json:"symbol" binding:"required"`
	Type       string  `json:"type" binding:"required"`
	Side       string  `json:"side" binding:"required"`
	Size       float64 `json:"size" binding:"required,gt=0"`
	Price      float64 `json:"price"`
	StopPrice  float64 `json:"stop_price"`
	LimitPrice float64 `json:"limit_price"`
}
