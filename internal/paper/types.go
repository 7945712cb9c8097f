package paper

import (
	"time"

	"github.com/google/uuid"
)

// OrderType represents the order type
type OrderType string

// OrderSide represents the order side
type OrderSide string

// OrderStatus represents the order lifecycle state. An order is created
// pending and moves exactly once into a terminal state.
type OrderStatus string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the order type is known
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop:
		return true
	}
	return false
}

// Valid reports whether the order side is known
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Terminal reports whether the status is final
func (s OrderStatus) Terminal() bool {
	return s != OrderStatusPending
}

// Account represents a simulated trading account.
//
// Invariant: TotalEquity = CurrentCash + sum of position market values.
type Account struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OwnerID        uuid.UUID `json:"owner_id" db:"owner_id"`
	Name           string    `json:"name" db:"name"`
	InitialCash    float64   `json:"initial_cash" db:"initial_cash"`
	CurrentCash    float64   `json:"current_cash" db:"current_cash"`
	TotalEquity    float64   `json:"total_equity" db:"total_equity"`
	ProfitLoss     float64   `json:"profit_loss" db:"profit_loss"`
	ProfitLossPct  float64   `json:"profit_loss_pct" db:"profit_loss_pct"`
	CommissionRate float64   `json:"commission_rate" db:"commission_rate"`
	SlippageRate   float64   `json:"slippage_rate" db:"slippage_rate"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Position represents the net holding of one symbol in one account.
// Size is signed: positive long, negative short. AvgPrice is the weighted
// cost basis of the open leg and is meaningless while Size == 0 (zero-size
// rows are retained, not deleted).
type Position struct {
	ID               uuid.UUID `json:"id" db:"id"`
	AccountID        uuid.UUID `json:"account_id" db:"account_id"`
	Symbol           string    `json:"symbol" db:"symbol"`
	Size             float64   `json:"size" db:"size"`
	AvgPrice         float64   `json:"avg_price" db:"avg_price"`
	MarketValue      float64   `json:"market_value" db:"market_value"`
	UnrealizedPnL    float64   `json:"unrealized_pnl" db:"unrealized_pnl"`
	UnrealizedPnLPct float64   `json:"unrealized_pnl_pct" db:"unrealized_pnl_pct"`
	EntryPrice       float64   `json:"entry_price" db:"entry_price"`
	EntryTime        time.Time `json:"entry_time" db:"entry_time"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Order represents an order against a simulated account. This engine models
// full immediate fills only, so FilledSize is either 0 or Size.
type Order struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	AccountID    uuid.UUID   `json:"account_id" db:"account_id"`
	Symbol       string      `json:"symbol" db:"symbol"`
	Type         OrderType   `json:"type" db:"type"`
	Side         OrderSide   `json:"side" db:"side"`
	Size         float64     `json:"size" db:"size"`
	Price        float64     `json:"price,omitempty" db:"price"`
	StopPrice    float64     `json:"stop_price,omitempty" db:"stop_price"`
	LimitPrice   float64     `json:"limit_price,omitempty" db:"limit_price"`
	Status       OrderStatus `json:"status" db:"status"`
	FilledSize   float64     `json:"filled_size" db:"filled_size"`
	AvgFillPrice float64     `json:"avg_fill_price" db:"avg_fill_price"`
	Commission   float64     `json:"commission" db:"commission"`
	RejectReason string      `json:"reject_reason,omitempty" db:"reject_reason"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
	FilledAt     *time.Time  `json:"filled_at,omitempty" db:"filled_at"`
}

// Trade represents one executed fill. An order produces at most one trade.
type Trade struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OrderID    uuid.UUID `json:"order_id" db:"order_id"`
	AccountID  uuid.UUID `json:"account_id" db:"account_id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Side       OrderSide `json:"side" db:"side"`
	Size       float64   `json:"size" db:"size"`
	Price      float64   `json:"price" db:"price"`
	Commission float64   `json:"commission" db:"commission"`
	Slippage   float64   `json:"slippage" db:"slippage"`
	PnL        float64   `json:"pnl" db:"pnl"`
	PnLPct     float64   `json:"pnl_pct" db:"pnl_pct"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// OrderFilter narrows ListOrders results
type OrderFilter struct {
	AccountID uuid.UUID
	Symbol    string
	Status    OrderStatus
	Limit     int
}

// PositionFilter narrows ListPositions results
type PositionFilter struct {
	AccountID uuid.UUID
	Symbol    string
}

// TradeFilter narrows ListTrades results
type TradeFilter struct {
	AccountID uuid.UUID
	OrderID   uuid.UUID
	Symbol    string
	Limit     int
}

// AccountFilter narrows ListAccounts results
type AccountFilter struct {
	OwnerID    uuid.UUID
	ActiveOnly bool
}
