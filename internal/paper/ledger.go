package paper

import (
	"context"

	"github.com/google/uuid"
)

// Ledger owns persistence of accounts, positions, orders and trades. The
// engine is the only writer: account and position rows change exclusively
// through the accountant and the position book.
type Ledger interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error
	SoftDeleteAccount(ctx context.Context, id uuid.UUID) error
	ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, error)

	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error)

	// TransitionOrder atomically moves an order from one status to another,
	// applying apply to the row inside the same commit. It returns false
	// when the order is no longer in the from status; a concurrent fill and
	// cancel can therefore never both win.
	TransitionOrder(ctx context.Context, id uuid.UUID, from, to OrderStatus, apply func(*Order)) (bool, error)

	CreatePosition(ctx context.Context, position *Position) error
	GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (*Position, error)
	UpdatePosition(ctx context.Context, position *Position) error
	ListPositions(ctx context.Context, filter PositionFilter) ([]*Position, error)

	CreateTrade(ctx context.Context, trade *Trade) error
	ListTrades(ctx context.Context, filter TradeFilter) ([]*Trade, error)
}
