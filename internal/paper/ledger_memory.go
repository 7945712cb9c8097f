package paper

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is a mutex-guarded in-memory Ledger. It backs tests and the
// standalone simulation mode where no database is configured. Entities are
// stored and returned by value copy so callers never alias ledger state.
type MemoryLedger struct {
	mu        sync.RWMutex
	accounts  map[uuid.UUID]*Account
	orders    map[uuid.UUID]*Order
	positions map[positionKey]*Position
	trades    []*Trade
}

type positionKey struct {
	accountID uuid.UUID
	symbol    string
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts:  make(map[uuid.UUID]*Account),
		orders:    make(map[uuid.UUID]*Order),
		positions: make(map[positionKey]*Position),
	}
}

// CreateAccount implements Ledger
func (l *MemoryLedger) CreateAccount(ctx context.Context, account *Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	clone := *account
	l.accounts[account.ID] = &clone
	return nil
}

// GetAccount implements Ledger
func (l *MemoryLedger) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	account, ok := l.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	clone := *account
	return &clone, nil
}

// UpdateAccount implements Ledger
func (l *MemoryLedger) UpdateAccount(ctx context.Context, account *Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	clone := *account
	l.accounts[account.ID] = &clone
	return nil
}

// SoftDeleteAccount implements Ledger
func (l *MemoryLedger) SoftDeleteAccount(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.IsActive = false
	account.UpdatedAt = time.Now()
	return nil
}

// ListAccounts implements Ledger
func (l *MemoryLedger) ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Account
	for _, account := range l.accounts {
		if filter.OwnerID != uuid.Nil && account.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ActiveOnly && !account.IsActive {
			continue
		}
		clone := *account
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CreateOrder implements Ledger
func (l *MemoryLedger) CreateOrder(ctx context.Context, order *Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	clone := *order
	l.orders[order.ID] = &clone
	return nil
}

// GetOrder implements Ledger
func (l *MemoryLedger) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	order, ok := l.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

// ListOrders implements Ledger
func (l *MemoryLedger) ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Order
	for _, order := range l.orders {
		if filter.AccountID != uuid.Nil && order.AccountID != filter.AccountID {
			continue
		}
		if filter.Symbol != "" && order.Symbol != filter.Symbol {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		clone := *order
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// TransitionOrder implements Ledger. The single mutex makes the
// compare-and-set atomic: only one caller can observe the from status.
func (l *MemoryLedger) TransitionOrder(ctx context.Context, id uuid.UUID, from, to OrderStatus, apply func(*Order)) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[id]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.Status != from {
		return false, nil
	}

	order.Status = to
	if apply != nil {
		apply(order)
	}
	return true, nil
}

// CreatePosition implements Ledger
func (l *MemoryLedger) CreatePosition(ctx context.Context, position *Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	clone := *position
	l.positions[positionKey{position.AccountID, position.Symbol}] = &clone
	return nil
}

// GetPosition implements Ledger
func (l *MemoryLedger) GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (*Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	position, ok := l.positions[positionKey{accountID, symbol}]
	if !ok {
		return nil, ErrPositionNotFound
	}
	clone := *position
	return &clone, nil
}

// UpdatePosition implements Ledger
func (l *MemoryLedger) UpdatePosition(ctx context.Context, position *Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := positionKey{position.AccountID, position.Symbol}
	if _, ok := l.positions[key]; !ok {
		return ErrPositionNotFound
	}
	clone := *position
	l.positions[key] = &clone
	return nil
}

// ListPositions implements Ledger
func (l *MemoryLedger) ListPositions(ctx context.Context, filter PositionFilter) ([]*Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Position
	for _, position := range l.positions {
		if filter.AccountID != uuid.Nil && position.AccountID != filter.AccountID {
			continue
		}
		if filter.Symbol != "" && position.Symbol != filter.Symbol {
			continue
		}
		clone := *position
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// CreateTrade implements Ledger
func (l *MemoryLedger) CreateTrade(ctx context.Context, trade *Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	clone := *trade
	l.trades = append(l.trades, &clone)
	return nil
}

// ListTrades implements Ledger
func (l *MemoryLedger) ListTrades(ctx context.Context, filter TradeFilter) ([]*Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Trade
	for _, trade := range l.trades {
		if filter.AccountID != uuid.Nil && trade.AccountID != filter.AccountID {
			continue
		}
		if filter.OrderID != uuid.Nil && trade.OrderID != filter.OrderID {
			continue
		}
		if filter.Symbol != "" && trade.Symbol != filter.Symbol {
			continue
		}
		clone := *trade
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
