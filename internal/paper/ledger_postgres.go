package paper

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"papertrade/internal/database"
)

// PostgresLedger is the database-backed Ledger implementation.
type PostgresLedger struct {
	db *database.DB
}

// NewPostgresLedger creates a ledger backed by Postgres
func NewPostgresLedger(db *database.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const accountColumns = `id, owner_id, name, initial_cash, current_cash, total_equity,
	profit_loss, profit_loss_pct, commission_rate, slippage_rate, is_active, created_at, updated_at`

// CreateAccount implements Ledger
func (l *PostgresLedger) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := l.db.ExecContext(ctx, query,
		account.ID.String(), account.OwnerID.String(), account.Name,
		account.InitialCash, account.CurrentCash, account.TotalEquity,
		account.ProfitLoss, account.ProfitLossPct,
		account.CommissionRate, account.SlippageRate,
		account.IsActive, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// GetAccount implements Ledger
func (l *PostgresLedger) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(l.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// UpdateAccount implements Ledger
func (l *PostgresLedger) UpdateAccount(ctx context.Context, account *Account) error {
	query := `
		UPDATE accounts
		SET current_cash = $2, total_equity = $3, profit_loss = $4, profit_loss_pct = $5,
			commission_rate = $6, slippage_rate = $7, is_active = $8, updated_at = $9
		WHERE id = $1
	`
	res, err := l.db.ExecContext(ctx, query,
		account.ID.String(), account.CurrentCash, account.TotalEquity,
		account.ProfitLoss, account.ProfitLossPct,
		account.CommissionRate, account.SlippageRate,
		account.IsActive, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(res, ErrAccountNotFound)
}

// SoftDeleteAccount implements Ledger
func (l *PostgresLedger) SoftDeleteAccount(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE accounts SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	res, err := l.db.ExecContext(ctx, query, id.String(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	return requireRow(res, ErrAccountNotFound)
}

// ListAccounts implements Ledger
func (l *PostgresLedger) ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`
	var args []interface{}
	if filter.OwnerID != uuid.Nil {
		args = append(args, filter.OwnerID.String())
		query += ` AND owner_id = $` + strconv.Itoa(len(args))
	}
	if filter.ActiveOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

const orderColumns = `id, account_id, symbol, type, side, size, price, stop_price, limit_price,
	status, filled_size, avg_fill_price, commission, reject_reason, created_at, updated_at, filled_at`

// CreateOrder implements Ledger
func (l *PostgresLedger) CreateOrder(ctx context.Context, order *Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := l.db.ExecContext(ctx, query,
		order.ID.String(), order.AccountID.String(), order.Symbol,
		string(order.Type), string(order.Side), order.Size,
		order.Price, order.StopPrice, order.LimitPrice,
		string(order.Status), order.FilledSize, order.AvgFillPrice,
		order.Commission, order.RejectReason,
		order.CreatedAt, order.UpdatedAt, order.FilledAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetOrder implements Ledger
func (l *PostgresLedger) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(l.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListOrders implements Ledger
func (l *PostgresLedger) ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	var args []interface{}
	if filter.AccountID != uuid.Nil {
		args = append(args, filter.AccountID.String())
		query += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		query += ` AND symbol = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

// TransitionOrder implements Ledger. The row is locked FOR UPDATE inside a
// transaction so only one of a racing fill and cancel can observe the
// pending status.
func (l *PostgresLedger) TransitionOrder(ctx context.Context, id uuid.UUID, from, to OrderStatus, apply func(*Order)) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	order, err := scanOrder(tx.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return false, ErrOrderNotFound
		}
		return false, fmt.Errorf("failed to lock order: %w", err)
	}

	if order.Status != from {
		return false, nil
	}

	order.Status = to
	if apply != nil {
		apply(order)
	}

	update := `
		UPDATE orders
		SET status = $2, filled_size = $3, avg_fill_price = $4, commission = $5,
			reject_reason = $6, updated_at = $7, filled_at = $8
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		order.ID.String(), string(order.Status), order.FilledSize, order.AvgFillPrice,
		order.Commission, order.RejectReason, order.UpdatedAt, order.FilledAt); err != nil {
		return false, fmt.Errorf("failed to update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit order transition: %w", err)
	}
	return true, nil
}

const positionColumns = `id, account_id, symbol, size, avg_price, market_value,
	unrealized_pnl, unrealized_pnl_pct, entry_price, entry_time, created_at, updated_at`

// CreatePosition implements Ledger
func (l *PostgresLedger) CreatePosition(ctx context.Context, position *Position) error {
	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := l.db.ExecContext(ctx, query,
		position.ID.String(), position.AccountID.String(), position.Symbol,
		position.Size, position.AvgPrice, position.MarketValue,
		position.UnrealizedPnL, position.UnrealizedPnLPct,
		position.EntryPrice, position.EntryTime,
		position.CreatedAt, position.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

// GetPosition implements Ledger
func (l *PostgresLedger) GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (*Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE account_id = $1 AND symbol = $2`
	position, err := scanPosition(l.db.QueryRowContext(ctx, query, accountID.String(), symbol))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return position, nil
}

// UpdatePosition implements Ledger
func (l *PostgresLedger) UpdatePosition(ctx context.Context, position *Position) error {
	query := `
		UPDATE positions
		SET size = $2, avg_price = $3, market_value = $4, unrealized_pnl = $5,
			unrealized_pnl_pct = $6, entry_price = $7, entry_time = $8, updated_at = $9
		WHERE id = $1
	`
	res, err := l.db.ExecContext(ctx, query,
		position.ID.String(), position.Size, position.AvgPrice, position.MarketValue,
		position.UnrealizedPnL, position.UnrealizedPnLPct,
		position.EntryPrice, position.EntryTime, position.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	return requireRow(res, ErrPositionNotFound)
}

// ListPositions implements Ledger
func (l *PostgresLedger) ListPositions(ctx context.Context, filter PositionFilter) ([]*Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE 1=1`
	var args []interface{}
	if filter.AccountID != uuid.Nil {
		args = append(args, filter.AccountID.String())
		query += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		query += ` AND symbol = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY symbol ASC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var out []*Position
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, position)
	}
	return out, rows.Err()
}

const tradeColumns = `id, order_id, account_id, symbol, side, size, price,
	commission, slippage, pnl, pnl_pct, created_at`

// CreateTrade implements Ledger
func (l *PostgresLedger) CreateTrade(ctx context.Context, trade *Trade) error {
	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := l.db.ExecContext(ctx, query,
		trade.ID.String(), trade.OrderID.String(), trade.AccountID.String(),
		trade.Symbol, string(trade.Side), trade.Size, trade.Price,
		trade.Commission, trade.Slippage, trade.PnL, trade.PnLPct, trade.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// ListTrades implements Ledger
func (l *PostgresLedger) ListTrades(ctx context.Context, filter TradeFilter) ([]*Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE 1=1`
	var args []interface{}
	if filter.AccountID != uuid.Nil {
		args = append(args, filter.AccountID.String())
		query += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	if filter.OrderID != uuid.Nil {
		args = append(args, filter.OrderID.String())
		query += ` AND order_id = $` + strconv.Itoa(len(args))
	}
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		query += ` AND symbol = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var out []*Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, trade)
	}
	return out, rows.Err()
}

// rowScanner abstracts sql.Row and sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var idStr, ownerStr string
	account := &Account{}
	err := row.Scan(
		&idStr, &ownerStr, &account.Name,
		&account.InitialCash, &account.CurrentCash, &account.TotalEquity,
		&account.ProfitLoss, &account.ProfitLossPct,
		&account.CommissionRate, &account.SlippageRate,
		&account.IsActive, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if account.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse account ID: %w", err)
	}
	if account.OwnerID, err = uuid.Parse(ownerStr); err != nil {
		return nil, fmt.Errorf("failed to parse owner ID: %w", err)
	}
	return account, nil
}

func scanOrder(row rowScanner) (*Order, error) {
	var idStr, accountStr, typeStr, sideStr, statusStr string
	var rejectReason sql.NullString
	order := &Order{}
	err := row.Scan(
		&idStr, &accountStr, &order.Symbol, &typeStr, &sideStr,
		&order.Size, &order.Price, &order.StopPrice, &order.LimitPrice,
		&statusStr, &order.FilledSize, &order.AvgFillPrice,
		&order.Commission, &rejectReason,
		&order.CreatedAt, &order.UpdatedAt, &order.FilledAt)
	if err != nil {
		return nil, err
	}
	if order.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse order ID: %w", err)
	}
	if order.AccountID, err = uuid.Parse(accountStr); err != nil {
		return nil, fmt.Errorf("failed to parse account ID: %w", err)
	}
	order.Type = OrderType(typeStr)
	order.Side = OrderSide(sideStr)
	order.Status = OrderStatus(statusStr)
	order.RejectReason = rejectReason.String
	return order, nil
}

func scanPosition(row rowScanner) (*Position, error) {
	var idStr, accountStr string
	position := &Position{}
	err := row.Scan(
		&idStr, &accountStr, &position.Symbol,
		&position.Size, &position.AvgPrice, &position.MarketValue,
		&position.UnrealizedPnL, &position.UnrealizedPnLPct,
		&position.EntryPrice, &position.EntryTime,
		&position.CreatedAt, &position.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if position.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse position ID: %w", err)
	}
	if position.AccountID, err = uuid.Parse(accountStr); err != nil {
		return nil, fmt.Errorf("failed to parse account ID: %w", err)
	}
	return position, nil
}

func scanTrade(row rowScanner) (*Trade, error) {
	var idStr, orderStr, accountStr, sideStr string
	trade := &Trade{}
	err := row.Scan(
		&idStr, &orderStr, &accountStr, &trade.Symbol, &sideStr,
		&trade.Size, &trade.Price, &trade.Commission, &trade.Slippage,
		&trade.PnL, &trade.PnLPct, &trade.CreatedAt)
	if err != nil {
		return nil, err
	}
	if trade.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse trade ID: %w", err)
	}
	if trade.OrderID, err = uuid.Parse(orderStr); err != nil {
		return nil, fmt.Errorf("failed to parse order ID: %w", err)
	}
	if trade.AccountID, err = uuid.Parse(accountStr); err != nil {
		return nil, fmt.Errorf("failed to parse account ID: %w", err)
	}
	trade.Side = OrderSide(sideStr)
	return trade, nil
}

func requireRow(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
