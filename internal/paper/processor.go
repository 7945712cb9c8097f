package paper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"papertrade/internal/market"
	"papertrade/internal/monitoring"
	"papertrade/internal/notify"
)

// Processor orchestrates order submission, asynchronous fill simulation and
// cancellation, tying the position book, the accountant and the ledger
// together.
//
// Concurrency model: every account has at most one worker goroutine
// consuming a FIFO job queue. All mutation of one account's cash, equity and
// positions happens on that worker, so two orders submitted back-to-back for
// the same account can never race each other. Orders for different accounts
// fill fully in parallel.
type Processor struct {
	ledger     Ledger
	oracle     market.Oracle
	bus        notify.Bus
	book       *PositionBook
	accountant *Accountant
	metrics    *monitoring.Metrics
	log        *logrus.Entry

	mu      sync.Mutex
	workers map[uuid.UUID]*accountWorker
	wg      sync.WaitGroup
	closed  bool
}

type jobKind int

const (
	jobFill jobKind = iota
	jobRevalue
)

type job struct {
	kind      jobKind
	orderID   uuid.UUID
	accountID uuid.UUID
}

type accountWorker struct {
	jobs chan job
}

// workerQueueSize bounds how many pending fills one account can queue.
const workerQueueSize = 1024

// SubmitRequest carries the parameters of a new order.
type SubmitRequest struct {
	AccountID  uuid.UUID
	Symbol     string
	Type       OrderType
	Side       OrderSide
	Size       float64
	Price      float64
	StopPrice  float64
	LimitPrice float64
}

// CreateAccountRequest carries the parameters of a new simulation account.
type CreateAccountRequest struct {
	OwnerID        uuid.UUID
	Name           string
	InitialCash    float64
	CommissionRate float64
	SlippageRate   float64
}

// NewProcessor creates a new order processor
func NewProcessor(ledger Ledger, oracle market.Oracle, bus notify.Bus, metrics *monitoring.Metrics, logger *logrus.Logger) *Processor {
	return &Processor{
		ledger:     ledger,
		oracle:     oracle,
		bus:        bus,
		book:       NewPositionBook(ledger),
		accountant: NewAccountant(ledger),
		metrics:    metrics,
		log:        logger.WithField("component", "paper"),
		workers:    make(map[uuid.UUID]*accountWorker),
	}
}

// CreateAccount creates a new simulation account
func (p *Processor) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	if req.InitialCash <= 0 {
		return nil, &ValidationError{Field: "initial_cash", Reason: "must be positive"}
	}
	if req.CommissionRate < 0 {
		return nil, &ValidationError{Field: "commission_rate", Reason: "must be non-negative"}
	}
	if req.SlippageRate < 0 {
		return nil, &ValidationError{Field: "slippage_rate", Reason: "must be non-negative"}
	}

	now := time.Now()
	account := &Account{
		ID:             uuid.New(),
		OwnerID:        req.OwnerID,
		Name:           req.Name,
		InitialCash:    req.InitialCash,
		CurrentCash:    req.InitialCash,
		TotalEquity:    req.InitialCash,
		CommissionRate: req.CommissionRate,
		SlippageRate:   req.SlippageRate,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := p.ledger.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"account_id":   account.ID,
		"initial_cash": account.InitialCash,
	}).Info("Account created")

	return account, nil
}

// GetAccount returns an account by id
func (p *Processor) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return p.ledger.GetAccount(ctx, id)
}

// ListAccounts returns accounts matching the filter
func (p *Processor) ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, error) {
	return p.ledger.ListAccounts(ctx, filter)
}

// DeleteAccount soft-deletes an account. Orders still queued for the
// account will be rejected when their fill runs against the inactive row.
func (p *Processor) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if err := p.ledger.SoftDeleteAccount(ctx, id); err != nil {
		return err
	}
	p.log.WithField("account_id", id).Info("Account deactivated")
	return nil
}

// Submit validates and persists a pending order, schedules its fill and
// returns immediately. The caller never blocks on matching; funds and
// position checks happen asynchronously and surface as rejected orders.
func (p *Processor) Submit(ctx context.Context, req SubmitRequest) (*Order, error) {
	if req.Size <= 0 {
		return nil, &ValidationError{Field: "size", Reason: "must be positive"}
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if !req.Type.Valid() {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown order type %q", req.Type)}
	}
	if !req.Side.Valid() {
		return nil, &ValidationError{Field: "side", Reason: fmt.Sprintf("unknown order side %q", req.Side)}
	}

	account, err := p.ledger.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	now := time.Now()
	order := &Order{
		ID:         uuid.New(),
		AccountID:  req.AccountID,
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Type:       req.Type,
		Side:       req.Side,
		Size:       req.Size,
		Price:      req.Price,
		StopPrice:  req.StopPrice,
		LimitPrice: req.LimitPrice,
		Status:     OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Provisional estimate for display only; the authoritative commission
	// is computed from the actual fill price.
	if req.Price > 0 {
		order.Commission = req.Size * req.Price * account.CommissionRate
	}

	if err := p.ledger.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	p.metrics.OrderSubmitted(string(order.Type), string(order.Side))
	p.publishOrder(order)

	if err := p.enqueue(job{kind: jobFill, orderID: order.ID, accountID: order.AccountID}); err != nil {
		// Shutting down: the order must not stay pending forever.
		p.rejectOrder(context.Background(), order.ID, RejectInternal)
		return nil, err
	}

	return order, nil
}

// Cancel attempts to cancel a pending order. It returns true only if this
// call performed the PENDING to CANCELLED transition; a fill that has
// already committed wins and Cancel returns false.
func (p *Processor) Cancel(ctx context.Context, orderID uuid.UUID) (bool, error) {
	now := time.Now()
	ok, err := p.ledger.TransitionOrder(ctx, orderID, OrderStatusPending, OrderStatusCancelled, func(o *Order) {
		o.UpdatedAt = now
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return false, err
		}
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !ok {
		return false, nil
	}

	order, err := p.ledger.GetOrder(ctx, orderID)
	if err == nil {
		p.metrics.OrderCompleted(string(OrderStatusCancelled), now.Sub(order.CreatedAt))
		p.publishOrder(order)
	}

	p.log.WithField("order_id", orderID).Info("Order cancelled")
	return true, nil
}

// GetOrder returns an order by id
func (p *Processor) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return p.ledger.GetOrder(ctx, id)
}

// ListOrders returns orders matching the filter
func (p *Processor) ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error) {
	return p.ledger.ListOrders(ctx, filter)
}

// ListPositions returns positions matching the filter
func (p *Processor) ListPositions(ctx context.Context, filter PositionFilter) ([]*Position, error) {
	return p.ledger.ListPositions(ctx, filter)
}

// ListTrades returns trades matching the filter
func (p *Processor) ListTrades(ctx context.Context, filter TradeFilter) ([]*Trade, error) {
	return p.ledger.ListTrades(ctx, filter)
}

// RevalueAccount schedules a mark-to-market refresh for an account on its
// worker queue, serialized with fills.
func (p *Processor) RevalueAccount(accountID uuid.UUID) error {
	return p.enqueue(job{kind: jobRevalue, accountID: accountID})
}

// Close drains all account workers and stops the processor
func (p *Processor) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, w := range p.workers {
		close(w.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// enqueue places a job on the owning account's FIFO queue, creating the
// worker on first use. The send happens under the mutex so Close can never
// close a channel between the closed check and the send; workers drain
// without taking the mutex, so the send cannot deadlock against them.
func (p *Processor) enqueue(j job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("processor is shut down")
	}
	w, ok := p.workers[j.accountID]
	if !ok {
		w = &accountWorker{jobs: make(chan job, workerQueueSize)}
		p.workers[j.accountID] = w
		p.wg.Add(1)
		go p.runWorker(w)
	}

	w.jobs <- j
	return nil
}

// runWorker consumes one account's job queue until shutdown
func (p *Processor) runWorker(w *accountWorker) {
	defer p.wg.Done()
	for j := range w.jobs {
		switch j.kind {
		case jobFill:
			p.processFill(j.orderID)
		case jobRevalue:
			p.processRevalue(j.accountID)
		}
	}
}

// processFill simulates the execution of one pending order. Whatever
// happens, the order leaves in a terminal state: a panic or unexpected
// error downgrades it to REJECTED rather than leaving it pending.
func (p *Processor) processFill(orderID uuid.UUID) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{
				"order_id": orderID,
				"panic":    r,
			}).Error("Fill task panicked")
			p.rejectOrder(ctx, orderID, RejectInternal)
		}
	}()

	order, err := p.ledger.GetOrder(ctx, orderID)
	if err != nil {
		p.log.WithField("order_id", orderID).WithError(err).Error("Failed to load order for fill")
		return
	}
	if order.Status != OrderStatusPending {
		// Cancelled before the worker got to it.
		return
	}

	account, err := p.ledger.GetAccount(ctx, order.AccountID)
	if err != nil {
		p.rejectOrder(ctx, orderID, RejectInternal)
		return
	}
	if !account.IsActive {
		p.rejectOrder(ctx, orderID, RejectAccountInactive)
		return
	}

	marketPrice, err := p.oracle.GetPrice(ctx, order.Symbol)
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"symbol":   order.Symbol,
		}).WithError(err).Warn("Price lookup failed")
		p.rejectOrder(ctx, orderID, RejectPriceUnavailable)
		return
	}

	slippage := p.computeSlippage(order, account, marketPrice)
	fillPrice := marketPrice + slippage
	commission := order.Size * fillPrice * account.CommissionRate

	if order.Side == OrderSideBuy {
		if account.CurrentCash < order.Size*fillPrice+commission {
			p.rejectOrder(ctx, orderID, RejectInsufficientFunds)
			return
		}
	} else {
		pos, err := p.ledger.GetPosition(ctx, order.AccountID, order.Symbol)
		if err != nil || absFloat(pos.Size) < order.Size {
			p.rejectOrder(ctx, orderID, RejectInsufficientPosition)
			return
		}
	}

	// The terminal transition commits before the ledgers move so a racing
	// Cancel can no longer win once book and account are touched.
	now := time.Now()
	committed, err := p.ledger.TransitionOrder(ctx, orderID, OrderStatusPending, OrderStatusFilled, func(o *Order) {
		o.FilledSize = o.Size
		o.AvgFillPrice = fillPrice
		o.Commission = commission
		o.FilledAt = &now
		o.UpdatedAt = now
	})
	if err != nil {
		p.log.WithField("order_id", orderID).WithError(err).Error("Failed to commit fill")
		p.rejectOrder(ctx, orderID, RejectInternal)
		return
	}
	if !committed {
		// Lost the race to a cancel.
		return
	}

	result, err := p.book.Apply(ctx, order.AccountID, order.Symbol, order.Side, order.Size, fillPrice)
	if err != nil {
		// The order is already terminal; log loudly, the revaluer will
		// re-mark the book but cash cannot be unwound here.
		p.log.WithField("order_id", orderID).WithError(err).Error("Position apply failed after fill commit")
		return
	}

	if err := p.accountant.Apply(ctx, account, order.Side, order.Size, fillPrice, commission); err != nil {
		p.log.WithField("order_id", orderID).WithError(err).Error("Account apply failed after fill commit")
		return
	}

	trade := &Trade{
		ID:         uuid.New(),
		OrderID:    order.ID,
		AccountID:  order.AccountID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Size:       order.Size,
		Price:      fillPrice,
		Commission: commission,
		Slippage:   slippage,
		PnL:        result.RealizedPnL,
		CreatedAt:  now,
	}
	if result.ClosedSize > 0 && result.CostBasis > 0 {
		trade.PnLPct = result.RealizedPnL / (result.ClosedSize * result.CostBasis) * 100
	}
	if err := p.ledger.CreateTrade(ctx, trade); err != nil {
		p.log.WithField("order_id", orderID).WithError(err).Error("Failed to record trade")
	}

	filled, err := p.ledger.GetOrder(ctx, orderID)
	if err != nil {
		filled = order
	}

	p.metrics.OrderCompleted(string(OrderStatusFilled), now.Sub(order.CreatedAt))
	p.metrics.TradeExecuted()
	p.metrics.AccountEquityUpdated(account.ID.String(), account.TotalEquity)

	p.publishOrder(filled)
	p.publishPosition(result.Position)
	p.publishAccount(account)
	p.bus.Publish(orderTopic(order.AccountID), notify.Event{Type: notify.EventTradeExecuted, Data: trade})

	p.log.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"account_id": order.AccountID,
		"symbol":     order.Symbol,
		"side":       order.Side,
		"size":       order.Size,
		"fill_price": fillPrice,
	}).Info("Order filled")
}

// computeSlippage returns the adverse price adjustment for an order.
// Market orders always pay slippage. A limit order pays it only when it
// crosses the market; crossing is evaluated exactly once, here, since there
// is no resting book. Other types trade at the reference price.
func (p *Processor) computeSlippage(order *Order, account *Account, marketPrice float64) float64 {
	crossed := false
	switch order.Type {
	case OrderTypeMarket:
		crossed = true
	case OrderTypeLimit:
		if order.Side == OrderSideBuy {
			crossed = order.LimitPrice >= marketPrice
		} else {
			crossed = order.LimitPrice <= marketPrice
		}
	}
	if !crossed {
		return 0
	}
	if order.Side == OrderSideBuy {
		return marketPrice * account.SlippageRate
	}
	return -marketPrice * account.SlippageRate
}

// processRevalue refreshes mark-to-market state for one account
func (p *Processor) processRevalue(accountID uuid.UUID) {
	ctx := context.Background()

	account, err := p.ledger.GetAccount(ctx, accountID)
	if err != nil || !account.IsActive {
		return
	}

	positions, err := p.ledger.ListPositions(ctx, PositionFilter{AccountID: accountID})
	if err != nil {
		p.log.WithField("account_id", accountID).WithError(err).Error("Failed to list positions for revaluation")
		return
	}

	for _, pos := range positions {
		if pos.Size == 0 {
			continue
		}
		price, err := p.oracle.GetPrice(ctx, pos.Symbol)
		if err != nil {
			continue
		}
		if err := p.book.Revalue(ctx, pos, price); err != nil {
			p.log.WithField("position_id", pos.ID).WithError(err).Error("Failed to revalue position")
			continue
		}
		p.publishPosition(pos)
	}

	if err := p.accountant.Revalue(ctx, account); err != nil {
		p.log.WithField("account_id", accountID).WithError(err).Error("Failed to revalue account")
		return
	}

	p.metrics.AccountEquityUpdated(account.ID.String(), account.TotalEquity)
	p.publishAccount(account)
}

// rejectOrder forces a pending order into the terminal REJECTED state
func (p *Processor) rejectOrder(ctx context.Context, orderID uuid.UUID, reason string) {
	now := time.Now()
	committed, err := p.ledger.TransitionOrder(ctx, orderID, OrderStatusPending, OrderStatusRejected, func(o *Order) {
		o.RejectReason = reason
		o.UpdatedAt = now
	})
	if err != nil || !committed {
		return
	}

	order, err := p.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return
	}

	p.metrics.OrderCompleted(string(OrderStatusRejected), now.Sub(order.CreatedAt))
	p.publishOrder(order)

	p.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"reason":   reason,
	}).Info("Order rejected")
}

func (p *Processor) publishOrder(order *Order) {
	p.bus.Publish(orderTopic(order.AccountID), notify.Event{Type: notify.EventOrderUpdated, Data: order})
}

func (p *Processor) publishPosition(pos *Position) {
	p.bus.Publish(positionTopic(pos.ID), notify.Event{Type: notify.EventPositionUpdated, Data: pos})
	// Account-scoped mirror so one stream per account sees everything.
	p.bus.Publish(accountTopic(pos.AccountID), notify.Event{Type: notify.EventPositionUpdated, Data: pos})
}

func (p *Processor) publishAccount(account *Account) {
	p.bus.Publish(accountTopic(account.ID), notify.Event{Type: notify.EventAccountUpdated, Data: account})
}

func orderTopic(accountID uuid.UUID) string {
	return "order:" + accountID.String()
}

func accountTopic(accountID uuid.UUID) string {
	return "account:" + accountID.String()
}

func positionTopic(positionID uuid.UUID) string {
	return "position:" + positionID.String()
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
