package paper

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/market"
	"papertrade/internal/monitoring"
	"papertrade/internal/notify"
)

type testEngine struct {
	processor *Processor
	ledger    *MemoryLedger
	oracle    *market.StaticOracle
	hub       *notify.Hub
}

func newTestEngine(t *testing.T, prices map[string]float64) *testEngine {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ledger := NewMemoryLedger()
	oracle := market.NewStaticOracle(prices, 0)
	hub := notify.NewHub()
	processor := NewProcessor(ledger, oracle, hub, monitoring.NewMetrics(), logger)
	t.Cleanup(processor.Close)

	return &testEngine{processor: processor, ledger: ledger, oracle: oracle, hub: hub}
}

func (e *testEngine) createAccount(t *testing.T, cash, commissionRate, slippageRate float64) *Account {
	t.Helper()
	account, err := e.processor.CreateAccount(context.Background(), CreateAccountRequest{
		OwnerID:        uuid.New(),
		Name:           "test",
		InitialCash:    cash,
		CommissionRate: commissionRate,
		SlippageRate:   slippageRate,
	})
	require.NoError(t, err)
	return account
}

// waitTerminal blocks until the order leaves the pending state.
func (e *testEngine) waitTerminal(t *testing.T, orderID uuid.UUID) *Order {
	t.Helper()
	var order *Order
	require.Eventually(t, func() bool {
		o, err := e.processor.GetOrder(context.Background(), orderID)
		if err != nil || !o.Status.Terminal() {
			return false
		}
		order = o
		return true
	}, 2*time.Second, 2*time.Millisecond)
	return order
}

func TestSubmitMarketBuyFill(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 100000, 0.001, 0.001)

	order, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID,
		Symbol:    "BTCUSDT",
		Type:      OrderTypeMarket,
		Side:      OrderSideBuy,
		Size:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, order.Status)

	filled := e.waitTerminal(t, order.ID)
	assert.Equal(t, OrderStatusFilled, filled.Status)
	assert.InDelta(t, 100.1, filled.AvgFillPrice, 1e-9)
	assert.InDelta(t, 1.001, filled.Commission, 1e-9)
	assert.Equal(t, 10.0, filled.FilledSize)
	require.NotNil(t, filled.FilledAt)

	updated, err := e.processor.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.InDelta(t, 98997.999, updated.CurrentCash, 1e-9)
	assert.InDelta(t, 99998.999, updated.TotalEquity, 1e-9)

	positions, err := e.processor.ListPositions(ctx, PositionFilter{AccountID: account.ID})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 10.0, positions[0].Size)
	assert.InDelta(t, 100.1, positions[0].AvgPrice, 1e-9)

	trades, err := e.processor.ListTrades(ctx, TradeFilter{OrderID: order.ID})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, 0.1, trades[0].Slippage, 1e-9)
	assert.Zero(t, trades[0].PnL)
}

func TestSubmitSellWithoutPosition(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 100000, 0, 0)

	order, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID,
		Symbol:    "BTCUSDT",
		Type:      OrderTypeMarket,
		Side:      OrderSideSell,
		Size:      5,
	})
	require.NoError(t, err)

	rejected := e.waitTerminal(t, order.ID)
	assert.Equal(t, OrderStatusRejected, rejected.Status)
	assert.Equal(t, RejectInsufficientPosition, rejected.RejectReason)

	// Nothing moved.
	updated, err := e.processor.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, updated.CurrentCash)
}

func TestSubmitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 50})
	account := e.createAccount(t, 100, 0, 0)

	order, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID,
		Symbol:    "BTCUSDT",
		Type:      OrderTypeMarket,
		Side:      OrderSideBuy,
		Size:      100,
	})
	require.NoError(t, err)

	rejected := e.waitTerminal(t, order.ID)
	assert.Equal(t, OrderStatusRejected, rejected.Status)
	assert.Equal(t, RejectInsufficientFunds, rejected.RejectReason)
}

func TestSellRealizesPnL(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 100000, 0, 0)

	buy, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeMarket, Side: OrderSideBuy, Size: 10,
	})
	require.NoError(t, err)
	e.waitTerminal(t, buy.ID)

	e.oracle.SetPrice("BTCUSDT", 110)

	sell, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeMarket, Side: OrderSideSell, Size: 4,
	})
	require.NoError(t, err)
	e.waitTerminal(t, sell.ID)

	trades, err := e.processor.ListTrades(ctx, TradeFilter{OrderID: sell.ID})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, 40.0, trades[0].PnL, 1e-9)
	assert.InDelta(t, 10.0, trades[0].PnLPct, 1e-9)

	positions, err := e.processor.ListPositions(ctx, PositionFilter{AccountID: account.ID})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 6.0, positions[0].Size)
	assert.Equal(t, 100.0, positions[0].AvgPrice)

	updated, err := e.processor.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.InDelta(t, 99440.0, updated.CurrentCash, 1e-9)
	assert.InDelta(t, 100100.0, updated.TotalEquity, 1e-9)
}

func TestRoundTripLosesOnlyCommission(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 100000, 0.001, 0)

	buy, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeMarket, Side: OrderSideBuy, Size: 10,
	})
	require.NoError(t, err)
	e.waitTerminal(t, buy.ID)

	sell, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeMarket, Side: OrderSideSell, Size: 10,
	})
	require.NoError(t, err)
	e.waitTerminal(t, sell.ID)

	updated, err := e.processor.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.InDelta(t, 99998.0, updated.CurrentCash, 1e-9)
	assert.InDelta(t, 99998.0, updated.TotalEquity, 1e-9)
	assert.InDelta(t, -2.0, updated.ProfitLoss, 1e-9)
}

func TestLimitOrderSlippageOnCross(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 100000, 0, 0.001)

	// Limit at or through the market pays slippage like a market order.
	crossing, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeLimit, Side: OrderSideBuy, Size: 1, LimitPrice: 105,
	})
	require.NoError(t, err)
	filled := e.waitTerminal(t, crossing.ID)
	assert.Equal(t, OrderStatusFilled, filled.Status)
	assert.InDelta(t, 100.1, filled.AvgFillPrice, 1e-9)

	// Non-crossing limit fills at the reference price with no slippage.
	resting, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeLimit, Side: OrderSideBuy, Size: 1, LimitPrice: 95,
	})
	require.NoError(t, err)
	filled = e.waitTerminal(t, resting.ID)
	assert.Equal(t, OrderStatusFilled, filled.Status)
	assert.InDelta(t, 100.0, filled.AvgFillPrice, 1e-9)

	// Crossing sell pays slippage against it.
	sell, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeLimit, Side: OrderSideSell, Size: 2, LimitPrice: 99,
	})
	require.NoError(t, err)
	filled = e.waitTerminal(t, sell.ID)
	assert.Equal(t, OrderStatusFilled, filled.Status)
	assert.InDelta(t, 99.9, filled.AvgFillPrice, 1e-9)
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 1000, 0, 0)

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"zero size", SubmitRequest{AccountID: account.ID, Symbol: "BTCUSDT", Type: OrderTypeMarket, Side: OrderSideBuy, Size: 0}},
		{"negative size", SubmitRequest{AccountID: account.ID, Symbol: "BTCUSDT", Type: OrderTypeMarket, Side: OrderSideBuy, Size: -1}},
		{"empty symbol", SubmitRequest{AccountID: account.ID, Symbol: "  ", Type: OrderTypeMarket, Side: OrderSideBuy, Size: 1}},
		{"bad type", SubmitRequest{AccountID: account.ID, Symbol: "BTCUSDT", Type: "iceberg", Side: OrderSideBuy, Size: 1}},
		{"bad side", SubmitRequest{AccountID: account.ID, Symbol: "BTCUSDT", Type: OrderTypeMarket, Side: "hold", Size: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.processor.Submit(ctx, tc.req)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestSubmitInactiveAccount(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 1000, 0, 0)
	require.NoError(t, e.processor.DeleteAccount(ctx, account.ID))

	_, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeMarket, Side: OrderSideBuy, Size: 1,
	})
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestSubmitUnknownPrice(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 1000, 0, 0)

	order, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "DOGEUSDT",
		Type: OrderTypeMarket, Side: OrderSideBuy, Size: 1,
	})
	require.NoError(t, err)

	rejected := e.waitTerminal(t, order.ID)
	assert.Equal(t, OrderStatusRejected, rejected.Status)
	assert.Equal(t, RejectPriceUnavailable, rejected.RejectReason)
}

func TestCancelPendingOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 1000, 0, 0)

	// Persist a pending order directly so no fill worker competes for it.
	now := time.Now()
	order := &Order{
		ID: uuid.New(), AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeLimit, Side: OrderSideBuy, Size: 1, LimitPrice: 90,
		Status: OrderStatusPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, e.ledger.CreateOrder(ctx, order))

	cancelled, err := e.processor.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	stored, err := e.processor.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, stored.Status)

	// A second cancel is a no-op, not an error.
	cancelled, err = e.processor.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestCancelFilledOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 1000, 0, 0)

	order, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeMarket, Side: OrderSideBuy, Size: 1,
	})
	require.NoError(t, err)
	e.waitTerminal(t, order.ID)

	cancelled, err := e.processor.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	stored, err := e.processor.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusFilled, stored.Status)
}

func TestCancelUnknownOrder(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.processor.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestConcurrentSubmitsSerialized(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	// Exactly enough cash for ten one-unit buys at 100.
	account := e.createAccount(t, 1000, 0, 0)

	const n = 10
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := e.processor.Submit(ctx, SubmitRequest{
				AccountID: account.ID, Symbol: "BTCUSDT",
				Type: OrderTypeMarket, Side: OrderSideBuy, Size: 1,
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[i] = order.ID
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		filled := e.waitTerminal(t, id)
		assert.Equal(t, OrderStatusFilled, filled.Status)
	}

	updated, err := e.processor.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, updated.CurrentCash, 1e-9)

	positions, err := e.processor.ListPositions(ctx, PositionFilter{AccountID: account.ID})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 10.0, positions[0].Size)
}

func TestSubmitAfterClose(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 1000, 0, 0)

	e.processor.Close()

	_, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeMarket, Side: OrderSideBuy, Size: 1,
	})
	require.Error(t, err)

	// The order must not stay pending once the enqueue fails.
	orders, err := e.processor.ListOrders(ctx, OrderFilter{AccountID: account.ID})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, OrderStatusRejected, orders[0].Status)
	assert.Equal(t, RejectInternal, orders[0].RejectReason)
}

func TestCloseDuringSubmits(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 1000000, 0, 0)

	// Submitters racing Close must never panic on a closed job channel;
	// each order either enqueues and drains or is rejected synchronously.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, _ = e.processor.Submit(ctx, SubmitRequest{
					AccountID: account.ID, Symbol: "BTCUSDT",
					Type: OrderTypeMarket, Side: OrderSideBuy, Size: 1,
				})
			}
		}()
	}
	e.processor.Close()
	wg.Wait()

	orders, err := e.processor.ListOrders(ctx, OrderFilter{AccountID: account.ID})
	require.NoError(t, err)
	for _, order := range orders {
		assert.True(t, order.Status.Terminal(), "order %s left %s", order.ID, order.Status)
	}
}

func TestRevalueAccount(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 1000, 0, 0)

	buy, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeMarket, Side: OrderSideBuy, Size: 5,
	})
	require.NoError(t, err)
	e.waitTerminal(t, buy.ID)

	e.oracle.SetPrice("BTCUSDT", 120)
	require.NoError(t, e.processor.RevalueAccount(account.ID))

	require.Eventually(t, func() bool {
		updated, err := e.processor.GetAccount(ctx, account.ID)
		return err == nil && updated.TotalEquity > 1099
	}, 2*time.Second, 2*time.Millisecond)

	updated, err := e.processor.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, updated.CurrentCash, 1e-9)
	assert.InDelta(t, 1100.0, updated.TotalEquity, 1e-9)

	positions, err := e.processor.ListPositions(ctx, PositionFilter{AccountID: account.ID})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 100.0, positions[0].UnrealizedPnL, 1e-9)
}

func TestFillPublishesEvents(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, map[string]float64{"BTCUSDT": 100})
	account := e.createAccount(t, 1000, 0, 0)

	orderCh := e.hub.Subscribe("order:" + account.ID.String())
	accountCh := e.hub.Subscribe("account:" + account.ID.String())

	order, err := e.processor.Submit(ctx, SubmitRequest{
		AccountID: account.ID, Symbol: "BTCUSDT",
		Type: OrderTypeMarket, Side: OrderSideBuy, Size: 1,
	})
	require.NoError(t, err)
	e.waitTerminal(t, order.ID)

	types := map[string]bool{}
	deadline := time.After(time.Second)
	for len(types) < 3 {
		select {
		case ev := <-orderCh:
			types[ev.Type] = true
		case ev := <-accountCh:
			types[ev.Type] = true
		case <-deadline:
			t.Fatalf("timed out waiting for events, saw %v", types)
		}
	}
	assert.True(t, types[notify.EventOrderUpdated])
	assert.True(t, types[notify.EventAccountUpdated])
	assert.True(t, types[notify.EventTradeExecuted])
}

func TestCreateAccountValidation(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.processor.CreateAccount(ctx, CreateAccountRequest{InitialCash: 0})
	assert.True(t, IsValidation(err))

	_, err = e.processor.CreateAccount(ctx, CreateAccountRequest{InitialCash: 100, CommissionRate: -0.1})
	assert.True(t, IsValidation(err))

	_, err = e.processor.CreateAccount(ctx, CreateAccountRequest{InitialCash: 100, SlippageRate: -0.1})
	assert.True(t, IsValidation(err))
}
