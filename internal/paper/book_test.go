package paper

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionBookOpenAndExtend(t *testing.T) {
	ctx := context.Background()
	book := NewPositionBook(NewMemoryLedger())
	accountID := uuid.New()

	result, err := book.Apply(ctx, accountID, "BTCUSDT", OrderSideBuy, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.Position.Size)
	assert.Equal(t, 100.0, result.Position.AvgPrice)
	assert.Equal(t, 100.0, result.Position.EntryPrice)
	assert.Zero(t, result.RealizedPnL)

	result, err = book.Apply(ctx, accountID, "BTCUSDT", OrderSideBuy, 10, 120)
	require.NoError(t, err)
	assert.Equal(t, 20.0, result.Position.Size)
	assert.InDelta(t, 110.0, result.Position.AvgPrice, 1e-9)
	assert.Zero(t, result.RealizedPnL)
}

func TestPositionBookPartialReduce(t *testing.T) {
	ctx := context.Background()
	book := NewPositionBook(NewMemoryLedger())
	accountID := uuid.New()

	_, err := book.Apply(ctx, accountID, "BTCUSDT", OrderSideBuy, 10, 100)
	require.NoError(t, err)

	result, err := book.Apply(ctx, accountID, "BTCUSDT", OrderSideSell, 4, 110)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, result.RealizedPnL, 1e-9)
	assert.Equal(t, 4.0, result.ClosedSize)
	assert.Equal(t, 100.0, result.CostBasis)
	assert.Equal(t, 6.0, result.Position.Size)
	assert.Equal(t, 100.0, result.Position.AvgPrice)
}

func TestPositionBookFullClose(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	book := NewPositionBook(ledger)
	accountID := uuid.New()

	_, err := book.Apply(ctx, accountID, "ETHUSDT", OrderSideBuy, 5, 200)
	require.NoError(t, err)

	result, err := book.Apply(ctx, accountID, "ETHUSDT", OrderSideSell, 5, 190)
	require.NoError(t, err)
	assert.InDelta(t, -50.0, result.RealizedPnL, 1e-9)
	assert.Zero(t, result.Position.Size)
	assert.Zero(t, result.Position.AvgPrice)
	assert.Zero(t, result.Position.UnrealizedPnL)

	// The flat row is retained, not deleted.
	pos, err := ledger.GetPosition(ctx, accountID, "ETHUSDT")
	require.NoError(t, err)
	assert.Zero(t, pos.Size)
}

func TestPositionBookFlipThroughZero(t *testing.T) {
	ctx := context.Background()
	book := NewPositionBook(NewMemoryLedger())
	accountID := uuid.New()

	_, err := book.Apply(ctx, accountID, "BTCUSDT", OrderSideBuy, 10, 100)
	require.NoError(t, err)

	// Sell 15: close the 10 long at 110, open a 5 short at 110.
	result, err := book.Apply(ctx, accountID, "BTCUSDT", OrderSideSell, 15, 110)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, result.RealizedPnL, 1e-9)
	assert.Equal(t, 10.0, result.ClosedSize)
	assert.Equal(t, -5.0, result.Position.Size)
	assert.Equal(t, 110.0, result.Position.AvgPrice)
	assert.Equal(t, 110.0, result.Position.EntryPrice)
}

func TestPositionBookShortRealizedPnL(t *testing.T) {
	ctx := context.Background()
	book := NewPositionBook(NewMemoryLedger())
	accountID := uuid.New()

	_, err := book.Apply(ctx, accountID, "BTCUSDT", OrderSideSell, 10, 100)
	require.NoError(t, err)

	// Covering a short below the entry price is a gain.
	result, err := book.Apply(ctx, accountID, "BTCUSDT", OrderSideBuy, 10, 90)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, result.RealizedPnL, 1e-9)
	assert.Zero(t, result.Position.Size)
}

func TestPositionBookShortMark(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	book := NewPositionBook(ledger)
	accountID := uuid.New()

	result, err := book.Apply(ctx, accountID, "BTCUSDT", OrderSideSell, 10, 100)
	require.NoError(t, err)

	pos := result.Position
	require.NoError(t, book.Revalue(ctx, pos, 90))
	assert.InDelta(t, -900.0, pos.MarketValue, 1e-9)
	assert.InDelta(t, 100.0, pos.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 10.0, pos.UnrealizedPnLPct, 1e-9)

	require.NoError(t, book.Revalue(ctx, pos, 110))
	assert.InDelta(t, -100.0, pos.UnrealizedPnL, 1e-9)
}
