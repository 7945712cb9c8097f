package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// PositionBook applies fills to positions, maintaining the weighted-average
// cost basis and realizing PnL when a position is reduced or reversed.
type PositionBook struct {
	ledger Ledger
}

// ApplyResult reports the outcome of applying one fill to a position.
type ApplyResult struct {
	Position *Position
	// RealizedPnL is the profit locked in by the closed portion, zero for
	// fills that only extend the position.
	RealizedPnL float64
	// ClosedSize is the absolute size of the closed portion.
	ClosedSize float64
	// CostBasis is the average price of the leg that was closed.
	CostBasis float64
}

// NewPositionBook creates a new position book
func NewPositionBook(ledger Ledger) *PositionBook {
	return &PositionBook{ledger: ledger}
}

// Apply applies a fill of size at fillPrice to the (accountID, symbol)
// position. Size is unsigned; side carries the direction. Callers serialize
// fills per account, so Apply itself takes no locks.
func (b *PositionBook) Apply(ctx context.Context, accountID uuid.UUID, symbol string, side OrderSide, size, fillPrice float64) (*ApplyResult, error) {
	signed := size
	if side == OrderSideSell {
		signed = -size
	}

	now := time.Now()
	created := false

	pos, err := b.ledger.GetPosition(ctx, accountID, symbol)
	if err != nil {
		if !errors.Is(err, ErrPositionNotFound) {
			return nil, fmt.Errorf("failed to load position: %w", err)
		}
		pos = &Position{
			ID:        uuid.New(),
			AccountID: accountID,
			Symbol:    symbol,
			CreatedAt: now,
		}
		created = true
	}

	oldSize := pos.Size
	avg := pos.AvgPrice
	newSize := oldSize + signed
	result := &ApplyResult{Position: pos}

	switch {
	case oldSize == 0 || sameSign(oldSize, signed):
		// Opening or extending: weighted-average the cost basis.
		pos.AvgPrice = (math.Abs(oldSize)*avg + size*fillPrice) / math.Abs(newSize)
		if oldSize == 0 {
			pos.EntryPrice = fillPrice
			pos.EntryTime = now
		}

	default:
		// Reducing or reversing: realize PnL on the closed portion.
		closed := math.Min(math.Abs(oldSize), size)
		direction := 1.0
		if oldSize < 0 {
			direction = -1.0
		}
		result.RealizedPnL = (fillPrice - avg) * closed * direction
		result.ClosedSize = closed
		result.CostBasis = avg

		switch {
		case size > math.Abs(oldSize):
			// Flip through zero: the excess opens a new leg at the fill price.
			pos.AvgPrice = fillPrice
			pos.EntryPrice = fillPrice
			pos.EntryTime = now
		case newSize == 0:
			pos.AvgPrice = 0
		default:
			// Partial reduction leaves the open leg's basis untouched.
		}
	}

	pos.Size = newSize
	b.mark(pos, fillPrice)
	pos.UpdatedAt = now

	if created {
		if err := b.ledger.CreatePosition(ctx, pos); err != nil {
			return nil, fmt.Errorf("failed to create position: %w", err)
		}
	} else {
		if err := b.ledger.UpdatePosition(ctx, pos); err != nil {
			return nil, fmt.Errorf("failed to update position: %w", err)
		}
	}

	return result, nil
}

// Revalue marks a position to price and persists it. Used by the periodic
// revaluer; fills go through Apply.
func (b *PositionBook) Revalue(ctx context.Context, pos *Position, price float64) error {
	b.mark(pos, price)
	pos.UpdatedAt = time.Now()
	if err := b.ledger.UpdatePosition(ctx, pos); err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	return nil
}

// mark recomputes the mark-to-market fields at price
func (b *PositionBook) mark(pos *Position, price float64) {
	pos.MarketValue = pos.Size * price

	if pos.Size == 0 || pos.AvgPrice == 0 {
		pos.UnrealizedPnL = 0
		pos.UnrealizedPnLPct = 0
		return
	}

	// (price - avg) * size is sign-correct for shorts: size < 0 turns a
	// price drop into a gain.
	pos.UnrealizedPnL = (price - pos.AvgPrice) * pos.Size
	pos.UnrealizedPnLPct = pos.UnrealizedPnL / (math.Abs(pos.Size) * pos.AvgPrice) * 100
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
