package paper

import (
	"context"
	"fmt"
	"time"
)

// Accountant applies the cash and commission effect of fills to accounts
// and keeps equity and PnL consistent with the position set.
type Accountant struct {
	ledger Ledger
}

// NewAccountant creates a new accountant
func NewAccountant(ledger Ledger) *Accountant {
	return &Accountant{ledger: ledger}
}

// Apply applies a fill's cash effect to the account and recomputes equity.
// Callers serialize per account.
func (a *Accountant) Apply(ctx context.Context, account *Account, side OrderSide, size, fillPrice, commission float64) error {
	notional := size * fillPrice

	if side == OrderSideBuy {
		account.CurrentCash -= notional + commission
	} else {
		account.CurrentCash += notional - commission
	}

	return a.refresh(ctx, account)
}

// Revalue recomputes equity and PnL from the stored position set without
// any cash movement. Used by the periodic revaluer.
func (a *Accountant) Revalue(ctx context.Context, account *Account) error {
	return a.refresh(ctx, account)
}

// refresh recomputes equity from the full position set rather than applying
// a delta, so equity can never drift from the ledger.
func (a *Accountant) refresh(ctx context.Context, account *Account) error {
	positions, err := a.ledger.ListPositions(ctx, PositionFilter{AccountID: account.ID})
	if err != nil {
		return fmt.Errorf("failed to list positions: %w", err)
	}

	equity := account.CurrentCash
	for _, pos := range positions {
		equity += pos.MarketValue
	}

	account.TotalEquity = equity
	account.ProfitLoss = equity - account.InitialCash
	if account.InitialCash > 0 {
		account.ProfitLossPct = account.ProfitLoss / account.InitialCash * 100
	} else {
		account.ProfitLossPct = 0
	}
	account.UpdatedAt = time.Now()

	if err := a.ledger.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}
