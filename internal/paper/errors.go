package paper

import (
	"errors"
	"fmt"
)

// Sentinel errors returned synchronously by the engine and the ledger.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountInactive  = errors.New("account is inactive")
	ErrOrderNotFound    = errors.New("order not found")
	ErrPositionNotFound = errors.New("position not found")
	ErrTradeNotFound    = errors.New("trade not found")
)

// Reject reasons recorded on terminal rejected orders. Funds and position
// shortfalls are discovered asynchronously at fill time, so they surface as
// rejected orders rather than submit errors.
const (
	RejectInsufficientFunds    = "Insufficient funds"
	RejectInsufficientPosition = "Insufficient position"
	RejectPriceUnavailable     = "Price unavailable"
	RejectAccountInactive      = "Account inactive"
	RejectInternal             = "Order processing failed"
)

// ValidationError reports bad input at submit time. No order is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
