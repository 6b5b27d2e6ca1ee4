package trade

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input shape, rejected before any state change.
	ErrValidation = errors.New("invalid trade input")

	// ErrRiskRejected marks a safety-gate denial. Not retryable.
	ErrRiskRejected = errors.New("trade rejected by risk checks")

	// ErrInsufficientPosition marks an over-close attempt. No partial effect
	// is applied; flipping a position must be an explicit close then open.
	ErrInsufficientPosition = errors.New("closing quantity exceeds open position")

	// ErrExecutionFailed marks an order submission that failed after its
	// trigger was already committed. The order stays triggered and the
	// failure is surfaced for manual reconciliation.
	ErrExecutionFailed = errors.New("order execution failed")

	// ErrPriceUnavailable is transient: the symbol is skipped this scan and
	// retried on the next tick.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// Errorf wraps a sentinel with detail so callers can still errors.Is on it.
func Errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// Transient reports whether err should be absorbed by the monitor scan
// rather than surfaced.
func Transient(err error) bool {
	return errors.Is(err, ErrPriceUnavailable)
}
