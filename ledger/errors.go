package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrInvalidStopLevel   = errors.New("invalid stop level")
	ErrPriceUnavailable   = errors.New("price unavailable")
	ErrPositionNotFound   = errors.New("position not found")
	ErrInvalidLot         = errors.New("invalid lot")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInvalidOrderType   = errors.New("invalid order type")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order not pending")
)

// RejectError describes why an order was refused. It unwraps to one of the
// sentinel errors above.
type RejectError struct {
	Field  string
	Reason string
	Err    error
}

func (e *RejectError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%v: %s %s", e.Err, e.Field, e.Reason)
}

func (e *RejectError) Unwrap() error { return e.Err }

func reject(err error, field, format string, args ...any) error {
	return &RejectError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}

// IsRejection reports whether err is a validation or affordability refusal,
// as opposed to a lookup miss.
func IsRejection(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}
