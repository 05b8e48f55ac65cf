package debt

import "errors"

// Domain-level error values returned by the debt manager. Financial-integrity
// errors propagate to the caller uncaught; nothing here is swallowed.
var (
	ErrDebtNotFound         = errors.New("debt not found")
	ErrDebtClosed           = errors.New("debt already paid or waived")
	ErrDuplicateActiveDebt  = errors.New("duplicate active debt")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidDebtID        = errors.New("invalid debt id")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidStatus        = errors.New("invalid debt status")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
