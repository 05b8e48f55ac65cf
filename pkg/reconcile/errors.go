package reconcile

import "errors"

// Domain-level error values returned by the reconciliation adapter.
var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrFineNotFound         = errors.New("fine not found")
	ErrFineAlreadyPaid      = errors.New("fine already paid")
	ErrInvalidDebtReference = errors.New("invalid debt reference")
	ErrInvalidCallback      = errors.New("invalid callback payload")
	ErrGatewaySession       = errors.New("gateway session init failed")
	ErrGatewayVerification  = errors.New("gateway verification failed")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
