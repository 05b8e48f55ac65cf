package gems

import "errors"

// Domain-level error values returned by the restriction engine.
var (
	ErrInvalidCitizenID     = errors.New("invalid citizen id")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
