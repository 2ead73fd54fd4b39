package common

import "errors"

// Sentinel error kinds returned (wrapped with context via fmt.Errorf) from
// across the engine's programmatic surface. Callers should use errors.Is
// against these rather than matching on message text.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrOverFill         = errors.New("fill exceeds remaining quantity")
	ErrSymbolMismatch   = errors.New("order symbol does not match book symbol")
	ErrUnknownOrder     = errors.New("unknown order id")
	ErrQueueClosed      = errors.New("engine ingest queue is closed")
	ErrImportValidation = errors.New("csv import validation failed")
)
