package signalgen

import "errors"

var (
	ErrInvalidPeriod     = errors.New("invalid period")
	ErrInvalidResolution = errors.New("invalid poll resolution")
	ErrStepOverflow      = errors.New("step computation overflow")
	ErrEmptyKey          = errors.New("subscriber key required")
	ErrNilCallback       = errors.New("subscriber callback required")
	ErrDisposed          = errors.New("dispatcher disposed")
	ErrUnknownSignal     = errors.New("unknown signal")
	ErrHubClosed         = errors.New("hub closed")
)
