package flash

import "errors"

// Error taxonomy, stable across the package's lifetime. Callers that need
// to distinguish causes should use errors.Is against these sentinels;
// every returned error wraps one of them.
var (
	ErrDeviceError        = errors.New("flash: device error")
	ErrParsingFailed      = errors.New("flash: sfdp parsing failed")
	ErrReadyFailed        = errors.New("flash: memory did not become ready")
	ErrWrenFailed         = errors.New("flash: write-enable latch did not set")
	ErrInvalidEraseParams = errors.New("flash: invalid erase parameters")
	ErrDeviceNotUnique    = errors.New("flash: chip-select already in use")
	ErrDeviceMaxExceeded  = errors.New("flash: instance registry is full")
)
