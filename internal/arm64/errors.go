package arm64

import "errors"

// Errors returned by the encoder. Every exported encoder that can fail
// returns one of these (wrapped with fmt.Errorf by callers that need
// more context) instead of panicking; the encoder never has partial
// success.
var (
	ErrOperandWidthMismatch = errors.New("arm64: operand width mismatch")
	ErrUnencodableImmediate = errors.New("arm64: immediate cannot be encoded")
	ErrImmediateTooLarge    = errors.New("arm64: immediate too large for a single MOVZ")
	ErrBadLaneIndex         = errors.New("arm64: lane index out of range")
	ErrBadArrangement       = errors.New("arm64: invalid arrangement specifier")
)
