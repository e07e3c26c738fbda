package device

import "errors"

// Connect errors.
var (
	// ErrConfigRevisionMismatch indicates the controller reports a config revision other than 1.0.
	ErrConfigRevisionMismatch = errors.New("unsupported controller config revision")

	// ErrConfigInvalid indicates a config document that decodes but lacks the fields the mapper needs.
	ErrConfigInvalid = errors.New("invalid controller config")

	// ErrTransport indicates a network or HTTP failure talking to the controller.
	ErrTransport = errors.New("controller transport error")
)

// Soft and advisory conditions.
var (
	// ErrMappingAbsent indicates the controller has no stored ledmap. It is logged, never returned by Connect.
	ErrMappingAbsent = errors.New("no stored mapping on controller")

	// ErrCommitPending signals that a written mapping still needs a manual commit on the controller.
	ErrCommitPending = errors.New("mapping written but not yet applied by the controller")
)

// Usage errors.
var (
	// ErrValidation indicates malformed standalone setup input or an invalid node set.
	ErrValidation = errors.New("validation failed")

	// ErrNotConnected indicates an operation on a device whose Connect has not succeeded.
	ErrNotConnected = errors.New("device not connected")
)
