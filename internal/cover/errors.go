package cover

import "errors"

// Errors raised synchronously to callers. None of them mutate cover state.
var (
	// ErrBusy means a conflicting movement or calibration is already active.
	ErrBusy = errors.New("a conflicting movement or calibration is active")

	// ErrTargetOutOfRange means a requested position is outside [0,100].
	ErrTargetOutOfRange = errors.New("target must be between 0 and 100")

	// ErrPositionUnknown means a mid-range move was requested before the
	// position was ever learned. Endpoint commands are always accepted.
	ErrPositionUnknown = errors.New("position unknown, move to an endpoint first")

	// ErrUnsupportedAttribute means the configured tilt mode cannot
	// calibrate or drive the requested attribute.
	ErrUnsupportedAttribute = errors.New("attribute not supported by the configured tilt mode")

	// ErrMissingDuration means a calibration needs a full-range duration
	// that has not been configured or measured yet.
	ErrMissingDuration = errors.New("full-range duration must be configured before this calibration")

	// ErrNoCalibration means stop-calibration was called with no session.
	ErrNoCalibration = errors.New("no calibration session is active")

	// ErrUnknownTiltMode means the configured tilt-mode identifier does not
	// name one of the supported linkage strategies.
	ErrUnknownTiltMode = errors.New("unknown tilt mode")
)
