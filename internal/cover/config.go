package cover

import (
	"fmt"
	"time"
)

// Config holds the timing constants and linkage parameters of one cover.
// Durations come from configuration at boot and are overwritten by
// calibration results as they are measured.
type Config struct {
	// Full-range travel times per direction.
	TravelOpen  time.Duration
	TravelClose time.Duration

	// Full-range tilt times per direction. Required whenever TiltMode is set.
	TiltOpen  time.Duration
	TiltClose time.Duration

	// StartupDelay defers position tracking after a relay command so the
	// estimate never runs ahead of a motor that spins up slowly. The tilt
	// variant applies to a separate tilt motor.
	StartupDelay     time.Duration
	TiltStartupDelay time.Duration

	// EndpointRunOn keeps the relay engaged after an endpoint is reached so
	// the mechanism settles against the physical stop.
	EndpointRunOn time.Duration

	// MinMovement filters out movements whose estimated duration is too
	// short for the motor to execute. Endpoint moves bypass the filter.
	MinMovement time.Duration

	// TiltMode selects the linkage strategy: "sequential", "proportional",
	// "dual_motor" or "inline". Empty means no tilt support.
	TiltMode string

	// Dual-motor parameters: the tilt held while traveling, and the travel
	// position below which tilting is mechanically forbidden.
	SafeTilt        int
	MinTiltPosition int
}

// HasTilt reports whether a tilt axis is configured.
func (c Config) HasTilt() bool {
	return c.TiltMode != ""
}

// Validate checks the constants an orchestrator cannot run without.
func (c Config) Validate() error {
	if c.TravelOpen <= 0 || c.TravelClose <= 0 {
		return fmt.Errorf("travel durations must be positive, got open=%s close=%s", c.TravelOpen, c.TravelClose)
	}
	if c.HasTilt() {
		switch c.TiltMode {
		case TiltModeSequential, TiltModeProportional, TiltModeDualMotor, TiltModeInline:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownTiltMode, c.TiltMode)
		}
		if c.TiltOpen <= 0 || c.TiltClose <= 0 {
			return fmt.Errorf("%w: tilt mode %q needs positive tilt durations, got open=%s close=%s",
				ErrMissingDuration, c.TiltMode, c.TiltOpen, c.TiltClose)
		}
	}
	if c.TiltMode == TiltModeDualMotor {
		if c.SafeTilt < FullyClosed || c.SafeTilt > FullyOpen {
			return fmt.Errorf("safe tilt %d outside [0,100]", c.SafeTilt)
		}
		if c.MinTiltPosition < FullyClosed || c.MinTiltPosition > FullyOpen {
			return fmt.Errorf("min tilt position %d outside [0,100]", c.MinTiltPosition)
		}
	}
	return nil
}
