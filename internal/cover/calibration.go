package cover

import (
	"context"
	"fmt"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/relay"
)

// CalibrationAttribute names a timing constant the engine can measure.
type CalibrationAttribute string

const (
	CalibrateTravelOpen     CalibrationAttribute = "travel_open"
	CalibrateTravelClose    CalibrationAttribute = "travel_close"
	CalibrateTiltOpen       CalibrationAttribute = "tilt_open"
	CalibrateTiltClose      CalibrationAttribute = "tilt_close"
	CalibrateTravelOverhead CalibrationAttribute = "travel_overhead"
	CalibrateTiltOverhead   CalibrationAttribute = "tilt_overhead"
	CalibrateMinMovement    CalibrationAttribute = "min_movement"
)

type calibrationKind int

const (
	calibrationSimple calibrationKind = iota
	calibrationSteppedOverhead
	calibrationIncrementalPulse
)

// Calibration pacing constants. The overhead test steps through a fixed
// fraction of the configured full-range duration: a tenth for travel, a
// fifth for tilt (tilt ranges are short, a tenth would vanish in motor
// inertia).
const (
	defaultCalibrationTimeout = 5 * time.Minute
	calibrationStepPause      = 2 * time.Second
	travelOverheadSteps       = 10
	tiltOverheadSteps         = 5
	pulseTestStart            = 100 * time.Millisecond
	pulseTestIncrement        = 100 * time.Millisecond
)

// calibrationSession is the live state of one calibration run. At most one
// session exists per cover.
type calibrationSession struct {
	attribute  CalibrationAttribute
	kind       calibrationKind
	tiltAxis   bool
	opening    bool
	startedAt  time.Time
	timeout    time.Duration
	configured time.Duration // full-range duration the overhead test divides

	steps       int
	stepWidth   time.Duration
	lastPulse   time.Duration
	pulseEndsAt time.Time

	stepTimer    *time.Timer
	timeoutTimer *time.Timer
}

// StartCalibration begins an automated measurement of the given attribute,
// driving the relays directly and bypassing normal position tracking.
// Duration attributes imply their direction; overhead and minimum-movement
// tests take it from the opening argument. A busy cover reports ErrBusy.
func (c *Cover) StartCalibration(ctx context.Context, attribute CalibrationAttribute, timeout time.Duration, opening bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calib != nil || c.state != StateIdle {
		return ErrBusy
	}

	s := &calibrationSession{
		attribute: attribute,
		opening:   opening,
		timeout:   timeout,
	}
	switch attribute {
	case CalibrateTravelOpen, CalibrateTravelClose:
		s.kind = calibrationSimple
		s.opening = attribute == CalibrateTravelOpen
	case CalibrateTiltOpen, CalibrateTiltClose:
		if err := c.checkTiltCalibration(); err != nil {
			return err
		}
		s.kind = calibrationSimple
		s.tiltAxis = true
		s.opening = attribute == CalibrateTiltOpen
	case CalibrateTravelOverhead:
		s.kind = calibrationSteppedOverhead
		s.configured = c.configuredDuration(false, opening)
		if s.configured <= 0 {
			return ErrMissingDuration
		}
		s.stepWidth = s.configured / travelOverheadSteps
	case CalibrateTiltOverhead:
		if err := c.checkTiltCalibration(); err != nil {
			return err
		}
		s.kind = calibrationSteppedOverhead
		s.tiltAxis = true
		s.configured = c.configuredDuration(true, opening)
		if s.configured <= 0 {
			return ErrMissingDuration
		}
		s.stepWidth = s.configured / tiltOverheadSteps
	case CalibrateMinMovement:
		s.kind = calibrationIncrementalPulse
	default:
		return ErrUnsupportedAttribute
	}
	if s.timeout <= 0 {
		s.timeout = defaultCalibrationTimeout
	}

	c.calib = s
	c.state = StateCalibrating
	s.startedAt = c.now()
	s.timeoutTimer = time.AfterFunc(s.timeout, func() { c.calibrationTimeout(s) })

	switch s.kind {
	case calibrationSimple:
		plan := c.wiring.Travel(s.opening)
		if s.tiltAxis {
			plan = c.wiring.Tilt(s.opening)
		}
		c.echoes.expectPlan(plan)
		if err := relay.Exec(ctx, c.driver, plan); err != nil {
			c.echoes.clear()
			c.teardownCalibrationLocked()
			return fmt.Errorf("relay command failed: %w", err)
		}
	default:
		if err := c.issueCalibrationStepLocked(ctx, s); err != nil {
			c.teardownCalibrationLocked()
			return err
		}
	}
	c.log.Infow("calibration started",
		"attribute", attribute, "timeout", s.timeout, "opening", s.opening)
	c.emitEventLocked("CALIBRATION", fmt.Sprintf("calibration of %s started", attribute))
	c.notifyLocked()
	return nil
}

// StopCalibration ends the active session. With cancel the measurement is
// discarded; otherwise the computed value is applied to the live config and
// handed to the calibration-result collaborator.
func (c *Cover) StopCalibration(ctx context.Context, cancel bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCalibrationLocked(ctx, cancel)
}

func (c *Cover) stopCalibrationLocked(ctx context.Context, cancel bool) error {
	s := c.calib
	if s == nil {
		return ErrNoCalibration
	}
	elapsed := c.now().Sub(s.startedAt)
	c.haltCalibrationRelayLocked(ctx, s)
	c.teardownCalibrationLocked()

	if cancel {
		c.log.Infow("calibration cancelled", "attribute", s.attribute)
		c.emitEventLocked("CALIBRATION", fmt.Sprintf("calibration of %s cancelled", s.attribute))
		c.notifyLocked()
		return nil
	}

	var value time.Duration
	switch s.kind {
	case calibrationSimple:
		value = elapsed
		c.snapshotEndpointLocked(s)
	case calibrationSteppedOverhead:
		if s.steps == 0 {
			return fmt.Errorf("overhead calibration stopped before any step ran")
		}
		value = s.stepWidth - s.configured/time.Duration(s.steps)
		if value < 0 {
			value = 0
		}
		c.snapshotEndpointLocked(s)
	case calibrationIncrementalPulse:
		if s.steps == 0 {
			return fmt.Errorf("pulse calibration stopped before any pulse ran")
		}
		value = s.lastPulse
	}

	c.applyTimingLocked(s.attribute, value)
	if c.onCalibrated != nil {
		c.onCalibrated(s.attribute, value, c.cfg)
	}
	c.log.Infow("calibration finished",
		"attribute", s.attribute, "value", value, "steps", s.steps)
	c.emitEventLocked("CALIBRATION",
		fmt.Sprintf("calibration of %s measured %s", s.attribute, value))
	c.notifyLocked()
	return nil
}

// issueCalibrationStepLocked fires the next pulse of a stepped or
// incremental test and schedules the one after it.
func (c *Cover) issueCalibrationStepLocked(ctx context.Context, s *calibrationSession) error {
	width := s.stepWidth
	if s.kind == calibrationIncrementalPulse {
		width = pulseTestStart + time.Duration(s.steps)*pulseTestIncrement
	}
	s.steps++
	s.lastPulse = width
	s.pulseEndsAt = c.now().Add(width)

	plan := c.wiring.PulsedTravel(s.opening, width)
	if s.tiltAxis {
		plan = c.wiring.PulsedTilt(s.opening, width)
	}
	c.echoes.expectPlan(plan)
	if err := relay.Exec(ctx, c.driver, plan); err != nil {
		c.echoes.clear()
		return fmt.Errorf("relay command failed: %w", err)
	}

	s.stepTimer = time.AfterFunc(width+calibrationStepPause, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.calib != s {
			return
		}
		if err := c.issueCalibrationStepLocked(context.Background(), s); err != nil {
			c.log.Errorw("calibration step failed", "attribute", s.attribute, "err", err)
			c.haltCalibrationRelayLocked(context.Background(), s)
			c.teardownCalibrationLocked()
			c.notifyLocked()
		}
	})
	c.notifyLocked()
	return nil
}

// calibrationTimeout discards an overrunning session. The relay is stopped
// and the outcome surfaced as a warning; it is never dropped silently.
func (c *Cover) calibrationTimeout(s *calibrationSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calib != s {
		return
	}
	c.haltCalibrationRelayLocked(context.Background(), s)
	c.teardownCalibrationLocked()
	c.log.Warnw("calibration timed out, result discarded",
		"attribute", s.attribute, "timeout", s.timeout, "steps", s.steps)
	c.emitEventLocked("CALIBRATION_TIMEOUT",
		fmt.Sprintf("calibration of %s exceeded its %s timeout", s.attribute, s.timeout))
	c.notifyLocked()
}

// haltCalibrationRelayLocked stops whatever the session is driving. Pulsed
// tests only need a stop while a pulse is still in flight; in toggle wiring
// an extra stop pulse on an idle motor would start a movement.
func (c *Cover) haltCalibrationRelayLocked(ctx context.Context, s *calibrationSession) {
	if s.kind != calibrationSimple && !c.now().Before(s.pulseEndsAt) {
		return
	}
	plan := c.wiring.StopTravel(s.opening)
	if s.tiltAxis {
		plan = c.wiring.StopTilt(s.opening)
	}
	c.echoes.expectPlan(plan)
	if err := relay.Exec(ctx, c.driver, plan); err != nil {
		c.echoes.clear()
		c.log.Errorw("relay stop failed", "err", err)
	}
}

func (c *Cover) teardownCalibrationLocked() {
	s := c.calib
	if s == nil {
		return
	}
	if s.stepTimer != nil {
		s.stepTimer.Stop()
	}
	if s.timeoutTimer != nil {
		s.timeoutTimer.Stop()
	}
	c.calib = nil
	c.state = StateIdle
}

// snapshotEndpointLocked pins the driven axis to the endpoint the test ran
// into. Full-range tests end with the user confirming the mechanical limit,
// which is the one moment a sensorless cover knows exactly where it is.
func (c *Cover) snapshotEndpointLocked(s *calibrationSession) {
	endpoint := FullyClosed
	if s.opening {
		endpoint = FullyOpen
	}
	axis := c.travel
	if s.tiltAxis {
		axis = c.tilt
	}
	_ = axis.SetPosition(endpoint)
}

// checkTiltCalibration gates tilt attributes on the linkage actually
// supporting independent tilt measurement.
func (c *Cover) checkTiltCalibration() error {
	if !c.cfg.HasTilt() || !c.strategy.CalibratesTiltIndependently() {
		return ErrUnsupportedAttribute
	}
	return nil
}

func (c *Cover) configuredDuration(tiltAxis, opening bool) time.Duration {
	if tiltAxis {
		if opening {
			return c.cfg.TiltOpen
		}
		return c.cfg.TiltClose
	}
	if opening {
		return c.cfg.TravelOpen
	}
	return c.cfg.TravelClose
}

// ApplyTiming installs a measured timing constant into the live
// configuration and the affected axis calculator.
func (c *Cover) ApplyTiming(attribute CalibrationAttribute, value time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyTimingLocked(attribute, value)
}

func (c *Cover) applyTimingLocked(attribute CalibrationAttribute, value time.Duration) error {
	switch attribute {
	case CalibrateTravelOpen:
		c.cfg.TravelOpen = value
		c.travel.SetDurations(c.cfg.TravelOpen, c.cfg.TravelClose)
	case CalibrateTravelClose:
		c.cfg.TravelClose = value
		c.travel.SetDurations(c.cfg.TravelOpen, c.cfg.TravelClose)
	case CalibrateTiltOpen:
		c.cfg.TiltOpen = value
		c.tilt.SetDurations(c.cfg.TiltOpen, c.cfg.TiltClose)
	case CalibrateTiltClose:
		c.cfg.TiltClose = value
		c.tilt.SetDurations(c.cfg.TiltOpen, c.cfg.TiltClose)
	case CalibrateTravelOverhead:
		c.cfg.StartupDelay = value
	case CalibrateTiltOverhead:
		c.cfg.TiltStartupDelay = value
	case CalibrateMinMovement:
		c.cfg.MinMovement = value
	default:
		return ErrUnsupportedAttribute
	}
	return nil
}
