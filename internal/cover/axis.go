// Package cover implements time-based position estimation and movement
// orchestration for a motorized cover without position feedback. Positions
// are percentages on both axes: 0 is fully closed, 100 is fully open.
package cover

import (
	"time"
)

// Position bounds and the sentinel for a position that was never learned.
const (
	FullyClosed     = 0
	FullyOpen       = 100
	PositionUnknown = -1
)

// Direction of travel on one axis.
type Direction int

const (
	DirectionIdle Direction = iota
	DirectionOpening
	DirectionClosing
)

func (d Direction) String() string {
	switch d {
	case DirectionOpening:
		return "opening"
	case DirectionClosing:
		return "closing"
	default:
		return "idle"
	}
}

// Axis estimates the position of one movement axis (travel or tilt) purely
// from wall-clock time and the configured full-range durations. The two
// directions may take different times; the estimate always uses the duration
// matching the active direction.
type Axis struct {
	durationOpen  time.Duration
	durationClose time.Duration

	position      int // PositionUnknown until learned
	direction     Direction
	startTime     time.Time
	startPosition int
	target        int

	now func() time.Time
}

// NewAxis returns an idle axis with an unknown position.
func NewAxis(durationOpen, durationClose time.Duration) *Axis {
	return &Axis{
		durationOpen:  durationOpen,
		durationClose: durationClose,
		position:      PositionUnknown,
		direction:     DirectionIdle,
		now:           time.Now,
	}
}

// SetDurations replaces the full-range durations, e.g. after calibration.
func (a *Axis) SetDurations(durationOpen, durationClose time.Duration) {
	a.durationOpen = durationOpen
	a.durationClose = durationClose
}

// Durations returns the configured full-range durations (open, close).
func (a *Axis) Durations() (time.Duration, time.Duration) {
	return a.durationOpen, a.durationClose
}

// SetPosition overwrites the stored position without implying motion. Used
// when restoring persisted state and for calibration snapshots.
func (a *Axis) SetPosition(p int) error {
	if p < FullyClosed || p > FullyOpen {
		return ErrTargetOutOfRange
	}
	a.position = p
	a.direction = DirectionIdle
	return nil
}

// StartTravel begins tracking movement toward target. Starting toward the
// current position is a no-op unless forced via StartTravelForced.
//
// If the position was never learned, an endpoint target assumes the opposite
// endpoint as the implicit start so the full configured duration elapses;
// a mid-range target is rejected because there is no safe start to assume.
func (a *Axis) StartTravel(target int) error {
	return a.startTravel(target, false)
}

// StartTravelForced is StartTravel without the equal-target no-op. A forced
// start toward the current position reports the target reached immediately,
// which lets an endpoint command be re-issued as a resync.
func (a *Axis) StartTravelForced(target int) error {
	return a.startTravel(target, true)
}

func (a *Axis) startTravel(target int, force bool) error {
	if target < FullyClosed || target > FullyOpen {
		return ErrTargetOutOfRange
	}
	start := a.CurrentPosition()
	if start == PositionUnknown {
		switch target {
		case FullyClosed:
			start = FullyOpen
		case FullyOpen:
			start = FullyClosed
		default:
			return ErrPositionUnknown
		}
	}
	if start == target && !force {
		return nil
	}
	a.position = start
	a.startPosition = start
	a.target = target
	a.startTime = a.now()
	if target >= start {
		a.direction = DirectionOpening
	} else {
		a.direction = DirectionClosing
	}
	return nil
}

// Stop freezes the interpolated estimate at this instant. Idempotent: once
// idle, further calls change nothing.
func (a *Axis) Stop() {
	if a.direction == DirectionIdle {
		return
	}
	a.position = a.CurrentPosition()
	a.direction = DirectionIdle
}

// Direction reports the active direction of travel.
func (a *Axis) Direction() Direction {
	return a.direction
}

// Traveling reports whether the axis is being tracked as moving.
func (a *Axis) Traveling() bool {
	return a.direction != DirectionIdle
}

// Target returns the target of the active movement. Only meaningful while
// traveling.
func (a *Axis) Target() int {
	return a.target
}

// CurrentPosition returns the estimated position. While idle this is the
// last stored value (PositionUnknown if never set). While traveling it is
// interpolated from elapsed time against the direction's duration and
// clamped so it never passes the target.
func (a *Axis) CurrentPosition() int {
	if a.direction == DirectionIdle {
		return a.position
	}
	duration := a.travelDuration(a.direction)
	if duration <= 0 {
		return a.startPosition
	}
	elapsed := a.now().Sub(a.startTime)
	if elapsed < 0 {
		elapsed = 0
	}
	delta := int(elapsed * 100 / duration)
	if a.direction == DirectionOpening {
		p := a.startPosition + delta
		if p > a.target {
			p = a.target
		}
		return p
	}
	p := a.startPosition - delta
	if p < a.target {
		p = a.target
	}
	return p
}

// PositionReached reports whether the interpolated estimate has reached the
// target exactly. The clamp in CurrentPosition makes the boundary precise:
// at elapsed == duration the estimate equals the target. Always false while
// idle.
func (a *Axis) PositionReached() bool {
	if a.direction == DirectionIdle {
		return false
	}
	return a.CurrentPosition() == a.target
}

// travelDuration selects the close- or open-duration for the direction. The
// asymmetry is deliberate: covers routinely close faster than they open.
func (a *Axis) travelDuration(d Direction) time.Duration {
	if d == DirectionClosing {
		return a.durationClose
	}
	return a.durationOpen
}

// estimateTravelTime returns how long moving from to target would take.
func (a *Axis) estimateTravelTime(from, target int) time.Duration {
	if from == PositionUnknown {
		from = oppositeEndpoint(target)
	}
	span := target - from
	d := a.durationOpen
	if span < 0 {
		span = -span
		d = a.durationClose
	}
	return d * time.Duration(span) / 100
}

// oppositeEndpoint maps an endpoint to the other one; mid-range targets map
// to the farther endpoint so an unknown start never undershoots.
func oppositeEndpoint(target int) int {
	if target > FullyOpen/2 {
		return FullyClosed
	}
	return FullyOpen
}
