// Package relay models the relay outputs that drive a cover motor and plans
// which channel operations a logical movement command translates to for the
// configured wiring mode.
package relay

import (
	"context"
	"time"
)

// Channel names a single relay output line.
type Channel string

const (
	ChannelOpen      Channel = "open"
	ChannelClose     Channel = "close"
	ChannelStop      Channel = "stop"
	ChannelTiltOpen  Channel = "tilt_open"
	ChannelTiltClose Channel = "tilt_close"
)

// OpKind is the primitive applied to a channel.
type OpKind int

const (
	OpOn OpKind = iota
	OpOff
	OpPulse
)

// Op is one channel operation. Hold is the pulse width for OpPulse.
type Op struct {
	Channel Channel
	Kind    OpKind
	Hold    time.Duration
}

// Credits returns the number of state-change events this operation is
// expected to echo back: one for a latching change, two for an
// on-then-off pulse.
func (o Op) Credits() int {
	if o.Kind == OpPulse {
		return 2
	}
	return 1
}

// Plan is an ordered sequence of channel operations.
type Plan []Op

// Credits sums the expected echo events per channel for the whole plan.
func (p Plan) Credits() map[Channel]int {
	out := make(map[Channel]int, len(p))
	for _, op := range p {
		out[op.Channel] += op.Credits()
	}
	return out
}

// Event is a relay state change reported by the driver, whether caused by a
// command we issued or by an external actor (wall switch, other controller).
type Event struct {
	Channel Channel
	On      bool
	At      time.Time
}

// Driver executes relay primitives against the physical board.
// Implementations must dispatch Subscribe callbacks from their own goroutine,
// never from within TurnOn/TurnOff/Pulse.
type Driver interface {
	TurnOn(ctx context.Context, ch Channel) error
	TurnOff(ctx context.Context, ch Channel) error
	Pulse(ctx context.Context, ch Channel, hold time.Duration) error
	Subscribe(fn func(Event))
	Close() error
}

// Mode selects how the relays are wired to the motor controller.
type Mode string

const (
	// ModeSwitch uses latching open/close channels, optionally a stop channel.
	ModeSwitch Mode = "switch"
	// ModeToggle uses pulse inputs where a pulse starts movement and a repeat
	// pulse on the same channel stops it. There is no independent stop signal.
	ModeToggle Mode = "toggle"
)

// Wiring plans channel operations for logical cover actions.
type Wiring struct {
	Mode         Mode
	StopChannel  bool          // switch mode: a dedicated stop input exists
	SeparateTilt bool          // dedicated tilt channels (independent tilt motor)
	PulseWidth   time.Duration // toggle pulse width, also used for the stop input
}

func (w Wiring) travelChannel(opening bool) Channel {
	if opening {
		return ChannelOpen
	}
	return ChannelClose
}

func (w Wiring) tiltChannel(opening bool) Channel {
	if !w.SeparateTilt {
		return w.travelChannel(opening)
	}
	if opening {
		return ChannelTiltOpen
	}
	return ChannelTiltClose
}

// Travel starts the travel motor in the given direction.
func (w Wiring) Travel(opening bool) Plan {
	ch := w.travelChannel(opening)
	if w.Mode == ModeToggle {
		return Plan{{Channel: ch, Kind: OpPulse, Hold: w.PulseWidth}}
	}
	other := w.travelChannel(!opening)
	return Plan{
		{Channel: other, Kind: OpOff},
		{Channel: ch, Kind: OpOn},
	}
}

// StopTravel halts the travel motor. In toggle mode the stop is a repeat
// pulse on the channel that started the movement.
func (w Wiring) StopTravel(wasOpening bool) Plan {
	if w.Mode == ModeToggle {
		return Plan{{Channel: w.travelChannel(wasOpening), Kind: OpPulse, Hold: w.PulseWidth}}
	}
	p := Plan{
		{Channel: ChannelOpen, Kind: OpOff},
		{Channel: ChannelClose, Kind: OpOff},
	}
	if w.StopChannel {
		p = append(p, Op{Channel: ChannelStop, Kind: OpPulse, Hold: w.PulseWidth})
	}
	return p
}

// Tilt starts the tilt motor in the given direction. Without a separate tilt
// motor this is the same as Travel.
func (w Wiring) Tilt(opening bool) Plan {
	if !w.SeparateTilt {
		return w.Travel(opening)
	}
	ch := w.tiltChannel(opening)
	if w.Mode == ModeToggle {
		return Plan{{Channel: ch, Kind: OpPulse, Hold: w.PulseWidth}}
	}
	other := w.tiltChannel(!opening)
	return Plan{
		{Channel: other, Kind: OpOff},
		{Channel: ch, Kind: OpOn},
	}
}

// StopTilt halts the tilt motor.
func (w Wiring) StopTilt(wasOpening bool) Plan {
	if !w.SeparateTilt {
		return w.StopTravel(wasOpening)
	}
	if w.Mode == ModeToggle {
		return Plan{{Channel: w.tiltChannel(wasOpening), Kind: OpPulse, Hold: w.PulseWidth}}
	}
	return Plan{
		{Channel: ChannelTiltOpen, Kind: OpOff},
		{Channel: ChannelTiltClose, Kind: OpOff},
	}
}

// PulsedTravel engages the travel motor for exactly hold. Used by the
// calibration engine for stepped and incremental pulse tests.
func (w Wiring) PulsedTravel(opening bool, hold time.Duration) Plan {
	return Plan{{Channel: w.travelChannel(opening), Kind: OpPulse, Hold: hold}}
}

// PulsedTilt engages the tilt motor for exactly hold.
func (w Wiring) PulsedTilt(opening bool, hold time.Duration) Plan {
	return Plan{{Channel: w.tiltChannel(opening), Kind: OpPulse, Hold: hold}}
}

// Exec issues the plan's operations in order against the driver. Successive
// operations after a pulse are spaced by the pulse width, so a toggle
// reversal is always stop-pulse, wait, new-direction pulse and the two are
// never concurrent.
func Exec(ctx context.Context, d Driver, p Plan) error {
	for i, op := range p {
		var err error
		switch op.Kind {
		case OpOn:
			err = d.TurnOn(ctx, op.Channel)
		case OpOff:
			err = d.TurnOff(ctx, op.Channel)
		case OpPulse:
			err = d.Pulse(ctx, op.Channel, op.Hold)
		}
		if err != nil {
			return err
		}
		if op.Kind == OpPulse && i < len(p)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(op.Hold):
			}
		}
	}
	return nil
}
