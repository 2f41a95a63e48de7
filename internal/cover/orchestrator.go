package cover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/logger"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/relay"
)

// State of the movement orchestrator.
type State int

const (
	StateIdle State = iota
	StatePreStep
	StateMainTravel
	StateTiltRestore
	StateCalibrating
)

func (s State) String() string {
	switch s {
	case StatePreStep:
		return "pre_step_active"
	case StateMainTravel:
		return "main_travel_active"
	case StateTiltRestore:
		return "tilt_restore_active"
	case StateCalibrating:
		return "calibrating"
	default:
		return "idle"
	}
}

// Snapshot is the observable state of a cover at one instant.
type Snapshot struct {
	Position             int       `json:"position"`
	Tilt                 int       `json:"tilt"`
	Opening              bool      `json:"opening"`
	Closing              bool      `json:"closing"`
	State                string    `json:"state"`
	Calibrating          bool      `json:"calibrating"`
	CalibrationAttribute string    `json:"calibration_attribute,omitempty"`
	CalibrationStep      int       `json:"calibration_step,omitempty"`
	At                   time.Time `json:"at"`
}

// Options wires a Cover to its collaborators. All callbacks run with the
// cover's lock held and must not call back into the Cover. OnChange is
// invoked with a fresh snapshot after every observable transition.
// OnCalibrated receives successful calibration results together with the
// updated timing configuration, so persisting it needs no re-entry.
// OnEvent receives noteworthy happenings (external commands, timeouts) for
// the host's event log.
type Options struct {
	Config       Config
	Wiring       relay.Wiring
	Driver       relay.Driver
	Log          *logger.Logger
	OnChange     func(Snapshot)
	OnCalibrated func(attribute CalibrationAttribute, value time.Duration, cfg Config)
	OnEvent      func(kind, message string)
}

// Cover turns high-level intents (open, close, set position, set tilt) into
// timed relay commands using two axis calculators and the linkage strategy.
// All state is per instance; distinct covers share nothing.
//
// A single mutex serializes commands, the poll tick and every timer
// callback, which gives each cover the run-to-completion semantics the
// estimators rely on.
type Cover struct {
	mu sync.Mutex

	cfg      Config
	wiring   relay.Wiring
	driver   relay.Driver
	travel   *Axis
	tilt     *Axis
	strategy Strategy
	echoes   *echoLedger
	log      *logger.Logger
	now      func() time.Time

	state       State
	queue       []Step
	restoreTilt int

	pendingStart *Step
	startupTimer *time.Timer
	runOnTimer   *time.Timer
	runOnGen     int

	lastTravelOpening bool
	lastTiltOpening   bool
	travelEngaged     bool
	tiltEngaged       bool

	calib *calibrationSession

	onChange     func(Snapshot)
	onCalibrated func(CalibrationAttribute, time.Duration, Config)
	onEvent      func(kind, message string)
}

// New builds a Cover from its configuration and collaborators.
func New(opts Options) (*Cover, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	strategy, err := NewStrategy(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Driver == nil {
		return nil, fmt.Errorf("relay driver is required")
	}
	log := opts.Log
	if log == nil {
		log = logger.Get(logger.InfoLevel)
	}
	wiring := opts.Wiring
	wiring.SeparateTilt = strategy.SeparateTiltMotor()

	c := &Cover{
		cfg:          opts.Config,
		wiring:       wiring,
		driver:       opts.Driver,
		travel:       NewAxis(opts.Config.TravelOpen, opts.Config.TravelClose),
		tilt:         NewAxis(opts.Config.TiltOpen, opts.Config.TiltClose),
		strategy:     strategy,
		log:          log,
		now:          time.Now,
		restoreTilt:  NoCoupling,
		onChange:     opts.OnChange,
		onCalibrated: opts.OnCalibrated,
		onEvent:      opts.OnEvent,
	}
	c.echoes = newEchoLedger(&c.mu)
	opts.Driver.Subscribe(c.handleRelayEvent)
	return c, nil
}

// Run drives the periodic poll tick until ctx is canceled. Step completion,
// endpoint detection and multi-phase sequencing all ride on this tick.
func (c *Cover) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.pollTick(ctx)
		}
	}
}

// Open drives the cover fully open.
func (c *Cover) Open(ctx context.Context) error {
	return c.MoveToPosition(ctx, FullyOpen)
}

// Close drives the cover fully closed.
func (c *Cover) Close(ctx context.Context) error {
	return c.MoveToPosition(ctx, FullyClosed)
}

// Stop halts any movement, freezes both estimators and snaps the tilt
// estimate to what the mechanism can physically hold. An active calibration
// session is cancelled.
func (c *Cover) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calib != nil {
		return c.stopCalibrationLocked(ctx, true)
	}
	c.haltLocked(ctx, false)
	return nil
}

// MoveToPosition plans and starts a travel move. An endpoint command with an
// unknown position assumes the opposite endpoint; an endpoint command that
// appears already satisfied is still issued as a resync so physical drift
// can be corrected. Mid-range moves shorter than the minimum movement time
// are dropped without touching the relays.
func (c *Cover) MoveToPosition(ctx context.Context, target int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target < FullyClosed || target > FullyOpen {
		return ErrTargetOutOfRange
	}
	if c.calib != nil {
		return ErrBusy
	}
	endpoint := isEndpoint(target)
	position := c.travel.CurrentPosition()
	if position == PositionUnknown {
		if !endpoint {
			return ErrPositionUnknown
		}
		position = oppositeEndpoint(target)
	}
	if !endpoint {
		if est := c.travel.estimateTravelTime(position, target); est < c.cfg.MinMovement {
			c.log.Debugw("movement below minimum threshold, ignored",
				"target", target, "estimated", est, "minimum", c.cfg.MinMovement)
			return nil
		}
	}
	if c.state != StateIdle {
		c.haltLocked(ctx, false)
	}
	tilt := c.tilt.CurrentPosition()
	plan := c.strategy.PlanMovePosition(target, position, tilt)
	if len(plan) == 0 {
		return nil
	}
	c.restoreTilt = NoCoupling
	if c.strategy.RestoresTiltAfterMove() && !endpoint && tilt != PositionUnknown {
		c.restoreTilt = tilt
	}
	c.queue = plan
	c.state = StateMainTravel
	if len(plan) > 1 {
		c.state = StatePreStep
	}
	return c.startStepLocked(ctx, false)
}

// MoveToTilt plans and starts a tilt move, honoring the strategy's pre-step
// requirements (e.g. traveling above the dual-motor boundary first).
func (c *Cover) MoveToTilt(ctx context.Context, target int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.HasTilt() {
		return ErrUnsupportedAttribute
	}
	if target < FullyClosed || target > FullyOpen {
		return ErrTargetOutOfRange
	}
	if c.calib != nil {
		return ErrBusy
	}
	endpoint := isEndpoint(target)
	tilt := c.tilt.CurrentPosition()
	if tilt == PositionUnknown && !endpoint {
		return ErrPositionUnknown
	}
	if !endpoint && tilt != PositionUnknown {
		if est := c.tilt.estimateTravelTime(tilt, target); est < c.cfg.MinMovement {
			c.log.Debugw("tilt movement below minimum threshold, ignored",
				"target", target, "estimated", est, "minimum", c.cfg.MinMovement)
			return nil
		}
	}
	if c.state != StateIdle {
		c.haltLocked(ctx, false)
	}
	plan := c.strategy.PlanMoveTilt(target, c.travel.CurrentPosition(), tilt)
	if len(plan) == 0 {
		return ErrUnsupportedAttribute
	}
	c.restoreTilt = NoCoupling
	c.queue = plan
	c.state = StateMainTravel
	if len(plan) > 1 {
		c.state = StatePreStep
	}
	return c.startStepLocked(ctx, false)
}

// SetKnownPosition overwrites the stored estimates without any motion, e.g.
// after the user aligned the cover by eye. Pass -1 to leave an axis alone.
func (c *Cover) SetKnownPosition(position, tilt int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrBusy
	}
	if position != NoCoupling {
		if err := c.travel.SetPosition(position); err != nil {
			return err
		}
	}
	if tilt != NoCoupling {
		if err := c.tilt.SetPosition(tilt); err != nil {
			return err
		}
	}
	c.notifyLocked()
	return nil
}

// Snapshot returns the observable state of the cover.
func (c *Cover) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Strategy exposes the active linkage strategy.
func (c *Cover) Strategy() Strategy {
	return c.strategy
}

// Config returns a copy of the live timing configuration.
func (c *Cover) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Cover) snapshotLocked() Snapshot {
	d := c.travel.Direction()
	if d == DirectionIdle {
		d = c.tilt.Direction()
	}
	snap := Snapshot{
		Position: c.travel.CurrentPosition(),
		Tilt:     c.tilt.CurrentPosition(),
		Opening:  d == DirectionOpening,
		Closing:  d == DirectionClosing,
		State:    c.state.String(),
		At:       c.now(),
	}
	if c.calib != nil {
		snap.Calibrating = true
		snap.CalibrationAttribute = string(c.calib.attribute)
		snap.CalibrationStep = c.calib.steps
	}
	return snap
}

func (c *Cover) notifyLocked() {
	if c.onChange != nil {
		c.onChange(c.snapshotLocked())
	}
}

func (c *Cover) emitEventLocked(kind, message string) {
	if c.onEvent != nil {
		c.onEvent(kind, message)
	}
}

// axesFor returns the axis a step drives and the other axis.
func (c *Cover) axesFor(kind StepKind) (*Axis, *Axis) {
	if kind == StepTilt {
		return c.tilt, c.travel
	}
	return c.travel, c.tilt
}

// stepUsesTiltMotor reports whether the step drives the dedicated tilt
// motor. Without a separate tilt motor every step drives the travel motor.
func (c *Cover) stepUsesTiltMotor(s Step) bool {
	return s.Kind == StepTilt && c.strategy.SeparateTiltMotor()
}

func (c *Cover) stepDirection(s Step) bool {
	axis, _ := c.axesFor(s.Kind)
	from := axis.CurrentPosition()
	if from == PositionUnknown {
		from = oppositeEndpoint(s.Target)
	}
	if s.Target == from {
		return s.Target == FullyOpen
	}
	return s.Target > from
}

// startStepLocked issues the relay commands for the head of the queue and
// arms the startup-delay compensation. With continueMotor the previous step
// finished on the same motor running in the same direction, so the relay is
// left alone and tracking starts immediately.
func (c *Cover) startStepLocked(ctx context.Context, continueMotor bool) error {
	s := &c.queue[0]
	axis, other := c.axesFor(s.Kind)
	opening := c.stepDirection(*s)
	tiltMotor := c.stepUsesTiltMotor(*s)

	if !continueMotor {
		var ops relay.Plan
		if tiltMotor {
			if c.tiltEngaged {
				ops = append(ops, c.wiring.StopTilt(c.lastTiltOpening)...)
			}
			ops = append(ops, c.wiring.Tilt(opening)...)
		} else {
			if c.travelEngaged {
				ops = append(ops, c.wiring.StopTravel(c.lastTravelOpening)...)
			}
			ops = append(ops, c.wiring.Travel(opening)...)
		}
		c.echoes.expectPlan(ops)
		if err := relay.Exec(ctx, c.driver, ops); err != nil {
			c.echoes.clear()
			c.abortLocked()
			return fmt.Errorf("relay command failed: %w", err)
		}
	}
	if tiltMotor {
		c.tiltEngaged = true
		c.lastTiltOpening = opening
	} else {
		c.travelEngaged = true
		c.lastTravelOpening = opening
	}

	start := func() {
		_ = axis.StartTravelForced(s.Target)
		if s.Coupled != NoCoupling {
			_ = other.StartTravelForced(s.Coupled)
		}
	}
	delay := c.cfg.StartupDelay
	if tiltMotor {
		delay = c.cfg.TiltStartupDelay
	}
	if continueMotor || delay <= 0 {
		start()
	} else {
		c.pendingStart = s
		c.startupTimer = time.AfterFunc(delay, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.pendingStart != s {
				return
			}
			c.pendingStart = nil
			c.startupTimer = nil
			start()
		})
	}
	c.notifyLocked()
	return nil
}

// pollTick advances the state machine: detects step completion, chains the
// next step, schedules endpoint run-on and the tilt restore.
func (c *Cover) pollTick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatePreStep, StateMainTravel, StateTiltRestore:
	default:
		return
	}
	if len(c.queue) == 0 || c.pendingStart != nil || c.runOnTimer != nil {
		return
	}
	axis, _ := c.axesFor(c.queue[0].Kind)
	if axis.PositionReached() {
		c.completeStepLocked(ctx)
	}
}

func (c *Cover) completeStepLocked(ctx context.Context) {
	s := c.queue[0]
	axis, other := c.axesFor(s.Kind)

	if len(c.queue) > 1 {
		next := c.queue[1]
		continueMotor := c.stepUsesTiltMotor(s) == c.stepUsesTiltMotor(next) &&
			c.stepDirection(s) == c.stepDirection(next)
		axis.Stop()
		if s.Coupled != NoCoupling {
			other.Stop()
		}
		c.queue = c.queue[1:]
		if c.state == StatePreStep && len(c.queue) == 1 {
			c.state = StateMainTravel
		}
		if err := c.startStepLocked(ctx, continueMotor); err != nil {
			c.log.Errorw("failed to chain movement step", "err", err)
		}
		return
	}

	// Last step of the plan.
	if c.state != StateTiltRestore && c.restoreTilt != NoCoupling {
		restore := c.restoreTilt
		c.restoreTilt = NoCoupling
		axis.Stop()
		if s.Coupled != NoCoupling {
			other.Stop()
		}
		c.stopMotorsLocked(ctx)
		c.queue = []Step{TiltTo(restore)}
		c.state = StateTiltRestore
		if err := c.startStepLocked(ctx, false); err != nil {
			c.log.Errorw("failed to start tilt restore", "err", err)
		}
		return
	}
	if isEndpoint(s.Target) && c.cfg.EndpointRunOn > 0 {
		c.scheduleRunOnLocked()
		return
	}
	c.haltLocked(ctx, false)
}

// scheduleRunOnLocked keeps the relay engaged for the configured settle
// interval after an endpoint is reached, then stops.
func (c *Cover) scheduleRunOnLocked() {
	gen := c.runOnGen
	c.runOnTimer = time.AfterFunc(c.cfg.EndpointRunOn, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.runOnGen != gen {
			return
		}
		c.runOnTimer = nil
		c.haltLocked(context.Background(), false)
	})
}

// cancelTimersLocked invalidates every outstanding movement timer.
func (c *Cover) cancelTimersLocked() {
	c.pendingStart = nil
	if c.startupTimer != nil {
		c.startupTimer.Stop()
		c.startupTimer = nil
	}
	c.runOnGen++
	if c.runOnTimer != nil {
		c.runOnTimer.Stop()
		c.runOnTimer = nil
	}
}

// stopMotorsLocked issues stop commands for every motor we believe to be
// engaged. A trailing pulse is given time to register so a follow-up command
// on the same channels is never concurrent with it.
func (c *Cover) stopMotorsLocked(ctx context.Context) {
	var ops relay.Plan
	if c.travelEngaged {
		ops = append(ops, c.wiring.StopTravel(c.lastTravelOpening)...)
	}
	if c.tiltEngaged && c.strategy.SeparateTiltMotor() {
		ops = append(ops, c.wiring.StopTilt(c.lastTiltOpening)...)
	}
	c.travelEngaged = false
	c.tiltEngaged = false
	if len(ops) == 0 {
		return
	}
	c.echoes.expectPlan(ops)
	if err := relay.Exec(ctx, c.driver, ops); err != nil {
		c.log.Errorw("relay stop failed", "err", err)
		return
	}
	if last := ops[len(ops)-1]; last.Kind == relay.OpPulse {
		time.Sleep(last.Hold)
	}
}

// haltLocked is the single stop path: cancels timers, freezes both
// estimators, snaps the tilt estimate, and issues the stop primitive unless
// the stop was caused by a detected external event (the physical relay
// already stopped in that case).
func (c *Cover) haltLocked(ctx context.Context, external bool) {
	c.cancelTimersLocked()
	wasActive := c.state != StateIdle || c.travel.Traveling() || c.tilt.Traveling()
	c.queue = nil
	c.restoreTilt = NoCoupling
	c.travel.Stop()
	c.tilt.Stop()
	c.strategy.SnapToPhysicalConstraints(c.travel, c.tilt)
	if external {
		c.travelEngaged = false
		c.tiltEngaged = false
	} else {
		c.stopMotorsLocked(ctx)
	}
	c.state = StateIdle
	if wasActive {
		c.notifyLocked()
	}
}

// abortLocked tears down an in-flight plan after a driver failure.
func (c *Cover) abortLocked() {
	c.cancelTimersLocked()
	c.queue = nil
	c.restoreTilt = NoCoupling
	c.travel.Stop()
	c.tilt.Stop()
	c.travelEngaged = false
	c.tiltEngaged = false
	c.state = StateIdle
	c.notifyLocked()
}

// handleRelayEvent is the single entry point for relay feedback. Events that
// drain a pending echo credit are our own commands coming back and are
// discarded; everything else is a genuine external command and dispatched
// through the same reversal, startup-delay and run-on logic as internal
// intents.
func (c *Cover) handleRelayEvent(ev relay.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.echoes.consume(ev.Channel) {
		return
	}
	c.dispatchExternalLocked(context.Background(), ev)
}

func (c *Cover) dispatchExternalLocked(ctx context.Context, ev relay.Event) {
	if c.calib != nil {
		c.log.Warnw("external relay event during calibration ignored",
			"channel", ev.Channel, "on", ev.On)
		return
	}
	toggle := c.wiring.Mode == relay.ModeToggle
	if toggle && !ev.On {
		// Off edge of an external pulse carries no intent of its own.
		return
	}
	switch ev.Channel {
	case relay.ChannelStop:
		if ev.On {
			c.externalStopLocked(ctx, ev)
		}
	case relay.ChannelOpen, relay.ChannelClose, relay.ChannelTiltOpen, relay.ChannelTiltClose:
		if toggle && c.state != StateIdle {
			// A repeat pulse on a toggle input stops the movement.
			c.externalStopLocked(ctx, ev)
			return
		}
		if !ev.On {
			// A latching channel dropped: the motor lost its drive signal.
			if c.state != StateIdle {
				c.externalStopLocked(ctx, ev)
			}
			return
		}
		c.externalMoveLocked(ev)
	}
}

func (c *Cover) externalStopLocked(ctx context.Context, ev relay.Event) {
	c.log.Infow("external stop detected", "channel", ev.Channel)
	c.emitEventLocked("EXTERNAL", fmt.Sprintf("external stop via channel %s", ev.Channel))
	c.haltLocked(ctx, true)
}

// externalMoveLocked starts tracking a movement somebody else initiated. The
// motor is already running, so no relay command is issued; startup-delay
// compensation and endpoint run-on apply exactly as for internal commands.
func (c *Cover) externalMoveLocked(ev relay.Event) {
	opening := ev.Channel == relay.ChannelOpen || ev.Channel == relay.ChannelTiltOpen
	isTilt := ev.Channel == relay.ChannelTiltOpen || ev.Channel == relay.ChannelTiltClose
	c.log.Infow("external command detected", "channel", ev.Channel, "opening", opening)
	c.emitEventLocked("EXTERNAL", fmt.Sprintf("external command via channel %s", ev.Channel))

	c.haltLocked(context.Background(), true)

	target := FullyClosed
	if opening {
		target = FullyOpen
	}
	step := TravelTo(target)
	axis := c.travel
	delay := c.cfg.StartupDelay
	if isTilt {
		step = TiltTo(target)
		axis = c.tilt
		delay = c.cfg.TiltStartupDelay
		c.tiltEngaged = true
		c.lastTiltOpening = opening
	} else {
		c.travelEngaged = true
		c.lastTravelOpening = opening
	}
	c.queue = []Step{step}
	c.state = StateMainTravel

	if delay <= 0 {
		_ = axis.StartTravelForced(target)
	} else {
		s := &c.queue[0]
		c.pendingStart = s
		c.startupTimer = time.AfterFunc(delay, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.pendingStart != s {
				return
			}
			c.pendingStart = nil
			c.startupTimer = nil
			_ = axis.StartTravelForced(target)
		})
	}
	c.notifyLocked()
}

func isEndpoint(p int) bool {
	return p == FullyClosed || p == FullyOpen
}
