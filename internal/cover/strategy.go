package cover

// Tilt-mode identifiers, one per supported linkage.
const (
	TiltModeSequential   = "sequential"
	TiltModeProportional = "proportional"
	TiltModeDualMotor    = "dual_motor"
	TiltModeInline       = "inline"
)

// StepKind names the axis a movement step drives.
type StepKind int

const (
	StepTravel StepKind = iota
	StepTilt
)

// NoCoupling marks a step without a coupled target on the other axis.
const NoCoupling = -1

// Step is one phase of a planned movement: drive one axis to Target,
// optionally dragging the other axis to Coupled in lockstep.
type Step struct {
	Kind    StepKind
	Target  int
	Coupled int
}

// TravelTo and TiltTo build uncoupled steps.
func TravelTo(target int) Step { return Step{Kind: StepTravel, Target: target, Coupled: NoCoupling} }
func TiltTo(target int) Step   { return Step{Kind: StepTilt, Target: target, Coupled: NoCoupling} }

// Strategy plans how the travel and tilt axes are sequenced for one physical
// linkage type. Strategies are pure planners: the orchestrator owns timing,
// relays and state. Separating the two lets new linkages be added without
// touching command logic.
type Strategy interface {
	Name() string

	// SeparateTiltMotor reports whether tilt has its own motor and relays.
	SeparateTiltMotor() bool

	// RestoresTiltAfterMove reports whether a mid-range travel move should
	// be followed by restoring the pre-move tilt.
	RestoresTiltAfterMove() bool

	// CalibratesTiltIndependently reports whether tilt durations can be
	// measured on their own, without deriving them from travel.
	CalibratesTiltIndependently() bool

	// PlanMovePosition plans a move of the travel axis to target given the
	// current positions of both axes.
	PlanMovePosition(target, position, tilt int) []Step

	// PlanMoveTilt plans a move of the tilt axis to target.
	PlanMoveTilt(target, position, tilt int) []Step

	// SnapToPhysicalConstraints corrects the tilt estimate after every stop
	// to a value the mechanism can actually hold at the current position.
	SnapToPhysicalConstraints(travel, tilt *Axis)
}

// NewStrategy picks the strategy for the configured tilt mode. A config
// without tilt gets the no-op strategy.
func NewStrategy(cfg Config) (Strategy, error) {
	switch cfg.TiltMode {
	case "":
		return noTiltStrategy{}, nil
	case TiltModeSequential:
		return sequentialStrategy{}, nil
	case TiltModeProportional:
		return proportionalStrategy{}, nil
	case TiltModeDualMotor:
		return dualMotorStrategy{safeTilt: cfg.SafeTilt, minTiltPosition: cfg.MinTiltPosition}, nil
	case TiltModeInline:
		return inlineStrategy{}, nil
	default:
		return nil, ErrUnknownTiltMode
	}
}

// noTiltStrategy handles covers without a tilt axis: plain travel plans,
// tilt requests are unsupported.
type noTiltStrategy struct{}

func (noTiltStrategy) Name() string                         { return "none" }
func (noTiltStrategy) SeparateTiltMotor() bool              { return false }
func (noTiltStrategy) RestoresTiltAfterMove() bool          { return false }
func (noTiltStrategy) CalibratesTiltIndependently() bool    { return false }
func (noTiltStrategy) SnapToPhysicalConstraints(_, _ *Axis) {}

func (noTiltStrategy) PlanMovePosition(target, _, _ int) []Step {
	return []Step{TravelTo(target)}
}

func (noTiltStrategy) PlanMoveTilt(_, _, _ int) []Step {
	return nil
}

// sequentialStrategy models a shared motor where slats only tilt while the
// cover sits at the closed endpoint: travel requires flattening first, tilt
// requires closing first.
type sequentialStrategy struct{}

func (sequentialStrategy) Name() string                      { return TiltModeSequential }
func (sequentialStrategy) SeparateTiltMotor() bool           { return false }
func (sequentialStrategy) RestoresTiltAfterMove() bool       { return false }
func (sequentialStrategy) CalibratesTiltIndependently() bool { return true }

func (sequentialStrategy) PlanMovePosition(target, _, tilt int) []Step {
	if tilt != FullyClosed {
		return []Step{TiltTo(FullyClosed), TravelTo(target)}
	}
	return []Step{TravelTo(target)}
}

func (sequentialStrategy) PlanMoveTilt(target, position, _ int) []Step {
	if position != FullyClosed {
		return []Step{TravelTo(FullyClosed), TiltTo(target)}
	}
	return []Step{TiltTo(target)}
}

func (sequentialStrategy) SnapToPhysicalConstraints(travel, tilt *Axis) {
	// Away from the closed endpoint the linkage forces the slats flat.
	if travel.CurrentPosition() != FullyClosed {
		_ = tilt.SetPosition(FullyClosed)
	}
}

// proportionalStrategy models a geared linkage where tilt is slaved to
// travel: both axes always move together.
type proportionalStrategy struct{}

func (proportionalStrategy) Name() string                      { return TiltModeProportional }
func (proportionalStrategy) SeparateTiltMotor() bool           { return false }
func (proportionalStrategy) RestoresTiltAfterMove() bool       { return false }
func (proportionalStrategy) CalibratesTiltIndependently() bool { return false }

func (proportionalStrategy) PlanMovePosition(target, _, _ int) []Step {
	return []Step{{Kind: StepTravel, Target: target, Coupled: target}}
}

func (proportionalStrategy) PlanMoveTilt(target, _, _ int) []Step {
	return []Step{{Kind: StepTilt, Target: target, Coupled: target}}
}

func (proportionalStrategy) SnapToPhysicalConstraints(travel, tilt *Axis) {
	p := travel.CurrentPosition()
	if p == FullyClosed || p == FullyOpen {
		_ = tilt.SetPosition(p)
	}
}

// dualMotorStrategy models an independent tilt motor with an optional
// boundary below which tilting is mechanically locked out.
type dualMotorStrategy struct {
	safeTilt        int
	minTiltPosition int
}

func (dualMotorStrategy) Name() string                      { return TiltModeDualMotor }
func (dualMotorStrategy) SeparateTiltMotor() bool           { return true }
func (dualMotorStrategy) RestoresTiltAfterMove() bool       { return true }
func (dualMotorStrategy) CalibratesTiltIndependently() bool { return true }

func (s dualMotorStrategy) PlanMovePosition(target, _, tilt int) []Step {
	if tilt != s.safeTilt {
		return []Step{TiltTo(s.safeTilt), TravelTo(target)}
	}
	return []Step{TravelTo(target)}
}

func (s dualMotorStrategy) PlanMoveTilt(target, position, _ int) []Step {
	if position != PositionUnknown && position < s.minTiltPosition {
		return []Step{TravelTo(s.minTiltPosition), TiltTo(target)}
	}
	return []Step{TiltTo(target)}
}

func (s dualMotorStrategy) SnapToPhysicalConstraints(travel, tilt *Axis) {
	p := travel.CurrentPosition()
	if p != PositionUnknown && p < s.minTiltPosition {
		_ = tilt.SetPosition(s.safeTilt)
	}
}

// inlineStrategy models a shared motor where tilt rides on the leading edge
// of travel: the slats swing to the direction's endpoint before the cover
// moves, at any position.
type inlineStrategy struct{}

func (inlineStrategy) Name() string                      { return TiltModeInline }
func (inlineStrategy) SeparateTiltMotor() bool           { return false }
func (inlineStrategy) RestoresTiltAfterMove() bool       { return true }
func (inlineStrategy) CalibratesTiltIndependently() bool { return true }

func (inlineStrategy) PlanMovePosition(target, position, tilt int) []Step {
	edge := FullyClosed
	if position != PositionUnknown && target > position {
		edge = FullyOpen
	}
	if tilt != edge {
		return []Step{TiltTo(edge), TravelTo(target)}
	}
	return []Step{TravelTo(target)}
}

func (inlineStrategy) PlanMoveTilt(target, _, _ int) []Step {
	return []Step{TiltTo(target)}
}

func (inlineStrategy) SnapToPhysicalConstraints(travel, tilt *Axis) {
	p := travel.CurrentPosition()
	if p == FullyClosed || p == FullyOpen {
		_ = tilt.SetPosition(p)
	}
}
