package cover

import (
	"errors"
	"testing"
	"time"
)

func assertSteps(t *testing.T, got, want []Step) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("step count: got %d, want %d (%+v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNewStrategySelection(t *testing.T) {
	cfg := Config{TravelOpen: time.Second, TravelClose: time.Second}

	s, err := NewStrategy(cfg)
	if err != nil {
		t.Fatalf("no-tilt strategy: %v", err)
	}
	if s.Name() != "none" {
		t.Fatalf("name: got %q, want none", s.Name())
	}
	if plan := s.PlanMoveTilt(50, 0, 0); plan != nil {
		t.Fatalf("no-tilt strategy must not plan tilts, got %+v", plan)
	}

	cfg.TiltMode = "sideways"
	if _, err := NewStrategy(cfg); !errors.Is(err, ErrUnknownTiltMode) {
		t.Fatalf("expected ErrUnknownTiltMode, got %v", err)
	}
}

func TestSequentialStrategyPlans(t *testing.T) {
	s := sequentialStrategy{}

	// slats must flatten before the cover can travel
	assertSteps(t, s.PlanMovePosition(80, 20, 40), []Step{TiltTo(FullyClosed), TravelTo(80)})
	assertSteps(t, s.PlanMovePosition(80, 20, FullyClosed), []Step{TravelTo(80)})

	// tilting requires the closed endpoint
	assertSteps(t, s.PlanMoveTilt(60, 30, 0), []Step{TravelTo(FullyClosed), TiltTo(60)})
	assertSteps(t, s.PlanMoveTilt(60, FullyClosed, 0), []Step{TiltTo(60)})
}

func TestSequentialStrategySnap(t *testing.T) {
	s := sequentialStrategy{}
	travel := NewAxis(time.Second, time.Second)
	tilt := NewAxis(time.Second, time.Second)
	_ = travel.SetPosition(40)
	_ = tilt.SetPosition(70)

	s.SnapToPhysicalConstraints(travel, tilt)
	if got := tilt.CurrentPosition(); got != FullyClosed {
		t.Fatalf("away from closed the slats are flat: got %d, want 0", got)
	}

	_ = travel.SetPosition(FullyClosed)
	_ = tilt.SetPosition(70)
	s.SnapToPhysicalConstraints(travel, tilt)
	if got := tilt.CurrentPosition(); got != 70 {
		t.Fatalf("at the closed endpoint tilt holds: got %d, want 70", got)
	}
}

func TestProportionalStrategyCouplesAxes(t *testing.T) {
	s := proportionalStrategy{}

	assertSteps(t, s.PlanMovePosition(70, 10, 10), []Step{{Kind: StepTravel, Target: 70, Coupled: 70}})
	assertSteps(t, s.PlanMoveTilt(30, 10, 10), []Step{{Kind: StepTilt, Target: 30, Coupled: 30}})

	travel := NewAxis(time.Second, time.Second)
	tilt := NewAxis(time.Second, time.Second)
	_ = travel.SetPosition(FullyOpen)
	_ = tilt.SetPosition(40)
	s.SnapToPhysicalConstraints(travel, tilt)
	if got := tilt.CurrentPosition(); got != FullyOpen {
		t.Fatalf("endpoint snap: got %d, want 100", got)
	}

	_ = travel.SetPosition(50)
	_ = tilt.SetPosition(40)
	s.SnapToPhysicalConstraints(travel, tilt)
	if got := tilt.CurrentPosition(); got != 40 {
		t.Fatalf("mid-range keeps the estimate: got %d, want 40", got)
	}
}

func TestDualMotorStrategyPlans(t *testing.T) {
	s := dualMotorStrategy{safeTilt: 50, minTiltPosition: 20}

	if !s.SeparateTiltMotor() || !s.RestoresTiltAfterMove() {
		t.Fatal("dual motor has its own tilt motor and restores tilt")
	}

	// travel pre-tilts to the safe angle
	assertSteps(t, s.PlanMovePosition(80, 30, 10), []Step{TiltTo(50), TravelTo(80)})
	assertSteps(t, s.PlanMovePosition(80, 30, 50), []Step{TravelTo(80)})

	// below the boundary the cover travels up before tilting
	assertSteps(t, s.PlanMoveTilt(70, 10, 50), []Step{TravelTo(20), TiltTo(70)})
	assertSteps(t, s.PlanMoveTilt(70, 60, 50), []Step{TiltTo(70)})
}

func TestDualMotorStrategySnap(t *testing.T) {
	s := dualMotorStrategy{safeTilt: 50, minTiltPosition: 20}
	travel := NewAxis(time.Second, time.Second)
	tilt := NewAxis(time.Second, time.Second)

	_ = travel.SetPosition(10)
	_ = tilt.SetPosition(80)
	s.SnapToPhysicalConstraints(travel, tilt)
	if got := tilt.CurrentPosition(); got != 50 {
		t.Fatalf("below the boundary tilt is forced safe: got %d, want 50", got)
	}

	_ = travel.SetPosition(60)
	_ = tilt.SetPosition(80)
	s.SnapToPhysicalConstraints(travel, tilt)
	if got := tilt.CurrentPosition(); got != 80 {
		t.Fatalf("above the boundary tilt holds: got %d, want 80", got)
	}
}

func TestInlineStrategyPlans(t *testing.T) {
	s := inlineStrategy{}

	// opening swings the slats to the open edge first
	assertSteps(t, s.PlanMovePosition(80, 20, 30), []Step{TiltTo(FullyOpen), TravelTo(80)})
	assertSteps(t, s.PlanMovePosition(80, 20, FullyOpen), []Step{TravelTo(80)})

	// closing swings them to the closed edge
	assertSteps(t, s.PlanMovePosition(10, 60, 30), []Step{TiltTo(FullyClosed), TravelTo(10)})

	// tilt is direct at any position
	assertSteps(t, s.PlanMoveTilt(45, 70, 10), []Step{TiltTo(45)})
}
