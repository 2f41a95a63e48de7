package cover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/relay"
)

// fakeDriver records every relay primitive and lets tests feed events back.
// A non-nil err makes every primitive fail, simulating a dead relay board.
type fakeDriver struct {
	mu   sync.Mutex
	ops  []relay.Op
	subs []func(relay.Event)
	err  error
}

func (d *fakeDriver) TurnOn(_ context.Context, ch relay.Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ops = append(d.ops, relay.Op{Channel: ch, Kind: relay.OpOn})
	return nil
}

func (d *fakeDriver) TurnOff(_ context.Context, ch relay.Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ops = append(d.ops, relay.Op{Channel: ch, Kind: relay.OpOff})
	return nil
}

func (d *fakeDriver) Pulse(_ context.Context, ch relay.Channel, hold time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ops = append(d.ops, relay.Op{Channel: ch, Kind: relay.OpPulse, Hold: hold})
	return nil
}

func (d *fakeDriver) Subscribe(fn func(relay.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
}

func (d *fakeDriver) Close() error { return nil }

// deliver feeds an event to the cover from the test goroutine, as the real
// drivers do from their reader goroutine.
func (d *fakeDriver) deliver(ch relay.Channel, on bool) {
	d.mu.Lock()
	subs := make([]func(relay.Event), len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()
	for _, fn := range subs {
		fn(relay.Event{Channel: ch, On: on, At: time.Now()})
	}
}

func (d *fakeDriver) recorded() []relay.Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]relay.Op, len(d.ops))
	copy(out, d.ops)
	return out
}

func (d *fakeDriver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = nil
}

func (d *fakeDriver) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func travelOnlyConfig() Config {
	return Config{TravelOpen: 10 * time.Second, TravelClose: 10 * time.Second}
}

func newTestCover(t *testing.T, cfg Config, wiring relay.Wiring) (*Cover, *fakeDriver, *fakeClock) {
	t.Helper()
	d := &fakeDriver{}
	c, err := New(Options{Config: cfg, Wiring: wiring, Driver: d})
	if err != nil {
		t.Fatalf("new cover: %v", err)
	}
	clk := newFakeClock()
	c.now = clk.now
	c.travel.now = clk.now
	c.tilt.now = clk.now
	return c, d, clk
}

func TestMoveToPositionIssuesRelayAndTracks(t *testing.T) {
	ctx := context.Background()
	c, d, clk := newTestCover(t, travelOnlyConfig(), relay.Wiring{Mode: relay.ModeSwitch})
	if err := c.SetKnownPosition(FullyClosed, NoCoupling); err != nil {
		t.Fatalf("pin position: %v", err)
	}

	if err := c.MoveToPosition(ctx, 60); err != nil {
		t.Fatalf("move: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != "main_travel_active" || !snap.Opening {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	ops := d.recorded()
	if len(ops) != 2 || ops[0].Channel != relay.ChannelClose || ops[0].Kind != relay.OpOff ||
		ops[1].Channel != relay.ChannelOpen || ops[1].Kind != relay.OpOn {
		t.Fatalf("unexpected relay ops: %+v", ops)
	}

	// halfway there
	clk.advance(3 * time.Second)
	c.pollTick(ctx)
	if snap := c.Snapshot(); snap.Position != 30 || snap.State != "main_travel_active" {
		t.Fatalf("mid-travel snapshot: %+v", snap)
	}

	// target reached: the cover stops itself
	clk.advance(3 * time.Second)
	c.pollTick(ctx)
	snap = c.Snapshot()
	if snap.State != "idle" || snap.Position != 60 || snap.Opening || snap.Closing {
		t.Fatalf("final snapshot: %+v", snap)
	}
	ops = d.recorded()
	last := ops[len(ops)-2:]
	if last[0].Kind != relay.OpOff || last[1].Kind != relay.OpOff {
		t.Fatalf("expected latching stop, got %+v", last)
	}
}

func TestMinMovementFilter(t *testing.T) {
	ctx := context.Background()
	cfg := travelOnlyConfig()
	cfg.MinMovement = 2 * time.Second
	c, d, _ := newTestCover(t, cfg, relay.Wiring{Mode: relay.ModeSwitch})
	_ = c.SetKnownPosition(50, NoCoupling)

	// two points of travel take 200ms, well under the 2s minimum
	if err := c.MoveToPosition(ctx, 52); err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(d.recorded()) != 0 {
		t.Fatalf("filtered move must not touch relays: %+v", d.recorded())
	}
	if snap := c.Snapshot(); snap.State != "idle" || snap.Position != 50 {
		t.Fatalf("filtered move changed state: %+v", snap)
	}

	// endpoint commands bypass the filter no matter how close
	cfg.MinMovement = time.Hour
	c2, d2, _ := newTestCover(t, cfg, relay.Wiring{Mode: relay.ModeSwitch})
	_ = c2.SetKnownPosition(1, NoCoupling)
	if err := c2.MoveToPosition(ctx, FullyClosed); err != nil {
		t.Fatalf("endpoint move: %v", err)
	}
	if len(d2.recorded()) == 0 {
		t.Fatal("endpoint move must reach the relays")
	}
}

func TestEndpointResync(t *testing.T) {
	ctx := context.Background()
	c, d, _ := newTestCover(t, travelOnlyConfig(), relay.Wiring{Mode: relay.ModeSwitch})
	_ = c.SetKnownPosition(FullyOpen, NoCoupling)

	// already fully open by our estimate, but the command is issued anyway
	// so physical drift gets squeezed out at the mechanical stop
	if err := c.MoveToPosition(ctx, FullyOpen); err != nil {
		t.Fatalf("resync move: %v", err)
	}
	if len(d.recorded()) == 0 {
		t.Fatal("resync must issue relay commands")
	}
	c.pollTick(ctx)
	if snap := c.Snapshot(); snap.State != "idle" || snap.Position != FullyOpen {
		t.Fatalf("after resync: %+v", snap)
	}
}

func TestUnknownPositionRules(t *testing.T) {
	ctx := context.Background()
	c, _, clk := newTestCover(t, travelOnlyConfig(), relay.Wiring{Mode: relay.ModeSwitch})

	if err := c.MoveToPosition(ctx, 50); !errors.Is(err, ErrPositionUnknown) {
		t.Fatalf("mid-range with unknown position: got %v", err)
	}

	// an endpoint move assumes the opposite endpoint and relearns position
	if err := c.MoveToPosition(ctx, FullyOpen); err != nil {
		t.Fatalf("endpoint move: %v", err)
	}
	clk.advance(10 * time.Second)
	c.pollTick(ctx)
	if snap := c.Snapshot(); snap.Position != FullyOpen || snap.State != "idle" {
		t.Fatalf("after full open: %+v", snap)
	}
}

func TestEchoSuppressionAndExternalStop(t *testing.T) {
	ctx := context.Background()
	events := make([]string, 0, 4)
	d := &fakeDriver{}
	c, err := New(Options{
		Config:  travelOnlyConfig(),
		Wiring:  relay.Wiring{Mode: relay.ModeSwitch},
		Driver:  d,
		OnEvent: func(kind, _ string) { events = append(events, kind) },
	})
	if err != nil {
		t.Fatalf("new cover: %v", err)
	}
	clk := newFakeClock()
	c.now = clk.now
	c.travel.now = clk.now
	c.tilt.now = clk.now
	_ = c.SetKnownPosition(FullyClosed, NoCoupling)

	if err := c.MoveToPosition(ctx, FullyOpen); err != nil {
		t.Fatalf("move: %v", err)
	}

	// the board reports both writes back; neither is an external command
	d.deliver(relay.ChannelClose, false)
	d.deliver(relay.ChannelOpen, true)
	if snap := c.Snapshot(); snap.State != "main_travel_active" {
		t.Fatalf("echoes must not disturb the movement: %+v", snap)
	}
	if len(events) != 0 {
		t.Fatalf("echoes logged as events: %v", events)
	}

	// the open channel drops without a command from us: somebody cut the
	// drive signal, the estimate freezes where it is
	clk.advance(5 * time.Second)
	d.deliver(relay.ChannelOpen, false)
	snap := c.Snapshot()
	if snap.State != "idle" || snap.Position != 50 {
		t.Fatalf("after external stop: %+v", snap)
	}
	if len(events) != 1 || events[0] != "EXTERNAL" {
		t.Fatalf("expected one EXTERNAL event, got %v", events)
	}
}

func TestExternalCommandTracked(t *testing.T) {
	ctx := context.Background()
	c, d, clk := newTestCover(t, travelOnlyConfig(), relay.Wiring{Mode: relay.ModeSwitch})
	_ = c.SetKnownPosition(FullyClosed, NoCoupling)

	// a wall switch latches the open channel on
	d.deliver(relay.ChannelOpen, true)
	snap := c.Snapshot()
	if snap.State != "main_travel_active" || !snap.Opening {
		t.Fatalf("external command not tracked: %+v", snap)
	}

	clk.advance(10 * time.Second)
	c.pollTick(ctx)
	if snap := c.Snapshot(); snap.Position != FullyOpen || snap.State != "idle" {
		t.Fatalf("after external open: %+v", snap)
	}
}

func TestToggleRepeatPulseStops(t *testing.T) {
	ctx := context.Background()
	c, d, clk := newTestCover(t, travelOnlyConfig(),
		relay.Wiring{Mode: relay.ModeToggle, PulseWidth: 10 * time.Millisecond})
	_ = c.SetKnownPosition(FullyClosed, NoCoupling)

	if err := c.MoveToPosition(ctx, FullyOpen); err != nil {
		t.Fatalf("move: %v", err)
	}
	ops := d.recorded()
	if len(ops) != 1 || ops[0].Kind != relay.OpPulse || ops[0].Channel != relay.ChannelOpen {
		t.Fatalf("toggle start: %+v", ops)
	}

	// drain the echo of our own pulse (on edge, then off edge)
	d.deliver(relay.ChannelOpen, true)
	d.deliver(relay.ChannelOpen, false)

	// a second physical pulse on the same input means stop
	clk.advance(4 * time.Second)
	d.deliver(relay.ChannelOpen, true)
	snap := c.Snapshot()
	if snap.State != "idle" || snap.Position != 40 {
		t.Fatalf("after repeat pulse: %+v", snap)
	}
}

func TestTiltRestoreAfterTravel(t *testing.T) {
	ctx := context.Background()
	cfg := travelOnlyConfig()
	cfg.TiltMode = TiltModeInline
	cfg.TiltOpen = 2 * time.Second
	cfg.TiltClose = 2 * time.Second
	c, _, clk := newTestCover(t, cfg, relay.Wiring{Mode: relay.ModeSwitch})
	_ = c.SetKnownPosition(50, 50)

	if err := c.MoveToPosition(ctx, 80); err != nil {
		t.Fatalf("move: %v", err)
	}
	if snap := c.Snapshot(); snap.State != "pre_step_active" {
		t.Fatalf("expected tilt pre-step: %+v", snap)
	}

	// tilt 50 -> 100 takes a second
	clk.advance(time.Second)
	c.pollTick(ctx)
	if snap := c.Snapshot(); snap.State != "main_travel_active" {
		t.Fatalf("expected main travel: %+v", snap)
	}

	// travel 50 -> 80 takes three seconds, then the pre-move tilt comes back
	clk.advance(3 * time.Second)
	c.pollTick(ctx)
	if snap := c.Snapshot(); snap.State != "tilt_restore_active" {
		t.Fatalf("expected tilt restore: %+v", snap)
	}

	clk.advance(time.Second)
	c.pollTick(ctx)
	snap := c.Snapshot()
	if snap.State != "idle" || snap.Position != 80 || snap.Tilt != 50 {
		t.Fatalf("after restore: %+v", snap)
	}
}

func TestEndpointRunOnKeepsRelayEngaged(t *testing.T) {
	ctx := context.Background()
	cfg := travelOnlyConfig()
	cfg.EndpointRunOn = 30 * time.Millisecond
	c, d, clk := newTestCover(t, cfg, relay.Wiring{Mode: relay.ModeSwitch})
	_ = c.SetKnownPosition(FullyClosed, NoCoupling)

	if err := c.MoveToPosition(ctx, FullyOpen); err != nil {
		t.Fatalf("move: %v", err)
	}
	d.reset()

	clk.advance(10 * time.Second)
	c.pollTick(ctx)
	// the endpoint is reached but the relay stays engaged for the run-on
	if snap := c.Snapshot(); snap.State != "main_travel_active" {
		t.Fatalf("run-on should still be active: %+v", snap)
	}
	if len(d.recorded()) != 0 {
		t.Fatalf("no stop ops during run-on, got %+v", d.recorded())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if snap := c.Snapshot(); snap.State == "idle" {
			if snap.Position != FullyOpen {
				t.Fatalf("after run-on: %+v", snap)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run-on timer never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(d.recorded()) == 0 {
		t.Fatal("run-on must end with a stop command")
	}
}

func TestSetKnownPositionRequiresIdle(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCover(t, travelOnlyConfig(), relay.Wiring{Mode: relay.ModeSwitch})
	_ = c.SetKnownPosition(FullyClosed, NoCoupling)

	if err := c.MoveToPosition(ctx, FullyOpen); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := c.SetKnownPosition(10, NoCoupling); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while moving, got %v", err)
	}
	_ = c.Stop(ctx)
	if err := c.SetKnownPosition(10, NoCoupling); err != nil {
		t.Fatalf("pin after stop: %v", err)
	}
	if snap := c.Snapshot(); snap.Position != 10 {
		t.Fatalf("pinned position: %+v", snap)
	}
}

func TestStopFreezesBetweenEndpoints(t *testing.T) {
	ctx := context.Background()
	c, d, clk := newTestCover(t, travelOnlyConfig(), relay.Wiring{Mode: relay.ModeSwitch})
	_ = c.SetKnownPosition(FullyClosed, NoCoupling)

	if err := c.MoveToPosition(ctx, FullyOpen); err != nil {
		t.Fatalf("move: %v", err)
	}
	clk.advance(4 * time.Second)
	d.reset()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != "idle" || snap.Position != 40 {
		t.Fatalf("after stop: %+v", snap)
	}
	if len(d.recorded()) == 0 {
		t.Fatal("stop must reach the relays")
	}

	// a second stop is a no-op
	d.reset()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if len(d.recorded()) != 0 {
		t.Fatalf("idle stop issued ops: %+v", d.recorded())
	}
}

func TestMoveToTiltRequiresTiltSupport(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCover(t, travelOnlyConfig(), relay.Wiring{Mode: relay.ModeSwitch})
	if err := c.MoveToTilt(ctx, 50); !errors.Is(err, ErrUnsupportedAttribute) {
		t.Fatalf("expected ErrUnsupportedAttribute, got %v", err)
	}
}

func TestSequentialTiltMove(t *testing.T) {
	ctx := context.Background()
	cfg := travelOnlyConfig()
	cfg.TiltMode = TiltModeSequential
	cfg.TiltOpen = 2 * time.Second
	cfg.TiltClose = 2 * time.Second
	c, _, clk := newTestCover(t, cfg, relay.Wiring{Mode: relay.ModeSwitch})
	_ = c.SetKnownPosition(40, FullyClosed)

	// tilting requires closing first
	if err := c.MoveToTilt(ctx, 60); err != nil {
		t.Fatalf("tilt move: %v", err)
	}
	if snap := c.Snapshot(); snap.State != "pre_step_active" || !snap.Closing {
		t.Fatalf("expected closing pre-step: %+v", snap)
	}

	clk.advance(4 * time.Second) // 40 -> 0 at 10s full range
	c.pollTick(ctx)
	if snap := c.Snapshot(); snap.State != "main_travel_active" {
		t.Fatalf("expected tilt phase: %+v", snap)
	}

	clk.advance(1200 * time.Millisecond) // 0 -> 60 at 2s full range
	c.pollTick(ctx)
	snap := c.Snapshot()
	if snap.State != "idle" || snap.Position != FullyClosed || snap.Tilt != 60 {
		t.Fatalf("after tilt move: %+v", snap)
	}
}
