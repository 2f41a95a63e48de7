package relay

import (
	"context"
	"sync"
	"time"
)

// Loopback is an in-memory relay bank. Every primitive is acknowledged with a
// matching state-change event, mimicking a board that reports each write.
// Useful for development without hardware and for tests.
type Loopback struct {
	mu     sync.Mutex
	states map[Channel]bool
	subs   []func(Event)

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewLoopback returns a running loopback driver.
func NewLoopback() *Loopback {
	l := &Loopback{
		states: make(map[Channel]bool),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go l.dispatch()
	return l
}

// dispatch delivers events to subscribers from a dedicated goroutine so
// callbacks never run inside a TurnOn/TurnOff/Pulse call.
func (l *Loopback) dispatch() {
	for {
		select {
		case <-l.done:
			return
		case ev := <-l.events:
			l.mu.Lock()
			subs := make([]func(Event), len(l.subs))
			copy(subs, l.subs)
			l.mu.Unlock()
			for _, fn := range subs {
				fn(ev)
			}
		}
	}
}

func (l *Loopback) emit(ch Channel, on bool) {
	ev := Event{Channel: ch, On: on, At: time.Now()}
	select {
	case l.events <- ev:
	case <-l.done:
	}
}

// TurnOn latches the channel on and echoes the change.
func (l *Loopback) TurnOn(_ context.Context, ch Channel) error {
	l.mu.Lock()
	l.states[ch] = true
	l.mu.Unlock()
	l.emit(ch, true)
	return nil
}

// TurnOff latches the channel off and echoes the change.
func (l *Loopback) TurnOff(_ context.Context, ch Channel) error {
	l.mu.Lock()
	l.states[ch] = false
	l.mu.Unlock()
	l.emit(ch, false)
	return nil
}

// Pulse turns the channel on, echoes it, and schedules the off edge after
// hold has elapsed.
func (l *Loopback) Pulse(_ context.Context, ch Channel, hold time.Duration) error {
	l.mu.Lock()
	l.states[ch] = true
	l.mu.Unlock()
	l.emit(ch, true)
	time.AfterFunc(hold, func() {
		l.mu.Lock()
		l.states[ch] = false
		l.mu.Unlock()
		l.emit(ch, false)
	})
	return nil
}

// Subscribe registers a state-change callback.
func (l *Loopback) Subscribe(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, fn)
}

// State reports the current latched state of a channel.
func (l *Loopback) State(ch Channel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[ch]
}

// Inject feeds an external state change into the driver, as if a wall switch
// toggled the channel behind our back.
func (l *Loopback) Inject(ch Channel, on bool) {
	l.mu.Lock()
	l.states[ch] = on
	l.mu.Unlock()
	l.emit(ch, on)
}

// Close stops the dispatch goroutine.
func (l *Loopback) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
