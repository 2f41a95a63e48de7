package cover

import (
	"sync"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/relay"
)

// echoWindow is the safety window after which un-drained credits are
// discarded. Boards that do not acknowledge redundant writes would otherwise
// leak credits and swallow a later genuine external event.
const echoWindow = 5 * time.Second

// echoLedger tracks, per relay channel, how many state-change events we
// expect to receive back for commands we issued ourselves. Incoming events
// that find a positive credit are self-echoes and must not be re-dispatched
// as external commands.
type echoLedger struct {
	mu      *sync.Mutex // the owning cover's lock
	credits map[relay.Channel]int
	timers  map[relay.Channel]*time.Timer
}

func newEchoLedger(mu *sync.Mutex) *echoLedger {
	return &echoLedger{
		mu:      mu,
		credits: make(map[relay.Channel]int),
		timers:  make(map[relay.Channel]*time.Timer),
	}
}

// expect records credits for a channel before the command is issued and
// (re)arms the expiry timer. Caller holds the cover lock.
func (l *echoLedger) expect(ch relay.Channel, n int) {
	if n <= 0 {
		return
	}
	l.credits[ch] += n
	if t, ok := l.timers[ch]; ok {
		t.Stop()
	}
	l.timers[ch] = time.AfterFunc(echoWindow, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.credits[ch] = 0
	})
}

// expectPlan records the credits for every operation of a plan.
func (l *echoLedger) expectPlan(p relay.Plan) {
	for ch, n := range p.Credits() {
		l.expect(ch, n)
	}
}

// consume spends one credit for the channel if any is pending. A true result
// means the event was a self-echo. Caller holds the cover lock.
func (l *echoLedger) consume(ch relay.Channel) bool {
	if l.credits[ch] <= 0 {
		return false
	}
	l.credits[ch]--
	return true
}

// clear drops all credits and timers, e.g. when a driver command failed and
// its echoes will never arrive.
func (l *echoLedger) clear() {
	for ch, t := range l.timers {
		t.Stop()
		delete(l.timers, ch)
	}
	for ch := range l.credits {
		delete(l.credits, ch)
	}
}
