package relay

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// SerialBoard drives a relay board over a serial line using a simple ASCII
// protocol: "SET <channel> ON|OFF" and "PULSE <channel> <ms>" commands, and
// "EVENT <channel> ON|OFF" lines reported by the board for every state
// change, including ones caused by its physical inputs.
type SerialBoard struct {
	mu   sync.Mutex
	port *serial.Port
	subs []func(Event)
	done chan struct{}
	once sync.Once
}

// OpenSerialBoard opens the serial port and starts the event reader.
func OpenSerialBoard(device string, baud int) (*SerialBoard, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open relay board %q: %w", device, err)
	}
	b := &SerialBoard{port: port, done: make(chan struct{})}
	go b.readEvents()
	return b, nil
}

func (b *SerialBoard) write(cmd string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("relay board write: %w", err)
	}
	return nil
}

// TurnOn latches the channel on.
func (b *SerialBoard) TurnOn(_ context.Context, ch Channel) error {
	return b.write(fmt.Sprintf("SET %s ON", ch))
}

// TurnOff latches the channel off.
func (b *SerialBoard) TurnOff(_ context.Context, ch Channel) error {
	return b.write(fmt.Sprintf("SET %s OFF", ch))
}

// Pulse asks the board to hold the channel on for the given width. The board
// times the off edge itself so host latency cannot stretch the pulse.
func (b *SerialBoard) Pulse(_ context.Context, ch Channel, hold time.Duration) error {
	return b.write(fmt.Sprintf("PULSE %s %d", ch, hold.Milliseconds()))
}

// Subscribe registers a state-change callback.
func (b *SerialBoard) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// readEvents parses EVENT lines from the board and fans them out.
func (b *SerialBoard) readEvents() {
	scanner := bufio.NewScanner(b.port)
	for scanner.Scan() {
		select {
		case <-b.done:
			return
		default:
		}
		ev, ok := parseEventLine(scanner.Text())
		if !ok {
			continue
		}
		b.mu.Lock()
		subs := make([]func(Event), len(b.subs))
		copy(subs, b.subs)
		b.mu.Unlock()
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// parseEventLine decodes "EVENT <channel> ON|OFF". Anything else is ignored
// so boards may interleave debug output.
func parseEventLine(line string) (Event, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 3 || fields[0] != "EVENT" {
		return Event{}, false
	}
	var on bool
	switch fields[2] {
	case "ON":
		on = true
	case "OFF":
		on = false
	default:
		return Event{}, false
	}
	return Event{Channel: Channel(fields[1]), On: on, At: time.Now()}, true
}

// Close stops the reader and closes the port.
func (b *SerialBoard) Close() error {
	b.once.Do(func() { close(b.done) })
	return b.port.Close()
}
