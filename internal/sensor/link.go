package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/visionassist/internal/timeutil"
)

// DefaultReconnectInterval is the wait between connection attempts.
const DefaultReconnectInterval = 5 * time.Second

// ErrLinkClosed is returned by a port scan that ended without an error.
var ErrLinkClosed = errors.New("sensor link closed by peer")

// LinkConfig describes how to reach the sensor module.
type LinkConfig struct {
	Path              string
	Options           PortOptions
	ReconnectInterval time.Duration
	Open              PortOpener // defaults to OpenSerial
	Clock             timeutil.Clock
}

// Link keeps a connection to the sensor module alive and feeds parsed
// readings into a Store.
type Link struct {
	cfg   LinkConfig
	store *Store

	connected atomic.Bool
	attempts  atomic.Int64
	received  atomic.Int64
	rejected  atomic.Int64

	mu        sync.Mutex
	onReading func(Reading)
}

// NewLink returns a link that updates store. Call Run to start it.
func NewLink(cfg LinkConfig, store *Store) *Link {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.Open == nil {
		cfg.Open = OpenSerial
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Link{cfg: cfg, store: store}
}

// OnReading registers a callback invoked for each accepted reading after
// the store has been updated.
func (l *Link) OnReading(f func(Reading)) {
	l.mu.Lock()
	l.onReading = f
	l.mu.Unlock()
}

// Connected reports whether a port is currently open.
func (l *Link) Connected() bool { return l.connected.Load() }

// LinkStats is a snapshot of link counters.
type LinkStats struct {
	Connected bool  `json:"connected"`
	Attempts  int64 `json:"attempts"`
	Received  int64 `json:"received"`
	Rejected  int64 `json:"rejected"`
}

// Stats returns the current counters.
func (l *Link) Stats() LinkStats {
	return LinkStats{
		Connected: l.Connected(),
		Attempts:  l.attempts.Load(),
		Received:  l.received.Load(),
		Rejected:  l.rejected.Load(),
	}
}

// Run connects and reads until ctx is cancelled. Any read failure is a
// disconnection: the port is closed, the store is cleared and a new
// connection is attempted after the reconnect interval.
func (l *Link) Run(ctx context.Context) error {
	for {
		l.attempts.Add(1)
		port, err := l.cfg.Open(l.cfg.Path, l.cfg.Options)
		if err != nil {
			logs.Opsf("sensor %s not reachable: %v; retrying in %s", l.cfg.Path, err, l.cfg.ReconnectInterval)
		} else {
			l.connected.Store(true)
			logs.Opsf("connected to sensor on %s", l.cfg.Path)

			err = l.monitor(ctx, port)
			_ = port.Close()
			l.connected.Store(false)
			l.store.Clear()

			if ctx.Err() != nil {
				return ctx.Err()
			}
			logs.Opsf("lost sensor connection: %v; retrying in %s", err, l.cfg.ReconnectInterval)
		}

		if err := l.wait(ctx); err != nil {
			return err
		}
	}
}

func (l *Link) wait(ctx context.Context) error {
	done := make(chan struct{})
	t := l.cfg.Clock.AfterFunc(l.cfg.ReconnectInterval, func() { close(done) })
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-done:
		return nil
	}
}

// monitor scans lines from port until it fails or ctx is done.
func (l *Link) monitor(ctx context.Context, port SerialPorter) error {
	scan := bufio.NewScanner(port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan runs in its own goroutine so cancellation is not held
	// up by a read. Closing the port releases it.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
				}
				return fmt.Errorf("%w: %w", ErrLinkClosed, io.EOF)
			}
			l.handleLine(line)
		}
	}
}

func (l *Link) handleLine(line string) {
	r, ok := ParseMessage(line)
	if !ok {
		l.rejected.Add(1)
		tracef("discarded %q", line)
		return
	}
	l.received.Add(1)
	r.At = l.cfg.Clock.Now()
	l.store.Update(r)

	l.mu.Lock()
	f := l.onReading
	l.mu.Unlock()
	if f != nil {
		f(r)
	}
}
