package navigation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/dispatch"
	"github.com/banshee-data/visionassist/internal/sensor"
	"github.com/banshee-data/visionassist/internal/timeutil"
)

var (
	// ErrNotRunning is returned when stopping navigation that is not active.
	ErrNotRunning = errors.New("navigation is not running")
	// ErrAlreadyRunning is returned by a second Start.
	ErrAlreadyRunning = errors.New("navigation is already running")
)

// StoppedMessage is spoken when a session ends.
const StoppedMessage = "Navigation stopped."

// DefaultTickPeriod is the instruction cadence.
const DefaultTickPeriod = 1200 * time.Millisecond

// Sink receives instructions for speaking. *dispatch.Queue satisfies it.
type Sink interface {
	Enqueue(dispatch.Entry) error
	FlushPending(keepUrgent bool) int
}

// Recorder journals forwarded instructions.
type Recorder interface {
	RecordInstruction(in Instruction, at time.Time) error
}

// Config tunes a Navigator.
type Config struct {
	Generator        GeneratorConfig
	TickPeriod       time.Duration
	DebounceInterval time.Duration
	RepeatInterval   time.Duration
	Clock            timeutil.Clock
	Recorder         Recorder
}

// Navigator is one navigation session. It owns its ticker, its sensor
// subscription and the debounce state; ticks never overlap.
type Navigator struct {
	cfg   Config
	clock timeutil.Clock
	store *sensor.Store
	sink  Sink

	objMu   sync.RWMutex
	objects []detect.DetectedObject

	tickMu   sync.Mutex
	debounce *Debouncer
	last     Instruction
	hasLast  bool
	stopped  bool
	sub      *sensor.Subscription
	ticks    int64
	forwards int64

	runMu   sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewNavigator creates an idle session reading from store and speaking
// through sink.
func NewNavigator(cfg Config, store *sensor.Store, sink Sink) *Navigator {
	if cfg.Generator == (GeneratorConfig{}) {
		cfg.Generator = DefaultGeneratorConfig()
	}
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = DefaultTickPeriod
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Navigator{
		cfg:      cfg,
		clock:    cfg.Clock,
		store:    store,
		sink:     sink,
		debounce: NewDebouncer(cfg.DebounceInterval, cfg.RepeatInterval),
	}
}

// UpdateObjects replaces the camera boxes used by the next tick.
func (n *Navigator) UpdateObjects(objects []detect.DetectedObject) {
	cp := append([]detect.DetectedObject(nil), objects...)
	n.objMu.Lock()
	n.objects = cp
	n.objMu.Unlock()
}

func (n *Navigator) currentObjects() []detect.DetectedObject {
	n.objMu.RLock()
	defer n.objMu.RUnlock()
	return n.objects
}

// Start subscribes to the sensor store, runs the first tick immediately and
// then ticks every TickPeriod until Stop or ctx is done. A session can be
// started once.
func (n *Navigator) Start(ctx context.Context) error {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.started {
		return ErrAlreadyRunning
	}
	n.started = true

	n.tickMu.Lock()
	n.sub = n.store.Subscribe()
	n.tickMu.Unlock()

	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	ticker := n.clock.NewTicker(n.cfg.TickPeriod)

	logs.Opsf("navigation started (tick %s)", n.cfg.TickPeriod)
	n.Tick(n.clock.Now())
	go n.loop(ctx, ticker, n.done)
	return nil
}

func (n *Navigator) loop(ctx context.Context, ticker timeutil.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			n.Tick(now)
		}
	}
}

// Tick generates one instruction and forwards it if the debouncer allows.
// It reports whether anything was enqueued.
func (n *Navigator) Tick(now time.Time) bool {
	n.tickMu.Lock()
	defer n.tickMu.Unlock()
	if n.stopped || n.sub == nil {
		return false
	}
	n.ticks++

	var reading *sensor.Reading
	if r, ok := n.sub.Latest(); ok {
		reading = &r
	}
	in := Generate(reading, n.currentObjects(), n.cfg.Generator)

	if !n.debounce.Allow(in.Text, now) {
		tracef("debounced %q", in.Text)
		return false
	}
	if err := n.sink.Enqueue(dispatch.Entry{Message: in.Text, Urgent: in.Urgent}); err != nil {
		logs.Opsf("enqueue instruction: %v", err)
		return false
	}
	n.last, n.hasLast = in, true
	n.forwards++
	diagf("instruction urgent=%t %q", in.Urgent, in.Text)

	if n.cfg.Recorder != nil {
		if err := n.cfg.Recorder.RecordInstruction(in, now); err != nil {
			logs.Opsf("record instruction: %v", err)
		}
	}
	return true
}

// Active reports whether the session is ticking.
func (n *Navigator) Active() bool {
	n.runMu.Lock()
	started := n.started
	n.runMu.Unlock()
	n.tickMu.Lock()
	defer n.tickMu.Unlock()
	return started && !n.stopped
}

// LastInstruction returns the most recent forwarded instruction.
func (n *Navigator) LastInstruction() (Instruction, bool) {
	n.tickMu.Lock()
	defer n.tickMu.Unlock()
	return n.last, n.hasLast
}

// Counts returns the number of ticks run and instructions forwarded.
func (n *Navigator) Counts() (ticks, forwards int64) {
	n.tickMu.Lock()
	defer n.tickMu.Unlock()
	return n.ticks, n.forwards
}

// Stop ends the session: no further ticks run, pending non-urgent speech is
// dropped, the stop announcement is queued and the sensor subscription is
// released. Calling Stop again returns ErrNotRunning.
func (n *Navigator) Stop() error {
	n.runMu.Lock()
	if !n.started || n.cancel == nil {
		n.runMu.Unlock()
		return ErrNotRunning
	}
	cancel, done := n.cancel, n.done
	n.cancel = nil
	n.runMu.Unlock()

	cancel()
	<-done

	n.tickMu.Lock()
	n.stopped = true
	if n.sub != nil {
		n.sub.Close()
	}
	n.tickMu.Unlock()

	if dropped := n.sink.FlushPending(true); dropped > 0 {
		diagf("dropped %d pending instructions", dropped)
	}
	logs.Opsf("navigation stopped")
	return n.sink.Enqueue(dispatch.Entry{Message: StoppedMessage})
}
