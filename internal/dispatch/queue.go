// Package dispatch serializes spoken instructions and haptic pulses so that
// exactly one utterance is in flight at a time.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/visionassist/internal/timeutil"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("dispatch queue closed")

// NoHaptic disables the vibration pulse for an entry.
const NoHaptic time.Duration = -1

// Defaults for QueueConfig.
const (
	DefaultSettle       = 700 * time.Millisecond
	DefaultUrgentHaptic = 700 * time.Millisecond
	DefaultNormalHaptic = 300 * time.Millisecond
)

// Entry is one pending message. Haptic zero means the urgency default.
type Entry struct {
	Message string        `json:"message"`
	Urgent  bool          `json:"urgent"`
	Haptic  time.Duration `json:"haptic,omitempty"`
}

// Utterance is an entry that has been handed to the speaker.
type Utterance struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	Urgent  bool      `json:"urgent"`
	Started time.Time `json:"started"`
}

// Speaker starts speaking u and returns a channel that yields once when
// speech finishes. A nil error and a non-nil error both mean done; a closed
// channel counts as done too.
type Speaker interface {
	Speak(ctx context.Context, u Utterance) <-chan error
}

// Vibrator emits one vibration pulse.
type Vibrator interface {
	Vibrate(ctx context.Context, d time.Duration) error
}

// State is the queue's dispatch state.
type State int

const (
	Idle State = iota
	Speaking
	Settling
)

func (s State) String() string {
	switch s {
	case Speaking:
		return "speaking"
	case Settling:
		return "settling"
	default:
		return "idle"
	}
}

// MarshalText lets states appear as words in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// QueueConfig tunes a Queue. Zero durations take the defaults; a negative
// Settle means no pause and a negative haptic duration means no pulse.
type QueueConfig struct {
	Settle       time.Duration
	UrgentHaptic time.Duration
	NormalHaptic time.Duration
	Clock        timeutil.Clock
}

// Stats counts queue activity.
type Stats struct {
	Enqueued int64 `json:"enqueued"`
	Spoken   int64 `json:"spoken"`
	Failed   int64 `json:"failed"`
	Flushed  int64 `json:"flushed"`
}

// Queue is a FIFO of entries with at most one utterance in flight. The next
// entry starts only after the speaker reports completion and the settle
// pause has elapsed.
type Queue struct {
	speaker  Speaker
	vibrator Vibrator
	clock    timeutil.Clock
	settle   time.Duration
	urgent   time.Duration
	normal   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	pending  []Entry
	inflight *Utterance
	idle     chan struct{} // closed while Idle with nothing pending
	settleT  timeutil.Timer
	closed   bool
	stats    Stats
}

// NewQueue returns an idle queue. vibrator may be nil.
func NewQueue(speaker Speaker, vibrator Vibrator, cfg QueueConfig) *Queue {
	if cfg.Settle == 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if cfg.UrgentHaptic == 0 {
		cfg.UrgentHaptic = DefaultUrgentHaptic
	}
	if cfg.NormalHaptic == 0 {
		cfg.NormalHaptic = DefaultNormalHaptic
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		speaker:  speaker,
		vibrator: vibrator,
		clock:    cfg.Clock,
		settle:   cfg.Settle,
		urgent:   cfg.UrgentHaptic,
		normal:   cfg.NormalHaptic,
		ctx:      ctx,
		cancel:   cancel,
		idle:     idle,
	}
}

// Enqueue appends e and starts dispatch if the queue is idle.
func (q *Queue) Enqueue(e Entry) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, e)
	q.stats.Enqueued++
	if q.state != Idle {
		q.mu.Unlock()
		return nil
	}
	q.idle = make(chan struct{})
	u, next := q.startNextLocked()
	q.mu.Unlock()

	q.dispatch(u, next)
	return nil
}

// startNextLocked pops the head entry and marks it in flight.
func (q *Queue) startNextLocked() (Utterance, Entry) {
	e := q.pending[0]
	q.pending[0] = Entry{}
	q.pending = q.pending[1:]

	u := Utterance{
		ID:      uuid.NewString(),
		Text:    e.Message,
		Urgent:  e.Urgent,
		Started: q.clock.Now(),
	}
	q.state = Speaking
	q.inflight = &u
	return u, e
}

func (q *Queue) hapticFor(e Entry) time.Duration {
	switch {
	case e.Haptic == NoHaptic:
		return 0
	case e.Haptic > 0:
		return e.Haptic
	case e.Urgent:
		return q.urgent
	default:
		return q.normal
	}
}

// dispatch starts speech and vibration together, then waits for speech to
// finish in the background.
func (q *Queue) dispatch(u Utterance, e Entry) {
	diagf("speaking %s urgent=%t %q", u.ID, u.Urgent, u.Text)

	if d := q.hapticFor(e); d > 0 && q.vibrator != nil {
		go func() {
			if err := q.vibrator.Vibrate(q.ctx, d); err != nil {
				diagf("vibrate %s: %v", d, err)
			}
		}()
	}

	done := q.speaker.Speak(q.ctx, u)
	go q.await(u, done)
}

func (q *Queue) await(u Utterance, done <-chan error) {
	var err error
	select {
	case err = <-done:
	case <-q.ctx.Done():
		err = q.ctx.Err()
	}

	q.mu.Lock()
	if q.inflight == nil || q.inflight.ID != u.ID {
		q.mu.Unlock()
		return
	}
	if err != nil {
		q.stats.Failed++
		diagf("speech %s finished with error: %v", u.ID, err)
	} else {
		q.stats.Spoken++
	}
	q.inflight = nil
	if q.closed || q.settle == 0 {
		q.mu.Unlock()
		q.advance()
		return
	}
	q.state = Settling
	q.settleT = q.clock.AfterFunc(q.settle, q.advance)
	q.mu.Unlock()
}

// advance starts the next entry or goes idle.
func (q *Queue) advance() {
	q.mu.Lock()
	q.settleT = nil
	if q.closed || len(q.pending) == 0 {
		q.goIdleLocked()
		q.mu.Unlock()
		return
	}
	u, e := q.startNextLocked()
	q.mu.Unlock()

	q.dispatch(u, e)
}

func (q *Queue) goIdleLocked() {
	if q.state == Idle {
		return
	}
	q.state = Idle
	q.inflight = nil
	close(q.idle)
}

// State returns the current dispatch state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// InFlight returns the utterance currently being spoken.
func (q *Queue) InFlight() (Utterance, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight == nil {
		return Utterance{}, false
	}
	return *q.inflight, true
}

// Pending returns a copy of the entries waiting behind the in-flight one.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.pending...)
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// FlushPending drops waiting entries, keeping urgent ones if keepUrgent is
// set. The in-flight utterance is not interrupted. It returns the number
// of entries dropped.
func (q *Queue) FlushPending(keepUrgent bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.pending[:0]
	dropped := 0
	for _, e := range q.pending {
		if keepUrgent && e.Urgent {
			kept = append(kept, e)
			continue
		}
		dropped++
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = Entry{}
	}
	q.pending = kept
	q.stats.Flushed += int64(dropped)
	return dropped
}

// Drain blocks until the queue is idle with nothing pending.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries, drops pending ones and cancels speech in
// flight. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.stats.Flushed += int64(len(q.pending))
	q.pending = nil
	if q.settleT != nil && q.settleT.Stop() {
		q.settleT = nil
		q.goIdleLocked()
	}
	q.mu.Unlock()
	q.cancel()
}
