package navigation

import (
	"sync"
	"time"
)

// Defaults for Debouncer.
const (
	DefaultDebounceInterval = 2500 * time.Millisecond
	DefaultRepeatInterval   = 3 * time.Second
)

// Debouncer drops instructions that would be spoken too soon. A new text
// passes once Interval has elapsed since the last forward; the same text
// passes again only after RepeatInterval.
type Debouncer struct {
	Interval       time.Duration
	RepeatInterval time.Duration

	mu       sync.Mutex
	last     string
	lastAt   time.Time
	anything bool
}

// NewDebouncer returns a debouncer; non-positive arguments take defaults.
func NewDebouncer(interval, repeat time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	if repeat <= 0 {
		repeat = DefaultRepeatInterval
	}
	return &Debouncer{Interval: interval, RepeatInterval: repeat}
}

// Allow reports whether text may be forwarded at now and, if so, records it
// as the last forward.
func (d *Debouncer) Allow(text string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.anything {
		elapsed := now.Sub(d.lastAt)
		wait := d.Interval
		if text == d.last {
			wait = d.RepeatInterval
		}
		if elapsed < wait {
			return false
		}
	}
	d.last = text
	d.lastAt = now
	d.anything = true
	return true
}

// Reset forgets the last forward.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = ""
	d.lastAt = time.Time{}
	d.anything = false
}
