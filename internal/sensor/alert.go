package sensor

import (
	"fmt"
	"sync"
	"time"
)

// AlertLevel buckets a proximity distance.
type AlertLevel int

const (
	AlertClear AlertLevel = iota
	AlertCaution
	AlertWarning
	AlertDanger
)

func (l AlertLevel) String() string {
	switch l {
	case AlertCaution:
		return "caution"
	case AlertWarning:
		return "warning"
	case AlertDanger:
		return "danger"
	default:
		return "clear"
	}
}

// LevelFor returns the alert level for a distance in cm.
func LevelFor(distanceCM int) AlertLevel {
	switch {
	case distanceCM > 150:
		return AlertClear
	case distanceCM > 100:
		return AlertCaution
	case distanceCM > 50:
		return AlertWarning
	default:
		return AlertDanger
	}
}

// Alert is a spoken proximity warning with its vibration length.
type Alert struct {
	Level   AlertLevel
	Message string
	Haptic  time.Duration
}

// AlertFor builds the alert for a reading.
func AlertFor(r Reading) Alert {
	level := LevelFor(r.DistanceCM)
	a := Alert{Level: level}
	switch level {
	case AlertClear:
		a.Message = "No obstacle nearby."
	case AlertCaution:
		a.Message = fmt.Sprintf("Obstacle on your %s around %d centimeters.", r.Direction, r.DistanceCM)
		a.Haptic = 200 * time.Millisecond
	case AlertWarning:
		a.Message = fmt.Sprintf("Warning! Object %d centimeters on your %s.", r.DistanceCM, r.Direction)
		a.Haptic = 400 * time.Millisecond
	case AlertDanger:
		a.Message = fmt.Sprintf("Danger! Very close obstacle on your %s!", r.Direction)
		a.Haptic = 800 * time.Millisecond
	}
	return a
}

// DefaultAlertRepeat is how often an unchanged level is re-announced.
const DefaultAlertRepeat = 5 * time.Second

// AlertTracker decides when a stream of readings deserves an announcement:
// whenever the level changes, and otherwise every RepeatAfter.
type AlertTracker struct {
	RepeatAfter time.Duration

	mu        sync.Mutex
	announced bool
	level     AlertLevel
	lastAt    time.Time
}

// NewAlertTracker returns a tracker; a non-positive repeat uses the default.
func NewAlertTracker(repeat time.Duration) *AlertTracker {
	if repeat <= 0 {
		repeat = DefaultAlertRepeat
	}
	return &AlertTracker{RepeatAfter: repeat}
}

// Observe returns the alert to announce for r at now, if any.
func (t *AlertTracker) Observe(r Reading, now time.Time) (Alert, bool) {
	a := AlertFor(r)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.announced && a.Level == t.level && now.Sub(t.lastAt) <= t.RepeatAfter {
		return Alert{}, false
	}
	t.announced = true
	t.level = a.Level
	t.lastAt = now
	return a, true
}

// Reset forgets the last announcement.
func (t *AlertTracker) Reset() {
	t.mu.Lock()
	t.announced = false
	t.mu.Unlock()
}
