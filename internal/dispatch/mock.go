package dispatch

import (
	"context"
	"sync"
	"time"
)

// MockSpeaker records utterances. With AutoComplete set each utterance
// finishes immediately; otherwise the test finishes it with Complete.
type MockSpeaker struct {
	AutoComplete bool

	mu      sync.Mutex
	spoken  []Utterance
	waiting []chan error
	active  int
	peak    int
}

// NewMockSpeaker creates a MockSpeaker.
func NewMockSpeaker(autoComplete bool) *MockSpeaker {
	return &MockSpeaker{AutoComplete: autoComplete}
}

func (m *MockSpeaker) Speak(_ context.Context, u Utterance) <-chan error {
	done := make(chan error, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, u)
	if m.AutoComplete {
		done <- nil
		return done
	}
	m.waiting = append(m.waiting, done)
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	return done
}

// Complete finishes the oldest unfinished utterance with err. It reports
// false when nothing is being spoken.
func (m *MockSpeaker) Complete(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.waiting) == 0 {
		return false
	}
	m.waiting[0] <- err
	m.waiting = m.waiting[1:]
	m.active--
	return true
}

// Spoken returns the texts passed to Speak, in order.
func (m *MockSpeaker) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.spoken))
	for i, u := range m.spoken {
		out[i] = u.Text
	}
	return out
}

// Utterances returns the utterances passed to Speak, in order.
func (m *MockSpeaker) Utterances() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Utterance(nil), m.spoken...)
}

// PeakConcurrent is the most utterances ever awaiting completion at once.
func (m *MockSpeaker) PeakConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// MockVibrator records pulse lengths.
type MockVibrator struct {
	mu     sync.Mutex
	pulses []time.Duration
}

func (m *MockVibrator) Vibrate(_ context.Context, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulses = append(m.pulses, d)
	return nil
}

// Pulses returns the recorded pulse lengths.
func (m *MockVibrator) Pulses() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.pulses...)
}
