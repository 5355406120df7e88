// Package pipeline runs detector stages over camera frames and hands the
// merged, distance-annotated boxes to navigation.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/visionassist/internal/timeutil"
)

// Frame is one camera image handed to the detectors. Pixels must not be
// modified after Publish.
type Frame struct {
	Seq      uint64
	Captured time.Time
	Width    int
	Height   int
	Pixels   []byte
}

// FrameSlot holds only the newest unprocessed frame. Publishing over an
// unconsumed frame replaces it and counts a drop, so a slow detector never
// builds a backlog.
type FrameSlot struct {
	mu    sync.Mutex
	frame *Frame
	ready chan struct{}
	drops atomic.Uint64
	seen  atomic.Uint64
}

// NewFrameSlot returns an empty slot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{ready: make(chan struct{}, 1)}
}

// Publish stores f without blocking.
func (s *FrameSlot) Publish(f Frame) {
	s.mu.Lock()
	if s.frame != nil {
		s.drops.Add(1)
	}
	s.frame = &f
	s.mu.Unlock()
	s.seen.Add(1)

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Next blocks until a frame is available and takes it.
func (s *FrameSlot) Next(ctx context.Context) (Frame, error) {
	for {
		s.mu.Lock()
		f := s.frame
		s.frame = nil
		s.mu.Unlock()
		if f != nil {
			return *f, nil
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.ready:
		}
	}
}

// Drops returns how many frames were replaced before being processed.
func (s *FrameSlot) Drops() uint64 { return s.drops.Load() }

// Published returns how many frames were published.
func (s *FrameSlot) Published() uint64 { return s.seen.Load() }

// GenerateFrames publishes blank frames of the given size every interval
// until ctx is done. It drives the detectors when no camera is attached.
func GenerateFrames(ctx context.Context, slot *FrameSlot, clock timeutil.Clock, interval time.Duration, width, height int) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			seq++
			slot.Publish(Frame{Seq: seq, Captured: now, Width: width, Height: height})
		}
	}
}
