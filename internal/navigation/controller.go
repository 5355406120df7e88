package navigation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/dispatch"
	"github.com/banshee-data/visionassist/internal/sensor"
	"github.com/banshee-data/visionassist/internal/timeutil"
)

// Spoken command responses.
const (
	StartingMessage       = "Starting navigation"
	AlreadyRunningMessage = "Navigation is already running."
	NotRunningMessage     = "Navigation is not running."
	UnknownCommandMessage = "Sorry, I didn't understand that command."
	TutorialMessage       = "You can control the app with your voice. " +
		"Say 'Start navigation' to begin. " +
		"Say 'Stop navigation' to stop. " +
		"Say 'App tutorial' to hear this guide again."
)

// SessionRecorder is a Recorder that also wants to know when sessions
// begin and end.
type SessionRecorder interface {
	Recorder
	BeginSession(at time.Time) error
	EndSession(at time.Time) error
}

// Queue is the speech queue the controller talks through.
type Queue interface {
	Sink
	State() dispatch.State
}

// Controller owns at most one navigation session at a time and, while no
// session runs, turns sensor readings into standalone proximity alerts.
type Controller struct {
	cfg    Config
	store  *sensor.Store
	queue  Queue
	alerts *sensor.AlertTracker

	mu      sync.Mutex
	nav     *Navigator
	objects []detect.DetectedObject
}

// NewController returns a stopped controller. alerts may be nil to disable
// standalone proximity alerts.
func NewController(cfg Config, store *sensor.Store, queue Queue, alerts *sensor.AlertTracker) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Controller{cfg: cfg, store: store, queue: queue, alerts: alerts}
}

// Start begins a new session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nav != nil {
		return ErrAlreadyRunning
	}
	nav := NewNavigator(c.cfg, c.store, c.queue)
	nav.UpdateObjects(c.objects)
	if sr, ok := c.cfg.Recorder.(SessionRecorder); ok {
		if err := sr.BeginSession(c.cfg.Clock.Now()); err != nil {
			logs.Opsf("begin session: %v", err)
		}
	}
	if err := nav.Start(ctx); err != nil {
		return err
	}
	c.nav = nav
	return nil
}

// Stop ends the current session.
func (c *Controller) Stop() error {
	c.mu.Lock()
	nav := c.nav
	c.nav = nil
	c.mu.Unlock()
	if nav == nil {
		return ErrNotRunning
	}
	if c.alerts != nil {
		c.alerts.Reset()
	}
	err := nav.Stop()
	if sr, ok := c.cfg.Recorder.(SessionRecorder); ok {
		if err := sr.EndSession(c.cfg.Clock.Now()); err != nil {
			logs.Opsf("end session: %v", err)
		}
	}
	return err
}

// Running reports whether a session is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nav != nil
}

// Navigator returns the current session, or nil.
func (c *Controller) Navigator() *Navigator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nav
}

// UpdateObjects records the latest camera boxes and hands them to the
// running session.
func (c *Controller) UpdateObjects(objects []detect.DetectedObject) {
	c.mu.Lock()
	c.objects = append(c.objects[:0], objects...)
	nav := c.nav
	c.mu.Unlock()
	if nav != nil {
		nav.UpdateObjects(objects)
	}
}

// ObserveReading handles a fresh sensor reading. While navigating, the
// session reads the store itself; otherwise a proximity alert is spoken
// when the level changes or the repeat interval passes, unless something
// is already being said.
func (c *Controller) ObserveReading(r sensor.Reading) {
	if c.alerts == nil || c.Running() {
		return
	}
	now := r.At
	if now.IsZero() {
		now = c.cfg.Clock.Now()
	}
	alert, ok := c.alerts.Observe(r, now)
	if !ok || c.queue.State() != dispatch.Idle {
		return
	}
	haptic := alert.Haptic
	if haptic == 0 {
		haptic = dispatch.NoHaptic
	}
	entry := dispatch.Entry{
		Message: alert.Message,
		Urgent:  alert.Level >= sensor.AlertWarning,
		Haptic:  haptic,
	}
	if err := c.queue.Enqueue(entry); err != nil {
		logs.Opsf("enqueue alert: %v", err)
	}
}

// HandleCommand acts on a voice-command transcript and returns the spoken
// response.
func (c *Controller) HandleCommand(ctx context.Context, text string) string {
	cmd := strings.ToLower(strings.TrimSpace(text))

	var reply string
	switch {
	case strings.Contains(cmd, "start navigation"):
		if c.Running() {
			reply = AlreadyRunningMessage
			break
		}
		c.say(StartingMessage)
		if err := c.Start(ctx); err != nil {
			logs.Opsf("start navigation: %v", err)
		}
		return StartingMessage
	case strings.Contains(cmd, "stop navigation"):
		if err := c.Stop(); err == ErrNotRunning {
			reply = NotRunningMessage
		} else {
			if err != nil {
				logs.Opsf("stop navigation: %v", err)
			}
			// the session already queued its stop announcement
			return StoppedMessage
		}
	case strings.Contains(cmd, "app tutorial"):
		reply = TutorialMessage
	default:
		reply = UnknownCommandMessage
	}

	c.say(reply)
	return reply
}

func (c *Controller) say(text string) {
	if err := c.queue.Enqueue(dispatch.Entry{Message: text, Haptic: dispatch.NoHaptic}); err != nil {
		logs.Opsf("enqueue reply: %v", err)
	}
}
