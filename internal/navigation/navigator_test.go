package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/dispatch"
	"github.com/banshee-data/visionassist/internal/sensor"
	"github.com/banshee-data/visionassist/internal/timeutil"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSink struct {
	mu      sync.Mutex
	entries []dispatch.Entry
	flushes []bool
	state   dispatch.State
	err     error
}

func (f *fakeSink) Enqueue(e dispatch.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeSink) FlushPending(keepUrgent bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes = append(f.flushes, keepUrgent)
	return 0
}

func (f *fakeSink) State() dispatch.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSink) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Message
	}
	return out
}

func (f *fakeSink) last() dispatch.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[len(f.entries)-1]
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []Instruction
}

func (r *fakeRecorder) RecordInstruction(in Instruction, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, in)
	return nil
}

func newTestNavigator(t *testing.T) (*Navigator, *fakeSink, *sensor.Store, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	store := sensor.NewStore(clock, sensor.DefaultStaleAfter)
	sink := &fakeSink{}
	nav := NewNavigator(Config{Clock: clock}, store, sink)
	return nav, sink, store, clock
}

// advanceTick moves the clock one tick period and waits for the loop.
func advanceTick(t *testing.T, nav *Navigator, clock *timeutil.MockClock) {
	t.Helper()
	before, _ := nav.Counts()
	clock.Advance(DefaultTickPeriod)
	require.Eventually(t, func() bool {
		ticks, _ := nav.Counts()
		return ticks == before+1
	}, time.Second, time.Millisecond)
}

func TestNavigatorFirstTickIsImmediate(t *testing.T) {
	nav, sink, _, _ := newTestNavigator(t)
	require.NoError(t, nav.Start(context.Background()))
	defer nav.Stop()

	assert.Equal(t, []string{PathClear}, sink.messages())
	in, ok := nav.LastInstruction()
	require.True(t, ok)
	assert.Equal(t, PathClear, in.Text)
	assert.True(t, nav.Active())
	assert.ErrorIs(t, nav.Start(context.Background()), ErrAlreadyRunning)
}

func TestNavigatorDebouncesRepeats(t *testing.T) {
	nav, sink, _, clock := newTestNavigator(t)
	require.NoError(t, nav.Start(context.Background()))
	defer nav.Stop()

	advanceTick(t, nav, clock) // 1.2s
	advanceTick(t, nav, clock) // 2.4s
	assert.Len(t, sink.messages(), 1)

	advanceTick(t, nav, clock) // 3.6s, same text allowed again
	assert.Len(t, sink.messages(), 2)

	ticks, forwards := nav.Counts()
	assert.Equal(t, int64(4), ticks)
	assert.Equal(t, int64(2), forwards)
}

func TestNavigatorUsesSensorAndCamera(t *testing.T) {
	nav, sink, store, clock := newTestNavigator(t)
	store.Update(sensor.Reading{Direction: detect.Left, DistanceCM: 90})
	require.NoError(t, nav.Start(context.Background()))
	defer nav.Stop()

	last := sink.last()
	assert.True(t, last.Urgent)
	assert.Equal(t, "Obstacle detected 90 centimeters on your left. Please move slightly to your right.", last.Message)

	nav.UpdateObjects([]detect.DetectedObject{{ClassName: "dog", Direction: detect.Right, Distance: 140}})
	advanceTick(t, nav, clock) // 1.2s, new text but inside the debounce interval
	advanceTick(t, nav, clock) // 2.4s
	assert.Len(t, sink.messages(), 1)

	// by 3.6s the reading is stale, so the camera branch takes over
	advanceTick(t, nav, clock)
	last = sink.last()
	assert.False(t, last.Urgent)
	assert.Equal(t, "a dog is present at 140 cm at your right. Please move slightly to your left.", last.Message)
}

func TestNavigatorStop(t *testing.T) {
	nav, sink, store, clock := newTestNavigator(t)
	rec := &fakeRecorder{}
	nav.cfg.Recorder = rec

	assert.ErrorIs(t, nav.Stop(), ErrNotRunning)
	require.NoError(t, nav.Start(context.Background()))
	assert.Equal(t, 1, store.Subscribers())

	require.NoError(t, nav.Stop())
	assert.False(t, nav.Active())
	assert.Equal(t, 0, store.Subscribers())
	assert.Equal(t, []string{PathClear, StoppedMessage}, sink.messages())
	assert.Equal(t, []bool{true}, sink.flushes)
	assert.Len(t, rec.seen, 1)

	// no further ticks
	clock.Advance(10 * DefaultTickPeriod)
	assert.False(t, nav.Tick(clock.Now()))
	assert.Len(t, sink.messages(), 2)
	assert.ErrorIs(t, nav.Stop(), ErrNotRunning)
}

func TestNavigatorEnqueueFailure(t *testing.T) {
	nav, sink, _, _ := newTestNavigator(t)
	sink.err = errors.New("closed")
	require.NoError(t, nav.Start(context.Background()))
	_, ok := nav.LastInstruction()
	assert.False(t, ok)
	assert.Error(t, nav.Stop())
}

func TestNavigatorTicksNeverOverlap(t *testing.T) {
	nav, _, _, clock := newTestNavigator(t)
	require.NoError(t, nav.Start(context.Background()))
	defer nav.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				nav.UpdateObjects([]detect.DetectedObject{{ClassName: "cup", Distance: float64(10 + i + j)}})
				nav.Tick(clock.Now().Add(time.Duration(j) * time.Second))
			}
		}(i)
	}
	wg.Wait()
	ticks, _ := nav.Counts()
	assert.Equal(t, int64(401), ticks)
}

func TestControllerCommands(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	store := sensor.NewStore(clock, 0)
	sink := &fakeSink{}
	ctrl := NewController(Config{Clock: clock}, store, sink, sensor.NewAlertTracker(0))
	ctx := context.Background()

	assert.Equal(t, NotRunningMessage, ctrl.HandleCommand(ctx, "please stop navigation"))
	assert.Equal(t, StartingMessage, ctrl.HandleCommand(ctx, "Start Navigation"))
	assert.True(t, ctrl.Running())
	assert.Equal(t, AlreadyRunningMessage, ctrl.HandleCommand(ctx, "start navigation now"))
	assert.Equal(t, TutorialMessage, ctrl.HandleCommand(ctx, "app tutorial"))
	assert.Equal(t, UnknownCommandMessage, ctrl.HandleCommand(ctx, "open the pod bay doors"))
	assert.Equal(t, StoppedMessage, ctrl.HandleCommand(ctx, "stop navigation"))
	assert.False(t, ctrl.Running())

	assert.Equal(t, []string{
		NotRunningMessage,
		StartingMessage,
		PathClear,
		AlreadyRunningMessage,
		TutorialMessage,
		UnknownCommandMessage,
		StoppedMessage,
	}, sink.messages())
}

func TestControllerCarriesObjectsIntoNewSession(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	sink := &fakeSink{}
	ctrl := NewController(Config{Clock: clock}, sensor.NewStore(clock, 0), sink, nil)

	ctrl.UpdateObjects([]detect.DetectedObject{{ClassName: "chair", Direction: detect.Front, Distance: 100}})
	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	assert.Equal(t, "a chair is present at 100 cm in front. Please move slightly to your left or right to avoid the object in front.", sink.last().Message)
	assert.NotNil(t, ctrl.Navigator())
}

type sessionRecorder struct {
	fakeRecorder
	events []string
}

func (r *sessionRecorder) BeginSession(time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "begin")
	return nil
}

func (r *sessionRecorder) EndSession(time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "end")
	return nil
}

func TestControllerBracketsSessions(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	rec := &sessionRecorder{}
	ctrl := NewController(Config{Clock: clock, Recorder: rec}, sensor.NewStore(clock, 0), &fakeSink{}, nil)

	require.NoError(t, ctrl.Start(context.Background()))
	require.NoError(t, ctrl.Stop())
	require.NoError(t, ctrl.Start(context.Background()))
	require.NoError(t, ctrl.Stop())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"begin", "end", "begin", "end"}, rec.events)
	assert.Equal(t, []Instruction{{Text: PathClear}, {Text: PathClear}}, rec.seen)
}

func TestControllerProximityAlerts(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	sink := &fakeSink{}
	ctrl := NewController(Config{Clock: clock}, sensor.NewStore(clock, 0), sink, sensor.NewAlertTracker(0))

	ctrl.ObserveReading(sensor.Reading{Direction: detect.Right, DistanceCM: 40, At: epoch})
	require.Len(t, sink.messages(), 1)
	e := sink.last()
	assert.Equal(t, "Danger! Very close obstacle on your right!", e.Message)
	assert.True(t, e.Urgent)
	assert.Equal(t, 800*time.Millisecond, e.Haptic)

	// same level inside the repeat window is quiet
	ctrl.ObserveReading(sensor.Reading{Direction: detect.Right, DistanceCM: 45, At: epoch.Add(time.Second)})
	assert.Len(t, sink.messages(), 1)

	// clear path speaks without vibration
	ctrl.ObserveReading(sensor.Reading{Direction: detect.Right, DistanceCM: 300, At: epoch.Add(2 * time.Second)})
	assert.Equal(t, dispatch.NoHaptic, sink.last().Haptic)

	// busy queue suppresses the alert
	sink.state = dispatch.Speaking
	ctrl.ObserveReading(sensor.Reading{Direction: detect.Left, DistanceCM: 120, At: epoch.Add(3 * time.Second)})
	assert.Len(t, sink.messages(), 2)
	sink.state = dispatch.Idle

	// navigation takes over the sensor
	require.NoError(t, ctrl.Start(context.Background()))
	n := len(sink.messages())
	ctrl.ObserveReading(sensor.Reading{Direction: detect.Left, DistanceCM: 20, At: epoch.Add(4 * time.Second)})
	assert.Len(t, sink.messages(), n)
	require.NoError(t, ctrl.Stop())
	assert.ErrorIs(t, ctrl.Stop(), ErrNotRunning)
}

func TestNavigatorWithDispatchQueue(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	store := sensor.NewStore(clock, 0)
	speaker := dispatch.NewMockSpeaker(true)
	queue := dispatch.NewQueue(speaker, nil, dispatch.QueueConfig{Settle: -1, Clock: clock})
	defer queue.Close()

	nav := NewNavigator(Config{Clock: clock}, store, queue)
	require.NoError(t, nav.Start(context.Background()))
	require.NoError(t, nav.Stop())
	require.NoError(t, queue.Drain(context.Background()))
	assert.Equal(t, []string{PathClear, StoppedMessage}, speaker.Spoken())
}
