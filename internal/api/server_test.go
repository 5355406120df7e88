package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/visionassist/internal/db"
	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/dispatch"
	"github.com/banshee-data/visionassist/internal/navigation"
	"github.com/banshee-data/visionassist/internal/sensor"
	"github.com/banshee-data/visionassist/internal/timeutil"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server  *Server
	ctrl    *navigation.Controller
	store   *sensor.Store
	queue   *dispatch.Queue
	speaker *dispatch.MockSpeaker
	db      *db.DB
	cancel  context.CancelFunc
}

func setupTestServer(t *testing.T, withDB bool) *testEnv {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	store := sensor.NewStore(clock, 0)
	speaker := dispatch.NewMockSpeaker(true)
	queue := dispatch.NewQueue(speaker, &dispatch.MockVibrator{}, dispatch.QueueConfig{Settle: -1, Clock: clock})

	var database *db.DB
	cfg := navigation.Config{Clock: clock}
	if withDB {
		var err error
		database, err = db.NewDB(filepath.Join(t.TempDir(), "journal.db"))
		if err != nil {
			t.Fatalf("Failed to create database: %v", err)
		}
		cfg.Recorder = db.NewJournal(database)
	}
	ctrl := navigation.NewController(cfg, store, queue, nil)

	ctx, cancel := context.WithCancel(context.Background())
	env := &testEnv{
		server:  NewServer(ctx, ctrl, store, queue, database),
		ctrl:    ctrl,
		store:   store,
		queue:   queue,
		speaker: speaker,
		db:      database,
		cancel:  cancel,
	}
	t.Cleanup(func() {
		if ctrl.Running() {
			ctrl.Stop()
		}
		cancel()
		queue.Close()
		if database != nil {
			database.Close()
		}
	})
	return env
}

func (e *testEnv) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.server.ServeMux().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestStatusIdle(t *testing.T) {
	env := setupTestServer(t, false)
	env.store.Update(sensor.Reading{Direction: detect.Front, DistanceCM: 90, At: epoch})

	w := env.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, "dev", body["version"])
	assert.Equal(t, false, body["navigating"])
	q := body["queue"].(map[string]interface{})
	assert.Equal(t, "idle", q["state"])
	s := body["sensor"].(map[string]interface{})
	assert.Equal(t, "front", s["direction"])
	assert.Equal(t, float64(90), s["distance_cm"])
	assert.NotContains(t, body, "link")

	w = env.do(http.MethodPost, "/api/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestStartStopNavigation(t *testing.T) {
	env := setupTestServer(t, false)

	w := env.do(http.MethodPost, "/api/navigation/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["navigating"])
	assert.Equal(t, navigation.PathClear, body["last_instruction"])

	w = env.do(http.MethodPost, "/api/navigation/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["error"], "already running")

	// the session outlives the request that started it
	assert.True(t, env.ctrl.Running())

	w = env.do(http.MethodPost, "/api/navigation/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["navigating"])

	w = env.do(http.MethodPost, "/api/navigation/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/api/navigation/start", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	require.Eventually(t, func() bool {
		spoken := env.speaker.Spoken()
		return len(spoken) == 2 && spoken[1] == navigation.StoppedMessage
	}, time.Second, 5*time.Millisecond)
}

func TestCommandHandler(t *testing.T) {
	env := setupTestServer(t, false)

	w := env.do(http.MethodPost, "/api/command", url.Values{"text": {"Start navigation please"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, navigation.StartingMessage, decode(t, w)["reply"])
	assert.True(t, env.ctrl.Running())

	w = env.do(http.MethodPost, "/api/command", url.Values{"text": {"sing a song"}})
	assert.Equal(t, navigation.UnknownCommandMessage, decode(t, w)["reply"])

	w = env.do(http.MethodPost, "/api/command", url.Values{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/command", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestJournalListings(t *testing.T) {
	env := setupTestServer(t, true)
	require.NoError(t, env.db.RecordReading("", sensor.Reading{Direction: detect.Left, DistanceCM: 60, At: epoch}))
	require.NoError(t, env.db.RecordReading("", sensor.Reading{Direction: detect.Right, DistanceCM: 30, At: epoch.Add(time.Second)}))

	w := env.do(http.MethodPost, "/api/navigation/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/instructions?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var instructions []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &instructions))
	require.Len(t, instructions, 1)
	assert.Equal(t, navigation.PathClear, instructions[0]["text"])
	assert.NotEmpty(t, instructions[0]["session_id"])

	w = env.do(http.MethodGet, "/api/readings?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var readings []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &readings))
	require.Len(t, readings, 1)
	assert.Equal(t, "right", readings[0]["direction"])

	for _, bad := range []string{"0", "abc", "5000"} {
		w = env.do(http.MethodGet, "/api/readings?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", bad)
	}
}

func TestListingsWithoutJournal(t *testing.T) {
	env := setupTestServer(t, false)
	for _, path := range []string{"/api/instructions", "/api/readings"} {
		w := env.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestEmptyListingsAreArrays(t *testing.T) {
	env := setupTestServer(t, true)
	w := env.do(http.MethodGet, "/api/instructions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestLoggingMiddleware(t *testing.T) {
	called := false
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status?x=1", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen},
		{302, colorYellow},
		{404, colorBoldRed},
		{503, colorBoldRed},
		{100, "100"},
	}
	for _, tt := range tests {
		assert.Contains(t, statusCodeColor(tt.code), tt.want)
	}
}
