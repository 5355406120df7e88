package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/visionassist/internal/db"
	"github.com/banshee-data/visionassist/internal/dispatch"
	"github.com/banshee-data/visionassist/internal/httputil"
	"github.com/banshee-data/visionassist/internal/navigation"
	"github.com/banshee-data/visionassist/internal/pipeline"
	"github.com/banshee-data/visionassist/internal/sensor"
	"github.com/banshee-data/visionassist/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Server exposes navigation status and control over HTTP.
type Server struct {
	// ctx bounds sessions started over HTTP, in place of the request context.
	ctx   context.Context
	ctrl  *navigation.Controller
	store *sensor.Store
	queue *dispatch.Queue
	db    *db.DB

	link     *sensor.Link
	pipeline *pipeline.Pipeline
}

// NewServer returns a server. db may be nil when journaling is disabled.
func NewServer(ctx context.Context, ctrl *navigation.Controller, store *sensor.Store, queue *dispatch.Queue, database *db.DB) *Server {
	return &Server{
		ctx:   ctx,
		ctrl:  ctrl,
		store: store,
		queue: queue,
		db:    database,
	}
}

// SetLink adds the proximity link's counters to the status report.
func (s *Server) SetLink(l *sensor.Link) { s.link = l }

// SetPipeline adds the detection pipeline's counters to the status report.
func (s *Server) SetPipeline(p *pipeline.Pipeline) { s.pipeline = p }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/navigation/start", s.startNavigation)
	mux.HandleFunc("/api/navigation/stop", s.stopNavigation)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/instructions", s.listInstructions)
	mux.HandleFunc("/api/readings", s.listReadings)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

// Status is the /api/status response.
type Status struct {
	Version         string            `json:"version"`
	Navigating      bool              `json:"navigating"`
	LastInstruction string            `json:"last_instruction,omitempty"`
	Ticks           int64             `json:"ticks"`
	Forwarded       int64             `json:"forwarded"`
	Queue           QueueStatus       `json:"queue"`
	Sensor          *sensor.Reading   `json:"sensor,omitempty"`
	Link            *sensor.LinkStats `json:"link,omitempty"`
	Pipeline        *pipeline.Stats   `json:"pipeline,omitempty"`
}

// QueueStatus describes the speech queue.
type QueueStatus struct {
	State    dispatch.State      `json:"state"`
	Speaking *dispatch.Utterance `json:"speaking,omitempty"`
	Pending  int                 `json:"pending"`
	Stats    dispatch.Stats      `json:"stats"`
}

func (s *Server) status() Status {
	st := Status{Version: version.String(), Navigating: s.ctrl.Running()}
	if nav := s.ctrl.Navigator(); nav != nil {
		if in, ok := nav.LastInstruction(); ok {
			st.LastInstruction = in.Text
		}
		st.Ticks, st.Forwarded = nav.Counts()
	}

	st.Queue = QueueStatus{
		State:   s.queue.State(),
		Pending: len(s.queue.Pending()),
		Stats:   s.queue.Stats(),
	}
	if u, ok := s.queue.InFlight(); ok {
		st.Queue.Speaking = &u
	}

	if r, ok := s.store.Latest(); ok {
		st.Sensor = &r
	}
	if s.link != nil {
		ls := s.link.Stats()
		st.Link = &ls
	}
	if s.pipeline != nil {
		ps := s.pipeline.Stats()
		st.Pipeline = &ps
	}
	return st
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

func (s *Server) startNavigation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.ctrl.Start(s.ctx); err != nil {
		if err == navigation.ErrAlreadyRunning {
			s.writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start navigation: %v", err))
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

func (s *Server) stopNavigation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.ctrl.Stop(); err != nil {
		if err == navigation.ErrNotRunning {
			s.writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to stop navigation: %v", err))
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

// sendCommandHandler feeds a voice-command transcript to the controller
// and returns the spoken reply.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	text := r.FormValue("text")
	if text == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'text' parameter")
		return
	}
	reply := s.ctrl.HandleCommand(s.ctx, text)
	httputil.WriteJSONOK(w, map[string]string{"reply": reply})
}

func (s *Server) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := httputil.QueryLimit(r, defaultListLimit, maxListLimit)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return limit, true
}

func (s *Server) listInstructions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Journal disabled")
		return
	}
	limit, ok := s.limit(w, r)
	if !ok {
		return
	}
	records, err := s.db.RecentInstructions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve instructions: %v", err))
		return
	}
	if records == nil {
		records = []db.InstructionRecord{}
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Journal disabled")
		return
	}
	limit, ok := s.limit(w, r)
	if !ok {
		return
	}
	readings, err := s.db.RecentReadings(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}
	if readings == nil {
		readings = []sensor.Reading{}
	}
	httputil.WriteJSONOK(w, readings)
}
