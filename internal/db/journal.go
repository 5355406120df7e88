package db

import (
	"sync"
	"time"

	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/navigation"
	"github.com/banshee-data/visionassist/internal/sensor"
)

// Journal tags everything it records with the current navigation session.
// It satisfies navigation.SessionRecorder. Readings and detections seen
// between sessions are stored without a session.
type Journal struct {
	db *DB

	mu      sync.Mutex
	session string
}

var _ navigation.SessionRecorder = (*Journal)(nil)

// NewJournal returns a journal writing to db.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

// Session returns the current session ID, or "" between sessions.
func (j *Journal) Session() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session
}

// BeginSession starts a new session row and makes it current.
func (j *Journal) BeginSession(at time.Time) error {
	id, err := j.db.StartSession(at)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.session = id
	j.mu.Unlock()
	diagf("session %s started", id)
	return nil
}

// EndSession closes the current session.
func (j *Journal) EndSession(at time.Time) error {
	j.mu.Lock()
	id := j.session
	j.session = ""
	j.mu.Unlock()
	if id == "" {
		return ErrUnknownSession
	}
	diagf("session %s stopped", id)
	return j.db.EndSession(id, at)
}

// RecordInstruction journals a forwarded instruction.
func (j *Journal) RecordInstruction(in navigation.Instruction, at time.Time) error {
	return j.db.RecordInstruction(j.Session(), in, at)
}

// RecordReading journals a sensor reading.
func (j *Journal) RecordReading(r sensor.Reading) error {
	return j.db.RecordReading(j.Session(), r)
}

// RecordDetections journals one frame's boxes.
func (j *Journal) RecordDetections(objects []detect.DetectedObject, at time.Time) error {
	return j.db.RecordDetections(j.Session(), objects, at)
}
