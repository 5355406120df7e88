package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/navigation"
	"github.com/banshee-data/visionassist/internal/sensor"
)

// ErrUnknownSession is returned when ending a session that was never started.
var ErrUnknownSession = errors.New("unknown session")

// DB is the navigation journal: sessions, sensor readings, spoken
// instructions and camera detections. Times are stored as unix nanoseconds.
type DB struct {
	*sql.DB
}

// NewDB opens the sqlite database at path and migrates it to the latest
// schema.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Session is one navigation session. Stopped is nil while it runs.
type Session struct {
	ID      string     `json:"id"`
	Started time.Time  `json:"started"`
	Stopped *time.Time `json:"stopped,omitempty"`
}

// InstructionRecord is a journaled instruction.
type InstructionRecord struct {
	SessionID string    `json:"session_id,omitempty"`
	Text      string    `json:"text"`
	Urgent    bool      `json:"urgent"`
	At        time.Time `json:"at"`
}

// DistancePoint is one camera distance estimate for a class.
type DistancePoint struct {
	At         time.Time        `json:"at"`
	Direction  detect.Direction `json:"direction"`
	DistanceCM float64          `json:"distance_cm"`
	Confidence float64          `json:"confidence"`
}

// InstructionStats summarizes the journaled instructions.
type InstructionStats struct {
	Total       int           `json:"total"`
	Urgent      int           `json:"urgent"`
	UrgentRatio float64       `json:"urgent_ratio"`
	MeanGap     time.Duration `json:"mean_gap"`
}

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// nullSession stores the empty session ID as NULL, for readings journaled
// while no session runs.
func nullSession(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

// StartSession records a new session and returns its ID.
func (db *DB) StartSession(at time.Time) (string, error) {
	id := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`, id, nanos(at)); err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

// EndSession stamps the stop time of a session.
func (db *DB) EndSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET stopped_at = ? WHERE id = ?`, nanos(at), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT id, started_at, stopped_at FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started int64
		var stopped sql.NullInt64
		if err := rows.Scan(&s.ID, &started, &stopped); err != nil {
			return nil, err
		}
		s.Started = fromNanos(started)
		if stopped.Valid {
			t := fromNanos(stopped.Int64)
			s.Stopped = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecordReading journals a sensor reading. sessionID may be empty.
func (db *DB) RecordReading(sessionID string, r sensor.Reading) error {
	_, err := db.Exec(
		`INSERT INTO sensor_readings (session_id, direction, distance_cm, recorded_at) VALUES (?, ?, ?, ?)`,
		nullSession(sessionID), r.Direction.String(), r.DistanceCM, nanos(r.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// RecordInstruction journals a forwarded instruction.
func (db *DB) RecordInstruction(sessionID string, in navigation.Instruction, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO instructions (session_id, text, urgent, recorded_at) VALUES (?, ?, ?, ?)`,
		nullSession(sessionID), in.Text, in.Urgent, nanos(at),
	)
	if err != nil {
		return fmt.Errorf("failed to insert instruction: %w", err)
	}
	return nil
}

// RecordDetections journals one frame's boxes in a single transaction.
func (db *DB) RecordDetections(sessionID string, objects []detect.DetectedObject, at time.Time) error {
	if len(objects) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO detections (session_id, class_name, direction, distance_cm, confidence, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range objects {
		if _, err := stmt.Exec(nullSession(sessionID), o.ClassName, o.Direction.String(), o.Distance, o.Confidence, nanos(at)); err != nil {
			return fmt.Errorf("failed to insert detection %s: %w", o.ClassName, err)
		}
	}
	return tx.Commit()
}

// RecentReadings returns the latest sensor readings, newest first.
func (db *DB) RecentReadings(limit int) ([]sensor.Reading, error) {
	rows, err := db.Query(
		`SELECT direction, distance_cm, recorded_at FROM sensor_readings ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []sensor.Reading
	for rows.Next() {
		var dir string
		var at int64
		var r sensor.Reading
		if err := rows.Scan(&dir, &r.DistanceCM, &at); err != nil {
			return nil, err
		}
		if r.Direction, err = detect.ParseDirection(dir); err != nil {
			return nil, err
		}
		r.At = fromNanos(at)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// RecentInstructions returns the latest journaled instructions, newest first.
func (db *DB) RecentInstructions(limit int) ([]InstructionRecord, error) {
	rows, err := db.Query(
		`SELECT session_id, text, urgent, recorded_at FROM instructions ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InstructionRecord
	for rows.Next() {
		var rec InstructionRecord
		var session sql.NullString
		var at int64
		if err := rows.Scan(&session, &rec.Text, &rec.Urgent, &at); err != nil {
			return nil, err
		}
		rec.SessionID = session.String
		rec.At = fromNanos(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DistanceSeries returns the latest camera estimates for a class, oldest
// first.
func (db *DB) DistanceSeries(class string, limit int) ([]DistancePoint, error) {
	rows, err := db.Query(
		`SELECT recorded_at, direction, distance_cm, confidence FROM (
			SELECT id, recorded_at, direction, distance_cm, confidence FROM detections
			WHERE class_name = ? ORDER BY recorded_at DESC, id DESC LIMIT ?
		) ORDER BY recorded_at ASC, id ASC`,
		class, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []DistancePoint
	for rows.Next() {
		var p DistancePoint
		var at int64
		var dir string
		if err := rows.Scan(&at, &dir, &p.DistanceCM, &p.Confidence); err != nil {
			return nil, err
		}
		if p.Direction, err = detect.ParseDirection(dir); err != nil {
			return nil, err
		}
		p.At = fromNanos(at)
		points = append(points, p)
	}
	return points, rows.Err()
}

// InstructionStats summarizes the instructions of a session, or of all
// sessions when sessionID is empty.
func (db *DB) InstructionStats(sessionID string) (InstructionStats, error) {
	query := `SELECT urgent, recorded_at FROM instructions ORDER BY recorded_at ASC, id ASC`
	args := []interface{}{}
	if sessionID != "" {
		query = `SELECT urgent, recorded_at FROM instructions WHERE session_id = ? ORDER BY recorded_at ASC, id ASC`
		args = append(args, sessionID)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return InstructionStats{}, err
	}
	defer rows.Close()

	var urgent, gaps []float64
	var prev int64
	for rows.Next() {
		var u bool
		var at int64
		if err := rows.Scan(&u, &at); err != nil {
			return InstructionStats{}, err
		}
		if u {
			urgent = append(urgent, 1)
		} else {
			urgent = append(urgent, 0)
		}
		if len(urgent) > 1 {
			gaps = append(gaps, float64(at-prev))
		}
		prev = at
	}
	if err := rows.Err(); err != nil {
		return InstructionStats{}, err
	}

	st := InstructionStats{Total: len(urgent)}
	if st.Total == 0 {
		return st, nil
	}
	st.UrgentRatio = stat.Mean(urgent, nil)
	st.Urgent = int(st.UrgentRatio*float64(st.Total) + 0.5)
	if len(gaps) > 0 {
		st.MeanGap = time.Duration(stat.Mean(gaps, nil))
	}
	return st, nil
}
