package pipeline

import "github.com/banshee-data/visionassist/internal/monitoring"

var logs = monitoring.NewStreams("[pipeline] ")

// tracef logs to the trace stream (per-frame telemetry).
func tracef(format string, args ...interface{}) {
	logs.Tracef(format, args...)
}
