package detect

import "github.com/banshee-data/visionassist/internal/monitoring"

var logs = monitoring.NewStreams("[detect] ")

// tracef logs to the trace stream (per-element decode telemetry).
func tracef(format string, args ...interface{}) {
	logs.Tracef(format, args...)
}
