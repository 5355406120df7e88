package sensor

import "github.com/banshee-data/visionassist/internal/monitoring"

var logs = monitoring.NewStreams("[sensor] ")

func tracef(format string, args ...interface{}) {
	logs.Tracef(format, args...)
}
