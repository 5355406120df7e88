package dispatch

import "github.com/banshee-data/visionassist/internal/monitoring"

var logs = monitoring.NewStreams("[dispatch] ")

func diagf(format string, args ...interface{}) {
	logs.Diagf(format, args...)
}
