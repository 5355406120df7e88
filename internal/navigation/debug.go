package navigation

import "github.com/banshee-data/visionassist/internal/monitoring"

var logs = monitoring.NewStreams("[navigation] ")

func diagf(format string, args ...interface{}) {
	logs.Diagf(format, args...)
}

func tracef(format string, args ...interface{}) {
	logs.Tracef(format, args...)
}
