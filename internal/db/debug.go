package db

import "github.com/banshee-data/visionassist/internal/monitoring"

var logs = monitoring.NewStreams("[db] ")

func diagf(format string, args ...interface{}) {
	logs.Diagf(format, args...)
}
