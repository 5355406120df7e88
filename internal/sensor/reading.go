// Package sensor holds the latest proximity reading from the ultrasonic
// sensor module and the serial link that feeds it.
package sensor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/visionassist/internal/detect"
)

// Reading is one parsed proximity sample from the user's perspective.
type Reading struct {
	Direction  detect.Direction `json:"direction"`
	DistanceCM int              `json:"distance_cm"`
	At         time.Time        `json:"at"`
}

func (r Reading) String() string {
	return fmt.Sprintf("%s %dcm", r.Direction, r.DistanceCM)
}

// ParseMessage parses a module message such as "OBSTACLE_Left_37cm".
// The module is mounted facing the user, so Left and Right are swapped.
// Messages without OBSTACLE or without a positive distance are rejected.
// The returned reading has no timestamp.
func ParseMessage(msg string) (Reading, bool) {
	msg = strings.TrimSpace(msg)
	if !strings.Contains(msg, "OBSTACLE") {
		return Reading{}, false
	}

	dir := detect.Front
	switch {
	case strings.Contains(msg, "Left"):
		dir = detect.Right
	case strings.Contains(msg, "Right"):
		dir = detect.Left
	}

	suffix := msg
	if i := strings.LastIndex(msg, "_"); i >= 0 {
		suffix = msg[i+1:]
	}
	suffix = strings.TrimSpace(strings.ReplaceAll(suffix, "cm", ""))
	d, err := strconv.Atoi(suffix)
	if err != nil || d <= 0 {
		return Reading{}, false
	}
	return Reading{Direction: dir, DistanceCM: d}, true
}
