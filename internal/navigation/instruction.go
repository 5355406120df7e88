// Package navigation fuses camera detections and the proximity sensor into
// spoken walking instructions.
package navigation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/sensor"
)

// PathClear is spoken when nothing is close.
const PathClear = "Path is clear."

// Instruction is one generated message. Urgent marks sensor-origin
// instructions, which get the longer vibration.
type Instruction struct {
	Text   string `json:"text"`
	Urgent bool   `json:"urgent"`
}

// GeneratorConfig holds the fusion distances.
type GeneratorConfig struct {
	SensorPriorityCM int     // sensor readings at or below this take priority
	CameraConsiderCM float64 // camera boxes beyond this are ignored
	MaxNarrated      int     // objects described per instruction
}

// DefaultGeneratorConfig returns the standard fusion distances.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		SensorPriorityCM: 150,
		CameraConsiderCM: 300,
		MaxNarrated:      3,
	}
}

// Generate builds the instruction for the current sensor reading (nil when
// there is none) and annotated boxes.
func Generate(reading *sensor.Reading, objects []detect.DetectedObject, cfg GeneratorConfig) Instruction {
	nearby := nearbyObjects(objects, cfg.CameraConsiderCM)

	if reading != nil && reading.DistanceCM <= cfg.SensorPriorityCM {
		return sensorInstruction(*reading, nearby, cfg.MaxNarrated)
	}
	if len(nearby) > 0 {
		return cameraInstruction(nearby, cfg.MaxNarrated)
	}
	return Instruction{Text: PathClear}
}

// nearbyObjects keeps boxes with a known distance inside the limit, nearest
// first.
func nearbyObjects(objects []detect.DetectedObject, limit float64) []detect.DetectedObject {
	var out []detect.DetectedObject
	for _, o := range objects {
		if o.Distance > 0 && o.Distance <= limit {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

func narrated(objects []detect.DetectedObject, max int) []detect.DetectedObject {
	if max > 0 && len(objects) > max {
		return objects[:max]
	}
	return objects
}

func objectName(o detect.DetectedObject) string {
	if strings.TrimSpace(o.ClassName) == "" {
		return "object"
	}
	return o.ClassName
}

func roundCM(d float64) int {
	return int(math.Round(d))
}

type directionCounts struct {
	left, front, right int
}

func countDirections(objects []detect.DetectedObject) directionCounts {
	var c directionCounts
	for _, o := range objects {
		switch o.Direction {
		case detect.Left:
			c.left++
		case detect.Right:
			c.right++
		default:
			c.front++
		}
	}
	return c
}

func sensorInstruction(r sensor.Reading, nearby []detect.DetectedObject, max int) Instruction {
	var b strings.Builder
	fmt.Fprintf(&b, "Obstacle detected %d centimeters on your %s.", r.DistanceCM, r.Direction)

	if list := narrated(nearby, max); len(list) > 0 {
		parts := make([]string, len(list))
		for i, o := range list {
			parts[i] = fmt.Sprintf("a %s at %d cm at your %s", objectName(o), roundCM(o.Distance), o.Direction)
		}
		b.WriteString(" Also, ")
		b.WriteString(strings.Join(parts, " and "))
		b.WriteString(".")
	}

	b.WriteString(" ")
	b.WriteString(sensorMove(r.Direction, countDirections(nearby)))
	return Instruction{Text: b.String(), Urgent: true}
}

// sensorMove steers away from the sensor's side unless the camera sees more
// on the escape side than elsewhere.
func sensorMove(dir detect.Direction, c directionCounts) string {
	switch dir {
	case detect.Left:
		if c.right <= c.left && c.right <= c.front {
			return "Please move slightly to your right."
		}
		return "Please move forward carefully."
	case detect.Right:
		if c.left <= c.right && c.left <= c.front {
			return "Please move slightly to your left."
		}
		return "Please move forward carefully."
	case detect.Front:
		if c.left <= c.right {
			return "Please move slightly to your left."
		}
		return "Please move slightly to your right."
	default:
		return "Please adjust your direction to avoid the obstacle."
	}
}

func directionPhrase(d detect.Direction) string {
	switch d {
	case detect.Left:
		return "at your left"
	case detect.Right:
		return "at your right"
	default:
		return "in front"
	}
}

func cameraInstruction(nearby []detect.DetectedObject, max int) Instruction {
	list := narrated(nearby, max)
	parts := make([]string, len(list))
	for i, o := range list {
		parts[i] = fmt.Sprintf("a %s is present at %d cm %s", objectName(o), roundCM(o.Distance), directionPhrase(o.Direction))
	}
	c := countDirections(nearby)
	return Instruction{Text: strings.Join(parts, " and ") + ". " + cameraSuggestion(c)}
}

// cameraSuggestion picks advice from the exact set of occupied directions.
func cameraSuggestion(c directionCounts) string {
	left, front, right := c.left > 0, c.front > 0, c.right > 0
	switch {
	case left && front && right:
		return "Obstacles all around. Please stop and turn around."
	case left && front:
		return "Please move towards your right."
	case right && front:
		return "Please move towards your left."
	case left && right:
		return "Objects on both sides. Move forward carefully."
	case front:
		return "Please move slightly to your left or right to avoid the object in front."
	case left:
		return "Please move slightly to your right."
	case right:
		return "Please move slightly to your left."
	default:
		return PathClear
	}
}
