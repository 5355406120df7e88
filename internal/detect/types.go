// Package detect decodes raw detector output tensors into classified,
// direction-bucketed boxes and removes duplicate detections.
package detect

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDetections is returned by Decode when no element passes the
	// confidence threshold with valid geometry.
	ErrNoDetections = errors.New("no detections")
	// ErrLabelIndex means the model produced a class index the label list
	// does not cover. It is a configuration error, not a per-frame one.
	ErrLabelIndex = errors.New("class index out of label range")
	// ErrTensorShape means the buffer does not match its declared shape.
	ErrTensorShape = errors.New("tensor shape mismatch")
)

// Direction is the coarse horizontal bucket of a box or sensor reading.
type Direction int

const (
	Front Direction = iota
	Left
	Right
)

// Bucket boundaries on the normalized horizontal center.
const (
	leftBoundary  = 0.33
	rightBoundary = 0.66
)

// DirectionOf buckets a normalized horizontal center.
func DirectionOf(cx float64) Direction {
	switch {
	case cx < leftBoundary:
		return Left
	case cx < rightBoundary:
		return Front
	default:
		return Right
	}
}

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "front"
	}
}

// MarshalText lets directions appear as words in JSON.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDirection is the inverse of String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "front":
		return Front, nil
	}
	return Front, fmt.Errorf("unknown direction %q", s)
}

// DetectedObject is one classified box in normalized image coordinates.
// Values are built once per detection cycle and never mutated afterwards.
type DetectedObject struct {
	X1, Y1, X2, Y2 float64
	CX, CY         float64
	W, H           float64
	Confidence     float64
	Class          int
	ClassName      string
	Distance       float64 // estimated distance in cm, 0 when unknown
	Direction      Direction
}

// Area returns the box area from its corner extents.
func (o DetectedObject) Area() float64 {
	w := o.X2 - o.X1
	h := o.Y2 - o.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (o DetectedObject) String() string {
	return fmt.Sprintf("%s(%.2f) %s cx=%.3f w=%.3f d=%.0fcm",
		o.ClassName, o.Confidence, o.Direction, o.CX, o.W, o.Distance)
}

// Tensor is a flat float32 buffer logically shaped [Channels][Elements],
// channel-major. Channels 0..3 are cx, cy, w, h; the rest are class scores.
type Tensor struct {
	Data     []float32
	Channels int
	Elements int
}

// At returns the value for element e of channel c.
func (t Tensor) At(c, e int) float32 {
	return t.Data[e+t.Elements*c]
}

// Validate checks the buffer length against the declared shape.
func (t Tensor) Validate() error {
	if t.Channels <= 4 || t.Elements <= 0 {
		return fmt.Errorf("%w: need more than 4 channels and at least one element, got [%d][%d]",
			ErrTensorShape, t.Channels, t.Elements)
	}
	if len(t.Data) != t.Channels*t.Elements {
		return fmt.Errorf("%w: %d values for shape [%d][%d]",
			ErrTensorShape, len(t.Data), t.Channels, t.Elements)
	}
	return nil
}
