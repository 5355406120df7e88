// Package distance estimates real-world distance from a box's pixel width
// using a pinhole camera model, then smooths estimates per class.
package distance

import (
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/visionassist/internal/detect"
)

// Defaults for the pinhole model.
const (
	DefaultObjectWidth     = 50.0  // cm, for classes missing from the width table
	DefaultFocalLengthPx   = 800.0 // used when camera intrinsics are unavailable
	DefaultCalibration     = 1.05
	DefaultSmoothingWindow = 5
)

// DefaultWidths holds typical real-world widths in centimeters keyed by
// lower-case class name.
var DefaultWidths = map[string]float64{
	"person":        45,
	"bicycle":       60,
	"car":           170,
	"motorbike":     70,
	"motorcycle":    70,
	"bus":           250,
	"truck":         250,
	"train":         300,
	"boat":          200,
	"bottle":        7,
	"cup":           8,
	"dog":           30,
	"cat":           25,
	"chair":         45,
	"laptop":        33,
	"tv":            90,
	"book":          20,
	"door":          80,
	"staircase":     120,
	"pothole":       50,
	"bench":         150,
	"couch":         200,
	"bed":           160,
	"dining table":  150,
	"potted plant":  40,
	"fire hydrant":  30,
	"stop sign":     75,
	"traffic light": 35,
	"suitcase":      45,
	"backpack":      30,
	"umbrella":      90,
}

// Config parameterizes an Estimator.
type Config struct {
	FocalLengthPx float64
	TensorWidth   int // model input width in pixels
	Calibration   float64
	Window        int
	DefaultWidth  float64
	Widths        map[string]float64 // merged over DefaultWidths
}

// Estimator converts box widths to distances and keeps a short per-class
// history used for smoothing. Smoothing is keyed by the lower-cased class
// name only, so simultaneous boxes of one class share a history.
type Estimator struct {
	focalPx      float64
	tensorWidth  float64
	calibration  float64
	window       int
	defaultWidth float64
	widths       map[string]float64

	mu      sync.Mutex
	history map[string][]float64
}

// NewEstimator builds an Estimator, filling zero fields with defaults.
func NewEstimator(cfg Config) *Estimator {
	if cfg.FocalLengthPx <= 0 {
		cfg.FocalLengthPx = DefaultFocalLengthPx
	}
	if cfg.Calibration <= 0 {
		cfg.Calibration = DefaultCalibration
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultSmoothingWindow
	}
	if cfg.DefaultWidth <= 0 {
		cfg.DefaultWidth = DefaultObjectWidth
	}

	widths := make(map[string]float64, len(DefaultWidths)+len(cfg.Widths))
	for k, v := range DefaultWidths {
		widths[k] = v
	}
	for k, v := range cfg.Widths {
		widths[strings.ToLower(k)] = v
	}

	return &Estimator{
		focalPx:      cfg.FocalLengthPx,
		tensorWidth:  float64(cfg.TensorWidth),
		calibration:  cfg.Calibration,
		window:       cfg.Window,
		defaultWidth: cfg.DefaultWidth,
		widths:       widths,
		history:      make(map[string][]float64),
	}
}

// KnownWidth returns the real width for a class, or the default width.
func (e *Estimator) KnownWidth(class string) float64 {
	if w, ok := e.widths[strings.ToLower(class)]; ok {
		return w
	}
	return e.defaultWidth
}

// Raw returns the unsmoothed distance in cm for a normalized box width.
// Non-positive widths or an unknown tensor width yield 0.
func (e *Estimator) Raw(class string, widthNorm float64) float64 {
	boxWidthPx := widthNorm * e.tensorWidth
	if boxWidthPx <= 0 {
		return 0
	}
	return e.KnownWidth(class) * e.focalPx / boxWidthPx * e.calibration
}

// Estimate computes the raw distance, pushes it onto the class history and
// returns the mean of the retained samples.
func (e *Estimator) Estimate(class string, widthNorm float64) float64 {
	raw := e.Raw(class, widthNorm)
	if raw <= 0 {
		return 0
	}

	key := strings.ToLower(class)
	e.mu.Lock()
	defer e.mu.Unlock()
	h := append(e.history[key], raw)
	if len(h) > e.window {
		h = h[len(h)-e.window:]
	}
	e.history[key] = h
	return stat.Mean(h, nil)
}

// Annotate returns copies of boxes with Distance filled in, in order.
func (e *Estimator) Annotate(boxes []detect.DetectedObject) []detect.DetectedObject {
	out := make([]detect.DetectedObject, len(boxes))
	for i, b := range boxes {
		b.Distance = e.Estimate(b.ClassName, b.W)
		out[i] = b
	}
	return out
}

// History returns a copy of the retained samples for a class.
func (e *Estimator) History(class string) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.history[strings.ToLower(class)]...)
}

// Reset drops all smoothing history.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = make(map[string][]float64)
}
