package detect

import (
	"fmt"
	"math"
)

// DecoderConfig holds decode thresholds.
type DecoderConfig struct {
	// ConfidenceThreshold is exclusive: a class score must exceed it.
	ConfidenceThreshold float64
}

// DefaultDecoderConfig returns the production threshold.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{ConfidenceThreshold: 0.3}
}

// Decode converts one raw output tensor into candidate boxes.
//
// For every element the highest class score above the threshold selects the
// class. Boxes whose corners leave [0,1] are rejected silently. The result is
// unordered; ErrNoDetections is returned when nothing survives.
func Decode(t Tensor, labels Labels, cfg DecoderConfig) ([]DetectedObject, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	threshold := float32(cfg.ConfidenceThreshold)
	var out []DetectedObject

	for e := 0; e < t.Elements; e++ {
		maxConf := threshold
		maxIdx := -1
		idx := e + t.Elements*4
		for c := 4; c < t.Channels; c++ {
			if v := t.Data[idx]; v > maxConf {
				maxConf = v
				maxIdx = c - 4
			}
			idx += t.Elements
		}
		if maxIdx < 0 {
			continue
		}
		if maxIdx >= len(labels) {
			return nil, fmt.Errorf("%w: class %d with %d labels", ErrLabelIndex, maxIdx, len(labels))
		}

		cx := float64(t.At(0, e))
		cy := float64(t.At(1, e))
		w := float64(t.At(2, e))
		h := float64(t.At(3, e))

		obj, ok := buildObject(cx, cy, w, h)
		if !ok {
			tracef("element %d rejected: cx=%.3f cy=%.3f w=%.3f h=%.3f", e, cx, cy, w, h)
			continue
		}
		obj.Confidence = float64(maxConf)
		obj.Class = maxIdx
		obj.ClassName = labels[maxIdx]
		out = append(out, obj)
	}

	if len(out) == 0 {
		return nil, ErrNoDetections
	}
	return out, nil
}

// buildObject reconstructs corners and validates them.
func buildObject(cx, cy, w, h float64) (DetectedObject, bool) {
	for _, v := range []float64{cx, cy, w, h} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return DetectedObject{}, false
		}
	}
	x1 := cx - w/2
	y1 := cy - h/2
	x2 := cx + w/2
	y2 := cy + h/2
	if x1 < 0 || x2 > 1 || y1 < 0 || y2 > 1 {
		return DetectedObject{}, false
	}
	return DetectedObject{
		X1: x1, Y1: y1, X2: x2, Y2: y2,
		CX: cx, CY: cy, W: w, H: h,
		Direction: DirectionOf(cx),
	}, true
}
