package detect

import (
	"math"
	"sort"
)

// IoU returns the intersection-over-union of two boxes' corner rectangles.
// A zero or negative union yields 0.
func IoU(a, b DetectedObject) float64 {
	x1 := math.Max(a.X1, b.X1)
	y1 := math.Max(a.Y1, b.Y1)
	x2 := math.Min(a.X2, b.X2)
	y2 := math.Min(a.Y2, b.Y2)

	inter := math.Max(0, x2-x1) * math.Max(0, y2-y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	iou := inter / union
	if iou > 1 {
		return 1
	}
	return iou
}

// Suppress runs greedy non-maximum suppression. Boxes are visited in
// descending confidence (ties keep their input order); each accepted box
// removes every remaining box overlapping it by at least iouThreshold.
// The input slice is left untouched.
func Suppress(boxes []DetectedObject, iouThreshold float64) []DetectedObject {
	if len(boxes) == 0 {
		return nil
	}
	sorted := make([]DetectedObject, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	removed := make([]bool, len(sorted))
	selected := make([]DetectedObject, 0, len(sorted))
	for i := range sorted {
		if removed[i] {
			continue
		}
		selected = append(selected, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if !removed[j] && IoU(sorted[i], sorted[j]) >= iouThreshold {
				removed[j] = true
			}
		}
	}
	return selected
}
