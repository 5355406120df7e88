package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/visionassist/internal/detect"
)

func newTestEstimator() *Estimator {
	return NewEstimator(Config{FocalLengthPx: 800, TensorWidth: 640})
}

func TestRawDistance(t *testing.T) {
	e := newTestEstimator()

	// person: 45cm * 800px / (0.25 * 640px) * 1.05
	assert.InDelta(t, 45.0*800/160*1.05, e.Raw("person", 0.25), 1e-9)
	assert.InDelta(t, 45.0*800/160*1.05, e.Raw("Person", 0.25), 1e-9)
	// unknown classes use 50cm
	assert.InDelta(t, 50.0*800/160*1.05, e.Raw("hoverboard", 0.25), 1e-9)
	assert.Equal(t, 0.0, e.Raw("person", 0))
	assert.Equal(t, 0.0, NewEstimator(Config{}).Raw("person", 0.5))
}

func TestWidthOverrides(t *testing.T) {
	e := NewEstimator(Config{TensorWidth: 640, Widths: map[string]float64{"Kiosk": 120, "person": 50}})
	assert.Equal(t, 120.0, e.KnownWidth("kiosk"))
	assert.Equal(t, 50.0, e.KnownWidth("person"))
	assert.Equal(t, 170.0, e.KnownWidth("car"))
	assert.Equal(t, DefaultObjectWidth, e.KnownWidth("unknown"))
}

func TestSmoothingConvergesToConstant(t *testing.T) {
	e := newTestEstimator()
	e.Estimate("car", 0.1) // an outlier that must age out
	want := e.Raw("car", 0.5)

	var got float64
	for i := 0; i < DefaultSmoothingWindow; i++ {
		got = e.Estimate("car", 0.5)
	}
	assert.InDelta(t, want, got, 1e-9)
}

func TestHistoryNeverExceedsWindow(t *testing.T) {
	e := newTestEstimator()
	for i := 1; i <= 20; i++ {
		e.Estimate("person", float64(i)/40)
		require.LessOrEqual(t, len(e.History("person")), DefaultSmoothingWindow)
	}
	h := e.History("person")
	require.Len(t, h, DefaultSmoothingWindow)
	// FIFO: the newest sample is last
	assert.InDelta(t, e.Raw("person", 20.0/40), h[len(h)-1], 1e-9)
	assert.InDelta(t, e.Raw("person", 16.0/40), h[0], 1e-9)
}

func TestSmoothingIsPerClass(t *testing.T) {
	e := newTestEstimator()
	e.Estimate("person", 0.2)
	e.Estimate("chair", 0.4)

	assert.Len(t, e.History("person"), 1)
	assert.Len(t, e.History("chair"), 1)

	e.Reset()
	assert.Empty(t, e.History("person"))
}

func TestSmoothingIgnoresClassCase(t *testing.T) {
	e := newTestEstimator()
	e.Estimate("Person", 0.2)
	got := e.Estimate("person", 0.4)

	assert.Len(t, e.History("person"), 2)
	assert.Len(t, e.History("PERSON"), 2)
	assert.InDelta(t, (e.Raw("person", 0.2)+e.Raw("person", 0.4))/2, got, 1e-9)
}

func TestAnnotateSharesClassBuffer(t *testing.T) {
	e := newTestEstimator()
	boxes := []detect.DetectedObject{
		{ClassName: "person", W: 0.2},
		{ClassName: "person", W: 0.4},
	}
	out := e.Annotate(boxes)

	require.Len(t, out, 2)
	assert.Equal(t, 0.0, boxes[0].Distance, "input must not be mutated")
	assert.InDelta(t, e.Raw("person", 0.2), out[0].Distance, 1e-9)
	// second box is averaged with the first one's sample
	assert.InDelta(t, (e.Raw("person", 0.2)+e.Raw("person", 0.4))/2, out[1].Distance, 1e-9)
}

func TestZeroWidthLeavesHistoryAlone(t *testing.T) {
	e := newTestEstimator()
	assert.Equal(t, 0.0, e.Estimate("person", 0))
	assert.Empty(t, e.History("person"))
}

func TestFocalLengthPx(t *testing.T) {
	assert.Equal(t, 800.0, FocalLengthPx(nil, 640, 800))
	assert.Equal(t, 800.0, FocalLengthPx(&Intrinsics{}, 0, 800))

	intr := &Intrinsics{FocalLengthMM: 4.25, SensorWidthMM: 5.6, SensorWidthPx: 4032}
	assert.InDelta(t, 4.25/5.6*640, FocalLengthPx(intr, 640, 800), 1e-9)

	// zero fields take phone-camera fallbacks
	assert.InDelta(t, 4.0/3.68*320, FocalLengthPx(&Intrinsics{}, 320, 800), 1e-9)
}
