package distance

// Intrinsics describes the physical camera. Zero fields fall back to values
// typical of phone main cameras.
type Intrinsics struct {
	FocalLengthMM float64 `json:"focal_length_mm,omitempty"`
	SensorWidthMM float64 `json:"sensor_width_mm,omitempty"`
	SensorWidthPx int     `json:"sensor_width_px,omitempty"`
}

const (
	fallbackFocalLengthMM = 4.0
	fallbackSensorWidthMM = 3.68
	fallbackSensorWidthPx = 4000
)

// FocalLengthPx returns the focal length in pixels at the model's input
// resolution. Nil intrinsics or a non-positive tensor width return fallback.
func FocalLengthPx(intr *Intrinsics, tensorWidth int, fallback float64) float64 {
	if intr == nil || tensorWidth <= 0 {
		return fallback
	}
	focalMM := intr.FocalLengthMM
	if focalMM <= 0 {
		focalMM = fallbackFocalLengthMM
	}
	sensorMM := intr.SensorWidthMM
	if sensorMM <= 0 {
		sensorMM = fallbackSensorWidthMM
	}
	sensorPx := intr.SensorWidthPx
	if sensorPx <= 0 {
		sensorPx = fallbackSensorWidthPx
	}

	focalPx := focalMM / sensorMM * float64(sensorPx)
	return focalPx * float64(tensorWidth) / float64(sensorPx)
}
