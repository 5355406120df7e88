package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/dispatch"
	"github.com/banshee-data/visionassist/internal/distance"
	"github.com/banshee-data/visionassist/internal/navigation"
	"github.com/banshee-data/visionassist/internal/pipeline"
	"github.com/banshee-data/visionassist/internal/sensor"
	"github.com/banshee-data/visionassist/internal/timeutil"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/navigation.defaults.json"

// NavigationConfig holds every tunable of the detection, fusion and speech
// stages. Unset fields fall back to the defaults returned by the Get*
// methods, so partial files are safe.
type NavigationConfig struct {
	// Detection
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	IoUThreshold        *float64 `json:"iou_threshold,omitempty"`

	// Distance estimation
	SmoothingWindow      *int                 `json:"smoothing_window,omitempty"`
	CalibrationFactor    *float64             `json:"calibration_factor,omitempty"`
	DefaultFocalLengthPx *float64             `json:"default_focal_length_px,omitempty"`
	DefaultObjectWidthCM *float64             `json:"default_object_width_cm,omitempty"`
	ObjectWidthsCM       map[string]float64   `json:"object_widths_cm,omitempty"`
	Camera               *distance.Intrinsics `json:"camera,omitempty"`

	// Fusion
	SensorPriorityCM *int     `json:"sensor_priority_cm,omitempty"`
	CameraConsiderCM *float64 `json:"camera_consider_cm,omitempty"`
	MaxNarrated      *int     `json:"max_narrated,omitempty"`
	DebounceInterval *string  `json:"debounce_interval,omitempty"` // duration string like "2500ms"
	RepeatInterval   *string  `json:"repeat_interval,omitempty"`
	TickPeriod       *string  `json:"tick_period,omitempty"`

	// Speech and vibration
	SettleDelay  *string `json:"settle_delay,omitempty"`
	UrgentHaptic *string `json:"urgent_haptic,omitempty"`
	NormalHaptic *string `json:"normal_haptic,omitempty"`

	// Proximity sensor
	SensorStaleAfter  *string `json:"sensor_stale_after,omitempty"`
	ReconnectInterval *string `json:"reconnect_interval,omitempty"`
	AlertRepeatAfter  *string `json:"alert_repeat_after,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyNavigationConfig returns a config with every field unset.
func EmptyNavigationConfig() *NavigationConfig {
	return &NavigationConfig{}
}

// DefaultNavigationConfig returns a config with every field set to its
// default. It matches config/navigation.defaults.json.
func DefaultNavigationConfig() *NavigationConfig {
	return &NavigationConfig{
		ConfidenceThreshold:  ptrFloat64(0.3),
		IoUThreshold:         ptrFloat64(0.5),
		SmoothingWindow:      ptrInt(5),
		CalibrationFactor:    ptrFloat64(1.05),
		DefaultFocalLengthPx: ptrFloat64(800),
		DefaultObjectWidthCM: ptrFloat64(50),
		SensorPriorityCM:     ptrInt(150),
		CameraConsiderCM:     ptrFloat64(300),
		MaxNarrated:          ptrInt(3),
		DebounceInterval:     ptrString("2500ms"),
		RepeatInterval:       ptrString("3s"),
		TickPeriod:           ptrString("1200ms"),
		SettleDelay:          ptrString("700ms"),
		UrgentHaptic:         ptrString("700ms"),
		NormalHaptic:         ptrString("300ms"),
		SensorStaleAfter:     ptrString("3s"),
		ReconnectInterval:    ptrString("5s"),
		AlertRepeatAfter:     ptrString("5s"),
	}
}

// LoadNavigationConfig loads a NavigationConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadNavigationConfig(path string) (*NavigationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyNavigationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching upward from the working directory. Panics if the file cannot be
// loaded, intended for test setup.
func MustLoadDefaultConfig() *NavigationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadNavigationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *NavigationConfig) Validate() error {
	if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold >= 1) {
		return fmt.Errorf("confidence_threshold must be in [0, 1), got %f", *c.ConfidenceThreshold)
	}
	if c.IoUThreshold != nil && (*c.IoUThreshold <= 0 || *c.IoUThreshold > 1) {
		return fmt.Errorf("iou_threshold must be in (0, 1], got %f", *c.IoUThreshold)
	}
	if c.SmoothingWindow != nil && *c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be at least 1, got %d", *c.SmoothingWindow)
	}
	if c.CalibrationFactor != nil && *c.CalibrationFactor <= 0 {
		return fmt.Errorf("calibration_factor must be positive, got %f", *c.CalibrationFactor)
	}
	if c.DefaultFocalLengthPx != nil && *c.DefaultFocalLengthPx <= 0 {
		return fmt.Errorf("default_focal_length_px must be positive, got %f", *c.DefaultFocalLengthPx)
	}
	if c.DefaultObjectWidthCM != nil && *c.DefaultObjectWidthCM <= 0 {
		return fmt.Errorf("default_object_width_cm must be positive, got %f", *c.DefaultObjectWidthCM)
	}
	for class, w := range c.ObjectWidthsCM {
		if w <= 0 {
			return fmt.Errorf("object_widths_cm[%q] must be positive, got %f", class, w)
		}
	}
	if c.SensorPriorityCM != nil && *c.SensorPriorityCM < 0 {
		return fmt.Errorf("sensor_priority_cm must be non-negative, got %d", *c.SensorPriorityCM)
	}
	if c.CameraConsiderCM != nil && *c.CameraConsiderCM <= 0 {
		return fmt.Errorf("camera_consider_cm must be positive, got %f", *c.CameraConsiderCM)
	}
	if c.MaxNarrated != nil && *c.MaxNarrated < 1 {
		return fmt.Errorf("max_narrated must be at least 1, got %d", *c.MaxNarrated)
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"debounce_interval", c.DebounceInterval},
		{"repeat_interval", c.RepeatInterval},
		{"tick_period", c.TickPeriod},
		{"settle_delay", c.SettleDelay},
		{"urgent_haptic", c.UrgentHaptic},
		{"normal_haptic", c.NormalHaptic},
		{"sensor_stale_after", c.SensorStaleAfter},
		{"reconnect_interval", c.ReconnectInterval},
		{"alert_repeat_after", c.AlertRepeatAfter},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, parsed)
		}
	}
	positive := []struct {
		name string
		v    *string
	}{
		{"tick_period", c.TickPeriod},
		{"debounce_interval", c.DebounceInterval},
		{"repeat_interval", c.RepeatInterval},
		{"reconnect_interval", c.ReconnectInterval},
		{"alert_repeat_after", c.AlertRepeatAfter},
	}
	for _, d := range positive {
		if d.v != nil && *d.v != "" && durationOr(d.v, 0) == 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	return nil
}

// durationOr parses s, returning def when unset or invalid.
func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *NavigationConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.3
	}
	return *c.ConfidenceThreshold
}

// GetIoUThreshold returns the iou_threshold value or the default.
func (c *NavigationConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.5
	}
	return *c.IoUThreshold
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *NavigationConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return distance.DefaultSmoothingWindow
	}
	return *c.SmoothingWindow
}

// GetCalibrationFactor returns the calibration_factor value or the default.
func (c *NavigationConfig) GetCalibrationFactor() float64 {
	if c.CalibrationFactor == nil {
		return distance.DefaultCalibration
	}
	return *c.CalibrationFactor
}

// GetDefaultFocalLengthPx returns the default_focal_length_px value or the default.
func (c *NavigationConfig) GetDefaultFocalLengthPx() float64 {
	if c.DefaultFocalLengthPx == nil {
		return distance.DefaultFocalLengthPx
	}
	return *c.DefaultFocalLengthPx
}

// GetDefaultObjectWidthCM returns the default_object_width_cm value or the default.
func (c *NavigationConfig) GetDefaultObjectWidthCM() float64 {
	if c.DefaultObjectWidthCM == nil {
		return distance.DefaultObjectWidth
	}
	return *c.DefaultObjectWidthCM
}

// GetSensorPriorityCM returns the sensor_priority_cm value or the default.
func (c *NavigationConfig) GetSensorPriorityCM() int {
	if c.SensorPriorityCM == nil {
		return 150
	}
	return *c.SensorPriorityCM
}

// GetCameraConsiderCM returns the camera_consider_cm value or the default.
func (c *NavigationConfig) GetCameraConsiderCM() float64 {
	if c.CameraConsiderCM == nil {
		return 300
	}
	return *c.CameraConsiderCM
}

// GetMaxNarrated returns the max_narrated value or the default.
func (c *NavigationConfig) GetMaxNarrated() int {
	if c.MaxNarrated == nil {
		return 3
	}
	return *c.MaxNarrated
}

// GetDebounceInterval parses and returns the debounce_interval.
func (c *NavigationConfig) GetDebounceInterval() time.Duration {
	return durationOr(c.DebounceInterval, navigation.DefaultDebounceInterval)
}

// GetRepeatInterval parses and returns the repeat_interval.
func (c *NavigationConfig) GetRepeatInterval() time.Duration {
	return durationOr(c.RepeatInterval, navigation.DefaultRepeatInterval)
}

// GetTickPeriod parses and returns the tick_period.
func (c *NavigationConfig) GetTickPeriod() time.Duration {
	return durationOr(c.TickPeriod, navigation.DefaultTickPeriod)
}

// GetSettleDelay parses and returns the settle_delay.
func (c *NavigationConfig) GetSettleDelay() time.Duration {
	return durationOr(c.SettleDelay, dispatch.DefaultSettle)
}

// GetUrgentHaptic parses and returns the urgent_haptic pulse length.
func (c *NavigationConfig) GetUrgentHaptic() time.Duration {
	return durationOr(c.UrgentHaptic, dispatch.DefaultUrgentHaptic)
}

// GetNormalHaptic parses and returns the normal_haptic pulse length.
func (c *NavigationConfig) GetNormalHaptic() time.Duration {
	return durationOr(c.NormalHaptic, dispatch.DefaultNormalHaptic)
}

// GetSensorStaleAfter parses and returns the sensor_stale_after timeout.
func (c *NavigationConfig) GetSensorStaleAfter() time.Duration {
	return durationOr(c.SensorStaleAfter, sensor.DefaultStaleAfter)
}

// GetReconnectInterval parses and returns the reconnect_interval.
func (c *NavigationConfig) GetReconnectInterval() time.Duration {
	return durationOr(c.ReconnectInterval, sensor.DefaultReconnectInterval)
}

// GetAlertRepeatAfter parses and returns the alert_repeat_after interval.
func (c *NavigationConfig) GetAlertRepeatAfter() time.Duration {
	return durationOr(c.AlertRepeatAfter, sensor.DefaultAlertRepeat)
}

// PipelineConfig returns the decode and suppression thresholds.
func (c *NavigationConfig) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Decoder:      detect.DecoderConfig{ConfidenceThreshold: c.GetConfidenceThreshold()},
		IoUThreshold: c.GetIoUThreshold(),
	}
}

// EstimatorConfig returns the distance settings for a model whose input is
// tensorWidth pixels wide.
func (c *NavigationConfig) EstimatorConfig(tensorWidth int) distance.Config {
	return distance.Config{
		FocalLengthPx: distance.FocalLengthPx(c.Camera, tensorWidth, c.GetDefaultFocalLengthPx()),
		TensorWidth:   tensorWidth,
		Calibration:   c.GetCalibrationFactor(),
		Window:        c.GetSmoothingWindow(),
		DefaultWidth:  c.GetDefaultObjectWidthCM(),
		Widths:        c.ObjectWidthsCM,
	}
}

// NavigatorConfig returns the fusion and cadence settings.
func (c *NavigationConfig) NavigatorConfig(clock timeutil.Clock) navigation.Config {
	return navigation.Config{
		Generator: navigation.GeneratorConfig{
			SensorPriorityCM: c.GetSensorPriorityCM(),
			CameraConsiderCM: c.GetCameraConsiderCM(),
			MaxNarrated:      c.GetMaxNarrated(),
		},
		TickPeriod:       c.GetTickPeriod(),
		DebounceInterval: c.GetDebounceInterval(),
		RepeatInterval:   c.GetRepeatInterval(),
		Clock:            clock,
	}
}

// QueueConfig returns the speech queue settings. A zero settle delay
// disables the pause and a zero haptic duration disables that pulse.
func (c *NavigationConfig) QueueConfig(clock timeutil.Clock) dispatch.QueueConfig {
	return dispatch.QueueConfig{
		Settle:       zeroDisables(c.GetSettleDelay()),
		UrgentHaptic: zeroDisables(c.GetUrgentHaptic()),
		NormalHaptic: zeroDisables(c.GetNormalHaptic()),
		Clock:        clock,
	}
}

// zeroDisables maps an explicit zero onto the queue's negative off value.
func zeroDisables(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
