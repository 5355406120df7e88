package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/visionassist/internal/distance"
	"github.com/banshee-data/visionassist/internal/timeutil"
)

func TestDefaultNavigationConfig(t *testing.T) {
	cfg := DefaultNavigationConfig()

	// Test that defaults are set via pointers
	if cfg.ConfidenceThreshold == nil || *cfg.ConfidenceThreshold != 0.3 {
		t.Errorf("Expected ConfidenceThreshold 0.3, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.DebounceInterval == nil || *cfg.DebounceInterval != "2500ms" {
		t.Errorf("Expected DebounceInterval '2500ms', got %v", cfg.DebounceInterval)
	}
	if cfg.MaxNarrated == nil || *cfg.MaxNarrated != 3 {
		t.Errorf("Expected MaxNarrated 3, got %v", cfg.MaxNarrated)
	}

	// Test getter methods
	if cfg.GetSensorPriorityCM() != 150 {
		t.Errorf("GetSensorPriorityCM() = %d, want 150", cfg.GetSensorPriorityCM())
	}
	if cfg.GetDebounceInterval() != 2500*time.Millisecond {
		t.Errorf("GetDebounceInterval() = %v, want 2.5s", cfg.GetDebounceInterval())
	}
	if cfg.GetSettleDelay() != 700*time.Millisecond {
		t.Errorf("GetSettleDelay() = %v, want 700ms", cfg.GetSettleDelay())
	}
}

func TestEmptyConfigMatchesDefaults(t *testing.T) {
	empty := EmptyNavigationConfig()
	def := DefaultNavigationConfig()

	if diff := cmp.Diff(def.NavigatorConfig(nil), empty.NavigatorConfig(nil)); diff != "" {
		t.Errorf("navigator config mismatch (-default +empty):\n%s", diff)
	}
	if diff := cmp.Diff(def.QueueConfig(nil), empty.QueueConfig(nil)); diff != "" {
		t.Errorf("queue config mismatch (-default +empty):\n%s", diff)
	}
	if diff := cmp.Diff(def.PipelineConfig(), empty.PipelineConfig()); diff != "" {
		t.Errorf("pipeline config mismatch (-default +empty):\n%s", diff)
	}
	if empty.GetSensorStaleAfter() != 3*time.Second {
		t.Errorf("GetSensorStaleAfter() = %v, want 3s", empty.GetSensorStaleAfter())
	}
	if empty.GetReconnectInterval() != 5*time.Second {
		t.Errorf("GetReconnectInterval() = %v, want 5s", empty.GetReconnectInterval())
	}
	if empty.GetAlertRepeatAfter() != 5*time.Second {
		t.Errorf("GetAlertRepeatAfter() = %v, want 5s", empty.GetAlertRepeatAfter())
	}
}

func TestLoadNavigationConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "confidence_threshold": 0.45,
  "sensor_priority_cm": 120,
  "debounce_interval": "4s",
  "settle_delay": "0s",
  "urgent_haptic": "0s",
  "object_widths_cm": {"person": 40},
  "camera": {"focal_length_mm": 4.0, "sensor_width_mm": 3.68, "sensor_width_px": 4000}
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadNavigationConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetConfidenceThreshold() != 0.45 {
		t.Errorf("GetConfidenceThreshold() = %f, want 0.45", cfg.GetConfidenceThreshold())
	}
	if cfg.GetSensorPriorityCM() != 120 {
		t.Errorf("GetSensorPriorityCM() = %d, want 120", cfg.GetSensorPriorityCM())
	}
	if cfg.GetDebounceInterval() != 4*time.Second {
		t.Errorf("GetDebounceInterval() = %v, want 4s", cfg.GetDebounceInterval())
	}
	// Unset fields use defaults
	if cfg.GetIoUThreshold() != 0.5 {
		t.Errorf("GetIoUThreshold() = %f, want 0.5", cfg.GetIoUThreshold())
	}

	q := cfg.QueueConfig(timeutil.RealClock{})
	if q.Settle >= 0 {
		t.Errorf("QueueConfig().Settle = %v, want negative for no pause", q.Settle)
	}
	if q.UrgentHaptic >= 0 {
		t.Errorf("QueueConfig().UrgentHaptic = %v, want negative for no pulse", q.UrgentHaptic)
	}
	if q.NormalHaptic != 300*time.Millisecond {
		t.Errorf("QueueConfig().NormalHaptic = %v, want 300ms", q.NormalHaptic)
	}

	est := cfg.EstimatorConfig(640)
	wantFocal := distance.FocalLengthPx(cfg.Camera, 640, 800)
	if est.FocalLengthPx != wantFocal {
		t.Errorf("EstimatorConfig().FocalLengthPx = %f, want %f", est.FocalLengthPx, wantFocal)
	}
	if est.Widths["person"] != 40 {
		t.Errorf("EstimatorConfig().Widths[person] = %f, want 40", est.Widths["person"])
	}
}

func TestLoadNavigationConfigRejects(t *testing.T) {
	tmpDir := t.TempDir()

	cases := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{`, "parse config JSON"},
		{"threshold range", "thr.json", `{"confidence_threshold": 1.5}`, "confidence_threshold"},
		{"bad duration", "dur.json", `{"tick_period": "soon"}`, "tick_period"},
		{"zero tick", "tick.json", `{"tick_period": "0s"}`, "tick_period"},
		{"zero debounce", "debounce.json", `{"debounce_interval": "0s"}`, "debounce_interval"},
		{"zero repeat", "repeat.json", `{"repeat_interval": "0s"}`, "repeat_interval"},
		{"zero reconnect", "reconnect.json", `{"reconnect_interval": "0ms"}`, "reconnect_interval"},
		{"zero alert repeat", "alert.json", `{"alert_repeat_after": "0s"}`, "alert_repeat_after"},
		{"negative width", "width.json", `{"object_widths_cm": {"door": -1}}`, "object_widths_cm"},
		{"zero window", "win.json", `{"smoothing_window": 0}`, "smoothing_window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tc.file)
			if err := os.WriteFile(path, []byte(tc.content), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			_, err := LoadNavigationConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}

	if _, err := LoadNavigationConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadNavigationConfigTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.json")
	data := make([]byte, 1024*1024+1)
	for i := range data {
		data[i] = ' '
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadNavigationConfig(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestMustLoadDefaultConfigMatchesCode(t *testing.T) {
	loaded := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultNavigationConfig(), loaded); diff != "" {
		t.Errorf("%s drifted from DefaultNavigationConfig (-code +file):\n%s", DefaultConfigPath, diff)
	}
}
