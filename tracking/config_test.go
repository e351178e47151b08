package tracking

import (
	"testing"

	"github.com/pkg/errors"
)

func TestDefaultConfig_IsUsable(t *testing.T) {
	cfg := DefaultConfig()
	w, h, err := cfg.WorkingSize()
	if err != nil {
		t.Fatalf("WorkingSize failed: %v", err)
	}
	if w <= 0 || h <= 0 {
		t.Errorf("working size %dx%d", w, h)
	}
	if cfg.Scanning.ConsecutiveFrames < 1 {
		t.Error("scanning needs at least one qualifying frame")
	}
	if cfg.Tracking.MinMatches > cfg.Tracking.ScarceMatches {
		t.Error("scarce-match threshold below the qualification minimum")
	}
}

func TestConfig_WorkingSizePresets(t *testing.T) {
	presets := map[string][2]int{
		"xs": {426, 240},
		"sm": {640, 360},
		"md": {854, 480},
		"lg": {1280, 720},
	}
	for name, want := range presets {
		cfg := DefaultConfig()
		cfg.Resolution = name
		w, h, err := cfg.WorkingSize()
		if err != nil {
			t.Fatalf("preset %q failed: %v", name, err)
		}
		if w != want[0] || h != want[1] {
			t.Errorf("preset %q: %dx%d, want %dx%d", name, w, h, want[0], want[1])
		}
	}

	cfg := DefaultConfig()
	cfg.Resolution = "4k"
	if _, _, err := cfg.WorkingSize(); !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("unknown preset: want ErrIllegalArgument, got %v", err)
	}
}

func TestConfigFromAttributes_Defaults(t *testing.T) {
	cfg, err := ConfigFromAttributes(nil)
	if err != nil {
		t.Fatalf("ConfigFromAttributes(nil) failed: %v", err)
	}
	if cfg.Resolution != DefaultConfig().Resolution {
		t.Errorf("nil attributes should yield defaults, got resolution %q", cfg.Resolution)
	}
}

func TestConfigFromAttributes_Overrides(t *testing.T) {
	cfg, err := ConfigFromAttributes(map[string]interface{}{
		"resolution":   "lg",
		"filterwindow": "8", // weakly typed: strings coerce to ints
		"tracking": map[string]interface{}{
			"losttolerance": 3,
		},
	})
	if err != nil {
		t.Fatalf("ConfigFromAttributes failed: %v", err)
	}
	if cfg.Resolution != "lg" {
		t.Errorf("resolution %q, want lg", cfg.Resolution)
	}
	if cfg.FilterWindow != 8 {
		t.Errorf("filter window %d, want 8", cfg.FilterWindow)
	}
	if cfg.Tracking.LostTolerance != 3 {
		t.Errorf("lost tolerance %d, want 3", cfg.Tracking.LostTolerance)
	}
	// Untouched fields keep their defaults.
	if cfg.Scanning.MinMatches != DefaultConfig().Scanning.MinMatches {
		t.Errorf("scanning min matches %d changed unexpectedly", cfg.Scanning.MinMatches)
	}
}

func TestConfigFromAttributes_BadResolution(t *testing.T) {
	_, err := ConfigFromAttributes(map[string]interface{}{"resolution": "huge"})
	if !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("want ErrIllegalArgument, got %v", err)
	}
}

func TestMotionModel_String(t *testing.T) {
	cases := map[MotionModel]string{
		MotionAffine:     "affine",
		MotionHomography: "homography",
		MotionSixDoF:     "6dof",
		MotionModel(99):  "unknown",
	}
	for m, want := range cases {
		if got := m.String(); got != want {
			t.Errorf("MotionModel(%d).String() = %q, want %q", int(m), got, want)
		}
	}
}
