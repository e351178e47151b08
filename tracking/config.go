package tracking

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// MotionModel selects the transform fitted between consecutive tracking
// frames.
type MotionModel int

const (
	// MotionAffine fits a 6-parameter affine transform.
	MotionAffine MotionModel = iota
	// MotionHomography fits a full 8-degree-of-freedom projective transform.
	MotionHomography
	// MotionSixDoF constrains the projective fit to rigid rotation+translation
	// via planar PnP.
	MotionSixDoF
)

func (m MotionModel) String() string {
	switch m {
	case MotionAffine:
		return "affine"
	case MotionHomography:
		return "homography"
	case MotionSixDoF:
		return "6dof"
	default:
		return "unknown"
	}
}

// resolutions maps the resolution presets the tracker accepts to its working
// raster size.
var resolutions = map[string][2]int{
	"xs": {426, 240},
	"sm": {640, 360},
	"md": {854, 480},
	"lg": {1280, 720},
}

// Config holds all tracker configuration.
type Config struct {
	// Resolution is the working-raster preset: xs, sm, md or lg.
	Resolution string
	// MotionModel used by the tracking state.
	MotionModel MotionModel

	Training    TrainingConfig
	Scanning    ScanningConfig
	PreTracking PreTrackingConfig
	Tracking    TrackingConfig

	// FilterWindow is the pose-filter ring capacity.
	FilterWindow int
}

// TrainingConfig controls the per-reference-image training pass.
type TrainingConfig struct {
	MaxKeypointsPerImage int     // cap on trained keypoints per image
	Quality              float64 // detector quality for the training pass
}

// ScanningConfig controls target acquisition.
type ScanningConfig struct {
	MaxKeypoints      int     // detector capacity on video frames
	Quality           float64 // detector quality on video frames
	MatchRatio        float64 // nearest/second-nearest ratio test
	MinMatches        int     // minimum accepted matches for a qualifying frame
	ConsecutiveFrames int     // qualifying frames required before accepting
	GridSize          int     // de-clustering grid side
	Ransac            RansacConfig
}

// PreTrackingConfig controls the rectification/refinement handshake between
// scanning and tracking.
type PreTrackingConfig struct {
	MaxKeypoints         int
	Quality              float64
	MatchRatio           float64
	MinKeypoints         int // minimum keypoints on the rectified reference
	MinMatches           int
	MaxIterations        int     // refinement iteration bound
	ConvergenceThreshold float64 // max NDC corner displacement to accept
	Ransac               RansacConfig
}

// TrackingConfig controls steady-state tracking.
type TrackingConfig struct {
	MaxKeypoints  int
	Quality       float64
	MatchRatio    float64
	BorderClip    int // pixels clipped off rectified frames before detection
	MinMatches    int // below this the frame does not qualify
	ScarceMatches int // below this (but >= MinMatches) extrapolation kicks in
	LostTolerance int // consecutive disqualified frames tolerated before loss
	GridSize      int

	// Interpolation parameters (see InterpolateHomography). SteadyAlpha is
	// used when matches are plentiful, ExtrapolationAlpha when they are
	// scarce but still above the minimum.
	SteadyAlpha        float64
	ExtrapolationAlpha float64
	Beta               float64
	Tau                float64
	Omega              float64

	Ransac RansacConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Resolution:  "sm",
		MotionModel: MotionHomography,
		Training: TrainingConfig{
			MaxKeypointsPerImage: 1024,
			Quality:              0.05,
		},
		Scanning: ScanningConfig{
			MaxKeypoints:      512,
			Quality:           0.1,
			MatchRatio:        0.7,
			MinMatches:        20,
			ConsecutiveFrames: 5,
			GridSize:          10,
			Ransac: RansacConfig{
				Hypotheses:            512,
				ReprojectionThreshold: 0.02,
				EarlyExitInlierRatio:  0.9,
				Seed:                  7,
			},
		},
		PreTracking: PreTrackingConfig{
			MaxKeypoints:         512,
			Quality:              0.1,
			MatchRatio:           0.7,
			MinKeypoints:         32,
			MinMatches:           10,
			MaxIterations:        8,
			ConvergenceThreshold: 0.01,
			Ransac: RansacConfig{
				Hypotheses:            256,
				ReprojectionThreshold: 0.02,
				EarlyExitInlierRatio:  0.9,
				Seed:                  7,
			},
		},
		Tracking: TrackingConfig{
			MaxKeypoints:       256,
			Quality:            0.15,
			MatchRatio:         0.75,
			BorderClip:         16,
			MinMatches:         8,
			ScarceMatches:      20,
			LostTolerance:      10,
			GridSize:           8,
			SteadyAlpha:        0.3,
			ExtrapolationAlpha: 0.8,
			Beta:               1,
			Tau:                0.25,
			Omega:              0.25,
			Ransac: RansacConfig{
				Hypotheses:            128,
				ReprojectionThreshold: 0.015,
				EarlyExitInlierRatio:  0.85,
				Seed:                  7,
			},
		},
		FilterWindow: 6,
	}
}

// WorkingSize returns the working raster dimensions of the configured
// resolution preset.
func (c Config) WorkingSize() (int, int, error) {
	size, ok := resolutions[c.Resolution]
	if !ok {
		return 0, 0, errors.Wrapf(ErrIllegalArgument, "unknown resolution %q", c.Resolution)
	}
	return size[0], size[1], nil
}

// ConfigFromAttributes decodes a Config from an untyped attribute map, with
// defaults filled in for absent fields.
func ConfigFromAttributes(attrs map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	if attrs == nil {
		return cfg, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, errors.Wrap(err, "building config decoder")
	}
	if err := dec.Decode(attrs); err != nil {
		return Config{}, errors.Wrapf(ErrIllegalArgument, "decoding tracker config: %v", err)
	}
	if _, _, err := cfg.WorkingSize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
