package tracking

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// trackingState follows the target frame to frame: it rectifies the video
// through the current homography, matches fresh keypoints against the
// previous frame's set, fits the configured motion model on the residual and
// interpolates the composed homography with the previous one before feeding
// the camera model.
type trackingState struct {
	t       *ImageTracker
	payload *handoff

	homography Homography
	prev       []Keypoint
	found      bool
	lowFrames  int
}

func (s *trackingState) enter(payload *handoff) {
	s.payload = payload
	s.found = false
	s.lowFrames = 0
	if payload != nil {
		s.homography = payload.homography
		s.prev = payload.referenceKeypoints
	}
	s.t.camera.Reset()
}

func (s *trackingState) update(ctx context.Context, frame Frame) (stateOutput, error) {
	if s.payload == nil || s.payload.image == nil {
		return stateOutput{}, errors.Wrap(ErrIllegalOperation, "tracking without a target")
	}
	cfg := s.t.config.Tracking
	p := s.payload
	fw, fh := frame.Size()
	if fw == 0 || fh == 0 {
		return stateOutput{}, errors.Wrap(ErrIllegalArgument, "empty frame")
	}

	warp, err := rectifyingWarp(s.homography, fw, fh, p.rectWidth, p.rectHeight)
	if err != nil {
		return stateOutput{}, err
	}
	rectified, err := s.t.pipeline.Warp(ctx, frame.Image, warp, p.rectWidth, p.rectHeight)
	if err != nil {
		return stateOutput{}, err
	}

	kps, err := s.t.pipeline.Detect(ctx, rectified, DetectParams{
		MaxKeypoints: cfg.MaxKeypoints,
		Quality:      cfg.Quality,
		BorderClip:   cfg.BorderClip,
	})
	if err != nil {
		return stateOutput{}, err
	}

	pairs, err := s.t.pipeline.Match(ctx, kps, s.prev, MatchParams{MaxRatio: cfg.MatchRatio})
	if err != nil {
		return stateOutput{}, err
	}

	if len(pairs) < cfg.MinMatches {
		return s.disqualify(len(pairs))
	}

	matches := DistributeKeypointPairs(pairs, cfg.GridSize)
	minNeeded := 3
	if s.t.config.MotionModel != MotionAffine {
		minNeeded = 4
	}
	if len(matches) < minNeeded {
		return s.disqualify(len(matches))
	}

	src := make([]r2.Point, len(matches))
	dst := make([]r2.Point, len(matches))
	w, h := float64(p.rectWidth), float64(p.rectHeight)
	for i, m := range matches {
		src[i] = RasterToNDC(m.Source.Position, w, h)
		dst[i] = RasterToNDC(m.Destination.Position, w, h)
	}

	residual, _, err := s.fitMotion(src, dst)
	if err != nil {
		s.t.logger.Debugf("tracking: motion fit rejected: %v", err)
		return s.disqualify(len(matches))
	}

	// Compose the residual into the running estimate, then smooth. Scarce
	// matches get the larger extrapolation alpha so the estimate keeps up
	// with fast motion instead of lagging behind a weak fit.
	alpha := cfg.SteadyAlpha
	if len(pairs) < cfg.ScarceMatches {
		alpha = cfg.ExtrapolationAlpha
	}
	next := s.homography.Mul(residual)
	smoothed, err := InterpolateHomography(s.homography, next, alpha, cfg.Beta, cfg.Tau, cfg.Omega)
	if err != nil || !smoothed.IsValid() {
		s.t.logger.Debugf("tracking: interpolation rejected: %v", err)
		return s.disqualify(len(matches))
	}

	if err := s.t.camera.Update(smoothed); err != nil {
		s.t.logger.Debugf("tracking: camera update rejected: %v", err)
		return s.disqualify(len(matches))
	}

	s.homography = smoothed
	s.prev = kps
	s.lowFrames = 0

	out := stay(StateTracking)
	if !s.found {
		s.found = true
		out.targetFound = p.image
	}

	pose, err := s.t.camera.TargetPose()
	if err != nil {
		return stateOutput{}, err
	}
	out.result = &Result{
		Pose:   Pose{Transform: pose, Space: SpaceViewer},
		Image:  p.image,
		Viewer: Viewer{cam: s.t.camera},
	}
	return out, nil
}

// disqualify books one low-match frame and decides between staying (within
// tolerance) and declaring the target lost.
func (s *trackingState) disqualify(matches int) (stateOutput, error) {
	s.lowFrames++
	if s.lowFrames <= s.t.config.Tracking.LostTolerance {
		s.t.logger.Debugf("tracking: %d match(es), low frame %d/%d",
			matches, s.lowFrames, s.t.config.Tracking.LostTolerance)
		return stay(StateTracking), nil
	}

	out := stateOutput{next: StateScanning}
	if s.found {
		out.targetLost = s.payload.image
	}
	s.payload = nil
	s.prev = nil
	return out, nil
}

// fitMotion fits the configured motion model between previous and current
// correspondences.
func (s *trackingState) fitMotion(src, dst []r2.Point) (Homography, float64, error) {
	cfg := s.t.config.Tracking
	switch s.t.config.MotionModel {
	case MotionAffine:
		return FitAffineRansac(src, dst, cfg.Ransac)
	case MotionSixDoF:
		return FitHomography6DoF(src, dst, s.t.camera.Intrinsics(), cfg.Ransac)
	default:
		return FitHomographyRansac(src, dst, cfg.Ransac)
	}
}
