package tracking

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// preTrackingAState rectifies the matched reference image itself (not the
// video) into the working resolution and runs a fresh detection pass on it.
// The resulting keypoint set is screen-anchored and well distributed, which
// the keypoints matched during scanning are not.
type preTrackingAState struct {
	t       *ImageTracker
	payload *handoff
}

func (s *preTrackingAState) enter(payload *handoff) {
	s.payload = payload
}

func (s *preTrackingAState) update(ctx context.Context, _ Frame) (stateOutput, error) {
	if s.payload == nil || s.payload.image == nil {
		return stateOutput{}, errors.Wrap(ErrIllegalOperation, "pre-tracking without a scanned target")
	}
	cfg := s.t.config.PreTracking
	ref := s.payload.image

	imgW, imgH := ref.Size()
	rectW, rectH := bestFitSize(imgW, imgH, s.t.width, s.t.height)
	scale, err := FitAffine(cornerPoints(float64(imgW), float64(imgH)), cornerPoints(float64(rectW), float64(rectH)))
	if err != nil {
		return stateOutput{}, err
	}
	rectified, err := s.t.pipeline.Warp(ctx, ref.Image(), scale, rectW, rectH)
	if err != nil {
		return stateOutput{}, errors.Wrapf(err, "rectifying reference image %q", ref.Name)
	}

	kps, err := s.t.pipeline.Detect(ctx, rectified, DetectParams{
		MaxKeypoints: cfg.MaxKeypoints,
		Quality:      cfg.Quality,
	})
	if err != nil {
		return stateOutput{}, err
	}
	if len(kps) < cfg.MinKeypoints {
		return stateOutput{}, errors.Wrapf(ErrNotEnoughKeypoints,
			"rectified %q yielded %d keypoint(s), need %d", ref.Name, len(kps), cfg.MinKeypoints)
	}

	payload := s.payload
	s.payload = nil
	payload.referenceKeypoints = kps
	payload.rectWidth = rectW
	payload.rectHeight = rectH
	return stateOutput{next: StatePreTrackingB, payload: payload}, nil
}

// preTrackingBState converges the scan homography against the buffered
// snapshot. Each update rectifies the snapshot through the current estimate,
// matches it against the reference keypoint set from pre-tracking A, fits the
// residual motion and composes it into the estimate. It advances once the
// residual corner displacement drops below the convergence threshold and
// falls back to scanning when the iteration budget runs out.
type preTrackingBState struct {
	t         *ImageTracker
	payload   *handoff
	iteration int
}

func (s *preTrackingBState) enter(payload *handoff) {
	s.payload = payload
	s.iteration = 0
}

func (s *preTrackingBState) update(ctx context.Context, _ Frame) (stateOutput, error) {
	if s.payload == nil || s.payload.snapshot == nil {
		return stateOutput{}, errors.Wrap(ErrIllegalOperation, "pre-tracking without a snapshot")
	}
	cfg := s.t.config.PreTracking

	if s.iteration >= cfg.MaxIterations {
		return stateOutput{}, errors.Wrapf(ErrNotEnoughKeypoints,
			"homography did not converge in %d iteration(s)", cfg.MaxIterations)
	}
	s.iteration++

	p := s.payload
	snapB := p.snapshot.Bounds()

	warp, err := rectifyingWarp(p.homography, snapB.Dx(), snapB.Dy(), p.rectWidth, p.rectHeight)
	if err != nil {
		return stateOutput{}, err
	}
	rectified, err := s.t.pipeline.Warp(ctx, p.snapshot, warp, p.rectWidth, p.rectHeight)
	if err != nil {
		return stateOutput{}, err
	}

	kps, err := s.t.pipeline.Detect(ctx, rectified, DetectParams{
		MaxKeypoints: cfg.MaxKeypoints,
		Quality:      cfg.Quality,
	})
	if err != nil {
		return stateOutput{}, err
	}

	pairs, err := s.t.pipeline.Match(ctx, kps, p.referenceKeypoints, MatchParams{MaxRatio: cfg.MatchRatio})
	if err != nil {
		return stateOutput{}, err
	}
	if len(pairs) < cfg.MinMatches {
		return stay(StatePreTrackingB), nil
	}

	src := make([]r2.Point, len(pairs))
	dst := make([]r2.Point, len(pairs))
	w, h := float64(p.rectWidth), float64(p.rectHeight)
	for i, m := range pairs {
		src[i] = RasterToNDC(m.Source.Position, w, h)
		dst[i] = RasterToNDC(m.Destination.Position, w, h)
	}

	residual, _, err := FitHomographyRansac(src, dst, cfg.Ransac)
	if err != nil {
		s.t.logger.Debugf("pre-tracking: refinement fit rejected: %v", err)
		return stay(StatePreTrackingB), nil
	}

	p.homography = p.homography.Mul(residual)

	if maxCornerDisplacement(residual) < cfg.ConvergenceThreshold {
		payload := s.payload
		s.payload = nil
		s.t.logger.Debugf("pre-tracking: converged after %d iteration(s)", s.iteration)
		return stateOutput{next: StateTracking, payload: payload}, nil
	}
	return stay(StatePreTrackingB), nil
}

// maxCornerDisplacement measures how far h moves the NDC corners.
func maxCornerDisplacement(h Homography) float64 {
	maxD := 0.0
	for _, c := range ndcCorners {
		d := h.Apply(c).Sub(c).Norm()
		if d > maxD {
			maxD = d
		}
	}
	return maxD
}
