package tracking

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// scanningState searches each video frame for the best-matching reference
// image. A candidate homography is accepted only after a run of consecutive
// qualifying frames; the best-scoring homography seen during the run is the
// one handed off, so a weaker-but-still-qualifying frame does not discard a
// better earlier fit. Any disqualifying frame resets the run.
type scanningState struct {
	t *ImageTracker

	consecutive int
	bestScore   float64
	best        Homography
	bestIndex   int
}

func (s *scanningState) enter(*handoff) {
	s.reset()
}

func (s *scanningState) reset() {
	s.consecutive = 0
	s.bestScore = -1
	s.best = Homography{}
	s.bestIndex = -1
}

func (s *scanningState) update(ctx context.Context, frame Frame) (stateOutput, error) {
	cfg := s.t.config.Scanning
	fw, fh := frame.Size()
	if fw == 0 || fh == 0 {
		return stateOutput{}, errors.Wrap(ErrIllegalArgument, "empty frame")
	}

	kps, err := s.t.pipeline.Detect(ctx, frame.Image, DetectParams{
		MaxKeypoints: cfg.MaxKeypoints,
		Quality:      cfg.Quality,
	})
	if err != nil {
		return stateOutput{}, err
	}

	pairs, err := s.t.pipeline.Match(ctx, kps, s.t.trained, MatchParams{MaxRatio: cfg.MatchRatio})
	if err != nil {
		return stateOutput{}, err
	}

	// Group matches by the reference image they point to and keep the most
	// voted image.
	byImage := make(map[int][]KeypointPair)
	bestIndex, bestCount := -1, 0
	for _, p := range pairs {
		idx := p.Source.ImageIndex
		byImage[idx] = append(byImage[idx], p)
		if len(byImage[idx]) > bestCount {
			bestCount = len(byImage[idx])
			bestIndex = idx
		}
	}

	if bestIndex < 0 || bestCount < cfg.MinMatches {
		s.reset()
		return stay(StateScanning), nil
	}

	matches := DistributeKeypointPairs(byImage[bestIndex], cfg.GridSize)
	if len(matches) < 4 {
		s.reset()
		return stay(StateScanning), nil
	}

	// Trained positions are stored in NIS; frame positions arrive in raster.
	// Fit in NDC.
	src := make([]r2.Point, len(matches))
	dst := make([]r2.Point, len(matches))
	for i, m := range matches {
		src[i] = NISToNDC(m.Source.Position)
		dst[i] = RasterToNDC(m.Destination.Position, float64(fw), float64(fh))
	}

	h, score, err := FitHomographyRansac(src, dst, cfg.Ransac)
	if err != nil {
		// A degenerate fit disqualifies the frame but is not fatal.
		s.t.logger.Debugf("scanning: fit rejected: %v", err)
		s.reset()
		return stay(StateScanning), nil
	}

	// A qualifying frame for a different image starts a fresh run.
	if s.bestIndex != bestIndex {
		s.reset()
		s.bestIndex = bestIndex
	}
	if score > s.bestScore {
		s.bestScore = score
		s.best = h
	}
	s.consecutive++

	if s.consecutive < cfg.ConsecutiveFrames {
		return stay(StateScanning), nil
	}

	images := s.t.database.Images()
	payload := &handoff{
		image:      images[s.bestIndex],
		imageIndex: s.bestIndex,
		homography: s.best,
		snapshot:   frame.Image,
	}
	s.t.logger.Debugf("scanning: accepted %q after %d qualifying frame(s), score %.2f",
		payload.image.Name, s.consecutive, s.bestScore)
	s.reset()
	return stateOutput{next: StatePreTrackingA, payload: payload}, nil
}
