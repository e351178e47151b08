package tracking

import (
	"context"

	"github.com/pkg/errors"
)

// initialState locks the reference image database and advances to training
// without consuming pipeline work.
type initialState struct {
	t *ImageTracker
}

func (s *initialState) enter(*handoff) {}

func (s *initialState) update(context.Context, Frame) (stateOutput, error) {
	s.t.database.Lock()
	s.t.logger.Debugf("database locked with %d reference image(s)", s.t.database.Count())
	return stateOutput{next: StateTraining}, nil
}

// trainingState runs one detection pass per update over the next untrained
// reference image, appending its keypoints to the flat trained table. Each
// trained keypoint stores its position in NIS and a back-reference to the
// owning image index.
type trainingState struct {
	t    *ImageTracker
	next int
}

func (s *trainingState) enter(*handoff) {
	s.next = 0
	s.t.trained = s.t.trained[:0]
}

func (s *trainingState) update(ctx context.Context, _ Frame) (stateOutput, error) {
	images := s.t.database.Images()
	if s.next >= len(images) {
		return stateOutput{next: StateScanning}, nil
	}
	ref := images[s.next]
	index := s.next
	s.next++

	// Scale the reference into the working resolution, preserving its own
	// aspect ratio.
	imgW, imgH := ref.Size()
	rectW, rectH := bestFitSize(imgW, imgH, s.t.width, s.t.height)
	scale, err := FitAffine(cornerPoints(float64(imgW), float64(imgH)), cornerPoints(float64(rectW), float64(rectH)))
	if err != nil {
		return stateOutput{}, err
	}
	scaled, err := s.t.pipeline.Warp(ctx, ref.Image(), scale, rectW, rectH)
	if err != nil {
		return stateOutput{}, errors.Wrapf(err, "scaling reference image %q", ref.Name)
	}

	cfg := s.t.config.Training
	kps, err := s.t.pipeline.Detect(ctx, scaled, DetectParams{
		MaxKeypoints: cfg.MaxKeypointsPerImage,
		Quality:      cfg.Quality,
	})
	if err != nil {
		return stateOutput{}, errors.Wrapf(err, "training on reference image %q", ref.Name)
	}
	if len(kps) > cfg.MaxKeypointsPerImage {
		kps = kps[:cfg.MaxKeypointsPerImage]
	}

	trained := make([]Keypoint, len(kps))
	for i, kp := range kps {
		kp.Position = RasterToNIS(kp.Position, float64(rectW), float64(rectH))
		kp.ImageIndex = index
		trained[i] = kp
	}
	ref.keypoints = trained
	s.t.trained = append(s.t.trained, trained...)

	s.t.logger.Debugf("trained %q: %d keypoint(s)", ref.Name, len(trained))

	if s.next >= len(images) {
		return stateOutput{next: StateScanning}, nil
	}
	return stay(StateTraining), nil
}
