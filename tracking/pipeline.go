package tracking

import (
	"context"
	"image"
)

// DetectParams controls a single detection+description pass.
type DetectParams struct {
	// MaxKeypoints caps the number of keypoints returned; strongest first.
	MaxKeypoints int
	// Quality in [0,1] scales the detector's corner acceptance threshold;
	// higher values keep only stronger corners.
	Quality float64
	// BorderClip discards keypoints within this many pixels of the image
	// border. Rectified frames carry warping artifacts near the edges.
	BorderClip int
	// Enhance applies a low-light enhancement pass before detection.
	Enhance bool
	// BlurKernel is the side of the smoothing kernel applied before
	// detection; 0 disables blurring.
	BlurKernel int
}

// MatchParams controls descriptor matching.
type MatchParams struct {
	// MaxRatio is the Lowe ratio test threshold for matchers that
	// disambiguate with a nearest/second-nearest ratio test; matchers that
	// cross-check instead ignore it.
	MaxRatio float64
	// MaxDistance is the absolute descriptor-distance cutoff; 0 disables it.
	MaxDistance float64
}

// VisionPipeline is the external image-processing collaborator consumed by the
// tracker states. Implementations may run on the GPU or the CPU; the engine
// only requires that each call completes before its result is read and issues
// at most one call per frame update.
type VisionPipeline interface {
	// Detect runs one detection+description pass over img and returns the
	// found keypoints in raster coordinates of img.
	Detect(ctx context.Context, img image.Image, p DetectParams) ([]Keypoint, error)

	// Match pairs query keypoints against train keypoints using
	// nearest-neighbour descriptor matching, discarding ambiguous pairs by a
	// ratio test or mutual cross-checking. Each returned pair has Source from
	// train (the model side) and Destination from query (the observed side).
	Match(ctx context.Context, query, train []Keypoint, p MatchParams) ([]KeypointPair, error)

	// Warp resamples img through the raster-space homography h into a
	// width x height output image.
	Warp(ctx context.Context, img image.Image, h Homography, width, height int) (image.Image, error)
}
