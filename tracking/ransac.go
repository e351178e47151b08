package tracking

import (
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// RansacConfig controls the random-sample-consensus loops used by the fitting
// routines.
type RansacConfig struct {
	// Hypotheses is the number of minimal-sample models to try.
	Hypotheses int
	// ReprojectionThreshold is the max distance, in the fitting space (NDC),
	// between a destination point and the model-predicted point for the
	// correspondence to count as an inlier.
	ReprojectionThreshold float64
	// EarlyExitInlierRatio stops hypothesis search once a model reaches this
	// inlier fraction; 0 disables early exit.
	EarlyExitInlierRatio float64
	// Seed for the sampler. Fixed seeds keep fits reproducible.
	Seed int64
}

// FitHomographyRansac robustly fits a homography mapping src[i] -> dst[i]
// from n >= 4 correspondences. It returns the model and its score, the inlier
// fraction over all correspondences.
func FitHomographyRansac(src, dst []r2.Point, cfg RansacConfig) (Homography, float64, error) {
	return fitRansac(src, dst, cfg, 4, FitHomography)
}

// FitAffineRansac robustly fits an affine transform mapping src[i] -> dst[i]
// from n >= 3 correspondences, with the same contract as FitHomographyRansac.
func FitAffineRansac(src, dst []r2.Point, cfg RansacConfig) (Homography, float64, error) {
	return fitRansac(src, dst, cfg, 3, FitAffine)
}

type modelFit func(src, dst []r2.Point) (Homography, error)

func fitRansac(src, dst []r2.Point, cfg RansacConfig, sampleSize int, fit modelFit) (Homography, float64, error) {
	if len(src) != len(dst) {
		return Homography{}, 0, errors.Wrap(ErrIllegalArgument, "correspondence sets differ in length")
	}
	n := len(src)
	if n < sampleSize {
		return Homography{}, 0, errors.Wrapf(ErrTooFewPoints, "model needs %d, got %d", sampleSize, n)
	}

	// With exactly a minimal sample there is nothing to vote on.
	if n == sampleSize {
		h, err := fit(src, dst)
		if err != nil {
			return Homography{}, 0, err
		}
		return h, 1.0, nil
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	threshSq := cfg.ReprojectionThreshold * cfg.ReprojectionThreshold

	var best Homography
	bestInliers := -1

	sampleSrc := make([]r2.Point, sampleSize)
	sampleDst := make([]r2.Point, sampleSize)
	for iter := 0; iter < cfg.Hypotheses; iter++ {
		idx := sampleDistinct(rng, n, sampleSize)
		for i, j := range idx {
			sampleSrc[i] = src[j]
			sampleDst[i] = dst[j]
		}
		h, err := fit(sampleSrc, sampleDst)
		if err != nil {
			continue
		}

		inliers := countInliers(src, dst, h, threshSq)
		if inliers > bestInliers {
			bestInliers = inliers
			best = h
			if cfg.EarlyExitInlierRatio > 0 && float64(inliers) >= cfg.EarlyExitInlierRatio*float64(n) {
				break
			}
		}
	}

	if bestInliers < sampleSize || !best.IsValid() {
		return Homography{}, 0, ErrDegenerateFit
	}

	// Refit on the consensus set of the best hypothesis.
	inSrc, inDst := collectInliers(src, dst, best, threshSq)
	if refined, err := fit(inSrc, inDst); err == nil && refined.IsValid() {
		if refit := countInliers(src, dst, refined, threshSq); refit >= bestInliers {
			best = refined
			bestInliers = refit
		}
	}

	return best, float64(bestInliers) / float64(n), nil
}

func countInliers(src, dst []r2.Point, h Homography, threshSq float64) int {
	inliers := 0
	for i := range src {
		d := h.Apply(src[i]).Sub(dst[i])
		if d.X*d.X+d.Y*d.Y <= threshSq {
			inliers++
		}
	}
	return inliers
}

func collectInliers(src, dst []r2.Point, h Homography, threshSq float64) ([]r2.Point, []r2.Point) {
	inSrc := make([]r2.Point, 0, len(src))
	inDst := make([]r2.Point, 0, len(dst))
	for i := range src {
		d := h.Apply(src[i]).Sub(dst[i])
		if d.X*d.X+d.Y*d.Y <= threshSq {
			inSrc = append(inSrc, src[i])
			inDst = append(inDst, dst[i])
		}
	}
	return inSrc, inDst
}

// sampleDistinct draws k distinct indices in [0, n).
func sampleDistinct(rng *rand.Rand, n, k int) []int {
	idx := make([]int, k)
	for i := 0; i < k; i++ {
		for {
			idx[i] = rng.Intn(n)
			unique := true
			for j := 0; j < i; j++ {
				if idx[i] == idx[j] {
					unique = false
					break
				}
			}
			if unique {
				break
			}
		}
	}
	return idx
}
