package tracking

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

func ransacTestConfig() RansacConfig {
	return RansacConfig{
		Hypotheses:            512,
		ReprojectionThreshold: 0.02,
		EarlyExitInlierRatio:  0.95,
		Seed:                  42,
	}
}

func TestFitHomographyRansac_NoiselessFullConsensus(t *testing.T) {
	want := mustHomography(t, []float64{
		0.85, 0.05, 0.1,
		-0.04, 0.9, -0.08,
		0.02, 0.01, 1,
	})
	src := randomPoints(40, 10)
	dst := applyAll(want, src)

	got, score, err := FitHomographyRansac(src, dst, ransacTestConfig())
	if err != nil {
		t.Fatalf("FitHomographyRansac failed: %v", err)
	}
	if score != 1.0 {
		t.Errorf("noiseless consensus score = %.3f, want 1.0", score)
	}
	if e := maxPointError(applyAll(got, src), dst); e > 1e-8 {
		t.Errorf("reprojection error %.3g > 1e-8", e)
	}
}

func TestFitHomographyRansac_RejectsOutliers(t *testing.T) {
	want := mustHomography(t, []float64{
		0.9, 0, 0.15,
		0, 0.9, -0.1,
		0, 0, 1,
	})
	src := randomPoints(60, 11)
	dst := applyAll(want, src)

	// Corrupt a third of the correspondences with uniform garbage.
	rng := rand.New(rand.NewSource(12))
	for i := 0; i < 20; i++ {
		dst[i] = r2.Point{X: rng.Float64()*4 - 2, Y: rng.Float64()*4 - 2}
	}

	got, score, err := FitHomographyRansac(src, dst, ransacTestConfig())
	if err != nil {
		t.Fatalf("FitHomographyRansac failed: %v", err)
	}
	if score < 0.6 || score > 0.8 {
		t.Errorf("score = %.3f, want about 2/3 (the inlier fraction)", score)
	}

	// The recovered model must agree with the clean transform on the inliers.
	if e := maxPointError(applyAll(got, src[20:]), dst[20:]); e > 1e-6 {
		t.Errorf("inlier reprojection error %.3g > 1e-6", e)
	}
	t.Logf("score %.3f with 20/60 outliers", score)
}

func TestFitAffineRansac_RejectsOutliers(t *testing.T) {
	want := mustHomography(t, []float64{
		1.1, -0.2, 0.3,
		0.15, 0.95, -0.05,
		0, 0, 1,
	})
	src := randomPoints(45, 13)
	dst := applyAll(want, src)
	rng := rand.New(rand.NewSource(14))
	for i := 0; i < 12; i++ {
		dst[i] = r2.Point{X: rng.Float64()*4 - 2, Y: rng.Float64()*4 - 2}
	}

	got, score, err := FitAffineRansac(src, dst, ransacTestConfig())
	if err != nil {
		t.Fatalf("FitAffineRansac failed: %v", err)
	}
	if score < 0.6 {
		t.Errorf("score = %.3f, want >= 0.6", score)
	}
	if e := maxPointError(applyAll(got, src[12:]), dst[12:]); e > 1e-6 {
		t.Errorf("inlier reprojection error %.3g > 1e-6", e)
	}
}

func TestFitHomographyRansac_MinimalSampleShortcut(t *testing.T) {
	// With exactly four correspondences there is nothing to vote on: the fit
	// is exact by construction and the score is 1 by definition.
	want := mustHomography(t, []float64{
		0.95, 0.03, -0.05,
		-0.02, 1.05, 0.08,
		0.01, 0, 1,
	})
	src := []r2.Point{{X: -0.8, Y: -0.7}, {X: 0.9, Y: -0.6}, {X: 0.7, Y: 0.8}, {X: -0.6, Y: 0.9}}
	dst := applyAll(want, src)

	got, score, err := FitHomographyRansac(src, dst, ransacTestConfig())
	if err != nil {
		t.Fatalf("FitHomographyRansac failed: %v", err)
	}
	if score != 1.0 {
		t.Errorf("minimal-sample score = %.3f, want 1.0", score)
	}
	if e := maxPointError(applyAll(got, src), dst); e > 1e-8 {
		t.Errorf("reprojection error %.3g > 1e-8", e)
	}
}

func TestFitHomographyRansac_TooFewPoints(t *testing.T) {
	pts := randomPoints(3, 15)
	_, _, err := FitHomographyRansac(pts, pts, ransacTestConfig())
	if !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("want ErrTooFewPoints, got %v", err)
	}
}

func TestFitHomographyRansac_DegenerateSources(t *testing.T) {
	// Every source collapses onto one point, so no hypothesis can explain the
	// scattered destinations: the caller must see a numerical failure, not a
	// model.
	src := make([]r2.Point, 6)
	for i := range src {
		src[i] = r2.Point{X: 0.3, Y: -0.2}
	}
	dst := randomPoints(6, 16)

	_, _, err := FitHomographyRansac(src, dst, ransacTestConfig())
	if !errors.Is(err, ErrNumerical) {
		t.Errorf("want ErrNumerical on degenerate data, got %v", err)
	}
}
