package tracking

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// applyAll maps pts through h.
func applyAll(h Homography, pts []r2.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = h.Apply(p)
	}
	return out
}

// maxPointError returns the largest distance between corresponding points.
func maxPointError(a, b []r2.Point) float64 {
	maxErr := 0.0
	for i := range a {
		if d := a[i].Sub(b[i]).Norm(); d > maxErr {
			maxErr = d
		}
	}
	return maxErr
}

func mustHomography(t *testing.T, vals []float64) Homography {
	t.Helper()
	h, err := NewHomography(vals)
	if err != nil {
		t.Fatalf("NewHomography failed: %v", err)
	}
	return h
}

func randomPoints(n int, seed int64) []r2.Point {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]r2.Point, n)
	for i := range pts {
		pts[i] = r2.Point{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1}
	}
	return pts
}

func TestFitHomography_RecoversExactTransform(t *testing.T) {
	want := mustHomography(t, []float64{
		0.9, 0.1, 0.05,
		-0.08, 1.1, -0.02,
		0.03, -0.01, 1,
	})
	src := randomPoints(12, 1)
	dst := applyAll(want, src)

	got, err := FitHomography(src, dst)
	if err != nil {
		t.Fatalf("FitHomography failed: %v", err)
	}

	// Compare by action on the NDC corners rather than entry by entry; the
	// fit is only determined up to scale.
	corners := []r2.Point{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
	if e := maxPointError(applyAll(got, corners), applyAll(want, corners)); e > 1e-9 {
		t.Errorf("corner error %.3g > 1e-9", e)
	}
}

func TestFitHomography_TooFewPoints(t *testing.T) {
	pts := randomPoints(3, 2)
	_, err := FitHomography(pts, pts)
	if !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("want ErrTooFewPoints, got %v", err)
	}
	if !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("ErrTooFewPoints must classify as ErrIllegalArgument, got %v", err)
	}
}

func TestFitHomography_LengthMismatch(t *testing.T) {
	_, err := FitHomography(randomPoints(5, 3), randomPoints(4, 4))
	if !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("want ErrIllegalArgument, got %v", err)
	}
}

func TestFitAffine_RecoversExactTransform(t *testing.T) {
	want := mustHomography(t, []float64{
		1.2, -0.3, 0.4,
		0.25, 0.9, -0.1,
		0, 0, 1,
	})
	src := randomPoints(10, 5)
	dst := applyAll(want, src)

	got, err := FitAffine(src, dst)
	if err != nil {
		t.Fatalf("FitAffine failed: %v", err)
	}
	if e := maxPointError(applyAll(got, src), dst); e > 1e-9 {
		t.Errorf("point error %.3g > 1e-9", e)
	}
	// Affine fits keep the projective row trivial.
	if got.At(2, 0) != 0 || got.At(2, 1) != 0 || got.At(2, 2) != 1 {
		t.Errorf("bottom row not [0 0 1]: %v", got.Raw())
	}
}

func TestFitAffine_TooFewPoints(t *testing.T) {
	pts := randomPoints(2, 6)
	_, err := FitAffine(pts, pts)
	if !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("want ErrTooFewPoints, got %v", err)
	}
}

func TestHomography_InverseRoundTrip(t *testing.T) {
	h := mustHomography(t, []float64{
		0.8, 0.05, -0.1,
		-0.02, 1.15, 0.07,
		0.01, 0.02, 1,
	})
	inv, err := h.Inverse()
	if err != nil {
		t.Fatalf("Inverse failed: %v", err)
	}
	for _, p := range randomPoints(20, 7) {
		back := inv.Apply(h.Apply(p))
		if d := back.Sub(p).Norm(); d > 1e-10 {
			t.Fatalf("round trip error %.3g at %v", d, p)
		}
	}
}

func TestCoordinateSpaces_RoundTrips(t *testing.T) {
	const w, h = 640.0, 360.0
	for _, p := range randomPoints(50, 8) {
		raster := r2.Point{X: (p.X + 1) * 200, Y: (p.Y + 1) * 120}

		ndc := RasterToNDC(raster, w, h)
		if back := NDCToRaster(ndc, w, h); back.Sub(raster).Norm() > 1e-10 {
			t.Fatalf("raster<->NDC round trip failed at %v", raster)
		}

		nis := RasterToNIS(raster, w, h)
		if back := NISToRaster(nis, w, h); back.Sub(raster).Norm() > 1e-10 {
			t.Fatalf("raster<->NIS round trip failed at %v", raster)
		}

		if back := NDCToNIS(NISToNDC(nis)); back.Sub(nis).Norm() > 1e-10 {
			t.Fatalf("NIS<->NDC round trip failed at %v", nis)
		}
	}
}

func TestCoordinateSpaces_Orientation(t *testing.T) {
	// Raster origin is the top-left corner; NDC y grows upward.
	ndc := RasterToNDC(r2.Point{X: 0, Y: 0}, 640, 360)
	if math.Abs(ndc.X+1) > 1e-12 || math.Abs(ndc.Y-1) > 1e-12 {
		t.Errorf("raster (0,0) should map to NDC (-1,1), got %v", ndc)
	}
	center := RasterToNDC(r2.Point{X: 320, Y: 180}, 640, 360)
	if center.Norm() > 1e-12 {
		t.Errorf("raster center should map to NDC origin, got %v", center)
	}
}

func TestHomographyNDCToRaster_MatchesPointwiseConversion(t *testing.T) {
	const srcW, srcH, dstW, dstH = 512.0, 512.0, 640.0, 360.0
	h := mustHomography(t, []float64{
		0.9, 0.02, 0.1,
		-0.03, 0.85, -0.05,
		0.01, -0.02, 1,
	})
	raster := HomographyNDCToRaster(h, srcW, srcH, dstW, dstH)

	for _, p := range randomPoints(30, 9) {
		srcRaster := NDCToRaster(p, srcW, srcH)
		want := NDCToRaster(h.Apply(p), dstW, dstH)
		got := raster.Apply(srcRaster)
		if got.Sub(want).Norm() > 1e-9 {
			t.Fatalf("raster rebase mismatch at %v: got %v want %v", p, got, want)
		}
	}

	// Rebasing back must invert the change of basis.
	back := HomographyRasterToNDC(raster, srcW, srcH, dstW, dstH)
	corners := []r2.Point{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
	if e := maxPointError(applyAll(back, corners), applyAll(h, corners)); e > 1e-9 {
		t.Errorf("NDC->raster->NDC rebase error %.3g", e)
	}
}
