package tracking

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PlanarPose is a rigid camera pose recovered from coplanar correspondences:
// x_cam = R*(X, Y, 0) + T for a point (X, Y) on the reference plane.
type PlanarPose struct {
	R *mat.Dense // 3x3 rotation
	T r3.Vector
}

// Matrix34 returns the pose as a 3x4 [R|t] matrix.
func (p PlanarPose) Matrix34() *mat.Dense {
	out := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, p.R.At(i, j))
		}
	}
	out.Set(0, 3, p.T.X)
	out.Set(1, 3, p.T.Y)
	out.Set(2, 3, p.T.Z)
	return out
}

// nanPose returns a PlanarPose filled with NaNs, the degenerate-fit marker.
func nanPose() PlanarPose {
	nan := math.NaN()
	data := make([]float64, 9)
	for i := range data {
		data[i] = nan
	}
	return PlanarPose{
		R: mat.NewDense(3, 3, data),
		T: r3.Vector{X: nan, Y: nan, Z: nan},
	}
}

// IsValid reports whether the pose is free of NaN/Inf entries.
func (p PlanarPose) IsValid() bool {
	if p.R == nil {
		return false
	}
	for _, v := range p.R.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !math.IsNaN(p.T.X) && !math.IsNaN(p.T.Y) && !math.IsNaN(p.T.Z)
}

// SolvePlanarPnP recovers the camera pose from n >= 4 correspondences between
// points on a planar target (reference plane parallel to the image plane at
// rest) and their NDC observations. The recovery is closed form: a homography
// is fitted from reference to observed points and decomposed against the
// intrinsics. A degenerate configuration yields a pose of NaNs rather than an
// error, matching the fitting-primitive contract.
func SolvePlanarPnP(ref, obs []r2.Point, k CameraIntrinsics) PlanarPose {
	h, err := FitHomography(ref, obs)
	if err != nil {
		return nanPose()
	}
	pose, ok := decomposeHomography(h, k)
	if !ok {
		return nanPose()
	}
	return pose
}

// SolvePlanarPnPRansac wraps SolvePlanarPnP in a RANSAC loop. mask, when
// non-nil and of length len(ref), is filled with the inlier flags of the best
// hypothesis. The returned score is the inlier fraction.
func SolvePlanarPnPRansac(ref, obs []r2.Point, k CameraIntrinsics, cfg RansacConfig, mask []bool) (PlanarPose, float64) {
	n := len(ref)
	if n < 4 || len(obs) != n {
		return nanPose(), 0
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	threshSq := cfg.ReprojectionThreshold * cfg.ReprojectionThreshold

	best := nanPose()
	bestInliers := -1

	sampleRef := make([]r2.Point, 4)
	sampleObs := make([]r2.Point, 4)
	for iter := 0; iter < cfg.Hypotheses; iter++ {
		idx := sampleDistinct(rng, n, 4)
		for i, j := range idx {
			sampleRef[i] = ref[j]
			sampleObs[i] = obs[j]
		}
		pose := SolvePlanarPnP(sampleRef, sampleObs, k)
		if !pose.IsValid() {
			continue
		}

		inliers := 0
		for i := range ref {
			d := projectPlanar(pose, k, ref[i]).Sub(obs[i])
			if d.X*d.X+d.Y*d.Y <= threshSq {
				inliers++
			}
		}
		if inliers > bestInliers {
			bestInliers = inliers
			best = pose
			if cfg.EarlyExitInlierRatio > 0 && float64(inliers) >= cfg.EarlyExitInlierRatio*float64(n) {
				break
			}
		}
	}

	if bestInliers < 4 {
		return nanPose(), 0
	}

	if mask != nil && len(mask) == n {
		for i := range ref {
			d := projectPlanar(best, k, ref[i]).Sub(obs[i])
			mask[i] = d.X*d.X+d.Y*d.Y <= threshSq
		}
	}
	return best, float64(bestInliers) / float64(n)
}

// FitHomography6DoF fits a homography constrained to the six physically
// meaningful degrees of freedom (rotation + translation of a rigid planar
// target) instead of the general eight. It recovers a pose via planar PnP
// RANSAC and rebuilds the homography as K*[r1 r2 t]. Contract matches
// FitHomographyRansac: (matrix, inlier fraction, error).
func FitHomography6DoF(src, dst []r2.Point, k CameraIntrinsics, cfg RansacConfig) (Homography, float64, error) {
	if len(src) != len(dst) {
		return Homography{}, 0, errors.Wrap(ErrIllegalArgument, "correspondence sets differ in length")
	}
	if len(src) < 4 {
		return Homography{}, 0, errors.Wrapf(ErrTooFewPoints, "pose fit needs 4, got %d", len(src))
	}
	pose, score := SolvePlanarPnPRansac(src, dst, k, cfg, nil)
	if !pose.IsValid() {
		return Homography{}, 0, ErrDegenerateFit
	}
	h := homographyFromPose(pose, k)
	if !h.IsValid() {
		return Homography{}, 0, ErrDegenerateFit
	}
	return h, score, nil
}

// projectPlanar projects a reference-plane point through the pose and
// intrinsics into NDC.
func projectPlanar(pose PlanarPose, k CameraIntrinsics, pt r2.Point) r2.Point {
	x := pose.R.At(0, 0)*pt.X + pose.R.At(0, 1)*pt.Y + pose.T.X
	y := pose.R.At(1, 0)*pt.X + pose.R.At(1, 1)*pt.Y + pose.T.Y
	z := pose.R.At(2, 0)*pt.X + pose.R.At(2, 1)*pt.Y + pose.T.Z
	return r2.Point{
		X: (k.Fx*x + k.Cx*z) / z,
		Y: (k.Fy*y + k.Cy*z) / z,
	}
}

// homographyFromPose rebuilds the planar homography K*[r1 r2 t] induced by a
// pose, normalized so the bottom-right entry is 1.
func homographyFromPose(pose PlanarPose, k CameraIntrinsics) Homography {
	r1 := colVec(pose.R, 0)
	r2c := colVec(pose.R, 1)
	t := pose.T
	m := mat.NewDense(3, 3, []float64{
		k.Fx*r1.X + k.Cx*r1.Z, k.Fx*r2c.X + k.Cx*r2c.Z, k.Fx*t.X + k.Cx*t.Z,
		k.Fy*r1.Y + k.Cy*r1.Z, k.Fy*r2c.Y + k.Cy*r2c.Z, k.Fy*t.Y + k.Cy*t.Z,
		r1.Z, r2c.Z, t.Z,
	})
	return Homography{m}.Normalized()
}

// decomposeHomography splits an NDC homography into the rigid pose of the
// planar target: M = K^-1*H, the first two columns are scaled rotation
// columns, the third the scaled translation. The rotation columns are rarely
// orthonormal on noisy input, so the nearest orthonormal pair is recovered by
// a Procrustes correction before completing the basis with a cross product.
func decomposeHomography(h Homography, k CameraIntrinsics) (PlanarPose, bool) {
	m1 := r3.Vector{X: h.At(0, 0) / k.Fx, Y: h.At(1, 0) / k.Fy, Z: h.At(2, 0)}
	m2 := r3.Vector{X: h.At(0, 1) / k.Fx, Y: h.At(1, 1) / k.Fy, Z: h.At(2, 1)}
	m3 := r3.Vector{X: h.At(0, 2) / k.Fx, Y: h.At(1, 2) / k.Fy, Z: h.At(2, 2)}
	// Principal-point removal folded in above only when it is zero; the
	// engine keeps Cx = Cy = 0 in NDC, asserted here.
	if k.Cx != 0 || k.Cy != 0 {
		m1.X -= k.Cx / k.Fx * m1.Z
		m2.X -= k.Cx / k.Fx * m2.Z
		m3.X -= k.Cx / k.Fx * m3.Z
		m1.Y -= k.Cy / k.Fy * m1.Z
		m2.Y -= k.Cy / k.Fy * m2.Z
		m3.Y -= k.Cy / k.Fy * m3.Z
	}

	n1, n2 := m1.Norm(), m2.Norm()
	if n1 < 1e-12 || n2 < 1e-12 {
		return PlanarPose{}, false
	}
	lambda := 2 / (n1 + n2)
	// The target must sit in front of the camera (positive depth).
	if m3.Z*lambda < 0 {
		lambda = -lambda
	}

	r1 := m1.Mul(lambda)
	r2c := m2.Mul(lambda)

	r1, r2c, ok := orthonormalizePair(r1, r2c)
	if !ok {
		return PlanarPose{}, false
	}
	r3c := r1.Cross(r2c)

	rot := mat.NewDense(3, 3, []float64{
		r1.X, r2c.X, r3c.X,
		r1.Y, r2c.Y, r3c.Y,
		r1.Z, r2c.Z, r3c.Z,
	})

	// Refine the translation against the normalized homography: the scale
	// that best maps (m1, m2) onto the orthonormal (r1, r2) in the least
	// squares sense is reapplied to m3.
	s := (m1.Dot(r1) + m2.Dot(r2c)) / (m1.Dot(m1) + m2.Dot(m2))
	t := m3.Mul(s)
	if math.IsNaN(t.X) || math.IsNaN(t.Y) || math.IsNaN(t.Z) {
		return PlanarPose{}, false
	}

	pose := PlanarPose{R: rot, T: t}
	if !pose.IsValid() {
		return PlanarPose{}, false
	}
	return pose, true
}

// orthonormalizePair returns the orthonormal pair closest to (a, b) in the
// Frobenius sense, via the SVD of the 3x2 matrix [a b] (Procrustes).
func orthonormalizePair(a, b r3.Vector) (r3.Vector, r3.Vector, bool) {
	m := mat.NewDense(3, 2, []float64{
		a.X, b.X,
		a.Y, b.Y,
		a.Z, b.Z,
	})
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return r3.Vector{}, r3.Vector{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// Nearest matrix with orthonormal columns: U * V^T.
	var q mat.Dense
	q.Mul(&u, v.T())

	oa := r3.Vector{X: q.At(0, 0), Y: q.At(1, 0), Z: q.At(2, 0)}
	ob := r3.Vector{X: q.At(0, 1), Y: q.At(1, 1), Z: q.At(2, 1)}
	if math.IsNaN(oa.X) || math.IsNaN(ob.X) {
		return r3.Vector{}, r3.Vector{}, false
	}
	return oa, ob, true
}

func colVec(m *mat.Dense, col int) r3.Vector {
	return r3.Vector{X: m.At(0, col), Y: m.At(1, col), Z: m.At(2, col)}
}
