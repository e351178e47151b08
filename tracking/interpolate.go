package tracking

import (
	"math"

	"github.com/golang/geo/r2"
)

// ndcCorners are the four corners of the NDC square, counter-clockwise from
// bottom-left.
var ndcCorners = [4]r2.Point{
	{X: -1, Y: -1},
	{X: 1, Y: -1},
	{X: 1, Y: 1},
	{X: -1, Y: 1},
}

// interpolateEpsilon is the squared corner displacement below which src and
// dst are considered the same transform.
const interpolateEpsilon = 1e-12

// InterpolateHomography blends the NDC-space homography dst towards src for
// temporal smoothing.
//
// The four NDC corners are mapped through both transforms. The corner that
// moved the least between the two mappings is treated as the most reliable
// observation and used to estimate a global translation correction and a
// global rotation correction (the signed angle between its two mapped
// positions). Every corner is then blended with an adaptive factor
//
//	t = (alpha - alpha*2^-beta)*f + alpha*2^-beta
//
// where f in [0,1] grows as the corner's displacement shrinks relative to the
// largest displacement, so low-error corners are trusted more. The rotation
// correction (weight omega) and translation correction (weight tau) are
// applied to the blended corners, and a fresh homography is fitted from the
// original corners to the corrected ones.
//
// Interpolating a homography with itself returns it unchanged.
func InterpolateHomography(src, dst Homography, alpha, beta, tau, omega float64) (Homography, error) {
	var srcPts, dstPts [4]r2.Point
	var disp [4]float64

	maxDisp := 0.0
	minDisp := math.MaxFloat64
	minIdx := 0
	for i, c := range ndcCorners {
		srcPts[i] = src.Apply(c)
		dstPts[i] = dst.Apply(c)
		d := dstPts[i].Sub(srcPts[i])
		disp[i] = d.X*d.X + d.Y*d.Y
		if disp[i] > maxDisp {
			maxDisp = disp[i]
		}
		if disp[i] < minDisp {
			minDisp = disp[i]
			minIdx = i
		}
	}

	if maxDisp < interpolateEpsilon {
		return dst, nil
	}

	// Corrections estimated from the most reliable corner: where the
	// transforms disagree the least, the residual displacement is read as
	// global drift rather than local noise.
	shift := dstPts[minIdx].Sub(srcPts[minIdx])
	angle := signedAngle(srcPts[minIdx], dstPts[minIdx])

	floor := alpha * math.Pow(2, -beta)
	span := alpha - floor

	var from, to [4]r2.Point
	sin, cos := math.Sincos(omega * angle)
	for i := range ndcCorners {
		f := 1 - disp[i]/maxDisp
		t := span*f + floor

		blended := srcPts[i].Mul(1 - t).Add(dstPts[i].Mul(t))

		// Rotation correction about the NDC origin, then translation.
		rotated := r2.Point{
			X: blended.X*cos - blended.Y*sin,
			Y: blended.X*sin + blended.Y*cos,
		}
		corrected := rotated.Add(shift.Mul(tau))

		from[i] = ndcCorners[i]
		to[i] = corrected
	}

	return FitHomography(from[:], to[:])
}

// signedAngle returns the signed angle from a to b around the origin.
func signedAngle(a, b r2.Point) float64 {
	return math.Atan2(a.X*b.Y-a.Y*b.X, a.X*b.X+a.Y*b.Y)
}
