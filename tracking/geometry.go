package tracking

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// NISSize is the side of the normalized image space raster. Keypoint positions
// are stored in NIS so trained data stays independent of source resolution.
const NISSize = 512.0

// Homography is a 3x3 projective transform. The engine keeps all fitted
// homographies in NDC ([-1,1]^2, y-up) for numerical stability; raster-space
// homographies appear only at the pipeline boundary.
type Homography struct {
	m *mat.Dense
}

// NewHomography creates a Homography from 9 row-major values.
func NewHomography(vals []float64) (Homography, error) {
	if len(vals) != 9 {
		return Homography{}, errors.Wrapf(ErrIllegalArgument, "homography needs 9 values, got %d", len(vals))
	}
	d := mat.NewDense(3, 3, nil)
	copy(d.RawMatrix().Data, vals)
	return Homography{d}, nil
}

// IdentityHomography returns the identity transform.
func IdentityHomography() Homography {
	return Homography{mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})}
}

// At returns the entry at (row, col).
func (h Homography) At(row, col int) float64 {
	return h.m.At(row, col)
}

// IsZero reports whether h is the zero value (no matrix attached).
func (h Homography) IsZero() bool {
	return h.m == nil
}

// IsValid reports whether every entry is finite. A homography with NaN or Inf
// entries marks a degenerate fit.
func (h Homography) IsValid() bool {
	if h.m == nil {
		return false
	}
	for _, v := range h.m.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Apply transforms pt through the homography, performing the perspective
// divide.
func (h Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	w := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / w, Y: y / w}
}

// Inverse returns the inverse transform.
func (h Homography) Inverse() (Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.m); err != nil {
		return Homography{}, errors.Wrap(ErrNumerical, "homography is not invertible")
	}
	return Homography{&inv}, nil
}

// Mul returns h * g (apply g first, then h).
func (h Homography) Mul(g Homography) Homography {
	out := mat.NewDense(3, 3, nil)
	out.Mul(h.m, g.m)
	return Homography{out}
}

// Normalized returns the homography scaled so its bottom-right entry is 1.
func (h Homography) Normalized() Homography {
	out := mat.NewDense(3, 3, nil)
	out.Scale(1/h.m.At(2, 2), h.m)
	return Homography{out}
}

// Raw returns the 9 row-major entries.
func (h Homography) Raw() [9]float64 {
	var out [9]float64
	copy(out[:], h.m.RawMatrix().Data)
	return out
}

// RasterToNDC converts a raster point (origin top-left, y-down) of a
// width x height image to NDC ([-1,1]^2, origin center, y-up).
func RasterToNDC(pt r2.Point, width, height float64) r2.Point {
	return r2.Point{
		X: 2*pt.X/width - 1,
		Y: 1 - 2*pt.Y/height,
	}
}

// NDCToRaster converts an NDC point back to raster coordinates of a
// width x height image.
func NDCToRaster(pt r2.Point, width, height float64) r2.Point {
	return r2.Point{
		X: (pt.X + 1) * width / 2,
		Y: (1 - pt.Y) * height / 2,
	}
}

// RasterToNIS rescales a raster point of a width x height image into the fixed
// NIS raster.
func RasterToNIS(pt r2.Point, width, height float64) r2.Point {
	return r2.Point{X: pt.X * NISSize / width, Y: pt.Y * NISSize / height}
}

// NISToRaster rescales an NIS point to the raster of a width x height image.
func NISToRaster(pt r2.Point, width, height float64) r2.Point {
	return r2.Point{X: pt.X * width / NISSize, Y: pt.Y * height / NISSize}
}

// NISToNDC converts an NIS point to NDC.
func NISToNDC(pt r2.Point) r2.Point {
	return RasterToNDC(pt, NISSize, NISSize)
}

// NDCToNIS converts an NDC point to NIS.
func NDCToNIS(pt r2.Point) r2.Point {
	return NDCToRaster(pt, NISSize, NISSize)
}

// rasterToNDCMatrix returns the affine change of basis from raster coordinates
// of a width x height image to NDC, as a homography.
func rasterToNDCMatrix(width, height float64) Homography {
	return Homography{mat.NewDense(3, 3, []float64{
		2 / width, 0, -1,
		0, -2 / height, 1,
		0, 0, 1,
	})}
}

// ndcToRasterMatrix returns the inverse change of basis of rasterToNDCMatrix.
func ndcToRasterMatrix(width, height float64) Homography {
	return Homography{mat.NewDense(3, 3, []float64{
		width / 2, 0, width / 2,
		0, -height / 2, height / 2,
		0, 0, 1,
	})}
}

// HomographyNDCToRaster rebases an NDC-space homography so it maps raster
// points of a srcW x srcH image to raster points of a dstW x dstH image.
func HomographyNDCToRaster(h Homography, srcW, srcH, dstW, dstH float64) Homography {
	return ndcToRasterMatrix(dstW, dstH).Mul(h).Mul(rasterToNDCMatrix(srcW, srcH))
}

// HomographyRasterToNDC rebases a raster-space homography into NDC.
func HomographyRasterToNDC(h Homography, srcW, srcH, dstW, dstH float64) Homography {
	return rasterToNDCMatrix(dstW, dstH).Mul(h).Mul(ndcToRasterMatrix(srcW, srcH))
}

// FitHomography computes the homography mapping src[i] -> dst[i] from n >= 4
// correspondences using the normalized direct linear transform (least squares
// for n > 4).
func FitHomography(src, dst []r2.Point) (Homography, error) {
	if len(src) != len(dst) {
		return Homography{}, errors.Wrap(ErrIllegalArgument, "correspondence sets differ in length")
	}
	if len(src) < 4 {
		return Homography{}, errors.Wrapf(ErrTooFewPoints, "homography needs 4, got %d", len(src))
	}

	nsrc, tSrc := hartleyNormalize(src)
	ndst, tDst := hartleyNormalize(dst)

	n := len(src)
	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		X, Y := nsrc[i].X, nsrc[i].Y
		x, y := ndst[i].X, ndst[i].Y
		a.SetRow(2*i, []float64{-X, -Y, -1, 0, 0, 0, x * X, x * Y, x})
		a.SetRow(2*i+1, []float64{0, 0, 0, -X, -Y, -1, y * X, y * Y, y})
	}

	hvec, err := smallestSingularVector(a)
	if err != nil {
		return Homography{}, err
	}

	h := Homography{mat.NewDense(3, 3, hvec)}

	// Denormalize: H = Tdst^-1 * Hn * Tsrc.
	tDstInv, err := tDst.Inverse()
	if err != nil {
		return Homography{}, err
	}
	h = tDstInv.Mul(h).Mul(tSrc).Normalized()
	if !h.IsValid() {
		return Homography{}, ErrDegenerateFit
	}
	return h, nil
}

// FitAffine computes the affine transform mapping src[i] -> dst[i] from n >= 3
// correspondences by linear least squares. The result is returned as a
// homography with a [0 0 1] bottom row.
func FitAffine(src, dst []r2.Point) (Homography, error) {
	if len(src) != len(dst) {
		return Homography{}, errors.Wrap(ErrIllegalArgument, "correspondence sets differ in length")
	}
	if len(src) < 3 {
		return Homography{}, errors.Wrapf(ErrTooFewPoints, "affine needs 3, got %d", len(src))
	}

	n := len(src)
	a := mat.NewDense(2*n, 6, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := 0; i < n; i++ {
		a.SetRow(2*i, []float64{src[i].X, src[i].Y, 1, 0, 0, 0})
		a.SetRow(2*i+1, []float64{0, 0, 0, src[i].X, src[i].Y, 1})
		b.SetVec(2*i, dst[i].X)
		b.SetVec(2*i+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(a)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return Homography{}, errors.Wrap(ErrNumerical, "affine system is singular")
	}

	h := Homography{mat.NewDense(3, 3, []float64{
		x.AtVec(0), x.AtVec(1), x.AtVec(2),
		x.AtVec(3), x.AtVec(4), x.AtVec(5),
		0, 0, 1,
	})}
	if !h.IsValid() {
		return Homography{}, ErrDegenerateFit
	}
	return h, nil
}

// hartleyNormalize translates points to their centroid and scales them so the
// mean distance from the origin is sqrt(2). Multiple View Geometry, alg 4.2.
func hartleyNormalize(pts []r2.Point) ([]r2.Point, Homography) {
	n := float64(len(pts))
	var mu r2.Point
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1 / n)

	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / n
	}
	scale := 1.0
	if d > 1e-12 {
		scale = math.Sqrt2 / d
	}

	t := Homography{mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})}
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = pt.Sub(mu).Mul(scale)
	}
	return out, t
}

// smallestSingularVector returns the right singular vector of a that
// corresponds to its smallest singular value.
func smallestSingularVector(a *mat.Dense) ([]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.Wrap(ErrNumerical, "SVD factorization failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	rows, cols := v.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = v.At(i, cols-1)
	}
	return out, nil
}
