// Package synth generates deterministic synthetic images and homographies
// for tests and the demo CLI.
package synth

import (
	"image"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"imagetracker/tracking"
)

// TexturedImage builds a feature-rich grayscale image: bright spots of
// varying intensity scattered over a mildly noisy dark background. The spots
// are small against the FAST test circle, so each one reads as a corner, and
// the intensity spread keeps their descriptor neighborhoods distinctive. The
// same seed always yields the same image.
func TexturedImage(width, height int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, width, height))

	for i := range img.Pix {
		img.Pix[i] = uint8(40 + rng.Intn(11))
	}

	nSpots := (width * height) / 1200
	for i := 0; i < nSpots; i++ {
		cx := rng.Intn(width)
		cy := rng.Intn(height)
		r := 2 + rng.Intn(3)
		v := uint8(120 + rng.Intn(136))
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if dx*dx+dy*dy > r*r {
					continue
				}
				x, y := cx+dx, cy+dy
				if x < 0 || y < 0 || x >= width || y >= height {
					continue
				}
				img.Pix[y*img.Stride+x] = v
			}
		}
	}
	return img
}

// TiltHomography builds the NDC homography of a plane rotated by rx/ry
// radians about the x/y axes and placed at (tx, ty, dist) in front of a
// camera with the given NDC intrinsics.
func TiltHomography(in tracking.CameraIntrinsics, rx, ry, tx, ty, dist float64) tracking.Homography {
	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)

	// R = Ry * Rx, planar columns r1, r2 plus translation.
	r := mat.NewDense(3, 3, []float64{
		cy, sy * sx, sy * cx,
		0, cx, -sx,
		-sy, cy * sx, cy * cx,
	})

	t := []float64{tx, ty, dist}

	k := mat.NewDense(3, 3, []float64{
		in.Fx, 0, in.Cx,
		0, in.Fy, in.Cy,
		0, 0, 1,
	})
	rt := mat.NewDense(3, 3, []float64{
		r.At(0, 0), r.At(0, 1), t[0],
		r.At(1, 0), r.At(1, 1), t[1],
		r.At(2, 0), r.At(2, 1), t[2],
	})

	var hm mat.Dense
	hm.Mul(k, rt)
	h, err := tracking.NewHomography(hm.RawMatrix().Data)
	if err != nil {
		panic(err)
	}
	return h.Normalized()
}

// ShiftHomography builds a raster-space homography that translates by
// (dx, dy) pixels and scales by s about the origin.
func ShiftHomography(dx, dy, s float64) tracking.Homography {
	h, err := tracking.NewHomography([]float64{
		s, 0, dx,
		0, s, dy,
		0, 0, 1,
	})
	if err != nil {
		panic(err)
	}
	return h
}
