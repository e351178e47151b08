package tracking

import "github.com/golang/geo/r2"

// bestFitSize scales (w, h) to fit within (maxW, maxH) preserving aspect
// ratio.
func bestFitSize(w, h, maxW, maxH int) (int, int) {
	sx := float64(maxW) / float64(w)
	sy := float64(maxH) / float64(h)
	s := sx
	if sy < sx {
		s = sy
	}
	ow := int(float64(w)*s + 0.5)
	oh := int(float64(h)*s + 0.5)
	if ow < 1 {
		ow = 1
	}
	if oh < 1 {
		oh = 1
	}
	return ow, oh
}

// cornerPoints returns the raster corners of a w x h image.
func cornerPoints(w, h float64) []r2.Point {
	return []r2.Point{
		{X: 0, Y: 0},
		{X: w, Y: 0},
		{X: w, Y: h},
		{X: 0, Y: h},
	}
}

// rectifyingWarp builds the forward raster homography that resamples a
// srcW x srcH image into a dstW x dstH raster through the inverse of the
// NDC-space homography h (which maps destination NDC to source NDC content
// positions).
func rectifyingWarp(h Homography, srcW, srcH, dstW, dstH int) (Homography, error) {
	inv, err := h.Inverse()
	if err != nil {
		return Homography{}, err
	}
	return HomographyNDCToRaster(inv, float64(srcW), float64(srcH), float64(dstW), float64(dstH)), nil
}
