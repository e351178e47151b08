// Package pipeline implements the vision-pipeline collaborator on the RDK
// vision primitives: ORB keypoints (FAST corners with BRIEF descriptors) from
// go.viam.com/rdk/vision/keypoints, cross-checked Hamming matching, and
// perspective warping through rimage.
package pipeline

import (
	"context"
	"encoding/binary"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/vision/keypoints"

	"imagetracker/tracking"
)

// DescriptorSize is the descriptor length in bytes with the default BRIEF
// configuration (256 sampling pairs packed little-endian).
const DescriptorSize = 32

// Config tunes the CPU pipeline. FAST, BRIEF and Matching are the RDK
// keypoint configurations used verbatim; Layers and DownscaleFactor control
// the detection pyramid.
type Config struct {
	Layers          int
	DownscaleFactor int
	FAST            keypoints.FASTConfig
	BRIEF           keypoints.BRIEFConfig
	Matching        keypoints.MatchingConfig
}

// DefaultConfig returns the pipeline defaults: a single full-resolution
// pyramid layer (the tracker rectifies and rescales frames itself, so scale
// invariance comes from the state machine, not the detector) and oriented
// 256-bit BRIEF descriptors over a fixed sampling pattern, so two pipeline
// instances produce comparable descriptors.
func DefaultConfig() Config {
	return Config{
		Layers:          1,
		DownscaleFactor: 2,
		FAST: keypoints.FASTConfig{
			NMatchesCircle: 9,
			NMSWinSize:     7,
			Threshold:      20,
			Oriented:       true,
			Radius:         16,
		},
		BRIEF: keypoints.BRIEFConfig{
			N:              8 * DescriptorSize,
			Sampling:       keypoints.SamplingType(2), // fixed, regularly spaced pairs
			UseOrientation: true,
			PatchSize:      48,
		},
		Matching: keypoints.MatchingConfig{DoCrossCheck: true},
	}
}

// CPU is a software vision pipeline.
type CPU struct {
	cfg    Config
	sample *keypoints.SamplePairs
	logger logging.Logger
}

var _ tracking.VisionPipeline = (*CPU)(nil)

// New creates a CPU pipeline with the given configuration.
func New(cfg Config, logger logging.Logger) *CPU {
	return &CPU{
		cfg:    cfg,
		sample: keypoints.GenerateSamplePairs(cfg.BRIEF.Sampling, cfg.BRIEF.N, cfg.BRIEF.PatchSize),
		logger: logger,
	}
}

// Detect runs one ORB detection + description pass over img.
func (c *CPU) Detect(ctx context.Context, img image.Image, p tracking.DetectParams) ([]tracking.Keypoint, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gray := toGray(img)
	if p.Enhance {
		gray = stretchContrast(gray)
	}
	if p.BlurKernel > 1 {
		gray = blur(gray, p.BlurKernel)
	}

	fast := c.cfg.FAST
	if p.Quality > 0 {
		// Quality in [0,1] scales the FAST intensity test over the 8-bit range.
		fast.Threshold = int(p.Quality*255 + 0.5)
	}
	orb := keypoints.ORBConfig{
		Layers:          c.cfg.Layers,
		DownscaleFactor: c.cfg.DownscaleFactor,
		FastConf:        &fast,
		BRIEFConf:       &c.cfg.BRIEF,
	}
	descs, pts, err := keypoints.ComputeORBKeypoints(gray, c.sample, &orb)
	if err != nil {
		return nil, errors.Wrap(err, "orb detection")
	}
	orientations := keypoints.ComputeKeypointsOrientations(gray, pts, fast.Radius)

	// The BRIEF patch must fit inside the image; callers may clip further.
	border := c.cfg.BRIEF.PatchSize/2 + 1
	if p.BorderClip > border {
		border = p.BorderClip
	}
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()

	kps := make([]tracking.Keypoint, 0, len(pts))
	for i, pt := range pts {
		if pt.X < border || pt.Y < border || pt.X >= w-border || pt.Y >= h-border {
			continue
		}
		kps = append(kps, tracking.Keypoint{
			Position:    r2.Point{X: float64(pt.X), Y: float64(pt.Y)},
			Descriptor:  packDescriptor(descs[i]),
			Scale:       1,
			Orientation: orientations[i],
			ImageIndex:  -1,
		})
		if p.MaxKeypoints > 0 && len(kps) == p.MaxKeypoints {
			break
		}
	}
	return kps, nil
}

// Match pairs query keypoints against train keypoints by Hamming distance
// with mutual cross-checking, so ambiguous and one-sided matches drop out.
// Pair sources come from train, destinations from query.
func (c *CPU) Match(ctx context.Context, query, train []tracking.Keypoint, p tracking.MatchParams) ([]tracking.KeypointPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) == 0 || len(train) == 0 {
		return nil, nil
	}

	qd := make([]keypoints.Descriptor, len(query))
	for i, kp := range query {
		qd[i] = unpackDescriptor(kp.Descriptor)
	}
	td := make([]keypoints.Descriptor, len(train))
	for i, kp := range train {
		td[i] = unpackDescriptor(kp.Descriptor)
	}

	mcfg := c.cfg.Matching
	if p.MaxDistance > 0 {
		mcfg.MaxDist = int(p.MaxDistance)
	}
	matches := keypoints.MatchDescriptors(qd, td, &mcfg, c.logger)

	pairs := make([]tracking.KeypointPair, 0, len(matches))
	for _, m := range matches {
		pairs = append(pairs, tracking.KeypointPair{
			Source:      train[m.Idx2],
			Destination: query[m.Idx1],
			Distance:    float64(m.Score),
		})
	}
	return pairs, nil
}

// Warp resamples img into a width x height raster through the forward raster
// homography h (source raster -> output raster). Output pixels mapping
// outside the source are black.
func (c *CPU) Warp(ctx context.Context, img image.Image, h tracking.Homography, width, height int) (image.Image, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, err
	}

	// rimage.Warp maps output coordinates through the matrix into the source,
	// so it gets the inverse homography.
	m := rimage.TransformationMatrix{
		{inv.At(0, 0), inv.At(0, 1), inv.At(0, 2)},
		{inv.At(1, 0), inv.At(1, 1), inv.At(1, 2)},
		{inv.At(2, 0), inv.At(2, 1), inv.At(2, 2)},
	}
	conn := &grayWarpConnector{
		src: toGray(img),
		out: image.NewGray(image.Rect(0, 0, width, height)),
	}
	rimage.Warp(conn, m)
	return conn.out, nil
}

// grayWarpConnector feeds a grayscale image through rimage.Warp with bounds
// checking, so source reads outside the image count as missing rather than
// wrapping around.
type grayWarpConnector struct {
	src *image.Gray
	out *image.Gray
}

func (c *grayWarpConnector) Get(x, y int, buf []float64) bool {
	if !(image.Point{X: x, Y: y}).In(c.src.Bounds()) {
		return false
	}
	buf[0] = float64(c.src.GrayAt(x, y).Y)
	return true
}

func (c *grayWarpConnector) Set(x, y int, data []float64) {
	v := data[0]
	// Fully uncovered output pixels come through as 0/0; paint them black.
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	c.out.Pix[y*c.out.Stride+x] = uint8(v + 0.5)
}

func (c *grayWarpConnector) OutputDims() (int, int) {
	b := c.out.Bounds()
	return b.Dx(), b.Dy()
}

func (c *grayWarpConnector) NumFields() int { return 1 }

// packDescriptor flattens an RDK descriptor into the byte form keypoints
// carry across the engine boundary.
func packDescriptor(d keypoints.Descriptor) []byte {
	out := make([]byte, 8*len(d))
	for i, w := range d {
		binary.LittleEndian.PutUint64(out[8*i:], w)
	}
	return out
}

func unpackDescriptor(b []byte) keypoints.Descriptor {
	d := make(keypoints.Descriptor, (len(b)+7)/8)
	for i, v := range b {
		d[i/8] |= uint64(v) << (8 * uint(i%8))
	}
	return d
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	return rimage.MakeGray(rimage.ConvertImage(img))
}

// blur applies a normalized Gaussian kernel sized to the requested side.
func blur(img *image.Gray, side int) *image.Gray {
	kernel := rimage.GetGaussian3()
	anchor := image.Point{X: 1, Y: 1}
	if side >= 5 {
		kernel = rimage.GetGaussian5()
		anchor = image.Point{X: 2, Y: 2}
	}
	out, err := rimage.ConvolveGray(img, kernel.Normalize(), anchor, 0)
	if err != nil {
		return img
	}
	return out
}

// stretchContrast linearly stretches the 1st..99th percentile range to full
// scale, a cheap night-enhancement pass.
func stretchContrast(img *image.Gray) *image.Gray {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}
	total := len(img.Pix)
	lo, hi := 0, 255
	acc := 0
	for i := 0; i < 256; i++ {
		acc += hist[i]
		if acc >= total/100 {
			lo = i
			break
		}
	}
	acc = 0
	for i := 255; i >= 0; i-- {
		acc += hist[i]
		if acc >= total/100 {
			hi = i
			break
		}
	}
	if hi <= lo {
		return img
	}

	out := image.NewGray(img.Bounds())
	scale := 255.0 / float64(hi-lo)
	for i, v := range img.Pix {
		s := (float64(v) - float64(lo)) * scale
		if s < 0 {
			s = 0
		}
		if s > 255 {
			s = 255
		}
		out.Pix[i] = uint8(s)
	}
	return out
}
