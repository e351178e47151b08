package tracking

import (
	"image"

	"github.com/golang/geo/r2"
	"go.viam.com/rdk/spatialmath"
)

// Keypoint is a sub-pixel image feature with its descriptor. Position is in
// raster coordinates of the image the keypoint was detected in; the engine
// converts to NIS for storage and to NDC for geometric fitting.
type Keypoint struct {
	Position    r2.Point
	Descriptor  []byte
	Scale       float64
	Orientation float64
	// ImageIndex back-references the owning reference image in the trained
	// keypoint table. -1 for keypoints detected on video frames.
	ImageIndex int
}

// KeypointPair is a (source, destination) correspondence produced by
// descriptor matching. It is valid only for the frame that produced it.
type KeypointPair struct {
	Source      Keypoint
	Destination Keypoint
	// Distance is the descriptor distance reported by the matcher.
	Distance float64
}

// PoseSpace tags which space a Pose is expressed relative to.
type PoseSpace int

const (
	// SpaceWorld poses are relative to the world origin (the rest camera position).
	SpaceWorld PoseSpace = iota
	// SpaceViewer poses are relative to the current viewer.
	SpaceViewer
)

func (s PoseSpace) String() string {
	switch s {
	case SpaceWorld:
		return "world"
	case SpaceViewer:
		return "viewer"
	default:
		return "unknown"
	}
}

// Pose is a rigid transform tagged with the space it is relative to.
type Pose struct {
	Transform spatialmath.Pose
	Space     PoseSpace
}

// Viewer exposes the matrices a renderer needs to draw on top of the tracked
// target.
type Viewer struct {
	cam *CameraModel
}

// ViewMatrix returns the 4x4 right-handed view matrix (camera looking down -z)
// in column-major order.
func (v Viewer) ViewMatrix() [16]float64 {
	return v.cam.ViewMatrix()
}

// ProjectionMatrix returns the 4x4 perspective projection matrix for the given
// clipping planes, in column-major order.
func (v Viewer) ProjectionMatrix(near, far float64) [16]float64 {
	return v.cam.ProjectionMatrix(near, far)
}

// Result is the per-frame output of a tracker that is currently tracking a
// target.
type Result struct {
	// Pose of the tracked target.
	Pose Pose
	// Image is the reference image being tracked.
	Image *ReferenceImage
	// Viewer exposes view/projection matrices for rendering.
	Viewer Viewer
}

// Frame is a single video frame handed to the tracker.
type Frame struct {
	Image image.Image
}

// Size returns the frame dimensions in pixels.
func (f Frame) Size() (int, int) {
	if f.Image == nil {
		return 0, 0
	}
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}
