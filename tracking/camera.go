package tracking

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
)

// verticalFOV is the assumed vertical field of view of the video camera, in
// radians. The principal point is assumed at the image center.
const verticalFOV = 45.0 * math.Pi / 180.0

// CameraIntrinsics holds pinhole intrinsics expressed in NDC units, so they
// compose directly with the NDC homographies the engine fits.
type CameraIntrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// IntrinsicsFromAspect derives NDC intrinsics from the image aspect ratio
// (width/height) and the fixed vertical field-of-view convention.
func IntrinsicsFromAspect(aspect float64) CameraIntrinsics {
	f := 1 / math.Tan(verticalFOV/2)
	return CameraIntrinsics{
		Fx: f / aspect,
		Fy: f,
	}
}

// CameraModel converts NDC homographies of the tracked plane into a filtered
// 3D camera pose and the view/projection matrices a renderer consumes.
//
// The world frame is anchored at the rest pose: the camera position produced
// by the identity homography is the world origin, so an untransformed target
// yields zero rotation and zero translation.
type CameraModel struct {
	width, height float64
	intrinsics    CameraIntrinsics
	restDistance  float64

	filter *PoseFilter

	// filtered extrinsics, world frame
	rotation    *mat.Dense
	translation r3.Vector
}

// NewCameraModel creates a camera model for an image plane of the given size.
func NewCameraModel(width, height float64, filterWindow int) *CameraModel {
	k := IntrinsicsFromAspect(width / height)
	c := &CameraModel{
		width:      width,
		height:     height,
		intrinsics: k,
		filter:     NewPoseFilter(filterWindow),
	}
	// Rest distance: depth recovered from the identity homography. Fixing the
	// world origin there makes the untransformed target the zero pose.
	rest, ok := decomposeHomography(IdentityHomography(), k)
	if !ok {
		// Intrinsics are finite and positive, the identity never degenerates.
		panic("camera model: identity decomposition failed")
	}
	c.restDistance = rest.T.Z
	c.Reset()
	return c
}

// Intrinsics returns the NDC intrinsics derived from the image aspect ratio.
func (c *CameraModel) Intrinsics() CameraIntrinsics {
	return c.intrinsics
}

// Update decomposes the NDC homography of the tracked plane into extrinsics,
// smooths them through the pose filter and stores the result. A degenerate
// homography leaves the previous pose in place and reports ErrNumerical.
func (c *CameraModel) Update(h Homography) error {
	if !h.IsValid() {
		return ErrDegenerateFit
	}
	pose, ok := decomposeHomography(h, c.intrinsics)
	if !ok {
		return ErrDegenerateFit
	}

	// Rebase the translation so the rest pose maps to the origin.
	r3col := colVec(pose.R, 2)
	pose.T = pose.T.Sub(r3col.Mul(c.restDistance))

	c.filter.Feed(pose)
	filtered := c.filter.Output()
	c.rotation = filtered.R
	c.translation = filtered.T
	return nil
}

// Reset clears the extrinsics to identity and empties the pose filter.
func (c *CameraModel) Reset() {
	c.rotation = mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	c.translation = r3.Vector{}
	c.filter.Reset()
}

// Pose returns the filtered extrinsics as a planar pose in the world frame.
func (c *CameraModel) Pose() PlanarPose {
	return PlanarPose{R: c.rotation, T: c.translation}
}

// TargetPose returns the pose of the tracked plane relative to the viewer,
// i.e. the filtered extrinsics before the world rebase.
func (c *CameraModel) TargetPose() (spatialmath.Pose, error) {
	rm, err := spatialmath.NewRotationMatrix(c.rotation.RawMatrix().Data)
	if err != nil {
		return nil, err
	}
	t := c.translation.Add(colVec(c.rotation, 2).Mul(c.restDistance))
	return spatialmath.NewPose(t, rm), nil
}

// CameraMatrix returns the filtered 3x4 camera matrix K*[R|t].
func (c *CameraModel) CameraMatrix() *mat.Dense {
	k := mat.NewDense(3, 3, []float64{
		c.intrinsics.Fx, 0, c.intrinsics.Cx,
		0, c.intrinsics.Fy, c.intrinsics.Cy,
		0, 0, 1,
	})
	var out mat.Dense
	out.Mul(k, c.Pose().Matrix34())
	return &out
}

// ViewMatrix derives the right-handed view matrix (camera looking down -z,
// y-up) from the filtered extrinsics, in column-major order.
func (c *CameraModel) ViewMatrix() [16]float64 {
	// The decomposition uses the computer-vision frame (y-down, z-forward);
	// flipping the y and z rows converts to the rendering frame.
	r := c.rotation
	t := c.translation
	return [16]float64{
		r.At(0, 0), -r.At(1, 0), -r.At(2, 0), 0,
		r.At(0, 1), -r.At(1, 1), -r.At(2, 1), 0,
		r.At(0, 2), -r.At(1, 2), -r.At(2, 2), 0,
		t.X, -t.Y, -t.Z, 1,
	}
}

// ProjectionMatrix derives the perspective projection for the given clipping
// planes from the intrinsics, in column-major order.
func (c *CameraModel) ProjectionMatrix(near, far float64) [16]float64 {
	return [16]float64{
		c.intrinsics.Fx, 0, 0, 0,
		0, c.intrinsics.Fy, 0, 0,
		0, 0, (near + far) / (near - far), -1,
		0, 0, 2 * near * far / (near - far), 0,
	}
}
