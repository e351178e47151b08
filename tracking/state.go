package tracking

import (
	"context"
	"fmt"
	"image"
)

// State identifies one of the six tracker states. Exactly one state is active
// per tracker at any time.
type State int

const (
	// StateInitial locks the database and advances to training.
	StateInitial State = iota
	// StateTraining extracts keypoints from each reference image.
	StateTraining
	// StateScanning searches video frames for any reference image.
	StateScanning
	// StatePreTrackingA rectifies the matched reference image.
	StatePreTrackingA
	// StatePreTrackingB refines the scan homography against the snapshot.
	StatePreTrackingB
	// StateTracking follows the target frame to frame.
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateTraining:
		return "training"
	case StateScanning:
		return "scanning"
	case StatePreTrackingA:
		return "pre-tracking-a"
	case StatePreTrackingB:
		return "pre-tracking-b"
	case StateTracking:
		return "tracking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// handoff is the transition payload passed between states. Ownership moves to
// the destination state at the transition; the source state must not keep a
// reference.
type handoff struct {
	// matched reference image and its index in the trained table.
	image      *ReferenceImage
	imageIndex int

	// homography mapping reference NDC to frame NDC, as accepted by scanning
	// or refined by pre-tracking.
	homography Homography

	// snapshot of the video frame that produced the accepted homography.
	snapshot image.Image

	// keypoints detected on the rectified reference image, in raster
	// coordinates of the rectified raster.
	referenceKeypoints []Keypoint
	rectWidth          int
	rectHeight         int
}

// stateOutput is what a state handler returns: the next state, the payload it
// hands over, and the externally visible effects of this update.
type stateOutput struct {
	next    State
	payload *handoff

	targetFound *ReferenceImage
	targetLost  *ReferenceImage
	result      *Result
}

// stateNode is one entry of the tracker's state table. enter receives the
// transition payload; update consumes one video frame.
type stateNode interface {
	enter(payload *handoff)
	update(ctx context.Context, frame Frame) (stateOutput, error)
}

// stay is a convenience output that keeps the current state active.
func stay(s State) stateOutput {
	return stateOutput{next: s}
}
