package tracking

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// ImageTracker locates reference images in a video stream and follows the 3D
// pose of the camera relative to the matched target.
//
// The per-frame driving loop calls Update once per animation frame and must
// not call it again before the previous call returns; a second concurrent
// call fails with ErrIllegalOperation. State transitions are applied only
// after the active state's update has resolved. A tracker is single-owner:
// run several independent ImageTracker instances to track several streams.
type ImageTracker struct {
	config   Config
	database *ReferenceImageDatabase
	pipeline VisionPipeline
	logger   logging.Logger

	width, height int
	camera        *CameraModel
	trained       []Keypoint

	states  map[State]stateNode
	current State

	initialized atomic.Bool
	released    atomic.Bool
	inFlight    atomic.Bool

	onTargetFound func(*ReferenceImage)
	onTargetLost  func(*ReferenceImage)
	lastResult    *Result
}

// NewImageTracker creates a tracker using the given vision pipeline. The
// database must be populated before Init; the tracker locks it when it starts.
func NewImageTracker(cfg Config, db *ReferenceImageDatabase, pipeline VisionPipeline, logger logging.Logger) (*ImageTracker, error) {
	if db == nil {
		return nil, errors.Wrap(ErrIllegalArgument, "tracker needs a reference image database")
	}
	if pipeline == nil {
		return nil, errors.Wrap(ErrIllegalArgument, "tracker needs a vision pipeline")
	}
	w, h, err := cfg.WorkingSize()
	if err != nil {
		return nil, err
	}

	t := &ImageTracker{
		config:   cfg,
		database: db,
		pipeline: pipeline,
		logger:   logger,
		width:    w,
		height:   h,
		camera:   NewCameraModel(float64(w), float64(h), cfg.FilterWindow),
	}
	t.states = map[State]stateNode{
		StateInitial:      &initialState{t: t},
		StateTraining:     &trainingState{t: t},
		StateScanning:     &scanningState{t: t},
		StatePreTrackingA: &preTrackingAState{t: t},
		StatePreTrackingB: &preTrackingBState{t: t},
		StateTracking:     &trackingState{t: t},
	}
	t.current = StateInitial
	return t, nil
}

// Database returns the tracker's reference image database.
func (t *ImageTracker) Database() *ReferenceImageDatabase {
	return t.database
}

// State returns the name of the active state.
func (t *ImageTracker) State() string {
	return t.current.String()
}

// OnTargetFound registers the callback fired on the first frame a target is
// tracked after acquisition. Must be called before Init.
func (t *ImageTracker) OnTargetFound(fn func(*ReferenceImage)) {
	t.onTargetFound = fn
}

// OnTargetLost registers the callback fired exactly once when a tracked
// target is lost. Must be called before Init.
func (t *ImageTracker) OnTargetLost(fn func(*ReferenceImage)) {
	t.onTargetLost = fn
}

// Init starts the tracker. Calling Init twice, or on a released tracker,
// fails with ErrIllegalOperation; an empty database fails with
// ErrIllegalArgument.
func (t *ImageTracker) Init(ctx context.Context) error {
	if t.initialized.Load() || t.released.Load() {
		return errors.Wrap(ErrIllegalOperation, "tracker already initialized")
	}
	if t.database.Count() == 0 {
		return errors.Wrap(ErrIllegalArgument, "reference image database is empty")
	}
	t.initialized.Store(true)
	t.current = StateInitial
	t.states[t.current].enter(nil)
	t.logger.Infof("image tracker started at %dx%d with %d reference image(s)",
		t.width, t.height, t.database.Count())
	return nil
}

// Release stops the tracker. An in-flight update is allowed to complete but
// its result is discarded; subsequent Update calls fail with
// ErrIllegalOperation.
func (t *ImageTracker) Release() {
	t.released.Store(true)
	t.initialized.Store(false)
	// Clear the last result only when no update owns it; an in-flight update
	// discards its own result on return.
	if t.inFlight.CompareAndSwap(false, true) {
		t.lastResult = nil
		t.inFlight.Store(false)
	}
}

// Update consumes one video frame and advances the state machine. It returns
// the tracking result when a target is currently tracked, nil otherwise.
//
// Numerical and tracking failures inside the active state are recovered by a
// fallback transition (to training while the keypoint table is being built,
// to scanning afterwards) and are never surfaced as errors; only misuse of
// the tracker makes Update fail.
func (t *ImageTracker) Update(ctx context.Context, frame Frame) (*Result, error) {
	if !t.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if !t.inFlight.CompareAndSwap(false, true) {
		return nil, ErrUpdateInFlight
	}
	defer t.inFlight.Store(false)

	node, ok := t.states[t.current]
	if !ok {
		panic(fmt.Sprintf("image tracker: no handler for state %v", t.current))
	}

	out, err := node.update(ctx, frame)
	if t.released.Load() {
		// Released mid-update: the work completed, the result is dropped.
		t.lastResult = nil
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, ErrIllegalArgument) || errors.Is(err, ErrIllegalOperation) {
			return nil, err
		}
		// Numerical/tracking failures fall back. A failure during training may
		// have left the trained keypoint table incomplete, so initial/training
		// failures restart training; later states fall back to scanning.
		// Re-entering resets per-state progress even when the fallback is the
		// active state, so an errored frame never counts toward a qualifying
		// run.
		fallback := StateScanning
		if t.current == StateInitial || t.current == StateTraining {
			fallback = StateTraining
		}
		t.logger.Debugf("state %v failed (%v), falling back to %v", t.current, err, fallback)
		t.current = fallback
		t.states[t.current].enter(nil)
		out = stateOutput{next: fallback}
	}

	if out.next != t.current {
		t.logger.Debugf("state transition %v -> %v", t.current, out.next)
		t.current = out.next
		t.states[t.current].enter(out.payload)
	}

	if out.targetFound != nil {
		t.logger.Infof("target found: %q", out.targetFound.Name)
		if t.onTargetFound != nil {
			t.onTargetFound(out.targetFound)
		}
	}
	if out.targetLost != nil {
		t.logger.Infof("target lost: %q", out.targetLost.Name)
		if t.onTargetLost != nil {
			t.onTargetLost(out.targetLost)
		}
	}

	t.lastResult = out.result
	return out.result, nil
}

// Result returns the result of the most recent update, or nil when no target
// is tracked.
func (t *ImageTracker) Result() *Result {
	return t.lastResult
}
