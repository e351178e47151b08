package tracking

import (
	"errors"
	"fmt"
)

// The four error classes below form the failure taxonomy of the engine.
// Every error returned by this package wraps exactly one of them, so callers
// can classify failures with errors.Is.
var (
	// ErrIllegalArgument is returned when an operation receives malformed
	// input, e.g. too few correspondences or a duplicate reference-image name.
	ErrIllegalArgument = errors.New("illegal argument")

	// ErrIllegalOperation is returned on misuse of the engine, e.g. adding to
	// a locked database or updating an uninitialized tracker.
	ErrIllegalOperation = errors.New("illegal operation")

	// ErrNumerical is returned when a geometric fit produces NaN/Inf entries
	// or a provably degenerate configuration.
	ErrNumerical = errors.New("numerical error")

	// ErrTracking is returned when the qualifying-match count stays below the
	// minimum beyond the configured tolerance. It never escapes a per-frame
	// update; the state machine recovers by falling back to scanning.
	ErrTracking = errors.New("tracking lost")
)

var (
	// ErrDatabaseLocked is returned when adding to a locked database.
	ErrDatabaseLocked = fmt.Errorf("%w: reference image database is locked", ErrIllegalOperation)

	// ErrDatabaseFull is returned when an add would exceed the database capacity.
	ErrDatabaseFull = fmt.Errorf("%w: reference image database is full", ErrIllegalOperation)

	// ErrDuplicateName is returned when a reference image name is already taken.
	ErrDuplicateName = fmt.Errorf("%w: duplicate reference image name", ErrIllegalArgument)

	// ErrTooFewPoints is returned when a fit receives fewer correspondences
	// than the model requires.
	ErrTooFewPoints = fmt.Errorf("%w: too few correspondences", ErrIllegalArgument)

	// ErrDegenerateFit is returned when a fit produced NaN/Inf entries.
	ErrDegenerateFit = fmt.Errorf("%w: fit degenerated", ErrNumerical)

	// ErrNotEnoughKeypoints is produced when a state update finds fewer
	// keypoints or matches than its minimum requirement.
	ErrNotEnoughKeypoints = fmt.Errorf("%w: not enough keypoints", ErrTracking)

	// ErrNotInitialized is returned when Update is called before Init or
	// after Release.
	ErrNotInitialized = fmt.Errorf("%w: tracker is not initialized", ErrIllegalOperation)

	// ErrUpdateInFlight is returned when Update is called while a previous
	// update has not resolved yet.
	ErrUpdateInFlight = fmt.Errorf("%w: previous update still in flight", ErrIllegalOperation)
)
