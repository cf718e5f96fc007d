package tracks

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvariantViolation is matched by errors.Is when a keypoint is, or would be, claimed by
	// more than one track. It means the cloud or its input data is corrupt.
	ErrInvariantViolation = errors.New("track invariant violation")
	// ErrUnresolvedContinuity is matched by errors.Is when a feature matched backward and forward
	// has no track in the store, i.e. the store and the correspondence data are out of sync.
	ErrUnresolvedContinuity = errors.New("unresolved continuity")
	// ErrOutOfOrder is matched by errors.Is when a frame pair is consolidated after a later one.
	ErrOutOfOrder = errors.New("frame pair out of order")
)

// InvariantViolationError describes a keypoint claimed by more than one track.
type InvariantViolationError struct {
	Ref    KeypointRef
	Tracks []TrackID
	Reason string
}

func (e *InvariantViolationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s claimed by tracks %v", ErrInvariantViolation, e.Ref, e.Tracks)
	}
	return fmt.Sprintf("%s: %s claimed by tracks %v: %s", ErrInvariantViolation, e.Ref, e.Tracks, e.Reason)
}

// Is makes the error match ErrInvariantViolation.
func (e *InvariantViolationError) Is(target error) bool {
	return target == ErrInvariantViolation
}

// UnresolvedContinuityError lists the keypoints of a frame that continued across three frames
// but had no track.
type UnresolvedContinuityError struct {
	Frame     FrameIndex
	Keypoints []KeypointID
}

func (e *UnresolvedContinuityError) Error() string {
	return fmt.Sprintf("%s: %d keypoints of frame %d have no track: %v",
		ErrUnresolvedContinuity, len(e.Keypoints), e.Frame, e.Keypoints)
}

// Is makes the error match ErrUnresolvedContinuity.
func (e *UnresolvedContinuityError) Is(target error) bool {
	return target == ErrUnresolvedContinuity
}

func newOutOfOrderError(frame, last FrameIndex) error {
	return errors.Wrapf(ErrOutOfOrder, "cannot consolidate pair (%d, %d) after pair (%d, %d)", frame, frame+1, last, last+1)
}
