package tracks

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/vision/keypoints"
)

// ConsolidationResult summarizes one consolidation step.
type ConsolidationResult struct {
	Frame    FrameIndex
	Created  int
	Extended int
	// Repeated counts candidates identical to an observation already recorded in this step.
	Repeated   int
	Violations []error
}

// Consolidate merges the filtered correspondences of frame pair (frame, frame+1) and their
// triangulated points into the store. points must hold one coordinate per correspondence.
//
// A candidate whose keypoint in frame is already claimed by a track extends that track with its
// keypoint in frame+1; any other candidate becomes a new track. On the first pair the store is
// empty, so every candidate becomes a track. A candidate that would make two tracks claim the same
// keypoint, or give a track two observations in frame+1, is not applied; it is logged and returned
// as an *InvariantViolationError, combined into the returned error. The store never holds a
// duplicate claim.
//
// Malformed input or a frame that is not after the last consolidated one returns an error before
// the store is modified.
func Consolidate(
	store *Store,
	frame FrameIndex,
	corr *keypoints.Correspondences,
	points []r3.Vector,
	logger logging.Logger,
) (*ConsolidationResult, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if err := validateCandidates(frame, corr, points); err != nil {
		return nil, err
	}
	if last, ok := store.LastFrame(); ok && frame <= last {
		return nil, newOutOfOrderError(frame, last)
	}

	bootstrap := store.Size() == 0
	next := frame + 1
	result := &ConsolidationResult{Frame: frame}
	for k := range corr.QueryIDs {
		from := KeypointRef{Frame: frame, Keypoint: KeypointID(corr.QueryIDs[k])}
		to := KeypointRef{Frame: next, Keypoint: KeypointID(corr.TrainIDs[k])}

		fromOwner, fromClaimed := store.Lookup(from)
		if toOwner, toClaimed := store.Lookup(to); toClaimed {
			if fromClaimed && fromOwner == toOwner {
				result.Repeated++
				continue
			}
			owners := []TrackID{toOwner}
			if fromClaimed {
				owners = append(owners, fromOwner)
			}
			result.Violations = append(result.Violations, &InvariantViolationError{
				Ref:    to,
				Tracks: owners,
				Reason: "keypoint matched from several keypoints of the previous frame",
			})
			logger.Warnw("refusing duplicate keypoint claim", "frame", next, "keypoint", to.Keypoint, "owner", toOwner)
			continue
		}

		if !fromClaimed {
			store.add(points[k], from, to)
			result.Created++
			continue
		}

		if _, seen := store.Track(fromOwner).Origin(next); seen {
			result.Violations = append(result.Violations, &InvariantViolationError{
				Ref:    from,
				Tracks: []TrackID{fromOwner},
				Reason: "keypoint matched to several keypoints of the next frame",
			})
			logger.Warnw("refusing second observation of a track in one frame",
				"frame", next, "track", fromOwner, "keypoint", to.Keypoint)
			continue
		}
		store.extend(fromOwner, to)
		result.Extended++
	}

	store.lastFrame = frame
	store.hasLastFrame = true

	logger.Debugw("consolidated frame pair",
		"frame", frame,
		"bootstrap", bootstrap,
		"candidates", corr.Len(),
		"created", result.Created,
		"extended", result.Extended,
		"repeated", result.Repeated,
		"violations", len(result.Violations),
		"tracks", store.Size(),
	)
	return result, multierr.Combine(result.Violations...)
}

func validateCandidates(frame FrameIndex, corr *keypoints.Correspondences, points []r3.Vector) error {
	if frame < 0 {
		return errors.Errorf("invalid frame index %d", frame)
	}
	if err := corr.Validate(); err != nil {
		return err
	}
	if len(points) != corr.Len() {
		return errors.Errorf("got %d triangulated points for %d correspondences", len(points), corr.Len())
	}
	for k := range corr.QueryIDs {
		if corr.QueryIDs[k] < 0 || corr.TrainIDs[k] < 0 {
			return errors.Errorf("correspondence %d has a negative keypoint id", k)
		}
	}
	return nil
}
