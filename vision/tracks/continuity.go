package tracks

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/vision/keypoints"
)

// Continuity holds the features of frame i that were matched both backward into frame i-1 and
// forward into frame i+1, paired with the 3D position their track already has. All slices except
// Unresolved are index aligned.
type Continuity struct {
	Frame       FrameIndex
	KeypointIDs []KeypointID
	TrackIDs    []TrackID
	// Points2D are the pixels of the features in frame i, as recorded by the previous pair.
	Points2D []r2.Point
	// NextPoints2D are the pixels of the same features in frame i+1, from the current pair.
	NextPoints2D []r2.Point
	Points3D     []r3.Vector
	// Unresolved are continued features that have no track. They are excluded from the aligned
	// slices.
	Unresolved []KeypointID
}

// Len returns the number of 2D/3D pairs.
func (c *Continuity) Len() int {
	return len(c.KeypointIDs)
}

// Err returns an *UnresolvedContinuityError if any continued feature had no track.
func (c *Continuity) Err() error {
	if len(c.Unresolved) == 0 {
		return nil
	}
	return &UnresolvedContinuityError{Frame: c.Frame, Keypoints: append([]KeypointID(nil), c.Unresolved...)}
}

// Dense returns the frame i pixels as an Nx2 matrix and the track coordinates as an Nx3 matrix,
// the layout pose estimators expect. Both are nil when there are no pairs.
func (c *Continuity) Dense() (*mat.Dense, *mat.Dense) {
	if c.Len() == 0 {
		return nil, nil
	}
	pts2D := make([]float64, 0, 2*c.Len())
	for _, p := range c.Points2D {
		pts2D = append(pts2D, p.X, p.Y)
	}
	pts3D := make([]float64, 0, 3*c.Len())
	for _, p := range c.Points3D {
		pts3D = append(pts3D, p.X, p.Y, p.Z)
	}
	return mat.NewDense(c.Len(), 2, pts2D), mat.NewDense(c.Len(), 3, pts3D)
}

// Scan finds the features of frame that persisted across three consecutive frames: those in both
// the train side of prev, the correspondences of pair (frame-1, frame), and the query side of cur,
// the correspondences of pair (frame, frame+1). The result follows the order of cur.QueryIDs and
// lists each feature once.
//
// Scan only reads the store. A continued feature without a track is reported in
// Continuity.Unresolved and logged; the returned error is reserved for malformed input.
func Scan(
	store *Store,
	frame FrameIndex,
	prev, cur *keypoints.Correspondences,
	logger logging.Logger,
) (*Continuity, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if err := prev.Validate(); err != nil {
		return nil, errors.Wrap(err, "previous pair")
	}
	if err := cur.Validate(); err != nil {
		return nil, errors.Wrap(err, "current pair")
	}

	// position of each frame keypoint on the train side of the previous pair
	prevPos := make(map[int]int, prev.Len())
	for k, id := range prev.TrainIDs {
		if _, ok := prevPos[id]; !ok {
			prevPos[id] = k
		}
	}

	out := &Continuity{Frame: frame}
	seen := make(map[int]struct{}, cur.Len())
	for k, id := range cur.QueryIDs {
		pk, shared := prevPos[id]
		if !shared {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		trackID, ok := store.Lookup(KeypointRef{Frame: frame, Keypoint: KeypointID(id)})
		if !ok {
			out.Unresolved = append(out.Unresolved, KeypointID(id))
			continue
		}
		out.KeypointIDs = append(out.KeypointIDs, KeypointID(id))
		out.TrackIDs = append(out.TrackIDs, trackID)
		out.Points2D = append(out.Points2D, prev.TrainPoints[pk])
		out.NextPoints2D = append(out.NextPoints2D, cur.TrainPoints[k])
		out.Points3D = append(out.Points3D, store.Track(trackID).Coords())
	}

	if len(out.Unresolved) > 0 {
		logger.Warnw("continued keypoints have no track",
			"frame", frame, "count", len(out.Unresolved), "keypoints", out.Unresolved)
	}
	logger.Debugw("scanned continuity", "frame", frame, "shared", len(seen), "resolved", out.Len())
	return out, nil
}
