// Package tracks maintains the growing point cloud of an incremental reconstruction. Every 3D
// point is a Track that remembers which keypoint observed it in each frame, so that a feature
// seen again in the next frame pair extends the existing track instead of duplicating it.
//
// The Store is owned by a single writer, Consolidate. Readers such as Scan must only run between
// consolidation steps; the Store is not safe for concurrent use.
package tracks

import (
	"fmt"
	"slices"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
)

type (
	// FrameIndex identifies a frame in processing order.
	FrameIndex int
	// KeypointID is an index into a frame's keypoint list. It is only stable within that frame.
	KeypointID int
	// TrackID is the position of a track in its Store. It never changes once assigned.
	TrackID int
)

// KeypointRef identifies a detected feature in a specific frame.
type KeypointRef struct {
	Frame    FrameIndex
	Keypoint KeypointID
}

func (ref KeypointRef) String() string {
	return fmt.Sprintf("frame %d keypoint %d", ref.Frame, ref.Keypoint)
}

// Track is a triangulated 3D point together with its origin map, the keypoint that observed it
// in every frame it was seen in. Coordinates never change and origin entries are never removed
// or overwritten.
type Track struct {
	coords r3.Vector
	origin map[FrameIndex]KeypointID
}

func newTrack(coords r3.Vector, from, to KeypointRef) *Track {
	return &Track{
		coords: coords,
		origin: map[FrameIndex]KeypointID{
			from.Frame: from.Keypoint,
			to.Frame:   to.Keypoint,
		},
	}
}

// Coords returns the triangulated position of the track.
func (t *Track) Coords() r3.Vector {
	return t.coords
}

// Origin returns the keypoint that observed this track in the given frame.
func (t *Track) Origin(frame FrameIndex) (KeypointID, bool) {
	kp, ok := t.origin[frame]
	return kp, ok
}

// OriginMap returns a copy of the origin map.
func (t *Track) OriginMap() map[FrameIndex]KeypointID {
	out := make(map[FrameIndex]KeypointID, len(t.origin))
	for f, kp := range t.origin {
		out[f] = kp
	}
	return out
}

// Frames returns the frames this track was observed in, ascending.
func (t *Track) Frames() []FrameIndex {
	frames := lo.Keys(t.origin)
	slices.Sort(frames)
	return frames
}

// Refs returns every keypoint this track claims, ordered by frame.
func (t *Track) Refs() []KeypointRef {
	return lo.Map(t.Frames(), func(f FrameIndex, _ int) KeypointRef {
		return KeypointRef{Frame: f, Keypoint: t.origin[f]}
	})
}

// Observations returns the number of frames this track was observed in.
func (t *Track) Observations() int {
	return len(t.origin)
}
