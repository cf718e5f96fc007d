package tracks

import (
	"sort"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
)

// Store is the indexed point cloud: an append-only arena of tracks plus a side index from every
// claimed keypoint to the track that owns it. It never shrinks or reorders.
type Store struct {
	tracks []*Track
	index  map[KeypointRef]TrackID
	meta   MetaData

	lastFrame    FrameIndex
	hasLastFrame bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		index: map[KeypointRef]TrackID{},
		meta:  NewMetaData(),
	}
}

// Size returns the number of tracks.
func (s *Store) Size() int {
	return len(s.tracks)
}

// Track returns the track with the given id, or nil if there is none.
func (s *Store) Track(id TrackID) *Track {
	if id < 0 || int(id) >= len(s.tracks) {
		return nil
	}
	return s.tracks[id]
}

// Lookup returns the track that claims the given keypoint. Finding nothing is a normal outcome.
func (s *Store) Lookup(ref KeypointRef) (TrackID, bool) {
	id, ok := s.index[ref]
	return id, ok
}

// Iterate calls fn for every track in store order until fn returns false.
func (s *Store) Iterate(fn func(id TrackID, t *Track) bool) {
	for i, t := range s.tracks {
		if !fn(TrackID(i), t) {
			return
		}
	}
}

// LastFrame returns the first frame of the last consolidated pair.
func (s *Store) LastFrame() (FrameIndex, bool) {
	return s.lastFrame, s.hasLastFrame
}

// MetaData returns the bounds of all track coordinates.
func (s *Store) MetaData() MetaData {
	return s.meta
}

// Validate audits the whole store by scanning every origin map, independently of the index. It
// returns one *InvariantViolationError per keypoint claimed by more than one track, or whose index
// entry disagrees with the tracks.
func (s *Store) Validate() error {
	owners := map[KeypointRef][]TrackID{}
	for i, t := range s.tracks {
		for f, kp := range t.origin {
			ref := KeypointRef{Frame: f, Keypoint: kp}
			owners[ref] = append(owners[ref], TrackID(i))
		}
	}

	refs := make([]KeypointRef, 0, len(owners))
	for ref := range owners {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Frame != refs[j].Frame {
			return refs[i].Frame < refs[j].Frame
		}
		return refs[i].Keypoint < refs[j].Keypoint
	})

	var errs error
	for _, ref := range refs {
		ids := owners[ref]
		if len(ids) > 1 {
			errs = multierr.Append(errs, &InvariantViolationError{Ref: ref, Tracks: ids, Reason: "claimed by several tracks"})
			continue
		}
		if indexed, ok := s.index[ref]; !ok || indexed != ids[0] {
			errs = multierr.Append(errs, &InvariantViolationError{Ref: ref, Tracks: ids, Reason: "index out of sync"})
		}
	}
	if len(s.index) != len(owners) {
		for ref, id := range s.index {
			if _, ok := owners[ref]; !ok {
				errs = multierr.Append(errs, &InvariantViolationError{
					Ref: ref, Tracks: []TrackID{id}, Reason: "index entry without origin",
				})
			}
		}
	}
	return errs
}

// add appends a new track observed at from and to. The caller checks both refs are unclaimed.
func (s *Store) add(coords r3.Vector, from, to KeypointRef) TrackID {
	id := TrackID(len(s.tracks))
	s.tracks = append(s.tracks, newTrack(coords, from, to))
	s.index[from] = id
	s.index[to] = id
	s.meta.Merge(coords)
	return id
}

// extend records a new observation of an existing track. The caller checks the ref is unclaimed
// and the track has no observation in that frame yet.
func (s *Store) extend(id TrackID, to KeypointRef) {
	s.tracks[id].origin[to.Frame] = to.Keypoint
	s.index[to] = id
}
