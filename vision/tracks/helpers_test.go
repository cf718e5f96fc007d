package tracks

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/sfm/vision/keypoints"
)

// makeCorr builds a correspondence set from (query, train) id pairs. The pixel of a keypoint
// encodes its id so tests can check which observation ended up where.
func makeCorr(pairs ...[2]int) *keypoints.Correspondences {
	corr := &keypoints.Correspondences{}
	for _, p := range pairs {
		corr.QueryIDs = append(corr.QueryIDs, p[0])
		corr.TrainIDs = append(corr.TrainIDs, p[1])
		corr.QueryPoints = append(corr.QueryPoints, r2.Point{X: float64(p[0]), Y: 0})
		corr.TrainPoints = append(corr.TrainPoints, r2.Point{X: float64(p[1]), Y: 1})
	}
	return corr
}

// makePoints returns n distinct coordinates, tagged with the frame they were triangulated in.
func makePoints(frame FrameIndex, n int) []r3.Vector {
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{X: float64(i), Y: float64(frame), Z: 10}
	}
	return pts
}

type snapshot struct {
	coords r3.Vector
	origin map[FrameIndex]KeypointID
}

func takeSnapshot(store *Store) []snapshot {
	var out []snapshot
	store.Iterate(func(_ TrackID, t *Track) bool {
		out = append(out, snapshot{coords: t.Coords(), origin: t.OriginMap()})
		return true
	})
	return out
}

// checkGrowth asserts that after is a monotonic extension of before.
func checkGrowth(t *testing.T, before, after []snapshot) {
	t.Helper()
	test.That(t, len(after), test.ShouldBeGreaterThanOrEqualTo, len(before))
	for i, b := range before {
		a := after[i]
		test.That(t, a.coords, test.ShouldResemble, b.coords)
		for f, kp := range b.origin {
			got, ok := a.origin[f]
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, got, test.ShouldEqual, kp)
		}
	}
}

// checkNoDuplicateClaims asserts that no keypoint is claimed by two tracks.
func checkNoDuplicateClaims(t *testing.T, store *Store) {
	t.Helper()
	claims := map[KeypointRef]int{}
	store.Iterate(func(_ TrackID, tr *Track) bool {
		for _, ref := range tr.Refs() {
			claims[ref]++
		}
		return true
	})
	for ref, n := range claims {
		if n != 1 {
			t.Errorf("%s claimed %d times", ref, n)
		}
	}
	test.That(t, store.Validate(), test.ShouldBeNil)
}
