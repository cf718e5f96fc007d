package tracks

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/sfm/logging"
)

// threeFrames consolidates pair (0, 1) whose train side is {5, 8, 12} and returns the
// correspondences of pair (1, 2) whose query side is {8, 12, 20}.
func threeFrames(t *testing.T, store *Store, logger logging.Logger) (prevPairs, curPairs [][2]int) {
	t.Helper()
	prevPairs = [][2]int{{0, 5}, {1, 8}, {2, 12}}
	curPairs = [][2]int{{8, 3}, {12, 4}, {20, 6}}
	_, err := Consolidate(store, 0, makeCorr(prevPairs...), makePoints(0, 3), logger)
	test.That(t, err, test.ShouldBeNil)
	return prevPairs, curPairs
}

func TestScanContinuity(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore()
	prevPairs, curPairs := threeFrames(t, store, logger)
	prev, cur := makeCorr(prevPairs...), makeCorr(curPairs...)

	cont, err := Scan(store, 1, prev, cur, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cont.Err(), test.ShouldBeNil)
	test.That(t, cont.Frame, test.ShouldEqual, FrameIndex(1))
	test.That(t, cont.KeypointIDs, test.ShouldResemble, []KeypointID{8, 12})
	test.That(t, cont.TrackIDs, test.ShouldResemble, []TrackID{1, 2})
	test.That(t, cont.Points2D, test.ShouldResemble, []r2.Point{{X: 8, Y: 1}, {X: 12, Y: 1}})
	test.That(t, cont.NextPoints2D, test.ShouldResemble, []r2.Point{{X: 3, Y: 1}, {X: 4, Y: 1}})
	test.That(t, cont.Points3D[0], test.ShouldResemble, store.Track(1).Coords())
	test.That(t, cont.Points3D[1], test.ShouldResemble, store.Track(2).Coords())
	test.That(t, cont.Unresolved, test.ShouldBeEmpty)

	pts2D, pts3D := cont.Dense()
	r, c := pts2D.Dims()
	test.That(t, r, test.ShouldEqual, 2)
	test.That(t, c, test.ShouldEqual, 2)
	r, c = pts3D.Dims()
	test.That(t, r, test.ShouldEqual, 2)
	test.That(t, c, test.ShouldEqual, 3)
	test.That(t, pts2D.At(1, 0), test.ShouldEqual, 12.0)
	test.That(t, pts3D.At(0, 2), test.ShouldEqual, 10.0)
}

func TestScanIsReadOnlyAndIdempotent(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore()
	prevPairs, curPairs := threeFrames(t, store, logger)
	prev, cur := makeCorr(prevPairs...), makeCorr(curPairs...)

	before := takeSnapshot(store)
	first, err := Scan(store, 1, prev, cur, logger)
	test.That(t, err, test.ShouldBeNil)
	second, err := Scan(store, 1, prev, cur, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(first, second), test.ShouldBeEmpty)
	test.That(t, cmp.Diff(before, takeSnapshot(store), cmp.AllowUnexported(snapshot{})), test.ShouldBeEmpty)
	_, hasLast := store.LastFrame()
	test.That(t, hasLast, test.ShouldBeTrue)
}

func TestScanFollowedByConsolidate(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore()
	prevPairs, curPairs := threeFrames(t, store, logger)
	cur := makeCorr(curPairs...)

	cont, err := Scan(store, 1, makeCorr(prevPairs...), cur, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cont.Len(), test.ShouldEqual, 2)

	_, err = Consolidate(store, 1, cur, makePoints(1, 3), logger)
	test.That(t, err, test.ShouldBeNil)
	for i, id := range cont.TrackIDs {
		kp, ok := store.Track(id).Origin(2)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, kp, test.ShouldEqual, KeypointID(curPairs[i][1]))
	}
}

func TestScanDuplicateQueryListedOnce(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore()
	prevPairs, _ := threeFrames(t, store, logger)

	cur := makeCorr([2]int{12, 4}, [2]int{8, 3}, [2]int{12, 9})
	cont, err := Scan(store, 1, makeCorr(prevPairs...), cur, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cont.KeypointIDs, test.ShouldResemble, []KeypointID{12, 8})
	test.That(t, cont.NextPoints2D, test.ShouldResemble, []r2.Point{{X: 4, Y: 1}, {X: 3, Y: 1}})
}

func TestScanUnresolved(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	store := NewStore()
	_, _ = threeFrames(t, store, logger)

	// keypoint 30 of frame 1 is shared by both pairs but was never consolidated
	prev := makeCorr([2]int{1, 8}, [2]int{7, 30})
	cur := makeCorr([2]int{8, 3}, [2]int{30, 4})
	cont, err := Scan(store, 1, prev, cur, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cont.KeypointIDs, test.ShouldResemble, []KeypointID{8})
	test.That(t, cont.Unresolved, test.ShouldResemble, []KeypointID{30})

	contErr := cont.Err()
	test.That(t, errors.Is(contErr, ErrUnresolvedContinuity), test.ShouldBeTrue)
	var unresolved *UnresolvedContinuityError
	test.That(t, errors.As(contErr, &unresolved), test.ShouldBeTrue)
	test.That(t, unresolved.Frame, test.ShouldEqual, FrameIndex(1))
	test.That(t, unresolved.Keypoints, test.ShouldResemble, []KeypointID{30})

	entries := logs.FilterMessage("continued keypoints have no track").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["count"], test.ShouldEqual, int64(1))
}

func TestScanEmptyIntersection(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore()
	prevPairs, _ := threeFrames(t, store, logger)

	cont, err := Scan(store, 1, makeCorr(prevPairs...), makeCorr([2]int{40, 1}), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cont.Len(), test.ShouldEqual, 0)
	test.That(t, cont.Err(), test.ShouldBeNil)
	pts2D, pts3D := cont.Dense()
	test.That(t, pts2D, test.ShouldBeNil)
	test.That(t, pts3D, test.ShouldBeNil)
}

func TestScanInputErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore()
	prev := makeCorr([2]int{0, 1})
	misaligned := makeCorr([2]int{1, 2})
	misaligned.QueryIDs = append(misaligned.QueryIDs, 3)

	_, err := Scan(nil, 1, prev, prev, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Scan(store, 1, misaligned, prev, logger)
	test.That(t, err.Error(), test.ShouldContainSubstring, "previous pair")
	_, err = Scan(store, 1, prev, misaligned, logger)
	test.That(t, err.Error(), test.ShouldContainSubstring, "current pair")
	_, err = Scan(store, 1, prev, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
