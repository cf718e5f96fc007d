package keypoints

import (
	"context"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

// gridFeatures returns n keypoints laid out on a line, with pixel x = id.
func gridFeatures(n int, y float64) *Features {
	kps := make(KeyPoints, n)
	descs := make(Descriptors, n)
	for i := range kps {
		kps[i] = r2.Point{X: float64(i), Y: y}
		descs[i] = Descriptor{float32(i)}
	}
	return &Features{KeyPoints: kps, Descriptors: descs}
}

// goodKNN returns n unambiguous matches, query i to train i+offset.
func goodKNN(n, offset int) [][]KNNMatch {
	knn := make([][]KNNMatch, n)
	for i := range knn {
		knn[i] = []KNNMatch{
			{QueryIdx: i, TrainIdx: i + offset, Distance: 0.1},
			{QueryIdx: i, TrainIdx: (i + offset + 1), Distance: 1},
		}
	}
	return knn
}

func TestNewCorrespondencesBoundary(t *testing.T) {
	query := gridFeatures(20, 0)
	train := gridFeatures(30, 1)

	good := RatioTest(goodKNN(10, 2))
	test.That(t, good, test.ShouldHaveLength, 10)
	_, err := NewCorrespondences(good, query.KeyPoints, train.KeyPoints)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrInsufficientMatches), test.ShouldBeTrue)
	var insufficient *InsufficientMatchesError
	test.That(t, errors.As(err, &insufficient), test.ShouldBeTrue)
	test.That(t, insufficient.Found, test.ShouldEqual, 10)
	test.That(t, err.Error(), test.ShouldEqual, "not enough matches were found - 10/10")

	good = RatioTest(goodKNN(11, 2))
	corr, err := NewCorrespondences(good, query.KeyPoints, train.KeyPoints)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, corr.Len(), test.ShouldEqual, 11)
	test.That(t, corr.Validate(), test.ShouldBeNil)
	for k := 0; k < corr.Len(); k++ {
		test.That(t, corr.QueryIDs[k], test.ShouldEqual, k)
		test.That(t, corr.TrainIDs[k], test.ShouldEqual, k+2)
		test.That(t, corr.QueryPoints[k], test.ShouldResemble, r2.Point{X: float64(k), Y: 0})
		test.That(t, corr.TrainPoints[k], test.ShouldResemble, r2.Point{X: float64(k + 2), Y: 1})
	}
}

func TestNewCorrespondencesOutOfRange(t *testing.T) {
	query := gridFeatures(20, 0)
	train := gridFeatures(5, 1)
	_, err := NewCorrespondences(RatioTest(goodKNN(12, 0)), query.KeyPoints, train.KeyPoints)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "train frame")
}

func TestApplyInlierMask(t *testing.T) {
	corr := &Correspondences{
		QueryIDs:    []int{4, 5, 6, 7},
		TrainIDs:    []int{1, 2, 3, 0},
		QueryPoints: KeyPoints{{X: 4}, {X: 5}, {X: 6}, {X: 7}},
		TrainPoints: KeyPoints{{X: 1}, {X: 2}, {X: 3}, {X: 0}},
	}

	filtered, err := corr.ApplyInlierMask([]bool{true, false, false, true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filtered.QueryIDs, test.ShouldResemble, []int{4, 7})
	test.That(t, filtered.TrainIDs, test.ShouldResemble, []int{1, 0})
	test.That(t, filtered.QueryPoints, test.ShouldResemble, KeyPoints{{X: 4}, {X: 7}})
	test.That(t, filtered.TrainPoints, test.ShouldResemble, KeyPoints{{X: 1}, {X: 0}})
	// the input is left untouched
	test.That(t, corr.Len(), test.ShouldEqual, 4)

	_, err = corr.ApplyInlierMask([]bool{true})
	test.That(t, err, test.ShouldNotBeNil)

	corr.TrainIDs = corr.TrainIDs[:3]
	_, err = corr.ApplyInlierMask([]bool{true, true, true, true})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "misaligned")
}

func TestDense(t *testing.T) {
	var empty Correspondences
	q, tr := empty.Dense()
	test.That(t, q, test.ShouldBeNil)
	test.That(t, tr, test.ShouldBeNil)

	corr := &Correspondences{
		QueryIDs:    []int{0, 1},
		TrainIDs:    []int{1, 0},
		QueryPoints: KeyPoints{{X: 1, Y: 2}, {X: 3, Y: 4}},
		TrainPoints: KeyPoints{{X: 5, Y: 6}, {X: 7, Y: 8}},
	}
	q, tr = corr.Dense()
	rows, cols := q.Dims()
	test.That(t, rows, test.ShouldEqual, 2)
	test.That(t, cols, test.ShouldEqual, 2)
	test.That(t, q.At(1, 0), test.ShouldEqual, 3.)
	test.That(t, tr.At(0, 1), test.ShouldEqual, 6.)
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	query := gridFeatures(20, 0)
	train := gridFeatures(30, 1)

	// drop every odd keypoint
	oddOut := InlierFilterFunc(func(_ context.Context, q, _ KeyPoints) ([]bool, error) {
		mask := make([]bool, len(q))
		for i := range mask {
			mask[i] = i%2 == 0
		}
		return mask, nil
	})

	corr, err := Filter(ctx, query, train, goodKNN(15, 1), oddOut)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, corr.QueryIDs, test.ShouldResemble, []int{0, 2, 4, 6, 8, 10, 12, 14})
	test.That(t, corr.TrainIDs, test.ShouldResemble, []int{1, 3, 5, 7, 9, 11, 13, 15})

	all, err := Filter(ctx, query, train, goodKNN(15, 1), AcceptAll)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, all.Len(), test.ShouldEqual, 15)

	_, err = Filter(ctx, query, train, goodKNN(10, 1), AcceptAll)
	test.That(t, errors.Is(err, ErrInsufficientMatches), test.ShouldBeTrue)

	_, err = Filter(ctx, query, train, goodKNN(15, 1), nil)
	test.That(t, err, test.ShouldNotBeNil)

	failing := InlierFilterFunc(func(context.Context, KeyPoints, KeyPoints) ([]bool, error) {
		return nil, errors.New("degenerate configuration")
	})
	_, err = Filter(ctx, query, train, goodKNN(15, 1), failing)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "degenerate configuration")

	badTrain := &Features{KeyPoints: KeyPoints{{X: 1}}, Descriptors: Descriptors{{1}, {2}}}
	_, err = Filter(ctx, query, badTrain, goodKNN(15, 1), AcceptAll)
	test.That(t, err, test.ShouldNotBeNil)
}
