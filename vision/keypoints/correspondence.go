package keypoints

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// Correspondences is a filtered correspondence set between a query frame i and a train frame
// i+1. The k-th entry of every slice describes the same physical observation.
type Correspondences struct {
	QueryIDs    []int     `json:"query_ids" yaml:"query_ids"`
	TrainIDs    []int     `json:"train_ids" yaml:"train_ids"`
	QueryPoints KeyPoints `json:"query_points" yaml:"query_points"`
	TrainPoints KeyPoints `json:"train_points" yaml:"train_points"`
}

// NewCorrespondences assembles the aligned arrays for the good matches. It returns an
// *InsufficientMatchesError when there are MinMatchCount good matches or fewer.
func NewCorrespondences(good []KNNMatch, query, train KeyPoints) (*Correspondences, error) {
	if len(good) <= MinMatchCount {
		return nil, &InsufficientMatchesError{Found: len(good), Min: MinMatchCount}
	}
	corr := &Correspondences{
		QueryIDs:    make([]int, 0, len(good)),
		TrainIDs:    make([]int, 0, len(good)),
		QueryPoints: make(KeyPoints, 0, len(good)),
		TrainPoints: make(KeyPoints, 0, len(good)),
	}
	for _, m := range good {
		qPt, err := query.At(m.QueryIdx)
		if err != nil {
			return nil, errors.Wrap(err, "query frame")
		}
		tPt, err := train.At(m.TrainIdx)
		if err != nil {
			return nil, errors.Wrap(err, "train frame")
		}
		corr.QueryIDs = append(corr.QueryIDs, m.QueryIdx)
		corr.TrainIDs = append(corr.TrainIDs, m.TrainIdx)
		corr.QueryPoints = append(corr.QueryPoints, qPt)
		corr.TrainPoints = append(corr.TrainPoints, tPt)
	}
	return corr, nil
}

// Len returns the number of correspondences.
func (c *Correspondences) Len() int {
	if c == nil {
		return 0
	}
	return len(c.QueryIDs)
}

// Validate ensures all four arrays are index aligned.
func (c *Correspondences) Validate() error {
	if c == nil {
		return errors.New("correspondences are nil")
	}
	n := len(c.QueryIDs)
	if len(c.TrainIDs) != n || len(c.QueryPoints) != n || len(c.TrainPoints) != n {
		return errors.Errorf("misaligned correspondences: %d query ids, %d train ids, %d query points, %d train points",
			n, len(c.TrainIDs), len(c.QueryPoints), len(c.TrainPoints))
	}
	return nil
}

// ApplyInlierMask returns a new set keeping only the entries whose mask value is true. The mask
// must have one value per correspondence.
func (c *Correspondences) ApplyInlierMask(mask []bool) (*Correspondences, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if len(mask) != c.Len() {
		return nil, errors.Errorf("inlier mask has %d entries for %d correspondences", len(mask), c.Len())
	}
	keepInt := func(_ int, i int) bool { return mask[i] }
	keepPt := func(_ r2.Point, i int) bool { return mask[i] }
	return &Correspondences{
		QueryIDs:    lo.Filter(c.QueryIDs, keepInt),
		TrainIDs:    lo.Filter(c.TrainIDs, keepInt),
		QueryPoints: lo.Filter(c.QueryPoints, keepPt),
		TrainPoints: lo.Filter(c.TrainPoints, keepPt),
	}, nil
}

// Dense returns the query and train pixels as Nx2 matrices. Both are nil for an empty set.
func (c *Correspondences) Dense() (*mat.Dense, *mat.Dense) {
	if c.Len() == 0 {
		return nil, nil
	}
	return pointsToDense(c.QueryPoints), pointsToDense(c.TrainPoints)
}

func pointsToDense(pts []r2.Point) *mat.Dense {
	data := make([]float64, 0, 2*len(pts))
	for _, pt := range pts {
		data = append(data, pt.X, pt.Y)
	}
	return mat.NewDense(len(pts), 2, data)
}

// InlierFilter is a geometric filter, e.g. fundamental matrix estimation, that returns one
// boolean per correspondence marking the inliers.
type InlierFilter interface {
	Inliers(ctx context.Context, query, train KeyPoints) ([]bool, error)
}

// InlierFilterFunc adapts a function to the InlierFilter interface.
type InlierFilterFunc func(ctx context.Context, query, train KeyPoints) ([]bool, error)

// Inliers calls f.
func (f InlierFilterFunc) Inliers(ctx context.Context, query, train KeyPoints) ([]bool, error) {
	return f(ctx, query, train)
}

// AcceptAll is an InlierFilter that keeps every correspondence.
var AcceptAll = InlierFilterFunc(func(_ context.Context, query, _ KeyPoints) ([]bool, error) {
	mask := make([]bool, len(query))
	for i := range mask {
		mask[i] = true
	}
	return mask, nil
})

// Filter builds the filtered correspondence set between two frames from the matcher's k=2
// neighbors: ratio test, minimum match count, assembly, then the geometric inlier mask.
func Filter(ctx context.Context, query, train *Features, knn [][]KNNMatch, inliers InlierFilter) (*Correspondences, error) {
	if err := query.Validate(); err != nil {
		return nil, errors.Wrap(err, "query frame")
	}
	if err := train.Validate(); err != nil {
		return nil, errors.Wrap(err, "train frame")
	}
	if inliers == nil {
		return nil, errors.New("an inlier filter is required")
	}
	if err := ValidateKNN(knn, len(query.KeyPoints), len(train.KeyPoints)); err != nil {
		return nil, err
	}

	corr, err := NewCorrespondences(RatioTest(knn), query.KeyPoints, train.KeyPoints)
	if err != nil {
		return nil, err
	}
	mask, err := inliers.Inliers(ctx, corr.QueryPoints, corr.TrainPoints)
	if err != nil {
		return nil, errors.Wrap(err, "inlier filter")
	}
	return corr.ApplyInlierMask(mask)
}
