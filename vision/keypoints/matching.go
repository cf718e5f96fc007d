package keypoints

import (
	"github.com/pkg/errors"
)

const (
	// KNN is the number of neighbors the matcher must return per query descriptor.
	KNN = 2
	// RatioThreshold is Lowe's ratio: the nearest match is kept when d1 < RatioThreshold * d2.
	RatioThreshold = 0.7
	// MinMatchCount is the number of good matches a pair must strictly exceed.
	MinMatchCount = 10
)

// KNNMatch is one neighbor returned by the matcher for a query descriptor.
type KNNMatch struct {
	QueryIdx int     `json:"query_idx" yaml:"query_idx"`
	TrainIdx int     `json:"train_idx" yaml:"train_idx"`
	Distance float64 `json:"distance" yaml:"distance"`
}

// RatioTest keeps the nearest neighbor of every query whose nearest distance is less than
// RatioThreshold times the second-nearest distance. Each element of knn holds the neighbors of one
// query, nearest first. Queries with fewer than two neighbors cannot be tested and are dropped.
// The order of the queries is preserved.
func RatioTest(knn [][]KNNMatch) []KNNMatch {
	good := make([]KNNMatch, 0, len(knn))
	for _, neighbors := range knn {
		if len(neighbors) < KNN {
			continue
		}
		m, n := neighbors[0], neighbors[1]
		if m.Distance < RatioThreshold*n.Distance {
			good = append(good, m)
		}
	}
	return good
}

// ValidateKNN checks that every neighbor refers to keypoints that exist in the query and train
// frames and that each query's neighbors share its query index.
func ValidateKNN(knn [][]KNNMatch, numQuery, numTrain int) error {
	for i, neighbors := range knn {
		for _, m := range neighbors {
			if m.QueryIdx < 0 || m.QueryIdx >= numQuery {
				return errors.Errorf("match %d: query index %d out of range [0, %d)", i, m.QueryIdx, numQuery)
			}
			if m.TrainIdx < 0 || m.TrainIdx >= numTrain {
				return errors.Errorf("match %d: train index %d out of range [0, %d)", i, m.TrainIdx, numTrain)
			}
			if m.QueryIdx != neighbors[0].QueryIdx {
				return errors.Errorf("match %d: neighbors belong to different queries (%d, %d)",
					i, neighbors[0].QueryIdx, m.QueryIdx)
			}
		}
	}
	return nil
}
