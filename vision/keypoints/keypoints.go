// Package keypoints contains the 2D side of the reconstruction pipeline: the keypoints and
// descriptors detected in a frame, the k-nearest-neighbor matches between two frames, and the
// filtered correspondence sets built from them.
package keypoints

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

type (
	// KeyPoints is the list of pixel coordinates detected in one frame. A keypoint id is an index
	// into this list and is only meaningful within that frame.
	KeyPoints []r2.Point
	// Descriptor is the feature vector of a single keypoint.
	Descriptor []float32
	// Descriptors is the list of descriptors of a frame, aligned with its KeyPoints.
	Descriptors []Descriptor
)

// Features is the detector output for a single frame.
type Features struct {
	KeyPoints   KeyPoints   `json:"keypoints" yaml:"keypoints"`
	Descriptors Descriptors `json:"descriptors,omitempty" yaml:"descriptors,omitempty"`
}

// Validate ensures descriptors, when present, are aligned with the keypoints.
func (f *Features) Validate() error {
	if f == nil {
		return errors.New("features are nil")
	}
	if len(f.Descriptors) != 0 && len(f.Descriptors) != len(f.KeyPoints) {
		return errors.Errorf("got %d descriptors for %d keypoints", len(f.Descriptors), len(f.KeyPoints))
	}
	return nil
}

// At returns the pixel of keypoint id, or an error if the id is not in this frame.
func (kps KeyPoints) At(id int) (r2.Point, error) {
	if id < 0 || id >= len(kps) {
		return r2.Point{}, errors.Errorf("keypoint id %d out of range [0, %d)", id, len(kps))
	}
	return kps[id], nil
}
