// Package sfm drives an incremental reconstruction over a sequence of frames. It owns the track
// store and runs the correspondence filter, continuity scan and consolidation for every frame
// pair, delegating detection, matching, inlier estimation, pose recovery and triangulation to
// pluggable collaborators.
package sfm

import (
	"context"
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sfm/vision/keypoints"
	"go.viam.com/sfm/vision/tracks"
)

// Pose contains the rotation and translation of a camera in the reconstruction's reference frame.
type Pose struct {
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewPoseFromRotationTranslation returns a new pointer to Pose from a 3x3 rotation and a 3x1
// translation matrix.
func NewPoseFromRotationTranslation(rotation, translation *mat.Dense) *Pose {
	return &Pose{
		Rotation:    rotation,
		Translation: translation,
	}
}

// IdentityPose is the pose of the reference frame.
func IdentityPose() *Pose {
	return NewPoseFromRotationTranslation(
		mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		mat.NewDense(3, 1, nil),
	)
}

// Validate checks the matrix shapes.
func (p *Pose) Validate() error {
	if p == nil || p.Rotation == nil || p.Translation == nil {
		return errors.New("pose is missing a rotation or a translation")
	}
	if r, c := p.Rotation.Dims(); r != 3 || c != 3 {
		return errors.Errorf("rotation must be 3x3, got %dx%d", r, c)
	}
	if r, c := p.Translation.Dims(); r != 3 || c != 1 {
		return errors.Errorf("translation must be 3x1, got %dx%d", r, c)
	}
	return nil
}

// Detector extracts keypoints and descriptors from an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*keypoints.Features, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) (*keypoints.Features, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) (*keypoints.Features, error) {
	return f(ctx, img)
}

// Matcher returns, for every query descriptor, its keypoints.KNN nearest train descriptors,
// nearest first.
type Matcher interface {
	KnnMatch(ctx context.Context, query, train *keypoints.Features) ([][]keypoints.KNNMatch, error)
}

// Triangulator returns one 3D point per correspondence from the poses of its two frames.
type Triangulator interface {
	Triangulate(ctx context.Context, query, train *Pose, corr *keypoints.Correspondences) ([]r3.Vector, error)
}

// PoseEstimator recovers the pose of the train frame of a pair.
type PoseEstimator interface {
	// Bootstrap estimates the second frame's pose from the first pair's 2D-2D correspondences,
	// the first frame being at the identity.
	Bootstrap(ctx context.Context, corr *keypoints.Correspondences) (*Pose, error)
	// Estimate estimates the pose of frame i+1 from the features of frame i whose 3D position is
	// already known.
	Estimate(ctx context.Context, cont *tracks.Continuity) (*Pose, error)
}

// Collaborators are the external stages a Pipeline delegates to. Detector is only needed by
// ProcessImage; a nil Inliers keeps every correspondence.
type Collaborators struct {
	Detector      Detector
	Matcher       Matcher
	Inliers       keypoints.InlierFilter
	Triangulator  Triangulator
	PoseEstimator PoseEstimator
}

func (c *Collaborators) validate() error {
	if c.Matcher == nil {
		return errors.New("a matcher is required")
	}
	if c.Triangulator == nil {
		return errors.New("a triangulator is required")
	}
	if c.PoseEstimator == nil {
		return errors.New("a pose estimator is required")
	}
	return nil
}
