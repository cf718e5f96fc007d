package sfm

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"go.viam.com/sfm/vision/keypoints"
	"go.viam.com/sfm/vision/tracks"
)

// RecordedPose is a pose in row-major form.
type RecordedPose struct {
	Rotation    []float64 `json:"rotation" yaml:"rotation"`
	Translation []float64 `json:"translation" yaml:"translation"`
}

// Pose converts the recorded values to matrices.
func (rp *RecordedPose) Pose() (*Pose, error) {
	if rp == nil {
		return nil, errors.New("no pose recorded")
	}
	if len(rp.Rotation) != 9 || len(rp.Translation) != 3 {
		return nil, errors.Errorf("recorded pose needs 9 rotation and 3 translation values, got %d and %d",
			len(rp.Rotation), len(rp.Translation))
	}
	return NewPoseFromRotationTranslation(
		mat.NewDense(3, 3, append([]float64(nil), rp.Rotation...)),
		mat.NewDense(3, 1, append([]float64(nil), rp.Translation...)),
	), nil
}

// RecordedFrame holds one frame and the collaborator outputs recorded for the pair it forms with
// the last accepted frame before it. Everything but Features is ignored for the first frame.
type RecordedFrame struct {
	Features keypoints.Features     `json:"features" yaml:"features"`
	KNN      [][]keypoints.KNNMatch `json:"knn,omitempty" yaml:"knn,omitempty"`
	// Inliers has one value per good match. When empty every match is an inlier.
	Inliers []bool        `json:"inliers,omitempty" yaml:"inliers,omitempty"`
	Pose    *RecordedPose `json:"pose,omitempty" yaml:"pose,omitempty"`
	// Points has one coordinate per filtered correspondence.
	Points []r3.Vector `json:"points,omitempty" yaml:"points,omitempty"`
}

// Recording is a recorded frame sequence.
type Recording struct {
	Name   string          `json:"name,omitempty" yaml:"name,omitempty"`
	Frames []RecordedFrame `json:"frames" yaml:"frames"`
}

// LoadRecording loads a recording from a json or yaml file, chosen by extension.
func LoadRecording(path string) (*Recording, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rec, err := DecodeRecording(f, isYAML(path))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read recording %q", path)
	}
	return rec, nil
}

// DecodeRecording reads a recording in json, or in yaml when asYAML is set.
func DecodeRecording(r io.Reader, asYAML bool) (*Recording, error) {
	var rec Recording
	if asYAML {
		if err := yaml.NewDecoder(r).Decode(&rec); err != nil {
			return nil, err
		}
	} else if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, err
	}
	if len(rec.Frames) == 0 {
		return nil, errors.New("recording has no frames")
	}
	for i := range rec.Frames {
		if err := rec.Frames[i].Features.Validate(); err != nil {
			return nil, errors.Wrapf(err, "frame %d", i)
		}
	}
	return &rec, nil
}

// Replay serves the outputs stored in a Recording as the pipeline collaborators. It answers for
// the frame most recently passed to KnnMatch as the train side, so the frames of the recording
// must be processed by pointer, in order, through a single pipeline.
type Replay struct {
	rec     *Recording
	frames  map[*keypoints.Features]int
	current int
}

// NewReplay returns a Replay over rec.
func NewReplay(rec *Recording) *Replay {
	frames := make(map[*keypoints.Features]int, len(rec.Frames))
	for i := range rec.Frames {
		frames[&rec.Frames[i].Features] = i
	}
	return &Replay{rec: rec, frames: frames, current: -1}
}

// Features returns the features of the i-th recorded frame.
func (r *Replay) Features(i int) *keypoints.Features {
	return &r.rec.Frames[i].Features
}

// Len returns the number of recorded frames.
func (r *Replay) Len() int {
	return len(r.rec.Frames)
}

// Collaborators returns the replay as every collaborator but the detector.
func (r *Replay) Collaborators() Collaborators {
	return Collaborators{
		Matcher:       r,
		Inliers:       keypoints.InlierFilterFunc(r.Inliers),
		Triangulator:  r,
		PoseEstimator: r,
	}
}

// KnnMatch returns the recorded neighbors of the train frame.
func (r *Replay) KnnMatch(ctx context.Context, query, train *keypoints.Features) ([][]keypoints.KNNMatch, error) {
	i, ok := r.frames[train]
	if !ok {
		return nil, errors.New("train features are not part of the recording")
	}
	r.current = i
	return r.rec.Frames[i].KNN, nil
}

// Inliers returns the recorded inlier mask of the current frame.
func (r *Replay) Inliers(ctx context.Context, query, train keypoints.KeyPoints) ([]bool, error) {
	rf, err := r.currentFrame()
	if err != nil {
		return nil, err
	}
	if len(rf.Inliers) == 0 {
		return keypoints.AcceptAll(ctx, query, train)
	}
	return rf.Inliers, nil
}

// Bootstrap returns the recorded pose of the current frame.
func (r *Replay) Bootstrap(ctx context.Context, corr *keypoints.Correspondences) (*Pose, error) {
	rf, err := r.currentFrame()
	if err != nil {
		return nil, err
	}
	return rf.Pose.Pose()
}

// Estimate returns the recorded pose of the current frame.
func (r *Replay) Estimate(ctx context.Context, cont *tracks.Continuity) (*Pose, error) {
	rf, err := r.currentFrame()
	if err != nil {
		return nil, err
	}
	return rf.Pose.Pose()
}

// Triangulate returns the recorded points of the current frame.
func (r *Replay) Triangulate(ctx context.Context, query, train *Pose, corr *keypoints.Correspondences) ([]r3.Vector, error) {
	rf, err := r.currentFrame()
	if err != nil {
		return nil, err
	}
	if len(rf.Points) != corr.Len() {
		return nil, errors.Errorf("recorded %d points for %d correspondences", len(rf.Points), corr.Len())
	}
	return rf.Points, nil
}

func (r *Replay) currentFrame() (*RecordedFrame, error) {
	if r.current < 0 {
		return nil, errors.New("no frame pair matched yet")
	}
	return &r.rec.Frames[r.current], nil
}
