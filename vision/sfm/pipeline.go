package sfm

import (
	"context"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/vision/keypoints"
	"go.viam.com/sfm/vision/tracks"
)

// StepResult describes the outcome of processing one frame.
type StepResult struct {
	Frame tracks.FrameIndex
	// Reference is set for the first frame, which only becomes the query side of the next pair.
	Reference bool
	Matches   int
	// Continued is the number of 2D/3D pairs handed to the pose estimator. It is zero on the
	// first pair, whose pose is bootstrapped from 2D-2D correspondences.
	Continued  int
	Unresolved int
	Created    int
	Extended   int
	Violations int
	Pose       *Pose
	Duration   time.Duration
}

// Stats summarizes a run.
type Stats struct {
	Frames        int
	DroppedFrames int
	Violations    int
	Elapsed       time.Duration
	Cloud         tracks.Stats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used to time steps.
func WithClock(clk clock.Clock) Option {
	return func(p *Pipeline) {
		p.clock = clk
	}
}

// Pipeline runs an incremental reconstruction one frame at a time. It is strictly sequential and
// not safe for concurrent use.
type Pipeline struct {
	cfg    Config
	collab Collaborators
	clock  clock.Clock

	logger       logging.Logger
	filterLogger logging.Logger
	tracksLogger logging.Logger
	registry     *logging.Registry

	store *tracks.Store
	// state of the last accepted frame
	frame    tracks.FrameIndex
	features *keypoints.Features
	prevCorr *keypoints.Correspondences
	poses    []*Pose

	dropped    int
	violations int
	elapsed    time.Duration
}

// NewPipeline returns a Pipeline with an empty track store.
func NewPipeline(cfg *Config, collab Collaborators, logger logging.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}
	if collab.Inliers == nil {
		collab.Inliers = keypoints.AcceptAll
	}

	p := &Pipeline{
		cfg:          *cfg,
		collab:       collab,
		clock:        clock.New(),
		logger:       logger,
		filterLogger: logger.Sublogger("filter"),
		tracksLogger: logger.Sublogger("tracks"),
		registry:     logging.NewRegistry(),
		store:        tracks.NewStore(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, l := range []logging.Logger{p.logger, p.filterLogger, p.tracksLogger} {
		if err := p.registry.Register(l); err != nil {
			return nil, err
		}
	}
	if err := p.registry.UpdateConfig(cfg.Log, cfg.DefaultLevel(), logger); err != nil {
		return nil, errors.Wrap(err, "cannot apply log config")
	}
	return p, nil
}

// ProcessImage detects the features of img and processes them as the next frame.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image) (*StepResult, error) {
	if p.collab.Detector == nil {
		return nil, errors.New("no detector configured")
	}
	features, err := p.collab.Detector.Detect(ctx, img)
	if err != nil {
		return nil, errors.Wrap(err, "detection failed")
	}
	return p.ProcessFrame(ctx, features)
}

// ProcessFrame adds the next frame to the reconstruction. The first frame becomes the reference.
// Every later frame forms the pair (i, i+1) with the last accepted frame i: its correspondences
// are filtered, the pose of frame i+1 is estimated (from continuity when i > 0), the pair is
// triangulated and consolidated into the track store.
//
// When the pair has too few good matches the frame is dropped: it gets no index, the state of the
// pipeline is unchanged and the returned error matches keypoints.ErrInsufficientMatches, so the
// caller can supply a different frame.
func (p *Pipeline) ProcessFrame(ctx context.Context, features *keypoints.Features) (*StepResult, error) {
	if err := features.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := p.clock.Now()

	if p.features == nil {
		p.features = features
		p.poses = []*Pose{IdentityPose()}
		p.logger.Infow("reference frame", "frame", 0, "keypoints", len(features.KeyPoints))
		return &StepResult{Frame: 0, Reference: true, Pose: p.poses[0], Duration: p.clock.Since(start)}, nil
	}

	frame, next := p.frame, p.frame+1
	knn, err := p.collab.Matcher.KnnMatch(ctx, p.features, features)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot match frame %d to frame %d", frame, next)
	}
	corr, err := keypoints.Filter(ctx, p.features, features, knn, p.collab.Inliers)
	if err != nil {
		if errors.Is(err, keypoints.ErrInsufficientMatches) {
			p.dropped++
			p.filterLogger.Warnw("dropping frame", "after", frame, "error", err)
		}
		return nil, errors.Wrapf(err, "cannot filter pair (%d, %d)", frame, next)
	}
	p.filterLogger.Debugw("filtered correspondences", "frame", frame, "candidates", len(knn), "kept", corr.Len())

	result := &StepResult{Frame: next, Matches: corr.Len()}
	pose, err := p.estimatePose(ctx, frame, corr, result)
	if err != nil {
		return nil, err
	}
	if err := pose.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid pose for frame %d", next)
	}
	result.Pose = pose

	points, err := p.collab.Triangulator.Triangulate(ctx, p.poses[frame], pose, corr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot triangulate pair (%d, %d)", frame, next)
	}

	consolidated, err := tracks.Consolidate(p.store, frame, corr, points, p.tracksLogger)
	if consolidated == nil {
		return nil, errors.Wrapf(err, "cannot consolidate pair (%d, %d)", frame, next)
	}
	// refused candidates never reach the store, so the step still counts
	result.Created = consolidated.Created
	result.Extended = consolidated.Extended
	result.Violations = len(consolidated.Violations)
	p.violations += result.Violations

	if p.cfg.Audit {
		if err := p.store.Validate(); err != nil {
			return nil, errors.Wrapf(err, "track store audit failed after pair (%d, %d)", frame, next)
		}
	}

	p.frame = next
	p.features = features
	p.prevCorr = corr
	p.poses = append(p.poses, pose)

	result.Duration = p.clock.Since(start)
	p.elapsed += result.Duration
	p.logger.Infow("processed frame",
		"frame", next,
		"matches", result.Matches,
		"continued", result.Continued,
		"created", result.Created,
		"extended", result.Extended,
		"tracks", p.store.Size(),
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) estimatePose(
	ctx context.Context,
	frame tracks.FrameIndex,
	corr *keypoints.Correspondences,
	result *StepResult,
) (*Pose, error) {
	if p.prevCorr == nil {
		pose, err := p.collab.PoseEstimator.Bootstrap(ctx, corr)
		if err != nil {
			return nil, errors.Wrap(err, "cannot bootstrap the second frame pose")
		}
		return pose, nil
	}

	cont, err := tracks.Scan(p.store, frame, p.prevCorr, corr, p.tracksLogger)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot scan continuity of frame %d", frame)
	}
	result.Continued = cont.Len()
	result.Unresolved = len(cont.Unresolved)
	if p.cfg.StrictContinuity {
		if err := cont.Err(); err != nil {
			return nil, err
		}
	}
	pose, err := p.collab.PoseEstimator.Estimate(ctx, cont)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot estimate the pose of frame %d", frame+1)
	}
	return pose, nil
}

// Store returns the track store. It must not be read while a frame is being processed.
func (p *Pipeline) Store() *tracks.Store {
	return p.store
}

// Frames returns the number of accepted frames.
func (p *Pipeline) Frames() int {
	return len(p.poses)
}

// Pose returns the estimated pose of an accepted frame.
func (p *Pipeline) Pose(frame tracks.FrameIndex) (*Pose, bool) {
	if frame < 0 || int(frame) >= len(p.poses) {
		return nil, false
	}
	return p.poses[frame], true
}

// Stats summarizes the run so far.
func (p *Pipeline) Stats() (Stats, error) {
	cloud, err := tracks.ComputeStats(p.store)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Frames:        p.Frames(),
		DroppedFrames: p.dropped,
		Violations:    p.violations,
		Elapsed:       p.elapsed,
		Cloud:         cloud,
	}, nil
}

// Close flushes the pipeline loggers.
func (p *Pipeline) Close() error {
	return p.logger.Sync()
}
