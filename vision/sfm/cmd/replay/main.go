// Package main replays a recorded frame sequence through the reconstruction pipeline and reports
// the resulting point cloud statistics.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/sfm/logging"
	"go.viam.com/sfm/vision/keypoints"
	"go.viam.com/sfm/vision/sfm"
	"go.viam.com/sfm/vision/tracks"
)

const (
	flagRecording = "recording"
	flagConfig    = "config"
	flagDebug     = "debug"
	flagLogFile   = "log-file"
	flagHistogram = "histogram"
)

type replayOptions struct {
	recordingPath string
	configPath    string
	debug         bool
	histogram     bool
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "replay",
		Usage:     "replay a recorded frame sequence through the track consolidation pipeline",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:      flagRecording,
				Aliases:   []string{"r"},
				Usage:     "load the recorded sequence from `FILE` (json or yaml)",
				Required:  true,
				TakesFile: true,
			},
			&cli.StringFlag{
				Name:      flagConfig,
				Aliases:   []string{"c"},
				Usage:     "load pipeline configuration from `FILE` (json or yaml)",
				TakesFile: true,
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:      flagLogFile,
				Usage:     "also write logs to `FILE`, rotated by size",
				TakesFile: true,
			},
			&cli.BoolFlag{
				Name:  flagHistogram,
				Usage: "print a histogram of the track lengths",
			},
		},
		Action: func(c *cli.Context) error {
			logger := logging.NewWriterLogger("replay", c.App.Writer)
			if path := c.String(flagLogFile); path != "" {
				appender, closer := logging.NewFileAppender(path)
				defer utils.UncheckedErrorFunc(closer.Close)
				logger.AddAppender(appender)
			}
			opts := replayOptions{
				recordingPath: c.String(flagRecording),
				configPath:    c.String(flagConfig),
				debug:         c.Bool(flagDebug),
				histogram:     c.Bool(flagHistogram),
			}
			return runReplay(c.Context, opts, c.App.Writer, logger)
		},
	}
}

func runReplay(ctx context.Context, opts replayOptions, out io.Writer, logger logging.Logger) error {
	cfg := &sfm.Config{}
	if opts.configPath != "" {
		var err error
		if cfg, err = sfm.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	cfg.Debug = cfg.Debug || opts.debug

	rec, err := sfm.LoadRecording(opts.recordingPath)
	if err != nil {
		return err
	}
	replay := sfm.NewReplay(rec)

	pipeline, err := sfm.NewPipeline(cfg, replay.Collaborators(), logger)
	if err != nil {
		return err
	}
	// stdout may not support fsync
	defer utils.UncheckedErrorFunc(pipeline.Close)

	logger.Infow("replaying", "name", rec.Name, "frames", replay.Len())
	for i := 0; i < replay.Len(); i++ {
		if _, err := pipeline.ProcessFrame(ctx, replay.Features(i)); err != nil {
			if errors.Is(err, keypoints.ErrInsufficientMatches) {
				continue
			}
			return errors.Wrapf(err, "recorded frame %d", i)
		}
	}

	stats, err := pipeline.Stats()
	if err != nil {
		return err
	}
	logger.Infow("done",
		"frames", stats.Frames,
		"dropped", stats.DroppedFrames,
		"violations", stats.Violations,
		"tracks", stats.Cloud.Tracks,
		"observations", stats.Cloud.Observations,
		"mean_track_length", stats.Cloud.MeanTrackLength,
		"median_track_length", stats.Cloud.MedianTrackLength,
		"max_track_length", stats.Cloud.MaxTrackLength,
		"center", stats.Cloud.Bounds.Center(),
		"elapsed", stats.Elapsed,
	)

	if _, err := fmt.Fprintln(out, stats.Cloud.String()); err != nil {
		return err
	}
	if opts.histogram && stats.Cloud.Tracks > 0 {
		return histogram.Fprint(out, tracks.LengthHistogram(pipeline.Store()), histogram.Linear(40))
	}
	return nil
}
