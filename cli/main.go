// Command cli runs the image tracker against a synthetic camera feed: a
// generated reference target is warped through a slowly drifting homography
// frame by frame and fed back to the tracker, exercising the full
// training -> scanning -> pre-tracking -> tracking cycle without hardware.
package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"

	"go.viam.com/rdk/logging"

	"imagetracker/internal/synth"
	"imagetracker/pipeline"
	"imagetracker/tracking"
)

const validMotion = "affine, homography, 6dof"

var motionModels = map[string]tracking.MotionModel{
	"affine":     tracking.MotionAffine,
	"homography": tracking.MotionHomography,
	"6dof":       tracking.MotionSixDoF,
}

func main() {
	frames := flag.Int("frames", 120, "number of synthetic frames to process")
	res := flag.String("res", "md", "working resolution: xs, sm, md, lg")
	seed := flag.Int64("seed", 7, "seed for the synthetic target and motion")
	motion := flag.String("motion", "homography", "motion model: "+validMotion)
	flag.Parse()

	logger := logging.NewLogger("imagetracker-cli")

	model, ok := motionModels[*motion]
	if !ok {
		logger.Fatalf("unknown motion model %q; valid models: %s", *motion, validMotion)
	}

	cfg := tracking.DefaultConfig()
	cfg.Resolution = *res
	cfg.MotionModel = model
	width, height, err := cfg.WorkingSize()
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	refImg := synth.TexturedImage(512, 512, *seed)
	ref, err := tracking.NewReferenceImage("synthetic-target", refImg)
	if err != nil {
		logger.Fatal(err)
	}

	db := tracking.NewReferenceImageDatabase(1)
	if err := db.Add(ref); err != nil {
		logger.Fatal(err)
	}

	pipe := pipeline.New(pipeline.DefaultConfig(), logger)
	tracker, err := tracking.NewImageTracker(cfg, db, pipe, logger)
	if err != nil {
		logger.Fatal(err)
	}

	tracker.OnTargetFound(func(img *tracking.ReferenceImage) {
		logger.Infof("target found: %s", img.Name)
	})
	tracker.OnTargetLost(func(img *tracking.ReferenceImage) {
		logger.Infof("target lost: %s", img.Name)
	})

	if err := tracker.Init(ctx); err != nil {
		logger.Fatal(err)
	}
	defer tracker.Release()

	logger.Infof("tracking %d synthetic frames at %dx%d (%s motion)", *frames, width, height, *motion)

	// The target covers ~60% of the frame height and drifts on a slow
	// Lissajous path so the tracker sees continuous motion.
	scale := 0.6 * float64(height) / 512
	baseX := (float64(width) - 512*scale) / 2
	baseY := (float64(height) - 512*scale) / 2

	lastState := ""
	for i := 0; i < *frames; i++ {
		if ctx.Err() != nil {
			logger.Info("interrupted")
			return
		}

		t := float64(i) / 30
		dx := 12 * math.Sin(t)
		dy := 8 * math.Sin(1.7*t)
		warp := synth.ShiftHomography(baseX+dx, baseY+dy, scale)

		frame, err := pipe.Warp(ctx, refImg, warp, width, height)
		if err != nil {
			logger.Fatal(err)
		}

		result, err := tracker.Update(ctx, tracking.Frame{Image: frame})
		if err != nil {
			logger.Fatal(err)
		}

		if s := tracker.State(); s != lastState {
			logger.Infof("frame %d: state %s", i, s)
			lastState = s
		}
		if result != nil {
			p := result.Pose.Transform.Point()
			logger.Infof("frame %d: target at (%.3f, %.3f, %.3f)", i, p.X, p.Y, p.Z)
		}
	}

	logger.Info("done")
}
