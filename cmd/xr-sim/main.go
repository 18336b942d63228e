// Package main runs a scripted end-to-end exercise against the headless
// backend: discover a device, open a session, drive the viewer along a
// path, recenter once and end cleanly. Useful as a smoke test and as a
// worked example of the host-side API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/servo/webxr/backend/headless"
	"github.com/servo/webxr/device"
	"github.com/servo/webxr/registry"
	"github.com/servo/webxr/space"
	"github.com/servo/webxr/transform"
)

func main() {
	frames := flag.Int("frames", 60, "number of frames to request")
	interval := flag.Duration("interval", 16*time.Millisecond, "simulated device frame interval")
	stereo := flag.Bool("stereo", true, "simulate a stereo headset")
	verbose := flag.Bool("verbose", false, "log every frame")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*frames, *interval, *stereo, *verbose); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run(frames int, interval time.Duration, stereo, verbose bool) error {
	floorHeight := 1.6
	sim := headless.New(headless.Init{
		SupportedFeatures: []device.Feature{device.FeatureLocalFloor},
		FrameIntervalMs:   int(interval.Milliseconds()),
		FloorHeight:       &floorHeight,
		Stereo:            stereo,
	})

	reg := registry.NewRegistry()
	if err := reg.Register(sim); err != nil {
		return err
	}

	session, err := reg.RequestSession(
		device.SessionRequest{
			Required: device.NewFeatureSet(device.FeatureViewer, device.FeatureLocal),
			Optional: device.NewFeatureSet(device.FeatureLocalFloor),
		},
		device.SessionInit{Name: "xr-sim"},
		space.Local,
	)
	if err != nil {
		return err
	}
	defer func() { _ = session.End() }()

	slog.Info("session opened",
		"id", session.ID(),
		"backend", session.BackendName(),
		"granted", session.GrantedFeatures().List(),
	)

	// Walk the viewer in a slow circle at head height.
	start := time.Now()
	ctx := context.Background()
	for i := 0; i < frames; i++ {
		angle := 2 * math.Pi * float64(i) / float64(frames)
		sim.SetViewerPose(transform.RigidTransform{
			Rotation: transform.QuaternionIdentity(),
			Position: transform.Vector3{
				X: math.Cos(angle),
				Y: floorHeight,
				Z: math.Sin(angle),
			},
		})

		f, err := session.RequestFrame(ctx)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if verbose && f.ViewerPose != nil {
			slog.Info("frame",
				"seq", f.Seq,
				"time", f.Time,
				"x", f.ViewerPose.Transform.Position.X,
				"z", f.ViewerPose.Transform.Position.Z,
				"views", len(f.Views),
			)
		}

		if i == frames/2 {
			// Halfway around the circle, make the current spot the
			// new local origin.
			if err := session.Recenter(space.Local); err != nil {
				return fmt.Errorf("recenter: %w", err)
			}
			slog.Info("recentered", "seq", f.Seq)
		}
	}

	slog.Info("simulation complete",
		"frames", frames,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
