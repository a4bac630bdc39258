// Command triangle draws a triangle in a resizable window, rebuilding the
// swap chain whenever the surface changes.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"runtime"

	"github.com/xlab/closer"

	"swapline/src/app"
	"swapline/src/config"
	"swapline/src/render"
)

func init() {
	// GLFW and the presentation engine want the main thread.
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		headless   = flag.Bool("headless", false, "run against the simulated GPU")
		frames     = flag.Int("frames", -1, "number of frames to render headless, 0 for unlimited")
		verbose    = flag.Bool("v", false, "log at debug level")
		validation = flag.Bool("validation", false, "enable the Vulkan validation layer")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			closer.Fatalln(err)
		}
		cfg = c
	}
	if *headless {
		cfg.Headless.Enabled = true
	}
	if *frames >= 0 {
		cfg.Headless.Frames = *frames
	}
	if *validation {
		cfg.Render.Validation = true
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	level, err := cfg.Level()
	if err != nil {
		closer.Fatalln(err)
	}
	render.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var a *app.App
	if cfg.Headless.Enabled {
		a, err = app.NewHeadless(cfg)
	} else {
		a, err = app.NewGPU(cfg)
	}
	if err != nil {
		closer.Fatalln(err)
	}

	// The loop owns the main thread, so the signal hook only asks it to
	// stop and waits for the teardown.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	closer.Bind(func() {
		cancel()
		<-done
	})

	err = a.Run(ctx)
	a.Close()
	close(done)
	if err != nil {
		closer.Fatalln(err)
	}
	closer.Close()
}
