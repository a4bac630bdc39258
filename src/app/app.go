// Package app owns the window, the device and the engine of the triangle
// program and drives the frame loop.
package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"swapline/src/config"
	"swapline/src/geometry"
	"swapline/src/render"
	"swapline/src/render/simgpu"
	"swapline/src/render/vkdevice"
	"swapline/src/shader"
	"swapline/src/window"
)

// Device is what the application needs from a backend on top of
// render.Device.
type Device interface {
	render.Device
	geometry.Uploader
	DestroyBuffer(buffer render.Handle)
	Close()
}

// Window is what the application needs from a surface provider on top of
// render.Window.
type Window interface {
	render.Window
	PollEvents()
	WaitEvents()
	Info() string
}

// App is the single owner of everything it creates. Close releases it
// all in reverse order of creation.
type App struct {
	cfg      *config.Config
	win      Window
	dev      Device
	geometry *render.StaticGeometry
	engine   *render.Engine

	// destroyWindow releases the window after the device.
	destroyWindow func()
	closed        bool
}

// NewHeadless runs the engine against the simulated GPU. The window never
// closes by itself, so cfg.Headless.Frames or ctx bounds the run.
func NewHeadless(cfg *config.Config) (*App, error) {
	win := simgpu.NewWindow(cfg.Window.Width, cfg.Window.Height)
	dev := simgpu.New(win, simgpu.WithLatency(cfg.Headless.Latency))
	empty := shader.Empty()
	a := &App{
		cfg:           cfg,
		win:           win,
		dev:           dev,
		destroyWindow: win.Close,
	}
	if err := a.start(shader.Static{Vertex: empty, Fragment: empty}, dev.Info(), "simulated"); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewGPU opens a GLFW window and a Vulkan device. It must be called on
// the main thread.
func NewGPU(cfg *config.Config) (*App, error) {
	win, err := window.New(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, win: win, destroyWindow: win.Destroy}
	v := cfg.App.Version
	dev, err := vkdevice.New(vkdevice.Options{
		Surface:    win,
		AppName:    cfg.App.Name,
		AppVersion: vulkan.MakeVersion(v.Major, v.Minor, v.Patch),
		Validation: cfg.Render.Validation,
	})
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "open vulkan device")
	}
	a.dev = dev
	shaders := shader.Files{
		Vertex:   cfg.Render.Shaders.Vertex,
		Fragment: cfg.Render.Shaders.Fragment,
	}
	if err := a.start(shaders, win.Info(), dev.APIVersion()+" "+dev.Name()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) start(shaders render.ShaderSource, windowSystem, api string) error {
	geo, err := geometry.Triangle().Upload(a.dev)
	if err != nil {
		return err
	}
	a.geometry = geo
	a.engine, err = render.NewEngine(render.Options{
		Device:         a.dev,
		Window:         a.win,
		Shaders:        shaders,
		Geometry:       geo,
		FramesInFlight: a.cfg.Render.FramesInFlight,
		AcquireTimeout: a.cfg.Render.AcquireTimeout,
		AppName:        a.cfg.App.Name,
		AppVersion:     a.cfg.App.Version.String(),
		WindowSystem:   windowSystem,
		APIVersion:     api,
	})
	return errors.Wrap(err, "start engine")
}

// Run ticks the engine until the window closes, ctx is done or the
// configured number of headless frames has been rendered. A non-nil
// error is fatal; the caller should Close and exit.
func (a *App) Run(ctx context.Context) (err error) {
	defer render.CheckError(&err)
	if a.closed {
		return render.ErrClosed
	}
	limit := 0
	if a.cfg.Headless.Enabled {
		limit = a.cfg.Headless.Frames
	}
	for n := 0; limit == 0 || n < limit; n++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		a.win.PollEvents()
		if a.win.Closed() {
			return nil
		}
		if err := a.engine.Tick(); err != nil {
			return errors.Wrapf(err, "frame %d", n)
		}
		if a.engine.Pending() {
			a.win.WaitEvents()
		}
	}
	return nil
}

func (a *App) Engine() *render.Engine { return a.engine }

// Close releases the engine, the vertex buffer, the device and the window
// in that order. It is safe on a partially started App and idempotent.
func (a *App) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.engine != nil {
		a.engine.Close()
	}
	if a.dev != nil {
		if a.geometry != nil {
			a.dev.DestroyBuffer(a.geometry.Buffer)
		}
		a.dev.Close()
	}
	if a.destroyWindow != nil {
		a.destroyWindow()
	}
}
