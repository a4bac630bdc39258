package render

import (
	"fmt"
	"time"

	"github.com/loov/hrtime"
	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"
)

const (
	EngineName = "swapline"

	EngineVersionMajor = 0
	EngineVersionMinor = 3
	EngineVersionPatch = 0

	DefaultFramesInFlight = 2
	DefaultAcquireTimeout = time.Second
)

// ErrClosed is returned by Tick and Recreate after Close.
var ErrClosed = errors.New("render: engine closed")

// Options configures NewEngine. Device, Window, Shaders and Geometry are
// required and must outlive the engine.
type Options struct {
	Device   Device
	Window   Window
	Shaders  ShaderSource
	Geometry Geometry

	// FramesInFlight is the requested number of frames in flight.
	// The swap chain may force it lower.
	FramesInFlight int
	// AcquireTimeout bounds each image acquisition.
	AcquireTimeout time.Duration

	// Banner fields, logged once at start.
	AppName      string
	AppVersion   string
	WindowSystem string
	APIVersion   string
}

// Engine drives one frame per Tick and rebuilds the swap chain and
// everything derived from it when the surface changes. It is not safe
// for concurrent use.
type Engine struct {
	dev     Device
	win     Window
	timeout time.Duration

	chain    *SwapChain
	pass     *RenderPass
	pipeline *Pipeline
	targets  *FrameBuffers
	cmds     *CommandBuffers
	sync     *FrameSync

	current     int
	inFlightMax int

	// pending is set while the drawable has no area and the chain is
	// torn down waiting for it.
	pending     bool
	generation  int
	recreations int
	closed      bool

	timer tickTimer
}

func NewEngine(opts Options) (*Engine, error) {
	switch {
	case opts.Device == nil:
		return nil, errors.New("render: no device")
	case opts.Window == nil:
		return nil, errors.New("render: no window")
	case opts.Shaders == nil:
		return nil, errors.New("render: no shader source")
	case opts.Geometry == nil:
		return nil, errors.New("render: no geometry")
	}
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	start := hrtime.Now()

	e := &Engine{
		dev:     opts.Device,
		win:     opts.Window,
		timeout: opts.AcquireTimeout,
	}
	e.chain = NewSwapChain(e.dev, e.win, opts.FramesInFlight)
	e.pass = NewRenderPass(e.dev, e.chain)
	e.pipeline = NewPipeline(e.dev, e.chain, e.pass, opts.Shaders, opts.Geometry)
	e.targets = NewFrameBuffers(e.dev, e.chain, e.pass)
	e.cmds = NewCommandBuffers(e.dev, e.chain, e.pass, e.pipeline, e.targets, opts.Geometry)

	if err := e.createGeneration(); err != nil {
		e.destroyGeneration()
		return nil, err
	}
	e.inFlightMax = e.chain.InFlightMax()
	sync, err := NewFrameSync(e.dev, e.inFlightMax)
	if err != nil {
		e.destroyGeneration()
		return nil, err
	}
	e.sync = sync

	Logger().Info("engine started",
		"app", fmt.Sprintf("%s v%s", opts.AppName, opts.AppVersion),
		"engine", fmt.Sprintf("%s v%d.%d.%d", EngineName, EngineVersionMajor, EngineVersionMinor, EngineVersionPatch),
		"window_system", opts.WindowSystem,
		"api", opts.APIVersion,
		"frames_in_flight", e.inFlightMax,
		"startup", hrtime.Since(start))
	e.timer = newTickTimer()
	return e, nil
}

// Tick renders one frame: wait for the slot, acquire an image, submit
// its recorded commands and present it. A stale or resized surface
// makes Tick rebuild the swap chain instead of advancing the frame
// index. Any error returned is fatal.
func (e *Engine) Tick() error {
	if e.closed {
		return ErrClosed
	}
	e.timer.tick()

	if e.pending {
		if err := e.Recreate(); err != nil {
			return err
		}
		if e.pending {
			return nil
		}
	}

	frame := e.current
	slot := e.sync.Slot(frame)
	if err := e.sync.WaitForSlot(frame); err != nil {
		return err
	}

	idx, status, err := e.chain.AcquireNextImage(e.timeout, slot.ImageAvailable)
	if err != nil {
		return err
	}
	switch status {
	case AcquireStale:
		return e.Recreate()
	case AcquireTimeout:
		Logger().Debug("acquire timed out", "frame", frame)
		return nil
	}
	if int(idx) >= e.cmds.Len() {
		return resultError(ErrPresentation, fmt.Sprintf("acquire swap chain image %d of %d", idx, e.cmds.Len()), vulkan.ErrorOutOfDate)
	}

	if err := e.sync.ResetSlot(frame); err != nil {
		return err
	}
	res := e.dev.QueueSubmit(&SubmitInfo{
		CommandBuffer: e.cmds.Get(int(idx)),
		Wait:          slot.ImageAvailable,
		Signal:        slot.RenderFinished,
		Fence:         slot.Complete,
	})
	if res != vulkan.Success {
		return resultError(ErrSubmission, "submit command buffer", res)
	}

	res = e.dev.QueuePresent(&PresentInfo{
		Swapchain: e.chain.Handle(),
		Image:     idx,
		Wait:      slot.RenderFinished,
	})
	// An outstanding resize rebuilds the chain whatever present reported.
	if res == vulkan.ErrorOutOfDate || res == vulkan.Suboptimal || status == AcquireSuboptimal || e.win.Resized() {
		return e.Recreate()
	}
	if res != vulkan.Success {
		return resultError(ErrPresentation, "present swap chain image", res)
	}

	e.current = (frame + 1) % e.inFlightMax
	return nil
}

// Recreate waits for the device to go idle and rebuilds the swap chain,
// render pass, pipeline, render targets and command sequences. The
// in-flight slots are kept. If the drawable has no area the rebuild is
// deferred to the next Tick.
func (e *Engine) Recreate() error {
	if e.closed {
		return ErrClosed
	}
	if res := e.dev.WaitIdle(); res != vulkan.Success {
		return resultError(ErrSynchronization, "wait for device idle", res)
	}
	e.win.ResetResize()
	e.destroyGeneration()
	if err := e.dev.ResetCommandPool(); err != nil {
		return wrapError(ErrPresentationSetup, "reset command pool", err)
	}

	if w, h := e.win.FramebufferSize(); w <= 0 || h <= 0 {
		if !e.pending {
			Logger().Warn("drawable has no area, deferring swap chain recreation", "width", w, "height", h)
		}
		e.pending = true
		return nil
	}
	e.pending = false

	if err := e.createGeneration(); err != nil {
		return err
	}
	// The ring keeps its size; the usable part of it may only shrink.
	if m := e.chain.InFlightMax(); m < e.inFlightMax {
		Logger().Warn("frames in flight reduced", "from", e.inFlightMax, "to", m)
		e.inFlightMax = m
		e.current %= m
	}
	e.recreations++
	return nil
}

func (e *Engine) createGeneration() error {
	if err := e.chain.Create(); err != nil {
		return err
	}
	if err := e.pass.Create(); err != nil {
		return err
	}
	if err := e.pipeline.Create(); err != nil {
		return err
	}
	if err := e.targets.Create(); err != nil {
		return err
	}
	if err := e.cmds.Create(); err != nil {
		return err
	}
	e.generation++
	return nil
}

func (e *Engine) destroyGeneration() {
	e.cmds.Destroy()
	e.targets.Destroy()
	e.pipeline.Destroy()
	e.pass.Destroy()
	e.chain.Destroy()
}

// Close waits for the device and releases everything the engine owns.
// It is safe to call more than once.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	if res := e.dev.WaitIdle(); res != vulkan.Success {
		Logger().Warn("device did not go idle before teardown", "err", NewError(res))
	}
	e.destroyGeneration()
	e.sync.Destroy()
	Logger().Info("engine stopped",
		"ticks", e.timer.stats.Count,
		"average_tps", e.timer.stats.Speed,
		"generations", e.generation)
}

// CurrentFrame is the in-flight slot the next Tick uses.
func (e *Engine) CurrentFrame() int { return e.current }

// InFlightMax is the number of slots in use.
func (e *Engine) InFlightMax() int { return e.inFlightMax }

// Generation counts swap chain generations built so far.
func (e *Engine) Generation() int { return e.generation }

// Recreations counts completed recreations.
func (e *Engine) Recreations() int { return e.recreations }

// Pending reports a recreation deferred for lack of drawable area.
func (e *Engine) Pending() bool { return e.pending }

// Stats reports tick counts and the average tick rate.
func (e *Engine) Stats() TickStats { return e.timer.stats }

// SwapChain is the current presentable-image chain.
func (e *Engine) SwapChain() *SwapChain { return e.chain }

// FrameBuffers are the render targets of the current generation.
func (e *Engine) FrameBuffers() *FrameBuffers { return e.targets }

// CommandBuffers are the recorded command sequences, one per image.
func (e *Engine) CommandBuffers() *CommandBuffers { return e.cmds }

// FrameSync holds the in-flight slots, which live as long as the engine.
func (e *Engine) FrameSync() *FrameSync { return e.sync }
