package render_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
	"swapline/src/render/simgpu"
)

type stubShaders struct{ err error }

func (s stubShaders) Shaders() (render.ShaderSet, error) {
	if s.err != nil {
		return render.ShaderSet{}, s.err
	}
	return render.ShaderSet{Vertex: []byte{3, 2, 35, 7}, Fragment: []byte{3, 2, 35, 7}}, nil
}

type harness struct {
	gpu *simgpu.GPU
	win *simgpu.Window
	eng *render.Engine
}

func newHarness(t *testing.T, frames int, opts ...simgpu.Option) *harness {
	t.Helper()
	win := simgpu.NewWindow(800, 600)
	gpu := simgpu.New(win, opts...)
	eng, err := newEngine(gpu, win, frames)
	require.NoError(t, err)
	t.Cleanup(func() {
		eng.Close()
		gpu.Close()
	})
	return &harness{gpu: gpu, win: win, eng: eng}
}

func newEngine(gpu *simgpu.GPU, win *simgpu.Window, frames int) (*render.Engine, error) {
	return render.NewEngine(render.Options{
		Device:         gpu,
		Window:         win,
		Shaders:        stubShaders{},
		Geometry:       &render.StaticGeometry{Count: 3},
		FramesInFlight: frames,
	})
}

func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, h.eng.Tick())
	}
}

func TestEngineSteadyState(t *testing.T) {
	h := newHarness(t, 2)

	cfg := h.eng.SwapChain().Config()
	assert.Equal(t, uint32(3), cfg.ImageCount)
	assert.Equal(t, render.Extent{Width: 800, Height: 600}, cfg.Extent)
	assert.Equal(t, render.PreferredSurfaceFormat, cfg.Format)
	assert.Equal(t, vulkan.PresentModeMailbox, cfg.PresentMode)
	assert.Equal(t, 2, h.eng.InFlightMax())
	assert.Equal(t, 2, h.eng.FrameSync().Len())
	assert.Equal(t, 3, h.eng.FrameBuffers().Len())
	assert.Equal(t, 3, h.eng.CommandBuffers().Len())

	for i := 0; i < 10; i++ {
		require.Equal(t, i%2, h.eng.CurrentFrame())
		require.NoError(t, h.eng.Tick())
	}
	assert.Equal(t, 10, h.gpu.Submissions())
	assert.Equal(t, 0, h.eng.Recreations())
	assert.Equal(t, 1, h.eng.Generation())
	assert.Equal(t, 0, h.win.Resets())
}

func TestEngineResize(t *testing.T) {
	h := newHarness(t, 2)
	h.tick(t, 3)
	frame := h.eng.CurrentFrame()

	h.win.SetSize(1024, 768)
	require.NoError(t, h.eng.Tick())

	// The frame was presented, then the chain was rebuilt.
	assert.Equal(t, 4, h.gpu.Submissions())
	assert.Equal(t, frame, h.eng.CurrentFrame())
	assert.Equal(t, 1, h.eng.Recreations())
	assert.Equal(t, 2, h.eng.Generation())
	assert.Equal(t, 1, h.win.Resets())
	assert.False(t, h.win.Resized())
	assert.Equal(t, render.Extent{Width: 1024, Height: 768}, h.eng.SwapChain().Extent())

	info, ok := h.gpu.SwapchainInfo()
	require.True(t, ok)
	assert.Equal(t, render.Extent{Width: 1024, Height: 768}, info.Extent)

	h.tick(t, 4)
	assert.Equal(t, 8, h.gpu.Submissions())
	assert.Equal(t, 1, h.eng.Recreations())
}

func TestEngineRecreatedTargetsMatchChain(t *testing.T) {
	h := newHarness(t, 2)
	h.win.SetSize(320, 200)
	require.NoError(t, h.eng.Recreate())

	chain := h.eng.SwapChain()
	cmds := h.eng.CommandBuffers()
	require.Equal(t, chain.Len(), h.eng.FrameBuffers().Len())
	require.Equal(t, chain.Len(), cmds.Len())
	for i := 0; i < cmds.Len(); i++ {
		d, ok := h.gpu.DrawInfo(cmds.Get(i))
		require.True(t, ok)
		assert.Equal(t, h.eng.FrameBuffers().Get(i), d.Framebuffer)
		assert.Equal(t, chain.Extent(), d.Extent)
		assert.Equal(t, uint32(3), d.VertexCount)
	}
	assert.Equal(t, 1, h.gpu.Live(simgpu.KindSwapchain))
	assert.Equal(t, 1, h.gpu.Live(simgpu.KindPipeline))
	assert.Equal(t, 1, h.gpu.Live(simgpu.KindRenderPass))
	assert.Equal(t, chain.Len(), h.gpu.Live(simgpu.KindView))
	assert.Equal(t, chain.Len(), h.gpu.Live(simgpu.KindFramebuffer))
	assert.Equal(t, chain.Len(), h.gpu.Live(simgpu.KindCommandBuffer))
	assert.Equal(t, 1, h.gpu.PoolResets())
}

func TestEngineRecreateSameSurface(t *testing.T) {
	h := newHarness(t, 2)
	before := h.eng.SwapChain().Config()
	require.NoError(t, h.eng.Recreate())
	require.NoError(t, h.eng.Recreate())
	assert.Equal(t, before, h.eng.SwapChain().Config())
	assert.Equal(t, 2, h.eng.InFlightMax())
	assert.Equal(t, 2, h.win.Resets())
}

func TestEngineAcquireResults(t *testing.T) {
	for idx, tc := range []struct {
		name        string
		result      vulkan.Result
		submissions int
		recreations int
		advance     bool
	}{
		{"stale", vulkan.ErrorOutOfDate, 0, 1, false},
		{"suboptimal", vulkan.Suboptimal, 1, 1, false},
		{"timeout", vulkan.Timeout, 0, 0, false},
		{"not ready", vulkan.NotReady, 0, 0, false},
		{"success", vulkan.Success, 1, 0, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 2)
			h.gpu.PushAcquireResults(tc.result)
			require.NoError(t, h.eng.Tick(), "%d", idx)

			assert.Equal(t, tc.submissions, h.gpu.Submissions(), "%d", idx)
			assert.Equal(t, tc.recreations, h.eng.Recreations(), "%d", idx)
			assert.Equal(t, tc.recreations, h.win.Resets(), "%d", idx)
			want := 0
			if tc.advance {
				want = 1
			}
			assert.Equal(t, want, h.eng.CurrentFrame(), "%d", idx)

			h.tick(t, 2)
			assert.Equal(t, tc.submissions+2, h.gpu.Submissions(), "%d", idx)
		})
	}
}

func TestEnginePresentResults(t *testing.T) {
	for idx, tc := range []struct {
		name        string
		result      vulkan.Result
		recreations int
	}{
		{"stale", vulkan.ErrorOutOfDate, 1},
		{"suboptimal", vulkan.Suboptimal, 1},
		{"success", vulkan.Success, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 2)
			h.gpu.PushPresentResults(tc.result)
			require.NoError(t, h.eng.Tick(), "%d", idx)
			assert.Equal(t, 1, h.gpu.Submissions(), "%d", idx)
			assert.Equal(t, tc.recreations, h.eng.Recreations(), "%d", idx)
			assert.Equal(t, 1-tc.recreations, h.eng.CurrentFrame(), "%d", idx)
		})
	}
}

func TestEngineStaleAndResizedResetsOnce(t *testing.T) {
	h := newHarness(t, 2)
	h.win.SetSize(640, 480)
	h.gpu.PushAcquireResults(vulkan.ErrorOutOfDate)
	require.NoError(t, h.eng.Tick())
	assert.Equal(t, 1, h.win.Resets())
	assert.Equal(t, 1, h.eng.Recreations())

	// Nothing left to react to.
	require.NoError(t, h.eng.Tick())
	assert.Equal(t, 1, h.win.Resets())
	assert.Equal(t, 1, h.eng.Recreations())
}

func TestEngineStaleOnResize(t *testing.T) {
	h := newHarness(t, 2, simgpu.WithStaleOnResize())
	h.tick(t, 1)
	h.win.SetSize(640, 480)
	require.NoError(t, h.eng.Tick())
	assert.Equal(t, 1, h.gpu.Submissions())
	assert.Equal(t, 1, h.eng.Recreations())
	h.tick(t, 1)
	assert.Equal(t, 2, h.gpu.Submissions())
}

func TestEngineImageCountLimit(t *testing.T) {
	caps := simgpu.DefaultCapabilities
	caps.MaxImageCount = 2
	h := newHarness(t, 2, simgpu.WithCapabilities(caps))

	assert.Equal(t, uint32(2), h.eng.SwapChain().Config().ImageCount)
	assert.Equal(t, 1, h.eng.InFlightMax())
	for i := 0; i < 4; i++ {
		require.Equal(t, 0, h.eng.CurrentFrame())
		require.NoError(t, h.eng.Tick())
	}
	assert.Equal(t, 4, h.gpu.Submissions())
}

func TestEngineInFlightMaxNeverGrows(t *testing.T) {
	h := newHarness(t, 3)
	assert.Equal(t, uint32(4), h.eng.SwapChain().Config().ImageCount)
	assert.Equal(t, 3, h.eng.InFlightMax())
	h.tick(t, 2)
	require.Equal(t, 2, h.eng.CurrentFrame())

	limited := simgpu.DefaultCapabilities
	limited.MaxImageCount = 2
	h.gpu.SetCapabilities(limited)
	require.NoError(t, h.eng.Recreate())
	assert.Equal(t, 1, h.eng.InFlightMax())
	assert.Equal(t, 0, h.eng.CurrentFrame())
	assert.Equal(t, 3, h.eng.FrameSync().Len())

	h.gpu.SetCapabilities(simgpu.DefaultCapabilities)
	require.NoError(t, h.eng.Recreate())
	assert.Equal(t, 1, h.eng.InFlightMax())
	assert.Equal(t, uint32(4), h.eng.SwapChain().Config().ImageCount)

	h.tick(t, 3)
	assert.Equal(t, 0, h.eng.CurrentFrame())
}

func TestEngineZeroSizedDrawable(t *testing.T) {
	h := newHarness(t, 2)
	h.tick(t, 1)

	h.win.SetSize(0, 0)
	require.NoError(t, h.eng.Tick())
	assert.True(t, h.eng.Pending())
	assert.False(t, h.eng.SwapChain().Created())
	assert.Equal(t, 0, h.gpu.Live(simgpu.KindSwapchain))
	assert.Equal(t, 0, h.gpu.Live(simgpu.KindFramebuffer))
	assert.Equal(t, 0, h.gpu.Live(simgpu.KindCommandBuffer))
	submitted := h.gpu.Submissions()
	frame := h.eng.CurrentFrame()

	h.tick(t, 3)
	assert.True(t, h.eng.Pending())
	assert.Equal(t, submitted, h.gpu.Submissions())
	assert.Equal(t, frame, h.eng.CurrentFrame())

	h.win.SetSize(640, 480)
	require.NoError(t, h.eng.Tick())
	assert.False(t, h.eng.Pending())
	assert.True(t, h.eng.SwapChain().Created())
	assert.Equal(t, render.Extent{Width: 640, Height: 480}, h.eng.SwapChain().Extent())
	assert.Equal(t, submitted+1, h.gpu.Submissions())
}

func TestEngineFenceBoundsFramesInFlight(t *testing.T) {
	h := newHarness(t, 2, simgpu.WithLatency(2*time.Millisecond))
	h.tick(t, 12)

	completed := 0
	blocked := 0
	for _, e := range h.gpu.Events() {
		switch e.Kind {
		case simgpu.EventComplete:
			completed++
		case simgpu.EventWaitBlocked:
			blocked++
		case simgpu.EventSubmit:
			require.GreaterOrEqual(t, completed, e.Submission-h.eng.InFlightMax(), "submission %d", e.Submission)
		}
	}
	assert.Equal(t, 12, h.gpu.Submissions())
	assert.Greater(t, blocked, 0)
}

func TestEngineClose(t *testing.T) {
	win := simgpu.NewWindow(800, 600)
	gpu := simgpu.New(win, simgpu.WithLatency(time.Millisecond))
	eng, err := newEngine(gpu, win, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, eng.Tick())
	}

	eng.Close()
	eng.Close()
	assert.Equal(t, 0, gpu.LiveTotal())
	assert.Equal(t, uint64(5), eng.Stats().Count)
	assert.True(t, errors.Is(eng.Tick(), render.ErrClosed))
	assert.True(t, errors.Is(eng.Recreate(), render.ErrClosed))
}

func TestEngineErrors(t *testing.T) {
	for idx, tc := range []struct {
		name  string
		setup func(h *harness)
		kind  error
		code  vulkan.Result
	}{
		{"submit", func(h *harness) { h.gpu.Fail(simgpu.OpQueueSubmit, vulkan.ErrorDeviceLost) }, render.ErrSubmission, vulkan.ErrorDeviceLost},
		{"fence wait", func(h *harness) { h.gpu.Fail(simgpu.OpWaitForFence, vulkan.ErrorDeviceLost) }, render.ErrSynchronization, vulkan.ErrorDeviceLost},
		{"fence reset", func(h *harness) { h.gpu.Fail(simgpu.OpResetFence, vulkan.ErrorOutOfDeviceMemory) }, render.ErrSynchronization, vulkan.ErrorOutOfDeviceMemory},
		{"acquire", func(h *harness) { h.gpu.PushAcquireResults(vulkan.ErrorSurfaceLost) }, render.ErrPresentation, vulkan.ErrorSurfaceLost},
		{"present", func(h *harness) { h.gpu.PushPresentResults(vulkan.ErrorSurfaceLost) }, render.ErrPresentation, vulkan.ErrorSurfaceLost},
		{"idle", func(h *harness) {
			h.gpu.PushAcquireResults(vulkan.ErrorOutOfDate)
			h.gpu.Fail(simgpu.OpWaitIdle, vulkan.ErrorDeviceLost)
		}, render.ErrSynchronization, vulkan.ErrorDeviceLost},
		{"recreate pipeline", func(h *harness) {
			h.gpu.PushAcquireResults(vulkan.ErrorOutOfDate)
			h.gpu.Fail(simgpu.OpCreatePipeline, vulkan.ErrorOutOfHostMemory)
		}, render.ErrPresentationSetup, vulkan.ErrorOutOfHostMemory},
		{"recreate views", func(h *harness) {
			h.gpu.PushAcquireResults(vulkan.ErrorOutOfDate)
			h.gpu.Fail(simgpu.OpCreateImageView, vulkan.ErrorOutOfHostMemory)
		}, render.ErrPresentationSetup, vulkan.ErrorOutOfHostMemory},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 2)
			tc.setup(h)
			err := h.eng.Tick()
			require.Error(t, err, "%d", idx)
			assert.True(t, errors.Is(err, tc.kind), "%d: %v", idx, err)
			assert.Equal(t, tc.code, render.ResultOf(err), "%d", idx)

			var re *render.Error
			require.True(t, errors.As(err, &re), "%d", idx)
			assert.NotEmpty(t, re.Op, "%d", idx)
		})
	}
}

func TestEngineResizeAbsorbsPresentFailure(t *testing.T) {
	h := newHarness(t, 2)
	h.win.SetSize(640, 480)
	h.gpu.PushPresentResults(vulkan.ErrorSurfaceLost)
	require.NoError(t, h.eng.Tick())
	assert.Equal(t, 1, h.win.Resets())
	assert.Equal(t, 1, h.eng.Recreations())
	assert.Equal(t, 0, h.eng.CurrentFrame())
	assert.Equal(t, render.Extent{Width: 640, Height: 480}, h.eng.SwapChain().Extent())

	// Without a resize the same result is fatal.
	h.gpu.PushPresentResults(vulkan.ErrorSurfaceLost)
	err := h.eng.Tick()
	require.True(t, errors.Is(err, render.ErrPresentation))
	assert.Equal(t, vulkan.ErrorSurfaceLost, render.ResultOf(err))
	assert.Equal(t, 1, h.eng.Recreations())
}

func TestEngineSuboptimalPresentAndResize(t *testing.T) {
	h := newHarness(t, 2)
	h.win.SetSize(640, 480)
	h.gpu.PushPresentResults(vulkan.Suboptimal)
	require.NoError(t, h.eng.Tick())
	assert.Equal(t, 1, h.win.Resets())
	assert.Equal(t, 1, h.eng.Recreations())
	assert.Equal(t, 0, h.eng.CurrentFrame())
	assert.Equal(t, render.Extent{Width: 640, Height: 480}, h.eng.SwapChain().Extent())
	assert.False(t, h.win.Resized())

	h.tick(t, 1)
	assert.Equal(t, 1, h.win.Resets())
	assert.Equal(t, 1, h.eng.Recreations())
	assert.Equal(t, 1, h.eng.CurrentFrame())
}

func TestNewEngineErrors(t *testing.T) {
	for idx, tc := range []struct {
		name string
		opts []simgpu.Option
		fail simgpu.Op
		kind error
	}{
		{"no formats", []simgpu.Option{simgpu.WithFormats()}, "", render.ErrPresentationSetup},
		{"no present modes", []simgpu.Option{simgpu.WithPresentModes()}, "", render.ErrPresentationSetup},
		{"one image", []simgpu.Option{simgpu.WithCapabilities(render.SurfaceCapabilities{
			MinImageCount:  1,
			MaxImageCount:  1,
			CurrentExtent:  render.Extent{Width: 800, Height: 600},
			MaxImageExtent: render.Extent{Width: 800, Height: 600},
		})}, "", render.ErrPresentationSetup},
		{"capabilities", nil, simgpu.OpSurfaceCapabilities, render.ErrPresentationSetup},
		{"swap chain", nil, simgpu.OpCreateSwapchain, render.ErrPresentationSetup},
		{"render pass", nil, simgpu.OpCreateRenderPass, render.ErrPresentationSetup},
		{"frame buffer", nil, simgpu.OpCreateFramebuffer, render.ErrPresentationSetup},
		{"record", nil, simgpu.OpRecordDraw, render.ErrPresentationSetup},
		{"semaphore", nil, simgpu.OpCreateSemaphore, render.ErrSynchronization},
		{"fence", nil, simgpu.OpCreateFence, render.ErrSynchronization},
	} {
		t.Run(tc.name, func(t *testing.T) {
			win := simgpu.NewWindow(800, 600)
			gpu := simgpu.New(win, tc.opts...)
			if tc.fail != "" {
				gpu.Fail(tc.fail, vulkan.ErrorOutOfHostMemory)
			}
			eng, err := newEngine(gpu, win, 2)
			require.Nil(t, eng, "%d", idx)
			assert.True(t, errors.Is(err, tc.kind), "%d: %v", idx, err)
			// Nothing is left behind.
			assert.Equal(t, 0, gpu.LiveTotal(), "%d", idx)
		})
	}
}

func TestNewEngineShaderFailure(t *testing.T) {
	win := simgpu.NewWindow(800, 600)
	gpu := simgpu.New(win)
	_, err := render.NewEngine(render.Options{
		Device:   gpu,
		Window:   win,
		Shaders:  stubShaders{err: errors.New("no such file")},
		Geometry: &render.StaticGeometry{Count: 3},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, render.ErrPresentationSetup))
	assert.Contains(t, err.Error(), "no such file")
	assert.Equal(t, 0, gpu.LiveTotal())
}

func TestNewEngineMissingOptions(t *testing.T) {
	_, err := render.NewEngine(render.Options{})
	require.Error(t, err)
}
