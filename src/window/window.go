// Package window is the GLFW surface provider.
package window

import (
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// waitTimeout bounds WaitEvents in seconds so the frame loop still sees
// cancellation while minimized.
const waitTimeout = 0.1

// Window owns a GLFW window without a client API. GLFW must be used from
// the main thread, so New, PollEvents, WaitEvents and Destroy must be
// called there.
type Window struct {
	win     *glfw.Window
	resized atomic.Bool
}

var _ render.Window = (*Window)(nil)

func New(title string, width, height int) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "glfw init")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("window: glfw reports no vulkan loader")
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "create window")
	}
	w := &Window{win: win}
	win.SetFramebufferSizeCallback(func(*glfw.Window, int, int) {
		w.resized.Store(true)
	})
	render.Logger().Debug("window created", "title", title, "width", width, "height", height)
	return w, nil
}

func (w *Window) FramebufferSize() (int, int) { return w.win.GetFramebufferSize() }

func (w *Window) Resized() bool { return w.resized.Load() }

func (w *Window) ResetResize() { w.resized.Store(false) }

func (w *Window) Closed() bool { return w.win.ShouldClose() }

func (w *Window) Close() { w.win.SetShouldClose(true) }

func (w *Window) PollEvents() { glfw.PollEvents() }

// WaitEvents blocks until an event arrives or waitTimeout passes, e.g.
// while minimized.
func (w *Window) WaitEvents() { glfw.WaitEventsTimeout(waitTimeout) }

func (w *Window) ProcAddr() unsafe.Pointer { return glfw.GetVulkanGetInstanceProcAddress() }

func (w *Window) RequiredInstanceExtensions() []string {
	return w.win.GetRequiredInstanceExtensions()
}

func (w *Window) CreateSurface(instance vulkan.Instance) (vulkan.Surface, error) {
	ptr, err := w.win.CreateWindowSurface(instance, nil)
	if err != nil {
		return vulkan.NullSurface, errors.Wrap(err, "create window surface")
	}
	return vulkan.SurfaceFromPointer(ptr), nil
}

// Info names the window system for the startup banner.
func (w *Window) Info() string { return "GLFW " + glfw.GetVersionString() }

// Destroy closes the window and terminates GLFW.
func (w *Window) Destroy() {
	if w.win != nil {
		w.win.Destroy()
		w.win = nil
	}
	glfw.Terminate()
}
