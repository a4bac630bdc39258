package simgpu

import "sync"

// Window is an in-memory surface provider.
type Window struct {
	mu      sync.Mutex
	width   int
	height  int
	resized bool
	closed  bool
	resets  int
}

func NewWindow(width, height int) *Window {
	return &Window{width: width, height: height}
}

// SetSize changes the drawable size and raises the resized flag, like a
// framebuffer-size callback would.
func (w *Window) SetSize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width, w.height = width, height
	w.resized = true
}

func (w *Window) FramebufferSize() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *Window) Resized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resized
}

// ResetResize clears the resized flag and counts the call.
func (w *Window) ResetResize() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resized = false
	w.resets++
}

// Resets is the number of ResetResize calls so far.
func (w *Window) Resets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resets
}

func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// PollEvents does nothing; there is no event source.
func (w *Window) PollEvents() {}

func (w *Window) Info() string { return "simgpu window" }

// WaitEvents does not block.
func (w *Window) WaitEvents() {}
