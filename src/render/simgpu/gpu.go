// Package simgpu is an in-memory GPU and window for driving the render
// engine without a display. Submitted work completes, in order, a fixed
// latency after submission; every call is logged as an Event.
package simgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// Kind is the type of a simulated object.
type Kind int

const (
	KindSwapchain Kind = iota + 1
	KindImage
	KindView
	KindRenderPass
	KindPipeline
	KindFramebuffer
	KindCommandBuffer
	KindSemaphore
	KindFence
	KindBuffer
)

var kindNames = [...]string{
	KindSwapchain:     "swapchain",
	KindImage:         "image",
	KindView:          "image view",
	KindRenderPass:    "render pass",
	KindPipeline:      "pipeline",
	KindFramebuffer:   "framebuffer",
	KindCommandBuffer: "command buffer",
	KindSemaphore:     "semaphore",
	KindFence:         "fence",
	KindBuffer:        "buffer",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Op names a device call that can be made to fail.
type Op string

const (
	OpSurfaceCapabilities    Op = "SurfaceCapabilities"
	OpSurfaceFormats         Op = "SurfaceFormats"
	OpPresentModes           Op = "PresentModes"
	OpCreateSwapchain        Op = "CreateSwapchain"
	OpCreateImageView        Op = "CreateImageView"
	OpCreateRenderPass       Op = "CreateRenderPass"
	OpCreatePipeline         Op = "CreatePipeline"
	OpCreateFramebuffer      Op = "CreateFramebuffer"
	OpAllocateCommandBuffers Op = "AllocateCommandBuffers"
	OpRecordDraw             Op = "RecordDraw"
	OpCreateSemaphore        Op = "CreateSemaphore"
	OpCreateFence            Op = "CreateFence"
	OpWaitForFence           Op = "WaitForFence"
	OpResetFence             Op = "ResetFence"
	OpQueueSubmit            Op = "QueueSubmit"
	OpWaitIdle               Op = "WaitIdle"
)

type object struct {
	kind Kind

	// swapchain
	info   render.SwapchainInfo
	images []render.Handle
	next   uint32

	// fence, semaphore
	signaled bool
	pending  int

	// command buffer
	draw *render.DrawInfo
}

type submission struct {
	n     int
	fence render.Handle
	due   time.Time
}

// GPU implements render.Device.
type GPU struct {
	mu   sync.Mutex
	cond *sync.Cond
	win  *Window

	caps          render.SurfaceCapabilities
	formats       []render.SurfaceFormat
	modes         []vulkan.PresentMode
	latency       time.Duration
	staleOnResize bool
	followWindow  bool

	last  render.Handle
	objs  map[render.Handle]*object
	queue []submission

	running     bool
	submissions int
	events      []Event

	acquireResults []vulkan.Result
	presentResults []vulkan.Result
	failures       map[Op]vulkan.Result
	poolResets     int
}

type Option func(g *GPU)

// WithCapabilities replaces the surface capabilities.
func WithCapabilities(caps render.SurfaceCapabilities) Option {
	return func(g *GPU) { g.caps = caps }
}

func WithFormats(formats ...render.SurfaceFormat) Option {
	return func(g *GPU) { g.formats = formats }
}

func WithPresentModes(modes ...vulkan.PresentMode) Option {
	return func(g *GPU) { g.modes = modes }
}

// WithLatency sets how long submitted work takes to complete.
func WithLatency(d time.Duration) Option {
	return func(g *GPU) { g.latency = d }
}

// WithStaleOnResize makes acquisition report an out of date chain when
// the window size no longer matches the chain extent.
func WithStaleOnResize() Option {
	return func(g *GPU) { g.staleOnResize = true }
}

// WithCurrentExtent makes the surface report the window size as its
// current extent instead of leaving it undefined.
func WithCurrentExtent() Option {
	return func(g *GPU) { g.followWindow = true }
}

// DefaultCapabilities is an unbounded surface with minImageCount 2 and
// an undefined current extent.
var DefaultCapabilities = render.SurfaceCapabilities{
	MinImageCount:  2,
	MaxImageCount:  0,
	CurrentExtent:  render.Extent{Width: render.UndefinedExtent, Height: render.UndefinedExtent},
	MinImageExtent: render.Extent{Width: 1, Height: 1},
	MaxImageExtent: render.Extent{Width: 4096, Height: 4096},
}

var (
	_ render.Device = (*GPU)(nil)
	_ render.Window = (*Window)(nil)
)

func New(win *Window, opts ...Option) *GPU {
	g := &GPU{
		win:      win,
		caps:     DefaultCapabilities,
		formats:  []render.SurfaceFormat{render.PreferredSurfaceFormat},
		modes:    []vulkan.PresentMode{vulkan.PresentModeFifo, vulkan.PresentModeMailbox},
		objs:     make(map[render.Handle]*object),
		failures: make(map[Op]vulkan.Result),
	}
	g.cond = sync.NewCond(&g.mu)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetCapabilities replaces the surface capabilities reported from now on.
func (g *GPU) SetCapabilities(caps render.SurfaceCapabilities) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.caps = caps
}

// Fail makes the next call of op fail with res.
func (g *GPU) Fail(op Op, res vulkan.Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = res
}

// PushAcquireResults queues results for the next acquisitions. When the
// queue is empty acquisition succeeds.
func (g *GPU) PushAcquireResults(res ...vulkan.Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.acquireResults = append(g.acquireResults, res...)
}

// PushPresentResults queues results for the next presentations.
func (g *GPU) PushPresentResults(res ...vulkan.Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.presentResults = append(g.presentResults, res...)
}

// Events returns a copy of the log.
func (g *GPU) Events() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Event(nil), g.events...)
}

func (g *GPU) ClearEvents() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = nil
}

// Live counts the live objects of kind k.
func (g *GPU) Live(k Kind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, o := range g.objs {
		if o.kind == k {
			n++
		}
	}
	return n
}

// LiveTotal counts every live object.
func (g *GPU) LiveTotal() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.objs)
}

func (g *GPU) Submissions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submissions
}

func (g *GPU) PoolResets() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.poolResets
}

// SwapchainInfo returns what the live swap chain was created with.
func (g *GPU) SwapchainInfo() (render.SwapchainInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, o := range g.objs {
		if o.kind == KindSwapchain {
			return o.info, true
		}
	}
	return render.SwapchainInfo{}, false
}

func (g *GPU) log(e Event) { g.events = append(g.events, e) }

func (g *GPU) fail(op Op) (vulkan.Result, bool) {
	res, ok := g.failures[op]
	if ok {
		delete(g.failures, op)
	}
	return res, ok
}

func (g *GPU) add(o *object) render.Handle {
	g.last++
	g.objs[g.last] = o
	return g.last
}

func (g *GPU) get(h render.Handle, k Kind) *object {
	o, ok := g.objs[h]
	if !ok || o.kind != k {
		panic(fmt.Sprintf("simgpu: invalid %v handle %d", k, h))
	}
	return o
}

func (g *GPU) remove(h render.Handle, k Kind) {
	g.get(h, k)
	delete(g.objs, h)
}

func (g *GPU) create(op Op, k Kind) (render.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.fail(op); ok {
		return render.NullHandle, render.NewError(res)
	}
	return g.add(&object{kind: k}), nil
}

func (g *GPU) destroy(h render.Handle, k Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remove(h, k)
}

func (g *GPU) SurfaceCapabilities() (render.SurfaceCapabilities, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.fail(OpSurfaceCapabilities); ok {
		return render.SurfaceCapabilities{}, render.NewError(res)
	}
	caps := g.caps
	if g.followWindow && g.win != nil {
		w, h := g.win.FramebufferSize()
		caps.CurrentExtent = render.Extent{Width: uint32(w), Height: uint32(h)}
	}
	return caps, nil
}

func (g *GPU) SurfaceFormats() ([]render.SurfaceFormat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.fail(OpSurfaceFormats); ok {
		return nil, render.NewError(res)
	}
	return append([]render.SurfaceFormat(nil), g.formats...), nil
}

func (g *GPU) PresentModes() ([]vulkan.PresentMode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.fail(OpPresentModes); ok {
		return nil, render.NewError(res)
	}
	return append([]vulkan.PresentMode(nil), g.modes...), nil
}

func (g *GPU) CreateSwapchain(info *render.SwapchainInfo) (render.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.fail(OpCreateSwapchain); ok {
		return render.NullHandle, render.NewError(res)
	}
	for _, o := range g.objs {
		if o.kind == KindSwapchain {
			panic("simgpu: surface already has a swap chain")
		}
	}
	sc := &object{kind: KindSwapchain, info: *info}
	for i := uint32(0); i < info.ImageCount; i++ {
		sc.images = append(sc.images, g.add(&object{kind: KindImage}))
	}
	h := g.add(sc)
	g.log(Event{Kind: EventSwapchainCreated, Handle: h})
	return h, nil
}

func (g *GPU) SwapchainImages(swapchain render.Handle) ([]render.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]render.Handle(nil), g.get(swapchain, KindSwapchain).images...), nil
}

func (g *GPU) DestroySwapchain(swapchain render.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sc := g.get(swapchain, KindSwapchain)
	for _, img := range sc.images {
		g.remove(img, KindImage)
	}
	delete(g.objs, swapchain)
	g.log(Event{Kind: EventSwapchainDestroyed, Handle: swapchain})
}

func (g *GPU) CreateImageView(image render.Handle, format vulkan.Format) (render.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.get(image, KindImage)
	if res, ok := g.fail(OpCreateImageView); ok {
		return render.NullHandle, render.NewError(res)
	}
	return g.add(&object{kind: KindView}), nil
}

func (g *GPU) DestroyImageView(view render.Handle) { g.destroy(view, KindView) }

func (g *GPU) AcquireNextImage(swapchain render.Handle, timeout time.Duration, signal render.Handle) (uint32, vulkan.Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sc := g.get(swapchain, KindSwapchain)
	sem := g.get(signal, KindSemaphore)

	res := vulkan.Success
	if len(g.acquireResults) > 0 {
		res = g.acquireResults[0]
		g.acquireResults = g.acquireResults[1:]
	}
	if res == vulkan.Success && g.staleOnResize && g.win != nil {
		w, h := g.win.FramebufferSize()
		if uint32(w) != sc.info.Extent.Width || uint32(h) != sc.info.Extent.Height {
			res = vulkan.ErrorOutOfDate
		}
	}
	if res != vulkan.Success && res != vulkan.Suboptimal {
		g.log(Event{Kind: EventAcquire, Handle: signal, Image: ^uint32(0)})
		return 0, res
	}
	if sem.signaled {
		panic("simgpu: acquire signals a semaphore that is already signaled")
	}
	sem.signaled = true
	idx := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	g.log(Event{Kind: EventAcquire, Handle: signal, Image: idx})
	return idx, res
}

func (g *GPU) QueuePresent(info *render.PresentInfo) vulkan.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	sc := g.get(info.Swapchain, KindSwapchain)
	if int(info.Image) >= len(sc.images) {
		panic("simgpu: present of an image the swap chain does not have")
	}
	// The wait happens whatever the outcome.
	sem := g.get(info.Wait, KindSemaphore)
	if !sem.signaled {
		panic("simgpu: present waits on a semaphore nothing signals")
	}
	sem.signaled = false

	res := vulkan.Success
	if len(g.presentResults) > 0 {
		res = g.presentResults[0]
		g.presentResults = g.presentResults[1:]
	}
	g.log(Event{Kind: EventPresent, Handle: info.Swapchain, Image: info.Image})
	return res
}

func (g *GPU) CreateSemaphore() (render.Handle, error) {
	return g.create(OpCreateSemaphore, KindSemaphore)
}

func (g *GPU) DestroySemaphore(semaphore render.Handle) { g.destroy(semaphore, KindSemaphore) }

func (g *GPU) CreateFence(signaled bool) (render.Handle, error) {
	h, err := g.create(OpCreateFence, KindFence)
	if err != nil {
		return h, err
	}
	g.mu.Lock()
	g.objs[h].signaled = signaled
	g.mu.Unlock()
	return h, nil
}

func (g *GPU) DestroyFence(fence render.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.get(fence, KindFence).pending > 0 {
		panic("simgpu: fence destroyed while work is pending")
	}
	delete(g.objs, fence)
}

func (g *GPU) WaitForFence(fence render.Handle, timeout time.Duration) vulkan.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	f := g.get(fence, KindFence)
	if res, ok := g.fail(OpWaitForFence); ok {
		return res
	}
	if f.signaled {
		g.log(Event{Kind: EventWait, Handle: fence})
		return vulkan.Success
	}
	if f.pending == 0 {
		// Nothing will ever signal it.
		return vulkan.ErrorDeviceLost
	}
	g.log(Event{Kind: EventWaitBlocked, Handle: fence})
	expired := false
	if timeout != render.NoTimeout {
		t := time.AfterFunc(timeout, func() {
			g.mu.Lock()
			expired = true
			g.cond.Broadcast()
			g.mu.Unlock()
		})
		defer t.Stop()
	}
	for !f.signaled {
		if expired {
			return vulkan.Timeout
		}
		g.cond.Wait()
	}
	g.log(Event{Kind: EventWaitDone, Handle: fence})
	return vulkan.Success
}

func (g *GPU) ResetFence(fence render.Handle) vulkan.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	f := g.get(fence, KindFence)
	if res, ok := g.fail(OpResetFence); ok {
		return res
	}
	if f.pending > 0 {
		panic("simgpu: fence reset while work is pending")
	}
	f.signaled = false
	g.log(Event{Kind: EventResetFence, Handle: fence})
	return vulkan.Success
}

// WaitIdle blocks until every submission has completed.
func (g *GPU) WaitIdle() vulkan.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.fail(OpWaitIdle); ok {
		return res
	}
	for len(g.queue) > 0 {
		g.cond.Wait()
	}
	g.log(Event{Kind: EventIdle})
	return vulkan.Success
}

func (g *GPU) CreateRenderPass(format vulkan.Format) (render.Handle, error) {
	return g.create(OpCreateRenderPass, KindRenderPass)
}

func (g *GPU) DestroyRenderPass(pass render.Handle) { g.destroy(pass, KindRenderPass) }

func (g *GPU) CreatePipeline(info *render.PipelineInfo) (render.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.get(info.RenderPass, KindRenderPass)
	if info.Extent.IsZero() {
		panic("simgpu: pipeline with an empty viewport")
	}
	if res, ok := g.fail(OpCreatePipeline); ok {
		return render.NullHandle, render.NewError(res)
	}
	return g.add(&object{kind: KindPipeline}), nil
}

func (g *GPU) DestroyPipeline(pipeline render.Handle) { g.destroy(pipeline, KindPipeline) }

func (g *GPU) CreateFramebuffer(info *render.FramebufferInfo) (render.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.get(info.RenderPass, KindRenderPass)
	g.get(info.View, KindView)
	if res, ok := g.fail(OpCreateFramebuffer); ok {
		return render.NullHandle, render.NewError(res)
	}
	return g.add(&object{kind: KindFramebuffer}), nil
}

func (g *GPU) DestroyFramebuffer(framebuffer render.Handle) {
	g.destroy(framebuffer, KindFramebuffer)
}

func (g *GPU) AllocateCommandBuffers(count int) ([]render.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.fail(OpAllocateCommandBuffers); ok {
		return nil, render.NewError(res)
	}
	bufs := make([]render.Handle, count)
	for i := range bufs {
		bufs[i] = g.add(&object{kind: KindCommandBuffer})
	}
	return bufs, nil
}

func (g *GPU) FreeCommandBuffers(buffers []render.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range buffers {
		g.remove(b, KindCommandBuffer)
	}
}

func (g *GPU) ResetCommandPool() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.poolResets++
	return nil
}

func (g *GPU) RecordDraw(buffer render.Handle, info *render.DrawInfo) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb := g.get(buffer, KindCommandBuffer)
	g.get(info.RenderPass, KindRenderPass)
	g.get(info.Framebuffer, KindFramebuffer)
	g.get(info.Pipeline, KindPipeline)
	if info.VertexBuffer != render.NullHandle {
		g.get(info.VertexBuffer, KindBuffer)
	}
	if res, ok := g.fail(OpRecordDraw); ok {
		return render.NewError(res)
	}
	d := *info
	cb.draw = &d
	g.log(Event{Kind: EventRecord, Handle: buffer})
	return nil
}

// DrawInfo returns what a command buffer was recorded with.
func (g *GPU) DrawInfo(buffer render.Handle) (render.DrawInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.objs[buffer]
	if !ok || o.kind != KindCommandBuffer || o.draw == nil {
		return render.DrawInfo{}, false
	}
	return *o.draw, true
}

func (g *GPU) QueueSubmit(info *render.SubmitInfo) vulkan.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb := g.get(info.CommandBuffer, KindCommandBuffer)
	if cb.draw == nil {
		panic("simgpu: submit of a command buffer that was never recorded")
	}
	// Everything the recording references must still exist.
	g.get(cb.draw.Framebuffer, KindFramebuffer)
	g.get(cb.draw.Pipeline, KindPipeline)
	g.get(cb.draw.RenderPass, KindRenderPass)
	fence := g.get(info.Fence, KindFence)
	if res, ok := g.fail(OpQueueSubmit); ok {
		return res
	}
	if fence.signaled || fence.pending > 0 {
		panic("simgpu: submit signals a fence that was not reset")
	}
	wait := g.get(info.Wait, KindSemaphore)
	if !wait.signaled {
		panic("simgpu: submit waits on a semaphore nothing signals")
	}
	wait.signaled = false
	signal := g.get(info.Signal, KindSemaphore)
	if signal.signaled {
		panic("simgpu: submit signals a semaphore that is already signaled")
	}
	signal.signaled = true

	g.submissions++
	fence.pending++
	s := submission{n: g.submissions, fence: info.Fence, due: time.Now().Add(g.latency)}
	g.log(Event{Kind: EventSubmit, Handle: info.Fence, Submission: s.n})
	g.queue = append(g.queue, s)
	if g.latency <= 0 {
		g.completeHead()
		return vulkan.Success
	}
	if !g.running {
		g.running = true
		go g.run()
	}
	return vulkan.Success
}

// run completes queued submissions in order as they fall due.
func (g *GPU) run() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for len(g.queue) > 0 {
		wait := time.Until(g.queue[0].due)
		if wait > 0 {
			g.mu.Unlock()
			time.Sleep(wait)
			g.mu.Lock()
			continue
		}
		g.completeHead()
	}
	g.running = false
}

func (g *GPU) completeHead() {
	s := g.queue[0]
	g.queue = g.queue[1:]
	if f, ok := g.objs[s.fence]; ok {
		f.pending--
		f.signaled = true
	}
	g.log(Event{Kind: EventComplete, Handle: s.fence, Submission: s.n})
	g.cond.Broadcast()
}

// UploadVertices creates a vertex buffer. The content is not kept.
func (g *GPU) UploadVertices(data []byte) (render.Handle, error) {
	if len(data) == 0 {
		return render.NullHandle, render.NewError(vulkan.ErrorInitializationFailed)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.add(&object{kind: KindBuffer}), nil
}

func (g *GPU) DestroyBuffer(buffer render.Handle) { g.destroy(buffer, KindBuffer) }

// Close waits for outstanding work.
func (g *GPU) Close() {
	g.WaitIdle()
}

func (g *GPU) Info() string { return "simgpu" }
