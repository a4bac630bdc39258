package render

import (
	"math"
	"time"

	"github.com/vulkan-go/vulkan"
)

// Handle is an opaque reference to an object owned by a Device.
type Handle uint64

const NullHandle Handle = 0

// UndefinedExtent is the CurrentExtent width a surface reports when the
// swap chain extent is chosen by the application.
const UndefinedExtent = math.MaxUint32

// NoTimeout makes a wait block until it is satisfied.
const NoTimeout = time.Duration(math.MaxInt64)

// Extent is a size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) IsZero() bool { return e.Width == 0 || e.Height == 0 }

type SurfaceFormat struct {
	Format     vulkan.Format
	ColorSpace vulkan.ColorSpace
}

// SurfaceCapabilities is the subset of the surface capabilities the
// swap chain is derived from. MaxImageCount 0 means unbounded.
type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32
	CurrentExtent  Extent
	MinImageExtent Extent
	MaxImageExtent Extent
}

type SwapchainInfo struct {
	ImageCount  uint32
	Format      SurfaceFormat
	PresentMode vulkan.PresentMode
	Extent      Extent
}

type PipelineInfo struct {
	RenderPass Handle
	Extent     Extent
	Shaders    ShaderSet
	Layout     VertexLayout
}

type FramebufferInfo struct {
	RenderPass Handle
	View       Handle
	Extent     Extent
}

// DrawInfo is everything a pre-recorded command sequence references.
type DrawInfo struct {
	RenderPass   Handle
	Framebuffer  Handle
	Extent       Extent
	Pipeline     Handle
	VertexBuffer Handle
	VertexCount  uint32
}

// SubmitInfo gates one command sequence on Wait and signals both Signal
// and Fence on completion.
type SubmitInfo struct {
	CommandBuffer Handle
	Wait          Handle
	Signal        Handle
	Fence         Handle
}

type PresentInfo struct {
	Swapchain Handle
	Image     uint32
	Wait      Handle
}

// SurfaceQuerier reports what the presentation surface supports.
type SurfaceQuerier interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	PresentModes() ([]vulkan.PresentMode, error)
}

// SwapchainDevice creates presentable images and moves them between the
// application and the presentation engine.
type SwapchainDevice interface {
	CreateSwapchain(info *SwapchainInfo) (Handle, error)
	SwapchainImages(swapchain Handle) ([]Handle, error)
	DestroySwapchain(swapchain Handle)
	CreateImageView(image Handle, format vulkan.Format) (Handle, error)
	DestroyImageView(view Handle)

	// AcquireNextImage returns vulkan.Success, vulkan.Suboptimal,
	// vulkan.ErrorOutOfDate, vulkan.Timeout/NotReady or a failure.
	AcquireNextImage(swapchain Handle, timeout time.Duration, signal Handle) (uint32, vulkan.Result)
	QueuePresent(info *PresentInfo) vulkan.Result
}

// SyncDevice manages semaphores and fences and can wait for the device
// to drain.
type SyncDevice interface {
	CreateSemaphore() (Handle, error)
	DestroySemaphore(semaphore Handle)
	CreateFence(signaled bool) (Handle, error)
	DestroyFence(fence Handle)
	WaitForFence(fence Handle, timeout time.Duration) vulkan.Result
	ResetFence(fence Handle) vulkan.Result
	WaitIdle() vulkan.Result
}

// RenderDevice builds the render pass, pipeline, render targets and
// command sequences and submits work to the graphics queue.
type RenderDevice interface {
	CreateRenderPass(format vulkan.Format) (Handle, error)
	DestroyRenderPass(pass Handle)
	CreatePipeline(info *PipelineInfo) (Handle, error)
	DestroyPipeline(pipeline Handle)
	CreateFramebuffer(info *FramebufferInfo) (Handle, error)
	DestroyFramebuffer(framebuffer Handle)
	AllocateCommandBuffers(count int) ([]Handle, error)
	FreeCommandBuffers(buffers []Handle)
	ResetCommandPool() error
	RecordDraw(buffer Handle, info *DrawInfo) error
	QueueSubmit(info *SubmitInfo) vulkan.Result
}

// Device is the logical device with one graphics queue and one present
// queue, which may be the same.
type Device interface {
	SurfaceQuerier
	SwapchainDevice
	SyncDevice
	RenderDevice
}

// Window is the surface provider.
type Window interface {
	// FramebufferSize returns the current drawable size in pixels.
	FramebufferSize() (width, height int)
	// Resized reports a resize since the last ResetResize.
	Resized() bool
	ResetResize()
	Closed() bool
}

type ShaderSet struct {
	Vertex   []byte
	Fragment []byte
}

// ShaderSource supplies SPIR-V byte code. It is asked once per pipeline
// (re)creation.
type ShaderSource interface {
	Shaders() (ShaderSet, error)
}

type VertexAttribute struct {
	Location uint32
	Format   vulkan.Format
	Offset   uint32
}

type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// Geometry supplies a device vertex buffer that outlives every swap chain
// generation.
type Geometry interface {
	VertexLayout() VertexLayout
	VertexBuffer() Handle
	VertexCount() uint32
}

// StaticGeometry is a Geometry whose values never change.
type StaticGeometry struct {
	Layout VertexLayout
	Buffer Handle
	Count  uint32
}

func (g *StaticGeometry) VertexLayout() VertexLayout { return g.Layout }
func (g *StaticGeometry) VertexBuffer() Handle { return g.Buffer }
func (g *StaticGeometry) VertexCount() uint32 { return g.Count }
