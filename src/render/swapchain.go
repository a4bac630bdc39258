package render

import (
	"time"

	"github.com/vulkan-go/vulkan"
)

// PreferredSurfaceFormat is chosen whenever the surface offers it.
var PreferredSurfaceFormat = SurfaceFormat{
	Format:     vulkan.FormatB8g8r8a8Unorm,
	ColorSpace: vulkan.ColorSpaceSrgbNonlinear,
}

// AcquireStatus classifies a non-fatal acquisition.
type AcquireStatus int

const (
	AcquireOK AcquireStatus = iota
	// AcquireSuboptimal means the image is usable but the chain no
	// longer matches the surface exactly.
	AcquireSuboptimal
	// AcquireStale means the chain is out of date and no image was
	// acquired.
	AcquireStale
	// AcquireTimeout means no image became available in time and no
	// image was acquired.
	AcquireTimeout
)

func (s AcquireStatus) String() string {
	switch s {
	case AcquireOK:
		return "ok"
	case AcquireSuboptimal:
		return "suboptimal"
	case AcquireStale:
		return "stale"
	case AcquireTimeout:
		return "timeout"
	}
	return "unknown"
}

// SwapChainConfig is what a swap chain generation was built with.
type SwapChainConfig struct {
	Format      SurfaceFormat
	PresentMode vulkan.PresentMode
	Extent      Extent
	ImageCount  uint32
}

// PresentableImage is a swap chain image and the view created for it.
type PresentableImage struct {
	Image Handle
	View  Handle
}

// SwapChain owns the presentable images of the current surface. Create
// and Destroy may be called any number of times; every Create reads the
// surface anew.
type SwapChain struct {
	dev Device
	win Window

	handle Handle
	images []PresentableImage
	config SwapChainConfig

	// inFlightTarget is what was asked for; inFlightMax is what the last
	// generation could provide.
	inFlightTarget int
	inFlightMax    int
}

// NewSwapChain returns a chain that has not been created yet.
func NewSwapChain(dev Device, win Window, inFlightTarget int) *SwapChain {
	if inFlightTarget < 1 {
		inFlightTarget = 1
	}
	return &SwapChain{
		dev:            dev,
		win:            win,
		inFlightTarget: inFlightTarget,
		inFlightMax:    inFlightTarget,
	}
}

// Create builds a generation matching the surface as it is now.
// It destroys the previous generation first if there is one.
func (s *SwapChain) Create() error {
	s.Destroy()

	capab, err := s.dev.SurfaceCapabilities()
	if err != nil {
		return wrapError(ErrPresentationSetup, "query surface capabilities", err)
	}
	formats, err := s.dev.SurfaceFormats()
	if err != nil {
		return wrapError(ErrPresentationSetup, "query surface formats", err)
	}
	modes, err := s.dev.PresentModes()
	if err != nil {
		return wrapError(ErrPresentationSetup, "query present modes", err)
	}

	format, ok := ChooseSurfaceFormat(formats)
	if !ok {
		return resultError(ErrPresentationSetup, "choose surface format", vulkan.ErrorFormatNotSupported)
	}
	mode, ok := ChoosePresentMode(modes)
	if !ok {
		return resultError(ErrPresentationSetup, "choose present mode", vulkan.ErrorFeatureNotPresent)
	}
	w, h := s.win.FramebufferSize()
	extent := ChooseExtent(capab, Extent{Width: uint32(max(w, 0)), Height: uint32(max(h, 0))})
	count := ChooseImageCount(capab, s.inFlightTarget)
	if count < 2 {
		return resultError(ErrPresentationSetup, "choose image count", vulkan.ErrorInitializationFailed)
	}

	cfg := SwapChainConfig{
		Format:      format,
		PresentMode: mode,
		Extent:      extent,
		ImageCount:  count,
	}
	handle, err := s.dev.CreateSwapchain(&SwapchainInfo{
		ImageCount:  cfg.ImageCount,
		Format:      cfg.Format,
		PresentMode: cfg.PresentMode,
		Extent:      cfg.Extent,
	})
	if err != nil {
		return wrapError(ErrPresentationSetup, "create swap chain", err)
	}
	s.handle = handle

	imgs, err := s.dev.SwapchainImages(handle)
	if err != nil {
		s.Destroy()
		return wrapError(ErrPresentationSetup, "get swap chain images", err)
	}
	s.images = make([]PresentableImage, 0, len(imgs))
	for _, img := range imgs {
		view, err := s.dev.CreateImageView(img, format.Format)
		if err != nil {
			s.Destroy()
			return wrapError(ErrPresentationSetup, "create image view", err)
		}
		s.images = append(s.images, PresentableImage{Image: img, View: view})
	}
	s.config = cfg
	s.inFlightMax = InFlightMax(s.inFlightTarget, count)
	if s.inFlightMax < s.inFlightTarget {
		Logger().Warn("frames in flight forced down",
			"requested", s.inFlightTarget, "actual", s.inFlightMax, "images", count)
	}
	Logger().Debug("swap chain created",
		"width", extent.Width, "height", extent.Height,
		"images", count, "format", format.Format, "present_mode", mode,
		"in_flight", s.inFlightMax)
	return nil
}

// Destroy releases the views and the chain. It never fails and does
// nothing on a destroyed chain.
func (s *SwapChain) Destroy() {
	for _, img := range s.images {
		if img.View != NullHandle {
			s.dev.DestroyImageView(img.View)
		}
	}
	s.images = nil
	if s.handle != NullHandle {
		s.dev.DestroySwapchain(s.handle)
		s.handle = NullHandle
	}
	s.config = SwapChainConfig{}
}

// AcquireNextImage asks for the next writable image; signal is
// signaled once the image can be written.
func (s *SwapChain) AcquireNextImage(timeout time.Duration, signal Handle) (uint32, AcquireStatus, error) {
	if s.handle == NullHandle {
		return 0, AcquireStale, nil
	}
	idx, res := s.dev.AcquireNextImage(s.handle, timeout, signal)
	switch res {
	case vulkan.Success:
		return idx, AcquireOK, nil
	case vulkan.Suboptimal:
		return idx, AcquireSuboptimal, nil
	case vulkan.ErrorOutOfDate:
		return 0, AcquireStale, nil
	case vulkan.Timeout, vulkan.NotReady:
		return 0, AcquireTimeout, nil
	default:
		return 0, AcquireStale, resultError(ErrPresentation, "acquire swap chain image", res)
	}
}

func (s *SwapChain) Handle() Handle { return s.handle }
func (s *SwapChain) Created() bool { return s.handle != NullHandle }
func (s *SwapChain) Config() SwapChainConfig { return s.config }
func (s *SwapChain) Extent() Extent { return s.config.Extent }
func (s *SwapChain) Format() vulkan.Format { return s.config.Format.Format }
func (s *SwapChain) Images() []PresentableImage { return s.images }
func (s *SwapChain) InFlightTarget() int { return s.inFlightTarget }
func (s *SwapChain) InFlightMax() int { return s.inFlightMax }
func (s *SwapChain) Len() int { return len(s.images) }
func (s *SwapChain) View(index int) Handle { return s.images[index].View }

// Views returns the image views in image order.
func (s *SwapChain) Views() []Handle {
	views := make([]Handle, len(s.images))
	for i, img := range s.images {
		views[i] = img.View
	}
	return views
}

// ChooseSurfaceFormat prefers PreferredSurfaceFormat and falls back to
// the first reported format. It fails only on an empty list.
func ChooseSurfaceFormat(available []SurfaceFormat) (SurfaceFormat, bool) {
	if len(available) == 0 {
		return SurfaceFormat{}, false
	}
	// A lone undefined format means the surface has no preference.
	if len(available) == 1 && available[0].Format == vulkan.FormatUndefined {
		return PreferredSurfaceFormat, true
	}
	for _, f := range available {
		if f == PreferredSurfaceFormat {
			return f, true
		}
	}
	return available[0], true
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which every
// surface must support. An empty list means the surface cannot present.
func ChoosePresentMode(available []vulkan.PresentMode) (vulkan.PresentMode, bool) {
	if len(available) == 0 {
		return vulkan.PresentModeFifo, false
	}
	for _, m := range available {
		if m == vulkan.PresentModeMailbox {
			return m, true
		}
	}
	return vulkan.PresentModeFifo, true
}

// ChooseExtent uses the surface's current extent unless it is undefined,
// in which case the drawable size is clamped to the surface limits.
func ChooseExtent(capab SurfaceCapabilities, drawable Extent) Extent {
	if capab.CurrentExtent.Width != UndefinedExtent {
		return capab.CurrentExtent
	}
	return Extent{
		Width:  clamp(drawable.Width, capab.MinImageExtent.Width, capab.MaxImageExtent.Width),
		Height: clamp(drawable.Height, capab.MinImageExtent.Height, capab.MaxImageExtent.Height),
	}
}

// ChooseImageCount returns max(minImageCount+1, inFlightTarget+1) clamped
// to maxImageCount when that is not zero.
func ChooseImageCount(capab SurfaceCapabilities, inFlightTarget int) uint32 {
	n := capab.MinImageCount + 1
	if want := uint32(max(inFlightTarget, 1)) + 1; n < want {
		n = want
	}
	if capab.MaxImageCount != 0 && n > capab.MaxImageCount {
		n = capab.MaxImageCount
	}
	return n
}

// InFlightMax is the number of frames that may be in flight with
// imageCount images: never more than requested, never more than
// imageCount-1.
func InFlightMax(inFlightTarget int, imageCount uint32) int {
	n := max(inFlightTarget, 1)
	if limit := int(imageCount) - 1; n > limit {
		n = limit
	}
	return max(n, 0)
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
