package vkdevice

import (
	"time"

	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

func (d *Device) capabilities() (vulkan.SurfaceCapabilities, error) {
	var caps vulkan.SurfaceCapabilities
	res := vulkan.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps)
	if err := render.NewError(res); err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

func (d *Device) SurfaceCapabilities() (render.SurfaceCapabilities, error) {
	caps, err := d.capabilities()
	if err != nil {
		return render.SurfaceCapabilities{}, errors.Wrap(err, "get surface capabilities")
	}
	return render.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  fromExtent2D(caps.CurrentExtent),
		MinImageExtent: fromExtent2D(caps.MinImageExtent),
		MaxImageExtent: fromExtent2D(caps.MaxImageExtent),
	}, nil
}

func (d *Device) SurfaceFormats() ([]render.SurfaceFormat, error) {
	var count uint32
	if err := render.NewError(vulkan.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "count surface formats")
	}
	formats := make([]vulkan.SurfaceFormat, count)
	if err := render.NewError(vulkan.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, formats)); err != nil {
		return nil, errors.Wrap(err, "get surface formats")
	}
	out := make([]render.SurfaceFormat, 0, count)
	for _, f := range formats[:count] {
		f.Deref()
		out = append(out, render.SurfaceFormat{Format: f.Format, ColorSpace: f.ColorSpace})
	}
	return out, nil
}

func (d *Device) PresentModes() ([]vulkan.PresentMode, error) {
	var count uint32
	if err := render.NewError(vulkan.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "count present modes")
	}
	modes := make([]vulkan.PresentMode, count)
	if err := render.NewError(vulkan.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, modes)); err != nil {
		return nil, errors.Wrap(err, "get present modes")
	}
	return modes[:count], nil
}

// CreateSwapchain shares the images concurrently when the graphics and
// present queues come from different families.
func (d *Device) CreateSwapchain(info *render.SwapchainInfo) (render.Handle, error) {
	caps, err := d.capabilities()
	if err != nil {
		return render.NullHandle, errors.Wrap(err, "get surface capabilities")
	}
	mode, families := d.families.sharing()
	var sc vulkan.Swapchain
	res := vulkan.CreateSwapchain(d.device, &vulkan.SwapchainCreateInfo{
		SType:                 vulkan.StructureTypeSwapchainCreateInfo,
		Surface:               d.surface,
		MinImageCount:         info.ImageCount,
		ImageFormat:           info.Format.Format,
		ImageColorSpace:       info.Format.ColorSpace,
		ImageExtent:           toExtent2D(info.Extent),
		ImageArrayLayers:      1,
		ImageUsage:            vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		ImageSharingMode:      mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		PreTransform:          caps.CurrentTransform,
		CompositeAlpha:        vulkan.CompositeAlphaOpaqueBit,
		PresentMode:           info.PresentMode,
		Clipped:               vulkan.True,
		OldSwapchain:          vulkan.NullSwapchain,
	}, nil, &sc)
	if err := render.NewError(res); err != nil {
		return render.NullHandle, errors.Wrap(err, "create swap chain")
	}
	return d.swapchains.add(sc), nil
}

func (d *Device) SwapchainImages(swapchain render.Handle) ([]render.Handle, error) {
	if imgs, ok := d.chainImages[swapchain]; ok {
		return imgs, nil
	}
	sc, ok := d.swapchains.get(swapchain)
	if !ok {
		return nil, errors.Errorf("vkdevice: unknown swap chain %d", swapchain)
	}
	var count uint32
	if err := render.NewError(vulkan.GetSwapchainImages(d.device, sc, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "count swap chain images")
	}
	images := make([]vulkan.Image, count)
	if err := render.NewError(vulkan.GetSwapchainImages(d.device, sc, &count, images)); err != nil {
		return nil, errors.Wrap(err, "get swap chain images")
	}
	handles := make([]render.Handle, 0, count)
	for _, img := range images[:count] {
		handles = append(handles, d.images.add(img))
	}
	d.chainImages[swapchain] = handles
	return handles, nil
}

// DestroySwapchain also forgets the chain's images, which the chain owns.
func (d *Device) DestroySwapchain(swapchain render.Handle) {
	sc, ok := d.swapchains.take(swapchain)
	if !ok {
		return
	}
	for _, img := range d.chainImages[swapchain] {
		d.images.take(img)
	}
	delete(d.chainImages, swapchain)
	vulkan.DestroySwapchain(d.device, sc, nil)
}

func (d *Device) CreateImageView(image render.Handle, format vulkan.Format) (render.Handle, error) {
	img, ok := d.images.get(image)
	if !ok {
		return render.NullHandle, errors.Errorf("vkdevice: unknown image %d", image)
	}
	var view vulkan.ImageView
	res := vulkan.CreateImageView(d.device, &vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vulkan.ImageViewType2d,
		Format:   format,
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)
	if err := render.NewError(res); err != nil {
		return render.NullHandle, errors.Wrap(err, "create image view")
	}
	return d.views.add(view), nil
}

func (d *Device) DestroyImageView(view render.Handle) {
	if v, ok := d.views.take(view); ok {
		vulkan.DestroyImageView(d.device, v, nil)
	}
}

func (d *Device) AcquireNextImage(swapchain render.Handle, timeout time.Duration, signal render.Handle) (uint32, vulkan.Result) {
	sc, ok := d.swapchains.get(swapchain)
	if !ok {
		return 0, vulkan.ErrorOutOfDate
	}
	sem, ok := d.semaphores.get(signal)
	if !ok {
		return 0, vulkan.ErrorInitializationFailed
	}
	var idx uint32
	res := vulkan.AcquireNextImage(d.device, sc, timeoutNanos(timeout), sem, vulkan.NullFence, &idx)
	return idx, res
}

func (d *Device) QueuePresent(info *render.PresentInfo) vulkan.Result {
	sc, ok := d.swapchains.get(info.Swapchain)
	if !ok {
		return vulkan.ErrorOutOfDate
	}
	sem, ok := d.semaphores.get(info.Wait)
	if !ok {
		return vulkan.ErrorInitializationFailed
	}
	return vulkan.QueuePresent(d.present, &vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{sem},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{sc},
		PImageIndices:      []uint32{info.Image},
	})
}
