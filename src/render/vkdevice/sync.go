package vkdevice

import (
	"time"

	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

func (d *Device) CreateSemaphore() (render.Handle, error) {
	var sem vulkan.Semaphore
	res := vulkan.CreateSemaphore(d.device, &vulkan.SemaphoreCreateInfo{
		SType: vulkan.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if err := render.NewError(res); err != nil {
		return render.NullHandle, errors.Wrap(err, "create semaphore")
	}
	return d.semaphores.add(sem), nil
}

func (d *Device) DestroySemaphore(semaphore render.Handle) {
	if s, ok := d.semaphores.take(semaphore); ok {
		vulkan.DestroySemaphore(d.device, s, nil)
	}
}

func (d *Device) CreateFence(signaled bool) (render.Handle, error) {
	info := vulkan.FenceCreateInfo{SType: vulkan.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit)
	}
	var fence vulkan.Fence
	if err := render.NewError(vulkan.CreateFence(d.device, &info, nil, &fence)); err != nil {
		return render.NullHandle, errors.Wrap(err, "create fence")
	}
	return d.fences.add(fence), nil
}

func (d *Device) DestroyFence(fence render.Handle) {
	if f, ok := d.fences.take(fence); ok {
		vulkan.DestroyFence(d.device, f, nil)
	}
}

func (d *Device) WaitForFence(fence render.Handle, timeout time.Duration) vulkan.Result {
	f, ok := d.fences.get(fence)
	if !ok {
		return vulkan.ErrorInitializationFailed
	}
	return vulkan.WaitForFences(d.device, 1, []vulkan.Fence{f}, vulkan.True, timeoutNanos(timeout))
}

func (d *Device) ResetFence(fence render.Handle) vulkan.Result {
	f, ok := d.fences.get(fence)
	if !ok {
		return vulkan.ErrorInitializationFailed
	}
	return vulkan.ResetFences(d.device, 1, []vulkan.Fence{f})
}

func (d *Device) WaitIdle() vulkan.Result {
	return vulkan.DeviceWaitIdle(d.device)
}
