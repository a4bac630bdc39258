package vkdevice

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// UploadVertices copies data into a host visible vertex buffer. The
// buffer lives until DestroyBuffer or Close.
func (d *Device) UploadVertices(data []byte) (render.Handle, error) {
	if len(data) == 0 {
		return render.NullHandle, errors.New("vkdevice: empty vertex data")
	}
	size := vulkan.DeviceSize(len(data))
	var b buffer
	res := vulkan.CreateBuffer(d.device, &vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vulkan.BufferUsageFlags(vulkan.BufferUsageVertexBufferBit),
		SharingMode: vulkan.SharingModeExclusive,
	}, nil, &b.buffer)
	if err := render.NewError(res); err != nil {
		return render.NullHandle, errors.Wrap(err, "create vertex buffer")
	}

	var req vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(d.device, b.buffer, &req)
	req.Deref()
	index, ok := vulkan.FindMemoryTypeIndex(d.gpu, req.MemoryTypeBits,
		vulkan.MemoryPropertyHostVisibleBit|vulkan.MemoryPropertyHostCoherentBit)
	if !ok {
		vulkan.DestroyBuffer(d.device, b.buffer, nil)
		return render.NullHandle, errors.New("vkdevice: no host visible memory for vertex buffer")
	}
	res = vulkan.AllocateMemory(d.device, &vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: index,
	}, nil, &b.memory)
	if err := render.NewError(res); err != nil {
		vulkan.DestroyBuffer(d.device, b.buffer, nil)
		return render.NullHandle, errors.Wrap(err, "allocate vertex memory")
	}

	var mapped unsafe.Pointer
	res = vulkan.MapMemory(d.device, b.memory, 0, size, 0, &mapped)
	if err := render.NewError(res); err != nil {
		vulkan.FreeMemory(d.device, b.memory, nil)
		vulkan.DestroyBuffer(d.device, b.buffer, nil)
		return render.NullHandle, errors.Wrap(err, "map vertex memory")
	}
	vulkan.Memcopy(mapped, data)
	vulkan.UnmapMemory(d.device, b.memory)

	if err := render.NewError(vulkan.BindBufferMemory(d.device, b.buffer, b.memory, 0)); err != nil {
		vulkan.FreeMemory(d.device, b.memory, nil)
		vulkan.DestroyBuffer(d.device, b.buffer, nil)
		return render.NullHandle, errors.Wrap(err, "bind vertex memory")
	}
	return d.buffers.add(b), nil
}

func (d *Device) DestroyBuffer(h render.Handle) {
	if b, ok := d.buffers.take(h); ok {
		vulkan.DestroyBuffer(d.device, b.buffer, nil)
		vulkan.FreeMemory(d.device, b.memory, nil)
	}
}
