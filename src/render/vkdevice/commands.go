package vkdevice

import (
	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// ClearColor is the background every recorded frame starts from.
var ClearColor = []float32{0.02, 0.02, 0.05, 1}

func (d *Device) AllocateCommandBuffers(count int) ([]render.Handle, error) {
	if count <= 0 {
		return nil, nil
	}
	bufs := make([]vulkan.CommandBuffer, count)
	res := vulkan.AllocateCommandBuffers(d.device, &vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}, bufs)
	if err := render.NewError(res); err != nil {
		return nil, errors.Wrap(err, "allocate command buffers")
	}
	handles := make([]render.Handle, 0, count)
	for _, b := range bufs {
		handles = append(handles, d.commands.add(b))
	}
	return handles, nil
}

func (d *Device) FreeCommandBuffers(buffers []render.Handle) {
	bufs := make([]vulkan.CommandBuffer, 0, len(buffers))
	for _, h := range buffers {
		if b, ok := d.commands.take(h); ok {
			bufs = append(bufs, b)
		}
	}
	if len(bufs) > 0 {
		vulkan.FreeCommandBuffers(d.device, d.pool, uint32(len(bufs)), bufs)
	}
}

func (d *Device) ResetCommandPool() error {
	if err := render.NewError(vulkan.ResetCommandPool(d.device, d.pool, 0)); err != nil {
		return errors.Wrap(err, "reset command pool")
	}
	return nil
}

// RecordDraw records one pass over info.Framebuffer drawing the bound
// vertex buffer. Buffers are recorded once per swap chain generation and
// resubmitted every frame that acquires their image.
func (d *Device) RecordDraw(buffer render.Handle, info *render.DrawInfo) error {
	cmd, ok := d.commands.get(buffer)
	if !ok {
		return errors.Errorf("vkdevice: unknown command buffer %d", buffer)
	}
	pass, ok := d.passes.get(info.RenderPass)
	if !ok {
		return errors.Errorf("vkdevice: unknown render pass %d", info.RenderPass)
	}
	fb, ok := d.framebuffers.get(info.Framebuffer)
	if !ok {
		return errors.Errorf("vkdevice: unknown framebuffer %d", info.Framebuffer)
	}
	pl, ok := d.pipelines.get(info.Pipeline)
	if !ok {
		return errors.Errorf("vkdevice: unknown pipeline %d", info.Pipeline)
	}

	res := vulkan.BeginCommandBuffer(cmd, &vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
	})
	if err := render.NewError(res); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}
	vulkan.CmdBeginRenderPass(cmd, &vulkan.RenderPassBeginInfo{
		SType:       vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: fb,
		RenderArea: vulkan.Rect2D{
			Offset: vulkan.Offset2D{},
			Extent: toExtent2D(info.Extent),
		},
		ClearValueCount: 1,
		PClearValues:    []vulkan.ClearValue{vulkan.NewClearValue(ClearColor)},
	}, vulkan.SubpassContentsInline)
	vulkan.CmdBindPipeline(cmd, vulkan.PipelineBindPointGraphics, pl.pipeline)
	if b, ok := d.buffers.get(info.VertexBuffer); ok {
		vulkan.CmdBindVertexBuffers(cmd, 0, 1, []vulkan.Buffer{b.buffer}, []vulkan.DeviceSize{0})
	}
	vulkan.CmdDraw(cmd, info.VertexCount, 1, 0, 0)
	vulkan.CmdEndRenderPass(cmd)
	if err := render.NewError(vulkan.EndCommandBuffer(cmd)); err != nil {
		return errors.Wrap(err, "end command buffer")
	}
	return nil
}

func (d *Device) QueueSubmit(info *render.SubmitInfo) vulkan.Result {
	cmd, ok := d.commands.get(info.CommandBuffer)
	if !ok {
		return vulkan.ErrorInitializationFailed
	}
	wait, ok := d.semaphores.get(info.Wait)
	if !ok {
		return vulkan.ErrorInitializationFailed
	}
	signal, ok := d.semaphores.get(info.Signal)
	if !ok {
		return vulkan.ErrorInitializationFailed
	}
	fence, ok := d.fences.get(info.Fence)
	if !ok {
		return vulkan.ErrorInitializationFailed
	}
	return vulkan.QueueSubmit(d.graphics, 1, []vulkan.SubmitInfo{{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vulkan.Semaphore{wait},
		PWaitDstStageMask:    []vulkan.PipelineStageFlags{vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vulkan.CommandBuffer{cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vulkan.Semaphore{signal},
	}}, fence)
}
