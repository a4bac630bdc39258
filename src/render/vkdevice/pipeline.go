package vkdevice

import (
	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
	"swapline/src/shader"
)

const entryPoint = "main"

// CreateRenderPass builds a single color attachment pass that clears the
// image and leaves it ready for presentation.
func (d *Device) CreateRenderPass(format vulkan.Format) (render.Handle, error) {
	var pass vulkan.RenderPass
	res := vulkan.CreateRenderPass(d.device, &vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments: []vulkan.AttachmentDescription{{
			Format:         format,
			Samples:        vulkan.SampleCount1Bit,
			LoadOp:         vulkan.AttachmentLoadOpClear,
			StoreOp:        vulkan.AttachmentStoreOpStore,
			StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
			StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
			InitialLayout:  vulkan.ImageLayoutUndefined,
			FinalLayout:    vulkan.ImageLayoutPresentSrc,
		}},
		SubpassCount: 1,
		PSubpasses: []vulkan.SubpassDescription{{
			PipelineBindPoint:    vulkan.PipelineBindPointGraphics,
			ColorAttachmentCount: 1,
			PColorAttachments: []vulkan.AttachmentReference{{
				Attachment: 0,
				Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
			}},
		}},
		// The layout transition waits for the acquire semaphore, which
		// the submission gates on the color output stage.
		DependencyCount: 1,
		PDependencies: []vulkan.SubpassDependency{{
			SrcSubpass:    vulkan.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
			DstStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
			DstAccessMask: vulkan.AccessFlags(vulkan.AccessColorAttachmentWriteBit),
		}},
	}, nil, &pass)
	if err := render.NewError(res); err != nil {
		return render.NullHandle, errors.Wrap(err, "create render pass")
	}
	return d.passes.add(pass), nil
}

func (d *Device) DestroyRenderPass(pass render.Handle) {
	if p, ok := d.passes.take(pass); ok {
		vulkan.DestroyRenderPass(d.device, p, nil)
	}
}

func (d *Device) createShaderModule(code []byte) (vulkan.ShaderModule, error) {
	if err := shader.Validate(code); err != nil {
		return vulkan.NullShaderModule, err
	}
	var module vulkan.ShaderModule
	res := vulkan.CreateShaderModule(d.device, &vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    shader.Words(code),
	}, nil, &module)
	if err := render.NewError(res); err != nil {
		return vulkan.NullShaderModule, err
	}
	return module, nil
}

// CreatePipeline bakes the viewport and scissor for info.Extent, so the
// pipeline has to be rebuilt with every swap chain.
func (d *Device) CreatePipeline(info *render.PipelineInfo) (render.Handle, error) {
	pass, ok := d.passes.get(info.RenderPass)
	if !ok {
		return render.NullHandle, errors.Errorf("vkdevice: unknown render pass %d", info.RenderPass)
	}
	vert, err := d.createShaderModule(info.Shaders.Vertex)
	if err != nil {
		return render.NullHandle, errors.Wrap(err, "vertex shader module")
	}
	defer vulkan.DestroyShaderModule(d.device, vert, nil)
	frag, err := d.createShaderModule(info.Shaders.Fragment)
	if err != nil {
		return render.NullHandle, errors.Wrap(err, "fragment shader module")
	}
	defer vulkan.DestroyShaderModule(d.device, frag, nil)

	var layout vulkan.PipelineLayout
	res := vulkan.CreatePipelineLayout(d.device, &vulkan.PipelineLayoutCreateInfo{
		SType: vulkan.StructureTypePipelineLayoutCreateInfo,
	}, nil, &layout)
	if err := render.NewError(res); err != nil {
		return render.NullHandle, errors.Wrap(err, "create pipeline layout")
	}

	var bindings []vulkan.VertexInputBindingDescription
	attrs := make([]vulkan.VertexInputAttributeDescription, 0, len(info.Layout.Attributes))
	if info.Layout.Stride > 0 {
		bindings = []vulkan.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    info.Layout.Stride,
			InputRate: vulkan.VertexInputRateVertex,
		}}
		for _, a := range info.Layout.Attributes {
			attrs = append(attrs, vulkan.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   a.Format,
				Offset:   a.Offset,
			})
		}
	}

	extent := toExtent2D(info.Extent)
	pipelines := make([]vulkan.Pipeline, 1)
	res = vulkan.CreateGraphicsPipelines(d.device, vulkan.NullPipelineCache, 1, []vulkan.GraphicsPipelineCreateInfo{{
		SType:      vulkan.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: 2,
		PStages: []vulkan.PipelineShaderStageCreateInfo{{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageVertexBit,
			Module: vert,
			PName:  safeString(entryPoint),
		}, {
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageFragmentBit,
			Module: frag,
			PName:  safeString(entryPoint),
		}},
		PVertexInputState: &vulkan.PipelineVertexInputStateCreateInfo{
			SType:                           vulkan.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attrs)),
			PVertexAttributeDescriptions:    attrs,
		},
		PInputAssemblyState: &vulkan.PipelineInputAssemblyStateCreateInfo{
			SType:    vulkan.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vulkan.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vulkan.PipelineViewportStateCreateInfo{
			SType:         vulkan.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			PViewports: []vulkan.Viewport{{
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
				MaxDepth: 1,
			}},
			ScissorCount: 1,
			PScissors:    []vulkan.Rect2D{{Extent: extent}},
		},
		PRasterizationState: &vulkan.PipelineRasterizationStateCreateInfo{
			SType:       vulkan.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vulkan.PolygonModeFill,
			CullMode:    vulkan.CullModeFlags(vulkan.CullModeBackBit),
			FrontFace:   vulkan.FrontFaceClockwise,
			LineWidth:   1,
		},
		PMultisampleState: &vulkan.PipelineMultisampleStateCreateInfo{
			SType:                vulkan.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vulkan.SampleCount1Bit,
		},
		PColorBlendState: &vulkan.PipelineColorBlendStateCreateInfo{
			SType:           vulkan.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vulkan.PipelineColorBlendAttachmentState{{
				ColorWriteMask: vulkan.ColorComponentFlags(vulkan.ColorComponentRBit |
					vulkan.ColorComponentGBit | vulkan.ColorComponentBBit | vulkan.ColorComponentABit),
			}},
		},
		Layout:     layout,
		RenderPass: pass,
	}}, nil, pipelines)
	if err := render.NewError(res); err != nil {
		vulkan.DestroyPipelineLayout(d.device, layout, nil)
		return render.NullHandle, errors.Wrap(err, "create graphics pipeline")
	}
	return d.pipelines.add(pipeline{pipeline: pipelines[0], layout: layout}), nil
}

func (d *Device) DestroyPipeline(p render.Handle) {
	if pl, ok := d.pipelines.take(p); ok {
		vulkan.DestroyPipeline(d.device, pl.pipeline, nil)
		vulkan.DestroyPipelineLayout(d.device, pl.layout, nil)
	}
}

func (d *Device) CreateFramebuffer(info *render.FramebufferInfo) (render.Handle, error) {
	pass, ok := d.passes.get(info.RenderPass)
	if !ok {
		return render.NullHandle, errors.Errorf("vkdevice: unknown render pass %d", info.RenderPass)
	}
	view, ok := d.views.get(info.View)
	if !ok {
		return render.NullHandle, errors.Errorf("vkdevice: unknown image view %d", info.View)
	}
	var fb vulkan.Framebuffer
	res := vulkan.CreateFramebuffer(d.device, &vulkan.FramebufferCreateInfo{
		SType:           vulkan.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: 1,
		PAttachments:    []vulkan.ImageView{view},
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}, nil, &fb)
	if err := render.NewError(res); err != nil {
		return render.NullHandle, errors.Wrap(err, "create framebuffer")
	}
	return d.framebuffers.add(fb), nil
}

func (d *Device) DestroyFramebuffer(framebuffer render.Handle) {
	if fb, ok := d.framebuffers.take(framebuffer); ok {
		vulkan.DestroyFramebuffer(d.device, fb, nil)
	}
}
