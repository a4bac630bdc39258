package render

// CommandBuffers holds one pre-recorded draw per render target. The
// render pass, pipeline, targets and geometry are borrowed.
type CommandBuffers struct {
	dev      Device
	chain    *SwapChain
	pass     *RenderPass
	pipeline *Pipeline
	targets  *FrameBuffers
	geometry Geometry

	buffers []Handle
}

func NewCommandBuffers(dev Device, chain *SwapChain, pass *RenderPass, pipeline *Pipeline, targets *FrameBuffers, geometry Geometry) *CommandBuffers {
	return &CommandBuffers{
		dev:      dev,
		chain:    chain,
		pass:     pass,
		pipeline: pipeline,
		targets:  targets,
		geometry: geometry,
	}
}

// Create allocates and records one sequence per render target.
func (c *CommandBuffers) Create() error {
	c.Destroy()
	n := c.targets.Len()
	if n == 0 {
		return nil
	}
	bufs, err := c.dev.AllocateCommandBuffers(n)
	if err != nil {
		return wrapError(ErrPresentationSetup, "allocate command buffers", err)
	}
	c.buffers = bufs
	for i, buf := range bufs {
		err := c.dev.RecordDraw(buf, &DrawInfo{
			RenderPass:   c.pass.Handle(),
			Framebuffer:  c.targets.Get(i),
			Extent:       c.chain.Extent(),
			Pipeline:     c.pipeline.Handle(),
			VertexBuffer: c.geometry.VertexBuffer(),
			VertexCount:  c.geometry.VertexCount(),
		})
		if err != nil {
			c.Destroy()
			return wrapError(ErrPresentationSetup, "record command buffer", err)
		}
	}
	return nil
}

func (c *CommandBuffers) Destroy() {
	if len(c.buffers) > 0 {
		c.dev.FreeCommandBuffers(c.buffers)
	}
	c.buffers = nil
}

func (c *CommandBuffers) Len() int { return len(c.buffers) }

func (c *CommandBuffers) Get(index int) Handle { return c.buffers[index] }
