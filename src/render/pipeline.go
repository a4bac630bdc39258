package render

// RenderPass is the single-subpass color pass targeting the swap chain
// format. It is rebuilt with every swap chain generation.
type RenderPass struct {
	dev    Device
	chain  *SwapChain
	handle Handle
}

func NewRenderPass(dev Device, chain *SwapChain) *RenderPass {
	return &RenderPass{dev: dev, chain: chain}
}

func (p *RenderPass) Create() error {
	p.Destroy()
	h, err := p.dev.CreateRenderPass(p.chain.Format())
	if err != nil {
		return wrapError(ErrPresentationSetup, "create render pass", err)
	}
	p.handle = h
	return nil
}

func (p *RenderPass) Destroy() {
	if p.handle != NullHandle {
		p.dev.DestroyRenderPass(p.handle)
		p.handle = NullHandle
	}
}

func (p *RenderPass) Handle() Handle { return p.handle }

// Pipeline is the graphics pipeline state bound to a render pass and the
// swap chain extent.
type Pipeline struct {
	dev      Device
	chain    *SwapChain
	pass     *RenderPass
	shaders  ShaderSource
	geometry Geometry
	handle   Handle
}

func NewPipeline(dev Device, chain *SwapChain, pass *RenderPass, shaders ShaderSource, geometry Geometry) *Pipeline {
	return &Pipeline{
		dev:      dev,
		chain:    chain,
		pass:     pass,
		shaders:  shaders,
		geometry: geometry,
	}
}

func (p *Pipeline) Create() error {
	p.Destroy()
	code, err := p.shaders.Shaders()
	if err != nil {
		return wrapError(ErrPresentationSetup, "load shaders", err)
	}
	h, err := p.dev.CreatePipeline(&PipelineInfo{
		RenderPass: p.pass.Handle(),
		Extent:     p.chain.Extent(),
		Shaders:    code,
		Layout:     p.geometry.VertexLayout(),
	})
	if err != nil {
		return wrapError(ErrPresentationSetup, "create graphics pipeline", err)
	}
	p.handle = h
	return nil
}

func (p *Pipeline) Destroy() {
	if p.handle != NullHandle {
		p.dev.DestroyPipeline(p.handle)
		p.handle = NullHandle
	}
}

func (p *Pipeline) Handle() Handle { return p.handle }
