package render

// FrameBuffers holds one render target per presentable image. It borrows
// the chain and the render pass; the targets are its own.
type FrameBuffers struct {
	dev     Device
	chain   *SwapChain
	pass    *RenderPass
	targets []Handle
}

func NewFrameBuffers(dev Device, chain *SwapChain, pass *RenderPass) *FrameBuffers {
	return &FrameBuffers{dev: dev, chain: chain, pass: pass}
}

// Create builds a target for every view of the current chain generation.
func (f *FrameBuffers) Create() error {
	f.Destroy()
	imgs := f.chain.Images()
	f.targets = make([]Handle, 0, len(imgs))
	for i := range imgs {
		h, err := f.dev.CreateFramebuffer(&FramebufferInfo{
			RenderPass: f.pass.Handle(),
			View:       imgs[i].View,
			Extent:     f.chain.Extent(),
		})
		if err != nil {
			f.Destroy()
			return wrapError(ErrPresentationSetup, "create frame buffer", err)
		}
		f.targets = append(f.targets, h)
	}
	return nil
}

func (f *FrameBuffers) Destroy() {
	for _, h := range f.targets {
		f.dev.DestroyFramebuffer(h)
	}
	f.targets = nil
}

func (f *FrameBuffers) Len() int { return len(f.targets) }

func (f *FrameBuffers) Get(index int) Handle { return f.targets[index] }
