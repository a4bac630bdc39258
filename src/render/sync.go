package render

import "github.com/vulkan-go/vulkan"

// InFlightSlot is the synchronization of one frame in flight.
type InFlightSlot struct {
	ImageAvailable Handle
	RenderFinished Handle
	Complete       Handle
}

// FrameSync is the ring of in-flight slots. It lives as long as the
// engine; swap chain recreation does not touch it.
type FrameSync struct {
	dev   Device
	slots []InFlightSlot
}

// NewFrameSync creates n slots whose fences start signaled, so the first
// wait on each slot returns at once.
func NewFrameSync(dev Device, n int) (*FrameSync, error) {
	f := &FrameSync{dev: dev, slots: make([]InFlightSlot, 0, n)}
	for i := 0; i < n; i++ {
		s, err := f.newSlot()
		if err != nil {
			f.Destroy()
			return nil, err
		}
		f.slots = append(f.slots, s)
	}
	return f, nil
}

func (f *FrameSync) newSlot() (s InFlightSlot, err error) {
	if s.ImageAvailable, err = f.dev.CreateSemaphore(); err != nil {
		return s, wrapError(ErrSynchronization, "create image-available semaphore", err)
	}
	if s.RenderFinished, err = f.dev.CreateSemaphore(); err != nil {
		f.destroySlot(s)
		return s, wrapError(ErrSynchronization, "create render-finished semaphore", err)
	}
	if s.Complete, err = f.dev.CreateFence(true); err != nil {
		f.destroySlot(s)
		return s, wrapError(ErrSynchronization, "create in-flight fence", err)
	}
	return s, nil
}

func (f *FrameSync) destroySlot(s InFlightSlot) {
	if s.ImageAvailable != NullHandle {
		f.dev.DestroySemaphore(s.ImageAvailable)
	}
	if s.RenderFinished != NullHandle {
		f.dev.DestroySemaphore(s.RenderFinished)
	}
	if s.Complete != NullHandle {
		f.dev.DestroyFence(s.Complete)
	}
}

func (f *FrameSync) Len() int { return len(f.slots) }

func (f *FrameSync) Slot(i int) InFlightSlot { return f.slots[i] }

// WaitForSlot blocks until the GPU has finished the work last submitted
// with slot i.
func (f *FrameSync) WaitForSlot(i int) error {
	res := f.dev.WaitForFence(f.slots[i].Complete, NoTimeout)
	if res != vulkan.Success {
		return resultError(ErrSynchronization, "wait for in-flight fence", res)
	}
	return nil
}

// ResetSlot unsignals the fence of slot i. Call it after WaitForSlot and
// right before submitting work that signals it.
func (f *FrameSync) ResetSlot(i int) error {
	res := f.dev.ResetFence(f.slots[i].Complete)
	if res != vulkan.Success {
		return resultError(ErrSynchronization, "reset in-flight fence", res)
	}
	return nil
}

// Destroy releases every slot. The device must be idle.
func (f *FrameSync) Destroy() {
	for _, s := range f.slots {
		f.destroySlot(s)
	}
	f.slots = nil
}
