package simgpu

import (
	"fmt"

	"swapline/src/render"
)

type EventKind int

const (
	EventSubmit EventKind = iota + 1
	EventComplete
	EventWait
	EventWaitBlocked
	EventWaitDone
	EventResetFence
	EventAcquire
	EventPresent
	EventIdle
	EventSwapchainCreated
	EventSwapchainDestroyed
	EventRecord
)

var eventNames = [...]string{
	EventSubmit:             "submit",
	EventComplete:           "complete",
	EventWait:               "wait",
	EventWaitBlocked:        "wait-blocked",
	EventWaitDone:           "wait-done",
	EventResetFence:         "reset-fence",
	EventAcquire:            "acquire",
	EventPresent:            "present",
	EventIdle:               "idle",
	EventSwapchainCreated:   "swapchain-created",
	EventSwapchainDestroyed: "swapchain-destroyed",
	EventRecord:             "record",
}

func (k EventKind) String() string {
	if k > 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one entry of the GPU log. Submission numbers start at 1 and
// increase with every QueueSubmit.
type Event struct {
	Kind       EventKind
	Handle     render.Handle
	Submission int
	Image      uint32
}

func (e Event) String() string {
	switch e.Kind {
	case EventSubmit, EventComplete:
		return fmt.Sprintf("%v #%d fence=%d", e.Kind, e.Submission, e.Handle)
	case EventAcquire, EventPresent:
		return fmt.Sprintf("%v image=%d", e.Kind, e.Image)
	case EventWait, EventWaitBlocked, EventWaitDone, EventResetFence:
		return fmt.Sprintf("%v fence=%d", e.Kind, e.Handle)
	}
	return e.Kind.String()
}
