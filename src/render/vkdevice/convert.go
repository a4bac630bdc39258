package vkdevice

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

func safeString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

func toExtent2D(e render.Extent) vulkan.Extent2D {
	return vulkan.Extent2D{Width: e.Width, Height: e.Height}
}

func fromExtent2D(e vulkan.Extent2D) render.Extent {
	return render.Extent{Width: e.Width, Height: e.Height}
}

// timeoutNanos converts a wait bound to what the Vulkan wait calls take.
func timeoutNanos(d time.Duration) uint64 {
	if d == render.NoTimeout || d < 0 {
		return math.MaxUint64
	}
	return uint64(d)
}

// versionString formats a packed Vulkan version.
func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3ff, v&0xfff)
}

type queueFamilies struct {
	graphics uint32
	present  uint32
}

func (q queueFamilies) shared() bool { return q.graphics == q.present }

// sharing is how swap chain images are shared between the two queues.
func (q queueFamilies) sharing() (vulkan.SharingMode, []uint32) {
	if q.shared() {
		return vulkan.SharingModeExclusive, nil
	}
	return vulkan.SharingModeConcurrent, []uint32{q.graphics, q.present}
}

// pickFamilies prefers one family doing both graphics and presentation
// and otherwise takes the first of each.
func pickFamilies(flags []vulkan.QueueFlags, presents []bool) (queueFamilies, bool) {
	gfx, pres := -1, -1
	for i := range flags {
		isGfx := flags[i]&vulkan.QueueFlags(vulkan.QueueGraphicsBit) != 0
		if isGfx && presents[i] {
			return queueFamilies{graphics: uint32(i), present: uint32(i)}, true
		}
		if isGfx && gfx < 0 {
			gfx = i
		}
		if presents[i] && pres < 0 {
			pres = i
		}
	}
	if gfx < 0 || pres < 0 {
		return queueFamilies{}, false
	}
	return queueFamilies{graphics: uint32(gfx), present: uint32(pres)}, true
}

// deviceScore ranks physical device types; discrete GPUs first.
func deviceScore(t vulkan.PhysicalDeviceType) int {
	switch t {
	case vulkan.PhysicalDeviceTypeDiscreteGpu:
		return 4
	case vulkan.PhysicalDeviceTypeIntegratedGpu:
		return 3
	case vulkan.PhysicalDeviceTypeVirtualGpu:
		return 2
	case vulkan.PhysicalDeviceTypeCpu:
		return 1
	}
	return 0
}

func hasAll(available []string, wanted []string) bool {
	set := make(map[string]bool, len(available))
	for _, a := range available {
		set[strings.TrimRight(a, "\x00")] = true
	}
	for _, w := range wanted {
		if !set[strings.TrimRight(w, "\x00")] {
			return false
		}
	}
	return true
}
