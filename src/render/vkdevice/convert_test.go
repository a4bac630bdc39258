package vkdevice

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

func TestPickFamilies(t *testing.T) {
	gfx := vulkan.QueueFlags(vulkan.QueueGraphicsBit)
	compute := vulkan.QueueFlags(vulkan.QueueComputeBit)
	for idx, tc := range []struct {
		flags    []vulkan.QueueFlags
		presents []bool
		want     queueFamilies
		ok       bool
	}{
		{[]vulkan.QueueFlags{gfx}, []bool{true}, queueFamilies{0, 0}, true},
		{[]vulkan.QueueFlags{gfx, compute}, []bool{false, true}, queueFamilies{0, 1}, true},
		{[]vulkan.QueueFlags{compute, gfx, gfx | compute}, []bool{true, false, true}, queueFamilies{2, 2}, true},
		{[]vulkan.QueueFlags{compute}, []bool{true}, queueFamilies{}, false},
		{[]vulkan.QueueFlags{gfx}, []bool{false}, queueFamilies{}, false},
		{nil, nil, queueFamilies{}, false},
	} {
		got, ok := pickFamilies(tc.flags, tc.presents)
		require.Equal(t, tc.ok, ok, "%d", idx)
		require.Equal(t, tc.want, got, "%d", idx)
	}
}

func TestSharing(t *testing.T) {
	mode, idx := queueFamilies{1, 1}.sharing()
	assert.Equal(t, vulkan.SharingModeExclusive, mode)
	assert.Nil(t, idx)

	mode, idx = queueFamilies{0, 2}.sharing()
	assert.Equal(t, vulkan.SharingModeConcurrent, mode)
	assert.Equal(t, []uint32{0, 2}, idx)
}

func TestTimeoutNanos(t *testing.T) {
	assert.Equal(t, uint64(math.MaxUint64), timeoutNanos(render.NoTimeout))
	assert.Equal(t, uint64(math.MaxUint64), timeoutNanos(-1))
	assert.Equal(t, uint64(1e9), timeoutNanos(time.Second))
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1.2.131", versionString(vulkan.MakeVersion(1, 2, 131)))
	assert.Equal(t, "1.0.0", versionString(vulkan.MakeVersion(1, 0, 0)))
}

func TestDeviceScore(t *testing.T) {
	assert.Greater(t, deviceScore(vulkan.PhysicalDeviceTypeDiscreteGpu), deviceScore(vulkan.PhysicalDeviceTypeIntegratedGpu))
	assert.Greater(t, deviceScore(vulkan.PhysicalDeviceTypeIntegratedGpu), deviceScore(vulkan.PhysicalDeviceTypeCpu))
	assert.Equal(t, 0, deviceScore(vulkan.PhysicalDeviceTypeOther))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "VK_KHR_swapchain\x00", safeString("VK_KHR_swapchain"))
	assert.Equal(t, "VK_KHR_swapchain\x00", safeString("VK_KHR_swapchain\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
	assert.True(t, hasAll([]string{"a\x00", "b"}, []string{"b\x00"}))
	assert.False(t, hasAll([]string{"a"}, []string{"a", "c"}))
}

func TestExtent(t *testing.T) {
	e := render.Extent{Width: 640, Height: 480}
	assert.Equal(t, e, fromExtent2D(toExtent2D(e)))
}

func TestTable(t *testing.T) {
	var seq render.Handle
	a := newTable[string](&seq)
	b := newTable[int](&seq)

	h1 := a.add("one")
	h2 := b.add(2)
	h3 := a.add("three")
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h2, h3)
	assert.Equal(t, 2, a.len())

	v, ok := a.get(h1)
	require.True(t, ok)
	assert.Equal(t, "one", v)
	_, ok = a.get(h2)
	assert.False(t, ok)

	v, ok = a.take(h1)
	require.True(t, ok)
	assert.Equal(t, "one", v)
	_, ok = a.take(h1)
	assert.False(t, ok)

	var drained []string
	a.drain(func(s string) { drained = append(drained, s) })
	assert.Equal(t, []string{"three"}, drained)
	assert.Equal(t, 0, a.len())
}
