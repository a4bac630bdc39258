package render

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulkan-go/vulkan"
)

func TestNewError(t *testing.T) {
	require.NoError(t, NewError(vulkan.Success))

	err := NewError(vulkan.ErrorDeviceLost)
	require.Error(t, err)
	var ve *VulkanError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, vulkan.ErrorDeviceLost, ve.Result)
	assert.Contains(t, ve.Frame, "TestNewError")
	assert.Contains(t, ve.Frame, "errors_test.go")
	assert.Equal(t, vulkan.ErrorDeviceLost, ResultOf(err))
	assert.True(t, IsError(vulkan.ErrorDeviceLost))
	assert.False(t, IsError(vulkan.Success))
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, vulkan.Success, ResultOf(nil))
	assert.Equal(t, resultUnknown, ResultOf(errors.New("plain")))
	assert.Equal(t, vulkan.ErrorSurfaceLost, ResultOf(resultError(ErrPresentation, "present", vulkan.ErrorSurfaceLost)))
	wrapped := errors.Wrap(NewError(vulkan.ErrorOutOfHostMemory), "context")
	assert.Equal(t, vulkan.ErrorOutOfHostMemory, ResultOf(wrapped))
}

func TestErrorKinds(t *testing.T) {
	err := wrapError(ErrPresentationSetup, "create swap chain", NewError(vulkan.ErrorOutOfHostMemory))
	assert.True(t, errors.Is(err, ErrPresentationSetup))
	assert.False(t, errors.Is(err, ErrPresentation))
	assert.Contains(t, err.Error(), "create swap chain")

	// Re-wrapping with the same kind keeps the innermost operation.
	again := wrapError(ErrPresentationSetup, "recreate", err)
	assert.Equal(t, err, again)

	assert.Nil(t, wrapError(ErrSubmission, "submit", nil))

	err = resultError(ErrSubmission, "submit", vulkan.ErrorDeviceLost)
	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ErrSubmission, re.Kind)
	assert.Equal(t, "submit", re.Op)
	assert.Equal(t, vulkan.ErrorDeviceLost, re.Code)
}

func TestOrPanic(t *testing.T) {
	assert.NotPanics(t, func() { OrPanic(nil) })

	ran := 0
	assert.Panics(t, func() {
		OrPanic(NewError(vulkan.ErrorInitializationFailed), func() { ran++ }, func() { ran++ })
	})
	assert.Equal(t, 2, ran)
}

func TestCheckError(t *testing.T) {
	run := func(fn func()) (err error) {
		defer CheckError(&err)
		fn()
		return nil
	}
	assert.NoError(t, run(func() {}))

	err := run(func() { OrPanic(NewError(vulkan.ErrorDeviceLost)) })
	require.Error(t, err)
	assert.Equal(t, vulkan.ErrorDeviceLost, ResultOf(err))

	err = run(func() { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestTickTimer(t *testing.T) {
	timer := newTickTimer()
	for i := 0; i < 3; i++ {
		time.Sleep(time.Millisecond)
		timer.tick()
	}
	assert.Equal(t, uint64(3), timer.stats.Count)
	assert.Greater(t, timer.stats.Speed, 0.0)
	// At least a millisecond between ticks.
	assert.LessOrEqual(t, timer.stats.Speed, 1000.0)
	assert.GreaterOrEqual(t, timer.stats.Last, time.Millisecond)
}
