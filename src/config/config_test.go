package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "triangle", c.Window.Title)
	assert.Equal(t, 800, c.Window.Width)
	assert.Equal(t, 600, c.Window.Height)
	assert.Equal(t, 2, c.Render.FramesInFlight)
	assert.Equal(t, time.Second, c.Render.AcquireTimeout)
	assert.Equal(t, DefaultVertexShader, c.Render.Shaders.Vertex)
	assert.Equal(t, DefaultFragmentShader, c.Render.Shaders.Fragment)
	assert.Equal(t, "1.0.0", c.App.Version.String())
	l, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)
}

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader(`
app:
  name: demo
  version: {major: 0, minor: 2, patch: 7}
window:
  width: 1024
render:
  frames_in_flight: 3
  acquire_timeout: 250ms
  validation: true
log_level: debug
headless:
  enabled: true
  frames: 100
  latency: 2ms
`))
	require.NoError(t, err)
	assert.Equal(t, "demo", c.App.Name)
	assert.Equal(t, "0.2.7", c.App.Version.String())
	assert.Equal(t, "demo", c.Window.Title)
	assert.Equal(t, 1024, c.Window.Width)
	assert.Equal(t, 600, c.Window.Height)
	assert.Equal(t, 3, c.Render.FramesInFlight)
	assert.Equal(t, 250*time.Millisecond, c.Render.AcquireTimeout)
	assert.True(t, c.Render.Validation)
	assert.True(t, c.Headless.Enabled)
	assert.Equal(t, 100, c.Headless.Frames)
	assert.Equal(t, 2*time.Millisecond, c.Headless.Latency)
	l, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
}

func TestDecodeEmpty(t *testing.T) {
	c, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestDecodeErrors(t *testing.T) {
	for idx, doc := range []string{
		"windo:\n  width: 10\n",
		"window:\n  width: -1\n",
		"render:\n  frames_in_flight: -2\n",
		"render:\n  acquire_timeout: soon\n",
		"render:\n  shaders:\n    vertex: a.spv\n",
		"log_level: loud\n",
		"headless:\n  frames: -1\n",
	} {
		_, err := Decode(strings.NewReader(doc))
		require.Error(t, err, "%d", idx)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triangle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window:\n  title: hello\n"), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Window.Title)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
