// Package config reads the YAML configuration of the triangle program.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"swapline/src/render"
)

type Version struct {
	Major int `yaml:"major"`
	Minor int `yaml:"minor"`
	Patch int `yaml:"patch"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

type App struct {
	Name    string  `yaml:"name"`
	Version Version `yaml:"version"`
}

type Window struct {
	// Title defaults to the application name.
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type Shaders struct {
	Vertex   string `yaml:"vertex"`
	Fragment string `yaml:"fragment"`
}

type Render struct {
	FramesInFlight int           `yaml:"frames_in_flight"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	Shaders        Shaders       `yaml:"shaders"`
	Validation     bool          `yaml:"validation"`
}

// Headless configures the simulated backend.
type Headless struct {
	Enabled bool `yaml:"enabled"`
	// Frames is the number of ticks to run; 0 runs until interrupted.
	Frames int `yaml:"frames"`
	// Latency is how long each submission takes to complete.
	Latency time.Duration `yaml:"latency"`
}

type Config struct {
	App      App      `yaml:"app"`
	Window   Window   `yaml:"window"`
	Render   Render   `yaml:"render"`
	LogLevel string   `yaml:"log_level"`
	Headless Headless `yaml:"headless"`
}

const (
	DefaultWidth          = 800
	DefaultHeight         = 600
	DefaultVertexShader   = "shd/bin/default.vert.spv"
	DefaultFragmentShader = "shd/bin/default.frag.spv"
)

func base() *Config {
	return &Config{
		App: App{Name: "triangle", Version: Version{Major: 1}},
	}
}

func Default() *Config {
	c := base()
	c.applyDefaults()
	return c
}

// Load reads the file at path. Unknown keys are an error.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	return c, nil
}

// Decode reads a configuration, fills in defaults and validates it.
func Decode(r io.Reader) (*Config, error) {
	c := base()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Window.Width == 0 {
		c.Window.Width = DefaultWidth
	}
	if c.Window.Height == 0 {
		c.Window.Height = DefaultHeight
	}
	if c.Window.Title == "" {
		c.Window.Title = c.App.Name
	}
	if c.Render.FramesInFlight == 0 {
		c.Render.FramesInFlight = render.DefaultFramesInFlight
	}
	if c.Render.AcquireTimeout == 0 {
		c.Render.AcquireTimeout = render.DefaultAcquireTimeout
	}
	if c.Render.Shaders.Vertex == "" && c.Render.Shaders.Fragment == "" {
		c.Render.Shaders = Shaders{Vertex: DefaultVertexShader, Fragment: DefaultFragmentShader}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) Validate() error {
	switch {
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return errors.Errorf("config: window size %dx%d", c.Window.Width, c.Window.Height)
	case c.Render.FramesInFlight < 1:
		return errors.Errorf("config: frames_in_flight %d", c.Render.FramesInFlight)
	case c.Render.AcquireTimeout < 0:
		return errors.Errorf("config: acquire_timeout %v", c.Render.AcquireTimeout)
	case c.Headless.Frames < 0:
		return errors.Errorf("config: headless frames %d", c.Headless.Frames)
	case !c.Headless.Enabled && (c.Render.Shaders.Vertex == "" || c.Render.Shaders.Fragment == ""):
		return errors.New("config: both shader stages are required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return l, errors.Errorf("config: log_level %q", c.LogLevel)
	}
	return l, nil
}
