package visbuf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/visbuf/scene"
)

// Config is the file form of the pipeline options. Fields left out of a
// file keep their DefaultConfig values.
//
//	backend = "software"
//	width = 1280
//	height = 720
//	frames_in_flight = 2
//	cull_flags = ["meshlet_frustum", "occlusion_culling", "triangle_culling"]
type Config struct {
	Backend             string   `toml:"backend" yaml:"backend"`
	Width               uint32   `toml:"width" yaml:"width"`
	Height              uint32   `toml:"height" yaml:"height"`
	FramesInFlight      int      `toml:"frames_in_flight" yaml:"frames_in_flight"`
	MaxMeshletInstances uint32   `toml:"max_meshlet_instances" yaml:"max_meshlet_instances"`
	MaxTriangles        uint32   `toml:"max_triangles" yaml:"max_triangles"`
	HiZLevels           int      `toml:"hiz_levels" yaml:"hiz_levels"`
	Overdraw            bool     `toml:"overdraw" yaml:"overdraw"`
	Workers             int      `toml:"workers" yaml:"workers"`
	CullFlags           []string `toml:"cull_flags" yaml:"cull_flags"`
	MicroTriangleArea   float32  `toml:"micro_triangle_area" yaml:"micro_triangle_area"`
	AutoReserve         bool     `toml:"auto_reserve" yaml:"auto_reserve"`
}

// DefaultConfig returns the configuration New uses without options.
func DefaultConfig() Config {
	return Config{
		Width:               DefaultWidth,
		Height:              DefaultHeight,
		FramesInFlight:      DefaultFramesInFlight,
		MaxMeshletInstances: DefaultMaxMeshletInstances,
		MaxTriangles:        DefaultMaxTriangles,
		CullFlags:           []string{"all"},
		MicroTriangleArea:   DefaultMicroTriangleArea,
		AutoReserve:         true,
	}
}

// LoadConfig reads a TOML (.toml) or YAML (.yaml, .yml) config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("visbuf: read config: %w", err)
	}
	cfg, err := ParseConfig(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes data in format ("toml", "yaml" or "yml") over
// DefaultConfig and validates the result.
func ParseConfig(data []byte, format string) (Config, error) {
	cfg := DefaultConfig()
	cfg.CullFlags = nil
	switch strings.ToLower(format) {
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && len(bytes.TrimSpace(data)) > 0 {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if cfg.CullFlags == nil {
		cfg.CullFlags = DefaultConfig().CullFlags
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes c in format ("toml", "yaml" or "yml").
func (c *Config) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "toml":
		return toml.Marshal(c)
	case "yaml", "yml":
		return yaml.Marshal(c)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Validate checks sizes, capacities and flag names.
func (c *Config) Validate() error {
	l := c.limits()
	if err := l.Validate(); err != nil {
		return err
	}
	if c.MicroTriangleArea < 0 {
		return fmt.Errorf("%w: negative micro-triangle area", ErrInvalidConfig)
	}
	if _, err := scene.ParseCullFlags(c.CullFlags); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Backend != "" && !IsBackendRegistered(c.Backend) {
		return fmt.Errorf("%w: %q", ErrBackendNotAvailable, c.Backend)
	}
	return nil
}

func (c *Config) limits() Limits {
	return Limits{
		Width:               c.Width,
		Height:              c.Height,
		FramesInFlight:      c.FramesInFlight,
		MaxMeshletInstances: c.MaxMeshletInstances,
		MaxTriangles:        c.MaxTriangles,
		HiZLevels:           c.HiZLevels,
		Overdraw:            c.Overdraw,
		Workers:             c.Workers,
	}
}

// Options converts c into pipeline options.
func (c *Config) Options() ([]Option, error) {
	flags, err := scene.ParseCullFlags(c.CullFlags)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	l := c.limits()
	return []Option{
		WithBackend(c.Backend),
		WithSize(l.Width, l.Height),
		WithFramesInFlight(l.FramesInFlight),
		WithCapacity(l.MaxMeshletInstances, l.MaxTriangles),
		WithHiZLevels(l.HiZLevels),
		WithOverdraw(l.Overdraw),
		WithWorkers(l.Workers),
		WithCullFlags(flags),
		WithMicroTriangleArea(c.MicroTriangleArea),
		WithAutoReserve(c.AutoReserve),
	}, nil
}
