package visbuf

import (
	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/scene"
)

// Defaults used when no option or config value overrides them.
const (
	DefaultWidth               = 1280
	DefaultHeight              = 720
	DefaultFramesInFlight      = 2
	DefaultMaxMeshletInstances = 1 << 16
	DefaultMaxTriangles        = 1 << 20
	DefaultMicroTriangleArea   = 0.5
)

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := visbuf.New(
//	    visbuf.WithBackend(visbuf.BackendSoftware),
//	    visbuf.WithSize(1920, 1080),
//	    visbuf.WithCullFlags(scene.AllCullFlags),
//	)
type Option func(*options)

// options holds optional configuration for Pipeline creation.
type options struct {
	backend     string
	limits      frame.Config
	flags       scene.CullFlags
	microArea   float32
	provider    DeviceProvider
	autoReserve bool
}

// defaultOptions returns the default pipeline options.
func defaultOptions() options {
	return options{
		limits: frame.Config{
			Width:               DefaultWidth,
			Height:              DefaultHeight,
			FramesInFlight:      DefaultFramesInFlight,
			MaxMeshletInstances: DefaultMaxMeshletInstances,
			MaxTriangles:        DefaultMaxTriangles,
		},
		flags:       scene.AllCullFlags,
		microArea:   DefaultMicroTriangleArea,
		autoReserve: true,
	}
}

// WithBackend selects a registered backend by name. The default picks the
// first available one in priority order.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithSize sets the render target size.
func WithSize(width, height uint32) Option {
	return func(o *options) {
		o.limits.Width, o.limits.Height = width, height
	}
}

// WithFramesInFlight sets the depth of the resource ring (1..4).
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		o.limits.FramesInFlight = n
	}
}

// WithCapacity sets the initial meshlet-instance and triangle capacities.
func WithCapacity(maxMeshletInstances, maxTriangles uint32) Option {
	return func(o *options) {
		o.limits.MaxMeshletInstances = maxMeshletInstances
		o.limits.MaxTriangles = maxTriangles
	}
}

// WithHiZLevels limits the Hi-Z pyramid to n levels; 0 builds the full chain.
func WithHiZLevels(n int) Option {
	return func(o *options) {
		o.limits.HiZLevels = n
	}
}

// WithOverdraw enables the per-pixel overdraw counter.
func WithOverdraw(enabled bool) Option {
	return func(o *options) {
		o.limits.Overdraw = enabled
	}
}

// WithWorkers sizes the software backend's worker pool.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.limits.Workers = n
	}
}

// WithCullFlags sets the initial culling tests.
func WithCullFlags(f scene.CullFlags) Option {
	return func(o *options) {
		o.flags = f
	}
}

// WithMicroTriangleArea sets the projected area in pixels below which
// MicroTriangles rejects a triangle.
func WithMicroTriangleArea(area float32) Option {
	return func(o *options) {
		o.microArea = area
	}
}

// WithDeviceProvider shares the host application's GPU device with the
// hal backend instead of opening a standalone one.
func WithDeviceProvider(p DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithAutoReserve controls whether RenderFrame grows capacities to the
// scene's worst case before recording. Without it, overflow is clamped and
// reported in the frame statistics.
func WithAutoReserve(enabled bool) Option {
	return func(o *options) {
		o.autoReserve = enabled
	}
}
