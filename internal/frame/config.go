// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"errors"
	"fmt"

	"github.com/gogpu/visbuf/scene"
)

// ErrInvalidConfig is returned for configurations a backend cannot honor.
var ErrInvalidConfig = errors.New("frame: invalid configuration")

// Config sizes the persistent and transient resources of a backend.
type Config struct {
	Width, Height uint32

	// FramesInFlight is the depth of the Hi-Z, mask and transient ring.
	FramesInFlight int

	// MaxMeshletInstances caps candidate and visible meshlet lists and
	// the visibility mask.
	MaxMeshletInstances uint32

	// MaxTriangles caps the reordered index buffer (in triangles).
	MaxTriangles uint32

	// HiZLevels limits the pyramid; 0 builds the full chain.
	HiZLevels int

	// Overdraw enables the per-pixel overdraw counter.
	Overdraw bool

	// Workers sizes the software backend's pool; 0 uses GOMAXPROCS.
	Workers int
}

// Validate checks c.
func (c *Config) Validate() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return fmt.Errorf("%w: target size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.FramesInFlight < 1 || c.FramesInFlight > 4:
		return fmt.Errorf("%w: %d frames in flight, want 1..4", ErrInvalidConfig, c.FramesInFlight)
	case c.MaxMeshletInstances == 0 || c.MaxMeshletInstances > scene.MaxDrawSlots:
		return fmt.Errorf("%w: max meshlet instances %d, want 1..%d", ErrInvalidConfig, c.MaxMeshletInstances, scene.MaxDrawSlots)
	case c.MaxTriangles == 0:
		return fmt.Errorf("%w: max triangles must be positive", ErrInvalidConfig)
	case c.HiZLevels < 0:
		return fmt.Errorf("%w: negative Hi-Z level count", ErrInvalidConfig)
	}
	return nil
}

// MaxIndices returns the index buffer capacity.
func (c *Config) MaxIndices() uint32 { return c.MaxTriangles * 3 }
