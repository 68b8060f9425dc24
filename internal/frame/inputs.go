// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import "github.com/gogpu/visbuf/scene"

// Inputs are the per-frame parameters recorded by BeginFrame.
type Inputs struct {
	Index uint64
	Scene *scene.Buffers
	View  scene.View
	Flags scene.CullFlags

	// MicroTriangleArea is the projected area in pixels below which
	// MicroTriangles rejects a triangle.
	MicroTriangleArea float32

	// Dirty lists scene changes since the previous frame.
	Dirty scene.Dirty
}

// Slot returns the frame-in-flight slot of the frame.
func (in *Inputs) Slot(framesInFlight int) int {
	return int(in.Index % uint64(framesInFlight))
}
