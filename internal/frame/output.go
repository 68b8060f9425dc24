// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"image"

	"github.com/gogpu/visbuf/scene"
)

// Pyramid is a Hi-Z mip chain. Level 0 has power-of-two dimensions not
// larger than the depth target.
type Pyramid struct {
	Levels []Level
}

// Level is one mip of a Pyramid.
type Level struct {
	Width, Height int
	Depth         []float32
}

// Texel returns the depth at (x, y) of level l, clamped to the level bounds.
func (p *Pyramid) Texel(l, x, y int) float32 {
	lv := &p.Levels[l]
	x = min(max(x, 0), lv.Width-1)
	y = min(max(y, 0), lv.Height-1)
	return lv.Depth[y*lv.Width+x]
}

// Empty reports whether p has no levels.
func (p *Pyramid) Empty() bool { return p == nil || len(p.Levels) == 0 }

// GBuffer holds the decode attachments.
type GBuffer struct {
	Albedo   *image.NRGBA
	Normal   *image.NRGBA
	Emissive *image.NRGBA
	// MRO packs metallic, roughness and occlusion in R, G and B.
	MRO *image.NRGBA
}

// PhaseStats counts the work of one phase.
type PhaseStats struct {
	// Candidates is the meshlet-instance count the meshlet culler saw.
	Candidates uint32
	// Meshlets is the visible meshlet count.
	Meshlets uint32
	// TriangleBudget sums the triangle counts of visible meshlets.
	TriangleBudget uint32
	// Triangles is the number of triangles that survived triangle culling.
	Triangles uint32
}

// Stats summarizes a frame.
type Stats struct {
	Instances        uint32
	VisibleInstances uint32
	Early, Late      PhaseStats

	// DroppedMeshletInstances counts candidates past MaxMeshletInstances.
	DroppedMeshletInstances uint32
	// DroppedTriangles counts surviving triangles past MaxTriangles.
	DroppedTriangles uint32
}

// Phase returns the stats of p.
func (s *Stats) Phase(p Phase) *PhaseStats {
	if p == Late {
		return &s.Late
	}
	return &s.Early
}

// Output is what a frame produced. Device backends leave the image fields
// nil and expose their targets separately.
type Output struct {
	Index         uint64
	Width, Height int

	Visibility []scene.VisibilityID
	Depth      []float32
	Overdraw   []uint32
	HiZ        *Pyramid
	GBuffer    GBuffer

	// Candidates, EarlyVisible and LateVisible are the meshlet-instance
	// lists of the frame, truncated to their counts.
	Candidates   []scene.MeshletInstance
	EarlyVisible []uint32
	LateVisible  []uint32

	// Indices holds the reordered index buffers of each phase.
	EarlyIndices []uint32
	LateIndices  []uint32

	Stats Stats
	Trace Trace
}

// VisibilityAt returns the visibility id at pixel (x, y).
func (o *Output) VisibilityAt(x, y int) scene.VisibilityID {
	return o.Visibility[y*o.Width+x]
}
