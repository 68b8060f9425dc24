// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/scene"
)

func TestHiZLevelFor(t *testing.T) {
	tests := []struct {
		footprint float32
		levels    int
		want      int
	}{
		{0.5, 8, 0},
		{1, 8, 0},
		{2, 8, 1},
		{3, 8, 2},
		{8, 8, 3},
		{9, 8, 4},
		{1000, 4, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HiZLevelFor(tt.footprint, tt.levels), "footprint %v", tt.footprint)
	}
}

// uniformPyramid returns a pyramid whose every texel holds depth d.
func uniformPyramid(w, h int, d float32) *frame.Pyramid {
	p := NewPyramid(w, h, 0)
	for l := range p.Levels {
		for i := range p.Levels[l].Depth {
			p.Levels[l].Depth[i] = d
		}
	}
	return p
}

func TestOccluded(t *testing.T) {
	view := scene.LookAtView(geom.V3(0, 0, 10), geom.Vec3{}, math32.Pi/3, 0.1, 100, 64, 64)
	origin := view.ViewProj.Project(geom.Vec3{})
	hiz := uniformPyramid(64, 64, origin.Z/origin.W)

	box := func(x, y, z, half float32) geom.AABB {
		return geom.AABB{Center: geom.V3(x, y, z), Extent: geom.V3(half, half, half)}
	}

	tests := []struct {
		name string
		hiz  *frame.Pyramid
		box  geom.AABB
		want bool
	}{
		{"behind occluder", hiz, box(0, 0, -5, 0.5), true},
		{"in front of occluder", hiz, box(0, 0, 5, 0.5), false},
		{"straddles occluder", hiz, box(0, 0, 0, 0.5), false},
		{"contains eye", hiz, box(0, 0, 10, 1), false},
		{"off screen right", hiz, box(100, 0, -5, 0.5), false},
		{"off screen left", hiz, box(-100, 0, -5, 0.5), false},
		{"off screen above", hiz, box(0, 100, -5, 0.5), false},
		{"nil pyramid", nil, box(0, 0, -5, 0.5), false},
		{"empty pyramid", &frame.Pyramid{}, box(0, 0, -5, 0.5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Occluded(tt.hiz, view.ViewProj, tt.box))
		})
	}
}

func TestProjectBoxBounds(t *testing.T) {
	view := scene.LookAtView(geom.V3(0, 0, 10), geom.Vec3{}, math32.Pi/3, 0.1, 100, 64, 64)

	r, ok := ProjectBox(view.ViewProj, geom.AABB{Center: geom.V3(100, 0, -5), Extent: geom.V3(0.5, 0.5, 0.5)})
	assert.True(t, ok)
	assert.Greater(t, r.MinU, float32(1), "box right of the frustum starts past the right edge")
	assert.Greater(t, r.MaxU, r.MinU)

	r, ok = ProjectBox(view.ViewProj, geom.AABB{Center: geom.V3(-100, 0, -5), Extent: geom.V3(0.5, 0.5, 0.5)})
	assert.True(t, ok)
	assert.Less(t, r.MaxU, float32(0), "box left of the frustum ends before the left edge")
	assert.Greater(t, r.MaxU, r.MinU)

	r, ok = ProjectBox(view.ViewProj, geom.AABB{Center: geom.Vec3{}, Extent: geom.V3(0.5, 0.5, 0.5)})
	assert.True(t, ok)
	assert.InDelta(t, 0.5, (r.MinU+r.MaxU)/2, 1e-5)
	assert.InDelta(t, 0.5, (r.MinV+r.MaxV)/2, 1e-5)
	assert.Less(t, r.MaxU-r.MinU, float32(0.5))
}

func TestOccludedNeedsFullCoverage(t *testing.T) {
	view := scene.LookAtView(geom.V3(0, 0, 10), geom.Vec3{}, math32.Pi/3, 0.1, 100, 64, 64)
	origin := view.ViewProj.Project(geom.Vec3{})
	hiz := uniformPyramid(64, 64, origin.Z/origin.W)
	b := geom.AABB{Center: geom.V3(0, 0, -5), Extent: geom.V3(0.5, 0.5, 0.5)}
	assert.True(t, Occluded(hiz, view.ViewProj, b))

	// A single hole of cleared depth at level 0 under the box is enough.
	r, ok := ProjectBox(view.ViewProj, b)
	assert.True(t, ok)
	base := &hiz.Levels[0]
	x := texelIndex((r.MinU+r.MaxU)/2, base.Width)
	y := texelIndex((r.MinV+r.MaxV)/2, base.Height)
	base.Depth[y*base.Width+x] = 0
	for l := 1; l < len(hiz.Levels); l++ {
		lv := &hiz.Levels[l]
		for ty := range lv.Height {
			for tx := range lv.Width {
				lv.Depth[ty*lv.Width+tx] = reduceLevel(&hiz.Levels[l-1], tx, ty)
			}
		}
	}
	assert.False(t, Occluded(hiz, view.ViewProj, b))
}

func TestProjectBoxNearestDepth(t *testing.T) {
	view := scene.LookAtView(geom.V3(0, 0, 10), geom.Vec3{}, math32.Pi/3, 0.1, 100, 64, 64)
	near, ok := ProjectBox(view.ViewProj, geom.AABB{Center: geom.V3(0, 0, 2), Extent: geom.V3(1, 1, 1)})
	assert.True(t, ok)
	far, ok := ProjectBox(view.ViewProj, geom.AABB{Center: geom.V3(0, 0, -20), Extent: geom.V3(1, 1, 1)})
	assert.True(t, ok)
	assert.Greater(t, near.NearestDepth, far.NearestDepth)
	assert.Less(t, near.MinU, far.MinU)
	assert.Greater(t, near.MaxU, far.MaxU)
}
