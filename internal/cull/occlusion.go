// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/internal/frame"
)

// ScreenRect is a projected footprint in normalized screen coordinates
// (u right, v down, both 0..1) with the nearest NDC depth of the volume.
type ScreenRect struct {
	MinU, MinV, MaxU, MaxV float32
	NearestDepth           float32
}

// ProjectBox projects a world-space box. ok is false when any corner lies
// on or behind the eye plane; such volumes are never occlusion-culled.
func ProjectBox(viewProj geom.Mat4, box geom.AABB) (r ScreenRect, ok bool) {
	inf := math32.Inf(1)
	r = ScreenRect{MinU: inf, MinV: inf, MaxU: -inf, MaxV: -inf}
	for _, c := range box.Corners() {
		clip := viewProj.Project(c)
		if clip.W <= 1e-6 {
			return ScreenRect{}, false
		}
		inv := 1 / clip.W
		u := clip.X*inv*0.5 + 0.5
		v := 0.5 - clip.Y*inv*0.5
		r.MinU = math32.Min(r.MinU, u)
		r.MaxU = math32.Max(r.MaxU, u)
		r.MinV = math32.Min(r.MinV, v)
		r.MaxV = math32.Max(r.MaxV, v)
		r.NearestDepth = math32.Max(r.NearestDepth, clip.Z*inv)
	}
	return r, true
}

// HiZLevelFor returns the lowest level at which a footprint of the given
// size in level-0 texels spans at most two texels per axis.
func HiZLevelFor(footprint float32, levels int) int {
	if footprint <= 1 {
		return 0
	}
	l := int(math32.Ceil(math32.Log2(footprint)))
	return min(max(l, 0), levels-1)
}

// Occluded reports whether a world-space box is certainly hidden behind the
// depth recorded in hiz. A nil or empty pyramid hides nothing.
func Occluded(hiz *frame.Pyramid, viewProj geom.Mat4, box geom.AABB) bool {
	if hiz.Empty() {
		return false
	}
	r, ok := ProjectBox(viewProj, box)
	if !ok {
		return false
	}
	if r.MaxU < 0 || r.MaxV < 0 || r.MinU > 1 || r.MinV > 1 {
		return false
	}
	r.MinU = math32.Max(r.MinU, 0)
	r.MinV = math32.Max(r.MinV, 0)
	r.MaxU = math32.Min(r.MaxU, 1)
	r.MaxV = math32.Min(r.MaxV, 1)

	base := &hiz.Levels[0]
	footprint := math32.Max((r.MaxU-r.MinU)*float32(base.Width), (r.MaxV-r.MinV)*float32(base.Height))
	l := HiZLevelFor(footprint, len(hiz.Levels))
	lv := &hiz.Levels[l]

	x0 := texelIndex(r.MinU, lv.Width)
	x1 := texelIndex(r.MaxU, lv.Width)
	y0 := texelIndex(r.MinV, lv.Height)
	y1 := texelIndex(r.MaxV, lv.Height)

	// Usually a 2x2 block; wider only when the level count was capped.
	occluder := float32(1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			occluder = math32.Min(occluder, lv.Depth[y*lv.Width+x])
		}
	}
	return r.NearestDepth < occluder
}

func texelIndex(u float32, size int) int {
	i := int(math32.Floor(u * float32(size)))
	return min(max(i, 0), size-1)
}
