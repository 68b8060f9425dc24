// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/internal/parallel"
	"github.com/gogpu/visbuf/scene"
)

func newTestRasterizer(w, h int) *rasterizer {
	return &rasterizer{
		width:      w,
		height:     h,
		depth:      make([]float32, w*h),
		visibility: make([]scene.VisibilityID, w*h),
		overdraw:   make([]uint32, w*h),
	}
}

// clipAt returns the clip position of pixel coordinates (x, y) on a w x h
// target at depth 0.5.
func clipAt(x, y, w, h float32) geom.Vec4 {
	return geom.V4(x/w*2-1, 1-y/h*2, 0.5, 1)
}

// Two triangles sharing a diagonal through pixel centres must cover every
// pixel of the square exactly once.
func TestFillSharedEdge(t *testing.T) {
	r := newTestRasterizer(8, 8)
	at := func(x, y float32) geom.Vec4 { return clipAt(x, y, 8, 8) }
	full := parallel.Rect{X1: 8, Y1: 8}

	t1 := r.toScreen(at(0, 0), at(4, 4), at(0, 4), scene.PackVisibility(0, 0, 0))
	t2 := r.toScreen(at(0, 0), at(4, 0), at(4, 4), scene.PackVisibility(0, 0, 1))
	require.True(t, t1.hasValue)
	require.True(t, t2.hasValue)
	r.fill(&t1, full)
	r.fill(&t2, full)

	for y := range 8 {
		for x := range 8 {
			want := uint32(0)
			if x < 4 && y < 4 {
				want = 1
			}
			assert.Equal(t, want, r.overdraw[y*8+x], "pixel (%d,%d)", x, y)
		}
	}
}

func TestFillWindingIndependent(t *testing.T) {
	at := func(x, y float32) geom.Vec4 { return clipAt(x, y, 16, 16) }
	a := newTestRasterizer(16, 16)
	b := newTestRasterizer(16, 16)
	full := parallel.Rect{X1: 16, Y1: 16}

	ta := a.toScreen(at(1, 1), at(13, 3), at(5, 14), 1)
	tb := b.toScreen(at(1, 1), at(5, 14), at(13, 3), 1)
	a.fill(&ta, full)
	b.fill(&tb, full)
	assert.Equal(t, a.overdraw, b.overdraw)
	assert.Contains(t, a.overdraw, uint32(1))
}

func TestFillDepthTest(t *testing.T) {
	r := newTestRasterizer(4, 4)
	full := parallel.Rect{X1: 4, Y1: 4}
	quad := func(z float32, id scene.VisibilityID) {
		v := func(x, y float32) geom.Vec4 { return geom.V4(x, y, z, 1) }
		t1 := r.toScreen(v(-1, -1), v(1, -1), v(1, 1), id)
		t2 := r.toScreen(v(-1, -1), v(1, 1), v(-1, 1), id)
		r.fill(&t1, full)
		r.fill(&t2, full)
	}
	quad(0.3, 1)
	quad(0.2, 2) // farther in reversed-Z
	quad(0.6, 3)
	for i := range r.visibility {
		assert.Equal(t, scene.VisibilityID(3), r.visibility[i])
		assert.InDelta(t, 0.6, r.depth[i], 1e-6)
		assert.Equal(t, uint32(2), r.overdraw[i])
	}
}

func TestClipNear(t *testing.T) {
	in := geom.V4(0, 0, 0.5, 1)
	front := [3]geom.Vec4{in, geom.V4(0.5, 0, 0.5, 1), geom.V4(0, 0.5, 0.5, 1)}
	assert.Len(t, clipNear(front), 3)

	oneBehind := [3]geom.Vec4{in, geom.V4(0.5, 0, 0.5, 1), geom.V4(0, 0.5, 2, 1)}
	poly := clipNear(oneBehind)
	require.Len(t, poly, 4)
	for _, v := range poly {
		assert.LessOrEqual(t, v.Z, v.W+1e-6)
	}

	twoBehind := [3]geom.Vec4{in, geom.V4(0.5, 0, 2, 1), geom.V4(0, 0.5, 2, 1)}
	assert.Len(t, clipNear(twoBehind), 3)

	allBehind := [3]geom.Vec4{geom.V4(0, 0, 2, 1), geom.V4(0.5, 0, 2, 1), geom.V4(0, 0.5, 2, 1)}
	assert.Empty(t, clipNear(allBehind))
}
