// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/scene"
)

// pix returns the clip position of pixel coordinates (x, y) on a 64x64
// target at depth 0.5 and w = 1.
func pix(x, y float32) geom.Vec4 {
	return geom.V4(x/32-1, 1-y/32, 0.5, 1)
}

func TestSignedAreaWinding(t *testing.T) {
	a := geom.V4(-0.5, -0.5, 0.5, 1)
	b := geom.V4(0.5, -0.5, 0.5, 1)
	c := geom.V4(0, 0.5, 0.5, 1)
	assert.Greater(t, SignedArea(a, b, c), float32(0))
	assert.Less(t, SignedArea(a, c, b), float32(0))
	assert.InDelta(t, 1.0, SignedArea(a, b, c), 1e-6)
}

func TestOutsideClipPlane(t *testing.T) {
	in := geom.V4(0, 0, 0.5, 1)
	tests := []struct {
		name    string
		a, b, c geom.Vec4
		want    bool
	}{
		{"inside", in, in, in, false},
		{"left", geom.V4(-2, 0, 0.5, 1), geom.V4(-3, 1, 0.5, 1), geom.V4(-1.5, -1, 0.5, 1), true},
		{"right", geom.V4(2, 0, 0.5, 1), geom.V4(3, 1, 0.5, 1), geom.V4(1.5, -1, 0.5, 1), true},
		{"bottom", geom.V4(0, -2, 0.5, 1), geom.V4(1, -3, 0.5, 1), geom.V4(-1, -1.5, 0.5, 1), true},
		{"top", geom.V4(0, 2, 0.5, 1), geom.V4(1, 3, 0.5, 1), geom.V4(-1, 1.5, 0.5, 1), true},
		{"beyond far", geom.V4(0, 0, -0.1, 1), geom.V4(1, 0, -0.2, 1), geom.V4(0, 1, -0.3, 1), true},
		{"before near", geom.V4(0, 0, 1.5, 1), geom.V4(1, 0, 2, 1), geom.V4(0, 1, 1.1, 1), true},
		{"spans left and right", geom.V4(-2, 0, 0.5, 1), geom.V4(2, 0, 0.5, 1), geom.V4(-2, 1, 0.5, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutsideClipPlane(tt.a, tt.b, tt.c))
		})
	}
}

func TestRejectTriangle(t *testing.T) {
	all := TriangleParams{Flags: scene.AllCullFlags, Width: 64, Height: 64}
	off := TriangleParams{Flags: scene.AllCullFlags &^ scene.TriangleCulling, Width: 64, Height: 64}

	front := [3]geom.Vec4{pix(8, 40), pix(40, 40), pix(8, 8)}
	back := [3]geom.Vec4{front[0], front[2], front[1]}
	outside := [3]geom.Vec4{geom.V4(2, 0, 0.5, 1), geom.V4(3, 1, 0.5, 1), geom.V4(1.5, -1, 0.5, 1)}
	between := [3]geom.Vec4{pix(10.1, 10.4), pix(10.4, 10.4), pix(10.1, 10.1)}
	degenerate := [3]geom.Vec4{pix(0, 0), pix(16, 16), pix(32, 32)}
	behind := [3]geom.Vec4{front[0], front[2], geom.V4(0, 0, 2, -1)}

	tests := []struct {
		name string
		tri  [3]geom.Vec4
		p    TriangleParams
		want bool
	}{
		{"front facing", front, all, false},
		{"back facing", back, all, true},
		{"back facing without backface test", back, TriangleParams{Flags: scene.TriangleCulling, Width: 64, Height: 64}, false},
		{"outside", outside, all, true},
		{"between sample centres", between, all, true},
		{"degenerate", degenerate, all, true},
		{"vertex behind eye", behind, all, false},
		{"master flag off", back, off, false},
		{"master flag off outside", outside, off, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RejectTriangle(tt.tri[0], tt.tri[1], tt.tri[2], tt.p))
		})
	}
}

func TestRejectTriangleMicroArea(t *testing.T) {
	// Right triangle with 2px legs covers 2 square pixels.
	a, b, c := pix(10, 12), pix(12, 12), pix(10, 10)
	p := TriangleParams{Flags: scene.TriangleCulling | scene.MicroTriangles, Width: 64, Height: 64}

	p.MicroTriangleArea = 1
	assert.False(t, RejectTriangle(a, b, c, p))
	p.MicroTriangleArea = 4
	assert.True(t, RejectTriangle(a, b, c, p))

	p.Flags = scene.TriangleCulling
	assert.False(t, RejectTriangle(a, b, c, p))
}
