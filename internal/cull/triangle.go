// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/scene"
)

// TriangleParams are the per-frame inputs of the triangle tests.
type TriangleParams struct {
	Flags             scene.CullFlags
	Width, Height     float32
	MicroTriangleArea float32
}

// OutsideClipPlane reports whether all three vertices lie outside the same
// clip plane of the reversed-Z clip volume.
func OutsideClipPlane(a, b, c geom.Vec4) bool {
	switch {
	case a.X < -a.W && b.X < -b.W && c.X < -c.W:
		return true
	case a.X > a.W && b.X > b.W && c.X > c.W:
		return true
	case a.Y < -a.W && b.Y < -b.W && c.Y < -c.W:
		return true
	case a.Y > a.W && b.Y > b.W && c.Y > c.W:
		return true
	case a.Z < 0 && b.Z < 0 && c.Z < 0:
		return true
	case a.Z > a.W && b.Z > b.W && c.Z > c.W:
		return true
	}
	return false
}

// SignedArea returns twice the signed NDC area of the projected triangle.
// Counter-clockwise (front-facing) triangles are positive.
func SignedArea(a, b, c geom.Vec4) float32 {
	pa := geom.V2(a.X/a.W, a.Y/a.W)
	pb := geom.V2(b.X/b.W, b.Y/b.W)
	pc := geom.V2(c.X/c.W, c.Y/c.W)
	return pb.Sub(pa).Cross(pc.Sub(pa))
}

// RejectTriangle runs the enabled triangle tests on clip-space vertices.
// Without TriangleCulling nothing is rejected. Triangles with a vertex on
// or behind the eye plane skip the screen-space tests.
func RejectTriangle(a, b, c geom.Vec4, p TriangleParams) bool {
	if !p.Flags.Has(scene.TriangleCulling) {
		return false
	}
	if OutsideClipPlane(a, b, c) {
		return true
	}
	if a.W <= 0 || b.W <= 0 || c.W <= 0 {
		return false
	}

	area := SignedArea(a, b, c)
	if p.Flags.Has(scene.TriangleBackFace) && area < 0 {
		return true
	}
	if p.Flags.Has(scene.MicroTriangles) {
		if area == 0 {
			return true
		}
		// NDC spans two units per axis.
		pixels := math32.Abs(area) * 0.5 * p.Width * p.Height * 0.25
		if pixels < p.MicroTriangleArea {
			return true
		}
		if !coversSample(a, b, c, p.Width, p.Height) {
			return true
		}
	}
	return false
}

// coversSample reports whether the pixel bounding box of the triangle
// contains at least one pixel centre on both axes.
func coversSample(a, b, c geom.Vec4, width, height float32) bool {
	ax, ay := toPixel(a, width, height)
	bx, by := toPixel(b, width, height)
	cx, cy := toPixel(c, width, height)
	minX := math32.Min(ax, math32.Min(bx, cx))
	maxX := math32.Max(ax, math32.Max(bx, cx))
	minY := math32.Min(ay, math32.Min(by, cy))
	maxY := math32.Max(ay, math32.Max(by, cy))
	return math32.Ceil(minX-0.5) <= math32.Floor(maxX-0.5) &&
		math32.Ceil(minY-0.5) <= math32.Floor(maxY-0.5)
}

func toPixel(v geom.Vec4, width, height float32) (float32, float32) {
	return (v.X/v.W*0.5 + 0.5) * width, (0.5 - v.Y/v.W*0.5) * height
}
