// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import "github.com/chewxy/math32"

// AABB is an axis-aligned box stored as center and half extent.
type AABB struct {
	Center Vec3
	Extent Vec3
}

// AABBFromMinMax returns the box spanning lo..hi.
func AABBFromMinMax(lo, hi Vec3) AABB {
	return AABB{
		Center: lo.Add(hi).Scale(0.5),
		Extent: hi.Sub(lo).Scale(0.5),
	}
}

// Min returns the minimum corner.
func (b AABB) Min() Vec3 { return b.Center.Sub(b.Extent) }

// Max returns the maximum corner.
func (b AABB) Max() Vec3 { return b.Center.Add(b.Extent) }

// Corners returns the eight corners of the box.
func (b AABB) Corners() [8]Vec3 {
	var out [8]Vec3
	for i := range out {
		sx, sy, sz := float32(-1), float32(-1), float32(-1)
		if i&1 != 0 {
			sx = 1
		}
		if i&2 != 0 {
			sy = 1
		}
		if i&4 != 0 {
			sz = 1
		}
		out[i] = b.Center.Add(Vec3{b.Extent.X * sx, b.Extent.Y * sy, b.Extent.Z * sz})
	}
	return out
}

// Transform returns the world-space box enclosing b transformed by m
// (Arvo's method: the extent is multiplied by |M|).
func (b AABB) Transform(m Mat4) AABB {
	c := m.MulPoint(b.Center)
	e := b.Extent
	return AABB{
		Center: c,
		Extent: Vec3{
			math32.Abs(m[0])*e.X + math32.Abs(m[4])*e.Y + math32.Abs(m[8])*e.Z,
			math32.Abs(m[1])*e.X + math32.Abs(m[5])*e.Y + math32.Abs(m[9])*e.Z,
			math32.Abs(m[2])*e.X + math32.Abs(m[6])*e.Y + math32.Abs(m[10])*e.Z,
		},
	}
}

// Sphere is a bounding sphere.
type Sphere struct {
	Center Vec3
	Radius float32
}

// Transform returns the sphere transformed by m. The radius grows by the
// largest axis scale so the result still encloses the transformed volume.
func (s Sphere) Transform(m Mat4) Sphere {
	return Sphere{
		Center: m.MulPoint(s.Center),
		Radius: s.Radius * m.MaxScale(),
	}
}

// BoundsOf returns the AABB and a bounding sphere of points. The sphere is
// centered on the box and sized to its farthest point.
func BoundsOf(points []Vec3) (AABB, Sphere) {
	if len(points) == 0 {
		return AABB{}, Sphere{}
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	box := AABBFromMinMax(lo, hi)
	var r2 float32
	for _, p := range points {
		d := p.Sub(box.Center)
		r2 = math32.Max(r2, d.Dot(d))
	}
	return box, Sphere{Center: box.Center, Radius: math32.Sqrt(r2)}
}
