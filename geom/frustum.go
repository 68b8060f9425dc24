// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

// Plane is the set of points p with Normal·p + D = 0. Points with a
// positive distance lie on the inside.
type Plane struct {
	Normal Vec3
	D      float32
}

// PlaneFromVec4 builds a normalized plane from (a, b, c, d) coefficients.
func PlaneFromVec4(v Vec4) Plane {
	n := Vec3{v.X, v.Y, v.Z}
	l := n.Length()
	if l == 0 {
		return Plane{}
	}
	return Plane{Normal: n.Scale(1 / l), D: v.W / l}
}

// Distance returns the signed distance of p from the plane.
func (p Plane) Distance(v Vec3) float32 { return p.Normal.Dot(v) + p.D }

// Frustum holds the six clip planes in world space.
type Frustum [6]Plane

// Frustum plane indices.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// ExtractFrustum returns the world-space planes of a reversed-Z
// view-projection matrix (clip volume -w<=x,y<=w, 0<=z<=w).
func ExtractFrustum(viewProj Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	var f Frustum
	f[PlaneLeft] = PlaneFromVec4(r3.Add(r0))
	f[PlaneRight] = PlaneFromVec4(r3.Sub(r0))
	f[PlaneBottom] = PlaneFromVec4(r3.Add(r1))
	f[PlaneTop] = PlaneFromVec4(r3.Sub(r1))
	f[PlaneNear] = PlaneFromVec4(r3.Sub(r2)) // z <= w, depth 1 at the near plane
	f[PlaneFar] = PlaneFromVec4(r2)          // z >= 0
	return f
}

// IntersectsSphere reports whether the sphere is at least partially inside.
func (f *Frustum) IntersectsSphere(s Sphere) bool {
	for i := range f {
		if f[i].Distance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// IntersectsAABB reports whether the box is at least partially inside.
func (f *Frustum) IntersectsAABB(b AABB) bool {
	for i := range f {
		n := f[i].Normal
		r := b.Extent.Dot(n.Abs())
		if f[i].Distance(b.Center) < -r {
			return false
		}
	}
	return true
}
