// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-4

func assertMat4(t *testing.T, want, got Mat4) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], tol, "element %d", i)
	}
}

func TestMat4Inverse(t *testing.T) {
	m := Translate(1, 2, 3).Mul(RotateY(0.7)).Mul(Scale(2, 3, 4))
	inv, ok := m.Inverse()
	require.True(t, ok)
	assertMat4(t, Identity(), m.Mul(inv))

	_, ok = Mat4{}.Inverse()
	assert.False(t, ok)
}

func TestMat4Transforms(t *testing.T) {
	p := Translate(1, 2, 3).MulPoint(V3(1, 1, 1))
	assert.Equal(t, V3(2, 3, 4), p)

	d := Translate(1, 2, 3).MulDir(V3(1, 0, 0))
	assert.Equal(t, V3(1, 0, 0), d)

	r := RotateZ(math32.Pi / 2).MulDir(V3(1, 0, 0))
	assert.InDelta(t, 0, r.X, tol)
	assert.InDelta(t, 1, r.Y, tol)
}

func TestNormalMatrix(t *testing.T) {
	m := Scale(2, 1, 1)
	n := m.NormalMatrix().MulDir(V3(1, 1, 0)).Normalize()
	// A plane x=y scaled by 2 in x has normal proportional to (1/2, 1).
	want := V3(0.5, 1, 0).Normalize()
	assert.InDelta(t, want.X, n.X, tol)
	assert.InDelta(t, want.Y, n.Y, tol)
}

func TestPerspectiveReversedZ(t *testing.T) {
	proj := Perspective(math32.Pi/2, 1, 0.1, 100)

	near := proj.Project(V3(0, 0, -0.1))
	far := proj.Project(V3(0, 0, -100))
	assert.InDelta(t, 1, near.Z/near.W, tol)
	assert.InDelta(t, 0, far.Z/far.W, tol)

	mid := proj.Project(V3(0, 0, -10))
	z := mid.Z / mid.W
	assert.Greater(t, z, float32(0))
	assert.Less(t, z, float32(1))
}

func TestLookAt(t *testing.T) {
	view := LookAt(V3(0, 0, 5), V3(0, 0, 0), V3(0, 1, 0))
	p := view.MulPoint(V3(0, 0, 0))
	assert.InDelta(t, 0, p.X, tol)
	assert.InDelta(t, 0, p.Y, tol)
	assert.InDelta(t, -5, p.Z, tol)

	right := view.MulPoint(V3(1, 0, 0))
	assert.InDelta(t, 1, right.X, tol)
}

func TestFrustum(t *testing.T) {
	view := LookAt(V3(0, 0, 5), V3(0, 0, 0), V3(0, 1, 0))
	proj := Perspective(math32.Pi/3, 16.0/9.0, 0.1, 50)
	f := ExtractFrustum(proj.Mul(view))

	tests := []struct {
		name   string
		sphere Sphere
		want   bool
	}{
		{"origin", Sphere{V3(0, 0, 0), 1}, true},
		{"behind camera", Sphere{V3(0, 0, 10), 1}, false},
		{"beyond far", Sphere{V3(0, 0, -60), 1}, false},
		{"far left", Sphere{V3(-100, 0, 0), 1}, false},
		{"far above", Sphere{V3(0, 100, 0), 1}, false},
		{"straddling near plane", Sphere{V3(0, 0, 4.95), 0.2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IntersectsSphere(tt.sphere))
			box := AABB{Center: tt.sphere.Center, Extent: V3(tt.sphere.Radius, tt.sphere.Radius, tt.sphere.Radius)}
			assert.Equal(t, tt.want, f.IntersectsAABB(box))
		})
	}
}

func TestBounds(t *testing.T) {
	box, sphere := BoundsOf([]Vec3{V3(-1, -2, -3), V3(1, 2, 3), V3(0, 0, 0)})
	assert.Equal(t, V3(0, 0, 0), box.Center)
	assert.Equal(t, V3(1, 2, 3), box.Extent)
	assert.InDelta(t, math32.Sqrt(14), sphere.Radius, tol)

	moved := box.Transform(Translate(5, 0, 0).Mul(RotateZ(math32.Pi / 2)))
	assert.InDelta(t, 5, moved.Center.X, tol)
	assert.InDelta(t, 2, moved.Extent.X, tol)
	assert.InDelta(t, 1, moved.Extent.Y, tol)

	s := Sphere{V3(1, 0, 0), 1}.Transform(Scale(1, 3, 1))
	assert.InDelta(t, 3, s.Radius, tol)

	empty, es := BoundsOf(nil)
	assert.Equal(t, AABB{}, empty)
	assert.Equal(t, Sphere{}, es)
}
