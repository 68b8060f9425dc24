// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import "github.com/chewxy/math32"

// Mat4 is a 4x4 column-major matrix: element (row r, column c) is M[c*4+r].
type Mat4 [16]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate returns a translation matrix.
func Translate(x, y, z float32) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = x, y, z
	return m
}

// Scale returns a non-uniform scale matrix.
func Scale(x, y, z float32) Mat4 {
	m := Identity()
	m[0], m[5], m[10] = x, y, z
	return m
}

// RotateX returns a rotation of angle radians about the X axis.
func RotateX(angle float32) Mat4 {
	s, c := math32.Sincos(angle)
	m := Identity()
	m[5], m[6] = c, s
	m[9], m[10] = -s, c
	return m
}

// RotateY returns a rotation of angle radians about the Y axis.
func RotateY(angle float32) Mat4 {
	s, c := math32.Sincos(angle)
	m := Identity()
	m[0], m[2] = c, -s
	m[8], m[10] = s, c
	return m
}

// RotateZ returns a rotation of angle radians about the Z axis.
func RotateZ(angle float32) Mat4 {
	s, c := math32.Sincos(angle)
	m := Identity()
	m[0], m[1] = c, s
	m[4], m[5] = -s, c
	return m
}

// Perspective returns a right-handed reversed-Z perspective projection.
// View-space z = -near maps to NDC depth 1 and z = -far maps to depth 0.
func Perspective(fovY, aspect, near, far float32) Mat4 {
	f := 1 / math32.Tan(fovY/2)
	var m Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = near / (far - near)
	m[11] = -1
	m[14] = near * far / (far - near)
	return m
}

// LookAt returns a right-handed view matrix looking from eye towards target.
func LookAt(eye, target, up Vec3) Mat4 {
	f := target.Sub(eye).Normalize()
	s := f.Cross(up).Normalize()
	u := s.Cross(f)
	return Mat4{
		s.X, u.X, -f.X, 0,
		s.Y, u.Y, -f.Y, 0,
		s.Z, u.Z, -f.Z, 0,
		-s.Dot(eye), -u.Dot(eye), f.Dot(eye), 1,
	}
}

// Mul returns m * o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c*4+r] = m[r]*o[c*4] + m[4+r]*o[c*4+1] + m[8+r]*o[c*4+2] + m[12+r]*o[c*4+3]
		}
	}
	return out
}

// MulVec4 returns m * v.
func (m Mat4) MulVec4(v Vec4) Vec4 {
	return Vec4{
		m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]*v.W,
		m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]*v.W,
		m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]*v.W,
		m[3]*v.X + m[7]*v.Y + m[11]*v.Z + m[15]*v.W,
	}
}

// MulPoint transforms p as a point (w = 1) without perspective division.
func (m Mat4) MulPoint(p Vec3) Vec3 {
	return m.MulVec4(Vec4{p.X, p.Y, p.Z, 1}).XYZ()
}

// MulDir transforms d as a direction (w = 0).
func (m Mat4) MulDir(d Vec3) Vec3 {
	return m.MulVec4(Vec4{d.X, d.Y, d.Z, 0}).XYZ()
}

// Project transforms p (w = 1) into clip space.
func (m Mat4) Project(p Vec3) Vec4 {
	return m.MulVec4(Vec4{p.X, p.Y, p.Z, 1})
}

// Row returns row r.
func (m Mat4) Row(r int) Vec4 {
	return Vec4{m[r], m[4+r], m[8+r], m[12+r]}
}

// Transpose returns the transpose of m.
func (m Mat4) Transpose() Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[r*4+c] = m[c*4+r]
		}
	}
	return out
}

// Inverse returns the inverse of m. ok is false when m is singular, in
// which case the identity is returned.
func (m Mat4) Inverse() (inv Mat4, ok bool) {
	a00, a01, a02, a03 := m[0], m[1], m[2], m[3]
	a10, a11, a12, a13 := m[4], m[5], m[6], m[7]
	a20, a21, a22, a23 := m[8], m[9], m[10], m[11]
	a30, a31, a32, a33 := m[12], m[13], m[14], m[15]

	b00 := a00*a11 - a01*a10
	b01 := a00*a12 - a02*a10
	b02 := a00*a13 - a03*a10
	b03 := a01*a12 - a02*a11
	b04 := a01*a13 - a03*a11
	b05 := a02*a13 - a03*a12
	b06 := a20*a31 - a21*a30
	b07 := a20*a32 - a22*a30
	b08 := a20*a33 - a23*a30
	b09 := a21*a32 - a22*a31
	b10 := a21*a33 - a23*a31
	b11 := a22*a33 - a23*a32

	det := b00*b11 - b01*b10 + b02*b09 + b03*b08 - b04*b07 + b05*b06
	if det == 0 {
		return Identity(), false
	}
	d := 1 / det

	return Mat4{
		(a11*b11 - a12*b10 + a13*b09) * d,
		(a02*b10 - a01*b11 - a03*b09) * d,
		(a31*b05 - a32*b04 + a33*b03) * d,
		(a22*b04 - a21*b05 - a23*b03) * d,
		(a12*b08 - a10*b11 - a13*b07) * d,
		(a00*b11 - a02*b08 + a03*b07) * d,
		(a32*b02 - a30*b05 - a33*b01) * d,
		(a20*b05 - a22*b02 + a23*b01) * d,
		(a10*b10 - a11*b08 + a13*b06) * d,
		(a01*b08 - a00*b10 - a03*b06) * d,
		(a30*b04 - a31*b02 + a33*b00) * d,
		(a21*b02 - a20*b04 - a23*b00) * d,
		(a11*b07 - a10*b09 - a12*b06) * d,
		(a00*b09 - a01*b07 + a02*b06) * d,
		(a31*b01 - a30*b03 - a32*b00) * d,
		(a20*b03 - a21*b01 + a22*b00) * d,
	}, true
}

// NormalMatrix returns the inverse transpose of the upper 3x3 of m,
// embedded in a Mat4 with zero translation.
func (m Mat4) NormalMatrix() Mat4 {
	linear := m
	linear[12], linear[13], linear[14] = 0, 0, 0
	linear[3], linear[7], linear[11], linear[15] = 0, 0, 0, 1
	inv, ok := linear.Inverse()
	if !ok {
		return Identity()
	}
	return inv.Transpose()
}

// MaxScale returns the largest axis scale of the upper 3x3, used to grow
// bounding sphere radii under non-uniform scale.
func (m Mat4) MaxScale() float32 {
	sx := Vec3{m[0], m[1], m[2]}.Dot(Vec3{m[0], m[1], m[2]})
	sy := Vec3{m[4], m[5], m[6]}.Dot(Vec3{m[4], m[5], m[6]})
	sz := Vec3{m[8], m[9], m[10]}.Dot(Vec3{m[8], m[9], m[10]})
	return math32.Sqrt(math32.Max(sx, math32.Max(sy, sz)))
}
