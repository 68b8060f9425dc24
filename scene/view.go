// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import "github.com/gogpu/visbuf/geom"

// View is the per-frame camera supplied by the renderer instance.
type View struct {
	View       geom.Mat4
	Projection geom.Mat4
	ViewProj   geom.Mat4
	Frustum    geom.Frustum
	Eye        geom.Vec3
	Near, Far  float32
	Width      uint32
	Height     uint32
}

// NewView derives the combined matrix, frustum planes and eye position
// from a view and a reversed-Z projection matrix.
func NewView(view, proj geom.Mat4, near, far float32, width, height uint32) View {
	vp := proj.Mul(view)
	eye := geom.Vec3{}
	if inv, ok := view.Inverse(); ok {
		eye = inv.MulPoint(geom.Vec3{})
	}
	return View{
		View:       view,
		Projection: proj,
		ViewProj:   vp,
		Frustum:    geom.ExtractFrustum(vp),
		Eye:        eye,
		Near:       near,
		Far:        far,
		Width:      width,
		Height:     height,
	}
}

// LookAtView is a convenience for a perspective camera at eye looking at
// target with +Y up.
func LookAtView(eye, target geom.Vec3, fovY, near, far float32, width, height uint32) View {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	view := geom.LookAt(eye, target, geom.V3(0, 1, 0))
	proj := geom.Perspective(fovY, aspect, near, far)
	return NewView(view, proj, near, far, width, height)
}
