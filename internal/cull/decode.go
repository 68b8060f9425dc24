// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"image"
	"image/color"

	"github.com/chewxy/math32"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/scene"
)

// Surface is the reconstructed surface under one pixel.
type Surface struct {
	Instance, Meshlet, Triangle uint32

	// Barycentrics are perspective-correct weights of the three corners.
	Barycentrics geom.Vec3
	Position     geom.Vec3 // world space
	Normal       geom.Vec3 // world space, unit length
	UV           geom.Vec2
	Material     scene.Material
}

// ResolvePixel re-fetches the records encoded in id and interpolates the
// triangle's attributes at the centre of pixel (x, y). ok is false for
// empty pixels and ids that do not resolve.
func ResolvePixel(sc *scene.Buffers, viewProj geom.Mat4, id scene.VisibilityID, x, y, width, height int) (s Surface, ok bool) {
	if id.Empty() {
		return Surface{}, false
	}
	instance, meshlet, tri := id.Unpack()
	if int(instance) >= len(sc.Instances) {
		return Surface{}, false
	}
	inst := sc.Instances[instance]
	mesh := &sc.Meshes[inst.Mesh]
	lod := sc.LODOf(inst)
	if meshlet >= lod.MeshletCount {
		return Surface{}, false
	}
	m := &sc.Meshlets[lod.MeshletOffset+meshlet]
	if tri >= m.TriangleCount {
		return Surface{}, false
	}
	xf := &sc.Transforms[inst.Transform]

	a, b, c := meshletTriangle(sc, mesh, lod, m, tri)
	verts := [3]*scene.Vertex{&sc.Vertices[a], &sc.Vertices[b], &sc.Vertices[c]}
	mvp := viewProj.Mul(xf.World)
	var clip [3]geom.Vec4
	for i, v := range verts {
		clip[i] = mvp.Project(v.Position)
	}

	px := (float32(x)+0.5)/float32(width)*2 - 1
	py := 1 - (float32(y)+0.5)/float32(height)*2
	bary, ok := perspectiveBarycentrics(clip, px, py)
	if !ok {
		return Surface{}, false
	}

	s = Surface{Instance: instance, Meshlet: meshlet, Triangle: tri, Barycentrics: bary}
	w := [3]float32{bary.X, bary.Y, bary.Z}
	var normal geom.Vec3
	for i, v := range verts {
		s.Position = s.Position.Add(xf.World.MulPoint(v.Position).Scale(w[i]))
		normal = normal.Add(xf.Normal.MulDir(v.Normal).Scale(w[i]))
		s.UV = s.UV.Add(v.UV.Scale(w[i]))
	}
	if normal.Length() > 0 {
		s.Normal = normal.Normalize()
	}
	if int(inst.Material) < len(sc.Materials) {
		s.Material = sc.Materials[inst.Material]
	}
	return s, true
}

// perspectiveBarycentrics solves for the weights of the point on the
// triangle that projects to NDC (px, py), using 2D homogeneous
// coordinates so vertices behind the eye need no special case.
func perspectiveBarycentrics(clip [3]geom.Vec4, px, py float32) (geom.Vec3, bool) {
	c0 := geom.V3(clip[0].X, clip[0].Y, clip[0].W)
	c1 := geom.V3(clip[1].X, clip[1].Y, clip[1].W)
	c2 := geom.V3(clip[2].X, clip[2].Y, clip[2].W)
	q := geom.V3(px, py, 1)

	u := c1.Cross(c2).Dot(q)
	v := c2.Cross(c0).Dot(q)
	w := c0.Cross(c1).Dot(q)
	sum := u + v + w
	if sum == 0 || math32.IsNaN(sum) {
		return geom.Vec3{}, false
	}
	return geom.V3(u/sum, v/sum, w/sum), true
}

func newGBuffer(width, height int) frame.GBuffer {
	r := image.Rect(0, 0, width, height)
	return frame.GBuffer{
		Albedo:   image.NewNRGBA(r),
		Normal:   image.NewNRGBA(r),
		Emissive: image.NewNRGBA(r),
		MRO:      image.NewNRGBA(r),
	}
}

// Decode implements frame.Recorder. One invocation per pixel, run in 8x8
// workgroups over the visibility buffer.
func (b *Backend) Decode() error {
	s := b.cur
	sc := b.in.Scene
	vp := b.in.View.ViewProj
	width, height := int(b.cfg.Width), int(b.cfg.Height)
	gb := s.gbuffer

	gx := uint32((width + frame.DecodeGroupSize - 1) / frame.DecodeGroupSize)
	gy := uint32((height + frame.DecodeGroupSize - 1) / frame.DecodeGroupSize)
	b.trace.Add(frame.Op{Kind: frame.OpDispatch, Stage: frame.StageDecode, Label: "decode", Groups: gx * gy})

	b.pool.Dispatch(gx*gy, func(g uint32) {
		tx := int(g%gx) * frame.DecodeGroupSize
		ty := int(g/gx) * frame.DecodeGroupSize
		for y := ty; y < min(ty+frame.DecodeGroupSize, height); y++ {
			for x := tx; x < min(tx+frame.DecodeGroupSize, width); x++ {
				surf, ok := ResolvePixel(sc, vp, s.visibility[y*width+x], x, y, width, height)
				if !ok {
					clearPixel(gb, x, y)
					continue
				}
				writePixel(gb, x, y, &surf)
			}
		}
	})
	return nil
}

func clearPixel(gb frame.GBuffer, x, y int) {
	var zero color.NRGBA
	gb.Albedo.SetNRGBA(x, y, zero)
	gb.Normal.SetNRGBA(x, y, zero)
	gb.Emissive.SetNRGBA(x, y, zero)
	gb.MRO.SetNRGBA(x, y, zero)
}

func writePixel(gb frame.GBuffer, x, y int, s *Surface) {
	m := &s.Material
	gb.Albedo.SetNRGBA(x, y, color.NRGBA{unorm(m.BaseColor[0]), unorm(m.BaseColor[1]), unorm(m.BaseColor[2]), unorm(m.BaseColor[3])})
	gb.Normal.SetNRGBA(x, y, color.NRGBA{unorm(s.Normal.X*0.5 + 0.5), unorm(s.Normal.Y*0.5 + 0.5), unorm(s.Normal.Z*0.5 + 0.5), 255})
	gb.Emissive.SetNRGBA(x, y, color.NRGBA{unorm(m.Emissive[0]), unorm(m.Emissive[1]), unorm(m.Emissive[2]), 255})
	gb.MRO.SetNRGBA(x, y, color.NRGBA{unorm(m.Metallic), unorm(m.Roughness), unorm(m.Occlusion), 255})
}

func unorm(f float32) uint8 {
	return uint8(math32.Min(math32.Max(f, 0), 1)*255 + 0.5)
}
