// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package meshgen builds fixture meshes and splits index lists into
// meshlets. It stands in for the asset pipeline in tests and the demo.
package meshgen

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/scene"
)

// Build returns mesh data with one LOD per index list.
func Build(vertices []scene.Vertex, lods ...[]uint32) scene.MeshData {
	data := scene.MeshData{Vertices: vertices}
	for i, indices := range lods {
		lod := BuildLOD(vertices, indices)
		lod.Error = float32(i)
		data.LODs = append(data.LODs, lod)
	}
	return data
}

// BuildLOD greedily packs consecutive triangles into meshlets of at most
// scene.MaxMeshletVertices vertices and scene.MaxMeshletTriangles
// triangles.
func BuildLOD(vertices []scene.Vertex, indices []uint32) scene.LODData {
	lod := scene.LODData{Indices: indices}
	local := make(map[uint32]uint8, scene.MaxMeshletVertices)
	var cur scene.Meshlet

	flush := func() {
		if cur.TriangleCount == 0 {
			return
		}
		lod.Meshlets = append(lod.Meshlets, cur)
		lod.MeshletBounds = append(lod.MeshletBounds, meshletBounds(vertices, lod.IndirectVertices[cur.VertexOffset:cur.VertexOffset+cur.VertexCount]))
		cur = scene.Meshlet{
			VertexOffset:   uint32(len(lod.IndirectVertices)),
			TriangleOffset: uint32(len(lod.LocalTriangles)),
		}
		clear(local)
	}

	for t := 0; t+2 < len(indices); t += 3 {
		tri := indices[t : t+3]
		fresh := 0
		for k, v := range tri {
			if _, ok := local[v]; ok {
				continue
			}
			// Repeated corners inside one triangle count once.
			if k > 0 && tri[0] == v || k > 1 && tri[1] == v {
				continue
			}
			fresh++
		}
		if cur.VertexCount+uint32(fresh) > scene.MaxMeshletVertices || cur.TriangleCount == scene.MaxMeshletTriangles {
			flush()
		}

		var li [3]uint8
		for k, v := range tri {
			idx, ok := local[v]
			if !ok {
				idx = uint8(cur.VertexCount)
				local[v] = idx
				lod.IndirectVertices = append(lod.IndirectVertices, v)
				cur.VertexCount++
			}
			li[k] = idx
		}
		lod.LocalTriangles = append(lod.LocalTriangles, scene.PackTriangle(li[0], li[1], li[2]))
		cur.TriangleCount++
	}
	flush()
	return lod
}

func meshletBounds(vertices []scene.Vertex, ids []uint32) scene.Bounds {
	pts := make([]geom.Vec3, len(ids))
	for i, id := range ids {
		pts[i] = vertices[id].Position
	}
	box, sphere := geom.BoundsOf(pts)
	return scene.Bounds{Box: box, Sphere: sphere}
}

// face describes one quad by its normal and in-plane axes with u x v = n,
// so corners listed -u-v, +u-v, +u+v, -u+v wind counter-clockwise seen
// from outside.
type face struct {
	n, u, v geom.Vec3
}

var cubeFaces = [6]face{
	{geom.V3(1, 0, 0), geom.V3(0, 0, -1), geom.V3(0, 1, 0)},
	{geom.V3(-1, 0, 0), geom.V3(0, 0, 1), geom.V3(0, 1, 0)},
	{geom.V3(0, 1, 0), geom.V3(1, 0, 0), geom.V3(0, 0, -1)},
	{geom.V3(0, -1, 0), geom.V3(1, 0, 0), geom.V3(0, 0, 1)},
	{geom.V3(0, 0, 1), geom.V3(1, 0, 0), geom.V3(0, 1, 0)},
	{geom.V3(0, 0, -1), geom.V3(-1, 0, 0), geom.V3(0, 1, 0)},
}

// CubeVertices returns the 24 vertices and 36 indices of an axis-aligned
// cube with half extent half and outward counter-clockwise faces.
func CubeVertices(half float32) ([]scene.Vertex, []uint32) {
	vs := make([]scene.Vertex, 0, 24)
	is := make([]uint32, 0, 36)
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range cubeFaces {
		base := uint32(len(vs))
		for _, c := range corners {
			p := f.n.Add(f.u.Scale(c[0])).Add(f.v.Scale(c[1])).Scale(half)
			vs = append(vs, scene.Vertex{
				Position: p,
				Normal:   f.n,
				UV:       geom.V2(c[0]*0.5+0.5, 0.5-c[1]*0.5),
			})
		}
		is = append(is, base, base+1, base+2, base, base+2, base+3)
	}
	return vs, is
}

// Cube returns a single-meshlet cube of 12 triangles.
func Cube(half float32) scene.MeshData {
	vs, is := CubeVertices(half)
	return Build(vs, is)
}

// PlaneVertices returns a square grid in the XZ plane facing +Y with
// subdiv quads per side.
func PlaneVertices(half float32, subdiv int) ([]scene.Vertex, []uint32) {
	subdiv = max(subdiv, 1)
	f := cubeFaces[2]
	n := subdiv + 1
	vs := make([]scene.Vertex, 0, n*n)
	for j := range n {
		for i := range n {
			s := float32(i)/float32(subdiv)*2 - 1
			t := float32(j)/float32(subdiv)*2 - 1
			vs = append(vs, scene.Vertex{
				Position: f.u.Scale(s * half).Add(f.v.Scale(t * half)),
				Normal:   f.n,
				UV:       geom.V2(float32(i)/float32(subdiv), float32(j)/float32(subdiv)),
			})
		}
	}
	is := make([]uint32, 0, subdiv*subdiv*6)
	for j := range subdiv {
		for i := range subdiv {
			a := uint32(j*n + i)
			b := a + 1
			c := a + uint32(n) + 1
			d := a + uint32(n)
			is = append(is, a, b, c, a, c, d)
		}
	}
	return vs, is
}

// Plane returns a subdivided ground plane.
func Plane(half float32, subdiv int) scene.MeshData {
	vs, is := PlaneVertices(half, subdiv)
	return Build(vs, is)
}

// SphereVertices returns a UV sphere with outward counter-clockwise
// triangles. Degenerate pole triangles are omitted.
func SphereVertices(radius float32, stacks, slices int) ([]scene.Vertex, []uint32) {
	stacks = max(stacks, 2)
	slices = max(slices, 3)
	vs := make([]scene.Vertex, 0, (stacks+1)*(slices+1))
	for i := range stacks + 1 {
		theta := math32.Pi * float32(i) / float32(stacks)
		st, ct := math32.Sincos(theta)
		for j := range slices + 1 {
			phi := 2 * math32.Pi * float32(j) / float32(slices)
			sp, cp := math32.Sincos(phi)
			n := geom.V3(st*cp, ct, st*sp)
			vs = append(vs, scene.Vertex{
				Position: n.Scale(radius),
				Normal:   n,
				UV:       geom.V2(float32(j)/float32(slices), float32(i)/float32(stacks)),
			})
		}
	}
	row := uint32(slices + 1)
	var is []uint32
	for i := range uint32(stacks) {
		for j := range uint32(slices) {
			a := i*row + j
			b := a + row
			c := b + 1
			d := a + 1
			if i != uint32(stacks)-1 {
				is = append(is, a, c, b)
			}
			if i != 0 {
				is = append(is, a, d, c)
			}
		}
	}
	return vs, is
}

// Sphere returns a sphere with a second, coarser LOD.
func Sphere(radius float32, stacks, slices int) scene.MeshData {
	vs, is := SphereVertices(radius, stacks, slices)
	return Build(vs, is, decimate(is, 2))
}

// decimate keeps every step-th triangle. It is a cheap stand-in for a real
// simplifier, good enough to give fixtures a second LOD.
func decimate(indices []uint32, step int) []uint32 {
	var out []uint32
	for t := 0; t+2 < len(indices); t += 3 * step {
		out = append(out, indices[t:t+3]...)
	}
	return out
}

// Cluster returns one mesh made of cubes at the given offsets, each cube
// in its own meshlet.
func Cluster(half float32, offsets []geom.Vec3) scene.MeshData {
	var (
		data scene.MeshData
		lod  scene.LODData
	)
	for _, off := range offsets {
		vs, is := CubeVertices(half)
		base := uint32(len(data.Vertices))
		for i := range vs {
			vs[i].Position = vs[i].Position.Add(off)
		}
		for i := range is {
			is[i] += base
		}
		data.Vertices = append(data.Vertices, vs...)

		part := BuildLOD(data.Vertices, is)
		for _, m := range part.Meshlets {
			m.VertexOffset += uint32(len(lod.IndirectVertices))
			m.TriangleOffset += uint32(len(lod.LocalTriangles))
			lod.Meshlets = append(lod.Meshlets, m)
		}
		lod.MeshletBounds = append(lod.MeshletBounds, part.MeshletBounds...)
		lod.IndirectVertices = append(lod.IndirectVertices, part.IndirectVertices...)
		lod.LocalTriangles = append(lod.LocalTriangles, part.LocalTriangles...)
		lod.Indices = append(lod.Indices, is...)
	}
	data.LODs = []scene.LODData{lod}
	return data
}
