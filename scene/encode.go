// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/visbuf/geom"
)

// Byte strides of the storage-buffer records. They match the WGSL structs,
// which use scalar fields only so no vec3 padding rules apply.
const (
	VertexStride          = 32
	BoundsStride          = 48
	MeshStride            = 64
	LODStride             = 48
	MeshletStride         = 16
	MeshInstanceStride    = 16
	MeshletInstanceStride = 8
	TransformStride       = 192
	MaterialStride        = 48
)

type encoder struct {
	buf []byte
}

func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) f32(v float32) { e.u32(math.Float32bits(v)) }

func (e *encoder) vec3(v geom.Vec3) {
	e.f32(v.X)
	e.f32(v.Y)
	e.f32(v.Z)
}

func (e *encoder) mat4(m geom.Mat4) {
	for _, v := range m {
		e.f32(v)
	}
}

func (e *encoder) pad(words int) {
	for range words {
		e.u32(0)
	}
}

func (e *encoder) bounds(b Bounds) {
	e.vec3(b.Box.Center)
	e.vec3(b.Box.Extent)
	e.vec3(b.Sphere.Center)
	e.f32(b.Sphere.Radius)
	e.pad(2)
}

// EncodeVertices encodes vertices at VertexStride.
func EncodeVertices(vs []Vertex) []byte {
	e := encoder{buf: make([]byte, 0, len(vs)*VertexStride)}
	for _, v := range vs {
		e.vec3(v.Position)
		e.vec3(v.Normal)
		e.f32(v.UV.X)
		e.f32(v.UV.Y)
	}
	return e.buf
}

// EncodeBounds encodes bounds at BoundsStride.
func EncodeBounds(bs []Bounds) []byte {
	e := encoder{buf: make([]byte, 0, len(bs)*BoundsStride)}
	for _, b := range bs {
		e.bounds(b)
	}
	return e.buf
}

// EncodeMeshes encodes the mesh headers at MeshStride. LODs are encoded
// separately by EncodeLODs.
func EncodeMeshes(ms []Mesh) []byte {
	e := encoder{buf: make([]byte, 0, len(ms)*MeshStride)}
	for _, m := range ms {
		e.u32(m.VertexOffset)
		e.u32(m.VertexCount)
		e.u32(m.LODCount)
		e.u32(0)
		e.bounds(m.Bounds)
	}
	return e.buf
}

// EncodeLODs encodes MaxLODs LOD records per mesh; mesh i's LOD l is
// record i*MaxLODs+l.
func EncodeLODs(ms []Mesh) []byte {
	e := encoder{buf: make([]byte, 0, len(ms)*MaxLODs*LODStride)}
	for _, m := range ms {
		for _, l := range m.LODs {
			e.u32(l.MeshletOffset)
			e.u32(l.MeshletCount)
			e.u32(l.TriangleOffset)
			e.u32(l.TriangleCount)
			e.u32(l.VertexOffset)
			e.u32(l.VertexCount)
			e.u32(l.IndexOffset)
			e.u32(l.IndexCount)
			e.f32(l.Error)
			e.pad(3)
		}
	}
	return e.buf
}

// EncodeMeshlets encodes meshlets at MeshletStride.
func EncodeMeshlets(ms []Meshlet) []byte {
	e := encoder{buf: make([]byte, 0, len(ms)*MeshletStride)}
	for _, m := range ms {
		e.u32(m.VertexOffset)
		e.u32(m.TriangleOffset)
		e.u32(m.VertexCount)
		e.u32(m.TriangleCount)
	}
	return e.buf
}

// EncodeInstances encodes mesh instances at MeshInstanceStride.
func EncodeInstances(is []MeshInstance) []byte {
	e := encoder{buf: make([]byte, 0, len(is)*MeshInstanceStride)}
	for _, i := range is {
		e.u32(i.Mesh)
		e.u32(i.LOD)
		e.u32(i.Material)
		e.u32(i.Transform)
	}
	return e.buf
}

// EncodeTransforms encodes transforms at TransformStride.
func EncodeTransforms(ts []Transform) []byte {
	e := encoder{buf: make([]byte, 0, len(ts)*TransformStride)}
	for _, t := range ts {
		e.mat4(t.Local)
		e.mat4(t.World)
		e.mat4(t.Normal)
	}
	return e.buf
}

// EncodeMaterials encodes materials at MaterialStride.
func EncodeMaterials(ms []Material) []byte {
	e := encoder{buf: make([]byte, 0, len(ms)*MaterialStride)}
	for _, m := range ms {
		for _, v := range m.BaseColor {
			e.f32(v)
		}
		for _, v := range m.Emissive {
			e.f32(v)
		}
		e.f32(m.Metallic)
		e.f32(m.Roughness)
		e.f32(m.Occlusion)
		e.pad(2)
	}
	return e.buf
}

// EncodeU32s encodes a uint32 array.
func EncodeU32s(vs []uint32) []byte {
	e := encoder{buf: make([]byte, 0, len(vs)*4)}
	for _, v := range vs {
		e.u32(v)
	}
	return e.buf
}
