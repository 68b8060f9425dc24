// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import "github.com/gogpu/visbuf/geom"

// Engine-wide meshlet and LOD caps. Dispatch sizing of the meshlet and
// triangle stages depends on them.
const (
	MaxMeshletVertices  = 64
	MaxMeshletTriangles = 64
	MaxLODs             = 8
)

// Vertex is one entry of the global vertex array.
type Vertex struct {
	Position geom.Vec3
	Normal   geom.Vec3
	UV       geom.Vec2
}

// Bounds holds the bounding volumes computed at import time.
type Bounds struct {
	Box    geom.AABB
	Sphere geom.Sphere
}

// Meshlet is a cluster of at most 64 vertices and 64 triangles. Offsets are
// relative to the owning LOD's indirect-vertex and local-triangle ranges.
type Meshlet struct {
	VertexOffset   uint32
	TriangleOffset uint32
	VertexCount    uint32
	TriangleCount  uint32
}

// MeshLOD locates one level of detail inside the global arrays.
type MeshLOD struct {
	MeshletOffset  uint32 // into Meshlets and MeshletBounds
	MeshletCount   uint32
	TriangleOffset uint32 // into LocalTriangles
	TriangleCount  uint32
	VertexOffset   uint32 // into IndirectVertices
	VertexCount    uint32
	IndexOffset    uint32 // into Indices
	IndexCount     uint32
	Error          float32
}

// Mesh is an immutable geometry asset.
type Mesh struct {
	VertexOffset uint32
	VertexCount  uint32
	LODCount     uint32
	Bounds       Bounds
	LODs         [MaxLODs]MeshLOD
}

// MeshInstance places a mesh in the scene.
type MeshInstance struct {
	Mesh      uint32
	LOD       uint32
	Material  uint32
	Transform uint32
}

// MeshletInstance names one meshlet of one instance. Meshlet is relative to
// the instance's selected LOD. These are regenerated every frame.
type MeshletInstance struct {
	Instance uint32
	Meshlet  uint32
}

// Transform holds the matrices of one instance.
type Transform struct {
	Local  geom.Mat4
	World  geom.Mat4
	Normal geom.Mat4
}

// IdentityTransform returns a transform with all matrices set to identity.
func IdentityTransform() Transform {
	return Transform{Local: geom.Identity(), World: geom.Identity(), Normal: geom.Identity()}
}

// Material holds the surface factors the decode pass writes out.
type Material struct {
	BaseColor [4]float32
	Emissive  [3]float32
	Metallic  float32
	Roughness float32
	Occlusion float32
}

// DefaultMaterial is an opaque white dielectric.
func DefaultMaterial() Material {
	return Material{
		BaseColor: [4]float32{1, 1, 1, 1},
		Roughness: 1,
		Occlusion: 1,
	}
}
