// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"
	"slices"

	"github.com/gogpu/visbuf/geom"
)

// MeshData is what the asset layer hands over for one mesh. Meshlet offsets
// are relative to the LOD's own IndirectVertices and LocalTriangles;
// IndirectVertices index into Vertices.
type MeshData struct {
	Vertices []Vertex
	LODs     []LODData
}

// LODData is one level of detail of a MeshData.
type LODData struct {
	Meshlets         []Meshlet
	MeshletBounds    []Bounds
	IndirectVertices []uint32
	LocalTriangles   []uint32
	Indices          []uint32 // optional non-meshlet index list
	Error            float32
}

// InstanceUpdate replaces one instance.
type InstanceUpdate struct {
	Index    uint32
	Instance MeshInstance
}

// TransformUpdate replaces the world and normal matrices of one transform.
// A zero Normal is derived from World. IDs past the end grow the array.
type TransformUpdate struct {
	ID     uint32
	World  geom.Mat4
	Normal geom.Mat4
}

// MaterialUpdate replaces one material. Indices past the end grow the array.
type MaterialUpdate struct {
	Index    uint32
	Material Material
}

// FrameUpdate is what the scene layer supplies once per frame.
type FrameUpdate struct {
	// InstanceCount truncates the instance array when smaller than it.
	// Zero leaves the count unchanged unless Instances is set.
	InstanceCount uint32
	// Instances replaces the whole instance array when non-nil.
	Instances       []MeshInstance
	InstanceUpdates []InstanceUpdate
	Transforms      []TransformUpdate
	Materials       []MaterialUpdate
}

// Range is a half-open element range.
type Range struct {
	Start, End uint32
}

// Dirty lists what changed since the last TakeDirty.
type Dirty struct {
	// Geometry is set when meshes were added; all geometry arrays must be
	// re-uploaded.
	Geometry   bool
	Instances  []Range
	Transforms []Range
	Materials  []Range
}

// Empty reports whether nothing changed.
func (d Dirty) Empty() bool {
	return !d.Geometry && len(d.Instances) == 0 && len(d.Transforms) == 0 && len(d.Materials) == 0
}

// Buffers holds the flattened scene arrays. It is not safe for concurrent
// mutation; the pipeline only reads it while a frame is recorded.
type Buffers struct {
	Vertices         []Vertex
	Meshes           []Mesh
	Meshlets         []Meshlet
	MeshletBounds    []Bounds
	IndirectVertices []uint32
	LocalTriangles   []uint32
	Indices          []uint32

	Instances  []MeshInstance
	Transforms []Transform
	Materials  []Material

	dirty Dirty
}

// NewBuffers returns empty buffers.
func NewBuffers() *Buffers {
	return &Buffers{}
}

// AddMesh validates data and appends it to the geometry arrays, returning
// the mesh index.
func (b *Buffers) AddMesh(data MeshData) (uint32, error) {
	if len(data.Vertices) == 0 {
		return 0, fmt.Errorf("%w: no vertices", ErrInvalidMesh)
	}
	if len(data.LODs) == 0 || len(data.LODs) > MaxLODs {
		return 0, fmt.Errorf("%w: %d LODs, want 1..%d", ErrInvalidMesh, len(data.LODs), MaxLODs)
	}
	for i := range data.LODs {
		if err := validateLOD(&data.LODs[i], uint32(len(data.Vertices))); err != nil {
			return 0, fmt.Errorf("%w: lod %d: %v", ErrInvalidMesh, i, err)
		}
	}

	positions := make([]geom.Vec3, len(data.Vertices))
	for i, v := range data.Vertices {
		positions[i] = v.Position
	}
	box, sphere := geom.BoundsOf(positions)

	mesh := Mesh{
		VertexOffset: uint32(len(b.Vertices)),
		VertexCount:  uint32(len(data.Vertices)),
		LODCount:     uint32(len(data.LODs)),
		Bounds:       Bounds{Box: box, Sphere: sphere},
	}
	b.Vertices = append(b.Vertices, data.Vertices...)

	for i := range data.LODs {
		lod := &data.LODs[i]
		mesh.LODs[i] = MeshLOD{
			MeshletOffset:  uint32(len(b.Meshlets)),
			MeshletCount:   uint32(len(lod.Meshlets)),
			TriangleOffset: uint32(len(b.LocalTriangles)),
			TriangleCount:  uint32(len(lod.LocalTriangles)),
			VertexOffset:   uint32(len(b.IndirectVertices)),
			VertexCount:    uint32(len(lod.IndirectVertices)),
			IndexOffset:    uint32(len(b.Indices)),
			IndexCount:     uint32(len(lod.Indices)),
			Error:          lod.Error,
		}
		b.Meshlets = append(b.Meshlets, lod.Meshlets...)
		b.MeshletBounds = append(b.MeshletBounds, lod.MeshletBounds...)
		b.IndirectVertices = append(b.IndirectVertices, lod.IndirectVertices...)
		b.LocalTriangles = append(b.LocalTriangles, lod.LocalTriangles...)
		b.Indices = append(b.Indices, lod.Indices...)
	}

	b.Meshes = append(b.Meshes, mesh)
	b.dirty.Geometry = true
	return uint32(len(b.Meshes) - 1), nil
}

func validateLOD(lod *LODData, vertexCount uint32) error {
	if len(lod.Meshlets) == 0 {
		return fmt.Errorf("no meshlets")
	}
	if len(lod.MeshletBounds) != len(lod.Meshlets) {
		return fmt.Errorf("%d meshlet bounds for %d meshlets", len(lod.MeshletBounds), len(lod.Meshlets))
	}
	for i, m := range lod.Meshlets {
		if m.VertexCount > MaxMeshletVertices || m.TriangleCount > MaxMeshletTriangles {
			return fmt.Errorf("meshlet %d has %d vertices and %d triangles", i, m.VertexCount, m.TriangleCount)
		}
		if uint64(m.VertexOffset)+uint64(m.VertexCount) > uint64(len(lod.IndirectVertices)) {
			return fmt.Errorf("meshlet %d vertex range out of bounds", i)
		}
		if uint64(m.TriangleOffset)+uint64(m.TriangleCount) > uint64(len(lod.LocalTriangles)) {
			return fmt.Errorf("meshlet %d triangle range out of bounds", i)
		}
		for t := m.TriangleOffset; t < m.TriangleOffset+m.TriangleCount; t++ {
			a, bb, c := UnpackTriangle(lod.LocalTriangles[t])
			if a >= m.VertexCount || bb >= m.VertexCount || c >= m.VertexCount {
				return fmt.Errorf("meshlet %d triangle %d references a missing vertex", i, t-m.TriangleOffset)
			}
		}
	}
	for i, v := range lod.IndirectVertices {
		if v >= vertexCount {
			return fmt.Errorf("indirect vertex %d out of bounds", i)
		}
	}
	for i, v := range lod.Indices {
		if v >= vertexCount {
			return fmt.Errorf("index %d out of bounds", i)
		}
	}
	return nil
}

// SetInstances replaces the instance array.
func (b *Buffers) SetInstances(instances []MeshInstance) error {
	for i, inst := range instances {
		if err := b.checkInstance(inst); err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
	}
	b.Instances = append(b.Instances[:0], instances...)
	b.markInstances(Range{Start: 0, End: uint32(len(b.Instances))})
	return nil
}

// UpdateInstances applies sparse instance replacements.
func (b *Buffers) UpdateInstances(updates []InstanceUpdate) error {
	for _, u := range updates {
		if int(u.Index) >= len(b.Instances) {
			return fmt.Errorf("%w: instance %d out of range", ErrInvalidInstance, u.Index)
		}
		if err := b.checkInstance(u.Instance); err != nil {
			return fmt.Errorf("instance %d: %w", u.Index, err)
		}
	}
	for _, u := range updates {
		b.Instances[u.Index] = u.Instance
		b.markInstances(Range{Start: u.Index, End: u.Index + 1})
	}
	return nil
}

func (b *Buffers) checkInstance(inst MeshInstance) error {
	if int(inst.Mesh) >= len(b.Meshes) {
		return fmt.Errorf("%w: mesh %d does not exist", ErrInvalidInstance, inst.Mesh)
	}
	if inst.LOD >= b.Meshes[inst.Mesh].LODCount {
		return fmt.Errorf("%w: mesh %d has no LOD %d", ErrInvalidInstance, inst.Mesh, inst.LOD)
	}
	return nil
}

// UpdateTransforms stores world and normal matrices for the given ids.
func (b *Buffers) UpdateTransforms(updates []TransformUpdate) {
	for _, u := range updates {
		for uint32(len(b.Transforms)) <= u.ID {
			b.Transforms = append(b.Transforms, IdentityTransform())
		}
		t := &b.Transforms[u.ID]
		t.World = u.World
		if u.Normal == (geom.Mat4{}) {
			t.Normal = u.World.NormalMatrix()
		} else {
			t.Normal = u.Normal
		}
		b.dirty.Transforms = append(b.dirty.Transforms, Range{Start: u.ID, End: u.ID + 1})
	}
}

// UpdateMaterials stores full material records at the given indices.
func (b *Buffers) UpdateMaterials(updates []MaterialUpdate) {
	for _, u := range updates {
		for uint32(len(b.Materials)) <= u.Index {
			b.Materials = append(b.Materials, DefaultMaterial())
		}
		b.Materials[u.Index] = u.Material
		b.dirty.Materials = append(b.dirty.Materials, Range{Start: u.Index, End: u.Index + 1})
	}
}

// Apply applies one frame's update and validates the result. A rejected
// update leaves b and its dirty ranges unchanged.
func (b *Buffers) Apply(u FrameUpdate) error {
	next := b.stage()
	if u.Instances != nil {
		if err := next.SetInstances(u.Instances); err != nil {
			return err
		}
	}
	if err := next.UpdateInstances(u.InstanceUpdates); err != nil {
		return err
	}
	next.UpdateTransforms(u.Transforms)
	next.UpdateMaterials(u.Materials)
	if u.InstanceCount > 0 {
		if int(u.InstanceCount) > len(next.Instances) {
			return fmt.Errorf("%w: instance count %d exceeds %d instances", ErrInvalidInstance, u.InstanceCount, len(next.Instances))
		}
		next.Instances = next.Instances[:u.InstanceCount]
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*b = next
	return nil
}

// stage returns a copy of b whose instance data and dirty ranges can be
// mutated without touching b. Geometry is shared.
func (b *Buffers) stage() Buffers {
	next := *b
	next.Instances = slices.Clone(b.Instances)
	next.Transforms = slices.Clone(b.Transforms)
	next.Materials = slices.Clone(b.Materials)
	next.dirty.Instances = slices.Clone(b.dirty.Instances)
	next.dirty.Transforms = slices.Clone(b.dirty.Transforms)
	next.dirty.Materials = slices.Clone(b.dirty.Materials)
	return next
}

// Validate checks that every instance references an existing mesh, LOD,
// transform and material.
func (b *Buffers) Validate() error {
	for i, inst := range b.Instances {
		if err := b.checkInstance(inst); err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
		if int(inst.Transform) >= len(b.Transforms) {
			return fmt.Errorf("%w: instance %d references transform %d", ErrInvalidInstance, i, inst.Transform)
		}
		if int(inst.Material) >= len(b.Materials) {
			return fmt.Errorf("%w: instance %d references material %d", ErrInvalidInstance, i, inst.Material)
		}
	}
	return nil
}

func (b *Buffers) markInstances(r Range) {
	b.dirty.Instances = append(b.dirty.Instances, r)
}

// TakeDirty returns the coalesced changes since the last call and resets
// tracking.
func (b *Buffers) TakeDirty() Dirty {
	d := Dirty{
		Geometry:   b.dirty.Geometry,
		Instances:  coalesce(b.dirty.Instances),
		Transforms: coalesce(b.dirty.Transforms),
		Materials:  coalesce(b.dirty.Materials),
	}
	b.dirty = Dirty{}
	return d
}

// coalesce sorts ranges and merges overlapping or adjacent ones.
func coalesce(rs []Range) []Range {
	if len(rs) == 0 {
		return nil
	}
	rs = slices.Clone(rs)
	slices.SortFunc(rs, func(a, b Range) int { return int(a.Start) - int(b.Start) })
	out := rs[:1]
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			last.End = max(last.End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

// LODOf returns the selected LOD record of an instance.
func (b *Buffers) LODOf(inst MeshInstance) *MeshLOD {
	return &b.Meshes[inst.Mesh].LODs[inst.LOD]
}

// MaxMeshletsPerInstance returns the largest meshlet count of any selected
// LOD.
func (b *Buffers) MaxMeshletsPerInstance() uint32 {
	var n uint32
	for _, inst := range b.Instances {
		n = max(n, b.LODOf(inst).MeshletCount)
	}
	return n
}

// MeshletInstanceBound returns the number of meshlet instances emitted if
// every instance survives mesh culling.
func (b *Buffers) MeshletInstanceBound() uint32 {
	var n uint32
	for _, inst := range b.Instances {
		n += b.LODOf(inst).MeshletCount
	}
	return n
}

// TriangleBound returns the number of triangles emitted if nothing is
// culled.
func (b *Buffers) TriangleBound() uint32 {
	var n uint32
	for _, inst := range b.Instances {
		n += b.LODOf(inst).TriangleCount
	}
	return n
}
