// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/scene"
)

// dispatch records a dispatch and runs fn for every invocation of groups
// workgroups of size groupSize.
func (b *Backend) dispatch(op frame.Op, groups, groupSize uint32, fn func(id uint32)) {
	op.Groups = groups
	b.trace.Add(op)
	b.pool.Dispatch(groups, func(g uint32) {
		base := g * groupSize
		for t := range groupSize {
			fn(base + t)
		}
	})
}

// hizFor returns the pyramid a phase samples: the previous frame's for the
// early phase, this frame's rebuild for the late phase.
func (b *Backend) hizFor(p frame.Phase) *frame.Pyramid {
	if p == frame.Late {
		return b.cur.hiz
	}
	if b.prev == nil {
		return nil
	}
	return b.prev.hiz
}

// CullMeshes implements frame.Recorder. One invocation per mesh instance:
// frustum test on the world bounding sphere, occlusion test on the world
// box, then one atomic reservation of meshlet_count candidate slots.
func (b *Backend) CullMeshes() error {
	s := b.cur
	sc := b.in.Scene
	view := &b.in.View
	flags := b.in.Flags
	hiz := b.hizFor(frame.Early)
	capacity := b.cfg.MaxMeshletInstances
	n := uint32(len(sc.Instances))

	groups := (n + frame.MeshCullGroupSize - 1) / frame.MeshCullGroupSize
	op := frame.Op{Kind: frame.OpDispatch, Stage: frame.StageMeshCull, Label: "mesh_cull"}
	b.dispatch(op, groups, frame.MeshCullGroupSize, func(i uint32) {
		if i >= n {
			return
		}
		inst := sc.Instances[i]
		mesh := &sc.Meshes[inst.Mesh]
		world := sc.Transforms[inst.Transform].World

		if flags.Has(scene.MeshletFrustum) && !view.Frustum.IntersectsSphere(mesh.Bounds.Sphere.Transform(world)) {
			return
		}
		if flags.Has(scene.OcclusionCulling) && Occluded(hiz, view.ViewProj, mesh.Bounds.Box.Transform(world)) {
			return
		}
		s.visibleInstances.Add(1)

		count := mesh.LODs[inst.LOD].MeshletCount
		base := s.candidateCount.Add(count) - count
		for m := range count {
			slot := base + m
			if slot >= capacity {
				s.droppedMeshlets.Add(count - m)
				return
			}
			s.candidates[slot] = scene.MeshletInstance{Instance: i, Meshlet: m}
		}
	})
	b.trace.Barrier(frame.StageMeshCull, frame.Early, "candidates")
	return nil
}

// GenerateCommands implements frame.Recorder. A single invocation turns a
// counter into dispatch arguments; the counter is clamped to capacity.
func (b *Backend) GenerateCommands(target frame.GenTarget, p frame.Phase) error {
	s := b.cur
	capacity := b.cfg.MaxMeshletInstances
	var label string
	switch target {
	case frame.GenMeshletDispatch:
		label = "gen_meshlet_dispatch"
		s.meshletArgs = frame.DispatchArgs{
			X: frame.GroupsFor(s.candidateCount.Load(), capacity, frame.MeshletCullGroupSize),
			Y: 1, Z: 1,
		}
	case frame.GenTriangleDispatch:
		label = "gen_triangle_dispatch"
		s.triangleArgs[p] = frame.DispatchArgs{
			X: frame.GroupsFor(s.visibleCount[p].Load(), capacity, 1),
			Y: 1, Z: 1,
		}
	}
	b.trace.Add(frame.Op{Kind: frame.OpDispatch, Stage: frame.StageGenCmd, Phase: p, Label: label, Groups: 1})
	b.trace.Barrier(frame.StageGenCmd, p, "indirect_args")
	return nil
}

// CullMeshlets implements frame.Recorder. Both phases run the same test:
// the late phase first rejects slots the early phase drew, and samples the
// freshly rebuilt pyramid. Survivors set their mask bit.
func (b *Backend) CullMeshlets(p frame.Phase) error {
	s := b.cur
	sc := b.in.Scene
	view := &b.in.View
	flags := b.in.Flags
	hiz := b.hizFor(p)
	count := min(s.candidateCount.Load(), b.cfg.MaxMeshletInstances)
	visibleCap := uint32(len(s.visible[p]))

	// The late phase reuses the early candidate dispatch arguments.
	args := s.meshletArgs
	op := frame.Op{Kind: frame.OpDispatchIndirect, Stage: frame.StageMeshletCull, Phase: p, Label: "meshlet_cull"}
	b.dispatch(op, args.X, frame.MeshletCullGroupSize, func(slot uint32) {
		if slot >= count {
			return
		}
		if p.ReadsMask() && s.mask.Test(slot) {
			return
		}
		mi := s.candidates[slot]
		inst := sc.Instances[mi.Instance]
		lod := sc.LODOf(inst)
		idx := lod.MeshletOffset + mi.Meshlet
		bounds := &sc.MeshletBounds[idx]
		world := sc.Transforms[inst.Transform].World

		if flags.Has(scene.MeshletFrustum) && !view.Frustum.IntersectsSphere(bounds.Sphere.Transform(world)) {
			return
		}
		if flags.Has(scene.OcclusionCulling) && Occluded(hiz, view.ViewProj, bounds.Box.Transform(world)) {
			return
		}

		s.mask.Set(slot)
		v := s.visibleCount[p].Add(1) - 1
		if v < visibleCap {
			s.visible[p][v] = slot
		}
		s.triangleBudget[p].Add(sc.Meshlets[idx].TriangleCount)
	})
	b.trace.Barrier(frame.StageMeshletCull, p, "visible_meshlets")
	return nil
}

// CullTriangles implements frame.Recorder. One workgroup per visible
// meshlet, invocation t handles local triangle t. Survivors append three
// draw indices; the running index count is the draw's index_count.
func (b *Backend) CullTriangles(p frame.Phase) error {
	s := b.cur
	sc := b.in.Scene
	view := &b.in.View
	params := TriangleParams{
		Flags:             b.in.Flags,
		Width:             float32(b.cfg.Width),
		Height:            float32(b.cfg.Height),
		MicroTriangleArea: b.in.MicroTriangleArea,
	}
	indexCap := uint32(len(s.indices[p]))

	args := s.triangleArgs[p]
	b.trace.Add(frame.Op{Kind: frame.OpDispatchIndirect, Stage: frame.StageTriangleCull, Phase: p, Label: "triangle_cull", Groups: args.X})
	b.pool.Dispatch(args.X, func(g uint32) {
		slot := s.visible[p][g]
		mi := s.candidates[slot]
		inst := sc.Instances[mi.Instance]
		mesh := &sc.Meshes[inst.Mesh]
		lod := sc.LODOf(inst)
		m := sc.Meshlets[lod.MeshletOffset+mi.Meshlet]
		mvp := view.ViewProj.Mul(sc.Transforms[inst.Transform].World)

		for t := range min(m.TriangleCount, frame.TriangleCullGroupSize) {
			a, bb, c := meshletTriangle(sc, mesh, lod, &m, t)
			ca := mvp.Project(sc.Vertices[a].Position)
			cb := mvp.Project(sc.Vertices[bb].Position)
			cc := mvp.Project(sc.Vertices[c].Position)
			if RejectTriangle(ca, cb, cc, params) {
				continue
			}
			at := s.indexCount[p].Add(3) - 3
			if at+3 > indexCap {
				s.droppedTriangles.Add(1)
				continue
			}
			s.indices[p][at] = scene.PackDrawIndex(slot, t, 0)
			s.indices[p][at+1] = scene.PackDrawIndex(slot, t, 1)
			s.indices[p][at+2] = scene.PackDrawIndex(slot, t, 2)
		}
	})
	b.trace.Barrier(frame.StageTriangleCull, p, "index_buffer+draw_args")
	return nil
}

// meshletTriangle returns the global vertex indices of local triangle t.
func meshletTriangle(sc *scene.Buffers, mesh *scene.Mesh, lod *scene.MeshLOD, m *scene.Meshlet, t uint32) (a, b, c uint32) {
	la, lb, lc := scene.UnpackTriangle(sc.LocalTriangles[lod.TriangleOffset+m.TriangleOffset+t])
	iv := sc.IndirectVertices[lod.VertexOffset+m.VertexOffset:]
	return mesh.VertexOffset + iv[la], mesh.VertexOffset + iv[lb], mesh.VertexOffset + iv[lc]
}

// BuildHiZ implements frame.Recorder.
func (b *Backend) BuildHiZ() error {
	s := b.cur
	b.trace.Barrier(frame.StageHiZ, frame.Early, "depth")
	hizBuilder{pool: b.pool}.build(s.hiz, s.depth, int(b.cfg.Width), int(b.cfg.Height), &b.trace)
	s.hizValid = true
	s.hizFrame = b.in.Index
	b.trace.Barrier(frame.StageHiZ, frame.Late, "hiz")
	return nil
}
