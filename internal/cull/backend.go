// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/internal/parallel"
	"github.com/gogpu/visbuf/scene"
)

// slot holds the resources of one frame in flight.
type slot struct {
	// Persistent across frames.
	hiz      *frame.Pyramid
	hizFrame uint64 // frame index that built hiz, valid when hizValid
	hizValid bool
	mask     *parallel.Bitmask

	// Size dependent targets.
	depth      []float32
	visibility []scene.VisibilityID
	overdraw   []uint32

	// Transient: reused as soon as the slot comes around again.
	candidates     []scene.MeshletInstance
	candidateCount atomic.Uint32
	visible        [2][]uint32
	visibleCount   [2]atomic.Uint32
	triangleBudget [2]atomic.Uint32
	indices        [2][]uint32
	indexCount     [2]atomic.Uint32 // index_count of the phase's draw args

	meshletArgs  frame.DispatchArgs
	triangleArgs [2]frame.DispatchArgs

	visibleInstances atomic.Uint32
	droppedMeshlets  atomic.Uint32
	droppedTriangles atomic.Uint32

	gbuffer frame.GBuffer
}

// Backend is the software frame.Recorder.
type Backend struct {
	cfg  frame.Config
	pool *parallel.WorkerPool

	ring   []*slot
	cur    *slot
	prev   *slot
	in     *frame.Inputs
	trace  frame.Trace
	closed bool
}

var _ frame.Recorder = (*Backend)(nil)

// New creates a software backend.
func New(cfg frame.Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{
		cfg:  cfg,
		pool: parallel.NewWorkerPool(cfg.Workers),
		ring: make([]*slot, cfg.FramesInFlight),
	}
	for i := range b.ring {
		b.ring[i] = &slot{mask: parallel.NewBitmask(cfg.MaxMeshletInstances)}
	}
	b.allocateTargets()
	b.allocateTransient()

	slogger().Info("cull: software backend ready",
		"width", cfg.Width, "height", cfg.Height,
		"frames_in_flight", cfg.FramesInFlight,
		"workers", b.pool.Workers())
	return b, nil
}

// Name implements frame.Recorder.
func (b *Backend) Name() string { return "software" }

// Config returns the current configuration.
func (b *Backend) Config() frame.Config { return b.cfg }

func (b *Backend) allocateTargets() {
	n := int(b.cfg.Width) * int(b.cfg.Height)
	for _, s := range b.ring {
		s.depth = make([]float32, n)
		s.visibility = make([]scene.VisibilityID, n)
		if b.cfg.Overdraw {
			s.overdraw = make([]uint32, n)
		} else {
			s.overdraw = nil
		}
		s.hiz = NewPyramid(int(b.cfg.Width), int(b.cfg.Height), b.cfg.HiZLevels)
		s.hizValid = false
		s.gbuffer = newGBuffer(int(b.cfg.Width), int(b.cfg.Height))
	}
}

func (b *Backend) allocateTransient() {
	for _, s := range b.ring {
		s.candidates = make([]scene.MeshletInstance, b.cfg.MaxMeshletInstances)
		for p := range s.visible {
			s.visible[p] = make([]uint32, b.cfg.MaxMeshletInstances)
			s.indices[p] = make([]uint32, b.cfg.MaxIndices())
		}
		s.mask.Grow(b.cfg.MaxMeshletInstances)
	}
}

// Reserve grows the meshlet-instance and triangle capacities. Buffers are
// reallocated only when a maximum grows.
func (b *Backend) Reserve(maxMeshletInstances, maxTriangles uint32) error {
	if maxMeshletInstances <= b.cfg.MaxMeshletInstances && maxTriangles <= b.cfg.MaxTriangles {
		return nil
	}
	next := b.cfg
	next.MaxMeshletInstances = max(next.MaxMeshletInstances, maxMeshletInstances)
	next.MaxTriangles = max(next.MaxTriangles, maxTriangles)
	if err := next.Validate(); err != nil {
		return err
	}
	b.cfg = next
	b.allocateTransient()
	slogger().Info("cull: capacity grown",
		"max_meshlet_instances", next.MaxMeshletInstances, "max_triangles", next.MaxTriangles)
	return nil
}

// Resize implements frame.Recorder.
func (b *Backend) Resize(width, height uint32) error {
	if width == b.cfg.Width && height == b.cfg.Height {
		return nil
	}
	next := b.cfg
	next.Width, next.Height = width, height
	if err := next.Validate(); err != nil {
		return err
	}
	b.cfg = next
	b.allocateTargets()
	slogger().Info("cull: resized", "width", width, "height", height)
	return nil
}

// ResetHistory drops the previous frame's Hi-Z so the next early pass runs
// without occlusion data.
func (b *Backend) ResetHistory() {
	for _, s := range b.ring {
		s.hizValid = false
	}
}

// Close implements frame.Recorder.
func (b *Backend) Close() {
	if b.closed {
		return
	}
	b.closed = true
	b.pool.Close()
	b.ring = nil
}

// BeginFrame implements frame.Recorder.
func (b *Backend) BeginFrame(ctx context.Context, in *frame.Inputs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed {
		return fmt.Errorf("cull: %w: backend closed", frame.ErrDeviceLost)
	}
	if in.Scene == nil {
		return fmt.Errorf("%w: nil scene", frame.ErrInvalidConfig)
	}

	n := len(b.ring)
	b.in = in
	b.cur = b.ring[in.Slot(n)]
	// The early pass samples the previous frame's pyramid. With one frame
	// in flight that is the current slot, read before BuildHiZ overwrites it.
	b.prev = nil
	if p := b.ring[(in.Slot(n)+n-1)%n]; p.hizValid && p.hizFrame+1 == in.Index {
		b.prev = p
	}
	b.trace = frame.Trace{}

	s := b.cur
	s.candidateCount.Store(0)
	for p := range 2 {
		s.visibleCount[p].Store(0)
		s.triangleBudget[p].Store(0)
		s.indexCount[p].Store(0)
		s.triangleArgs[p] = frame.DispatchArgs{}
	}
	s.meshletArgs = frame.DispatchArgs{}
	s.visibleInstances.Store(0)
	s.droppedMeshlets.Store(0)
	s.droppedTriangles.Store(0)
	s.mask.Clear()
	clear(s.depth)
	for i := range s.visibility {
		s.visibility[i] = scene.EmptyVisibility
	}
	clear(s.overdraw)
	b.trace.Add(frame.Op{Kind: frame.OpClear, Stage: frame.StageMeshCull, Label: "counters+mask+targets"})
	return nil
}

// EndFrame implements frame.Recorder.
func (b *Backend) EndFrame(ctx context.Context) (*frame.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := b.cur
	c := &b.cfg

	cands := min(s.candidateCount.Load(), c.MaxMeshletInstances)
	out := &frame.Output{
		Index:      b.in.Index,
		Width:      int(c.Width),
		Height:     int(c.Height),
		Visibility: s.visibility,
		Depth:      s.depth,
		Overdraw:   s.overdraw,
		HiZ:        s.hiz,
		GBuffer:    s.gbuffer,
		Candidates: s.candidates[:cands],
		Trace:      b.trace,
	}
	out.EarlyVisible = s.visible[frame.Early][:min(s.visibleCount[frame.Early].Load(), c.MaxMeshletInstances)]
	out.LateVisible = s.visible[frame.Late][:min(s.visibleCount[frame.Late].Load(), c.MaxMeshletInstances)]
	out.EarlyIndices = s.indices[frame.Early][:b.drawCount(frame.Early)]
	out.LateIndices = s.indices[frame.Late][:b.drawCount(frame.Late)]

	st := &out.Stats
	st.Instances = uint32(len(b.in.Scene.Instances))
	st.VisibleInstances = s.visibleInstances.Load()
	for _, p := range []frame.Phase{frame.Early, frame.Late} {
		ps := st.Phase(p)
		ps.Candidates = cands
		ps.Meshlets = uint32(len(out.EarlyVisible))
		if p == frame.Late {
			ps.Meshlets = uint32(len(out.LateVisible))
		}
		ps.TriangleBudget = s.triangleBudget[p].Load()
		ps.Triangles = b.drawCount(p) / 3
	}
	st.DroppedMeshletInstances = s.droppedMeshlets.Load()
	st.DroppedTriangles = s.droppedTriangles.Load()

	if st.DroppedMeshletInstances > 0 || st.DroppedTriangles > 0 {
		slogger().Warn("cull: capacity overflow",
			"frame", b.in.Index,
			"dropped_meshlet_instances", st.DroppedMeshletInstances,
			"dropped_triangles", st.DroppedTriangles)
	}
	slogger().Debug("cull: frame done",
		"frame", b.in.Index,
		"visible_instances", st.VisibleInstances,
		"candidates", cands,
		"early_meshlets", st.Early.Meshlets, "late_meshlets", st.Late.Meshlets,
		"early_triangles", st.Early.Triangles, "late_triangles", st.Late.Triangles)

	b.in = nil
	return out, nil
}

// drawCount returns the index_count of a phase's draw arguments clamped to
// the index buffer.
func (b *Backend) drawCount(p frame.Phase) uint32 {
	return min(b.cur.indexCount[p].Load(), b.cfg.MaxIndices())
}
