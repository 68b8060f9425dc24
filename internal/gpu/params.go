// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/scene"
)

// Uniform windows. Every dispatch binds one paramStride-sized window of
// the slot's parameter buffer, so no dynamic offsets are needed.
const (
	paramStride = 512

	paramFrameEarly = iota - 1
	paramFrameLate
	paramGenMeshlet
	paramGenTriangleEarly
	paramGenTriangleLate
	paramHiZBase

	// maxHiZLevels matches the hiz_offsets array of the frame uniform.
	maxHiZLevels = 16

	paramWindows = paramHiZBase + maxHiZLevels
)

// Uniform sizes in bytes.
const (
	frameParamsSize = 336
	genParamsSize   = 16
	levelParamsSize = 32
)

// Counter slots of the counters buffer. Per-phase counters are base+phase.
const (
	counterCandidates = iota
	counterVisibleInstances
	counterDroppedMeshlets
	counterDroppedTriangles
	counterVisible
	_
	counterBudget
	_

	counterCount
)

// Word strides of the packed records.
const (
	vertexWords    = scene.VertexStride / 4
	boundsWords    = scene.BoundsStride / 4
	meshWords      = scene.MeshStride / 4
	lodWords       = scene.LODStride / 4
	meshletWords   = scene.MeshletStride / 4
	instanceWords  = scene.MeshInstanceStride / 4
	transformWords = scene.TransformStride / 4
	materialWords  = scene.MaterialStride / 4
)

func paramOffset(window int) uint64 { return uint64(window) * paramStride }

func frameWindow(p frame.Phase) int {
	if p == frame.Late {
		return paramFrameLate
	}
	return paramFrameEarly
}

func genWindow(target frame.GenTarget, p frame.Phase) int {
	if target == frame.GenMeshletDispatch {
		return paramGenMeshlet
	}
	if p == frame.Late {
		return paramGenTriangleLate
	}
	return paramGenTriangleEarly
}

// geometryLayout locates each geometry array inside the geometry blob, in
// 32-bit words.
type geometryLayout struct {
	vertexBase   uint32
	meshBase     uint32
	lodBase      uint32
	meshletBase  uint32
	boundsBase   uint32
	ivertexBase  uint32
	triangleBase uint32
	words        uint32
}

func layoutGeometry(sc *scene.Buffers) geometryLayout {
	var l geometryLayout
	at := uint32(0)
	next := func(words int) uint32 {
		base := at
		at += uint32(words)
		return base
	}
	l.vertexBase = next(len(sc.Vertices) * vertexWords)
	l.meshBase = next(len(sc.Meshes) * meshWords)
	l.lodBase = next(len(sc.Meshes) * scene.MaxLODs * lodWords)
	l.meshletBase = next(len(sc.Meshlets) * meshletWords)
	l.boundsBase = next(len(sc.MeshletBounds) * boundsWords)
	l.ivertexBase = next(len(sc.IndirectVertices))
	l.triangleBase = next(len(sc.LocalTriangles))
	l.words = at
	return l
}

// encodeGeometry packs the geometry arrays in layoutGeometry order.
func encodeGeometry(sc *scene.Buffers, l geometryLayout) []byte {
	out := make([]byte, 0, int(l.words)*4)
	out = append(out, scene.EncodeVertices(sc.Vertices)...)
	out = append(out, scene.EncodeMeshes(sc.Meshes)...)
	out = append(out, scene.EncodeLODs(sc.Meshes)...)
	out = append(out, scene.EncodeMeshlets(sc.Meshlets)...)
	out = append(out, scene.EncodeBounds(sc.MeshletBounds)...)
	out = append(out, scene.EncodeU32s(sc.IndirectVertices)...)
	out = append(out, scene.EncodeU32s(sc.LocalTriangles)...)
	return out
}

// instanceLayout reserves capacity for each per-instance array so sparse
// updates can be written in place.
type instanceLayout struct {
	instanceCap   uint32
	transformCap  uint32
	materialCap   uint32
	instanceBase  uint32
	transformBase uint32
	materialBase  uint32
	words         uint32
}

func layoutInstances(instances, transforms, materials int) instanceLayout {
	l := instanceLayout{
		instanceCap:  growCapacity(instances),
		transformCap: growCapacity(transforms),
		materialCap:  growCapacity(materials),
	}
	l.instanceBase = 0
	l.transformBase = l.instanceCap * instanceWords
	l.materialBase = l.transformBase + l.transformCap*transformWords
	l.words = l.materialBase + l.materialCap*materialWords
	return l
}

// fits reports whether sc's per-instance arrays fit the reserved capacity.
func (l instanceLayout) fits(sc *scene.Buffers) bool {
	return uint32(len(sc.Instances)) <= l.instanceCap &&
		uint32(len(sc.Transforms)) <= l.transformCap &&
		uint32(len(sc.Materials)) <= l.materialCap
}

// growCapacity rounds n up to a power of two, at least 64.
func growCapacity(n int) uint32 {
	c := uint32(64)
	for c < uint32(n) {
		c *= 2
	}
	return c
}

// frameParams mirrors the WGSL Frame uniform.
type frameParams struct {
	viewProj      geom.Mat4
	planes        geom.Frustum
	width, height uint32
	flags         scene.CullFlags
	microArea     float32
	instanceCount uint32
	maxMeshlets   uint32
	maxIndices    uint32
	phase         frame.Phase
	hizLevels     uint32
	hizWidth      uint32
	hizHeight     uint32
	hizValid      bool
	depthStride   uint32
	visStride     uint32
	overdraw      bool
	geometry      geometryLayout
	instances     instanceLayout
	hizOffsets    [maxHiZLevels]uint32
}

// toBytes serializes p in the std140-compatible layout of the shader.
func (p *frameParams) toBytes() []byte {
	buf := make([]byte, 0, frameParamsSize)
	le := binary.LittleEndian
	f32 := func(v float32) { buf = le.AppendUint32(buf, math.Float32bits(v)) }
	u32 := func(v uint32) { buf = le.AppendUint32(buf, v) }
	b32 := func(v bool) {
		if v {
			u32(1)
		} else {
			u32(0)
		}
	}

	for _, v := range p.viewProj {
		f32(v)
	}
	for _, pl := range p.planes {
		f32(pl.Normal.X)
		f32(pl.Normal.Y)
		f32(pl.Normal.Z)
		f32(pl.D)
	}
	u32(p.width)
	u32(p.height)
	u32(uint32(p.flags))
	f32(p.microArea)

	u32(p.instanceCount)
	u32(p.maxMeshlets)
	u32(p.maxIndices)
	u32(uint32(p.phase))

	u32(p.hizLevels)
	u32(p.hizWidth)
	u32(p.hizHeight)
	b32(p.hizValid)

	u32(p.depthStride)
	u32(p.visStride)
	b32(p.overdraw)
	u32(0)

	g := &p.geometry
	u32(g.vertexBase)
	u32(g.meshBase)
	u32(g.lodBase)
	u32(g.meshletBase)
	u32(g.boundsBase)
	u32(g.ivertexBase)
	u32(g.triangleBase)
	u32(0)

	u32(p.instances.instanceBase)
	u32(p.instances.transformBase)
	u32(p.instances.materialBase)
	u32(0)

	for _, o := range p.hizOffsets {
		u32(o)
	}
	return buf
}

// genParams mirrors the WGSL GenParams uniform.
type genParams struct {
	counter   uint32
	capacity  uint32
	groupSize uint32
}

func (p genParams) toBytes() []byte {
	buf := make([]byte, genParamsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.counter)
	le.PutUint32(buf[4:8], p.capacity)
	le.PutUint32(buf[8:12], p.groupSize)
	return buf
}

// levelParams mirrors the WGSL Level uniform of the Hi-Z kernels.
type levelParams struct {
	offset, width, height            uint32
	srcOffset, srcWidth, srcHeight   uint32
	srcStride                        uint32
}

func (p levelParams) toBytes() []byte {
	buf := make([]byte, levelParamsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.offset)
	le.PutUint32(buf[4:8], p.width)
	le.PutUint32(buf[8:12], p.height)
	le.PutUint32(buf[12:16], p.srcOffset)
	le.PutUint32(buf[16:20], p.srcWidth)
	le.PutUint32(buf[20:24], p.srcHeight)
	le.PutUint32(buf[24:28], p.srcStride)
	return buf
}

// hizLevels returns the level parameters of a pyramid over a width x
// height depth copy whose rows are depthStride floats apart.
func hizLevels(width, height, depthStride uint32, dims []levelDim) []levelParams {
	out := make([]levelParams, len(dims))
	offset := uint32(0)
	for i, d := range dims {
		lp := levelParams{offset: offset, width: d.w, height: d.h}
		if i == 0 {
			lp.srcWidth, lp.srcHeight, lp.srcStride = width, height, depthStride
		} else {
			prev := out[i-1]
			lp.srcOffset = prev.offset
			lp.srcWidth, lp.srcHeight, lp.srcStride = prev.width, prev.height, prev.width
		}
		out[i] = lp
		offset += d.w * d.h
	}
	return out
}

// levelDim is the size of one pyramid level.
type levelDim struct {
	w, h uint32
}

// copyPitch returns the 256-byte aligned row pitch of a texture copy.
func copyPitch(width, bytesPerTexel uint32) uint32 {
	const align = 256
	return (width*bytesPerTexel + align - 1) &^ (align - 1)
}

// splitGroups spreads a workgroup count across X and Y so neither exceeds
// the per-dimension dispatch limit.
func splitGroups(n uint32) (x, y uint32) {
	const maxDim = 65535
	if n <= maxDim {
		return n, 1
	}
	return maxDim, (n + maxDim - 1) / maxDim
}
