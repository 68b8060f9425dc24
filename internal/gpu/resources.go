// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/visbuf/internal/cull"
	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/scene"
)

// Buffer usages by role.
const (
	usageParams   = gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	usageScene    = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	usageWork     = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	usageCounters = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	usageArgs     = gputypes.BufferUsageStorage | gputypes.BufferUsageIndirect | gputypes.BufferUsageCopyDst
	usageDrawArgs = usageArgs | gputypes.BufferUsageCopySrc
	usageIndices  = gputypes.BufferUsageStorage | gputypes.BufferUsageIndex
	usageReadback = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
)

// statsSize covers the counters followed by the index_count of both draws.
const statsSize = counterCount*4 + 8

// createBuffer creates a buffer of at least 4 bytes.
func createBuffer(device hal.Device, label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	size = max(size, 4)
	size = (size + 3) &^ 3
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %s: %w", label, err)
	}
	return buf, nil
}

func destroyBuffer(device hal.Device, buf *hal.Buffer) {
	if *buf != nil {
		device.DestroyBuffer(*buf)
		*buf = nil
	}
}

// sceneBuffers holds the two packed scene blobs shared by every slot.
type sceneBuffers struct {
	geometry     hal.Buffer
	geometrySize uint64
	geo          geometryLayout

	instanceData hal.Buffer
	instanceSize uint64
	inst         instanceLayout

	uploaded bool
}

// upload writes the dirty parts of sc. idle is called before a grown
// buffer replaces one that in-flight frames may still read.
func (s *sceneBuffers) upload(device hal.Device, queue hal.Queue, sc *scene.Buffers, dirty scene.Dirty, idle func() error) error {
	if !s.uploaded || dirty.Geometry {
		s.geo = layoutGeometry(sc)
		data := encodeGeometry(sc, s.geo)
		if err := s.ensure(device, &s.geometry, &s.geometrySize, "visbuf_geometry", uint64(len(data)), idle); err != nil {
			return err
		}
		if len(data) > 0 {
			if err := queue.WriteBuffer(s.geometry, 0, data); err != nil {
				return fmt.Errorf("gpu: upload geometry: %w", err)
			}
		}
		slogger().Debug("gpu: geometry uploaded", "bytes", len(data), "meshes", len(sc.Meshes))
	}

	if !s.uploaded || !s.inst.fits(sc) {
		s.inst = layoutInstances(len(sc.Instances), len(sc.Transforms), len(sc.Materials))
		if err := s.ensure(device, &s.instanceData, &s.instanceSize, "visbuf_instances", uint64(s.inst.words)*4, idle); err != nil {
			return err
		}
		err := errors.Join(
			s.writeInstances(queue, sc, 0, uint32(len(sc.Instances))),
			s.writeTransforms(queue, sc, 0, uint32(len(sc.Transforms))),
			s.writeMaterials(queue, sc, 0, uint32(len(sc.Materials))))
		if err != nil {
			return fmt.Errorf("gpu: upload instance data: %w", err)
		}
		s.uploaded = true
		slogger().Debug("gpu: instance data relaid",
			"instance_cap", s.inst.instanceCap,
			"transform_cap", s.inst.transformCap,
			"material_cap", s.inst.materialCap)
		return nil
	}

	var errs []error
	for _, r := range dirty.Instances {
		errs = append(errs, s.writeInstances(queue, sc, r.Start, r.End))
	}
	for _, r := range dirty.Transforms {
		errs = append(errs, s.writeTransforms(queue, sc, r.Start, r.End))
	}
	for _, r := range dirty.Materials {
		errs = append(errs, s.writeMaterials(queue, sc, r.Start, r.End))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("gpu: upload instance data: %w", err)
	}
	s.uploaded = true
	return nil
}

// ensure grows *buf to hold size bytes, rounding capacity up to a power of
// two so repeated small growth does not reallocate every frame.
func (s *sceneBuffers) ensure(device hal.Device, buf *hal.Buffer, capacity *uint64, label string, size uint64, idle func() error) error {
	if *buf != nil && size <= *capacity {
		return nil
	}
	if *buf != nil {
		if err := idle(); err != nil {
			return err
		}
		destroyBuffer(device, buf)
	}
	c := uint64(256)
	for c < size {
		c *= 2
	}
	b, err := createBuffer(device, label, c, usageScene)
	if err != nil {
		return err
	}
	*buf, *capacity = b, c
	return nil
}

func (s *sceneBuffers) writeInstances(queue hal.Queue, sc *scene.Buffers, start, end uint32) error {
	end = min(end, uint32(len(sc.Instances)))
	if start >= end {
		return nil
	}
	off := uint64(s.inst.instanceBase+start*instanceWords) * 4
	return queue.WriteBuffer(s.instanceData, off, scene.EncodeInstances(sc.Instances[start:end]))
}

func (s *sceneBuffers) writeTransforms(queue hal.Queue, sc *scene.Buffers, start, end uint32) error {
	end = min(end, uint32(len(sc.Transforms)))
	if start >= end {
		return nil
	}
	off := uint64(s.inst.transformBase+start*transformWords) * 4
	return queue.WriteBuffer(s.instanceData, off, scene.EncodeTransforms(sc.Transforms[start:end]))
}

func (s *sceneBuffers) writeMaterials(queue hal.Queue, sc *scene.Buffers, start, end uint32) error {
	end = min(end, uint32(len(sc.Materials)))
	if start >= end {
		return nil
	}
	off := uint64(s.inst.materialBase+start*materialWords) * 4
	return queue.WriteBuffer(s.instanceData, off, scene.EncodeMaterials(sc.Materials[start:end]))
}

func (s *sceneBuffers) destroy(device hal.Device) {
	destroyBuffer(device, &s.geometry)
	destroyBuffer(device, &s.instanceData)
	*s = sceneBuffers{}
}

// slotResources holds one frame in flight.
type slotResources struct {
	params   hal.Buffer
	counters hal.Buffer
	stats    hal.Buffer

	// Transient, sized by the capacities.
	candidates   hal.Buffer
	mask         hal.Buffer
	meshletArgs  hal.Buffer
	visible      [2]hal.Buffer
	triangleArgs [2]hal.Buffer
	drawArgs     [2]hal.Buffer
	indices      [2]hal.Buffer

	// Size dependent.
	depthTex  hal.Texture
	depthView hal.TextureView
	visTex    hal.Texture
	visView   hal.TextureView
	depthCopy hal.Buffer
	visCopy   hal.Buffer
	hiz       hal.Buffer
	overdraw  hal.Buffer
	gbuffer   hal.Buffer

	levels      []levelParams
	hizWords    uint32
	depthStride uint32
	visStride   uint32

	hizValid bool
	hizFrame uint64

	// Submission tracking.
	submission uint64
	pending    bool
	pendingIdx uint64
	instances  uint32
	cmd        hal.CommandBuffer
	bindGroups []hal.BindGroup
}

// allocateFixed creates the buffers whose size never changes.
func (r *slotResources) allocateFixed(device hal.Device, slot int) error {
	var err error
	label := func(name string) string { return fmt.Sprintf("visbuf_%s_%d", name, slot) }
	if r.params, err = createBuffer(device, label("params"), paramWindows*paramStride, usageParams); err != nil {
		return err
	}
	if r.counters, err = createBuffer(device, label("counters"), counterCount*4, usageCounters); err != nil {
		return err
	}
	if r.stats, err = createBuffer(device, label("stats"), statsSize, usageReadback); err != nil {
		return err
	}
	if r.meshletArgs, err = createBuffer(device, label("meshlet_args"), frame.DispatchArgsSize, usageArgs); err != nil {
		return err
	}
	for p := range 2 {
		if r.triangleArgs[p], err = createBuffer(device, label(fmt.Sprintf("triangle_args_%d", p)), frame.DispatchArgsSize, usageArgs); err != nil {
			return err
		}
		if r.drawArgs[p], err = createBuffer(device, label(fmt.Sprintf("draw_args_%d", p)), frame.DrawIndexedArgsSize, usageDrawArgs); err != nil {
			return err
		}
	}
	return nil
}

// allocateTransient (re)creates the capacity-sized buffers.
func (r *slotResources) allocateTransient(device hal.Device, slot int, cfg *frame.Config) error {
	r.destroyTransient(device)
	var err error
	label := func(name string) string { return fmt.Sprintf("visbuf_%s_%d", name, slot) }
	n := uint64(cfg.MaxMeshletInstances)
	if r.candidates, err = createBuffer(device, label("candidates"), n*scene.MeshletInstanceStride, usageWork); err != nil {
		return err
	}
	if r.mask, err = createBuffer(device, label("mask"), (n+31)/32*4, usageWork); err != nil {
		return err
	}
	for p := range 2 {
		if r.visible[p], err = createBuffer(device, label(fmt.Sprintf("visible_%d", p)), n*4, usageWork); err != nil {
			return err
		}
		if r.indices[p], err = createBuffer(device, label(fmt.Sprintf("indices_%d", p)), uint64(cfg.MaxIndices())*4, usageIndices); err != nil {
			return err
		}
	}
	return nil
}

// allocateTargets (re)creates the size-dependent textures and buffers and
// invalidates the Hi-Z history.
func (r *slotResources) allocateTargets(device hal.Device, slot int, cfg *frame.Config) error {
	r.destroyTargets(device)
	var err error
	label := func(name string) string { return fmt.Sprintf("visbuf_%s_%d", name, slot) }
	w, h := cfg.Width, cfg.Height

	if r.depthTex, r.depthView, err = createTarget(device, label("depth"), w, h, gputypes.TextureFormatDepth32Float); err != nil {
		return err
	}
	if r.visTex, r.visView, err = createTarget(device, label("visibility"), w, h, gputypes.TextureFormatRG32Uint); err != nil {
		return err
	}

	depthPitch := copyPitch(w, 4)
	visPitch := copyPitch(w, 8)
	r.depthStride = depthPitch / 4
	r.visStride = visPitch / 8
	if r.depthCopy, err = createBuffer(device, label("depth_copy"), uint64(depthPitch)*uint64(h), usageWork); err != nil {
		return err
	}
	if r.visCopy, err = createBuffer(device, label("visibility_copy"), uint64(visPitch)*uint64(h), usageWork); err != nil {
		return err
	}

	w0, h0 := cull.HiZBaseSize(int(w), int(h))
	count := min(cull.HiZLevelCount(w0, h0, cfg.HiZLevels), maxHiZLevels)
	dims := make([]levelDim, count)
	lw, lh := uint32(w0), uint32(h0)
	for i := range dims {
		dims[i] = levelDim{w: lw, h: lh}
		lw, lh = max(lw/2, 1), max(lh/2, 1)
	}
	r.levels = hizLevels(w, h, r.depthStride, dims)
	last := r.levels[len(r.levels)-1]
	r.hizWords = last.offset + last.width*last.height
	if r.hiz, err = createBuffer(device, label("hiz"), uint64(r.hizWords)*4, gputypes.BufferUsageStorage); err != nil {
		return err
	}

	pixels := uint64(w) * uint64(h)
	if cfg.Overdraw {
		if r.overdraw, err = createBuffer(device, label("overdraw"), pixels*4, usageCounters); err != nil {
			return err
		}
	}
	if r.gbuffer, err = createBuffer(device, label("gbuffer"), pixels*16, gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc); err != nil {
		return err
	}
	r.hizValid = false
	return nil
}

func createTarget(device hal.Device, label string, w, h uint32, format gputypes.TextureFormat) (hal.Texture, hal.TextureView, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gpu: create texture %s: %w", label, err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: label + "_view"})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, nil, fmt.Errorf("gpu: create texture view %s: %w", label, err)
	}
	return tex, view, nil
}

// hizOffsets returns the level offsets in the frame uniform layout.
func (r *slotResources) hizOffsets() (out [maxHiZLevels]uint32) {
	for i, l := range r.levels {
		out[i] = l.offset
	}
	return out
}

// releaseFrame frees the command buffer and bind groups of the last
// submission, which must have completed.
func (r *slotResources) releaseFrame(device hal.Device) {
	if r.cmd != nil {
		device.FreeCommandBuffer(r.cmd)
		r.cmd = nil
	}
	for _, bg := range r.bindGroups {
		device.DestroyBindGroup(bg)
	}
	r.bindGroups = r.bindGroups[:0]
}

func (r *slotResources) destroyTransient(device hal.Device) {
	destroyBuffer(device, &r.candidates)
	destroyBuffer(device, &r.mask)
	for p := range 2 {
		destroyBuffer(device, &r.visible[p])
		destroyBuffer(device, &r.indices[p])
	}
}

func (r *slotResources) destroyTargets(device hal.Device) {
	if r.depthView != nil {
		device.DestroyTextureView(r.depthView)
		r.depthView = nil
	}
	if r.depthTex != nil {
		device.DestroyTexture(r.depthTex)
		r.depthTex = nil
	}
	if r.visView != nil {
		device.DestroyTextureView(r.visView)
		r.visView = nil
	}
	if r.visTex != nil {
		device.DestroyTexture(r.visTex)
		r.visTex = nil
	}
	destroyBuffer(device, &r.depthCopy)
	destroyBuffer(device, &r.visCopy)
	destroyBuffer(device, &r.hiz)
	destroyBuffer(device, &r.overdraw)
	destroyBuffer(device, &r.gbuffer)
	r.levels = nil
}

func (r *slotResources) destroy(device hal.Device) {
	r.releaseFrame(device)
	r.destroyTransient(device)
	r.destroyTargets(device)
	destroyBuffer(device, &r.params)
	destroyBuffer(device, &r.counters)
	destroyBuffer(device, &r.stats)
	destroyBuffer(device, &r.meshletArgs)
	for p := range 2 {
		destroyBuffer(device, &r.triangleArgs[p])
		destroyBuffer(device, &r.drawArgs[p])
	}
}
