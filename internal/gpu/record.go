// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/visbuf/internal/frame"
)

// binding is one buffer range of a bind group. A zero size binds the rest
// of the buffer.
type binding struct {
	buf          hal.Buffer
	offset, size uint64
}

func whole(buf hal.Buffer) binding { return binding{buf: buf} }

func param(buf hal.Buffer, window int, size uint64) binding {
	return binding{buf: buf, offset: paramOffset(window), size: size}
}

// bindGroup creates a bind group whose entry i is bindings[i]. It lives
// until the slot's submission completes.
func (b *Backend) bindGroup(label string, layout hal.BindGroupLayout, bindings ...binding) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, len(bindings))
	for i, bd := range bindings {
		entries[i] = gputypes.BindGroupEntry{
			Binding: uint32(i),
			Resource: gputypes.BufferBinding{
				Buffer: bd.buf.NativeHandle(),
				Offset: bd.offset,
				Size:   bd.size,
			},
		}
	}
	bg, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group %s: %w", label, err)
	}
	b.cur.bindGroups = append(b.cur.bindGroups, bg)
	return bg, nil
}

// computePass records one kernel in its own pass. Pass boundaries order
// the storage writes of consecutive stages.
func (b *Backend) computePass(label string, k kernel, bg hal.BindGroup, record func(hal.ComputePassEncoder)) {
	pass := b.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	pass.SetPipeline(b.pipelines[k])
	pass.SetBindGroup(0, bg, nil)
	record(pass)
	pass.End()
}

// frameBindings returns the bindings shared by every kernel built on the
// common prelude.
func (b *Backend) frameBindings(p frame.Phase) []binding {
	return []binding{
		param(b.cur.params, frameWindow(p), frameParamsSize),
		whole(b.scene.geometry),
		whole(b.scene.instanceData),
	}
}

// hizFor returns the pyramid buffer a phase samples. Without history the
// early phase binds its own buffer; hiz_valid is then zero.
func (b *Backend) hizFor(p frame.Phase) hal.Buffer {
	if p == frame.Early && b.prevHiZ != nil {
		return b.prevHiZ.hiz
	}
	return b.cur.hiz
}

// zeroes returns n zero bytes.
func zeroes(n uint64) []byte { return make([]byte, n) }

// BeginFrame implements frame.Recorder.
func (b *Backend) BeginFrame(ctx context.Context, in *frame.Inputs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.initialized {
		return fmt.Errorf("gpu: %w: backend closed", frame.ErrDeviceLost)
	}
	if in.Scene == nil {
		return fmt.Errorf("%w: nil scene", frame.ErrInvalidConfig)
	}
	b.abort()

	n := len(b.ring)
	slot := in.Slot(n)
	r := b.ring[slot]
	if err := b.waitSlot(ctx, r); err != nil {
		return err
	}
	if err := b.scene.upload(b.device, b.queue, in.Scene, in.Dirty, func() error { return b.waitAll(ctx) }); err != nil {
		return err
	}

	b.in = in
	b.cur = r
	b.prevHiZ = nil
	if p := b.ring[(slot+n-1)%n]; p.hizValid && p.hizFrame+1 == in.Index {
		b.prevHiZ = p
	}
	r.instances = uint32(len(in.Scene.Instances))

	c := &b.cfg
	w := &writer{queue: b.queue}
	w.write(r.counters, 0, zeroes(counterCount*4))
	w.write(r.mask, 0, zeroes((uint64(c.MaxMeshletInstances)+31)/32*4))
	empty := frame.DrawIndexedArgs{InstanceCount: 1}.Bytes()
	for p := range 2 {
		w.write(r.drawArgs[p], 0, empty)
	}
	if r.overdraw != nil {
		w.write(r.overdraw, 0, zeroes(uint64(c.Width)*uint64(c.Height)*4))
	}
	b.writeParams(w, r)
	if w.err != nil {
		b.in = nil
		b.cur = nil
		return fmt.Errorf("gpu: %w: clear frame state: %v", frame.ErrDeviceLost, w.err)
	}

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "visbuf_frame",
	})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(fmt.Sprintf("visbuf_frame_%d", in.Index)); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}
	b.encoder = encoder

	b.trace = frame.Trace{}
	b.trace.Add(frame.Op{Kind: frame.OpClear, Stage: frame.StageMeshCull, Label: "counters+mask+targets"})
	return nil
}

// writer issues queue writes until the first failure and keeps it.
type writer struct {
	queue hal.Queue
	err   error
}

func (w *writer) write(buf hal.Buffer, offset uint64, data []byte) {
	if w.err != nil {
		return
	}
	w.err = w.queue.WriteBuffer(buf, offset, data)
}

// writeParams uploads every uniform window of the frame.
func (b *Backend) writeParams(w *writer, r *slotResources) {
	for _, p := range []frame.Phase{frame.Early, frame.Late} {
		fp := b.frameParams(r, p)
		w.write(r.params, paramOffset(frameWindow(p)), fp.toBytes())
	}
	capacity := b.cfg.MaxMeshletInstances
	w.write(r.params, paramOffset(paramGenMeshlet), genParams{
		counter: counterCandidates, capacity: capacity, groupSize: frame.MeshletCullGroupSize,
	}.toBytes())
	for _, p := range []frame.Phase{frame.Early, frame.Late} {
		w.write(r.params, paramOffset(genWindow(frame.GenTriangleDispatch, p)), genParams{
			counter: counterVisible + uint32(p), capacity: capacity, groupSize: 1,
		}.toBytes())
	}
	for i, l := range r.levels {
		w.write(r.params, paramOffset(paramHiZBase+i), l.toBytes())
	}
}

func (b *Backend) frameParams(r *slotResources, p frame.Phase) *frameParams {
	in := b.in
	c := &b.cfg
	fp := &frameParams{
		viewProj:      in.View.ViewProj,
		planes:        in.View.Frustum,
		width:         c.Width,
		height:        c.Height,
		flags:         in.Flags,
		microArea:     in.MicroTriangleArea,
		instanceCount: uint32(len(in.Scene.Instances)),
		maxMeshlets:   c.MaxMeshletInstances,
		maxIndices:    c.MaxIndices(),
		phase:         p,
		hizLevels:     uint32(len(r.levels)),
		hizValid:      p == frame.Late || b.prevHiZ != nil,
		depthStride:   r.depthStride,
		visStride:     r.visStride,
		overdraw:      r.overdraw != nil,
		geometry:      b.scene.geo,
		instances:     b.scene.inst,
		hizOffsets:    r.hizOffsets(),
	}
	if len(r.levels) > 0 {
		fp.hizWidth, fp.hizHeight = r.levels[0].width, r.levels[0].height
	}
	return fp
}

// CullMeshes implements frame.Recorder.
func (b *Backend) CullMeshes() error {
	if err := b.recording(); err != nil {
		return err
	}
	r := b.cur
	n := uint32(len(b.in.Scene.Instances))
	groups := (n + frame.MeshCullGroupSize - 1) / frame.MeshCullGroupSize

	bg, err := b.bindGroup("visbuf_mesh_cull_bg", b.bgLayouts[kernelMeshCull],
		append(b.frameBindings(frame.Early),
			whole(b.hizFor(frame.Early)),
			whole(r.counters),
			whole(r.candidates))...)
	if err != nil {
		return err
	}
	b.trace.Add(frame.Op{Kind: frame.OpDispatch, Stage: frame.StageMeshCull, Label: "mesh_cull", Groups: groups})
	if groups > 0 {
		x, y := splitGroups(groups)
		b.computePass("visbuf_mesh_cull", kernelMeshCull, bg, func(pass hal.ComputePassEncoder) {
			pass.Dispatch(x, y, 1)
		})
	}
	b.trace.Barrier(frame.StageMeshCull, frame.Early, "candidates")
	return nil
}

// GenerateCommands implements frame.Recorder.
func (b *Backend) GenerateCommands(target frame.GenTarget, p frame.Phase) error {
	if err := b.recording(); err != nil {
		return err
	}
	r := b.cur
	label := "gen_meshlet_dispatch"
	args := r.meshletArgs
	if target == frame.GenTriangleDispatch {
		label = "gen_triangle_dispatch"
		args = r.triangleArgs[p]
	}
	bg, err := b.bindGroup("visbuf_"+label+"_bg", b.bgLayouts[kernelGenCmd],
		param(r.params, genWindow(target, p), genParamsSize),
		whole(r.counters),
		whole(args))
	if err != nil {
		return err
	}
	b.trace.Add(frame.Op{Kind: frame.OpDispatch, Stage: frame.StageGenCmd, Phase: p, Label: label, Groups: 1})
	b.computePass("visbuf_"+label, kernelGenCmd, bg, func(pass hal.ComputePassEncoder) {
		pass.Dispatch(1, 1, 1)
	})
	b.trace.Barrier(frame.StageGenCmd, p, "indirect_args")
	return nil
}

// CullMeshlets implements frame.Recorder. Both phases dispatch from the
// candidate arguments written by the first generator.
func (b *Backend) CullMeshlets(p frame.Phase) error {
	if err := b.recording(); err != nil {
		return err
	}
	r := b.cur
	bg, err := b.bindGroup("visbuf_meshlet_cull_bg", b.bgLayouts[kernelMeshletCull],
		append(b.frameBindings(p),
			whole(b.hizFor(p)),
			whole(r.counters),
			whole(r.candidates),
			whole(r.mask),
			whole(r.visible[p]))...)
	if err != nil {
		return err
	}
	b.trace.Add(frame.Op{Kind: frame.OpDispatchIndirect, Stage: frame.StageMeshletCull, Phase: p, Label: "meshlet_cull"})
	b.computePass("visbuf_meshlet_cull_"+p.String(), kernelMeshletCull, bg, func(pass hal.ComputePassEncoder) {
		pass.DispatchIndirect(r.meshletArgs, 0)
	})
	b.trace.Barrier(frame.StageMeshletCull, p, "visible_meshlets")
	return nil
}

// CullTriangles implements frame.Recorder.
func (b *Backend) CullTriangles(p frame.Phase) error {
	if err := b.recording(); err != nil {
		return err
	}
	r := b.cur
	bg, err := b.bindGroup("visbuf_triangle_cull_bg", b.bgLayouts[kernelTriangleCull],
		append(b.frameBindings(p),
			whole(r.counters),
			whole(r.candidates),
			whole(r.visible[p]),
			whole(r.drawArgs[p]),
			whole(r.indices[p]))...)
	if err != nil {
		return err
	}
	b.trace.Add(frame.Op{Kind: frame.OpDispatchIndirect, Stage: frame.StageTriangleCull, Phase: p, Label: "triangle_cull"})
	b.computePass("visbuf_triangle_cull_"+p.String(), kernelTriangleCull, bg, func(pass hal.ComputePassEncoder) {
		pass.DispatchIndirect(r.triangleArgs[p], 0)
	})
	b.trace.Barrier(frame.StageTriangleCull, p, "index_buffer+draw_args")
	return nil
}

// Draw implements frame.Recorder. The early draw clears both targets; the
// late draw loads them and adds what the early pass missed.
func (b *Backend) Draw(p frame.Phase) error {
	if err := b.recording(); err != nil {
		return err
	}
	r := b.cur
	overdraw := r.overdraw
	if overdraw == nil {
		overdraw = b.dummy
	}
	bg, err := b.bindGroup("visbuf_visbuffer_bg", b.visLayout,
		append(b.frameBindings(p),
			whole(r.candidates),
			whole(overdraw))...)
	if err != nil {
		return err
	}

	load := gputypes.LoadOpLoad
	if p == frame.Early {
		load = gputypes.LoadOpClear
	}
	const empty = 4294967295.0
	rp := b.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "visbuf_visbuffer_" + p.String(),
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       r.visView,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: empty, G: empty, B: empty, A: empty},
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:            r.depthView,
			DepthLoadOp:     load,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: 0,
		},
	})
	rp.SetPipeline(b.visPipeline)
	rp.SetBindGroup(0, bg, nil)
	rp.SetIndexBuffer(r.indices[p], gputypes.IndexFormatUint32, 0)
	rp.DrawIndexedIndirect(r.drawArgs[p], 0)
	rp.End()

	b.trace.Add(frame.Op{Kind: frame.OpDrawIndexedIndirect, Stage: frame.StageDraw, Phase: p, Label: "visbuffer"})
	b.trace.Barrier(frame.StageDraw, p, "depth+visibility")
	return nil
}

// copyTarget copies a render target into a storage buffer with a
// 256-byte aligned row pitch, transitioning it around the copy.
func (b *Backend) copyTarget(tex hal.Texture, dst hal.Buffer, pitch uint32) {
	w, h := b.cfg.Width, b.cfg.Height
	b.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	b.encoder.CopyTextureToBuffer(tex, dst, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	b.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
}

// BuildHiZ implements frame.Recorder: copy depth, reduce it into level 0,
// then one dispatch per further level.
func (b *Backend) BuildHiZ() error {
	if err := b.recording(); err != nil {
		return err
	}
	r := b.cur
	b.trace.Barrier(frame.StageHiZ, frame.Early, "depth")
	b.copyTarget(r.depthTex, r.depthCopy, r.depthStride*4)
	b.trace.Add(frame.Op{Kind: frame.OpCopy, Stage: frame.StageHiZ, Label: "depth_copy"})

	for i, l := range r.levels {
		k, label := kernelHiZReduce, "hiz_reduce"
		if i == 0 {
			k, label = kernelHiZInit, "hiz_init"
		}
		bg, err := b.bindGroup("visbuf_"+label+"_bg", b.bgLayouts[k],
			param(r.params, paramHiZBase+i, levelParamsSize),
			whole(r.depthCopy),
			whole(r.hiz))
		if err != nil {
			return err
		}
		gx := (l.width + frame.HiZGroupSize - 1) / frame.HiZGroupSize
		gy := (l.height + frame.HiZGroupSize - 1) / frame.HiZGroupSize
		b.trace.Add(frame.Op{Kind: frame.OpDispatch, Stage: frame.StageHiZ, Label: label, Groups: gx * gy})
		b.computePass(fmt.Sprintf("visbuf_%s_%d", label, i), k, bg, func(pass hal.ComputePassEncoder) {
			pass.Dispatch(gx, gy, 1)
		})
		if i+1 < len(r.levels) {
			b.trace.Barrier(frame.StageHiZ, frame.Early, "hiz_mip")
		}
	}
	r.hizValid = true
	r.hizFrame = b.in.Index
	b.trace.Barrier(frame.StageHiZ, frame.Late, "hiz")
	return nil
}

// Decode implements frame.Recorder.
func (b *Backend) Decode() error {
	if err := b.recording(); err != nil {
		return err
	}
	r := b.cur
	b.copyTarget(r.visTex, r.visCopy, r.visStride*8)
	b.trace.Add(frame.Op{Kind: frame.OpCopy, Stage: frame.StageDecode, Label: "visibility_copy"})

	bg, err := b.bindGroup("visbuf_decode_bg", b.bgLayouts[kernelDecode],
		append(b.frameBindings(frame.Late),
			whole(r.visCopy),
			whole(r.gbuffer))...)
	if err != nil {
		return err
	}
	gx := (b.cfg.Width + frame.DecodeGroupSize - 1) / frame.DecodeGroupSize
	gy := (b.cfg.Height + frame.DecodeGroupSize - 1) / frame.DecodeGroupSize
	b.trace.Add(frame.Op{Kind: frame.OpDispatch, Stage: frame.StageDecode, Label: "decode", Groups: gx * gy})
	b.computePass("visbuf_decode", kernelDecode, bg, func(pass hal.ComputePassEncoder) {
		pass.Dispatch(gx, gy, 1)
	})
	return nil
}

// EndFrame implements frame.Recorder. It submits without waiting; the
// frame's counters become visible through LastStats once its slot retires.
func (b *Backend) EndFrame(ctx context.Context) (*frame.Output, error) {
	if b.encoder == nil || b.in == nil {
		return nil, fmt.Errorf("gpu: %w: end without begin", frame.ErrInvalidTransition)
	}
	if err := ctx.Err(); err != nil {
		b.abort()
		return nil, err
	}
	r := b.cur
	in := b.in

	b.encoder.CopyBufferToBuffer(r.counters, r.stats, []hal.BufferCopy{{
		SrcOffset: 0, DstOffset: 0, Size: counterCount * 4,
	}})
	for p := range 2 {
		b.encoder.CopyBufferToBuffer(r.drawArgs[p], r.stats, []hal.BufferCopy{{
			SrcOffset: 0, DstOffset: uint64(counterCount*4 + 4*p), Size: 4,
		}})
	}
	b.trace.Add(frame.Op{Kind: frame.OpCopy, Stage: frame.StageDecode, Label: "stats"})

	cmd, err := b.encoder.EndEncoding()
	b.encoder = nil
	if err != nil {
		r.releaseFrame(b.device)
		b.in = nil
		return nil, fmt.Errorf("gpu: end encoding: %w", err)
	}
	idx, err := b.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		b.device.FreeCommandBuffer(cmd)
		r.releaseFrame(b.device)
		b.in = nil
		return nil, fmt.Errorf("gpu: %w: submit: %v", frame.ErrDeviceLost, err)
	}
	r.cmd = cmd
	r.submission = idx
	r.pending = true
	r.pendingIdx = in.Index

	out := &frame.Output{
		Index:  in.Index,
		Width:  int(b.cfg.Width),
		Height: int(b.cfg.Height),
		Trace:  b.trace,
	}
	out.Stats.Instances = r.instances

	slogger().Debug("gpu: frame submitted",
		"frame", in.Index,
		"bind_groups", len(r.bindGroups),
		"ops", len(b.trace.Ops))
	b.in = nil
	return out, nil
}

// recording reports an error unless a frame is being recorded.
func (b *Backend) recording() error {
	if b.encoder == nil || b.in == nil {
		return fmt.Errorf("gpu: %w: no frame begun", frame.ErrInvalidTransition)
	}
	return nil
}

// abort drops a frame that was begun but never submitted.
func (b *Backend) abort() {
	if b.encoder != nil {
		b.encoder.DiscardEncoding()
		b.encoder = nil
		if b.cur != nil {
			b.cur.releaseFrame(b.device)
		}
	}
	b.in = nil
}
