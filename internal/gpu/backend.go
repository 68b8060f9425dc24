// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/visbuf/internal/frame"
)

// BackendHAL is the identifier of the device backend.
const BackendHAL = "hal"

// defaultWaitTimeout bounds a slot wait when the context has no earlier
// deadline.
const defaultWaitTimeout = 5 * time.Second

// pollInterval is the sleep between submission polls of a blocked slot.
const pollInterval = 100 * time.Microsecond

// ErrNotInitialized is returned when a frame is recorded on a backend whose
// pipelines were never created or were released by Close.
var ErrNotInitialized = errors.New("gpu: backend not initialized")

// Backend is the frame.Recorder that records every stage into one command
// buffer per frame on a hal device. Submission never waits; a slot blocks
// only when it comes around again while its previous frame is in flight.
type Backend struct {
	device hal.Device
	queue  hal.Queue
	cfg    frame.Config

	modules         [kernelCount]hal.ShaderModule
	bgLayouts       [kernelCount]hal.BindGroupLayout
	pipelineLayouts [kernelCount]hal.PipelineLayout
	pipelines       [kernelCount]hal.ComputePipeline

	visModule         hal.ShaderModule
	visLayout         hal.BindGroupLayout
	visPipelineLayout hal.PipelineLayout
	visPipeline       hal.RenderPipeline

	// dummy stands in for the overdraw buffer when counting is disabled.
	dummy hal.Buffer

	scene sceneBuffers
	ring  []*slotResources

	cur     *slotResources
	prevHiZ *slotResources
	in      *frame.Inputs
	encoder hal.CommandEncoder
	trace   frame.Trace

	waitTimeout time.Duration
	lastStats   frame.Stats
	lastIndex   uint64
	initialized bool
}

var _ frame.Recorder = (*Backend)(nil)

// HalProvider is implemented by device providers that expose their hal
// device and queue.
type HalProvider interface {
	HalDevice() any
	HalQueue() any
}

// New creates a backend on device and queue and builds every pipeline.
func New(device hal.Device, queue hal.Queue, cfg frame.Config) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil device or queue", frame.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{device: device, queue: queue, cfg: cfg, waitTimeout: defaultWaitTimeout}
	if err := b.init(); err != nil {
		b.Close()
		return nil, err
	}
	slogger().Info("gpu: hal backend ready",
		"width", cfg.Width, "height", cfg.Height,
		"frames_in_flight", cfg.FramesInFlight,
		"max_meshlet_instances", cfg.MaxMeshletInstances,
		"max_triangles", cfg.MaxTriangles)
	return b, nil
}

// NewFromProvider creates a backend from a provider exposing hal handles.
func NewFromProvider(p HalProvider, cfg frame.Config) (*Backend, error) {
	device, ok := p.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: provider has no hal device", frame.ErrInvalidConfig)
	}
	queue, ok := p.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: provider has no hal queue", frame.ErrInvalidConfig)
	}
	return New(device, queue, cfg)
}

func (b *Backend) init() error {
	for k := kernel(0); k < kernelCount; k++ {
		if err := b.initKernel(k); err != nil {
			return err
		}
	}
	if err := b.initVisBuffer(); err != nil {
		return err
	}

	var err error
	if b.dummy, err = createBuffer(b.device, "visbuf_dummy", 4, usageCounters); err != nil {
		return err
	}
	b.ring = make([]*slotResources, b.cfg.FramesInFlight)
	for i := range b.ring {
		r := &slotResources{}
		b.ring[i] = r
		if err := r.allocateFixed(b.device, i); err != nil {
			return err
		}
		if err := r.allocateTransient(b.device, i, &b.cfg); err != nil {
			return err
		}
		if err := r.allocateTargets(b.device, i, &b.cfg); err != nil {
			return err
		}
	}
	b.initialized = true
	return nil
}

func (b *Backend) initKernel(k kernel) error {
	name := "visbuf_" + k.String()
	src := kernelSource(k)

	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{WGSL: src},
	})
	if err != nil {
		return fmt.Errorf("gpu: create shader module for %s: %w", k, err)
	}
	b.modules[k] = module

	entries := kernelBindGroupLayoutEntries(k)
	bgLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   name + "_bgl",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group layout for %s: %w", k, err)
	}
	b.bgLayouts[k] = bgLayout

	pipelineLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            name + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create pipeline layout for %s: %w", k, err)
	}
	b.pipelineLayouts[k] = pipelineLayout

	pipeline, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  name,
		Layout: pipelineLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create compute pipeline for %s: %w", k, err)
	}
	b.pipelines[k] = pipeline

	slogger().Debug("gpu: pipeline created",
		"kernel", k.String(),
		"bindings", len(entries),
		"shader_bytes", len(src))
	return nil
}

func (b *Backend) initVisBuffer() error {
	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "visbuf_visbuffer",
		Source: hal.ShaderSource{WGSL: visBufferSource()},
	})
	if err != nil {
		return fmt.Errorf("gpu: create visibility shader: %w", err)
	}
	b.visModule = module

	layout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "visbuf_visbuffer_bgl",
		Entries: visBufferBindGroupLayoutEntries(),
	})
	if err != nil {
		return fmt.Errorf("gpu: create visibility layout: %w", err)
	}
	b.visLayout = layout

	pipeLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "visbuf_visbuffer_pl",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create visibility pipeline layout: %w", err)
	}
	b.visPipelineLayout = pipeLayout

	// Reversed-Z: depth clears to 0 and nearer fragments have larger z.
	// Back faces were already rejected by the triangle culler.
	pipeline, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "visbuf_visbuffer",
		Layout: pipeLayout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    gputypes.TextureFormatRG32Uint,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth32Float,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionGreaterEqual,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create visibility pipeline: %w", err)
	}
	b.visPipeline = pipeline
	return nil
}

// Name implements frame.Recorder.
func (b *Backend) Name() string { return BackendHAL }

// Config returns the current configuration.
func (b *Backend) Config() frame.Config { return b.cfg }

// IsInitialized reports whether the pipelines exist.
func (b *Backend) IsInitialized() bool { return b.initialized }

// Close implements frame.Recorder. It waits for in-flight frames before
// releasing resources in reverse creation order.
func (b *Backend) Close() {
	if b.device == nil {
		return
	}
	b.abort()
	if err := b.waitAll(context.Background()); err != nil {
		slogger().Warn("gpu: close without idle device", "err", err)
	}
	for _, r := range b.ring {
		r.destroy(b.device)
	}
	b.ring = nil
	b.scene.destroy(b.device)
	destroyBuffer(b.device, &b.dummy)

	if b.visPipeline != nil {
		b.device.DestroyRenderPipeline(b.visPipeline)
		b.visPipeline = nil
	}
	if b.visPipelineLayout != nil {
		b.device.DestroyPipelineLayout(b.visPipelineLayout)
		b.visPipelineLayout = nil
	}
	if b.visLayout != nil {
		b.device.DestroyBindGroupLayout(b.visLayout)
		b.visLayout = nil
	}
	if b.visModule != nil {
		b.device.DestroyShaderModule(b.visModule)
		b.visModule = nil
	}
	for k := kernel(0); k < kernelCount; k++ {
		if b.pipelines[k] != nil {
			b.device.DestroyComputePipeline(b.pipelines[k])
			b.pipelines[k] = nil
		}
		if b.pipelineLayouts[k] != nil {
			b.device.DestroyPipelineLayout(b.pipelineLayouts[k])
			b.pipelineLayouts[k] = nil
		}
		if b.bgLayouts[k] != nil {
			b.device.DestroyBindGroupLayout(b.bgLayouts[k])
			b.bgLayouts[k] = nil
		}
		if b.modules[k] != nil {
			b.device.DestroyShaderModule(b.modules[k])
			b.modules[k] = nil
		}
	}
	b.initialized = false
	b.device = nil
	b.queue = nil
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
	if !b.initialized {
		return ErrNotInitialized
	}
	if err := b.waitAll(context.Background()); err != nil {
		return err
	}
	b.cfg = next
	for i, r := range b.ring {
		if err := r.allocateTargets(b.device, i, &b.cfg); err != nil {
			return err
		}
	}
	slogger().Info("gpu: resized", "width", width, "height", height)
	return nil
}

// Reserve implements frame.Recorder.
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
	if !b.initialized {
		return ErrNotInitialized
	}
	if err := b.waitAll(context.Background()); err != nil {
		return err
	}
	b.cfg = next
	for i, r := range b.ring {
		if err := r.allocateTransient(b.device, i, &b.cfg); err != nil {
			return err
		}
	}
	slogger().Info("gpu: capacity grown",
		"max_meshlet_instances", next.MaxMeshletInstances, "max_triangles", next.MaxTriangles)
	return nil
}

// ResetHistory implements frame.Recorder.
func (b *Backend) ResetHistory() {
	for _, r := range b.ring {
		r.hizValid = false
	}
}

// LastStats returns the statistics of the most recent frame whose slot
// has retired, and that frame's index. Device counters are read back
// FramesInFlight frames late.
func (b *Backend) LastStats() (frame.Stats, uint64) { return b.lastStats, b.lastIndex }

// Targets exposes the device resources of the most recently ended frame.
type Targets struct {
	Depth      hal.Texture
	Visibility hal.Texture
	// GBuffer holds four packed unorm words per pixel: albedo, normal,
	// emissive and metallic/roughness/occlusion.
	GBuffer hal.Buffer
	// Overdraw is nil unless counting is enabled.
	Overdraw hal.Buffer
	// HiZ is the flat pyramid; level l starts at HiZOffsets[l] floats.
	HiZ        hal.Buffer
	HiZOffsets []uint32
}

// Targets returns the resources of the slot of frame index.
func (b *Backend) Targets(index uint64) Targets {
	if len(b.ring) == 0 {
		return Targets{}
	}
	r := b.ring[int(index%uint64(len(b.ring)))]
	t := Targets{
		Depth:      r.depthTex,
		Visibility: r.visTex,
		GBuffer:    r.gbuffer,
		Overdraw:   r.overdraw,
		HiZ:        r.hiz,
	}
	for _, l := range r.levels {
		t.HiZOffsets = append(t.HiZOffsets, l.offset)
	}
	return t
}

// waitSlot blocks until the queue reports r's last submission completed,
// then collects its statistics and frees its per-frame objects.
func (b *Backend) waitSlot(ctx context.Context, r *slotResources) error {
	if !r.pending {
		return nil
	}
	deadline := time.Now().Add(b.waitTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	for b.queue.PollCompleted() < r.submission {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("gpu: %w: frame %d", frame.ErrFrameTimeout, r.pendingIdx)
		}
		time.Sleep(pollInterval)
	}
	r.pending = false
	r.releaseFrame(b.device)
	b.collectStats(r)
	return nil
}

// waitAll retires every slot.
func (b *Backend) waitAll(ctx context.Context) error {
	for _, r := range b.ring {
		if err := b.waitSlot(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// collectStats decodes the stats readback of a retired slot.
func (b *Backend) collectStats(r *slotResources) {
	m, err := b.device.MapBuffer(r.stats, 0, statsSize)
	if err != nil {
		slogger().Warn("gpu: stats readback failed", "frame", r.pendingIdx, "err", err)
		return
	}
	raw := slices.Clone(unsafe.Slice((*byte)(m.Ptr), statsSize))
	if err := b.device.UnmapBuffer(r.stats); err != nil {
		slogger().Warn("gpu: stats unmap failed", "frame", r.pendingIdx, "err", err)
	}
	st := decodeStats(raw, b.cfg.MaxMeshletInstances, b.cfg.MaxIndices())
	st.Instances = r.instances
	if r.pendingIdx >= b.lastIndex {
		b.lastStats, b.lastIndex = st, r.pendingIdx
	}
	if st.DroppedMeshletInstances > 0 || st.DroppedTriangles > 0 {
		slogger().Warn("gpu: capacity overflow",
			"frame", r.pendingIdx,
			"dropped_meshlet_instances", st.DroppedMeshletInstances,
			"dropped_triangles", st.DroppedTriangles)
	}
}

// decodeStats turns the counters and draw index counts into frame stats.
func decodeStats(raw []byte, maxMeshlets, maxIndices uint32) frame.Stats {
	le := binary.LittleEndian
	c := func(i int) uint32 { return le.Uint32(raw[i*4:]) }
	cands := min(c(counterCandidates), maxMeshlets)

	var st frame.Stats
	st.VisibleInstances = c(counterVisibleInstances)
	st.DroppedMeshletInstances = c(counterDroppedMeshlets)
	st.DroppedTriangles = c(counterDroppedTriangles)
	for _, p := range []frame.Phase{frame.Early, frame.Late} {
		ps := st.Phase(p)
		ps.Candidates = cands
		ps.Meshlets = min(c(counterVisible+int(p)), maxMeshlets)
		ps.TriangleBudget = c(counterBudget + int(p))
		ps.Triangles = min(c(counterCount+int(p)), maxIndices) / 3
	}
	return st
}
