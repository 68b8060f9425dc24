package visbuf

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/scene"
)

// Types shared with the backends.
type (
	// Recorder is the interface every backend implements.
	Recorder = frame.Recorder
	// Limits sizes a backend's resources.
	Limits = frame.Config
	// Output is what a frame produced.
	Output = frame.Output
	// Stats are the per-frame counters.
	Stats = frame.Stats
	// Trace is the recorded command stream of a frame.
	Trace = frame.Trace
)

// Pipeline drives a backend through the fixed stage sequence of a frame:
//
//	mesh cull -> gen -> meshlet cull(early) -> gen -> triangle cull(early) -> draw(early)
//	  -> Hi-Z -> meshlet cull(late) -> gen -> triangle cull(late) -> draw(late) -> decode
//
// It owns the scene buffers and the per-frame view and cull flags. A
// Pipeline is safe for concurrent use; frames are recorded one at a time.
type Pipeline struct {
	mu sync.Mutex

	id      uuid.UUID
	rec     Recorder
	limits  Limits
	machine frame.Machine

	scene     *scene.Buffers
	view      scene.View
	hasView   bool
	flags     scene.CullFlags
	microArea float32
	dirty     scene.Dirty

	autoReserve bool
	index       uint64
	closed      bool
}

// New creates a pipeline and its backend.
func New(opts ...Option) (*Pipeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.limits.Validate(); err != nil {
		return nil, err
	}
	if o.microArea < 0 {
		return nil, fmt.Errorf("%w: negative micro-triangle area", ErrInvalidConfig)
	}
	rec, err := newRecorder(o.backend, o.limits, o.provider)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		id:          uuid.New(),
		rec:         rec,
		limits:      o.limits,
		scene:       scene.NewBuffers(),
		flags:       o.flags,
		microArea:   o.microArea,
		autoReserve: o.autoReserve,
	}
	p.logger().Info("visbuf: pipeline created",
		"backend", rec.Name(),
		"width", o.limits.Width, "height", o.limits.Height,
		"frames_in_flight", o.limits.FramesInFlight,
		"cull_flags", o.flags.String())
	return p, nil
}

func (p *Pipeline) logger() *slog.Logger {
	return Logger().With("pipeline", p.id.String())
}

// ID returns the pipeline's instance id, attached to its log records.
func (p *Pipeline) ID() uuid.UUID { return p.id }

// Backend returns the backend name.
func (p *Pipeline) Backend() string { return p.rec.Name() }

// Limits returns the current sizes and capacities.
func (p *Pipeline) Limits() Limits {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limits
}

// Scene returns the scene buffers. Mutate them only between frames.
func (p *Pipeline) Scene() *scene.Buffers { return p.scene }

// AddMesh hands one mesh from the asset layer to the scene.
func (p *Pipeline) AddMesh(data scene.MeshData) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	return p.scene.AddMesh(data)
}

// Update applies the scene layer's update for the next frame.
func (p *Pipeline) Update(u scene.FrameUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.scene.Apply(u)
}

// SetView sets the camera of the next frame. A view whose viewport differs
// from the current target size resizes the pipeline on the next frame.
func (p *Pipeline) SetView(v scene.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view, p.hasView = v, true
}

// SetCullFlags selects the culling tests of the next frame.
func (p *Pipeline) SetCullFlags(f scene.CullFlags) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags = f
}

// CullFlags returns the current culling tests.
func (p *Pipeline) CullFlags() scene.CullFlags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags
}

// SetMicroTriangleArea sets the MicroTriangles area threshold in pixels.
func (p *Pipeline) SetMicroTriangleArea(area float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.microArea = max(area, 0)
}

// Resize re-creates the size-dependent resources. The next early pass runs
// without occlusion history.
func (p *Pipeline) Resize(width, height uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resize(width, height)
}

func (p *Pipeline) resize(width, height uint32) error {
	if p.closed {
		return ErrClosed
	}
	if width == p.limits.Width && height == p.limits.Height {
		return nil
	}
	if err := p.rec.Resize(width, height); err != nil {
		return err
	}
	p.limits.Width, p.limits.Height = width, height
	p.logger().Info("visbuf: resized", "width", width, "height", height)
	return nil
}

// Reserve grows the meshlet-instance and triangle capacities. Capacities
// never shrink.
func (p *Pipeline) Reserve(maxMeshletInstances, maxTriangles uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserve(maxMeshletInstances, maxTriangles)
}

func (p *Pipeline) reserve(maxMeshletInstances, maxTriangles uint32) error {
	if p.closed {
		return ErrClosed
	}
	if maxMeshletInstances > scene.MaxDrawSlots {
		return fmt.Errorf("%w: %d meshlet instances, limit %d", ErrCapacity, maxMeshletInstances, scene.MaxDrawSlots)
	}
	if maxMeshletInstances <= p.limits.MaxMeshletInstances && maxTriangles <= p.limits.MaxTriangles {
		return nil
	}
	if err := p.rec.Reserve(maxMeshletInstances, maxTriangles); err != nil {
		return err
	}
	p.limits.MaxMeshletInstances = max(p.limits.MaxMeshletInstances, maxMeshletInstances)
	p.limits.MaxTriangles = max(p.limits.MaxTriangles, maxTriangles)
	return nil
}

// ResetHistory drops the occlusion history, as after a camera cut.
func (p *Pipeline) ResetHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.rec.ResetHistory()
	}
}

// FrameIndex returns the index the next frame will carry.
func (p *Pipeline) FrameIndex() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// RenderFrame records and submits one frame. The host never branches on
// what the stages produce; a failed stage fails the whole frame and drops
// the occlusion history.
func (p *Pipeline) RenderFrame(ctx context.Context) (*Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if !p.hasView {
		return nil, ErrNoView
	}
	if err := p.scene.Validate(); err != nil {
		return nil, err
	}
	if w, h := p.view.Width, p.view.Height; w > 0 && h > 0 {
		if err := p.resize(w, h); err != nil {
			return nil, err
		}
	}
	if p.autoReserve {
		need := min(p.scene.MeshletInstanceBound(), scene.MaxDrawSlots)
		if err := p.reserve(need, p.scene.TriangleBound()); err != nil {
			return nil, err
		}
	}

	p.dirty = mergeDirty(p.dirty, p.scene.TakeDirty())
	idx := p.index
	p.index++
	in := &frame.Inputs{
		Index:             idx,
		Scene:             p.scene,
		View:              p.view,
		Flags:             p.flags,
		MicroTriangleArea: p.microArea,
		Dirty:             p.dirty,
	}
	out, err := p.record(ctx, in)
	if err != nil {
		p.rec.ResetHistory()
		return nil, fmt.Errorf("visbuf: frame %d: %w", idx, err)
	}
	p.dirty = scene.Dirty{}

	st := &out.Stats
	if st.DroppedMeshletInstances > 0 || st.DroppedTriangles > 0 {
		p.logger().Warn("visbuf: capacity overflow",
			"frame", idx,
			"dropped_meshlet_instances", st.DroppedMeshletInstances,
			"dropped_triangles", st.DroppedTriangles)
	}
	p.logger().Debug("visbuf: frame rendered",
		"frame", idx,
		"visible_instances", st.VisibleInstances,
		"early_meshlets", st.Early.Meshlets,
		"late_meshlets", st.Late.Meshlets,
		"triangles", st.Early.Triangles+st.Late.Triangles)
	return out, nil
}

// record runs the stage sequence through the state machine.
func (p *Pipeline) record(ctx context.Context, in *frame.Inputs) (*Output, error) {
	if err := p.rec.BeginFrame(ctx, in); err != nil {
		return nil, err
	}
	p.machine.Reset()
	for _, s := range frame.Sequence {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.machine.Advance(s); err != nil {
			return nil, err
		}
		if err := frame.Record(p.rec, s); err != nil {
			return nil, fmt.Errorf("%s: %w", s, err)
		}
	}
	return p.rec.EndFrame(ctx)
}

// DeviceStats returns the most recent statistics read back from a device
// backend and the index of their frame. Device counters arrive a ring
// length late; ok is false for backends that report stats in Output.
func (p *Pipeline) DeviceStats() (st Stats, index uint64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Stats{}, 0, false
	}
	return deviceStats(p.rec)
}

// Close waits for in-flight frames and releases the backend. It is safe
// to call more than once.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.rec.Close()
	p.logger().Info("visbuf: pipeline closed", "frames", p.index)
}

// mergeDirty folds b into a. Ranges are uploaded independently, so
// overlap only costs bandwidth.
func mergeDirty(a, b scene.Dirty) scene.Dirty {
	return scene.Dirty{
		Geometry:   a.Geometry || b.Geometry,
		Instances:  append(a.Instances, b.Instances...),
		Transforms: append(a.Transforms, b.Transforms...),
		Materials:  append(a.Materials, b.Materials...),
	}
}
