package visbuf

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/chewxy/math32"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/internal/meshgen"
	"github.com/gogpu/visbuf/scene"
)

func newSoftwarePipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{
		WithBackend(BackendSoftware),
		WithSize(64, 48),
		WithCapacity(64, 1024),
		WithWorkers(2),
	}
	p, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

// addCubes places n unit cubes in a row along X.
func addCubes(t *testing.T, p *Pipeline, n int) {
	t.Helper()
	cube, err := p.AddMesh(meshgen.Cube(0.5))
	if err != nil {
		t.Fatal(err)
	}
	u := scene.FrameUpdate{
		Materials: []scene.MaterialUpdate{{Index: 0, Material: scene.DefaultMaterial()}},
	}
	for i := range n {
		x := float32(i)*1.5 - float32(n-1)*0.75
		u.Transforms = append(u.Transforms, scene.TransformUpdate{ID: uint32(i), World: geom.Translate(x, 0, 0)})
		u.Instances = append(u.Instances, scene.MeshInstance{Mesh: cube, Transform: uint32(i)})
	}
	if err := p.Update(u); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func frontView(width, height uint32) scene.View {
	return scene.LookAtView(geom.V3(0, 0, 6), geom.Vec3{}, math32.Pi/3, 0.1, 100, width, height)
}

func coveredPixels(out *Output) int {
	n := 0
	for _, id := range out.Visibility {
		if !id.Empty() {
			n++
		}
	}
	return n
}

func TestNewDefaults(t *testing.T) {
	p := newSoftwarePipeline(t)
	if p.Backend() != BackendSoftware {
		t.Errorf("Backend() = %q", p.Backend())
	}
	if p.CullFlags() != scene.AllCullFlags {
		t.Errorf("CullFlags() = %v", p.CullFlags())
	}
	l := p.Limits()
	if l.Width != 64 || l.Height != 48 || l.FramesInFlight != DefaultFramesInFlight {
		t.Errorf("Limits() = %+v", l)
	}
	if p.FrameIndex() != 0 {
		t.Errorf("FrameIndex() = %d", p.FrameIndex())
	}
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want error
	}{
		{"zero size", []Option{WithBackend(BackendSoftware), WithSize(0, 10)}, ErrInvalidConfig},
		{"ring too deep", []Option{WithBackend(BackendSoftware), WithFramesInFlight(5)}, ErrInvalidConfig},
		{"negative area", []Option{WithBackend(BackendSoftware), WithMicroTriangleArea(-1)}, ErrInvalidConfig},
		{"unknown backend", []Option{WithBackend("vulkan-rt")}, ErrBackendNotAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts...); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRenderFrameNeedsView(t *testing.T) {
	p := newSoftwarePipeline(t)
	if _, err := p.RenderFrame(context.Background()); !errors.Is(err, ErrNoView) {
		t.Errorf("RenderFrame() error = %v, want ErrNoView", err)
	}
}

func TestRenderFrameEmptyScene(t *testing.T) {
	p := newSoftwarePipeline(t)
	p.SetView(frontView(64, 48))
	out, err := p.RenderFrame(context.Background())
	if err != nil {
		t.Fatalf("RenderFrame() error = %v", err)
	}
	if coveredPixels(out) != 0 || out.Stats.Early.Candidates != 0 {
		t.Errorf("empty scene produced work: %+v", out.Stats)
	}
}

func TestRenderFrameRecordsSequence(t *testing.T) {
	p := newSoftwarePipeline(t)
	addCubes(t, p, 3)
	p.SetView(frontView(64, 48))

	out, err := p.RenderFrame(context.Background())
	if err != nil {
		t.Fatalf("RenderFrame() error = %v", err)
	}
	want := []frame.Stage{
		frame.StageMeshCull, frame.StageGenCmd, frame.StageMeshletCull, frame.StageGenCmd,
		frame.StageTriangleCull, frame.StageDraw, frame.StageHiZ, frame.StageMeshletCull,
		frame.StageGenCmd, frame.StageTriangleCull, frame.StageDraw, frame.StageDecode,
	}
	if got := out.Trace.Stages(); !slices.Equal(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
	if out.Stats.Instances != 3 || out.Stats.VisibleInstances != 3 {
		t.Errorf("stats = %+v", out.Stats)
	}
	// No history on the first frame: everything is drawn early.
	if out.Stats.Early.Meshlets != 3 || out.Stats.Late.Meshlets != 0 {
		t.Errorf("meshlets early=%d late=%d", out.Stats.Early.Meshlets, out.Stats.Late.Meshlets)
	}
	if out.Stats.Early.Triangles == 0 || out.Stats.Early.Triangles > 3*6 {
		t.Errorf("early triangles = %d", out.Stats.Early.Triangles)
	}
	if coveredPixels(out) == 0 {
		t.Error("nothing reached the visibility buffer")
	}
	if p.FrameIndex() != 1 {
		t.Errorf("FrameIndex() = %d", p.FrameIndex())
	}

	// The second frame samples the first frame's pyramid and draws the
	// same image.
	out2, err := p.RenderFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out2.Index != 1 {
		t.Errorf("Index = %d", out2.Index)
	}
	if coveredPixels(out2) != coveredPixels(out) {
		t.Errorf("covered pixels %d then %d", coveredPixels(out), coveredPixels(out2))
	}
}

func TestRenderFrameResizesToView(t *testing.T) {
	p := newSoftwarePipeline(t)
	addCubes(t, p, 1)
	p.SetView(frontView(80, 40))

	out, err := p.RenderFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 80 || out.Height != 40 || len(out.Visibility) != 80*40 {
		t.Errorf("output %dx%d with %d pixels", out.Width, out.Height, len(out.Visibility))
	}
	if l := p.Limits(); l.Width != 80 || l.Height != 40 {
		t.Errorf("Limits() = %+v", l)
	}
}

func TestAutoReserveGrowsCapacity(t *testing.T) {
	p := newSoftwarePipeline(t, WithCapacity(2, 8))
	addCubes(t, p, 5)
	p.SetView(frontView(64, 48))

	out, err := p.RenderFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Stats.DroppedMeshletInstances != 0 || out.Stats.DroppedTriangles != 0 {
		t.Errorf("dropped work with auto reserve: %+v", out.Stats)
	}
	l := p.Limits()
	if l.MaxMeshletInstances < 5 || l.MaxTriangles < 5*12 {
		t.Errorf("capacity not grown: %+v", l)
	}
}

func TestOverflowIsCounted(t *testing.T) {
	p := newSoftwarePipeline(t, WithCapacity(2, 1024), WithAutoReserve(false))
	addCubes(t, p, 5)
	p.SetView(frontView(64, 48))

	out, err := p.RenderFrame(context.Background())
	if err != nil {
		t.Fatalf("overflow must not fail the frame: %v", err)
	}
	if out.Stats.DroppedMeshletInstances != 3 {
		t.Errorf("DroppedMeshletInstances = %d, want 3", out.Stats.DroppedMeshletInstances)
	}
	if out.Stats.Early.Candidates != 2 {
		t.Errorf("candidates = %d, want 2", out.Stats.Early.Candidates)
	}
}

func TestCullFlagsReachBackend(t *testing.T) {
	p := newSoftwarePipeline(t)
	addCubes(t, p, 1)
	p.SetView(frontView(64, 48))

	p.SetCullFlags(scene.AllCullFlags &^ scene.TriangleBackFace &^ scene.TriangleCulling)
	all, err := p.RenderFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p.SetCullFlags(scene.AllCullFlags)
	culled, err := p.RenderFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if all.Stats.Early.Triangles != 12 {
		t.Errorf("without triangle culling: %d triangles, want 12", all.Stats.Early.Triangles)
	}
	if culled.Stats.Early.Triangles+culled.Stats.Late.Triangles > 6 {
		t.Errorf("back faces survived: %d", culled.Stats.Early.Triangles+culled.Stats.Late.Triangles)
	}
}

func TestRenderFrameCanceled(t *testing.T) {
	p := newSoftwarePipeline(t)
	addCubes(t, p, 1)
	p.SetView(frontView(64, 48))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.RenderFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("RenderFrame() error = %v, want context.Canceled", err)
	}
	out, err := p.RenderFrame(context.Background())
	if err != nil {
		t.Fatalf("frame after cancel: %v", err)
	}
	if coveredPixels(out) == 0 {
		t.Error("frame after cancel drew nothing")
	}
}

func TestUpdateRejectsInvalidInstance(t *testing.T) {
	p := newSoftwarePipeline(t)
	err := p.Update(scene.FrameUpdate{Instances: []scene.MeshInstance{{Mesh: 9}}})
	if !errors.Is(err, ErrInvalidInstance) {
		t.Errorf("Update() error = %v, want ErrInvalidInstance", err)
	}
}

func TestReserveLimit(t *testing.T) {
	p := newSoftwarePipeline(t)
	if err := p.Reserve(scene.MaxDrawSlots+1, 10); !errors.Is(err, ErrCapacity) {
		t.Errorf("Reserve() error = %v, want ErrCapacity", err)
	}
	if err := p.Reserve(1000, 5000); err != nil {
		t.Fatal(err)
	}
	if l := p.Limits(); l.MaxMeshletInstances != 1000 || l.MaxTriangles != 5000 {
		t.Errorf("Limits() = %+v", l)
	}
}

func TestClosedPipeline(t *testing.T) {
	p := newSoftwarePipeline(t)
	p.Close()
	p.Close()

	if _, err := p.RenderFrame(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("RenderFrame() error = %v", err)
	}
	if _, err := p.AddMesh(meshgen.Cube(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("AddMesh() error = %v", err)
	}
	if err := p.Resize(10, 10); !errors.Is(err, ErrClosed) {
		t.Errorf("Resize() error = %v", err)
	}
	if _, _, ok := p.DeviceStats(); ok {
		t.Error("DeviceStats() ok after Close")
	}
}

func TestSoftwareHasNoDeviceStats(t *testing.T) {
	p := newSoftwarePipeline(t)
	if _, _, ok := p.DeviceStats(); ok {
		t.Error("software backend reported device stats")
	}
}

func TestMergeDirty(t *testing.T) {
	a := scene.Dirty{Instances: []scene.Range{{Start: 0, End: 2}}}
	b := scene.Dirty{Geometry: true, Instances: []scene.Range{{Start: 5, End: 6}}, Materials: []scene.Range{{Start: 1, End: 2}}}
	m := mergeDirty(a, b)
	if !m.Geometry || len(m.Instances) != 2 || len(m.Materials) != 1 || len(m.Transforms) != 0 {
		t.Errorf("mergeDirty = %+v", m)
	}
}
