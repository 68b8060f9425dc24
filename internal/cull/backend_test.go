// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"context"
	"slices"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/internal/meshgen"
	"github.com/gogpu/visbuf/scene"
)

func testConfig() frame.Config {
	return frame.Config{
		Width:               128,
		Height:              128,
		FramesInFlight:      2,
		MaxMeshletInstances: 1024,
		MaxTriangles:        1 << 14,
		Workers:             4,
	}
}

func newBackend(t *testing.T, cfg frame.Config) *Backend {
	t.Helper()
	b, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func newScene() *scene.Buffers {
	sc := scene.NewBuffers()
	sc.UpdateMaterials([]scene.MaterialUpdate{{Index: 0, Material: scene.DefaultMaterial()}})
	return sc
}

func addMesh(t *testing.T, sc *scene.Buffers, data scene.MeshData) uint32 {
	t.Helper()
	id, err := sc.AddMesh(data)
	require.NoError(t, err)
	return id
}

// place adds an instance of mesh with its own transform and returns the
// instance and transform ids.
func place(t *testing.T, sc *scene.Buffers, mesh uint32, world geom.Mat4) (uint32, uint32) {
	t.Helper()
	xf := uint32(len(sc.Transforms))
	sc.UpdateTransforms([]scene.TransformUpdate{{ID: xf, World: world}})
	insts := append(slices.Clone(sc.Instances), scene.MeshInstance{Mesh: mesh, Transform: xf})
	require.NoError(t, sc.SetInstances(insts))
	require.NoError(t, sc.Validate())
	return uint32(len(insts) - 1), xf
}

func camera(cfg frame.Config, eye, target geom.Vec3) scene.View {
	return scene.LookAtView(eye, target, math32.Pi/3, 0.1, 100, cfg.Width, cfg.Height)
}

func runFrame(t *testing.T, b *Backend, in *frame.Inputs) *frame.Output {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.BeginFrame(ctx, in))
	for _, s := range frame.Sequence {
		require.NoError(t, frame.Record(b, s), "step %s", s)
	}
	out, err := b.EndFrame(ctx)
	require.NoError(t, err)
	return out
}

// drawn resolves the visible slots of a phase to meshlet instances.
func drawn(out *frame.Output, p frame.Phase) []scene.MeshletInstance {
	slots := out.EarlyVisible
	if p == frame.Late {
		slots = out.LateVisible
	}
	res := make([]scene.MeshletInstance, 0, len(slots))
	for _, s := range slots {
		res = append(res, out.Candidates[s])
	}
	slices.SortFunc(res, compareMeshletInstance)
	return res
}

func compareMeshletInstance(a, b scene.MeshletInstance) int {
	if a.Instance != b.Instance {
		return int(a.Instance) - int(b.Instance)
	}
	return int(a.Meshlet) - int(b.Meshlet)
}

func TestSingleCubeEndToEnd(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	sc := newScene()
	place(t, sc, addMesh(t, sc, meshgen.Cube(0.5)), geom.Identity())

	out := runFrame(t, b, &frame.Inputs{
		Scene: sc,
		View:  camera(cfg, geom.V3(0, 0, 5), geom.Vec3{}),
		Flags: scene.MeshletFrustum | scene.OcclusionCulling | scene.TriangleCulling,
	})

	require.Len(t, out.Candidates, 1)
	assert.Equal(t, []uint32{0}, out.EarlyVisible)
	assert.True(t, b.cur.mask.Test(0))
	assert.Empty(t, out.LateVisible)
	assert.Equal(t, uint32(1), out.Stats.VisibleInstances)
	assert.Equal(t, uint32(12), out.Stats.Early.TriangleBudget)
	assert.Equal(t, uint32(12), out.Stats.Early.Triangles)
	assert.Zero(t, out.Stats.Late.Meshlets)
	assert.Zero(t, out.Stats.Late.Triangles)
	assert.Zero(t, out.Stats.DroppedMeshletInstances)
	assert.Zero(t, out.Stats.DroppedTriangles)

	centre := out.VisibilityAt(64, 64)
	require.False(t, centre.Empty())
	inst, meshlet, tri := centre.Unpack()
	assert.Equal(t, uint32(0), inst)
	assert.Equal(t, uint32(0), meshlet)
	assert.Contains(t, []uint32{8, 9}, tri, "centre pixel must see the +Z face")
	assert.True(t, out.VisibilityAt(0, 0).Empty())

	covered := 0
	for _, id := range out.Visibility {
		if id.Empty() {
			continue
		}
		covered++
		inst, meshlet, _ := id.Unpack()
		assert.Equal(t, uint32(0), inst)
		assert.Equal(t, uint32(0), meshlet)
	}
	assert.Positive(t, covered)

	n := out.GBuffer.Normal.NRGBAAt(64, 64)
	assert.InDelta(t, 128, int(n.R), 1)
	assert.InDelta(t, 128, int(n.G), 1)
	assert.Equal(t, uint8(255), n.B)
	assert.Equal(t, uint8(255), out.GBuffer.Albedo.NRGBAAt(64, 64).R)
	assert.Zero(t, out.GBuffer.Albedo.NRGBAAt(0, 0).A)
}

func TestCubeBackFace(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	sc := newScene()
	place(t, sc, addMesh(t, sc, meshgen.Cube(0.5)), geom.Identity())

	out := runFrame(t, b, &frame.Inputs{
		Scene: sc,
		View:  camera(cfg, geom.V3(0, 0, 5), geom.Vec3{}),
		Flags: scene.TriangleCulling | scene.TriangleBackFace,
	})

	require.Len(t, out.EarlyIndices, 6)
	var tris []uint32
	for i := 0; i < len(out.EarlyIndices); i += 3 {
		_, tri, corner := scene.UnpackDrawIndex(out.EarlyIndices[i])
		assert.Zero(t, corner)
		tris = append(tris, tri)
	}
	slices.Sort(tris)
	assert.Equal(t, []uint32{8, 9}, tris)

	// From a corner at most three faces can face the camera.
	b.ResetHistory()
	out = runFrame(t, b, &frame.Inputs{
		Index: 1,
		Scene: sc,
		View:  camera(cfg, geom.V3(3, 3, 5), geom.Vec3{}),
		Flags: scene.TriangleCulling | scene.TriangleBackFace,
	})
	assert.Equal(t, uint32(6), out.Stats.Early.Triangles)
}

func TestNoCullingEmitsEverything(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	sc := newScene()
	// Behind the camera.
	place(t, sc, addMesh(t, sc, meshgen.Cube(0.5)), geom.Translate(0, 0, 20))
	view := camera(cfg, geom.V3(0, 0, 5), geom.Vec3{})

	out := runFrame(t, b, &frame.Inputs{Scene: sc, View: view})
	assert.Len(t, out.Candidates, 1)
	assert.Equal(t, uint32(12), out.Stats.Early.Triangles)
	for _, id := range out.Visibility {
		require.True(t, id.Empty())
	}

	out = runFrame(t, b, &frame.Inputs{Index: 1, Scene: sc, View: view, Flags: scene.MeshletFrustum})
	assert.Empty(t, out.Candidates)
	assert.Zero(t, out.Stats.Early.Triangles)
}

func TestFrustumCulling(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	sc := newScene()
	cube := addMesh(t, sc, meshgen.Cube(0.5))
	for x := -20; x <= 20; x += 4 {
		for z := -20; z <= 20; z += 4 {
			place(t, sc, cube, geom.Translate(float32(x), 0, float32(z)))
		}
	}
	view := camera(cfg, geom.V3(0, 2, 10), geom.V3(0, 0, -10))

	out := runFrame(t, b, &frame.Inputs{Scene: sc, View: view, Flags: scene.MeshletFrustum})

	var want []uint32
	for i, inst := range sc.Instances {
		world := sc.Transforms[inst.Transform].World
		if view.Frustum.IntersectsSphere(sc.Meshes[inst.Mesh].Bounds.Sphere.Transform(world)) {
			want = append(want, uint32(i))
		}
	}
	var got []uint32
	for _, c := range out.Candidates {
		got = append(got, c.Instance)
	}
	slices.Sort(got)
	require.NotEmpty(t, want)
	assert.Less(t, len(want), len(sc.Instances))
	assert.Equal(t, want, got)
	assert.Len(t, out.EarlyVisible, len(want))
}

// occlusionScene places three cubes in one mesh at z=-5, a wall at the
// origin covering only the middle cube, and a lone cube behind the wall.
type occlusionScene struct {
	sc                    *scene.Buffers
	cluster, wall, hidden uint32
	wallXf                uint32
	wallWorld             geom.Mat4
}

func newOcclusionScene(t *testing.T, withHidden bool) *occlusionScene {
	sc := newScene()
	s := &occlusionScene{sc: sc, wallWorld: geom.Scale(2, 2, 0.2)}
	cluster := addMesh(t, sc, meshgen.Cluster(0.5, []geom.Vec3{geom.V3(-3, 0, 0), geom.V3(0, 0, 0), geom.V3(3, 0, 0)}))
	cube := addMesh(t, sc, meshgen.Cube(0.5))
	s.cluster, _ = place(t, sc, cluster, geom.Translate(0, 0, -5))
	s.wall, s.wallXf = place(t, sc, cube, s.wallWorld)
	if withHidden {
		s.hidden, _ = place(t, sc, cube, geom.Translate(0, 0, -8))
	}
	return s
}

func (s *occlusionScene) inputs(cfg frame.Config, index uint64, flags scene.CullFlags) *frame.Inputs {
	return &frame.Inputs{
		Index: index,
		Scene: s.sc,
		View:  camera(cfg, geom.V3(0, 0, 10), geom.Vec3{}),
		Flags: flags,
	}
}

func TestOcclusionCulling(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	s := newOcclusionScene(t, true)
	flags := scene.MeshletFrustum | scene.OcclusionCulling

	// Without history everything in the frustum is drawn early.
	out := runFrame(t, b, s.inputs(cfg, 0, flags))
	assert.Len(t, out.Candidates, 5)
	assert.Len(t, out.EarlyVisible, 5)
	assert.Empty(t, out.LateVisible)

	out = runFrame(t, b, s.inputs(cfg, 1, flags))
	assert.Equal(t, uint32(2), out.Stats.VisibleInstances, "lone cube is culled at mesh level")
	assert.Len(t, out.Candidates, 4)
	assert.Equal(t, []scene.MeshletInstance{
		{Instance: s.cluster, Meshlet: 0},
		{Instance: s.cluster, Meshlet: 2},
		{Instance: s.wall, Meshlet: 0},
	}, drawn(out, frame.Early))
	assert.Empty(t, out.LateVisible, "the wall is still there after the rebuild")
}

func TestOcclusionFlagIndependence(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	s := newOcclusionScene(t, true)

	runFrame(t, b, s.inputs(cfg, 0, scene.MeshletFrustum))
	out := runFrame(t, b, s.inputs(cfg, 1, scene.MeshletFrustum))
	assert.Len(t, out.Candidates, 5)
	assert.Len(t, out.EarlyVisible, 5)
	assert.Empty(t, out.LateVisible)
}

func TestDisocclusionRecoveredInLatePass(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	s := newOcclusionScene(t, false)
	flags := scene.MeshletFrustum | scene.OcclusionCulling

	runFrame(t, b, s.inputs(cfg, 0, flags))

	s.sc.UpdateTransforms([]scene.TransformUpdate{{ID: s.wallXf, World: geom.Translate(100, 0, 0).Mul(s.wallWorld)}})
	out := runFrame(t, b, s.inputs(cfg, 1, flags))

	require.Len(t, out.Candidates, 3)
	assert.Equal(t, []scene.MeshletInstance{{Instance: s.cluster, Meshlet: 0}, {Instance: s.cluster, Meshlet: 2}}, drawn(out, frame.Early))
	assert.Equal(t, []scene.MeshletInstance{{Instance: s.cluster, Meshlet: 1}}, drawn(out, frame.Late))
	assert.Equal(t, uint32(12), out.Stats.Late.Triangles)

	for _, slot := range out.LateVisible {
		assert.NotContains(t, out.EarlyVisible, slot)
	}
	for slot := range uint32(len(out.Candidates)) {
		assert.True(t, b.cur.mask.Test(slot), "slot %d", slot)
	}

	centre := out.VisibilityAt(64, 64)
	require.False(t, centre.Empty())
	inst, meshlet, _ := centre.Unpack()
	assert.Equal(t, s.cluster, inst)
	assert.Equal(t, uint32(1), meshlet)
}

func TestHistoryRequiresPreviousFrame(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	s := newOcclusionScene(t, true)
	flags := scene.MeshletFrustum | scene.OcclusionCulling

	runFrame(t, b, s.inputs(cfg, 0, flags))
	out := runFrame(t, b, s.inputs(cfg, 3, flags))
	assert.Len(t, out.Candidates, 5)

	b.ResetHistory()
	out = runFrame(t, b, s.inputs(cfg, 4, flags))
	assert.Len(t, out.Candidates, 5)
}

func TestIdempotentFrames(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	sc := newScene()
	sphere := addMesh(t, sc, meshgen.Sphere(1, 16, 24))
	cube := addMesh(t, sc, meshgen.Cube(0.5))
	for i := range 8 {
		place(t, sc, sphere, geom.Translate(float32(i)*2.5-9, 0, -4))
		place(t, sc, cube, geom.Translate(float32(i)*2.5-9, 2, -6).Mul(geom.RotateY(float32(i)*0.4)))
	}
	in := func(index uint64) *frame.Inputs {
		return &frame.Inputs{
			Index: index,
			Scene: sc,
			View:  camera(cfg, geom.V3(1, 3, 12), geom.V3(0, 0, -4)),
			Flags: scene.AllCullFlags,
		}
	}

	type result struct {
		early, late []scene.MeshletInstance
		stats       frame.Stats
	}
	run := func(index uint64) result {
		b.ResetHistory()
		out := runFrame(t, b, in(index))
		return result{early: drawn(out, frame.Early), late: drawn(out, frame.Late), stats: out.Stats}
	}

	first := run(0)
	second := run(1)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.early)
	assert.Positive(t, first.stats.Early.Triangles)
}

func TestCapacityOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMeshletInstances = 4
	b := newBackend(t, cfg)
	sc := newScene()
	cube := addMesh(t, sc, meshgen.Cube(0.5))
	for i := range 6 {
		place(t, sc, cube, geom.Translate(float32(i)*2-5, 0, -5))
	}
	view := camera(cfg, geom.V3(0, 0, 10), geom.Vec3{})

	out := runFrame(t, b, &frame.Inputs{Scene: sc, View: view, Flags: scene.MeshletFrustum})
	assert.Len(t, out.Candidates, 4)
	assert.Len(t, out.EarlyVisible, 4)
	assert.Equal(t, uint32(2), out.Stats.DroppedMeshletInstances)
	assert.Equal(t, uint32(6), out.Stats.VisibleInstances)

	cfg = testConfig()
	cfg.MaxTriangles = 10
	b = newBackend(t, cfg)
	sc = newScene()
	place(t, sc, addMesh(t, sc, meshgen.Cube(0.5)), geom.Identity())
	out = runFrame(t, b, &frame.Inputs{Scene: sc, View: view})
	assert.Len(t, out.EarlyIndices, 30)
	assert.Equal(t, uint32(10), out.Stats.Early.Triangles)
	assert.Equal(t, uint32(2), out.Stats.DroppedTriangles)
}

func TestGenerateCommands(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	sc := newScene()
	require.NoError(t, b.BeginFrame(context.Background(), &frame.Inputs{Scene: sc}))

	tests := []struct {
		candidates uint32
		want       uint32
	}{
		{0, 0},
		{1, 1},
		{64, 1},
		{65, 2},
		{70, 2},
		{5000, cfg.MaxMeshletInstances / frame.MeshletCullGroupSize},
	}
	for _, tt := range tests {
		b.cur.candidateCount.Store(tt.candidates)
		require.NoError(t, b.GenerateCommands(frame.GenMeshletDispatch, frame.Early))
		assert.Equal(t, frame.DispatchArgs{X: tt.want, Y: 1, Z: 1}, b.cur.meshletArgs, "%d candidates", tt.candidates)
	}

	b.cur.visibleCount[frame.Late].Store(5)
	require.NoError(t, b.GenerateCommands(frame.GenTriangleDispatch, frame.Late))
	assert.Equal(t, uint32(5), b.cur.triangleArgs[frame.Late].X)
	assert.Zero(t, b.cur.triangleArgs[frame.Early].X)
}

func TestTraceFollowsSequence(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	sc := newScene()
	cube := addMesh(t, sc, meshgen.Cube(0.5))
	for i := range 70 {
		place(t, sc, cube, geom.Translate(float32(i%10)-4.5, float32(i/10)-3, -10))
	}
	out := runFrame(t, b, &frame.Inputs{
		Scene: sc,
		View:  camera(cfg, geom.V3(0, 0, 10), geom.Vec3{}),
		Flags: scene.MeshletFrustum,
	})

	want := make([]frame.Stage, 0, len(frame.Sequence))
	for _, s := range frame.Sequence {
		want = append(want, s.Stage)
	}
	assert.Equal(t, want, out.Trace.Stages())
	assert.Equal(t, 2, out.Trace.Count(frame.OpDrawIndexedIndirect))
	assert.Positive(t, out.Trace.Count(frame.OpBarrier))

	for _, op := range out.Trace.Ops {
		if op.Stage == frame.StageMeshletCull && op.Kind == frame.OpDispatchIndirect {
			assert.Equal(t, uint32(2), op.Groups, "%s meshlet cull over 70 candidates", op.Phase)
		}
	}
}

func TestResolvePixel(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)
	sc := newScene()
	place(t, sc, addMesh(t, sc, meshgen.Cube(1)), geom.RotateY(0.6).Mul(geom.RotateX(0.3)))
	view := camera(cfg, geom.V3(0.7, 1.1, 4), geom.Vec3{})

	out := runFrame(t, b, &frame.Inputs{Scene: sc, View: view, Flags: scene.AllCullFlags})

	checked := 0
	for y := 40; y < 90; y += 7 {
		for x := 40; x < 90; x += 7 {
			id := out.VisibilityAt(x, y)
			if id.Empty() {
				continue
			}
			s, ok := ResolvePixel(sc, view.ViewProj, id, x, y, out.Width, out.Height)
			require.True(t, ok)
			checked++

			bary := s.Barycentrics
			assert.InDelta(t, 1, bary.X+bary.Y+bary.Z, 1e-4)
			for _, w := range []float32{bary.X, bary.Y, bary.Z} {
				assert.GreaterOrEqual(t, w, float32(-1e-3))
				assert.LessOrEqual(t, w, float32(1+1e-3))
			}
			assert.InDelta(t, 1, s.Normal.Length(), 1e-4)
			assert.Positive(t, s.Normal.Dot(view.Eye.Sub(s.Position)), "visible surfaces face the eye")

			// The interpolated position projects back onto the pixel centre.
			clip := view.ViewProj.Project(s.Position)
			assert.InDelta(t, (float32(x)+0.5)/64-1, clip.X/clip.W, 1e-3)
			assert.InDelta(t, 1-(float32(y)+0.5)/64, clip.Y/clip.W, 1e-3)
		}
	}
	assert.Positive(t, checked)

	_, ok := ResolvePixel(sc, view.ViewProj, scene.EmptyVisibility, 0, 0, 128, 128)
	assert.False(t, ok)
	_, ok = ResolvePixel(sc, view.ViewProj, scene.PackVisibility(9, 0, 0), 0, 0, 128, 128)
	assert.False(t, ok)
	_, ok = ResolvePixel(sc, view.ViewProj, scene.PackVisibility(0, 0, 40), 0, 0, 128, 128)
	assert.False(t, ok)
}

// A plane covering the whole target must touch every pixel exactly once.
func TestRasterWatertight(t *testing.T) {
	cfg := testConfig()
	cfg.Overdraw = true
	cfg.Width, cfg.Height = 96, 80
	b := newBackend(t, cfg)
	sc := newScene()
	place(t, sc, addMesh(t, sc, meshgen.Plane(10, 12)), geom.RotateX(math32.Pi/2))

	out := runFrame(t, b, &frame.Inputs{
		Scene: sc,
		View:  camera(cfg, geom.V3(0.013, 0.021, 5), geom.V3(0.013, 0.021, 0)),
	})
	require.Len(t, out.Overdraw, 96*80)
	for i, n := range out.Overdraw {
		require.Equal(t, uint32(1), n, "pixel (%d,%d)", i%96, i/96)
	}
}

func TestBeginFrameErrors(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)

	err := b.BeginFrame(context.Background(), &frame.Inputs{})
	assert.ErrorIs(t, err, frame.ErrInvalidConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = b.BeginFrame(ctx, &frame.Inputs{Scene: newScene()})
	assert.ErrorIs(t, err, context.Canceled)

	b.Close()
	err = b.BeginFrame(context.Background(), &frame.Inputs{Scene: newScene()})
	assert.ErrorIs(t, err, frame.ErrDeviceLost)
}

func TestResizeAndReserve(t *testing.T) {
	cfg := testConfig()
	b := newBackend(t, cfg)

	require.NoError(t, b.Resize(64, 32))
	assert.Len(t, b.ring[0].depth, 64*32)
	assert.Equal(t, 64, b.ring[0].hiz.Levels[0].Width)
	assert.Equal(t, 32, b.ring[0].hiz.Levels[0].Height)
	assert.ErrorIs(t, b.Resize(0, 10), frame.ErrInvalidConfig)

	require.NoError(t, b.Reserve(10, 10))
	assert.Equal(t, cfg.MaxMeshletInstances, b.Config().MaxMeshletInstances)

	require.NoError(t, b.Reserve(4096, 1<<16))
	assert.Equal(t, uint32(4096), b.Config().MaxMeshletInstances)
	assert.Len(t, b.ring[1].candidates, 4096)
	assert.Len(t, b.ring[1].indices[frame.Late], 3<<16)
	assert.Equal(t, uint32(4096), b.ring[1].mask.Len())

	assert.ErrorIs(t, b.Reserve(scene.MaxDrawSlots+1, 1), frame.ErrInvalidConfig)
}
