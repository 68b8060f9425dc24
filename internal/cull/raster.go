// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/internal/parallel"
	"github.com/gogpu/visbuf/scene"
)

type screenVert struct {
	x, y, z float32
}

// screenTri is a triangle after near clipping and viewport transform,
// wound so that its edge functions are positive inside.
type screenTri struct {
	v        [3]screenVert
	area     float32
	id       scene.VisibilityID
	bbox     parallel.Rect
	topLeft  [3]bool
	hasValue bool
}

// triSetup holds up to two triangles: clipping one triangle against the
// near plane yields at most a quad.
type triSetup struct {
	tris [2]screenTri
}

// Draw implements frame.Recorder. It rasterizes the phase's index buffer
// with the draw-indexed-indirect count written by the triangle culler.
func (b *Backend) Draw(p frame.Phase) error {
	s := b.cur
	count := b.drawCount(p)
	b.trace.Add(frame.Op{Kind: frame.OpDrawIndexedIndirect, Stage: frame.StageDraw, Phase: p, Label: "visbuffer"})

	triangles := count / 3
	if triangles > 0 {
		r := rasterizer{
			sc:         b.in.Scene,
			candidates: s.candidates,
			viewProj:   b.in.View.ViewProj,
			width:      int(b.cfg.Width),
			height:     int(b.cfg.Height),
			depth:      s.depth,
			visibility: s.visibility,
			overdraw:   s.overdraw,
		}
		r.draw(b.pool, s.indices[p][:count])
	}

	b.trace.Barrier(frame.StageDraw, p, "depth+visibility")
	return nil
}

type rasterizer struct {
	sc         *scene.Buffers
	candidates []scene.MeshletInstance
	viewProj   geom.Mat4
	width      int
	height     int
	depth      []float32
	visibility []scene.VisibilityID
	overdraw   []uint32
}

func (r *rasterizer) draw(pool *parallel.WorkerPool, indices []uint32) {
	n := uint32(len(indices) / 3)
	setups := make([]triSetup, n)

	// Vertex stage and primitive setup, one invocation per triangle.
	groups := (n + 63) / 64
	pool.Dispatch(groups, func(g uint32) {
		for i := g * 64; i < min(g*64+64, n); i++ {
			r.setup(&setups[i], indices[i*3:i*3+3])
		}
	})

	// Bin in index order so every tile resolves depth ties identically.
	tiles := parallel.Tiles(r.width, r.height)
	tilesX := (r.width + parallel.TileSize - 1) / parallel.TileSize
	bins := make([][]*screenTri, len(tiles))
	for i := range setups {
		for k := range setups[i].tris {
			t := &setups[i].tris[k]
			if !t.hasValue {
				continue
			}
			for ty := t.bbox.Y0 / parallel.TileSize; ty <= (t.bbox.Y1-1)/parallel.TileSize; ty++ {
				for tx := t.bbox.X0 / parallel.TileSize; tx <= (t.bbox.X1-1)/parallel.TileSize; tx++ {
					bins[ty*tilesX+tx] = append(bins[ty*tilesX+tx], t)
				}
			}
		}
	}

	pool.Dispatch(uint32(len(tiles)), func(i uint32) {
		for _, t := range bins[i] {
			r.fill(t, tiles[i])
		}
	})
}

// setup fetches and projects the three corners of one index triple, clips
// against the near plane and builds screen triangles.
func (r *rasterizer) setup(out *triSetup, idx []uint32) {
	slot, tri, _ := scene.UnpackDrawIndex(idx[0])
	mi := r.candidates[slot]
	inst := r.sc.Instances[mi.Instance]
	mesh := &r.sc.Meshes[inst.Mesh]
	lod := r.sc.LODOf(inst)
	m := &r.sc.Meshlets[lod.MeshletOffset+mi.Meshlet]
	mvp := r.viewProj.Mul(r.sc.Transforms[inst.Transform].World)

	va, vb, vc := meshletTriangle(r.sc, mesh, lod, m, tri)
	clip := [3]geom.Vec4{
		mvp.Project(r.sc.Vertices[va].Position),
		mvp.Project(r.sc.Vertices[vb].Position),
		mvp.Project(r.sc.Vertices[vc].Position),
	}
	id := scene.PackVisibility(mi.Instance, mi.Meshlet, tri)

	poly := clipNear(clip)
	for k := 0; k+2 < len(poly) && k < 2; k++ {
		out.tris[k] = r.toScreen(poly[0], poly[k+1], poly[k+2], id)
	}
}

// clipNear clips a triangle against the reversed-Z near plane z <= w.
func clipNear(in [3]geom.Vec4) []geom.Vec4 {
	out := make([]geom.Vec4, 0, 4)
	for i := range 3 {
		a, b := in[i], in[(i+1)%3]
		da, db := a.W-a.Z, b.W-b.Z
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			t := da / (da - db)
			out = append(out, a.Lerp(b, t))
		}
	}
	return out
}

func (r *rasterizer) toScreen(a, b, c geom.Vec4, id scene.VisibilityID) screenTri {
	if a.W <= 0 || b.W <= 0 || c.W <= 0 {
		return screenTri{}
	}
	w, h := float32(r.width), float32(r.height)
	conv := func(v geom.Vec4) screenVert {
		inv := 1 / v.W
		return screenVert{
			x: (v.X*inv*0.5 + 0.5) * w,
			y: (0.5 - v.Y*inv*0.5) * h,
			z: v.Z * inv,
		}
	}
	t := screenTri{v: [3]screenVert{conv(a), conv(b), conv(c)}, id: id}
	t.area = edge(t.v[0], t.v[1], t.v[2].x, t.v[2].y)
	if t.area == 0 {
		return screenTri{}
	}
	if t.area < 0 {
		t.v[1], t.v[2] = t.v[2], t.v[1]
		t.area = -t.area
	}
	for i := range 3 {
		t.topLeft[i] = isTopLeft(t.v[(i+1)%3], t.v[(i+2)%3])
	}

	minX := math32.Min(t.v[0].x, math32.Min(t.v[1].x, t.v[2].x))
	maxX := math32.Max(t.v[0].x, math32.Max(t.v[1].x, t.v[2].x))
	minY := math32.Min(t.v[0].y, math32.Min(t.v[1].y, t.v[2].y))
	maxY := math32.Max(t.v[0].y, math32.Max(t.v[1].y, t.v[2].y))
	t.bbox = parallel.Rect{
		X0: int(math32.Floor(minX)), Y0: int(math32.Floor(minY)),
		X1: int(math32.Ceil(maxX)) + 1, Y1: int(math32.Ceil(maxY)) + 1,
	}.Intersect(parallel.Rect{X1: r.width, Y1: r.height})
	t.hasValue = !t.bbox.Empty()
	return t
}

// edge is the edge function of a->b at (px, py); positive on the interior
// side of a consistently wound triangle in y-down screen space.
func edge(a, b screenVert, px, py float32) float32 {
	return (px-a.x)*(b.y-a.y) - (py-a.y)*(b.x-a.x)
}

// edgeAt evaluates edge a->b with its endpoints in a fixed order, so two
// triangles sharing the edge get exactly negated values.
func edgeAt(a, b screenVert, px, py float32) float32 {
	if b.x < a.x || (b.x == a.x && b.y < a.y) {
		return -edge(b, a, px, py)
	}
	return edge(a, b, px, py)
}

// isTopLeft reports whether edge a->b is a top or left edge, which own the
// pixel centres lying exactly on them.
func isTopLeft(a, b screenVert) bool {
	dx, dy := b.x-a.x, b.y-a.y
	return dy > 0 || (dy == 0 && dx < 0)
}

func (r *rasterizer) fill(t *screenTri, tile parallel.Rect) {
	area := t.bbox.Intersect(tile)
	inv := 1 / t.area
	v := &t.v
	for y := area.Y0; y < area.Y1; y++ {
		py := float32(y) + 0.5
		for x := area.X0; x < area.X1; x++ {
			px := float32(x) + 0.5
			w0 := edgeAt(v[1], v[2], px, py)
			w1 := edgeAt(v[2], v[0], px, py)
			w2 := edgeAt(v[0], v[1], px, py)
			if !covers(w0, t.topLeft[0]) || !covers(w1, t.topLeft[1]) || !covers(w2, t.topLeft[2]) {
				continue
			}
			z := (w0*v[0].z + w1*v[1].z + w2*v[2].z) * inv
			if z < 0 || z > 1 {
				continue
			}
			i := y*r.width + x
			if z >= r.depth[i] {
				r.depth[i] = z
				r.visibility[i] = t.id
				if r.overdraw != nil {
					r.overdraw[i]++
				}
			}
		}
	}
}

func covers(w float32, topLeft bool) bool {
	return w > 0 || (w == 0 && topLeft)
}
