package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/chewxy/math32"

	"github.com/gogpu/visbuf"
	"github.com/gogpu/visbuf/geom"
	"github.com/gogpu/visbuf/internal/meshgen"
	"github.com/gogpu/visbuf/scene"
)

// demo holds the command-line state shared by renders and reloads.
type demo struct {
	configPath string
	backend    string
	frames     int
	grid       int
	outDir     string
	log        *log.Logger
}

// config loads the config file, or the defaults without one.
func (d *demo) config() (visbuf.Config, error) {
	cfg := visbuf.DefaultConfig()
	if d.configPath != "" {
		var err error
		if cfg, err = visbuf.LoadConfig(d.configPath); err != nil {
			return cfg, err
		}
	}
	if d.backend != "" {
		cfg.Backend = d.backend
	}
	return cfg, cfg.Validate()
}

// run builds a fresh pipeline from the current config and renders the
// camera orbit.
func (d *demo) run(ctx context.Context) error {
	cfg, err := d.config()
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	p, err := visbuf.New(opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := buildScene(p, d.grid); err != nil {
		return err
	}
	if err := os.MkdirAll(d.outDir, 0o755); err != nil {
		return err
	}
	d.log.Info("rendering",
		"backend", p.Backend(),
		"pipeline", p.ID(),
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"instances", len(p.Scene().Instances))

	var total visbuf.Stats
	for i := range d.frames {
		p.SetView(orbitView(i, d.frames, d.grid, cfg.Width, cfg.Height))
		out, err := p.RenderFrame(ctx)
		if err != nil {
			return err
		}
		if out.Visibility == nil {
			if st, idx, ok := p.DeviceStats(); ok {
				d.log.Info(formatStats(idx, &st))
			}
			continue
		}
		d.log.Info(formatStats(out.Index, &out.Stats))
		accumulate(&total, &out.Stats)
		if err := writeFrame(filepath.Join(d.outDir, fmt.Sprintf("frame%03d", out.Index)), out); err != nil {
			return err
		}
	}
	d.log.Info(formatTotals(d.frames, &total))
	return nil
}

// buildScene places a grid of spheres and cubes behind a wall that hides
// the middle columns, so both occlusion phases have work.
func buildScene(p *visbuf.Pipeline, n int) error {
	sphere, err := p.AddMesh(meshgen.Sphere(0.6, 12, 16))
	if err != nil {
		return err
	}
	cube, err := p.AddMesh(meshgen.Cube(0.5))
	if err != nil {
		return err
	}
	wall, err := p.AddMesh(meshgen.Plane(1, 8))
	if err != nil {
		return err
	}

	u := scene.FrameUpdate{
		Materials: []scene.MaterialUpdate{
			{Index: 0, Material: tinted(0.9, 0.3, 0.2)},
			{Index: 1, Material: tinted(0.2, 0.6, 0.9)},
			{Index: 2, Material: tinted(0.8, 0.8, 0.8)},
		},
	}
	half := float32(n-1) * 0.5 * 2
	for i := range n * n {
		x := float32(i%n)*2 - half
		z := float32(i/n)*2 - half
		mesh, mat := sphere, uint32(0)
		if i%3 == 0 {
			mesh, mat = cube, 1
		}
		id := uint32(len(u.Transforms))
		u.Transforms = append(u.Transforms, scene.TransformUpdate{ID: id, World: geom.Translate(x, 0, z)})
		u.Instances = append(u.Instances, scene.MeshInstance{Mesh: mesh, Material: mat, Transform: id})
	}
	// The plane faces +Y; stand it up facing +Z in front of the grid.
	id := uint32(len(u.Transforms))
	w := half + 2
	u.Transforms = append(u.Transforms, scene.TransformUpdate{
		ID:    id,
		World: geom.Translate(0, 0, half+2).Mul(geom.RotateX(math32.Pi / 2)).Mul(geom.Scale(w*0.5, 1, 1.5)),
	})
	u.Instances = append(u.Instances, scene.MeshInstance{Mesh: wall, Material: 2, Transform: id})
	return p.Update(u)
}

func tinted(r, g, b float32) scene.Material {
	m := scene.DefaultMaterial()
	m.BaseColor = [4]float32{r, g, b, 1}
	return m
}

// orbitView circles the camera around the grid, one step per frame.
func orbitView(i, frames, n int, width, height uint32) scene.View {
	angle := float32(i) / float32(max(frames, 1)) * math32.Pi * 0.5
	r := float32(n)*2 + 6
	eye := geom.V3(math32.Sin(angle)*r, 3, math32.Cos(angle)*r)
	return scene.LookAtView(eye, geom.Vec3{}, math32.Pi/3, 0.1, 200, width, height)
}

func accumulate(total, st *visbuf.Stats) {
	total.Instances += st.Instances
	total.VisibleInstances += st.VisibleInstances
	total.Early.Meshlets += st.Early.Meshlets
	total.Late.Meshlets += st.Late.Meshlets
	total.Early.Triangles += st.Early.Triangles
	total.Late.Triangles += st.Late.Triangles
	total.DroppedMeshletInstances += st.DroppedMeshletInstances
	total.DroppedTriangles += st.DroppedTriangles
}
