// Package visbuf is a GPU-driven visibility-buffer geometry pipeline.
//
// # Overview
//
// Every frame, data-parallel stages decide which triangles of a large scene
// are worth rasterizing and encode them into a per-pixel identifier buffer
// that a decode pass resolves into surface attributes. The host records the
// same stage sequence every frame and never reads back what the stages
// produced: counts travel between stages through indirect argument buffers.
//
// # Quick Start
//
//	p, err := visbuf.New(visbuf.WithSize(1280, 720))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	cube, _ := p.AddMesh(meshData)
//	_ = p.Update(scene.FrameUpdate{
//	    Instances:  []scene.MeshInstance{{Mesh: cube}},
//	    Transforms: []scene.TransformUpdate{{ID: 0, World: geom.Identity()}},
//	    Materials:  []scene.MaterialUpdate{{Index: 0, Material: scene.DefaultMaterial()}},
//	})
//	p.SetView(scene.LookAtView(eye, target, fovY, 0.1, 1000, 1280, 720))
//	out, err := p.RenderFrame(ctx)
//
// # Two-phase occlusion culling
//
// The early phase tests meshes and meshlets against the previous frame's
// Hi-Z pyramid and draws what survives. A new pyramid is built from that
// depth, and the late phase re-tests everything the early phase rejected,
// drawing what became visible. A visibility mask guarantees no meshlet is
// drawn twice. Stale occlusion data therefore costs at most one phase of
// extra work, never a missing object.
//
// # Backends
//
// The hal backend records every stage as WGSL compute and render passes on
// a gogpu/wgpu device, shared through WithDeviceProvider or opened
// standalone. The software backend runs the same kernels on a worker pool
// and returns every intermediate buffer in its Output; it is the reference
// the shaders are tested against. Build with -tags nogpu to drop the hal
// backend.
//
// # Logging
//
// visbuf is silent by default. Call SetLogger to receive structured logs
// from the pipeline and its backends.
package visbuf
