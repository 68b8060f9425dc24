// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu is the hal backend of the visibility-buffer pipeline.
//
// Every stage is a WGSL kernel embedded from shaders/ and recorded into one
// command buffer per frame:
//
//	mesh_cull -> gen_cmd -> meshlet_cull(early) -> gen_cmd -> triangle_cull(early)
//	  -> visbuffer(early) -> hiz_init/hiz_reduce -> meshlet_cull(late) -> gen_cmd
//	  -> triangle_cull(late) -> visbuffer(late) -> decode
//
// Sizes produced on the device never travel back to the host. The
// generator kernel writes dispatch arguments, the triangle culler appends
// into the draw-indexed argument, and the host records indirect dispatches
// and draws against those buffers.
//
// Scene records are packed into two read-only storage blobs (geometry and
// per-instance data) addressed by word offsets carried in the frame
// uniform, which keeps every stage within the default limit of eight
// storage buffers per shader stage.
//
// Persistent resources (Hi-Z, visibility mask, targets) and transient
// buffers (candidates, visible lists, indirect arguments, index buffers)
// live in a ring of frame-in-flight slots. A slot is reused once the queue
// reports its last submission index as completed.
package gpu
