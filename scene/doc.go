// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scene defines the GPU scene records consumed by the
// visibility-buffer pipeline and the flattened buffers that hold them.
//
// Geometry is immutable once added with [Buffers.AddMesh]. Instances,
// transforms and materials are owned by the scene layer and updated once
// per frame through [Buffers.Apply]; the buffers coalesce what changed so
// device backends can upload sparse ranges.
//
// Records are plain values with fixed little-endian encodings (see
// encode.go) matching the storage-buffer structs of the WGSL shaders.
package scene
