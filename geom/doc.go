// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package geom provides the float32 vector and matrix math shared by the
// culling stages, the rasterizer and the decode pass.
//
// Matrices are column-major and multiply column vectors (m * v), matching
// WGSL's mat4x4<f32> memory layout so values can be uploaded unchanged.
// Projections produced by this package use reversed-Z: the near plane maps
// to depth 1 and the far plane to depth 0.
package geom
