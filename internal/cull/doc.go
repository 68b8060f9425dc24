// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cull is the software backend of the visibility-buffer pipeline.
//
// Every stage runs as a compute-style dispatch on a worker pool: kernels
// are written per invocation, communicate only through atomic counters and
// read their workgroup counts from indirect argument records written by the
// previous stage. It is the reference the WGSL shaders in internal/gpu are
// checked against, and the backend used when no device is available.
//
// Depth is reversed-Z: 1 at the near plane, 0 at the far plane, cleared to
// 0, tested with greater-or-equal. The Hi-Z pyramid min-reduces, so each
// texel holds the farthest depth of its footprint.
package cull
