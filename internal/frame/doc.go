// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frame defines the per-frame contract shared by the pipeline and
// its backends: the stage sequence, the phase variant of the two-pass
// occlusion scheme, the Recorder every backend implements, indirect
// argument layouts and the frame outputs.
package frame
