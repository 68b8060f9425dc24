// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"context"
	"errors"
)

// Backend errors surfaced as whole-frame failures.
var (
	ErrDeviceLost   = errors.New("frame: device lost")
	ErrFrameTimeout = errors.New("frame: in-flight frame wait timed out")
)

// Recorder records the stages of one frame. The pipeline calls BeginFrame,
// then one method per entry of Sequence in order, then EndFrame. A backend
// never branches on counts produced by the stages it records; every size
// flows through indirect argument buffers.
type Recorder interface {
	// Name identifies the backend.
	Name() string

	// BeginFrame waits until the frame slot's previous use has retired,
	// uploads dirty scene data and clears the per-frame counters.
	BeginFrame(ctx context.Context, in *Inputs) error

	CullMeshes() error
	GenerateCommands(target GenTarget, phase Phase) error
	CullMeshlets(phase Phase) error
	CullTriangles(phase Phase) error
	Draw(phase Phase) error
	BuildHiZ() error
	Decode() error

	// EndFrame submits the frame and returns its output.
	EndFrame(ctx context.Context) (*Output, error)

	// Resize re-creates size-dependent resources. History-dependent state
	// (the previous Hi-Z) is reset.
	Resize(width, height uint32) error

	// Reserve grows the meshlet-instance and triangle capacities.
	// Resources are reallocated only when a maximum grows.
	Reserve(maxMeshletInstances, maxTriangles uint32) error

	// ResetHistory makes the next early pass run without occlusion data,
	// as after a camera cut.
	ResetHistory()

	// Close releases every resource. It is safe to call more than once.
	Close()
}

// Record dispatches step s to the matching Recorder method.
func Record(r Recorder, s Step) error {
	switch s.Stage {
	case StageMeshCull:
		return r.CullMeshes()
	case StageGenCmd:
		return r.GenerateCommands(s.Gen, s.Phase)
	case StageMeshletCull:
		return r.CullMeshlets(s.Phase)
	case StageTriangleCull:
		return r.CullTriangles(s.Phase)
	case StageDraw:
		return r.Draw(s.Phase)
	case StageHiZ:
		return r.BuildHiZ()
	case StageDecode:
		return r.Decode()
	}
	return ErrInvalidTransition
}
