// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"errors"
	"fmt"
)

// Phase selects the early or late half of the two-pass occlusion scheme.
// Early samples the previous frame's Hi-Z and only writes the visibility
// mask; Late samples the Hi-Z rebuilt from this frame's early depth and
// skips slots whose mask bit is already set.
type Phase uint8

const (
	Early Phase = iota
	Late
)

// String returns the phase name.
func (p Phase) String() string {
	if p == Late {
		return "late"
	}
	return "early"
}

// ReadsMask reports whether the phase rejects slots already drawn.
func (p Phase) ReadsMask() bool { return p == Late }

// Stage identifies a pipeline stage.
type Stage uint8

const (
	StageMeshCull Stage = iota
	StageGenCmd
	StageMeshletCull
	StageTriangleCull
	StageDraw
	StageHiZ
	StageDecode

	// StageCount is the number of stages.
	StageCount
)

var stageNames = [StageCount]string{
	StageMeshCull:     "mesh_cull",
	StageGenCmd:       "gen_cmd",
	StageMeshletCull:  "meshlet_cull",
	StageTriangleCull: "triangle_cull",
	StageDraw:         "draw",
	StageHiZ:          "hiz",
	StageDecode:       "decode",
}

// String returns the stage name.
func (s Stage) String() string {
	if s < StageCount {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", s)
}

// State is a coarse frame state.
type State uint8

const (
	Cleared State = iota
	EarlyCull
	EarlyDraw
	HiZRebuild
	LateCull
	LateDraw
	Decoded
)

var stateNames = [...]string{"cleared", "early_cull", "early_draw", "hiz_rebuild", "late_cull", "late_draw", "decode"}

// String returns the state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Step is one recorded step of a frame.
type Step struct {
	Stage Stage
	Phase Phase
	// Gen is the generator target for StageGenCmd steps.
	Gen GenTarget
}

// String returns a readable step name.
func (s Step) String() string {
	switch s.Stage {
	case StageGenCmd:
		return fmt.Sprintf("%s(%s,%s)", s.Stage, s.Gen, s.Phase)
	case StageMeshletCull, StageTriangleCull, StageDraw:
		return fmt.Sprintf("%s(%s)", s.Stage, s.Phase)
	}
	return s.Stage.String()
}

// State returns the coarse state the frame is in while s runs.
func (s Step) State() State {
	switch s.Stage {
	case StageMeshCull:
		return EarlyCull
	case StageHiZ:
		return HiZRebuild
	case StageDecode:
		return Decoded
	case StageDraw:
		if s.Phase == Late {
			return LateDraw
		}
		return EarlyDraw
	}
	if s.Phase == Late {
		return LateCull
	}
	return EarlyCull
}

// GenTarget says which dispatch an indirect command generator writes.
type GenTarget uint8

const (
	// GenMeshletDispatch sizes the meshlet culler from the candidate count.
	GenMeshletDispatch GenTarget = iota
	// GenTriangleDispatch sizes the triangle culler from the visible
	// meshlet count.
	GenTriangleDispatch
)

// String returns the target name.
func (g GenTarget) String() string {
	if g == GenTriangleDispatch {
		return "triangles"
	}
	return "meshlets"
}

// Sequence is the only valid order of steps in a frame.
var Sequence = []Step{
	{Stage: StageMeshCull},
	{Stage: StageGenCmd, Gen: GenMeshletDispatch},
	{Stage: StageMeshletCull, Phase: Early},
	{Stage: StageGenCmd, Gen: GenTriangleDispatch},
	{Stage: StageTriangleCull, Phase: Early},
	{Stage: StageDraw, Phase: Early},
	{Stage: StageHiZ},
	{Stage: StageMeshletCull, Phase: Late},
	{Stage: StageGenCmd, Gen: GenTriangleDispatch, Phase: Late},
	{Stage: StageTriangleCull, Phase: Late},
	{Stage: StageDraw, Phase: Late},
	{Stage: StageDecode},
}

// ErrInvalidTransition is returned when a step is recorded out of order.
var ErrInvalidTransition = errors.New("frame: invalid state transition")

// Machine enforces Sequence.
type Machine struct {
	next int
}

// State returns the current coarse state.
func (m *Machine) State() State {
	if m.next == 0 {
		return Cleared
	}
	return Sequence[m.next-1].State()
}

// Done reports whether the frame has reached its terminal state.
func (m *Machine) Done() bool { return m.next == len(Sequence) }

// Advance moves to s if s is the next step.
func (m *Machine) Advance(s Step) error {
	if m.next >= len(Sequence) {
		return fmt.Errorf("%w: %s after frame end", ErrInvalidTransition, s)
	}
	if want := Sequence[m.next]; s != want {
		return fmt.Errorf("%w: got %s in state %s, want %s", ErrInvalidTransition, s, m.State(), want)
	}
	m.next++
	return nil
}

// Reset returns the machine to Cleared.
func (m *Machine) Reset() { m.next = 0 }
