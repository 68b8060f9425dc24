// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"fmt"
	"strings"
)

// OpKind classifies a recorded command.
type OpKind uint8

const (
	OpDispatch OpKind = iota
	OpDispatchIndirect
	OpDrawIndexedIndirect
	OpBarrier
	OpClear
	OpCopy
)

var opNames = [...]string{"dispatch", "dispatch_indirect", "draw_indexed_indirect", "barrier", "clear", "copy"}

// String returns the op name.
func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", k)
}

// Op is one recorded command.
type Op struct {
	Kind  OpKind
	Stage Stage
	Phase Phase
	Label string
	// Groups is the workgroup count of direct dispatches, and what the
	// software backend read from the argument buffer for indirect ones.
	Groups uint32
}

// Trace is the ordered command list of a frame. Both backends record it so
// the dependency structure can be inspected without a device.
type Trace struct {
	Ops []Op
}

// Add appends an op.
func (t *Trace) Add(op Op) { t.Ops = append(t.Ops, op) }

// Barrier appends a barrier op labelled with what it protects.
func (t *Trace) Barrier(stage Stage, phase Phase, label string) {
	t.Ops = append(t.Ops, Op{Kind: OpBarrier, Stage: stage, Phase: phase, Label: label})
}

// Count returns the number of ops of kind k.
func (t *Trace) Count(k OpKind) int {
	n := 0
	for _, op := range t.Ops {
		if op.Kind == k {
			n++
		}
	}
	return n
}

// Stages returns the stage of every non-barrier op with consecutive
// repeats collapsed.
func (t *Trace) Stages() []Stage {
	var out []Stage
	for _, op := range t.Ops {
		if op.Kind == OpBarrier || op.Kind == OpClear || op.Kind == OpCopy {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == op.Stage {
			continue
		}
		out = append(out, op.Stage)
	}
	return out
}

// String renders the trace one op per line.
func (t *Trace) String() string {
	var b strings.Builder
	for i, op := range t.Ops {
		fmt.Fprintf(&b, "%3d %-22s %-14s %-6s %s", i, op.Kind, op.Stage, op.Phase, op.Label)
		if op.Kind == OpDispatch || op.Kind == OpDispatchIndirect {
			fmt.Fprintf(&b, " groups=%d", op.Groups)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
