// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import "github.com/gogpu/gputypes"

// Layout entries default to the compute stage. The encode pass widens
// Visibility after the fact.
func uniformEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

func storageROEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
	}
}

func storageRWEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
	}
}

// kernelBindGroupLayoutEntries returns the group 0 layout of k. The order
// must match the @binding declarations of the kernel's WGSL.
func kernelBindGroupLayoutEntries(k kernel) []gputypes.BindGroupLayoutEntry {
	uniform, storageRO, storageRW := uniformEntry, storageROEntry, storageRWEntry

	// Kernels built on common.wgsl share frame, geometry and instance_data.
	prelude := []gputypes.BindGroupLayoutEntry{uniform(0), storageRO(1), storageRO(2)}

	switch k {
	case kernelMeshCull:
		// @binding(3) storage(read) hiz
		// @binding(4) storage(read_write) counters
		// @binding(5) storage(read_write) candidates
		return append(prelude, storageRO(3), storageRW(4), storageRW(5))

	case kernelGenCmd:
		// @binding(0) uniform params
		// @binding(1) storage(read_write) counters
		// @binding(2) storage(read_write) args
		return []gputypes.BindGroupLayoutEntry{uniform(0), storageRW(1), storageRW(2)}

	case kernelMeshletCull:
		// @binding(3) storage(read) hiz
		// @binding(4) storage(read_write) counters
		// @binding(5) storage(read) candidates
		// @binding(6) storage(read_write) mask
		// @binding(7) storage(read_write) visible
		return append(prelude, storageRO(3), storageRW(4), storageRO(5), storageRW(6), storageRW(7))

	case kernelTriangleCull:
		// @binding(3) storage(read_write) counters
		// @binding(4) storage(read) candidates
		// @binding(5) storage(read) visible
		// @binding(6) storage(read_write) draw_args
		// @binding(7) storage(read_write) indices
		return append(prelude, storageRW(3), storageRO(4), storageRO(5), storageRW(6), storageRW(7))

	case kernelHiZInit, kernelHiZReduce:
		// @binding(0) uniform level
		// @binding(1) storage(read) depth (init only)
		// @binding(2) storage(read_write) hiz
		return []gputypes.BindGroupLayoutEntry{uniform(0), storageRO(1), storageRW(2)}

	case kernelDecode:
		// @binding(3) storage(read) visibility
		// @binding(4) storage(read_write) gbuffer
		return append(prelude, storageRO(3), storageRW(4))

	default:
		return nil
	}
}

// visBufferBindGroupLayoutEntries returns the layout of the encode pass.
func visBufferBindGroupLayoutEntries() []gputypes.BindGroupLayoutEntry {
	entries := []gputypes.BindGroupLayoutEntry{
		uniformEntry(0),
		storageROEntry(1),
		storageROEntry(2),
		storageROEntry(3),
		storageRWEntry(4),
	}
	entries[0].Visibility = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	for i := 1; i <= 3; i++ {
		entries[i].Visibility = gputypes.ShaderStageVertex
	}
	entries[4].Visibility = gputypes.ShaderStageFragment
	return entries
}

// storageBindings counts the storage entries of a layout.
func storageBindings(entries []gputypes.BindGroupLayoutEntry) int {
	n := 0
	for _, e := range entries {
		if e.Buffer != nil && e.Buffer.Type != gputypes.BufferBindingTypeUniform {
			n++
		}
	}
	return n
}
