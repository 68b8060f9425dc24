// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import "encoding/binary"

// Workgroup sizes shared by the shaders and the software kernels.
const (
	MeshCullGroupSize    = 64
	MeshletCullGroupSize = 64
	// TriangleCullGroupSize equals the meshlet triangle cap: one workgroup
	// per visible meshlet, one invocation per local triangle.
	TriangleCullGroupSize = 64
	HiZGroupSize          = 8
	DecodeGroupSize       = 8
)

// Byte sizes of indirect argument records.
const (
	DispatchArgsSize    = 12
	DrawIndexedArgsSize = 20
)

// DispatchArgs is a dispatch-indirect argument record.
type DispatchArgs struct {
	X, Y, Z uint32
}

// Bytes returns the little-endian encoding of a.
func (a DispatchArgs) Bytes() []byte {
	buf := make([]byte, DispatchArgsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], a.X)
	le.PutUint32(buf[4:8], a.Y)
	le.PutUint32(buf[8:12], a.Z)
	return buf
}

// DrawIndexedArgs is a draw-indexed-indirect argument record.
type DrawIndexedArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// Bytes returns the little-endian encoding of a.
func (a DrawIndexedArgs) Bytes() []byte {
	buf := make([]byte, DrawIndexedArgsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], a.IndexCount)
	le.PutUint32(buf[4:8], a.InstanceCount)
	le.PutUint32(buf[8:12], a.FirstIndex)
	le.PutUint32(buf[12:16], uint32(a.BaseVertex))
	le.PutUint32(buf[16:20], a.FirstInstance)
	return buf
}

// GroupsFor returns ceil(count/groupSize) after clamping count to capacity.
// This is the whole job of the indirect command generator.
func GroupsFor(count, capacity, groupSize uint32) uint32 {
	count = min(count, capacity)
	if groupSize == 0 {
		return 0
	}
	return (count + groupSize - 1) / groupSize
}
