// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

// VisibilityID is the per-pixel value of the visibility buffer:
// mesh instance in the high 32 bits, then 26 bits of LOD-relative meshlet
// index and 6 bits of local triangle index.
type VisibilityID uint64

// EmptyVisibility marks pixels no triangle covered.
const EmptyVisibility = ^VisibilityID(0)

// Field limits of the packed encodings.
const (
	MaxVisibilityMeshlets = 1 << 26
	MaxDrawSlots          = 1 << 24
)

// PackVisibility packs a visibility id. Meshlet and triangle are masked to
// their field widths.
func PackVisibility(instance, meshlet, triangle uint32) VisibilityID {
	lo := (meshlet&(MaxVisibilityMeshlets-1))<<6 | triangle&63
	return VisibilityID(instance)<<32 | VisibilityID(lo)
}

// Unpack returns the fields of v.
func (v VisibilityID) Unpack() (instance, meshlet, triangle uint32) {
	lo := uint32(v)
	return uint32(v >> 32), lo >> 6, lo & 63
}

// Empty reports whether v is the clear value.
func (v VisibilityID) Empty() bool { return v == EmptyVisibility }

// Split returns the low and high words as stored in an RG32Uint texel.
func (v VisibilityID) Split() (lo, hi uint32) { return uint32(v), uint32(v >> 32) }

// JoinVisibility is the inverse of Split.
func JoinVisibility(lo, hi uint32) VisibilityID {
	return VisibilityID(hi)<<32 | VisibilityID(lo)
}

// PackDrawIndex builds one entry of the reordered index buffer. slot is the
// meshlet-instance slot, corner is 0..2.
func PackDrawIndex(slot, triangle, corner uint32) uint32 {
	return slot<<8 | (triangle&63)<<2 | corner&3
}

// UnpackDrawIndex is the inverse of PackDrawIndex.
func UnpackDrawIndex(i uint32) (slot, triangle, corner uint32) {
	return i >> 8, (i >> 2) & 63, i & 3
}

// PackTriangle packs three local vertex indices into a local-triangle word.
func PackTriangle(a, b, c uint8) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16
}

// UnpackTriangle returns the local vertex indices of a local-triangle word.
func UnpackTriangle(w uint32) (a, b, c uint32) {
	return w & 0xff, (w >> 8) & 0xff, (w >> 16) & 0xff
}
