// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"
	"strings"
)

// CullFlags selects which culling tests run. Each flag is independent.
type CullFlags uint32

const (
	// MeshletFrustum enables frustum tests at mesh and meshlet granularity.
	MeshletFrustum CullFlags = 1 << iota
	// TriangleBackFace rejects triangles facing away from the camera.
	TriangleBackFace
	// MicroTriangles rejects degenerate triangles and triangles that cover
	// no sample.
	MicroTriangles
	// OcclusionCulling enables Hi-Z tests at mesh and meshlet granularity.
	OcclusionCulling
	// TriangleCulling enables the triangle stage's tests; without it every
	// triangle of a visible meshlet is emitted.
	TriangleCulling

	// AllCullFlags enables every test.
	AllCullFlags = MeshletFrustum | TriangleBackFace | MicroTriangles | OcclusionCulling | TriangleCulling
)

var cullFlagNames = []struct {
	flag CullFlags
	name string
}{
	{MeshletFrustum, "meshlet_frustum"},
	{TriangleBackFace, "triangle_backface"},
	{MicroTriangles, "micro_triangles"},
	{OcclusionCulling, "occlusion_culling"},
	{TriangleCulling, "triangle_culling"},
}

// Has reports whether all bits of x are set in f.
func (f CullFlags) Has(x CullFlags) bool { return f&x == x }

// String returns the flag names joined by '|'.
func (f CullFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range cullFlagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseCullFlags parses flag names as produced by String. "all" and "none"
// are accepted as shorthands.
func ParseCullFlags(names []string) (CullFlags, error) {
	var f CullFlags
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "all":
			f |= AllCullFlags
			continue
		case "none", "":
			continue
		}
		found := false
		for _, n := range cullFlagNames {
			if n.name == name {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("scene: unknown cull flag %q", raw)
		}
	}
	return f, nil
}
