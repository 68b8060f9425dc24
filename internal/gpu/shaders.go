// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
)

//go:embed shaders/common.wgsl
var shaderCommon string

//go:embed shaders/occlusion.wgsl
var shaderOcclusion string

//go:embed shaders/mesh_cull.wgsl
var shaderMeshCull string

//go:embed shaders/gen_cmd.wgsl
var shaderGenCmd string

//go:embed shaders/meshlet_cull.wgsl
var shaderMeshletCull string

//go:embed shaders/triangle_cull.wgsl
var shaderTriangleCull string

//go:embed shaders/hiz_init.wgsl
var shaderHiZInit string

//go:embed shaders/hiz_reduce.wgsl
var shaderHiZReduce string

//go:embed shaders/visbuffer.wgsl
var shaderVisBuffer string

//go:embed shaders/decode.wgsl
var shaderDecode string

// kernel identifies one compute pipeline.
type kernel int

const (
	kernelMeshCull kernel = iota
	kernelGenCmd
	kernelMeshletCull
	kernelTriangleCull
	kernelHiZInit
	kernelHiZReduce
	kernelDecode

	// kernelCount is the number of compute pipelines.
	kernelCount
)

// String returns the kernel name, which is also its shader file name.
func (k kernel) String() string {
	switch k {
	case kernelMeshCull:
		return "mesh_cull"
	case kernelGenCmd:
		return "gen_cmd"
	case kernelMeshletCull:
		return "meshlet_cull"
	case kernelTriangleCull:
		return "triangle_cull"
	case kernelHiZInit:
		return "hiz_init"
	case kernelHiZReduce:
		return "hiz_reduce"
	case kernelDecode:
		return "decode"
	default:
		return fmt.Sprintf("kernel(%d)", int(k))
	}
}

// kernelSource returns the complete WGSL of k with its shared prelude.
func kernelSource(k kernel) string {
	switch k {
	case kernelMeshCull:
		return shaderCommon + shaderOcclusion + shaderMeshCull
	case kernelMeshletCull:
		return shaderCommon + shaderOcclusion + shaderMeshletCull
	case kernelTriangleCull:
		return shaderCommon + shaderTriangleCull
	case kernelDecode:
		return shaderCommon + shaderDecode
	case kernelGenCmd:
		return shaderGenCmd
	case kernelHiZInit:
		return shaderHiZInit
	case kernelHiZReduce:
		return shaderHiZReduce
	default:
		return ""
	}
}

// visBufferSource returns the WGSL of the encode render pipeline.
func visBufferSource() string {
	return shaderCommon + shaderVisBuffer
}

// ShaderSources returns every shader by name.
func ShaderSources() map[string]string {
	out := make(map[string]string, int(kernelCount)+1)
	for k := kernel(0); k < kernelCount; k++ {
		out[k.String()] = kernelSource(k)
	}
	out["visbuffer"] = visBufferSource()
	return out
}

// ValidateShaders compiles every shader with naga and returns the first
// failure.
func ValidateShaders() error {
	for k := kernel(0); k <= kernelCount; k++ {
		name, src := k.String(), kernelSource(k)
		if k == kernelCount {
			name, src = "visbuffer", visBufferSource()
		}
		if _, err := naga.Compile(src); err != nil {
			return fmt.Errorf("gpu: compile %s: %w", name, err)
		}
	}
	return nil
}
