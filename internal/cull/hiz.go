// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cull

import (
	"math/bits"

	"github.com/chewxy/math32"

	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/internal/parallel"
)

// HiZBaseSize returns the level-0 dimensions for a depth target: the
// largest powers of two not larger than width and height.
func HiZBaseSize(width, height int) (int, int) {
	return prevPow2(width), prevPow2(height)
}

func prevPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << (bits.Len(uint(n)) - 1)
}

// HiZLevelCount returns the number of levels for a level-0 size, capped at
// limit when limit is positive.
func HiZLevelCount(w0, h0, limit int) int {
	n := bits.Len(uint(max(w0, h0)))
	if limit > 0 {
		n = min(n, limit)
	}
	return n
}

// NewPyramid allocates a pyramid for a width x height depth target.
func NewPyramid(width, height, limit int) *frame.Pyramid {
	w, h := HiZBaseSize(width, height)
	n := HiZLevelCount(w, h, limit)
	p := &frame.Pyramid{Levels: make([]frame.Level, n)}
	for i := range n {
		p.Levels[i] = frame.Level{Width: w, Height: h, Depth: make([]float32, w*h)}
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	return p
}

// hizBuilder reduces a depth target into a pyramid, one dispatch per level.
type hizBuilder struct {
	pool *parallel.WorkerPool
}

// build fills dst from depth. Each level is a separate dispatch of 8x8
// workgroups; the dispatch boundary is the inter-level barrier.
func (h hizBuilder) build(dst *frame.Pyramid, depth []float32, width, height int, trace *frame.Trace) {
	for l := range dst.Levels {
		lv := &dst.Levels[l]
		gx := uint32((lv.Width + frame.HiZGroupSize - 1) / frame.HiZGroupSize)
		gy := uint32((lv.Height + frame.HiZGroupSize - 1) / frame.HiZGroupSize)

		label := "hiz_reduce"
		if l == 0 {
			label = "hiz_init"
		}
		trace.Add(frame.Op{Kind: frame.OpDispatch, Stage: frame.StageHiZ, Label: label, Groups: gx * gy})

		h.pool.Dispatch(gx*gy, func(g uint32) {
			tx := int(g%gx) * frame.HiZGroupSize
			ty := int(g/gx) * frame.HiZGroupSize
			for y := ty; y < min(ty+frame.HiZGroupSize, lv.Height); y++ {
				for x := tx; x < min(tx+frame.HiZGroupSize, lv.Width); x++ {
					if l == 0 {
						lv.Depth[y*lv.Width+x] = reduceSource(depth, width, height, lv.Width, lv.Height, x, y)
					} else {
						lv.Depth[y*lv.Width+x] = reduceLevel(&dst.Levels[l-1], x, y)
					}
				}
			}
		})
		if l+1 < len(dst.Levels) {
			trace.Barrier(frame.StageHiZ, frame.Early, "hiz_mip")
		}
	}
}

// reduceSource returns the minimum source depth covered by level-0 texel
// (x, y). The footprint is at least one pixel and may exceed 2x2.
func reduceSource(depth []float32, width, height, w0, h0, x, y int) float32 {
	sx0 := x * width / w0
	sx1 := max((x+1)*width/w0, sx0+1)
	sy0 := y * height / h0
	sy1 := max((y+1)*height/h0, sy0+1)
	m := float32(1)
	for sy := sy0; sy < min(sy1, height); sy++ {
		row := depth[sy*width:]
		for sx := sx0; sx < min(sx1, width); sx++ {
			m = math32.Min(m, row[sx])
		}
	}
	return m
}

// reduceLevel returns the minimum of the 2x2 block of prev under (x, y),
// clamped to prev's bounds.
func reduceLevel(prev *frame.Level, x, y int) float32 {
	x0, y0 := min(2*x, prev.Width-1), min(2*y, prev.Height-1)
	x1, y1 := min(2*x+1, prev.Width-1), min(2*y+1, prev.Height-1)
	d := prev.Depth
	w := prev.Width
	return math32.Min(
		math32.Min(d[y0*w+x0], d[y0*w+x1]),
		math32.Min(d[y1*w+x0], d[y1*w+x1]),
	)
}
