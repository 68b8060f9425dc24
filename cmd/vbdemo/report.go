package main

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/visbuf"
)

var printer = message.NewPrinter(language.English)

func formatStats(index uint64, st *visbuf.Stats) string {
	s := printer.Sprintf("frame %d: %d/%d instances, meshlets %d early + %d late of %d, triangles %d early + %d late",
		index,
		st.VisibleInstances, st.Instances,
		st.Early.Meshlets, st.Late.Meshlets, st.Early.Candidates,
		st.Early.Triangles, st.Late.Triangles)
	if st.DroppedMeshletInstances > 0 || st.DroppedTriangles > 0 {
		s += printer.Sprintf(" (dropped %d meshlets, %d triangles)", st.DroppedMeshletInstances, st.DroppedTriangles)
	}
	return s
}

func formatTotals(frames int, total *visbuf.Stats) string {
	tris := total.Early.Triangles + total.Late.Triangles
	avg := 0
	if frames > 0 {
		avg = int(tris) / frames
	}
	return printer.Sprintf("%d frames: %d triangles drawn (%d per frame), %d late meshlets",
		frames, tris, avg, total.Late.Meshlets)
}
