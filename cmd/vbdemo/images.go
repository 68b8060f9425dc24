package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/visbuf"
)

// debugImage is one named target of a frame.
type debugImage struct {
	name string
	img  image.Image
}

// writeFrame writes every host-side target of out as prefix_<name>.png.
func writeFrame(prefix string, out *visbuf.Output) error {
	imgs := []debugImage{
		{"visibility", visibilityImage(out)},
		{"depth", depthImage(out)},
	}
	if hiz := hizImage(out); hiz != nil {
		imgs = append(imgs, debugImage{"hiz", hiz})
	}
	if out.GBuffer.Albedo != nil {
		imgs = append(imgs,
			debugImage{"albedo", out.GBuffer.Albedo},
			debugImage{"normal", out.GBuffer.Normal})
	}
	if out.Overdraw != nil {
		imgs = append(imgs, debugImage{"overdraw", overdrawImage(out)})
	}
	for _, e := range imgs {
		if err := savePNG(fmt.Sprintf("%s_%s.png", prefix, e.name), e.img); err != nil {
			return err
		}
	}
	return nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// visibilityImage colours each pixel by a hash of its instance and
// meshlet, so meshlet boundaries stand out.
func visibilityImage(out *visbuf.Output) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, out.Width, out.Height))
	for y := range out.Height {
		for x := range out.Width {
			id := out.VisibilityAt(x, y)
			if id.Empty() {
				continue
			}
			inst, meshlet, _ := id.Unpack()
			h := inst*0x9E3779B1 ^ meshlet*0x85EBCA77
			h ^= h >> 15
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(h), G: uint8(h >> 8), B: uint8(h >> 16), A: 255})
		}
	}
	return img
}

// depthImage maps reversed-Z depth to grey: near is white, far and empty
// are black.
func depthImage(out *visbuf.Output) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, out.Width, out.Height))
	for i, d := range out.Depth {
		img.Pix[i] = uint8(min(max(d, 0), 1) * 255)
	}
	return img
}

// overdrawImage shows how many fragments reached each pixel: green for
// one, yellow for two, red for more.
func overdrawImage(out *visbuf.Output) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, out.Width, out.Height))
	palette := []color.NRGBA{
		{0, 0, 0, 255},
		{40, 180, 60, 255},
		{230, 200, 40, 255},
		{220, 50, 40, 255},
	}
	for i, n := range out.Overdraw {
		c := palette[min(int(n), len(palette)-1)]
		img.SetNRGBA(i%out.Width, i/out.Width, c)
	}
	return img
}

// hizImage tiles every mip of the pyramid, scaled up to the size of mip 0
// and labelled with its level.
func hizImage(out *visbuf.Output) *image.Gray {
	if out.HiZ.Empty() {
		return nil
	}
	levels := out.HiZ.Levels
	tw, th := levels[0].Width, levels[0].Height
	cols := min(4, len(levels))
	rows := (len(levels) + cols - 1) / cols
	dst := image.NewGray(image.Rect(0, 0, tw*cols, th*rows))

	for i, l := range levels {
		src := image.NewGray(image.Rect(0, 0, l.Width, l.Height))
		for j, d := range l.Depth {
			src.Pix[j] = uint8(min(max(d, 0), 1) * 255)
		}
		x0, y0 := (i%cols)*tw, (i/cols)*th
		tile := image.Rect(x0, y0, x0+tw, y0+th)
		xdraw.NearestNeighbor.Scale(dst, tile, src, src.Bounds(), xdraw.Src, nil)

		label := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.Gray{Y: 128}),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x0+3, y0+13),
		}
		label.DrawString(fmt.Sprintf("mip %d %dx%d", i, l.Width, l.Height))
	}
	return dst
}
