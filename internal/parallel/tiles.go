package parallel

// TileSize is the edge length of a tile in pixels.
const TileSize = 64

// Rect is a half-open pixel rectangle.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Empty reports whether r contains no pixels.
func (r Rect) Empty() bool { return r.X0 >= r.X1 || r.Y0 >= r.Y1 }

// Intersect returns the intersection of r and o.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{max(r.X0, o.X0), max(r.Y0, o.Y0), min(r.X1, o.X1), min(r.Y1, o.Y1)}
}

// Tiles divides a width x height target into row-major TileSize tiles.
// Edge tiles are smaller when the size is not a multiple of TileSize.
func Tiles(width, height int) []Rect {
	if width <= 0 || height <= 0 {
		return nil
	}
	tilesX := (width + TileSize - 1) / TileSize
	tilesY := (height + TileSize - 1) / TileSize
	out := make([]Rect, 0, tilesX*tilesY)
	for ty := range tilesY {
		for tx := range tilesX {
			out = append(out, Rect{
				X0: tx * TileSize,
				Y0: ty * TileSize,
				X1: min((tx+1)*TileSize, width),
				Y1: min((ty+1)*TileSize, height),
			})
		}
	}
	return out
}
