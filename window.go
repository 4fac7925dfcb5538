package debrismap

// A Window is a sub-rectangle of a scene, in pixels
type Window struct {
	Row, Col      int
	Height, Width int
}

// A Grid lays model-sized tiles over a scene. Tile origins sit at multiples of
// the tile size starting at (0,0). Each tile is read with an extra offset-wide
// margin on every side, clipped to the scene extent, so that neighbouring
// windows overlap by up to 2*offset pixels.
type Grid struct {
	height, width int
	tile          HeightWidth
	offset        int
}

// NewGrid creates the tiling of a scene of the given size
func NewGrid(scene, tile HeightWidth, offset int) (Grid, error) {
	if scene.Height <= 0 || scene.Width <= 0 {
		return Grid{}, ErrInvalidOption{"scene width and height must be >=1"}
	}
	if tile.Height <= 0 || tile.Width <= 0 {
		return Grid{}, ErrInvalidOption{"tile width and height must be >=1"}
	}
	if offset < 0 {
		return Grid{}, ErrInvalidOption{"offset must be >=0"}
	}
	return Grid{
		height: scene.Height,
		width:  scene.Width,
		tile:   tile,
		offset: offset,
	}, nil
}

// Size returns the number of tile rows and columns
func (g Grid) Size() (int, int) {
	return (g.height + g.tile.Height - 1) / g.tile.Height,
		(g.width + g.tile.Width - 1) / g.tile.Width
}

func (g Grid) Len() int {
	rows, cols := g.Size()
	return rows * cols
}

// Window returns the clipped read window of the i'th tile in row-major order
func (g Grid) Window(i int) Window {
	_, cols := g.Size()
	r0, r1 := clip(i/cols*g.tile.Height, g.tile.Height, g.offset, g.height)
	c0, c1 := clip(i%cols*g.tile.Width, g.tile.Width, g.offset, g.width)
	return Window{Row: r0, Col: c0, Height: r1 - r0, Width: c1 - c0}
}

func (g Grid) Windows() []Window {
	ws := make([]Window, g.Len())
	for i := range ws {
		ws[i] = g.Window(i)
	}
	return ws
}

func clip(origin, size, offset, extent int) (int, int) {
	start, end := origin-offset, origin+size+offset
	if start < 0 {
		start = 0
	}
	if end > extent {
		end = extent
	}
	return start, end
}
