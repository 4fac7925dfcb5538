package debrismap

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// An Operation turns one raster into another
type Operation interface {
	Execute(ctx context.Context, r Raster) (Raster, error)
}

// A Splitter turns one raster into a sequence of rasters
type Splitter interface {
	Split(r Raster) (RasterReader, error)
}

// A Merger reduces a sequence of rasters to a single one
type Merger interface {
	Merge(rr RasterReader) (Raster, error)
}

// Split cuts a scene into overlapping tiles following a Grid
type Split struct {
	tile   HeightWidth
	offset int
	logger *zap.Logger
}

func NewSplit(tile HeightWidth, offset int, opts ...Option) (Split, error) {
	if tile.Height <= 0 || tile.Width <= 0 {
		return Split{}, ErrInvalidOption{"tile width and height must be >=1"}
	}
	if offset < 0 {
		return Split{}, ErrInvalidOption{"offset must be >=0"}
	}
	o := newOpOptions(opts)
	return Split{tile: tile, offset: offset, logger: o.logger}, nil
}

// Split returns a reader yielding the tiles in row-major order. The scene is
// decoded once, each tile is encoded only when requested. Tiles inherit the
// scene's padding record.
func (s Split) Split(r Raster) (RasterReader, error) {
	img, err := decodeChecked(r)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	grid, err := NewGrid(HeightWidth{img.height, img.width}, s.tile, s.offset)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("split scene", zap.Int("tiles", grid.Len()),
		zap.Int("height", img.height), zap.Int("width", img.width))
	i := 0
	return &readerFunc{next: func() (Raster, error) {
		if i >= grid.Len() {
			return Raster{}, io.EOF
		}
		w := grid.Window(i)
		i++
		tile, err := img.crop(w).raster(r.Bands, r.Padding)
		if err != nil {
			return Raster{}, fmt.Errorf("tile %d: %w", i-1, err)
		}
		return tile, nil
	}}, nil
}
