package debrismap

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// A Predictor runs the segmentation model on one encoded tile and returns
// one little-endian float32 score per tile pixel, row-major
type Predictor interface {
	Predict(ctx context.Context, tile []byte) ([]byte, error)
}

// PredictorFunc adapts a function into a Predictor
type PredictorFunc func(ctx context.Context, tile []byte) ([]byte, error)

func (f PredictorFunc) Predict(ctx context.Context, tile []byte) ([]byte, error) {
	return f(ctx, tile)
}

// Engine runs a predictor over a whole scene in a single pass: it slides the
// tile grid over the scene, pads each window to the model input size, and
// stitches the predictions into one byte-scaled probability raster.
type Engine struct {
	predictor Predictor
	tile      HeightWidth
	offset    int
	bands     int
	logger    *zap.Logger
}

type EngineOption interface {
	setEngineOpt(e *Engine) error
}

type engineOpt func(e *Engine) error

func (eo engineOpt) setEngineOpt(e *Engine) error {
	return eo(e)
}

// TileSize sets the model input size, excluding the offset margins.
// Defaults to 480x480.
func TileSize(height, width int) EngineOption {
	return engineOpt(func(e *Engine) error {
		if height <= 0 || width <= 0 {
			return ErrInvalidOption{"tile width and height must be >=1"}
		}
		e.tile = HeightWidth{height, width}
		return nil
	})
}

// Offset sets the context margin read around each tile. Defaults to 64.
func Offset(offset int) EngineOption {
	return engineOpt(func(e *Engine) error {
		if offset < 0 {
			return ErrInvalidOption{"offset must be >=0"}
		}
		e.offset = offset
		return nil
	})
}

// BandCount sets the number of leading bands fed to the model. Defaults to 12.
func BandCount(n int) EngineOption {
	return engineOpt(func(e *Engine) error {
		if n <= 0 {
			return ErrInvalidOption{"band count must be >=1"}
		}
		e.bands = n
		return nil
	})
}

func NewEngine(predictor Predictor, opts ...EngineOption) (*Engine, error) {
	if predictor == nil {
		return nil, ErrInvalidOption{"predictor is required"}
	}
	e := &Engine{
		predictor: predictor,
		tile:      HeightWidth{480, 480},
		offset:    64,
		bands:     12,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		if err := o.setEngineOpt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Predict returns a single band uint8 raster on the scene's grid holding the
// stitched scores scaled by 255. Any predictor error aborts the scene and is
// returned wrapped; no partial output is ever returned.
func (e *Engine) Predict(ctx context.Context, scene Raster) (Raster, error) {
	ds, release, err := openContent(scene.Content)
	if err != nil {
		return Raster{}, fmt.Errorf("open scene: %w", err)
	}
	defer release()
	hdr, err := readHeader(ds)
	if err != nil {
		return Raster{}, err
	}
	grid, err := NewGrid(HeightWidth{hdr.height, hdr.width}, e.tile, e.offset)
	if err != nil {
		return Raster{}, err
	}
	nbands := ds.Structure().NBands
	if nbands > e.bands {
		nbands = e.bands
	}
	st := newStitcher(hdr.height, hdr.width, e.offset)
	for i := 0; i < grid.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return Raster{}, err
		}
		w := grid.Window(i)
		values, err := e.infer(ctx, ds, hdr, w, nbands)
		if err != nil {
			return Raster{}, fmt.Errorf("window %d %+v: %w", i, w, err)
		}
		if err := st.add(w, values); err != nil {
			return Raster{}, fmt.Errorf("window %d: %w", i, err)
		}
		e.logger.Debug("window stitched", zap.Int("window", i), zap.Int("of", grid.Len()),
			zap.Int("row", w.Row), zap.Int("col", w.Col))
	}
	return st.raster(hdr)
}

func (e *Engine) infer(ctx context.Context, ds *godal.Dataset, hdr *image, w Window, nbands int) ([]uint8, error) {
	idx := make([]int, nbands)
	for b := range idx {
		idx[b] = b
	}
	buf := make([]float64, nbands*w.Width*w.Height)
	if err := ds.Read(w.Col, w.Row, buf, w.Width, w.Height, godal.Bands(idx...), godal.BandInterleaved()); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	tile := hdr.like()
	tile.width, tile.height = w.Width, w.Height
	tile.transform = windowTransform(hdr.transform, w)
	tile.data = make([][]float64, nbands)
	for b := range tile.data {
		tile.data[b] = buf[b*w.Width*w.Height : (b+1)*w.Width*w.Height]
	}
	padding := symmetricPadding(e.tile.Height+2*e.offset-w.Height, e.tile.Width+2*e.offset-w.Width)
	padded := tile.pad(padding)
	content, err := padded.encode()
	if err != nil {
		return nil, err
	}
	scores, err := e.predictor.Predict(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return unpadScores(scores, HeightWidth{padded.height, padded.width}, padding,
		HeightWidth{w.Height, w.Width})
}

// unpadScores decodes a float32 prediction over a padded tile, strips the
// padding and quantizes the remaining scores, which must exactly cover want
func unpadScores(scores []byte, size HeightWidth, p Padding, want HeightWidth) ([]uint8, error) {
	if len(scores) != size.Height*size.Width*4 {
		return nil, fmt.Errorf("%w: got %d bytes, expecting %d for %dx%d", ErrPredictionSize,
			len(scores), size.Height*size.Width*4, size.Width, size.Height)
	}
	h, w := size.Height-p.Top-p.Bottom, size.Width-p.Left-p.Right
	if h != want.Height || w != want.Width {
		return nil, fmt.Errorf("%w: unpadded prediction is %dx%d, window is %dx%d", ErrContract,
			w, h, want.Width, want.Height)
	}
	values := make([]uint8, 0, h*w)
	for r := p.Top; r < p.Top+h; r++ {
		for c := p.Left; c < p.Left+w; c++ {
			off := (r*size.Width + c) * 4
			values = append(values, quantize(float64(math.Float32frombits(binary.LittleEndian.Uint32(scores[off:])))))
		}
	}
	return values, nil
}

// raster encodes the stitched buffer on the given grid
func (s *stitcher) raster(grid *image) (Raster, error) {
	out := grid.like()
	out.width, out.height = s.width, s.height
	out.dtype = godal.Byte
	out.nodata, out.hasNoData = 0, true
	data := make([]float64, len(s.buf))
	for i, v := range s.buf {
		data[i] = float64(v)
	}
	out.data = [][]float64{data}
	return out.raster([]int{1}, Padding{})
}
