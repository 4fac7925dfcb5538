package debrismap

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// MergeMethod selects how overlapping tiles are resolved by Merge
type MergeMethod string

const (
	// MergeFirst keeps the first valid value, in input order
	MergeFirst MergeMethod = "first"
	// MergeLast keeps the last valid value, in input order
	MergeLast MergeMethod = "last"
	MergeMin  MergeMethod = "min"
	MergeMax  MergeMethod = "max"
	// MergeMean averages the valid values
	MergeMean MergeMethod = "mean"
	// MergeBlend feathers each tile into the previous ones exactly as the
	// Engine does. Tiles must be uint8 and be given in grid order.
	MergeBlend MergeMethod = "blend"
)

// Merge mosaics aligned tiles sharing CRS and resolution into the smallest
// raster covering them all
type Merge struct {
	method MergeMethod
	nodata float64
	bands  []int
	offset int
	logger *zap.Logger
}

type MergeOption interface {
	setMergeOpt(m *Merge) error
}

type mergeOpt func(m *Merge) error

func (mo mergeOpt) setMergeOpt(m *Merge) error {
	return mo(m)
}

// Method sets the overlap rule. Defaults to MergeFirst.
func Method(method MergeMethod) MergeOption {
	return mergeOpt(func(m *Merge) error {
		switch method {
		case MergeFirst, MergeLast, MergeMin, MergeMax, MergeMean, MergeBlend:
			m.method = method
			return nil
		}
		return ErrInvalidOption{fmt.Sprintf("unknown merge method %q", method)}
	})
}

// MergeNoData sets the value marking invalid input pixels, also used to fill
// output pixels no tile covers. Defaults to 0.
func MergeNoData(nodata float64) MergeOption {
	return mergeOpt(func(m *Merge) error {
		m.nodata = nodata
		return nil
	})
}

// MergeBands restricts the mosaic to the given band labels
func MergeBands(bands ...int) MergeOption {
	return mergeOpt(func(m *Merge) error {
		for _, b := range bands {
			if b <= 0 {
				return ErrInvalidOption{"band index is 1-based"}
			}
		}
		m.bands = bands
		return nil
	})
}

// BlendOffset is the tile overlap margin used to size the MergeBlend
// feathering, i.e. the Split offset. Defaults to 64, like the Engine.
func BlendOffset(offset int) MergeOption {
	return mergeOpt(func(m *Merge) error {
		if offset < 0 {
			return ErrInvalidOption{"offset must be >=0"}
		}
		m.offset = offset
		return nil
	})
}

func NewMerge(opts ...MergeOption) (Merge, error) {
	m := Merge{
		method: MergeFirst,
		offset: 64,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		if err := o.setMergeOpt(&m); err != nil {
			return Merge{}, err
		}
	}
	if m.method == MergeBlend && m.nodata != 0 {
		return Merge{}, ErrInvalidOption{"blend merging uses 0 as nodata"}
	}
	return m, nil
}

// mosaic is the output grid of a merge and the placement of every tile on it
type mosaic struct {
	width, height int
	transform     [6]float64
	origins       []Window
	positions     [][]int
}

func (m Merge) layout(tiles []Raster, bands []int) (mosaic, error) {
	ref := tiles[0]
	gt := ref.transform
	if gt[2] != 0 || gt[4] != 0 || gt[1] <= 0 || gt[5] >= 0 {
		return mosaic{}, fmt.Errorf("%w: only north-up grids can be merged, got %v", ErrContract, gt)
	}
	minx, maxy := math.Inf(1), math.Inf(-1)
	maxx, miny := math.Inf(-1), math.Inf(1)
	for i, t := range tiles {
		if t.CRS != ref.CRS {
			return mosaic{}, fmt.Errorf("%w: tile %d is epsg:%d, expecting epsg:%d", ErrContract, i, t.CRS, ref.CRS)
		}
		tg := t.transform
		if !closeTo(tg[1], gt[1]) || !closeTo(tg[5], gt[5]) || tg[2] != 0 || tg[4] != 0 {
			return mosaic{}, fmt.Errorf("%w: tile %d resolution %gx%g, expecting %gx%g", ErrContract,
				i, tg[1], tg[5], gt[1], gt[5])
		}
		b := t.Bound()
		minx, miny = math.Min(minx, b.Min[0]), math.Min(miny, b.Min[1])
		maxx, maxy = math.Max(maxx, b.Max[0]), math.Max(maxy, b.Max[1])
	}
	mo := mosaic{
		width:     int(math.Round((maxx - minx) / gt[1])),
		height:    int(math.Round((maxy - miny) / -gt[5])),
		transform: [6]float64{minx, gt[1], 0, maxy, 0, gt[5]},
		origins:   make([]Window, len(tiles)),
		positions: make([][]int, len(tiles)),
	}
	for i, t := range tiles {
		col, okc := gridOffset(t.transform[0]-minx, gt[1])
		row, okr := gridOffset(t.transform[3]-maxy, gt[5])
		if !okc || !okr {
			return mosaic{}, fmt.Errorf("%w: tile %d is not aligned on the mosaic grid", ErrContract, i)
		}
		mo.origins[i] = Window{Row: row, Col: col, Height: t.Size.Height, Width: t.Size.Width}
		mo.positions[i] = make([]int, len(bands))
		for j, b := range bands {
			if mo.positions[i][j] = indexOf(t.Bands, b); mo.positions[i][j] < 0 {
				return mosaic{}, fmt.Errorf("%w: tile %d has no band %d", ErrContract, i, b)
			}
		}
	}
	return mo, nil
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func gridOffset(distance, step float64) (int, bool) {
	f := distance / step
	n := math.Round(f)
	return int(n), math.Abs(f-n) <= 1e-6
}

// Merge reads all tiles, lays out the mosaic from their metadata and then
// decodes and composites them one at a time, in input order
func (m Merge) Merge(rr RasterReader) (Raster, error) {
	tiles, err := ReadRasters(rr)
	if err != nil {
		return Raster{}, err
	}
	if len(tiles) == 0 {
		return Raster{}, fmt.Errorf("merge: no tiles")
	}
	bands := m.bands
	if len(bands) == 0 {
		bands = tiles[0].Bands
	}
	mo, err := m.layout(tiles, bands)
	if err != nil {
		return Raster{}, err
	}
	m.logger.Debug("merging tiles", zap.Int("tiles", len(tiles)), zap.String("method", string(m.method)),
		zap.Int("width", mo.width), zap.Int("height", mo.height))

	out := &image{
		width:     mo.width,
		height:    mo.height,
		dtype:     tiles[0].dtype,
		transform: mo.transform,
		epsg:      tiles[0].CRS,
		nodata:    m.nodata,
		hasNoData: true,
	}
	if m.method == MergeBlend {
		out.data, err = m.blend(tiles, mo)
	} else {
		out.data, err = m.composite(tiles, mo)
	}
	if err != nil {
		return Raster{}, err
	}
	return out.raster(bands, Padding{})
}

func (m Merge) valid(v float64) bool {
	return v == v && v != m.nodata
}

func (m Merge) composite(tiles []Raster, mo mosaic) ([][]float64, error) {
	nb := len(mo.positions[0])
	data := make([][]float64, nb)
	counts := make([][]int32, nb)
	for b := range data {
		data[b] = make([]float64, mo.width*mo.height)
		counts[b] = make([]int32, mo.width*mo.height)
	}
	for i, t := range tiles {
		img, err := decode(t.Content)
		if err != nil {
			return nil, fmt.Errorf("merge tile %d: %w", i, err)
		}
		o := mo.origins[i]
		for b, pos := range mo.positions[i] {
			src := img.data[pos]
			for r := 0; r < o.Height; r++ {
				for c := 0; c < o.Width; c++ {
					v := src[r*o.Width+c]
					if !m.valid(v) {
						continue
					}
					idx := (o.Row+r)*mo.width + o.Col + c
					m.accumulate(data[b], counts[b], idx, v)
				}
			}
		}
	}
	dtype := tiles[0].dtype
	for b := range data {
		for idx, n := range counts[b] {
			switch {
			case n == 0:
				data[b][idx] = m.nodata
			case m.method == MergeMean:
				mean := data[b][idx] / float64(n)
				if isInteger(dtype) {
					mean = math.RoundToEven(mean)
				}
				data[b][idx] = castValue(mean, dtype)
			}
		}
	}
	return data, nil
}

func (m Merge) accumulate(data []float64, counts []int32, idx int, v float64) {
	n := counts[idx]
	counts[idx]++
	if n == 0 {
		data[idx] = v
		return
	}
	switch m.method {
	case MergeLast:
		data[idx] = v
	case MergeMin:
		data[idx] = math.Min(data[idx], v)
	case MergeMax:
		data[idx] = math.Max(data[idx], v)
	case MergeMean:
		data[idx] += v
	}
}

func (m Merge) blend(tiles []Raster, mo mosaic) ([][]float64, error) {
	nb := len(mo.positions[0])
	stitchers := make([]*stitcher, nb)
	for b := range stitchers {
		stitchers[b] = newStitcher(mo.height, mo.width, m.offset)
	}
	for i, t := range tiles {
		if t.dtype != godal.Byte {
			return nil, fmt.Errorf("%w: blend merging needs uint8 tiles, tile %d is %s", ErrUnsupportedDataType,
				i, DataTypeName(t.dtype))
		}
		img, err := decode(t.Content)
		if err != nil {
			return nil, fmt.Errorf("merge tile %d: %w", i, err)
		}
		for b, pos := range mo.positions[i] {
			values := make([]uint8, len(img.data[pos]))
			for j, v := range img.data[pos] {
				values[j] = uint8(v)
			}
			if err := stitchers[b].add(mo.origins[i], values); err != nil {
				return nil, fmt.Errorf("merge tile %d: %w", i, err)
			}
		}
	}
	data := make([][]float64, nb)
	for b, st := range stitchers {
		data[b] = make([]float64, len(st.buf))
		for j, v := range st.buf {
			data[b][j] = float64(v)
		}
	}
	return data, nil
}
