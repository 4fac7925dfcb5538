package debrismap

import (
	"fmt"
	"io"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"go.uber.org/zap"
)

// A Vector is a feature extracted from a raster band: a point at a pixel
// center or a polygon around a region of equal pixels, with its value
type Vector struct {
	Geometry   orb.Geometry
	PixelValue int64
	CRS        int
}

// A Vectorizer turns a raster into a lazy sequence of vectors
type Vectorizer interface {
	Vectorize(r Raster) (VectorReader, error)
}

// PointVectorizer emits one point per pixel strictly above a threshold
type PointVectorizer struct {
	band      int
	threshold int
	logger    *zap.Logger
}

func NewPointVectorizer(band, threshold int, opts ...Option) (PointVectorizer, error) {
	if band <= 0 {
		return PointVectorizer{}, ErrInvalidOption{"band index is 1-based"}
	}
	o := newOpOptions(opts)
	return PointVectorizer{band: band, threshold: threshold, logger: o.logger}, nil
}

func bandPosition(r Raster, band int) (int, error) {
	pos := indexOf(r.Bands, band)
	if pos < 0 {
		return 0, ErrInvalidOption{fmt.Sprintf("band %d not in %v", band, r.Bands)}
	}
	return pos, nil
}

func (pv PointVectorizer) Vectorize(r Raster) (VectorReader, error) {
	pos, err := bandPosition(r, pv.band)
	if err != nil {
		return nil, err
	}
	img, err := decode(r.Content)
	if err != nil {
		return nil, fmt.Errorf("vectorize: %w", err)
	}
	return &pointReader{
		values:    img.data[pos],
		width:     img.width,
		transform: img.transform,
		crs:       img.epsg,
		threshold: float64(pv.threshold),
		round:     !isInteger(img.dtype),
	}, nil
}

type pointReader struct {
	values    []float64
	width     int
	transform [6]float64
	crs       int
	threshold float64
	round     bool
	i         int
}

func (pr *pointReader) Next() (Vector, error) {
	for pr.i < len(pr.values) {
		i := pr.i
		pr.i++
		v := pr.values[i]
		if !(v > pr.threshold) {
			continue
		}
		if pr.round {
			v = math.RoundToEven(v)
		}
		col, row := float64(i%pr.width)+0.5, float64(i/pr.width)+0.5
		gt := pr.transform
		return Vector{
			Geometry:   orb.Point{gt[0] + col*gt[1] + row*gt[2], gt[3] + col*gt[4] + row*gt[5]},
			PixelValue: int64(v),
			CRS:        pr.crs,
		}, nil
	}
	pr.values = nil
	return Vector{}, io.EOF
}

func (pr *pointReader) Close() error {
	pr.values = nil
	return nil
}

// PolygonVectorizer emits one polygon per connected region of pixels strictly
// above a threshold, carrying the region's value. Only integer bands are
// accepted.
type PolygonVectorizer struct {
	band      int
	threshold int
	logger    *zap.Logger
}

func NewPolygonVectorizer(band, threshold int, opts ...Option) (PolygonVectorizer, error) {
	if band <= 0 {
		return PolygonVectorizer{}, ErrInvalidOption{"band index is 1-based"}
	}
	o := newOpOptions(opts)
	return PolygonVectorizer{band: band, threshold: threshold, logger: o.logger}, nil
}

const pixelValueField = "pixel_value"

// Vectorize polygonizes the band into an in-memory layer. A non integer band
// is rejected here, before any vector is produced.
func (pv PolygonVectorizer) Vectorize(r Raster) (VectorReader, error) {
	if !isInteger(r.dtype) {
		return nil, fmt.Errorf("%w: %s", ErrNotInteger, DataTypeName(r.dtype))
	}
	pos, err := bandPosition(r, pv.band)
	if err != nil {
		return nil, err
	}
	img, err := decode(r.Content)
	if err != nil {
		return nil, fmt.Errorf("vectorize: %w", err)
	}
	src, err := godal.Create(godal.Memory, "", 2, img.dtype, img.width, img.height)
	if err != nil {
		return nil, fmt.Errorf("create mem raster: %w", err)
	}
	defer src.Close()
	mask := make([]float64, len(img.data[pos]))
	for i, v := range img.data[pos] {
		if v > float64(pv.threshold) {
			mask[i] = 1
		}
	}
	bands := src.Bands()
	if err := bands[0].Write(0, 0, img.data[pos], img.width, img.height); err != nil {
		return nil, fmt.Errorf("write values: %w", err)
	}
	if err := bands[1].Write(0, 0, mask, img.width, img.height); err != nil {
		return nil, fmt.Errorf("write mask: %w", err)
	}
	if err := src.SetGeoTransform(img.transform); err != nil {
		return nil, fmt.Errorf("set geotransform: %w", err)
	}

	dst, err := godal.CreateVector(godal.Memory, "")
	if err != nil {
		return nil, fmt.Errorf("create mem vector: %w", err)
	}
	layer, err := dst.CreateLayer("vectors", nil, godal.GTPolygon,
		godal.NewFieldDefinition(pixelValueField, godal.FTInt))
	if err != nil {
		_ = dst.Close()
		return nil, fmt.Errorf("create layer: %w", err)
	}
	if err := bands[0].Polygonize(layer, godal.Mask(bands[1]), godal.PixelValueFieldIndex(0)); err != nil {
		_ = dst.Close()
		return nil, fmt.Errorf("polygonize: %w", err)
	}
	pv.logger.Debug("band polygonized", zap.Int("band", pv.band), zap.Int("threshold", pv.threshold))
	layer.ResetReading()
	return &polygonReader{ds: dst, layer: layer, crs: img.epsg}, nil
}

type polygonReader struct {
	ds    *godal.Dataset
	layer godal.Layer
	crs   int
}

func (pr *polygonReader) Next() (Vector, error) {
	if pr.ds == nil {
		return Vector{}, io.EOF
	}
	feat := pr.layer.NextFeature()
	if feat == nil {
		if err := pr.Close(); err != nil {
			return Vector{}, fmt.Errorf("close layer: %w", err)
		}
		return Vector{}, io.EOF
	}
	defer feat.Close()
	raw, err := feat.Geometry().WKB()
	if err != nil {
		return Vector{}, fmt.Errorf("feature wkb: %w", err)
	}
	geom, err := wkb.Unmarshal(raw)
	if err != nil {
		return Vector{}, fmt.Errorf("decode wkb: %w", err)
	}
	return Vector{
		Geometry:   geom,
		PixelValue: feat.Fields()[pixelValueField].Int(),
		CRS:        pr.crs,
	}, nil
}

func (pr *polygonReader) Close() error {
	if pr.ds == nil {
		return nil
	}
	err := pr.ds.Close()
	pr.ds = nil
	return err
}
