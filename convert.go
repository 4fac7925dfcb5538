package debrismap

import (
	"context"
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// DtypeConvert casts a raster to another pixel type, by default after
// linearly stretching its values over the natural range of the target type
type DtypeConvert struct {
	target godal.DataType
	scale  bool
	logger *zap.Logger
}

type DtypeOption interface {
	setDtypeOpt(d *DtypeConvert)
}

type dtypeOpt func(d *DtypeConvert)

func (do dtypeOpt) setDtypeOpt(d *DtypeConvert) {
	do(d)
}

// Scale toggles the min/max stretch. Without it values are only cast, i.e.
// truncated and clamped for integer targets. Defaults to true.
func Scale(scale bool) DtypeOption {
	return dtypeOpt(func(d *DtypeConvert) {
		d.scale = scale
	})
}

// NewDtypeConvert fails with ErrUnsupportedDataType when name is not one of
// the integer or floating point types
func NewDtypeConvert(name string, opts ...DtypeOption) (DtypeConvert, error) {
	dt, err := ParseDataType(name)
	if err != nil {
		return DtypeConvert{}, err
	}
	d := DtypeConvert{target: dt, scale: true, logger: zap.NewNop()}
	for _, o := range opts {
		o.setDtypeOpt(&d)
	}
	return d, nil
}

func (d DtypeConvert) Execute(_ context.Context, r Raster) (Raster, error) {
	if r.dtype == d.target {
		d.logger.Warn("raster already at target type, not converted", zap.String("dtype", DataTypeName(d.target)))
		return r, nil
	}
	img, err := decode(r.Content)
	if err != nil {
		return Raster{}, fmt.Errorf("dtype convert: %w", err)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, band := range img.data {
		if len(band) == 0 {
			continue
		}
		lo = math.Min(lo, floats.Min(band))
		hi = math.Max(hi, floats.Max(band))
	}
	tmin, tmax := valueRange(d.target)
	out := img.like()
	out.dtype = d.target
	if out.hasNoData && !representable(out.nodata, d.target) {
		out.hasNoData, out.nodata = false, 0
	}
	out.data = make([][]float64, len(img.data))
	for b, band := range img.data {
		dst := make([]float64, len(band))
		for i, v := range band {
			switch {
			case !d.scale:
			case hi > lo:
				v = (v-lo)/(hi-lo)*(tmax-tmin) + tmin
			default:
				v = tmin
			}
			dst[i] = castValue(v, d.target)
		}
		out.data[b] = dst
	}
	return out.raster(r.Bands, r.Padding)
}
