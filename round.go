package debrismap

import (
	"context"
	"fmt"
	"math"
)

// Round snaps every pixel to the nearest multiple of a step, ties to even
type Round struct {
	step float64
}

func NewRound(step int) (Round, error) {
	if step <= 0 {
		return Round{}, ErrInvalidOption{"rounding step must be >=1"}
	}
	return Round{step: float64(step)}, nil
}

func (rd Round) Execute(_ context.Context, r Raster) (Raster, error) {
	img, err := decode(r.Content)
	if err != nil {
		return Raster{}, fmt.Errorf("round: %w", err)
	}
	out := img.like()
	out.data = make([][]float64, len(img.data))
	for b, band := range img.data {
		dst := make([]float64, len(band))
		for i, v := range band {
			if img.hasNoData && v == img.nodata {
				dst[i] = v
				continue
			}
			dst[i] = castValue(math.RoundToEven(v/rd.step)*rd.step, img.dtype)
		}
		out.data[b] = dst
	}
	return out.raster(r.Bands, r.Padding)
}
