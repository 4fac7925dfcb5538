package debrismap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BandRemove drops one band, identified by its 1-based label in Raster.Bands
type BandRemove struct {
	band   int
	logger *zap.Logger
}

func NewBandRemove(band int, opts ...Option) (BandRemove, error) {
	if band <= 0 {
		return BandRemove{}, ErrInvalidOption{"band index is 1-based"}
	}
	o := newOpOptions(opts)
	return BandRemove{band: band, logger: o.logger}, nil
}

// Execute returns r unchanged when it does not carry the band
func (b BandRemove) Execute(_ context.Context, r Raster) (Raster, error) {
	pos := indexOf(r.Bands, b.band)
	if pos < 0 {
		b.logger.Warn("band not present, nothing removed",
			zap.Int("band", b.band), zap.Ints("bands", r.Bands))
		return r, nil
	}
	if len(r.Bands) == 1 {
		return Raster{}, fmt.Errorf("remove band %d: raster would have no band left", b.band)
	}
	img, err := decode(r.Content)
	if err != nil {
		return Raster{}, fmt.Errorf("band remove: %w", err)
	}
	out := img.like()
	out.data = make([][]float64, 0, len(img.data)-1)
	bands := make([]int, 0, len(r.Bands)-1)
	for i := range img.data {
		if i == pos {
			continue
		}
		out.data = append(out.data, img.data[i])
		bands = append(bands, r.Bands[i])
	}
	return out.raster(bands, r.Padding)
}
