package debrismap

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// Inference runs a predictor on a single tile, as a step of a split/merge
// pipeline. The tile is sent as is: band selection and padding are up to the
// preceding steps. The result is a single band uint8 raster of byte-scaled
// scores carrying the tile's grid and padding record, so that Unpad can be
// applied to it directly.
type Inference struct {
	predictor Predictor
	logger    *zap.Logger
}

func NewInference(predictor Predictor, opts ...Option) (Inference, error) {
	if predictor == nil {
		return Inference{}, ErrInvalidOption{"predictor is required"}
	}
	o := newOpOptions(opts)
	return Inference{predictor: predictor, logger: o.logger}, nil
}

func (in Inference) Execute(ctx context.Context, r Raster) (Raster, error) {
	scores, err := in.predictor.Predict(ctx, r.Content)
	if err != nil {
		return Raster{}, fmt.Errorf("predict: %w", err)
	}
	values, err := unpadScores(scores, r.Size, Padding{}, r.Size)
	if err != nil {
		return Raster{}, err
	}
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	img := &image{
		width:     r.Size.Width,
		height:    r.Size.Height,
		dtype:     godal.Byte,
		transform: r.transform,
		epsg:      r.CRS,
		hasNoData: true,
		data:      [][]float64{data},
	}
	in.logger.Debug("tile predicted", zap.Int("height", r.Size.Height), zap.Int("width", r.Size.Width))
	return img.raster([]int{1}, r.Padding)
}
