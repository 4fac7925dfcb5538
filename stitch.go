package debrismap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// quantize scales a [0,1] score to a byte, truncating like a numpy uint8 cast
func quantize(score float64) uint8 {
	v := float32(score) * 255
	switch {
	case v != v || v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

// A stitcher accumulates window predictions into a single scene-sized byte
// buffer. Windows written over already written pixels are feathered in with
// a weight derived from the smoothed boundary of the written area, so that
// successive windows meet without a visible seam. Windows must be added in a
// fixed order for the result to be reproducible.
type stitcher struct {
	width, height int
	sigma         float64
	buf           []uint8
}

func newStitcher(height, width, offset int) *stitcher {
	return &stitcher{
		width:  width,
		height: height,
		sigma:  float64(offset) / 2,
		buf:    make([]uint8, width*height),
	}
}

func (s *stitcher) add(w Window, values []uint8) error {
	if w.Row < 0 || w.Col < 0 || w.Row+w.Height > s.height || w.Col+w.Width > s.width {
		return fmt.Errorf("%w: window %+v outside %dx%d buffer", ErrContract, w, s.width, s.height)
	}
	if len(values) != w.Width*w.Height {
		return fmt.Errorf("%w: %d values for a %dx%d window", ErrContract, len(values), w.Width, w.Height)
	}
	old := make([]uint8, len(values))
	written := make([]float64, len(values))
	overlap := false
	for r := 0; r < w.Height; r++ {
		copy(old[r*w.Width:(r+1)*w.Width], s.buf[(w.Row+r)*s.width+w.Col:])
	}
	for i, v := range old {
		if v > 0 {
			written[i] = 1
			overlap = true
		}
	}
	blended := values
	if overlap {
		blended = blend(old, values, written, w.Height, w.Width, s.sigma)
	}
	for r := 0; r < w.Height; r++ {
		copy(s.buf[(w.Row+r)*s.width+w.Col:], blended[r*w.Width:(r+1)*w.Width])
	}
	return nil
}

// blend mixes new values into old ones. The new window weighs t, the old
// content 1-t, where t is 1 outside the written area and, inside it, the
// smoothed written/unwritten boundary normalised to [0,1]. Without any
// boundary in the window the old content is kept untouched.
func blend(old, values []uint8, written []float64, height, width int, sigma float64) []uint8 {
	transition := gaussianFilter(gradientMagnitude(written, height, width), height, width, sigma)
	peak := floats.Max(transition)
	out := make([]uint8, len(values))
	for i := range values {
		switch {
		case written[i] == 0:
			out[i] = values[i]
		case peak <= 0:
			out[i] = old[i]
		default:
			out[i] = mix(old[i], values[i], transition[i]/peak)
		}
	}
	return out
}

func mix(old, value uint8, t float64) uint8 {
	switch {
	case t >= 1:
		return value
	case t <= 0 || math.IsNaN(t):
		return old
	}
	return quantize(t*float64(value)/255 + (1-t)*float64(old)/255)
}
