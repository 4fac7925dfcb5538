package debrismap

import (
	"context"
	"fmt"
)

// Pad grows a raster with a zero border so that both dimensions become
// multiples of a divisor, adding at least a minimal margin
type Pad struct {
	padding, divisor int
}

func NewPad(padding, divisor int) (Pad, error) {
	if padding < 0 {
		return Pad{}, ErrInvalidOption{"padding must be >=0"}
	}
	if divisor <= 0 {
		return Pad{}, ErrInvalidOption{"divisor must be >=1"}
	}
	return Pad{padding: padding, divisor: divisor}, nil
}

// extraPadding is the smallest width >= padding making size+width a multiple
// of divisor
func extraPadding(size, padding, divisor int) int {
	extra := padding
	for (size+extra)%divisor != 0 {
		extra++
	}
	return extra
}

// splitPadding splits a border width in a ceil leading half and a floor
// trailing half
func splitPadding(total int) (int, int) {
	return total - total/2, total / 2
}

func symmetricPadding(dh, dw int) Padding {
	top, bottom := splitPadding(dh)
	left, right := splitPadding(dw)
	return Padding{Top: top, Left: left, Bottom: bottom, Right: right}
}

func (p Pad) Execute(_ context.Context, r Raster) (Raster, error) {
	img, err := decodeChecked(r)
	if err != nil {
		return Raster{}, fmt.Errorf("pad: %w", err)
	}
	padding := symmetricPadding(
		extraPadding(img.height, p.padding, p.divisor),
		extraPadding(img.width, p.padding, p.divisor))
	return img.pad(padding).raster(r.Bands, r.Padding.add(padding))
}

// Unpad removes the border recorded by previous Pad operations
type Unpad struct{}

func (Unpad) Execute(_ context.Context, r Raster) (Raster, error) {
	if r.Padding.IsZero() {
		return r, nil
	}
	img, err := decodeChecked(r)
	if err != nil {
		return Raster{}, fmt.Errorf("unpad: %w", err)
	}
	p := r.Padding
	w := Window{
		Row:    p.Top,
		Col:    p.Left,
		Height: img.height - p.Top - p.Bottom,
		Width:  img.width - p.Left - p.Right,
	}
	if w.Height <= 0 || w.Width <= 0 {
		return Raster{}, fmt.Errorf("%w: padding %+v exceeds raster size %dx%d", ErrContract,
			p, img.width, img.height)
	}
	return img.crop(w).raster(r.Bands, Padding{})
}
