package debrismap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtraPadding(t *testing.T) {
	cases := [][]int{
		// size, padding, divisor, expected
		{512, 0, 32, 0},
		{500, 0, 32, 12},
		{500, 10, 32, 12},
		{512, 1, 32, 32},
		{96, 0, 576, 480},
		{7, 3, 1, 3},
	}
	for _, c := range cases {
		assert.Equal(t, c[3], extraPadding(c[0], c[1], c[2]), "%v", c)
	}
	for total, want := range [][2]int{{0, 0}, {1, 0}, {1, 1}, {2, 1}, {2, 2}, {3, 2}} {
		lead, trail := splitPadding(total)
		assert.Equal(t, want, [2]int{lead, trail}, "total %d", total)
	}
}

func TestPadUnpad(t *testing.T) {
	ctx := context.Background()
	band := ramp(5, 3, func(r, c int) float64 { return float64(1 + 10*r + c) })
	src := mustRaster(t, [][]float64{band, constant(15, 7)}, 5, 3,
		WithGeoTransform(utm), WithEPSG(32630))

	pad, err := NewPad(0, 4)
	require.NoError(t, err)
	padded, err := pad.Execute(ctx, src)
	require.NoError(t, err)
	require.NoError(t, padded.Validate())

	// 3 -> 4 rows, 5 -> 8 columns; odd totals leave the extra pixel on top/left
	assert.Equal(t, HeightWidth{4, 8}, padded.Size)
	assert.Equal(t, Padding{Top: 1, Left: 2, Bottom: 0, Right: 1}, padded.Padding)
	assert.Equal(t, HeightWidth{1, 2}, padded.PaddingSize())
	gt := padded.GeoTransform()
	assert.Equal(t, 500000-2*10.0, gt[0])
	assert.Equal(t, 4000000+1*10.0, gt[3])
	a := mustArray(t, padded)
	assert.Equal(t, 0.0, a[0][0])
	assert.Equal(t, 1.0, a[0][1*8+2])
	assert.Equal(t, 25.0, a[0][3*8+6])
	assert.Equal(t, 0.0, a[0][3*8+7])

	unpadded, err := Unpad{}.Execute(ctx, padded)
	require.NoError(t, err)
	assert.Equal(t, src.Size, unpadded.Size)
	assert.Equal(t, src.GeoTransform(), unpadded.GeoTransform())
	assert.Equal(t, src.Geometry, unpadded.Geometry)
	assert.True(t, unpadded.Padding.IsZero())
	assert.Equal(t, mustArray(t, src), mustArray(t, unpadded))
}

func TestPadAccumulates(t *testing.T) {
	ctx := context.Background()
	src := mustRaster(t, [][]float64{constant(12, 3)}, 4, 3)
	p1, _ := NewPad(1, 1)
	p2, _ := NewPad(0, 8)

	once, err := p1.Execute(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, Padding{Top: 1, Left: 1}, once.Padding)
	twice, err := p2.Execute(ctx, once)
	require.NoError(t, err)
	// 4x5 -> 8x8
	assert.Equal(t, HeightWidth{8, 8}, twice.Size)
	assert.Equal(t, Padding{Top: 3, Left: 3, Bottom: 2, Right: 1}, twice.Padding)

	back, err := Unpad{}.Execute(ctx, twice)
	require.NoError(t, err)
	assert.Equal(t, mustArray(t, src), mustArray(t, back))
	assert.Equal(t, src.Geometry, back.Geometry)
}

func TestUnpad(t *testing.T) {
	ctx := context.Background()
	src := mustRaster(t, [][]float64{constant(6, 1)}, 3, 2)
	same, err := Unpad{}.Execute(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, src, same)

	bad := mustRaster(t, [][]float64{constant(6, 1)}, 3, 2, WithPadding(Padding{Top: 1, Bottom: 1}))
	_, err = Unpad{}.Execute(ctx, bad)
	assert.ErrorIs(t, err, ErrContract)
}

func TestNewPadErrors(t *testing.T) {
	var ierr ErrInvalidOption
	_, err := NewPad(-1, 4)
	assert.True(t, errors.As(err, &ierr))
	_, err = NewPad(0, 0)
	assert.True(t, errors.As(err, &ierr))
}
