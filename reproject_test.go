package debrismap

import (
	"context"
	"errors"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReproject(t *testing.T) {
	src := mustRaster(t, [][]float64{ramp(20, 20, func(r, c int) float64 { return float64(r + c) })}, 20, 20,
		WithDataType(godal.Byte), WithGeoTransform(utm), WithEPSG(32630), WithPadding(Padding{Top: 2, Left: 3}))
	rp, err := NewReproject(4326, Resampling("bilinear"))
	require.NoError(t, err)
	out, err := rp.Execute(context.Background(), src)
	require.NoError(t, err)
	require.NoError(t, out.Validate())

	assert.Equal(t, 4326, out.CRS)
	assert.Equal(t, []int{1}, out.Bands)
	assert.Equal(t, src.Padding, out.Padding)
	assert.Equal(t, godal.Byte, out.DataType())
	// easting 500000 is the central meridian of utm zone 30
	b := out.Bound()
	assert.InDelta(t, -3, b.Min[0], 1e-3)
	assert.InDelta(t, 36.14, b.Max[1], 0.01)
	assert.Less(t, b.Max[1]-b.Min[1], 0.01)
}

func TestReprojectBands(t *testing.T) {
	src := mustRaster(t, [][]float64{constant(100, 3), constant(100, 7)}, 10, 10,
		WithDataType(godal.Byte), WithGeoTransform(utm), WithEPSG(32630))
	rp, err := NewReproject(32630, ReprojectBands(2), WarpSwitches("-tr 10 10"))
	require.NoError(t, err)
	out, err := rp.Execute(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, out.Bands)
	a := mustArray(t, out)
	require.Len(t, a, 1)
	assert.Contains(t, a[0], 7.0)
	for _, v := range a[0] {
		assert.Contains(t, []float64{0, 7}, v)
	}

	rp, _ = NewReproject(32630, ReprojectBands(5))
	_, err = rp.Execute(context.Background(), src)
	assert.Error(t, err)
}

func TestReprojectOptions(t *testing.T) {
	var ierr ErrInvalidOption
	_, err := NewReproject(0)
	assert.True(t, errors.As(err, &ierr))
	_, err = NewReproject(4326, Resampling("gauss"))
	assert.True(t, errors.As(err, &ierr))
	_, err = NewReproject(4326, WarpSwitches("-of COG"))
	assert.True(t, errors.As(err, &ierr))
	_, err = NewReproject(4326, WarpSwitches("-t_srs epsg:3857"))
	assert.True(t, errors.As(err, &ierr))
	_, err = NewReproject(4326, WarpSwitches(`-wo "unbalanced`))
	assert.True(t, errors.As(err, &ierr))
	_, err = NewReproject(4326, ReprojectBands(0))
	assert.True(t, errors.As(err, &ierr))
	_, err = NewReproject(4326, Resampling("nearest"), WarpSwitches("-tr 10 10 -tap"))
	assert.NoError(t, err)
}
