package debrismap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRaster(t *testing.T) {
	band := []float64{0, 1, 2, 300, -5, 2.7}
	r := mustRaster(t, [][]float64{band, band}, 3, 2,
		WithDataType(godal.Byte), WithGeoTransform(utm), WithEPSG(32630), WithNoData(0))

	assert.Equal(t, HeightWidth{2, 3}, r.Size)
	assert.Equal(t, 32630, r.CRS)
	assert.Equal(t, []int{1, 2}, r.Bands)
	assert.Equal(t, 10.0, r.Resolution)
	assert.Equal(t, godal.Byte, r.DataType())
	assert.Equal(t, utm, r.GeoTransform())
	assert.True(t, r.Padding.IsZero())
	nd, ok := r.NoData()
	assert.True(t, ok)
	assert.Equal(t, 0.0, nd)
	assert.Equal(t, orb.Bound{Min: orb.Point{500000, 3999980}, Max: orb.Point{500030, 4000000}}, r.Bound())
	require.NoError(t, r.Validate())

	a := mustArray(t, r)
	assert.Equal(t, [][]float64{{0, 1, 2, 255, 0, 2}, {0, 1, 2, 255, 0, 2}}, a)

	d, err := DecodeRaster(r.Content)
	require.NoError(t, err)
	assert.Equal(t, r.Size, d.Size)
	assert.Equal(t, r.CRS, d.CRS)
	assert.Equal(t, r.Bands, d.Bands)
	assert.Equal(t, r.Geometry, d.Geometry)
	assert.Equal(t, r.GeoTransform(), d.GeoTransform())
}

func TestNewRasterDefaults(t *testing.T) {
	r := mustRaster(t, [][]float64{{0.25, 0.5}}, 2, 1)
	assert.Equal(t, godal.Float32, r.DataType())
	assert.Equal(t, 4326, r.CRS)
	_, ok := r.NoData()
	assert.False(t, ok)
	assert.Equal(t, [][]float64{{0.25, 0.5}}, mustArray(t, r))
}

func TestNewRasterErrors(t *testing.T) {
	_, err := NewRaster([][]float64{{1, 2, 3}}, 2, 2)
	assert.Error(t, err)
	_, err = NewRaster(nil, 2, 2)
	assert.Error(t, err)
	_, err = NewRaster([][]float64{{}}, 0, 2)
	assert.Error(t, err)
	_, err = NewRaster([][]float64{{1}}, 1, 1, WithBandLabels(1, 2))
	assert.ErrorIs(t, err, ErrContract)
	_, err = NewRaster([][]float64{{1}}, 1, 1, WithPadding(Padding{Top: -1}))
	var ierr ErrInvalidOption
	assert.True(t, errors.As(err, &ierr))
}

func TestValidate(t *testing.T) {
	r := mustRaster(t, [][]float64{ramp(4, 3, func(r, c int) float64 { return float64(r + c) })}, 4, 3,
		WithGeoTransform(utm), WithEPSG(32630))
	require.NoError(t, r.Validate())

	tampered := r
	tampered.Size.Width++
	assert.ErrorIs(t, tampered.Validate(), ErrContract)

	tampered = r
	tampered.CRS = 3857
	assert.ErrorIs(t, tampered.Validate(), ErrContract)

	tampered = r
	tampered.Bands = []int{1, 2}
	assert.ErrorIs(t, tampered.Validate(), ErrContract)

	tampered = r
	tampered.Geometry = footprint([6]float64{0, 10, 0, 0, 0, -10}, 4, 3)
	assert.ErrorIs(t, tampered.Validate(), ErrContract)

	tampered = r
	tampered.Content = []byte("not a tiff")
	assert.Error(t, tampered.Validate())
}

func TestInspectGeoTags(t *testing.T) {
	for _, epsg := range []int{4326, 32630, 3857} {
		gt := utm
		if epsg == 4326 {
			gt = [6]float64{-5, 0.001, 0, 45, 0, -0.001}
		}
		r := mustRaster(t, [][]float64{{1, 2, 3, 4}}, 2, 2, WithGeoTransform(gt), WithEPSG(epsg))
		tags, err := inspect(r.Content)
		require.NoError(t, err)
		assert.Equal(t, epsg, tags.epsg())
		got, ok := tags.geoTransform()
		require.True(t, ok)
		for i := range gt {
			assert.InDelta(t, gt[i], got[i], 1e-9)
		}
		assert.EqualValues(t, 2, tags.ImageWidth)
		assert.EqualValues(t, 1, tags.SamplesPerPixel)
	}
}

func TestOpenRaster(t *testing.T) {
	r := mustRaster(t, [][]float64{{1, 2, 3, 4, 5, 6}, {6, 5, 4, 3, 2, 1}}, 3, 2,
		WithDataType(godal.UInt16), WithGeoTransform(utm), WithEPSG(32630))
	name := filepath.Join(t.TempDir(), "scene.tif")
	require.NoError(t, os.WriteFile(name, r.Content, 0o644))

	o, err := OpenRaster(name)
	require.NoError(t, err)
	assert.Equal(t, r.Size, o.Size)
	assert.Equal(t, r.CRS, o.CRS)
	assert.Equal(t, r.Bands, o.Bands)
	assert.Equal(t, godal.UInt16, o.DataType())
	assert.Equal(t, mustArray(t, r), mustArray(t, o))
	require.NoError(t, o.Validate())

	_, err = OpenRaster(filepath.Join(t.TempDir(), "missing.tif"))
	assert.Error(t, err)
}

func TestDataTypes(t *testing.T) {
	for _, name := range []string{"uint8", "byte", "uint16", "int16", "uint32", "int32", "float32", "float64"} {
		dt, err := ParseDataType(name)
		require.NoError(t, err, name)
		if name != "byte" {
			assert.Equal(t, name, DataTypeName(dt))
		}
	}
	for _, name := range []string{"int8", "complex64", "bool", ""} {
		_, err := ParseDataType(name)
		assert.ErrorIs(t, err, ErrUnsupportedDataType, name)
	}

	assert.Equal(t, 255.0, castValue(1e6, godal.Byte))
	assert.Equal(t, -32768.0, castValue(-1e6, godal.Int16))
	assert.Equal(t, -2.0, castValue(-2.9, godal.Int32))
	assert.Equal(t, 0.0, castValue(-0.5, godal.UInt16))
	assert.Equal(t, float64(float32(0.1)), castValue(0.1, godal.Float32))
	assert.Equal(t, 0.1, castValue(0.1, godal.Float64))

	assert.True(t, representable(0, godal.Byte))
	assert.False(t, representable(-9999, godal.Byte))
	assert.False(t, representable(1.5, godal.Int16))
	assert.True(t, representable(-9999, godal.Float32))
}
