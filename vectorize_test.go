package debrismap

import (
	"io"
	"sort"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointVectorizer(t *testing.T) {
	r := mustRaster(t, [][]float64{{0, 200, 0, 10, 0, 255}}, 3, 2, WithDataType(godal.Byte),
		WithGeoTransform(utm), WithEPSG(32630))
	pv, err := NewPointVectorizer(1, 100)
	require.NoError(t, err)
	vr, err := pv.Vectorize(r)
	require.NoError(t, err)
	vectors, err := ReadVectors(vr)
	require.NoError(t, err)
	assert.Equal(t, []Vector{
		{Geometry: orb.Point{500015, 3999995}, PixelValue: 200, CRS: 32630},
		{Geometry: orb.Point{500025, 3999985}, PixelValue: 255, CRS: 32630},
	}, vectors)

	// exhausted readers keep returning EOF
	_, err = vr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPointVectorizerFloat(t *testing.T) {
	r := mustRaster(t, [][]float64{{2.5, 3.5, -1, 0.2}}, 4, 1)
	pv, _ := NewPointVectorizer(1, 0)
	vr, err := pv.Vectorize(r)
	require.NoError(t, err)
	vectors, err := ReadVectors(vr)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, int64(2), vectors[0].PixelValue)
	assert.Equal(t, int64(4), vectors[1].PixelValue)
	assert.Equal(t, int64(0), vectors[2].PixelValue)
}

func TestPointVectorizerBands(t *testing.T) {
	r := mustRaster(t, [][]float64{{0, 0}, {0, 9}}, 2, 1, WithBandLabels(2, 8))
	pv, _ := NewPointVectorizer(8, 0)
	vr, err := pv.Vectorize(r)
	require.NoError(t, err)
	vectors, err := ReadVectors(vr)
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int64(9), vectors[0].PixelValue)

	pv, _ = NewPointVectorizer(1, 0)
	_, err = pv.Vectorize(r)
	assert.Error(t, err)
	_, err = NewPointVectorizer(0, 0)
	assert.Error(t, err)
}

func TestPolygonVectorizer(t *testing.T) {
	r := mustRaster(t, [][]float64{{
		7, 7, 0, 0,
		7, 7, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 9,
	}}, 4, 4, WithDataType(godal.Byte), WithGeoTransform(utm), WithEPSG(32630))
	pv, err := NewPolygonVectorizer(1, 0)
	require.NoError(t, err)
	vr, err := pv.Vectorize(r)
	require.NoError(t, err)
	vectors, err := ReadVectors(vr)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	sort.Slice(vectors, func(i, j int) bool { return vectors[i].PixelValue < vectors[j].PixelValue })

	assert.Equal(t, int64(7), vectors[0].PixelValue)
	assert.Equal(t, 32630, vectors[0].CRS)
	assert.Equal(t, orb.Bound{Min: orb.Point{500000, 3999980}, Max: orb.Point{500020, 4000000}},
		vectors[0].Geometry.Bound())
	assert.Equal(t, int64(9), vectors[1].PixelValue)
	assert.Equal(t, orb.Bound{Min: orb.Point{500030, 3999960}, Max: orb.Point{500040, 3999970}},
		vectors[1].Geometry.Bound())
	_, isPolygon := vectors[0].Geometry.(orb.Polygon)
	assert.True(t, isPolygon)

	// the threshold excludes the 7 region
	pv, _ = NewPolygonVectorizer(1, 7)
	vr, err = pv.Vectorize(r)
	require.NoError(t, err)
	vectors, err = ReadVectors(vr)
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int64(9), vectors[0].PixelValue)
}

func TestPolygonVectorizerRejectsFloat(t *testing.T) {
	r := mustRaster(t, [][]float64{{1, 2}}, 2, 1)
	pv, err := NewPolygonVectorizer(1, 0)
	require.NoError(t, err)
	vr, err := pv.Vectorize(r)
	assert.ErrorIs(t, err, ErrNotInteger)
	assert.Nil(t, vr)
}

func TestPolygonReaderClose(t *testing.T) {
	r := mustRaster(t, [][]float64{{1, 0, 1}}, 3, 1, WithDataType(godal.Int16))
	pv, _ := NewPolygonVectorizer(1, 0)
	vr, err := pv.Vectorize(r)
	require.NoError(t, err)
	_, err = vr.Next()
	require.NoError(t, err)
	require.NoError(t, vr.Close())
	_, err = vr.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, vr.Close())
}
