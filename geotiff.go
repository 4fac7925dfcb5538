package debrismap

import (
	"bytes"
	"fmt"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
)

const (
	geoKeyGeographicType = 2048
	geoKeyProjectedType  = 3072
	geoKeyUserDefined    = 32767
)

// geoTags are the tags of the first IFD needed to recover a raster's grid
// without decoding any pixel
type geoTags struct {
	ImageWidth         uint64    `tiff:"field,tag=256"`
	ImageLength        uint64    `tiff:"field,tag=257"`
	SamplesPerPixel    uint16    `tiff:"field,tag=277"`
	ModelPixelScaleTag []float64 `tiff:"field,tag=33550"`
	ModelTiePointTag   []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag []uint16  `tiff:"field,tag=34735"`
}

func inspect(content []byte) (geoTags, error) {
	tags := geoTags{}
	tif, err := tiff.Parse(bytes.NewReader(content), nil, nil)
	if err != nil {
		return tags, fmt.Errorf("parse tiff: %w", err)
	}
	ifds := tif.IFDs()
	if len(ifds) == 0 {
		return tags, fmt.Errorf("tiff has no ifd")
	}
	if err := tiff.UnmarshalIFD(ifds[0], &tags); err != nil {
		return tags, fmt.Errorf("unmarshal ifd: %w", err)
	}
	if tags.SamplesPerPixel == 0 {
		tags.SamplesPerPixel = 1
	}
	return tags, nil
}

// geoTransform rebuilds the north-up transform from the pixel scale and the
// first tie point
func (t geoTags) geoTransform() ([6]float64, bool) {
	if len(t.ModelPixelScaleTag) < 2 || len(t.ModelTiePointTag) < 6 {
		return [6]float64{}, false
	}
	sx, sy := t.ModelPixelScaleTag[0], t.ModelPixelScaleTag[1]
	tp := t.ModelTiePointTag
	return [6]float64{
		tp[3] - tp[0]*sx, sx, 0,
		tp[4] + tp[1]*sy, 0, -sy,
	}, true
}

// epsg reads the projected or geographic CRS code from the geokey directory.
// It returns 0 when the CRS is user defined or absent.
func (t geoTags) epsg() int {
	keys := t.GeoKeyDirectoryTag
	if len(keys) < 4 {
		return 0
	}
	n := int(keys[3])
	projected, geographic := 0, 0
	for i := 0; i < n && 4+4*i+3 < len(keys); i++ {
		entry := keys[4+4*i : 8+4*i]
		if entry[1] != 0 || entry[3] == geoKeyUserDefined {
			continue
		}
		switch entry[0] {
		case geoKeyProjectedType:
			projected = int(entry[3])
		case geoKeyGeographicType:
			geographic = int(entry[3])
		}
	}
	if projected != 0 {
		return projected
	}
	return geographic
}
