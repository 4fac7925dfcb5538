package debrismap

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

// HeightWidth is a size in pixels
type HeightWidth struct {
	Height, Width int
}

// Padding records the border added around a raster by Pad. Top and Left hold
// the ceil half of the added width, Bottom and Right the floor half.
type Padding struct {
	Top, Left, Bottom, Right int
}

func (p Padding) IsZero() bool {
	return p == Padding{}
}

func (p Padding) add(o Padding) Padding {
	return Padding{p.Top + o.Top, p.Left + o.Left, p.Bottom + o.Bottom, p.Right + o.Right}
}

// A Raster is an encoded GeoTIFF together with the metadata derived from it.
// Size, Resolution and Geometry are always derived from the transform encoded
// in Content and never set independently. Rasters are values: operations
// never modify their input and return new rasters owning their own buffer.
type Raster struct {
	Content    []byte
	Size       HeightWidth
	CRS        int
	Bands      []int
	Resolution float64
	Geometry   orb.Polygon
	Padding    Padding

	transform [6]float64
	dtype     godal.DataType
	nodata    float64
	hasNoData bool
}

// PaddingSize is the leading (top, left) border still to be removed by Unpad
func (r Raster) PaddingSize() HeightWidth {
	return HeightWidth{r.Padding.Top, r.Padding.Left}
}

func (r Raster) DataType() godal.DataType {
	return r.dtype
}

func (r Raster) NoData() (float64, bool) {
	return r.nodata, r.hasNoData
}

func (r Raster) GeoTransform() [6]float64 {
	return r.transform
}

// Bound is the footprint's bounding box
func (r Raster) Bound() orb.Bound {
	return r.Geometry.Bound()
}

// Array decodes the raster's pixels, one row-major slice per band
func (r Raster) Array() ([][]float64, error) {
	img, err := decode(r.Content)
	if err != nil {
		return nil, err
	}
	return img.data, nil
}

// footprint is the rectangle covered by a width*height grid starting at the
// transform's origin
func footprint(gt [6]float64, width, height int) orb.Polygon {
	w, h := float64(width), float64(height)
	xs := []float64{gt[0], gt[0] + w*gt[1], gt[0] + h*gt[2], gt[0] + w*gt[1] + h*gt[2]}
	ys := []float64{gt[3], gt[3] + w*gt[4], gt[3] + h*gt[5], gt[3] + w*gt[4] + h*gt[5]}
	b := orb.Bound{Min: orb.Point{xs[0], ys[0]}, Max: orb.Point{xs[0], ys[0]}}
	for i := 1; i < 4; i++ {
		b = b.Extend(orb.Point{xs[i], ys[i]})
	}
	return b.ToPolygon()
}

// raster encodes img and derives all metadata from it in one place
func (img *image) raster(bands []int, padding Padding) (Raster, error) {
	if len(bands) != len(img.data) {
		return Raster{}, fmt.Errorf("%w: %d band labels for %d bands", ErrContract, len(bands), len(img.data))
	}
	content, err := img.encode()
	if err != nil {
		return Raster{}, err
	}
	return Raster{
		Content:    content,
		Size:       HeightWidth{img.height, img.width},
		CRS:        img.epsg,
		Bands:      append([]int(nil), bands...),
		Resolution: img.transform[1],
		Geometry:   footprint(img.transform, img.width, img.height),
		Padding:    padding,
		transform:  img.transform,
		dtype:      img.dtype,
		nodata:     img.nodata,
		hasNoData:  img.hasNoData,
	}, nil
}

func sequence(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i + 1
	}
	return s
}

// DecodeRaster wraps an encoded raster, deriving its metadata. Bands are
// labelled 1..n.
func DecodeRaster(content []byte) (Raster, error) {
	ds, release, err := openContent(content)
	if err != nil {
		return Raster{}, err
	}
	defer release()
	img, err := readHeader(ds)
	if err != nil {
		return Raster{}, err
	}
	return Raster{
		Content:    content,
		Size:       HeightWidth{img.height, img.width},
		CRS:        img.epsg,
		Bands:      sequence(ds.Structure().NBands),
		Resolution: img.transform[1],
		Geometry:   footprint(img.transform, img.width, img.height),
		transform:  img.transform,
		dtype:      img.dtype,
		nodata:     img.nodata,
		hasNoData:  img.hasNoData,
	}, nil
}

type rasterOpts struct {
	dtype     godal.DataType
	transform [6]float64
	epsg      int
	nodata    float64
	hasNoData bool
	bands     []int
	padding   Padding
}

// RasterOption configures NewRaster
type RasterOption func(o *rasterOpts) error

// WithDataType sets the pixel type. Defaults to float32.
func WithDataType(dt godal.DataType) RasterOption {
	return func(o *rasterOpts) error {
		if !isInteger(dt) && !isFloat(dt) {
			return fmt.Errorf("%w: %s", ErrUnsupportedDataType, dt.String())
		}
		o.dtype = dt
		return nil
	}
}

// WithGeoTransform sets the affine pixel to ground transform. Defaults to a
// unit grid anchored at (0,0).
func WithGeoTransform(gt [6]float64) RasterOption {
	return func(o *rasterOpts) error {
		if gt[1] == 0 || gt[5] == 0 {
			return ErrInvalidOption{"geotransform pixel size must be non zero"}
		}
		o.transform = gt
		return nil
	}
}

// WithEPSG sets the coordinate reference system. Defaults to 4326.
func WithEPSG(code int) RasterOption {
	return func(o *rasterOpts) error {
		if code <= 0 {
			return ErrInvalidOption{"epsg code must be >=1"}
		}
		o.epsg = code
		return nil
	}
}

func WithNoData(nodata float64) RasterOption {
	return func(o *rasterOpts) error {
		o.nodata, o.hasNoData = nodata, true
		return nil
	}
}

// WithBandLabels overrides the default 1..n band labels
func WithBandLabels(bands ...int) RasterOption {
	return func(o *rasterOpts) error {
		for _, b := range bands {
			if b <= 0 {
				return ErrInvalidOption{"band labels are 1-based"}
			}
		}
		o.bands = bands
		return nil
	}
}

// WithPadding marks the raster as carrying a border to be removed by Unpad
func WithPadding(p Padding) RasterOption {
	return func(o *rasterOpts) error {
		if p.Top < 0 || p.Left < 0 || p.Bottom < 0 || p.Right < 0 {
			return ErrInvalidOption{"padding must be >=0"}
		}
		o.padding = p
		return nil
	}
}

// NewRaster encodes the given bands (row-major, width*height samples each)
// into a Raster. Values are cast to the configured data type.
func NewRaster(bands [][]float64, width, height int, options ...RasterOption) (Raster, error) {
	o := rasterOpts{
		dtype:     godal.Float32,
		transform: [6]float64{0, 1, 0, 0, 0, -1},
		epsg:      4326,
	}
	for _, opt := range options {
		if err := opt(&o); err != nil {
			return Raster{}, err
		}
	}
	if width <= 0 || height <= 0 {
		return Raster{}, ErrInvalidOption{"width and height must be >=1"}
	}
	if len(bands) == 0 {
		return Raster{}, ErrInvalidOption{"at least one band is required"}
	}
	if o.bands == nil {
		o.bands = sequence(len(bands))
	}
	img := &image{
		width:     width,
		height:    height,
		dtype:     o.dtype,
		transform: o.transform,
		epsg:      o.epsg,
		nodata:    o.nodata,
		hasNoData: o.hasNoData,
		data:      make([][]float64, len(bands)),
	}
	for b, band := range bands {
		if len(band) != width*height {
			return Raster{}, fmt.Errorf("band %d holds %d samples, expecting %d", b+1, len(band), width*height)
		}
		img.data[b] = make([]float64, len(band))
		for i, v := range band {
			img.data[b][i] = castValue(v, o.dtype)
		}
	}
	return img.raster(o.bands, o.padding)
}

// Validate checks that the metadata still matches what is encoded in Content:
// pixel size, band count, footprint and CRS. It reads the GeoTIFF tags only.
func (r Raster) Validate() error {
	tags, err := inspect(r.Content)
	if err != nil {
		return err
	}
	if int(tags.ImageWidth) != r.Size.Width || int(tags.ImageLength) != r.Size.Height {
		return fmt.Errorf("%w: encoded size %dx%d, metadata %dx%d", ErrContract,
			tags.ImageWidth, tags.ImageLength, r.Size.Width, r.Size.Height)
	}
	if int(tags.SamplesPerPixel) != len(r.Bands) {
		return fmt.Errorf("%w: encoded %d bands, metadata lists %d", ErrContract,
			tags.SamplesPerPixel, len(r.Bands))
	}
	gt, ok := tags.geoTransform()
	if !ok {
		return fmt.Errorf("%w: content carries no geotransform", ErrContract)
	}
	if !sameBound(footprint(gt, r.Size.Width, r.Size.Height).Bound(), r.Geometry.Bound()) {
		return fmt.Errorf("%w: footprint %v does not match encoded transform %v", ErrContract,
			r.Geometry.Bound(), gt)
	}
	if epsg := tags.epsg(); epsg != 0 && epsg != r.CRS {
		return fmt.Errorf("%w: encoded epsg:%d, metadata epsg:%d", ErrContract, epsg, r.CRS)
	}
	return nil
}

func sameBound(a, b orb.Bound) bool {
	tol := 1e-9 * math.Max(1, math.Max(math.Abs(a.Max[0]), math.Abs(a.Max[1])))
	return math.Abs(a.Min[0]-b.Min[0]) <= tol && math.Abs(a.Min[1]-b.Min[1]) <= tol &&
		math.Abs(a.Max[0]-b.Max[0]) <= tol && math.Abs(a.Max[1]-b.Max[1]) <= tol
}

// OpenRaster loads any dataset GDAL can open (a local path, or a remote one
// through a registered VSI handler) and re-encodes it as a tiled GeoTIFF
// Raster. Bands are labelled 1..n.
func OpenRaster(name string) (Raster, error) {
	if err := registerDrivers(); err != nil {
		return Raster{}, err
	}
	ds, err := godal.Open(name, godal.RasterOnly())
	if err != nil {
		return Raster{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer ds.Close()
	dstName := tempName(".tif")
	out, err := ds.Translate(dstName, []string{"-co", "TILED=YES", "-co", "COMPRESS=LZW"}, godal.GTiff)
	if err != nil {
		return Raster{}, fmt.Errorf("translate %s: %w", name, err)
	}
	defer func() {
		_ = godal.VSIUnlink(dstName)
	}()
	if err := out.Close(); err != nil {
		return Raster{}, fmt.Errorf("close %s: %w", dstName, err)
	}
	content, err := readVSIFile(dstName)
	if err != nil {
		return Raster{}, err
	}
	return DecodeRaster(content)
}
