package debrismap

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
)

// memPrefix is the godal VSI prefix under which encoded buffers are exposed
// to gdal for reading without touching the filesystem
const memPrefix = "debrismap://"

type memFiles struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func (m *memFiles) VSIReader(key string) (godal.VSIReader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return bytes.NewReader(content), nil
}

func (m *memFiles) add(content []byte) string {
	key := uuid.Must(uuid.NewRandom()).String() + ".tif"
	m.mu.Lock()
	m.files[key] = content
	m.mu.Unlock()
	return key
}

func (m *memFiles) remove(key string) {
	m.mu.Lock()
	delete(m.files, key)
	m.mu.Unlock()
}

var (
	registry     = &memFiles{files: make(map[string][]byte)}
	registerOnce sync.Once
	registerErr  error
)

func registerDrivers() error {
	registerOnce.Do(func() {
		godal.RegisterInternalDrivers()
		if err := godal.RegisterVSIHandler(memPrefix, registry); err != nil {
			registerErr = fmt.Errorf("register %s handler: %w", memPrefix, err)
		}
	})
	return registerErr
}

// openContent opens an encoded raster read-only. The returned release func
// closes the dataset and must always be called.
func openContent(content []byte) (*godal.Dataset, func(), error) {
	if err := registerDrivers(); err != nil {
		return nil, func() {}, err
	}
	key := registry.add(content)
	ds, err := godal.Open(memPrefix+key, godal.RasterOnly())
	if err != nil {
		registry.remove(key)
		return nil, func() {}, fmt.Errorf("open raster content: %w", err)
	}
	return ds, func() {
		_ = ds.Close()
		registry.remove(key)
	}, nil
}

// image is the decoded form of an encoded raster. data holds one row-major
// slice per band.
type image struct {
	width, height int
	dtype         godal.DataType
	transform     [6]float64
	epsg          int
	nodata        float64
	hasNoData     bool
	data          [][]float64
}

// like returns an image with the same georeferencing and no pixels
func (img *image) like() *image {
	return &image{
		width:     img.width,
		height:    img.height,
		dtype:     img.dtype,
		transform: img.transform,
		epsg:      img.epsg,
		nodata:    img.nodata,
		hasNoData: img.hasNoData,
	}
}

func readHeader(ds *godal.Dataset) (*image, error) {
	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("geotransform: %w", err)
	}
	epsg, err := datasetEPSG(ds)
	if err != nil {
		return nil, err
	}
	img := &image{
		width:     st.SizeX,
		height:    st.SizeY,
		dtype:     st.DataType,
		transform: gt,
		epsg:      epsg,
	}
	if bands := ds.Bands(); len(bands) > 0 {
		img.nodata, img.hasNoData = bands[0].NoData()
	}
	return img, nil
}

func datasetEPSG(ds *godal.Dataset) (int, error) {
	wkt := ds.Projection()
	if wkt == "" {
		return 0, nil
	}
	sr, err := godal.NewSpatialRefFromWKT(wkt)
	if err != nil {
		return 0, fmt.Errorf("parse projection: %w", err)
	}
	defer sr.Close()
	code := sr.AuthorityCode("")
	if code == "" {
		if err := sr.AutoIdentifyEPSG(); err != nil {
			return 0, fmt.Errorf("identify epsg: %w", err)
		}
		code = sr.AuthorityCode("")
	}
	epsg, err := strconv.Atoi(code)
	if err != nil {
		return 0, fmt.Errorf("epsg code %q: %w", code, err)
	}
	return epsg, nil
}

func decode(content []byte) (*image, error) {
	ds, release, err := openContent(content)
	if err != nil {
		return nil, err
	}
	defer release()
	img, err := readHeader(ds)
	if err != nil {
		return nil, err
	}
	bands := ds.Bands()
	img.data = make([][]float64, len(bands))
	for b, band := range bands {
		img.data[b] = make([]float64, img.width*img.height)
		if err := band.Read(0, 0, img.data[b], img.width, img.height); err != nil {
			return nil, fmt.Errorf("read band %d: %w", b+1, err)
		}
	}
	return img, nil
}

// decodeChecked decodes r and fails with ErrContract when the metadata does
// not describe the decoded pixels
func decodeChecked(r Raster) (*image, error) {
	img, err := decode(r.Content)
	if err != nil {
		return nil, err
	}
	if img.width != r.Size.Width || img.height != r.Size.Height {
		return nil, fmt.Errorf("%w: encoded size %dx%d, metadata %dx%d", ErrContract,
			img.width, img.height, r.Size.Width, r.Size.Height)
	}
	if len(img.data) != len(r.Bands) {
		return nil, fmt.Errorf("%w: encoded %d bands, metadata lists %d", ErrContract,
			len(img.data), len(r.Bands))
	}
	return img, nil
}

func (img *image) encode() ([]byte, error) {
	if err := registerDrivers(); err != nil {
		return nil, err
	}
	if len(img.data) == 0 {
		return nil, fmt.Errorf("encode: image has no bands")
	}
	name := tempName(".tif")
	ds, err := godal.Create(godal.GTiff, name, len(img.data), img.dtype, img.width, img.height,
		godal.CreationOption("TILED=YES", "COMPRESS=LZW"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	defer func() {
		_ = godal.VSIUnlink(name)
	}()
	if err := img.fill(ds); err != nil {
		_ = ds.Close()
		return nil, err
	}
	if err := ds.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", name, err)
	}
	return readVSIFile(name)
}

func readVSIFile(name string) ([]byte, error) {
	f, err := godal.VSIOpen(name)
	if err != nil {
		return nil, fmt.Errorf("vsiopen %s: %w", name, err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return content, nil
}

func tempName(ext string) string {
	return "/vsimem/" + uuid.Must(uuid.NewRandom()).String() + ext
}

// fill writes georeferencing, nodata and pixels into a freshly created dataset
func (img *image) fill(ds *godal.Dataset) error {
	if err := ds.SetGeoTransform(img.transform); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	if img.epsg != 0 {
		sr, err := godal.NewSpatialRefFromEPSG(img.epsg)
		if err != nil {
			return fmt.Errorf("epsg:%d: %w", img.epsg, err)
		}
		err = ds.SetSpatialRef(sr)
		sr.Close()
		if err != nil {
			return fmt.Errorf("set srs: %w", err)
		}
	}
	for b, band := range ds.Bands() {
		if img.hasNoData {
			if err := band.SetNoData(img.nodata); err != nil {
				return fmt.Errorf("set nodata: %w", err)
			}
		}
		if err := band.Write(0, 0, img.data[b], img.width, img.height); err != nil {
			return fmt.Errorf("write band %d: %w", b+1, err)
		}
	}
	return nil
}

// crop copies the pixels under w into a new image whose transform is shifted
// to the window origin
func (img *image) crop(w Window) *image {
	out := img.like()
	out.width, out.height = w.Width, w.Height
	out.transform = windowTransform(img.transform, w)
	out.data = make([][]float64, len(img.data))
	for b, src := range img.data {
		dst := make([]float64, w.Width*w.Height)
		for r := 0; r < w.Height; r++ {
			start := (w.Row+r)*img.width + w.Col
			copy(dst[r*w.Width:(r+1)*w.Width], src[start:start+w.Width])
		}
		out.data[b] = dst
	}
	return out
}

// pad surrounds the image with zeros and moves the origin outward
func (img *image) pad(p Padding) *image {
	out := img.like()
	out.width = img.width + p.Left + p.Right
	out.height = img.height + p.Top + p.Bottom
	out.transform = windowTransform(img.transform, Window{Row: -p.Top, Col: -p.Left})
	out.data = make([][]float64, len(img.data))
	for b, src := range img.data {
		dst := make([]float64, out.width*out.height)
		for r := 0; r < img.height; r++ {
			start := (r+p.Top)*out.width + p.Left
			copy(dst[start:start+img.width], src[r*img.width:(r+1)*img.width])
		}
		out.data[b] = dst
	}
	return out
}

// windowTransform returns the geotransform of the pixel grid starting at the
// window's origin
func windowTransform(gt [6]float64, w Window) [6]float64 {
	col, row := float64(w.Col), float64(w.Row)
	return [6]float64{
		gt[0] + col*gt[1] + row*gt[2], gt[1], gt[2],
		gt[3] + col*gt[4] + row*gt[5], gt[4], gt[5],
	}
}
