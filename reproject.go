package debrismap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/alessio/shellescape"
	shellwords "github.com/mattn/go-shellwords"
	"go.uber.org/zap"
)

// Reproject warps a raster into another coordinate reference system
type Reproject struct {
	epsg       int
	resampling string
	bands      []int
	switches   []string
	logger     *zap.Logger
}

type ReprojectOption interface {
	setReprojectOpt(r *Reproject) error
}

type reprojectOpt func(r *Reproject) error

func (ro reprojectOpt) setReprojectOpt(r *Reproject) error {
	return ro(r)
}

var resamplings = map[string]string{
	"nearest":     "near",
	"near":        "near",
	"bilinear":    "bilinear",
	"cubic":       "cubic",
	"cubicspline": "cubicspline",
	"lanczos":     "lanczos",
	"average":     "average",
	"mode":        "mode",
}

// Resampling selects the warp kernel. Defaults to nearest.
func Resampling(name string) ReprojectOption {
	return reprojectOpt(func(r *Reproject) error {
		alg, ok := resamplings[name]
		if !ok {
			return ErrInvalidOption{fmt.Sprintf("unknown resampling %q", name)}
		}
		r.resampling = alg
		return nil
	})
}

// ReprojectBands restricts the output to the given band labels, in order
func ReprojectBands(bands ...int) ReprojectOption {
	return reprojectOpt(func(r *Reproject) error {
		for _, b := range bands {
			if b <= 0 {
				return ErrInvalidOption{"band index is 1-based"}
			}
		}
		r.bands = bands
		return nil
	})
}

// WarpSwitches appends extra gdalwarp switches, given as a single shell-like
// string (e.g. "-tr 10 10 -tap")
func WarpSwitches(switches string) ReprojectOption {
	return reprojectOpt(func(r *Reproject) error {
		sw, err := shellwords.Parse(switches)
		if err != nil {
			return ErrInvalidOption{fmt.Sprintf("parse warp switches: %v", err)}
		}
		for _, s := range sw {
			if s == "-of" || s == "-t_srs" {
				return ErrInvalidOption{fmt.Sprintf("warp switch %s is managed internally", s)}
			}
		}
		r.switches = sw
		return nil
	})
}

func NewReproject(epsg int, opts ...ReprojectOption) (Reproject, error) {
	if epsg <= 0 {
		return Reproject{}, ErrInvalidOption{"epsg code must be >=1"}
	}
	r := Reproject{
		epsg:       epsg,
		resampling: "near",
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		if err := o.setReprojectOpt(&r); err != nil {
			return Reproject{}, err
		}
	}
	return r, nil
}

func (rp Reproject) Execute(_ context.Context, r Raster) (Raster, error) {
	ds, release, err := openContent(r.Content)
	if err != nil {
		return Raster{}, fmt.Errorf("reproject: %w", err)
	}
	defer release()

	src, bands := ds, r.Bands
	if len(rp.bands) > 0 {
		vrtName := tempName(".vrt")
		bands = make([]int, 0, len(rp.bands))
		switches := []string{}
		for _, b := range rp.bands {
			pos := indexOf(r.Bands, b)
			if pos < 0 {
				return Raster{}, fmt.Errorf("reproject: band %d not in %v", b, r.Bands)
			}
			switches = append(switches, "-b", strconv.Itoa(pos+1))
			bands = append(bands, b)
		}
		vrt, err := ds.Translate(vrtName, switches, godal.VRT)
		if err != nil {
			return Raster{}, fmt.Errorf("select bands: %w", err)
		}
		defer func() {
			_ = vrt.Close()
			_ = godal.VSIUnlink(vrtName)
		}()
		src = vrt
	}

	switches := []string{
		"-t_srs", fmt.Sprintf("epsg:%d", rp.epsg),
		"-r", rp.resampling,
		"-of", "GTiff",
		"-co", "TILED=YES",
		"-co", "COMPRESS=LZW",
	}
	switches = append(switches, rp.switches...)
	dstName := tempName(".tif")
	rp.logger.Debug("reproject",
		zap.Int("from", r.CRS), zap.Int("to", rp.epsg),
		zap.String("command", shellescape.QuoteCommand(append([]string{"gdalwarp"}, switches...))))

	out, err := godal.Warp(dstName, []*godal.Dataset{src}, switches)
	if err != nil {
		return Raster{}, fmt.Errorf("warp to epsg:%d: %w", rp.epsg, err)
	}
	defer func() {
		_ = godal.VSIUnlink(dstName)
	}()
	if err := out.Close(); err != nil {
		return Raster{}, fmt.Errorf("close warped: %w", err)
	}
	content, err := readVSIFile(dstName)
	if err != nil {
		return Raster{}, err
	}
	warped, err := DecodeRaster(content)
	if err != nil {
		return Raster{}, fmt.Errorf("reproject: %w", err)
	}
	warped.Bands = bands
	warped.Padding = r.Padding
	return warped, nil
}

func indexOf(values []int, v int) int {
	for i := range values {
		if values[i] == v {
			return i
		}
	}
	return -1
}
