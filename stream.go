package debrismap

import (
	"errors"
	"io"
)

// A RasterReader yields a finite sequence of rasters. Next returns io.EOF once
// the sequence is exhausted. Readers are single pass.
type RasterReader interface {
	Next() (Raster, error)
}

// A VectorReader yields a finite sequence of vectors. Next returns io.EOF
// once exhausted. Close releases any resource held by the reader and may be
// called at any time.
type VectorReader interface {
	Next() (Vector, error)
	Close() error
}

type sliceReader struct {
	rasters []Raster
	i       int
}

func (s *sliceReader) Next() (Raster, error) {
	if s.i >= len(s.rasters) {
		return Raster{}, io.EOF
	}
	s.i++
	return s.rasters[s.i-1], nil
}

// Rasters returns a reader over the given rasters
func Rasters(rasters ...Raster) RasterReader {
	return &sliceReader{rasters: rasters}
}

// ReadRasters drains a reader
func ReadRasters(rr RasterReader) ([]Raster, error) {
	var all []Raster
	for {
		r, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return all, err
		}
		all = append(all, r)
	}
}

// ReadVectors drains and closes a reader
func ReadVectors(vr VectorReader) ([]Vector, error) {
	defer vr.Close()
	var all []Vector
	for {
		v, err := vr.Next()
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return all, err
		}
		all = append(all, v)
	}
}

// readerFunc adapts a closure into a RasterReader. Once the closure returned
// an error (io.EOF included) it is not called again.
type readerFunc struct {
	next func() (Raster, error)
	err  error
}

func (rf *readerFunc) Next() (Raster, error) {
	if rf.err != nil {
		return Raster{}, rf.err
	}
	r, err := rf.next()
	if err != nil {
		rf.err = err
	}
	return r, err
}
