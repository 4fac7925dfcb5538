package debrismap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tbonfort/gobs"
)

// Parallel applies op to every raster like Map, running up to workers
// executions at once. Rasters are consumed in batches of workers items and
// results are emitted in input order.
func Parallel(op Operation, workers int) Step {
	if workers < 1 {
		workers = 1
	}
	return parallelStep{op: op, workers: workers}
}

type parallelStep struct {
	op      Operation
	workers int
}

func (ps parallelStep) name() string {
	return fmt.Sprintf("parallel(%T)", ps.op)
}

func (ps parallelStep) apply(ctx context.Context, in RasterReader) RasterReader {
	var pending []Raster
	eof := false
	return &readerFunc{next: func() (Raster, error) {
		if len(pending) == 0 && !eof {
			batch, err := ps.run(ctx, in)
			if errors.Is(err, io.EOF) {
				eof = true
			} else if err != nil {
				return Raster{}, err
			}
			pending = batch
		}
		if len(pending) == 0 {
			return Raster{}, io.EOF
		}
		r := pending[0]
		pending = pending[1:]
		return r, nil
	}}
}

// run executes op over the next workers rasters of in. io.EOF is returned
// alongside the last, possibly empty, batch.
func (ps parallelStep) run(ctx context.Context, in RasterReader) ([]Raster, error) {
	var srcs []Raster
	var readErr error
	for len(srcs) < ps.workers {
		r, err := in.Next()
		if err != nil {
			readErr = err
			break
		}
		srcs = append(srcs, r)
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		return nil, readErr
	}
	if len(srcs) == 0 {
		return nil, readErr
	}
	out := make([]Raster, len(srcs))
	batch := gobs.NewPool(len(srcs)).Batch()
	for i := range srcs {
		i := i
		batch.Submit(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := ps.op.Execute(ctx, srcs[i])
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := batch.Wait(); err != nil {
		return nil, err
	}
	return out, readErr
}
