package debrismap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// A Step is one stage of a Composite. It consumes the rasters produced by
// the previous stage and lazily produces its own.
type Step interface {
	apply(ctx context.Context, in RasterReader) RasterReader
	name() string
}

// Map applies op to every raster
func Map(op Operation) Step {
	return mapStep{op}
}

// FlatMap replaces every raster by the sequence s splits it into
func FlatMap(s Splitter) Step {
	return flatMapStep{s}
}

// Reduce collapses the whole sequence into one raster
func Reduce(m Merger) Step {
	return reduceStep{m}
}

type mapStep struct {
	op Operation
}

func (ms mapStep) name() string {
	return fmt.Sprintf("%T", ms.op)
}

func (ms mapStep) apply(ctx context.Context, in RasterReader) RasterReader {
	return &readerFunc{next: func() (Raster, error) {
		r, err := in.Next()
		if err != nil {
			return Raster{}, err
		}
		return ms.op.Execute(ctx, r)
	}}
}

type flatMapStep struct {
	s Splitter
}

func (fs flatMapStep) name() string {
	return fmt.Sprintf("%T", fs.s)
}

func (fs flatMapStep) apply(_ context.Context, in RasterReader) RasterReader {
	var cur RasterReader
	return &readerFunc{next: func() (Raster, error) {
		for {
			if cur == nil {
				r, err := in.Next()
				if err != nil {
					return Raster{}, err
				}
				if cur, err = fs.s.Split(r); err != nil {
					return Raster{}, err
				}
			}
			r, err := cur.Next()
			if errors.Is(err, io.EOF) {
				cur = nil
				continue
			}
			return r, err
		}
	}}
}

type reduceStep struct {
	m Merger
}

func (rs reduceStep) name() string {
	return fmt.Sprintf("%T", rs.m)
}

func (rs reduceStep) apply(_ context.Context, in RasterReader) RasterReader {
	done := false
	return &readerFunc{next: func() (Raster, error) {
		if done {
			return Raster{}, io.EOF
		}
		done = true
		return rs.m.Merge(in)
	}}
}

// A Composite chains steps into a pipeline. Every raster leaving a step is
// checked against its encoded content; the first error of any step ends the
// whole pipeline.
type Composite struct {
	steps  []Step
	logger *zap.Logger
}

func NewComposite(steps []Step, opts ...Option) Composite {
	o := newOpOptions(opts)
	return Composite{steps: steps, logger: o.logger}
}

func (c Composite) Steps() []Step {
	return c.steps
}

// Run wires the steps over in. Nothing is computed until the returned reader
// is consumed.
func (c Composite) Run(ctx context.Context, in RasterReader) RasterReader {
	out := in
	for i, s := range c.steps {
		out = c.checked(i, s, s.apply(ctx, out))
	}
	return out
}

func (c Composite) checked(i int, s Step, in RasterReader) RasterReader {
	return &readerFunc{next: func() (Raster, error) {
		r, err := in.Next()
		if errors.Is(err, io.EOF) {
			return r, err
		}
		if err != nil {
			return Raster{}, fmt.Errorf("step %d (%s): %w", i, s.name(), err)
		}
		if err := r.Validate(); err != nil {
			return Raster{}, fmt.Errorf("step %d (%s): %w", i, s.name(), err)
		}
		c.logger.Debug("step output", zap.Int("step", i), zap.String("op", s.name()),
			zap.Int("height", r.Size.Height), zap.Int("width", r.Size.Width), zap.Ints("bands", r.Bands))
		return r, nil
	}}
}

// Execute runs the pipeline over a single raster and expects a single result,
// which lets a Composite be used as an Operation
func (c Composite) Execute(ctx context.Context, r Raster) (Raster, error) {
	out, err := ReadRasters(c.Run(ctx, Rasters(r)))
	if err != nil {
		return Raster{}, err
	}
	if len(out) != 1 {
		return Raster{}, fmt.Errorf("pipeline produced %d rasters, expecting 1", len(out))
	}
	return out[0], nil
}
