package debrismap

import "go.uber.org/zap"

// Option configures the single-raster operations (Split, BandRemove,
// Inference and the vectorizers)
type Option interface {
	setOpt(o *opOptions)
}

type opOptions struct {
	logger *zap.Logger
}

func newOpOptions(opts []Option) opOptions {
	o := opOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt.setOpt(&o)
	}
	return o
}

type loggerOpt struct {
	logger *zap.Logger
}

// WithLogger sets the logger used to report benign no-ops and progress.
// Operations are silent by default.
func WithLogger(logger *zap.Logger) interface {
	Option
	EngineOption
	ReprojectOption
	MergeOption
	DtypeOption
} {
	if logger == nil {
		logger = zap.NewNop()
	}
	return loggerOpt{logger}
}

func (lo loggerOpt) setOpt(o *opOptions) {
	o.logger = lo.logger
}

func (lo loggerOpt) setEngineOpt(e *Engine) error {
	e.logger = lo.logger
	return nil
}

func (lo loggerOpt) setReprojectOpt(r *Reproject) error {
	r.logger = lo.logger
	return nil
}

func (lo loggerOpt) setMergeOpt(m *Merge) error {
	m.logger = lo.logger
	return nil
}

func (lo loggerOpt) setDtypeOpt(d *DtypeConvert) {
	d.logger = lo.logger
}
