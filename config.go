package debrismap

import (
	"fmt"

	"go.uber.org/zap"
	"sigs.k8s.io/yaml"
)

// PipelineConfig is the YAML description of a Composite, e.g.
//
//	steps:
//	- reproject: {epsg: 32630, resampling: bilinear}
//	- split: {tile: [480, 480], offset: 64}
//	- pad: {divisor: 32}
//	- parallel: {workers: 4, step: {inference: {}}}
//	- unpad: {}
//	- merge: {method: blend, offset: 64}
type PipelineConfig struct {
	Steps []StepConfig `json:"steps"`
}

// StepConfig holds exactly one step
type StepConfig struct {
	Reproject  *ReprojectConfig  `json:"reproject,omitempty"`
	Split      *SplitConfig      `json:"split,omitempty"`
	Pad        *PadConfig        `json:"pad,omitempty"`
	Unpad      *struct{}         `json:"unpad,omitempty"`
	BandRemove *BandRemoveConfig `json:"band_remove,omitempty"`
	Dtype      *DtypeConfig      `json:"dtype,omitempty"`
	Round      *RoundConfig      `json:"round,omitempty"`
	Inference  *struct{}         `json:"inference,omitempty"`
	Merge      *MergeConfig      `json:"merge,omitempty"`
	Parallel   *ParallelConfig   `json:"parallel,omitempty"`
}

type ReprojectConfig struct {
	EPSG       int    `json:"epsg"`
	Resampling string `json:"resampling,omitempty"`
	Bands      []int  `json:"bands,omitempty"`
	Switches   string `json:"switches,omitempty"`
}

type SplitConfig struct {
	// Tile is height, width
	Tile   [2]int `json:"tile"`
	Offset int    `json:"offset"`
}

type PadConfig struct {
	Padding int `json:"padding"`
	Divisor int `json:"divisor"`
}

type BandRemoveConfig struct {
	Band int `json:"band"`
}

type DtypeConfig struct {
	Target string `json:"target"`
	// Scale defaults to true
	Scale  *bool  `json:"scale,omitempty"`
}

type RoundConfig struct {
	Step int `json:"step"`
}

type MergeConfig struct {
	Method string  `json:"method,omitempty"`
	NoData float64 `json:"nodata,omitempty"`
	Bands  []int   `json:"bands,omitempty"`
	// Offset defaults to 64
	Offset *int    `json:"offset,omitempty"`
}

type ParallelConfig struct {
	Workers int        `json:"workers"`
	Step    StepConfig `json:"step"`
}

// LoadPipeline parses a YAML pipeline description and builds the Composite
// it describes. predictor serves the inference steps and may be nil if there
// are none. Every step is validated here, before anything runs.
func LoadPipeline(data []byte, predictor Predictor, opts ...Option) (Composite, error) {
	var cfg PipelineConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Composite{}, fmt.Errorf("parse pipeline: %w", err)
	}
	return cfg.Build(predictor, opts...)
}

func (pc PipelineConfig) Build(predictor Predictor, opts ...Option) (Composite, error) {
	if len(pc.Steps) == 0 {
		return Composite{}, ErrInvalidOption{"pipeline has no steps"}
	}
	o := newOpOptions(opts)
	steps := make([]Step, len(pc.Steps))
	for i, sc := range pc.Steps {
		s, err := sc.step(predictor, o.logger)
		if err != nil {
			return Composite{}, fmt.Errorf("step %d: %w", i, err)
		}
		steps[i] = s
	}
	return NewComposite(steps, opts...), nil
}

func (sc StepConfig) count() int {
	n := 0
	for _, set := range []bool{sc.Reproject != nil, sc.Split != nil, sc.Pad != nil, sc.Unpad != nil,
		sc.BandRemove != nil, sc.Dtype != nil, sc.Round != nil, sc.Inference != nil,
		sc.Merge != nil, sc.Parallel != nil} {
		if set {
			n++
		}
	}
	return n
}

func (sc StepConfig) step(predictor Predictor, logger *zap.Logger) (Step, error) {
	if n := sc.count(); n != 1 {
		return nil, ErrInvalidOption{fmt.Sprintf("a step must define exactly one operation, got %d", n)}
	}
	switch {
	case sc.Split != nil:
		s, err := NewSplit(HeightWidth{sc.Split.Tile[0], sc.Split.Tile[1]}, sc.Split.Offset, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return FlatMap(s), nil
	case sc.Merge != nil:
		mopts := []MergeOption{MergeNoData(sc.Merge.NoData), WithLogger(logger)}
		if sc.Merge.Offset != nil {
			mopts = append(mopts, BlendOffset(*sc.Merge.Offset))
		}
		if sc.Merge.Method != "" {
			mopts = append(mopts, Method(MergeMethod(sc.Merge.Method)))
		}
		if len(sc.Merge.Bands) > 0 {
			mopts = append(mopts, MergeBands(sc.Merge.Bands...))
		}
		m, err := NewMerge(mopts...)
		if err != nil {
			return nil, err
		}
		return Reduce(m), nil
	case sc.Parallel != nil:
		if sc.Parallel.Workers < 1 {
			return nil, ErrInvalidOption{"parallel workers must be >=1"}
		}
		op, err := sc.Parallel.Step.operation(predictor, logger)
		if err != nil {
			return nil, fmt.Errorf("parallel: %w", err)
		}
		return Parallel(op, sc.Parallel.Workers), nil
	}
	op, err := sc.operation(predictor, logger)
	if err != nil {
		return nil, err
	}
	return Map(op), nil
}

// operation builds the raster to raster operations
func (sc StepConfig) operation(predictor Predictor, logger *zap.Logger) (Operation, error) {
	if n := sc.count(); n != 1 {
		return nil, ErrInvalidOption{fmt.Sprintf("a step must define exactly one operation, got %d", n)}
	}
	switch {
	case sc.Reproject != nil:
		ropts := []ReprojectOption{WithLogger(logger)}
		if sc.Reproject.Resampling != "" {
			ropts = append(ropts, Resampling(sc.Reproject.Resampling))
		}
		if len(sc.Reproject.Bands) > 0 {
			ropts = append(ropts, ReprojectBands(sc.Reproject.Bands...))
		}
		if sc.Reproject.Switches != "" {
			ropts = append(ropts, WarpSwitches(sc.Reproject.Switches))
		}
		return NewReproject(sc.Reproject.EPSG, ropts...)
	case sc.Pad != nil:
		return NewPad(sc.Pad.Padding, sc.Pad.Divisor)
	case sc.Unpad != nil:
		return Unpad{}, nil
	case sc.BandRemove != nil:
		return NewBandRemove(sc.BandRemove.Band, WithLogger(logger))
	case sc.Dtype != nil:
		dopts := []DtypeOption{WithLogger(logger)}
		if sc.Dtype.Scale != nil {
			dopts = append(dopts, Scale(*sc.Dtype.Scale))
		}
		return NewDtypeConvert(sc.Dtype.Target, dopts...)
	case sc.Round != nil:
		return NewRound(sc.Round.Step)
	case sc.Inference != nil:
		return NewInference(predictor, WithLogger(logger))
	}
	return nil, ErrInvalidOption{"split, merge and parallel are not raster to raster operations"}
}
