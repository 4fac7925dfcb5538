package main

import (
	"context"
	"fmt"
	"path"

	"github.com/airbusgeo/debrismap"
	"github.com/airbusgeo/debrismap/predict"
	"github.com/airbusgeo/debrismap/store"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPredictCommand(e *env) *cobra.Command {
	var endpoint string
	var tile, offset, bands int
	var epsg int
	var warpSwitches string
	var vectorize string
	var threshold int
	var save bool
	var bucket, prefix, model string
	cmd := &cobra.Command{
		Use:   "predict scene.tif output.tif",
		Short: "run the model over a whole scene and write the stitched probabilities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := predict.NewClient(endpoint, predict.Logger(e.logger))
			if err != nil {
				return err
			}
			engine, err := debrismap.NewEngine(client,
				debrismap.TileSize(tile, tile),
				debrismap.Offset(offset),
				debrismap.BandCount(bands),
				debrismap.WithLogger(e.logger))
			if err != nil {
				return err
			}
			scene, err := debrismap.OpenRaster(args[0])
			if err != nil {
				return err
			}
			if epsg != 0 && epsg != scene.CRS {
				rp, err := debrismap.NewReproject(epsg, debrismap.WarpSwitches(warpSwitches),
					debrismap.WithLogger(e.logger))
				if err != nil {
					return err
				}
				if scene, err = rp.Execute(ctx, scene); err != nil {
					return err
				}
			}
			pred, err := engine.Predict(ctx, scene)
			if err != nil {
				return fmt.Errorf("predict %s: %w", args[0], err)
			}
			if err := e.writeRaster(ctx, args[1], pred); err != nil {
				return err
			}
			key := args[1]
			if bucket != "" {
				if key, err = e.upload(ctx, bucket, prefix, args[1], pred); err != nil {
					return err
				}
			}
			if vectorize == "" && !save {
				return nil
			}
			if model == "" {
				model = endpoint
			}
			return e.sink(ctx, sinkArgs{
				key: key, kind: vectorize, table: store.PredictionVectors, band: 1,
				threshold: threshold, save: save, model: model, modelURL: endpoint,
			}, pred)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "model prediction url")
	_ = cmd.MarkFlagRequired("endpoint")
	cmd.Flags().IntVar(&tile, "tile", 480, "model tile size, excluding offset")
	cmd.Flags().IntVar(&offset, "offset", 64, "context margin around each tile")
	cmd.Flags().IntVar(&bands, "bands", 12, "number of leading bands sent to the model")
	cmd.Flags().IntVar(&epsg, "epsg", 0, "reproject the scene to this epsg code first")
	cmd.Flags().StringVar(&warpSwitches, "warp", "", "extra gdalwarp switches used with --epsg, e.g. \"-tr 10 10\"")
	cmd.Flags().StringVar(&vectorize, "vectorize", "", "also extract points or polygons from the prediction")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "vectorize pixels strictly above this value")
	cmd.Flags().BoolVar(&save, "db", false, "record the prediction (and its vectors) in the database")
	cmd.Flags().StringVar(&bucket, "bucket", "", "also upload the prediction to this bucket, recorded under its gs:// url")
	cmd.Flags().StringVar(&prefix, "prefix", "", "object prefix used with --bucket")
	cmd.Flags().StringVar(&model, "model", "", "model identifier recorded with the vectors, defaults to the endpoint")
	return cmd
}

func newRunCommand(e *env) *cobra.Command {
	var pipeline, endpoint string
	var bucket, prefix string
	cmd := &cobra.Command{
		Use:   "run scene.tif output.tif",
		Short: "run a yaml pipeline over a scene",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := e.readFile(ctx, pipeline)
			if err != nil {
				return fmt.Errorf("read pipeline: %w", err)
			}
			var predictor debrismap.Predictor
			if endpoint != "" {
				if predictor, err = predict.NewClient(endpoint, predict.Logger(e.logger)); err != nil {
					return err
				}
			}
			composite, err := debrismap.LoadPipeline(data, predictor, debrismap.WithLogger(e.logger))
			if err != nil {
				return err
			}
			scene, err := debrismap.OpenRaster(args[0])
			if err != nil {
				return err
			}
			outs, err := debrismap.ReadRasters(composite.Run(ctx, debrismap.Rasters(scene)))
			if err != nil {
				return fmt.Errorf("pipeline %s: %w", pipeline, err)
			}
			for i, r := range outs {
				name := outputName(args[1], i, len(outs))
				if err := e.writeRaster(ctx, name, r); err != nil {
					return err
				}
				if bucket != "" {
					if _, err := e.upload(ctx, bucket, prefix, name, r); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "pipeline yaml file")
	_ = cmd.MarkFlagRequired("pipeline")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "model prediction url, for pipelines with inference steps")
	cmd.Flags().StringVar(&bucket, "bucket", "", "also upload the outputs to this bucket")
	cmd.Flags().StringVar(&prefix, "prefix", "", "object prefix used with --bucket")
	return cmd
}

func newVectorizeCommand(e *env) *cobra.Command {
	var kind string
	var band, threshold int
	var save bool
	var scl bool
	var model string
	cmd := &cobra.Command{
		Use:   "vectorize raster.tif",
		Short: "extract points or polygons from a raster band",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := debrismap.OpenRaster(args[0])
			if err != nil {
				return err
			}
			table := store.PredictionVectors
			if scl {
				table, model = store.SceneClassificationVectors, ""
			}
			if save {
				return e.sink(ctx, sinkArgs{
					key: args[0], kind: kind, table: table, band: band,
					threshold: threshold, save: true, model: model,
				}, r)
			}
			vz, err := vectorizer(kind, band, threshold, e.logger)
			if err != nil {
				return err
			}
			vr, err := vz.Vectorize(r)
			if err != nil {
				return err
			}
			vectors, err := debrismap.ReadVectors(vr)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range vectors {
				fmt.Fprintf(out, "%d\t%d\t%s\n", v.CRS, v.PixelValue, wkt.MarshalString(v.Geometry))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "points", "points or polygons")
	cmd.Flags().IntVar(&band, "band", 1, "band to vectorize")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "vectorize pixels strictly above this value")
	cmd.Flags().BoolVar(&save, "db", false, "store vectors in the database instead of printing them")
	cmd.Flags().BoolVar(&scl, "scl", false, "store as scene classification vectors")
	cmd.Flags().StringVar(&model, "model", "", "model identifier recorded with prediction vectors")
	return cmd
}

func vectorizer(kind string, band, threshold int, logger *zap.Logger) (debrismap.Vectorizer, error) {
	switch kind {
	case "points":
		return debrismap.NewPointVectorizer(band, threshold, debrismap.WithLogger(logger))
	case "polygons":
		return debrismap.NewPolygonVectorizer(band, threshold, debrismap.WithLogger(logger))
	}
	return nil, fmt.Errorf("unknown vector kind %q, expecting points or polygons", kind)
}

// sinkArgs says where a raster is recorded. model is stored with the vectors,
// and in the models table when modelURL is set.
type sinkArgs struct {
	key       string
	kind      string
	table     store.VectorKind
	band      int
	threshold int
	save      bool
	model     string
	modelURL  string
}

// sink records r under key and, if kind is set, its vectors
func (e *env) sink(ctx context.Context, a sinkArgs, r debrismap.Raster) error {
	var db *store.DB
	if a.save {
		var err error
		if db, err = store.OpenPostgres(store.DBLogger(e.logger)); err != nil {
			return err
		}
		defer db.Close()
		if _, err := db.SaveRaster(ctx, a.key, r); err != nil {
			return err
		}
		if a.model != "" && a.modelURL != "" {
			if _, err := db.SaveModel(ctx, a.model, a.modelURL); err != nil {
				return err
			}
		}
	}
	if a.kind == "" {
		return nil
	}
	vz, err := vectorizer(a.kind, a.band, a.threshold, e.logger)
	if err != nil {
		return err
	}
	vr, err := vz.Vectorize(r)
	if err != nil {
		return err
	}
	if db == nil {
		vectors, err := debrismap.ReadVectors(vr)
		if err != nil {
			return err
		}
		e.logger.Info("vectors extracted", zap.String("raster", path.Base(a.key)), zap.Int("count", len(vectors)))
		return nil
	}
	_, err = db.SaveVectors(ctx, a.table, a.key, a.model, vr)
	return err
}
