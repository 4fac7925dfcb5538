package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/debrismap"
	"github.com/airbusgeo/debrismap/store"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand shares once the root command has run
type env struct {
	verbose   bool
	blocksize string
	numBlocks int
	startTime time.Time
	runID     string
	logger    *zap.Logger
	stcl      *storage.Client
}

func newRootCommand() *cobra.Command {
	e := &env{}
	cmd := &cobra.Command{
		Use:   "debrismap",
		Short: "marine debris detection on satellite scenes",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			e.logger.Info("done", zap.String("command", cmd.Name()), zap.String("run_id", e.runID),
				zap.Float64("seconds", time.Since(e.startTime).Seconds()))
			_ = e.logger.Sync()
			if e.stcl != nil {
				_ = e.stcl.Close()
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&e.verbose, "verbose", false, "verbose output")
	cmd.PersistentFlags().StringVar(&e.blocksize, "blocksize", "512k", "gs cache blocksize")
	cmd.PersistentFlags().IntVar(&e.numBlocks, "numblocks", 500, "number of gs cached blocks")
	cmd.AddCommand(newPredictCommand(e), newRunCommand(e), newVectorizeCommand(e))
	return cmd
}

func (e *env) setup(ctx context.Context) error {
	e.startTime = time.Now()
	e.runID = uuid.New().String()
	var err error
	if e.verbose {
		e.logger, err = zap.NewDevelopment()
	} else {
		e.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	godal.RegisterAll()

	if e.stcl, err = storage.NewClient(ctx); err != nil {
		// local files still work without credentials
		e.logger.Warn("no storage client, gs:// paths disabled", zap.Error(err))
		e.stcl = nil
		return nil
	}
	gcsh, err := gcs.Handle(ctx, gcs.GCSClient(e.stcl))
	if err != nil {
		return fmt.Errorf("gcs.handle: %w", err)
	}
	gcsa, err := osio.NewAdapter(gcsh, osio.BlockSize(e.blocksize), osio.NumCachedBlocks(e.numBlocks))
	if err != nil {
		return fmt.Errorf("osio.new: %w", err)
	}
	if err := godal.RegisterVSIHandler("gs://", gcsa); err != nil {
		return fmt.Errorf("register osio: %w", err)
	}
	return nil
}

// readFile reads a local or gs:// file
func (e *env) readFile(ctx context.Context, name string) ([]byte, error) {
	if b, o, ok := store.SplitURL(name); ok {
		if e.stcl == nil {
			return nil, fmt.Errorf("no storage client to read %s", name)
		}
		r, err := e.stcl.Bucket(b).Object(o).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return os.ReadFile(name)
}

func (e *env) writeRaster(ctx context.Context, name string, r debrismap.Raster) error {
	w, err := store.Create(ctx, e.stcl, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(r.Content); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	e.logger.Info("raster written", zap.String("name", name), zap.Int("width", r.Size.Width),
		zap.Int("height", r.Size.Height), zap.Ints("bands", r.Bands))
	return nil
}

// upload copies r to bucket under prefix, named after the base name of
// output, and returns its gs:// url
func (e *env) upload(ctx context.Context, bucket, prefix, output string, r debrismap.Raster) (string, error) {
	url, err := store.NewGCS(e.stcl, bucket, prefix).PutRaster(ctx, path.Base(output), r)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", output, err)
	}
	e.logger.Info("raster uploaded", zap.String("url", url))
	return url, nil
}

// outputName numbers outputs when a pipeline yields more than one raster
func outputName(name string, i, n int) string {
	if n == 1 {
		return name
	}
	ext := ".tif"
	if strings.HasSuffix(name, ext) {
		name = strings.TrimSuffix(name, ext)
	}
	return fmt.Sprintf("%s_%03d%s", name, i, ext)
}
