// Package commands implements the geococo subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/geococo"
	"github.com/menta2k/geococo/internal/config"
	"github.com/menta2k/geococo/internal/logging"
	"github.com/menta2k/geococo/internal/metrics"
	"github.com/menta2k/geococo/internal/utils"
	"github.com/menta2k/geococo/pkg/chipper"
	"github.com/menta2k/geococo/pkg/dataset"
	"github.com/menta2k/geococo/pkg/processing"
	"github.com/menta2k/geococo/pkg/repair"
)

// Runtime is the per-invocation state shared by all commands.
type Runtime struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type runtimeKey struct{}

// WithRuntime stores rt in ctx.
func WithRuntime(ctx context.Context, rt *Runtime) context.Context {
	ctx = logging.WithLogger(ctx, rt.Logger)
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// GetRuntime retrieves the runtime from the command context. Without one,
// defaults and a discarding logger are used.
func GetRuntime(ctx context.Context) *Runtime {
	if ctx != nil {
		if rt, ok := ctx.Value(runtimeKey{}).(*Runtime); ok {
			return rt
		}
	}
	m, _ := metrics.New(nil)
	return &Runtime{Config: config.Default(), Logger: logging.FromContext(ctx), Metrics: m}
}

// pipeline builds the library facade from the loaded configuration.
func (rt *Runtime) pipeline() (*geococo.Pipeline, error) {
	c := rt.Config
	proc, err := processing.NewProcessorWithFormat(c.Chip.Format, c.Chip.Quality, c.Chip.Lossless)
	if err != nil {
		return nil, err
	}
	proc.WithRGB(c.Chip.RGB)
	chipConfig := chipper.Config{
		Size:              c.Chip.Size,
		Workers:           c.Workers,
		FirstImageID:      c.Chip.FirstImageID,
		FirstAnnotationID: c.Chip.FirstAnnotationID,
		SwapOrigin:        c.Chip.SwapOrigin,
	}
	repairOpts := repair.Options{Legacy: c.Repair.Legacy, Strict: c.Repair.Strict}
	return geococo.NewWithConfig(chipConfig, repairOpts, proc, rt.Logger), nil
}

// observe records how long op has been running since start.
func (rt *Runtime) observe(op string, start time.Time) {
	rt.Metrics.ObserveDuration(op, time.Since(start))
}

func loadDataset(rt *Runtime, path string) (*dataset.Dataset, error) {
	ds, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}
	rt.Logger.Debug("dataset loaded", "path", path,
		"images", len(ds.Images), "annotations", len(ds.Annotations), "categories", len(ds.Categories))
	return ds, nil
}

func saveDataset(cmd *cobra.Command, rt *Runtime, ds *dataset.Dataset, path string) error {
	if path == "" {
		return fmt.Errorf("--out is required")
	}
	if err := dataset.Save(ds, path, dataset.SaveOptions{Overwrite: rt.Config.Overwrite}); err != nil {
		return err
	}
	size := int64(0)
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	rt.Logger.Info("dataset written", "path", path, "size", utils.FormatFileSize(size))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d images, %d annotations, %d categories\n",
		path, len(ds.Images), len(ds.Annotations), len(ds.Categories))
	return nil
}

func addOutFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("out", "O", "", "Output annotation file")
	_ = cmd.MarkFlagRequired("out")
}
