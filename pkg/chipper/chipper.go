// Package chipper cuts source images into fixed-size chips and emits a new
// dataset whose images and annotations are entirely chip-level records.
package chipper

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/geococo/pkg/dataset"
	"github.com/menta2k/geococo/pkg/geometry"
	"github.com/menta2k/geococo/pkg/planner"
	"github.com/menta2k/geococo/pkg/types"
)

// maxReportedFailures bounds Summary.Failures; counts are always exact.
const maxReportedFailures = 20

// RasterSource reads source images and cuts regions out of them.
type RasterSource interface {
	Read(name string) (image.Image, error)
	Crop(img image.Image, x, y, w, h int) (image.Image, error)
}

// ChipWriter persists chip pixels.
type ChipWriter interface {
	Write(name string, img image.Image) error
	Extension() string
}

// Config holds configuration for chipping
type Config struct {
	Size              int
	Workers           int
	FirstImageID      int64
	FirstAnnotationID int64
	// SwapOrigin translates annotations by (y, x) of the cell instead of
	// (x, y) and encodes the swapped origin in chip names. Pixels are always
	// cut at (x, y).
	SwapOrigin bool
}

// DefaultConfig returns the default chipping configuration
func DefaultConfig() Config {
	return Config{
		Size:              512,
		Workers:           4,
		FirstImageID:      1,
		FirstAnnotationID: 1,
	}
}

// Chipper turns a dataset plus its image store into a chip dataset
type Chipper struct {
	config Config
	logger *slog.Logger
}

// New creates a Chipper with the default configuration
func New() *Chipper {
	return NewWithConfig(DefaultConfig(), nil)
}

// NewWithConfig creates a Chipper with a custom configuration. A nil logger
// uses slog.Default().
func NewWithConfig(config Config, logger *slog.Logger) *Chipper {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chipper{config: config, logger: logger}
}

// Summary reports what a chipping run produced and skipped.
type Summary struct {
	SourceImages          int
	ImagesSkipped         int
	ChipsPlanned          int
	ChipsEmitted          int
	ChipsSkipped          int
	AnnotationsEmitted    int
	AnnotationsClipped    int
	AnnotationsUnassigned int
	AnnotationsUnresolved int
	Failures              []error
}

// Result is the output of Chip.
type Result struct {
	Dataset *dataset.Dataset
	Summary Summary
}

type plannedChip struct {
	id          int64
	name        string
	region      geometry.Region
	annotations []types.Annotation
	failed      bool
}

type imageJob struct {
	image  types.ImageRecord
	chips  []*plannedChip
	failed error
	errs   []error
}

// Chip plans every image of ds, cuts the non-empty cells out of src and
// writes them to dst. Identifiers are assigned in image order then row-major
// cell order before any pixel work, so the output does not depend on
// Workers. A missing source image or a failing chip is counted in the
// summary and does not abort the run; only context cancellation does.
func (c *Chipper) Chip(ctx context.Context, ds *dataset.Dataset, src RasterSource, dst ChipWriter) (*Result, error) {
	if c.config.Size <= 0 {
		return nil, fmt.Errorf("chip size must be positive, got %d", c.config.Size)
	}

	jobs, summary, err := c.plan(ds, dst.Extension())
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)
	for _, job := range jobs {
		if len(job.chips) == 0 {
			continue
		}
		g.Go(func() error {
			return c.materialize(gctx, job, src, dst)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := ds.Derive()
	for _, job := range jobs {
		if job.failed != nil {
			summary.ImagesSkipped++
			summary.ChipsSkipped += len(job.chips)
			summary.addFailure(job.failed)
			continue
		}
		for _, e := range job.errs {
			summary.addFailure(e)
		}
		for _, chip := range job.chips {
			if chip.failed {
				summary.ChipsSkipped++
				continue
			}
			out.Images = append(out.Images, chipRecord(chip.id, chip.name, c.config.Size, job.image))
			out.Annotations = append(out.Annotations, chip.annotations...)
			summary.ChipsEmitted++
			summary.AnnotationsEmitted += len(chip.annotations)
		}
	}

	c.logger.Debug("chipping finished",
		"chips", summary.ChipsEmitted,
		"chips_skipped", summary.ChipsSkipped,
		"images_skipped", summary.ImagesSkipped)

	return &Result{Dataset: out, Summary: *summary}, nil
}

// plan is the sequential pass: grid, centerpoint assignment, translation,
// clamping and identifier assignment.
func (c *Chipper) plan(ds *dataset.Dataset, ext string) ([]*imageJob, *Summary, error) {
	summary := &Summary{SourceImages: len(ds.Images)}
	byImage := dataset.IndexByImage(ds)
	images := dataset.IndexImages(ds)
	categories := dataset.IndexCategories(ds)

	for _, a := range ds.Annotations {
		if _, ok := images[a.ImageID]; !ok {
			summary.AnnotationsUnresolved++
		}
	}

	nextImage := c.config.FirstImageID
	nextAnn := c.config.FirstAnnotationID
	size := float64(c.config.Size)

	jobs := make([]*imageJob, 0, len(ds.Images))
	for _, im := range ds.Images {
		var anns []types.Annotation
		for _, a := range byImage[im.ID] {
			if _, ok := categories[a.CategoryID]; !ok {
				summary.AnnotationsUnresolved++
				continue
			}
			anns = append(anns, a)
		}

		plan, err := planner.PlanImage(im, anns, c.config.Size)
		if err != nil {
			return nil, nil, err
		}
		summary.AnnotationsUnassigned += plan.Unassigned

		job := &imageJob{image: im}
		for _, cell := range plan.Cells {
			origin := types.Point{X: float64(cell.Region.X), Y: float64(cell.Region.Y)}
			named := cell.Region
			if c.config.SwapOrigin {
				origin = types.Point{X: origin.Y, Y: origin.X}
				named.X, named.Y = cell.Region.Y, cell.Region.X
			}

			var kept []types.Annotation
			for _, a := range cell.Annotations {
				local, ok := geometry.ClampTo(geometry.Translate(a.BBox.Box(), origin), size, size)
				if !ok {
					summary.AnnotationsClipped++
					continue
				}
				kept = append(kept, dataset.WithBox(a, local))
			}
			if len(kept) == 0 {
				continue
			}

			chipID := nextImage
			nextImage++
			for i := range kept {
				kept[i].ID = nextAnn
				kept[i].ImageID = chipID
				nextAnn++
			}
			job.chips = append(job.chips, &plannedChip{
				id:          chipID,
				name:        ChipName(ChipRef{ChipID: chipID, SourceID: im.ID, Region: named, Ext: ext}),
				region:      cell.Region,
				annotations: kept,
			})
		}
		summary.ChipsPlanned += len(job.chips)
		jobs = append(jobs, job)
	}
	return jobs, summary, nil
}

// materialize decodes one source image and writes its chips. Only the job's
// own fields are written, so jobs run concurrently without locking.
func (c *Chipper) materialize(ctx context.Context, job *imageJob, src RasterSource, dst ChipWriter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := src.Read(job.image.FileName)
	if err != nil {
		job.failed = &SourcePixelUnavailableError{ImageID: job.image.ID, FileName: job.image.FileName, Err: err}
		c.logger.Debug("source image unavailable", "image_id", job.image.ID, "file", job.image.FileName, "error", err)
		return nil
	}

	for _, chip := range job.chips {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.writeChip(img, chip, src, dst); err != nil {
			chip.failed = true
			job.errs = append(job.errs, &ChipExtractionError{
				ChipID:   chip.id,
				ImageID:  job.image.ID,
				Region:   chip.region,
				FileName: chip.name,
				Err:      err,
			})
			c.logger.Debug("chip skipped", "chip_id", chip.id, "image_id", job.image.ID, "error", err)
		}
	}
	return nil
}

func (c *Chipper) writeChip(img image.Image, chip *plannedChip, src RasterSource, dst ChipWriter) (err error) {
	defer func() {
		// a panicking codec only costs this chip
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during extraction: %v", r)
		}
	}()
	r := chip.region
	sub, err := src.Crop(img, r.X, r.Y, r.W, r.H)
	if err != nil {
		return err
	}
	return dst.Write(chip.name, sub)
}

func (s *Summary) addFailure(err error) {
	if len(s.Failures) < maxReportedFailures {
		s.Failures = append(s.Failures, err)
	}
}

// Chip is a convenience wrapper around NewWithConfig(config, nil).Chip.
func Chip(ctx context.Context, ds *dataset.Dataset, src RasterSource, dst ChipWriter, config Config) (*Result, error) {
	return NewWithConfig(config, nil).Chip(ctx, ds, src, dst)
}
