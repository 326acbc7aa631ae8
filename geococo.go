// Package geococo prepares COCO-style overhead-imagery datasets for training.
//
// It cuts large source rasters into fixed-size chips, repairs annotation
// boxes that spill over image edges, and remaps category tables.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/menta2k/geococo"
//	)
//
//	func main() {
//		p := geococo.New()
//
//		ds, err := p.LoadDataset("train.json")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// Fix boxes that leave their image before chipping
//		ds, report := p.Repair(ds)
//		fmt.Printf("repaired %d, dropped %d\n", report.Repaired, report.Dropped)
//
//		res, err := p.Chip(context.Background(), ds, "images", "chips")
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := p.SaveDataset(res.Dataset, "chips/train.json", false); err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("%d chips, %d skipped\n", res.Summary.ChipsEmitted, res.Summary.ChipsSkipped)
//	}
//
// The package is a thin facade over:
//
// 1. Dataset (pkg/dataset): loading, saving and indexing annotation files
// 2. Planner and Chipper (pkg/planner, pkg/chipper): grid planning and chip materialization
// 3. Repair (pkg/repair): boundary repair of annotation boxes
// 4. Remap (pkg/remap): supercategory collapse, category subsets and alignment
// 5. Validate (pkg/validate): invariant checks on any dataset
//
// Every transform returns a new dataset; inputs are never modified.
package geococo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/menta2k/geococo/pkg/chipper"
	"github.com/menta2k/geococo/pkg/dataset"
	"github.com/menta2k/geococo/pkg/processing"
	"github.com/menta2k/geococo/pkg/remap"
	"github.com/menta2k/geococo/pkg/repair"
	"github.com/menta2k/geococo/pkg/validate"
)

// Version of the geococo library
const Version = "1.0.0"

// Pipeline provides a high-level interface over the dataset transforms
type Pipeline struct {
	chip      chipper.Config
	repair    repair.Options
	processor *processing.Processor
	logger    *slog.Logger
}

// New creates a Pipeline with default configuration writing PNG chips
func New() *Pipeline {
	return NewWithConfig(chipper.DefaultConfig(), repair.Options{}, processing.NewProcessor(), nil)
}

// NewWithConfig creates a Pipeline with custom configuration. A nil
// processor writes PNG; a nil logger uses slog.Default().
func NewWithConfig(chipConfig chipper.Config, repairOpts repair.Options, processor *processing.Processor, logger *slog.Logger) *Pipeline {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chip:      chipConfig,
		repair:    repairOpts,
		processor: processor,
		logger:    logger,
	}
}

// LoadDataset reads an annotation file
func (p *Pipeline) LoadDataset(path string) (*dataset.Dataset, error) {
	return dataset.Load(path)
}

// SaveDataset writes an annotation file. Without overwrite an existing file
// is an error.
func (p *Pipeline) SaveDataset(ds *dataset.Dataset, path string, overwrite bool) error {
	return dataset.Save(ds, path, dataset.SaveOptions{Overwrite: overwrite})
}

// Chip cuts the images of ds, read from imageDir, into chips written to
// chipDir.
func (p *Pipeline) Chip(ctx context.Context, ds *dataset.Dataset, imageDir, chipDir string) (*chipper.Result, error) {
	src := processing.NewStore(imageDir, p.processor)
	dst := processing.NewStore(chipDir, p.processor)
	return chipper.NewWithConfig(p.chip, p.logger).Chip(ctx, ds, src, dst)
}

// Repair applies boundary repair to every annotation of ds
func (p *Pipeline) Repair(ds *dataset.Dataset) (*dataset.Dataset, repair.Report) {
	return repair.Repair(ds, p.repair, p.logger)
}

// CollapseToSupercategory replaces categories by their supercategories
func (p *Pipeline) CollapseToSupercategory(ds *dataset.Dataset) (*dataset.Dataset, remap.Report) {
	return remap.CollapseToSupercategory(ds, p.logger)
}

// Subset keeps only the annotations of the allowed categories
func (p *Pipeline) Subset(ds *dataset.Dataset, allow []int64, opts remap.SubsetOptions) (*dataset.Dataset, remap.Report) {
	return remap.Subset(ds, allow, opts)
}

// Align rewrites target to use the category ids of reference
func (p *Pipeline) Align(reference, target *dataset.Dataset) (*dataset.Dataset, error) {
	return remap.Align(reference, target)
}

// Validate returns every invariant violation in ds
func (p *Pipeline) Validate(ds *dataset.Dataset) []validate.Violation {
	return validate.Check(ds)
}

// ProcessDatasetFile is a convenience function that loads an annotation
// file, repairs it, chips it and saves the chip dataset to outPath.
func (p *Pipeline) ProcessDatasetFile(ctx context.Context, inPath, imageDir, chipDir, outPath string, overwrite bool) (*chipper.Summary, error) {
	ds, err := p.LoadDataset(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	repaired, report := p.Repair(ds)
	p.logger.Info("boundary repair done",
		"repaired", report.Repaired, "dropped", report.Dropped, "unresolved", report.Unresolved)

	res, err := p.Chip(ctx, repaired, imageDir, chipDir)
	if err != nil {
		return nil, fmt.Errorf("chipping failed: %w", err)
	}

	if err := p.SaveDataset(res.Dataset, outPath, overwrite); err != nil {
		return nil, fmt.Errorf("failed to save chip dataset: %w", err)
	}
	return &res.Summary, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
