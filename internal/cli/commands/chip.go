package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/geococo/internal/utils"
)

// NewChipCommand creates the chip command.
func NewChipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chip <annotations>",
		Short: "Cut source images into fixed-size chips",
		Long: `Cut every source image into a grid of size x size chips and write a new
annotation file whose images and annotations are entirely chip-level records.

An annotation belongs to the chip containing the center of its box; boxes
are translated into the chip frame and clipped to it. Chips without
annotations are not written. Missing source images and failing chips are
counted and reported, they do not abort the run.`,
		Example: `  # Cut 512px PNG chips
  geococo chip train.json --images ./images --chips ./chips --out chips/train.json

  # Repair boxes first and write WebP chips with 8 workers
  geococo chip train.json --images ./images --chips ./chips --out chips/train.json \
    --repair --format webp --workers 8`,
		Args: cobra.ExactArgs(1),
		RunE: runChip,
	}

	cmd.Flags().String("images", "", "Directory holding the source images")
	cmd.Flags().String("chips", "", "Directory to write chips to")
	cmd.Flags().Int("size", 512, "Chip edge length in pixels")
	cmd.Flags().String("format", "png", "Chip format (png|jpg|webp|tiff)")
	cmd.Flags().Int("quality", 90, "JPEG/WebP quality (1-100)")
	cmd.Flags().Bool("lossless", false, "WebP lossless mode")
	cmd.Flags().Bool("rgb", false, "Write chips as 8-bit RGB, dropping alpha and palettes")
	cmd.Flags().Int64("first-image-id", 1, "First chip image id")
	cmd.Flags().Int64("first-annotation-id", 1, "First chip annotation id")
	cmd.Flags().Bool("swap-origin", false, "Translate annotations by the (y, x) cell origin")
	cmd.Flags().Bool("repair", false, "Run boundary repair before chipping")
	cmd.Flags().Bool("legacy", false, "Use the legacy boundary repair comparisons")
	_ = cmd.MarkFlagRequired("images")
	_ = cmd.MarkFlagRequired("chips")
	addOutFlag(cmd)

	return cmd
}

func runChip(cmd *cobra.Command, args []string) error {
	rt := GetRuntime(cmd.Context())
	imageDir, _ := cmd.Flags().GetString("images")
	chipDir, _ := cmd.Flags().GetString("chips")
	out, _ := cmd.Flags().GetString("out")
	withRepair, _ := cmd.Flags().GetBool("repair")

	if !utils.DirExists(imageDir) {
		return fmt.Errorf("image directory %s does not exist", imageDir)
	}
	if err := utils.EnsureDir(chipDir); err != nil {
		return fmt.Errorf("failed to create chip directory: %w", err)
	}

	p, err := rt.pipeline()
	if err != nil {
		return err
	}
	ds, err := loadDataset(rt, args[0])
	if err != nil {
		return err
	}

	if withRepair {
		start := time.Now()
		repaired, report := p.Repair(ds)
		rt.Metrics.RecordRepair(report)
		rt.observe("repair", start)
		rt.Logger.Info("boundary repair done", "repaired", report.Repaired, "dropped", report.Dropped)
		ds = repaired
	}

	start := time.Now()
	res, err := p.Chip(cmd.Context(), ds, imageDir, chipDir)
	if err != nil {
		return err
	}
	rt.Metrics.RecordChip(res.Summary)
	rt.observe("chip", start)

	s := res.Summary
	for _, f := range s.Failures {
		rt.Logger.Warn("chipping failure", "error", f)
	}
	rt.Logger.Info("chipping done",
		"source_images", s.SourceImages, "images_skipped", s.ImagesSkipped,
		"chips", s.ChipsEmitted, "chips_skipped", s.ChipsSkipped,
		"annotations", s.AnnotationsEmitted, "clipped", s.AnnotationsClipped,
		"unassigned", s.AnnotationsUnassigned, "unresolved", s.AnnotationsUnresolved)

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "%d chips from %d source images\n", s.ChipsEmitted, s.SourceImages-s.ImagesSkipped)
	if s.ImagesSkipped > 0 {
		_, _ = fmt.Fprintf(w, "%d source images skipped: pixels unavailable\n", s.ImagesSkipped)
	}
	if s.ChipsSkipped > 0 {
		_, _ = fmt.Fprintf(w, "%d chips skipped due to extraction failure\n", s.ChipsSkipped)
	}
	return saveDataset(cmd, rt, res.Dataset, out)
}
