package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/geococo/internal/utils"
	"github.com/menta2k/geococo/pkg/remap"
)

// NewSupercategoriesCommand creates the supercategories command.
func NewSupercategoriesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supercategories <annotations>",
		Short: "Collapse categories into their supercategories",
		Long: `Replace the category table with one category per distinct supercategory,
numbered 1..n in sorted name order, and remap every annotation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := GetRuntime(cmd.Context())
			out, _ := cmd.Flags().GetString("out")
			ds, err := loadDataset(rt, args[0])
			if err != nil {
				return err
			}

			start := time.Now()
			collapsed, report := remap.CollapseToSupercategory(ds, rt.Logger)
			rt.Metrics.RecordRemap("supercategories", report)
			rt.observe("supercategories", start)

			printRemapReport(cmd, report)
			return saveDataset(cmd, rt, collapsed, out)
		},
	}
	addOutFlag(cmd)
	return cmd
}

// NewSubsetCommand creates the subset command.
func NewSubsetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subset <annotations>",
		Short: "Keep only the annotations of selected categories",
		Long: fmt.Sprintf(`Keep only the annotations whose category id is listed in --keep.

With --renumber the kept categories get dense ids starting at 1 in their
original order. With --drop-sparse images left with fewer than %d annotations
are removed together with their annotations.`, remap.MinAnnotationsPerImage),
		Example: `  geococo subset train.json --keep 2,5 --renumber --out subset.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := GetRuntime(cmd.Context())
			out, _ := cmd.Flags().GetString("out")
			keep, _ := cmd.Flags().GetString("keep")
			renumber, _ := cmd.Flags().GetBool("renumber")
			dropSparse, _ := cmd.Flags().GetBool("drop-sparse")

			ids, err := utils.ParseIDList(keep)
			if err != nil {
				return fmt.Errorf("--keep: %w", err)
			}
			ds, err := loadDataset(rt, args[0])
			if err != nil {
				return err
			}

			start := time.Now()
			subset, report := remap.Subset(ds, ids, remap.SubsetOptions{Renumber: renumber, DropSparseImages: dropSparse})
			rt.Metrics.RecordRemap("subset", report)
			rt.observe("subset", start)

			printRemapReport(cmd, report)
			return saveDataset(cmd, rt, subset, out)
		},
	}
	cmd.Flags().String("keep", "", "Comma separated category ids to keep")
	cmd.Flags().Bool("renumber", false, "Renumber kept categories from 1")
	cmd.Flags().Bool("drop-sparse", false, "Drop images with too few kept annotations")
	_ = cmd.MarkFlagRequired("keep")
	addOutFlag(cmd)
	return cmd
}

// NewAlignCommand creates the align command.
func NewAlignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "align <reference> <target>",
		Short: "Rewrite a dataset to use another dataset's category ids",
		Long: `Match the categories of <target> to those of <reference> by name and
rewrite <target> to use the reference ids and category table. A target
category missing from the reference is an error.`,
		Example: `  geococo align train.json val.json --out val.aligned.json`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := GetRuntime(cmd.Context())
			out, _ := cmd.Flags().GetString("out")
			reference, err := loadDataset(rt, args[0])
			if err != nil {
				return err
			}
			target, err := loadDataset(rt, args[1])
			if err != nil {
				return err
			}

			start := time.Now()
			aligned, err := remap.Align(reference, target)
			if err != nil {
				return fmt.Errorf("align %s to %s: %w", args[1], args[0], err)
			}
			rt.Metrics.RecordRemap("align", remap.Report{
				Categories:      len(aligned.Categories),
				AnnotationsKept: len(aligned.Annotations),
			})
			rt.observe("align", start)
			return saveDataset(cmd, rt, aligned, out)
		},
	}
	addOutFlag(cmd)
	return cmd
}

func printRemapReport(cmd *cobra.Command, r remap.Report) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d categories, %d annotations kept, %d dropped, %d unresolved, %d images dropped\n",
		r.Categories, r.AnnotationsKept, r.AnnotationsDropped, r.Unresolved, r.ImagesDropped)
}
