package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/geococo/pkg/processing"
	"github.com/menta2k/geococo/pkg/validate"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <annotations>",
		Short: "Check a dataset for broken references and invalid boxes",
		Long: `Check that every annotation references an existing image and category,
that ids are unique, and that every box has positive size and lies on its
image. With --images every raster is also decoded and its size compared
with the image record.

Exits non-zero when any violation is found.`,
		Example: `  geococo validate chips/train.json
  geococo validate train.json --images ./images`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
	cmd.Flags().String("images", "", "Also check rasters in this directory")
	cmd.Flags().Int("max-report", 50, "Maximum number of violations to print")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	rt := GetRuntime(cmd.Context())
	imageDir, _ := cmd.Flags().GetString("images")
	maxReport, _ := cmd.Flags().GetInt("max-report")

	ds, err := loadDataset(rt, args[0])
	if err != nil {
		return err
	}

	violations := validate.Check(ds)
	if imageDir != "" {
		store := processing.NewStore(imageDir, processing.NewProcessor())
		violations = append(violations, validate.CheckRasters(ds, store)...)
	}

	w := cmd.OutOrStdout()
	info := validate.GetInfo(ds)
	_, _ = fmt.Fprintf(w, "%s: %d images, %d annotations, %d categories\n",
		args[0], info.Images, info.Annotations, info.Categories)
	if len(violations) == 0 {
		_, _ = fmt.Fprintln(w, "OK")
		return nil
	}

	counts := make(map[validate.Rule]int)
	for i, v := range violations {
		counts[v.Rule]++
		if i < maxReport {
			_, _ = fmt.Fprintln(w, v.String())
		}
	}
	for rule, n := range counts {
		rt.Logger.Info("violations", "rule", string(rule), "count", n)
	}
	return fmt.Errorf("%d violations found in %s", len(violations), args[0])
}
