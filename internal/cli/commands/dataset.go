package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/geococo/internal/utils"
	"github.com/menta2k/geococo/pkg/chipper"
	"github.com/menta2k/geococo/pkg/dataset"
)

// NewCenterpointsCommand creates the centerpoints command.
func NewCenterpointsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "centerpoints <annotations>",
		Short: "Add object_center to every annotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := GetRuntime(cmd.Context())
			out, _ := cmd.Flags().GetString("out")
			ds, err := loadDataset(rt, args[0])
			if err != nil {
				return err
			}
			return saveDataset(cmd, rt, dataset.WithCenterpoints(ds), out)
		},
	}
	addOutFlag(cmd)
	return cmd
}

// NewSelectCommand creates the select command.
func NewSelectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <annotations>",
		Short: "Extract the records of a set of images",
		Long: `Build a dataset holding only the named images and their annotations.
Names come from a text file (one file_name per line) or from the raster
files present in a directory. Names without a matching image are reported.`,
		Example: `  geococo select train.json --names val.txt --out val.json
  geococo select train.json --image-dir ./val_images --out val.json`,
		Args: cobra.ExactArgs(1),
		RunE: runSelect,
	}
	cmd.Flags().String("names", "", "Text file with one image file_name per line")
	cmd.Flags().String("image-dir", "", "Select the images present in this directory")
	cmd.MarkFlagsMutuallyExclusive("names", "image-dir")
	cmd.MarkFlagsOneRequired("names", "image-dir")
	addOutFlag(cmd)
	return cmd
}

func runSelect(cmd *cobra.Command, args []string) error {
	rt := GetRuntime(cmd.Context())
	out, _ := cmd.Flags().GetString("out")
	namesFile, _ := cmd.Flags().GetString("names")
	imageDir, _ := cmd.Flags().GetString("image-dir")

	var names []string
	var err error
	if namesFile != "" {
		names, err = utils.ReadLines(namesFile)
	} else {
		names, err = utils.ListImageFiles(imageDir)
	}
	if err != nil {
		return err
	}

	ds, err := loadDataset(rt, args[0])
	if err != nil {
		return err
	}
	selected, missing := dataset.SelectImages(ds, names)
	for _, name := range missing {
		rt.Logger.Warn("image not in dataset", "file_name", name)
	}
	if len(missing) > 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d names not found in %s\n", len(missing), len(names), args[0])
	}
	return saveDataset(cmd, rt, selected, out)
}

// NewAttachGSDCommand creates the attach-gsd command.
func NewAttachGSDCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach-gsd <source-annotations> <chip-annotations>",
		Short: "Copy source image GSD onto chip records",
		Long: `Recover each chip's source image from its file name and copy the source
gsd value onto the chip image record.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := GetRuntime(cmd.Context())
			out, _ := cmd.Flags().GetString("out")
			full, err := loadDataset(rt, args[0])
			if err != nil {
				return err
			}
			chips, err := loadDataset(rt, args[1])
			if err != nil {
				return err
			}
			attached, unresolved := chipper.AttachGSD(full, chips)
			if unresolved > 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d chips whose source image could not be resolved\n", unresolved)
			}
			return saveDataset(cmd, rt, attached, out)
		},
	}
	addOutFlag(cmd)
	return cmd
}
