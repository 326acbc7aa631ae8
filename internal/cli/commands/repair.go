package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewRepairCommand creates the repair command.
func NewRepairCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair <annotations>",
		Short: "Repair boxes that extend past their image",
		Long: `Clamp annotation boxes that extend past the edges of their image.

A far edge is clamped only when the box center lies on the image; a negative
near edge is clamped to zero when the center is non-negative. Boxes left
with no width or height are dropped, as are annotations on unknown images.`,
		Example: `  geococo repair train.json --out train.repaired.json
  geococo repair train.json --out train.repaired.json --strict`,
		Args: cobra.ExactArgs(1),
		RunE: runRepair,
	}
	cmd.Flags().Bool("legacy", false, "Use the legacy comparisons of the original scripts")
	cmd.Flags().Bool("strict", false, "Drop boxes that remain out of bounds")
	addOutFlag(cmd)
	return cmd
}

func runRepair(cmd *cobra.Command, args []string) error {
	rt := GetRuntime(cmd.Context())
	out, _ := cmd.Flags().GetString("out")

	p, err := rt.pipeline()
	if err != nil {
		return err
	}
	ds, err := loadDataset(rt, args[0])
	if err != nil {
		return err
	}

	start := time.Now()
	repaired, report := p.Repair(ds)
	rt.Metrics.RecordRepair(report)
	rt.observe("repair", start)

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d repaired, %d unchanged, %d dropped, %d unrepairable, %d unresolved\n",
		report.Repaired, report.Unchanged, report.Dropped, report.Unrepairable, report.Unresolved)
	return saveDataset(cmd, rt, repaired, out)
}
