package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/engine"
)

var tierCmd = &cobra.Command{
	Use:   "tier [level]",
	Short: "Show the tier table, or the tier for one level",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTier,
}

func runTier(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	table, err := cfg.TierTable()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIER\tRANGE\tEFFECT")
		for _, t := range table.Tiers() {
			fmt.Fprintf(tw, "%s\t[%d, %d]\t%s\n", t.Name, t.Min, t.Max, t.Effect)
		}
		return tw.Flush()
	}

	level, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("level must be an integer: %q", args[0])
	}
	t, ok := table.Resolve(level)
	if !ok {
		return &engine.RangeError{Level: level, Min: table.MinLevel(), Max: table.MaxLevel()}
	}
	fmt.Fprintf(out, "%d: %s\n  %s\n", level, t.Name, t.Effect)
	return nil
}
