package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/engine"
)

var (
	scoreIntensity int
	scoreEvidence  string
)

var scoreCmd = &cobra.Command{
	Use:   "score <session> <user> <interaction-type>",
	Short: "Apply one classified interaction to a user",
	Long: "Apply one classified interaction to a user. Session is type:id, e.g. group:12345.\n" +
		"Interaction types: " + strings.Join(engine.InteractionTypes(), ", "),
	Args: cobra.ExactArgs(3),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().IntVarP(&scoreIntensity, "intensity", "i", 2, "Intensity 1-3")
	scoreCmd.Flags().StringVarP(&scoreEvidence, "evidence", "e", "", "Short evidence snippet kept in the audit log")
}

func runScore(cmd *cobra.Command, args []string) error {
	key, err := sessionArg(args[0])
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.eng.Score(context.Background(), key, args[1], args[2], scoreIntensity, scoreEvidence)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s x%d: %+d (%d -> %d) [%s]\n",
		r.UserID, r.InteractionType, r.Intensity, r.Delta, r.OldLevel, r.NewLevel, r.Tier)
	if clips := r.Clips.Names(); len(clips) > 0 {
		fmt.Fprintf(out, "  clipped by: %s\n", strings.Join(clips, ", "))
	}
	return nil
}
