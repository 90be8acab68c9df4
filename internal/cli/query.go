package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/store"
)

var queryEvents int

var queryCmd = &cobra.Command{
	Use:   "query <session> <user-id|nickname>",
	Short: "Show a user's level and tier",
	Long:  "Resolve a user by id, then by current nickname, and show the profile. Pending decay is applied first.",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryEvents, "events", "n", 0, "Also list this many recent score events")
}

func runQuery(cmd *cobra.Command, args []string) error {
	key, err := sessionArg(args[0])
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	p, err := a.eng.QueryByIdentifier(ctx, key, args[1])
	var amb *store.AmbiguousLookupError
	if errors.As(err, &amb) {
		return fmt.Errorf("%q is ambiguous, query one of: %s", amb.Nickname, strings.Join(amb.UserIDs, ", "))
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	name := p.UserID
	if p.Nickname != "" {
		name = fmt.Sprintf("%s (%s)", p.Nickname, p.UserID)
	}
	fmt.Fprintf(out, "%s in %s\n", name, p.Session)
	fmt.Fprintf(out, "  level:  %d [%s]\n", p.Level, p.Tier)
	fmt.Fprintf(out, "  effect: %s\n", p.Effect)
	if len(p.FormerNicknames) > 0 {
		fmt.Fprintf(out, "  formerly: %s\n", strings.Join(p.FormerNicknames, ", "))
	}
	if p.LastInteractionAt != nil {
		fmt.Fprintf(out, "  last interaction: %s\n", humanize.Time(*p.LastInteractionAt))
	} else {
		fmt.Fprintln(out, "  last interaction: never")
	}
	fmt.Fprintf(out, "  today: +%d / -%d\n", p.DailyPosGain, p.DailyNegGain)

	if queryEvents <= 0 {
		return nil
	}
	events, err := a.eng.RecentEvents(ctx, key, p.UserID, queryEvents)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nRecent events:")
	for _, ev := range events {
		line := fmt.Sprintf("  %s  %-12s x%d  %+d -> %d",
			humanize.Time(time.Unix(ev.CreatedAt, 0)), ev.InteractionType, ev.Intensity, ev.FinalDelta, ev.NewLevel)
		if len(ev.CapClips) > 0 {
			line += "  (" + strings.Join(ev.CapClips, ", ") + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
