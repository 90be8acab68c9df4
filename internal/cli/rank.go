package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	rankPage int
	rankSize int
)

var rankCmd = &cobra.Command{
	Use:   "rank <session>",
	Short: "Show the session ranking",
	Args:  cobra.ExactArgs(1),
	RunE:  runRank,
}

func init() {
	rankCmd.Flags().IntVarP(&rankPage, "page", "p", 1, "Page number, starting at 1")
	rankCmd.Flags().IntVarP(&rankSize, "size", "s", 10, "Entries per page")
}

func runRank(cmd *cobra.Command, args []string) error {
	key, err := sessionArg(args[0])
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.eng.Ranking(context.Background(), key, rankPage, rankSize)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(page.Entries) == 0 {
		fmt.Fprintf(out, "No users on page %d of %s.\n", page.Page, page.Session)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range page.Entries {
		name := e.Nickname
		if name == "" {
			name = e.UserID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", humanize.Ordinal(e.Rank), name, e.UserID, e.Level)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "page %d/%d, %s users\n", page.Page, page.TotalPages, humanize.Comma(int64(page.Total)))
	return nil
}
