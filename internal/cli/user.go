package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/engine"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Administer users in a session",
}

var userAddCmd = &cobra.Command{
	Use:   "add <session> <user> [nickname]",
	Short: "Register a user at the initial level",
	Args:  cobra.RangeArgs(2, 3),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		key, err := sessionArg(args[0])
		if err != nil {
			return err
		}
		nickname := ""
		if len(args) == 3 {
			nickname = args[2]
		}
		p, err := a.eng.AddUser(ctx, key, args[1], nickname)
		if err != nil {
			return err
		}
		printProfile(cmd, "added", p)
		return nil
	}),
}

var userRmCmd = &cobra.Command{
	Use:   "rm <session> <user>",
	Short: "Remove a user and its nickname history",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		key, err := sessionArg(args[0])
		if err != nil {
			return err
		}
		if err := a.eng.RemoveUser(ctx, key, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s\n", args[1], key)
		return nil
	}),
}

var userLevelCmd = &cobra.Command{
	Use:   "level <session> <user> <level>",
	Short: "Set a user's level",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		key, err := sessionArg(args[0])
		if err != nil {
			return err
		}
		level, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("level must be an integer: %q", args[2])
		}
		p, err := a.eng.SetAbsoluteLevel(ctx, key, args[1], level)
		if err != nil {
			return err
		}
		printProfile(cmd, "updated", p)
		return nil
	}),
}

var userNickCmd = &cobra.Command{
	Use:   "nick <session> <user> <nickname>",
	Short: "Set a user's current nickname",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		key, err := sessionArg(args[0])
		if err != nil {
			return err
		}
		p, err := a.eng.SetNickname(ctx, key, args[1], args[2])
		if err != nil {
			return err
		}
		printProfile(cmd, "updated", p)
		return nil
	}),
}

var userUnnickCmd = &cobra.Command{
	Use:   "unnick <session> <user> <nickname>",
	Short: "Clear a user's current nickname",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		key, err := sessionArg(args[0])
		if err != nil {
			return err
		}
		if err := a.eng.RemoveNickname(ctx, key, args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared nickname %q of %s\n", args[2], args[1])
		return nil
	}),
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userRmCmd)
	userCmd.AddCommand(userLevelCmd)
	userCmd.AddCommand(userNickCmd)
	userCmd.AddCommand(userUnnickCmd)
}

// withApp wraps a command body with setup and teardown of the engine.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), cmd, a, args)
	}
}

func printProfile(cmd *cobra.Command, verb string, p *engine.Profile) {
	nick := p.Nickname
	if nick == "" {
		nick = "-"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s) in %s: level %d [%s]\n",
		verb, p.UserID, nick, p.Session, p.Level, p.Tier)
}
