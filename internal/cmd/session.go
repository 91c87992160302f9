package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atikulmunna/kitsune/internal/session"
	"github.com/atikulmunna/kitsune/internal/watcher"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage saved sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.Open(cfg.SessionFile, log)
		if err != nil {
			return err
		}

		sessions := store.UserSessions()
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no saved sessions")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tFILES\tLAST OPENED")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Name, len(s.FilePaths), s.LastOpenedAt.Format(time.DateTime))
		}
		return tw.Flush()
	},
}

var sessionSaveCmd = &cobra.Command{
	Use:   "save NAME PATHS...",
	Short: "Save files (or glob patterns) as a named session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := watcher.Expand(args[1:])
		if err != nil {
			return fmt.Errorf("expand patterns: %w", err)
		}
		store, err := session.Open(cfg.SessionFile, log)
		if err != nil {
			return err
		}
		if err := store.Save(args[0], paths); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved session %q to %s\n", args[0], store.Path())
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.Open(cfg.SessionFile, log)
		if err != nil {
			return err
		}
		return store.Delete(args[0])
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd, sessionSaveCmd, sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}
