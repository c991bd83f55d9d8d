package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wuhu-dev/wuhu/internal/config"
	"github.com/wuhu-dev/wuhu/internal/storage"
)

var sessionsListLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx := context.Background()
		db, err := storage.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		transcript := storage.NewTranscriptStore(db)
		sessions, err := transcript.ListSessions(ctx, sessionsListLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tENVIRONMENT\tPROVIDER\tMODEL\tUPDATED")
		for _, sess := range sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", sess.ID, sess.Environment.Name, sess.ProviderID, sess.ModelID, sess.UpdatedAt)
		}
		return tw.Flush()
	},
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsListLimit, "limit", 50, "Maximum number of sessions to list (0 = all)")
	sessionsCmd.AddCommand(sessionsListCmd)
}
