// Package commands provides the CLI commands for wuhu.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wuhu-dev/wuhu/internal/logging"
)

var (
	// Version information set at build time.
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	configPath string
	printLogs  bool
)

var rootCmd = &cobra.Command{
	Use:   "wuhu",
	Short: "wuhu - persistent multi-user coding-agent session engine",
	Long: `wuhu runs AI coding-agent sessions as durable, multi-subscriber
processes: prompts, tool calls, and transcript state survive client
disconnects and server restarts.

Run 'wuhu serve' to start the session engine, or 'wuhu sessions list'
to inspect what's stored.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.DefaultConfig()
		logCfg.Pretty = printLogs
		if !printLogs {
			logCfg.Level = logging.WarnLevel
		}
		logging.Init(logCfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "wuhu.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")

	rootCmd.SetVersionTemplate(fmt.Sprintf("wuhu %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
