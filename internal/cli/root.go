// Package cli implements the atendechat command line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/licitahub/atendechat/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	log *logging.Logger
)

const defaultConfigPath = "atendechat.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atendechat",
		Short: "atendechat — live support chat engine for LicitaHub",
		Long: "atendechat runs the LicitaHub support chat engine: session lifecycle, " +
			"bot classification, priority queueing and agent assignment over WebSocket.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfgFile == "" {
				cfgFile = defaultConfigPath
				if env := os.Getenv("ATENDECHAT_CONFIG"); env != "" {
					cfgFile = env
				}
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level, "")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./atendechat.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newRulesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
