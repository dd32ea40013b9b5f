// Package cli holds the gasdesk command tree.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gasdesk/agent-server/internal/core"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

var (
	envFile string
	config  AppConfig

	rootCmd = &cobra.Command{
		Use:           "gasdesk",
		Short:         "Gas market and regulation assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			config = cfg
			logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.AddCommand(serveCmd, chatCmd, naturalGasCmd)
}

func log() *zerolog.Logger {
	l := logx.Component("cli")
	return &l
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
