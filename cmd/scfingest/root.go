package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scfingest/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "scfingest",
		Short:         "scfingest collects the SCF spreadsheets and relays them to object storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
		newUserCmd(cfg, &jsonOutput),
		newConfigCmd(cfg, &jsonOutput),
		newManifestCmd(cfg, &jsonOutput),
		newUploadCmd(cfg, &jsonOutput),
		newHistoryCmd(cfg, &jsonOutput),
		newDownloadCmd(cfg),
	)

	return cmd
}
