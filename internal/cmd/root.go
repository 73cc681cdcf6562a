/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package cmd implements the command line interface of the throttling daemon.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acronis/go-throttlekit/throttling"
)

const flagConfig = "config"

// NewRootCommand creates the root command with all subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "throttled",
		Short: "Request throttling daemon",
		Long: `throttled counts requests per (source system, service name) scope
and rejects those exceeding the configured limits.

Use the subcommands to run the daemon or inspect the throttling rules.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String(flagConfig, "", "config file (YAML or JSON); defaults and THROTTLED_* env vars are used if omitted")

	rootCmd.AddCommand(newServeCommand(), newRulesCommand(), newResolveCommand(), newThrottleCommand(), newVersionCommand())
	return rootCmd
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

func loadAppConfigFromFlags(cmd *cobra.Command) (*AppConfig, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadAppConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func loadThrottlingConfiguration(cmd *cobra.Command) (*throttling.Configuration, error) {
	appCfg, err := loadAppConfigFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	return throttling.LoadConfiguration(appCfg.Throttling)
}
