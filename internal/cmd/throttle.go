/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/acronis/go-throttlekit/internal/libinfo"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/retry"
	"github.com/acronis/go-throttlekit/throttleclient"
	"github.com/acronis/go-throttlekit/throttling"
)

const (
	flagURL  = "url"
	flagWait = "wait"
)

const waitReadyInterval = 200 * time.Millisecond

func newThrottleCommand() *cobra.Command {
	throttleCmd := &cobra.Command{
		Use:   "throttle <sourceSystem> <serviceName>",
		Short: "Count a request of the scope in a running daemon",
		Long: `Count a request of the scope in a running daemon and print whether it may proceed.
The command fails if the request is rejected. Use "*" for a field the request doesn't carry.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadAppConfigFromFlags(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed(flagURL) {
				if appCfg.ThrottleClient.URL, err = cmd.Flags().GetString(flagURL); err != nil {
					return err
				}
			}
			wait, err := cmd.Flags().GetDuration(flagWait)
			if err != nil {
				return err
			}
			logger, closeLogger := log.NewLogger(appCfg.Log)
			defer closeLogger()
			return runThrottle(cmd, appCfg.ThrottleClient, logger, throttling.NewScope(args[0], args[1]), wait)
		},
	}
	throttleCmd.Flags().String(flagURL, "", "base URL of the daemon (overrides throttleClient.url)")
	throttleCmd.Flags().Duration(flagWait, 0, "wait up to this duration for the daemon to become healthy")
	return throttleCmd
}

func runThrottle(
	cmd *cobra.Command, cfg *throttleclient.Config, logger log.FieldLogger, scope throttling.Scope, wait time.Duration,
) error {
	client, err := throttleclient.New(cfg, throttleclient.Opts{
		UserAgent:      "throttled/" + libinfo.GetVersion(),
		LoggerProvider: func(context.Context) log.FieldLogger { return logger },
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		if err = client.WaitReady(waitCtx, retry.NewConstantBackoffPolicy(waitReadyInterval, 0)); err != nil {
			return fmt.Errorf("wait for daemon at %s: %w", cfg.URL, err)
		}
	}

	err = client.ThrottleContext(ctx, scope)
	var exceededErr *throttling.ExceededError
	switch {
	case err == nil:
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Request of %s is allowed.\n", scope)
		return err
	case errors.As(err, &exceededErr):
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Request of %s is rejected, retry after %d sec.\n", scope, exceededErr.Interval)
		return err
	default:
		return err
	}
}
