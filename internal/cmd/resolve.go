/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acronis/go-throttlekit/throttling"
)

func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <sourceSystem> <serviceName>",
		Short: "Print the throttling rule that applies to the scope",
		Long: `Print the throttling rule that applies to the scope without counting anything.
Use "*" for a field the request doesn't carry.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadThrottlingConfiguration(cmd)
			if err != nil {
				return err
			}
			scope := throttling.NewScope(args[0], args[1])
			rule, ok := cfg.ResolveRule(scope)
			if !ok {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "No throttling rule applies to %s, throttling is disabled.\n", scope)
				return err
			}
			t := newRulesTable()
			appendRuleRow(t, rule)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Rule for %s:\n%s\n", scope, t.Render())
			return err
		},
	}
}
