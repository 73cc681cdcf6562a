/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-throttlekit/throttling"
)

const flagFilter = "filter"

func newRulesCommand() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the effective throttling rules, most specific first",
		Long: `Print the effective throttling rules, most specific first.
Rules may be filtered by glob patterns matched against the "<sourceSystem>.<serviceName>" scope text
(e.g. --filter 'crm.*' --filter '*.getUser').`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			patterns, err := cmd.Flags().GetStringSlice(flagFilter)
			if err != nil {
				return err
			}
			cfg, err := loadThrottlingConfiguration(cmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderRules(filterRules(cfg.Rules(), patterns), cfg.Disabled()))
			return err
		},
	}
	rulesCmd.Flags().StringSlice(flagFilter, nil, "print only rules whose scope matches one of the glob patterns")
	return rulesCmd
}

// filterRules keeps the rules whose scope text matches at least one pattern.
// All rules are kept if there are no patterns.
func filterRules(rules []throttling.Rule, patterns []string) []throttling.Rule {
	if len(patterns) == 0 {
		return rules
	}
	matchers := make([]func(s string) bool, 0, len(patterns))
	for _, pattern := range patterns {
		matchers = append(matchers, glob.Compile(pattern))
	}
	filtered := make([]throttling.Rule, 0, len(rules))
	for _, rule := range rules {
		scopeText := rule.Scope.String()
		for _, match := range matchers {
			if match(scopeText) {
				filtered = append(filtered, rule)
				break
			}
		}
	}
	return filtered
}

func newRulesTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Source system", "Service name", "Limit", "Interval (sec)"})
	return t
}

func appendRuleRow(t table.Writer, rule throttling.Rule) {
	t.AppendRow(table.Row{
		rule.Scope.SourceSystem.String(),
		rule.Scope.ServiceName.String(),
		rule.Props.Limit,
		rule.Props.Interval,
	})
}

func renderRules(rules []throttling.Rule, disabled bool) string {
	t := newRulesTable()
	for _, rule := range rules {
		appendRuleRow(t, rule)
	}
	status := fmt.Sprintf("%d rules", len(rules))
	if disabled {
		status += ", throttling is disabled"
	}
	t.AppendFooter(table.Row{"", "", "", status})
	return t.Render()
}
