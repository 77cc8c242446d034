// Package cmd holds the pr-daemon command tree.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pr-daemon",
	Short: "Pull request lifecycle tracking and Slack alerting",
	Long: `pr-daemon ingests GitHub pull request webhooks, keeps the state of every pull request
in Postgres and periodically alerts teams about stale, unreviewed and stalled pull requests.

Configuration is read from the environment (and .env), e.g. POSTGRES_HOST, SCAN_INTERVAL,
THRESHOLDS_STALE, SLACK_DEFAULT_WEBHOOK_URL, GITHUB_WEBHOOK_SECRET, AUTH_TOKEN_SECRET.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
