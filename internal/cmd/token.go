package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yakoovad/pr-daemon/internal/auth"
)

var (
	tokenTeamID int64
	tokenTTL    time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().Int64Var(&tokenTeamID, "team", 0, "Team id for team tokens")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
}

var tokenCmd = &cobra.Command{
	Use:       "token <admin|team>",
	Short:     "Issue an API token",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(auth.TokenTypeAdmin), string(auth.TokenTypeTeam)},
	Example: `  pr-daemon token admin
  pr-daemon token team --team 3 --ttl 720h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err = cfg.Auth.Validate(); err != nil {
			return err
		}

		token, err := auth.NewSigner(cfg.Auth.TokenSecret).GenerateToken(auth.TokenType(args[0]), tokenTeamID, tokenTTL)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}
