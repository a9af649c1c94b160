package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/mediabridge/internal/pkg/security"
)

var tokenCmd = &cobra.Command{
	Use:   "token <account>",
	Short: "Issues an HS256 bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ttl, err := cmd.Flags().GetDuration("ttl")
		if err != nil {
			return err
		}
		token, err := security.GenerateToken(cfg.JWT.Secret, cfg.JWT.Issuer, args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
