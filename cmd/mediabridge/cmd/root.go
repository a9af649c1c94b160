package cmd

import (
	"os"

	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/mediabridge/internal/pkg/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "mediabridge",
	Short:         "Media storage service deriving image variants on demand",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("[CLI] %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (optional, environment and .env are always read)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.IsDev() {
		log.SetLevel(log.LevelDebug)
	}
	return cfg, nil
}
