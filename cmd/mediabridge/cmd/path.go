package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

var pathCmd = &cobra.Command{
	Use:   "path <id>",
	Short: "Prints the canonical spec and storage path a request resolves to",
	Example: `  mediabridge path 'abc.icon'
  mediabridge path abc --scale 300,200,contain --crop 10,10,80,80`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		table, err := cfg.Presets()
		if err != nil {
			return err
		}
		options := map[string]string{}
		for _, name := range []string{"preset", "scale", "crop"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				options[name] = v
			}
		}

		d := variant.NewParser(table).Parse(args[0], options)
		if d.ID == "" {
			return fmt.Errorf("no media id in %q", args[0])
		}
		fmt.Printf("id:   %s\n", d.ID)
		fmt.Printf("spec: %s\n", d.Spec())
		fmt.Printf("path: %s%s\n", cfg.Media.KeyPrefix, d.Path())
		return nil
	},
}

func init() {
	pathCmd.Flags().String("preset", "", "preset id")
	pathCmd.Flags().String("scale", "", "width,height[,fit]")
	pathCmd.Flags().String("crop", "", "left,top,width,height in percent")
	rootCmd.AddCommand(pathCmd)
}
