package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Lists the configured variant presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		table, err := cfg.Presets()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tOPTIONS")
		for _, p := range table.List() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Options)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
