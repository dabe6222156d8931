package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notargets/regionmg/config"
)

// ParamsCmd prints an example parameter file, or checks one
var ParamsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print an example parameter file or check an existing one",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		check, _ := cmd.Flags().GetString("check")
		if check == "" {
			fmt.Fprint(cmd.OutOrStdout(), config.Example)
			return
		}
		p, err := config.Load(check)
		if err != nil {
			return
		}
		p.Print(cmd.OutOrStdout())
		return
	},
}

func init() {
	rootCmd.AddCommand(ParamsCmd)
	ParamsCmd.Flags().StringP("check", "c", "", "parameter file to load, validate and print")
}
