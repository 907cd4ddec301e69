package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List contract specifications",
	Long: `Print the symbol table: the built-in contracts plus any added by the
config file's symbols section. Unknown symbols trade on the default spec
(contract size 100000, 5 digits, leverage 100).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tCLASS\tCONTRACT\tDIGITS\tLEVERAGE")
		for _, s := range cfg.Registry().Specs() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.Code, s.Class, s.ContractSize, s.Digits, s.DefaultLeverage)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(symbolsCmd)
}
