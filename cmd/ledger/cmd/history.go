package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/rustyeddy/marginledger/journal"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print what the journal holds",
	Long: `Print the open positions, closed trades and fees recorded in the
configured journal. CSV journals are append-only logs and cannot be queried.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, cfg.Journal)
		if err != nil {
			return err
		}
		defer store.Close()

		r, ok := store.(journal.Reader)
		if !ok {
			return fmt.Errorf("%s journal cannot be queried", cfg.Journal.Type)
		}

		open, err := r.OpenPositions(ctx)
		if err != nil {
			return err
		}
		closed, err := r.History(ctx)
		if err != nil {
			return err
		}
		fees, err := r.Fees(ctx)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "OPEN\tSYMBOL\tSIDE\tLOT\tENTRY\tLEVERAGE\tOPENED")
		for _, p := range open {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				p.ID, p.Symbol, p.Side, p.Lot, p.EntryPrice, p.Leverage, p.OpenTime.Format("2006-01-02 15:04:05"))
		}

		fmt.Fprintln(tw, "\nCLOSED\tSYMBOL\tSIDE\tLOT\tENTRY\tEXIT\tPNL\tREASON")
		for _, h := range closed {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				h.PositionID, h.Symbol, h.Side, h.Lot, h.EntryPrice, h.ExitPrice, h.RealizedPnL.StringFixed(2), h.Reason)
		}

		fmt.Fprintln(tw, "\nFEE\tAMOUNT\tTIME")
		for _, f := range fees {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.PositionID, f.Amount.StringFixed(2), f.Time.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
