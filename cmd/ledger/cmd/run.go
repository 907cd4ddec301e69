package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/marginledger/ledger"
	"github.com/rustyeddy/marginledger/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	runTicks    string
	runCloseEnd bool
	runJSON     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ledger against the configured feed",
	Long: `Run the ledger against the configured price feed until the feed ends or
the process is interrupted, then print the final account.

A replay feed reads rows of time,symbol,bid,ask[,event,args...]. Events are
OPEN, OPEN_SLTP, CLOSE and CLOSE_ALL and run after their row's tick.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if runTicks != "" {
			cfg.Feed.Type = "replay"
			cfg.Feed.Path = runTicks
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		run, err := a.priceFeed()
		if err != nil {
			return err
		}

		// The session outlives the feed so the final snapshot can be taken
		// after an interrupt.
		bgCtx, cancelBg := context.WithCancel(context.Background())
		g, bgCtx := errgroup.WithContext(bgCtx)
		if err := a.background(bgCtx, g); err != nil {
			cancelBg()
			return err
		}

		feedErr := run(ctx)
		if ctx.Err() != nil {
			feedErr = nil
		}

		snap, err := finish(bgCtx, a.sess, runCloseEnd)
		cancelBg()
		if werr := g.Wait(); werr != nil && err == nil {
			err = werr
		}
		if err != nil {
			return errors.Join(feedErr, err)
		}

		if runJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return err
			}
		} else if err := printSnapshot(cmd.OutOrStdout(), snap); err != nil {
			return err
		}
		return feedErr
	},
}

func finish(ctx context.Context, sess *session.Session, closeEnd bool) (session.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if closeEnd {
		if _, err := sess.CloseAll(ctx, ledger.CloseEverything); err != nil && !ledger.IsRejection(err) {
			return session.Snapshot{}, fmt.Errorf("close at end: %w", err)
		}
	}
	return sess.Snapshot(ctx)
}

func printSnapshot(w io.Writer, snap session.Snapshot) error {
	acct := snap.Account
	fmt.Fprintf(w, "account %s  balance=%s equity=%s margin=%s free=%s\n",
		snap.AccountID,
		acct.Balance.StringFixed(2), acct.Equity.StringFixed(2),
		acct.MarginUsed.StringFixed(2), acct.FreeMargin.StringFixed(2))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(snap.Positions) > 0 {
		fmt.Fprintln(tw, "\nOPEN\tSYMBOL\tSIDE\tLOT\tENTRY\tMARK\tPNL")
		for _, p := range snap.Positions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				p.ID, p.Symbol, p.Side, p.Lot, p.EntryPrice, p.MarkPrice, p.UnrealizedPnL.StringFixed(2))
		}
	}
	if len(snap.History) > 0 {
		fmt.Fprintln(tw, "\nCLOSED\tSYMBOL\tSIDE\tLOT\tENTRY\tEXIT\tPNL\tREASON")
		for _, h := range snap.History {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				h.PositionID, h.Symbol, h.Side, h.Lot, h.EntryPrice, h.ExitPrice, h.RealizedPnL.StringFixed(2), h.Reason)
		}
	}
	return tw.Flush()
}

func init() {
	runCmd.Flags().StringVar(&runTicks, "ticks", "", "replay this CSV instead of the configured feed")
	runCmd.Flags().BoolVar(&runCloseEnd, "close-end", false, "close open positions when the feed ends")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the final snapshot as JSON")
	rootCmd.AddCommand(runCmd)
}
