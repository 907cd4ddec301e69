package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rustyeddy/marginledger/httpapi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and websocket API over the configured feed",
	Long: `Serve runs the ledger against the configured price feed and exposes the
account over HTTP until interrupted. Live feeds reconnect with backoff.

Routes:
  GET    /health
  GET    /v1/account
  GET    /v1/positions
  POST   /v1/positions/close?scope=all|profit|loss
  POST   /v1/positions/{id}/close
  GET    /v1/history
  GET    /v1/orders
  POST   /v1/orders
  DELETE /v1/orders/{id}
  GET    /v1/stream   (websocket)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.HTTP.Addr = serveAddr
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

		g, ctx := errgroup.WithContext(ctx)
		if err := a.background(ctx, g); err != nil {
			return err
		}
		g.Go(func() error {
			err := run(ctx)
			if err == nil || ctx.Err() != nil {
				// A finished replay leaves the API up.
				return nil
			}
			return err
		})

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpapi.NewServer(a.sess, a.bus, cfg.HTTP.WSOrigin, a.log).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info().Str("addr", srv.Addr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "override http.addr")
	rootCmd.AddCommand(serveCmd)
}
