package cmd

import (
	"github.com/rustyeddy/marginledger/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Real-time margin ledger for a leveraged trading account",
	Long: `Ledger keeps one trading account's open positions, unrealized PnL and
margin state consistent with a live price feed, and force-liquidates the
account when it becomes insolvent.

It provides:
  - a replay runner for scripted tick files
  - an HTTP and websocket API over a live feed
  - SQLite, Postgres, CSV or in-memory journals
  - Kafka publication of account events`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "path to config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}
