package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/marginledger/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "USD", cfg.Account.Currency)
	assert.Equal(t, 10000.0, cfg.Account.Balance)
	assert.True(t, cfg.Account.NegativeBalanceProtection)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing id", func(c *Config) { c.Account.ID = "" }, "account.id is required"},
		{"missing currency", func(c *Config) { c.Account.Currency = "" }, "account.currency is required"},
		{"negative balance", func(c *Config) { c.Account.Balance = -1000 }, "account.balance must be positive"},
		{"negative leverage", func(c *Config) { c.Account.Leverage = -1 }, "account.leverage"},
		{"negative max leverage", func(c *Config) { c.Account.MaxLeverage = -1 }, "account.max_leverage"},
		{"symbol without code", func(c *Config) {
			c.Symbols = []SymbolConfig{{Code: " ", ContractSize: 1, DefaultLeverage: 1}}
		}, "symbols[0].code is required"},
		{"symbol contract size", func(c *Config) {
			c.Symbols = []SymbolConfig{{Code: "DOGEUSD", DefaultLeverage: 5}}
		}, "contract_size must be positive"},
		{"symbol leverage", func(c *Config) {
			c.Symbols = []SymbolConfig{{Code: "DOGEUSD", ContractSize: 1}}
		}, "default_leverage must be positive"},
		{"negative fee", func(c *Config) { c.Fees.Default = -1 }, "fees.default"},
		{"bad refresh", func(c *Config) { c.Fees.Refresh = "soon" }, "fees.refresh"},
		{"unknown feed", func(c *Config) { c.Feed.Type = "carrier-pigeon" }, "feed.type must be"},
		{"websocket without url", func(c *Config) { c.Feed = FeedConfig{Type: "websocket"} }, "feed.url required"},
		{"replay without path", func(c *Config) { c.Feed.Path = "" }, "feed.path required"},
		{"bad pace", func(c *Config) { c.Feed.Pace = "-1s" }, "feed.pace must not be negative"},
		{"unknown journal", func(c *Config) { c.Journal.Type = "excel" }, "journal.type must be"},
		{"sqlite without path", func(c *Config) { c.Journal.DBPath = "" }, "db_path required"},
		{"postgres without dsn", func(c *Config) { c.Journal = JournalConfig{Type: "postgres"} }, "dsn required"},
		{"csv without path", func(c *Config) { c.Journal = JournalConfig{Type: "csv"} }, "csv_path required"},
		{"memory journal", func(c *Config) { c.Journal = JournalConfig{Type: "memory"} }, ""},
		{"bad policy", func(c *Config) { c.Outbox.Policy = "shrug" }, "unknown outbox policy"},
		{"bad outbox backoff", func(c *Config) { c.Outbox.Backoff = "fast" }, "outbox.backoff"},
		{"topic missing", func(c *Config) { c.Events.Brokers = []string{"localhost:9092"} }, "events.topic required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Account.Leverage = 200
			cfg.Symbols = []SymbolConfig{{Code: "doge/usd", Class: "Crypto", Digits: 5, ContractSize: 1000, DefaultLeverage: 5}}
			cfg.Feed.Symbols = []string{"EURUSD", "DOGEUSD"}
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  id: ACC-7\n  currency: EUR\n  balance: 500\n"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ACC-7", cfg.Account.ID)
	assert.Equal(t, 500.0, cfg.Account.Balance)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: [1, 2"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestRegistry(t *testing.T) {
	cfg := Default()
	cfg.Symbols = []SymbolConfig{
		{Code: "doge/usd", Class: "Crypto", Digits: 5, ContractSize: 1000, DefaultLeverage: 5},
		{Code: "XAUUSD", Class: "metal", Digits: 2, ContractSize: 10, DefaultLeverage: 20},
	}
	reg := cfg.Registry()

	doge := reg.Lookup("DOGE_USD")
	assert.True(t, reg.Known("DOGEUSD"))
	assert.Equal(t, "crypto", string(doge.Class))
	assert.Equal(t, "1000", doge.ContractSize.String())

	assert.Equal(t, "10", reg.Lookup("XAUUSD").ContractSize.String())
	assert.Equal(t, "100000", reg.Lookup("EURUSD").ContractSize.String())
}

func TestOutboxOptions(t *testing.T) {
	opts, err := OutboxConfig{Policy: "dead_letter", Backoff: "1s"}.Options()
	require.NoError(t, err)
	assert.Equal(t, outbox.PolicyDeadLetter, opts.Policy)
	assert.Equal(t, time.Second, opts.Backoff)
	assert.Equal(t, outbox.DefaultOptions().MaxAttempts, opts.MaxAttempts)
	assert.Equal(t, outbox.DefaultOptions().Buffer, opts.Buffer)
}

func TestDurations(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1h", time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"", 0, false},
		{"invalid", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := FeesConfig{Refresh: tt.in}.RefreshInterval()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}

	b, maxB, err := FeedConfig{}.Backoffs()
	require.NoError(t, err)
	assert.Equal(t, time.Second, b)
	assert.Equal(t, 30*time.Second, maxB)
}
