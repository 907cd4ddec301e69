package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/marginledger/logging"
	"github.com/rustyeddy/marginledger/market"
	"github.com/rustyeddy/marginledger/outbox"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of one ledger process.
type Config struct {
	Account AccountConfig  `json:"account" yaml:"account"`
	Symbols []SymbolConfig `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Fees    FeesConfig     `json:"fees" yaml:"fees"`
	Feed    FeedConfig     `json:"feed" yaml:"feed"`
	Journal JournalConfig  `json:"journal" yaml:"journal"`
	Outbox  OutboxConfig   `json:"outbox" yaml:"outbox"`
	HTTP    HTTPConfig     `json:"http" yaml:"http"`
	Log     LogConfig      `json:"log" yaml:"log"`
	Events  EventsConfig   `json:"events" yaml:"events"`
}

// AccountConfig is injected into the session at start.
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
	// Leverage applies to orders that name none; 0 uses the symbol default.
	Leverage                  float64 `json:"leverage" yaml:"leverage"`
	MaxLeverage               float64 `json:"max_leverage" yaml:"max_leverage"`
	NegativeBalanceProtection bool    `json:"negative_balance_protection" yaml:"negative_balance_protection"`
	// CheckInvariants verifies the accounting identities after every change.
	CheckInvariants bool `json:"check_invariants,omitempty" yaml:"check_invariants,omitempty"`
}

// SymbolConfig adds or overrides one contract spec.
type SymbolConfig struct {
	Code            string  `json:"code" yaml:"code"`
	Class           string  `json:"class,omitempty" yaml:"class,omitempty"`
	Digits          int32   `json:"digits" yaml:"digits"`
	ContractSize    float64 `json:"contract_size" yaml:"contract_size"`
	DefaultLeverage float64 `json:"default_leverage" yaml:"default_leverage"`
}

type FeesConfig struct {
	// URL of the fee schedule service; empty charges Default.
	URL     string  `json:"url,omitempty" yaml:"url,omitempty"`
	Type    string  `json:"type" yaml:"type"`
	Default float64 `json:"default" yaml:"default"`
	Refresh string  `json:"refresh" yaml:"refresh"` // e.g. "1m"
}

type FeedConfig struct {
	Type       string   `json:"type" yaml:"type"` // "websocket", "stream" or "replay"
	URL        string   `json:"url,omitempty" yaml:"url,omitempty"`
	Path       string   `json:"path,omitempty" yaml:"path,omitempty"`
	Symbols    []string `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Pace       string   `json:"pace,omitempty" yaml:"pace,omitempty"`
	Backoff    string   `json:"backoff,omitempty" yaml:"backoff,omitempty"`
	MaxBackoff string   `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`
}

type JournalConfig struct {
	Type    string `json:"type" yaml:"type"` // "memory", "sqlite", "postgres" or "csv"
	DBPath  string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	CSVPath string `json:"csv_path,omitempty" yaml:"csv_path,omitempty"`
}

type OutboxConfig struct {
	Policy      string `json:"policy" yaml:"policy"` // "log", "retry" or "dead_letter"
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts"`
	Backoff     string `json:"backoff" yaml:"backoff"`
	Buffer      int    `json:"buffer" yaml:"buffer"`
}

type HTTPConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	WSOrigin string `json:"ws_origin,omitempty" yaml:"ws_origin,omitempty"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Console    bool   `json:"console" yaml:"console"`
	JSON       bool   `json:"json,omitempty" yaml:"json,omitempty"`
	File       bool   `json:"file" yaml:"file"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	MaxSize    int    `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAge     int    `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// EventsConfig publishes session events to Kafka when Brokers is set.
type EventsConfig struct {
	Brokers []string `json:"brokers,omitempty" yaml:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty" yaml:"topic,omitempty"`
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// RefreshInterval parses Refresh; empty means fetch once.
func (f FeesConfig) RefreshInterval() (time.Duration, error) {
	return parseDuration("fees.refresh", f.Refresh)
}

func (f FeedConfig) PaceDuration() (time.Duration, error) {
	return parseDuration("feed.pace", f.Pace)
}

// Backoffs returns the reconnect backoff and its ceiling, defaulting to 1s
// and 30s.
func (f FeedConfig) Backoffs() (time.Duration, time.Duration, error) {
	b, err := parseDuration("feed.backoff", f.Backoff)
	if err != nil {
		return 0, 0, err
	}
	maxB, err := parseDuration("feed.max_backoff", f.MaxBackoff)
	if err != nil {
		return 0, 0, err
	}
	if b == 0 {
		b = time.Second
	}
	if maxB == 0 {
		maxB = 30 * time.Second
	}
	return b, maxB, nil
}

// Options converts the section, filling unset fields from
// outbox.DefaultOptions.
func (o OutboxConfig) Options() (outbox.Options, error) {
	opts := outbox.DefaultOptions()
	p, err := outbox.ParsePolicy(o.Policy)
	if err != nil {
		return opts, err
	}
	opts.Policy = p
	if o.MaxAttempts > 0 {
		opts.MaxAttempts = o.MaxAttempts
	}
	if o.Buffer > 0 {
		opts.Buffer = o.Buffer
	}
	b, err := parseDuration("outbox.backoff", o.Backoff)
	if err != nil {
		return opts, err
	}
	if b > 0 {
		opts.Backoff = b
	}
	return opts, nil
}

func (l LogConfig) Logging() logging.Config {
	return logging.Config{
		Level:      l.Level,
		Console:    l.Console,
		JSON:       l.JSON,
		File:       l.File,
		FilePath:   l.Path,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
	}
}

// Spec converts the entry to a contract spec.
func (s SymbolConfig) Spec() market.SymbolSpec {
	class := market.Class(strings.ToLower(s.Class))
	if class == "" {
		class = market.ClassUnknown
	}
	return market.SymbolSpec{
		Code:            market.Normalize(s.Code),
		Digits:          s.Digits,
		ContractSize:    decimal.NewFromFloat(s.ContractSize),
		DefaultLeverage: decimal.NewFromFloat(s.DefaultLeverage),
		Class:           class,
	}
}

// Registry is the built-in symbol table extended with Symbols.
func (c *Config) Registry() *market.Registry {
	specs := make([]market.SymbolSpec, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		specs = append(specs, s.Spec())
	}
	return market.NewRegistry(specs...)
}

// LoadFromFile loads configuration from a file, trying YAML first and
// falling back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.ID == "" {
		return fmt.Errorf("account.id is required")
	}
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Account.Leverage < 0 {
		return fmt.Errorf("account.leverage must not be negative")
	}
	if c.Account.MaxLeverage < 0 {
		return fmt.Errorf("account.max_leverage must not be negative")
	}

	for i, s := range c.Symbols {
		if market.Normalize(s.Code) == "" {
			return fmt.Errorf("symbols[%d].code is required", i)
		}
		if s.ContractSize <= 0 {
			return fmt.Errorf("symbols[%d] %s: contract_size must be positive", i, s.Code)
		}
		if s.DefaultLeverage <= 0 {
			return fmt.Errorf("symbols[%d] %s: default_leverage must be positive", i, s.Code)
		}
		if s.Digits < 0 {
			return fmt.Errorf("symbols[%d] %s: digits must not be negative", i, s.Code)
		}
	}

	if c.Fees.Default < 0 {
		return fmt.Errorf("fees.default must not be negative")
	}
	if _, err := c.Fees.RefreshInterval(); err != nil {
		return err
	}

	switch c.Feed.Type {
	case "websocket", "stream":
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url required for %s feed", c.Feed.Type)
		}
	case "replay":
		if c.Feed.Path == "" {
			return fmt.Errorf("feed.path required for replay feed")
		}
	default:
		return fmt.Errorf("feed.type must be 'websocket', 'stream' or 'replay'")
	}
	if _, err := c.Feed.PaceDuration(); err != nil {
		return err
	}
	if _, _, err := c.Feed.Backoffs(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "memory":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal dsn required for Postgres type")
		}
	case "csv":
		if c.Journal.CSVPath == "" {
			return fmt.Errorf("journal csv_path required for CSV type")
		}
	default:
		return fmt.Errorf("journal.type must be 'memory', 'sqlite', 'postgres' or 'csv'")
	}

	if _, err := c.Outbox.Options(); err != nil {
		return err
	}
	if c.Outbox.MaxAttempts < 0 || c.Outbox.Buffer < 0 {
		return fmt.Errorf("outbox max_attempts and buffer must not be negative")
	}

	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return fmt.Errorf("events.topic required when brokers are set")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:                        "SIM-001",
			Currency:                  "USD",
			Balance:                   10000,
			MaxLeverage:               1000,
			NegativeBalanceProtection: true,
		},
		Fees: FeesConfig{
			Type:    "trade",
			Default: 1,
			Refresh: "1m",
		},
		Feed: FeedConfig{
			Type: "replay",
			Path: "./ticks.csv",
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./ledger.db",
		},
		Outbox: OutboxConfig{
			Policy:      string(outbox.PolicyLog),
			MaxAttempts: 5,
			Backoff:     "200ms",
			Buffer:      1024,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}
