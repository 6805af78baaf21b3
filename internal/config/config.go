package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up when --config is not given.
const DefaultFileName = "walletsync.yaml"

// Config represents the top-level walletsync.yaml configuration.
type Config struct {
	Wallet     WalletConfig    `yaml:"wallet"`
	Ledger     LedgerConfig    `yaml:"ledger"`
	Currency   string          `yaml:"currency"`    // ISO 4217, e.g. "usd"
	WindowDays int             `yaml:"window_days"` // default sync window length
	Retry      RetryConfig     `yaml:"retry"`
	Reconcile  ReconcileConfig `yaml:"reconcile"`
	Logging    LoggingConfig   `yaml:"logging"`
	Audit      AuditConfig     `yaml:"audit"`
}

// WalletConfig identifies the wallet profile and how to reach it.
type WalletConfig struct {
	ProfileID   string `yaml:"profile_id"`
	AccessToken string `yaml:"access_token,omitempty"`
	BaseURL     string `yaml:"base_url"`
	RateLimit   int    `yaml:"rate_limit"`
	Timeout     string `yaml:"timeout"`
}

// LedgerConfig identifies the ledger asset transactions are recorded against.
type LedgerConfig struct {
	AssetID     int64  `yaml:"asset_id"`
	AccessToken string `yaml:"access_token,omitempty"`
	BaseURL     string `yaml:"base_url"`
	RateLimit   int    `yaml:"rate_limit"`
	Timeout     string `yaml:"timeout"`
}

// RetryConfig bounds retries of remote calls.
type RetryConfig struct {
	MaxAttempts     int    `yaml:"max_attempts"`    // fetch + existing-id query
	SubmitAttempts  int    `yaml:"submit_attempts"` // per submitted transaction
	InitialInterval string `yaml:"initial_interval"`
	MaxInterval     string `yaml:"max_interval"`
}

// ReconcileConfig controls the balance check.
type ReconcileConfig struct {
	Tolerance string `yaml:"tolerance"` // decimal, e.g. "0.01"
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AuditConfig controls the run log.
type AuditConfig struct {
	Dir         string `yaml:"dir"`
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a walletsync.yaml file from disk and applies env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults with env
// overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if err := applyEnvOverrides(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// Save writes a Config to a YAML file. Access tokens are never written.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Wallet.AccessToken = ""
	out.Ledger.AccessToken = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Wallet: WalletConfig{
			BaseURL:   "https://venmo.com",
			RateLimit: 2,
			Timeout:   "30s",
		},
		Ledger: LedgerConfig{
			BaseURL:   "https://dev.lunchmoney.app",
			RateLimit: 5,
			Timeout:   "30s",
		},
		Currency:   "usd",
		WindowDays: 30,
		Retry: RetryConfig{
			MaxAttempts:     5,
			SubmitAttempts:  3,
			InitialInterval: "500ms",
			MaxInterval:     "10s",
		},
		Reconcile: ReconcileConfig{
			Tolerance: "0.01",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Audit: AuditConfig{
			Dir:         "logs",
			AuthorName:  "walletsync",
			AuthorEmail: "walletsync@localhost",
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("WALLETSYNC_WALLET_TOKEN"); v != "" {
		cfg.Wallet.AccessToken = v
	}
	if v := os.Getenv("WALLETSYNC_LEDGER_TOKEN"); v != "" {
		cfg.Ledger.AccessToken = v
	}
	if v := os.Getenv("WALLETSYNC_PROFILE_ID"); v != "" {
		cfg.Wallet.ProfileID = v
	}
	if v := os.Getenv("WALLETSYNC_ASSET_ID"); v != "" {
		assetID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing WALLETSYNC_ASSET_ID %q: %w", v, err)
		}
		cfg.Ledger.AssetID = assetID
	}
	if v := os.Getenv("WALLETSYNC_CURRENCY"); v != "" {
		cfg.Currency = v
	}
	if v := os.Getenv("WALLETSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the fields a sync run cannot do without.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateLedger is Validate for runs that read a downloaded statement file
// and never call the wallet API.
func (c *Config) ValidateLedger() error {
	return c.validate(false)
}

func (c *Config) validate(needWallet bool) error {
	var missing []string
	if needWallet && c.Wallet.ProfileID == "" {
		missing = append(missing, "wallet.profile_id")
	}
	if needWallet && c.Wallet.AccessToken == "" {
		missing = append(missing, "wallet access token (WALLETSYNC_WALLET_TOKEN)")
	}
	if c.Ledger.AssetID == 0 {
		missing = append(missing, "ledger.asset_id")
	}
	if c.Ledger.AccessToken == "" {
		missing = append(missing, "ledger access token (WALLETSYNC_LEDGER_TOKEN)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	if _, ok := CurrencySymbol(c.Currency); !ok {
		return fmt.Errorf("unsupported currency %q", c.Currency)
	}
	if _, err := c.ToleranceAmount(); err != nil {
		return err
	}
	return nil
}

// ToleranceAmount parses the reconcile tolerance.
func (c *Config) ToleranceAmount() (decimal.Decimal, error) {
	tol, err := decimal.NewFromString(c.Reconcile.Tolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing reconcile.tolerance %q: %w", c.Reconcile.Tolerance, err)
	}
	if tol.IsNegative() {
		return decimal.Zero, fmt.Errorf("reconcile.tolerance must not be negative, got %s", tol)
	}
	return tol, nil
}

// GetTimeout parses and returns the wallet HTTP timeout.
func (c *WalletConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// GetTimeout parses and returns the ledger HTTP timeout.
func (c *LedgerConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// GetInitialInterval parses the first retry delay.
func (c *RetryConfig) GetInitialInterval() time.Duration {
	return parseDuration(c.InitialInterval, 500*time.Millisecond)
}

// GetMaxInterval parses the retry delay cap.
func (c *RetryConfig) GetMaxInterval() time.Duration {
	return parseDuration(c.MaxInterval, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
