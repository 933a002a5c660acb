// Package config defines the top-level configuration for propertyx and
// provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PROPERTYX_* environment variables.
type Config struct {
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
	Stacks      StacksConfig      `toml:"stacks"`
	Contracts   ContractsConfig   `toml:"contracts"`
	Wallet      WalletConfig      `toml:"wallet"`
	Marketplace MarketplaceConfig `toml:"marketplace"`
	IPFS        IPFSConfig        `toml:"ipfs"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
}

// StacksConfig holds the Stacks node / Hiro API endpoint and pacing.
type StacksConfig struct {
	APIURL        string   `toml:"api_url"`
	Network       string   `toml:"network"`
	APIKey        string   `toml:"api_key"`
	RatePerSecond float64  `toml:"rate_per_second"`
	Burst         int      `toml:"burst"`
	DefaultFee    uint64   `toml:"default_fee"`
	Timeout       duration `toml:"timeout"`
	// DefaultSender is used for read-only calls when no wallet is
	// connected.
	DefaultSender string `toml:"default_sender"`
}

// ContractsConfig holds the deployed contract ids ("ADDRESS.name").
type ContractsConfig struct {
	Marketplace        string `toml:"marketplace"`
	MarketplaceFulfill string `toml:"marketplace_fulfill"`
	RWS                string `toml:"rws"`
	NFT                string `toml:"nft"`
	Asset              string `toml:"asset"`
}

// WalletConfig holds the signing key source.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// AutoConnect connects the wallet at startup.
	AutoConnect bool `toml:"auto_connect"`
}

// MarketplaceConfig tunes aggregation, caching, and call deduplication.
// PendingTTL bounds how long a cancelled or fulfilled listing stays hidden
// while its transaction is unconfirmed; MaxListings caps the listing nonce
// the aggregator will scan.
type MarketplaceConfig struct {
	MaxConcurrentReads int      `toml:"max_concurrent_reads"`
	MetadataTTL        duration `toml:"metadata_ttl"`
	SnapshotTTL        duration `toml:"snapshot_ttl"`
	DedupWindow        duration `toml:"dedup_window"`
	StakeDenylist      []string `toml:"stake_denylist"`
	VotePeriod         duration `toml:"vote_period"`
	PendingTTL         duration `toml:"pending_ttl"`
	MaxListings        uint64   `toml:"max_listings"`
}

// IPFSConfig holds the gateway used to fetch token metadata documents.
type IPFSConfig struct {
	Gateway       string   `toml:"gateway"`
	Timeout       duration `toml:"timeout"`
	RatePerSecond float64  `toml:"rate_per_second"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	WebhookURL        string   `toml:"webhook_url"`
	WebhookSecret     string   `toml:"webhook_secret"`
	Events            []string `toml:"events"`
}

// PipelineConfig holds the background job schedule.
type PipelineConfig struct {
	IndexInterval  duration `toml:"index_interval"`
	ArchiveCron    string   `toml:"archive_cron"`
	WatchAddresses []string `toml:"watch_addresses"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "server",
		LogLevel: "info",
		Stacks: StacksConfig{
			APIURL:        "https://api.testnet.hiro.so",
			Network:       "testnet",
			RatePerSecond: 10,
			Burst:         5,
			DefaultFee:    2000,
			Timeout:       duration{30 * time.Second},
		},
		Contracts: ContractsConfig{
			Marketplace:        "ST1JG6WDA1B4PZD8JZY95RPNKFFF5YKPV57BHPC9G.marketplace",
			MarketplaceFulfill: "ST1JG6WDA1B4PZD8JZY95RPNKFFF5YKPV57BHPC9G.marketplace-fulfill",
			RWS:                "ST1VZ3YGJKKC8JSSWMS4EZDXXJM7QWRBEZ0ZWM64E.test5-rws",
			NFT:                "ST1VZ3YGJKKC8JSSWMS4EZDXXJM7QWRBEZ0ZWM64E.nft",
			Asset:              "ST1VZ3YGJKKC8JSSWMS4EZDXXJM7QWRBEZ0ZWM64E.test5-rws",
		},
		Wallet: WalletConfig{},
		Marketplace: MarketplaceConfig{
			MaxConcurrentReads: 8,
			MetadataTTL:        duration{time.Hour},
			SnapshotTTL:        duration{10 * time.Minute},
			DedupWindow:        duration{30 * time.Second},
			StakeDenylist:      []string{"ST388W712B8F7BKQG4G6QHD2K9P9SKBRD9FHQY8DG.testcoin"},
			VotePeriod:         duration{7 * 24 * time.Hour},
			PendingTTL:         duration{time.Hour},
			MaxListings:        10000,
		},
		IPFS: IPFSConfig{
			Gateway:       "https://ipfs.io/ipfs/",
			Timeout:       duration{15 * time.Second},
			RatePerSecond: 5,
		},
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "propertyx",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        true,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "propertyx-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"tx_submitted", "tx_failed", "proposal_created", "notification"},
		},
		Pipeline: PipelineConfig{
			IndexInterval: duration{2 * time.Minute},
			ArchiveCron:   "0 3 * * *",
		},
	}
}

// Modes enumerates the accepted values for Config.Mode.
var Modes = []string{"server", "indexer", "archiver", "all"}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsServer reports whether the mode serves the HTTP API.
func (c *Config) RunsServer() bool { return c.Mode == "server" || c.Mode == "all" }

// RunsIndexer reports whether the mode runs the listing indexer.
func (c *Config) RunsIndexer() bool { return c.Mode == "indexer" || c.Mode == "all" }

// RunsArchiver reports whether the mode runs the snapshot archiver.
func (c *Config) RunsArchiver() bool { return c.Mode == "archiver" || c.Mode == "all" }

// HasKey reports whether a signing key source is configured.
func (c *Config) HasKey() bool {
	return c.Wallet.PrivateKey != "" || c.Wallet.EncryptedKeyPath != ""
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validMode(c.Mode) {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: %s)", c.Mode, strings.Join(Modes, ", ")))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Stacks
	if u, err := url.Parse(c.Stacks.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("stacks: api_url %q is not an absolute URL", c.Stacks.APIURL))
	}
	if c.Stacks.Network != "mainnet" && c.Stacks.Network != "testnet" {
		errs = append(errs, fmt.Sprintf("stacks: network must be mainnet or testnet, got %q", c.Stacks.Network))
	}
	if c.Stacks.RatePerSecond < 0 {
		errs = append(errs, "stacks: rate_per_second must be >= 0")
	}

	// Contracts
	for name, id := range map[string]string{
		"marketplace":         c.Contracts.Marketplace,
		"marketplace_fulfill": c.Contracts.MarketplaceFulfill,
		"rws":                 c.Contracts.RWS,
		"nft":                 c.Contracts.NFT,
		"asset":               c.Contracts.Asset,
	} {
		if _, err := domain.ParseContractRef(id); err != nil {
			errs = append(errs, fmt.Sprintf("contracts: %s %q must be ADDRESS.name", name, id))
		}
	}

	// Wallet
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}
	if c.Wallet.AutoConnect && c.RunsServer() && !c.HasKey() {
		errs = append(errs, "wallet: auto_connect needs private_key or encrypted_key_path")
	}

	// Marketplace
	if c.Marketplace.MaxConcurrentReads < 1 {
		errs = append(errs, "marketplace: max_concurrent_reads must be >= 1")
	}
	if c.Marketplace.MaxListings == 0 {
		errs = append(errs, "marketplace: max_listings must be > 0")
	}
	for _, id := range c.Marketplace.StakeDenylist {
		if _, err := domain.ParseContractRef(id); err != nil {
			errs = append(errs, fmt.Sprintf("marketplace: stake_denylist entry %q must be ADDRESS.name", id))
		}
	}

	// IPFS
	if c.IPFS.Gateway == "" {
		errs = append(errs, "ipfs: gateway must not be empty")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	} else if c.RunsIndexer() {
		errs = append(errs, "postgres: must be enabled for mode "+c.Mode)
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	} else if c.RunsArchiver() {
		errs = append(errs, "s3: must be enabled for mode "+c.Mode)
	}

	// Server
	if c.RunsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Pipeline
	if c.RunsIndexer() && c.Pipeline.IndexInterval.Duration <= 0 {
		errs = append(errs, "pipeline: index_interval must be > 0")
	}
	if c.RunsArchiver() {
		if _, err := cron.ParseStandard(c.Pipeline.ArchiveCron); err != nil {
			errs = append(errs, fmt.Sprintf("pipeline: archive_cron %q: %v", c.Pipeline.ArchiveCron, err))
		}
		if len(c.Pipeline.WatchAddresses) == 0 {
			errs = append(errs, "pipeline: watch_addresses must not be empty for mode "+c.Mode)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validMode(m string) bool {
	for _, v := range Modes {
		if v == m {
			return true
		}
	}
	return false
}
