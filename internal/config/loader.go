package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROPERTYX_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PROPERTYX_* environment variable overrides, and
// returns the final Config. An empty path or a missing file leaves the
// defaults in place. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PROPERTYX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Stacks ──
	setStr(&cfg.Stacks.APIURL, "STACKS_API_URL")
	setStr(&cfg.Stacks.Network, "STACKS_NETWORK")
	setStr(&cfg.Stacks.APIKey, "STACKS_API_KEY")
	setFloat64(&cfg.Stacks.RatePerSecond, "STACKS_RATE_PER_SECOND")
	setInt(&cfg.Stacks.Burst, "STACKS_BURST")
	setUint64(&cfg.Stacks.DefaultFee, "STACKS_DEFAULT_FEE")
	setDuration(&cfg.Stacks.Timeout, "STACKS_TIMEOUT")
	setStr(&cfg.Stacks.DefaultSender, "STACKS_DEFAULT_SENDER")

	// ── Contracts ──
	setStr(&cfg.Contracts.Marketplace, "CONTRACTS_MARKETPLACE")
	setStr(&cfg.Contracts.MarketplaceFulfill, "CONTRACTS_MARKETPLACE_FULFILL")
	setStr(&cfg.Contracts.RWS, "CONTRACTS_RWS")
	setStr(&cfg.Contracts.NFT, "CONTRACTS_NFT")
	setStr(&cfg.Contracts.Asset, "CONTRACTS_ASSET")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "WALLET_KEY_PASSWORD")
	setBool(&cfg.Wallet.AutoConnect, "WALLET_AUTO_CONNECT")

	// ── Marketplace ──
	setInt(&cfg.Marketplace.MaxConcurrentReads, "MARKETPLACE_MAX_CONCURRENT_READS")
	setDuration(&cfg.Marketplace.MetadataTTL, "MARKETPLACE_METADATA_TTL")
	setDuration(&cfg.Marketplace.SnapshotTTL, "MARKETPLACE_SNAPSHOT_TTL")
	setDuration(&cfg.Marketplace.DedupWindow, "MARKETPLACE_DEDUP_WINDOW")
	setStringSlice(&cfg.Marketplace.StakeDenylist, "MARKETPLACE_STAKE_DENYLIST")
	setDuration(&cfg.Marketplace.VotePeriod, "MARKETPLACE_VOTE_PERIOD")
	setDuration(&cfg.Marketplace.PendingTTL, "MARKETPLACE_PENDING_TTL")
	setUint64(&cfg.Marketplace.MaxListings, "MARKETPLACE_MAX_LISTINGS")

	// ── IPFS ──
	setStr(&cfg.IPFS.Gateway, "IPFS_GATEWAY")
	setDuration(&cfg.IPFS.Timeout, "IPFS_TIMEOUT")
	setFloat64(&cfg.IPFS.RatePerSecond, "IPFS_RATE_PER_SECOND")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Server ──
	setStr(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.IndexInterval, "PIPELINE_INDEX_INTERVAL")
	setStr(&cfg.Pipeline.ArchiveCron, "PIPELINE_ARCHIVE_CRON")
	setStringSlice(&cfg.Pipeline.WatchAddresses, "PIPELINE_WATCH_ADDRESSES")

	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the prefixed
// environment variable is present and non-empty.
// ---------------------------------------------------------------------------

func lookup(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func setStr(dst *string, key string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := lookup(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
