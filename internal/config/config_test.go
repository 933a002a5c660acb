package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "https://ipfs.io/ipfs/", cfg.IPFS.Gateway)
	assert.Equal(t, 7*24*time.Hour, cfg.Marketplace.VotePeriod.Duration)
	assert.Equal(t, time.Hour, cfg.Marketplace.PendingTTL.Duration)
	assert.Equal(t, uint64(10000), cfg.Marketplace.MaxListings)

	cfg.Marketplace.MaxListings = 0
	assert.ErrorContains(t, cfg.Validate(), "marketplace: max_listings must be > 0")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Stacks.APIURL, cfg.Stacks.APIURL)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "propertyx.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "all"

[stacks]
network = "mainnet"
api_url = "https://api.hiro.so"
timeout = "5s"

[pipeline]
index_interval = "30s"
watch_addresses = ["ST1ABC"]
`), 0o600))

	t.Setenv("PROPERTYX_SERVER_PORT", "9100")
	t.Setenv("PROPERTYX_WALLET_PRIVATE_KEY", "deadbeef")
	t.Setenv("PROPERTYX_MARKETPLACE_STAKE_DENYLIST", " ST1.a , ,ST2.b ")
	t.Setenv("PROPERTYX_SERVER_RATE_LIMIT_PER_MIN", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "all", cfg.Mode)
	assert.Equal(t, "mainnet", cfg.Stacks.Network)
	assert.Equal(t, 5*time.Second, cfg.Stacks.Timeout.Duration)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.IndexInterval.Duration)
	assert.Equal(t, []string{"ST1ABC"}, cfg.Pipeline.WatchAddresses)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
	assert.Equal(t, []string{"ST1.a", "ST2.b"}, cfg.Marketplace.StakeDenylist)
	// Unparseable values leave the default in place.
	assert.Equal(t, 120, cfg.Server.RateLimitPerMin)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[stacks]\napi_ulr = \"x\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stacks.api_ulr")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trading"
	cfg.LogLevel = "loud"
	cfg.Stacks.Network = "devnet"
	cfg.Contracts.RWS = "no-dot"
	cfg.Wallet.EncryptedKeyPath = "/keys/wallet.json"
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trading"`,
		`unknown log_level "loud"`,
		"network must be mainnet or testnet",
		`contracts: rws "no-dot"`,
		"key_password is required",
		"telegram_token and telegram_chat_id",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateModeRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archiver"
	cfg.S3.Enabled = false
	cfg.Pipeline.ArchiveCron = "every day"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: must be enabled for mode archiver")
	assert.Contains(t, err.Error(), `archive_cron "every day"`)
	assert.Contains(t, err.Error(), "watch_addresses must not be empty")

	cfg = Defaults()
	cfg.Mode = "indexer"
	cfg.Postgres.Enabled = false
	assert.ErrorContains(t, cfg.Validate(), "postgres: must be enabled for mode indexer")

	cfg = Defaults()
	cfg.Wallet.AutoConnect = true
	assert.ErrorContains(t, cfg.Validate(), "auto_connect needs private_key")
}

func TestModeHelpers(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "all"
	assert.True(t, cfg.RunsServer())
	assert.True(t, cfg.RunsIndexer())
	assert.True(t, cfg.RunsArchiver())

	cfg.Mode = "indexer"
	assert.False(t, cfg.RunsServer())
	assert.True(t, cfg.RunsIndexer())
	assert.False(t, cfg.RunsArchiver())
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "secret-key"
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "api"
	cfg.Notify.WebhookSecret = "hmac"

	out := cfg.Redacted()
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.WebhookSecret)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")

	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, "secret-key", cfg.Wallet.PrivateKey)
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
