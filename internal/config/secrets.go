package config

// Redacted returns a copy of the config with sensitive fields replaced by
// the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func (c *Config) Redacted() Config {
	out := *c

	redact(&out.Stacks.APIKey)

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.WebhookURL)
	redact(&out.Notify.WebhookSecret)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Marketplace.StakeDenylist = cloneStrings(c.Marketplace.StakeDenylist)
	out.Server.CORSOrigins = cloneStrings(c.Server.CORSOrigins)
	out.Notify.Events = cloneStrings(c.Notify.Events)
	out.Pipeline.WatchAddresses = cloneStrings(c.Pipeline.WatchAddresses)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
