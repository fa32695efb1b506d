package config

// Redacted returns a copy of c with secrets replaced by "***", suitable
// for logging the active configuration.
func (c *Config) Redacted() Config {
	out := *c

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	// Slices are copied so the redacted value cannot alias the original.
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), c.Notify.Events...)

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
