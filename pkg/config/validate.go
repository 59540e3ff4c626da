package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure. Cron
// expressions are checked by the scheduler when it registers tasks.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be a TCP port.
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be >= 0, got %d", c.Server.MaxBodySize))
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	case "mongo":
		if c.Storage.Mongo.URL == "" {
			errs = append(errs, fmt.Errorf("storage.mongo.url is required when storage.type is \"mongo\""))
		}
		if c.Storage.Mongo.Database == "" {
			errs = append(errs, fmt.Errorf("storage.mongo.database is required when storage.type is \"mongo\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\", or \"mongo\", got %q", c.Storage.Type))
	}

	switch strings.ToLower(c.Logger.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logger.format must be \"text\" or \"json\", got %q", c.Logger.Format))
	}

	switch strings.ToLower(c.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logger.level must be one of debug, info, warn, error, got %q", c.Logger.Level))
	}

	if c.Mailer.SMTP.Host != "" {
		if c.Mailer.FromMail == "" {
			errs = append(errs, fmt.Errorf("mailer.from_mail is required when mailer.smtp.host is set"))
		}
		switch c.Mailer.SMTP.TLS {
		case "starttls", "tls", "none":
		default:
			errs = append(errs, fmt.Errorf("mailer.smtp.tls must be \"starttls\", \"tls\", or \"none\", got %q", c.Mailer.SMTP.TLS))
		}
	}
	for name, tpl := range c.Mailer.Templates {
		if tpl.Path == "" {
			errs = append(errs, fmt.Errorf("mailer.templates.%s.path is required", name))
		}
	}

	switch c.Accounts.ResetType {
	case "auto", "manual":
	default:
		errs = append(errs, fmt.Errorf("accounts.reset_type must be \"auto\" or \"manual\", got %q", c.Accounts.ResetType))
	}
	if c.Accounts.ResetExpiry <= 0 {
		errs = append(errs, fmt.Errorf("accounts.reset_expiry must be > 0, got %v", c.Accounts.ResetExpiry))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}
