// Package config provides unified configuration for the ribamar service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (RIBAMAR_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the ribamar service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Logger        LoggerConfig        `yaml:"logger"`
	Mailer        MailerConfig        `yaml:"mailer"`
	Accounts      AccountsConfig      `yaml:"accounts"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 6776
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // bytes, default: 1 MiB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "mongo", default: "memory"
	MaxSize  int            `yaml:"max_size"` // per collection for the memory store, 0 = unlimited
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// MongoConfig holds MongoDB-specific settings.
type MongoConfig struct {
	URL      string `yaml:"url"`      // default: "mongodb://localhost:27017"
	Database string `yaml:"database"` // default: "Ribamar"
}

// SchedulerConfig holds the periodic maintenance schedule.
type SchedulerConfig struct {
	// Tasks maps task names to 5- or 6-field cron expressions.
	Tasks map[string]string `yaml:"tasks"`
	// AllowOverlap lets a tick start while the previous run of the same
	// task is still in progress. When false, such ticks are skipped.
	AllowOverlap bool `yaml:"allow_overlap"` // default: true
}

// LoggerConfig holds log sink settings.
type LoggerConfig struct {
	Path   string `yaml:"path"`   // empty logs to stderr
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error", default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories, or "all"
}

// MailerConfig holds outgoing mail settings. The mailer is inactive when
// no SMTP host is configured.
type MailerConfig struct {
	FromName       string                    `yaml:"from_name"`
	FromMail       string                    `yaml:"from_mail"`
	AccountAddress string                    `yaml:"account_address"` // account data field holding the recipient address, default: "email"
	SMTP           SMTPConfig                `yaml:"smtp"`
	Templates      map[string]TemplateConfig `yaml:"templates"`
}

// SMTPConfig describes the SMTP relay.
type SMTPConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"` // default: 587
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"` // _file variant for password
	TLS          string `yaml:"tls"`           // "starttls", "tls" or "none", default: "starttls"
}

// TemplateConfig describes one mail template.
type TemplateConfig struct {
	Path    string `yaml:"path"`
	Subject string `yaml:"subject"`
}

// AccountsConfig holds account recovery behavior.
type AccountsConfig struct {
	ResetExpiry   time.Duration `yaml:"reset_expiry"`   // default: 1h
	ResetType     string        `yaml:"reset_type"`     // "auto" or "manual", default: "auto"
	RecoveryEmail bool          `yaml:"recovery_email"` // mail the reset token via the "reset" template
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            6776,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			MaxBodySize:     1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns:       25,
				MigrateOnStart: true,
			},
			Mongo: MongoConfig{
				URL:      "mongodb://localhost:27017",
				Database: "Ribamar",
			},
		},
		Scheduler: SchedulerConfig{
			Tasks: map[string]string{
				"ping":         "0 0 1 * *",
				"expireResets": "*/10 * * * *",
			},
			AllowOverlap: true,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
		Mailer: MailerConfig{
			AccountAddress: "email",
			SMTP: SMTPConfig{
				Port: 587,
				TLS:  "starttls",
			},
		},
		Accounts: AccountsConfig{
			ResetExpiry: time.Hour,
			ResetType:   "auto",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
