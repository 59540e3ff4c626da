package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, RIBAMAR_CONFIG env, ./ribamar.yaml, /etc/ribamar/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. RIBAMAR_CONFIG environment variable
// 3. ./ribamar.yaml in the current directory
// 4. /etc/ribamar/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("RIBAMAR_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"ribamar.yaml",
		"/etc/ribamar/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values;
// scheduler tasks are merged into the default task map.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envString and envInt bind one RIBAMAR_* variable to a config field.
type (
	envString struct {
		name   string
		target func(*Config) *string
	}
	envInt struct {
		name   string
		target func(*Config) *int
	}
)

var stringEnv = []envString{
	{"RIBAMAR_STORAGE", func(c *Config) *string { return &c.Storage.Type }},
	{"RIBAMAR_POSTGRES_DSN", func(c *Config) *string { return &c.Storage.Postgres.DSN }},
	{"RIBAMAR_MONGO_URL", func(c *Config) *string { return &c.Storage.Mongo.URL }},
	{"RIBAMAR_LOG_LEVEL", func(c *Config) *string { return &c.Logger.Level }},
	{"RIBAMAR_LOG_PATH", func(c *Config) *string { return &c.Logger.Path }},
	{"RIBAMAR_DEBUG", func(c *Config) *string { return &c.Logger.Debug }},
	{"RIBAMAR_SMTP_PASSWORD", func(c *Config) *string { return &c.Mailer.SMTP.Password }},
}

var intEnv = []envInt{
	{"RIBAMAR_PORT", func(c *Config) *int { return &c.Server.Port }},
}

// applyEnvOverrides copies every set RIBAMAR_* variable into cfg. Numeric
// variables that do not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	for _, e := range stringEnv {
		if v := os.Getenv(e.name); v != "" {
			*e.target(cfg) = v
		}
	}
	for _, e := range intEnv {
		if v := os.Getenv(e.name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*e.target(cfg) = n
			}
		}
	}
}

// fileRef pairs a *_file setting with the value it fills in.
type fileRef struct {
	key   string
	file  func(*Config) string
	value func(*Config) *string
}

var fileRefs = []fileRef{
	{
		key:   "storage.postgres.dsn_file",
		file:  func(c *Config) string { return c.Storage.Postgres.DSNFile },
		value: func(c *Config) *string { return &c.Storage.Postgres.DSN },
	},
	{
		key:   "mailer.smtp.password_file",
		file:  func(c *Config) string { return c.Mailer.SMTP.PasswordFile },
		value: func(c *Config) *string { return &c.Mailer.SMTP.Password },
	},
}

// resolveFileReferences reads each referenced secret file, trimmed, into
// its value field. An explicit value always wins over the file.
func resolveFileReferences(cfg *Config) error {
	for _, ref := range fileRefs {
		path, dst := ref.file(cfg), ref.value(cfg)
		if path == "" || *dst != "" {
			continue
		}
		val, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.key, err)
		}
		*dst = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
