// Package config loads orderkeep settings from a YAML file and the
// environment. Environment variables override file values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orderkeep/internal/scraper"
)

// DefaultPath is read when no config file is named explicitly.
const DefaultPath = "orderkeep.yaml"

// DefaultDatabasePath is the snapshot file used when none is configured.
const DefaultDatabasePath = "db.db"

// Environment variables that override file values.
const (
	EnvDatabasePath     = "ORDERKEEP_DB_PATH"
	EnvDatabasePassword = "ORDERKEEP_DB_PASSWORD"
	EnvUsername         = "ORDERKEEP_USERNAME"
	EnvPassword         = "ORDERKEEP_PASSWORD"
	EnvUserAgent        = "ORDERKEEP_USER_AGENT"
	EnvBaseURL          = "ORDERKEEP_BASE_URL"
)

// Config is the full settings tree.
type Config struct {
	Database Database `yaml:"database"`
	Remote   Remote   `yaml:"remote"`
}

// Database locates and unlocks the snapshot file.
type Database struct {
	Path     string `yaml:"path"`
	Password string `yaml:"password"`
}

// Remote holds the portal credentials. They are distinct from the
// database password.
type Remote struct {
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	UserAgent string        `yaml:"user_agent"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Default returns a Config with every optional field set.
func Default() Config {
	return Config{
		Database: Database{Path: DefaultDatabasePath},
		Remote: Remote{
			UserAgent: scraper.DefaultUserAgent,
			BaseURL:   scraper.DefaultBaseURL,
			Timeout:   scraper.DefaultTimeout,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path reads DefaultPath if it exists; a named file must exist.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// env only
	default:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	override(&c.Database.Path, EnvDatabasePath)
	override(&c.Database.Password, EnvDatabasePassword)
	override(&c.Remote.Username, EnvUsername)
	override(&c.Remote.Password, EnvPassword)
	override(&c.Remote.UserAgent, EnvUserAgent)
	override(&c.Remote.BaseURL, EnvBaseURL)
}

func override(field *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*field = v
	}
}

// Validate checks the values every run needs. Portal credentials are only
// required when the run talks to the portal.
func (c Config) Validate(needRemote bool) error {
	var missing []string
	if c.Database.Path == "" {
		missing = append(missing, "database.path")
	}
	if c.Database.Password == "" {
		missing = append(missing, "database.password")
	}
	if needRemote {
		if c.Remote.Username == "" {
			missing = append(missing, "remote.username")
		}
		if c.Remote.Password == "" {
			missing = append(missing, "remote.password")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}
	return nil
}

// Scraper returns the portal client settings.
func (c Config) Scraper() scraper.Config {
	return scraper.Config{
		BaseURL:   c.Remote.BaseURL,
		Username:  c.Remote.Username,
		Password:  c.Remote.Password,
		UserAgent: c.Remote.UserAgent,
		Timeout:   c.Remote.Timeout,
	}
}
