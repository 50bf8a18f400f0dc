// Package config loads the voiced configuration from a YAML, TOML or JSON
// file (selected by extension), applies environment-variable overrides and
// validates the result.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface.
type Config struct {
	IRC struct {
		Server string `yaml:"server" toml:"server" json:"server" env:"VOICED_IRC_SERVER" validate:"required"`
		Port   int    `yaml:"port" toml:"port" json:"port" env:"VOICED_IRC_PORT" validate:"min=1,max=65535"`
		SSL    bool   `yaml:"ssl" toml:"ssl" json:"ssl" env:"VOICED_IRC_SSL"`
		Nick   string `yaml:"nick" toml:"nick" json:"nick" env:"VOICED_IRC_NICK" validate:"required"`
		User   string `yaml:"user" toml:"user" json:"user" env:"VOICED_IRC_USER"`
		Name   string `yaml:"name" toml:"name" json:"name" env:"VOICED_IRC_NAME"`

		// Password is the server password. PassFile, when set, reads it
		// from a file instead; an empty password with a SASL account
		// prompts on stdin at startup.
		Password string `yaml:"password" toml:"password" json:"password" env:"VOICED_IRC_PASSWORD"`
		PassFile string `yaml:"passfile" toml:"passfile" json:"passfile" env:"VOICED_IRC_PASSFILE"`

		// SASLAccount switches authentication to SASL PLAIN.
		SASLAccount string `yaml:"sasl_account" toml:"sasl_account" json:"sasl_account" env:"VOICED_IRC_SASL_ACCOUNT"`

		// Verbose mirrors raw server traffic to stderr.
		Verbose bool `yaml:"verbose" toml:"verbose" json:"verbose" env:"VOICED_IRC_VERBOSE"`
	} `yaml:"irc" toml:"irc" json:"irc"`

	// Channel is the single managed channel.
	Channel string `yaml:"channel" toml:"channel" json:"channel" env:"VOICED_CHANNEL" validate:"required"`

	Voice struct {
		// InactivitySeconds is how long a managed user may stay silent
		// before losing voice. One day by default.
		InactivitySeconds int `yaml:"inactivity_seconds" toml:"inactivity_seconds" json:"inactivity_seconds" env:"VOICED_INACTIVITY_SECONDS" validate:"min=1"`

		// StrictIdentity requires a verified services login.
		StrictIdentity bool `yaml:"strict_identity" toml:"strict_identity" json:"strict_identity" env:"VOICED_STRICT_IDENTITY"`

		// OperatorPrefixes lists the privilege prefixes allowed to issue
		// administrative commands over IRC.
		OperatorPrefixes string `yaml:"operator_prefixes" toml:"operator_prefixes" json:"operator_prefixes" env:"VOICED_OPERATOR_PREFIXES" validate:"required"`

		// SweepSeconds overrides the devoice sweep period (0 = derive
		// from the inactivity window).
		SweepSeconds int `yaml:"sweep_seconds" toml:"sweep_seconds" json:"sweep_seconds" env:"VOICED_SWEEP_SECONDS" validate:"min=0"`
	} `yaml:"voice" toml:"voice" json:"voice"`

	Storage struct {
		// Dir holds the nicknames, accounts and activity files.
		Dir string `yaml:"dir" toml:"dir" json:"dir" env:"VOICED_STORAGE_DIR" validate:"required"`
	} `yaml:"storage" toml:"storage" json:"storage"`

	Web struct {
		Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"VOICED_WEB_ENABLED"`
		Host    string `yaml:"host" toml:"host" json:"host" env:"VOICED_WEB_HOST"`
		Port    int    `yaml:"port" toml:"port" json:"port" env:"VOICED_WEB_PORT" validate:"min=1,max=65535"`
	} `yaml:"web" toml:"web" json:"web"`

	Throttle struct {
		Limit          int `yaml:"limit" toml:"limit" json:"limit" env:"VOICED_THROTTLE_LIMIT" validate:"min=1"`
		TimeoutSeconds int `yaml:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" env:"VOICED_THROTTLE_TIMEOUT_SECONDS" validate:"min=1"`
	} `yaml:"throttle" toml:"throttle" json:"throttle"`
}

// Default returns a Config with every knob at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.IRC.Port = 6667
	cfg.Channel = ""
	cfg.Voice.InactivitySeconds = 86400
	cfg.Voice.OperatorPrefixes = "@"
	cfg.Storage.Dir = "."
	cfg.Web.Host = "127.0.0.1"
	cfg.Web.Port = 8080
	cfg.Throttle.Limit = 10
	cfg.Throttle.TimeoutSeconds = 120
	return cfg
}

// Load reads the configuration from path, applies environment overrides
// and validates it. Callers that layer further overrides on top (command
// line flags) use Parse and Validate separately.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads and decodes the configuration from path and applies
// environment overrides, without validating.
func Parse(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch {
	case strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml"):
		err = yaml.Unmarshal(data, cfg)
	case strings.HasSuffix(path, ".toml"):
		err = toml.Unmarshal(data, cfg)
	case strings.HasSuffix(path, ".json"):
		err = json.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(reflect.ValueOf(cfg).Elem())
	return cfg, nil
}

// Validate completes derived defaults and checks the configuration.
func (c *Config) Validate() error {
	c.fillDerived()
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// fillDerived completes fields that default from other fields.
func (c *Config) fillDerived() {
	if c.IRC.User == "" {
		c.IRC.User = c.IRC.Nick
	}
	if c.IRC.Name == "" {
		c.IRC.Name = c.IRC.Nick
	}
}

// WebAddress returns the status server's listen address.
func (c *Config) WebAddress() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// applyEnvOverrides walks v and overwrites any field whose env-tagged
// variable is set.
func applyEnvOverrides(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)
		if field.PkgPath != "" {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			applyEnvOverrides(value)
			continue
		}
		tag := field.Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, ok := os.LookupEnv(tag)
		if !ok {
			continue
		}
		setFieldFromEnv(value, raw)
	}
}

func setFieldFromEnv(field reflect.Value, raw string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	}
}
