// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// BASALT_GATEWAY_BASE_URL.
const EnvPrefix = "BASALT"

const (
	TransportHTTP   = "http"
	TransportMock   = "mock"
	TransportOpenAI = "openai"
)

// Config is the top-level Basalt configuration.
type Config struct {
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Session    SessionConfig    `mapstructure:"session"`
	Log        LogConfig        `mapstructure:"log"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Events     EventsConfig     `mapstructure:"events"`
}

// GatewayConfig selects and addresses the chat transport.
type GatewayConfig struct {
	Transport string        `mapstructure:"transport"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// MockDelay paces the mock transport's streamed words.
	MockDelay time.Duration `mapstructure:"mock_delay"`
}

// OpenAIConfig configures the direct OpenAI transport.
type OpenAIConfig struct {
	Model        string  `mapstructure:"model"`
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`
	TopP         float64 `mapstructure:"top_p"`
}

// SessionConfig controls the chat session.
type SessionConfig struct {
	Mode             string `mapstructure:"mode"`
	MaxMessages      int    `mapstructure:"max_messages"`
	MaxContentLength int    `mapstructure:"max_content_length"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TranscriptConfig points at the SQLite transcript archive. An empty path
// disables archiving.
type TranscriptConfig struct {
	Path string `mapstructure:"path"`
}

type EventsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("gateway.transport", TransportHTTP)
	v.SetDefault("gateway.base_url", "http://127.0.0.1:8000/api/v1")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.mock_delay", 40*time.Millisecond)

	v.SetDefault("openai.model", "gpt-4.1-mini")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.system_prompt", "You are a helpful assistant.")
	v.SetDefault("openai.max_tokens", 512)
	v.SetDefault("openai.temperature", 1.0)
	v.SetDefault("openai.top_p", 1.0)

	v.SetDefault("session.mode", "streaming")
	v.SetDefault("session.max_messages", 100)
	v.SetDefault("session.max_content_length", 4000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("transcript.path", "")
	v.SetDefault("events.enabled", false)
}

// SetupEnv enables BASALT_-prefixed environment overrides on v.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, basalterr.Errorf(basalterr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, basalterr.Errorf(basalterr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// Validate checks the configuration for logical errors. It collects every
// problem instead of stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateGateway()...)
	errs = append(errs, c.validateOpenAI()...)
	errs = append(errs, c.validateSession()...)
	errs = append(errs, c.validateLog()...)

	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error

	switch c.Gateway.Transport {
	case TransportHTTP:
		u, err := url.Parse(c.Gateway.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
				"config: gateway.base_url must be an absolute http(s) URL, got %q", c.Gateway.BaseURL))
		}
	case TransportMock:
	case TransportOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
				"config: openai.api_key is required when gateway.transport is %q", TransportOpenAI))
		}
	default:
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: gateway.transport must be one of [http, mock, openai], got %q", c.Gateway.Transport))
	}

	if c.Gateway.Timeout < 0 {
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: gateway.timeout must not be negative, got %s", c.Gateway.Timeout))
	}
	if c.Gateway.MockDelay < 0 {
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: gateway.mock_delay must not be negative, got %s", c.Gateway.MockDelay))
	}

	return errs
}

func (c *Config) validateOpenAI() []error {
	var errs []error

	if c.OpenAI.MaxTokens < 0 {
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: openai.max_tokens must not be negative, got %d", c.OpenAI.MaxTokens))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: openai.temperature must be between 0 and 2, got %g", c.OpenAI.Temperature))
	}
	if c.OpenAI.TopP <= 0 || c.OpenAI.TopP > 1 {
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: openai.top_p must be greater than 0 and at most 1, got %g", c.OpenAI.TopP))
	}

	return errs
}

func (c *Config) validateSession() []error {
	var errs []error

	switch strings.ToLower(c.Session.Mode) {
	case "streaming", "request":
	default:
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: session.mode must be one of [streaming, request], got %q", c.Session.Mode))
	}
	if c.Session.MaxMessages < 0 {
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: session.max_messages must not be negative, got %d", c.Session.MaxMessages))
	}
	if c.Session.MaxContentLength < 0 {
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: session.max_content_length must not be negative, got %d", c.Session.MaxContentLength))
	}

	return errs
}

func (c *Config) validateLog() []error {
	var errs []error

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue,
			"config: log.format must be one of [text, json], got %q", c.Log.Format))
	}

	return errs
}
