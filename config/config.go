// Package config provides YAML configuration parsing for creatorwatch.
//
// This package enables running creatorwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
// Every field has a default, so an empty file (or no file at all, see
// [Default]) plus BILI_UP_IDS in the environment is a complete setup.
//
// Example configuration:
//
//	creators: ["123", "456"]
//
//	state:
//	  backend: file
//	  path: bili_latest_video.json
//
//	http:
//	  timeout: 8s
//	  proxy: "${BILI_PROXY:-}"
//	  user_agents:
//	    - "Mozilla/5.0 (Windows NT 10.0; Win64; x64) ..."
//	    - "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) ..."
//
//	retry:
//	  attempts: 3
//	  backoff: 2s
//
//	notify:
//	  - type: stdout
//	  - type: webhook
//	    url: "${BILI_WEBHOOK_URL}"
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/creatorwatch"
	"github.com/jpalmerr/creatorwatch/internal/poller"
	"github.com/jpalmerr/creatorwatch/internal/store"
	"github.com/jpalmerr/creatorwatch/internal/wbi"
)

const (
	defaultHTTPTimeout = 8 * time.Second
	minHTTPTimeout     = 1 * time.Second
	maxHTTPTimeout     = 60 * time.Second
	maxAttempts        = 10
	maxConcurrency     = 32
)

// Notification sink types.
const (
	NotifyStdout  = "stdout"
	NotifyLog     = "log"
	NotifyWebhook = "webhook"
	NotifyKafka   = "kafka"
)

// Config is the root configuration structure for creatorwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load], [Parse] or [Default] to create a Config.
type Config struct {
	// Creators lists the creator ids to watch. Accepts a YAML list or a
	// comma-separated string, e.g. "${BILI_UP_IDS}".
	Creators CreatorList `yaml:"creators"`

	State StateConfig `yaml:"state"`
	HTTP  HTTPConfig  `yaml:"http"`
	Retry RetryConfig `yaml:"retry"`

	// Concurrency is how many creators are fetched at once. Defaults to 1.
	Concurrency int `yaml:"concurrency"`

	// RequestDelay pauses before each creator after the first.
	RequestDelay Duration `yaml:"request_delay"`

	API    APIConfig      `yaml:"api"`
	Notify []NotifyConfig `yaml:"notify"`
}

// StateConfig selects where the last-seen mapping lives.
type StateConfig struct {
	// Backend is file, sqlite, redis or memory. Defaults to file.
	Backend string `yaml:"backend"`

	// Path is the state file or database. Defaults to
	// bili_latest_video.json for file and bili_latest_video.db for sqlite.
	Path string `yaml:"path"`

	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

// HTTPConfig tunes requests to the platform.
type HTTPConfig struct {
	// Timeout bounds every request. Must be between 1s and 60s.
	Timeout Duration `yaml:"timeout"`

	UserAgent string `yaml:"user_agent"`

	// UserAgents is an optional pool; each content request picks one at
	// random. Key requests use user_agent.
	UserAgents []string `yaml:"user_agents"`

	// Proxy is an http(s) proxy URL. Empty means the environment's.
	Proxy string `yaml:"proxy"`
}

// RetryConfig bounds per-creator retries.
type RetryConfig struct {
	// Attempts per creator per pass. Defaults to 3.
	Attempts int `yaml:"attempts"`

	// Backoff is multiplied by the failed attempt number. Defaults to 2s.
	Backoff Duration `yaml:"backoff"`
}

// APIConfig overrides the platform endpoints.
type APIConfig struct {
	NavURL    string `yaml:"nav_url"`
	SearchURL string `yaml:"search_url"`
}

// NotifyConfig defines one notification sink.
type NotifyConfig struct {
	// Type is stdout, log, webhook or kafka.
	Type string `yaml:"type"`

	// URL is the webhook target (type: webhook).
	URL string `yaml:"url"`

	// Retries is the webhook retry count. Defaults to 3.
	Retries int `yaml:"retries"`

	// Brokers and Topic configure the Kafka producer (type: kafka).
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// CreatorList is a list of creator ids that also accepts a single
// comma-separated string in YAML.
type CreatorList []string

// UnmarshalYAML implements yaml.Unmarshaler for CreatorList.
func (c *CreatorList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*c = CreatorList{node.Value}
		return nil
	case yaml.SequenceNode:
		list := make(CreatorList, 0, len(node.Content))
		for i, n := range node.Content {
			if n.Kind != yaml.ScalarNode {
				return fmt.Errorf("creators[%d] must be a string", i)
			}
			list = append(list, n.Value)
		}
		*c = list
		return nil
	default:
		return fmt.Errorf("creators must be a string or list, got %v", node.Kind)
	}
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in creators, paths, URLs, brokers and
// the proxy. Defaults are applied to every unset field.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a valid configuration with every default applied and no
// creators. Combine it with [Config.ApplyEnv] to run without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.State.Backend == "" {
		c.State.Backend = string(store.BackendFile)
	}
	if c.State.RedisAddr == "" {
		c.State.RedisAddr = store.DefaultRedisAddr
	}
	if c.State.RedisKey == "" {
		c.State.RedisKey = store.DefaultRedisKey
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = Duration(defaultHTTPTimeout)
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = wbi.DefaultUserAgent
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = poller.DefaultMaxAttempts
	}
	if c.Retry.Backoff == 0 {
		c.Retry.Backoff = Duration(poller.DefaultBackoffBase)
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.API.NavURL == "" {
		c.API.NavURL = wbi.DefaultNavURL
	}
	if c.API.SearchURL == "" {
		c.API.SearchURL = poller.DefaultSearchURL
	}
	if len(c.Notify) == 0 {
		c.Notify = []NotifyConfig{{Type: NotifyStdout}}
	}
	for i := range c.Notify {
		if c.Notify[i].Type == NotifyWebhook && c.Notify[i].Retries == 0 {
			c.Notify[i].Retries = 3
		}
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var ids []string
	for i, raw := range c.Creators {
		expanded, err := expandEnvVars(raw)
		if err != nil {
			return fmt.Errorf("creators[%d]: %w", i, err)
		}
		ids = append(ids, expanded)
	}
	c.Creators = CreatorList(creatorwatch.ParseCreatorIDs(strings.Join(ids, ",")))

	expand := func(field string, s *string) error {
		expanded, err := expandEnvVars(*s)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*s = expanded
		return nil
	}

	for _, f := range []struct {
		name string
		ptr  *string
	}{
		{"state.path", &c.State.Path},
		{"state.redis_addr", &c.State.RedisAddr},
		{"state.redis_key", &c.State.RedisKey},
		{"http.proxy", &c.HTTP.Proxy},
		{"api.nav_url", &c.API.NavURL},
		{"api.search_url", &c.API.SearchURL},
	} {
		if err := expand(f.name, f.ptr); err != nil {
			return err
		}
	}

	for i := range c.Notify {
		n := &c.Notify[i]
		if err := expand(fmt.Sprintf("notify[%d].url", i), &n.URL); err != nil {
			return err
		}
		if err := expand(fmt.Sprintf("notify[%d].topic", i), &n.Topic); err != nil {
			return err
		}
		for j := range n.Brokers {
			if err := expand(fmt.Sprintf("notify[%d].brokers[%d]", i, j), &n.Brokers[j]); err != nil {
				return err
			}
		}
	}

	return c.Validate()
}

// Validate checks ranges and required fields. It does not expand
// environment variables.
func (c *Config) Validate() error {
	if _, err := store.ParseBackend(c.State.Backend); err != nil {
		return fmt.Errorf("state.backend: %w", err)
	}

	if t := c.HTTP.Timeout.Duration(); t < minHTTPTimeout || t > maxHTTPTimeout {
		return fmt.Errorf("http.timeout must be between %s and %s, got %s", minHTTPTimeout, maxHTTPTimeout, t)
	}
	if strings.TrimSpace(c.HTTP.UserAgent) == "" {
		return fmt.Errorf("http.user_agent cannot be blank")
	}
	for i, ua := range c.HTTP.UserAgents {
		if strings.TrimSpace(ua) == "" {
			return fmt.Errorf("http.user_agents[%d] cannot be blank", i)
		}
	}
	if c.HTTP.Proxy != "" {
		if err := validateHTTPURL(c.HTTP.Proxy); err != nil {
			return fmt.Errorf("http.proxy: %w", err)
		}
	}

	if c.Retry.Attempts < 1 || c.Retry.Attempts > maxAttempts {
		return fmt.Errorf("retry.attempts must be between 1 and %d, got %d", maxAttempts, c.Retry.Attempts)
	}
	if c.Retry.Backoff.Duration() < 0 {
		return fmt.Errorf("retry.backoff cannot be negative, got %s", c.Retry.Backoff.Duration())
	}

	if c.Concurrency < 1 || c.Concurrency > maxConcurrency {
		return fmt.Errorf("concurrency must be between 1 and %d, got %d", maxConcurrency, c.Concurrency)
	}
	if c.RequestDelay.Duration() < 0 {
		return fmt.Errorf("request_delay cannot be negative, got %s", c.RequestDelay.Duration())
	}

	if err := validateHTTPURL(c.API.NavURL); err != nil {
		return fmt.Errorf("api.nav_url: %w", err)
	}
	if err := validateHTTPURL(c.API.SearchURL); err != nil {
		return fmt.Errorf("api.search_url: %w", err)
	}

	for i, n := range c.Notify {
		switch n.Type {
		case NotifyStdout, NotifyLog:
		case NotifyWebhook:
			if n.URL == "" {
				return fmt.Errorf("notify[%d] (webhook): url is required", i)
			}
			if err := validateHTTPURL(n.URL); err != nil {
				return fmt.Errorf("notify[%d] (webhook): %w", i, err)
			}
			if n.Retries < 0 {
				return fmt.Errorf("notify[%d] (webhook): retries cannot be negative", i)
			}
		case NotifyKafka:
			if len(n.Brokers) == 0 {
				return fmt.Errorf("notify[%d] (kafka): at least one broker is required", i)
			}
			if n.Topic == "" {
				return fmt.Errorf("notify[%d] (kafka): topic is required", i)
			}
		default:
			return fmt.Errorf("notify[%d]: unknown type %q (expected stdout, log, webhook or kafka)", i, n.Type)
		}
	}

	return nil
}

// validateHTTPURL checks s is an absolute http or https URL.
func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", s)
	}
	return nil
}
