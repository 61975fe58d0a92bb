package relay

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file-backed configuration for a router. All fields except
// URL are optional and fall back to the package defaults. Values may
// reference environment variables with ${VAR} syntax.
//
//	url: ${RELAY_URL}
//	retry_limit: 5
//	retry_delay: 2s
//	requeue_on_flush_failure: true
//	message_rate: 100
//	message_burst: 20
type Config struct {
	URL                   string        `yaml:"url"`
	RetryLimit            int           `yaml:"retry_limit"`
	RetryDelay            time.Duration `yaml:"retry_delay"`
	RequeueOnFlushFailure bool          `yaml:"requeue_on_flush_failure"`
	MessageRate           float64       `yaml:"message_rate"`
	MessageBurst          int           `yaml:"message_burst"`
}

// LoadConfig reads, expands, parses, and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// UnmarshalYAML decodes the config, parsing retry_delay from a duration
// string like "1500ms" or "2s".
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		URL                   string  `yaml:"url"`
		RetryLimit            int     `yaml:"retry_limit"`
		RetryDelay            string  `yaml:"retry_delay"`
		RequeueOnFlushFailure bool    `yaml:"requeue_on_flush_failure"`
		MessageRate           float64 `yaml:"message_rate"`
		MessageBurst          int     `yaml:"message_burst"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.URL = raw.URL
	c.RetryLimit = raw.RetryLimit
	c.RequeueOnFlushFailure = raw.RequeueOnFlushFailure
	c.MessageRate = raw.MessageRate
	c.MessageBurst = raw.MessageBurst

	if raw.RetryDelay != "" {
		delay, err := time.ParseDuration(raw.RetryDelay)
		if err != nil {
			return fmt.Errorf("retry_delay: %w", err)
		}
		c.RetryDelay = delay
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.RetryLimit == 0 {
		c.RetryLimit = DefaultRetryLimit
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MessageRate > 0 && c.MessageBurst == 0 {
		c.MessageBurst = 1
	}
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.RetryLimit < 0 {
		return errors.New("retry_limit must not be negative")
	}
	if c.RetryDelay < 0 {
		return errors.New("retry_delay must not be negative")
	}
	if c.MessageRate < 0 {
		return errors.New("message_rate must not be negative")
	}
	return nil
}

// Options converts the config into constructor options:
//
//	cfg, err := relay.LoadConfig("relay.yaml")
//	...
//	router := relay.New(cfg.URL, cfg.Options()...)
func (c *Config) Options() []Option {
	opts := []Option{
		WithRetryLimit(c.RetryLimit),
		WithRetryDelay(c.RetryDelay),
		WithRequeueOnFlushFailure(c.RequeueOnFlushFailure),
	}
	if c.MessageRate > 0 {
		opts = append(opts, WithMessageRate(c.MessageRate, c.MessageBurst))
	}
	return opts
}
