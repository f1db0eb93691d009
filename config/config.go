// Package config loads client settings from defaults, an optional YAML file and the
// environment, in that order. Later layers override earlier ones field by field.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/joeshaw/envdecode"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"mini-jsonrpc/loadbalance"
)

type Config struct {
	// Endpoint is the URL requests are posted to. ENV: JSONRPC_ENDPOINT
	Endpoint string `yaml:"endpoint" env:"JSONRPC_ENDPOINT"`
	// Service is looked up in etcd when Endpoint is empty. Empty means the method prefix.
	// ENV: JSONRPC_SERVICE
	Service string `yaml:"service" env:"JSONRPC_SERVICE"`
	// EtcdEndpoints enable discovery. ENV: JSONRPC_ETCD_ENDPOINTS (comma separated)
	EtcdEndpoints []string `yaml:"etcd_endpoints"`
	// Balancer is one of round_robin, weighted_random, consistent_hash. ENV: JSONRPC_BALANCER
	Balancer string `yaml:"balancer" env:"JSONRPC_BALANCER"`

	Timeout        time.Duration `yaml:"timeout" env:"JSONRPC_TIMEOUT"`
	Retries        int           `yaml:"retries" env:"JSONRPC_RETRIES"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"JSONRPC_RETRY_BASE_DELAY"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"JSONRPC_RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"JSONRPC_RATE_BURST"`

	LogLevel         string `yaml:"log_level" env:"JSONRPC_LOG_LEVEL"`
	MetricsNamespace string `yaml:"metrics_namespace" env:"JSONRPC_METRICS_NAMESPACE"`
}

type etcdEnv struct {
	Endpoints string `env:"JSONRPC_ETCD_ENDPOINTS"`
}

func Default() Config {
	return Config{
		Balancer:         loadbalance.RoundRobin,
		Timeout:          10 * time.Second,
		Retries:          2,
		RetryBaseDelay:   100 * time.Millisecond,
		RateBurst:        1,
		LogLevel:         "info",
		MetricsNamespace: "jsonrpc",
	}
}

// Load returns Default overlaid with the YAML file at path (skipped when path is empty),
// then with JSONRPC_* environment variables, then with overrides such as command line
// flags. The result is validated.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", path)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return errors.Wrap(err, "decode environment")
	}

	var etcd etcdEnv
	if err := envdecode.Decode(&etcd); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return errors.Wrap(err, "decode environment")
	}
	if etcd.Endpoints != "" {
		cfg.EtcdEndpoints = nil
		for _, ep := range strings.Split(etcd.Endpoints, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				cfg.EtcdEndpoints = append(cfg.EtcdEndpoints, ep)
			}
		}
	}
	return nil
}

// Validate checks that the settings describe a usable client. Service is optional with
// etcd endpoints: discovery then uses the method prefix as the service name.
func (c Config) Validate() error {
	if c.Endpoint == "" && len(c.EtcdEndpoints) == 0 {
		return errors.New("config: endpoint or etcd_endpoints is required")
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		return errors.Wrap(err, "config")
	}
	if c.Timeout < 0 || c.RetryBaseDelay < 0 {
		return errors.New("config: durations must not be negative")
	}
	if c.Retries < 0 {
		return errors.Errorf("config: retries must not be negative, got %d", c.Retries)
	}
	if c.RateLimit < 0 {
		return errors.Errorf("config: rate_limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return errors.Errorf("config: rate_burst must be at least 1 when rate_limit is set, got %d", c.RateBurst)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config: log_level")
	}
	return nil
}
