// Package config loads the POA Engine server configuration.
//
// Values are resolved with priority env > file > defaults and validated with
// struct tags before use.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/cache"
)

var validate = validator.New()

// Config is the complete server configuration.
type Config struct {
	Alignment AlignmentConfig `yaml:"alignment"`
	Result    ResultConfig    `yaml:"result"`
	Workers   WorkersConfig   `yaml:"workers"`
	Cache     CacheConfig     `yaml:"cache"`
	Arrow     ArrowConfig     `yaml:"arrow"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	ZMQ       ZMQConfig       `yaml:"zmq"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// AlignmentConfig holds the default alignment parameters.
type AlignmentConfig struct {
	Mode      string              `yaml:"mode" validate:"required,oneof=local global gapped semi-global semiglobal"`
	Match     int32               `yaml:"match"`
	Mismatch  int32               `yaml:"mismatch"`
	Gap       binding.GapPenalty  `yaml:"gap"`
	SecondGap *binding.GapPenalty `yaml:"second_gap"`
}

// ResultConfig selects the result calling convention.
type ResultConfig struct {
	Strategy string `yaml:"strategy" validate:"oneof=owned bounded"`
	Capacity int    `yaml:"capacity" validate:"gte=0,required_if=Strategy bounded"`
}

// WorkersConfig sizes the worker pool.
type WorkersConfig struct {
	Count     int `yaml:"count" validate:"gte=1,lte=4096"`
	QueueSize int `yaml:"queue_size" validate:"gte=0"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	InMemory bool          `yaml:"in_memory"`
	Path     string        `yaml:"path" validate:"required_if=Enabled true InMemory false"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// ArrowConfig configures the Arrow TCP server.
type ArrowConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Address     string        `yaml:"address" validate:"required_if=Enabled true"`
	AuthEnabled bool          `yaml:"auth_enabled"`
	AuthToken   string        `yaml:"auth_token"`
	IdleTimeout time.Duration `yaml:"idle_timeout" validate:"gte=0"`
}

// GRPCConfig configures the gRPC server.
type GRPCConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address" validate:"required_if=Enabled true"`
	MaxMsgSize int    `yaml:"max_msg_size" validate:"gte=0"`
	MaxBatch   int    `yaml:"max_batch" validate:"gte=0"`
}

// ZMQConfig configures the ZeroMQ endpoint.
type ZMQConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Address        string `yaml:"address" validate:"required_if=Enabled true"`
	Concurrency    int    `yaml:"concurrency" validate:"gte=0"`
	MaxMessageSize int    `yaml:"max_message_size" validate:"gte=0"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address" validate:"required_if=Enabled true"`
	Namespace string `yaml:"namespace" validate:"required"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	align := binding.DefaultAlignmentConfig()
	return &Config{
		Alignment: AlignmentConfig{
			Mode:     align.Mode.String(),
			Match:    align.Match,
			Mismatch: align.Mismatch,
			Gap:      align.Gap,
		},
		Result:  ResultConfig{Strategy: "owned"},
		Workers: WorkersConfig{Count: 8},
		Cache:   CacheConfig{TTL: 24 * time.Hour},
		Arrow: ArrowConfig{
			Enabled:     true,
			Address:     "127.0.0.1:50052",
			IdleTimeout: 5 * time.Minute,
		},
		GRPC: GRPCConfig{
			Enabled:    true,
			Address:    "127.0.0.1:50051",
			MaxMsgSize: 16 * 1024 * 1024,
			MaxBatch:   10000,
		},
		ZMQ: ZMQConfig{
			Address: "tcp://127.0.0.1:5560",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Address:   "127.0.0.1:9090",
			Namespace: "poa",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration with priority env > file > defaults.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the alignment mode.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q", f.Namespace(), f.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.AlignmentConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// AlignmentConfig translates the alignment section to binding form.
func (c *Config) AlignmentConfig() (binding.AlignmentConfig, error) {
	mode, err := binding.ParseMode(c.Alignment.Mode)
	if err != nil {
		return binding.AlignmentConfig{}, err
	}
	cfg := binding.AlignmentConfig{
		Mode:     mode,
		Match:    c.Alignment.Match,
		Mismatch: c.Alignment.Mismatch,
		Gap:      c.Alignment.Gap,
	}
	if c.Alignment.SecondGap != nil {
		second := *c.Alignment.SecondGap
		cfg.SecondGap = &second
	}
	return cfg, nil
}

// ResultStrategy returns the configured calling convention.
func (c *Config) ResultStrategy() binding.ResultStrategy {
	if c.Result.Strategy == "bounded" {
		return binding.BoundedResult{Capacity: c.Result.Capacity}
	}
	return binding.OwnedResult{}
}

// BindingOptions returns the options for binding.New.
func (c *Config) BindingOptions(logger *slog.Logger) []binding.Option {
	opts := []binding.Option{binding.WithStrategy(c.ResultStrategy())}
	if logger != nil {
		opts = append(opts, binding.WithLogger(logger))
	}
	return opts
}

// CacheOptions returns the cache configuration.
func (c *Config) CacheOptions(logger *slog.Logger) cache.Config {
	return cache.Config{
		Path:     c.Cache.Path,
		InMemory: c.Cache.InMemory,
		TTL:      c.Cache.TTL,
		Logger:   logger,
	}
}
