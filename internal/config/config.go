// Package config loads sidecar settings from a YAML file and SIDECAR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/sidecar/internal/logging"
	"github.com/aretw0/sidecar/pkg/discovery"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "sidecar.yaml"

// Discovery modes.
const (
	ModeAuto  = "auto"
	ModeIPC   = "ipc"
	ModeFile  = "file"
	ModeRedis = "redis"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Worker    WorkerConfig    `yaml:"worker"`
	Host      HostConfig      `yaml:"host"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
}

type WorkerConfig struct {
	Address         string        `yaml:"address"`
	PortFile        string        `yaml:"port_file"`
	DisablePortFile bool          `yaml:"disable_port_file"`
	CORSOrigin      string        `yaml:"cors_origin"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics"`
}

type HostConfig struct {
	Command     string        `yaml:"command"`
	Args        []string      `yaml:"args"`
	Dir         string        `yaml:"dir"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type DiscoveryConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	Mode        string        `yaml:"mode"`
}

// RedisConfig enables the shared Redis port registry when Address is set.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	Name     string        `yaml:"name"`
	TTL      time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Address:         "127.0.0.1:0",
			CORSOrigin:      "*",
			ShutdownTimeout: 5 * time.Second,
			Metrics:         true,
		},
		Host: HostConfig{
			StopTimeout: 5 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Interval:    discovery.DefaultInterval,
			MaxAttempts: discovery.DefaultMaxAttempts,
			Mode:        ModeAuto,
		},
		Redis: RedisConfig{
			Prefix: "sidecar:port:",
			Name:   "default",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// envKeys maps environment variables to dotted config keys.
var envKeys = map[string]string{
	"SIDECAR_WORKER_ADDRESS":           "worker.address",
	"SIDECAR_WORKER_PORT_FILE":         "worker.port_file",
	"SIDECAR_WORKER_DISABLE_PORT_FILE": "worker.disable_port_file",
	"SIDECAR_WORKER_CORS_ORIGIN":       "worker.cors_origin",
	"SIDECAR_WORKER_SHUTDOWN_TIMEOUT":  "worker.shutdown_timeout",
	"SIDECAR_WORKER_METRICS":           "worker.metrics",
	"SIDECAR_HOST_COMMAND":             "host.command",
	"SIDECAR_HOST_ARGS":                "host.args",
	"SIDECAR_HOST_DIR":                 "host.dir",
	"SIDECAR_HOST_STOP_TIMEOUT":        "host.stop_timeout",
	"SIDECAR_DISCOVERY_INTERVAL":       "discovery.interval",
	"SIDECAR_DISCOVERY_MAX_ATTEMPTS":   "discovery.max_attempts",
	"SIDECAR_DISCOVERY_MODE":           "discovery.mode",
	"SIDECAR_REDIS_ADDRESS":            "redis.address",
	"SIDECAR_REDIS_PASSWORD":           "redis.password",
	"SIDECAR_REDIS_DB":                 "redis.db",
	"SIDECAR_REDIS_PREFIX":             "redis.prefix",
	"SIDECAR_REDIS_NAME":               "redis.name",
	"SIDECAR_REDIS_TTL":                "redis.ttl",
	"SIDECAR_LOG_LEVEL":                "log.level",
	"SIDECAR_LOG_FORMAT":               "log.format",
}

// Load reads path (YAML) over the defaults, then applies SIDECAR_* overrides.
// A missing file is not an error. An empty path tries DefaultFileName.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFileName
	}

	raw := map[string]interface{}{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]interface{}{}
		}
	}

	for env, key := range envKeys {
		if v, ok := os.LookupEnv(env); ok {
			setKey(raw, key, v)
		}
	}

	cfg := Default()
	if err := decode(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func setKey(raw map[string]interface{}, dotted, value string) {
	section, field, _ := strings.Cut(dotted, ".")
	m, ok := raw[section].(map[string]interface{})
	if !ok {
		m = map[string]interface{}{}
		raw[section] = m
	}
	m[field] = value
}

func decode(raw map[string]interface{}, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "yaml",
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Discovery.Interval <= 0 {
		errs = append(errs, fmt.Errorf("discovery.interval must be positive, got %s", c.Discovery.Interval))
	}
	if c.Discovery.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("discovery.max_attempts must be positive, got %d", c.Discovery.MaxAttempts))
	}
	switch c.Discovery.Mode {
	case ModeAuto, ModeIPC, ModeFile:
	case ModeRedis:
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("discovery.mode redis requires redis.address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown discovery.mode %q", c.Discovery.Mode))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %v", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if c.Worker.ShutdownTimeout <= 0 || c.Host.StopTimeout <= 0 {
		errs = append(errs, errors.New("shutdown and stop timeouts must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
