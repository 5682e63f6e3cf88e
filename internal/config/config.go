// YAML application config with environment overrides
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"fleetsim/internal/topics"
)

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BackboneConfig describes the system broker used by the control plane.
type BackboneConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	TLS               bool          `yaml:"tls"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
}

// LocalhostOverride redirects simulated connections aimed at localhost, for engines
// running in an isolated network namespace such as a container.
type LocalhostOverride struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EngineConfig tunes simulated broker connections.
type EngineConfig struct {
	ConnectTimeout       time.Duration     `yaml:"connectTimeout"`
	ReconnectDelay       time.Duration     `yaml:"reconnectDelay"`
	MaxReconnectAttempts int               `yaml:"maxReconnectAttempts"`
	LocalhostOverride    LocalhostOverride `yaml:"localhostOverride"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	Watch       bool   `yaml:"watch"`
	RedisAddr   string `yaml:"redisAddr"`
	RedisPrefix string `yaml:"redisPrefix"`
}

// RecorderConfig enables telemetry recording sinks. All are optional.
type RecorderConfig struct {
	File             string `yaml:"file"`
	Stdout           bool   `yaml:"stdout"`
	GreptimeEndpoint string `yaml:"greptimeEndpoint"`
	GreptimeDatabase string `yaml:"greptimeDatabase"`
	GreptimeTable    string `yaml:"greptimeTable"`
	BatchSize        int    `yaml:"batchSize"`
}

// AdminConfig configures the HTTP admin API.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root application configuration.
type Config struct {
	Log         LogConfig      `yaml:"log"`
	TopicPrefix string         `yaml:"topicPrefix"`
	Backbone    BackboneConfig `yaml:"backbone"`
	Engine      EngineConfig   `yaml:"engine"`
	Store       StoreConfig    `yaml:"store"`
	Recorder    RecorderConfig `yaml:"recorder"`
	Admin       AdminConfig    `yaml:"admin"`
}

// Store drivers.
const (
	DriverFile  = "file"
	DriverRedis = "redis"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file, applies defaults and then environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes, applies defaults and then environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = topics.DefaultPrefix
	}
	if c.Backbone.Host == "" {
		c.Backbone.Host = "localhost"
	}
	if c.Backbone.Port <= 0 {
		c.Backbone.Port = 1883
	}
	if c.Backbone.HeartbeatInterval <= 0 {
		c.Backbone.HeartbeatInterval = 10 * time.Second
	}
	if c.Engine.ConnectTimeout <= 0 {
		c.Engine.ConnectTimeout = 10 * time.Second
	}
	if c.Engine.ReconnectDelay <= 0 {
		c.Engine.ReconnectDelay = 2 * time.Second
	}
	if c.Engine.MaxReconnectAttempts <= 0 {
		c.Engine.MaxReconnectAttempts = 5
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverFile
	}
	if c.Store.Path == "" {
		c.Store.Path = "profiles.yaml"
	}
	if c.Store.RedisPrefix == "" {
		c.Store.RedisPrefix = "fleetsim"
	}
	if c.Recorder.GreptimeDatabase == "" {
		c.Recorder.GreptimeDatabase = "public"
	}
	if c.Recorder.GreptimeTable == "" {
		c.Recorder.GreptimeTable = "simulation_samples"
	}
	if c.Recorder.BatchSize <= 0 {
		c.Recorder.BatchSize = 100
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":8080"
	}
}

// ApplyEnv overrides config values from FLEETSIM_* and GREPTIMEDB_* variables.
func (c *Config) ApplyEnv() error {
	setString(&c.Log.Level, "FLEETSIM_LOG_LEVEL")
	setString(&c.Log.Format, "FLEETSIM_LOG_FORMAT")
	setString(&c.TopicPrefix, "FLEETSIM_TOPIC_PREFIX")
	setString(&c.Backbone.Host, "FLEETSIM_BACKBONE_HOST")
	setString(&c.Backbone.Username, "FLEETSIM_BACKBONE_USERNAME")
	setString(&c.Backbone.Password, "FLEETSIM_BACKBONE_PASSWORD")
	setString(&c.Engine.LocalhostOverride.Host, "FLEETSIM_LOCALHOST_HOST")
	setString(&c.Store.Driver, "FLEETSIM_STORE_DRIVER")
	setString(&c.Store.Path, "FLEETSIM_STORE_PATH")
	setString(&c.Store.RedisAddr, "FLEETSIM_REDIS_ADDR")
	setString(&c.Recorder.GreptimeEndpoint, "GREPTIMEDB_ENDPOINT")
	setString(&c.Recorder.GreptimeDatabase, "GREPTIMEDB_DATABASE")
	setString(&c.Recorder.GreptimeTable, "GREPTIMEDB_TABLE")
	setString(&c.Admin.Addr, "FLEETSIM_ADMIN_ADDR")
	if err := setInt(&c.Backbone.Port, "FLEETSIM_BACKBONE_PORT"); err != nil {
		return err
	}
	return setInt(&c.Engine.LocalhostOverride.Port, "FLEETSIM_LOCALHOST_PORT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
