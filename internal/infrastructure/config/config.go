package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for upcast.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Cache     CacheConfig     `yaml:"cache"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	Control   ControlConfig   `yaml:"control"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// DiscoveryConfig contains SSDP and network scan settings.
type DiscoveryConfig struct {
	// Timeout is the SSDP response collection window in seconds.
	Timeout int `yaml:"timeout"`

	// Concurrency bounds parallel description fetches and scan probes.
	Concurrency int `yaml:"concurrency"`

	// MaxDevices stops a scan early once this many devices are found.
	// Zero means unlimited.
	MaxDevices int `yaml:"max_devices"`

	// Network is the default CIDR for network scans when a request
	// names none, e.g. "192.168.1.0/24".
	Network string `yaml:"network"`

	// SearchTargets overrides the default SSDP ST list when non-empty.
	SearchTargets []string `yaml:"search_targets"`
}

// CacheConfig contains device cache settings.
type CacheConfig struct {
	// TTLHours is how long a cached device counts as live.
	TTLHours int `yaml:"ttl_hours"`
}

// ProfilesConfig contains device profile loading settings.
type ProfilesConfig struct {
	// Paths lists the files and directories scanned for profile
	// documents.
	Paths []string `yaml:"paths"`
}

// ControlConfig contains protocol dispatch settings.
type ControlConfig struct {
	// RequestTimeout bounds one control request in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// Stealth randomizes the User-Agent and adds pre-request jitter.
	Stealth bool `yaml:"stealth"`

	// StealthMaxDelayMs caps the stealth jitter in milliseconds.
	StealthMaxDelayMs int `yaml:"stealth_max_delay_ms"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for discovery
// announcements. Disabled by default.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains scan telemetry settings. Disabled by default.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: UPCAST_SECTION_KEY
// For example: UPCAST_DATABASE_PATH, UPCAST_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/upcast.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Discovery: DiscoveryConfig{
			Timeout:     5,
			Concurrency: 32,
		},
		Cache: CacheConfig{
			TTLHours: 24,
		},
		Profiles: ProfilesConfig{
			Paths: []string{"./profiles"},
		},
		Control: ControlConfig{
			RequestTimeout:    5,
			StealthMaxDelayMs: 250,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "upcast",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: UPCAST_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("UPCAST_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Discovery
	if v := os.Getenv("UPCAST_DISCOVERY_NETWORK"); v != "" {
		cfg.Discovery.Network = v
	}

	// API
	if v := os.Getenv("UPCAST_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("UPCAST_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("UPCAST_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("UPCAST_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UPCAST_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("UPCAST_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Discovery validation
	if c.Discovery.Timeout < 1 {
		errs = append(errs, "discovery.timeout must be at least 1 second")
	}
	if c.Discovery.Concurrency < 1 {
		errs = append(errs, "discovery.concurrency must be at least 1")
	}

	// Cache validation
	if c.Cache.TTLHours < 1 {
		errs = append(errs, "cache.ttl_hours must be at least 1")
	}

	// Profile validation
	if len(c.Profiles.Paths) == 0 {
		errs = append(errs, "profiles.paths must name at least one file or directory")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDiscoveryTimeout returns the SSDP collection window as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}

// GetCacheTTL returns the cache TTL as a Duration.
func (c *Config) GetCacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// GetControlTimeout returns the control request timeout as a Duration.
func (c *Config) GetControlTimeout() time.Duration {
	return time.Duration(c.Control.RequestTimeout) * time.Second
}

// GetStealthMaxDelay returns the stealth jitter cap as a Duration.
func (c *Config) GetStealthMaxDelay() time.Duration {
	return time.Duration(c.Control.StealthMaxDelayMs) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
