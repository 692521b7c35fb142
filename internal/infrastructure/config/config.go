package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the heat-pump bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	HeatPump  HeatPumpConfig  `yaml:"heatpump"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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

// InfluxDBConfig contains InfluxDB connection settings.
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Only Path is honoured by the logger; rotation is left to logrotate.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// HeatPumpConfig describes the Modbus connection to the Thermia Genesis unit
// and how the polling coordinator behaves.
type HeatPumpConfig struct {
	// Host is an IP address or hostname of the heat pump's Modbus TCP interface.
	Host string `yaml:"host"`

	// Port is the Modbus TCP port. Default: 502
	Port int `yaml:"port"`

	// Type selects the register layout: "inverter" or "mega". Default: inverter
	Type string `yaml:"type"`

	// SlaveID is the Modbus unit identifier. Default: 1
	SlaveID int `yaml:"slave_id"`

	// Timeout bounds a single Modbus request, in seconds. Default: 5
	Timeout int `yaml:"timeout"`

	// PollInterval is the coordinator refresh interval in seconds. Default: 30
	PollInterval int `yaml:"poll_interval"`

	// RequestDelayMS is the pause between consecutive register requests.
	// The controller drops requests that arrive back to back. Default: 50
	RequestDelayMS int `yaml:"request_delay_ms"`

	// MaxRegisters caps how many contiguous registers one request may span. Default: 1
	MaxRegisters int `yaml:"max_registers"`

	// WriteMode controls how the cache reacts to a successful write:
	// "poll" (wait for the next cycle), "optimistic" or "refresh". Default: poll
	WriteMode string `yaml:"write_mode"`

	// SetupRetry is the delay in seconds between setup attempts while the
	// device is unreachable. Default: 30
	SetupRetry int `yaml:"setup_retry"`

	// HealthInterval is the bridge health publish interval in seconds. Default: 30
	HealthInterval int `yaml:"health_interval"`

	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DiscoveryConfig controls Home Assistant MQTT discovery announcements.
type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// HistoryConfig controls the SQLite register history.
type HistoryConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Valid heat-pump write modes.
const (
	WriteModePoll       = "poll"
	WriteModeOptimistic = "optimistic"
	WriteModeRefresh    = "refresh"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_HEATPUMP_HOST, GRAYLOGIC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/heatpump.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-heatpump",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		HeatPump: HeatPumpConfig{
			Port:           502,
			Type:           "inverter",
			SlaveID:        1,
			Timeout:        5,
			PollInterval:   30,
			RequestDelayMS: 50,
			MaxRegisters:   1,
			WriteMode:      WriteModePoll,
			SetupRetry:     30,
			HealthInterval: 30,
			Discovery: DiscoveryConfig{
				Enabled: true,
				Prefix:  "homeassistant",
			},
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Heat pump
	if v := os.Getenv("GRAYLOGIC_HEATPUMP_HOST"); v != "" {
		cfg.HeatPump.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_HEATPUMP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HeatPump.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_HEATPUMP_TYPE"); v != "" {
		cfg.HeatPump.Type = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	hp := c.HeatPump
	if hp.Host == "" {
		errs = append(errs, "heatpump.host is required (set GRAYLOGIC_HEATPUMP_HOST environment variable)")
	}
	if hp.Port < 1 || hp.Port > 65535 {
		errs = append(errs, "heatpump.port must be between 1 and 65535")
	}
	if hp.Type != "inverter" && hp.Type != "mega" {
		errs = append(errs, "heatpump.type must be inverter or mega")
	}
	if hp.SlaveID < 0 || hp.SlaveID > 247 {
		errs = append(errs, "heatpump.slave_id must be between 0 and 247")
	}
	if hp.PollInterval < 1 {
		errs = append(errs, "heatpump.poll_interval must be at least 1 second")
	}
	if hp.MaxRegisters < 1 || hp.MaxRegisters > 125 {
		errs = append(errs, "heatpump.max_registers must be between 1 and 125")
	}
	if hp.RequestDelayMS < 0 {
		errs = append(errs, "heatpump.request_delay_ms must not be negative")
	}
	switch hp.WriteMode {
	case WriteModePoll, WriteModeOptimistic, WriteModeRefresh:
	default:
		errs = append(errs, "heatpump.write_mode must be poll, optimistic, or refresh")
	}

	if c.History.Enabled && c.History.RetentionDays < 1 {
		errs = append(errs, "history.retention_days must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// PollIntervalDuration returns the coordinator refresh interval.
func (h HeatPumpConfig) PollIntervalDuration() time.Duration {
	return time.Duration(h.PollInterval) * time.Second
}

// RequestDelay returns the pause between Modbus requests.
func (h HeatPumpConfig) RequestDelay() time.Duration {
	return time.Duration(h.RequestDelayMS) * time.Millisecond
}

// TimeoutDuration returns the per-request Modbus timeout.
func (h HeatPumpConfig) TimeoutDuration() time.Duration {
	return time.Duration(h.Timeout) * time.Second
}

// SetupRetryDuration returns the delay between setup attempts.
func (h HeatPumpConfig) SetupRetryDuration() time.Duration {
	return time.Duration(h.SetupRetry) * time.Second
}
