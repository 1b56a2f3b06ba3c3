package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stale session policies for gateway.stale_session_policy.
const (
	// StalePolicyRetain keeps the last known address and session of a robot
	// after its connection closes. Dispatch to such a robot fails at write time.
	StalePolicyRetain = "retain"

	// StalePolicyRemoveOnDisconnect drops a robot's address and session entries
	// when the connection that registered them ends.
	StalePolicyRemoveOnDisconnect = "remove_on_disconnect"
)

// Telemetry backends for telemetry.backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the root configuration structure for the RoboLink gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Database  DatabaseConfig  `yaml:"database"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies this gateway instance.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// GatewayConfig contains the robot-facing TCP listener settings.
type GatewayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadBufferSize bounds a single read from a robot connection (bytes).
	ReadBufferSize int `yaml:"read_buffer_size"`

	// OutboundQueueSize is the per-connection queue depth for echo and
	// dispatched command writes.
	OutboundQueueSize int `yaml:"outbound_queue_size"`

	// WriteTimeout bounds a single socket write. Zero disables the deadline.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// StoreTimeout bounds a single telemetry persist call.
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// DefaultCommand is sent by the management routes when no payload is given.
	DefaultCommand string `yaml:"default_command"`

	// StaleSessionPolicy is "retain" or "remove_on_disconnect".
	StaleSessionPolicy string `yaml:"stale_session_policy"`

	Eviction EvictionConfig `yaml:"eviction"`
}

// EvictionConfig controls the address freshness sweeper.
type EvictionConfig struct {
	// Interval is how often the sweeper scans the freshness map.
	Interval time.Duration `yaml:"interval"`

	// Window is how long an address may stay silent before it is evicted.
	Window time.Duration `yaml:"window"`
}

// TelemetryConfig selects where robot telemetry is persisted.
type TelemetryConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend string `yaml:"backend"`

	// History appends every reading to telemetry_history (sqlite only).
	History bool `yaml:"history"`

	// PublishMQTT publishes persisted readings to robolink/state/{robot_id}.
	PublishMQTT bool `yaml:"publish_mqtt"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// PostgresConfig contains the relational store connection settings.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	ApplicationName string        `yaml:"application_name"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

// MQTTConfig contains MQTT broker connection settings.
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
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
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// An empty secret leaves the command routes open.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ROBOLINK_SECTION_KEY
// For example: ROBOLINK_GATEWAY_PORT, ROBOLINK_POSTGRES_PASSWORD
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
// The eviction interval and window both default to 5 seconds.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "robolink-001",
			Name: "RoboLink Gateway",
		},
		Gateway: GatewayConfig{
			Host:               "0.0.0.0",
			Port:               1034,
			ReadBufferSize:     1024,
			OutboundQueueSize:  16,
			WriteTimeout:       10 * time.Second,
			StoreTimeout:       5 * time.Second,
			DefaultCommand:     "hello robot",
			StaleSessionPolicy: StalePolicyRetain,
			Eviction: EvictionConfig{
				Interval: 5 * time.Second,
				Window:   5 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Backend: BackendSQLite,
			History: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/robolink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "robolink",
			SSLMode:         "disable",
			ApplicationName: "robolink-gateway",
			MaxConns:        10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "robolink-gateway",
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
			Port:    3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ROBOLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("ROBOLINK_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("ROBOLINK_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}

	// Telemetry
	if v := os.Getenv("ROBOLINK_TELEMETRY_BACKEND"); v != "" {
		cfg.Telemetry.Backend = v
	}

	// Database
	if v := os.Getenv("ROBOLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Postgres
	if v := os.Getenv("ROBOLINK_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("ROBOLINK_POSTGRES_USERNAME"); v != "" {
		cfg.Postgres.Username = v
	}
	if v := os.Getenv("ROBOLINK_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}

	// MQTT
	if v := os.Getenv("ROBOLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ROBOLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ROBOLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ROBOLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("ROBOLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("ROBOLINK_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
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

	// Gateway validation
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}
	if c.Gateway.ReadBufferSize <= 0 {
		errs = append(errs, "gateway.read_buffer_size must be positive")
	}
	if c.Gateway.OutboundQueueSize <= 0 {
		errs = append(errs, "gateway.outbound_queue_size must be positive")
	}
	if c.Gateway.Eviction.Interval <= 0 {
		errs = append(errs, "gateway.eviction.interval must be positive")
	}
	if c.Gateway.Eviction.Window <= 0 {
		errs = append(errs, "gateway.eviction.window must be positive")
	}
	switch c.Gateway.StaleSessionPolicy {
	case StalePolicyRetain, StalePolicyRemoveOnDisconnect:
	default:
		errs = append(errs, fmt.Sprintf("gateway.stale_session_policy must be %q or %q",
			StalePolicyRetain, StalePolicyRemoveOnDisconnect))
	}

	// Telemetry store validation
	switch c.Telemetry.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres.host is required for the postgres backend")
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres.database is required for the postgres backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("telemetry.backend must be %q or %q", BackendSQLite, BackendPostgres))
	}
	if c.Telemetry.PublishMQTT && !c.MQTT.Enabled {
		errs = append(errs, "telemetry.publish_mqtt requires mqtt.enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// JWT secret is optional; when set it must be long enough for HS256.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GatewayAddress returns the host:port the robot listener binds to.
func (c *Config) GatewayAddress() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
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
