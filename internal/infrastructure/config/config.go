package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store driver names.
const (
	StoreDriverFirebase = "firebase"
	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
)

// Config is the root configuration structure for roomgate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Store     StoreConfig     `yaml:"store"`
	Security  SecurityConfig  `yaml:"security"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Maintenance engages the kill switch: all write routes answer with the
	// maintenance signal. Fixed for the lifetime of the process.
	Maintenance bool `yaml:"maintenance"`

	// envErrors holds environment overrides that could not be parsed.
	envErrors []string
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
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

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// StoreConfig selects and configures the backing key-value store.
type StoreConfig struct {
	// Driver is one of "firebase", "memory" or "sqlite".
	Driver string `yaml:"driver"`

	// URL is the base URL of the hosted tree, e.g. https://project.firebaseio.com
	URL string `yaml:"url"`

	// Secret is the master credential attached to every outbound call.
	Secret string `yaml:"secret"`

	// Timeout bounds each outbound call, in seconds.
	Timeout int `yaml:"timeout"`

	// SQLite holds settings for the sqlite driver.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains settings for the local SQLite store driver.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SecurityConfig contains the client-facing credentials.
//
// An empty token means no presented credential can ever match it.
type SecurityConfig struct {
	WriteToken string `yaml:"write_token"`
	ReadToken  string `yaml:"read_token"`

	// AdminPassword is either a plaintext secret or an Argon2id PHC hash.
	AdminPassword string `yaml:"admin_password"`

	// OpenDownlink serves the snapshot read without a read token.
	OpenDownlink bool `yaml:"open_downlink"`

	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains admin session token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// WebSocketConfig contains operator event feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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
// When optional is true a missing file is not an error; the process runs
// from defaults and environment alone, which is how container deployments
// usually configure it.
//
// Parameters:
//   - path: Path to the YAML configuration file
//   - optional: Whether a missing file is tolerated
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string, optional bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 30,
				Idle:  60,
			},
		},
		Store: StoreConfig{
			Driver:  StoreDriverFirebase,
			Timeout: 10,
			SQLite: SQLiteConfig{
				Path:        "./data/roomgate.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "roomgate",
			},
			QoS:         1,
			TopicPrefix: "roomgate",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// lookupFunc matches os.LookupEnv so tests can supply a fabricated environment.
type lookupFunc func(key string) (string, bool)

// applyEnvOverrides applies environment variable overrides to the configuration.
// ROOMGATE_* names win over the legacy deployment names when both are set.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	boolean := func(dst *bool, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					cfg.envErrors = append(cfg.envErrors, fmt.Sprintf("%s=%q is not a boolean (use true or false)", k, v))
					return
				}
				*dst = b
				return
			}
		}
	}
	integer := func(dst *int, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					cfg.envErrors = append(cfg.envErrors, fmt.Sprintf("%s=%q is not an integer", k, v))
					return
				}
				*dst = n
				return
			}
		}
	}

	// API
	str(&cfg.API.Host, "ROOMGATE_API_HOST")
	integer(&cfg.API.Port, "ROOMGATE_API_PORT", "PORT")

	// Store
	str(&cfg.Store.Driver, "ROOMGATE_STORE_DRIVER")
	str(&cfg.Store.URL, "ROOMGATE_STORE_URL", "FIREBASE_URL")
	str(&cfg.Store.Secret, "ROOMGATE_STORE_SECRET", "FIREBASE_SECRET")
	str(&cfg.Store.SQLite.Path, "ROOMGATE_STORE_SQLITE_PATH")

	// Security
	str(&cfg.Security.WriteToken, "ROOMGATE_WRITE_TOKEN", "ESP_TOKEN")
	str(&cfg.Security.ReadToken, "ROOMGATE_READ_TOKEN", "READ_TOKEN")
	str(&cfg.Security.AdminPassword, "ROOMGATE_ADMIN_PASSWORD", "ADMIN_PASSWORD")
	boolean(&cfg.Security.OpenDownlink, "ROOMGATE_OPEN_DOWNLINK")
	str(&cfg.Security.JWT.Secret, "ROOMGATE_JWT_SECRET")

	// Kill switch
	boolean(&cfg.Maintenance, "ROOMGATE_MAINTENANCE", "MAINTENANCE_MODE")

	// MQTT
	boolean(&cfg.MQTT.Enabled, "ROOMGATE_MQTT_ENABLED")
	str(&cfg.MQTT.Broker.Host, "ROOMGATE_MQTT_HOST")
	str(&cfg.MQTT.Auth.Username, "ROOMGATE_MQTT_USERNAME")
	str(&cfg.MQTT.Auth.Password, "ROOMGATE_MQTT_PASSWORD")

	// Logging
	str(&cfg.Logging.Level, "ROOMGATE_LOG_LEVEL")
	str(&cfg.Logging.Format, "ROOMGATE_LOG_FORMAT")
}

// minJWTSecretLength is the shortest accepted session signing secret.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and security issues.
//
// Client-facing tokens are allowed to be empty: the gateway then rejects
// every request on that route class rather than running without a check.
// Environment overrides that failed to parse are reported here too.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	errs := append([]string(nil), c.envErrors...)

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.Store.Driver {
	case StoreDriverFirebase:
		if c.Store.URL == "" {
			errs = append(errs, "store.url is required for the firebase driver (set FIREBASE_URL)")
		}
		if c.Store.Secret == "" {
			errs = append(errs, "store.secret is required for the firebase driver (set FIREBASE_SECRET)")
		}
	case StoreDriverMemory:
	case StoreDriverSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, "store.sqlite.path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of firebase, memory, sqlite", c.Store.Driver))
	}

	if c.Store.Timeout <= 0 {
		errs = append(errs, "store.timeout must be positive")
	}

	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// StoreTimeout returns the per-call outbound timeout as a Duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.Timeout) * time.Second
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
