package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Revend Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Vision    VisionConfig    `yaml:"vision"`
	Session   SessionConfig   `yaml:"session"`
	Security  SecurityConfig  `yaml:"security"`
	Kiosk     KioskConfig     `yaml:"kiosk"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path              string `yaml:"path"`
	MaxMessageSize    int    `yaml:"max_message_size"`
	PingInterval      int    `yaml:"ping_interval"`
	PongTimeout       int    `yaml:"pong_timeout"`
	KeepaliveInterval int    `yaml:"keepalive_interval"`
}

// MQTTConfig contains MQTT broker connection settings for machine
// status reporting. The broker is optional; when disabled the kiosk
// doesn't report health and the backend serves no machine status.
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for detection telemetry.
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

// VisionConfig contains remote classification service settings.
type VisionConfig struct {
	// URL is the classification endpoint (image in, material + confidence out).
	URL string `yaml:"url"`

	// Timeout bounds a single classification call (seconds).
	Timeout int `yaml:"timeout"`

	// MinConfidence is the acceptance threshold. Results below it are
	// forced to REJECTED with zero points.
	MinConfidence float64 `yaml:"min_confidence"`
}

// SessionConfig contains insertion-session settings.
type SessionConfig struct {
	// TTL is the session lifetime in minutes. A session's expiry is fixed
	// at creation and never extended.
	TTL int `yaml:"ttl"`

	// SingleUse ends a session after one completed detection.
	// When false (default) sessions persist until TTL or explicit end.
	SingleUse bool `yaml:"single_use"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// KioskToken authenticates kiosk units on the kiosk-facing API.
	// Empty disables the kiosk endpoints.
	KioskToken string `yaml:"kiosk_token"`
}

// JWTConfig contains JWT token settings. Tokens are issued by the external
// accounts service; Revend Core only validates them to learn caller identity.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// KioskConfig contains kiosk-unit settings (coordinator + detector loop).
type KioskConfig struct {
	// MachineID identifies this kiosk to the backend and on MQTT topics.
	MachineID string `yaml:"machine_id"`

	// BackendURL is the base URL of the Revend Core server.
	BackendURL string `yaml:"backend_url"`

	// APIToken authenticates kiosk-facing backend calls.
	APIToken string `yaml:"api_token"`

	// ClassificationTimeout bounds the detector's wait for a handoff
	// response (seconds). Elapsing is treated as an implicit ERROR.
	ClassificationTimeout int `yaml:"classification_timeout"`

	Transport TransportConfig `yaml:"transport"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
	Camera    CameraConfig    `yaml:"camera"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// CameraConfig describes the snapshot camera used to photograph
// inserted objects.
type CameraConfig struct {
	// URL is the camera's snapshot endpoint, returning one JPEG per GET.
	URL string `yaml:"url"`

	// Timeout bounds the capture call (seconds).
	Timeout int `yaml:"timeout"`
}

// TransportConfig describes the line transport between detector and coordinator.
type TransportConfig struct {
	// Type is "serial" or "tcp".
	Type string `yaml:"type"`

	// Device is the serial device path (e.g. /dev/ttyUSB0) for serial transports.
	Device string `yaml:"device"`

	// Address is the host:port for tcp transports.
	Address string `yaml:"address"`
}

// SensorConfig contains proximity sensor and debounce settings.
type SensorConfig struct {
	// Device is the sensor's device path. The attached microcontroller
	// streams one distance reading per line.
	Device string `yaml:"device"`

	// MinDistanceCM rejects readings closer than this (noise, vibration).
	MinDistanceCM float64 `yaml:"min_distance_cm"`

	// RangeLimitCM rejects readings beyond this (no object present).
	RangeLimitCM float64 `yaml:"range_limit_cm"`

	// PollInterval is the sensor polling interval in milliseconds.
	PollInterval int `yaml:"poll_interval"`

	// RequiredConsecutive is how many consecutive in-band samples confirm
	// an object.
	RequiredConsecutive int `yaml:"required_consecutive"`

	// DebounceWindow is the minimum time between triggers (seconds).
	DebounceWindow int `yaml:"debounce_window"`
}

// ActuatorConfig contains sorting mechanism settings.
type ActuatorConfig struct {
	// Device is the servo controller's device path. Positions are sent
	// as one command per line.
	Device string `yaml:"device"`

	// Hold is how long the mechanism stays deflected before returning to
	// centre (seconds). Models physical settle time.
	Hold int `yaml:"hold"`
}

// NotifyConfig contains kiosk WebSocket notification settings.
type NotifyConfig struct {
	// MaxAttempts caps reconnection attempts before giving up.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the first reconnect delay in seconds; it doubles per
	// attempt up to MaxDelay.
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the reconnect delay (seconds).
	MaxDelay int `yaml:"max_delay"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: REVEND_SECTION_KEY
// For example: REVEND_DATABASE_PATH, REVEND_VISION_URL
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
			ID:       "site-001",
			Name:     "Revend",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/revend.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:              "/ws",
			MaxMessageSize:    8192,
			PingInterval:      30,
			PongTimeout:       10,
			KeepaliveInterval: 25,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "revend-core",
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
		Vision: VisionConfig{
			Timeout:       10,
			MinConfidence: 0.3,
		},
		Session: SessionConfig{
			TTL:       10,
			SingleUse: false,
		},
		Kiosk: KioskConfig{
			MachineID:             "kiosk-001",
			BackendURL:            "http://localhost:8080",
			ClassificationTimeout: 30,
			Transport: TransportConfig{
				Type:   "serial",
				Device: "/dev/ttyUSB0",
			},
			Sensor: SensorConfig{
				MinDistanceCM:       5,
				RangeLimitCM:        50,
				PollInterval:        100,
				RequiredConsecutive: 3,
				DebounceWindow:      5,
			},
			Actuator: ActuatorConfig{
				Hold: 2,
			},
			Camera: CameraConfig{
				URL:     "http://localhost:8081/capture",
				Timeout: 5,
			},
			Notify: NotifyConfig{
				MaxAttempts:  5,
				InitialDelay: 1,
				MaxDelay:     10,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: REVEND_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("REVEND_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("REVEND_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// MQTT
	if v := os.Getenv("REVEND_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("REVEND_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("REVEND_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Vision
	if v := os.Getenv("REVEND_VISION_URL"); v != "" {
		cfg.Vision.URL = v
	}

	// InfluxDB
	if v := os.Getenv("REVEND_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("REVEND_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("REVEND_KIOSK_TOKEN"); v != "" {
		cfg.Security.KioskToken = v
	}

	// Kiosk
	if v := os.Getenv("REVEND_KIOSK_BACKEND_URL"); v != "" {
		cfg.Kiosk.BackendURL = v
	}
	if v := os.Getenv("REVEND_KIOSK_API_TOKEN"); v != "" {
		cfg.Kiosk.APIToken = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		errs = append(errs, "vision.min_confidence must be in [0, 1]")
	}

	if c.Session.TTL < 1 {
		errs = append(errs, "session.ttl must be at least 1 minute")
	}

	if c.Kiosk.Sensor.MinDistanceCM >= c.Kiosk.Sensor.RangeLimitCM {
		errs = append(errs, "kiosk.sensor.min_distance_cm must be below range_limit_cm")
	}

	switch c.Kiosk.Transport.Type {
	case "serial", "tcp", "":
	default:
		errs = append(errs, "kiosk.transport.type must be serial or tcp")
	}

	// The JWT secret validates caller identity on session endpoints.
	// An empty or weak secret would let anyone claim another user's
	// insertions, so it is required up front.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set REVEND_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
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

// GetVisionTimeout returns the classification call timeout as a Duration.
func (c *Config) GetVisionTimeout() time.Duration {
	return time.Duration(c.Vision.Timeout) * time.Second
}

// GetSessionTTL returns the session time-to-live as a Duration.
func (c *Config) GetSessionTTL() time.Duration {
	return time.Duration(c.Session.TTL) * time.Minute
}

// GetClassificationTimeout returns the detector-side response wait as a Duration.
func (c *KioskConfig) GetClassificationTimeout() time.Duration {
	return time.Duration(c.ClassificationTimeout) * time.Second
}

// GetPollInterval returns the sensor polling interval as a Duration.
func (c *SensorConfig) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// GetDebounceWindow returns the debounce window as a Duration.
func (c *SensorConfig) GetDebounceWindow() time.Duration {
	return time.Duration(c.DebounceWindow) * time.Second
}

// GetHold returns the actuator hold duration.
func (c *ActuatorConfig) GetHold() time.Duration {
	return time.Duration(c.Hold) * time.Second
}
