package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for airlink2mqtt.
//
// The broker and modem settings are flat keys named after their command line
// options (mqtt-host, airlink-port, ...) so the same names work on the
// command line and in the YAML file. Optional subsystems live in sections.
type Config struct {
	MQTT     MQTTConfig     `yaml:",inline"`
	Airlink  AirlinkConfig  `yaml:",inline"`
	Verbose  bool           `yaml:"verbose"`
	Logging  LoggingConfig  `yaml:"logging"`
	Relay    RelayConfig    `yaml:"relay"`
	Journal  JournalConfig  `yaml:"journal"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Host        string              `yaml:"mqtt-host"`
	Port        int                 `yaml:"mqtt-port"`
	Username    string              `yaml:"mqtt-user"`
	Password    string              `yaml:"mqtt-password"`
	TopicPrefix string              `yaml:"mqtt-topic-prefix"`
	ClientID    string              `yaml:"mqtt-client-id"`
	TLS         bool                `yaml:"mqtt-tls"`
	QoS         int                 `yaml:"mqtt-qos"`
	Reconnect   MQTTReconnectConfig `yaml:"mqtt-reconnect"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial-delay"`
	MaxDelay     int `yaml:"max-delay"`
}

// AirlinkConfig contains AirLink modem connection settings.
type AirlinkConfig struct {
	// Host is the modem address. Required.
	Host string `yaml:"airlink-host"`

	// Port is the modem's SMS control port. Required.
	Port int `yaml:"airlink-port"`

	// ListenPort is the local UDP port the modem delivers inbound SMS to.
	// Required for the udp transport.
	ListenPort int `yaml:"airlink-listen-port"`

	// BindAddr is the local address the UDP listener binds to.
	// Default: "0.0.0.0"
	BindAddr string `yaml:"airlink-bind-addr"`

	// Transport selects the socket type: "udp" or "tcp".
	// Default: "udp"
	Transport string `yaml:"airlink-transport"`

	// ReconnectInterval is the initial delay between reconnection attempts (seconds).
	// Default: 5
	ReconnectInterval int `yaml:"airlink-reconnect-interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RelayConfig contains bridge relay settings.
type RelayConfig struct {
	// HealthInterval is how often health status is published (seconds).
	// 0 disables periodic health reporting.
	HealthInterval int `yaml:"health-interval"`

	// SendTimeout bounds a single outbound send to the modem (seconds).
	SendTimeout int `yaml:"send-timeout"`

	// IncludeTimestamp adds "received_at" to inbound payloads.
	IncludeTimestamp bool `yaml:"include-timestamp"`
}

// JournalConfig contains settings for the SQLite SMS journal.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal-mode"`
	BusyTimeout   int    `yaml:"busy-timeout"`
	RetentionDays int    `yaml:"retention-days"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch-size"`
	FlushInterval int    `yaml:"flush-interval"`
}

// Supported modem transports.
const (
	TransportUDP = "udp"
	TransportTCP = "tcp"
)

// Load reads configuration from an optional YAML file and applies
// environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Command line flags are applied afterwards with Resolve. Load does not
// validate, because required options may still arrive from the command line.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded configuration
//   - error: If the file cannot be read or parsed
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Build loads the file, applies command line overrides and validates the result.
func Build(path string, overrides Overrides) (*Config, error) {
	base, err := Load(path)
	if err != nil {
		return nil, err
	}

	cfg := Resolve(base, overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// decodeYAML decodes data into cfg, accepting snake_case keys as aliases
// for the kebab-case option names.
func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	normaliseKeys(&root)

	return root.Decode(cfg)
}

// normaliseKeys rewrites every mapping key from snake_case to kebab-case.
func normaliseKeys(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			key.Value = strings.ReplaceAll(key.Value, "_", "-")
		}
	}
	for _, child := range n.Content {
		normaliseKeys(child)
	}
}

// Defaults returns a Config with the documented default values.
func Defaults() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:        "localhost",
			Port:        1883,
			TopicPrefix: "airlink",
			QoS:         1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     60,
			},
		},
		Airlink: AirlinkConfig{
			BindAddr:          "0.0.0.0",
			Transport:         TransportUDP,
			ReconnectInterval: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Relay: RelayConfig{
			HealthInterval: 30,
			SendTimeout:    5,
		},
		Journal: JournalConfig{
			Path:          "./data/airlink2mqtt.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AIRLINK2MQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("AIRLINK2MQTT_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("AIRLINK2MQTT_MQTT_USER"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("AIRLINK2MQTT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// Modem
	if v := os.Getenv("AIRLINK2MQTT_AIRLINK_HOST"); v != "" {
		cfg.Airlink.Host = v
	}

	// InfluxDB
	if v := os.Getenv("AIRLINK2MQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected into a single error so an operator can fix a
// config file in one pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Required modem options, reported together
	var missing []string
	if c.Airlink.Host == "" {
		missing = append(missing, "--airlink-host")
	}
	if c.Airlink.Port == 0 {
		missing = append(missing, "--airlink-port")
	}
	if c.Airlink.ListenPort == 0 && c.Airlink.Transport != TransportTCP {
		missing = append(missing, "--airlink-listen-port")
	}
	if len(missing) > 0 {
		errs = append(errs, "the following options are required either via command line or config file: "+
			strings.Join(missing, ", "))
	}

	// MQTT validation
	if c.MQTT.Host == "" {
		errs = append(errs, "mqtt-host is required")
	}
	if !validPort(c.MQTT.Port) {
		errs = append(errs, "mqtt-port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt-qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt-topic-prefix is required")
	} else if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt-topic-prefix must not contain MQTT wildcards")
	}
	if c.MQTT.Reconnect.InitialDelay < 1 {
		errs = append(errs, "mqtt-reconnect.initial-delay must be at least 1 second")
	}
	if c.MQTT.Reconnect.MaxDelay < 1 {
		errs = append(errs, "mqtt-reconnect.max-delay must be at least 1 second")
	} else if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt-reconnect.max-delay must not be less than initial-delay")
	}

	// Modem validation
	if c.Airlink.Port != 0 && !validPort(c.Airlink.Port) {
		errs = append(errs, "airlink-port must be between 1 and 65535")
	}
	if c.Airlink.ListenPort != 0 && !validPort(c.Airlink.ListenPort) {
		errs = append(errs, "airlink-listen-port must be between 1 and 65535")
	}
	switch c.Airlink.Transport {
	case TransportUDP, TransportTCP:
	default:
		errs = append(errs, fmt.Sprintf("airlink-transport must be %q or %q", TransportUDP, TransportTCP))
	}
	if c.Airlink.ReconnectInterval < 0 {
		errs = append(errs, "airlink-reconnect-interval must not be negative")
	}

	// Relay validation
	if c.Relay.HealthInterval < 0 {
		errs = append(errs, "relay.health-interval must not be negative")
	}
	if c.Relay.SendTimeout < 0 {
		errs = append(errs, "relay.send-timeout must not be negative")
	}

	// Optional subsystems
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Relay.HealthInterval) * time.Second
}

// GetSendTimeout returns the outbound send timeout as a Duration.
func (c *Config) GetSendTimeout() time.Duration {
	return time.Duration(c.Relay.SendTimeout) * time.Second
}

// GetAirlinkReconnectInterval returns the modem reconnect interval as a Duration.
func (c *Config) GetAirlinkReconnectInterval() time.Duration {
	return time.Duration(c.Airlink.ReconnectInterval) * time.Second
}
