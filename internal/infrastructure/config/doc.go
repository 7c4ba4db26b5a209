// Package config handles loading and validating airlink2mqtt configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with environment variables and command line flags
//   - Validation of required fields
//   - Default value handling
//
// YAML keys use the command line option names (mqtt-host, airlink-port, ...).
// snake_case spellings (mqtt_host) are accepted and normalised on load.
//
// Precedence, highest first: command line, environment, YAML file, defaults.
//
// Security Considerations:
//   - Passwords and tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Use Config.Redacted before logging a configuration
//
// Usage:
//
//	cfg, err := config.Build("airlink2mqtt.yaml", config.Overrides{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.TopicPrefix)
package config
