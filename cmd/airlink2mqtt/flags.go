package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/nerrad567/airlink2mqtt/internal/infrastructure/config"
)

// cliOptions is the parsed command line.
type cliOptions struct {
	configPath  string
	overrides   config.Overrides
	showHelp    bool
	showVersion bool
}

// parseFlags parses args (without the program name).
//
// Only flags that were actually given end up in overrides, so values from
// the config file and environment survive unless overridden.
func parseFlags(args []string, stderr io.Writer) (*cliOptions, *pflag.FlagSet, error) {
	fs := pflag.NewFlagSet("airlink2mqtt", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	fs.Usage = func() { printUsage(fs, stderr) }

	opts := &cliOptions{}
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")

	mqttHost := fs.StringP("mqtt-host", "h", "localhost", "MQTT broker host")
	mqttPort := fs.IntP("mqtt-port", "o", 1883, "MQTT broker port")
	mqttUser := fs.StringP("mqtt-user", "u", "", "MQTT username")
	mqttPassword := fs.StringP("mqtt-password", "p", "", "MQTT password")
	mqttPrefix := fs.StringP("mqtt-topic-prefix", "t", "airlink", "MQTT topic prefix")
	mqttClientID := fs.String("mqtt-client-id", "", "MQTT client ID (default: airlink2mqtt-<random>)")

	airlinkHost := fs.StringP("airlink-host", "H", "", "AirLink modem host (required)")
	airlinkPort := fs.IntP("airlink-port", "P", 0, "AirLink modem SMS port (required)")
	airlinkListenPort := fs.IntP("airlink-listen-port", "L", 0, "local UDP port for inbound SMS (required for udp)")
	airlinkBindAddr := fs.StringP("airlink-bind-addr", "A", "0.0.0.0", "local address to bind for inbound SMS")
	airlinkTransport := fs.String("airlink-transport", "udp", "modem transport: udp or tcp")

	verbose := fs.BoolP("verbose", "v", false, "enable debug logging")
	fs.BoolVar(&opts.showHelp, "help", false, "show this help and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if fs.NArg() > 0 {
		return nil, fs, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	o := &opts.overrides
	if fs.Changed("mqtt-host") {
		o.MQTTHost = mqttHost
	}
	if fs.Changed("mqtt-port") {
		o.MQTTPort = mqttPort
	}
	if fs.Changed("mqtt-user") {
		o.MQTTUser = mqttUser
	}
	if fs.Changed("mqtt-password") {
		o.MQTTPassword = mqttPassword
	}
	if fs.Changed("mqtt-topic-prefix") {
		o.MQTTTopicPrefix = mqttPrefix
	}
	if fs.Changed("mqtt-client-id") {
		o.MQTTClientID = mqttClientID
	}
	if fs.Changed("airlink-host") {
		o.AirlinkHost = airlinkHost
	}
	if fs.Changed("airlink-port") {
		o.AirlinkPort = airlinkPort
	}
	if fs.Changed("airlink-listen-port") {
		o.AirlinkListenPort = airlinkListenPort
	}
	if fs.Changed("airlink-bind-addr") {
		o.AirlinkBindAddr = airlinkBindAddr
	}
	if fs.Changed("airlink-transport") {
		o.AirlinkTransport = airlinkTransport
	}
	if fs.Changed("verbose") {
		o.Verbose = verbose
	}

	return opts, fs, nil
}

func printUsage(fs *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "Usage: airlink2mqtt [options]\n\n")
	fmt.Fprintf(w, "Bridges SMS between a Sierra Wireless AirLink modem and an MQTT broker.\n\n")
	fmt.Fprintf(w, "Options:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
}
