package config

// Overrides holds values given explicitly on the command line.
//
// A nil field means the flag was not given, so the file, environment or
// default value stays in effect.
type Overrides struct {
	MQTTHost        *string
	MQTTPort        *int
	MQTTUser        *string
	MQTTPassword    *string
	MQTTTopicPrefix *string
	MQTTClientID    *string

	AirlinkHost       *string
	AirlinkPort       *int
	AirlinkListenPort *int
	AirlinkBindAddr   *string
	AirlinkTransport  *string

	Verbose *bool
}

// Resolve returns a copy of base with the command line overrides applied.
//
// base is not modified. When the resolved configuration is verbose the log
// level is forced to debug, whichever layer enabled it.
func Resolve(base *Config, o Overrides) *Config {
	out := *base

	setString(&out.MQTT.Host, o.MQTTHost)
	setInt(&out.MQTT.Port, o.MQTTPort)
	setString(&out.MQTT.Username, o.MQTTUser)
	setString(&out.MQTT.Password, o.MQTTPassword)
	setString(&out.MQTT.TopicPrefix, o.MQTTTopicPrefix)
	setString(&out.MQTT.ClientID, o.MQTTClientID)

	setString(&out.Airlink.Host, o.AirlinkHost)
	setInt(&out.Airlink.Port, o.AirlinkPort)
	setInt(&out.Airlink.ListenPort, o.AirlinkListenPort)
	setString(&out.Airlink.BindAddr, o.AirlinkBindAddr)
	setString(&out.Airlink.Transport, o.AirlinkTransport)

	if o.Verbose != nil {
		out.Verbose = *o.Verbose
	}
	if out.Verbose {
		out.Logging.Level = "debug"
	}

	return &out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Redacted returns a copy of the configuration safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.MQTT.Password != "" {
		out.MQTT.Password = "********"
	}
	if out.InfluxDB.Token != "" {
		out.InfluxDB.Token = "********"
	}
	return out
}
