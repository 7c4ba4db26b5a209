// airlink2mqtt bridges SMS between a Sierra Wireless AirLink modem and an
// MQTT broker.
//
// Inbound SMS are published as JSON to <prefix>/message/receive. JSON
// requests on <prefix>/message/send are sent as SMS through the modem.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/airlink2mqtt/internal/bridges/airlink"
	"github.com/nerrad567/airlink2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/airlink2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/airlink2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/airlink2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/airlink2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/airlink2mqtt/internal/journal"
	"github.com/nerrad567/airlink2mqtt/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// journalPruneInterval is how often old journal entries are removed.
const journalPruneInterval = time.Hour

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// realMain parses flags, runs the bridge until SIGINT/SIGTERM and maps the
// outcome to an exit code.
func realMain(args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseFlags(args, stderr)
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(fs, stderr)
		return exitUsage
	case opts.showHelp:
		printUsage(fs, stdout)
		return exitOK
	case opts.showVersion:
		fmt.Fprintf(stdout, "airlink2mqtt %s (commit %s, built %s)\n", version, commit, date)
		return exitOK
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

// run wires the components together and blocks until ctx is cancelled.
//
// Shutdown runs in reverse start order: bridge, modem, MQTT, metrics,
// journal.
func run(ctx context.Context, opts *cliOptions) error {
	cfg, err := config.Build(opts.configPath, opts.overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting airlink2mqtt", "version", version, "commit", commit, "build_date", date)
	log.Debug("effective configuration", "config", cfg.Redacted())

	var recorders multiRecorder

	// Journal (optional)
	var db *database.DB
	if cfg.Journal.Enabled {
		db, err = openJournal(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()

		repo := journal.NewSQLiteRepository(db.DB)
		recorders = append(recorders, repo)

		retention := time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
		go journal.RunRetention(ctx, repo, retention, journalPruneInterval, log.With("component", "journal"))
	} else {
		log.Info("journal disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT, log.With("component", "mqtt"))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
		"client_id", mqttClient.ClientID(),
	)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Modem
	modem, err := airlink.Connect(ctx, airlink.ClientConfig{
		Transport:         cfg.Airlink.Transport,
		Host:              cfg.Airlink.Host,
		Port:              cfg.Airlink.Port,
		BindAddr:          cfg.Airlink.BindAddr,
		ListenPort:        cfg.Airlink.ListenPort,
		ReconnectInterval: cfg.GetAirlinkReconnectInterval(),
	}, log.With("component", "airlink"))
	if err != nil {
		return fmt.Errorf("connecting to modem: %w", err)
	}
	defer func() {
		log.Info("closing modem connection")
		if closeErr := modem.Close(); closeErr != nil {
			log.Error("error closing modem", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Bridge
	bridgeOpts := airlink.BridgeOptions{
		TopicPrefix:      cfg.MQTT.TopicPrefix,
		QoS:              byte(cfg.MQTT.QoS), //nolint:gosec // Validate bounds QoS to 0..2
		IncludeTimestamp: cfg.Relay.IncludeTimestamp,
		SendTimeout:      cfg.GetSendTimeout(),
		HealthInterval:   cfg.GetHealthInterval(),
		Version:          version,
		MQTTClient:       &mqttBridgeAdapter{client: mqttClient},
		Modem:            modem,
		Logger:           log.With("component", "bridge"),
	}
	if len(recorders) > 0 {
		bridgeOpts.Recorder = recorders
	}

	bridge, err := airlink.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// openJournal opens the journal database and applies migrations.
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Journal.Path,
		WALMode:     cfg.Journal.WALMode,
		BusyTimeout: cfg.Journal.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running journal migrations: %w", err)
	}

	log.Info("journal ready", "path", cfg.Journal.Path)
	return db, nil
}

// healthCheck verifies every connected dependency once at startup.
// db and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to
// airlink.MQTTClient. Infrastructure handlers return an error; the bridge's
// handlers do not.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// multiRecorder fans a relay record out to every configured recorder.
type multiRecorder []airlink.Recorder

func (m multiRecorder) RecordRelay(ctx context.Context, rec airlink.RelayRecord) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordRelay(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
