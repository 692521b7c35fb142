// Gray Logic Heat Pump Bridge
//
// This is the main entry point for the Thermia Genesis heat pump bridge. It
// polls the heat pump over Modbus TCP, exposes its registers as entities and
// publishes them over MQTT (with Home Assistant discovery) and a REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-heatpump/migrations"

	"github.com/nerrad567/gray-logic-heatpump/internal/api"
	"github.com/nerrad567/gray-logic-heatpump/internal/bridges/heatpump"
	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/history"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-heatpump/internal/integration"
	"github.com/nerrad567/gray-logic-heatpump/internal/metrics"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup wiring is sequential
	log := logging.Default()
	log.Info("starting heat pump bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	hpCfg, err := integration.ConfigFromSettings(cfg.HeatPump)
	if err != nil {
		return fmt.Errorf("heat pump settings: %w", err)
	}

	// Open database
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Metrics (optional)
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
	}

	// Set up the heat pump entry, retrying while the device is unreachable
	address := hpCfg.Device.Address()
	entry, err := setupEntry(ctx, hpCfg, integration.Options{
		Logger:   log.Component("heatpump"),
		Observer: observers(collector, influxClient, address),
	}, cfg.HeatPump.SetupRetryDuration(), log)
	if err != nil {
		return err
	}
	defer func() {
		if unloadErr := entry.Unload(); unloadErr != nil {
			log.Error("error unloading heat pump entry", "error", unloadErr)
		}
	}()
	entry.Start(ctx)

	coord := entry.Coordinator()
	removeSink := coord.AddListener(snapshotSink(coord, collector, influxClient, address, string(hpCfg.Device.Kind)))
	defer removeSink()

	// Register history (optional)
	var historyRepo *history.SQLiteRepository
	if cfg.History.Enabled {
		historyRepo = history.NewSQLiteRepository(db.DB)
		recorder := history.NewRecorder(historyRepo, coord, history.RecorderOptions{
			Retention: time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
			Logger:    log.Component("history"),
		})
		recorder.Start(ctx)
		defer recorder.Stop()
		log.Info("register history enabled", "retention_days", cfg.History.RetentionDays)
	}
	commandLog := history.NewCommandLog(db.DB)

	// Start the MQTT bridge
	bridge, err := startBridge(ctx, cfg, entry, mqttClient, commandLog, address, log)
	if err != nil {
		return fmt.Errorf("starting heat pump bridge: %w", err)
	}
	defer func() {
		log.Info("stopping heat pump bridge")
		bridge.Stop()
	}()

	// Start the API server (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Entry:    entry,
			DB:       db,
			Commands: commandLog,
			MQTT:     mqttClient,
			Bridge:   bridge,
			Version:  version,
		}
		if historyRepo != nil {
			deps.History = historyRepo
		}
		if collector != nil {
			deps.Prometheus = collector.Handler()
			deps.MetricsPath = cfg.Metrics.Path
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("heat pump bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// setupEntry calls integration.Setup until it succeeds, ctx is cancelled, or
// it fails for a reason other than the device being unreachable.
//
// Parameters:
//   - ctx: Cancels the retry loop
//   - cfg: Heat pump connection settings
//   - opts: Setup collaborators
//   - retry: Delay between attempts; values below one second use one second
//   - log: Logger for retry progress
//
// Returns:
//   - *integration.Entry: Ready entry
//   - error: Setup failure or ctx.Err()
func setupEntry(ctx context.Context, cfg integration.Config, opts integration.Options, retry time.Duration, log *logging.Logger) (*integration.Entry, error) {
	if retry < time.Second {
		retry = time.Second
	}
	for attempt := 1; ; attempt++ {
		entry, err := integration.Setup(ctx, cfg, opts)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, integration.ErrNotReady) {
			return nil, fmt.Errorf("setting up heat pump: %w", err)
		}
		log.Warn("heat pump not ready, retrying",
			"address", cfg.Device.Address(),
			"attempt", attempt,
			"retry_in", retry,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("setting up heat pump: %w", ctx.Err())
		case <-time.After(retry):
		}
	}
}

// observers collects the enabled coordinator observers.
func observers(collector *metrics.Collector, influxClient *influxdb.Client, address string) coordinator.Observer {
	var obs coordinator.Observers
	if collector != nil {
		obs = append(obs, collector)
	}
	if influxClient != nil {
		obs = append(obs, influxClient.Observer(address))
	}
	if len(obs) == 0 {
		return nil
	}
	return obs
}

// snapshotSink returns a coordinator listener that copies each successful
// snapshot into the Prometheus gauges and InfluxDB.
func snapshotSink(coord *coordinator.Coordinator, collector *metrics.Collector, influxClient *influxdb.Client, address, kind string) func() {
	return func() {
		if !coord.LastUpdateSuccess() {
			return
		}
		data := coord.Data()
		if collector != nil {
			collector.Update(data, len(coord.Interest()))
		}
		if influxClient != nil {
			influxClient.WriteRegisters(address, kind, data, coord.LastUpdate())
		}
	}
}

// startBridge creates and starts the MQTT bridge. Retained state and
// discovery are re-announced whenever the broker connection is restored.
func startBridge(ctx context.Context, cfg *config.Config, entry *integration.Entry, mqttClient *mqtt.Client, recorder heatpump.CommandRecorder, address string, log *logging.Logger) (*heatpump.Bridge, error) {
	bridgeCfg := heatpump.Config{
		Version:        version,
		Address:        address,
		HealthInterval: time.Duration(cfg.HeatPump.HealthInterval) * time.Second,
	}
	if cfg.HeatPump.Discovery.Enabled {
		bridgeCfg.Discovery = &heatpump.HADiscovery{
			Prefix:      cfg.HeatPump.Discovery.Prefix,
			StatusTopic: mqttClient.StatusTopic(),
		}
	}

	bridge, err := heatpump.NewBridge(heatpump.BridgeOptions{
		Config:     bridgeCfg,
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Entry:      entry,
		Recorder:   recorder,
		Logger:     log.Component("bridge"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, err
	}

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, republishing heat pump state")
		bridge.Republish()
	})

	log.Info("heat pump bridge started",
		"entities", len(entry.Entities()),
		"discovery", bridgeCfg.Discovery != nil,
	)
	return bridge, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
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

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements heatpump.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements heatpump.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements heatpump.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements heatpump.MQTTClient.
// The MQTT client is owned by run's defer chain, so this is a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
