// mediafleet - TV/radio backend fleet orchestrator
//
// This is the main entry point for the mediafleet core service. It manages
// a dynamic fleet of backend connector clients (modules × instances),
// reconciles the live fleet against the module store, and fans data
// operations out across every callable client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ashgrove-media/mediafleet/migrations"

	"github.com/ashgrove-media/mediafleet/internal/api"
	"github.com/ashgrove-media/mediafleet/internal/client"
	"github.com/ashgrove-media/mediafleet/internal/guide"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/config"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/database"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/logging"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/mqtt"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/telemetry"
	"github.com/ashgrove-media/mediafleet/internal/modulestore"
	"github.com/ashgrove-media/mediafleet/internal/notify"
	"github.com/ashgrove-media/mediafleet/internal/remote"
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
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit // Linear wiring sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting mediafleet",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the module store database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store := modulestore.NewSQLite(db)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	qos := byte(cfg.MQTT.QoS)

	// Connect to InfluxDB (optional)
	var telemetryClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		telemetryClient.SetOnError(func(err error) {
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

	// Notifier publishing to the shared notification topic
	notifier, err := notify.New(notify.Options{Bus: mqttClient, QoS: qos})
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}

	// The registry, guide manager, and connector factory reference each other:
	// the factory's state handler and the guide refresh both call into the
	// registry, which is constructed last. Both are late-bound through these
	// variables; neither path fires before Start().
	var registry *client.Registry
	var guideManager *guide.Manager

	guideManager, err = guide.NewManager(guide.Options{
		Refresh: func(ctx context.Context) error {
			if registry == nil {
				return nil
			}
			return refreshGuideData(ctx, registry, guideManager, log)
		},
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("creating guide manager: %w", err)
	}

	factory := func(moduleID string, instanceID modulestore.InstanceID, clientID int) (client.Client, error) {
		return remote.New(remote.Options{
			ModuleID:       moduleID,
			InstanceID:     instanceID,
			ClientID:       clientID,
			Bus:            mqttClient,
			QoS:            qos,
			RequestTimeout: cfg.Connector.GetRequestTimeout(),
			Logger:         log,
			OnStateChange: func(c client.Client, state client.ConnState, message string) {
				if registry != nil {
					registry.ConnectionStateChange(context.Background(), c, state, message)
				}
			},
		})
	}

	regOpts := client.RegistryOptions{
		Store:         store,
		Factory:       factory,
		Data:          guideManager,
		Notifier:      notifier,
		Logger:        log,
		CreateTimeout: cfg.Connector.GetCreateTimeout(),
	}
	if telemetryClient != nil {
		regOpts.Telemetry = telemetryClient
	}
	registry, err = client.NewRegistry(regOpts)
	if err != nil {
		return fmt.Errorf("creating client registry: %w", err)
	}

	// Initial reconcile + async trigger worker
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("starting client registry: %w", err)
	}
	defer func() {
		log.Info("stopping client registry")
		registry.Stop(context.Background())
	}()
	log.Info("client registry started", "created_clients", registry.CreatedClientCount())

	guideManager.Start(ctx)
	defer func() {
		log.Info("stopping guide manager")
		guideManager.Stop()
	}()

	// Module store events (enable/disable/install/instance changes) trigger
	// scoped reconciliation.
	watcher := modulestore.NewWatcher(mqttClient, qos, registry.OnModuleEvent)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("starting module event watcher: %w", err)
	}
	defer func() {
		log.Info("stopping module event watcher")
		if stopErr := watcher.Stop(); stopErr != nil {
			log.Error("error stopping module event watcher", "error", stopErr)
		}
	}()
	log.Info("module event watcher started")

	// HTTP API + WebSocket feed
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Fleet:    registry,
		MQTT:     mqttClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, telemetryClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Module event watcher
	// 3. Guide manager
	// 4. Client registry (destroys every handle)
	// 5. InfluxDB (if enabled)
	// 6. MQTT
	// 7. Database

	log.Info("mediafleet stopped")
	return nil
}

// refreshGuideData pulls channels, groups, and timers from every callable
// client. Each client's pull runs inside a registered guide session so the
// registry can cancel it mid-flight before destroying or recreating that
// handle. Partial failure is fine; failing clients are retried next cycle.
func refreshGuideData(ctx context.Context, registry *client.Registry, sessions *guide.Manager, log *logging.Logger) error {
	callable, notReady, _, err := registry.CallableClients(ctx)
	if err != nil {
		return fmt.Errorf("computing callable clients: %w", err)
	}
	if len(notReady) > 0 {
		log.Debug("guide refresh skipping not-ready clients", "clients", notReady)
	}

	var channels, groups, timers int
	for clientID, c := range callable {
		sessionCtx, release := sessions.BeginSession(ctx, clientID)

		if items, status := c.Channels(sessionCtx, false); status == client.StatusOK {
			channels += len(items)
		} else if status.IsFailure() {
			log.Warn("channel refresh failed", "client_id", clientID, "status", status.String())
		}
		if items, status := c.ChannelGroups(sessionCtx, false); status == client.StatusOK {
			groups += len(items)
		}
		if c.Capabilities().Timers {
			if items, status := c.Timers(sessionCtx); status == client.StatusOK {
				timers += len(items)
			}
		}

		release()
	}

	log.Debug("guide data refreshed",
		"channels", channels,
		"groups", groups,
		"timers", timers,
	)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MEDIAFLEET_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MEDIAFLEET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, telemetryClient *telemetry.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
