// wallboxd supervises a single EV wallbox on the local network.
//
// It serializes all device access through a prioritized command
// executor, keeps a merged status snapshot fresh with a poll loop,
// records completed charging sessions in SQLite, and exposes the
// charger over a local HTTP/WebSocket API, MQTT, and InfluxDB
// telemetry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nordvolt/wallbox-core/migrations"

	"github.com/nordvolt/wallbox-core/internal/api"
	"github.com/nordvolt/wallbox-core/internal/executor"
	"github.com/nordvolt/wallbox-core/internal/history"
	"github.com/nordvolt/wallbox-core/internal/infrastructure/config"
	"github.com/nordvolt/wallbox-core/internal/infrastructure/database"
	"github.com/nordvolt/wallbox-core/internal/infrastructure/influxdb"
	"github.com/nordvolt/wallbox-core/internal/infrastructure/logging"
	"github.com/nordvolt/wallbox-core/internal/infrastructure/mqtt"
	"github.com/nordvolt/wallbox-core/internal/supervisor"
	"github.com/nordvolt/wallbox-core/internal/wallbox"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting wallboxd",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	historyStore := history.NewStore(db)

	// Device client and command executor. Every device call from here
	// on goes through the executor's priority queue.
	device, err := wallbox.New(cfg.Device)
	if err != nil {
		return fmt.Errorf("creating device client: %w", err)
	}

	exec := executor.New(device, log)
	defer func() {
		log.Info("shutting down executor")
		exec.Shutdown()
	}()

	sup := supervisor.New(exec, supervisor.NewStore(cfg.Storage.Path), historyStore, supervisor.Config{
		MaxLoad:             cfg.Device.MaxLoad,
		MinCurrent:          config.MinChargingCurrent(),
		PollInterval:        cfg.PollInterval(),
		FirstRefreshTimeout: cfg.FirstRefreshTimeout(),
	}, log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
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
	} else {
		log.Info("MQTT disabled")
	}

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// API server (created before Start so the supervisor can broadcast
	// to its WebSocket hub from the first refresh onwards).
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Charger:  sup,
		History:  historyStore,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	hub := server.Hub()

	// Fan status updates out to every consumer after each refresh.
	sup.OnUpdate(func(data map[string]any, lastUpdateSuccess bool) {
		hub.BroadcastStatus(data, lastUpdateSuccess)

		if mqttClient != nil {
			if pubErr := mqttClient.PublishStatus(data, lastUpdateSuccess); pubErr != nil {
				log.Warn("MQTT status publish failed", "error", pubErr)
			}
		}

		if influxClient != nil && lastUpdateSuccess {
			writeTelemetry(influxClient, data)
		}
	})

	// Bring the charger under supervision: persisted state, identity
	// fetch, mandatory first refresh, then the poll loop.
	if startErr := sup.Start(ctx); startErr != nil {
		return fmt.Errorf("starting supervisor: %w", startErr)
	}
	log.Info("supervisor started", "poll_interval", cfg.PollInterval())

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, sup, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Executor (drains the in-flight device call)
	// 5. Database

	log.Info("wallboxd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WALLBOX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WALLBOX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// writeTelemetry records the charge rate and session energy from a
// fresh snapshot. Only written while a session is active; idle-state
// zeros would drown the signal.
func writeTelemetry(client *influxdb.Client, data map[string]any) {
	serial, _ := data[supervisor.KeySerialNumber].(string)      //nolint:errcheck // absent serial tags the point with ""
	charging, _ := data[supervisor.KeyChargerIsCharging].(bool) //nolint:errcheck // absent flag reads false
	if !charging {
		return
	}

	if rate, ok := data[supervisor.KeyChargerCurrentRate].(float64); ok {
		client.WriteChargeRate(serial, rate)
	}
	if energy, ok := data[supervisor.KeyChargerCurrentEnergy].(float64); ok {
		client.WriteSessionEnergy(serial, energy)
	}
}

// healthCheck verifies all component connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - sup: Supervisor to check (first refresh must have succeeded)
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, sup *supervisor.Supervisor, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := sup.HealthCheck(ctx); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
