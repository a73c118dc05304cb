// upcast - UPnP/DLNA media device discovery and control engine
//
// This is the main entry point for the upcast daemon. upcast finds
// media renderers on the local network (SSDP multicast or direct
// network scan), matches them against device profiles, and exposes
// unified playback control over a REST/WebSocket API with optional
// MQTT announcements and InfluxDB telemetry.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/dabrowsk/upcast/migrations"

	"github.com/dabrowsk/upcast/internal/api"
	"github.com/dabrowsk/upcast/internal/cache"
	"github.com/dabrowsk/upcast/internal/control"
	"github.com/dabrowsk/upcast/internal/discovery"
	"github.com/dabrowsk/upcast/internal/infrastructure/config"
	"github.com/dabrowsk/upcast/internal/infrastructure/database"
	"github.com/dabrowsk/upcast/internal/infrastructure/influxdb"
	"github.com/dabrowsk/upcast/internal/infrastructure/logging"
	"github.com/dabrowsk/upcast/internal/infrastructure/mqtt"
	"github.com/dabrowsk/upcast/internal/media"
	"github.com/dabrowsk/upcast/internal/profile"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting upcast",
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device cache on top of the database
	deviceCache := cache.NewSQLiteRepository(db.DB, cfg.GetCacheTTL())
	deviceCache.SetLogger(log)
	log.Info("device cache initialised", "ttl_hours", cfg.Cache.TTLHours)

	// Load device profiles
	store := profile.NewStore()
	store.SetLogger(log)
	if loadErr := store.Load(cfg.Profiles.Paths); loadErr != nil {
		return fmt.Errorf("loading profiles: %w", loadErr)
	}
	log.Info("profiles loaded", "count", store.Count(), "paths", cfg.Profiles.Paths)

	// Control stack: one HTTP client shared by every protocol adapter
	controlClient := &http.Client{Timeout: cfg.GetControlTimeout()}
	var stealth *control.Stealth
	if cfg.Control.Stealth {
		stealth = control.NewStealth(cfg.GetStealthMaxDelay())
		log.Info("stealth mode enabled", "max_delay", cfg.GetStealthMaxDelay())
	}
	registry := control.NewRegistry(controlClient, stealth)

	controller := media.NewController(store, registry)
	controller.SetLogger(log)

	// Discovery engine
	engine := discovery.New(&http.Client{Timeout: cfg.GetDiscoveryTimeout()})
	engine.SetLogger(log)

	// Connect to MQTT broker (optional, for discovery announcements)
	var mqttClient *mqtt.Client
	var announcer *mqtt.Announcer
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
		announcer = mqtt.NewAnnouncer(mqttClient)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional, for scan telemetry)
	var influxClient *influxdb.Client
	var recorder *influxdb.ScanRecorder
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
		recorder = influxdb.NewScanRecorder(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Discovery: cfg.Discovery,
		Profiles:  cfg.Profiles,
		Logger:    log,
		Engine:    engine,
		Cache:     deviceCache,
		Store:     store,
		Media:     controller,
		MQTT:      mqttClient,
		Telemetry: influxClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Fan discovery events out to every consumer. Wired before the
	// listener starts so no request can race the notifier write; the
	// announcer and recorder exist only when enabled.
	notifiers := []discovery.Notifier{server.Hub()}
	if announcer != nil {
		notifiers = append(notifiers, announcer)
	}
	if recorder != nil {
		notifiers = append(notifiers, recorder)
	}
	engine.SetNotifier(discovery.MultiNotifier(notifiers...))

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, server, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stops accepting requests first)
	// 2. InfluxDB (if enabled, flushes pending points)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("upcast stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses UPCAST_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("UPCAST_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - server: API server to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
