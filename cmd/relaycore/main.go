// Relay Core - smart device relay server.
//
// This is the main entry point for the relay core. The server terminates
// device traffic from the relay broker, keeps the device registry and
// account-scoped automations consistent, and serves clients over HTTP
// and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/open-automation/relay-core/migrations"

	"github.com/open-automation/relay-core/internal/account"
	"github.com/open-automation/relay-core/internal/api"
	"github.com/open-automation/relay-core/internal/automation"
	"github.com/open-automation/relay-core/internal/device"
	"github.com/open-automation/relay-core/internal/driver"
	"github.com/open-automation/relay-core/internal/infrastructure/config"
	"github.com/open-automation/relay-core/internal/infrastructure/database"
	"github.com/open-automation/relay-core/internal/infrastructure/logging"
	"github.com/open-automation/relay-core/internal/infrastructure/relay"
	"github.com/open-automation/relay-core/internal/infrastructure/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
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

// run is the actual application logic, separated from main so errors map
// to exit codes in one place.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting relay core",
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

	// Reinitialise logger with config settings.
	log = logging.New(cfg.Logging, version)

	// Open database and run migrations.
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

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Connect to the relay broker. Devices reach the server through it.
	relayClient, err := relay.Connect(cfg.Relay)
	if err != nil {
		return fmt.Errorf("connecting to relay broker: %w", err)
	}
	defer func() {
		log.Info("disconnecting from relay broker")
		if closeErr := relayClient.Close(); closeErr != nil {
			log.Error("error closing relay connection", "error", closeErr)
		}
	}()
	relayClient.SetLogger(log)
	relayClient.SetOnConnect(func() {
		log.Info("relay broker reconnected")
	})
	relayClient.SetOnDisconnect(func(err error) {
		log.Warn("relay broker disconnected", "error", err)
	})
	log.Info("relay broker connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Relay.Broker.Host, cfg.Relay.Broker.Port),
		"client_id", cfg.Relay.Broker.ClientID,
	)

	// Connect to InfluxDB (optional).
	var telemetryClient *telemetry.Client
	if cfg.Telemetry.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			telemetryClient.Close()
		}()
		telemetryClient.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		log.Info("telemetry connected", "url", cfg.Telemetry.URL, "bucket", cfg.Telemetry.Bucket)
	} else {
		log.Info("telemetry disabled")
	}

	// Accounts.
	accounts := account.NewManager(account.NewRepository(db), log.Logger)
	if err := accounts.Load(ctx); err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	log.Info("accounts loaded", "count", accounts.Count())

	// Automations: the hub is their notification sink, so it exists
	// before the API server that will serve it.
	hub := api.NewHub(cfg.WebSocket, log.Logger)
	engine := automation.NewEngine(log.Logger)
	automations := automation.NewManager(automation.NewRepository(db), engine, hub, log.Logger)
	if err := automations.Load(ctx); err != nil {
		return fmt.Errorf("loading automations: %w", err)
	}
	log.Info("automations loaded", "count", engine.Count())

	// Devices.
	deviceRepo := device.NewRepository(db)
	drivers := driver.NewRegistry()
	factory := deviceFactory(cfg, relayClient, drivers, deviceRepo, telemetryClient, hub, log)
	registry := device.NewRegistry(deviceRepo, factory, log.Logger)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	defer func() {
		log.Info("shutting down devices")
		registry.Shutdown()
	}()
	log.Info("devices loaded", "count", registry.Count())

	// API server.
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.Logger,
		Registry:    registry,
		Accounts:    accounts,
		Automations: automations,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing api server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, relayClient, telemetryClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("relay core stopped")
	return nil
}

// deviceFactory builds the constructor the registry uses for stored and
// newly submitted devices. Each device gets a family driver bound to its
// relay traffic and pushes debounced updates into the hub.
func deviceFactory(
	cfg *config.Config,
	relayClient *relay.Client,
	drivers *driver.Registry,
	repo *device.Repository,
	telemetryClient *telemetry.Client,
	hub *api.Hub,
	log *logging.Logger,
) device.Factory {
	return func(record device.Record) (*device.Device, error) {
		descriptors, err := record.Descriptors()
		if err != nil {
			return nil, err
		}

		family, genericType := driverFamily(record.Type)
		drv, err := drivers.Create(family, relayClient, driver.Options{
			DeviceID:       record.ID,
			GenericType:    genericType,
			QoS:            byte(cfg.Relay.QoS),
			CommandTimeout: time.Duration(cfg.Relay.CommandTimeout) * time.Second,
			Logger:         log.Logger,
		})
		if err != nil {
			return nil, err
		}

		opts := device.Options{
			ID:                  record.ID,
			Token:               record.Token,
			Type:                record.Type,
			AccountID:           record.AccountID,
			RoomID:              record.RoomID,
			GatewayID:           record.GatewayID,
			Saveable:            record.Token != "",
			Info:                record.Info,
			DriverData:          record.DriverData,
			Settings:            record.Settings,
			SettingsDefinitions: record.SettingsDefinitions,
			Services:            descriptors,
			UpdateDebounce:      time.Duration(cfg.Devices.UpdateDebounce) * time.Millisecond,
		}
		deps := device.Deps{
			Driver:    drv,
			Saver:     repo,
			Logger:    log.Logger,
			OnUpdated: hub.NotifyDeviceUpdated,
		}
		if telemetryClient != nil {
			deps.Telemetry = telemetryClient
		}

		return device.New(opts, deps)
	}
}

// driverFamily maps a device type to its driver family. Generic
// capability types share one family parameterised by sub-adapter.
func driverFamily(deviceType string) (family, genericType string) {
	switch deviceType {
	case "button", "sensor", "switch":
		return "generic", deviceType
	default:
		return deviceType, ""
	}
}

// getConfigPath returns the configuration file path, honouring the
// RELAY_CORE_CONFIG environment variable.
func getConfigPath() string {
	if path := os.Getenv("RELAY_CORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure connections after startup.
func healthCheck(ctx context.Context, db *database.DB, relayClient *relay.Client, telemetryClient *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := relayClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}
