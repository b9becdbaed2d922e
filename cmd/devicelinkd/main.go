// devicelinkd is the coordinating server for devicelink devices.
//
// It owns the device registry, accepts device connections, acknowledges
// every request with a digest echo and lets an operator query devices
// from a console menu.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/devicelink/migrations"

	"github.com/nerrad567/devicelink/internal/api"
	"github.com/nerrad567/devicelink/internal/audit"
	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/infrastructure/config"
	"github.com/nerrad567/devicelink/internal/infrastructure/database"
	"github.com/nerrad567/devicelink/internal/infrastructure/influxdb"
	"github.com/nerrad567/devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/devicelink/internal/infrastructure/mqtt"
	"github.com/nerrad567/devicelink/internal/metrics"
	"github.com/nerrad567/devicelink/internal/relay"
	"github.com/nerrad567/devicelink/internal/server"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/devicelinkd.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - in: Operator console input
//   - out: Operator console output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("devicelinkd", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", getConfigPath(), "path to the configuration file")
	port := fs.Int("port", 0, "listen port (overrides server.port)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting devicelinkd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(*configPath, *port)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", *configPath)

	log = logging.New(cfg.Logging, version)

	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	stats := registry.Stats()
	log.Info("device registry loaded", "devices", stats.Total, "active", stats.Active)

	auditRepo := audit.NewSQLiteRepository(db.DB)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.SetDevices(stats.Total, stats.Active)
	}

	// Optional sinks stay untyped nil when disabled so the relay skips them.
	var (
		publisher relay.Publisher
		writer    relay.Writer
	)

	var mqttClient *mqtt.Client
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
		publisher = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

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
			log.Error("InfluxDB write error", "error", err)
		})
		writer = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	rel := relay.New(publisher, writer)
	rel.SetLogger(log)

	srv, err := server.New(server.Deps{
		Registry:          registry,
		Logger:            log,
		Audit:             auditRepo,
		Relay:             rel,
		Metrics:           m,
		ReadBuffer:        cfg.Server.ReadBuffer,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxConnections:    cfg.Server.MaxConnections,
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.API.Enabled {
		hub := api.NewHub(cfg.WebSocket, log)
		rel.SetBroadcaster(hub)
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})

		apiServer, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			MetricsPath: cfg.Metrics.Path,
			Logger:      log,
			Registry:    registry,
			Querier:     srv,
			Audit:       auditRepo,
			Metrics:     m,
			Hub:         hub,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if m != nil {
			log.Info("metrics endpoint enabled", "path", cfg.Metrics.Path)
		}
	} else {
		log.Info("API disabled")
	}

	if mqttClient != nil {
		if err := subscribeQueryCommands(gctx, mqttClient, srv, log); err != nil {
			return err
		}
	}

	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.ListenAddress())
	})

	console := newConsole(srv, auditRepo, out)
	g.Go(func() error {
		return console.run(gctx, readLines(in))
	})

	log.Info("devicelinkd ready", "address", cfg.ListenAddress())

	err = g.Wait()
	log.Info("devicelinkd stopped")
	if errors.Is(err, errOperatorClose) {
		return nil
	}
	return err
}

// getConfigPath returns the configuration file path.
// Uses DEVICELINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DEVICELINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the configuration file and applies the -port override.
func loadConfig(path string, port int) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
	}
	return cfg, nil
}

// subscribeQueryCommands forwards QUERY requests published on the
// command topics to the addressed device.
func subscribeQueryCommands(ctx context.Context, client *mqtt.Client, srv *server.Server, log *logging.Logger) error {
	topics := client.Topics()
	err := client.Subscribe(topics.AllQueryCommands(), 1, func(topic string, _ []byte) error {
		name, ok := topics.DeviceFromQueryCommand(topic)
		if !ok {
			return fmt.Errorf("unexpected query topic %q", topic)
		}
		if err := srv.Query(ctx, name); err != nil {
			return fmt.Errorf("querying %s: %w", name, err)
		}
		log.Info("query forwarded", "device", name, "topic", topic)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to query commands: %w", err)
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
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
