// MQTT Desk - headless core of a desktop MQTT client.
//
// mqttdesk manages a single broker session (credentials, last will,
// subscriptions, message log) and exposes it to a user interface over a
// local HTTP API and WebSocket event stream.
//
// Usage:
//
//	mqttdesk [-config path] [-print-token]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/mqttdesk/internal/api"
	"github.com/nerrad567/mqttdesk/internal/audit"
	"github.com/nerrad567/mqttdesk/internal/events"
	"github.com/nerrad567/mqttdesk/internal/infrastructure/config"
	"github.com/nerrad567/mqttdesk/internal/infrastructure/database"
	"github.com/nerrad567/mqttdesk/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqttdesk/internal/infrastructure/logging"
	"github.com/nerrad567/mqttdesk/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttdesk/internal/profile"
	"github.com/nerrad567/mqttdesk/internal/session"
	"github.com/nerrad567/mqttdesk/internal/telemetry"
	"github.com/nerrad567/mqttdesk/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when neither -config nor MQTTDESK_CONFIG is set.
	defaultConfigPath = "configs/mqttdesk.yaml"

	// tokenSubject is the subject of tokens printed by -print-token.
	tokenSubject = "desktop"
)

// options are the command-line flags.
type options struct {
	configPath string
	printToken bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	if opts.printToken {
		if err := printToken(opts.configPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line. The config path falls back to the
// MQTTDESK_CONFIG environment variable, then to the default.
func parseFlags(args []string, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("mqttdesk", flag.ContinueOnError)
	fs.SetOutput(output)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to the YAML configuration file")
	fs.BoolVar(&opts.printToken, "print-token", false, "print an API bearer token and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses MQTTDESK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MQTTDESK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// printToken writes a bearer token signed with api.auth.secret.
func printToken(configPath string, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.Secret == "" {
		return errors.New("api.auth.secret is not set; the API is open and needs no token")
	}

	ttl := time.Duration(cfg.API.Auth.TokenTTL) * time.Minute
	token, err := api.IssueToken(cfg.API.Auth.Secret, tokenSubject, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // Startup wiring reads top to bottom
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting MQTT Desk",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	profiles := profile.NewSQLiteRepository(db.DB)

	// Event bridge: every observer of the session subscribes here
	bridge := events.NewBridge()
	defer bridge.Close()

	// Protocol engine
	transport := mqtt.NewTransport(mqtt.OptionsFromConfig(cfg.Broker))
	transport.SetLogger(log.Component("mqtt"))
	log.Info("MQTT transport ready",
		"client_id", transport.ClientID(),
		"auto_reconnect", cfg.Broker.AutoReconnect,
	)

	// Session manager
	manager := session.New(session.Config{
		KeepAlive:         cfg.KeepAliveDuration(),
		ConnectTimeout:    cfg.Session.ConnectTimeout,
		DisconnectTimeout: cfg.Session.DisconnectTimeout,
		MessageLogLimit:   cfg.Session.MessageLogLimit,
		EventBuffer:       cfg.Session.EventBuffer,
	}, transport, bridge)
	manager.SetLogger(log.Component("session"))
	manager.Start(ctx)
	defer func() {
		log.Info("closing session")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing session", "error", closeErr)
		}
	}()

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		recorder := telemetry.NewRecorder(bridge, influxClient, manager.Broker)
		recorder.SetLogger(log.Component("telemetry"))
		recorder.Start(ctx)
		defer func() {
			recorder.Stop()
			log.Info("telemetry recorder stopped", "points", recorder.Recorded())
		}()
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connection history (optional)
	var auditRepo *audit.SQLiteRepository
	if cfg.Audit.Enabled {
		auditRepo = audit.NewSQLiteRepository(db.DB)
		journal := audit.NewJournal(bridge, auditRepo, manager.Broker, cfg.Audit.MaxEntries)
		journal.SetLogger(log.Component("audit"))
		journal.Start(ctx)
		defer func() {
			journal.Stop()
			log.Info("audit journal stopped", "entries", journal.Written())
		}()
		log.Info("audit journal started", "max_entries", cfg.Audit.MaxEntries)
	} else {
		log.Info("audit journal disabled")
	}

	// HTTP API
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Session:  manager,
		Events:   bridge,
		Profiles: profiles,
		DB:       db,
		ClientID: transport.ClientID(),
		Version:  version,
	}
	if influxClient != nil {
		apiDeps.Influx = influxClient
	}
	if auditRepo != nil {
		apiDeps.Audit = auditRepo
	}
	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cfg.Broker.ConnectOnStart {
		connectOnStart(manager, cfg.Broker, log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, audit, telemetry, InfluxDB, session, bridge, database.

	log.Info("MQTT Desk stopped")
	return nil
}

// connectOnStart opens the configured broker session. A failure is logged
// rather than returned: the session can be retried from the API.
func connectOnStart(manager *session.Manager, broker config.BrokerConfig, log *logging.Logger) {
	err := manager.Connect(session.ConnectParams{
		Host:     broker.Host,
		Port:     strconv.Itoa(broker.Port),
		Username: broker.Username,
		Password: broker.Password,
	})
	if err != nil {
		log.Warn("connect on start failed", "host", broker.Host, "port", broker.Port, "error", err)
		return
	}
	log.Info("connect on start requested", "host", broker.Host, "port", broker.Port)
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// The broker session is not checked: it is user-driven and may be idle.
	return nil
}
