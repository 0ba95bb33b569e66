// LuckPerms REST gateway
//
// This is the main entry point for the gateway. It serves the permission
// engine over HTTP:
//   - Users, groups and tracks with their nodes, meta and permission checks
//   - The action log
//   - Cross-instance messaging over MQTT, Redis or Kafka
//   - Server-sent event streams of engine events
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/LuckPerms/rest-api/internal/api"
	"github.com/LuckPerms/rest-api/internal/cache"
	"github.com/LuckPerms/rest-api/internal/engine"
	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
	"github.com/LuckPerms/rest-api/internal/infrastructure/database"
	"github.com/LuckPerms/rest-api/internal/infrastructure/influxdb"
	"github.com/LuckPerms/rest-api/internal/infrastructure/logging"
	"github.com/LuckPerms/rest-api/internal/infrastructure/metrics"
	"github.com/LuckPerms/rest-api/internal/messaging"
	"github.com/LuckPerms/rest-api/internal/wire"
	"github.com/LuckPerms/rest-api/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// configEnv names the config file when --config is not given.
const configEnv = config.EnvPrefix + "CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command-line flags.
type options struct {
	configPath  string
	props       map[string]string
	showVersion bool
}

// parseFlags reads the command line. Each -D key=value sets one
// configuration property; later definitions win.
func parseFlags(args []string) (options, error) {
	fs := pflag.NewFlagSet("luckperms-rest", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		opts    options
		defines []string
	)
	fs.StringVarP(&opts.configPath, "config", "c", os.Getenv(configEnv), "path to the YAML configuration file")
	fs.StringArrayVarP(&defines, "define", "D", nil, "set a configuration property (key=value), e.g. -D auth=true")
	fs.BoolVar(&opts.showVersion, "version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.props = make(map[string]string, len(defines))
	for _, d := range defines {
		key, value, ok := strings.Cut(d, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return options{}, fmt.Errorf("invalid property %q: want key=value", d)
		}
		opts.props[strings.TrimSpace(key)] = value
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination of --version output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "luckperms-rest %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting LuckPerms REST gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath, opts.props)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", opts.configPath, "properties", len(opts.props))

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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	eng := engine.New(engine.NewSQLiteRepository(db), engine.Options{Logger: log.Component("engine")})
	if startErr := eng.Start(ctx); startErr != nil {
		return fmt.Errorf("starting engine: %w", startErr)
	}
	defer func() {
		log.Info("stopping engine")
		eng.Close()
	}()

	registry := wire.NewDefaultRegistry(eng.Calculator())
	deps := api.Deps{
		Config:   cfg,
		Logger:   log,
		Engine:   eng,
		Registry: registry,
		HealthChecks: map[string]api.HealthChecker{
			"database": db,
		},
	}

	var cacheObserver cache.Observer
	var messagingObserver messaging.Observer
	if cfg.Metrics.Enabled {
		m := metrics.New()
		deps.Observer = m
		deps.MetricsHandler = m.Handler()
		cacheObserver = m
		messagingObserver = m
		log.Info("metrics enabled")
	}
	deps.Cache = cache.New(eng, cache.Config{
		Users:  cfg.Cache.Users,
		Groups: cfg.Cache.Groups,
		Tracks: cfg.Cache.Tracks,
	}, cacheObserver)

	svc, err := startMessaging(ctx, cfg, eng, registry, messagingObserver, log)
	if err != nil {
		return err
	}
	if svc != nil {
		defer svc.Stop()
		eng.SetMessaging(svc)
		deps.HealthChecks["messaging"] = svc
	}

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		deps.Recorder = influxClient
		deps.HealthChecks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "address", cfg.Addr())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, InfluxDB, messaging,
	// engine, database.
	return nil
}

// startMessaging dials the configured transport and starts the messaging
// service. It returns nil when messaging is off.
func startMessaging(ctx context.Context, cfg *config.Config, eng *engine.Engine, registry *wire.Registry, observer messaging.Observer, log *logging.Logger) (*messaging.Service, error) {
	transport, err := messaging.Dial(ctx, cfg.Messaging, log.Component(cfg.Messaging.Backend))
	if err != nil {
		return nil, fmt.Errorf("connecting messaging transport: %w", err)
	}
	if transport == nil {
		log.Info("messaging disabled")
		return nil, nil
	}

	svc := messaging.New(transport, eng, eng.Events(), messaging.Options{
		Logger:   log.Component("messaging"),
		Observer: observer,
		Registry: registry,
	})
	if err := svc.Start(); err != nil {
		//nolint:errcheck // Already failing; the start error is more useful
		transport.Close()
		return nil, err
	}
	return svc, nil
}
