// RoboLink Gateway - TCP gateway for fleets of telemetry robots.
//
// Robots hold a TCP connection open and stream JSON telemetry frames.
// The gateway persists each reading, tracks which robot is reachable on
// which connection, and routes commands back to robots from the HTTP API
// and MQTT.
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
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/robolink-gateway/internal/api"
	"github.com/nerrad567/robolink-gateway/internal/audit"
	"github.com/nerrad567/robolink-gateway/internal/auth"
	"github.com/nerrad567/robolink-gateway/internal/commandbridge"
	"github.com/nerrad567/robolink-gateway/internal/gateway"
	"github.com/nerrad567/robolink-gateway/internal/infrastructure/config"
	"github.com/nerrad567/robolink-gateway/internal/infrastructure/database"
	"github.com/nerrad567/robolink-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/robolink-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/robolink-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/robolink-gateway/internal/infrastructure/postgres"
	"github.com/nerrad567/robolink-gateway/internal/presence"
	"github.com/nerrad567/robolink-gateway/internal/telemetry"
	"github.com/nerrad567/robolink-gateway/migrations"
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

// startupTimeout bounds backend connections and health checks before serving.
const startupTimeout = 30 * time.Second

// options holds parsed command-line flags.
type options struct {
	configPath string
	issueToken string
	scopes     []string
	showVer    bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line.
//
// Parameters:
//   - args: Arguments without the program name
//
// Returns:
//   - options: Parsed flags with defaults applied
//   - error: pflag.ErrHelp for --help, or a parse error
func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("robolink", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	flagSet.StringVar(&opts.issueToken, "issue-token", "", "print an API token for this subject and exit")
	flagSet.StringSliceVar(&opts.scopes, "scopes", auth.AllScopes, "scopes granted by --issue-token")
	flagSet.BoolVar(&opts.showVer, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for --version and --issue-token output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVer {
		fmt.Fprintf(stdout, "robolink %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.issueToken != "" {
		return issueToken(cfg, opts.issueToken, opts.scopes, stdout)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting RoboLink gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()

	checks := make(map[string]api.HealthChecker)

	repo, auditRepo, closeRepo, err := openStores(startCtx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeRepo()

	recorder := telemetry.NewRecorder(repo)
	recorder.SetLogger(log.Component("telemetry"))

	// Optional InfluxDB mirror
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(startCtx, cfg.InfluxDB)
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
		recorder.AddSink("influxdb", telemetry.InfluxSink(influxClient))
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Optional MQTT broker
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
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		if cfg.Telemetry.PublishMQTT {
			recorder.AddSink("mqtt", telemetry.MQTTSink(mqttClient, mqtt.Topics{}.RobotState))
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Presence registry and TCP gateway
	registry := presence.NewRegistry()
	registry.SetLogger(log.Component("presence"))

	sweeper, err := presence.NewSweeper(registry, presence.SweeperConfig{
		Interval: cfg.Gateway.Eviction.Interval,
		Window:   cfg.Gateway.Eviction.Window,
	})
	if err != nil {
		return fmt.Errorf("creating presence sweeper: %w", err)
	}
	sweeper.SetLogger(log.Component("presence"))

	gw := gateway.NewServer(gateway.Config{
		Address: cfg.GatewayAddress(),
		SessionConfig: gateway.SessionConfig{
			ReadBufferSize:    cfg.Gateway.ReadBufferSize,
			OutboundQueueSize: cfg.Gateway.OutboundQueueSize,
			WriteTimeout:      cfg.Gateway.WriteTimeout,
			StoreTimeout:      cfg.Gateway.StoreTimeout,
			StalePolicy:       gateway.StalePolicy(cfg.Gateway.StaleSessionPolicy),
		},
	}, registry, recorder)
	gw.SetLogger(log.Component("gateway"))
	if err := gw.Listen(); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}
	defer func() {
		log.Info("stopping gateway")
		if closeErr := gw.Close(); closeErr != nil {
			log.Error("error closing gateway", "error", closeErr)
		}
	}()
	checks["gateway"] = gw
	log.Info("gateway listening", "address", gw.Addr().String())

	dispatcher := gateway.NewDispatcher(registry)
	dispatcher.SetLogger(log.Component("dispatch"))

	// MQTT command bridge
	var bridgeMetrics api.BridgeMetricsSource
	if mqttClient != nil {
		var sender commandbridge.CommandSender = dispatcher
		if auditRepo != nil {
			audited := audit.NewSender(dispatcher, auditRepo, audit.SourceMQTT)
			audited.SetLogger(log.Component("audit"))
			sender = audited
		}
		bridge, bridgeErr := commandbridge.New(commandbridge.Options{
			Bus:            mqttClient,
			Sender:         sender,
			QoS:            byte(cfg.MQTT.QoS),
			DefaultCommand: cfg.Gateway.DefaultCommand,
			Timeout:        cfg.Gateway.WriteTimeout,
			Logger:         log.Component("commandbridge"),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating command bridge: %w", bridgeErr)
		}
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting command bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping command bridge")
			bridge.Stop()
		}()
		bridgeMetrics = bridge
		log.Info("MQTT command bridge started", "topic", mqtt.Topics{}.AllRobotCommands())
	}

	// HTTP API
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:         cfg.API,
			WS:             cfg.WebSocket,
			Security:       cfg.Security,
			Logger:         log.Component("api"),
			Registry:       registry,
			Commands:       dispatcher,
			Sessions:       gw,
			Telemetry:      repo,
			Audit:          auditRepo,
			HealthChecks:   checks,
			GatewayStats:   gw,
			DispatchStats:  dispatcher,
			TelemetryStats: recorder,
			BridgeMetrics:  bridgeMetrics,
			DefaultCommand: cfg.Gateway.DefaultCommand,
			Version:        version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		recorder.AddSink("websocket", apiServer.Hub())
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(startCtx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return gw.Serve(gctx) })
	if influxClient != nil {
		g.Go(func() error {
			reportStats(gctx, cfg.Site.ID, influxClient, gw, registry, statsInterval(cfg))
			return nil
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("gateway stopped: %w", err)
	}

	log.Info("shutdown signal received, cleaning up",
		"telemetry_persisted", recorder.Stats().Persisted,
		"commands_sent", dispatcher.Stats().Sent,
	)
	log.Info("RoboLink gateway stopped")
	return nil
}

// openStores opens the configured telemetry backend and registers its
// health check. The command audit log needs SQLite and is nil on PostgreSQL.
//
// Returns:
//   - telemetry.Repository: Ready for upserts
//   - audit.Repository: Command audit log, or nil
//   - func(): Releases the backend
//   - error: If the backend cannot be opened or its schema applied
func openStores(ctx context.Context, cfg *config.Config, log *logging.Logger, checks map[string]api.HealthChecker) (telemetry.Repository, audit.Repository, func(), error) {
	switch cfg.Telemetry.Backend {
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		repo := telemetry.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("applying PostgreSQL schema: %w", err)
		}
		checks["postgres"] = pool
		log.Info("PostgreSQL connected",
			"host", cfg.Postgres.Host,
			"database", cfg.Postgres.Database,
		)
		return repo, nil, func() {
			log.Info("closing PostgreSQL pool")
			pool.Close()
		}, nil

	default:
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		checks["database"] = db
		log.Info("database connected", "path", cfg.Database.Path, "history", cfg.Telemetry.History)
		return telemetry.NewSQLiteRepository(db, cfg.Telemetry.History), audit.NewSQLiteRepository(db.DB), func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}, nil
	}
}

// issueToken prints a signed API token for subject.
func issueToken(cfg *config.Config, subject string, scopes []string, stdout io.Writer) error {
	if cfg.Security.JWT.Secret == "" {
		return fmt.Errorf("issuing token: %w", auth.ErrMissingSecret)
	}
	ttl := time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	token, err := auth.GenerateToken(subject, scopes, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Fprintln(stdout, token)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ROBOLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ROBOLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck runs every registered check and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, hc := range checks {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// statsSource is satisfied by *gateway.Server.
type statsSource interface {
	SessionCount() int
}

// statsWriter is satisfied by *influxdb.Client.
type statsWriter interface {
	WriteGatewayStats(site string, sessions, freshAddresses, devices int, at time.Time)
}

// reportStats samples registry sizes into InfluxDB until ctx is cancelled.
func reportStats(ctx context.Context, site string, w statsWriter, sessions statsSource, registry *presence.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := registry.Stats()
			w.WriteGatewayStats(site, sessions.SessionCount(), stats.FreshAddresses, stats.Devices, registry.Now())
		}
	}
}

// statsInterval follows the InfluxDB flush interval, with a 10s floor.
func statsInterval(cfg *config.Config) time.Duration {
	interval := time.Duration(cfg.InfluxDB.FlushInterval) * time.Second
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	return interval
}
