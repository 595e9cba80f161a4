package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/otel/attribute"

	"seedwarden/internal/app"
	"seedwarden/internal/domain"
	"seedwarden/internal/metrics"
	mongorepo "seedwarden/internal/repository/mongo"
	"seedwarden/internal/services/diskusage"
	"seedwarden/internal/services/fsmove"
	"seedwarden/internal/services/transmission"
	"seedwarden/internal/services/tvshow"
	"seedwarden/internal/telemetry"
	"seedwarden/internal/usecase"
)

const (
	exitOK      = 0
	exitStartup = 1
	exitFatal   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) (code int) {
	fs := flag.NewFlagSet("seedwarden", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", app.DefaultConfigPath, "config file (.toml, .yaml); empty to use the environment only")
	cron := fs.Bool("cron", false, "quiet mode for scheduled runs: warnings only, exit 0 when another run holds the lock")
	debugMode := fs.Bool("debug", false, "debug logging")
	startAll := fs.Bool("start-all", false, "start every stopped unfinished torrent")
	stopAll := fs.Bool("stop-all", false, "stop every running unfinished torrent")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitStartup
	}
	if *startAll && *stopAll {
		fmt.Fprintln(stderr, "seedwarden: -start-all and -stop-all are mutually exclusive")
		return exitStartup
	}

	cfg, err := app.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "seedwarden: %v\n", err)
		return exitStartup
	}

	logger := newLogger(effectiveLevel(cfg.LogLevel, *debugMode, *cron), cfg.LogFormat)
	slog.SetDefault(logger)
	for _, key := range cfg.UnknownKeys {
		logger.Warn("unknown config key", slog.String("key", key), slog.String("file", *configPath))
	}

	if mask, ok, _ := cfg.UmaskValue(); ok {
		prev := app.SetUmask(mask)
		logger.Debug("umask set", slog.String("umask", fmt.Sprintf("%03o", mask)), slog.String("previous", fmt.Sprintf("%03o", prev)))
	}

	lock, err := app.AcquireLock(cfg.LockFile)
	if err != nil {
		if errors.Is(err, app.ErrLocked) {
			if *cron {
				logger.Debug("another run holds the lock", slog.String("lockFile", cfg.LockFile))
				return exitOK
			}
			fmt.Fprintf(stderr, "seedwarden: %v\n", err)
			return exitStartup
		}
		logger.Error("lock failed", slog.String("error", err.Error()))
		return exitStartup
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("lock release failed", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cycle panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			code = exitFatal
		}
	}()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(rootCtx, "seedwarden")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	}()

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	connectCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		return exitStartup
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		return exitStartup
	}

	registry := mongorepo.NewRegistryRepository(mongoClient, cfg.MongoDatabase, cfg.MongoCollection)
	if err := registry.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}

	usage, err := diskusage.New(cfg.DiskUsageSource)
	if err != nil {
		logger.Error("disk usage source", slog.String("error", err.Error()))
		return exitStartup
	}

	gateway := transmission.NewClient(transmission.Config{
		URL:       cfg.RPCURL,
		Username:  cfg.RPCUsername,
		Password:  cfg.RPCPassword,
		Timeout:   cfg.RPCTimeoutDuration(),
		RateLimit: cfg.RPCRateLimit,
	})

	reconcile := usecase.Reconcile{
		Gateway:  gateway,
		Registry: registry,
		Mover:    fsmove.New(logger),
		Evict: usecase.EvictTorrents{
			Gateway:        gateway,
			Usage:          usage,
			Logger:         logger,
			DownloadDir:    cfg.DownloadDir,
			MinFreePercent: cfg.FreeSpaceThreshold,
		},
		Logger:              logger,
		CopyTo:              cfg.CopyTo,
		MoveCopiedTo:        cfg.MoveCopiedTo,
		MaxSeedTime:         cfg.MaxSeedDuration(),
		MaxAnnounceInterval: cfg.AnnounceInterval(),
		StartAll:            *startAll,
		StopAll:             *stopAll,
	}
	if shows := tvshow.New(cfg.TVShowsDir, cfg.TVShows); shows != nil {
		reconcile.Shows = shows
	}

	logger.Debug("configuration loaded",
		slog.String("downloadDir", cfg.DownloadDir),
		slog.String("copyTo", cfg.CopyTo),
		slog.String("moveCopiedTo", cfg.MoveCopiedTo),
		slog.Int("freeSpaceThreshold", cfg.FreeSpaceThreshold),
		slog.Int64("maxSeedTime", cfg.MaxSeedTime),
		slog.Int64("maxAnnounceInterval", cfg.MaxAnnounceInterval),
		slog.String("rpcURL", cfg.RPCURL),
		slog.String("diskUsageSource", cfg.DiskUsageSource),
	)

	cycleCtx, span := telemetry.StartCycle(rootCtx,
		attribute.Bool("seedwarden.start_all", *startAll),
		attribute.Bool("seedwarden.stop_all", *stopAll),
	)
	started := time.Now()
	report, runErr := reconcile.Run(cycleCtx)
	finished := time.Now()
	telemetry.EndCycle(span, report, runErr)

	logReport(logger, report, finished.Sub(started))
	metrics.ObserveCycle(report, finished.Sub(started), finished, runErr)
	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile, reg); err != nil {
			logger.Warn("metrics textfile write failed", slog.String("path", cfg.MetricsTextfile), slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		logger.Error("cycle aborted", slog.String("error", runErr.Error()))
		if errors.Is(runErr, domain.ErrNameCollision) {
			fmt.Fprintf(stderr, "seedwarden: %v; resolve the archive directory by hand\n", runErr)
		}
		return exitFatal
	}
	return exitOK
}

func logReport(logger *slog.Logger, r domain.CycleReport, took time.Duration) {
	level := slog.LevelInfo
	if r.GatewayErrors > 0 || r.RegistryErrors > 0 || r.CopyFailures > 0 {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "cycle finished",
		slog.Int("observed", r.Observed),
		slog.Int("finished", r.Finished),
		slog.Int("copied", r.Copied),
		slog.Int("copyFailures", r.CopyFailures),
		slog.Int("retired", r.Retired),
		slog.Int("evicted", r.Evicted),
		slog.Int("started", r.Started),
		slog.Int("stopped", r.Stopped),
		slog.Int("reannounced", r.Reannounced),
		slog.Int64("pruned", r.Pruned),
		slog.Int("relocated", r.Relocated),
		slog.Int("gatewayErrors", r.GatewayErrors),
		slog.Int("registryErrors", r.RegistryErrors),
		slog.Int("freePercent", r.FreePercent),
		slog.Duration("took", took),
	)
}

// effectiveLevel applies the -debug and -cron flags on top of the configured
// level. -debug wins; -cron raises the floor to warn.
func effectiveLevel(configured string, debugMode, cron bool) string {
	if debugMode {
		return "debug"
	}
	if cron && parseLogLevel(configured) < slog.LevelWarn {
		return "warn"
	}
	return configured
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
