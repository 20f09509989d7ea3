package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"reedy/reader/internal/config"
	"reedy/reader/internal/database"
	"reedy/reader/internal/fetch"
	"reedy/reader/internal/importer"
	"reedy/reader/internal/notify"
	"reedy/reader/internal/push"
	"reedy/reader/internal/schedule"
	"reedy/reader/internal/server"
	"reedy/reader/internal/update"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func main() {
	cfg := config.DefaultConfig()

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importCmd.StringVar(&cfg.FeedsCSVPath, "csv", config.GetEnvString("READER_CSV_PATH", config.DefaultFeedsCSVPath),
		"Path to the subscriptions CSV file (env: READER_CSV_PATH)")
	importCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("READER_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: READER_DB_PATH)")

	var importLogLevelStr string
	importCmd.StringVar(&importLogLevelStr, "log-level", config.GetEnvString("READER_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: READER_LOG_LEVEL)")

	startCmd := flag.NewFlagSet("start", flag.ExitOnError)
	startCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("READER_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: READER_DB_PATH)")

	startCmd.StringVar(&cfg.ServerHost, "host", config.GetEnvString("READER_HOST", config.DefaultServerHost),
		"Host to bind the server to (env: READER_HOST)")

	startCmd.IntVar(&cfg.ServerPort, "port", config.GetEnvInt("READER_PORT", config.DefaultServerPort),
		"Port to listen on (env: READER_PORT)")

	startCmd.IntVar(&cfg.WorkerCount, "workers", config.GetEnvInt("READER_WORKER_COUNT", config.DefaultWorkerCount),
		"Number of worker goroutines for feed updates (env: READER_WORKER_COUNT)")

	startCmd.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr,
		"Redis address for notification pub/sub, empty to disable (env: READER_REDIS_ADDR)")

	var startLogLevelStr string
	startCmd.StringVar(&startLogLevelStr, "log-level", config.GetEnvString("READER_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: READER_LOG_LEVEL)")

	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	serverCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("READER_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: READER_DB_PATH)")

	serverCmd.StringVar(&cfg.ServerHost, "host", config.GetEnvString("READER_HOST", config.DefaultServerHost),
		"Host to bind the server to (env: READER_HOST)")

	serverCmd.IntVar(&cfg.ServerPort, "port", config.GetEnvInt("READER_PORT", config.DefaultServerPort),
		"Port to listen on (env: READER_PORT)")

	var serverLogLevelStr string
	serverCmd.StringVar(&serverLogLevelStr, "log-level", config.GetEnvString("READER_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: READER_LOG_LEVEL)")

	if len(os.Args) < 2 {
		fmt.Println("Usage: reader [command] [options]")
		fmt.Println("Commands: import, start, server")
		fmt.Println("\nFor command-specific options, use: reader [command] -h")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		importCmd.Parse(os.Args[2:])

		if level, err := zerolog.ParseLevel(importLogLevelStr); err == nil {
			cfg.LogLevel = level
		}
		zerolog.SetGlobalLevel(cfg.LogLevel)

		if err := runImport(cfg); err != nil {
			log.Error().Err(err).Msg("Import failed")
			os.Exit(1)
		}

	case "start":
		startCmd.Parse(os.Args[2:])

		if level, err := zerolog.ParseLevel(startLogLevelStr); err == nil {
			cfg.LogLevel = level
		}
		zerolog.SetGlobalLevel(cfg.LogLevel)

		if err := runStart(cfg); err != nil {
			log.Error().Err(err).Msg("Reader failed")
			os.Exit(1)
		}

	case "server":
		serverCmd.Parse(os.Args[2:])

		if level, err := zerolog.ParseLevel(serverLogLevelStr); err == nil {
			cfg.LogLevel = level
		}
		zerolog.SetGlobalLevel(cfg.LogLevel)

		if err := runServer(cfg); err != nil {
			log.Error().Err(err).Msg("Server failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		fmt.Println("Usage: reader [command] [options]")
		fmt.Println("Commands: import, start, server")
		fmt.Println("\nFor command-specific options, use: reader [command] -h")
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		fmt.Println("Available commands: import, start, server")
		fmt.Println("\nFor command-specific options, use: reader [command] -h")
		os.Exit(1)
	}
}

// runImport seeds users, feeds, and subscriptions from a CSV file.
func runImport(cfg *config.Config) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	imp := importer.NewImporter(db)
	return imp.ImportFeeds(context.Background(), cfg.FeedsCSVPath)
}

// runStart runs the full reader: scheduler, worker pool, and the HTTP
// server that serves the API and receives push notifications.
func runStart(cfg *config.Config) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	var notifier *notify.Notifier
	if cfg.RedisAddr != "" {
		pub := notify.NewRedisPublisher(cfg.RedisAddr)
		defer pub.Close()
		notifier = notify.NewNotifier(db, pub, notify.NewTemplateRenderer(), cfg.NotifyPrefix)
		log.Info().Str("redis", cfg.RedisAddr).Msg("Notifications enabled")
	} else {
		log.Info().Msg("Notifications disabled, no redis address configured")
	}

	fetcher := fetch.NewClient(config.HTTPTimeout)
	pusher := push.NewManager(db, cfg.BaseURL)
	updater := update.NewUpdater(db, fetcher, pusher, notifier).
		WithTweetProxy(cfg.TweetProxyKey, cfg.TweetProxySecret)

	pool := schedule.NewWorkerPool(updater, cfg.WorkerCount)
	pool.Start(ctx)

	scheduler := schedule.NewScheduler(ctx, db, pool)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Blocks until the context is cancelled or a signal arrives.
	err = server.RunServer(ctx, db, pool, cfg.ListenAddr(), log.Logger)

	// Stop waits for a running tick, so nothing enqueues once the
	// pool closes its queue below.
	scheduler.Stop()
	cancel()
	pool.Stop()

	return err
}

// runServer starts only the read API, without scheduling or updates.
// Push notifications received in this mode are acknowledged but queued
// nowhere, so it suits read replicas.
func runServer(cfg *config.Config) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return server.RunServer(context.Background(), db, discardDispatcher{}, cfg.ListenAddr(), log.Logger)
}

// discardDispatcher drops jobs; used when no worker pool is running.
type discardDispatcher struct{}

func (discardDispatcher) Enqueue(job update.Job) {
	log.Warn().Int64("feed_id", job.FeedID).Msg("No worker pool running, dropping job")
}
