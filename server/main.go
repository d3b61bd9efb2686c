package server

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aviroy619/critical-css-service/pkg/config"
	"github.com/aviroy619/critical-css-service/pkg/logger"
)

const version = "1.0.0"

// Main parses flags, wires services, and runs the server until a
// termination signal arrives.
func Main() {
	if len(os.Args) > 1 && (os.Args[len(os.Args)-1] == "-h" || os.Args[len(os.Args)-1] == "--help") {
		fs := flag.NewFlagSet("critical-css-server", flag.ContinueOnError)
		fs.String("addr", ":8080", "Server address")
		fs.String("config", "", "Config file path (optional)")
		fs.String("log-level", "info", "Log level: debug, info, warn, error")
		fs.String("log-format", "text", "Log format: text or json")
		printHelp(fs)
		return
	}

	addr := flag.String("addr", ":8080", "Server address")
	configPath := flag.String("config", "", "Config file path (optional)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	logger.Init(logger.Level(*logLevel), *logFormat)
	log := logger.Get()

	log.Info("critical css service starting", "version", version)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.ErrorWithErr("failed to load configuration", err)
		os.Exit(1)
	}

	// Command-line flags override file and environment settings.
	if *addr != ":8080" {
		cfg.Address = *addr
	}
	if *logLevel != "info" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "text" {
		cfg.Logging.Format = *logFormat
	}

	log.Info("configuration loaded",
		"address", cfg.Address,
		"db_type", cfg.Database.Type,
		"pool_min", cfg.Pool.MinPoolSize,
		"pool_max", cfg.Pool.MaxPoolSize)

	services, err := NewServices(cfg)
	if err != nil {
		log.ErrorWithErr("failed to initialize services", err)
		os.Exit(1)
	}

	srv := NewServer(services)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	errorChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errorChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.ErrorWithErr("error during shutdown", err)
		}
		log.Info("server stopped")

	case err := <-errorChan:
		log.ErrorWithErr("server encountered fatal error", err)
		os.Exit(1)
	}
}

func printHelp(fs *flag.FlagSet) {
	fmt.Print(`Critical CSS Service - Usage:

Flags:
`)
	fs.PrintDefaults()
	fmt.Print(`
Environment overrides:
  SERVER_ADDR, API_KEY, DB_PATH, DB_TYPE, LOG_LEVEL, LOG_FORMAT,
  BROWSER_EXEC_PATH, MAX_POOL_SIZE, MIN_POOL_SIZE,
  SHUTDOWN_GRACE_PERIOD_MS, CDN_BASE_URL, CDN_API_KEY, REDIS_ADDR

Examples:
  ./bin/critical-css-server                          # Start on default port 8080
  ./bin/critical-css-server -addr 127.0.0.1:8081     # Start on custom port
  ./bin/critical-css-server -config config.yaml      # Start with a config file
`)
}
