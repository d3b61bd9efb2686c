package server

import (
	"github.com/aviroy619/critical-css-service/pkg/cdn"
	"github.com/aviroy619/critical-css-service/pkg/config"
	"github.com/aviroy619/critical-css-service/pkg/extract"
	"github.com/aviroy619/critical-css-service/pkg/health"
	"github.com/aviroy619/critical-css-service/pkg/logger"
	"github.com/aviroy619/critical-css-service/pkg/pool"
	"github.com/aviroy619/critical-css-service/pkg/ratelimit"
	"github.com/aviroy619/critical-css-service/pkg/storage"

	"github.com/aviroy619/critical-css-service/pkg/browser"
)

// Services holds all major application services for dependency injection
type Services struct {
	Config    *config.ServerConfig
	Logger    *logger.Logger
	Store     storage.Store
	Pool      *pool.Pool
	Extractor *extract.Extractor
	Uploader  cdn.Uploader
	Limiter   *ratelimit.Limiter
	Monitor   *health.Monitor
	Refresher *Refresher
}

// NewServices creates and initializes all services
func NewServices(cfg *config.ServerConfig) (*Services, error) {
	log := logger.Get()

	log.Info("initializing services", "config", cfg.String())

	store, err := storage.NewStore(cfg.Database)
	if err != nil {
		log.ErrorWithErr("failed to initialize storage", err)
		return nil, err
	}

	launcher := browser.NewLauncher(cfg.Browser, log)
	workerPool := pool.New(pool.Config{
		MinPoolSize:         cfg.Pool.MinPoolSize,
		MaxPoolSize:         cfg.Pool.MaxPoolSize,
		IdleTimeout:         cfg.Pool.IdleTimeout(),
		CreationTimeout:     cfg.Pool.CreationTimeout(),
		ShutdownGracePeriod: cfg.Pool.ShutdownGracePeriod(),
		SweepInterval:       cfg.Pool.SweepInterval(),
	}, launcher, log)

	monitor := health.NewMonitor()
	monitor.SetComponentStatus("storage", health.StatusHealthy, "connected")
	monitor.SetComponentStatus("browser_pool", health.StatusHealthy, "initialized")

	extractor := extract.New(cfg.Browser, log)
	uploader := cdn.NewUploader(cfg.CDN, log)

	log.Info("services initialized successfully")

	return &Services{
		Config:    cfg,
		Logger:    log,
		Store:     store,
		Pool:      workerPool,
		Extractor: extractor,
		Uploader:  uploader,
		Limiter:   ratelimit.New(cfg.RateLimit, log),
		Monitor:   monitor,
		Refresher: NewRefresher(cfg.Refresh, store, workerPool, extractor, uploader, log),
	}, nil
}
