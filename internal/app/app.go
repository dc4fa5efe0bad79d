package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/derefd/internal/announce"
	"github.com/MrSnakeDoc/derefd/internal/config"
	"github.com/MrSnakeDoc/derefd/internal/httpserver"
	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/metrics"
	"github.com/MrSnakeDoc/derefd/internal/namespace"
	"github.com/MrSnakeDoc/derefd/internal/redis"
	"github.com/MrSnakeDoc/derefd/internal/registrar"
	"github.com/MrSnakeDoc/derefd/internal/registry"
	"github.com/MrSnakeDoc/derefd/internal/scheduler"
	"github.com/MrSnakeDoc/derefd/internal/sources/definitions"
	redisstore "github.com/MrSnakeDoc/derefd/internal/store/redis"
	"github.com/MrSnakeDoc/derefd/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	registrars  []*registrar.Registrar
	engineCfgs  []registrar.Config
	reloader    *scheduler.SiteReloader
	mirror      *scheduler.RegistryMirror
	announcer   *announce.Subscriber
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	loggerClient.Debug("configuration loaded", logger.Any("config", cfg.Redacted()))

	engineDefs, err := definitions.LoadEngines(cfg.Defs.EnginesFile)
	if err != nil {
		loggerClient.Errorf("Failed to load engines file: %v", err)
		os.Exit(1)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	// Redis is optional: without it there is no cache, no mirror and no
	// persisted announced sites, but dereferencing still works.
	var redisClient *goredis.Client
	var store *redisstore.Store
	if cfg.Redis.Enabled() {
		redisClient, err = redis.Connect(context.Background(), redis.Options{
			Addr:           cfg.Redis.Addr,
			Username:       cfg.Redis.Username,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			PoolSize:       cfg.Redis.PoolSize,
			DialTimeout:    cfg.Redis.DialTimeout,
			ReadTimeout:    cfg.Redis.ReadTimeout,
			WriteTimeout:   cfg.Redis.WriteTimeout,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
			RetryInterval:  cfg.Redis.RetryInterval,
			MaxWait:        cfg.Redis.MaxWait,
			PingTimeout:    cfg.Redis.PingTimeout,
			WarnThreshold:  cfg.Redis.WarnThreshold,
		}, logger.Named(loggerClient, "redis"))
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		store = redisstore.NewStore(redisClient)
		loggerClient.Info("Redis initialized successfully")
	} else {
		loggerClient.Info("redis address not configured, running without cache and mirror")
	}

	reg := registry.New()
	prefixes := namespace.New()

	registrars := make([]*registrar.Registrar, 0, len(engineDefs))
	engineCfgs := make([]registrar.Config, 0, len(engineDefs))
	for _, def := range engineDefs {
		r := registrar.New(reg, prefixes, loggerClient, m)
		if store != nil && cfg.Defs.CacheTTL > 0 {
			r.SetCache(redisstore.RepresentationCache{Store: store, TTL: cfg.Defs.CacheTTL})
		}
		registrars = append(registrars, r)
		engineCfgs = append(engineCfgs, registrar.Config(def))
	}

	reloadTrigger := make(chan struct{}, 1)
	reloader := scheduler.NewSiteReloader(
		cfg.Defs.SitesFile,
		definitions.NewMapper(redisClient),
		reg,
		store,
		logger.Named(loggerClient, "sites"),
		m,
		cfg.Defs.ReloadInterval,
		reloadTrigger,
	)

	mirror := scheduler.NewRegistryMirror(reg, store, logger.Named(loggerClient, "mirror"), m)

	var announcer *announce.Subscriber
	if cfg.NATS.Enabled() {
		announcer = announce.New(cfg.NATS.URL, cfg.NATS.Subject, reloader, loggerClient)
	} else {
		loggerClient.Info("nats url not configured, site announcements disabled")
	}

	d := deps.Deps{
		Logger:           loggerClient,
		StartTime:        time.Now(),
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		GoVersion:        version.GoVersion,
		TimeNow:          time.Now,
		AllowedHosts:     cfg.HTTP.AllowedHosts,
		AllowedCIDRS:     cfg.HTTP.AllowedCIDRS,
		TrustProxy:       cfg.HTTP.TrustProxy,
		RequestTimeout:   cfg.HTTP.RequestTimeout,
		EnhanceBurst:     cfg.HTTP.EnhanceBurst,
		EnhancePerMinute: cfg.HTTP.EnhancePerMinute,
		SitesFile:        cfg.Defs.SitesFile,
		RedisClient:      redisClient,
		Registry:         reg,
		Registrars:       registrars,
		Sites:            reloader,
		Metrics:          m,
		Gatherer:         promReg,
		ReloadTrigger:    reloadTrigger,
	}
	if announcer != nil {
		d.Announcer = announcer
	}

	server := httpserver.New(cfg.HTTP, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		registrars:  registrars,
		engineCfgs:  engineCfgs,
		reloader:    reloader,
		mirror:      mirror,
		announcer:   announcer,
	}
}

func (a *App) Run() error {
	a.logger.Info("🚀 starting derefd",
		logger.String("build", version.String()),
		logger.String("addr", a.cfg.HTTP.ListenAddr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The mirror subscribes before anything is published so no event is missed.
	if err := a.mirror.Start(ctx); err != nil {
		return fmt.Errorf("failed to start registry mirror: %w", err)
	}

	a.activateEngines()

	if err := a.reloader.Start(ctx); err != nil {
		a.stopBackground()
		return fmt.Errorf("failed to start site reloader: %w", err)
	}
	a.logger.Info("site reloader started",
		logger.Duration("interval", a.cfg.Defs.ReloadInterval))

	if a.announcer != nil {
		if err := a.announcer.Start(ctx); err != nil {
			// announcements are optional, file sites keep working
			a.logger.Warn("failed to start site announcements", logger.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// activateEngines activates one registrar per configured engine. A broken
// engine configuration is logged and skipped.
func (a *App) activateEngines() {
	active := 0
	for i, r := range a.registrars {
		err := r.Activate(a.engineCfgs[i])
		var cfgErr *registrar.ConfigurationError
		switch {
		case err == nil:
			active++
		case errors.As(err, &cfgErr):
			a.logger.Error("invalid engine configuration, engine skipped",
				logger.Int("index", i),
				logger.String("property", cfgErr.Property),
				logger.Error(err))
		default:
			a.logger.Error("failed to activate engine",
				logger.Int("index", i),
				logger.Error(err))
		}
	}
	a.logger.Info("dereference engines activated",
		logger.Int("active", active),
		logger.Int("configured", len(a.registrars)))
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}

	a.stopBackground()

	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", logger.Error(err))
	}

	if len(errs) == 0 {
		a.logger.Info("✅ derefd stopped cleanly")
	}
	return errors.Join(errs...)
}

// stopBackground stops announcements and reloads, withdraws the engines and
// closes Redis last since the mirror writes to it until it stops.
func (a *App) stopBackground() {
	if a.announcer != nil {
		a.announcer.Stop()
	}
	a.reloader.Stop()

	for _, r := range a.registrars {
		r.Deactivate()
	}
	a.mirror.Stop()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}
}
