package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/internal/middleware"
	"github.com/metasync/seo-gateway/pkg/cache"
	"github.com/metasync/seo-gateway/pkg/config"
	"github.com/metasync/seo-gateway/pkg/database"
	"github.com/metasync/seo-gateway/pkg/events"
	"github.com/metasync/seo-gateway/pkg/metrics"
	"github.com/metasync/seo-gateway/pkg/mutation"
	"github.com/metasync/seo-gateway/pkg/overrides"
	"github.com/metasync/seo-gateway/pkg/render"
	"github.com/metasync/seo-gateway/pkg/server"
	"github.com/metasync/seo-gateway/pkg/skip"
	"github.com/metasync/seo-gateway/pkg/suggestions"
)

const overrideCacheTTL = 5 * time.Minute

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setLogLevel(logger, cfg.LogLevel)

	// Determine server type from command line
	serverType := "proxy"
	if len(os.Args) > 1 {
		serverType = os.Args[1]
	}
	if serverType != "proxy" && serverType != "admin" && serverType != "all" {
		log.Fatalf("Unknown server type: %s", serverType)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize cache
	store, redisClient, closeStore := newStore(cfg, logger)
	defer closeStore()

	m := metrics.New(metrics.Config{EnableRuntime: cfg.Metrics.EnableRuntime})

	fetcher, err := suggestions.NewHTTPFetcher(suggestions.FetcherConfig{
		URL:     cfg.Upstream.URL,
		SiteID:  cfg.Upstream.SiteID,
		APIKey:  cfg.Upstream.APIKey,
		Timeout: cfg.Upstream.Timeout,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create suggestion client: %v", err)
	}
	manager := suggestions.NewManager(store, fetcher, suggestions.Options{
		PositiveTTL:        cfg.Cache.PositiveTTL,
		NegativeTTL:        cfg.Cache.NegativeTTL,
		StaleTTL:           cfg.Cache.StaleTTL,
		LockTTL:            cfg.Cache.LockTTL,
		LockWait:           cfg.Cache.LockWait,
		RateLimitPerMinute: cfg.Cache.RateLimitPerMinute,
	}, logger, m)

	// Page overrides live in postgres when enabled
	invalidators := []events.Invalidator{manager}
	var (
		provider      overrides.Provider = overrides.None
		overrideStore server.OverrideStore
	)
	if cfg.Database.Enabled {
		db, err := database.NewDB(&database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		repo := database.NewRepository(db.DB, logger, store, overrideCacheTTL)
		provider = repo
		overrideStore = repo
		invalidators = append(invalidators, repo)
	}

	subscriber := events.NewSubscriber(redisClient, logger, invalidators...)
	notify := server.Notifier(subscriber.Apply)
	if redisClient != nil {
		notify = func(ctx context.Context, e events.Event) error {
			return events.Publish(ctx, redisClient, e)
		}
		go func() {
			if err := subscriber.Run(ctx); err != nil {
				logger.WithError(err).Error("Event subscriber stopped")
			}
		}()
	}

	var servers []server.Server
	if serverType == "proxy" || serverType == "all" {
		servers = append(servers, newProxyServer(cfg, logger, m, manager, provider))
	}
	if serverType == "admin" || serverType == "all" {
		servers = append(servers, server.NewAdminServer(cfg, logger, overrideStore, notify))
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv server.Server) {
			errCh <- srv.Run()
		}(srv)
	}

	select {
	case err := <-errCh:
		logger.WithError(err).Fatal("Server stopped")
	case <-ctx.Done():
		logger.Info("Shutting down")
	}
}

func newProxyServer(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics, manager *suggestions.Manager, provider overrides.Provider) *server.ProxyServer {
	exclusions, err := skip.LoadExclusions(cfg.ExclusionsFile, logger)
	if err != nil {
		log.Fatalf("Failed to load exclusions: %v", err)
	}

	loopback, err := render.NewLoopbackClient(render.LoopbackConfig{
		BaseURL: cfg.LoopbackBase(),
		Timeout: cfg.Render.LoopbackTimeout,
	}, logger, m)
	if err != nil {
		log.Fatalf("Failed to create loopback client: %v", err)
	}

	forwarder, err := server.NewOriginForwarder(cfg.Server.OriginURL, cfg.Server.OriginTimeout, logger)
	if err != nil {
		log.Fatalf("Failed to create origin forwarder: %v", err)
	}

	seo := middleware.NewSEOMiddleware(logger, middleware.SEOConfig{
		SiteURL:          cfg.Server.SiteURL,
		NoFollowExternal: cfg.Links.NoFollowExternal,
		NewTabExternal:   cfg.Links.NewTabExternal,
		MultiViewAttr:    cfg.Render.MultiViewAttribute,
	}, middleware.SEOComponents{
		Suggestions: manager,
		Selector: render.NewSelector(render.SelectorConfig{
			ForceHTTP:           cfg.Render.Method == "http",
			MaxBufferDepth:      cfg.Render.MaxBufferDepth,
			MinMemoryHeadroomMB: cfg.Render.MinMemoryHeadroomMB,
			AdminPaths:          cfg.Render.AdminPaths,
			APIPaths:            cfg.Render.APIPaths,
			HTTPOnlyPaths:       cfg.Render.HTTPOnlyPaths,
		}, logger),
		Processor: render.NewProcessor(mutation.NewEngine(logger, m), logger, cfg.Render.MinDocumentBytes),
		Loopback:  loopback,
		Skipper:   skip.Chain{exclusions},
		Overrides: provider,
		Metrics:   m,
	})

	return server.NewProxyServer(cfg, logger, m, seo, forwarder)
}

// newStore picks redis when a host is configured, otherwise an in-process map.
func newStore(cfg *config.Config, logger *logrus.Logger) (cache.Store, *redis.Client, func()) {
	if cfg.Redis.Host == "" {
		logger.Info("No redis host configured, caching in process")
		ttlMap := cache.NewTTLMap(time.Minute)
		return ttlMap, nil, ttlMap.Stop
	}

	store, err := cache.NewRedis(cache.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	return store, store.Client(), func() { _ = store.Close() }
}

func setLogLevel(logger *logrus.Logger, configured string) {
	level := configured
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if level == "" {
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("Unknown log level, keeping info")
		return
	}
	logger.SetLevel(parsed)
}
