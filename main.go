package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/background"
	"github.com/LexiconIndonesia/covercraft-service/common/apiclient"
	"github.com/LexiconIndonesia/covercraft-service/common/config"
	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/db"
	"github.com/LexiconIndonesia/covercraft-service/common/kv"
	"github.com/LexiconIndonesia/covercraft-service/common/logger"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/LexiconIndonesia/covercraft-service/common/redis"
	"github.com/LexiconIndonesia/covercraft-service/common/storage"
	"github.com/LexiconIndonesia/covercraft-service/common/work"
	"github.com/LexiconIndonesia/covercraft-service/content"
	"github.com/LexiconIndonesia/covercraft-service/extraction"
	"github.com/LexiconIndonesia/covercraft-service/handoff"
	"github.com/LexiconIndonesia/covercraft-service/popup"

	"github.com/rs/zerolog/log"

	"github.com/joho/godotenv"

	_ "github.com/LexiconIndonesia/covercraft-service/docs"
)

// @title          CoverCraft Coordinator API
// @version        1.0
// @description    Message routing, handoff cache and tab queries of the CoverCraft background coordinator.

// @host     localhost:8080
// @BasePath /v1
// @schemes  http https

// @securityDefinitions.apikey ApiKeyAuth
// @in                         header
// @name                       X-API-KEY

func main() {
	// INITIATE CONFIGURATION
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()
	if path := os.Getenv("COVERCRAFT_CONFIG"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			log.Fatal().Err(err).Msg("Failed to load config file")
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	reload := make(chan struct{}, 1)

	server, cleanup := setup(ctx, cfg, func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	})

	go func() {
		if err := server.start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	log.Info().Str("address", cfg.Listen.Addr()).Msg("Server started successfully")
	log.Info().Str("swagger", fmt.Sprintf("http://%s/swagger/index.html", cfg.Listen.Addr())).Msg("Swagger documentation available at")

	restart := false
	select {
	case <-shutdown:
		log.Info().Msg("Shutdown signal received")
	case <-reload:
		log.Info().Msg("Reload requested")
		restart = true
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	cancel()
	cleanup()
	log.Info().Msg("Server gracefully stopped")

	if restart {
		exe, err := os.Executable()
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot locate executable for reload")
		}
		if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
			log.Fatal().Err(err).Msg("Reload failed")
		}
	}
}

// setup wires every collaborator of the background process and returns the
// HTTP server plus a cleanup func releasing them in reverse order.
func setup(ctx context.Context, cfg config.Config, onReload func()) (*AppHttpServer, func()) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fatal := func(err error, msg string) {
		cleanup()
		log.Fatal().Err(err).Msg(msg)
	}

	server, err := NewAppHttpServer(cfg)
	if err != nil {
		fatal(err, "Failed to create the server")
	}

	// INITIATE STORES
	var redisClient *redis.RedisClient
	if cfg.Storage.LocalBackend == config.BackendRedis || cfg.Storage.SyncBackend == config.BackendRedis {
		redisClient, err = redis.NewClient(cfg)
		if err != nil {
			fatal(err, "Failed to setup Redis client")
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		server.AddHealthCheck("redis", redisClient)
	}

	stores, err := kv.Open(cfg, redisClient)
	if err != nil {
		fatal(err, "Failed to open key-value storage")
	}
	closers = append(closers, func() { _ = stores.Close() })
	cache := handoff.New(stores.Local)

	// INITIATE DATABASE
	var events *logger.LogService
	if cfg.PgSql.Enabled {
		dbConn, err := db.SetupDatabase(ctx, cfg)
		if err != nil {
			fatal(err, "Failed to setup database")
		}
		closers = append(closers, dbConn.Close)
		server.AddHealthCheck("postgres", dbConn)

		events = logger.NewLogService(dbConn.Pool)
		logger.InitializeLogging(events)
		log.Info().Msg("Zerolog database hooks initialized")
	}

	// INITIATE TRANSPORT
	var transport messaging.Transport
	var eventStream background.EventStream
	if cfg.Nats.Enabled {
		broker, err := messaging.NewNatsBroker(cfg)
		if err != nil {
			fatal(err, "Failed to setup NATS client")
		}
		closers = append(closers, func() { _ = broker.Close() })
		transport = messaging.NewNatsTransport(broker.Conn(), cfg.Nats.SubjectPrefix)

		if _, err := broker.EnsureEventStream(ctx); err != nil {
			log.Warn().Err(err).Msg("JetStream unavailable, analytics events are not mirrored")
		} else {
			eventStream = broker
		}
	} else {
		transport = messaging.NewLocalTransport()
	}

	// INITIATE REMOTE API
	client, err := apiclient.New(apiclient.ConfigFrom(cfg), apiclient.WithTokenSource(popup.NewStoredToken(stores.Local)))
	if err != nil {
		fatal(err, "Failed to create API client")
	}
	api := apiclient.NewAPI(client)

	contentDeps := content.Deps{
		Extraction:        extraction.NewService(client),
		Cache:             cache,
		Transport:         transport,
		ExtractionTimeout: content.ExtractionTimeout(apiclient.ConfigFrom(cfg)),
	}
	if events != nil {
		contentDeps.Events = events
	}

	// gcs
	if cfg.GCS.SnapshotBucket != "" {
		gcsStorage, err := storage.NewGCSStorage(ctx, cfg.GCS)
		if err != nil {
			fatal(err, "Failed to setup GCS storage")
		}
		closers = append(closers, func() { _ = gcsStorage.Close() })
		contentDeps.Archive = storage.NewSnapshotArchive(gcsStorage, cfg.GCS.SnapshotBucket)
	}

	bgDeps := background.Deps{
		Runtime:   background.NewProcessRuntime(background.ManifestFrom(cfg), transport, onReload),
		Transport: transport,
		Analytics: api,
		Events:    eventStream,
	}

	// INITIATE BROWSER
	var tabs *background.RodTabs
	if cfg.Browser.Enabled {
		browser, err := background.ConnectBrowser(cfg)
		if err != nil {
			fatal(err, "Failed to connect to browser")
		}
		closers = append(closers, func() { _ = browser.Close() })

		tabs = background.NewRodTabs(browser)
		injector := content.NewInjector(transport, tabs, contentDeps)
		closers = append(closers, injector.Close)

		bgDeps.Tabs = tabs
		bgDeps.Injector = injector
		server.SetTabs(tabs)
	}

	// INITIATE BACKGROUND COORDINATOR
	coordinator, err := messaging.NewCoordinator(constants.BackgroundEndpoint, work.DefaultPoolConfig())
	if err != nil {
		fatal(err, "Failed to create background coordinator")
	}
	if events != nil {
		coordinator.Observe(events.MessageReceived)
	}
	coordinator.Start(ctx)
	closers = append(closers, coordinator.Stop)

	service := background.NewService(bgDeps)
	service.Register(coordinator)

	stopListening, err := transport.Listen(coordinator)
	if err != nil {
		fatal(err, "Failed to listen on background endpoint")
	}
	closers = append(closers, func() { _ = stopListening() })

	if tabs != nil {
		if err := tabs.Watch(ctx, func(tabID int, status string, tab models.Tab) {
			service.OnTabUpdated(ctx, tabID, status, tab)
		}); err != nil {
			log.Warn().Err(err).Msg("Tab updates unavailable, listeners must be attached on demand")
		}
	}

	server.SetTransport(transport)
	server.SetHandoffCache(cache)
	server.SetContextMenu(service)
	server.setupRoute()

	return server, cleanup
}
