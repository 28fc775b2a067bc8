package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/apiclient"
	"github.com/LexiconIndonesia/covercraft-service/common/config"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/content"
	"github.com/LexiconIndonesia/covercraft-service/handler"
	"github.com/LexiconIndonesia/covercraft-service/handoff"
	"github.com/LexiconIndonesia/covercraft-service/middlewares"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

const responseSlack = 15 * time.Second

type AppHttpServer struct {
	router         *chi.Mux
	cfg            config.Config
	server         *http.Server
	messageTimeout time.Duration
	transport      messaging.Transport
	cache          *handoff.Cache
	tabs           handler.ActiveTabs
	menu           handler.ContextMenu
	checks         map[string]handler.Pinger
}

func NewAppHttpServer(cfg config.Config) (*AppHttpServer, error) {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middlewares.HeaderApiKey},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Message requests may wait for a whole page extraction.
	messageTimeout := content.ExtractionTimeout(apiclient.ConfigFrom(cfg))
	r.Use(middleware.Timeout(messageTimeout + responseSlack))

	server := &AppHttpServer{
		router:         r,
		cfg:            cfg,
		messageTimeout: messageTimeout,
		checks:         make(map[string]handler.Pinger),
	}
	return server, nil
}

// SetTransport sets the messaging transport used to reach the contexts
func (s *AppHttpServer) SetTransport(transport messaging.Transport) {
	s.transport = transport
}

// SetHandoffCache sets the cache exposed read-only under /v1/handoff
func (s *AppHttpServer) SetHandoffCache(cache *handoff.Cache) {
	s.cache = cache
}

// SetTabs sets the browser capability; leave unset when no browser runs
func (s *AppHttpServer) SetTabs(tabs handler.ActiveTabs) {
	s.tabs = tabs
}

// SetContextMenu sets the receiver of context-menu clicks
func (s *AppHttpServer) SetContextMenu(menu handler.ContextMenu) {
	s.menu = menu
}

// AddHealthCheck reports name under /health/dependencies
func (s *AppHttpServer) AddHealthCheck(name string, check handler.Pinger) {
	s.checks[name] = check
}

func (s *AppHttpServer) setupRoute() {
	r := s.router

	if s.transport == nil {
		log.Warn().Msg("Transport dependency not set")
	}

	// API Documentation with Swagger
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Mount("/health", handler.NewHealthHandler(s.checks).Router())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middlewares.ApiKey(s.cfg.Security.BackendApiKey))

		r.Mount("/messages", handler.NewMessageHandler(s.transport, s.messageTimeout).Router())
		r.Mount("/handoff", handler.NewHandoffHandler(s.cache).Router())
		r.Mount("/tabs", handler.NewTabHandler(s.tabs, s.menu).Router())
	})
}

func (s *AppHttpServer) start() error {
	r := s.router
	cfg := s.cfg
	log.Info().Msg("Starting up server...")

	s.server = &http.Server{
		Addr:         cfg.Listen.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.messageTimeout + 2*responseSlack,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// stop gracefully shuts down the server
func (s *AppHttpServer) stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
