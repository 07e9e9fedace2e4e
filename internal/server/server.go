package server

import (
	"fmt"
	"net/http"
	"time"

	"shopsync/internal/cart"
	"shopsync/internal/config"
	custommiddleware "shopsync/internal/middleware"
	"shopsync/internal/mirror"
	"shopsync/internal/repository"
	"shopsync/internal/service"
	"shopsync/internal/session"
	"shopsync/internal/stats"
	"shopsync/internal/store"
	"shopsync/internal/syncer"
	"shopsync/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Resources are the externally owned dependencies the server wires
// together. Redis is optional; when nil the rate limiter is skipped.
type Resources struct {
	Store    store.Store
	Mirror   mirror.Client
	UserRepo repository.UserRepository
	Redis    *redis.Client
}

type Server struct {
	*http.Server
	config   *config.Config
	logger   *zap.Logger
	engine   *syncer.Engine
	sessions *session.Registry
	store    store.Store
}

func NewServer(cfg *config.Config, logger *zap.Logger, res Resources) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(nil, cfg.Server.Env == "development"))

	if res.Redis != nil {
		router.Use(custommiddleware.RateLimitMiddleware(res.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: 100,
			Window:            time.Minute,
			KeyPrefix:         "ratelimit",
		}, logger))
	}

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Core sync machinery: engine over the local store and remote mirror,
	// session registry, per-user carts, stock statistics.
	engine := syncer.NewEngine(res.Store, res.Mirror, logger)
	sessions := session.NewRegistry(logger)
	carts := cart.NewManager(engine, logger)
	statsService := stats.NewService(engine)

	// Initialize services
	userService := service.NewUserService(res.UserRepo, cfg.JWT.Secret)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminMiddleware := custommiddleware.RequireAdmin(logger)

	// Initialize handlers and register routes
	userHandler := transport.NewUserHandler(userService, engine, sessions, carts, cfg.Sync.Realtime, logger)
	productHandler := transport.NewProductHandler(engine, logger)
	cartHandler := transport.NewCartHandler(carts, engine, logger)
	statsHandler := transport.NewStatsHandler(statsService, logger)
	syncHandler := transport.NewSyncHandler(engine)

	userHandler.RegisterRoutes(router, authMiddleware)
	productHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	cartHandler.RegisterRoutes(router, authMiddleware)
	statsHandler.RegisterRoutes(router, authMiddleware)
	syncHandler.RegisterRoutes(router, authMiddleware)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:   cfg,
		logger:   logger,
		engine:   engine,
		sessions: sessions,
		store:    res.Store,
	}

	return server
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// End sessions first so realtime subscriptions stop producing,
	// then drain in-flight mirror writes before the store goes away.
	s.sessions.EndAll()
	s.engine.Wait()

	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close local store", zap.Error(err))
	}

	s.logger.Sync()
	return nil
}
