package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"shopsync/internal/config"
	"shopsync/internal/database"
	"shopsync/internal/logger"
	"shopsync/internal/mirror"
	"shopsync/internal/repository"
	"shopsync/internal/server"
	"shopsync/internal/store"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *server.Server, logger *zap.Logger, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // a second signal now kills the process

	// In-flight requests get 30 seconds to finish before the listener is torn down.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close ends active sessions, drains pending mirror writes and closes the store.
	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")
	done <- true
}

func main() {
	// Load .env if present, then configuration
	godotenv.Load()
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting shopsync API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store_driver", cfg.Store.Driver),
	)

	// Open the local store and user repository for the configured driver
	var (
		productStore store.Store
		userRepo     repository.UserRepository
	)
	switch cfg.Store.Driver {
	case "bolt":
		bdb, err := store.OpenBolt(cfg.Store.BoltPath, log)
		if err != nil {
			log.Fatal("Failed to open bolt store", zap.Error(err))
		}
		productStore = store.NewBoltStore(bdb, log)
		userRepo, err = repository.NewBoltUserRepository(bdb)
		if err != nil {
			log.Fatal("Failed to initialize bolt user repository", zap.Error(err))
		}
	case "postgres":
		db, err := database.Open(cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := database.RunMigrations(db, "migrations", log); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
		log.Info("Database migrations completed successfully")
		productStore = store.NewSQLStore(db, log)
		userRepo = repository.NewUserRepository(db)
	default:
		log.Fatal("Unknown store driver", zap.String("driver", cfg.Store.Driver))
	}

	// Connect the remote mirror when configured
	mirrorClient := mirror.Disabled()
	if cfg.Mongo.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoClient, mongoDB, err := mirror.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		cancel()
		if err != nil {
			log.Fatal("Failed to connect to remote mirror", zap.Error(err))
		}
		defer mongoClient.Disconnect(context.Background())
		mirrorClient = mirror.NewMongoMirror(mongoDB, log)
		log.Info("Remote mirror connected", zap.String("database", cfg.Mongo.Database))
	} else {
		log.Info("No remote mirror configured, running local-only")
	}

	// Redis backs the rate limiter; if it is unreachable the server runs
	// without one.
	var redisClient *redis.Client
	rc := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rc.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unavailable, rate limiting disabled", zap.Error(err))
		rc.Close()
	} else {
		redisClient = rc
		defer rc.Close()
	}
	pingCancel()

	srv := server.NewServer(cfg, log, server.Resources{
		Store:    productStore,
		Mirror:   mirrorClient,
		UserRepo: userRepo,
		Redis:    redisClient,
	})

	done := make(chan bool, 1)
	go gracefulShutdown(srv, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	<-done
	log.Info("Graceful shutdown complete")
}
