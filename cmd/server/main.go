package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/testportal-service/internal/auth"
	"github.com/SAP-F-2025/testportal-service/internal/cache"
	"github.com/SAP-F-2025/testportal-service/internal/config"
	"github.com/SAP-F-2025/testportal-service/internal/events"
	"github.com/SAP-F-2025/testportal-service/internal/handlers"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
	"github.com/SAP-F-2025/testportal-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/testportal-service/internal/services"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
	"github.com/SAP-F-2025/testportal-service/internal/validator"
	"github.com/SAP-F-2025/testportal-service/pkg"
)

func main() {
	app := fx.New(
		// Core Application Components
		fx.Provide(
			config.LoadConfig,
			NewLogger,
			NewDatabase,
			NewCache,
			NewEventPublisher,
			NewTokenVerifier,
			validator.New,
			NewGinEngine,
		),

		// Repositories Layer
		fx.Provide(
			NewTestRepository,
			postgres.NewSubmissionPostgreSQL,
			postgres.NewCatalogPostgreSQL,
		),

		// Services Layer
		fx.Provide(
			services.NewEventService,
			services.NewAttemptService,
			services.NewTestService,
			services.NewAnalyticsService,
			services.NewExportService,
		),

		// API Layer
		fx.Provide(handlers.NewHandlerManager),

		fx.Invoke(RegisterRoutesAndStartServer),
		fx.NopLogger,
	)

	if err := app.Start(context.Background()); err != nil {
		utils.NewDefaultLogger().Error("Failed to start application", "error", err)
		os.Exit(1)
	}

	<-app.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		utils.NewDefaultLogger().Error("Failed to stop application cleanly", "error", err)
		os.Exit(1)
	}
}

func NewLogger(cfg *config.Config) utils.Logger {
	return utils.NewLogger(cfg.Environment)
}

// NewDatabase connects to Postgres and migrates the service schema
func NewDatabase(lc fx.Lifecycle, cfg *config.Config, logger utils.Logger) (*gorm.DB, error) {
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := pkg.AutoMigrate(db); err != nil {
		return nil, err
	}
	logger.Info("Database ready")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

// NewCache returns the redis cache, or a pass-through cache when redis is unreachable
func NewCache(lc fx.Lifecycle, cfg *config.Config, logger utils.Logger) cache.CacheService {
	client, err := pkg.NewRedisClient(cfg)
	if errors.Is(err, pkg.ErrCacheDisabled) {
		logger.Info("Test cache disabled")
		return cache.NewNoopCache()
	}
	if err != nil {
		logger.Warn("Redis unavailable, test lookups will not be cached", "error", err)
		return cache.NewNoopCache()
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	testCache := cache.NewRedisCache(client, cache.TestCacheConfig.Prefix, logger)
	// Entries written by a previous deployment may not match the migrated schema
	cache.SafeInvalidatePattern(context.Background(), testCache, logger, "*")
	return testCache
}

func NewEventPublisher(lc fx.Lifecycle, cfg *config.Config, logger utils.Logger) (events.EventPublisher, error) {
	publisher, err := cfg.Events.CreateEventPublisher(utils.ToSlogLogger(logger))
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

func NewTokenVerifier(cfg *config.Config, logger utils.Logger) auth.TokenVerifier {
	if cfg.Auth.Provider == "casdoor" {
		logger.Info("Verifying tokens with Casdoor", "endpoint", cfg.Auth.CasdoorEndpoint)
		return auth.NewCasdoorVerifier(auth.CasdoorConfig{
			Endpoint:     cfg.Auth.CasdoorEndpoint,
			ClientID:     cfg.Auth.CasdoorClientID,
			ClientSecret: cfg.Auth.CasdoorClientSecret,
			Certificate:  cfg.Auth.CasdoorCertificate,
			Organization: cfg.Auth.CasdoorOrganization,
			Application:  cfg.Auth.CasdoorApplication,
		})
	}
	return auth.NewJWTVerifier(cfg.Auth.JWTSecret)
}

func NewTestRepository(db *gorm.DB, cacheService cache.CacheService, cfg *config.Config, logger utils.Logger) repositories.TestRepository {
	return postgres.NewTestPostgreSQL(db, cacheService, cfg.CacheTTL, logger)
}

func NewGinEngine(cfg *config.Config, logger utils.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(utils.LoggerMiddleware(logger))
	r.Use(utils.ContextLogger(logger))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: !allowsAnyOrigin(cfg.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	return r
}

// RegisterRoutesAndStartServer mounts the API and ties the HTTP server to the app lifecycle
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	router *gin.Engine,
	manager *handlers.HandlerManager,
	cfg *config.Config,
	logger utils.Logger,
) {
	manager.SetupRoutes(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Server ListenAndServe failed", "error", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Server shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

func allowsAnyOrigin(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
