package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"rental-marketplace/internal/app"
	"rental-marketplace/internal/config"
	"rental-marketplace/internal/handlers"
	"rental-marketplace/internal/logger"
	"rental-marketplace/internal/ratelimit"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	configPath := getEnv("CONFIG_PATH", "/app/config/verification.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config from %s: %v", configPath, err)
	}
	appConfig.ApplyEnv()
	logger.Init(appConfig.Logging.AppName, appConfig.Logging.Level)

	if appConfig.Auth.JWTSecret == "" {
		logger.Log.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, appConfig)
	if err != nil {
		logger.Log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()
	logger.Log.Infof("Using %s database", appConfig.Database.Type)

	if appConfig.Jobs.Embedded {
		if err := a.Jobs.Start(); err != nil {
			logger.Log.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	rateLimiter := ratelimit.NewRateLimiter(
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.Enabled,
	)
	logger.Log.Infof("Rate limiter initialized: %d req/min, %d req/hour per caller (enabled: %v)",
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.Enabled,
	)
	go pruneLimiter(ctx, rateLimiter)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	var searcher handlers.TrustSearcher
	if a.Search != nil {
		searcher = a.Search
	}
	handlers.Router{
		JWTSecret:    appConfig.Auth.JWTSecret,
		Verification: handlers.NewVerificationHandler(a.Processor),
		Admin:        handlers.NewAdminHandler(a.Processor, a.Jobs, searcher, a.Dispatcher),
		Limiter:      rateLimiter,
	}.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server starting on port %s", appConfig.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server shutdown failed")
	}
}

// requestLogger logs each request through logrus instead of gin's default writer
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	}
}

func pruneLimiter(ctx context.Context, rl *ratelimit.RateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune()
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
