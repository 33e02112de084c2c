package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/example/chatbot/api"
	"github.com/example/chatbot/chat"
	"github.com/example/chatbot/config"
	"github.com/example/chatbot/domain"
	"github.com/example/chatbot/logger"
	"github.com/example/chatbot/openai"
	"github.com/example/chatbot/ratelimit"
	"github.com/example/chatbot/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	logger.L.Info("starting chat backend",
		"port", cfg.Server.Port,
		"database", cfg.Database.DSN,
		"redis", cfg.Redis.Addr,
		"model", cfg.OpenAI.Model)

	db, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		logger.L.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	limiter := ratelimit.New(rdb, cfg.RateLimit)

	llmClient := openai.NewClient(cfg.OpenAI)
	chatSvc := chat.NewService(db, llmClient, cfg.Chat)

	if cfg.Auth.BootstrapAPIKey != "" {
		if err := seedBootstrapUser(db, cfg.Auth.BootstrapAPIKey); err != nil {
			logger.L.Warn("failed to seed bootstrap user", "error", err)
		}
	}

	h := api.NewHandler(chatSvc, db, limiter)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	h.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.L.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.L.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("failed to shut down gracefully", "error", err)
	}
}

// seedBootstrapUser creates a user for the configured API key when none
// exists yet, so fresh deployments are usable immediately.
func seedBootstrapUser(db store.Store, apiKey string) error {
	ctx := context.Background()
	user, err := db.GetUserByAPIKey(ctx, apiKey)
	if err != nil {
		return err
	}
	if user != nil {
		return nil
	}
	return db.CreateUser(ctx, &domain.User{
		UserID:    domain.NewUserID(),
		APIKey:    apiKey,
		Name:      "bootstrap",
		CreatedAt: time.Now(),
	})
}
