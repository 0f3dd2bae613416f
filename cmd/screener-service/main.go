package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jongga-screener/internal/screener/collector"
	"jongga-screener/internal/screener/config"
	delivery "jongga-screener/internal/screener/delivery/http"
	"jongga-screener/internal/screener/generator"
	"jongga-screener/internal/screener/repository"
	"jongga-screener/internal/screener/scheduler"
	"jongga-screener/internal/screener/service"
	"jongga-screener/pkg/common"
	"jongga-screener/pkg/logger"
	"jongga-screener/pkg/postgres"
	"jongga-screener/pkg/redis"
	"jongga-screener/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the screener service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Screener Service", logger.Field("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize Redis
	redisCfg := redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := redis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// Initialize market data collectors
	chartClient := collector.NewYahooChartClient(appLogger, cfg.Screener.HTTPTimeout, cfg.Screener.ChartReqPerMinute)
	newsClient := collector.NewGoogleNewsClient(appLogger, cfg.Screener.HTTPTimeout)
	krx := collector.NewKRXCollector(cfg, appLogger, chartClient, newsClient)
	jpx := collector.NewJPXCollector(cfg, appLogger, chartClient)
	collectors := collector.Registry{
		common.MarketKOSPI:  krx,
		common.MarketKOSDAQ: krx,
		common.MarketTSE:    jpx,
	}

	// Optional Gemini sentiment analyzer
	var sentiment generator.SentimentAnalyzer
	if cfg.Gemini.Enabled {
		genAiClient, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.Gemini.APIKey})
		if err != nil {
			appLogger.Fatal("Failed to initialize Gemini client", logger.ErrorField(err))
		}
		sentiment, err = repository.NewGeminiSentimentRepository(cfg, appLogger, genAiClient)
		if err != nil {
			appLogger.Fatal("Failed to initialize sentiment analyzer", logger.ErrorField(err))
		}
	}

	// Optional Telegram notifier
	var notifier telegram.Notifier
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	// Initialize repositories
	signalRepo := repository.NewSignalRepository(db.DB)
	scanRunRepo := repository.NewScanRunRepository(db.DB)
	resultCache := repository.NewResultCache(redisClient, 0)

	// Initialize services
	gen := generator.NewSignalGenerator(cfg, appLogger, collectors, sentiment)
	screenerSvc := service.NewScreenerService(cfg, appLogger, gen, signalRepo, scanRunRepo, resultCache, notifier)
	trackerSvc := service.NewTrackerService(cfg, appLogger, collectors, signalRepo, notifier)

	// Start cron jobs
	jobs := scheduler.New(cfg, appLogger, screenerSvc, trackerSvc)
	if err := jobs.Start(ctx); err != nil {
		appLogger.Fatal("Failed to start scheduler", logger.ErrorField(err))
	}
	defer jobs.Stop()

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	screenerHandler := delivery.NewScreenerHandler(screenerSvc, appLogger)
	apiV1 := e.Group("/api/v1")
	screenerHandler.RegisterRoutes(apiV1.Group("/screener"))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop()
		}
	}()

	<-ctx.Done()

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

func main() {
	rootCmd := &cobra.Command{Use: "screener-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-screener.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing screener-service CLI: %s\n", err)
		os.Exit(1)
	}
}
