package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/shelftrack/shelftrack/internal/audit"
	"github.com/shelftrack/shelftrack/internal/authsvc"
	"github.com/shelftrack/shelftrack/internal/backend"
	"github.com/shelftrack/shelftrack/internal/config"
	"github.com/shelftrack/shelftrack/internal/db"
	"github.com/shelftrack/shelftrack/internal/es"
	"github.com/shelftrack/shelftrack/internal/events"
	"github.com/shelftrack/shelftrack/internal/handlers"
	"github.com/shelftrack/shelftrack/internal/logging"
	loggingmw "github.com/shelftrack/shelftrack/internal/middleware/logging"
	"github.com/shelftrack/shelftrack/internal/repository"
	searchsvc "github.com/shelftrack/shelftrack/internal/service/search"
	httpserver "github.com/shelftrack/shelftrack/internal/transport/http"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LOG_LEVEL)

	ctx := context.Background()
	gormDB, err := db.Open(ctx, cfg.DatabaseDSN())
	if err != nil {
		logger.Error("db_open_failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gormDB); err != nil {
		logger.Error("db_migrate_failed", "error", err)
		os.Exit(1)
	}

	var producer *events.Producer
	if cfg.KAFKA_ADDRESS != "" {
		producer = events.NewProducer(strings.Split(cfg.KAFKA_ADDRESS, ","))
	}

	b := backend.New(gormDB)

	var pub audit.Publisher
	if producer != nil {
		pub = producer
	}
	aud := audit.New(b, pub)

	auth := authsvc.New(gormDB, []byte(cfg.JWT_SECRET), []byte(cfg.REFRESH_SECRET))

	storeRepo := repository.New(b, repository.StoreKind(), aud)
	productRepo := repository.New(b, repository.ProductKind(), aud)

	searchHandler := &handlers.SearchHandler{Index: searchsvc.ProductIndex}
	if cfg.ES_URL != "" {
		esClient, err := es.NewClient(cfg, logger)
		if err != nil {
			logger.Error("es_connect_failed", "error", err)
			os.Exit(1)
		}
		searchHandler.ES = esClient
		productRepo.Indexer = &searchsvc.ProductIndexer{ES: esClient, IndexName: searchsvc.ProductIndex}
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		Auth:           auth,
		AuthHandler:    &handlers.AuthHandler{Auth: auth},
		StoreHandler:   &handlers.StoreHandler{Stores: storeRepo},
		ProductHandler: &handlers.ProductHandler{Products: productRepo, Stores: storeRepo},
		LogHandler:     &handlers.LogHandler{Backend: b},
		SearchHandler:  searchHandler,
		WatchHandler:   &handlers.WatchHandler{Backend: b},
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         cfg.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming watch endpoints hold the response open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", "error", err)
		}
	}()
	logger.Info("server_started", "addr", cfg.HTTP_ADDR)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db_close_error", "error", err)
		}
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka_close_error", "error", err)
		}
	}

	logger.Info("shutdown_complete")
}
