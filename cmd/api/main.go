package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"deckmerge/internal/http/handlers"
	"deckmerge/internal/http/httpapi"
	"deckmerge/internal/infra"
	"deckmerge/internal/merge"
	"deckmerge/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	var store merge.ObjectStore
	switch cfg.StorageBackend {
	case infra.StorageBackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		store, err = storage.NewPostgresStore(ctx, pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize postgres store")
		}
	default:
		store, err = storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize file store")
		}
	}

	service, err := merge.NewService(merge.ServiceOptions{
		Store:            store,
		CachePrefix:      cfg.CachePrefix,
		MaxImageBytes:    cfg.MaxImageBytes,
		FetchTimeout:     cfg.FetchTimeout,
		FetchConcurrency: cfg.FetchConcurrency,
		OutputFormat:     cfg.MergeOutputFormat,
		TileWidth:        cfg.TileWidth,
		TileHeight:       cfg.TileHeight,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build merge service")
	}

	app := handlers.NewApp(service, logger)
	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
