package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anatomap/server/internal/api"
	"github.com/anatomap/server/internal/cache"
	"github.com/anatomap/server/internal/clusters"
	"github.com/anatomap/server/internal/config"
	"github.com/anatomap/server/internal/datasetstore"
	"github.com/anatomap/server/internal/features"
	"github.com/anatomap/server/internal/render"
	"github.com/anatomap/server/internal/service"
	"github.com/anatomap/server/internal/termgraph"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Loads every configured map, replays the persisted datasets and serves
the marker API until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "config/server.yaml", "Path to configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !debug && os.Getenv("ANATOMAP_LOG_LEVEL") == "" {
		if err := logLevel.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			logger.Warn("invalid log level in configuration", zap.String("level", cfg.Log.Level))
		}
	}

	logger.Info("starting server", zap.Int("port", cfg.Server.Port))

	// Initialize cache manager (shared across all maps)
	cacheManager, err := cache.NewManager(cache.Config{
		CollectionCacheSizeMB: cfg.Cache.GeoJSONSizeMB,
		CollectionTTL:         time.Duration(cfg.Cache.GeoJSONTTLMinutes) * time.Minute,
		QueryCacheSize:        cfg.Cache.QueryCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheManager.Close()

	var store *datasetstore.Store
	if cfg.Store.SQLitePath != "" {
		store, err = datasetstore.NewStore(cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open dataset store: %w", err)
		}
		defer store.Close()
		logger.Info("dataset store opened", zap.String("path", cfg.Store.SQLitePath))
	}

	// Initialize badge renderer (shared across all maps)
	badgeRenderer := render.NewBadgeRenderer(render.Config{BadgeSize: cfg.Render.BadgeSize})

	zoom := clusters.ZoomRange{MinMarkerZoom: cfg.Markers.MinZoom, MaxMarkerZoom: cfg.Markers.MaxZoom}
	mapIDs := cfg.Maps.MapIDs()
	registry := api.NewMapRegistry(cfg.Maps.DefaultMap, mapIDs, cfg.Server.Title)

	logger.Info("initializing maps", zap.Int("maps", len(mapIDs)), zap.String("default", cfg.Maps.DefaultMap))

	// Maps are independent; load their sources concurrently.
	services := make([]*service.MarkerService, len(mapIDs))
	var g errgroup.Group
	for i, mapID := range mapIDs {
		mc := cfg.Maps.Maps[mapID]
		g.Go(func() error {
			svc, err := loadMap(mapID, mc, zoom, cacheManager, store, badgeRenderer)
			if err != nil {
				return err
			}
			services[i] = svc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, mapID := range mapIDs {
		registry.Register(mapID, services[i])
	}

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger.Named("http"),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}

func loadMap(
	mapID string,
	mc config.MapConfig,
	zoom clusters.ZoomRange,
	cacheManager *cache.Manager,
	store *datasetstore.Store,
	renderer *render.BadgeRenderer,
) (*service.MarkerService, error) {
	graph, err := termgraph.LoadFile(mc.Root, mc.HierarchyPath)
	if err != nil {
		return nil, fmt.Errorf("map %q: %w", mapID, err)
	}
	idx, err := features.LoadFile(mc.FeaturesPath)
	if err != nil {
		return nil, fmt.Errorf("map %q: %w", mapID, err)
	}
	logger.Info("map loaded",
		zap.String("map", mapID),
		zap.String("root", graph.Root()),
		zap.Int("terms", graph.Len()),
		zap.Int("max_depth", graph.MaxDepth()),
		zap.Int("features", idx.Len()),
		zap.Int("mapped_terms", idx.Terms()))

	svc := service.NewMarkerService(service.MarkerServiceConfig{
		MapID:    mapID,
		Title:    mc.Title,
		Graph:    graph,
		Features: idx,
		Zoom:     zoom,
		Cache:    cacheManager,
		Store:    store,
		Renderer: renderer,
		Logger:   logger,
	})

	if _, err := svc.Restore(); err != nil {
		return nil, fmt.Errorf("map %q: %w", mapID, err)
	}
	return svc, nil
}
