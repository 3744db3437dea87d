package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mzabaleta/veloloop/internal/adapters/graphhopper"
	"github.com/mzabaleta/veloloop/internal/adapters/http"
	natsadapter "github.com/mzabaleta/veloloop/internal/adapters/nats"
	"github.com/mzabaleta/veloloop/internal/adapters/nominatim"
	"github.com/mzabaleta/veloloop/internal/adapters/postgres"
	"github.com/mzabaleta/veloloop/internal/adapters/valkey"
	"github.com/mzabaleta/veloloop/internal/core/ports"
	"github.com/mzabaleta/veloloop/internal/core/usecases"
	"github.com/mzabaleta/veloloop/internal/pkg/config"
	"github.com/mzabaleta/veloloop/internal/pkg/logging"
	"github.com/mzabaleta/veloloop/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("veloloop-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Routing oracle. Without it nothing works, so failing to configure
	// it is fatal; the other collaborators degrade gracefully.
	oracle := graphhopper.New(cfg.GraphHopper.BaseURL, cfg.GraphHopper.APIKey,
		time.Duration(cfg.GraphHopper.TimeoutSeconds)*time.Second)

	geocoder := nominatim.New(cfg.Nominatim.BaseURL,
		time.Duration(cfg.Nominatim.TimeoutSeconds)*time.Second)

	// Database (archive only; loop generation has no persisted state)
	var db *postgres.DB
	var archiveRepo ports.RouteArchive
	if pg, err := postgres.New(ctx, cfg.Database.DSN()); err != nil {
		slog.Warn("database unavailable, route archive disabled", "error", err)
	} else {
		db = pg
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		archiveRepo = postgres.NewArchiveRepo(db)
	}

	// Cache
	var cacheSvc ports.CacheService
	var cache *valkey.Cache
	if vk, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		cache = vk
		cacheSvc = vk
		defer cache.Close()
	}

	// NATS
	var events ports.EventPublisher
	var nc *natsadapter.Publisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		nc = pub
		events = pub
		defer nc.Close()
	}

	// Use cases
	loopSvc := usecases.NewLoopService(oracle, convergenceConfig(cfg.Routing))
	stitchSvc := usecases.NewStitchService(oracle)
	sessionSvc := usecases.NewSessionService(loopSvc, stitchSvc, events)
	go sessionSvc.Janitor(ctx, time.Duration(cfg.Server.SessionTTLMinutes)*time.Minute, 5*time.Minute)
	geocodeSvc := usecases.NewGeocodeService(geocoder, cacheSvc)

	var archiveSvc *usecases.ArchiveService
	if archiveRepo != nil {
		archiveSvc = usecases.NewArchiveService(archiveRepo, cacheSvc)
	}

	deps := &http.Dependencies{
		Sessions:       sessionSvc,
		Stitcher:       stitchSvc,
		Geocode:        geocodeSvc,
		Archive:        archiveSvc,
		DB:             db,
		Cache:          cache,
		NATS:           nc,
		DefaultProfile: cfg.GraphHopper.Profile,
		DefaultStretch: cfg.Routing.StretchFactor,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "VeloLoop API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.veloloop.cc",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// convergenceConfig maps the routing section of the config file onto the
// engine's tunables, falling back to the shipped defaults for zero values.
func convergenceConfig(rc config.RoutingConfig) usecases.ConvergenceConfig {
	cc := usecases.DefaultConvergenceConfig()
	if rc.MaxRetries > 0 {
		cc.MaxRetries = rc.MaxRetries
	}
	if rc.MaxUnroutableAttempts > 0 {
		cc.MaxUnroutableAttempts = rc.MaxUnroutableAttempts
	}
	if rc.DistanceTolerance > 0 {
		cc.DistanceTolerance = rc.DistanceTolerance
	}
	if rc.StarRotationDeg > 0 {
		cc.StarRotationDeg = rc.StarRotationDeg
	}
	if rc.UnroutableRotationDeg > 0 {
		cc.UnroutableRotationDeg = rc.UnroutableRotationDeg
	}
	if rc.UnroutableRadiusShrink > 0 {
		cc.UnroutableRadiusShrink = rc.UnroutableRadiusShrink
	}
	if rc.ShapeTrimFraction > 0 {
		cc.Shape.TrimFraction = rc.ShapeTrimFraction
	}
	if rc.ShapeHubThreshold > 0 {
		cc.Shape.HubThreshold = rc.ShapeHubThreshold
	}
	return cc
}
