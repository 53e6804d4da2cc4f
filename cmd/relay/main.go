package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telerelay/internal/core/domain"
	"telerelay/internal/core/ports"
	"telerelay/internal/core/services"
	httphandlers "telerelay/internal/handlers/http"
	"telerelay/internal/infrastructure/middleware"
	"telerelay/internal/infrastructure/monitoring"
	repositories "telerelay/internal/infrastructure/repositories"
	hub "telerelay/internal/infrastructure/signal"
	"telerelay/pkg/config"
	"telerelay/pkg/logger"
	"telerelay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Try multiple config paths
var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/telerelay/config.yaml",
	"config.yaml",
}

func loadConfig(explicit string) (*config.Config, string, error) {
	if explicit != "" {
		cfg, err := config.Load(explicit)
		return cfg, explicit, err
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			cfg, err := config.Load(path)
			return cfg, path, err
		}
	}
	cfg, err := config.Load("")
	return cfg, "", err
}

func main() {
	startTime := time.Now()

	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, loadedFrom, err := loadConfig(*configPath)
	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("config not loaded, using defaults", "path", loadedFrom, "error", err)
	} else {
		log.Infow("config loaded", "path", loadedFrom)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
		tp = nil
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	registry := repoFactory.CreatePeerRegistry()
	frameStore := repoFactory.CreateFrameStore()

	// Initialize monitoring
	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	labels := domain.DeviceLabels{
		Actuator: cfg.Hub.ActuatorLabel,
		Camera:   cfg.Hub.CameraLabel,
	}

	// Hub and router reference each other: the router sends through the hub.
	wsServer := hub.NewWebSocketServer(registry, hub.HubConfigFrom(cfg), relayMetrics(collector), log.Named("hub"))
	wsServer.SetRouter(services.NewRouterService(registry, wsServer, labels, relayMetrics(collector), log.Named("router")))

	frameService := services.NewFrameService(frameStore, ingressMetrics(collector), log.Named("frames"))
	streamHandler := httphandlers.NewStreamHandler(frameService, httphandlers.StreamConfigFrom(cfg), log.Named("mjpeg"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := monitoring.NewHealthChecker()
	health.AddPingCheck("frame_store", repoFactory.HealthCheck, 30*time.Second, 2*time.Second)
	health.StartBackgroundChecks(ctx)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(),
		middleware.AccessLogMiddleware(logger.NewContextLogger(zapLogger.Named("http"))),
		middleware.RecoveryMiddleware(log),
		middleware.ErrorHandlerMiddleware(log),
	)

	router.GET(cfg.Hub.Path, middleware.NewWebSocketRateLimitMiddleware(cfg), gin.WrapF(wsServer.HandleWebSocket))

	media := router.Group("/")
	media.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	streamHandler.SetupRoutes(media)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "healthy",
			"timestamp":       time.Now(),
			"uptime":          time.Since(startTime).String(),
			"connected_peers": wsServer.ConnectionCount(),
			"redis":           repoFactory.UsingRedis(),
			"checks":          health.LastResults(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		checkCtx, checkCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer checkCancel()

		status := health.CheckAll(checkCtx)
		if status.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "not_ready",
				"timestamp": status.Timestamp,
				"checks":    status.Checks,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": status.Timestamp,
			"checks":    status.Checks,
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting telerelay",
			"address", cfg.Server.Address,
			"ws_path", cfg.Hub.Path,
			"mjpeg_boundary", cfg.MJPEG.Boundary,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down telerelay")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	wsServer.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	} else {
		log.Info("server shutdown gracefully")
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error shutting down tracer provider", "error", err)
		}
	}

	log.Info("telerelay stopped")
}

// relayMetrics avoids handing a typed nil collector to the hub and router.
func relayMetrics(c *monitoring.PrometheusCollector) ports.RelayMetrics {
	if c == nil {
		return nil
	}
	return c
}

func ingressMetrics(c *monitoring.PrometheusCollector) ports.IngressMetrics {
	if c == nil {
		return nil
	}
	return c
}
