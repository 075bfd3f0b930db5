package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/medrex/hms-access/internal/guard"
	"github.com/medrex/hms-access/internal/profile"
	"github.com/medrex/hms-access/internal/rbac"
	"github.com/medrex/hms-access/pkg/config"
	"github.com/medrex/hms-access/pkg/database"
	"github.com/medrex/hms-access/pkg/logger"
	"github.com/medrex/hms-access/pkg/monitoring"
	pkgrbac "github.com/medrex/hms-access/pkg/rbac"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search ., ./config, /etc/medrex)")
	dumpCatalog := flag.Bool("dump-catalog", false, "print the built-in role catalog as YAML and exit")
	flag.Parse()

	if *dumpCatalog {
		out, err := rbac.MarshalCatalogSpec(rbac.DefaultCatalogSpec())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render catalog: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	// Load configuration
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel)
	log.WithField("version", "1.0.0").Info("Starting access-control service")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("Access-control service failed")
		os.Exit(1)
	}
	log.Info("Access-control service stopped")
}

// run owns every resource the service opens so deferred cleanup runs on
// both signal shutdown and startup failure.
func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := monitoring.InitTracing(ctx, monitoring.TracingConfig{
		ServiceName:    "hms-access",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Monitoring.TracingEndpoint,
		Insecure:       cfg.Monitoring.TracingInsecure,
		SamplingRate:   cfg.Monitoring.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.WithError(err).Warn("Failed to flush traces")
		}
	}()

	health := monitoring.NewHealthManager("hms-access", "1.0.0")
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := rbac.NewMetrics(registry)
	channels := []rbac.AlertChannel{rbac.NewLogAlertChannel(log.Logger)}
	if cfg.Alerts.RedisURL != "" {
		alertFeed, err := rbac.NewRedisAlertChannel(ctx, cfg.Alerts.RedisURL, cfg.Alerts.RedisKey, cfg.Alerts.MaxLen)
		if err != nil {
			return fmt.Errorf("connect to alert feed: %w", err)
		}
		defer alertFeed.Close()
		channels = append(channels, alertFeed)
		health.RegisterChecker("redis", monitoring.CheckerFunc(alertFeed.Ping))
	}
	monitor := rbac.NewActivityMonitor(rbac.ActivityThresholds{
		MaxConsecutiveDenials: cfg.Access.MaxConsecutiveDenials,
		MaxEmergencyOverrides: cfg.Access.MaxEmergencyOverrides,
		Window:                cfg.Access.ActivityWindowDuration(),
	}, log.Logger, metrics, channels...)
	monitor.StartCleanup(ctx, 10*time.Minute)

	opts := []rbac.ABACOption{rbac.WithMetrics(metrics), rbac.WithActivityMonitor(monitor)}
	handlerOpts := []guard.HandlerOption{guard.WithHealthManager(health)}
	var sinks rbac.MultiAuditSink

	if cfg.Database.Enabled {
		db, err := database.NewConnection(ctx, &cfg.Database, log)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := db.CreateSchema(ctx); err != nil {
			return fmt.Errorf("create database schema: %w", err)
		}

		profiles := profile.NewStore(db, log.Logger)
		auditStore := rbac.NewPostgresAuditSink(db.DB, log.Logger)
		sinks = append(sinks, auditStore)
		health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))

		opts = append(opts, rbac.WithAttributeSource(profiles))
		handlerOpts = append(handlerOpts,
			guard.WithAuditReader(auditStore),
			guard.WithProfileStore(profiles),
		)
	} else {
		log.Warn("Database disabled: callers are evaluated from token claims only")
	}

	if cfg.Access.AuditLogMirror {
		sinks = append(sinks, rbac.NewLogAuditSink(log))
	}
	if len(sinks) > 0 {
		opts = append(opts, rbac.WithAuditSink(sinks))
	} else if cfg.Access.EnableEmergencyOverride {
		log.Warn("No audit sink configured: emergency overrides will be refused")
	}

	service, err := rbac.NewService(&rbac.Config{
		CatalogFile:          cfg.Access.CatalogFile,
		EmergencyRoles:       cfg.Access.Roles(),
		EmergencyPermissions: cfg.Access.Permissions(),
		ABAC: rbac.ABACConfig{
			AttributeLookupTimeout:      cfg.Access.LookupTimeout(),
			EnableEmergencyOverride:     cfg.Access.EnableEmergencyOverride,
			DepartmentOverrideClearance: pkgrbac.ClearanceLevel(cfg.Access.DepartmentOverrideClearance),
		},
	}, log.Logger, opts...)
	if err != nil {
		return fmt.Errorf("initialize access-control service: %w", err)
	}

	health.RegisterChecker("access_engine", service)

	if cfg.RateLimit.Enabled {
		limiter := guard.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		limiter.StartCleanup(ctx, 10*time.Minute)
		handlerOpts = append(handlerOpts, guard.WithRateLimiter(limiter))
	}

	g := guard.New(service, log)
	validator := guard.NewTokenValidator(cfg.JWT.SecretKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	mw := guard.NewMiddleware(g, validator, log)

	router := mux.NewRouter()
	router.Use(mw.RequestID)
	if cfg.Monitoring.Enabled {
		router.Use(monitoring.NewHTTPMetrics(registry).HTTPMiddleware)
		router.Handle(cfg.Monitoring.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	guard.NewHandler(service, g, log, handlerOpts...).RegisterRoutes(router, mw)

	// Setup HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"address": server.Addr,
			"tls":     cfg.Server.TLSEnabled,
		}).Info("Starting HTTP server")

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve HTTP: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down access-control service...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
