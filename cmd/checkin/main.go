// cmd/checkin/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkindesk/internal/catalog"
	"checkindesk/internal/circulation"
	"checkindesk/internal/clients"
	"checkindesk/internal/config"
	"checkindesk/internal/desk"
	"checkindesk/internal/journal"
	"checkindesk/internal/logging"
	"checkindesk/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Fatalf("Failed to initialise tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	base := clients.New(cfg.OkapiURL, cfg.Tenant, cfg.Token,
		clients.WithHTTPClient(&http.Client{Timeout: cfg.ClientTimeout}),
		clients.WithRateLimit(cfg.ClientRatePerSecond, cfg.ClientBurst),
	)
	catalogClient := clients.NewCatalogClient(base)
	circulationClient := clients.NewCirculationClient(base)
	feefineClient := clients.NewFeeFineClient(base)
	configClient := clients.NewConfigClient(base)
	usersClient := clients.NewUsersClient(base)

	deskCfg := desk.Config{
		ServicePointID: cfg.ServicePointID,
		Operator:       circulation.Operator{ID: cfg.OperatorID},
		CheckinPath:    cfg.CheckinPath,
	}
	if cfg.OperatorID != "" {
		if user, err := usersClient.GetUser(ctx, cfg.OperatorID); err != nil {
			logger.WithError(err).Warn("operator lookup failed")
		} else {
			deskCfg.Operator.Name = user.DisplayName()
		}
	}
	if deskCfg.ServicePoint, err = configClient.ServicePoint(ctx, cfg.ServicePointID); err != nil {
		logger.WithError(err).Warn("service point lookup failed; slips print by default")
	}
	if deskCfg.StaffSlips, err = configClient.StaffSlips(ctx); err != nil {
		logger.WithError(err).Warn("staff slip lookup failed; printing disabled")
	}

	opts := []desk.Option{desk.WithSettingsSource(configClient)}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		j := journal.New(db, cfg.ServicePointID)
		if err := j.EnsureSchema(ctx); err != nil {
			logger.Fatalf("Failed to prepare journal: %v", err)
		}
		opts = append(opts, desk.WithJournal(j))
	}

	executor := circulation.NewService(circulationClient, circulationClient, feefineClient, logger,
		circulation.WithLocation(cfg.Location))
	d := desk.New(deskCfg, catalog.NewResolver(catalogClient), executor, circulationClient, logger, opts...)
	if err := d.RefreshSettings(ctx); err != nil {
		logger.WithError(err).Warn("check-in settings lookup failed; no inactivity timeout")
	}
	if cfg.SettingsRefresh > 0 {
		go d.WatchSettings(ctx, cfg.SettingsRefresh)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	desk.NewHandler(d, logger).Routes(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.EndSession(shutdownCtx); err != nil {
			logger.WithError(err).Warn("end-session notification failed on shutdown")
		}
		server.Shutdown(shutdownCtx)
	}()

	logger.WithFields(logrus.Fields{
		"port":             cfg.Port,
		"service_point_id": cfg.ServicePointID,
	}).Info("Starting check-in desk")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}
}
