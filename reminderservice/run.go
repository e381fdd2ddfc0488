// Package reminderservice wires the reminder engine: store, event service,
// scheduler sweeps, notification hub, and the HTTP API.
package reminderservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/arguslabs/argus/server/internal/api"
	"github.com/arguslabs/argus/server/internal/config"
	"github.com/arguslabs/argus/server/internal/dismiss"
	"github.com/arguslabs/argus/server/internal/health"
	"github.com/arguslabs/argus/server/internal/logger"
	"github.com/arguslabs/argus/server/internal/notify"
	"github.com/arguslabs/argus/server/internal/oracle"
	"github.com/arguslabs/argus/server/internal/platform/factory"
	"github.com/arguslabs/argus/server/internal/scheduler"
	"github.com/arguslabs/argus/server/internal/services"
	"github.com/arguslabs/argus/server/internal/store"
)

// Run starts the reminder service HTTP server and scheduler, blocking until
// shutdown or error.
func Run() error {
	log := logger.New("argus-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Bool("oracle_configured", cfg.OracleURL != "").
		Float64("confidence_threshold", cfg.ConfidenceThreshold).
		Msg("Reminder service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, err := factory.NewStore(ctx, cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return err
	}

	hub := notify.NewHub(log)
	cache := dismiss.NewCache(cfg.DismissalTTL())
	eventSvc := services.NewEventService(st, hub, cache, log, cfg.ConfidenceThreshold, cfg.ConflictWindow())

	// Re-prime context suppressions that survived the restart.
	if err := eventSvc.WarmDismissals(ctx); err != nil {
		log.Warn().Err(err).Msg("dismissal warm-up failed")
	}

	var ingestor *services.Ingestor
	if cfg.OracleURL != "" {
		analyzer := oracle.NewClient(cfg.OracleURL, cfg.OracleAPIKey, cfg.OracleModel)
		ingestor = services.NewIngestor(analyzer, eventSvc, log)
	}

	router := buildRouter(eventSvc, ingestor, hub, log)

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, st)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	// Scheduler sweeps run for the lifetime of the server context.
	sweeper := scheduler.New(st, hub, scheduler.Config{
		TriggerInterval:  cfg.TriggerSweepInterval(),
		ReminderInterval: cfg.ReminderSweepInterval(),
		Tolerance:        cfg.SweepTolerance(),
		ExpireAfter:      cfg.ExpireAfter(),
	}, log)
	go func() {
		if err := sweeper.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	// HTTP server and serve
	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(eventSvc *services.EventService, ingestor *services.Ingestor, hub *notify.Hub, log zerolog.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Use(api.Recover)

	// Ingestion
	ingest := api.NewIngestHandler(ingestor)
	root.HandleFunc("/api/messages", ingest.IngestMessage).Methods("POST")

	// Events
	events := api.NewEventHandler(eventSvc)
	root.HandleFunc("/api/events", events.CreateEvent).Methods("POST")
	root.HandleFunc("/api/events", events.ListEvents).Methods("GET")
	root.HandleFunc("/api/events/day/{timestamp}", events.EventsForDay).Methods("GET")
	root.HandleFunc("/api/events/{id}", events.GetEvent).Methods("GET")
	root.HandleFunc("/api/events/{id}", events.UpdateEvent).Methods("PATCH")
	root.HandleFunc("/api/events/{id}", events.DeleteEvent).Methods("DELETE")
	root.HandleFunc("/api/events/{id}/approve", events.ApproveEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/snooze", events.SnoozeEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/complete", events.CompleteEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/ignore", events.IgnoreEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/dismiss", events.DismissEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/conflicts", events.EventConflicts).Methods("GET")
	root.HandleFunc("/api/events/{id}/triggers", events.EventTriggers).Methods("GET")
	root.HandleFunc("/api/reminders/due", events.DueReminders).Methods("GET")
	root.HandleFunc("/api/stats", events.GetStats).Methods("GET")

	// Actions
	actions := api.NewActionHandler(services.NewDispatcher(eventSvc), eventSvc)
	root.HandleFunc("/api/actions", actions.ApplyAction).Methods("POST")

	// Context checks
	contextHandler := api.NewContextHandler(eventSvc)
	root.HandleFunc("/api/context-check", contextHandler.CheckContext).Methods("POST")

	// Notification channel
	root.HandleFunc("/ws", hub.HandleWS)

	// Health
	healthHandler := api.NewHealthHandler()
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	return root
}

// startHealthCheckers starts component checkers and service-level aggregator; binds health.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, storeChecker)
	go svcHealth.Start(ctx, interval)
	api.BindServiceHealth(svcHealth.IsHealthy)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
