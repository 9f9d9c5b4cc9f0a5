package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/SAH-VenD/expense-approvals/internal/client"
	"github.com/SAH-VenD/expense-approvals/internal/config"
	"github.com/SAH-VenD/expense-approvals/internal/handler"
	"github.com/SAH-VenD/expense-approvals/internal/repository"
	"github.com/SAH-VenD/expense-approvals/internal/repository/memory"
	"github.com/SAH-VenD/expense-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := newLogger(cfg)

	log.Info().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Msg("Starting Expense Approvals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store. An empty DATABASE_URL selects the in-memory store
	// for local development.
	var store repository.Store
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(ctx, repository.DBConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DatabaseMaxConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		store = repository.NewPostgresStore(db)
		log.Info().Msg("Database connection established")
	} else {
		mem := memory.NewStore()
		seedDevData(ctx, mem, log)
		store = mem
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	metrics := handler.NewMetrics(registry)

	// Initialize audit sink. Without a NATS URL audit events go to the log.
	var audit service.AuditSink
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name(cfg.ServiceName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create JetStream context")
		}
		audit = client.NewAuditPublisher(js, log, metrics.AuditDropsTotal)
		log.Info().Str("nats_url", cfg.NATSURL).Msg("NATS audit publisher initialized")
	} else {
		audit = client.NewLogSink(log)
		log.Warn().Msg("NATS_URL not set, audit events will only be logged")
	}

	// Initialize services
	authorizer := service.NewAuthorizer(store)
	approvalService := service.NewApprovalService(store, authorizer, audit, log)
	delegationService := service.NewDelegationService(store, log)
	tierService := service.NewTierService(store, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, delegationService, tierService, metrics, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Metrics
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Request lifecycle routes
	mux.HandleFunc("/api/v1/requests", httpHandler.SubmitRequest)
	mux.HandleFunc("/api/v1/requests/approve", httpHandler.Approve)
	mux.HandleFunc("/api/v1/requests/reject", httpHandler.Reject)
	mux.HandleFunc("/api/v1/requests/clarify", httpHandler.RequestClarification)
	mux.HandleFunc("/api/v1/requests/resubmit", httpHandler.Resubmit)
	mux.HandleFunc("/api/v1/requests/bulk-approve", httpHandler.BulkApprove)
	mux.HandleFunc("/api/v1/requests/bulk-reject", httpHandler.BulkReject)
	mux.HandleFunc("/api/v1/requests/pending", httpHandler.PendingApprovals)
	mux.HandleFunc("/api/v1/requests/history", httpHandler.ApprovalHistory)
	mux.HandleFunc("/api/v1/requests/timeline", httpHandler.RequestTimeline)

	// Tier routes
	mux.HandleFunc("/api/v1/tiers", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListTiers(w, r)
		case http.MethodPost:
			httpHandler.CreateTier(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/tiers/update", httpHandler.UpdateTier)
	mux.HandleFunc("/api/v1/tiers/deactivate", httpHandler.DeactivateTier)

	// Delegation routes
	mux.HandleFunc("/api/v1/delegations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListDelegations(w, r)
		case http.MethodPost:
			httpHandler.CreateDelegation(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/delegations/revoke", httpHandler.RevokeDelegation)

	// Apply middleware. RequestID wraps Logger so the ID is on the context
	// before the access log line is written.
	var h http.Handler = mux
	h = handler.Logger(&log)(h)
	h = handler.RequestID(h)
	h = handler.Recovery(&log)(h)
	h = handler.CORS([]string{"*"})(h)
	h = metrics.Middleware(h)
	h = handler.Timeout(cfg.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// newLogger builds the service logger. Development gets a console writer,
// everything else structured JSON.
func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out)
	if cfg.Environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}

// seedDevData loads a minimal tier ladder and a principal per role so the
// in-memory mode is usable out of the box.
func seedDevData(ctx context.Context, mem *memory.Store, log zerolog.Logger) {
	principals := []*repository.Principal{
		{ID: "dev-manager", Name: "Dev Manager", Role: repository.RoleManager},
		{ID: "dev-finance", Name: "Dev Finance", Role: repository.RoleFinance},
		{ID: "dev-director", Name: "Dev Director", Role: repository.RoleDirector},
		{ID: "dev-cfo", Name: "Dev CFO", Role: repository.RoleCFO},
	}
	for _, p := range principals {
		mem.AddPrincipal(p)
	}

	// Each tier is unbounded above so larger amounts accumulate review steps:
	// a $20,000 request (2,000,000 cents) walks manager, finance and director.
	tiers := []*repository.Tier{
		{Name: "Manager Review", Order: 1, MinAmount: 0, RequiredRole: repository.RoleManager, Active: true},
		{Name: "Finance Review", Order: 2, MinAmount: 100_000, RequiredRole: repository.RoleFinance, Active: true},
		{Name: "Director Review", Order: 3, MinAmount: 1_000_000, RequiredRole: repository.RoleDirector, Active: true},
		{Name: "CFO Review", Order: 4, MinAmount: 5_000_000, RequiredRole: repository.RoleCFO, Active: true},
	}
	for _, t := range tiers {
		if err := mem.CreateTier(ctx, t); err != nil {
			log.Error().Err(err).Str("tier", t.Name).Msg("Failed to seed tier")
		}
	}

	log.Info().Int("principals", len(principals)).Int("tiers", len(tiers)).Msg("Seeded development data")
}
