package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rapilink/backend/internal/config"
	"github.com/rapilink/backend/internal/db"
	"github.com/rapilink/backend/internal/geocode"
	httpapi "github.com/rapilink/backend/internal/http"
	"github.com/rapilink/backend/internal/identity"
	"github.com/rapilink/backend/internal/metrics"
	"github.com/rapilink/backend/internal/service"
	"github.com/rapilink/backend/internal/wisphub"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	store    *db.Store
	registry *prometheus.Registry
	workflow *service.WorkflowService
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rapilink",
		Short:        "WispHub ticket mirror and escalation engine",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), sweepCmd(), syncGlobalCmd(), migrateCmd())
	return root
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return log.Level(level).With().Str("service", "rapilink-backend").Logger()
}

// setup loads config, applies migrations when enabled and wires the workflow service.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	upstream := wisphub.NewHTTPClient(cfg.WisphubURL, cfg.WisphubAPIKey, cfg.WisphubTimeout, cfg.WisphubRateLimit)
	if cfg.StaffCacheTTL > 0 {
		upstream.StaffTTL = cfg.StaffCacheTTL
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := service.DefaultOptions()
	opts.PageDelay = cfg.SyncPageDelay
	opts.MaxPages = cfg.SyncMaxPages
	opts.LookbackDays = cfg.SyncLookbackDays
	opts.FullLookbackDays = cfg.SyncFullLookbackDays
	opts.WorkItemSLA = cfg.WorkItemSLA
	opts.EscalationSLA = cfg.EscalationSLA
	opts.AutoCloseAfter = cfg.AutoCloseAfter
	opts.AllowedSubjects = cfg.Subjects()
	opts.DefaultSubject = cfg.TicketDefaultSubject
	opts.ResolvedStatus = cfg.TicketResolvedStatus
	opts.AutoApplyLowConfidence = cfg.IdentityAutoApplyLowConfidence
	opts.CountryDefault = cfg.CountryDefault

	var geocoder geocode.Geocoder
	if cfg.GeocoderURL != "" {
		geocoder = &geocode.NominatimGeocoder{
			BaseURL:      cfg.GeocoderURL,
			UserAgent:    cfg.GeocoderUserAgent,
			CountryCodes: cfg.GeocoderCountries,
		}
	}

	wf := &service.WorkflowService{
		Store:    store,
		Upstream: upstream,
		Resolver: identity.NewResolver(identity.ParseOverrides(cfg.IdentityOverrides)),
		Geocoder: geocoder,
		Metrics:  metrics.New(reg),
		Logger:   logger,
		Options:  opts,
	}
	return &app{cfg: cfg, logger: logger, store: store, registry: reg, workflow: wf}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic escalation sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.store.Close()

			router := httpapi.Router(a.cfg, a.workflow, a.store, a.registry, a.logger)
			srv := &http.Server{
				Addr:              ":" + a.cfg.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			sweepDone := make(chan struct{})
			go func() {
				defer close(sweepDone)
				runSweeps(ctx, a.workflow, a.cfg.SweepInterval, a.logger)
			}()

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Str("port", a.cfg.Port).Msg("server started")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				a.logger.Error().Err(err).Msg("server error")
				stop()
			}

			ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctxShutdown)
			<-sweepDone
			a.logger.Info().Msg("server stopped")
			return nil
		},
	}
}

// runSweeps runs CheckTimeouts on every tick until ctx is done. Sweeps run one at a time.
func runSweeps(ctx context.Context, wf *service.WorkflowService, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		logger.Info().Msg("periodic sweep disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := wf.CheckTimeouts(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("timeout sweep failed")
				continue
			}
			logger.Info().Int("overdue", report.Overdue).Int("escalated", report.Escalated).
				Int("ceiling", report.Ceiling).Int("auto_closed", report.AutoClosed).
				Int("failed", report.Failed).Msg("timeout sweep finished")
		}
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation and auto-close sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.store.Close()

			report, err := a.workflow.CheckTimeouts(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info().Interface("report", report).Msg("sweep finished")
			return nil
		},
	}
}

func syncGlobalCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "sync-global",
		Short: "Mirror every recent WispHub ticket, resolving owners by identity rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.store.Close()

			report, err := a.workflow.SyncGlobalTickets(cmd.Context(), days, func(p service.SyncProgress) {
				a.logger.Info().Str("phase", p.Phase).Int("page", p.Page).Int("fetched", p.Fetched).
					Int("processed", p.Processed).Int("total", p.Total).Msg("progress")
			})
			if err != nil {
				return err
			}
			a.logger.Info().Interface("report", report).Msg("global sync finished")
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "lookback window in days (0 uses SYNC_LOOKBACK_DAYS)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			if err := db.Migrate(cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
			return nil
		},
	}
}
