package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/research-market/internal/application"
	appanalyses "github.com/bryanwahyu/research-market/internal/application/analyses"
	"github.com/bryanwahyu/research-market/internal/application/checkpoint"
	appdeals "github.com/bryanwahyu/research-market/internal/application/deals"
	applistings "github.com/bryanwahyu/research-market/internal/application/listings"
	appoutbox "github.com/bryanwahyu/research-market/internal/application/outbox"
	"github.com/bryanwahyu/research-market/internal/domain/analyses"
	"github.com/bryanwahyu/research-market/internal/domain/deals"
	"github.com/bryanwahyu/research-market/internal/domain/outbox"
	"github.com/bryanwahyu/research-market/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/research-market/internal/infra/httpserver"
	"github.com/bryanwahyu/research-market/internal/infra/payment"
	minioStore "github.com/bryanwahyu/research-market/internal/infra/storage"
	"github.com/bryanwahyu/research-market/internal/infra/workflow"
	"github.com/bryanwahyu/research-market/internal/middleware"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the trigger outbox scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(*configPath, true)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, dialect, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := sqlstore.Migrate(ctx, db, dialect); err != nil {
				return err
			}

			// init repo
			analysisRepo := sqlstore.NewAnalysisRepository(db, dialect)
			reportRepo := sqlstore.NewReportRepository(db, dialect)
			candidateRepo := sqlstore.NewCandidateRepository(db, dialect)
			activityRepo := sqlstore.NewActivityRepository(db, dialect)
			listingRepo := sqlstore.NewListingRepository(db, dialect)
			dealRepo := sqlstore.NewDealRepository(db, dialect)
			outboxRepo := sqlstore.NewOutboxRepository(db, dialect)

			dbCheck := &middleware.DatabaseHealthChecker{DB: db}
			checks := map[string]middleware.HealthChecker{"database": dbCheck}

			// init minio (optional)
			var docs deals.DocumentStore = minioStore.Disabled{}
			if cfg.Minio.Endpoint != "" {
				store, err := minioStore.New(ctx,
					cfg.Minio.Endpoint,
					cfg.Minio.Region,
					cfg.Minio.BucketName,
					cfg.Minio.AccessKey,
					cfg.Minio.SecretKey,
					cfg.Minio.UseSSL,
				)
				if err != nil {
					return fmt.Errorf("minio init error: %w", err)
				}
				docs = store
				checks["object_storage"] = store
			} else {
				log.Warn("minio not configured, deal document uploads disabled")
			}

			clock := application.SystemClock{}
			engine := workflow.NewClient(cfg.Workflow.StartURL, cfg.Workflow.ResumeURL, cfg.Workflow.IssueTimeout, log.Named("workflow"))

			dispatcher := &appoutbox.Dispatcher{
				Repo:        outboxRepo,
				Engine:      engine,
				Clock:       clock,
				Log:         log.Named("outbox"),
				MaxAttempts: cfg.Outbox.MaxAttempts,
				Backoff:     cfg.Outbox.Backoff,
				BatchSize:   cfg.Outbox.BatchSize,
			}

			// init service
			analysisSvc := &appanalyses.Service{
				Repo:             analysisRepo,
				Reports:          reportRepo,
				Papers:           candidateRepo,
				Activity:         activityRepo,
				Listings:         listingRepo,
				Trigger:          dispatcher,
				Clock:            clock,
				Log:              log.Named("analyses"),
				DefaultMaxPapers: cfg.Workflow.DefaultMaxPapers,
			}
			dispatcher.OnDead = func(ctx context.Context, e *outbox.Event, cause error) {
				if e.Kind != outbox.KindAnalysisStart {
					return
				}
				if err := analysisSvc.MarkTriggerFailed(ctx, analyses.CorrelationID(e.AnalysisID), cause); err != nil {
					log.Error("mark trigger failed", zap.String("analysis_id", e.AnalysisID), zap.Error(err))
				}
			}

			checkpointSvc := &checkpoint.Service{
				Analyses:     analysisRepo,
				Papers:       candidateRepo,
				Trigger:      dispatcher,
				Clock:        clock,
				Log:          log.Named("checkpoint"),
				PollInterval: cfg.Checkpoint.PollInterval,
				StallAfter:   cfg.Checkpoint.StallAfter,
			}
			listingSvc := &applistings.Service{
				Repo:     listingRepo,
				Analyses: analysisRepo,
				Clock:    clock,
				Log:      log.Named("listings"),
			}
			dealSvc := &appdeals.Service{
				Repo:      dealRepo,
				Listings:  listingRepo,
				Payments:  payment.NewStripe(cfg.Payment.StripeSecretKey, cfg.Payment.WebhookSecret, cfg.Payment.SuccessURL, cfg.Payment.CancelURL, cfg.Payment.Currency),
				Documents: docs,
				Clock:     clock,
				Log:       log.Named("deals"),
			}

			limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSecond)
			defer limiter.Close()

			// init router
			handler := httpserver.NewRouter(httpserver.Deps{
				Analyses:    analysisSvc,
				Checkpoint:  checkpointSvc,
				Listings:    listingSvc,
				Deals:       dealSvc,
				Log:         log.Named("http"),
				JWTSecret:   []byte(cfg.Auth.JWTSecret),
				EngineToken: cfg.Auth.EngineToken,
				CORSOrigins: cfg.Server.CORSOrigins,
				Limiter:     limiter,
				Health:      checks,
				Ready:       dbCheck,
			})

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			sched := cron.New()
			if _, err := dispatcher.Schedule(sched, cfg.Outbox.Schedule); err != nil {
				return fmt.Errorf("outbox schedule %q: %w", cfg.Outbox.Schedule, err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				sched.Start()
				<-gctx.Done()
				<-sched.Stop().Done()
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				err := srv.Shutdown(shutdownCtx)
				dispatcher.Wait()
				return err
			})
			return g.Wait()
		},
	}
}
